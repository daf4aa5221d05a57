package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/cittellg-bit/cryptotracker-sub001/internal/market"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/portfolio"
)

type topAssetsResponse struct {
	Assets []market.Asset `json:"assets"`
	Stale  bool           `json:"stale"`
	AsOf   string         `json:"as_of"`
}

func (s *Server) handleTopAssets(w http.ResponseWriter, r *http.Request) {
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 20, 250)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	result, err := s.Market.GetTopAssets(r.Context(), limit)
	if err != nil {
		s.log.WithError(err).Warn("top assets unavailable")
		writeError(w, http.StatusServiceUnavailable, "market data unavailable")
		return
	}

	assets := result.Assets
	if assets == nil {
		assets = []market.Asset{}
	}
	writeJSON(w, http.StatusOK, topAssetsResponse{
		Assets: assets,
		Stale:  result.Stale,
		AsOf:   formatTime(result.AsOf),
	})
}

type priceResponse struct {
	AssetID string          `json:"asset_id"`
	Price   decimal.Decimal `json:"price"`
	Stale   bool            `json:"stale"`
	AsOf    string          `json:"as_of"`
	Source  string          `json:"source"`
}

func (s *Server) handleCurrentPrice(w http.ResponseWriter, r *http.Request) {
	assetID := portfolio.NormalizeAssetID(chi.URLParam(r, "assetID"))
	if assetID == "" {
		writeError(w, http.StatusBadRequest, "asset id is required")
		return
	}

	result, err := s.Market.GetCurrentPrice(r.Context(), assetID)
	if err != nil {
		s.writeServiceError(w, r, err, "failed to load price")
		return
	}
	writeJSON(w, http.StatusOK, priceResponse{
		AssetID: result.AssetID,
		Price:   result.Price,
		Stale:   result.Stale,
		AsOf:    formatTime(result.AsOf),
		Source:  result.Source,
	})
}

type pricePointResponse struct {
	Price     decimal.Decimal `json:"price"`
	Provider  string          `json:"provider"`
	FetchedAt string          `json:"fetched_at"`
}

func (s *Server) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		writeError(w, http.StatusNotFound, "price history is not recorded")
		return
	}

	assetID := portfolio.NormalizeAssetID(chi.URLParam(r, "assetID"))
	if assetID == "" {
		writeError(w, http.StatusBadRequest, "asset id is required")
		return
	}

	since := time.Now().UTC().Add(-24 * time.Hour)
	if raw := strings.TrimSpace(r.URL.Query().Get("since")); raw != "" {
		parsed, err := parseTimestamp(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339 or YYYY-MM-DD")
			return
		}
		since = parsed
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 500, 5000)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	snapshots, err := s.History.ListPriceSnapshots(r.Context(), assetID, since, limit)
	if err != nil {
		s.writeServiceError(w, r, err, "failed to load price history")
		return
	}

	response := make([]pricePointResponse, 0, len(snapshots))
	for _, snapshot := range snapshots {
		response = append(response, pricePointResponse{
			Price:     snapshot.Price,
			Provider:  snapshot.Provider,
			FetchedAt: formatTime(snapshot.FetchedAt),
		})
	}
	writeJSON(w, http.StatusOK, response)
}
