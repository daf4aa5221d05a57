package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/cittellg-bit/cryptotracker-sub001/internal/holdings"
)

type holdingResponse struct {
	AssetID           string          `json:"asset_id"`
	AssetSymbol       string          `json:"asset_symbol"`
	AssetName         string          `json:"asset_name"`
	AssetIconURL      string          `json:"asset_icon_url"`
	QuantityHeld      decimal.Decimal `json:"quantity_held"`
	TotalInvested     decimal.Decimal `json:"total_invested"`
	AverageUnitCost   decimal.Decimal `json:"average_unit_cost"`
	TransactionCount  int             `json:"transaction_count"`
	LastTransactionAt string          `json:"last_transaction_at"`
}

func toHoldingResponse(s holdings.Snapshot) holdingResponse {
	return holdingResponse{
		AssetID:           s.AssetID,
		AssetSymbol:       s.AssetSymbol,
		AssetName:         s.AssetName,
		AssetIconURL:      s.AssetIconURL,
		QuantityHeld:      s.QuantityHeld,
		TotalInvested:     s.TotalInvested,
		AverageUnitCost:   s.AverageUnitCost,
		TransactionCount:  s.TransactionCount,
		LastTransactionAt: formatTime(s.LastTransactionAt),
	}
}

func (s *Server) handleListHoldings(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	snapshots, err := s.Portfolio.ListHoldings(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err, "failed to load holdings")
		return
	}

	response := make([]holdingResponse, 0, len(snapshots))
	for _, snapshot := range snapshots {
		response = append(response, toHoldingResponse(snapshot))
	}
	writeJSON(w, http.StatusOK, response)
}

// Price fields are null for assets that could not be priced.
type valuationResponse struct {
	holdingResponse
	Priced       bool             `json:"priced"`
	Stale        bool             `json:"stale"`
	CurrentPrice *decimal.Decimal `json:"current_price"`
	CurrentValue *decimal.Decimal `json:"current_value"`
	ProfitLoss   *decimal.Decimal `json:"profit_loss"`
	PriceAsOf    string           `json:"price_as_of,omitempty"`
}

type summaryResponse struct {
	TotalValue        decimal.Decimal     `json:"total_value"`
	TotalInvested     decimal.Decimal     `json:"total_invested"`
	TotalProfitLoss   decimal.Decimal     `json:"total_profit_loss"`
	ProfitLossPercent decimal.Decimal     `json:"profit_loss_percent"`
	Stale             bool                `json:"stale"`
	Excluded          []string            `json:"excluded"`
	Assets            []valuationResponse `json:"assets"`
}

func toSummaryResponse(summary holdings.Summary) summaryResponse {
	out := summaryResponse{
		TotalValue:        summary.TotalValue,
		TotalInvested:     summary.TotalInvested,
		TotalProfitLoss:   summary.TotalProfitLoss,
		ProfitLossPercent: summary.ProfitLossPercent,
		Stale:             summary.Stale,
		Excluded:          append([]string{}, summary.Excluded...),
		Assets:            make([]valuationResponse, 0, len(summary.Assets)),
	}
	for _, asset := range summary.Assets {
		item := valuationResponse{
			holdingResponse: toHoldingResponse(asset.Snapshot),
			Priced:          asset.Priced,
			Stale:           asset.Stale,
		}
		if asset.Priced {
			price, value, pl := asset.CurrentPrice, asset.CurrentValue, asset.ProfitLoss
			item.CurrentPrice = &price
			item.CurrentValue = &value
			item.ProfitLoss = &pl
			item.PriceAsOf = formatTime(asset.PriceAsOf)
		}
		out.Assets = append(out.Assets, item)
	}
	return out
}

func (s *Server) handlePortfolioSummary(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	summary, err := s.Portfolio.Summary(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err, "failed to load portfolio")
		return
	}
	writeJSON(w, http.StatusOK, toSummaryResponse(summary))
}
