package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/cittellg-bit/cryptotracker-sub001/internal/db"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/holdings"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/portfolio"
)

type transactionResponse struct {
	ID           string          `json:"id"`
	AssetID      string          `json:"asset_id"`
	AssetSymbol  string          `json:"asset_symbol"`
	AssetName    string          `json:"asset_name"`
	AssetIconURL string          `json:"asset_icon_url"`
	Kind         string          `json:"kind"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	TotalValue   decimal.Decimal `json:"total_value"`
	OccurredAt   string          `json:"occurred_at"`
	Venue        string          `json:"venue"`
	Notes        string          `json:"notes"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
}

func toTransactionResponse(tx holdings.Transaction) transactionResponse {
	return transactionResponse{
		ID:           tx.ID,
		AssetID:      tx.AssetID,
		AssetSymbol:  tx.AssetSymbol,
		AssetName:    tx.AssetName,
		AssetIconURL: tx.AssetIconURL,
		Kind:         string(tx.Kind),
		Quantity:     tx.Quantity,
		UnitPrice:    tx.UnitPrice,
		TotalValue:   tx.TotalValue(),
		OccurredAt:   formatTime(tx.OccurredAt),
		Venue:        tx.Venue,
		Notes:        tx.Notes,
		CreatedAt:    formatTime(tx.CreatedAt),
		UpdatedAt:    formatTime(tx.UpdatedAt),
	}
}

// writeResponse carries the transaction and the holding it left behind; the
// holding is null once the position is fully sold.
type writeResponse struct {
	Transaction transactionResponse `json:"transaction"`
	Holding     *holdingResponse    `json:"holding"`
}

func newWriteResponse(tx holdings.Transaction, snapshot *holdings.Snapshot) writeResponse {
	out := writeResponse{Transaction: toTransactionResponse(tx)}
	if snapshot != nil {
		holding := toHoldingResponse(*snapshot)
		out.Holding = &holding
	}
	return out
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	query := r.URL.Query()
	filter := db.TransactionFilter{AssetID: strings.TrimSpace(query.Get("asset_id"))}
	if raw := strings.TrimSpace(query.Get("kind")); raw != "" {
		kind, err := holdings.ParseKind(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "kind must be buy or sell")
			return
		}
		filter.Kind = kind
	}

	limit, err := parsePositiveInt(query.Get("limit"), 100, 500)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	filter.Limit = limit

	if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}

	txs, err := s.Portfolio.ListTransactions(r.Context(), userID, filter)
	if err != nil {
		s.writeServiceError(w, r, err, "failed to load transactions")
		return
	}

	response := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		response = append(response, toTransactionResponse(tx))
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	tx, err := s.Portfolio.GetTransaction(r.Context(), userID, transactionIDParam(r))
	if err != nil {
		s.writeServiceError(w, r, err, "failed to load transaction")
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(tx))
}

type createTransactionRequest struct {
	AssetID      string          `json:"asset_id" validate:"required,max=128"`
	AssetSymbol  string          `json:"asset_symbol" validate:"required,max=32"`
	AssetName    string          `json:"asset_name" validate:"required,max=128"`
	AssetIconURL string          `json:"asset_icon_url" validate:"omitempty,url,max=2048"`
	Kind         string          `json:"kind" validate:"required,oneof=buy sell"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	OccurredAt   string          `json:"occurred_at" validate:"required"`
	Venue        string          `json:"venue" validate:"max=128"`
	Notes        string          `json:"notes" validate:"max=2000"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	var req createTransactionRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	occurredAt, err := parseTimestamp(req.OccurredAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "occurred_at must be RFC3339 or YYYY-MM-DD")
		return
	}

	tx, snapshot, err := s.Portfolio.CreateTransaction(r.Context(), userID, portfolio.CreateInput{
		AssetID:      req.AssetID,
		AssetSymbol:  req.AssetSymbol,
		AssetName:    req.AssetName,
		AssetIconURL: req.AssetIconURL,
		Kind:         holdings.Kind(req.Kind),
		Quantity:     req.Quantity,
		UnitPrice:    req.UnitPrice,
		OccurredAt:   occurredAt,
		Venue:        req.Venue,
		Notes:        req.Notes,
	})
	if err != nil {
		s.writeServiceError(w, r, err, "failed to create transaction")
		return
	}

	writeJSON(w, http.StatusCreated, newWriteResponse(tx, snapshot))
}

type updateTransactionRequest struct {
	Kind       *string          `json:"kind" validate:"omitempty,oneof=buy sell"`
	Quantity   *decimal.Decimal `json:"quantity"`
	UnitPrice  *decimal.Decimal `json:"unit_price"`
	OccurredAt *string          `json:"occurred_at"`
	Venue      *string          `json:"venue" validate:"omitempty,max=128"`
	Notes      *string          `json:"notes" validate:"omitempty,max=2000"`
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	var req updateTransactionRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	patch := portfolio.UpdatePatch{
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
		Venue:     req.Venue,
		Notes:     req.Notes,
	}
	if req.Kind != nil {
		kind := holdings.Kind(*req.Kind)
		patch.Kind = &kind
	}
	if req.OccurredAt != nil {
		occurredAt, err := parseTimestamp(*req.OccurredAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "occurred_at must be RFC3339 or YYYY-MM-DD")
			return
		}
		patch.OccurredAt = &occurredAt
	}

	tx, snapshot, err := s.Portfolio.UpdateTransaction(r.Context(), userID, transactionIDParam(r), patch)
	if err != nil {
		s.writeServiceError(w, r, err, "failed to update transaction")
		return
	}

	writeJSON(w, http.StatusOK, newWriteResponse(tx, snapshot))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	if err := s.Portfolio.DeleteTransaction(r.Context(), userID, transactionIDParam(r)); err != nil {
		s.writeServiceError(w, r, err, "failed to delete transaction")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func transactionIDParam(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "transactionID"))
}
