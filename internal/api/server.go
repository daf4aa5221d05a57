package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/cittellg-bit/cryptotracker-sub001/internal/auth"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/db"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/holdings"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/market"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/portfolio"
)

type Portfolio interface {
	CreateTransaction(ctx context.Context, owner string, input portfolio.CreateInput) (holdings.Transaction, *holdings.Snapshot, error)
	UpdateTransaction(ctx context.Context, owner, id string, patch portfolio.UpdatePatch) (holdings.Transaction, *holdings.Snapshot, error)
	DeleteTransaction(ctx context.Context, owner, id string) error
	GetTransaction(ctx context.Context, owner, id string) (holdings.Transaction, error)
	ListTransactions(ctx context.Context, owner string, filter db.TransactionFilter) ([]holdings.Transaction, error)
	ListHoldings(ctx context.Context, owner string) ([]holdings.Snapshot, error)
	Summary(ctx context.Context, owner string) (holdings.Summary, error)
}

type Market interface {
	GetCurrentPrice(ctx context.Context, assetID string) (market.PriceResult, error)
	GetTopAssets(ctx context.Context, limit int) (market.TopAssetsResult, error)
}

type PriceHistory interface {
	ListPriceSnapshots(ctx context.Context, assetID string, since time.Time, limit int) ([]db.PriceSnapshot, error)
}

type Server struct {
	Portfolio Portfolio
	Market    Market
	// History is optional; the history route answers 404 without it.
	History  PriceHistory
	Verifier auth.Verifier

	log      logrus.FieldLogger
	validate *validator.Validate
}

type contextKey string

const userIDContextKey contextKey = "userID"

func NewServer(service Portfolio, lookup Market, history PriceHistory, verifier auth.Verifier, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		Portfolio: service,
		Market:    lookup,
		History:   history,
		Verifier:  verifier,
		log:       log.WithField("component", "api"),
		validate:  newValidator(),
	}
}

func (s *Server) Mount(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/transactions", s.handleListTransactions)
		r.Post("/transactions", s.handleCreateTransaction)
		r.Get("/transactions/{transactionID}", s.handleGetTransaction)
		r.Patch("/transactions/{transactionID}", s.handleUpdateTransaction)
		r.Delete("/transactions/{transactionID}", s.handleDeleteTransaction)

		r.Get("/holdings", s.handleListHoldings)
		r.Get("/portfolio", s.handlePortfolioSummary)

		r.Get("/market/top", s.handleTopAssets)
		r.Get("/market/prices/{assetID}", s.handleCurrentPrice)
		r.Get("/market/prices/{assetID}/history", s.handlePriceHistory)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing auth token")
			return
		}

		claims, err := s.Verifier.Verify(r.Context(), token)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) {
				s.log.WithError(err).Warn("token verification failed")
			}
			writeError(w, http.StatusUnauthorized, "invalid auth token")
			return
		}
		if strings.TrimSpace(claims.Subject) == "" {
			writeError(w, http.StatusUnauthorized, "invalid auth token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDContextKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userIDContextKey).(string)
	return strings.TrimSpace(userID)
}

func extractToken(r *http.Request) string {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}

type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, apiError{Error: message})
}

// writeServiceError maps domain errors to status codes. Anything unexpected
// is logged and reported with the generic fallback message.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var oversold *holdings.OversoldError
	switch {
	case errors.As(err, &oversold):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, holdings.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, holdings.ErrNotFound):
		writeError(w, http.StatusNotFound, "transaction not found")
	case errors.Is(err, market.ErrPriceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "price unavailable")
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		s.log.WithError(err).WithField("path", r.URL.Path).Error(fallback)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func decodeJSONBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessage turns the first failed rule into a client message.
func validationMessage(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return "invalid request body"
	}
	fe := errs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "oneof":
		return fe.Field() + " must be one of " + fe.Param()
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	case "url":
		return fe.Field() + " must be a URL"
	default:
		return fe.Field() + " is invalid"
	}
}

func parseTimestamp(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, errors.New("empty timestamp")
	}

	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return parsed.UTC(), nil
	}
	if parsed, err := time.Parse("2006-01-02", trimmed); err == nil {
		return parsed.UTC(), nil
	}
	return time.Time{}, errors.New("invalid timestamp")
}

func parsePositiveInt(raw string, fallback, max int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, errors.New("must be a positive integer")
	}
	if parsed > max {
		parsed = max
	}
	return parsed, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
