package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIRequestMetricsMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(APIRequestMetricsMiddleware)
	r.Get("/api/v1/transactions/{transactionID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(apiRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/transactions/{transactionID}", "404"))

	for _, id := range []string{"a", "b", "c"} {
		res := httptest.NewRecorder()
		r.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/v1/transactions/"+id, nil))
		require.Equal(t, http.StatusNotFound, res.Code)
	}

	after := testutil.ToFloat64(apiRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/transactions/{transactionID}", "404"))
	assert.Equal(t, before+3, after)
}

func TestCountersAreExposed(t *testing.T) {
	MarketLookup("price", OutcomeStale)
	HoldingsRecompute("ok")
	WSConnectionOpened()
	WSConnectionClosed()

	res := httptest.NewRecorder()
	Handler().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, res.Code)

	body := res.Body.String()
	assert.True(t, strings.Contains(body, `portfolio_market_lookups_total{kind="price",outcome="stale"}`))
	assert.True(t, strings.Contains(body, `portfolio_holdings_recomputes_total{result="ok"}`))
	assert.True(t, strings.Contains(body, "portfolio_ws_connections_active 0"))
}
