package telemetry

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "portfolio"

var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_requests_total",
		Help:      "API requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "api_request_duration_seconds",
		Help:      "API request latency by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_connections_active",
		Help:      "Open WebSocket sessions.",
	})

	wsConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_connections_total",
		Help:      "Accepted WebSocket sessions.",
	})

	wsAuthFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_auth_failures_total",
		Help:      "WebSocket upgrades rejected for missing or invalid tokens.",
	})

	wsDroppedMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_dropped_messages_total",
		Help:      "Notifications dropped because a session send buffer was full.",
	})

	marketLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "market_lookups_total",
		Help:      "Market data lookups by kind and outcome (live, cache, stale, unavailable).",
	}, []string{"kind", "outcome"})

	holdingsRecomputesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "holdings_recomputes_total",
		Help:      "Holdings writes and recomputations by result (ok, rejected, error).",
	}, []string{"result"})

	priceRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "price_refreshes_total",
		Help:      "Scheduled price refresh runs by result.",
	}, []string{"result"})
)

// Lookup outcomes.
const (
	OutcomeLive        = "live"
	OutcomeCache       = "cache"
	OutcomeStale       = "stale"
	OutcomeUnavailable = "unavailable"
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController and websocket.Accept reach the
// underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// APIRequestMetricsMiddleware records request volume, status and latency
// labelled by chi route pattern.
func APIRequestMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		route := RequestRoute(r)
		apiRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(recorder.status)).Inc()
		apiRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// RequestRoute returns the matched chi pattern so label cardinality stays
// bounded, falling back to the raw path.
func RequestRoute(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return strings.TrimSpace(r.URL.Path)
}

func WSConnectionOpened() {
	wsConnectionsTotal.Inc()
	wsConnectionsActive.Inc()
}

func WSConnectionClosed() {
	wsConnectionsActive.Dec()
}

func WSAuthFailure() {
	wsAuthFailuresTotal.Inc()
}

func WSMessageDropped() {
	wsDroppedMessagesTotal.Inc()
}

func MarketLookup(kind, outcome string) {
	marketLookupsTotal.WithLabelValues(kind, outcome).Inc()
}

func HoldingsRecompute(result string) {
	holdingsRecomputesTotal.WithLabelValues(result).Inc()
}

func PriceRefresh(result string) {
	priceRefreshesTotal.WithLabelValues(result).Inc()
}
