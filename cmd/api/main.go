package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cittellg-bit/cryptotracker-sub001/internal/api"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/auth"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/config"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/db"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/logging"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/market"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/portfolio"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/telemetry"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/ws"
)

func main() {
	cfg, err := config.LoadForAPI()
	log := logging.Init(cfg.Logging)
	if err != nil {
		log.WithError(err).Fatal("failed to load api config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()
	if cfg.DatabaseURL == config.MemoryDatabaseURL {
		log.Warn("using in-memory store; data is lost on exit")
	}

	cache, closeCache := market.NewCacheFromConfig(ctx, cfg, log)
	defer closeCache()

	lookup := market.NewLookup(market.NewProviderFromConfig(cfg), cache, market.Options{
		Timeout:       cfg.Market.Timeout,
		RatePerMinute: cfg.Market.RatePerMinute,
		Freshness:     cfg.Market.Freshness,
		Retention:     cfg.Market.Retention,
		Logger:        log,
	})

	hub := ws.NewHub()
	service := portfolio.NewService(store, lookup, portfolio.Options{
		Notifier: hub,
		Logger:   log,
	})
	verifier := auth.NewVerifierFromConfig(cfg)
	wsServer := ws.NewServer(hub, verifier)
	wsServer.Log = log.WithField("component", "ws")
	apiServer := api.NewServer(service, lookup, store, verifier, log)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(telemetry.APIRequestMetricsMiddleware)
	router.Use(telemetry.RequestLogger(log))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", telemetry.Handler())
	router.Get("/ws", wsServer.Handler())
	apiServer.Mount(router)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		// Request contexts, and so live WebSocket sessions, end on shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	log.WithField("port", cfg.Port).Info("api server started")

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErrCh:
		log.WithError(err).Fatal("api server terminated unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
		return
	}
	log.Info("api server stopped")
}
