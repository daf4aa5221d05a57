package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/cittellg-bit/cryptotracker-sub001/internal/config"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/db"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/logging"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/market"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/prices"
)

func main() {
	cfg, err := config.LoadForWorker()
	log := logging.Init(cfg.Logging)
	if err != nil {
		log.WithError(err).Fatal("failed to load worker config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	cache, closeCache := market.NewCacheFromConfig(ctx, cfg, log)
	defer closeCache()

	lookup := market.NewLookup(market.NewProviderFromConfig(cfg), cache, market.Options{
		Timeout:       cfg.Market.Timeout,
		RatePerMinute: cfg.Market.RatePerMinute,
		// The worker always asks the provider; the cache is only a fallback.
		Freshness: 0,
		Retention: cfg.Market.Retention,
		Logger:    log,
	})

	opts := prices.DefaultOptions()
	opts.Logger = log
	refresher := prices.NewRefresher(store, lookup, opts)
	scheduler := prices.NewScheduler(cfg.CronSchedule, refresher.Refresh, log)

	log.WithField("schedule", cfg.CronSchedule).Info("price worker started")
	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("worker stopped")
	}
	log.Info("price worker stopped")
}
