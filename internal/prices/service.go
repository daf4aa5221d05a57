package prices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cittellg-bit/cryptotracker-sub001/internal/db"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/market"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/telemetry"
)

const defaultTopLimit = 20

type Store interface {
	ListHeldAssetIDs(ctx context.Context) ([]string, error)
	InsertPriceSnapshots(ctx context.Context, snapshots []db.PriceSnapshot) error
	PrunePriceSnapshots(ctx context.Context, cutoff time.Time) (int64, error)
}

type Lookup interface {
	GetPrices(ctx context.Context, assetIDs []string) map[string]market.PriceResult
	GetTopAssets(ctx context.Context, limit int) (market.TopAssetsResult, error)
}

type Options struct {
	// TopLimit is the size of the market listing kept warm. Zero disables it.
	TopLimit int
	// History is how long price snapshots are kept. Zero keeps them forever.
	History time.Duration
	Logger  logrus.FieldLogger
	Now     func() time.Time
}

// Refresher warms the market cache for every held asset and records the
// prices it saw. Nothing in the holdings path depends on it having run.
type Refresher struct {
	store    Store
	lookup   Lookup
	topLimit int
	history  time.Duration
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewRefresher(store Store, lookup Lookup, opts Options) *Refresher {
	if opts.TopLimit < 0 {
		opts.TopLimit = 0
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Refresher{
		store:    store,
		lookup:   lookup,
		topLimit: opts.TopLimit,
		history:  opts.History,
		log:      opts.Logger.WithField("component", "price_refresher"),
		now:      opts.Now,
	}
}

// DefaultOptions keeps the top listing the API serves by default warm.
func DefaultOptions() Options {
	return Options{TopLimit: defaultTopLimit, History: 30 * 24 * time.Hour}
}

// Refresh runs one pass. Stale cached prices are not recorded as snapshots.
// Failures of individual steps are joined; a pass that fails part way still
// does the rest of its work.
func (r *Refresher) Refresh(ctx context.Context) error {
	start := r.now()
	var errs []error

	assetIDs, err := r.store.ListHeldAssetIDs(ctx)
	if err != nil {
		telemetry.PriceRefresh("error")
		return fmt.Errorf("list held assets: %w", err)
	}

	recorded := 0
	if len(assetIDs) > 0 {
		results := r.lookup.GetPrices(ctx, assetIDs)
		snapshots := make([]db.PriceSnapshot, 0, len(results))
		for _, id := range assetIDs {
			result, ok := results[id]
			if !ok || result.Stale {
				continue
			}
			snapshots = append(snapshots, db.PriceSnapshot{
				AssetID:   id,
				Price:     result.Price,
				Provider:  result.Source,
				FetchedAt: result.AsOf.UTC(),
			})
		}
		if missing := len(assetIDs) - len(snapshots); missing > 0 {
			r.log.WithField("missing", missing).Warn("live prices unavailable for some held assets")
		}
		if err := r.store.InsertPriceSnapshots(ctx, snapshots); err != nil {
			errs = append(errs, fmt.Errorf("record price snapshots: %w", err))
		} else {
			recorded = len(snapshots)
		}
	}

	if r.topLimit > 0 {
		if _, err := r.lookup.GetTopAssets(ctx, r.topLimit); err != nil {
			errs = append(errs, fmt.Errorf("refresh top assets: %w", err))
		}
	}

	if r.history > 0 {
		pruned, err := r.store.PrunePriceSnapshots(ctx, start.Add(-r.history))
		if err != nil {
			errs = append(errs, fmt.Errorf("prune price snapshots: %w", err))
		} else if pruned > 0 {
			r.log.WithField("pruned", pruned).Debug("old price snapshots removed")
		}
	}

	err = errors.Join(errs...)
	result := "ok"
	if err != nil {
		result = "error"
	}
	telemetry.PriceRefresh(result)
	r.log.WithFields(logrus.Fields{
		"held":        len(assetIDs),
		"recorded":    recorded,
		"duration_ms": r.now().Sub(start).Milliseconds(),
		"result":      result,
	}).Info("price refresh finished")
	return err
}
