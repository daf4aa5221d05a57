package market

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/cittellg-bit/cryptotracker-sub001/internal/telemetry"
)

type Options struct {
	// Timeout bounds each outbound provider call.
	Timeout time.Duration
	// RatePerMinute caps outbound provider calls.
	RatePerMinute int
	// Freshness is how long a cached value is served without a live call.
	Freshness time.Duration
	// Retention is how long a value stays in the cache as a fallback.
	Retention time.Duration
	Logger    logrus.FieldLogger
}

// Lookup fronts a Provider with rate limiting, a bounded timeout and a
// last-known-value cache. Live failures degrade to cached values flagged as
// stale instead of failing the caller.
type Lookup struct {
	provider  Provider
	cache     Cache
	limiter   *rate.Limiter
	timeout   time.Duration
	freshness time.Duration
	retention time.Duration
	log       logrus.FieldLogger
	now       func() time.Time
}

func NewLookup(provider Provider, cache Cache, opts Options) *Lookup {
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.RatePerMinute <= 0 {
		opts.RatePerMinute = 30
	}
	if opts.Retention <= 0 {
		opts.Retention = 7 * 24 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	return &Lookup{
		provider:  provider,
		cache:     cache,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RatePerMinute)), 1),
		timeout:   opts.Timeout,
		freshness: opts.Freshness,
		retention: opts.Retention,
		log:       opts.Logger.WithField("component", "market_lookup"),
		now:       time.Now,
	}
}

// GetCurrentPrice returns ErrPriceUnavailable when neither the provider nor
// the cache has a price for the asset.
func (l *Lookup) GetCurrentPrice(ctx context.Context, assetID string) (PriceResult, error) {
	ids := normalizeIDs([]string{assetID})
	if len(ids) == 0 {
		return PriceResult{}, fmt.Errorf("asset id is required")
	}
	results := l.GetPrices(ctx, ids)
	result, ok := results[ids[0]]
	if !ok {
		return PriceResult{}, fmt.Errorf("%w: %s", ErrPriceUnavailable, ids[0])
	}
	return result, nil
}

// GetPrices returns a result for every asset that could be priced. Assets
// missing from the map are unavailable.
func (l *Lookup) GetPrices(ctx context.Context, assetIDs []string) map[string]PriceResult {
	ids := normalizeIDs(assetIDs)
	results := make(map[string]PriceResult, len(ids))
	cached := make(map[string]CachedPrice, len(ids))

	var pending []string
	for _, id := range ids {
		entry, ok := l.cachedPrice(ctx, id)
		if ok {
			cached[id] = entry
			if l.fresh(entry.AsOf) {
				results[id] = PriceResult{AssetID: id, Price: entry.Price, AsOf: entry.AsOf, Source: "cache"}
				telemetry.MarketLookup("price", telemetry.OutcomeCache)
				continue
			}
		}
		pending = append(pending, id)
	}
	if len(pending) == 0 {
		return results
	}

	quotes, err := l.fetchPrices(ctx, pending)
	if err != nil {
		l.log.WithError(err).WithField("assets", pending).Warn("live price lookup failed, using cached prices")
	}

	now := l.now().UTC()
	for _, quote := range quotes {
		entry := CachedPrice{Price: quote.Price, AsOf: now, Provider: quote.Provider}
		if err := l.cache.SetPrice(ctx, quote.AssetID, entry, l.retention); err != nil {
			l.log.WithError(err).WithField("asset", quote.AssetID).Warn("failed to cache price")
		}
		results[quote.AssetID] = PriceResult{AssetID: quote.AssetID, Price: quote.Price, AsOf: now, Source: quote.Provider}
		telemetry.MarketLookup("price", telemetry.OutcomeLive)
	}

	for _, id := range pending {
		if _, ok := results[id]; ok {
			continue
		}
		entry, ok := cached[id]
		if !ok {
			telemetry.MarketLookup("price", telemetry.OutcomeUnavailable)
			continue
		}
		results[id] = PriceResult{AssetID: id, Price: entry.Price, AsOf: entry.AsOf, Source: "cache", Stale: true}
		telemetry.MarketLookup("price", telemetry.OutcomeStale)
	}

	return results
}

// GetTopAssets returns the market listing, falling back to the last cached
// listing for the same limit when the provider fails.
func (l *Lookup) GetTopAssets(ctx context.Context, limit int) (TopAssetsResult, error) {
	if limit <= 0 {
		return TopAssetsResult{}, fmt.Errorf("limit must be greater than 0")
	}

	cached, hasCached := l.cachedTop(ctx, limit)
	if hasCached && l.fresh(cached.AsOf) {
		telemetry.MarketLookup("top", telemetry.OutcomeCache)
		return TopAssetsResult{Assets: cached.Assets, AsOf: cached.AsOf}, nil
	}

	assets, err := l.fetchTop(ctx, limit)
	if err == nil {
		now := l.now().UTC()
		if err := l.cache.SetTop(ctx, limit, CachedTop{Assets: assets, AsOf: now}, l.retention); err != nil {
			l.log.WithError(err).Warn("failed to cache top assets")
		}
		telemetry.MarketLookup("top", telemetry.OutcomeLive)
		return TopAssetsResult{Assets: assets, AsOf: now}, nil
	}

	if hasCached {
		l.log.WithError(err).WithField("limit", limit).Warn("live top assets lookup failed, using cached listing")
		telemetry.MarketLookup("top", telemetry.OutcomeStale)
		return TopAssetsResult{Assets: cached.Assets, AsOf: cached.AsOf, Stale: true}, nil
	}

	telemetry.MarketLookup("top", telemetry.OutcomeUnavailable)
	return TopAssetsResult{}, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
}

// The rate limiter wait counts against the call timeout, so a saturated
// limiter degrades to the cache instead of queueing callers.
func (l *Lookup) fetchPrices(ctx context.Context, ids []string) ([]Quote, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.limiter.Wait(callCtx); err != nil {
		return nil, fmt.Errorf("rate limited: %w", err)
	}
	return l.provider.FetchPrices(callCtx, ids)
}

func (l *Lookup) fetchTop(ctx context.Context, limit int) ([]Asset, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.limiter.Wait(callCtx); err != nil {
		return nil, fmt.Errorf("rate limited: %w", err)
	}
	return l.provider.FetchTopAssets(callCtx, limit)
}

func (l *Lookup) cachedPrice(ctx context.Context, id string) (CachedPrice, bool) {
	entry, ok, err := l.cache.GetPrice(ctx, id)
	if err != nil {
		l.log.WithError(err).WithField("asset", id).Warn("price cache read failed")
		return CachedPrice{}, false
	}
	return entry, ok
}

func (l *Lookup) cachedTop(ctx context.Context, limit int) (CachedTop, bool) {
	top, ok, err := l.cache.GetTop(ctx, limit)
	if err != nil {
		l.log.WithError(err).Warn("top assets cache read failed")
		return CachedTop{}, false
	}
	return top, ok
}

func (l *Lookup) fresh(asOf time.Time) bool {
	return l.freshness > 0 && l.now().Sub(asOf) < l.freshness
}
