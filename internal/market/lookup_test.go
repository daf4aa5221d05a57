package market

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cittellg-bit/cryptotracker-sub001/internal/logging"
)

type fakeProvider struct {
	mu       sync.Mutex
	prices   map[string]decimal.Decimal
	top      []Asset
	err      error
	delay    time.Duration
	calls    [][]string
	topCalls int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) FetchPrices(ctx context.Context, ids []string) ([]Quote, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), ids...))
	err, delay := f.err, f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	var quotes []Quote
	for _, id := range ids {
		if price, ok := f.prices[id]; ok {
			quotes = append(quotes, Quote{AssetID: id, Price: price, Provider: "fake"})
		}
	}
	return quotes, nil
}

func (f *fakeProvider) FetchTopAssets(ctx context.Context, limit int) ([]Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topCalls++
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.top) {
		return f.top[:limit], nil
	}
	return f.top, nil
}

func (f *fakeProvider) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestLookup(t *testing.T, provider Provider, freshness time.Duration) (*Lookup, *MemoryCache) {
	t.Helper()
	cache := NewMemoryCache(100)
	t.Cleanup(cache.Stop)
	lookup := NewLookup(provider, cache, Options{
		Timeout:       200 * time.Millisecond,
		RatePerMinute: 600000,
		Freshness:     freshness,
		Retention:     time.Hour,
		Logger:        logging.Discard(),
	})
	return lookup, cache
}

func price(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestLookupLivePriceIsCached(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{prices: map[string]decimal.Decimal{"bitcoin": price("50000")}}
	lookup, cache := newTestLookup(t, provider, 0)

	result, err := lookup.GetCurrentPrice(context.Background(), "Bitcoin")
	require.NoError(t, err)
	assert.Equal(t, "bitcoin", result.AssetID)
	assert.True(t, price("50000").Equal(result.Price))
	assert.False(t, result.Stale)
	assert.Equal(t, "fake", result.Source)

	entry, ok, err := cache.GetPrice(context.Background(), "bitcoin")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, price("50000").Equal(entry.Price))
}

func TestLookupFallsBackToStaleCacheOnFailure(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{prices: map[string]decimal.Decimal{
		"bitcoin":  price("50000"),
		"ethereum": price("3000"),
	}}
	lookup, _ := newTestLookup(t, provider, 0)

	results := lookup.GetPrices(context.Background(), []string{"bitcoin", "ethereum"})
	require.Len(t, results, 2)

	provider.setErr(errors.New("429 too many requests"))
	results = lookup.GetPrices(context.Background(), []string{"bitcoin", "ethereum", "solana"})
	require.Len(t, results, 2)
	assert.True(t, results["ethereum"].Stale)
	assert.Equal(t, "cache", results["ethereum"].Source)
	assert.True(t, price("3000").Equal(results["ethereum"].Price))
	_, ok := results["solana"]
	assert.False(t, ok)

	_, err := lookup.GetCurrentPrice(context.Background(), "solana")
	assert.ErrorIs(t, err, ErrPriceUnavailable)
}

func TestLookupPartialProviderResponseUsesCacheForMissing(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{prices: map[string]decimal.Decimal{
		"bitcoin":  price("50000"),
		"ethereum": price("3000"),
	}}
	lookup, _ := newTestLookup(t, provider, 0)
	lookup.GetPrices(context.Background(), []string{"bitcoin", "ethereum"})

	provider.mu.Lock()
	delete(provider.prices, "ethereum")
	provider.prices["bitcoin"] = price("51000")
	provider.mu.Unlock()

	results := lookup.GetPrices(context.Background(), []string{"bitcoin", "ethereum"})
	assert.False(t, results["bitcoin"].Stale)
	assert.True(t, price("51000").Equal(results["bitcoin"].Price))
	assert.True(t, results["ethereum"].Stale)
}

func TestLookupServesFreshCacheWithoutCallingProvider(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{prices: map[string]decimal.Decimal{"bitcoin": price("50000")}}
	lookup, _ := newTestLookup(t, provider, time.Minute)

	_, err := lookup.GetCurrentPrice(context.Background(), "bitcoin")
	require.NoError(t, err)
	result, err := lookup.GetCurrentPrice(context.Background(), "bitcoin")
	require.NoError(t, err)

	assert.Equal(t, 1, provider.callCount())
	assert.Equal(t, "cache", result.Source)
	assert.False(t, result.Stale)
}

func TestLookupTimeoutDegradesToCache(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{prices: map[string]decimal.Decimal{"bitcoin": price("50000")}}
	lookup, cache := newTestLookup(t, provider, 0)
	require.NoError(t, cache.SetPrice(context.Background(), "bitcoin", CachedPrice{
		Price: price("49000"),
		AsOf:  time.Now().Add(-time.Hour),
	}, time.Hour))

	provider.mu.Lock()
	provider.delay = 5 * time.Second
	provider.mu.Unlock()

	start := time.Now()
	result, err := lookup.GetCurrentPrice(context.Background(), "bitcoin")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, result.Stale)
	assert.True(t, price("49000").Equal(result.Price))
}

func TestLookupTopAssets(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{top: []Asset{
		{ID: "bitcoin", Symbol: "BTC", Price: price("50000")},
		{ID: "ethereum", Symbol: "ETH", Price: price("3000")},
	}}
	lookup, _ := newTestLookup(t, provider, 0)

	live, err := lookup.GetTopAssets(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, live.Stale)
	require.Len(t, live.Assets, 2)

	provider.setErr(errors.New("boom"))
	cached, err := lookup.GetTopAssets(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, cached.Stale)
	assert.Equal(t, live.Assets, cached.Assets)

	_, err = lookup.GetTopAssets(context.Background(), 5)
	assert.ErrorIs(t, err, ErrPriceUnavailable)

	_, err = lookup.GetTopAssets(context.Background(), 0)
	assert.Error(t, err)
}

func TestLookupRateLimitedFallsBackWithinTimeout(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{err: errors.New("provider down")}
	cache := NewMemoryCache(100)
	t.Cleanup(cache.Stop)
	require.NoError(t, cache.SetPrice(context.Background(), "ethereum",
		CachedPrice{Price: price("3000"), AsOf: time.Now().Add(-time.Hour), Provider: "fake"}, time.Hour))

	lookup := NewLookup(provider, cache, Options{
		Timeout:       100 * time.Millisecond,
		RatePerMinute: 6,
		Retention:     time.Hour,
		Logger:        logging.Discard(),
	})

	first := lookup.GetPrices(context.Background(), []string{"ethereum"})
	require.True(t, first["ethereum"].Stale)
	require.Equal(t, 1, provider.callCount())

	start := time.Now()
	second := lookup.GetPrices(context.Background(), []string{"ethereum"})
	elapsed := time.Since(start)

	assert.Less(t, elapsed, time.Second, "a spent limiter must not hold the caller past the timeout")
	require.Contains(t, second, "ethereum")
	assert.True(t, second["ethereum"].Stale)
	assert.True(t, price("3000").Equal(second["ethereum"].Price))
	assert.Equal(t, 1, provider.callCount(), "the rate-limited call never reaches the provider")

	start = time.Now()
	_, err := lookup.GetTopAssets(context.Background(), 10)
	assert.ErrorIs(t, err, ErrPriceUnavailable)
	assert.Less(t, time.Since(start), time.Second)
}
