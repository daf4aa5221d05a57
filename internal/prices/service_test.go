package prices

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cittellg-bit/cryptotracker-sub001/internal/db"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/logging"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/market"
)

type mockStore struct {
	held    []string
	heldErr error

	insertErr     error
	insertCalls   int
	inserted      []db.PriceSnapshot
	pruneErr      error
	pruneCutoffs  []time.Time
	prunedPerCall int64
}

func (m *mockStore) ListHeldAssetIDs(ctx context.Context) ([]string, error) {
	if m.heldErr != nil {
		return nil, m.heldErr
	}
	return append([]string(nil), m.held...), nil
}

func (m *mockStore) InsertPriceSnapshots(ctx context.Context, snapshots []db.PriceSnapshot) error {
	m.insertCalls++
	m.inserted = append([]db.PriceSnapshot(nil), snapshots...)
	return m.insertErr
}

func (m *mockStore) PrunePriceSnapshots(ctx context.Context, cutoff time.Time) (int64, error) {
	m.pruneCutoffs = append(m.pruneCutoffs, cutoff)
	if m.pruneErr != nil {
		return 0, m.pruneErr
	}
	return m.prunedPerCall, nil
}

type mockLookup struct {
	results  map[string]market.PriceResult
	topErr   error
	calls    [][]string
	topCalls []int
}

func (m *mockLookup) GetPrices(ctx context.Context, assetIDs []string) map[string]market.PriceResult {
	m.calls = append(m.calls, append([]string(nil), assetIDs...))
	out := make(map[string]market.PriceResult)
	for _, id := range assetIDs {
		if r, ok := m.results[id]; ok {
			out[id] = r
		}
	}
	return out
}

func (m *mockLookup) GetTopAssets(ctx context.Context, limit int) (market.TopAssetsResult, error) {
	m.topCalls = append(m.topCalls, limit)
	if m.topErr != nil {
		return market.TopAssetsResult{}, m.topErr
	}
	return market.TopAssetsResult{}, nil
}

var refreshTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRefresher(store Store, lookup Lookup, opts Options) *Refresher {
	opts.Logger = logging.Discard()
	opts.Now = func() time.Time { return refreshTime }
	return NewRefresher(store, lookup, opts)
}

func livePrice(id, price string) market.PriceResult {
	return market.PriceResult{
		AssetID: id,
		Price:   decimal.RequireFromString(price),
		AsOf:    refreshTime,
		Source:  "coingecko",
	}
}

func TestRefreshRecordsLivePricesForHeldAssets(t *testing.T) {
	t.Parallel()

	store := &mockStore{held: []string{"bitcoin", "ethereum"}}
	lookup := &mockLookup{results: map[string]market.PriceResult{
		"bitcoin":  livePrice("bitcoin", "50000"),
		"ethereum": livePrice("ethereum", "3000"),
	}}

	r := newTestRefresher(store, lookup, Options{TopLimit: 20})
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if len(lookup.calls) != 1 {
		t.Fatalf("expected one price lookup, got %d", len(lookup.calls))
	}
	got := append([]string(nil), lookup.calls[0]...)
	sort.Strings(got)
	if strings.Join(got, ",") != "bitcoin,ethereum" {
		t.Fatalf("unexpected lookup ids: %v", got)
	}
	if store.insertCalls != 1 || len(store.inserted) != 2 {
		t.Fatalf("expected 2 snapshots in one write, got calls=%d rows=%d", store.insertCalls, len(store.inserted))
	}
	for _, snap := range store.inserted {
		if snap.Provider != "coingecko" || !snap.FetchedAt.Equal(refreshTime) {
			t.Fatalf("unexpected snapshot: %+v", snap)
		}
	}
	if len(lookup.topCalls) != 1 || lookup.topCalls[0] != 20 {
		t.Fatalf("expected top assets warmed with limit 20, got %v", lookup.topCalls)
	}
	if len(store.pruneCutoffs) != 0 {
		t.Fatalf("expected no pruning without a history window, got %v", store.pruneCutoffs)
	}
}

func TestRefreshSkipsStaleAndMissingPrices(t *testing.T) {
	t.Parallel()

	stale := livePrice("ethereum", "2900")
	stale.Stale = true
	store := &mockStore{held: []string{"bitcoin", "ethereum", "solana"}}
	lookup := &mockLookup{results: map[string]market.PriceResult{
		"bitcoin":  livePrice("bitcoin", "50000"),
		"ethereum": stale,
	}}

	r := newTestRefresher(store, lookup, Options{})
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(store.inserted) != 1 || store.inserted[0].AssetID != "bitcoin" {
		t.Fatalf("expected only the live bitcoin price recorded, got %+v", store.inserted)
	}
	if !store.inserted[0].Price.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("unexpected price: %s", store.inserted[0].Price)
	}
	if len(lookup.topCalls) != 0 {
		t.Fatalf("expected top listing disabled, got %v", lookup.topCalls)
	}
}

func TestRefreshWithNothingHeldOnlyWarmsTopAssets(t *testing.T) {
	t.Parallel()

	store := &mockStore{}
	lookup := &mockLookup{}

	r := newTestRefresher(store, lookup, Options{TopLimit: 10})
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(lookup.calls) != 0 || store.insertCalls != 0 {
		t.Fatalf("expected no price lookups or writes, got lookups=%d writes=%d", len(lookup.calls), store.insertCalls)
	}
	if len(lookup.topCalls) != 1 {
		t.Fatalf("expected top assets refresh, got %v", lookup.topCalls)
	}
}

func TestRefreshListFailureStopsEarly(t *testing.T) {
	t.Parallel()

	store := &mockStore{heldErr: errors.New("db down")}
	lookup := &mockLookup{}

	r := newTestRefresher(store, lookup, Options{TopLimit: 10})
	err := r.Refresh(context.Background())
	if err == nil || !strings.Contains(err.Error(), "db down") {
		t.Fatalf("expected list error, got %v", err)
	}
	if len(lookup.topCalls) != 0 {
		t.Fatal("expected no further work after list failure")
	}
}

func TestRefreshJoinsStepFailures(t *testing.T) {
	t.Parallel()

	store := &mockStore{
		held:      []string{"bitcoin"},
		insertErr: errors.New("insert failed"),
		pruneErr:  errors.New("prune failed"),
	}
	lookup := &mockLookup{
		results: map[string]market.PriceResult{"bitcoin": livePrice("bitcoin", "50000")},
		topErr:  market.ErrPriceUnavailable,
	}

	r := newTestRefresher(store, lookup, Options{TopLimit: 5, History: 24 * time.Hour})
	err := r.Refresh(context.Background())
	if err == nil {
		t.Fatal("expected joined error, got nil")
	}
	for _, want := range []string{"insert failed", "prune failed", "top assets"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
	if !errors.Is(err, market.ErrPriceUnavailable) {
		t.Fatalf("expected joined error to wrap ErrPriceUnavailable, got %v", err)
	}
}

func TestRefreshPrunesOutsideHistoryWindow(t *testing.T) {
	t.Parallel()

	store := &mockStore{prunedPerCall: 3}
	r := newTestRefresher(store, &mockLookup{}, Options{History: 48 * time.Hour})
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(store.pruneCutoffs) != 1 || !store.pruneCutoffs[0].Equal(refreshTime.Add(-48*time.Hour)) {
		t.Fatalf("unexpected prune cutoffs: %v", store.pruneCutoffs)
	}
}

func TestRefreshAgainstMemoryStore(t *testing.T) {
	t.Parallel()

	store := db.NewMemoryStore()
	r := newTestRefresher(store, &mockLookup{}, DefaultOptions())
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestSchedulerRunsImmediatelyAndStopsOnCancel(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler("@every 1h", func(context.Context) error {
		if runs.Add(1) == 1 {
			cancel()
		}
		return errors.New("logged, not fatal")
	}, logging.Discard())

	err := s.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if runs.Load() != 1 {
		t.Fatalf("expected exactly one immediate run, got %d", runs.Load())
	}
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	s := NewScheduler("not a schedule", func(context.Context) error {
		runs.Add(1)
		return nil
	}, logging.Discard())

	if err := s.Run(context.Background()); err == nil {
		t.Fatal("expected schedule parse error")
	}
	if runs.Load() != 0 {
		t.Fatalf("expected no runs with a bad schedule, got %d", runs.Load())
	}
}
