package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cittellg-bit/cryptotracker-sub001/internal/holdings"
)

// MemoryStore keeps transactions, holdings and price snapshots in process.
// InTx works on a copy of the state and swaps it in on success, so a failed
// unit leaves nothing behind.
type MemoryStore struct {
	mu           sync.RWMutex
	transactions map[string]holdings.Transaction
	holdings     map[holdings.Key]holdings.Snapshot
	prices       []PriceSnapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions: make(map[string]holdings.Transaction),
		holdings:     make(map[holdings.Key]holdings.Snapshot),
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() {}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) InTx(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	staged := &memoryTx{
		transactions: make(map[string]holdings.Transaction, len(s.transactions)),
		holdings:     make(map[holdings.Key]holdings.Snapshot, len(s.holdings)),
	}
	for id, tx := range s.transactions {
		staged.transactions[id] = tx
	}
	for key, snapshot := range s.holdings {
		staged.holdings[key] = snapshot
	}

	if err := fn(staged); err != nil {
		return err
	}
	s.transactions = staged.transactions
	s.holdings = staged.holdings
	return nil
}

func (s *MemoryStore) GetTransaction(_ context.Context, owner, id string) (holdings.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.transactions[id]
	if !ok || tx.Owner != owner {
		return holdings.Transaction{}, holdings.ErrNotFound
	}
	return tx, nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, owner string, filter TransactionFilter) ([]holdings.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]holdings.Transaction, 0)
	for _, tx := range s.transactions {
		if tx.Owner != owner {
			continue
		}
		if filter.AssetID != "" && tx.AssetID != filter.AssetID {
			continue
		}
		if filter.Kind != "" && tx.Kind != filter.Kind {
			continue
		}
		out = append(out, tx)
	}
	holdings.SortChronological(out)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	start := filter.Offset
	if start > len(out) {
		return []holdings.Transaction{}, nil
	}
	end := len(out)
	if start+limit < end {
		end = start + limit
	}
	return out[start:end], nil
}

func (s *MemoryStore) ListHoldings(_ context.Context, owner string) ([]holdings.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []holdings.Snapshot
	for key, snapshot := range s.holdings {
		if key.Owner == owner {
			out = append(out, snapshot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out, nil
}

func (s *MemoryStore) ListOwners(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, tx := range s.transactions {
		seen[tx.Owner] = struct{}{}
	}
	for key := range s.holdings {
		seen[key.Owner] = struct{}{}
	}
	return sortedKeys(seen), nil
}

func (s *MemoryStore) ListOwnerAssetIDs(_ context.Context, owner string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, tx := range s.transactions {
		if tx.Owner == owner {
			seen[tx.AssetID] = struct{}{}
		}
	}
	for key := range s.holdings {
		if key.Owner == owner {
			seen[key.AssetID] = struct{}{}
		}
	}
	return sortedKeys(seen), nil
}

func (s *MemoryStore) ListHeldAssetIDs(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for key := range s.holdings {
		seen[key.AssetID] = struct{}{}
	}
	return sortedKeys(seen), nil
}

func (s *MemoryStore) InsertPriceSnapshots(_ context.Context, snapshots []PriceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices = append(s.prices, snapshots...)
	return nil
}

func (s *MemoryStore) ListPriceSnapshots(_ context.Context, assetID string, since time.Time, limit int) ([]PriceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 500
	}
	var out []PriceSnapshot
	for _, snapshot := range s.prices {
		if snapshot.AssetID == assetID && !snapshot.FetchedAt.Before(since) {
			out = append(out, snapshot)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FetchedAt.After(out[j].FetchedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) PrunePriceSnapshots(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.prices[:0]
	var pruned int64
	for _, snapshot := range s.prices {
		if snapshot.FetchedAt.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, snapshot)
	}
	s.prices = kept
	return pruned, nil
}

type memoryTx struct {
	transactions map[string]holdings.Transaction
	holdings     map[holdings.Key]holdings.Snapshot
}

// LockAsset is a no-op: InTx already holds the store lock.
func (t *memoryTx) LockAsset(context.Context, string, string) error { return nil }

func (t *memoryTx) InsertTransaction(_ context.Context, tx holdings.Transaction) error {
	if _, ok := t.transactions[tx.ID]; ok {
		return fmt.Errorf("transaction %s already exists", tx.ID)
	}
	t.transactions[tx.ID] = tx
	return nil
}

func (t *memoryTx) UpdateTransaction(_ context.Context, tx holdings.Transaction) error {
	existing, ok := t.transactions[tx.ID]
	if !ok || existing.Owner != tx.Owner {
		return holdings.ErrNotFound
	}
	existing.Kind = tx.Kind
	existing.Quantity = tx.Quantity
	existing.UnitPrice = tx.UnitPrice
	existing.OccurredAt = tx.OccurredAt
	existing.Venue = tx.Venue
	existing.Notes = tx.Notes
	existing.UpdatedAt = tx.UpdatedAt
	t.transactions[tx.ID] = existing
	return nil
}

func (t *memoryTx) DeleteTransaction(_ context.Context, owner, id string) error {
	existing, ok := t.transactions[id]
	if !ok || existing.Owner != owner {
		return holdings.ErrNotFound
	}
	delete(t.transactions, id)
	return nil
}

func (t *memoryTx) GetTransaction(_ context.Context, owner, id string) (holdings.Transaction, error) {
	tx, ok := t.transactions[id]
	if !ok || tx.Owner != owner {
		return holdings.Transaction{}, holdings.ErrNotFound
	}
	return tx, nil
}

func (t *memoryTx) ListAssetTransactions(_ context.Context, owner, assetID string) ([]holdings.Transaction, error) {
	var out []holdings.Transaction
	for _, tx := range t.transactions {
		if tx.Owner == owner && tx.AssetID == assetID {
			out = append(out, tx)
		}
	}
	holdings.SortChronological(out)
	return out, nil
}

func (t *memoryTx) GetHolding(_ context.Context, owner, assetID string) (holdings.Snapshot, error) {
	snapshot, ok := t.holdings[holdings.Key{Owner: owner, AssetID: assetID}]
	if !ok {
		return holdings.Snapshot{}, holdings.ErrNotFound
	}
	return snapshot, nil
}

func (t *memoryTx) UpsertHolding(_ context.Context, snapshot holdings.Snapshot) error {
	t.holdings[snapshot.Key()] = snapshot
	return nil
}

func (t *memoryTx) DeleteHolding(_ context.Context, owner, assetID string) error {
	delete(t.holdings, holdings.Key{Owner: owner, AssetID: assetID})
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
