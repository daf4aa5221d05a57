package db

import (
	"context"
	"strings"
	"time"

	"github.com/cittellg-bit/cryptotracker-sub001/internal/holdings"
)

// Store is everything the binaries need from persistence. Both DB and
// MemoryStore implement it.
type Store interface {
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close()
	InTx(ctx context.Context, fn func(Tx) error) error

	GetTransaction(ctx context.Context, owner, id string) (holdings.Transaction, error)
	ListTransactions(ctx context.Context, owner string, filter TransactionFilter) ([]holdings.Transaction, error)
	ListHoldings(ctx context.Context, owner string) ([]holdings.Snapshot, error)
	ListOwners(ctx context.Context) ([]string, error)
	ListOwnerAssetIDs(ctx context.Context, owner string) ([]string, error)
	ListHeldAssetIDs(ctx context.Context) ([]string, error)

	InsertPriceSnapshots(ctx context.Context, snapshots []PriceSnapshot) error
	ListPriceSnapshots(ctx context.Context, assetID string, since time.Time, limit int) ([]PriceSnapshot, error)
	PrunePriceSnapshots(ctx context.Context, cutoff time.Time) (int64, error)
}

var (
	_ Store = (*DB)(nil)
	_ Store = (*MemoryStore)(nil)
)

// Open connects to Postgres, or returns an empty in-process store when
// databaseURL uses the memory:// scheme.
func Open(ctx context.Context, databaseURL string) (Store, error) {
	if strings.HasPrefix(strings.TrimSpace(databaseURL), "memory://") {
		return NewMemoryStore(), nil
	}
	database, err := New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return database, nil
}
