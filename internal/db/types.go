package db

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cittellg-bit/cryptotracker-sub001/internal/holdings"
)

// Tx is the set of writes that run inside one recompute unit. Every method is
// scoped by owner; a row owned by someone else is reported as not found.
type Tx interface {
	LockAsset(ctx context.Context, owner, assetID string) error
	InsertTransaction(ctx context.Context, tx holdings.Transaction) error
	UpdateTransaction(ctx context.Context, tx holdings.Transaction) error
	DeleteTransaction(ctx context.Context, owner, id string) error
	GetTransaction(ctx context.Context, owner, id string) (holdings.Transaction, error)
	ListAssetTransactions(ctx context.Context, owner, assetID string) ([]holdings.Transaction, error)
	GetHolding(ctx context.Context, owner, assetID string) (holdings.Snapshot, error)
	UpsertHolding(ctx context.Context, snapshot holdings.Snapshot) error
	DeleteHolding(ctx context.Context, owner, assetID string) error
}

type TransactionFilter struct {
	AssetID string
	Kind    holdings.Kind
	Limit   int
	Offset  int
}

type PriceSnapshot struct {
	AssetID   string
	Price     decimal.Decimal
	Provider  string
	FetchedAt time.Time
}
