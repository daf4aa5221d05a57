package portfolio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/cittellg-bit/cryptotracker-sub001/internal/db"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/holdings"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/market"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/telemetry"
)

// Store is implemented by db.DB and db.MemoryStore.
type Store interface {
	InTx(ctx context.Context, fn func(db.Tx) error) error
	GetTransaction(ctx context.Context, owner, id string) (holdings.Transaction, error)
	ListTransactions(ctx context.Context, owner string, filter db.TransactionFilter) ([]holdings.Transaction, error)
	ListHoldings(ctx context.Context, owner string) ([]holdings.Snapshot, error)
	ListOwners(ctx context.Context) ([]string, error)
	ListOwnerAssetIDs(ctx context.Context, owner string) ([]string, error)
}

type PriceLookup interface {
	GetPrices(ctx context.Context, assetIDs []string) map[string]market.PriceResult
}

// Notifier is told about every committed holdings change.
type Notifier interface {
	NotifyHoldingsChanged(owner, assetID string)
}

type Options struct {
	Notifier Notifier
	Logger   logrus.FieldLogger
	Now      func() time.Time
	NewID    func() string
}

type Service struct {
	store    Store
	lookup   PriceLookup
	notifier Notifier
	log      logrus.FieldLogger
	now      func() time.Time
	newID    func() string
}

type CreateInput struct {
	AssetID      string
	AssetSymbol  string
	AssetName    string
	AssetIconURL string
	Kind         holdings.Kind
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	OccurredAt   time.Time
	Venue        string
	Notes        string
}

// UpdatePatch carries the fields to change. Nil fields are left alone; the
// asset of a transaction cannot be changed.
type UpdatePatch struct {
	Kind       *holdings.Kind
	Quantity   *decimal.Decimal
	UnitPrice  *decimal.Decimal
	OccurredAt *time.Time
	Venue      *string
	Notes      *string
}

func NewService(store Store, lookup PriceLookup, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Service{
		store:    store,
		lookup:   lookup,
		notifier: opts.Notifier,
		log:      opts.Logger.WithField("component", "portfolio"),
		now:      opts.Now,
		newID:    opts.NewID,
	}
}

// NormalizeAssetID is the canonical form asset ids are stored and priced in.
func NormalizeAssetID(assetID string) string {
	return strings.ToLower(strings.TrimSpace(assetID))
}

func (s *Service) CreateTransaction(ctx context.Context, owner string, input CreateInput) (holdings.Transaction, *holdings.Snapshot, error) {
	now := s.now().UTC()
	tx := holdings.Transaction{
		ID:           s.newID(),
		Owner:        owner,
		AssetID:      NormalizeAssetID(input.AssetID),
		AssetSymbol:  strings.ToUpper(strings.TrimSpace(input.AssetSymbol)),
		AssetName:    strings.TrimSpace(input.AssetName),
		AssetIconURL: strings.TrimSpace(input.AssetIconURL),
		Kind:         input.Kind,
		Quantity:     input.Quantity,
		UnitPrice:    input.UnitPrice,
		OccurredAt:   input.OccurredAt.UTC(),
		Venue:        strings.TrimSpace(input.Venue),
		Notes:        input.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.Validate(); err != nil {
		return holdings.Transaction{}, nil, err
	}

	var snapshot *holdings.Snapshot
	err := s.store.InTx(ctx, func(dbtx db.Tx) error {
		if err := dbtx.LockAsset(ctx, owner, tx.AssetID); err != nil {
			return fmt.Errorf("lock asset: %w", err)
		}
		if err := dbtx.InsertTransaction(ctx, tx); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		var err error
		snapshot, err = recompute(ctx, dbtx, owner, tx.AssetID)
		return err
	})
	if err != nil {
		s.recordFailure(err, owner, tx.AssetID)
		return holdings.Transaction{}, nil, err
	}

	s.committed(owner, tx.AssetID)
	s.log.WithFields(logrus.Fields{
		"owner":          owner,
		"asset_id":       tx.AssetID,
		"transaction_id": tx.ID,
		"kind":           tx.Kind,
	}).Info("transaction created")
	return tx, snapshot, nil
}

func (s *Service) UpdateTransaction(ctx context.Context, owner, id string, patch UpdatePatch) (holdings.Transaction, *holdings.Snapshot, error) {
	var (
		updated  holdings.Transaction
		snapshot *holdings.Snapshot
	)
	err := s.store.InTx(ctx, func(dbtx db.Tx) error {
		existing, err := dbtx.GetTransaction(ctx, owner, id)
		if err != nil {
			return err
		}
		if err := dbtx.LockAsset(ctx, owner, existing.AssetID); err != nil {
			return fmt.Errorf("lock asset: %w", err)
		}

		updated = applyPatch(existing, patch)
		updated.UpdatedAt = s.now().UTC()
		if err := updated.Validate(); err != nil {
			return err
		}
		if err := dbtx.UpdateTransaction(ctx, updated); err != nil {
			return err
		}
		snapshot, err = recompute(ctx, dbtx, owner, updated.AssetID)
		return err
	})
	if err != nil {
		s.recordFailure(err, owner, updated.AssetID)
		return holdings.Transaction{}, nil, err
	}

	s.committed(owner, updated.AssetID)
	s.log.WithFields(logrus.Fields{
		"owner":          owner,
		"asset_id":       updated.AssetID,
		"transaction_id": id,
	}).Info("transaction updated")
	return updated, snapshot, nil
}

func (s *Service) DeleteTransaction(ctx context.Context, owner, id string) error {
	var assetID string
	err := s.store.InTx(ctx, func(dbtx db.Tx) error {
		existing, err := dbtx.GetTransaction(ctx, owner, id)
		if err != nil {
			return err
		}
		assetID = existing.AssetID
		if err := dbtx.LockAsset(ctx, owner, assetID); err != nil {
			return fmt.Errorf("lock asset: %w", err)
		}
		if err := dbtx.DeleteTransaction(ctx, owner, id); err != nil {
			return err
		}
		_, err = recompute(ctx, dbtx, owner, assetID)
		return err
	})
	if err != nil {
		s.recordFailure(err, owner, assetID)
		return err
	}

	s.committed(owner, assetID)
	s.log.WithFields(logrus.Fields{
		"owner":          owner,
		"asset_id":       assetID,
		"transaction_id": id,
	}).Info("transaction deleted")
	return nil
}

func (s *Service) GetTransaction(ctx context.Context, owner, id string) (holdings.Transaction, error) {
	return s.store.GetTransaction(ctx, owner, id)
}

func (s *Service) ListTransactions(ctx context.Context, owner string, filter db.TransactionFilter) ([]holdings.Transaction, error) {
	filter.AssetID = NormalizeAssetID(filter.AssetID)
	return s.store.ListTransactions(ctx, owner, filter)
}

func (s *Service) ListHoldings(ctx context.Context, owner string) ([]holdings.Snapshot, error) {
	return s.store.ListHoldings(ctx, owner)
}

// Summary values the owner's holdings at current prices. Assets the lookup
// cannot price are left out of the value totals and flagged.
func (s *Service) Summary(ctx context.Context, owner string) (holdings.Summary, error) {
	snapshots, err := s.store.ListHoldings(ctx, owner)
	if err != nil {
		return holdings.Summary{}, err
	}

	quotes := make(map[string]holdings.Quote, len(snapshots))
	if s.lookup != nil && len(snapshots) > 0 {
		ids := make([]string, 0, len(snapshots))
		for _, snapshot := range snapshots {
			ids = append(ids, snapshot.AssetID)
		}
		for id, result := range s.lookup.GetPrices(ctx, ids) {
			quotes[id] = holdings.Quote{Price: result.Price, AsOf: result.AsOf, Stale: result.Stale}
		}
	}

	summary := holdings.Summarize(snapshots, quotes)
	if len(summary.Excluded) > 0 {
		s.log.WithFields(logrus.Fields{
			"owner":    owner,
			"excluded": summary.Excluded,
		}).Warn("portfolio summary is missing prices")
	}
	return summary, nil
}

// RecomputeAsset rebuilds one stored snapshot from its transactions.
func (s *Service) RecomputeAsset(ctx context.Context, owner, assetID string) (*holdings.Snapshot, error) {
	assetID = NormalizeAssetID(assetID)
	var snapshot *holdings.Snapshot
	err := s.store.InTx(ctx, func(dbtx db.Tx) error {
		if err := dbtx.LockAsset(ctx, owner, assetID); err != nil {
			return fmt.Errorf("lock asset: %w", err)
		}
		var err error
		snapshot, err = recompute(ctx, dbtx, owner, assetID)
		return err
	})
	if err != nil {
		s.recordFailure(err, owner, assetID)
		return nil, err
	}
	s.committed(owner, assetID)
	return snapshot, nil
}

// Rebuild recomputes every asset the owner has transactions or a stored
// snapshot for and returns how many assets were processed.
func (s *Service) Rebuild(ctx context.Context, owner string) (int, error) {
	assetIDs, err := s.store.ListOwnerAssetIDs(ctx, owner)
	if err != nil {
		return 0, err
	}

	var errs []error
	done := 0
	for _, assetID := range assetIDs {
		if _, err := s.RecomputeAsset(ctx, owner, assetID); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", assetID, err))
			continue
		}
		done++
	}
	return done, errors.Join(errs...)
}

func (s *Service) ListOwners(ctx context.Context) ([]string, error) {
	return s.store.ListOwners(ctx)
}

func (s *Service) committed(owner, assetID string) {
	telemetry.HoldingsRecompute("ok")
	if s.notifier != nil {
		s.notifier.NotifyHoldingsChanged(owner, assetID)
	}
}

func (s *Service) recordFailure(err error, owner, assetID string) {
	switch {
	case errors.Is(err, holdings.ErrValidation), errors.Is(err, holdings.ErrNotFound):
		telemetry.HoldingsRecompute("rejected")
	default:
		telemetry.HoldingsRecompute("error")
		s.log.WithError(err).WithFields(logrus.Fields{
			"owner":    owner,
			"asset_id": assetID,
		}).Error("holdings write failed")
	}
}

// recompute replays every transaction of the key and stores the result. It
// must run inside the transaction that changed the key.
func recompute(ctx context.Context, dbtx db.Tx, owner, assetID string) (*holdings.Snapshot, error) {
	txs, err := dbtx.ListAssetTransactions(ctx, owner, assetID)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	snapshot, err := holdings.Aggregate(txs)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		if err := dbtx.DeleteHolding(ctx, owner, assetID); err != nil {
			return nil, fmt.Errorf("delete holding: %w", err)
		}
		return nil, nil
	}
	if err := dbtx.UpsertHolding(ctx, *snapshot); err != nil {
		return nil, fmt.Errorf("upsert holding: %w", err)
	}
	return snapshot, nil
}

func applyPatch(tx holdings.Transaction, patch UpdatePatch) holdings.Transaction {
	if patch.Kind != nil {
		tx.Kind = *patch.Kind
	}
	if patch.Quantity != nil {
		tx.Quantity = *patch.Quantity
	}
	if patch.UnitPrice != nil {
		tx.UnitPrice = *patch.UnitPrice
	}
	if patch.OccurredAt != nil {
		tx.OccurredAt = patch.OccurredAt.UTC()
	}
	if patch.Venue != nil {
		tx.Venue = strings.TrimSpace(*patch.Venue)
	}
	if patch.Notes != nil {
		tx.Notes = *patch.Notes
	}
	return tx
}
