package portfolio

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/cittellg-bit/cryptotracker-sub001/internal/db"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/holdings"
)

// Drift describes a stored snapshot that no longer matches its transactions.
// Stored or Expected is nil when the corresponding row is absent.
type Drift struct {
	Owner    string
	AssetID  string
	Stored   *holdings.Snapshot
	Expected *holdings.Snapshot
	// Err is set when the transactions themselves no longer aggregate.
	Err      error
	Repaired bool
	// Cleared reports that a repair removed the stored snapshot of a key
	// whose transactions no longer aggregate. The drift stays unrepaired.
	Cleared  bool
}

func (d Drift) String() string {
	switch {
	case d.Err != nil && d.Cleared:
		return fmt.Sprintf("%s/%s: transactions do not aggregate, stored holding removed: %v", d.Owner, d.AssetID, d.Err)
	case d.Err != nil:
		return fmt.Sprintf("%s/%s: transactions do not aggregate: %v", d.Owner, d.AssetID, d.Err)
	case d.Stored == nil:
		return fmt.Sprintf("%s/%s: holding missing, expected quantity %s", d.Owner, d.AssetID, d.Expected.QuantityHeld)
	case d.Expected == nil:
		return fmt.Sprintf("%s/%s: holding %s should not exist", d.Owner, d.AssetID, d.Stored.QuantityHeld)
	default:
		return fmt.Sprintf("%s/%s: stored quantity %s invested %s, expected quantity %s invested %s",
			d.Owner, d.AssetID,
			d.Stored.QuantityHeld, d.Stored.TotalInvested,
			d.Expected.QuantityHeld, d.Expected.TotalInvested)
	}
}

// Verify compares every stored snapshot of the owner against a fresh
// aggregation. With repair set, drifting keys that still aggregate are
// rewritten in the same transaction that detected them, and keys whose
// transactions no longer aggregate lose their stored snapshot.
func (s *Service) Verify(ctx context.Context, owner string, repair bool) ([]Drift, error) {
	assetIDs, err := s.store.ListOwnerAssetIDs(ctx, owner)
	if err != nil {
		return nil, err
	}

	var drifts []Drift
	for _, assetID := range assetIDs {
		drift, err := s.verifyAsset(ctx, owner, assetID, repair)
		if err != nil {
			return drifts, fmt.Errorf("%s: %w", assetID, err)
		}
		if drift == nil {
			continue
		}
		if drift.Repaired || drift.Cleared {
			s.committed(owner, assetID)
		}
		s.log.WithFields(logrus.Fields{
			"owner":    owner,
			"asset_id": assetID,
			"repaired": drift.Repaired,
			"cleared":  drift.Cleared,
		}).Warn(drift.String())
		drifts = append(drifts, *drift)
	}
	return drifts, nil
}

func (s *Service) verifyAsset(ctx context.Context, owner, assetID string, repair bool) (*Drift, error) {
	var drift *Drift
	err := s.store.InTx(ctx, func(dbtx db.Tx) error {
		if err := dbtx.LockAsset(ctx, owner, assetID); err != nil {
			return fmt.Errorf("lock asset: %w", err)
		}

		var stored *holdings.Snapshot
		current, err := dbtx.GetHolding(ctx, owner, assetID)
		switch {
		case err == nil:
			stored = &current
		case !errors.Is(err, holdings.ErrNotFound):
			return err
		}

		txs, err := dbtx.ListAssetTransactions(ctx, owner, assetID)
		if err != nil {
			return err
		}
		expected, aggErr := holdings.Aggregate(txs)
		if aggErr != nil {
			drift = &Drift{Owner: owner, AssetID: assetID, Stored: stored, Err: aggErr}
			if !repair || stored == nil {
				return nil
			}
			if err := dbtx.DeleteHolding(ctx, owner, assetID); err != nil {
				return fmt.Errorf("delete holding: %w", err)
			}
			drift.Cleared = true
			return nil
		}
		if sameSnapshot(stored, expected) {
			return nil
		}

		drift = &Drift{Owner: owner, AssetID: assetID, Stored: stored, Expected: expected}
		if !repair {
			return nil
		}
		if _, err := recompute(ctx, dbtx, owner, assetID); err != nil {
			return err
		}
		drift.Repaired = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return drift, nil
}

func sameSnapshot(stored, expected *holdings.Snapshot) bool {
	if stored == nil || expected == nil {
		return stored == nil && expected == nil
	}
	return stored.Equal(*expected)
}
