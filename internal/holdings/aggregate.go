package holdings

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// MoneyScale is the number of decimal places kept for invested capital and
	// average cost.
	MoneyScale = 8
	// workingScale bounds intermediate division results.
	workingScale = 20
)

// Snapshot is the derived position of one owner in one asset.
type Snapshot struct {
	Owner             string
	AssetID           string
	AssetSymbol       string
	AssetName         string
	AssetIconURL      string
	QuantityHeld      decimal.Decimal
	TotalInvested     decimal.Decimal
	AverageUnitCost   decimal.Decimal
	TransactionCount  int
	LastTransactionAt time.Time
}

func (s Snapshot) Key() Key {
	return Key{Owner: s.Owner, AssetID: s.AssetID}
}

// Equal reports whether two snapshots carry the same derived values.
func (s Snapshot) Equal(other Snapshot) bool {
	return s.Owner == other.Owner &&
		s.AssetID == other.AssetID &&
		s.QuantityHeld.Equal(other.QuantityHeld) &&
		s.TotalInvested.Equal(other.TotalInvested) &&
		s.AverageUnitCost.Equal(other.AverageUnitCost) &&
		s.TransactionCount == other.TransactionCount &&
		s.LastTransactionAt.Equal(other.LastTransactionAt)
}

// Aggregate folds the transactions of a single (owner, asset) pair into a
// snapshot using moving-average cost. It returns nil when nothing is held.
//
// Transactions are replayed in (OccurredAt, CreatedAt, ID) order so the result
// does not depend on input order. A sell larger than the quantity held at that
// point rejects the whole set.
func Aggregate(txs []Transaction) (*Snapshot, error) {
	if len(txs) == 0 {
		return nil, nil
	}

	key := txs[0].Key()
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			return nil, err
		}
		if tx.Key() != key {
			return nil, invalid("asset_id", "transactions span more than one owner and asset")
		}
	}

	ordered := make([]Transaction, len(txs))
	copy(ordered, txs)
	SortChronological(ordered)

	qty := decimal.Zero
	invested := decimal.Zero
	var last time.Time

	for _, tx := range ordered {
		switch tx.Kind {
		case KindBuy:
			qty = qty.Add(tx.Quantity)
			invested = invested.Add(tx.TotalValue())
		case KindSell:
			if tx.Quantity.GreaterThan(qty) {
				return nil, &OversoldError{TransactionID: tx.ID, Held: qty, Requested: tx.Quantity}
			}
			if tx.Quantity.Equal(qty) {
				invested = decimal.Zero
			} else {
				invested = invested.Sub(invested.Mul(tx.Quantity).DivRound(qty, workingScale))
			}
			qty = qty.Sub(tx.Quantity)
		}
		if tx.OccurredAt.After(last) {
			last = tx.OccurredAt
		}
	}

	if !qty.IsPositive() {
		return nil, nil
	}

	latest := ordered[len(ordered)-1]
	return &Snapshot{
		Owner:             key.Owner,
		AssetID:           key.AssetID,
		AssetSymbol:       latest.AssetSymbol,
		AssetName:         latest.AssetName,
		AssetIconURL:      latest.AssetIconURL,
		QuantityHeld:      qty,
		TotalInvested:     invested.Round(MoneyScale),
		AverageUnitCost:   averageCost(invested, qty),
		TransactionCount:  len(ordered),
		LastTransactionAt: last.UTC(),
	}, nil
}

func averageCost(invested, qty decimal.Decimal) decimal.Decimal {
	if !qty.IsPositive() {
		return decimal.Zero
	}
	return invested.DivRound(qty, MoneyScale)
}

func lessChronological(a, b Transaction) bool {
	if !a.OccurredAt.Equal(b.OccurredAt) {
		return a.OccurredAt.Before(b.OccurredAt)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// SortChronological orders transactions the way Aggregate replays them.
func SortChronological(txs []Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		return lessChronological(txs[i], txs[j])
	})
}
