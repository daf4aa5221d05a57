package holdings

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Column limits of the transactions table: quantity numeric(38,20) and
// unit_price numeric(38,8).
const (
	QuantityScale = 20
	PriceScale    = MoneyScale
)

var (
	maxQuantity  = decimal.New(1, 38-QuantityScale)
	maxUnitPrice = decimal.New(1, 38-PriceScale)
)

type Kind string

const (
	KindBuy  Kind = "buy"
	KindSell Kind = "sell"
)

func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindBuy:
		return KindBuy, nil
	case KindSell:
		return KindSell, nil
	default:
		return "", invalid("kind", "kind must be buy or sell")
	}
}

func (k Kind) Valid() bool {
	return k == KindBuy || k == KindSell
}

// Transaction is a single buy or sell recorded by an owner. Asset identity is
// captured when the transaction is written and is not refreshed later.
type Transaction struct {
	ID           string
	Owner        string
	AssetID      string
	AssetSymbol  string
	AssetName    string
	AssetIconURL string
	Kind         Kind
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	OccurredAt   time.Time
	Venue        string
	Notes        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TotalValue is always derived from quantity and unit price.
func (t Transaction) TotalValue() decimal.Decimal {
	return t.Quantity.Mul(t.UnitPrice)
}

func (t Transaction) Key() Key {
	return Key{Owner: t.Owner, AssetID: t.AssetID}
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.Owner) == "" {
		return invalid("owner", "owner is required")
	}
	if strings.TrimSpace(t.AssetID) == "" {
		return invalid("asset_id", "asset_id is required")
	}
	if strings.TrimSpace(t.AssetSymbol) == "" {
		return invalid("asset_symbol", "asset_symbol is required")
	}
	if strings.TrimSpace(t.AssetName) == "" {
		return invalid("asset_name", "asset_name is required")
	}
	if !t.Kind.Valid() {
		return invalid("kind", "kind must be buy or sell, got %q", string(t.Kind))
	}
	if !t.Quantity.IsPositive() {
		return invalid("quantity", "quantity must be greater than 0")
	}
	if err := checkStorable("quantity", t.Quantity, QuantityScale, maxQuantity); err != nil {
		return err
	}
	if !t.UnitPrice.IsPositive() {
		return invalid("unit_price", "unit_price must be greater than 0")
	}
	if err := checkStorable("unit_price", t.UnitPrice, PriceScale, maxUnitPrice); err != nil {
		return err
	}
	if t.OccurredAt.IsZero() {
		return invalid("occurred_at", "occurred_at is required")
	}
	return nil
}

// checkStorable rejects values the store would round or overflow, so what is
// accepted is exactly what is persisted.
func checkStorable(field string, d decimal.Decimal, scale int32, max decimal.Decimal) *ValidationError {
	if !d.Equal(d.Truncate(scale)) {
		return invalid(field, "%s supports at most %d decimal places", field, scale)
	}
	if d.Abs().GreaterThanOrEqual(max) {
		return invalid(field, "%s must be less than %s", field, max.String())
	}
	return nil
}

// Key identifies one holdings snapshot.
type Key struct {
	Owner   string
	AssetID string
}

func (k Key) String() string {
	return k.Owner + ":" + k.AssetID
}
