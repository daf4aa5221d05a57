package market

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrPriceUnavailable means neither the provider nor the cache could supply
// the requested data.
var ErrPriceUnavailable = errors.New("market data unavailable")

type Quote struct {
	AssetID  string
	Price    decimal.Decimal
	Provider string
}

// Asset is one row of a market listing. Change24h is a percentage.
type Asset struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	ImageURL  string          `json:"image_url"`
	Price     decimal.Decimal `json:"price"`
	Change24h decimal.Decimal `json:"change_24h"`
	MarketCap decimal.Decimal `json:"market_cap"`
	Volume24h decimal.Decimal `json:"volume_24h"`
}

type Provider interface {
	Name() string
	FetchPrices(ctx context.Context, assetIDs []string) ([]Quote, error)
	FetchTopAssets(ctx context.Context, limit int) ([]Asset, error)
}

// PriceResult is a price as served to callers. Stale is set when the live
// lookup failed and a cached value was used instead.
type PriceResult struct {
	AssetID string
	Price   decimal.Decimal
	AsOf    time.Time
	Source  string
	Stale   bool
}

type TopAssetsResult struct {
	Assets []Asset
	AsOf   time.Time
	Stale  bool
}

func normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(strings.ToLower(id))
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
