package holdings

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the price used to value one asset. Stale is set when the price
// came from a cache after the live lookup failed.
type Quote struct {
	Price decimal.Decimal
	AsOf  time.Time
	Stale bool
}

type AssetValuation struct {
	Snapshot
	Priced       bool
	Stale        bool
	CurrentPrice decimal.Decimal
	CurrentValue decimal.Decimal
	ProfitLoss   decimal.Decimal
	PriceAsOf    time.Time
}

type Summary struct {
	Assets            []AssetValuation
	TotalValue        decimal.Decimal
	TotalInvested     decimal.Decimal
	TotalProfitLoss   decimal.Decimal
	ProfitLossPercent decimal.Decimal
	// Stale is true when any asset was valued from cache or left out.
	Stale    bool
	Excluded []string
}

// Summarize values every snapshot at its quote. Assets without a quote are
// skipped from the value and profit totals and reported in Excluded; they
// still count towards TotalInvested.
func Summarize(snapshots []Snapshot, quotes map[string]Quote) Summary {
	summary := Summary{
		Assets:          make([]AssetValuation, 0, len(snapshots)),
		TotalValue:      decimal.Zero,
		TotalInvested:   decimal.Zero,
		TotalProfitLoss: decimal.Zero,
	}
	pricedInvested := decimal.Zero

	for _, snapshot := range snapshots {
		summary.TotalInvested = summary.TotalInvested.Add(snapshot.TotalInvested)

		valuation := AssetValuation{Snapshot: snapshot}
		quote, ok := quotes[snapshot.AssetID]
		if !ok || !quote.Price.IsPositive() {
			summary.Excluded = append(summary.Excluded, snapshot.AssetID)
			summary.Stale = true
			summary.Assets = append(summary.Assets, valuation)
			continue
		}

		valuation.Priced = true
		valuation.Stale = quote.Stale
		valuation.CurrentPrice = quote.Price
		valuation.PriceAsOf = quote.AsOf
		valuation.CurrentValue = snapshot.QuantityHeld.Mul(quote.Price).Round(MoneyScale)
		valuation.ProfitLoss = valuation.CurrentValue.Sub(snapshot.TotalInvested)
		if quote.Stale {
			summary.Stale = true
		}

		summary.TotalValue = summary.TotalValue.Add(valuation.CurrentValue)
		pricedInvested = pricedInvested.Add(snapshot.TotalInvested)
		summary.Assets = append(summary.Assets, valuation)
	}

	summary.TotalProfitLoss = summary.TotalValue.Sub(pricedInvested)
	if pricedInvested.IsPositive() {
		summary.ProfitLossPercent = summary.TotalProfitLoss.Mul(decimal.NewFromInt(100)).DivRound(pricedInvested, 4)
	}

	sort.SliceStable(summary.Assets, func(i, j int) bool {
		return summary.Assets[i].CurrentValue.GreaterThan(summary.Assets[j].CurrentValue)
	})
	sort.Strings(summary.Excluded)
	return summary
}
