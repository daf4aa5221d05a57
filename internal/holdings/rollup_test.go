package holdings

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotFor(t *testing.T, assetID, qty, invested string) Snapshot {
	t.Helper()
	q := dec(t, qty)
	inv := dec(t, invested)
	return Snapshot{
		Owner:           "user-1",
		AssetID:         assetID,
		AssetSymbol:     assetID,
		AssetName:       assetID,
		QuantityHeld:    q,
		TotalInvested:   inv,
		AverageUnitCost: averageCost(inv, q),
	}
}

func TestSummarizeUsesStaleCachedPrice(t *testing.T) {
	t.Parallel()

	snapshots := []Snapshot{
		snapshotFor(t, "bitcoin", "0.5", "23000"),
		snapshotFor(t, "ethereum", "2", "5000"),
	}
	quotes := map[string]Quote{
		"bitcoin":  {Price: dec(t, "50000")},
		"ethereum": {Price: dec(t, "3000"), Stale: true},
	}

	summary := Summarize(snapshots, quotes)
	assertDecimal(t, "31000", summary.TotalValue, "total value")
	assertDecimal(t, "28000", summary.TotalInvested, "total invested")
	assertDecimal(t, "3000", summary.TotalProfitLoss, "profit loss")
	assert.True(t, summary.Stale)
	assert.Empty(t, summary.Excluded)

	require.Len(t, summary.Assets, 2)
	assert.Equal(t, "bitcoin", summary.Assets[0].AssetID)
	assert.False(t, summary.Assets[0].Stale)
	assertDecimal(t, "25000", summary.Assets[0].CurrentValue, "btc value")
	assert.Equal(t, "ethereum", summary.Assets[1].AssetID)
	assert.True(t, summary.Assets[1].Stale)
}

func TestSummarizeSkipsAndFlagsMissingPrice(t *testing.T) {
	t.Parallel()

	snapshots := []Snapshot{
		snapshotFor(t, "bitcoin", "0.5", "23000"),
		snapshotFor(t, "ethereum", "2", "5000"),
	}
	quotes := map[string]Quote{
		"bitcoin": {Price: dec(t, "50000")},
	}

	summary := Summarize(snapshots, quotes)
	assertDecimal(t, "25000", summary.TotalValue, "total value")
	assertDecimal(t, "28000", summary.TotalInvested, "total invested")
	assertDecimal(t, "2000", summary.TotalProfitLoss, "profit loss over priced assets")
	assert.Equal(t, []string{"ethereum"}, summary.Excluded)
	assert.True(t, summary.Stale)

	var eth AssetValuation
	for _, asset := range summary.Assets {
		if asset.AssetID == "ethereum" {
			eth = asset
		}
	}
	assert.False(t, eth.Priced)
	assert.True(t, eth.CurrentValue.IsZero())
}

func TestSummarizeAllFresh(t *testing.T) {
	t.Parallel()

	summary := Summarize(
		[]Snapshot{snapshotFor(t, "solana", "10", "1000")},
		map[string]Quote{"solana": {Price: dec(t, "150")}},
	)
	assert.False(t, summary.Stale)
	assertDecimal(t, "1500", summary.TotalValue, "total value")
	assertDecimal(t, "500", summary.TotalProfitLoss, "profit loss")
	assertDecimal(t, "50", summary.ProfitLossPercent, "profit loss percent")
}

func TestSummarizeEmptyPortfolio(t *testing.T) {
	t.Parallel()

	summary := Summarize(nil, nil)
	assert.True(t, summary.TotalValue.IsZero())
	assert.True(t, summary.TotalInvested.IsZero())
	assert.True(t, summary.ProfitLossPercent.Equal(decimal.Zero))
	assert.False(t, summary.Stale)
	assert.Empty(t, summary.Assets)
}
