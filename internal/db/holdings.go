package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/cittellg-bit/cryptotracker-sub001/internal/holdings"
)

const holdingColumns = `
	user_id, asset_id, asset_symbol, asset_name, asset_icon_url, quantity_held,
	total_invested, average_unit_cost, transaction_count, last_transaction_at`

func (t *pgTx) GetHolding(ctx context.Context, owner, assetID string) (holdings.Snapshot, error) {
	row := t.q.QueryRow(ctx, `
		select `+holdingColumns+`
		from public.holdings
		where user_id = $1 and asset_id = $2
	`, owner, assetID)

	snapshot, err := scanHolding(row)
	if notFound(err) {
		return holdings.Snapshot{}, holdings.ErrNotFound
	}
	return snapshot, err
}

func (t *pgTx) UpsertHolding(ctx context.Context, s holdings.Snapshot) error {
	_, err := t.q.Exec(ctx, `
		insert into public.holdings
			(user_id, asset_id, asset_symbol, asset_name, asset_icon_url, quantity_held,
			 total_invested, average_unit_cost, transaction_count, last_transaction_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		on conflict (user_id, asset_id)
		do update set
			asset_symbol = excluded.asset_symbol,
			asset_name = excluded.asset_name,
			asset_icon_url = excluded.asset_icon_url,
			quantity_held = excluded.quantity_held,
			total_invested = excluded.total_invested,
			average_unit_cost = excluded.average_unit_cost,
			transaction_count = excluded.transaction_count,
			last_transaction_at = excluded.last_transaction_at,
			updated_at = now()
	`, s.Owner, s.AssetID, s.AssetSymbol, s.AssetName, s.AssetIconURL, s.QuantityHeld,
		s.TotalInvested, s.AverageUnitCost, s.TransactionCount, s.LastTransactionAt)
	return err
}

// DeleteHolding removes the stored holding. A missing row is not an error.
func (t *pgTx) DeleteHolding(ctx context.Context, owner, assetID string) error {
	_, err := t.q.Exec(ctx, `
		delete from public.holdings
		where user_id = $1 and asset_id = $2
	`, owner, assetID)
	return err
}

// ListHoldings returns the owner's stored holdings ordered by asset id.
func (d *DB) ListHoldings(ctx context.Context, owner string) ([]holdings.Snapshot, error) {
	rows, err := d.pool.Query(ctx, `
		select `+holdingColumns+`
		from public.holdings
		where user_id = $1
		order by asset_id
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []holdings.Snapshot
	for rows.Next() {
		snapshot, err := scanHolding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snapshot)
	}
	return out, rows.Err()
}

// ListHeldAssetIDs returns every asset at least one owner currently holds.
func (d *DB) ListHeldAssetIDs(ctx context.Context) ([]string, error) {
	rows, err := d.pool.Query(ctx, `
		select distinct asset_id
		from public.holdings
		order by asset_id
	`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func scanHolding(row pgx.Row) (holdings.Snapshot, error) {
	var s holdings.Snapshot
	err := row.Scan(&s.Owner, &s.AssetID, &s.AssetSymbol, &s.AssetName, &s.AssetIconURL, &s.QuantityHeld,
		&s.TotalInvested, &s.AverageUnitCost, &s.TransactionCount, &s.LastTransactionAt)
	if err == nil {
		s.LastTransactionAt = s.LastTransactionAt.UTC()
	}
	return s, err
}
