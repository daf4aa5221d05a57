package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cittellg-bit/cryptotracker-sub001/internal/holdings"
)

const transactionColumns = `
	id::text, user_id, asset_id, asset_symbol, asset_name, asset_icon_url, kind,
	quantity, unit_price, occurred_at, venue, notes, created_at, updated_at`

type pgTx struct {
	q querier
}

func (t *pgTx) LockAsset(ctx context.Context, owner, assetID string) error {
	_, err := t.q.Exec(ctx, `select pg_advisory_xact_lock(hashtextextended($1, 0))`, owner+":"+assetID)
	return err
}

func (t *pgTx) InsertTransaction(ctx context.Context, tx holdings.Transaction) error {
	_, err := t.q.Exec(ctx, `
		insert into public.transactions
			(id, user_id, asset_id, asset_symbol, asset_name, asset_icon_url, kind,
			 quantity, unit_price, occurred_at, venue, notes, created_at, updated_at)
		values ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, tx.ID, tx.Owner, tx.AssetID, tx.AssetSymbol, tx.AssetName, tx.AssetIconURL, string(tx.Kind),
		tx.Quantity, tx.UnitPrice, tx.OccurredAt, tx.Venue, tx.Notes, tx.CreatedAt, tx.UpdatedAt)
	return err
}

func (t *pgTx) UpdateTransaction(ctx context.Context, tx holdings.Transaction) error {
	if !validID(tx.ID) {
		return holdings.ErrNotFound
	}
	tag, err := t.q.Exec(ctx, `
		update public.transactions
		set kind = $1, quantity = $2, unit_price = $3, occurred_at = $4, venue = $5, notes = $6, updated_at = $7
		where id = $8::uuid and user_id = $9
	`, string(tx.Kind), tx.Quantity, tx.UnitPrice, tx.OccurredAt, tx.Venue, tx.Notes, tx.UpdatedAt, tx.ID, tx.Owner)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return holdings.ErrNotFound
	}
	return nil
}

func (t *pgTx) DeleteTransaction(ctx context.Context, owner, id string) error {
	if !validID(id) {
		return holdings.ErrNotFound
	}
	tag, err := t.q.Exec(ctx, `
		delete from public.transactions
		where id = $1::uuid and user_id = $2
	`, id, owner)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return holdings.ErrNotFound
	}
	return nil
}

func (t *pgTx) GetTransaction(ctx context.Context, owner, id string) (holdings.Transaction, error) {
	return getTransaction(ctx, t.q, owner, id, " for update")
}

func (t *pgTx) ListAssetTransactions(ctx context.Context, owner, assetID string) ([]holdings.Transaction, error) {
	rows, err := t.q.Query(ctx, `
		select `+transactionColumns+`
		from public.transactions
		where user_id = $1 and asset_id = $2
		order by occurred_at, created_at, id
	`, owner, assetID)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (d *DB) GetTransaction(ctx context.Context, owner, id string) (holdings.Transaction, error) {
	return getTransaction(ctx, d.pool, owner, id, "")
}

func (d *DB) ListTransactions(ctx context.Context, owner string, filter TransactionFilter) ([]holdings.Transaction, error) {
	args := []any{owner}
	where := []string{"user_id = $1"}
	if filter.AssetID != "" {
		args = append(args, filter.AssetID)
		where = append(where, fmt.Sprintf("asset_id = $%d", len(args)))
	}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, filter.Offset)

	rows, err := d.pool.Query(ctx, `
		select `+transactionColumns+`
		from public.transactions
		where `+strings.Join(where, " and ")+`
		order by occurred_at desc, created_at desc, id desc
		limit $`+fmt.Sprint(len(args)-1)+` offset $`+fmt.Sprint(len(args)), args...)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

// ListOwners returns every owner with transactions or stored holdings.
func (d *DB) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := d.pool.Query(ctx, `
		select user_id from public.transactions
		union
		select user_id from public.holdings
		order by 1
	`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// ListOwnerAssetIDs returns every asset the owner has transactions or a
// stored holding for, so a rebuild also clears orphaned holdings.
func (d *DB) ListOwnerAssetIDs(ctx context.Context, owner string) ([]string, error) {
	rows, err := d.pool.Query(ctx, `
		select asset_id from public.transactions where user_id = $1
		union
		select asset_id from public.holdings where user_id = $1
		order by 1
	`, owner)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// validID reports whether id can name a row; anything else cannot match.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func getTransaction(ctx context.Context, q querier, owner, id, suffix string) (holdings.Transaction, error) {
	if !validID(id) {
		return holdings.Transaction{}, holdings.ErrNotFound
	}
	row := q.QueryRow(ctx, `
		select `+transactionColumns+`
		from public.transactions
		where id = $1::uuid and user_id = $2`+suffix, id, owner)

	tx, err := scanTransaction(row)
	if notFound(err) {
		return holdings.Transaction{}, holdings.ErrNotFound
	}
	return tx, err
}

func scanTransaction(row pgx.Row) (holdings.Transaction, error) {
	var tx holdings.Transaction
	var kind string
	err := row.Scan(&tx.ID, &tx.Owner, &tx.AssetID, &tx.AssetSymbol, &tx.AssetName, &tx.AssetIconURL, &kind,
		&tx.Quantity, &tx.UnitPrice, &tx.OccurredAt, &tx.Venue, &tx.Notes, &tx.CreatedAt, &tx.UpdatedAt)
	tx.Kind = holdings.Kind(kind)
	return tx, err
}

func collectTransactions(rows pgx.Rows) ([]holdings.Transaction, error) {
	defer rows.Close()

	var txs []holdings.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}
