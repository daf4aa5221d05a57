package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

func (d *DB) InsertPriceSnapshots(ctx context.Context, snapshots []PriceSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, snapshot := range snapshots {
		batch.Queue(`
			insert into public.price_snapshots (asset_id, price, fetched_at, provider)
			values ($1, $2, $3, $4)
		`, snapshot.AssetID, snapshot.Price, snapshot.FetchedAt, snapshot.Provider)
	}
	br := d.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range snapshots {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// ListPriceSnapshots returns the newest snapshots for an asset fetched at or
// after since, newest first.
func (d *DB) ListPriceSnapshots(ctx context.Context, assetID string, since time.Time, limit int) ([]PriceSnapshot, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := d.pool.Query(ctx, `
		select asset_id, price, provider, fetched_at
		from public.price_snapshots
		where asset_id = $1 and fetched_at >= $2
		order by fetched_at desc
		limit $3
	`, assetID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PriceSnapshot
	for rows.Next() {
		var s PriceSnapshot
		if err := rows.Scan(&s.AssetID, &s.Price, &s.Provider, &s.FetchedAt); err != nil {
			return nil, err
		}
		s.FetchedAt = s.FetchedAt.UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// PrunePriceSnapshots deletes snapshots fetched before cutoff.
func (d *DB) PrunePriceSnapshots(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := d.pool.Exec(ctx, `delete from public.price_snapshots where fetched_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
