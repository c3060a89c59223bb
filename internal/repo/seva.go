package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// InsertSevaLedgerTx records the fee split for a paid sankalp inside tx.
// The 1:1 constraint with the sankalp is enforced by the unique index.
func (r *Repository) InsertSevaLedgerTx(ctx context.Context, tx pgx.Tx, l SevaLedger) (*SevaLedger, error) {
	const q = `
INSERT INTO seva_ledger (sankalp_id, amount, platform_fee, seva_amount)
VALUES ($1, $2, $3, $4)
ON CONFLICT (sankalp_id) DO NOTHING
RETURNING id, created_at;
`
	err := tx.QueryRow(ctx, q, l.SankalpID, l.Amount, l.PlatformFee, l.SevaAmount).
		Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			// Row already exists; the split is immutable once written.
			return r.getLedgerBySankalpTx(ctx, tx, l.SankalpID)
		}
		return nil, fmt.Errorf("insert seva ledger: %w", err)
	}
	return &l, nil
}

// GetLedgerBySankalp returns the ledger row for a sankalp.
func (r *Repository) GetLedgerBySankalp(ctx context.Context, sankalpID string) (*SevaLedger, error) {
	const q = `
SELECT id, sankalp_id, amount, platform_fee, seva_amount, batch_id, created_at
FROM seva_ledger
WHERE sankalp_id = $1
LIMIT 1;
`
	var l SevaLedger
	err := r.pool.QueryRow(ctx, q, sankalpID).Scan(
		&l.ID, &l.SankalpID, &l.Amount, &l.PlatformFee, &l.SevaAmount, &l.BatchID, &l.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get seva ledger: %w", err)
	}
	return &l, nil
}

func (r *Repository) getLedgerBySankalpTx(ctx context.Context, tx pgx.Tx, sankalpID string) (*SevaLedger, error) {
	const q = `
SELECT id, sankalp_id, amount, platform_fee, seva_amount, batch_id, created_at
FROM seva_ledger
WHERE sankalp_id = $1
LIMIT 1;
`
	var l SevaLedger
	err := tx.QueryRow(ctx, q, sankalpID).Scan(
		&l.ID, &l.SankalpID, &l.Amount, &l.PlatformFee, &l.SevaAmount, &l.BatchID, &l.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get seva ledger in tx: %w", err)
	}
	return &l, nil
}

// CreateSevaBatch groups unbatched ledger rows within [start, end] into a
// new batch named SEVA-YYYYMMDD-YYYYMMDD and returns it.
func (r *Repository) CreateSevaBatch(ctx context.Context, start, end time.Time) (*SevaBatch, error) {
	batchID := fmt.Sprintf("SEVA-%s-%s", start.Format("20060102"), end.Format("20060102"))

	var batch *SevaBatch
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		const claim = `
UPDATE seva_ledger
SET batch_id = $1
WHERE batch_id IS NULL
  AND created_at >= $2
  AND created_at < $3 + INTERVAL '1 day';
`
		if _, err := tx.Exec(ctx, claim, batchID, start, end); err != nil {
			return fmt.Errorf("claim ledger rows: %w", err)
		}

		const total = `SELECT COALESCE(SUM(seva_amount), 0) FROM seva_ledger WHERE batch_id = $1;`
		var sum int64
		if err := tx.QueryRow(ctx, total, batchID).Scan(&sum); err != nil {
			return fmt.Errorf("sum batch: %w", err)
		}

		const ins = `
INSERT INTO seva_batches (id, period_start, period_end, total_amount)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET total_amount = EXCLUDED.total_amount
RETURNING id, period_start, period_end, total_amount, status, transfer_reference, transferred_at, created_at;
`
		var b SevaBatch
		err := tx.QueryRow(ctx, ins, batchID, start, end, sum).Scan(
			&b.ID, &b.PeriodStart, &b.PeriodEnd, &b.TotalAmount, &b.Status,
			&b.TransferReference, &b.TransferredAt, &b.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert seva batch: %w", err)
		}
		batch = &b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// MarkBatchTransferred sets a batch TRANSFERRED with its transfer reference.
func (r *Repository) MarkBatchTransferred(ctx context.Context, batchID, reference string) error {
	const q = `
UPDATE seva_batches
SET status = 'TRANSFERRED', transfer_reference = $2, transferred_at = NOW()
WHERE id = $1;
`
	ct, err := r.pool.Exec(ctx, q, batchID, reference)
	if err != nil {
		return fmt.Errorf("mark batch transferred: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}
	return nil
}

// ListSevaBatches returns all batches, newest first.
func (r *Repository) ListSevaBatches(ctx context.Context) ([]SevaBatch, error) {
	const q = `
SELECT id, period_start, period_end, total_amount, status, transfer_reference, transferred_at, created_at
FROM seva_batches
ORDER BY created_at DESC;
`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list seva batches: %w", err)
	}
	defer rows.Close()

	var batches []SevaBatch
	for rows.Next() {
		var b SevaBatch
		if err := rows.Scan(&b.ID, &b.PeriodStart, &b.PeriodEnd, &b.TotalAmount, &b.Status,
			&b.TransferReference, &b.TransferredAt, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan seva batch: %w", err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate seva batches: %w", err)
	}
	return batches, nil
}

// GetVerifiedExecution returns a verified proof-of-delivery row for a
// sankalp, if any.
func (r *Repository) GetVerifiedExecution(ctx context.Context, sankalpID string) (*SevaExecution, error) {
	const q = `
SELECT id, sankalp_id, temple_name, location, meals_served, status, photo_url, verified_at, created_at
FROM seva_executions
WHERE sankalp_id = $1 AND status = 'verified'
ORDER BY verified_at DESC
LIMIT 1;
`
	var e SevaExecution
	err := r.pool.QueryRow(ctx, q, sankalpID).Scan(
		&e.ID, &e.SankalpID, &e.TempleName, &e.Location, &e.MealsServed, &e.Status,
		&e.PhotoURL, &e.VerifiedAt, &e.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get verified execution: %w", err)
	}
	return &e, nil
}

// AddSevaMedia inserts a pooled proof-footage entry.
func (r *Repository) AddSevaMedia(ctx context.Context, m SevaMedia) (*SevaMedia, error) {
	const q = `
INSERT INTO seva_media (media_url, media_type, temple_name, location, seva_date, families_fed, caption)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, used_count, created_at;
`
	err := r.pool.QueryRow(ctx, q,
		m.MediaURL, m.MediaType, m.TempleName, m.Location, m.SevaDate, m.FamiliesFed, m.Caption,
	).Scan(&m.ID, &m.UsedCount, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("add seva media: %w", err)
	}
	return &m, nil
}

// PickLeastUsedMedia returns a pool entry with the lowest usage, ties broken
// randomly, or ErrNotFound on an empty pool.
func (r *Repository) PickLeastUsedMedia(ctx context.Context) (*SevaMedia, error) {
	const q = `
SELECT id, media_url, media_type, temple_name, location, seva_date, families_fed, caption, used_count, created_at
FROM seva_media
ORDER BY used_count ASC, RANDOM()
LIMIT 1;
`
	var m SevaMedia
	err := r.pool.QueryRow(ctx, q).Scan(
		&m.ID, &m.MediaURL, &m.MediaType, &m.TempleName, &m.Location, &m.SevaDate,
		&m.FamiliesFed, &m.Caption, &m.UsedCount, &m.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("pick seva media: %w", err)
	}
	return &m, nil
}

// IncrementMediaUsed bumps the usage counter after a successful send.
func (r *Repository) IncrementMediaUsed(ctx context.Context, mediaID string) error {
	const q = `UPDATE seva_media SET used_count = used_count + 1 WHERE id = $1;`
	ct, err := r.pool.Exec(ctx, q, mediaID)
	if err != nil {
		return fmt.Errorf("increment media used: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("seva media %s: %w", mediaID, ErrNotFound)
	}
	return nil
}

// MediaPoolStats summarizes the proof-footage pool.
type MediaPoolStats struct {
	Total  int `json:"total"`
	Images int `json:"images"`
	Videos int `json:"videos"`
}

// GetMediaPoolStats counts pool entries by type.
func (r *Repository) GetMediaPoolStats(ctx context.Context) (*MediaPoolStats, error) {
	const q = `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE media_type = 'image'),
       COUNT(*) FILTER (WHERE media_type = 'video')
FROM seva_media;
`
	var stats MediaPoolStats
	if err := r.pool.QueryRow(ctx, q).Scan(&stats.Total, &stats.Images, &stats.Videos); err != nil {
		return nil, fmt.Errorf("media pool stats: %w", err)
	}
	return &stats, nil
}
