package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const sankalpColumns = `id, user_id, category, deity, auspicious_day, tier, amount, currency,
status, payment_link_id, payment_short_url, follow_up_day, next_follow_up_at,
paid_at, created_at, updated_at`

func scanSankalp(row rowScanner) (*Sankalp, error) {
	var s Sankalp
	err := row.Scan(
		&s.ID, &s.UserID, &s.Category, &s.Deity, &s.AuspiciousDay, &s.Tier, &s.Amount, &s.Currency,
		&s.Status, &s.PaymentLinkID, &s.PaymentShortURL, &s.FollowUpDay, &s.NextFollowUpAt,
		&s.PaidAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// InsertSankalpTx creates a sankalp row inside tx.
func (r *Repository) InsertSankalpTx(ctx context.Context, tx pgx.Tx, s Sankalp) (*Sankalp, error) {
	const q = `
INSERT INTO sankalps (user_id, category, deity, auspicious_day, tier, amount, currency, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, created_at, updated_at;
`
	err := tx.QueryRow(ctx, q,
		s.UserID, s.Category, s.Deity, s.AuspiciousDay, s.Tier, s.Amount, s.Currency, s.Status,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert sankalp: %w", err)
	}
	return &s, nil
}

// GetSankalpByID returns a sankalp by identifier.
func (r *Repository) GetSankalpByID(ctx context.Context, id string) (*Sankalp, error) {
	q := `SELECT ` + sankalpColumns + ` FROM sankalps WHERE id = $1 LIMIT 1;`
	s, err := scanSankalp(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get sankalp: %w", err)
	}
	return s, nil
}

// GetSankalpTx loads a sankalp inside tx. The caller holds the owning user's
// row lock already, so no FOR UPDATE here.
func (r *Repository) GetSankalpTx(ctx context.Context, tx pgx.Tx, id string) (*Sankalp, error) {
	q := `SELECT ` + sankalpColumns + ` FROM sankalps WHERE id = $1 LIMIT 1;`
	s, err := scanSankalp(tx.QueryRow(ctx, q, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get sankalp in tx: %w", err)
	}
	return s, nil
}

// SaveSankalpTx writes back every mutable sankalp field inside tx.
func (r *Repository) SaveSankalpTx(ctx context.Context, tx pgx.Tx, s *Sankalp) error {
	const q = `
UPDATE sankalps SET
    status = $2,
    payment_link_id = $3,
    payment_short_url = $4,
    follow_up_day = $5,
    next_follow_up_at = $6,
    paid_at = $7,
    updated_at = NOW()
WHERE id = $1;
`
	ct, err := tx.Exec(ctx, q,
		s.ID, s.Status, s.PaymentLinkID, s.PaymentShortURL, s.FollowUpDay, s.NextFollowUpAt, s.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("save sankalp: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("save sankalp %s: %w", s.ID, ErrNotFound)
	}
	return nil
}

// ListFollowUpsDue returns paid sankalps whose follow-up instant has passed.
func (r *Repository) ListFollowUpsDue(ctx context.Context, now time.Time, limit int) ([]Sankalp, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	q := `
SELECT ` + sankalpColumns + `
FROM sankalps
WHERE status IN ('PAID', 'RECEIPT_SENT', 'CLOSED')
  AND follow_up_day > 0
  AND next_follow_up_at <= $1
ORDER BY next_follow_up_at ASC
LIMIT $2;`
	return r.querySankalps(ctx, q, now, limit)
}

// ListSankalpsPaidBetween returns sankalps that entered PAID inside [from, to).
func (r *Repository) ListSankalpsPaidBetween(ctx context.Context, from, to time.Time) ([]Sankalp, error) {
	q := `
SELECT ` + sankalpColumns + `
FROM sankalps
WHERE paid_at >= $1 AND paid_at < $2;`
	return r.querySankalps(ctx, q, from, to)
}

// ListSankalpsByUser returns the user's most recent sankalps.
func (r *Repository) ListSankalpsByUser(ctx context.Context, userID string, limit int) ([]Sankalp, error) {
	if limit <= 0 {
		limit = 5
	}
	q := `
SELECT ` + sankalpColumns + `
FROM sankalps
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2;`
	return r.querySankalps(ctx, q, userID, limit)
}

func (r *Repository) querySankalps(ctx context.Context, q string, args ...any) ([]Sankalp, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query sankalps: %w", err)
	}
	defer rows.Close()

	var list []Sankalp
	for rows.Next() {
		s, err := scanSankalp(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sankalp: %w", err)
		}
		list = append(list, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sankalps: %w", err)
	}
	return list, nil
}
