package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// HasPaymentEvent reports whether an external event ID was already consumed.
func (r *Repository) HasPaymentEvent(ctx context.Context, eventID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM payments WHERE external_event_id = $1);`
	var exists bool
	if err := r.pool.QueryRow(ctx, q, eventID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check payment event: %w", err)
	}
	return exists, nil
}

// InsertPaymentTx records a consumed payment event inside tx. A concurrent
// duplicate surfaces as ErrDuplicateEvent via the unique index.
func (r *Repository) InsertPaymentTx(ctx context.Context, tx pgx.Tx, p Payment) (*Payment, error) {
	const q = `
INSERT INTO payments (sankalp_id, external_event_id, event_type, amount, currency, signature_verified, raw_payload)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, created_at;
`
	err := tx.QueryRow(ctx, q,
		p.SankalpID, p.ExternalEventID, p.EventType, p.Amount, p.Currency, p.SignatureVerified, p.RawPayload,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEvent
		}
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	return &p, nil
}

// InsertPayment records a consumed payment event in its own transaction.
// Used when the main handler failed after signature verification and the
// event must still be marked consumed before answering 200.
func (r *Repository) InsertPayment(ctx context.Context, p Payment) (*Payment, error) {
	var out *Payment
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		inserted, err := r.InsertPaymentTx(ctx, tx, p)
		if err != nil {
			return err
		}
		out = inserted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountPaymentsBySankalp returns the number of consumed events for a sankalp.
func (r *Repository) CountPaymentsBySankalp(ctx context.Context, sankalpID string) (int, error) {
	const q = `SELECT COUNT(*) FROM payments WHERE sankalp_id = $1;`
	var n int
	if err := r.pool.QueryRow(ctx, q, sankalpID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count payments: %w", err)
	}
	return n, nil
}
