package repo

import (
	"context"
	"fmt"
)

// InsertRitualEvent appends an analytics record. Best-effort at call sites;
// failures are logged and never block the main flow.
func (r *Repository) InsertRitualEvent(ctx context.Context, e RitualEvent) error {
	const q = `
INSERT INTO ritual_events (user_id, event_type, phase, intensity, converted, event_data)
VALUES ($1, $2, $3, $4, $5, $6);
`
	_, err := r.pool.Exec(ctx, q, e.UserID, e.EventType, e.Phase, e.Intensity, e.Converted, e.EventData)
	if err != nil {
		return fmt.Errorf("insert ritual event: %w", err)
	}
	return nil
}
