package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetConversation returns the 1:1 conversation row for a user.
func (r *Repository) GetConversation(ctx context.Context, userID string) (*Conversation, error) {
	const q = `
SELECT id, user_id, context, last_inbound_msg_id, last_outbound_msg_id, created_at, updated_at
FROM conversations
WHERE user_id = $1
LIMIT 1;
`
	var c Conversation
	err := r.pool.QueryRow(ctx, q, userID).Scan(
		&c.ID, &c.UserID, &c.Context, &c.LastInboundMsgID, &c.LastOutboundID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if c.Context == nil {
		c.Context = map[string]string{}
	}
	return &c, nil
}

// SaveConversationTx writes context and dedupe cursors inside tx.
func (r *Repository) SaveConversationTx(ctx context.Context, tx pgx.Tx, c *Conversation) error {
	const q = `
UPDATE conversations
SET context = $2, last_inbound_msg_id = $3, last_outbound_msg_id = $4, updated_at = NOW()
WHERE user_id = $1;
`
	ctxMap := c.Context
	if ctxMap == nil {
		ctxMap = map[string]string{}
	}
	ct, err := tx.Exec(ctx, q, c.UserID, ctxMap, c.LastInboundMsgID, c.LastOutboundID)
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("save conversation for user %s: %w", c.UserID, ErrNotFound)
	}
	return nil
}
