package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"bot-sankalp/internal/content"
	"bot-sankalp/internal/convo"
	"bot-sankalp/internal/repo"
)

const (
	followUpBatchSize = 200
	dayThreeToSeven   = 4 * 24 * time.Hour
)

// RunFollowUps advances the post-payment chain: a day-3 status note, then
// the day-7 impact close with proof media when a verified execution exists.
func (m *Manager) RunFollowUps(ctx context.Context) error {
	now := m.now()
	due, err := m.store.ListFollowUpsDue(ctx, now, followUpBatchSize)
	if err != nil {
		return fmt.Errorf("list follow-ups due: %w", err)
	}

	for _, s := range due {
		if err := m.followUpOne(ctx, s.ID, now); err != nil {
			m.logger.Error("follow-up failed", "error", err, "sankalp_id", s.ID)
			m.metrics.Errors.WithLabelValues("worker_follow_up").Inc()
		}
	}
	return nil
}

func (m *Manager) followUpOne(ctx context.Context, sankalpID string, now time.Time) error {
	var (
		user    *repo.User
		sankalp *repo.Sankalp
		day     int
	)
	err := m.store.WithTx(ctx, func(tx pgx.Tx) error {
		s, err := m.store.GetSankalpTx(ctx, tx, sankalpID)
		if err != nil {
			return err
		}
		u, err := m.store.LockUserTx(ctx, tx, s.UserID)
		if err != nil {
			return err
		}
		if s.FollowUpDay == 0 || s.NextFollowUpAt == nil || s.NextFollowUpAt.After(now) {
			return nil
		}

		day = s.FollowUpDay
		switch day {
		case 3:
			s.FollowUpDay = 7
			next := now.Add(dayThreeToSeven)
			s.NextFollowUpAt = &next
		default:
			s.FollowUpDay = 0
			s.NextFollowUpAt = nil
			if s.Status == convo.SankalpPaid || s.Status == convo.SankalpReceiptSent {
				s.Status = convo.SankalpClosed
			}
		}
		if err := m.store.SaveSankalpTx(ctx, tx, s); err != nil {
			return fmt.Errorf("save sankalp: %w", err)
		}
		user, sankalp = u, s
		return nil
	})
	if err != nil || user == nil {
		return err
	}

	if day == 3 {
		return m.sendText(ctx, user, content.FollowUpDay3())
	}
	return m.sendDaySevenClose(ctx, user, sankalp)
}

func (m *Manager) sendDaySevenClose(ctx context.Context, user *repo.User, sankalp *repo.Sankalp) error {
	meals := 0
	if tier, ok := content.TierByCode(sankalp.Tier); ok {
		meals = tier.Meals
	}

	execution, err := m.store.GetVerifiedExecution(ctx, sankalp.ID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		m.logger.Warn("failed to load seva execution", "error", err, "sankalp_id", sankalp.ID)
	}
	if execution != nil {
		if execution.MealsServed > 0 {
			meals = execution.MealsServed
		}
		if execution.PhotoURL != nil {
			msgID, err := m.sender.Image(ctx, user.Phone, *execution.PhotoURL, content.FollowUpDay7(meals))
			if err != nil {
				m.metrics.Errors.WithLabelValues("wa_send").Inc()
				return fmt.Errorf("send follow-up photo: %w", err)
			}
			m.logOutbound(ctx, user.ID, "image", msgID)
			return nil
		}
	}
	return m.sendText(ctx, user, content.FollowUpDay7(meals))
}
