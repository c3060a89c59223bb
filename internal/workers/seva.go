package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bot-sankalp/internal/content"
	"bot-sankalp/internal/repo"
)

// RunSevaProof sends yesterday's paid devotees their proof-of-delivery
// footage, drawing from the media pool least-used first.
func (m *Manager) RunSevaProof(ctx context.Context) error {
	now := m.now().In(m.loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, m.loc)
	from := dayStart.AddDate(0, 0, -1)

	sankalps, err := m.store.ListSankalpsPaidBetween(ctx, from, dayStart)
	if err != nil {
		return fmt.Errorf("list paid sankalps: %w", err)
	}
	if len(sankalps) == 0 {
		return nil
	}

	sent := 0
	for _, s := range sankalps {
		if err := m.sendProofOne(ctx, s, from); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				m.logger.Warn("seva media pool is empty, stopping proof run")
				break
			}
			m.logger.Error("seva proof send failed", "error", err, "sankalp_id", s.ID)
			m.metrics.Errors.WithLabelValues("worker_seva_proof").Inc()
		} else {
			sent++
		}
	}
	m.logger.Info("seva proof run done", "paid_yesterday", len(sankalps), "sent", sent)
	return nil
}

func (m *Manager) sendProofOne(ctx context.Context, s repo.Sankalp, sevaDay time.Time) error {
	user, err := m.store.GetUserByID(ctx, s.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	media, err := m.store.PickLeastUsedMedia(ctx)
	if err != nil {
		return err
	}

	families := 0
	if tier, ok := content.TierByCode(s.Tier); ok {
		families = tier.Meals
	}
	if media.FamiliesFed != nil && *media.FamiliesFed > 0 {
		families = *media.FamiliesFed
	}
	date := sevaDay
	if media.SevaDate != nil {
		date = *media.SevaDate
	}
	caption := content.SevaProofCaption(deref(media.TempleName), deref(media.Location), date, families)

	var msgID string
	if media.MediaType == "video" {
		msgID, err = m.sender.Video(ctx, user.Phone, media.MediaURL, caption)
	} else {
		msgID, err = m.sender.Image(ctx, user.Phone, media.MediaURL, caption)
	}
	if err != nil {
		m.metrics.Errors.WithLabelValues("wa_send").Inc()
		return fmt.Errorf("send proof media: %w", err)
	}
	m.logOutbound(ctx, user.ID, media.MediaType, msgID)

	if err := m.store.IncrementMediaUsed(ctx, media.ID); err != nil {
		m.logger.Warn("failed to bump media usage", "error", err, "media_id", media.ID)
	}
	if err := m.store.InsertRitualEvent(ctx, repo.RitualEvent{
		UserID:    user.ID,
		EventType: "seva_proof_sent",
		EventData: map[string]any{"sankalp_id": s.ID, "media_id": media.ID},
	}); err != nil {
		m.logger.Warn("failed to record ritual event", "error", err)
	}
	return nil
}

// RunReminders sends birthday and anniversary wishes for today's date.
func (m *Manager) RunReminders(ctx context.Context) error {
	now := m.now().In(m.loc)
	month, day := int(now.Month()), now.Day()

	birthdays, err := m.store.ListUsersWithDOB(ctx, month, day)
	if err != nil {
		return fmt.Errorf("list birthdays: %w", err)
	}
	for i := range birthdays {
		u := &birthdays[i]
		if err := m.sendText(ctx, u, content.BirthdayWish(deref(u.DisplayName))); err != nil {
			m.logger.Error("birthday wish failed", "error", err, "user_id", u.ID)
		}
	}

	anniversaries, err := m.store.ListUsersWithAnniversary(ctx, month, day)
	if err != nil {
		return fmt.Errorf("list anniversaries: %w", err)
	}
	for i := range anniversaries {
		u := &anniversaries[i]
		if err := m.sendText(ctx, u, content.AnniversaryWish(deref(u.DisplayName))); err != nil {
			m.logger.Error("anniversary wish failed", "error", err, "user_id", u.ID)
		}
	}
	return nil
}
