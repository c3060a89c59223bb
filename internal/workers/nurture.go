package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"bot-sankalp/internal/content"
	"bot-sankalp/internal/convo"
	"bot-sankalp/internal/llm"
	"bot-sankalp/internal/repo"
	"bot-sankalp/internal/ritual"
)

const dueBatchSize = 500

func profileOf(u *repo.User) ritual.Profile {
	return ritual.Profile{
		CycleDay:         u.CycleDay,
		DevotionalCycle:  u.DevotionalCycle,
		IntensityScore:   u.IntensityScore,
		PromptsThisMonth: u.PromptsThisMonth,
		LastPromptAt:     u.LastSankalpPromptAt,
		LastSankalpAt:    u.LastSankalpAt,
		TotalSankalps:    u.TotalSankalps,
	}
}

// RunNurture drives the hourly tick: due daily messages, due nurture
// content with cycle advancement, and cooldown release. The schedule
// advances only after a successful send, so a transport failure leaves
// the row due and the next tick retries it.
func (m *Manager) RunNurture(ctx context.Context) error {
	now := m.now()
	users, err := m.store.ListUsersDue(ctx, now, dueBatchSize)
	if err != nil {
		return fmt.Errorf("list due users: %w", err)
	}

	for _, u := range users {
		if err := m.nurtureOne(ctx, u.ID, now); err != nil {
			m.logger.Error("nurture tick failed", "error", err, "user_id", u.ID)
			m.metrics.Errors.WithLabelValues("worker_nurture").Inc()
		}
	}
	return nil
}

func (m *Manager) nurtureOne(ctx context.Context, userID string, now time.Time) error {
	var (
		user        *repo.User
		dailyDue    bool
		nurtureDue  bool
		nurtureType ritual.ContentType
		intensity   ritual.Intensity
	)
	err := m.store.WithTx(ctx, func(tx pgx.Tx) error {
		u, err := m.store.LockUserTx(ctx, tx, userID)
		if err != nil {
			return err
		}

		if u.State == convo.StateCooldown && !ritual.InCooldown(profileOf(u), now) {
			u.State = convo.StateDailyPassive
			if err := m.store.SaveUserTx(ctx, tx, u); err != nil {
				return fmt.Errorf("save user: %w", err)
			}
		}

		if u.NextDailyMessageAt != nil && !u.NextDailyMessageAt.After(now) {
			dailyDue = true
		}
		if u.NextNurtureAt != nil && !u.NextNurtureAt.After(now) {
			nurtureDue = true
			profile := profileOf(u)
			nurtureType = ritual.NurtureContent(profile, now)
			intensity = ritual.IntensityFor(profile, now)
		}
		user = u
		return nil
	})
	if err != nil {
		return err
	}

	if dailyDue {
		if err := m.sendDailyMessage(ctx, user); err != nil {
			// Nothing delivered yet; the row stays due and the next tick
			// retries the whole slot.
			return err
		}
	}

	nurtureDone, prompted := false, false
	var nurtureErr error
	if nurtureDue {
		switch nurtureType {
		case ritual.ContentLightBlessing:
			nurtureErr = m.sendText(ctx, user, content.NurtureLightBlessing)
		case ritual.ContentSilentWisdom:
			nurtureErr = m.sendText(ctx, user, content.NurtureSilentWisdom)
		case ritual.ContentFullSankalp, ritual.ContentMahaSankalp:
			nurtureErr = m.sendText(ctx, user, content.SankalpNudge(string(intensity)))
			if nurtureErr == nil {
				prompted = true
				phase := user.RitualPhase
				level := string(intensity)
				if err := m.store.InsertRitualEvent(ctx, repo.RitualEvent{
					UserID:    user.ID,
					EventType: "nurture_prompt",
					Phase:     &phase,
					Intensity: &level,
				}); err != nil {
					m.logger.Warn("failed to record ritual event", "error", err)
				}
			}
		}
		// ContentSkip is a delivered no-op: the cycle still moves.
		nurtureDone = nurtureErr == nil
	}

	if err := m.advanceSchedule(ctx, userID, now, dailyDue, nurtureDone, prompted); err != nil {
		return err
	}
	return nurtureErr
}

// advanceSchedule commits the next due timestamps only for the slots that
// were actually delivered this tick.
func (m *Manager) advanceSchedule(ctx context.Context, userID string, now time.Time, dailySent, nurtureDone, prompted bool) error {
	if !dailySent && !nurtureDone {
		return nil
	}
	return m.store.WithTx(ctx, func(tx pgx.Tx) error {
		u, err := m.store.LockUserTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		if dailySent {
			u.DaysSent++
			next := ritual.JitterAround(now.Add(24 * time.Hour))
			u.NextDailyMessageAt = &next
		}
		if nurtureDone {
			if prompted {
				u.LastSankalpPromptAt = &now
				u.PromptsThisMonth++
			}
			day, cycle, phase := ritual.AdvanceCycleDay(u.CycleDay, u.DevotionalCycle)
			u.CycleDay, u.DevotionalCycle, u.RitualPhase = day, cycle, string(phase)
			next := ritual.JitterAround(now.Add(24 * time.Hour))
			u.NextNurtureAt = &next
		}
		if err := m.store.SaveUserTx(ctx, tx, u); err != nil {
			return fmt.Errorf("save user: %w", err)
		}
		return nil
	})
}

func (m *Manager) sendDailyMessage(ctx context.Context, user *repo.User) error {
	rashi := deref(user.Rashi)
	deity := deref(user.Deity)
	fallback := content.DailyHoroscopeFallback(rashi, deity)
	body := fallback
	if m.llm != nil {
		body = m.llm.GenerateOrFallback(ctx, llm.Request{
			System:      "You write short, warm Telugu daily devotional horoscopes. Plain text, under 400 characters.",
			User:        fmt.Sprintf("Rashi: %s. Preferred deity: %s. Day %d of their journey. Write today's message.", content.OptionName(content.Rashis, rashi), content.OptionName(content.Deities, deity), user.DaysSent),
			MaxTokens:   300,
			Temperature: 0.8,
		}, fallback)
	}
	return m.sendText(ctx, user, body)
}

// RunDailyBroadcast pushes today's message to every passive user now,
// regardless of schedule. Admin-triggered.
func (m *Manager) RunDailyBroadcast(ctx context.Context) error {
	users, err := m.store.ListUsersByStates(ctx, []string{convo.StateDailyPassive, convo.StateCooldown})
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	for i := range users {
		if err := m.sendDailyMessage(ctx, &users[i]); err != nil {
			m.logger.Error("daily broadcast send failed", "error", err, "user_id", users[i].ID)
		}
	}
	m.logger.Info("daily broadcast done", "users", len(users))
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
