package workers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"bot-sankalp/internal/content"
	"bot-sankalp/internal/convo"
	"bot-sankalp/internal/repo"
	"bot-sankalp/internal/ritual"
	"bot-sankalp/internal/wa"
)

// RunWeeklyPrompt opens the sankalp flow for every user whose auspicious
// day is today and who clears the eligibility gates. Eligibility is
// re-checked under the row lock; the list query only narrows the candidate
// set.
func (m *Manager) RunWeeklyPrompt(ctx context.Context) error {
	now := m.now().In(m.loc)
	weekday := strings.ToUpper(now.Weekday().String())
	cutoff := now.Add(-ritual.CooldownWindow)

	users, err := m.store.ListUsersForWeeklyPrompt(ctx, weekday, cutoff)
	if err != nil {
		return fmt.Errorf("list weekly prompt users: %w", err)
	}

	prompted := 0
	for _, u := range users {
		ok, err := m.promptOne(ctx, u.ID, now)
		if err != nil {
			m.logger.Error("weekly prompt failed", "error", err, "user_id", u.ID)
			m.metrics.Errors.WithLabelValues("worker_weekly").Inc()
			continue
		}
		if ok {
			prompted++
		}
	}
	m.logger.Info("weekly prompt run done", "candidates", len(users), "prompted", prompted)
	return nil
}

func (m *Manager) promptOne(ctx context.Context, userID string, now time.Time) (bool, error) {
	var user *repo.User
	var skippedReason string
	err := m.store.WithTx(ctx, func(tx pgx.Tx) error {
		u, err := m.store.LockUserTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		if u.State != convo.StateDailyPassive {
			skippedReason = "not passive"
			return nil
		}
		profile := profileOf(u)
		if ritual.InCooldown(profile, now) {
			skippedReason = ritual.ReasonInCooldown
			return nil
		}
		eligible, reason := ritual.EligibleForSankalp(profile, now)
		if !eligible {
			skippedReason = reason
			return nil
		}
		user = u
		return nil
	})
	if err != nil {
		return false, err
	}
	if user == nil {
		if skippedReason != "" {
			m.logger.Debug("weekly prompt skipped", "user_id", userID, "reason", skippedReason)
		}
		return false, nil
	}

	body := content.CategoryPrompt(deref(user.DisplayName))
	rows := make([]wa.Row, 0, len(content.Categories))
	for _, c := range content.Categories {
		rows = append(rows, wa.Row{ID: "CAT_" + c.Code, Title: c.Telugu})
	}
	msgID, err := m.sender.List(ctx, user.Phone, body, "ఎంచుకోండి", []wa.Section{{Rows: rows}})
	if err != nil {
		m.metrics.Errors.WithLabelValues("wa_send").Inc()
		// No state was committed; the user stays passive and eligible for
		// the next run.
		return false, fmt.Errorf("send category prompt: %w", err)
	}
	m.logOutbound(ctx, user.ID, "list", msgID)

	// Open the flow only after delivery, re-checking under the lock so a
	// concurrent run cannot double-count the prompt.
	opened := false
	err = m.store.WithTx(ctx, func(tx pgx.Tx) error {
		u, err := m.store.LockUserTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		if u.State != convo.StateDailyPassive {
			return nil
		}
		u.State = convo.StateWaitCategory
		u.LastSankalpPromptAt = &now
		u.PromptsThisMonth++
		if err := m.store.SaveUserTx(ctx, tx, u); err != nil {
			return fmt.Errorf("save user: %w", err)
		}
		user = u
		opened = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if !opened {
		return false, nil
	}

	phase := user.RitualPhase
	if err := m.store.InsertRitualEvent(ctx, repo.RitualEvent{
		UserID:    user.ID,
		EventType: "sankalp_prompted",
		Phase:     &phase,
	}); err != nil {
		m.logger.Warn("failed to record ritual event", "error", err)
	}
	return true, nil
}

// RunWeeklyImpact sends the Sunday community scoreboard, skipping entirely
// on a zero-impact week.
func (m *Manager) RunWeeklyImpact(ctx context.Context) error {
	totals, err := m.impact.Totals(ctx)
	if err != nil {
		return fmt.Errorf("load impact totals: %w", err)
	}
	if totals.WeekMeals == 0 {
		m.logger.Info("weekly impact skipped, no meals this week")
		return nil
	}

	users, err := m.store.ListUsersByStates(ctx, []string{convo.StateDailyPassive, convo.StateCooldown})
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	broadcast := content.WeeklyImpactBroadcast(totals.WeekMeals, totals.LifetimeMeals, totals.ActiveDevotees)
	for i := range users {
		u := &users[i]
		if err := m.sendText(ctx, u, broadcast); err != nil {
			m.logger.Error("impact broadcast send failed", "error", err, "user_id", u.ID)
			continue
		}
		meals, err := m.impact.UserMeals(ctx, u.ID)
		if err != nil {
			m.logger.Warn("failed to load personal impact", "error", err, "user_id", u.ID)
			continue
		}
		if meals > 0 {
			if err := m.sendText(ctx, u, content.WeeklyImpactPersonal(meals, u.DevotionalCycle)); err != nil {
				m.logger.Error("personal impact send failed", "error", err, "user_id", u.ID)
			}
		}
	}
	m.logger.Info("weekly impact broadcast done", "users", len(users), "week_meals", totals.WeekMeals)
	return nil
}

// RunMonthlyReset zeroes prompt counters once per calendar month. The
// conditional update keeps reruns within the month harmless.
func (m *Manager) RunMonthlyReset(ctx context.Context) error {
	now := m.now().In(m.loc)
	yyyymm := now.Year()*100 + int(now.Month())
	updated, err := m.store.ResetMonthlyPromptCounts(ctx, yyyymm)
	if err != nil {
		return fmt.Errorf("reset monthly prompt counts: %w", err)
	}
	if updated > 0 {
		m.logger.Info("monthly prompt counters reset", "month", yyyymm, "users", updated)
	}
	return nil
}
