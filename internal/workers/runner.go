// Package workers runs the scheduled background jobs: daily devotional
// messages, nurture ticks, weekly sankalp prompts, payment follow-ups,
// proof-of-seva delivery, the weekly impact broadcast, and housekeeping.
// Every job is driven by persisted due timestamps that advance only after
// a successful send, so a failed delivery stays due and is retried on the
// next tick.
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"bot-sankalp/internal/cache"
	"bot-sankalp/internal/impact"
	"bot-sankalp/internal/llm"
	"bot-sankalp/internal/metrics"
	"bot-sankalp/internal/repo"
	"bot-sankalp/internal/wa"
)

// Manager owns the worker goroutines.
type Manager struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	store   repo.Store
	cache   *cache.Redis
	sender  wa.Sender
	llm     *llm.Client
	impact  *impact.Service
	loc     *time.Location
	now     func() time.Time
}

// New creates a worker manager. timezone drives the clock-time schedules.
func New(logger *slog.Logger, metricRegistry *metrics.Metrics, store repo.Store, redis *cache.Redis, sender wa.Sender, llmClient *llm.Client, impactSvc *impact.Service, timezone string) *Manager {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		logger.Warn("unknown timezone, falling back to UTC", "timezone", timezone, "error", err)
		loc = time.UTC
	}
	return &Manager{
		logger:  logger.With("component", "workers"),
		metrics: metricRegistry,
		store:   store,
		cache:   redis,
		sender:  sender,
		llm:     llmClient,
		impact:  impactSvc,
		loc:     loc,
		now:     time.Now,
	}
}

// Start launches all worker loops. They stop when ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	go m.loopEvery(ctx, "nurture", time.Hour, m.RunNurture)
	go m.loopEvery(ctx, "follow_up", time.Hour, m.RunFollowUps)
	go m.loopDaily(ctx, "weekly_prompt", 7, 30, m.RunWeeklyPrompt)
	go m.loopDaily(ctx, "seva_proof", 11, 0, m.RunSevaProof)
	go m.loopDaily(ctx, "reminders", 8, 0, m.RunReminders)
	go m.loopDaily(ctx, "monthly_reset", 0, 10, m.RunMonthlyReset)
	go m.loopWeekly(ctx, "weekly_impact", time.Sunday, 10, 0, m.RunWeeklyImpact)
	m.logger.Info("workers started", "timezone", m.loc.String())
}

func (m *Manager) loopEvery(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.run(ctx, name, fn)
		}
	}
}

func (m *Manager) loopDaily(ctx context.Context, name string, hour, minute int, fn func(context.Context) error) {
	for {
		wait := time.Until(m.nextAt(hour, minute, nil))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
			m.run(ctx, name, fn)
		}
	}
}

func (m *Manager) loopWeekly(ctx context.Context, name string, weekday time.Weekday, hour, minute int, fn func(context.Context) error) {
	for {
		wait := time.Until(m.nextAt(hour, minute, &weekday))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
			m.run(ctx, name, fn)
		}
	}
}

// nextAt returns the next wall-clock occurrence of hour:minute in the
// configured timezone, optionally constrained to a weekday.
func (m *Manager) nextAt(hour, minute int, weekday *time.Weekday) time.Time {
	now := m.now().In(m.loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, m.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	if weekday != nil {
		for next.Weekday() != *weekday {
			next = next.AddDate(0, 0, 1)
		}
	}
	return next
}

func (m *Manager) run(ctx context.Context, name string, fn func(context.Context) error) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error("worker panicked", "worker", name, "panic", rec, "stack", string(debug.Stack()))
			m.metrics.WorkerRuns.WithLabelValues(name, "panic").Inc()
		}
	}()

	start := m.now()
	err := fn(ctx)
	duration := time.Since(start).Seconds()
	m.metrics.WorkerDuration.WithLabelValues(name).Observe(duration)
	if err != nil {
		m.logger.Error("worker run failed", "worker", name, "error", err)
		m.metrics.WorkerRuns.WithLabelValues(name, "error").Inc()
		return
	}
	m.metrics.WorkerRuns.WithLabelValues(name, "ok").Inc()
}

// sendText sends and logs one outbound text.
func (m *Manager) sendText(ctx context.Context, user *repo.User, body string) error {
	msgID, err := m.sender.Text(ctx, user.Phone, body)
	if err != nil {
		m.metrics.Errors.WithLabelValues("wa_send").Inc()
		return fmt.Errorf("send text to %s: %w", user.Phone, err)
	}
	m.logOutbound(ctx, user.ID, "text", msgID)
	return nil
}

func (m *Manager) logOutbound(ctx context.Context, userID, kind, msgID string) {
	if err := m.store.InsertMessage(ctx, repo.MessageRecord{
		UserID:        userID,
		Direction:     "outbound",
		Type:          kind,
		ProviderMsgID: &msgID,
	}); err != nil {
		m.logger.Warn("failed to log outbound message", "error", err)
	}
}
