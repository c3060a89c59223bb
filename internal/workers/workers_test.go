package workers

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bot-sankalp/internal/convo"
	"bot-sankalp/internal/metrics"
	"bot-sankalp/internal/repo"
	"bot-sankalp/internal/wa"
)

type stubStore struct {
	repo.Store

	users    map[string]*repo.User
	sankalps map[string]*repo.Sankalp
	events   []repo.RitualEvent
}

func newStubStore() *stubStore {
	return &stubStore{
		users:    map[string]*repo.User{},
		sankalps: map[string]*repo.Sankalp{},
	}
}

func (s *stubStore) WithTx(_ context.Context, fn func(pgx.Tx) error) error {
	return fn(nil)
}

func (s *stubStore) LockUserTx(_ context.Context, _ pgx.Tx, id string) (*repo.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, repo.ErrNotFound
}

func (s *stubStore) GetUserByID(_ context.Context, id string) (*repo.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, repo.ErrNotFound
}

func (s *stubStore) SaveUserTx(_ context.Context, _ pgx.Tx, u *repo.User) error {
	s.users[u.ID] = u
	return nil
}

func (s *stubStore) GetSankalpTx(_ context.Context, _ pgx.Tx, id string) (*repo.Sankalp, error) {
	if sk, ok := s.sankalps[id]; ok {
		return sk, nil
	}
	return nil, repo.ErrNotFound
}

func (s *stubStore) SaveSankalpTx(_ context.Context, _ pgx.Tx, sk *repo.Sankalp) error {
	s.sankalps[sk.ID] = sk
	return nil
}

func (s *stubStore) GetVerifiedExecution(_ context.Context, _ string) (*repo.SevaExecution, error) {
	return nil, repo.ErrNotFound
}

func (s *stubStore) InsertRitualEvent(_ context.Context, e repo.RitualEvent) error {
	s.events = append(s.events, e)
	return nil
}

func (s *stubStore) InsertMessage(_ context.Context, _ repo.MessageRecord) error {
	return nil
}

func (s *stubStore) ListUsersForWeeklyPrompt(_ context.Context, _ string, _ time.Time) ([]repo.User, error) {
	var out []repo.User
	for _, u := range s.users {
		out = append(out, *u)
	}
	return out, nil
}

type sentMsg struct {
	kind string
	body string
}

type fakeSender struct {
	wa.Sender

	sent []sentMsg
	fail bool
}

func (f *fakeSender) record(kind, body string) (string, error) {
	if f.fail {
		return "", fmt.Errorf("provider unavailable")
	}
	f.sent = append(f.sent, sentMsg{kind, body})
	return fmt.Sprintf("out-%d", len(f.sent)), nil
}

func (f *fakeSender) Text(_ context.Context, _, body string) (string, error) {
	return f.record("text", body)
}

func (f *fakeSender) List(_ context.Context, _, body, _ string, _ []wa.Section) (string, error) {
	return f.record("list", body)
}

func (f *fakeSender) Image(_ context.Context, _, _, caption string) (string, error) {
	return f.record("image", caption)
}

func (f *fakeSender) Video(_ context.Context, _, _, caption string) (string, error) {
	return f.record("video", caption)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestManager(t *testing.T, now time.Time) (*Manager, *stubStore, *fakeSender) {
	t.Helper()
	store := newStubStore()
	sender := &fakeSender{}
	m := &Manager{
		logger:  slog.New(slog.NewTextHandler(discardWriter{}, nil)),
		metrics: metrics.Registry("test"),
		store:   store,
		sender:  sender,
		loc:     time.UTC,
		now:     func() time.Time { return now },
	}
	return m, store, sender
}

func TestNextAtDaily(t *testing.T) {
	now := time.Date(2025, 6, 6, 9, 0, 0, 0, time.UTC) // Friday
	m, _, _ := newTestManager(t, now)

	next := m.nextAt(11, 0, nil)
	assert.Equal(t, time.Date(2025, 6, 6, 11, 0, 0, 0, time.UTC), next)

	// Already past today's slot: tomorrow.
	next = m.nextAt(7, 30, nil)
	assert.Equal(t, time.Date(2025, 6, 7, 7, 30, 0, 0, time.UTC), next)
}

func TestNextAtWeekly(t *testing.T) {
	now := time.Date(2025, 6, 6, 9, 0, 0, 0, time.UTC) // Friday
	m, _, _ := newTestManager(t, now)

	sunday := time.Sunday
	next := m.nextAt(10, 0, &sunday)
	assert.Equal(t, time.Date(2025, 6, 8, 10, 0, 0, 0, time.UTC), next)
	assert.Equal(t, time.Sunday, next.Weekday())
}

func TestFollowUpDayThreeAdvancesToSeven(t *testing.T) {
	now := time.Date(2025, 6, 6, 9, 0, 0, 0, time.UTC)
	m, store, sender := newTestManager(t, now)

	due := now.Add(-time.Hour)
	store.users["user-1"] = &repo.User{ID: "user-1", Phone: "919876543210"}
	store.sankalps["sankalp-1"] = &repo.Sankalp{
		ID:             "sankalp-1",
		UserID:         "user-1",
		Tier:           "S30",
		Status:         convo.SankalpReceiptSent,
		FollowUpDay:    3,
		NextFollowUpAt: &due,
	}

	require.NoError(t, m.followUpOne(context.Background(), "sankalp-1", now))

	sk := store.sankalps["sankalp-1"]
	assert.Equal(t, 7, sk.FollowUpDay)
	require.NotNil(t, sk.NextFollowUpAt)
	assert.Equal(t, now.Add(dayThreeToSeven), *sk.NextFollowUpAt)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "text", sender.sent[0].kind)
}

func TestFollowUpDaySevenClosesChain(t *testing.T) {
	now := time.Date(2025, 6, 6, 9, 0, 0, 0, time.UTC)
	m, store, sender := newTestManager(t, now)

	due := now.Add(-time.Hour)
	store.users["user-1"] = &repo.User{ID: "user-1", Phone: "919876543210"}
	store.sankalps["sankalp-1"] = &repo.Sankalp{
		ID:             "sankalp-1",
		UserID:         "user-1",
		Tier:           "S30",
		Status:         convo.SankalpReceiptSent,
		FollowUpDay:    7,
		NextFollowUpAt: &due,
	}

	require.NoError(t, m.followUpOne(context.Background(), "sankalp-1", now))

	sk := store.sankalps["sankalp-1"]
	assert.Equal(t, 0, sk.FollowUpDay)
	assert.Nil(t, sk.NextFollowUpAt)
	assert.Equal(t, convo.SankalpClosed, sk.Status)
	require.Len(t, sender.sent, 1)
	// Tier meals feed the day-7 copy when no verified execution exists.
	assert.Contains(t, sender.sent[0].body, "25")
}

func TestWeeklyPromptGatesUnderLock(t *testing.T) {
	now := time.Date(2025, 6, 6, 9, 0, 0, 0, time.UTC)
	m, store, sender := newTestManager(t, now)

	day := "FRIDAY"
	store.users["user-1"] = &repo.User{
		ID:              "user-1",
		Phone:           "919876543210",
		State:           convo.StateDailyPassive,
		CycleDay:        3, // INITIATION
		DevotionalCycle: 1,
		AuspiciousDay:   &day,
	}

	ok, err := m.promptOne(context.Background(), "user-1", now)
	require.NoError(t, err)
	assert.True(t, ok)

	u := store.users["user-1"]
	assert.Equal(t, convo.StateWaitCategory, u.State)
	assert.Equal(t, 1, u.PromptsThisMonth)
	require.NotNil(t, u.LastSankalpPromptAt)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "list", sender.sent[0].kind)
	require.Len(t, store.events, 1)
	assert.Equal(t, "sankalp_prompted", store.events[0].EventType)
}

func TestWeeklyPromptSkipsCappedUser(t *testing.T) {
	now := time.Date(2025, 6, 6, 9, 0, 0, 0, time.UTC)
	m, store, sender := newTestManager(t, now)

	day := "FRIDAY"
	store.users["user-1"] = &repo.User{
		ID:               "user-1",
		Phone:            "919876543210",
		State:            convo.StateDailyPassive,
		CycleDay:         3,
		DevotionalCycle:  1,
		AuspiciousDay:    &day,
		PromptsThisMonth: 2,
	}

	ok, err := m.promptOne(context.Background(), "user-1", now)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, convo.StateDailyPassive, store.users["user-1"].State)
	assert.Empty(t, sender.sent)
}

func TestNurtureSendFailureLeavesScheduleDue(t *testing.T) {
	now := time.Date(2025, 6, 6, 9, 0, 0, 0, time.UTC)
	m, store, sender := newTestManager(t, now)
	sender.fail = true

	dailyDue := now.Add(-time.Hour)
	nurtureDue := now.Add(-time.Minute)
	store.users["user-1"] = &repo.User{
		ID:                 "user-1",
		Phone:              "919876543210",
		State:              convo.StateDailyPassive,
		CycleDay:           9,
		DevotionalCycle:    1,
		NextDailyMessageAt: &dailyDue,
		NextNurtureAt:      &nurtureDue,
	}

	err := m.nurtureOne(context.Background(), "user-1", now)
	require.Error(t, err)

	// The row stays due so the next hourly tick retries the slot.
	u := store.users["user-1"]
	assert.Equal(t, 0, u.DaysSent)
	require.NotNil(t, u.NextDailyMessageAt)
	assert.Equal(t, dailyDue, *u.NextDailyMessageAt)
	require.NotNil(t, u.NextNurtureAt)
	assert.Equal(t, nurtureDue, *u.NextNurtureAt)
	assert.Equal(t, 9, u.CycleDay)
	assert.Equal(t, 0, u.PromptsThisMonth)
	assert.Empty(t, sender.sent)
}

func TestWeeklyPromptSendFailureLeavesUserPassive(t *testing.T) {
	now := time.Date(2025, 6, 6, 9, 0, 0, 0, time.UTC)
	m, store, sender := newTestManager(t, now)
	sender.fail = true

	day := "FRIDAY"
	store.users["user-1"] = &repo.User{
		ID:              "user-1",
		Phone:           "919876543210",
		State:           convo.StateDailyPassive,
		CycleDay:        3,
		DevotionalCycle: 1,
		AuspiciousDay:   &day,
	}

	ok, err := m.promptOne(context.Background(), "user-1", now)
	require.Error(t, err)
	assert.False(t, ok)

	u := store.users["user-1"]
	assert.Equal(t, convo.StateDailyPassive, u.State)
	assert.Equal(t, 0, u.PromptsThisMonth)
	assert.Nil(t, u.LastSankalpPromptAt)
	assert.Empty(t, store.events)
}

func TestNurtureAdvancesCycleAndReleasesCooldown(t *testing.T) {
	now := time.Date(2025, 6, 6, 9, 0, 0, 0, time.UTC)
	m, store, sender := newTestManager(t, now)

	lastSankalp := now.Add(-200 * time.Hour) // past the cooldown window
	nurtureDue := now.Add(-time.Minute)
	store.users["user-1"] = &repo.User{
		ID:              "user-1",
		Phone:           "919876543210",
		State:           convo.StateCooldown,
		CycleDay:        9, // week 2: light blessing
		DevotionalCycle: 1,
		LastSankalpAt:   &lastSankalp,
		NextNurtureAt:   &nurtureDue,
	}

	require.NoError(t, m.nurtureOne(context.Background(), "user-1", now))

	u := store.users["user-1"]
	assert.Equal(t, convo.StateDailyPassive, u.State)
	assert.Equal(t, 10, u.CycleDay)
	require.NotNil(t, u.NextNurtureAt)
	assert.True(t, u.NextNurtureAt.After(now))
	require.Len(t, sender.sent, 1)
}
