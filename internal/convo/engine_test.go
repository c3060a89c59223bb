package convo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bot-sankalp/internal/content"
	"bot-sankalp/internal/metrics"
	"bot-sankalp/internal/repo"
	"bot-sankalp/internal/wa"
)

// stubStore implements the subset of repo.Store the engine touches. The
// embedded interface panics on anything unexpected.
type stubStore struct {
	repo.Store

	user     *repo.User
	conv     *repo.Conversation
	sankalps []*repo.Sankalp
	events   []repo.RitualEvent
	messages []repo.MessageRecord
}

func (s *stubStore) GetOrCreateUser(_ context.Context, phone string, _ *string) (*repo.User, error) {
	s.user.Phone = phone
	return s.user, nil
}

func (s *stubStore) WithTx(_ context.Context, fn func(pgx.Tx) error) error {
	return fn(nil)
}

func (s *stubStore) LockUserTx(_ context.Context, _ pgx.Tx, _ string) (*repo.User, error) {
	return s.user, nil
}

func (s *stubStore) SaveUserTx(_ context.Context, _ pgx.Tx, u *repo.User) error {
	s.user = u
	return nil
}

func (s *stubStore) GetConversation(_ context.Context, _ string) (*repo.Conversation, error) {
	return s.conv, nil
}

func (s *stubStore) SaveConversationTx(_ context.Context, _ pgx.Tx, c *repo.Conversation) error {
	s.conv = c
	return nil
}

func (s *stubStore) InsertSankalpTx(_ context.Context, _ pgx.Tx, sk repo.Sankalp) (*repo.Sankalp, error) {
	sk.ID = fmt.Sprintf("sankalp-%d", len(s.sankalps)+1)
	sk.CreatedAt = time.Now()
	s.sankalps = append(s.sankalps, &sk)
	return &sk, nil
}

func (s *stubStore) GetSankalpTx(_ context.Context, _ pgx.Tx, id string) (*repo.Sankalp, error) {
	return s.findSankalp(id)
}

func (s *stubStore) GetSankalpByID(_ context.Context, id string) (*repo.Sankalp, error) {
	return s.findSankalp(id)
}

func (s *stubStore) findSankalp(id string) (*repo.Sankalp, error) {
	for _, sk := range s.sankalps {
		if sk.ID == id {
			return sk, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (s *stubStore) SaveSankalpTx(_ context.Context, _ pgx.Tx, sk *repo.Sankalp) error {
	for i, existing := range s.sankalps {
		if existing.ID == sk.ID {
			s.sankalps[i] = sk
			return nil
		}
	}
	return repo.ErrNotFound
}

func (s *stubStore) ListSankalpsByUser(_ context.Context, _ string, _ int) ([]repo.Sankalp, error) {
	out := make([]repo.Sankalp, 0, len(s.sankalps))
	for _, sk := range s.sankalps {
		out = append(out, *sk)
	}
	return out, nil
}

func (s *stubStore) InsertRitualEvent(_ context.Context, e repo.RitualEvent) error {
	s.events = append(s.events, e)
	return nil
}

func (s *stubStore) InsertMessage(_ context.Context, msg repo.MessageRecord) error {
	s.messages = append(s.messages, msg)
	return nil
}

type sentMsg struct {
	kind string
	body string
}

type fakeSender struct {
	sent []sentMsg
}

func (f *fakeSender) record(kind, body string) (string, error) {
	f.sent = append(f.sent, sentMsg{kind: kind, body: body})
	return fmt.Sprintf("out-%d", len(f.sent)), nil
}

func (f *fakeSender) Text(_ context.Context, _, body string) (string, error) {
	return f.record("text", body)
}

func (f *fakeSender) Buttons(_ context.Context, _, body string, _ []wa.Button) (string, error) {
	return f.record("buttons", body)
}

func (f *fakeSender) List(_ context.Context, _, body, _ string, _ []wa.Section) (string, error) {
	return f.record("list", body)
}

func (f *fakeSender) Template(_ context.Context, _, templateID string, _ []string, _ string) (string, error) {
	return f.record("template", templateID)
}

func (f *fakeSender) Image(_ context.Context, _, _, caption string) (string, error) {
	return f.record("image", caption)
}

func (f *fakeSender) Video(_ context.Context, _, _, caption string) (string, error) {
	return f.record("video", caption)
}

func (f *fakeSender) CTAURL(_ context.Context, _, body, _, _ string) (string, error) {
	return f.record("cta_url", body)
}

type fakeLinker struct {
	fail     bool
	requests []LinkRequest
}

func (f *fakeLinker) CreateLink(_ context.Context, req LinkRequest) (*Link, error) {
	f.requests = append(f.requests, req)
	if f.fail {
		return nil, fmt.Errorf("link api down")
	}
	return &Link{ID: "plink_1", ShortURL: "https://pay.example/abc"}, nil
}

func newTestEngine(t *testing.T, state string) (*Engine, *stubStore, *fakeSender, *fakeLinker) {
	t.Helper()
	store := &stubStore{
		user: &repo.User{
			ID:              "user-1",
			Phone:           "919876543210",
			State:           state,
			DevotionalCycle: 1,
			CycleDay:        1,
		},
		conv: &repo.Conversation{
			ID:      "conv-1",
			UserID:  "user-1",
			Context: map[string]string{},
		},
	}
	sender := &fakeSender{}
	linker := &fakeLinker{}
	logger := slog.New(slog.NewTextHandler(discardWriter{}, nil))
	engine := New(logger, metrics.Registry("test"), store, nil, sender, nil, linker)
	engine.now = func() time.Time {
		return time.Date(2025, 6, 6, 9, 0, 0, 0, time.UTC)
	}
	return engine, store, sender, linker
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func inbound(msgID, text, payload string) wa.Inbound {
	return wa.Inbound{
		MessageID:     msgID,
		From:          "919876543210",
		Text:          text,
		ButtonPayload: payload,
	}
}

func TestRashiSelectionAdvancesState(t *testing.T) {
	engine, store, sender, _ := newTestEngine(t, StateWaitRashi)

	err := engine.HandleInbound(context.Background(), inbound("m1", "మేషం", "RASHI_MESHA"))
	require.NoError(t, err)

	require.NotNil(t, store.user.Rashi)
	assert.Equal(t, "MESHA", *store.user.Rashi)
	assert.Equal(t, StateWaitNakshatra, store.user.State)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "list", sender.sent[0].kind)
}

func TestUnknownInputReprompts(t *testing.T) {
	engine, store, sender, _ := newTestEngine(t, StateWaitRashi)

	err := engine.HandleInbound(context.Background(), inbound("m1", "gibberish", ""))
	require.NoError(t, err)

	assert.Equal(t, StateWaitRashi, store.user.State)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, content.UnknownInputReprompt, sender.sent[0].body)
}

func TestDuplicateInboundSuppressed(t *testing.T) {
	engine, store, sender, _ := newTestEngine(t, StateWaitRashi)
	msgID := "m1"
	store.conv.LastInboundMsgID = &msgID

	err := engine.HandleInbound(context.Background(), inbound("m1", "మేషం", "RASHI_MESHA"))
	require.NoError(t, err)

	assert.Nil(t, store.user.Rashi)
	assert.Equal(t, StateWaitRashi, store.user.State)
	assert.Empty(t, sender.sent)
}

func TestOnboardingCompletionSchedulesDaily(t *testing.T) {
	engine, store, sender, _ := newTestEngine(t, StateWaitDay)
	rashi, deity := "MESHA", "SHIVA"
	store.user.Rashi = &rashi
	store.user.Deity = &deity

	err := engine.HandleInbound(context.Background(), inbound("m1", "శుక్రవారం", "DAY_FRIDAY"))
	require.NoError(t, err)

	u := store.user
	assert.Equal(t, StateDailyPassive, u.State)
	require.NotNil(t, u.AuspiciousDay)
	assert.Equal(t, "FRIDAY", *u.AuspiciousDay)
	assert.Equal(t, 1, u.CycleDay)
	assert.Equal(t, "INITIATION", u.RitualPhase)
	assert.Equal(t, 1, u.DaysSent)
	require.NotNil(t, u.NextDailyMessageAt)
	require.NotNil(t, u.NextNurtureAt)

	base := engine.now().Add(24 * time.Hour)
	assert.WithinDuration(t, base, *u.NextDailyMessageAt, 16*time.Minute)

	// Day-0 message goes out immediately.
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "text", sender.sent[0].kind)

	require.Len(t, store.events, 1)
	assert.Equal(t, "onboarding_completed", store.events[0].EventType)
}

func TestTyagamDeclineTakesFreePath(t *testing.T) {
	engine, store, sender, _ := newTestEngine(t, StateWaitTyagam)
	store.conv.Context[ctxSelectedCategory] = "HEALTH"

	err := engine.HandleInbound(context.Background(), inbound("m1", "", PayloadTyagamNo))
	require.NoError(t, err)

	assert.Equal(t, StateDailyPassive, store.user.State)
	assert.Empty(t, store.sankalps)
	assert.NotContains(t, store.conv.Context, ctxSelectedCategory)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, content.FreePathBlessing, sender.sent[0].body)
	require.Len(t, store.events, 1)
	assert.Equal(t, "free_sankalp", store.events[0].EventType)
}

func TestTierSelectionCreatesSankalpAndLink(t *testing.T) {
	engine, store, sender, linker := newTestEngine(t, StateWaitTier)
	store.conv.Context[ctxSelectedCategory] = "FAMILY"

	err := engine.HandleInbound(context.Background(), inbound("m1", "$30", "TIER_S30"))
	require.NoError(t, err)

	require.Len(t, store.sankalps, 1)
	sk := store.sankalps[0]
	assert.Equal(t, int64(3000), sk.Amount)
	assert.Equal(t, "FAMILY", sk.Category)
	assert.Equal(t, SankalpPaymentPending, sk.Status)
	require.NotNil(t, sk.PaymentShortURL)
	assert.Equal(t, "https://pay.example/abc", *sk.PaymentShortURL)

	assert.Equal(t, StatePaymentLink, store.user.State)
	assert.Equal(t, sk.ID, store.conv.Context[ctxPendingSankalpID])

	require.Len(t, linker.requests, 1)
	assert.Equal(t, int64(3000), linker.requests[0].Amount)

	var kinds []string
	for _, m := range sender.sent {
		kinds = append(kinds, m.kind)
	}
	assert.Contains(t, kinds, "cta_url")
}

func TestLinkFailureReturnsToPassive(t *testing.T) {
	engine, store, sender, linker := newTestEngine(t, StateWaitTier)
	linker.fail = true
	store.conv.Context[ctxSelectedCategory] = "FAMILY"

	err := engine.HandleInbound(context.Background(), inbound("m1", "", "TIER_S15"))
	require.NoError(t, err)

	assert.Equal(t, StateDailyPassive, store.user.State)
	assert.NotContains(t, store.conv.Context, ctxPendingSankalpID)

	var gotFailureNote bool
	for _, m := range sender.sent {
		if strings.Contains(m.body, content.PaymentLinkFailed) {
			gotFailureNote = true
		}
	}
	assert.True(t, gotFailureNote)
}

func TestMenuEscapeClearsSankalpFlow(t *testing.T) {
	engine, store, sender, _ := newTestEngine(t, StateWaitCategory)
	store.conv.Context[ctxSelectedCategory] = "HEALTH"

	err := engine.HandleInbound(context.Background(), inbound("m1", "0", ""))
	require.NoError(t, err)

	assert.Equal(t, StateDailyPassive, store.user.State)
	assert.Empty(t, store.conv.Context)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, content.MainMenuReset, sender.sent[0].body)
}

func TestHistoryCommandListsSankalps(t *testing.T) {
	engine, store, sender, _ := newTestEngine(t, StateDailyPassive)
	store.sankalps = append(store.sankalps, &repo.Sankalp{
		ID:        "sankalp-1",
		UserID:    "user-1",
		Category:  "HEALTH",
		Amount:    3000,
		Status:    SankalpPaid,
		CreatedAt: time.Date(2025, 5, 30, 8, 0, 0, 0, time.UTC),
	})

	err := engine.HandleInbound(context.Background(), inbound("m1", "history", ""))
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].body, "$30")
	assert.Contains(t, sender.sent[0].body, "✅")
}
