package payments

import (
	"context"
	"encoding/json"
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

	user     *repo.User
	sankalps map[string]*repo.Sankalp
	payments []repo.Payment
	ledger   map[string]*repo.SevaLedger
	events   []repo.RitualEvent
}

func newStubStore() *stubStore {
	return &stubStore{
		sankalps: map[string]*repo.Sankalp{},
		ledger:   map[string]*repo.SevaLedger{},
	}
}

func (s *stubStore) WithTx(_ context.Context, fn func(pgx.Tx) error) error {
	return fn(nil)
}

func (s *stubStore) HasPaymentEvent(_ context.Context, eventID string) (bool, error) {
	for _, p := range s.payments {
		if p.ExternalEventID == eventID {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubStore) insertPayment(p repo.Payment) (*repo.Payment, error) {
	for _, existing := range s.payments {
		if existing.ExternalEventID == p.ExternalEventID {
			return nil, repo.ErrDuplicateEvent
		}
	}
	p.ID = fmt.Sprintf("pay-%d", len(s.payments)+1)
	s.payments = append(s.payments, p)
	return &p, nil
}

func (s *stubStore) InsertPaymentTx(_ context.Context, _ pgx.Tx, p repo.Payment) (*repo.Payment, error) {
	return s.insertPayment(p)
}

func (s *stubStore) InsertPayment(_ context.Context, p repo.Payment) (*repo.Payment, error) {
	return s.insertPayment(p)
}

func (s *stubStore) GetSankalpTx(_ context.Context, _ pgx.Tx, id string) (*repo.Sankalp, error) {
	if sk, ok := s.sankalps[id]; ok {
		return sk, nil
	}
	return nil, repo.ErrNotFound
}

func (s *stubStore) GetSankalpByID(_ context.Context, id string) (*repo.Sankalp, error) {
	if sk, ok := s.sankalps[id]; ok {
		return sk, nil
	}
	return nil, repo.ErrNotFound
}

func (s *stubStore) SaveSankalpTx(_ context.Context, _ pgx.Tx, sk *repo.Sankalp) error {
	s.sankalps[sk.ID] = sk
	return nil
}

func (s *stubStore) LockUserTx(_ context.Context, _ pgx.Tx, _ string) (*repo.User, error) {
	return s.user, nil
}

func (s *stubStore) GetUserByID(_ context.Context, _ string) (*repo.User, error) {
	return s.user, nil
}

func (s *stubStore) SaveUserTx(_ context.Context, _ pgx.Tx, u *repo.User) error {
	s.user = u
	return nil
}

func (s *stubStore) InsertSevaLedgerTx(_ context.Context, _ pgx.Tx, l repo.SevaLedger) (*repo.SevaLedger, error) {
	if existing, ok := s.ledger[l.SankalpID]; ok {
		return existing, nil
	}
	l.ID = fmt.Sprintf("ledger-%d", len(s.ledger)+1)
	s.ledger[l.SankalpID] = &l
	return &l, nil
}

func (s *stubStore) InsertRitualEvent(_ context.Context, e repo.RitualEvent) error {
	s.events = append(s.events, e)
	return nil
}

func (s *stubStore) InsertMessage(_ context.Context, _ repo.MessageRecord) error {
	return nil
}

type fakeSender struct {
	wa.Sender

	texts []string
}

func (f *fakeSender) Text(_ context.Context, _, body string) (string, error) {
	f.texts = append(f.texts, body)
	return fmt.Sprintf("out-%d", len(f.texts)), nil
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestResolver(t *testing.T) (*Resolver, *stubStore, *fakeSender) {
	t.Helper()
	store := newStubStore()
	store.user = &repo.User{
		ID:              "user-1",
		Phone:           "919876543210",
		State:           convo.StatePaymentLink,
		DevotionalCycle: 1,
		CycleDay:        24,
		RitualPhase:     "MAHA",
	}
	shortURL := "https://pay.example/abc"
	store.sankalps["sankalp-1"] = &repo.Sankalp{
		ID:              "sankalp-1",
		UserID:          "user-1",
		Category:        "FAMILY",
		Tier:            "S30",
		Amount:          3000,
		Currency:        "USD",
		Status:          convo.SankalpPaymentPending,
		PaymentShortURL: &shortURL,
	}
	sender := &fakeSender{}
	logger := slog.New(slog.NewTextHandler(discardWriter{}, nil))
	resolver := NewResolver(logger, metrics.Registry("test"), store, nil, sender)
	resolver.now = func() time.Time {
		return time.Date(2025, 6, 6, 9, 0, 0, 0, time.UTC)
	}
	return resolver, store, sender
}

func paidEvent(id string, amount int64) Event {
	payload := fmt.Sprintf(`{
		"event": "payment_link.paid",
		"payload": {
			"payment_link": {"entity": {"id": "plink_1", "amount": %d, "notes": {"sankalp_id": "sankalp-1", "user_id": "user-1"}}},
			"payment": {"entity": {"id": "pay_x", "amount": %d, "currency": "USD"}}
		}
	}`, amount, amount)
	return Event{ID: id, Type: "payment_link.paid", Payload: json.RawMessage(payload)}
}

func TestSplitAmountExact(t *testing.T) {
	cases := []struct {
		amount, fee, seva int64
	}{
		{1500, 300, 1200},
		{3000, 600, 2400},
		{5000, 1000, 4000},
		{101, 20, 81},
		{1, 0, 1},
	}
	for _, tc := range cases {
		fee, seva := SplitAmount(tc.amount)
		assert.Equal(t, tc.fee, fee, "amount %d", tc.amount)
		assert.Equal(t, tc.seva, seva, "amount %d", tc.amount)
		assert.Equal(t, tc.amount, fee+seva, "amount %d", tc.amount)
	}
}

func TestPaidEventSettles(t *testing.T) {
	resolver, store, sender := newTestResolver(t)

	err := resolver.HandlePaymentEvent(context.Background(), paidEvent("evt_1", 3000))
	require.NoError(t, err)

	sk := store.sankalps["sankalp-1"]
	assert.Equal(t, convo.SankalpReceiptSent, sk.Status)
	require.NotNil(t, sk.PaidAt)
	assert.Equal(t, firstFollowUpDay, sk.FollowUpDay)
	require.NotNil(t, sk.NextFollowUpAt)
	assert.Equal(t, sk.PaidAt.Add(firstFollowUpWait), *sk.NextFollowUpAt)

	ledger := store.ledger["sankalp-1"]
	require.NotNil(t, ledger)
	assert.Equal(t, int64(600), ledger.PlatformFee)
	assert.Equal(t, int64(2400), ledger.SevaAmount)

	u := store.user
	assert.Equal(t, convo.StateCooldown, u.State)
	assert.Equal(t, 1, u.TotalSankalps)
	assert.Equal(t, 1, u.IntensityScore)
	require.NotNil(t, u.LastSankalpAt)

	// Closure then receipt.
	require.Len(t, sender.texts, 2)
	assert.Contains(t, sender.texts[1], "30.00")

	require.Len(t, store.payments, 1)
	assert.True(t, store.payments[0].SignatureVerified)

	require.Len(t, store.events, 1)
	assert.Equal(t, "sankalp_paid", store.events[0].EventType)
	assert.True(t, store.events[0].Converted)
}

func TestSubscriptionChargeSettles(t *testing.T) {
	resolver, store, sender := newTestResolver(t)
	payload := `{
		"event": "subscription.charged",
		"payload": {
			"subscription": {"entity": {"id": "sub_1", "notes": {"sankalp_id": "sankalp-1", "user_id": "user-1"}}},
			"payment": {"entity": {"id": "pay_y", "amount": 3000, "currency": "USD"}}
		}
	}`
	event := Event{ID: "evt_sub", Type: "subscription.charged", Payload: json.RawMessage(payload)}

	require.NoError(t, resolver.HandlePaymentEvent(context.Background(), event))

	assert.Equal(t, convo.SankalpReceiptSent, store.sankalps["sankalp-1"].Status)
	assert.Equal(t, convo.StateCooldown, store.user.State)
	ledger := store.ledger["sankalp-1"]
	require.NotNil(t, ledger)
	assert.Equal(t, int64(600), ledger.PlatformFee)
	assert.Equal(t, int64(2400), ledger.SevaAmount)
	require.Len(t, sender.texts, 2)
}

func TestDuplicateEventSettlesOnce(t *testing.T) {
	resolver, store, sender := newTestResolver(t)

	require.NoError(t, resolver.HandlePaymentEvent(context.Background(), paidEvent("evt_1", 3000)))
	require.NoError(t, resolver.HandlePaymentEvent(context.Background(), paidEvent("evt_1", 3000)))
	// A distinct event ID for the same settled sankalp is consumed without
	// re-running side effects.
	require.NoError(t, resolver.HandlePaymentEvent(context.Background(), paidEvent("evt_2", 3000)))

	assert.Len(t, store.ledger, 1)
	assert.Equal(t, 1, store.user.TotalSankalps)
	assert.Len(t, sender.texts, 2)
	assert.Len(t, store.payments, 2) // evt_1 and evt_2 both recorded
}

func TestExpiredReturnsUserToPassive(t *testing.T) {
	resolver, store, sender := newTestResolver(t)
	payload := `{
		"event": "payment_link.expired",
		"payload": {
			"payment_link": {"entity": {"id": "plink_1", "amount": 3000, "notes": {"sankalp_id": "sankalp-1"}}}
		}
	}`
	event := Event{ID: "evt_exp", Type: "payment_link.expired", Payload: json.RawMessage(payload)}

	require.NoError(t, resolver.HandlePaymentEvent(context.Background(), event))

	assert.Equal(t, convo.SankalpExpired, store.sankalps["sankalp-1"].Status)
	assert.Equal(t, convo.StateDailyPassive, store.user.State)
	require.Len(t, sender.texts, 1)
}

func TestExpiredAfterPaidIsNoOp(t *testing.T) {
	resolver, store, _ := newTestResolver(t)
	require.NoError(t, resolver.HandlePaymentEvent(context.Background(), paidEvent("evt_1", 3000)))

	payload := `{
		"event": "payment_link.expired",
		"payload": {
			"payment_link": {"entity": {"id": "plink_1", "amount": 3000, "notes": {"sankalp_id": "sankalp-1"}}}
		}
	}`
	event := Event{ID: "evt_exp", Type: "payment_link.expired", Payload: json.RawMessage(payload)}
	require.NoError(t, resolver.HandlePaymentEvent(context.Background(), event))

	assert.Equal(t, convo.SankalpReceiptSent, store.sankalps["sankalp-1"].Status)
	assert.Equal(t, convo.StateCooldown, store.user.State)
}

func TestFailedKeepsLinkLive(t *testing.T) {
	resolver, store, sender := newTestResolver(t)
	payload := `{
		"event": "payment.failed",
		"payload": {
			"payment": {"entity": {"id": "pay_x", "amount": 3000, "currency": "USD", "notes": {"sankalp_id": "sankalp-1"}}}
		}
	}`
	event := Event{ID: "evt_fail", Type: "payment.failed", Payload: json.RawMessage(payload)}

	require.NoError(t, resolver.HandlePaymentEvent(context.Background(), event))

	assert.Equal(t, convo.SankalpPaymentPending, store.sankalps["sankalp-1"].Status)
	assert.Equal(t, convo.StatePaymentLink, store.user.State)
	require.Len(t, sender.texts, 1)
	assert.Contains(t, sender.texts[0], "https://pay.example/abc")
}
