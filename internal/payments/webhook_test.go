package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bot-sankalp/internal/metrics"
)

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"payment_link.paid"}`)
	secret := "whsec_test"

	assert.True(t, VerifySignature(body, sign(body, secret), []byte(secret)))
	assert.False(t, VerifySignature(body, sign(body, "wrong"), []byte(secret)))
	assert.False(t, VerifySignature(body, "", []byte(secret)))
	assert.False(t, VerifySignature(body, sign(body, secret), nil))
}

type recordingProcessor struct {
	events []Event
	err    error
}

func (p *recordingProcessor) HandlePaymentEvent(_ context.Context, event Event) error {
	p.events = append(p.events, event)
	return p.err
}

func newWebhook(processor EventProcessor) *WebhookHandler {
	logger := slog.New(slog.NewTextHandler(discardWriter{}, nil))
	return NewWebhookHandler(logger, metrics.Registry("test"), "whsec_test", processor)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	handler := newWebhook(&recordingProcessor{})
	body := []byte(`{"event":"payment_link.paid"}`)

	req := httptest.NewRequest(http.MethodPost, "/webhook/razorpay", bytes.NewReader(body))
	req.Header.Set("X-Razorpay-Signature", "deadbeef")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookAcceptsValidSignature(t *testing.T) {
	processor := &recordingProcessor{}
	handler := newWebhook(processor)
	body := []byte(`{"event":"payment_link.paid"}`)

	req := httptest.NewRequest(http.MethodPost, "/webhook/razorpay", bytes.NewReader(body))
	req.Header.Set("X-Razorpay-Signature", sign(body, "whsec_test"))
	req.Header.Set("X-Razorpay-Event-Id", "evt_123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, processor.events, 1)
	assert.Equal(t, "evt_123", processor.events[0].ID)
	assert.Equal(t, "payment_link.paid", processor.events[0].Type)
}

func TestWebhookPrefersBodyEventID(t *testing.T) {
	processor := &recordingProcessor{}
	handler := newWebhook(processor)
	// The body field keys deduplication; delivery headers may differ across
	// retries of the same logical event.
	body := []byte(`{"event":"payment_link.paid","event_id":"evt_body"}`)

	req := httptest.NewRequest(http.MethodPost, "/webhook/razorpay", bytes.NewReader(body))
	req.Header.Set("X-Razorpay-Signature", sign(body, "whsec_test"))
	req.Header.Set("X-Razorpay-Event-Id", "evt_header")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, processor.events, 1)
	assert.Equal(t, "evt_body", processor.events[0].ID)
}

func TestWebhookAnswers200OnProcessorError(t *testing.T) {
	processor := &recordingProcessor{err: fmt.Errorf("db down")}
	handler := newWebhook(processor)
	body := []byte(`{"event":"payment_link.paid"}`)

	req := httptest.NewRequest(http.MethodPost, "/webhook/razorpay", bytes.NewReader(body))
	req.Header.Set("X-Razorpay-Signature", sign(body, "whsec_test"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookDerivesEventIDWithoutHeader(t *testing.T) {
	processor := &recordingProcessor{}
	handler := newWebhook(processor)
	body := []byte(`{"event":"payment.captured"}`)

	req := httptest.NewRequest(http.MethodPost, "/webhook/razorpay", bytes.NewReader(body))
	req.Header.Set("X-Razorpay-Signature", sign(body, "whsec_test"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, processor.events, 1)
	assert.Contains(t, processor.events[0].ID, "sha256:")
}

func TestWebhookRejectsGet(t *testing.T) {
	handler := newWebhook(&recordingProcessor{})
	req := httptest.NewRequest(http.MethodGet, "/webhook/razorpay", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
