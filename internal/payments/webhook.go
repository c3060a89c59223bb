package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"bot-sankalp/internal/metrics"
)

// Event is a verified webhook delivery.
type Event struct {
	ID         string
	Type       string
	Payload    json.RawMessage
	ReceivedAt time.Time
}

// EventProcessor handles verified payment events.
type EventProcessor interface {
	HandlePaymentEvent(ctx context.Context, event Event) error
}

// WebhookHandler verifies the webhook signature and forwards events. A
// processing failure still answers 200: the processor records the event
// durably before surfacing errors, so provider retries stay harmless.
type WebhookHandler struct {
	logger    *slog.Logger
	metrics   *metrics.Metrics
	secret    []byte
	processor EventProcessor
}

// NewWebhookHandler creates a new payment webhook handler.
func NewWebhookHandler(logger *slog.Logger, metricRegistry *metrics.Metrics, webhookSecret string, processor EventProcessor) *WebhookHandler {
	return &WebhookHandler{
		logger:    logger.With("component", "razorpay_webhook"),
		metrics:   metricRegistry,
		secret:    []byte(webhookSecret),
		processor: processor,
	}
}

// ServeHTTP satisfies http.Handler.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.metrics.Errors.WithLabelValues("razorpay_webhook").Inc()
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if !VerifySignature(body, r.Header.Get("X-Razorpay-Signature"), h.secret) {
		h.metrics.Errors.WithLabelValues("razorpay_webhook_auth").Inc()
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	event := Event{
		ID:         eventID(body, r.Header.Get("X-Razorpay-Event-Id")),
		Type:       eventType(body),
		Payload:    body,
		ReceivedAt: time.Now(),
	}

	if h.processor != nil {
		if err := h.processor.HandlePaymentEvent(r.Context(), event); err != nil {
			h.logger.Error("failed processing payment event", "error", err, "event", event.Type, "event_id", event.ID)
			h.metrics.Errors.WithLabelValues("razorpay_webhook_process").Inc()
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// VerifySignature checks the hex HMAC-SHA256 of the raw body in constant
// time.
func VerifySignature(body []byte, signature string, secret []byte) bool {
	if signature == "" || len(secret) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// eventID prefers the body event_id so two deliveries of the same logical
// event dedupe under one key even when the raw bytes differ, then the
// delivery header, then a digest of the raw body.
func eventID(body []byte, header string) string {
	var generic struct {
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(body, &generic); err == nil && generic.EventID != "" {
		return generic.EventID
	}
	if header != "" {
		return header
	}
	sum := sha256.Sum256(body)
	return "sha256:" + hex.EncodeToString(sum[:16])
}

func eventType(body []byte) string {
	var generic struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(body, &generic); err == nil && generic.Event != "" {
		return generic.Event
	}
	return "unknown"
}
