package wa

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"bot-sankalp/internal/metrics"
)

// InboundProcessor handles a normalized inbound message.
type InboundProcessor interface {
	HandleInbound(ctx context.Context, in Inbound) error
}

// WebhookHandler answers the transport verification handshake and forwards
// inbound messages to the processor.
type WebhookHandler struct {
	logger      *slog.Logger
	metrics     *metrics.Metrics
	verifyToken string
	processor   InboundProcessor
}

// NewWebhookHandler creates a new inbound webhook handler.
func NewWebhookHandler(logger *slog.Logger, metricRegistry *metrics.Metrics, verifyToken string, processor InboundProcessor) *WebhookHandler {
	return &WebhookHandler{
		logger:      logger.With("component", "wa_webhook"),
		metrics:     metricRegistry,
		verifyToken: verifyToken,
		processor:   processor,
	}
}

// ServeHTTP satisfies http.Handler.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleVerification(w, r)
	case http.MethodPost:
		h.handleEvent(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *WebhookHandler) handleVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode != "subscribe" || token != h.verifyToken {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if parsed, err := strconv.Atoi(challenge); err == nil {
		_, _ = w.Write([]byte(strconv.Itoa(parsed)))
		return
	}
	_, _ = w.Write([]byte(challenge))
}

func (h *WebhookHandler) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.metrics.Errors.WithLabelValues("wa_webhook").Inc()
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	inbound, err := parseAnyProvider(body)
	if err != nil {
		h.logger.Warn("unparseable inbound payload", "error", err)
		h.metrics.Errors.WithLabelValues("wa_webhook").Inc()
	}

	for _, in := range inbound {
		h.metrics.WAIncomingMessages.WithLabelValues(messageKind(in)).Inc()
		if h.processor == nil {
			continue
		}
		if err := h.processor.HandleInbound(r.Context(), in); err != nil {
			// Internal failures never surface to the provider; the next
			// inbound re-drives the handler.
			h.logger.Error("failed processing inbound", "error", err, "msg_id", in.MessageID)
			h.metrics.Errors.WithLabelValues("wa_webhook_process").Inc()
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func parseAnyProvider(body []byte) ([]Inbound, error) {
	if bytes.Contains(body, []byte(`"whatsapp_business_account"`)) || bytes.Contains(body, []byte(`"entry"`)) {
		return ParseCloudPayload(body)
	}
	in, err := ParseGupshupPayload(body)
	if err != nil {
		return nil, err
	}
	if in == nil {
		return nil, nil
	}
	return []Inbound{*in}, nil
}

func messageKind(in Inbound) string {
	if in.ButtonPayload != "" {
		return "button"
	}
	return "text"
}
