package wa

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bot-sankalp/internal/metrics"
)

// GupshupSender sends messages through the Gupshup form API.
type GupshupSender struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	http    *http.Client
	baseURL string
	apiKey  string
	source  string
}

// GupshupConfig holds Gupshup sender configuration.
type GupshupConfig struct {
	BaseURL string
	APIKey  string
	Source  string
	Timeout time.Duration
}

// NewGupshupSender creates a Gupshup sender.
func NewGupshupSender(cfg GupshupConfig, logger *slog.Logger, metricRegistry *metrics.Metrics) *GupshupSender {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.gupshup.io/wa/api/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GupshupSender{
		logger:  logger.With("component", "wa_gupshup"),
		metrics: metricRegistry,
		http:    &http.Client{Timeout: timeout},
		baseURL: base,
		apiKey:  cfg.APIKey,
		source:  cfg.Source,
	}
}

// Text sends a plain text message.
func (s *GupshupSender) Text(ctx context.Context, phone, body string) (string, error) {
	return s.send(ctx, phone, "text", map[string]any{"type": "text", "text": body})
}

// Buttons sends a quick-reply message (max 3 options).
func (s *GupshupSender) Buttons(ctx context.Context, phone, body string, buttons []Button) (string, error) {
	options := make([]map[string]string, 0, maxButtons)
	for _, b := range clampButtons(buttons) {
		options = append(options, map[string]string{"type": "text", "title": b.Title, "postbackText": b.ID})
	}
	msg := map[string]any{
		"type":    "quick_reply",
		"content": map[string]any{"type": "text", "text": body},
		"options": options,
	}
	return s.send(ctx, phone, "buttons", msg)
}

// List sends a list message.
func (s *GupshupSender) List(ctx context.Context, phone, body, buttonLabel string, sections []Section) (string, error) {
	items := make([]map[string]any, 0, len(sections))
	for _, sec := range sections {
		rows := make([]map[string]string, 0, len(sec.Rows))
		for _, row := range sec.Rows {
			rows = append(rows, map[string]string{
				"title":        row.Title,
				"description":  row.Description,
				"postbackText": row.ID,
			})
		}
		items = append(items, map[string]any{"title": sec.Title, "options": rows})
	}
	msg := map[string]any{
		"type":  "list",
		"title": body,
		"body":  body,
		"globalButtons": []map[string]string{
			{"type": "text", "title": buttonLabel},
		},
		"items": items,
	}
	return s.send(ctx, phone, "list", msg)
}

// Template sends an approved template by ID with positional params.
func (s *GupshupSender) Template(ctx context.Context, phone, templateID string, params []string, headerMediaURL string) (string, error) {
	form := url.Values{}
	form.Set("source", s.source)
	form.Set("destination", phone)
	tmpl := map[string]any{"id": templateID, "params": params}
	data, err := json.Marshal(tmpl)
	if err != nil {
		return "", fmt.Errorf("marshal template: %w", err)
	}
	form.Set("template", string(data))
	if headerMediaURL != "" {
		media, err := json.Marshal(map[string]any{"type": "image", "image": map[string]string{"link": headerMediaURL}})
		if err != nil {
			return "", fmt.Errorf("marshal template media: %w", err)
		}
		form.Set("message", string(media))
	}
	return s.post(ctx, "/template/msg", "template", form)
}

// Image sends an image by URL.
func (s *GupshupSender) Image(ctx context.Context, phone, mediaURL, caption string) (string, error) {
	return s.send(ctx, phone, "image", map[string]any{
		"type":        "image",
		"originalUrl": mediaURL,
		"previewUrl":  mediaURL,
		"caption":     caption,
	})
}

// Video sends a video by URL.
func (s *GupshupSender) Video(ctx context.Context, phone, mediaURL, caption string) (string, error) {
	return s.send(ctx, phone, "video", map[string]any{
		"type":    "video",
		"url":     mediaURL,
		"caption": caption,
	})
}

// CTAURL has no dedicated Gupshup shape; the URL rides in the text body.
func (s *GupshupSender) CTAURL(ctx context.Context, phone, body, display, targetURL string) (string, error) {
	return s.Text(ctx, phone, body+"\n\n"+targetURL)
}

func (s *GupshupSender) send(ctx context.Context, phone, msgType string, message map[string]any) (string, error) {
	data, err := json.Marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal %s message: %w", msgType, err)
	}
	form := url.Values{}
	form.Set("channel", "whatsapp")
	form.Set("source", s.source)
	form.Set("destination", phone)
	form.Set("message", string(data))
	return s.post(ctx, "/msg", msgType, form)
}

func (s *GupshupSender) post(ctx context.Context, endpoint, msgType string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("apikey", s.apiKey)

	res, err := s.http.Do(req)
	if err != nil {
		s.metrics.Errors.WithLabelValues("wa_gupshup").Inc()
		return "", fmt.Errorf("send %s: %w", msgType, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode >= 400 {
		s.metrics.Errors.WithLabelValues("wa_gupshup").Inc()
		return "", fmt.Errorf("send %s: status=%d body=%s", msgType, res.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		Status    string `json:"status"`
		MessageID string `json:"messageId"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	s.metrics.WAOutgoingMessages.WithLabelValues(msgType).Inc()
	return decoded.MessageID, nil
}

var _ Sender = (*GupshupSender)(nil)
