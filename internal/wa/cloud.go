package wa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"bot-sankalp/internal/metrics"
)

const defaultTemplateLanguage = "te"

// CloudSender sends messages through the cloud graph API with bearer auth.
type CloudSender struct {
	logger        *slog.Logger
	metrics       *metrics.Metrics
	http          *http.Client
	baseURL       string
	accessToken   string
	phoneNumberID string
}

// CloudConfig holds cloud API sender configuration.
type CloudConfig struct {
	BaseURL       string
	AccessToken   string
	PhoneNumberID string
	Timeout       time.Duration
}

// NewCloudSender creates a cloud API sender.
func NewCloudSender(cfg CloudConfig, logger *slog.Logger, metricRegistry *metrics.Metrics) *CloudSender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CloudSender{
		logger:        logger.With("component", "wa_cloud"),
		metrics:       metricRegistry,
		http:          &http.Client{Timeout: timeout},
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		accessToken:   cfg.AccessToken,
		phoneNumberID: cfg.PhoneNumberID,
	}
}

// Text sends a plain text message.
func (s *CloudSender) Text(ctx context.Context, phone, body string) (string, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                phone,
		"type":              "text",
		"text":              map[string]any{"body": body},
	}
	return s.send(ctx, "text", payload)
}

// Buttons sends an interactive reply-button message (max 3 buttons).
func (s *CloudSender) Buttons(ctx context.Context, phone, body string, buttons []Button) (string, error) {
	actions := make([]map[string]any, 0, maxButtons)
	for _, b := range clampButtons(buttons) {
		actions = append(actions, map[string]any{
			"type":  "reply",
			"reply": map[string]string{"id": b.ID, "title": b.Title},
		})
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                phone,
		"type":              "interactive",
		"interactive": map[string]any{
			"type":   "button",
			"body":   map[string]string{"text": body},
			"action": map[string]any{"buttons": actions},
		},
	}
	return s.send(ctx, "buttons", payload)
}

// List sends an interactive list message.
func (s *CloudSender) List(ctx context.Context, phone, body, buttonLabel string, sections []Section) (string, error) {
	secs := make([]map[string]any, 0, len(sections))
	for _, sec := range sections {
		rows := make([]map[string]string, 0, len(sec.Rows))
		for _, row := range sec.Rows {
			entry := map[string]string{"id": row.ID, "title": row.Title}
			if row.Description != "" {
				entry["description"] = row.Description
			}
			rows = append(rows, entry)
		}
		secs = append(secs, map[string]any{"title": sec.Title, "rows": rows})
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                phone,
		"type":              "interactive",
		"interactive": map[string]any{
			"type":   "list",
			"body":   map[string]string{"text": body},
			"action": map[string]any{"button": buttonLabel, "sections": secs},
		},
	}
	return s.send(ctx, "list", payload)
}

// Template sends a pre-approved template with positional text params and an
// optional media header. Templates bypass the 24-hour messaging window.
func (s *CloudSender) Template(ctx context.Context, phone, templateID string, params []string, headerMediaURL string) (string, error) {
	components := []map[string]any{}
	if headerMediaURL != "" {
		components = append(components, map[string]any{
			"type": "header",
			"parameters": []map[string]any{
				{"type": "image", "image": map[string]string{"link": headerMediaURL}},
			},
		})
	}
	if len(params) > 0 {
		body := make([]map[string]any, 0, len(params))
		for _, p := range params {
			body = append(body, map[string]any{"type": "text", "text": p})
		}
		components = append(components, map[string]any{"type": "body", "parameters": body})
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                phone,
		"type":              "template",
		"template": map[string]any{
			"name":       templateID,
			"language":   map[string]string{"code": defaultTemplateLanguage},
			"components": components,
		},
	}
	return s.send(ctx, "template", payload)
}

// Image sends an image by URL with an optional caption.
func (s *CloudSender) Image(ctx context.Context, phone, mediaURL, caption string) (string, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                phone,
		"type":              "image",
		"image":             map[string]string{"link": mediaURL, "caption": caption},
	}
	return s.send(ctx, "image", payload)
}

// Video sends a video by URL with an optional caption.
func (s *CloudSender) Video(ctx context.Context, phone, mediaURL, caption string) (string, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                phone,
		"type":              "video",
		"video":             map[string]string{"link": mediaURL, "caption": caption},
	}
	return s.send(ctx, "video", payload)
}

// CTAURL sends an interactive call-to-action URL message.
func (s *CloudSender) CTAURL(ctx context.Context, phone, body, display, targetURL string) (string, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                phone,
		"type":              "interactive",
		"interactive": map[string]any{
			"type": "cta_url",
			"body": map[string]string{"text": body},
			"action": map[string]any{
				"name": "cta_url",
				"parameters": map[string]string{
					"display_text": display,
					"url":          targetURL,
				},
			},
		},
	}
	return s.send(ctx, "cta_url", payload)
}

func (s *CloudSender) send(ctx context.Context, msgType string, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", msgType, err)
	}

	reqURL := fmt.Sprintf("%s/%s/messages", s.baseURL, s.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.accessToken)

	res, err := s.http.Do(req)
	if err != nil {
		s.metrics.Errors.WithLabelValues("wa_cloud").Inc()
		return "", fmt.Errorf("send %s: %w", msgType, err)
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode >= 400 {
		s.metrics.Errors.WithLabelValues("wa_cloud").Inc()
		return "", fmt.Errorf("send %s: status=%d body=%s", msgType, res.StatusCode, strings.TrimSpace(string(resBody)))
	}

	var decoded struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(resBody, &decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	s.metrics.WAOutgoingMessages.WithLabelValues(msgType).Inc()
	if len(decoded.Messages) == 0 {
		return "", nil
	}
	return decoded.Messages[0].ID, nil
}

var _ Sender = (*CloudSender)(nil)
