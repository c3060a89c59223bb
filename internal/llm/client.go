// Package llm wraps a chat-completion API. All calls are best-effort: every
// call site carries a deterministic fallback string, so an outage degrades
// content quality but never blocks a send.
package llm

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

// Client calls a chat-completion endpoint.
type Client struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	http    *http.Client
	baseURL string
	apiKey  string
	model   string
}

// Config holds LLM client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// New creates a new LLM client. A nil-safe zero client (empty API key)
// returns ErrUnavailable from Generate.
func New(cfg Config, logger *slog.Logger, metricRegistry *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		logger:  logger.With("component", "llm"),
		metrics: metricRegistry,
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

// Request describes one generation call.
type Request struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
	JSONObject  bool
}

// Generate returns a single completion string.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("llm not configured")
	}

	payload := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": req.System},
			{"role": "user", "content": req.User},
		},
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}
	if req.JSONObject {
		payload["response_format"] = map[string]string{"type": "json_object"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal llm request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	res, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.LLMRequests.WithLabelValues("error").Inc()
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer res.Body.Close()

	duration := time.Since(start).Seconds()
	statusLabel := fmt.Sprintf("%d", res.StatusCode)
	c.metrics.LLMRequests.WithLabelValues(statusLabel).Inc()
	c.metrics.LLMLatency.WithLabelValues(statusLabel).Observe(duration)

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("read llm response: %w", err)
	}
	if res.StatusCode >= 400 {
		return "", fmt.Errorf("llm error: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(resBody)))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(resBody, &decoded); err != nil {
		return "", fmt.Errorf("decode llm response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	return strings.TrimSpace(decoded.Choices[0].Message.Content), nil
}

// GenerateOrFallback returns the completion, or fallback on any failure.
func (c *Client) GenerateOrFallback(ctx context.Context, req Request, fallback string) string {
	out, err := c.Generate(ctx, req)
	if err != nil {
		c.logger.Debug("llm fallback", "error", err)
		return fallback
	}
	return out
}
