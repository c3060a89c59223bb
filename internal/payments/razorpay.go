// Package payments integrates the hosted payment-link provider: link
// creation, webhook signature verification, and the idempotent event
// resolver that settles sankalps and the seva ledger.
package payments

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

	"bot-sankalp/internal/convo"
	"bot-sankalp/internal/metrics"
)

// Client provides typed access to the Razorpay REST API.
type Client struct {
	logger    *slog.Logger
	metrics   *metrics.Metrics
	http      *http.Client
	baseURL   string
	keyID     string
	keySecret string
}

// Config holds Razorpay client configuration.
type Config struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Timeout   time.Duration
}

// NewClient creates a new Razorpay API client.
func NewClient(cfg Config, logger *slog.Logger, metricRegistry *metrics.Metrics) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.razorpay.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		logger:    logger.With("component", "razorpay"),
		metrics:   metricRegistry,
		http:      &http.Client{Timeout: timeout},
		baseURL:   base,
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
	}
}

var _ convo.PaymentLinker = (*Client)(nil)

// CreateLink creates a hosted payment link carrying the sankalp and user IDs
// in notes so the webhook can resolve the row without guessing.
func (c *Client) CreateLink(ctx context.Context, req convo.LinkRequest) (*convo.Link, error) {
	payload := map[string]any{
		"amount":          req.Amount,
		"currency":        req.Currency,
		"description":     req.Description,
		"reminder_enable": true,
		"customer": map[string]string{
			"contact": "+" + req.Phone,
		},
		"notify": map[string]bool{
			"sms":      false,
			"whatsapp": false,
		},
		"notes": map[string]string{
			"sankalp_id": req.SankalpID,
			"user_id":    req.UserID,
		},
	}

	var decoded struct {
		ID       string `json:"id"`
		ShortURL string `json:"short_url"`
	}
	if err := c.post(ctx, "/v1/payment_links", payload, &decoded); err != nil {
		return nil, err
	}
	if decoded.ID == "" || decoded.ShortURL == "" {
		return nil, fmt.Errorf("payment link response missing id or short_url")
	}
	return &convo.Link{ID: decoded.ID, ShortURL: decoded.ShortURL}, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, dest any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	res, err := c.http.Do(req)
	if err != nil {
		c.metrics.Errors.WithLabelValues("razorpay").Inc()
		return fmt.Errorf("razorpay request: %w", err)
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode >= 400 {
		c.metrics.Errors.WithLabelValues("razorpay").Inc()
		return fmt.Errorf("razorpay %s error: status=%d body=%s", endpoint, res.StatusCode, strings.TrimSpace(string(resBody)))
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(resBody, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
