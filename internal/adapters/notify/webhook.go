package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/pkg/logger"
	"github.com/okian/rally/pkg/metrics"
)

const defaultWebhookTimeout = 5 * time.Second

// WebhookSender posts each message as JSON to an SMS gateway.
type WebhookSender struct {
	url    string
	client *http.Client
	log    logger.Logger
}

// WebhookOption configures a WebhookSender.
type WebhookOption func(*WebhookSender)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(s *WebhookSender) {
		if c != nil {
			s.client = c
		}
	}
}

// NewWebhookSender creates a sender posting to url.
func NewWebhookSender(url string, opts ...WebhookOption) *WebhookSender {
	s := &WebhookSender{
		url:    url,
		client: &http.Client{Timeout: defaultWebhookTimeout},
		log:    logger.Get().Named("notify"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type webhookPayload struct {
	To       string `json:"to"`
	From     string `json:"from"`
	FromName string `json:"from_name,omitempty"`
	Body     string `json:"body"`
}

func (s *WebhookSender) Send(ctx context.Context, to, body string, origin model.Origin) bool {
	payload, err := json.Marshal(webhookPayload{To: to, From: origin.Address, FromName: origin.Name, Body: body})
	if err != nil {
		return s.fail(ctx, to, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return s.fail(ctx, to, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return s.fail(ctx, to, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		s.log.Warn(ctx, "gateway rejected message", logger.String("to", to), logger.Int("status", resp.StatusCode))
		metrics.RecordNotifyFailure()
		return false
	}
	return true
}

func (s *WebhookSender) fail(ctx context.Context, to string, err error) bool {
	s.log.Warn(ctx, "message not delivered", logger.String("to", to), logger.Error(err))
	metrics.RecordNotifyFailure()
	return false
}
