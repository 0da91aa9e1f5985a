// Package alert evaluates fixed thresholds after trades and metric updates
// and fans matching alerts out to the ledger, the event stream, and an
// optional outbound notifier.
package alert

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Notifier is the interface for sending alert messages to an external sink.
type Notifier interface {
	Send(message string) error
	Close() error
}

// NoOpNotifier is a notifier that does nothing. It is used when alerting is
// not configured.
type NoOpNotifier struct{}

// NewNoOpNotifier creates a new NoOpNotifier.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// Send does nothing and returns nil.
func (n *NoOpNotifier) Send(message string) error {
	return nil
}

// Close does nothing and returns nil.
func (n *NoOpNotifier) Close() error {
	return nil
}

// WebhookNotifier posts alert messages as JSON to a configured webhook URL.
// The payload shape ({"text": ...}) is accepted by Slack-compatible hooks.
type WebhookNotifier struct {
	client *resty.Client
	url    string
	logger *zap.Logger
}

// NewWebhookNotifier creates a notifier posting to url.
func NewWebhookNotifier(url string, logger *zap.Logger) *WebhookNotifier {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2)
	return &WebhookNotifier{client: client, url: url, logger: logger.Named("webhook")}
}

// Send posts the message. Delivery failures are returned but callers treat
// them as non-fatal.
func (n *WebhookNotifier) Send(message string) error {
	resp, err := n.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"text": message}).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook post: status %d", resp.StatusCode())
	}
	return nil
}

// Close releases nothing; resty clients hold no persistent resources here.
func (n *WebhookNotifier) Close() error {
	return nil
}
