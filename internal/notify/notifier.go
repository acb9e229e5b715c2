package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prassanna-ravishankar/torale/internal/task"
)

// Notification is the payload handed to the delivery collaborator.
// Delivery retries are the collaborator's own responsibility.
type Notification struct {
	TaskID        string          `json:"task_id"`
	ExecutionID   string          `json:"execution_id"`
	Answer        string          `json:"answer"`
	Sources       []task.Source   `json:"sources,omitempty"`
	ChannelConfig json.RawMessage `json:"channel_config,omitempty"`
}

// Notifier delivers notifications to the user's channel
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// WebhookNotifier posts notifications to a configured webhook endpoint
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook-backed notifier
func NewWebhookNotifier(url string, timeout time.Duration) (*WebhookNotifier, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Send posts the notification as JSON. Any non-2xx status is a rejection.
func (wn *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wn.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := wn.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook rejected notification: status %d", resp.StatusCode)
	}
	return nil
}
