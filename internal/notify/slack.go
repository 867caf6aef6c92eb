// Package notify delivers fire-and-forget operator notifications to a chat
// webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Notifier posts a message to the operator channel.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// SlackNotifier implements Notifier against a Slack-style incoming webhook.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewSlack creates a SlackNotifier. An empty webhook URL disables delivery.
func NewSlack(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     http.DefaultClient,
	}
}

// Notify posts the message. Disabled notifiers succeed silently.
func (n *SlackNotifier) Notify(ctx context.Context, message string) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification rejected: %s", resp.Status)
	}
	return nil
}
