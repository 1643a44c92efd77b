package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookSender posts signal notifications to a generic HTTP endpoint.
type WebhookSender struct {
	url    string
	client *http.Client
}

// NewWebhookSender creates a webhook-backed Sender posting to url.
func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookSender) Send(ctx context.Context, userID int64, message string, critical bool) (float64, error) {
	start := time.Now()

	payload := map[string]interface{}{
		"user_id":  userID,
		"message":  message,
		"critical": critical,
		"ts":       time.Now().UTC().Format(time.RFC3339Nano),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return latencyMS(start), fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", w.url, bytes.NewReader(body))
	if err != nil {
		return latencyMS(start), fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return latencyMS(start), fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		return latencyMS(start), ErrUserBlocked
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return latencyMS(start), fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}

	return latencyMS(start), nil
}
