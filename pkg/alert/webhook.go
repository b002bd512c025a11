package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// WebhookChannel POSTs the alert summary as JSON to the URL configured
// on each monitor. It only activates for summaries that carry a webhook
// target.
type WebhookChannel struct {
	http *http.Client
}

// NewWebhook builds the webhook channel.
func NewWebhook() *WebhookChannel {
	return &WebhookChannel{http: &http.Client{Timeout: 15 * time.Second}}
}

func (w *WebhookChannel) Name() string { return "webhook" }

type webhookPayload struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Summary any    `json:"summary"`
}

// Send delivers the payload with a couple of retries on transient
// failure. Monitors without a webhook target are skipped silently.
func (w *WebhookChannel) Send(ctx context.Context, msg Message) error {
	if w == nil || msg.Summary == nil || msg.Summary.Channels.Webhook == "" {
		return nil
	}
	target := msg.Summary.Channels.Webhook

	data, err := json.Marshal(webhookPayload{
		Subject: msg.Subject,
		Body:    msg.Body,
		Summary: msg.Summary,
	})
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.http.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("webhook returned status %d", resp.StatusCode))
		}
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	return backoff.Retry(attempt, bo)
}
