// Package webhook notifies an HTTP endpoint when a conversion job ends.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/use-agent/topdf/metrics"
	"github.com/use-agent/topdf/models"
	"github.com/use-agent/topdf/retry"
)

// Event types.
const (
	EventCompleted = "conversion.completed"
	EventFailed    = "conversion.failed"
)

// SignatureHeader carries "sha256=<hex HMAC of the body>".
const SignatureHeader = "X-Topdf-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"`
	JobID     string `json:"job_id"`
	URL       string `json:"url"`
	Timestamp int64  `json:"timestamp"`

	Result *models.ConversionOutput `json:"result,omitempty"`
	Error  *models.ErrorDetail      `json:"error,omitempty"`
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Notifier delivers events with retries.
type Notifier struct {
	client  *http.Client
	policy  retry.Policy
	metrics *metrics.Metrics
}

// NewNotifier creates a Notifier. delays is the wait before each attempt
// (the first is usually 0). client may be nil.
func NewNotifier(client *http.Client, timeout time.Duration, delays []time.Duration, m *metrics.Metrics) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if len(delays) == 0 {
		delays = []time.Duration{0}
	}
	return &Notifier{client: client, policy: retry.NewScheduled(delays), metrics: m}
}

// Deliver sends an event once. The body is signed when secret is set.
// A 4xx other than 429 is permanent and is not retried.
func (n *Notifier) Deliver(ctx context.Context, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return retry.Permanent(fmt.Errorf("webhook: marshal event: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("webhook: create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Topdf-Webhook/1.0")
	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return retry.Permanent(fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode))
	}
	return nil
}

// Send delivers under the retry schedule and blocks until it succeeds,
// gives up, or ctx ends.
func (n *Notifier) Send(ctx context.Context, url, secret string, event *Event) error {
	policy := n.policy
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		slog.Warn("webhook delivery failed",
			"url", url,
			"event", event.Type,
			"job_id", event.JobID,
			"attempt", attempt,
			"next_in", wait,
			"error", err,
		)
	}

	err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		if err := n.Deliver(ctx, url, secret, event); err != nil {
			return err
		}
		slog.Info("webhook delivered",
			"url", url,
			"event", event.Type,
			"job_id", event.JobID,
			"attempt", attempt,
		)
		return nil
	})
	if err != nil {
		n.metrics.IncWebhook("failed")
		slog.Error("webhook delivery gave up",
			"url", url,
			"event", event.Type,
			"job_id", event.JobID,
			"error", err,
		)
		return err
	}
	n.metrics.IncWebhook("delivered")
	return nil
}

// SendAsync runs Send in the background, detached from any request.
func (n *Notifier) SendAsync(url, secret string, event *Event) {
	go func() {
		_ = n.Send(context.Background(), url, secret, event)
	}()
}
