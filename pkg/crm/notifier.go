// Package crm posts business events to an external CRM webhook. Delivery is
// best effort: callers log failures, they never propagate them into a call.
package crm

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
)

const userAgent = "VoiceBridge-Webhook/1.0"

type Config struct {
	WebhookURL string
	Timeout    time.Duration
}

type Notifier struct {
	client *http.Client
	url    string
	logger *slog.Logger
	now    func() time.Time
}

// Event is one business notification. Data is event-specific.
type Event struct {
	Event   string         `json:"event"`
	Time    string         `json:"timestamp"`
	CallSID string         `json:"call_sid,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

func NewNotifier(cfg Config, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Notifier{
		client: &http.Client{Timeout: timeout},
		url:    strings.TrimSpace(cfg.WebhookURL),
		logger: logger,
		now:    time.Now,
	}
}

// Enabled reports whether a webhook URL is configured. A disabled notifier
// accepts Send calls and drops them.
func (n *Notifier) Enabled() bool {
	return n != nil && n.url != ""
}

// Send posts one event. Returns an error for a transport failure or a
// non-2xx response so the explicit webhook function can report an honest
// outcome; lifecycle callers ignore it beyond logging.
func (n *Notifier) Send(ctx context.Context, eventType string, data map[string]any, callSID string) error {
	if !n.Enabled() {
		return fmt.Errorf("no webhook url configured")
	}
	payload, err := json.Marshal(Event{
		Event:   eventType,
		Time:    n.now().UTC().Format(time.RFC3339),
		CallSID: callSID,
		Data:    data,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	n.logger.Info("crm webhook delivered", "event", eventType, "call_sid", callSID, "status", resp.StatusCode)
	return nil
}

// SendAsync fires the event from its own goroutine and logs the outcome.
// Used for lifecycle events where the caller must not wait.
func (n *Notifier) SendAsync(eventType string, data map[string]any, callSID string) {
	if !n.Enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.client.Timeout)
		defer cancel()
		if err := n.Send(ctx, eventType, data, callSID); err != nil {
			n.logger.Warn("crm webhook failed", "event", eventType, "call_sid", callSID, "error", err)
		}
	}()
}
