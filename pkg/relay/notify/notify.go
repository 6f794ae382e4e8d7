// Package notify forwards finished-call recordings to a CRM webhook.
package notify

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

	"github.com/vango-go/santa-relay/pkg/relay/metrics"
	"github.com/vango-go/santa-relay/pkg/relay/protocol"
	"github.com/vango-go/santa-relay/pkg/relay/retell"
)

const DefaultTimeout = 10 * time.Second

// Summary is what the CRM needs to know about a call.
type Summary struct {
	CallID           string
	ToNumber         string
	RecordingURL     string
	RecordingConsent bool
}

// FromCall builds a summary from the platform's call record.
func FromCall(call *retell.Call) Summary {
	if call == nil {
		return Summary{}
	}
	return Summary{
		CallID:           call.CallID,
		ToNumber:         call.ToNumber,
		RecordingURL:     call.RecordingURL,
		RecordingConsent: protocol.RecordingConsent(call.DynamicVariables),
	}
}

type payload struct {
	ToNumber     string `json:"to_number"`
	RecordingURL string `json:"recording_url"`
}

// HTTPStatusError is returned when the CRM answers with a non-2xx status.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("notify: webhook returned status %d", e.StatusCode)
}

type Notifier struct {
	URL     string
	Timeout time.Duration
	HTTP    *http.Client
	Logger  *slog.Logger
}

// Notify posts the recording link when the family consented to it.
// Without consent it does nothing and returns nil.
func (n *Notifier) Notify(ctx context.Context, s Summary) error {
	logger := n.logger().With("call_id", s.CallID)
	if !s.RecordingConsent {
		logger.Info("no recording consent; skipping notification")
		return nil
	}
	if strings.TrimSpace(n.URL) == "" {
		return fmt.Errorf("notify: missing webhook url")
	}

	timeout := n.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(payload{ToNumber: s.ToNumber, RecordingURL: s.RecordingURL})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := n.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	res, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post webhook: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &HTTPStatusError{StatusCode: res.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	_, _ = io.Copy(io.Discard, res.Body)
	logger.Info("recording notification sent")
	return nil
}

func (n *Notifier) logger() *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slog.Default()
}

// Sender is satisfied by *Notifier.
type Sender interface {
	Notify(ctx context.Context, s Summary) error
}

// Dispatcher delivers notifications best-effort: failures are logged and
// never returned to the caller.
type Dispatcher struct {
	Sender  Sender
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func (d *Dispatcher) Dispatch(ctx context.Context, s Summary) {
	if d == nil || d.Sender == nil {
		return
	}
	if err := d.Sender.Notify(ctx, s); err != nil {
		d.Metrics.Notification("failed")
		logger := d.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("call notification failed", "call_id", s.CallID, "error", err)
		return
	}
	if !s.RecordingConsent {
		d.Metrics.Notification("skipped")
		return
	}
	d.Metrics.Notification("sent")
}
