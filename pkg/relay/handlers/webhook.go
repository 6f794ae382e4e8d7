package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vango-go/santa-relay/pkg/relay/metrics"
	"github.com/vango-go/santa-relay/pkg/relay/notify"
	"github.com/vango-go/santa-relay/pkg/relay/retell"
)

// Platform webhook events.
const (
	EventCallStarted  = "call_started"
	EventCallEnded    = "call_ended"
	EventCallAnalyzed = "call_analyzed"
)

const maxWebhookBodyBytes = 1 << 20

type webhookEvent struct {
	Event string       `json:"event"`
	Data  *retell.Call `json:"data"`
	Call  *retell.Call `json:"call"`
}

func (e webhookEvent) call() *retell.Call {
	if e.Data != nil {
		return e.Data
	}
	if e.Call != nil {
		return e.Call
	}
	return &retell.Call{}
}

// WebhookHandler receives signed call lifecycle events from the platform.
type WebhookHandler struct {
	APIKey    string
	Tolerance time.Duration
	Logger    *slog.Logger
	// Notifier, when set, is run for call_analyzed events.
	Notifier *notify.Dispatcher
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

func (h WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if r.Method != http.MethodPost {
		writeMessage(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		logger.Error("webhook body read failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	if err := retell.VerifySignature(h.APIKey, r.Header.Get(retell.SignatureHeader), body, now, h.Tolerance); err != nil {
		logger.Warn("webhook rejected", "error", err)
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var ev webhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		logger.Error("webhook body is not valid json", "error", err)
		writeMessage(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	call := ev.call()
	h.Metrics.WebhookEvent(ev.Event)
	switch ev.Event {
	case EventCallStarted:
		logger.Info("call started", "call_id", call.CallID)
	case EventCallEnded:
		logger.Info("call ended", "call_id", call.CallID, "disconnection_reason", call.DisconnectReason)
	case EventCallAnalyzed:
		logger.Info("call analyzed", "call_id", call.CallID)
		if h.Notifier != nil {
			h.Notifier.Dispatch(r.Context(), notify.FromCall(call))
		}
	default:
		logger.Warn("unknown webhook event", "event", ev.Event, "call_id", call.CallID)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
