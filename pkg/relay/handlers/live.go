package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vango-go/santa-relay/pkg/relay/config"
	"github.com/vango-go/santa-relay/pkg/relay/lifecycle"
	"github.com/vango-go/santa-relay/pkg/relay/metrics"
	"github.com/vango-go/santa-relay/pkg/relay/mw"
	"github.com/vango-go/santa-relay/pkg/relay/notify"
	"github.com/vango-go/santa-relay/pkg/relay/persona"
	"github.com/vango-go/santa-relay/pkg/relay/respond"
	"github.com/vango-go/santa-relay/pkg/relay/retell"
	"github.com/vango-go/santa-relay/pkg/relay/session"
	"github.com/vango-go/santa-relay/pkg/relay/sessions"
)

// CallLookup fetches the platform's record of a call.
type CallLookup interface {
	GetCall(ctx context.Context, callID string) (*retell.Call, error)
}

// LiveHandler serves /llm-websocket/{call_id}, one websocket per call.
type LiveHandler struct {
	Config    config.Config
	Persona   *persona.Persona
	Streamer  respond.Streamer
	Logger    *slog.Logger
	Lifecycle *lifecycle.Lifecycle
	Sessions  *sessions.Tracker
	Metrics   *metrics.Metrics

	// Calls and Notifier are used when a session closes. A nil Notifier
	// disables close notifications.
	Calls    CallLookup
	Notifier *notify.Dispatcher
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.logger()
	if r.Method != http.MethodGet {
		writeMessage(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}
	if h.Lifecycle.IsDraining() {
		h.Metrics.CallRejected("draining")
		writeMessage(w, 529, "relay is draining")
		return
	}
	callID := strings.TrimSpace(r.PathValue("call_id"))
	if callID == "" {
		writeMessage(w, http.StatusBadRequest, "missing call_id")
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "call_id", callID, "error", err)
		return
	}
	defer conn.Close()

	reqID, _ := mw.RequestIDFrom(r.Context())
	sessionID := "s_" + uuid.NewString()
	sessLogger := logger.With("request_id", reqID)

	sess, err := session.New(session.Dependencies{
		Conn:      conn,
		Logger:    sessLogger,
		CallID:    callID,
		SessionID: sessionID,
		Persona:   h.Persona,
		Generator: &respond.Generator{
			Streamer: h.Streamer,
			Persona:  h.Persona,
			Logger:   sessLogger.With("call_id", callID),
		},
		Config: session.Config{
			PingInterval:       h.Config.WSPingInterval,
			WriteTimeout:       h.Config.WSWriteTimeout,
			ReadTimeout:        h.Config.WSReadTimeout,
			MaxMessageBytes:    h.Config.MaxMessageBytes,
			OutboundQueueSize:  h.Config.OutboundQueueSize,
			CallDetailsTimeout: h.Config.CallDetailsTimeout,
			TurnTimeout:        h.Config.TurnTimeout,
			// Call lookup and notifier POST each get NotifyTimeout.
			CloseTimeout: 2 * h.Config.NotifyTimeout,
		},
		Metrics: h.Metrics,
		OnClose: h.onClose,
	})
	if err != nil {
		logger.Error("call session init failed", "call_id", callID, "error", err)
		return
	}

	unregister := h.Sessions.Register(callID, sessions.Handle{
		SessionID: sessionID,
		StartedAt: sess.Summary().StartedAt,
		Cancel:    sess.Cancel,
		Replace:   sess.Replace,
	})
	defer unregister()
	h.Metrics.CallStarted()

	if err := sess.Run(); err != nil {
		logger.Warn("call session ended with error", "call_id", callID, "session_id", sessionID, "error", err)
	}
}

// onClose looks the call up on the platform and forwards the recording
// when the family consented to it. The lookup and the notifier POST are
// each bounded by NotifyTimeout. A session replaced by a reconnect leaves
// the notification to its successor.
func (h LiveHandler) onClose(ctx context.Context, s session.Summary) {
	h.Metrics.CallFinished(callOutcome(s), s.Duration)
	if h.Notifier == nil || h.Calls == nil || !h.Config.NotifiesOnClose() {
		return
	}
	logger := h.logger().With("call_id", s.CallID, "session_id", s.SessionID)
	if s.Replaced {
		logger.Info("session replaced by reconnect; skipping notification")
		return
	}

	lookupCtx, cancel := context.WithTimeout(ctx, h.lookupTimeout())
	defer cancel()
	call, err := h.Calls.GetCall(lookupCtx, s.CallID)
	if err != nil {
		logger.Error("call lookup failed; skipping notification", "error", err)
		return
	}
	h.Notifier.Dispatch(ctx, notify.FromCall(call))
}

func (h LiveHandler) lookupTimeout() time.Duration {
	if h.Config.NotifyTimeout > 0 {
		return h.Config.NotifyTimeout
	}
	return notify.DefaultTimeout
}

func callOutcome(s session.Summary) string {
	switch {
	case s.Replaced:
		return metrics.CallReplaced
	case s.EndedCall:
		return metrics.CallEnded
	case s.Call == nil:
		return metrics.CallNoDetails
	default:
		return metrics.CallCompleted
	}
}

func (h LiveHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
