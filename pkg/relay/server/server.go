// Package server wires the relay's routes and middleware.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/vango-go/santa-relay/pkg/relay/config"
	"github.com/vango-go/santa-relay/pkg/relay/handlers"
	"github.com/vango-go/santa-relay/pkg/relay/lifecycle"
	"github.com/vango-go/santa-relay/pkg/relay/metrics"
	"github.com/vango-go/santa-relay/pkg/relay/mw"
	"github.com/vango-go/santa-relay/pkg/relay/notify"
	"github.com/vango-go/santa-relay/pkg/relay/persona"
	"github.com/vango-go/santa-relay/pkg/relay/respond"
	"github.com/vango-go/santa-relay/pkg/relay/sessions"
)

type Dependencies struct {
	Persona  *persona.Persona
	Streamer respond.Streamer
	Calls    handlers.CallLookup
	// Notifier is nil when no CRM webhook is configured.
	Notifier *notify.Dispatcher
	// Metrics defaults to a fresh registry.
	Metrics *metrics.Metrics
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux
	deps   Dependencies

	lifecycle *lifecycle.Lifecycle
	sessions  *sessions.Tracker
}

func New(cfg config.Config, logger *slog.Logger, deps Dependencies) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New("santa_relay")
	}
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		mux:       http.NewServeMux(),
		deps:      deps,
		lifecycle: &lifecycle.Lifecycle{},
		sessions:  sessions.NewTracker(),
	}
	s.routes()
	return s
}

// NewUpstreamHTTPClient returns the HTTP client shared by model providers
// and the platform API.
func NewUpstreamHTTPClient(cfg config.Config) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: cfg.UpstreamConnectTimeout,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: cfg.UpstreamResponseHeaderTimeout,
		},
	}
}

func (s *Server) routes() {
	s.mux.Handle("GET /healthz", handlers.HealthHandler{})
	s.mux.Handle("GET /readyz", handlers.ReadyHandler{
		Config:    s.cfg,
		Persona:   s.deps.Persona,
		Lifecycle: s.lifecycle,
		Sessions:  s.sessions,
	})
	s.mux.Handle("GET /metrics", s.deps.Metrics.Handler())

	s.mux.Handle("/llm-websocket/{call_id}", handlers.LiveHandler{
		Config:    s.cfg,
		Persona:   s.deps.Persona,
		Streamer:  s.deps.Streamer,
		Logger:    s.logger,
		Lifecycle: s.lifecycle,
		Sessions:  s.sessions,
		Metrics:   s.deps.Metrics,
		Calls:     s.deps.Calls,
		Notifier:  s.deps.Notifier,
	})

	webhook := handlers.WebhookHandler{
		APIKey:    s.cfg.RetellAPIKey,
		Tolerance: s.cfg.WebhookTolerance,
		Logger:    s.logger,
		Metrics:   s.deps.Metrics,
	}
	if s.cfg.NotifiesOnAnalyzed() {
		webhook.Notifier = s.deps.Notifier
	}
	s.mux.Handle("/webhook", webhook)

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// ActiveCalls returns the number of connected call sessions.
func (s *Server) ActiveCalls() int {
	return s.sessions.Count()
}

// Drain refuses new calls, waits for live calls until ctx ends, then
// cancels the rest. It returns how many sessions were canceled.
func (s *Server) Drain(ctx context.Context) int {
	s.lifecycle.SetDraining(true)
	if s.sessions.Wait(ctx) {
		return 0
	}
	for _, e := range s.sessions.Snapshot() {
		s.logger.Warn("canceling live call", "call_id", e.CallID, "session_id", e.SessionID, "age", time.Since(e.StartedAt).Round(time.Second))
	}
	canceled := s.sessions.CancelAll()
	s.logger.Warn("grace period over; live calls canceled", "canceled", canceled)

	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.sessions.Wait(waitCtx)
	return canceled
}
