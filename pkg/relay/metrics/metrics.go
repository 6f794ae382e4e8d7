// Package metrics exposes the relay's Prometheus collectors. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Turn results.
const (
	TurnComplete   = "complete"
	TurnEndCall    = "end_call"
	TurnSuperseded = "superseded"
	TurnFailed     = "failed"
	TurnAborted    = "aborted"
)

// Call outcomes.
const (
	CallCompleted = "completed"
	CallEnded     = "end_call"
	CallNoDetails = "no_details"
	CallReplaced  = "replaced"
)

type Metrics struct {
	registry *prometheus.Registry

	CallsActive   prometheus.Gauge
	CallsTotal    *prometheus.CounterVec
	CallDuration  prometheus.Histogram
	CallsRejected *prometheus.CounterVec

	TurnsTotal   *prometheus.CounterVec
	TurnDuration *prometheus.HistogramVec

	NotificationsTotal *prometheus.CounterVec
	WebhookEventsTotal *prometheus.CounterVec
}

func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "santa_relay"
	}
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		CallsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calls_active",
			Help:      "Number of connected call websockets",
		}),
		CallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Finished call sessions by outcome",
		}, []string{"outcome"}),
		CallDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Call session duration in seconds",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		CallsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_rejected_total",
			Help:      "Call websockets refused before a session started",
		}, []string{"reason"}),
		TurnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Response turns by result",
		}, []string{"result"}),
		TurnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Time from response request to the turn's last event",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"result"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "CRM notification attempts by status",
		}, []string{"status"}),
		WebhookEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Platform webhook deliveries by event",
		}, []string{"event"}),
	}

	registry.MustRegister(
		m.CallsActive,
		m.CallsTotal,
		m.CallDuration,
		m.CallsRejected,
		m.TurnsTotal,
		m.TurnDuration,
		m.NotificationsTotal,
		m.WebhookEventsTotal,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) CallStarted() {
	if m == nil {
		return
	}
	m.CallsActive.Inc()
}

func (m *Metrics) CallFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.CallsActive.Dec()
	m.CallsTotal.WithLabelValues(outcome).Inc()
	m.CallDuration.Observe(d.Seconds())
}

func (m *Metrics) CallRejected(reason string) {
	if m == nil {
		return
	}
	m.CallsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) Turn(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(result).Inc()
	m.TurnDuration.WithLabelValues(result).Observe(d.Seconds())
}

// Notification records a CRM delivery. status is "sent", "skipped" or "failed".
func (m *Metrics) Notification(status string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) WebhookEvent(event string) {
	if m == nil {
		return
	}
	m.WebhookEventsTotal.WithLabelValues(event).Inc()
}
