package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.CallStarted()
	m.CallFinished(CallCompleted, time.Second)
	m.CallRejected("draining")
	m.Turn(TurnComplete, time.Second)
	m.Notification("sent")
	m.WebhookEvent("call_analyzed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rec.Code)
	}
}

func TestCallLifecycleCounters(t *testing.T) {
	m := New("")
	m.CallStarted()
	m.CallStarted()
	m.CallFinished(CallEnded, 90*time.Second)

	if got := testutil.ToFloat64(m.CallsActive); got != 1 {
		t.Fatalf("calls_active=%v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CallsTotal.WithLabelValues(CallEnded)); got != 1 {
		t.Fatalf("calls_total{end_call}=%v, want 1", got)
	}
}

func TestTurnAndNotificationCounters(t *testing.T) {
	m := New("test")
	m.Turn(TurnSuperseded, 200*time.Millisecond)
	m.Turn(TurnSuperseded, 300*time.Millisecond)
	m.Turn(TurnComplete, time.Second)
	m.Notification("failed")

	if got := testutil.ToFloat64(m.TurnsTotal.WithLabelValues(TurnSuperseded)); got != 2 {
		t.Fatalf("turns_total{superseded}=%v, want 2", got)
	}
	if got := testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("failed")); got != 1 {
		t.Fatalf("notifications_total{failed}=%v, want 1", got)
	}
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := New("santa_relay")
	m.WebhookEvent("call_started")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `santa_relay_webhook_events_total{event="call_started"} 1`) {
		t.Fatalf("metrics body missing webhook counter:\n%s", body)
	}
}
