package mw

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type testBaseWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newTestBaseWriter() *testBaseWriter {
	return &testBaseWriter{header: make(http.Header)}
}

func (w *testBaseWriter) Header() http.Header { return w.header }

func (w *testBaseWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
}

func (w *testBaseWriter) Write(p []byte) (int, error) {
	w.WriteHeader(http.StatusOK)
	return w.body.Write(p)
}

type testHijackerWriter struct {
	*testBaseWriter
	hijacked bool
}

func (w *testHijackerWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.hijacked = true
	return nil, nil, nil
}

func newTestLogger(out *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(out, nil))
}

func parseSingleLogRecord(t *testing.T, out *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("log lines=%d, want 1: %q", len(lines), out.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("unmarshal log: %v", err)
	}
	return rec
}

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = RequestIDFrom(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if !strings.HasPrefix(seen, "req_") || len(seen) != len("req_")+36 {
		t.Fatalf("request id=%q", seen)
	}
	if rr.Header().Get("X-Request-ID") != seen {
		t.Fatalf("header=%q, want %q", rr.Header().Get("X-Request-ID"), seen)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req_upstream")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "req_upstream" {
		t.Fatalf("request id=%q, want caller's id", seen)
	}
}

func TestRecover_PanicReturnsJSON(t *testing.T) {
	h := Recover(nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhook", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["message"] != "Internal Server Error" {
		t.Fatalf("body=%v", body)
	}
}

func TestAccessLog_StatusLogging(t *testing.T) {
	out := &bytes.Buffer{}
	h := AccessLog(newTestLogger(out), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	req := httptest.NewRequest(http.MethodPost, "/webhook", nil).WithContext(WithRequestID(context.Background(), "req_test"))
	h.ServeHTTP(newTestBaseWriter(), req)

	rec := parseSingleLogRecord(t, out)
	if got, _ := rec["status"].(float64); int(got) != http.StatusUnauthorized {
		t.Fatalf("status=%v", rec["status"])
	}
	if rec["request_id"] != "req_test" || rec["path"] != "/webhook" {
		t.Fatalf("record=%v", rec)
	}
}

func TestAccessLog_PreservesHijacker(t *testing.T) {
	writer := &testHijackerWriter{testBaseWriter: newTestBaseWriter()}
	out := &bytes.Buffer{}

	h := AccessLog(newTestLogger(out), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatalf("expected http.Hijacker to be preserved")
		}
		if _, _, err := hj.Hijack(); err != nil {
			t.Fatalf("hijack failed: %v", err)
		}
	}))
	h.ServeHTTP(writer, httptest.NewRequest(http.MethodGet, "/llm-websocket/call_1", nil))

	if !writer.hijacked {
		t.Fatalf("expected underlying hijacker to be invoked")
	}
	rec := parseSingleLogRecord(t, out)
	if got, _ := rec["status"].(float64); int(got) != http.StatusSwitchingProtocols {
		t.Fatalf("status=%v", rec["status"])
	}
}

func TestAccessLog_DoesNotAdvertiseUnsupportedInterfaces(t *testing.T) {
	h := AccessLog(nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := w.(http.Flusher); ok {
			t.Fatalf("did not expect http.Flusher to be advertised")
		}
		if _, ok := w.(http.Hijacker); ok {
			t.Fatalf("did not expect http.Hijacker to be advertised")
		}
		_, _ = w.Write([]byte("ok"))
	}))
	h.ServeHTTP(newTestBaseWriter(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
}
