package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type recordedWrite struct {
	messageType int
	data        string
}

type fakeWSWriter struct {
	mu     sync.Mutex
	writes []recordedWrite
}

func (f *fakeWSWriter) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeWSWriter) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, recordedWrite{messageType: messageType, data: string(data)})
	return nil
}

func (f *fakeWSWriter) WriteControl(messageType int, data []byte, _ time.Time) error {
	return f.WriteMessage(messageType, data)
}

func (f *fakeWSWriter) Close() error { return nil }

func (f *fakeWSWriter) snapshot() []recordedWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedWrite, len(f.writes))
	copy(out, f.writes)
	return out
}

func (f *fakeWSWriter) texts() []string {
	var out []string
	for _, w := range f.snapshot() {
		if w.messageType == websocket.TextMessage {
			out = append(out, w.data)
		}
	}
	return out
}

func TestOutboundWriter_PriorityBeatsNormal(t *testing.T) {
	priority := make(chan outboundFrame, 1)
	normal := make(chan outboundFrame, 1)
	normal <- outboundFrame{payload: []byte(`{"response_type":"response","response_id":3,"content":"Ho"}`), responseID: 3, supersedable: true}
	priority <- outboundFrame{payload: []byte(`{"response_type":"ping_pong","timestamp":1}`)}
	close(priority)
	close(normal)

	ws := &fakeWSWriter{}
	w := outboundWriter{
		ws:       ws,
		ctx:      context.Background(),
		cfg:      Config{PingInterval: time.Hour, WriteTimeout: time.Second},
		priority: priority,
		normal:   normal,
	}
	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	got := ws.texts()
	if len(got) != 2 {
		t.Fatalf("writes=%d, want 2: %v", len(got), got)
	}
	if !strings.Contains(got[0], `"ping_pong"`) {
		t.Fatalf("first write=%s, want ping_pong", got[0])
	}
}

func TestOutboundWriter_SkipsFilteredFrames(t *testing.T) {
	normal := make(chan outboundFrame, 3)
	normal <- outboundFrame{payload: []byte(`stale`), responseID: 1, supersedable: true}
	normal <- outboundFrame{payload: []byte(`current`), responseID: 2, supersedable: true}
	normal <- outboundFrame{payload: []byte(`opening`), responseID: 0}
	close(normal)

	ws := &fakeWSWriter{}
	var written []int64
	w := outboundWriter{
		ws:     ws,
		ctx:    context.Background(),
		cfg:    Config{PingInterval: time.Hour},
		normal: normal,
		skip: func(f outboundFrame) bool {
			return f.supersedable && f.responseID < 2
		},
		written: func(f outboundFrame) { written = append(written, f.responseID) },
	}
	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	got := ws.texts()
	if len(got) != 2 || got[0] != "current" || got[1] != "opening" {
		t.Fatalf("writes=%v", got)
	}
	if len(written) != 2 || written[0] != 2 || written[1] != 0 {
		t.Fatalf("written=%v", written)
	}
}

func TestOutboundWriter_FlushesQueuedFramesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	normal := make(chan outboundFrame, 2)
	normal <- outboundFrame{payload: []byte(`goodbye`), responseID: 4, endCall: true}
	cancel()

	ws := &fakeWSWriter{}
	w := outboundWriter{
		ws:       ws,
		ctx:      ctx,
		cfg:      Config{PingInterval: time.Hour, WriteTimeout: time.Second},
		priority: make(chan outboundFrame),
		normal:   normal,
	}
	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	writes := ws.snapshot()
	if len(writes) != 2 {
		t.Fatalf("writes=%d, want goodbye and close", len(writes))
	}
	if writes[0].data != "goodbye" {
		t.Fatalf("first write=%q", writes[0].data)
	}
	if writes[1].messageType != websocket.CloseMessage {
		t.Fatalf("last write type=%d, want close", writes[1].messageType)
	}
}
