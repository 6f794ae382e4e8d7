// Package sessions tracks live call sessions so the server can drain them.
package sessions

import (
	"context"
	"sort"
	"sync"
	"time"
)

type Handle struct {
	SessionID string
	StartedAt time.Time
	Cancel    func()
	// Replace, when set, is used instead of Cancel when a reconnect for
	// the same call takes over.
	Replace func()
}

// Entry describes one connected call.
type Entry struct {
	CallID    string
	SessionID string
	StartedAt time.Time
}

// Tracker holds the current session for each call id. A platform reconnect
// for the same call replaces the entry and cancels the older session, which
// still counts toward Wait until it unregisters.
type Tracker struct {
	mu      sync.Mutex
	current map[string]*registration
	running int
	idle    chan struct{}
}

type registration struct {
	callID string
	handle Handle
	done   bool
}

func NewTracker() *Tracker {
	idle := make(chan struct{})
	close(idle)
	return &Tracker{current: make(map[string]*registration), idle: idle}
}

// Register records h as the session serving callID. The returned func is
// idempotent.
func (t *Tracker) Register(callID string, h Handle) (unregister func()) {
	reg := &registration{callID: callID, handle: h}

	t.mu.Lock()
	prev := t.current[callID]
	t.current[callID] = reg
	if t.running == 0 {
		t.idle = make(chan struct{})
	}
	t.running++
	t.mu.Unlock()

	if prev != nil {
		switch {
		case prev.handle.Replace != nil:
			prev.handle.Replace()
		case prev.handle.Cancel != nil:
			prev.handle.Cancel()
		}
	}
	return func() { t.release(reg) }
}

func (t *Tracker) release(reg *registration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if reg.done {
		return
	}
	reg.done = true
	if t.current[reg.callID] == reg {
		delete(t.current, reg.callID)
	}
	t.running--
	if t.running == 0 {
		close(t.idle)
	}
}

// Count returns the number of calls with a registered session.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.current)
}

// Snapshot lists the connected calls ordered by call id.
func (t *Tracker) Snapshot() []Entry {
	t.mu.Lock()
	out := make([]Entry, 0, len(t.current))
	for id, reg := range t.current {
		out = append(out, Entry{CallID: id, SessionID: reg.handle.SessionID, StartedAt: reg.handle.StartedAt})
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CallID < out[j].CallID })
	return out
}

// CancelAll cancels every connected call and returns how many it reached.
func (t *Tracker) CancelAll() int {
	t.mu.Lock()
	cancels := make([]func(), 0, len(t.current))
	for _, reg := range t.current {
		if reg.handle.Cancel != nil {
			cancels = append(cancels, reg.handle.Cancel)
		}
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	return len(cancels)
}

// Wait blocks until no session is running or ctx ends. It reports whether
// the tracker went idle.
func (t *Tracker) Wait(ctx context.Context) bool {
	t.mu.Lock()
	idle := t.idle
	t.mu.Unlock()

	select {
	case <-idle:
		return true
	default:
	}
	select {
	case <-idle:
		return true
	case <-ctx.Done():
		return false
	}
}
