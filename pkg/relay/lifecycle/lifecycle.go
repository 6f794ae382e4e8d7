// Package lifecycle holds process state shared by handlers during shutdown.
package lifecycle

import (
	"sync/atomic"
	"time"
)

// Lifecycle records whether the relay is draining. New calls are refused
// while draining; calls already connected keep running.
type Lifecycle struct {
	drainingSince atomic.Int64 // unix nanos, 0 when serving
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	if !draining {
		l.drainingSince.Store(0)
		return
	}
	l.drainingSince.CompareAndSwap(0, time.Now().UnixNano())
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.drainingSince.Load() != 0
}

// DrainingSince returns when draining started, or the zero time.
func (l *Lifecycle) DrainingSince() time.Time {
	if l == nil {
		return time.Time{}
	}
	n := l.drainingSince.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
