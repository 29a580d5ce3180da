package progress

import (
	"math"
	"sync/atomic"
)

// Tracker receives progress events from a host backend. Implementations
// must be safe for concurrent use.
type Tracker interface {
	OnEvent(any)
}

// NewTracker creates a Tracker from a typed callback. Events of any other
// type are ignored, so one backend can carry several event kinds.
func NewTracker[E any](fn func(E)) Tracker {
	return funcTracker(func(v any) {
		if e, ok := v.(E); ok {
			fn(e)
		}
	})
}

type funcTracker func(any)

func (f funcTracker) OnEvent(e any) { f(e) }

// Nop discards every event.
var Nop Tracker = funcTracker(func(any) {})

// Multi fans one event out to every non-nil tracker.
func Multi(trackers ...Tracker) Tracker {
	return funcTracker(func(e any) {
		for _, t := range trackers {
			if t != nil {
				t.OnEvent(e)
			}
		}
	})
}

// Meter turns byte counts into a completion ratio that can be sampled from
// another goroutine.
type Meter struct {
	done  atomic.Int64
	total atomic.Int64
}

// SetTotal sets the expected byte count; n <= 0 means unknown.
func (m *Meter) SetTotal(n int64) { m.total.Store(n) }

// Add records n more bytes.
func (m *Meter) Add(n int64) { m.done.Add(n) }

// Ratio is done/total clamped to [0,1]; 0 while the total is unknown.
func (m *Meter) Ratio() float64 {
	if m == nil {
		return 0
	}
	total := m.total.Load()
	if total <= 0 {
		return 0
	}
	return math.Min(float64(m.done.Load())/float64(total), 1)
}
