// Package observe measures task and phase durations.
package observe

import "time"

// Timing records start and end timestamps.
type Timing struct {
	StartedAt   time.Time
	CompletedAt time.Time
	now         func() time.Time
}

// NewTiming starts a timing at the current time.
func NewTiming() *Timing {
	return NewTimingWithClock(time.Now)
}

// NewTimingWithClock starts a timing using now as the clock.
func NewTimingWithClock(now func() time.Time) *Timing {
	return &Timing{StartedAt: now(), now: now}
}

// Complete records completion time. Later calls are ignored.
func (t *Timing) Complete() {
	if t.CompletedAt.IsZero() {
		t.CompletedAt = t.now()
	}
}

// Duration returns the elapsed time, measured to now while still running.
func (t *Timing) Duration() time.Duration {
	if t.CompletedAt.IsZero() {
		return t.now().Sub(t.StartedAt)
	}
	return t.CompletedAt.Sub(t.StartedAt)
}
