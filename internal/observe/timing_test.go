package observe

import (
	"testing"
	"time"
)

func TestTiming(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	timing := NewTimingWithClock(clock)
	now = now.Add(3 * time.Second)
	if got := timing.Duration(); got != 3*time.Second {
		t.Errorf("running Duration() = %v, want 3s", got)
	}

	timing.Complete()
	now = now.Add(time.Minute)
	timing.Complete()
	if got := timing.Duration(); got != 3*time.Second {
		t.Errorf("completed Duration() = %v, want 3s", got)
	}
}
