package report

import (
	"sync"
	"time"

	"github.com/aahsnr/fedora-setup/internal/task"
)

// Recorder accumulates task results. It satisfies engine.Observer.
type Recorder struct {
	mu       sync.Mutex
	started  time.Time
	now      func() time.Time
	results  []TaskResult
	inFlight map[string]time.Time
}

// NewRecorder starts recording a run.
func NewRecorder() *Recorder {
	return &Recorder{
		started:  time.Now(),
		now:      time.Now,
		inFlight: make(map[string]time.Time),
	}
}

// Started returns when the run began.
func (r *Recorder) Started() time.Time { return r.started }

func (r *Recorder) TaskStarted(phase string, t task.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight[t.Name()] = r.now()
}

func (r *Recorder) TaskSkipped(phase string, t task.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, TaskResult{
		Phase:       phase,
		Task:        t.Name(),
		Description: t.Description(),
		Skipped:     true,
		StartTime:   r.now(),
	})
}

func (r *Recorder) TaskFinished(phase string, t task.Task, outcome task.Outcome, err error, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	start, ok := r.inFlight[t.Name()]
	if !ok {
		start = r.now().Add(-d)
	}
	delete(r.inFlight, t.Name())

	res := TaskResult{
		Phase:       phase,
		Task:        t.Name(),
		Description: t.Description(),
		Outcome:     outcome,
		StartTime:   start,
		Duration:    d,
	}
	if err != nil {
		res.Error = err.Error()
	}
	r.results = append(r.results, res)
}

// Results returns every recorded result in order.
func (r *Recorder) Results() []TaskResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TaskResult, len(r.results))
	copy(out, r.results)
	return out
}

// Failures returns a FailureRecord for every failed or faulted task.
func (r *Recorder) Failures() []FailureRecord {
	var out []FailureRecord
	for _, res := range r.Results() {
		if res.Skipped || res.Outcome == task.OutcomeSucceeded {
			continue
		}
		out = append(out, FailureRecord{
			Phase: res.Phase,
			Task:  res.Task,
			Error: res.Error,
			Fault: res.Outcome == task.OutcomeFault,
		})
	}
	return out
}

// Counts tallies results by status: succeeded, failed, fault, skipped.
func (r *Recorder) Counts() map[string]int {
	counts := map[string]int{}
	for _, res := range r.Results() {
		counts[res.Status()]++
	}
	return counts
}
