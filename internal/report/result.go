// Package report collects per-task results of a run and renders them as a
// summary table and Prometheus metrics.
package report

import (
	"time"

	"github.com/aahsnr/fedora-setup/internal/task"
)

// TaskResult is the immutable record of one task execution or skip.
type TaskResult struct {
	Phase       string        `json:"phase"`
	Task        string        `json:"task"`
	Description string        `json:"description"`
	Skipped     bool          `json:"skipped"`
	Outcome     task.Outcome  `json:"outcome"`
	Error       string        `json:"error,omitempty"`
	StartTime   time.Time     `json:"start_time"`
	Duration    time.Duration `json:"duration"`
}

// Status renders the result for tables and the history store.
func (r TaskResult) Status() string {
	if r.Skipped {
		return "skipped"
	}
	return r.Outcome.String()
}

// FailureRecord names a task that failed and why. Failure records live only
// in memory for the end-of-run summary.
type FailureRecord struct {
	Phase string `json:"phase"`
	Task  string `json:"task"`
	Error string `json:"error"`
	Fault bool   `json:"fault"`
}
