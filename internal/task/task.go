// Package task defines the unit of installation work and the idempotency
// primitives tasks are built from.
package task

import (
	"context"
	"errors"
	"fmt"
)

// Task is one idempotent step of the installation. Execute returns nil when
// the goal state already held or was reached. Any other error halts the
// phase; errors wrapping *Fault are treated as programming errors.
type Task interface {
	Name() string
	Description() string
	Execute(ctx context.Context, ec *Context) error
}

// Info carries the identity shared by every task variant.
type Info struct {
	ID      string
	Summary string
}

// Name returns the unique task name recorded in the ledger.
func (i Info) Name() string { return i.ID }

// Description returns the human readable summary.
func (i Info) Description() string { return i.Summary }

// Outcome classifies the result of a task execution.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeFailed
	OutcomeFault
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeFault:
		return "fault"
	default:
		return "unknown"
	}
}

// Fault is an unexpected internal error: a recovered panic or a broken
// invariant inside a task body.
type Fault struct {
	Task  string
	Value interface{}
	Stack []byte
	Err   error
}

func (f *Fault) Error() string {
	prefix := "internal error"
	if f.Task != "" {
		prefix = fmt.Sprintf("internal error in task %s", f.Task)
	}
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", prefix, f.Err)
	}
	return fmt.Sprintf("%s: panic: %v", prefix, f.Value)
}

func (f *Fault) Unwrap() error { return f.Err }

// Faultf builds a Fault for a broken invariant.
func Faultf(format string, args ...interface{}) error {
	return &Fault{Err: fmt.Errorf(format, args...)}
}

// Classify maps an Execute error to its Outcome.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSucceeded
	}
	var fault *Fault
	if errors.As(err, &fault) {
		return OutcomeFault
	}
	return OutcomeFailed
}
