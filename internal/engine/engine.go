// Package engine runs phases of tasks against the ledger: completed tasks are
// skipped, successes are recorded immediately and the first failure stops the
// phase.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/aahsnr/fedora-setup/internal/ledger"
	"github.com/aahsnr/fedora-setup/internal/observe"
	"github.com/aahsnr/fedora-setup/internal/report"
	"github.com/aahsnr/fedora-setup/internal/task"
)

// Observer is notified as tasks are skipped, started and finished.
type Observer interface {
	TaskStarted(phase string, t task.Task)
	TaskSkipped(phase string, t task.Task)
	TaskFinished(phase string, t task.Task, outcome task.Outcome, err error, d time.Duration)
}

// PhaseResult summarizes one Run.
type PhaseResult struct {
	Phase    string
	Executed []string
	Skipped  []string
	Failure  *report.FailureRecord
	// Fault is set when the failure was an internal error.
	Fault bool
	Err   error
}

// OK reports whether every task in the phase succeeded or was skipped.
func (r PhaseResult) OK() bool { return r.Failure == nil }

// Engine executes phases.
type Engine struct {
	ec        *task.Context
	ledger    *ledger.Ledger
	observers []Observer
}

// New creates an engine recording into l.
func New(ec *task.Context, l *ledger.Ledger, observers ...Observer) *Engine {
	return &Engine{ec: ec, ledger: l, observers: observers}
}

// Run executes phase in order. Tasks already in the ledger are skipped.
// The first task that fails stops the phase.
func (e *Engine) Run(ctx context.Context, phase Phase) PhaseResult {
	res := PhaseResult{Phase: phase.Name()}
	log := e.ec.Log.WithField("phase", phase.Name())
	log.Info(fmt.Sprintf("starting phase %s (%d tasks)", phase.Name(), phase.Len()))

	for _, t := range phase.tasks {
		name := t.Name()
		if e.ledger.Contains(name) {
			log.Info("skipping completed task " + name)
			res.Skipped = append(res.Skipped, name)
			e.notify(func(o Observer) { o.TaskSkipped(phase.Name(), t) })
			continue
		}

		if err := ctx.Err(); err != nil {
			e.fail(&res, phase.Name(), t, fmt.Errorf("interrupted before %s: %w", name, err))
			break
		}

		tlog := log.WithField("task", name)
		tlog.Info(t.Description())
		e.notify(func(o Observer) { o.TaskStarted(phase.Name(), t) })

		timing := observe.NewTiming()
		err := e.execute(ctx, t, e.ec.WithLogger(tlog))
		timing.Complete()

		if err == nil && !e.ec.DryRun {
			if recErr := e.ledger.Record(name); recErr != nil {
				err = fmt.Errorf("task succeeded but could not be recorded: %w", recErr)
			}
		}

		outcome := task.Classify(err)
		e.notify(func(o Observer) { o.TaskFinished(phase.Name(), t, outcome, err, timing.Duration()) })

		if err != nil {
			e.fail(&res, phase.Name(), t, err)
			break
		}
		res.Executed = append(res.Executed, name)
		tlog.Info(fmt.Sprintf("completed %s in %s", name, timing.Duration().Round(time.Millisecond)))
	}

	if res.OK() {
		log.Info(fmt.Sprintf("phase %s complete: %d executed, %d skipped", phase.Name(), len(res.Executed), len(res.Skipped)))
	}
	return res
}

func (e *Engine) fail(res *PhaseResult, phase string, t task.Task, err error) {
	fault := task.Classify(err) == task.OutcomeFault
	res.Failure = &report.FailureRecord{Phase: phase, Task: t.Name(), Error: err.Error(), Fault: fault}
	res.Fault = fault
	res.Err = err

	fields := map[string]interface{}{"task": t.Name(), "phase": phase}
	if fault {
		e.ec.Log.Error("internal error: "+err.Error(), fields)
		var f *task.Fault
		if errors.As(err, &f) && len(f.Stack) > 0 {
			e.ec.Log.Debug("stack trace", map[string]interface{}{"stack": string(f.Stack)})
		}
		return
	}
	e.ec.Log.Error(fmt.Sprintf("task %s failed: %v", t.Name(), err), fields)
}

// execute runs the task, converting a panic into a Fault.
func (e *Engine) execute(ctx context.Context, t task.Task, ec *task.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &task.Fault{Task: t.Name(), Value: r, Stack: debug.Stack()}
		}
	}()
	err = t.Execute(ctx, ec)
	var f *task.Fault
	if errors.As(err, &f) && f.Task == "" {
		f.Task = t.Name()
	}
	return err
}

func (e *Engine) notify(fn func(Observer)) {
	for _, o := range e.observers {
		fn(o)
	}
}
