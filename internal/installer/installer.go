// Package installer drives a whole invocation: pre-flight, the pre-reboot
// phase and reboot scheduling, the post-reboot phase after a resume, or a
// single manual phase built from category flags.
package installer

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/afero"

	"github.com/aahsnr/fedora-setup/internal/engine"
	"github.com/aahsnr/fedora-setup/internal/ledger"
	"github.com/aahsnr/fedora-setup/internal/task"
)

// Preflight runs the checks that must pass before anything is changed.
type Preflight interface {
	Run(ctx context.Context) error
}

// Resumer bridges the two automated phases across the reboot.
type Resumer interface {
	Pending() bool
	Schedule(ctx context.Context) error
	Complete(ctx context.Context) error
}

// Options selects what Run does.
type Options struct {
	PreReboot  engine.Phase
	PostReboot engine.Phase
	// Manual, when set, is run once instead of the automated flow.
	Manual *engine.Phase
	// Resume runs the post-reboot phase; set by the resume unit.
	Resume bool
	// Fresh clears the ledger before an automated run.
	Fresh     bool
	Preflight Preflight
	Resumer   Resumer
	Observers []engine.Observer
}

// Result is the outcome of Run.
type Result struct {
	State       State
	Transitions []State
	Phases      []engine.PhaseResult
	// RebootScheduled is set when the process should end and the machine
	// is about to reboot.
	RebootScheduled bool
	// Fault marks failures caused by an internal error rather than a task.
	Fault bool
	Err   error
}

// ExitCode maps the result onto the process exit status.
func (r Result) ExitCode() int {
	if r.State == StateFailed {
		return 1
	}
	return 0
}

// Installer runs one invocation.
type Installer struct {
	ec     *task.Context
	ledger *ledger.Ledger
	opts   Options
	state  State
	result Result
}

// New creates an installer recording progress into l.
func New(ec *task.Context, l *ledger.Ledger, opts Options) *Installer {
	return &Installer{ec: ec, ledger: l, opts: opts, state: StateStart}
}

// State returns the current state.
func (i *Installer) State() State { return i.state }

// Run executes the selected flow to a terminal state, or to
// StateScheduleReboot when the machine is rebooting.
func (i *Installer) Run(ctx context.Context) Result {
	i.result = Result{State: i.state, Transitions: []State{i.state}}

	if err := i.transition(StatePreflight); err != nil {
		return i.failed(err)
	}
	if i.opts.Preflight != nil {
		if err := i.opts.Preflight.Run(ctx); err != nil {
			return i.failed(err)
		}
	}

	switch {
	case i.opts.Manual != nil:
		return i.runManual(ctx, *i.opts.Manual)
	case i.opts.Resume:
		if err := i.transition(StateResumed); err != nil {
			return i.failed(err)
		}
		return i.runPostReboot(ctx)
	default:
		return i.runAutomated(ctx)
	}
}

func (i *Installer) runAutomated(ctx context.Context) Result {
	if i.opts.Fresh && i.ledger.Len() > 0 {
		i.ec.Log.Info(fmt.Sprintf("--fresh: discarding %d completed tasks", i.ledger.Len()))
		if err := i.ledger.Clear(); err != nil {
			return i.failed(err)
		}
	} else if i.ledger.Len() > 0 {
		i.ec.Log.Info(fmt.Sprintf("continuing previous run: %d tasks already completed", i.ledger.Len()))
	}
	if i.opts.Resumer.Pending() {
		i.ec.Log.Warn("a resume unit is already installed; the pre-reboot phase will be verified and the reboot scheduled again")
	}

	if err := i.transition(StatePreRebootPhase); err != nil {
		return i.failed(err)
	}
	if !i.runPhase(ctx, i.ledger, i.opts.PreReboot) {
		return i.result
	}

	if err := i.transition(StateScheduleReboot); err != nil {
		return i.failed(err)
	}
	if err := i.opts.Resumer.Schedule(ctx); err != nil {
		return i.failed(err)
	}

	if !i.ec.DryRun {
		i.result.RebootScheduled = true
		return i.result
	}

	i.ec.Log.Info("[dry-run] continuing with the post-reboot phase in this process")
	if err := i.transition(StateResumed); err != nil {
		return i.failed(err)
	}
	return i.runPostReboot(ctx)
}

func (i *Installer) runPostReboot(ctx context.Context) Result {
	if err := i.transition(StatePostRebootPhase); err != nil {
		return i.failed(err)
	}
	if !i.runPhase(ctx, i.ledger, i.opts.PostReboot) {
		return i.result
	}
	if err := i.opts.Resumer.Complete(ctx); err != nil {
		return i.failed(err)
	}
	if err := i.transition(StateDone); err != nil {
		return i.failed(err)
	}
	return i.result
}

// runManual runs phase against a throwaway ledger so manual runs neither
// skip nor record tasks of an automated cycle in progress.
func (i *Installer) runManual(ctx context.Context, phase engine.Phase) Result {
	if err := i.transition(StateManualPhase); err != nil {
		return i.failed(err)
	}
	scratch, err := ledger.Load(afero.NewMemMapFs(), i.ledger.Path(), true)
	if err != nil {
		return i.failed(err)
	}
	if !i.runPhase(ctx, scratch, phase) {
		return i.result
	}
	if err := i.transition(StateDone); err != nil {
		return i.failed(err)
	}
	return i.result
}

// runPhase reports whether the phase succeeded; on failure the installer
// has already moved to StateFailed.
func (i *Installer) runPhase(ctx context.Context, l *ledger.Ledger, phase engine.Phase) bool {
	res := engine.New(i.ec, l, i.opts.Observers...).Run(ctx, phase)
	i.result.Phases = append(i.result.Phases, res)
	if res.OK() {
		return true
	}
	i.failed(res.Err)
	return false
}

func (i *Installer) transition(to State) error {
	if err := ValidateTransition(i.state, to); err != nil {
		return task.Faultf("installer: %v", err)
	}
	i.ec.Log.Debug(fmt.Sprintf("state %s -> %s", i.state, to))
	i.state = to
	i.result.State = to
	i.result.Transitions = append(i.result.Transitions, to)
	return nil
}

func (i *Installer) failed(err error) Result {
	if i.state != StateFailed {
		i.state = StateFailed
		i.result.State = StateFailed
		i.result.Transitions = append(i.result.Transitions, StateFailed)
	}
	i.result.Err = err
	var f *task.Fault
	i.result.Fault = errors.As(err, &f)
	return i.result
}
