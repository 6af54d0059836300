package sysexec

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Handler computes the response for a faked command.
type Handler func(cmd Command) (Result, error)

type rule struct {
	prefix  string
	handler Handler
}

// Fake is an in-memory Runner that records every call and answers from
// prefix rules. The most recently registered matching rule wins; commands
// matching no rule succeed with empty output.
type Fake struct {
	mu    sync.Mutex
	rules []rule
	calls []Command
}

// NewFake creates an empty fake runner.
func NewFake() *Fake {
	return &Fake{}
}

// Handle registers fn for commands whose String() starts with prefix.
func (f *Fake) Handle(prefix string, fn Handler) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{prefix: prefix, handler: fn})
	return f
}

// On answers commands matching prefix with res; a non-zero exit code is
// reported as *ExitError.
func (f *Fake) On(prefix string, res Result) *Fake {
	return f.Handle(prefix, func(cmd Command) (Result, error) {
		if res.ExitCode != 0 {
			return res, &ExitError{Command: cmd.String(), Result: res}
		}
		return res, nil
	})
}

// Fail makes commands matching prefix exit with code and stderr.
func (f *Fake) Fail(prefix string, code int, stderr string) *Fake {
	return f.On(prefix, Result{ExitCode: code, Stderr: stderr})
}

// Missing makes every invocation of tool fail with ErrToolNotFound.
func (f *Fake) Missing(tool string) *Fake {
	return f.Handle(tool, func(cmd Command) (Result, error) {
		if cmd.Name != tool {
			return Result{}, nil
		}
		return Result{ExitCode: -1}, fmt.Errorf("%w: %s", ErrToolNotFound, tool)
	})
}

// Run implements Runner.
func (f *Fake) Run(ctx context.Context, cmd Command) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	var h Handler
	line := cmd.String()
	for i := len(f.rules) - 1; i >= 0; i-- {
		if strings.HasPrefix(line, f.rules[i].prefix) {
			h = f.rules[i].handler
			break
		}
	}
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{ExitCode: -1}, err
	}
	if h == nil {
		return Result{}, nil
	}
	return h(cmd)
}

// Calls returns every recorded command in order.
func (f *Fake) Calls() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Command, len(f.calls))
	copy(out, f.calls)
	return out
}

// Mutations returns the recorded commands marked Mutating.
func (f *Fake) Mutations() []Command {
	var out []Command
	for _, c := range f.Calls() {
		if c.Mutating {
			out = append(out, c)
		}
	}
	return out
}

// Count returns how many recorded commands start with prefix.
func (f *Fake) Count(prefix string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.HasPrefix(c.String(), prefix) {
			n++
		}
	}
	return n
}

// Ran reports whether any recorded command starts with prefix.
func (f *Fake) Ran(prefix string) bool {
	return f.Count(prefix) > 0
}

// Reset forgets recorded calls but keeps the rules.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}
