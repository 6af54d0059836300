package engine

import (
	"fmt"

	"github.com/aahsnr/fedora-setup/internal/task"
)

// Phase is a named, ordered, immutable list of tasks.
type Phase struct {
	name  string
	tasks []task.Task
}

// NewPhase builds a phase. The task slice is copied.
func NewPhase(name string, tasks ...task.Task) Phase {
	cp := make([]task.Task, len(tasks))
	copy(cp, tasks)
	return Phase{name: name, tasks: cp}
}

// Name returns the phase name.
func (p Phase) Name() string { return p.name }

// Tasks returns a copy of the task list.
func (p Phase) Tasks() []task.Task {
	cp := make([]task.Task, len(p.tasks))
	copy(cp, p.tasks)
	return cp
}

// Len returns the number of tasks.
func (p Phase) Len() int { return len(p.tasks) }

// ValidateUnique fails when a task name appears twice across phases.
func ValidateUnique(phases ...Phase) error {
	seen := make(map[string]string)
	for _, p := range phases {
		for _, t := range p.tasks {
			if t.Name() == "" {
				return fmt.Errorf("phase %s contains a task without a name", p.name)
			}
			if prev, ok := seen[t.Name()]; ok {
				return fmt.Errorf("duplicate task name %q in phases %s and %s", t.Name(), prev, p.name)
			}
			seen[t.Name()] = p.name
		}
	}
	return nil
}
