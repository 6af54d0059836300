// Package catalog turns the configuration into the concrete tasks of each
// category and groups them into the pre- and post-reboot phases.
package catalog

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aahsnr/fedora-setup/internal/config"
	"github.com/aahsnr/fedora-setup/internal/engine"
	"github.com/aahsnr/fedora-setup/internal/task"
)

// Category groups related tasks and maps to one manual-mode flag.
type Category string

const (
	Repos         Category = "repos"
	Packages      Category = "packages"
	Hardening     Category = "hardening"
	Hardware      Category = "hardware"
	BuildCategory Category = "build"
	UserConfig    Category = "user-config"
	Desktop       Category = "desktop"
	Cleanup       Category = "cleanup"
)

// Phase names.
const (
	PreRebootPhase  = "pre-reboot"
	PostRebootPhase = "post-reboot"
	ManualPhase     = "manual"
)

var (
	preReboot  = []Category{Repos, Packages, Hardening, Hardware}
	postReboot = []Category{BuildCategory, UserConfig, Desktop, Cleanup}
)

// Categories returns every category in execution order.
func Categories() []Category {
	out := make([]Category, 0, len(preReboot)+len(postReboot))
	out = append(out, preReboot...)
	return append(out, postReboot...)
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories() {
		if string(c) == s {
			return c, nil
		}
	}
	names := make([]string, 0, len(Categories()))
	for _, c := range Categories() {
		names = append(names, string(c))
	}
	return "", fmt.Errorf("unknown category %q (valid: %s)", s, strings.Join(names, ", "))
}

// Options supplies host facts that shape task bodies.
type Options struct {
	// MemTotal returns physical memory in bytes; used for swap sizing.
	MemTotal func() (uint64, error)
}

func (o *Options) fill() {
	if o.MemTotal == nil {
		o.MemTotal = func() (uint64, error) {
			vm, err := mem.VirtualMemory()
			if err != nil {
				return 0, err
			}
			return vm.Total, nil
		}
	}
}

// Registry holds the built tasks per category.
type Registry struct {
	entries map[Category][]task.Task
}

// Build creates every task described by cfg.
func Build(cfg *config.Config, opts Options) (*Registry, error) {
	opts.fill()
	b := &builder{cfg: cfg, opts: opts}

	r := &Registry{entries: map[Category][]task.Task{
		Repos:         b.repos(),
		Packages:      b.packages(),
		Hardening:     b.hardening(),
		Hardware:      b.hardware(),
		BuildCategory: b.build(),
		UserConfig:    b.userConfig(),
		Desktop:       b.desktop(),
		Cleanup:       b.cleanup(),
	}}

	if err := engine.ValidateUnique(r.PreReboot(), r.PostReboot()); err != nil {
		return nil, err
	}
	return r, nil
}

// Tasks returns the tasks of one category.
func (r *Registry) Tasks(c Category) []task.Task {
	src := r.entries[c]
	out := make([]task.Task, len(src))
	copy(out, src)
	return out
}

// PreReboot is the phase run before the mandatory reboot.
func (r *Registry) PreReboot() engine.Phase {
	return engine.NewPhase(PreRebootPhase, r.collect(preReboot)...)
}

// PostReboot is the phase run by the resume unit after the reboot.
func (r *Registry) PostReboot() engine.Phase {
	return engine.NewPhase(PostRebootPhase, r.collect(postReboot)...)
}

// Selected builds the manual phase for cats, in execution order regardless
// of the order they were given.
func (r *Registry) Selected(cats ...Category) engine.Phase {
	want := make(map[Category]bool, len(cats))
	for _, c := range cats {
		want[c] = true
	}
	var ordered []Category
	for _, c := range Categories() {
		if want[c] {
			ordered = append(ordered, c)
		}
	}
	return engine.NewPhase(ManualPhase, r.collect(ordered)...)
}

func (r *Registry) collect(cats []Category) []task.Task {
	var out []task.Task
	for _, c := range cats {
		out = append(out, r.entries[c]...)
	}
	return out
}

// builder carries the config while the category constructors run.
type builder struct {
	cfg  *config.Config
	opts Options
}

func info(id, summary string) task.Info {
	return task.Info{ID: id, Summary: summary}
}
