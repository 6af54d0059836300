package task

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/aahsnr/fedora-setup/internal/sysexec"
)

// Packages installs packages and package groups that are missing.
type Packages struct {
	Info
	Packages []string
	Groups   []string
}

func (t *Packages) Execute(ctx context.Context, ec *Context) error {
	for _, g := range t.Groups {
		if err := ec.EnsureGroup(ctx, g); err != nil {
			return err
		}
	}
	return ec.EnsurePackages(ctx, t.Packages...)
}

// RepoKind selects how a Repository is enabled.
type RepoKind int

const (
	// RepoReleaseRPM installs a release package that drops a .repo file.
	RepoReleaseRPM RepoKind = iota
	// RepoConfigManager flips enabled=1 on a repository shipped disabled.
	RepoConfigManager
	// RepoCopr enables a COPR project given as owner/name.
	RepoCopr
	// RepoFlatpak adds a per-user flatpak remote.
	RepoFlatpak
)

// Repository enables a package source if it is not enabled yet.
type Repository struct {
	Info
	Kind RepoKind
	// ID is the repo id (release RPM, config-manager), owner/name (COPR) or
	// remote name (flatpak).
	ID string
	// Source is the release RPM or flatpakrepo URL.
	Source string
}

func (t *Repository) Execute(ctx context.Context, ec *Context) error {
	switch t.Kind {
	case RepoReleaseRPM:
		return ec.EnsureRepository(ctx, t.ID, cmd("dnf", "install", "-y", t.Source))
	case RepoConfigManager:
		return ec.EnsureRepository(ctx, t.ID, cmd("dnf", "config-manager", "setopt", t.ID+".enabled=1"))
	case RepoCopr:
		return ec.EnsureCopr(ctx, t.ID)
	case RepoFlatpak:
		if err := ec.EnsureBinary(ctx, "flatpak", "flatpak"); err != nil {
			return err
		}
		return ec.EnsureFlatpakRemote(ctx, t.ID, t.Source)
	default:
		return Faultf("repository %s has unknown kind %d", t.ID, t.Kind)
	}
}

// Service enables and starts systemd units.
type Service struct {
	Info
	Units []string
	User  bool
}

func (t *Service) Execute(ctx context.Context, ec *Context) error {
	for _, u := range t.Units {
		if err := ec.EnsureService(ctx, u, t.User); err != nil {
			return err
		}
	}
	return nil
}

// File writes Content (or the contents of Source) to Path when it differs.
type File struct {
	Info
	Path    string
	Content []byte
	Source  string
	Mode    os.FileMode
	// Owner, when set, receives ownership of a freshly written file.
	Owner *sysexec.Identity
}

func (t *File) Execute(ctx context.Context, ec *Context) error {
	content := t.Content
	if t.Source != "" {
		data, err := afero.ReadFile(ec.Fs, t.Source)
		if err != nil {
			return fmt.Errorf("failed to read source %s: %w", t.Source, err)
		}
		content = data
	}
	mode := t.Mode
	if mode == 0 {
		mode = 0644
	}

	changed, err := ec.WriteIfDifferent(t.Path, content, mode)
	if err != nil {
		return err
	}
	if changed && !ec.DryRun && t.Owner != nil {
		if err := ec.Fs.Chown(t.Path, int(t.Owner.UID), int(t.Owner.GID)); err != nil {
			return fmt.Errorf("failed to chown %s: %w", t.Path, err)
		}
	}
	return nil
}

// Checkout keeps a git checkout of Repo at Dir.
type Checkout struct {
	Info
	Repo   string
	Dir    string
	Update bool
	AsUser bool
}

func (t *Checkout) Execute(ctx context.Context, ec *Context) error {
	return ec.EnsureCheckout(ctx, t.Repo, t.Dir, t.Update, t.AsUser)
}

// Step is a task whose body composes primitives directly. Check, when set,
// short-circuits Apply once the goal state holds.
type Step struct {
	Info
	Check func(ctx context.Context, ec *Context) (bool, error)
	Apply func(ctx context.Context, ec *Context) error
}

func (t *Step) Execute(ctx context.Context, ec *Context) error {
	if t.Apply == nil {
		return Faultf("step %s has no body", t.ID)
	}
	if t.Check != nil {
		done, err := t.Check(ctx, ec)
		if err != nil {
			return err
		}
		if done {
			ec.alreadyDone(t.Summary)
			return nil
		}
	}
	return t.Apply(ctx, ec)
}
