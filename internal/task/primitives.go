package task

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/aahsnr/fedora-setup/internal/sysexec"
)

func cmd(name string, args ...string) sysexec.Command {
	return sysexec.Command{Name: name, Args: args}
}

// exitedNonZero reports whether err is a clean non-zero exit, the normal
// "predicate is false" answer of a query.
func exitedNonZero(err error) bool {
	var exitErr *sysexec.ExitError
	return errors.As(err, &exitErr)
}

// alreadyDone logs the satisfied-predicate message every primitive shares.
func (c *Context) alreadyDone(what string) {
	c.Log.Info("already done: " + what)
}

// EnsurePackages installs whichever of pkgs rpm does not report as installed.
func (c *Context) EnsurePackages(ctx context.Context, pkgs ...string) error {
	if len(pkgs) == 0 {
		return nil
	}
	missing, err := c.missingPackages(ctx, pkgs)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		c.alreadyDone(fmt.Sprintf("%d packages installed", len(pkgs)))
		return nil
	}

	c.Log.Info(fmt.Sprintf("installing %d packages", len(missing)), map[string]interface{}{
		"packages": strings.Join(missing, " "),
	})
	if err := c.Mutate(ctx, cmd("dnf", append([]string{"install", "-y"}, missing...)...)); err != nil {
		return fmt.Errorf("failed to install packages: %w", err)
	}
	return nil
}

func (c *Context) missingPackages(ctx context.Context, pkgs []string) ([]string, error) {
	res, err := c.Query(ctx, cmd("rpm", append([]string{"-q"}, pkgs...)...))
	if err == nil {
		return nil, nil
	}
	if !exitedNonZero(err) {
		return nil, err
	}

	var missing []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasSuffix(line, "is not installed") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == "package" {
			missing = append(missing, fields[1])
		}
	}
	if len(missing) == 0 {
		missing = pkgs
	}
	return missing, nil
}

// EnsureGroup installs a dnf package group unless it is already installed.
func (c *Context) EnsureGroup(ctx context.Context, group string) error {
	res, err := c.Query(ctx, cmd("dnf", "group", "list", "--installed"))
	if err != nil && !exitedNonZero(err) {
		return err
	}
	if err == nil && containsField(res.Stdout, group) {
		c.alreadyDone("group " + group)
		return nil
	}
	if err := c.Mutate(ctx, cmd("dnf", "group", "install", "-y", group)); err != nil {
		return fmt.Errorf("failed to install group %s: %w", group, err)
	}
	return nil
}

// EnsureBinary installs pkg unless bin is already on PATH.
func (c *Context) EnsureBinary(ctx context.Context, bin, pkg string) error {
	_, err := c.Query(ctx, cmd("sh", "-c", "command -v "+bin))
	if err == nil {
		c.alreadyDone(bin + " available")
		return nil
	}
	if !exitedNonZero(err) {
		return err
	}
	return c.EnsurePackages(ctx, pkg)
}

// EnsureRepository runs install unless repoID is listed as enabled.
func (c *Context) EnsureRepository(ctx context.Context, repoID string, install sysexec.Command) error {
	enabled, err := c.repoEnabled(ctx, repoID)
	if err != nil {
		return err
	}
	if enabled {
		c.alreadyDone("repository " + repoID + " enabled")
		return nil
	}
	if err := c.Mutate(ctx, install); err != nil {
		return fmt.Errorf("failed to enable repository %s: %w", repoID, err)
	}
	return nil
}

// EnsureCopr enables the COPR project owner/name.
func (c *Context) EnsureCopr(ctx context.Context, project string) error {
	owner, name, ok := strings.Cut(project, "/")
	if !ok || owner == "" || name == "" {
		return fmt.Errorf("invalid copr project %q, want owner/name", project)
	}
	repoID := fmt.Sprintf("copr:copr.fedorainfracloud.org:%s:%s", owner, name)
	return c.EnsureRepository(ctx, repoID, cmd("dnf", "copr", "enable", "-y", project))
}

func (c *Context) repoEnabled(ctx context.Context, repoID string) (bool, error) {
	res, err := c.Query(ctx, cmd("dnf", "repolist", "--enabled"))
	if err != nil {
		return false, fmt.Errorf("failed to list repositories: %w", err)
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == repoID {
			return true, nil
		}
	}
	return false, nil
}

// EnsureFlatpakRemote adds a per-user flatpak remote.
func (c *Context) EnsureFlatpakRemote(ctx context.Context, name, url string) error {
	res, err := c.Query(ctx, c.AsUser(cmd("flatpak", "remote-list", "--user", "--columns=name")))
	if err != nil && !exitedNonZero(err) {
		return err
	}
	if err == nil && containsField(res.Stdout, name) {
		c.alreadyDone("flatpak remote " + name)
		return nil
	}
	if err := c.Mutate(ctx, c.AsUser(cmd("flatpak", "remote-add", "--user", "--if-not-exists", name, url))); err != nil {
		return fmt.Errorf("failed to add flatpak remote %s: %w", name, err)
	}
	return nil
}

// EnsureFlatpakApp installs app for the invoking user from remote.
func (c *Context) EnsureFlatpakApp(ctx context.Context, remote, app string) error {
	_, err := c.Query(ctx, c.AsUser(cmd("flatpak", "info", "--user", app)))
	if err == nil {
		c.alreadyDone("flatpak " + app)
		return nil
	}
	if !exitedNonZero(err) {
		return err
	}
	if err := c.Mutate(ctx, c.AsUser(cmd("flatpak", "install", "--user", "-y", "--noninteractive", remote, app))); err != nil {
		return fmt.Errorf("failed to install flatpak %s: %w", app, err)
	}
	return nil
}

// EnsureService enables and starts unit. user selects the invoking user's
// systemd instance.
func (c *Context) EnsureService(ctx context.Context, unit string, user bool) error {
	systemctl := func(args ...string) sysexec.Command {
		if user {
			return c.AsUser(cmd("systemctl", append([]string{"--user"}, args...)...))
		}
		return cmd("systemctl", args...)
	}

	_, enabledErr := c.Query(ctx, systemctl("is-enabled", "--quiet", unit))
	if enabledErr != nil && !exitedNonZero(enabledErr) {
		return enabledErr
	}
	if enabledErr == nil {
		_, activeErr := c.Query(ctx, systemctl("is-active", "--quiet", unit))
		if activeErr != nil && !exitedNonZero(activeErr) {
			return activeErr
		}
		if activeErr == nil {
			c.alreadyDone("service " + unit + " enabled and active")
			return nil
		}
	}

	if err := c.Mutate(ctx, systemctl("daemon-reload")); err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}
	if err := c.Mutate(ctx, systemctl("enable", "--now", unit)); err != nil {
		return fmt.Errorf("failed to enable service %s: %w", unit, err)
	}
	return nil
}

// WriteIfDifferent writes content to path unless the file already holds
// exactly those bytes. It reports whether a write was (or, in dry-run, would
// have been) made.
func (c *Context) WriteIfDifferent(path string, content []byte, perm os.FileMode) (bool, error) {
	current, err := afero.ReadFile(c.Fs, path)
	switch {
	case err == nil && bytes.Equal(current, content):
		c.alreadyDone(path + " up to date")
		return false, nil
	case err != nil && !os.IsNotExist(err):
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if c.DryRun {
		c.Log.Info("[dry-run] would write "+path, map[string]interface{}{"bytes": len(content)})
		return true, nil
	}

	if err := c.Fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := afero.WriteFile(c.Fs, path, content, perm); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	c.Log.Info("wrote " + path)
	return true, nil
}

// EnsureSymlink points link at target.
func (c *Context) EnsureSymlink(ctx context.Context, target, link string, asUser bool) error {
	wrap := func(sc sysexec.Command) sysexec.Command {
		if asUser {
			return c.AsUser(sc)
		}
		return sc
	}

	res, err := c.Query(ctx, wrap(cmd("readlink", link)))
	if err != nil && !exitedNonZero(err) {
		return err
	}
	if err == nil && strings.TrimSpace(res.Stdout) == target {
		c.alreadyDone(link + " -> " + target)
		return nil
	}
	if err := c.Mutate(ctx, wrap(cmd("ln", "-sfn", target, link))); err != nil {
		return fmt.Errorf("failed to link %s: %w", link, err)
	}
	return nil
}

// EnsureCheckout clones repo into dir, or when update is set brings an
// existing checkout up to the remote HEAD.
func (c *Context) EnsureCheckout(ctx context.Context, repo, dir string, update, asUser bool) error {
	wrap := func(sc sysexec.Command) sysexec.Command {
		if asUser {
			return c.AsUser(sc)
		}
		return sc
	}

	exists, err := afero.DirExists(c.Fs, filepath.Join(dir, ".git"))
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if !exists {
		if err := c.Mutate(ctx, wrap(cmd("git", "clone", "--depth", "1", repo, dir))); err != nil {
			return fmt.Errorf("failed to clone %s: %w", repo, err)
		}
		return nil
	}
	if !update {
		c.alreadyDone(dir + " checked out")
		return nil
	}

	local, err := c.Query(ctx, wrap(cmd("git", "-C", dir, "rev-parse", "HEAD")))
	if err != nil {
		return fmt.Errorf("failed to read HEAD of %s: %w", dir, err)
	}
	remote, err := c.Query(ctx, wrap(cmd("git", "-C", dir, "ls-remote", "origin", "HEAD")))
	if err != nil {
		return fmt.Errorf("failed to query remote of %s: %w", dir, err)
	}
	if rf := strings.Fields(remote.Stdout); len(rf) > 0 && rf[0] == strings.TrimSpace(local.Stdout) {
		c.alreadyDone(dir + " up to date")
		return nil
	}
	if err := c.Mutate(ctx, wrap(cmd("git", "-C", dir, "pull", "--ff-only"))); err != nil {
		return fmt.Errorf("failed to update %s: %w", dir, err)
	}
	return nil
}

// EnsureGitConfig sets a global git option for the invoking user.
func (c *Context) EnsureGitConfig(ctx context.Context, key, value string) error {
	res, err := c.Query(ctx, c.AsUser(cmd("git", "config", "--global", "--get", key)))
	if err != nil && !exitedNonZero(err) {
		return err
	}
	if err == nil && strings.TrimSpace(res.Stdout) == value {
		c.alreadyDone("git " + key)
		return nil
	}
	if err := c.Mutate(ctx, c.AsUser(cmd("git", "config", "--global", key, value))); err != nil {
		return fmt.Errorf("failed to set git %s: %w", key, err)
	}
	return nil
}

func containsField(out, want string) bool {
	for _, line := range strings.Split(out, "\n") {
		for _, f := range strings.Fields(line) {
			if f == want {
				return true
			}
		}
	}
	return false
}
