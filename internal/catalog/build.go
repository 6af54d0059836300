package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/aahsnr/fedora-setup/internal/config"
	"github.com/aahsnr/fedora-setup/internal/sysexec"
	"github.com/aahsnr/fedora-setup/internal/task"
)

// BuildRoot holds the temporary theme checkouts.
const BuildRoot = "/var/tmp/fedora-setup"

func (b *builder) build() []task.Task {
	cfg := b.cfg
	var tasks []task.Task
	if len(cfg.Packages.ThemeDeps) > 0 {
		tasks = append(tasks, &task.Packages{
			Info:     info("build:theme-deps", "Install theme build dependencies"),
			Packages: cfg.Packages.ThemeDeps,
		})
	}
	for _, th := range cfg.Themes {
		tasks = append(tasks, themeStep(th))
	}
	if len(cfg.Flatpak.Overrides) > 0 {
		tasks = append(tasks, flatpakOverrideStep(cfg.Flatpak.Overrides))
	}
	return tasks
}

func themeStep(th config.ThemeConfig) task.Task {
	dir := filepath.Join(BuildRoot, th.Name)
	return &task.Step{
		Info: info("build:theme:"+th.Name, "Build and install the "+th.Name+" theme"),
		Check: func(ctx context.Context, ec *task.Context) (bool, error) {
			return afero.DirExists(ec.Fs, th.Marker)
		},
		Apply: func(ctx context.Context, ec *task.Context) error {
			if err := ec.EnsureCheckout(ctx, th.Repo, dir, false, false); err != nil {
				return err
			}
			args := append([]string{filepath.Join(dir, "install.sh")}, th.Args...)
			if err := ec.Mutate(ctx, sysexec.Command{Name: "bash", Args: args, Dir: dir}); err != nil {
				return fmt.Errorf("failed to install theme %s: %w", th.Name, err)
			}
			return ec.Mutate(ctx, sysexec.Command{Name: "rm", Args: []string{"-rf", dir}})
		},
	}
}

func flatpakOverrideStep(overrides []string) task.Task {
	return &task.Step{
		Info: info("build:flatpak-theme-overrides", "Expose GTK themes to flatpak apps"),
		Check: func(ctx context.Context, ec *task.Context) (bool, error) {
			res, err := ec.Query(ctx, ec.AsUser(sysexec.Command{Name: "flatpak", Args: []string{"override", "--user", "--show"}}))
			if err != nil {
				return false, err
			}
			return overridesApplied(res.Stdout, overrides), nil
		},
		Apply: func(ctx context.Context, ec *task.Context) error {
			args := append([]string{"override", "--user"}, overrides...)
			return ec.Mutate(ctx, ec.AsUser(sysexec.Command{Name: "flatpak", Args: args}))
		},
	}
}

// overridesApplied reports whether the keyfile printed by
// "flatpak override --show" already carries every --filesystem and --env
// option. Other option kinds are always treated as missing.
func overridesApplied(shown string, overrides []string) bool {
	filesystems := map[string]bool{}
	env := map[string]bool{}
	section := ""
	for _, line := range strings.Split(shown, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = line
			continue
		}
		switch {
		case section == "[Context]" && strings.HasPrefix(line, "filesystems="):
			for _, fs := range strings.Split(strings.TrimPrefix(line, "filesystems="), ";") {
				if fs != "" {
					filesystems[fs] = true
				}
			}
		case section == "[Environment]" && line != "":
			env[line] = true
		}
	}

	for _, o := range overrides {
		switch {
		case strings.HasPrefix(o, "--filesystem="):
			if !filesystems[strings.TrimPrefix(o, "--filesystem=")] {
				return false
			}
		case strings.HasPrefix(o, "--env="):
			if !env[strings.TrimPrefix(o, "--env=")] {
				return false
			}
		default:
			return false
		}
	}
	return true
}
