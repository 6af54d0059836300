package catalog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/aahsnr/fedora-setup/internal/sysexec"
	"github.com/aahsnr/fedora-setup/internal/task"
)

const (
	nixInstallerURL = "https://install.determinate.systems/nix"
	nixProfile      = "/nix/var/nix/profiles/default/etc/profile.d/nix-daemon.sh"
)

const tmuxUnit = `[Unit]
Description=tmux default session (detached)
Documentation=man:tmux(1)
After=graphical-session.target

[Service]
Type=forking
WorkingDirectory=%h
ExecStart=/usr/bin/tmux new-session -d -s main
ExecStop=/usr/bin/tmux kill-session -t main
KillMode=none
Restart=on-failure

[Install]
WantedBy=default.target
`

func (b *builder) userConfig() []task.Task {
	cfg := b.cfg
	owner := cfg.User
	unitDir := cfg.UserPath("~/.config/systemd/user")
	tmuxDir := cfg.UserPath("~/.tmux/plugins")

	tasks := []task.Task{
		gitConfigStep(b),
		userDirsStep(unitDir, tmuxDir, cfg.UserPath("~/.config")),
	}
	if cfg.Tmux.Config != "" {
		tasks = append(tasks,
			&task.Step{
				Info: info("user-config:tmux", "Link the tmux configuration"),
				Apply: func(ctx context.Context, ec *task.Context) error {
					return ec.EnsureSymlink(ctx, cfg.UserPath(cfg.Tmux.Config), cfg.UserPath("~/.tmux.conf"), true)
				},
			},
			&task.Checkout{
				Info:   info("user-config:tpm", "Check out the tmux plugin manager"),
				Repo:   cfg.Tmux.TPMRepo,
				Dir:    filepath.Join(tmuxDir, "tpm"),
				Update: true,
				AsUser: true,
			},
			&task.File{
				Info:    info("user-config:tmux-service", "Install the tmux user unit"),
				Path:    filepath.Join(unitDir, "tmux.service"),
				Content: []byte(tmuxUnit),
				Owner:   &owner,
			},
			&task.Service{
				Info:  info("user-config:tmux-user-service", "Enable the tmux user unit"),
				Units: []string{"tmux.service"},
				User:  true,
			},
		)
	}
	tasks = append(tasks, nixStep())
	if cfg.HomeManager.Source != "" {
		tasks = append(tasks, homeManagerStep(cfg.UserPath(cfg.HomeManager.Source), cfg.UserPath("~/.config/home-manager")))
	}
	return tasks
}

func gitConfigStep(b *builder) task.Task {
	settings := b.cfg.Git
	return &task.Step{
		Info: info("user-config:git", "Apply global git settings"),
		Apply: func(ctx context.Context, ec *task.Context) error {
			for _, s := range settings {
				if err := ec.EnsureGitConfig(ctx, s.Key, s.Value); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// userDirsStep creates directories in the user's home as that user so they
// are not left owned by root.
func userDirsStep(dirs ...string) task.Task {
	missing := func(fs afero.Fs) ([]string, error) {
		var out []string
		for _, d := range dirs {
			ok, err := afero.DirExists(fs, d)
			if err != nil {
				return nil, err
			}
			if !ok {
				out = append(out, d)
			}
		}
		return out, nil
	}
	return &task.Step{
		Info: info("user-config:dirs", "Create user configuration directories"),
		Check: func(ctx context.Context, ec *task.Context) (bool, error) {
			m, err := missing(ec.Fs)
			return len(m) == 0, err
		},
		Apply: func(ctx context.Context, ec *task.Context) error {
			m, err := missing(ec.Fs)
			if err != nil {
				return err
			}
			args := append([]string{"-p"}, m...)
			return ec.Mutate(ctx, ec.AsUser(sysexec.Command{Name: "mkdir", Args: args}))
		},
	}
}

func nixStep() task.Task {
	return &task.Step{
		Info: info("user-config:nix", "Install Nix"),
		Check: func(ctx context.Context, ec *task.Context) (bool, error) {
			return afero.Exists(ec.Fs, nixProfile)
		},
		Apply: func(ctx context.Context, ec *task.Context) error {
			script := fmt.Sprintf("curl --proto '=https' --tlsv1.2 -sSf -L %s | sh -s -- install --determinate --no-confirm", nixInstallerURL)
			if err := ec.Mutate(ctx, sysexec.Command{Name: "sh", Args: []string{"-c", script}}); err != nil {
				return fmt.Errorf("nix installation failed: %w", err)
			}
			return nil
		},
	}
}

func withNix(script string) sysexec.Command {
	return sysexec.Command{Name: "bash", Args: []string{"-c", ". " + nixProfile + " && " + script}}
}

func homeManagerStep(source, link string) task.Task {
	return &task.Step{
		Info: info("user-config:home-manager", "Link and switch the home-manager configuration"),
		Check: func(ctx context.Context, ec *task.Context) (bool, error) {
			if _, err := ec.Query(ctx, ec.AsUser(withNix("command -v home-manager"))); err != nil {
				return false, nil
			}
			res, err := ec.Query(ctx, ec.AsUser(sysexec.Command{Name: "readlink", Args: []string{link}}))
			if err != nil {
				return false, nil
			}
			return strings.TrimSpace(res.Stdout) == source, nil
		},
		Apply: func(ctx context.Context, ec *task.Context) error {
			ok, err := afero.DirExists(ec.Fs, source)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("home-manager source %s not found", source)
			}
			if _, err := ec.Query(ctx, ec.AsUser(withNix("command -v home-manager"))); err != nil {
				if err := ec.Mutate(ctx, ec.AsUser(withNix("nix run home-manager/master -- init --switch"))); err != nil {
					return fmt.Errorf("home-manager init failed: %w", err)
				}
			}

			// A real directory from "init" has to go before the link can replace it.
			if isLink, err := isSymlink(ctx, ec, link); err != nil {
				return err
			} else if !isLink {
				if exists, _ := afero.Exists(ec.Fs, link); exists {
					ec.Log.Warn("replacing existing directory " + link)
					if err := ec.Mutate(ctx, ec.AsUser(sysexec.Command{Name: "rm", Args: []string{"-rf", link}})); err != nil {
						return err
					}
				}
			}
			if err := ec.EnsureSymlink(ctx, source, link, true); err != nil {
				return err
			}
			if err := ec.Mutate(ctx, ec.AsUser(withNix("home-manager switch"))); err != nil {
				return fmt.Errorf("home-manager switch failed: %w", err)
			}
			return nil
		},
	}
}

func isSymlink(ctx context.Context, ec *task.Context, path string) (bool, error) {
	_, err := ec.Query(ctx, sysexec.Command{Name: "test", Args: []string{"-L", path}})
	if err == nil {
		return true, nil
	}
	var exitErr *sysexec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, err
}
