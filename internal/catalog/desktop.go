package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/aahsnr/fedora-setup/internal/sysexec"
	"github.com/aahsnr/fedora-setup/internal/task"
)

// dnf check-update exits 100 when updates are available.
const checkUpdateAvailable = 100

func (b *builder) desktop() []task.Task {
	cfg := b.cfg
	var tasks []task.Task
	if len(cfg.Packages.Hyprland) > 0 {
		tasks = append(tasks, &task.Packages{
			Info:     info("desktop:hyprland", "Install Hyprland and its companions"),
			Packages: cfg.Packages.Hyprland,
		})
	}
	if len(cfg.Services.User) > 0 {
		tasks = append(tasks, &task.Service{
			Info:  info("desktop:user-services", "Enable audio and keyring user services"),
			Units: cfg.Services.User,
			User:  true,
		})
	}
	if len(cfg.Services.Hyprland) > 0 {
		tasks = append(tasks, &task.Service{
			Info:  info("desktop:hyprland-services", "Enable Hyprland session services"),
			Units: cfg.Services.Hyprland,
			User:  true,
		})
	}
	return tasks
}

func (b *builder) cleanup() []task.Task {
	return []task.Task{
		&task.Step{
			Info: info("cleanup:autoremove", "Remove unneeded packages"),
			Check: func(ctx context.Context, ec *task.Context) (bool, error) {
				res, err := ec.Query(ctx, sysexec.Command{Name: "dnf", Args: []string{"repoquery", "--unneeded", "-q"}})
				if err != nil {
					return false, err
				}
				return strings.TrimSpace(res.Stdout) == "", nil
			},
			Apply: func(ctx context.Context, ec *task.Context) error {
				return ec.Mutate(ctx, sysexec.Command{Name: "dnf", Args: []string{"autoremove", "-y"}})
			},
		},
		&task.Step{
			Info: info("cleanup:system-update", "Apply pending system updates"),
			Check: func(ctx context.Context, ec *task.Context) (bool, error) {
				_, err := ec.Query(ctx, sysexec.Command{Name: "dnf", Args: []string{"check-update", "-q"}})
				var exitErr *sysexec.ExitError
				switch {
				case err == nil:
					return true, nil
				case errors.As(err, &exitErr) && exitErr.Result.ExitCode == checkUpdateAvailable:
					return false, nil
				default:
					return false, err
				}
			},
			Apply: func(ctx context.Context, ec *task.Context) error {
				return ec.Mutate(ctx, sysexec.Command{Name: "dnf", Args: []string{"upgrade", "-y", "--refresh"}})
			},
		},
	}
}
