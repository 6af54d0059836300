package catalog

import (
	"context"

	"github.com/aahsnr/fedora-setup/internal/task"
)

func (b *builder) packages() []task.Task {
	cfg := b.cfg
	tasks := []task.Task{
		&task.Packages{Info: info("packages:base", "Install base packages"), Packages: cfg.Packages.Base},
		&task.Packages{Info: info("packages:editors", "Install editors and language tooling"), Packages: cfg.Packages.Editors},
		&task.Packages{Info: info("packages:git", "Install git tooling"), Packages: cfg.Packages.Git},
		&task.Packages{
			Info:     info("packages:multimedia", "Install multimedia codecs and drivers"),
			Groups:   cfg.Packages.Groups,
			Packages: cfg.Packages.Multimedia,
		},
	}

	if cfg.Flatpak.Remote != "" {
		tasks = append(tasks, &task.Repository{
			Info:   info("packages:flatpak-remote", "Add the user flatpak remote"),
			Kind:   task.RepoFlatpak,
			ID:     cfg.Flatpak.Remote,
			Source: cfg.Flatpak.RemoteURL,
		})
		apps := cfg.Flatpak.Apps
		remote := cfg.Flatpak.Remote
		tasks = append(tasks, &task.Step{
			Info: info("packages:flatpak-apps", "Install flatpak applications"),
			Apply: func(ctx context.Context, ec *task.Context) error {
				for _, app := range apps {
					if err := ec.EnsureFlatpakApp(ctx, remote, app); err != nil {
						return err
					}
				}
				return nil
			},
		})
	}
	return tasks
}
