package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/aahsnr/fedora-setup/internal/sysexec"
	"github.com/aahsnr/fedora-setup/internal/task"
	"github.com/aahsnr/fedora-setup/pkg/logging"
)

const nvidiaKmodMacro = "%_with_kmod_nvidia_open 1\n"

func (b *builder) hardening() []task.Task {
	cfg := b.cfg
	tasks := []task.Task{
		&task.Service{Info: info("hardening:services", "Enable entropy and intrusion prevention services"), Units: cfg.Services.System},
	}
	if cfg.Timezone != "" {
		tasks = append(tasks, timezoneStep(cfg.Timezone))
	}
	if cfg.LogDir != "" {
		tasks = append(tasks, &task.File{
			Info:    info("hardening:logrotate", "Rotate fedora-setup logs"),
			Path:    logging.LogrotatePath,
			Content: []byte(logging.LogrotateConfig(cfg.LogDir)),
		})
	}
	return tasks
}

func timezoneStep(tz string) task.Task {
	want := "/usr/share/zoneinfo/" + tz
	return &task.Step{
		Info: info("hardening:timezone", "Set timezone to "+tz),
		Check: func(ctx context.Context, ec *task.Context) (bool, error) {
			res, err := ec.Query(ctx, sysexec.Command{Name: "readlink", Args: []string{"-f", "/etc/localtime"}})
			if err != nil {
				return false, nil
			}
			return strings.TrimSpace(res.Stdout) == want, nil
		},
		Apply: func(ctx context.Context, ec *task.Context) error {
			return ec.Mutate(ctx, sysexec.Command{Name: "timedatectl", Args: []string{"set-timezone", tz}})
		},
	}
}

func (b *builder) hardware() []task.Task {
	cfg := b.cfg
	var tasks []task.Task

	if cfg.Hardware.Swap.Enabled {
		tasks = append(tasks, b.swapStep())
	}
	if cfg.Hardware.NVIDIA {
		tasks = append(tasks,
			&task.Packages{
				Info:     info("hardware:nvidia-packages", "Install NVIDIA akmod driver"),
				Packages: []string{"akmod-nvidia", "xorg-x11-drv-nvidia-cuda", "nvidia-vaapi-driver", "libva-nvidia-driver"},
			},
			&task.File{
				Info:    info("hardware:nvidia-kmod-macro", "Build the open NVIDIA kernel module"),
				Path:    "/etc/rpm/macros.nvidia-kmod",
				Content: []byte(nvidiaKmodMacro),
			},
			&task.Service{
				Info:  info("hardware:nvidia-services", "Enable NVIDIA suspend and resume services"),
				Units: []string{"nvidia-suspend.service", "nvidia-resume.service", "nvidia-hibernate.service"},
			},
			akmodsStep(),
			maskStep("hardware:nvidia-fallback-mask", "nvidia-fallback.service"),
		)
	}
	if cfg.Hardware.ASUS {
		tasks = append(tasks,
			&task.Packages{
				Info:     info("hardware:asus-packages", "Install ASUS laptop tooling"),
				Packages: []string{"asusctl", "power-profiles-daemon", "supergfxctl"},
			},
			&task.Service{
				Info:  info("hardware:asus-services", "Enable ASUS graphics and power services"),
				Units: []string{"supergfxd", "power-profiles-daemon"},
			},
		)
	}
	return tasks
}

func kernelRelease(ctx context.Context, ec *task.Context) (string, error) {
	res, err := ec.Query(ctx, sysexec.Command{Name: "uname", Args: []string{"-r"}})
	if err != nil {
		return "", fmt.Errorf("failed to read kernel release: %w", err)
	}
	k := strings.TrimSpace(res.Stdout)
	if k == "" {
		return "", errors.New("empty kernel release")
	}
	return k, nil
}

func akmodsStep() task.Task {
	return &task.Step{
		Info: info("hardware:nvidia-akmods", "Build NVIDIA kernel modules for the running kernel"),
		Check: func(ctx context.Context, ec *task.Context) (bool, error) {
			k, err := kernelRelease(ctx, ec)
			if err != nil {
				return false, err
			}
			for _, name := range []string{"nvidia.ko", "nvidia.ko.xz"} {
				ok, err := afero.Exists(ec.Fs, fmt.Sprintf("/lib/modules/%s/extra/nvidia/%s", k, name))
				if err != nil {
					return false, err
				}
				if ok {
					return true, nil
				}
			}
			return false, nil
		},
		Apply: func(ctx context.Context, ec *task.Context) error {
			k, err := kernelRelease(ctx, ec)
			if err != nil {
				return err
			}
			return ec.Mutate(ctx, sysexec.Command{Name: "akmods", Args: []string{"--kernels", k, "--rebuild"}})
		},
	}
}

func maskStep(id, unit string) task.Task {
	return &task.Step{
		Info: info(id, "Mask "+unit),
		Check: func(ctx context.Context, ec *task.Context) (bool, error) {
			// is-enabled exits non-zero for masked units but still prints the state.
			res, err := ec.Query(ctx, sysexec.Command{Name: "systemctl", Args: []string{"is-enabled", unit}})
			var exitErr *sysexec.ExitError
			if err != nil && !errors.As(err, &exitErr) {
				return false, err
			}
			return strings.TrimSpace(res.Stdout) == "masked", nil
		},
		Apply: func(ctx context.Context, ec *task.Context) error {
			return ec.Mutate(ctx, sysexec.Command{Name: "systemctl", Args: []string{"mask", unit}})
		},
	}
}
