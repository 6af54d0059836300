package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/aahsnr/fedora-setup/internal/sysexec"
	"github.com/aahsnr/fedora-setup/internal/task"
)

const (
	gib          = uint64(1) << 30
	fstabPath    = "/etc/fstab"
	dracutResume = "/etc/dracut.conf.d/resume.conf"
	swapLabel    = "SWAPFILE"
)

// SwapSize returns the swap file size for a machine with totalBytes of RAM:
// twice RAM below 2G, one and a half times below 8G, RAM size above that.
// The result is rounded up to whole gibibytes and never below 1G.
func SwapSize(totalBytes uint64) string {
	var size uint64
	switch {
	case totalBytes < 2*gib:
		size = totalBytes * 2
	case totalBytes < 8*gib:
		size = totalBytes * 3 / 2
	default:
		size = totalBytes
	}
	g := (size + gib - 1) / gib
	if g < 1 {
		g = 1
	}
	return fmt.Sprintf("%dG", g)
}

func fstabEntry(path string) string {
	return fmt.Sprintf("%s none swap defaults 0 0", path)
}

func (b *builder) swapStep() task.Task {
	sw := b.cfg.Hardware.Swap
	path := filepath.Join(sw.Subvolume, sw.File)
	memTotal := b.opts.MemTotal

	return &task.Step{
		Info: info("hardware:swap", "Create Btrfs swap file "+path),
		Check: func(ctx context.Context, ec *task.Context) (bool, error) {
			active, err := swapActive(ctx, ec, path)
			if err != nil || !active {
				return false, err
			}
			return hasLine(ec.Fs, fstabPath, fstabEntry(path))
		},
		Apply: func(ctx context.Context, ec *task.Context) error {
			res, err := ec.Query(ctx, sysexec.Command{Name: "findmnt", Args: []string{"-n", "-o", "FSTYPE", "/"}})
			if err != nil {
				return fmt.Errorf("failed to detect root filesystem: %w", err)
			}
			if fstype := strings.TrimSpace(res.Stdout); fstype != "btrfs" {
				return fmt.Errorf("root filesystem is %q, swap file requires btrfs", fstype)
			}

			subExists, err := afero.DirExists(ec.Fs, sw.Subvolume)
			if err != nil {
				return err
			}
			if !subExists {
				if err := ec.Mutate(ctx, sysexec.Command{Name: "btrfs", Args: []string{"subvolume", "create", sw.Subvolume}}); err != nil {
					return fmt.Errorf("failed to create subvolume %s: %w", sw.Subvolume, err)
				}
			}

			fileExists, err := afero.Exists(ec.Fs, path)
			if err != nil {
				return err
			}
			if !fileExists {
				total, err := memTotal()
				if err != nil {
					return fmt.Errorf("failed to read memory size: %w", err)
				}
				size := SwapSize(total)
				ec.Log.Info("creating swap file", map[string]interface{}{"path": path, "size": size})
				for _, c := range []sysexec.Command{
					{Name: "chattr", Args: []string{"+C", sw.Subvolume}},
					{Name: "fallocate", Args: []string{"-l", size, path}},
					{Name: "chmod", Args: []string{"600", path}},
					{Name: "mkswap", Args: []string{"-L", swapLabel, path}},
				} {
					if err := ec.Mutate(ctx, c); err != nil {
						return fmt.Errorf("failed to prepare swap file: %w", err)
					}
				}
			}

			if err := appendLine(ec, fstabPath, fstabEntry(path)); err != nil {
				return err
			}

			active, err := swapActive(ctx, ec, path)
			if err != nil {
				return err
			}
			if !active {
				if err := ec.Mutate(ctx, sysexec.Command{Name: "swapon", Args: []string{path}}); err != nil {
					return fmt.Errorf("failed to activate swap: %w", err)
				}
			}

			changed, err := ec.WriteIfDifferent(dracutResume, []byte("add_dracutmodules+=\" resume \"\n"), 0644)
			if err != nil {
				return err
			}
			if changed {
				if err := ec.Mutate(ctx, sysexec.Command{Name: "dracut", Args: []string{"-f"}}); err != nil {
					return fmt.Errorf("failed to regenerate initramfs: %w", err)
				}
			}
			return nil
		},
	}
}

func swapActive(ctx context.Context, ec *task.Context, path string) (bool, error) {
	res, err := ec.Query(ctx, sysexec.Command{Name: "swapon", Args: []string{"--show=NAME", "--noheadings"}})
	if err != nil {
		return false, fmt.Errorf("failed to list swap devices: %w", err)
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		if strings.TrimSpace(line) == path {
			return true, nil
		}
	}
	return false, nil
}

func hasLine(fs afero.Fs, path, line string) (bool, error) {
	data, err := afero.ReadFile(fs, path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, l := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(l) == line {
			return true, nil
		}
	}
	return false, nil
}

// appendLine adds line to path unless an identical line is already present.
func appendLine(ec *task.Context, path, line string) error {
	present, err := hasLine(ec.Fs, path, line)
	if err != nil || present {
		return err
	}
	data, err := afero.ReadFile(ec.Fs, path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	content := string(data)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	_, err = ec.WriteIfDifferent(path, []byte(content+line+"\n"), 0644)
	return err
}
