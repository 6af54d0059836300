// Package resume schedules the post-reboot continuation of an installation
// through a one-shot systemd unit and cleans it up afterwards.
package resume

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/spf13/afero"

	"github.com/aahsnr/fedora-setup/internal/ledger"
	"github.com/aahsnr/fedora-setup/internal/sysexec"
	"github.com/aahsnr/fedora-setup/internal/task"
)

// UnitName is the resume unit installed before the reboot.
const UnitName = "fedora-setup-resume.service"

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=Resume fedora-setup after reboot
Wants=network-online.target
After=network-online.target

[Service]
Type=oneshot
ExecStart={{.Executable}} --resume --yes
ExecStartPost=/usr/bin/rm -f {{.UnitPath}}
StandardOutput=journal+console
StandardError=journal+console
TimeoutStartSec=infinity

[Install]
WantedBy=multi-user.target
`))

// SchedulingError reports which step of arming the reboot failed. Ledger
// entries stay durable so the run can be retried.
type SchedulingError struct {
	Step string
	Err  error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("failed to schedule resume (%s): %v", e.Step, e.Err)
}

func (e *SchedulingError) Unwrap() error { return e.Err }

// Coordinator owns the resume unit.
type Coordinator struct {
	ec     *task.Context
	ledger *ledger.Ledger
}

// New creates a coordinator using ec's filesystem, runner and config.
func New(ec *task.Context, l *ledger.Ledger) *Coordinator {
	return &Coordinator{ec: ec, ledger: l}
}

// UnitPath returns where the unit file lives.
func (c *Coordinator) UnitPath() string {
	return filepath.Join(c.ec.Config.UnitDir, UnitName)
}

// Unit renders the unit file.
func (c *Coordinator) Unit() ([]byte, error) {
	exe := c.ec.Config.Executable
	if exe == "" {
		return nil, fmt.Errorf("executable path is unknown")
	}
	var buf bytes.Buffer
	err := unitTemplate.Execute(&buf, struct {
		Executable string
		UnitPath   string
	}{exe, c.UnitPath()})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Pending reports whether a resume unit is installed.
func (c *Coordinator) Pending() bool {
	ok, err := afero.Exists(c.ec.Fs, c.UnitPath())
	return err == nil && ok
}

// Schedule installs and enables the unit, then reboots.
func (c *Coordinator) Schedule(ctx context.Context) error {
	unit, err := c.Unit()
	if err != nil {
		return &SchedulingError{Step: "render unit", Err: err}
	}
	if c.ec.DryRun {
		c.ec.Log.Info("[dry-run] resume unit "+c.UnitPath(), map[string]interface{}{"unit": string(unit)})
	}

	if _, err := c.ec.WriteIfDifferent(c.UnitPath(), unit, 0644); err != nil {
		return &SchedulingError{Step: "write unit", Err: err}
	}

	steps := []struct {
		name string
		args []string
	}{
		{"daemon-reload", []string{"daemon-reload"}},
		{"enable unit", []string{"enable", UnitName}},
		{"reboot", []string{"reboot"}},
	}
	for _, s := range steps {
		if s.name == "reboot" {
			c.ec.Log.Info(fmt.Sprintf("rebooting; installation resumes via %s (%d tasks completed)", UnitName, c.ledger.Len()))
		}
		if err := c.ec.Mutate(ctx, sysexec.Command{Name: "systemctl", Args: s.args}); err != nil {
			return &SchedulingError{Step: s.name, Err: err}
		}
	}
	return nil
}

// Complete removes the resume unit and clears the ledger after a successful
// post-reboot phase.
func (c *Coordinator) Complete(ctx context.Context) error {
	if c.Pending() {
		if err := c.ec.Mutate(ctx, sysexec.Command{Name: "systemctl", Args: []string{"disable", UnitName}}); err != nil {
			return fmt.Errorf("failed to disable %s: %w", UnitName, err)
		}
		if c.ec.DryRun {
			c.ec.Log.Info("[dry-run] would remove " + c.UnitPath())
		} else {
			if err := c.ec.Fs.Remove(c.UnitPath()); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove %s: %w", c.UnitPath(), err)
			}
			c.ec.Log.Info("removed " + c.UnitPath())
		}
		if err := c.ec.Mutate(ctx, sysexec.Command{Name: "systemctl", Args: []string{"daemon-reload"}}); err != nil {
			return fmt.Errorf("failed to reload systemd: %w", err)
		}
	}

	if err := c.ledger.Clear(); err != nil {
		return err
	}
	c.ec.Log.Info("installation complete, ledger cleared")
	return nil
}

// Cancel removes a pending unit without touching the ledger.
func (c *Coordinator) Cancel(ctx context.Context) error {
	if !c.Pending() {
		return nil
	}
	if err := c.ec.Mutate(ctx, sysexec.Command{Name: "systemctl", Args: []string{"disable", UnitName}}); err != nil {
		return fmt.Errorf("failed to disable %s: %w", UnitName, err)
	}
	if c.ec.DryRun {
		return nil
	}
	if err := c.ec.Fs.Remove(c.UnitPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", c.UnitPath(), err)
	}
	return c.ec.Mutate(ctx, sysexec.Command{Name: "systemctl", Args: []string{"daemon-reload"}})
}
