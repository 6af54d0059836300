package task

import (
	"context"
	"strings"

	"github.com/spf13/afero"

	"github.com/aahsnr/fedora-setup/internal/config"
	"github.com/aahsnr/fedora-setup/internal/sysexec"
	"github.com/aahsnr/fedora-setup/pkg/logging"
)

// Context is the execution context handed to every task. It is built once
// per process.
type Context struct {
	DryRun bool
	Debug  bool
	Config *config.Config
	Runner sysexec.Runner
	Fs     afero.Fs
	Log    *logging.Logger
}

// WithLogger returns a shallow copy of c that logs through l.
func (c *Context) WithLogger(l *logging.Logger) *Context {
	cp := *c
	cp.Log = l
	return &cp
}

// AsUser runs cmd as the invoking (sudo) user.
func (c *Context) AsUser(cmd sysexec.Command) sysexec.Command {
	id := c.Config.User
	cmd.User = &id
	return cmd
}

// Query runs a read-only command. It runs in dry-run mode too so that
// predicates see the real system.
func (c *Context) Query(ctx context.Context, cmd sysexec.Command) (sysexec.Result, error) {
	res, err := c.Runner.Run(ctx, cmd)
	c.logOutput(cmd, res, false)
	return res, err
}

// Mutate runs a command that changes the system. In dry-run mode it only
// logs the command and reports success.
func (c *Context) Mutate(ctx context.Context, cmd sysexec.Command) error {
	cmd.Mutating = true
	if c.DryRun {
		c.Log.Info("[dry-run] would run: "+cmd.String(), userField(cmd))
		return nil
	}

	c.Log.Debug("running: "+cmd.String(), userField(cmd))
	res, err := c.Runner.Run(ctx, cmd)
	c.logOutput(cmd, res, err != nil)
	return err
}

func (c *Context) logOutput(cmd sysexec.Command, res sysexec.Result, failed bool) {
	stdout := strings.TrimSpace(res.Stdout)
	stderr := strings.TrimSpace(res.Stderr)
	if failed {
		c.Log.Error("command failed: "+cmd.String(), map[string]interface{}{
			"exit_code": res.ExitCode,
			"stdout":    stdout,
			"stderr":    stderr,
		})
		return
	}
	if stdout == "" && stderr == "" {
		return
	}
	c.Log.Debug("output of "+cmd.String(), map[string]interface{}{
		"stdout": stdout,
		"stderr": stderr,
	})
}

func userField(cmd sysexec.Command) map[string]interface{} {
	if cmd.User == nil {
		return nil
	}
	return map[string]interface{}{"user": cmd.User.Name}
}
