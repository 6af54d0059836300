// Package sysexec runs external commands and captures their output.
package sysexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrToolNotFound is returned when the command's executable is not on PATH.
var ErrToolNotFound = errors.New("tool not found")

// Identity is an unprivileged account commands can be dropped to.
type Identity struct {
	Name string
	UID  uint32
	GID  uint32
	Home string
}

// Command describes a single external invocation.
type Command struct {
	Name  string
	Args  []string
	Dir   string
	Env   []string
	Stdin string
	// User, when set, runs the command under that account instead of root.
	User *Identity
	// Mutating marks commands that change system state. Runners ignore it;
	// it exists for logging and for fakes.
	Mutating bool
}

// String renders the command line, quoting arguments that need it.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)
	for _, a := range c.Args {
		if a == "" || strings.ContainsAny(a, " \t\n\"'") {
			a = strconv.Quote(a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// Result is the captured outcome of a finished command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Command string
	Result  Result
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("command %q exited with status %d", e.Command, e.Result.ExitCode)
	if stderr := strings.TrimSpace(e.Result.Stderr); stderr != "" {
		msg += ": " + lastLine(stderr)
	}
	return msg
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Runner executes commands. The Result is populated whenever the command
// started, including when it exited non-zero.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// LookPath resolves executables; defaults to exec.LookPath.
	LookPath func(string) (string, error)
}

// NewExecRunner creates a runner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{LookPath: exec.LookPath}
}

// Run starts cmd, waits for it and captures stdout and stderr.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	lookPath := r.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	path, err := lookPath(cmd.Name)
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("%w: %s", ErrToolNotFound, cmd.Name)
	}

	c := exec.CommandContext(ctx, path, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), cmd.Env...)
	if cmd.Stdin != "" {
		c.Stdin = strings.NewReader(cmd.Stdin)
	}
	if cmd.User != nil {
		applyIdentity(c, cmd.User)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	err = c.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, fmt.Errorf("command %q interrupted: %w", cmd.String(), ctxErr)
		}
		return res, &ExitError{Command: cmd.String(), Result: res}
	}
	res.ExitCode = -1
	return res, fmt.Errorf("failed to run %q: %w", cmd.String(), err)
}

// applyIdentity drops privileges to id when running as root and sets the
// session environment user-scope tools (systemctl --user, flatpak --user) need.
func applyIdentity(c *exec.Cmd, id *Identity) {
	if os.Geteuid() == 0 && id.UID != 0 {
		c.SysProcAttr = &syscall.SysProcAttr{
			Credential: &syscall.Credential{Uid: id.UID, Gid: id.GID},
		}
	}
	runtimeDir := fmt.Sprintf("/run/user/%d", id.UID)
	c.Env = append(c.Env,
		"HOME="+id.Home,
		"USER="+id.Name,
		"LOGNAME="+id.Name,
		"XDG_RUNTIME_DIR="+runtimeDir,
		"DBUS_SESSION_BUS_ADDRESS=unix:path="+runtimeDir+"/bus",
	)
	if c.Dir == "" {
		c.Dir = id.Home
	}
}
