// Package preflight verifies the host before any task runs. Every failed
// check is fatal except the free disk warning.
package preflight

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aahsnr/fedora-setup/internal/config"
	"github.com/aahsnr/fedora-setup/pkg/logging"
	"github.com/aahsnr/fedora-setup/pkg/retry"
)

// FatalError is a failed pre-flight check. The process must exit before
// touching the system.
type FatalError struct {
	Check string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("pre-flight check %q failed: %v", e.Check, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// HTTPDoer is the part of *http.Client the network check needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Checker runs the pre-flight checks. Host access is injectable for tests.
type Checker struct {
	Config    *config.Config
	Log       *logging.Logger
	OSRelease string
	Geteuid   func() int
	LookPath  func(string) (string, error)
	HTTP      HTTPDoer
	Retry     retry.Config
	DiskFree  func(path string) (uint64, error)
}

// New creates a Checker bound to the real host.
func New(cfg *config.Config, log *logging.Logger) *Checker {
	return &Checker{
		Config:    cfg,
		Log:       log,
		OSRelease: "/etc/os-release",
		Geteuid:   os.Geteuid,
		LookPath:  exec.LookPath,
		HTTP:      &http.Client{Timeout: 10 * time.Second},
		Retry:     retry.DefaultConfig(),
		DiskFree: func(path string) (uint64, error) {
			usage, err := disk.Usage(path)
			if err != nil {
				return 0, err
			}
			return usage.Free, nil
		},
	}
}

// Run executes the checks in order and returns the first *FatalError.
func (c *Checker) Run(ctx context.Context) error {
	checks := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"privileges", c.checkPrivileges},
		{"distribution", c.checkDistribution},
		{"required tools", c.checkTools},
		{"network", c.checkNetwork},
	}

	for _, chk := range checks {
		c.Log.Debug("pre-flight: " + chk.name)
		if err := chk.fn(ctx); err != nil {
			c.Log.Error(fmt.Sprintf("pre-flight check %s failed: %v", chk.name, err))
			return &FatalError{Check: chk.name, Err: err}
		}
	}
	c.warnDiskSpace()
	c.Log.Info("pre-flight checks passed")
	return nil
}

func (c *Checker) checkPrivileges(context.Context) error {
	if c.Geteuid() != 0 {
		return fmt.Errorf("must be run as root, try: sudo %s", os.Args[0])
	}
	return nil
}

func (c *Checker) checkDistribution(context.Context) error {
	release, err := config.ReadOSRelease(c.OSRelease)
	if err != nil {
		return err
	}
	if id := release["ID"]; id != "fedora" {
		return fmt.Errorf("unsupported distribution %q, only fedora is supported", id)
	}
	if release["VERSION_ID"] == "" {
		return fmt.Errorf("could not determine Fedora version from %s", c.OSRelease)
	}
	return nil
}

func (c *Checker) checkTools(context.Context) error {
	var missing []string
	for _, tool := range c.Config.RequiredTools {
		if _, err := c.LookPath(tool); err != nil {
			missing = append(missing, tool)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("tool not found: %v", missing)
	}
	return nil
}

func (c *Checker) checkNetwork(ctx context.Context) error {
	url := c.Config.ConnectivityURL
	return retry.DoNotify(ctx, c.Retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return err
		}
		resp, err := c.HTTP.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%s answered %d", url, resp.StatusCode)
		}
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		c.Log.Warn(fmt.Sprintf("network check attempt %d failed: %v, retrying in %s", attempt, err, wait))
	})
}

func (c *Checker) warnDiskSpace() {
	if c.Config.MinFreeDiskGB <= 0 || c.DiskFree == nil {
		return
	}
	free, err := c.DiskFree("/")
	if err != nil {
		c.Log.Warn("could not determine free disk space: " + err.Error())
		return
	}
	const gib = 1 << 30
	if free < uint64(c.Config.MinFreeDiskGB)*gib {
		c.Log.Warn(fmt.Sprintf("only %.1f GiB free on /, at least %d GiB recommended",
			float64(free)/gib, c.Config.MinFreeDiskGB))
	}
}
