package task

import (
	"os"
	"testing"

	"github.com/spf13/afero"

	"github.com/aahsnr/fedora-setup/internal/config"
	"github.com/aahsnr/fedora-setup/internal/sysexec"
	"github.com/aahsnr/fedora-setup/pkg/logging"
)

// countingFs counts opens for writing so tests can prove a write did not
// happen.
type countingFs struct {
	afero.Fs
	writes int
}

func (c *countingFs) Create(name string) (afero.File, error) {
	c.writes++
	return c.Fs.Create(name)
}

func (c *countingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR) != 0 {
		c.writes++
	}
	return c.Fs.OpenFile(name, flag, perm)
}

func newTestContext(t *testing.T, runner sysexec.Runner) (*Context, *countingFs) {
	t.Helper()
	cfg := config.Default()
	cfg.User = sysexec.Identity{Name: "alice", UID: 1000, GID: 1000, Home: "/home/alice"}
	fs := &countingFs{Fs: afero.NewMemMapFs()}
	return &Context{
		Config: &cfg,
		Runner: runner,
		Fs:     fs,
		Log:    logging.Nop(),
	}, fs
}
