package config

import (
	"os"
	"os/user"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/aahsnr/fedora-setup/internal/sysexec"
)

func testOptions(t *testing.T, env map[string]string) Options {
	t.Helper()
	dir := t.TempDir()
	osRelease := filepath.Join(dir, "os-release")
	require.NoError(t, os.WriteFile(osRelease, []byte("NAME=\"Fedora Linux\"\nID=fedora\nVERSION_ID=41\n"), 0644))

	return Options{
		File:      filepath.Join(dir, "missing.yaml"),
		OSRelease: osRelease,
		Getenv:    func(k string) string { return env[k] },
		LookupUser: func(name string) (*user.User, error) {
			return &user.User{Username: name, Uid: "1000", Gid: "1000", HomeDir: "/home/" + name}, nil
		},
		Executable: func() (string, error) { return "/usr/local/bin/fedora-setup", nil },
	}
}

func TestLoad_DefaultsAndHost(t *testing.T) {
	opts := testOptions(t, map[string]string{"SUDO_USER": "aahsnr", "USER": "root"})
	opts.File = ""

	cfg, err := Load(opts)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/fedora-setup", cfg.StateDir)
	assert.Equal(t, "41", cfg.FedoraVersion)
	assert.Equal(t, sysexec.Identity{Name: "aahsnr", UID: 1000, GID: 1000, Home: "/home/aahsnr"}, cfg.User)
	assert.Equal(t, "/var/lib/fedora-setup/completed_tasks", cfg.LedgerPath())
	assert.Equal(t, "/home/aahsnr/.hyprdots/.tmux.conf", cfg.UserPath(cfg.Tmux.Config))

	if diff := cmp.Diff(Default().Repos.Copr, cfg.Repos.Copr); diff != "" {
		t.Errorf("copr repos mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	opts := testOptions(t, nil)
	require.NoError(t, os.WriteFile(opts.File, []byte(`
state_dir: /tmp/state
timezone: Europe/Berlin
repos:
  copr:
    - solopasha/hyprland
hardware:
  nvidia: false
`), 0644))

	cfg, err := Load(opts)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/state", cfg.StateDir)
	assert.Equal(t, "Europe/Berlin", cfg.Timezone)
	assert.Equal(t, []string{"solopasha/hyprland"}, cfg.Repos.Copr)
	assert.False(t, cfg.Hardware.NVIDIA)
	assert.True(t, cfg.Hardware.Swap.Enabled, "untouched nested default must survive the merge")
	assert.Equal(t, "root", cfg.User.Name)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("FEDORA_SETUP_STATE_DIR", "/srv/ledger")
	opts := testOptions(t, nil)
	opts.File = ""

	cfg, err := Load(opts)
	require.NoError(t, err)
	assert.Equal(t, "/srv/ledger", cfg.StateDir)
}

func TestLoad_BadFile(t *testing.T) {
	opts := testOptions(t, nil)
	require.NoError(t, os.WriteFile(opts.File, []byte("state_dir: [unterminated"), 0644))

	_, err := Load(opts)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())

	cfg.StateDir = ""
	cfg.Themes = append(cfg.Themes, ThemeConfig{Name: "broken"})
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state_dir")
	assert.Contains(t, err.Error(), "theme entries")
}

func TestExampleYAML_RoundTrips(t *testing.T) {
	data, err := ExampleYAML()
	require.NoError(t, err)

	var got Config
	require.NoError(t, yaml.Unmarshal(data, &got))
	if diff := cmp.Diff(Default(), got); diff != "" {
		t.Errorf("example config differs from defaults (-want +got):\n%s", diff)
	}
}
