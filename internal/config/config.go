// Package config loads the installer configuration. A Config is built once
// per process and treated as read-only afterwards.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/aahsnr/fedora-setup/internal/sysexec"
)

// DefaultFile is read when no --config flag is given and the file exists.
const DefaultFile = "/etc/fedora-setup/config.yaml"

// EnvPrefix is the prefix for environment overrides, e.g. FEDORA_SETUP_STATE_DIR.
const EnvPrefix = "FEDORA_SETUP"

// Config is the complete installer configuration.
type Config struct {
	StateDir        string   `mapstructure:"state_dir" yaml:"state_dir"`
	LogDir          string   `mapstructure:"log_dir" yaml:"log_dir"`
	UnitDir         string   `mapstructure:"unit_dir" yaml:"unit_dir"`
	DotfilesDir     string   `mapstructure:"dotfiles_dir" yaml:"dotfiles_dir"`
	PreconfigDir    string   `mapstructure:"preconfig_dir" yaml:"preconfig_dir"`
	ConnectivityURL string   `mapstructure:"connectivity_url" yaml:"connectivity_url"`
	RequiredTools   []string `mapstructure:"required_tools" yaml:"required_tools"`
	MinFreeDiskGB   int      `mapstructure:"min_free_disk_gb" yaml:"min_free_disk_gb"`
	Timezone        string   `mapstructure:"timezone" yaml:"timezone"`

	Git         []GitSetting      `mapstructure:"git" yaml:"git"`
	Repos       RepoConfig        `mapstructure:"repos" yaml:"repos"`
	Packages    PackageConfig     `mapstructure:"packages" yaml:"packages"`
	Flatpak     FlatpakConfig     `mapstructure:"flatpak" yaml:"flatpak"`
	Hardware    HardwareConfig    `mapstructure:"hardware" yaml:"hardware"`
	Services    ServiceConfig     `mapstructure:"services" yaml:"services"`
	Themes      []ThemeConfig     `mapstructure:"themes" yaml:"themes"`
	Tmux        TmuxConfig        `mapstructure:"tmux" yaml:"tmux"`
	HomeManager HomeManagerConfig `mapstructure:"home_manager" yaml:"home_manager"`

	// Detected at load time, never read from the file.
	User          sysexec.Identity `mapstructure:"-" yaml:"-"`
	FedoraVersion string           `mapstructure:"-" yaml:"-"`
	Executable    string           `mapstructure:"-" yaml:"-"`
}

// GitSetting is one `git config --global` key.
type GitSetting struct {
	Key   string `mapstructure:"key" yaml:"key"`
	Value string `mapstructure:"value" yaml:"value"`
}

// RepoConfig selects the third-party repositories to enable.
type RepoConfig struct {
	RPMFusion bool     `mapstructure:"rpmfusion" yaml:"rpmfusion"`
	Tainted   bool     `mapstructure:"tainted" yaml:"tainted"`
	OpenH264  bool     `mapstructure:"openh264" yaml:"openh264"`
	Copr      []string `mapstructure:"copr" yaml:"copr"`
}

// PackageConfig holds the dnf package lists, one per task.
type PackageConfig struct {
	Base       []string `mapstructure:"base" yaml:"base"`
	Editors    []string `mapstructure:"editors" yaml:"editors"`
	Git        []string `mapstructure:"git" yaml:"git"`
	Multimedia []string `mapstructure:"multimedia" yaml:"multimedia"`
	Groups     []string `mapstructure:"groups" yaml:"groups"`
	Hyprland   []string `mapstructure:"hyprland" yaml:"hyprland"`
	ThemeDeps  []string `mapstructure:"theme_deps" yaml:"theme_deps"`
}

// FlatpakConfig describes the user flatpak remote and apps.
type FlatpakConfig struct {
	Remote    string   `mapstructure:"remote" yaml:"remote"`
	RemoteURL string   `mapstructure:"remote_url" yaml:"remote_url"`
	Apps      []string `mapstructure:"apps" yaml:"apps"`
	Overrides []string `mapstructure:"overrides" yaml:"overrides"`
}

// HardwareConfig toggles hardware specific tasks.
type HardwareConfig struct {
	NVIDIA bool       `mapstructure:"nvidia" yaml:"nvidia"`
	ASUS   bool       `mapstructure:"asus" yaml:"asus"`
	Swap   SwapConfig `mapstructure:"swap" yaml:"swap"`
}

// SwapConfig places the Btrfs swap file.
type SwapConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Subvolume string `mapstructure:"subvolume" yaml:"subvolume"`
	File      string `mapstructure:"file" yaml:"file"`
}

// ServiceConfig lists systemd units to enable.
type ServiceConfig struct {
	System   []string `mapstructure:"system" yaml:"system"`
	User     []string `mapstructure:"user" yaml:"user"`
	Hyprland []string `mapstructure:"hyprland" yaml:"hyprland"`
}

// ThemeConfig is a theme built from a git checkout with its install.sh.
type ThemeConfig struct {
	Name string   `mapstructure:"name" yaml:"name"`
	Repo string   `mapstructure:"repo" yaml:"repo"`
	// Marker is the directory whose presence means the theme is installed.
	Marker string   `mapstructure:"marker" yaml:"marker"`
	Args   []string `mapstructure:"args" yaml:"args"`
}

// TmuxConfig places the tmux config symlink and plugin manager.
type TmuxConfig struct {
	Config  string `mapstructure:"config" yaml:"config"`
	TPMRepo string `mapstructure:"tpm_repo" yaml:"tpm_repo"`
}

// HomeManagerConfig places the home-manager configuration symlink.
type HomeManagerConfig struct {
	Source string `mapstructure:"source" yaml:"source"`
}

// Options controls where Load reads from. Zero values use the host.
type Options struct {
	File       string
	OSRelease  string
	Getenv     func(string) string
	LookupUser func(string) (*user.User, error)
	Executable func() (string, error)
}

func (o *Options) fill() {
	if o.OSRelease == "" {
		o.OSRelease = "/etc/os-release"
	}
	if o.Getenv == nil {
		o.Getenv = os.Getenv
	}
	if o.LookupUser == nil {
		o.LookupUser = user.Lookup
	}
	if o.Executable == nil {
		o.Executable = os.Executable
	}
}

// Load builds the Config from defaults, the YAML file, FEDORA_SETUP_*
// environment variables and the host (invoking user, Fedora release,
// executable path).
func Load(opts Options) (*Config, error) {
	opts.fill()

	defaults, err := yaml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("failed to render defaults: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	file := opts.File
	if file == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			file = DefaultFile
		}
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	id, err := invokingUser(opts)
	if err != nil {
		return nil, err
	}
	cfg.User = id

	if release, err := ReadOSRelease(opts.OSRelease); err == nil {
		cfg.FedoraVersion = release["VERSION_ID"]
	}

	if exe, err := opts.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		cfg.Executable = exe
	}

	return &cfg, nil
}

// invokingUser resolves the account that called sudo, falling back to the
// current user.
func invokingUser(opts Options) (sysexec.Identity, error) {
	name := opts.Getenv("SUDO_USER")
	if name == "" {
		name = opts.Getenv("USER")
	}
	if name == "" {
		name = "root"
	}

	u, err := opts.LookupUser(name)
	if err != nil {
		return sysexec.Identity{}, fmt.Errorf("failed to look up invoking user %q: %w", name, err)
	}
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return sysexec.Identity{}, fmt.Errorf("invalid uid %q for %s: %w", u.Uid, name, err)
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return sysexec.Identity{}, fmt.Errorf("invalid gid %q for %s: %w", u.Gid, name, err)
	}
	return sysexec.Identity{Name: u.Username, UID: uint32(uid), GID: uint32(gid), Home: u.HomeDir}, nil
}

// ReadOSRelease parses an os-release(5) file.
func ReadOSRelease(path string) (map[string]string, error) {
	vals, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return vals, nil
}

// UserPath expands a leading "~/" against the invoking user's home.
func (c *Config) UserPath(p string) string {
	if p == "~" {
		return c.User.Home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(c.User.Home, p[2:])
	}
	return p
}

// LedgerPath is where completed task names are persisted.
func (c *Config) LedgerPath() string { return filepath.Join(c.StateDir, "completed_tasks") }

// LockPath is the exclusive run lock.
func (c *Config) LockPath() string { return filepath.Join(c.StateDir, "run.lock") }

// LogPath is the run log file.
func (c *Config) LogPath() string { return filepath.Join(c.LogDir, "fedora-setup.log") }

// MetricsPath is the Prometheus textfile written after each run.
func (c *Config) MetricsPath() string { return filepath.Join(c.StateDir, "fedora-setup.prom") }

// HistoryPath is the SQLite run history database.
func (c *Config) HistoryPath() string { return filepath.Join(c.StateDir, "history.db") }

// Validate checks values that would otherwise fail deep inside a task.
func (c *Config) Validate() error {
	var errs []error
	if c.StateDir == "" {
		errs = append(errs, errors.New("state_dir must not be empty"))
	}
	if c.UnitDir == "" {
		errs = append(errs, errors.New("unit_dir must not be empty"))
	}
	if c.Timezone != "" && strings.Contains(c.Timezone, "..") {
		errs = append(errs, fmt.Errorf("invalid timezone %q", c.Timezone))
	}
	for _, t := range c.Themes {
		if t.Name == "" || t.Repo == "" {
			errs = append(errs, fmt.Errorf("theme entries need name and repo: %+v", t))
		}
	}
	return errors.Join(errs...)
}

// ExampleYAML renders the defaults as a commented YAML document.
func ExampleYAML() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# fedora-setup configuration\n")
	buf.WriteString("# Place at " + DefaultFile + " or pass --config.\n")
	buf.WriteString("# Any key can be overridden with " + EnvPrefix + "_<KEY>, e.g. " + EnvPrefix + "_STATE_DIR.\n\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(Default()); err != nil {
		return nil, fmt.Errorf("failed to encode example config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
