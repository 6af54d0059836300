package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aahsnr/fedora-setup/internal/catalog"
	"github.com/aahsnr/fedora-setup/internal/config"
	"github.com/aahsnr/fedora-setup/pkg/logging"
)

// ErrRunFailed is returned after a task failure has already been reported
// in the summary.
var ErrRunFailed = errors.New("installation failed")

var (
	cfgFile string
	dryRun  bool
	debug   bool
	resume  bool
	fresh   bool
	yes     bool

	categoryFlags = map[catalog.Category]*bool{}
)

var rootCmd = &cobra.Command{
	Use:   "fedora-setup",
	Short: "Resumable, idempotent Fedora desktop installer",
	Long: `fedora-setup configures a fresh Fedora installation in two phases separated
by a reboot. Completed tasks are recorded so an interrupted or failed run
continues where it stopped, and a systemd unit resumes the installation
after the reboot.

Without category flags the full automated installation runs. With one or
more category flags only those tasks run, once, and no reboot is scheduled.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE:          runInstall,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is "+config.DefaultFile+" when present)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "show debug output on the console")

	flags := rootCmd.Flags()
	flags.BoolVar(&dryRun, "dry-run", false, "show what would change without changing anything")
	flags.BoolVar(&resume, "resume", false, "run the post-reboot phase (used by the resume unit)")
	flags.BoolVar(&fresh, "fresh", false, "discard recorded progress before an automated run")
	flags.BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	_ = flags.MarkHidden("resume")

	usage := map[catalog.Category]string{
		catalog.Repos:         "configure dnf and enable third-party repositories",
		catalog.Packages:      "install packages and flatpak applications",
		catalog.Hardening:     "enable security services and set the timezone",
		catalog.Hardware:      "configure swap and hardware drivers",
		catalog.BuildCategory: "build and install themes from source",
		catalog.UserConfig:    "apply user configuration (git, tmux, nix, home-manager)",
		catalog.Desktop:       "install Hyprland and enable desktop services",
		catalog.Cleanup:       "remove unneeded packages and apply updates",
	}
	for _, c := range catalog.Categories() {
		categoryFlags[c] = flags.Bool(string(c), false, usage[c])
	}
	rootCmd.MarkFlagsMutuallyExclusive("resume", "fresh")
}

// selectedCategories returns the categories whose flags are set.
func selectedCategories() []catalog.Category {
	var out []catalog.Category
	for _, c := range catalog.Categories() {
		if *categoryFlags[c] {
			out = append(out, c)
		}
	}
	return out
}

func consoleLevel() logging.Level {
	if debug {
		return logging.DEBUG
	}
	return logging.INFO
}

// loadConfig reads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{File: cfgFile})
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
