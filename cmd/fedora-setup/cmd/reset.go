package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/aahsnr/fedora-setup/internal/ledger"
	resumepkg "github.com/aahsnr/fedora-setup/internal/resume"
	"github.com/aahsnr/fedora-setup/internal/sysexec"
	"github.com/aahsnr/fedora-setup/internal/task"
	"github.com/aahsnr/fedora-setup/pkg/logging"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget recorded progress and remove a pending resume unit",
	Args:  cobra.NoArgs,
	RunE:  runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !yes {
		ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Discard all recorded progress and any pending resume unit.\n")
		if err != nil || !ok {
			return err
		}
	}

	lock, err := ledger.Acquire(cfg.LockPath())
	if err != nil {
		return err
	}
	defer lock.Release()

	fs := afero.NewOsFs()
	l, err := ledger.Load(fs, cfg.LedgerPath(), false)
	if err != nil {
		return err
	}
	log := logging.NewLogger(consoleLevel(), false)
	ec := &task.Context{Config: cfg, Runner: sysexec.NewExecRunner(), Fs: fs, Log: log}

	if err := resumepkg.New(ec, l).Cancel(context.Background()); err != nil {
		return err
	}
	n := l.Len()
	if err := l.Clear(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d recorded tasks.\n", n)
	return nil
}
