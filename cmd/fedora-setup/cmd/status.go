package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/aahsnr/fedora-setup/internal/history"
	"github.com/aahsnr/fedora-setup/internal/ledger"
	"github.com/aahsnr/fedora-setup/internal/report"
	resumepkg "github.com/aahsnr/fedora-setup/internal/resume"
	"github.com/aahsnr/fedora-setup/internal/sysexec"
	"github.com/aahsnr/fedora-setup/internal/task"
	"github.com/aahsnr/fedora-setup/pkg/logging"
)

var statusMetrics bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recorded progress and whether a resume is pending",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusMetrics, "metrics", false, "print Prometheus text exposition instead of a table")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fs := afero.NewOsFs()
	l, err := ledger.Load(fs, cfg.LedgerPath(), true)
	if err != nil {
		return err
	}
	ec := &task.Context{DryRun: true, Config: cfg, Runner: sysexec.NewExecRunner(), Fs: fs, Log: logging.Nop()}
	coord := resumepkg.New(ec, l)
	out := cmd.OutOrStdout()

	if statusMetrics {
		m := report.NewMetrics()
		m.SetLedgerEntries(l.Len())
		m.SetResumePending(coord.Pending())
		return m.WriteText(out)
	}

	fmt.Fprintf(out, "Ledger: %s\n", l.Path())
	fmt.Fprintf(out, "Resume pending: %t\n", coord.Pending())
	if l.Len() == 0 {
		fmt.Fprintln(out, "No tasks recorded in the current cycle.")
	} else {
		table := tablewriter.NewWriter(out)
		table.Header("#", "Completed task")
		for i, name := range l.Names() {
			table.Append(strconv.Itoa(i+1), name)
		}
		table.Render()
	}

	if _, err := os.Stat(cfg.HistoryPath()); err != nil {
		return nil
	}
	store, err := history.Open(context.Background(), cfg.HistoryPath())
	if err != nil {
		return err
	}
	defer store.Close()
	runs, err := store.ListRuns(context.Background(), 1)
	if err != nil {
		return err
	}
	if len(runs) > 0 {
		r := runs[0]
		fmt.Fprintf(out, "Last run: %s %s (%s), exit %d\n", r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Mode, r.State, r.ExitCode)
	}
	return nil
}
