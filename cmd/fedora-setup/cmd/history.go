package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/aahsnr/fedora-setup/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List past runs, or the task results of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to list")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	store, err := history.Open(ctx, cfg.HistoryPath())
	if err != nil {
		return err
	}
	defer store.Close()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		run, err := store.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		recs, err := store.TaskResults(ctx, run.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Run %s: %s, %s, exit %d\n", run.ID, run.Mode, run.State, run.ExitCode)
		if run.Error != "" {
			fmt.Fprintf(out, "Error: %s\n", run.Error)
		}
		table := tablewriter.NewWriter(out)
		table.Header("Phase", "Task", "Status", "Duration", "Error")
		for _, r := range recs {
			table.Append(r.Phase, r.Task, r.Status, r.Duration.Round(10*time.Millisecond).String(), r.Error)
		}
		table.Render()
		return nil
	}

	runs, err := store.ListRuns(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}
	table := tablewriter.NewWriter(out)
	table.Header("ID", "Started", "Mode", "State", "Exit", "Executed", "Skipped", "Failed")
	for _, r := range runs {
		table.Append(
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Mode,
			r.State,
			strconv.Itoa(r.ExitCode),
			strconv.Itoa(r.Executed),
			strconv.Itoa(r.Skipped),
			strconv.Itoa(r.Failed),
		)
	}
	table.Render()
	return nil
}
