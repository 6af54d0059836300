package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

// WriteSummary prints the end-of-run summary: one row per failed task and
// the log file location.
func WriteSummary(w io.Writer, failures []FailureRecord, counts map[string]int, logPath string) {
	fmt.Fprintf(w, "\nTasks: %d succeeded, %d skipped, %d failed\n",
		counts["succeeded"], counts["skipped"], counts["failed"]+counts["fault"])

	if len(failures) > 0 {
		table := tablewriter.NewWriter(w)
		table.Header("Phase", "Task", "Kind", "Error")
		for _, f := range failures {
			kind := "failure"
			if f.Fault {
				kind = "internal error"
			}
			table.Append(f.Phase, f.Task, kind, truncate(firstLine(f.Error), 100))
		}
		table.Render()
	}

	if logPath != "" {
		fmt.Fprintf(w, "Full log: %s\n", logPath)
	}
}

// WriteResults prints every task result of a run.
func WriteResults(w io.Writer, results []TaskResult) {
	table := tablewriter.NewWriter(w)
	table.Header("Phase", "Task", "Status", "Duration")
	for _, r := range results {
		dur := "-"
		if !r.Skipped {
			dur = r.Duration.Round(10 * time.Millisecond).String()
		}
		table.Append(r.Phase, r.Task, r.Status(), dur)
	}
	table.Render()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
