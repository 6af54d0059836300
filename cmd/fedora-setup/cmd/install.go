package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/aahsnr/fedora-setup/internal/catalog"
	"github.com/aahsnr/fedora-setup/internal/config"
	"github.com/aahsnr/fedora-setup/internal/engine"
	"github.com/aahsnr/fedora-setup/internal/history"
	"github.com/aahsnr/fedora-setup/internal/installer"
	"github.com/aahsnr/fedora-setup/internal/ledger"
	"github.com/aahsnr/fedora-setup/internal/preflight"
	"github.com/aahsnr/fedora-setup/internal/report"
	resumepkg "github.com/aahsnr/fedora-setup/internal/resume"
	"github.com/aahsnr/fedora-setup/internal/sysexec"
	"github.com/aahsnr/fedora-setup/internal/task"
	"github.com/aahsnr/fedora-setup/pkg/logging"
	"github.com/aahsnr/fedora-setup/pkg/shutdown"
)

func runInstall(cmd *cobra.Command, args []string) error {
	cats := selectedCategories()
	if len(cats) > 0 && (resume || fresh) {
		return errors.New("--resume and --fresh apply to the automated installation only")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mode := "automated"
	if len(cats) > 0 {
		mode = "manual"
	}
	if !yes && !resume {
		ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), planText(cfg, mode, cats))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}
	}

	sm := shutdown.New(10 * time.Second)
	defer func() {
		for _, err := range sm.Shutdown() {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}()

	log, err := logging.NewFileLogger(cfg.LogPath(), consoleLevel(), false)
	if err != nil {
		log = logging.NewLogger(consoleLevel(), false)
		log.Warn(fmt.Sprintf("file logging disabled: %v", err))
	}
	sm.Register("logger", shutdown.CloseResource(log))
	log = log.WithField("mode", mode)
	if dryRun {
		log = log.WithField("dry_run", true)
	}

	ctx, stop := sm.Context(context.Background(), func(sig os.Signal) {
		log.Warn(fmt.Sprintf("received %s, stopping after the current command", sig))
	})
	defer stop()

	// Dry-run only reads the ledger, so it does not compete for the lock.
	if !dryRun {
		lock, err := ledger.Acquire(cfg.LockPath())
		if err != nil {
			return err
		}
		sm.Register("run lock", shutdown.CloseResource(lock))
	}

	fs := afero.NewOsFs()
	l, err := ledger.Load(fs, cfg.LedgerPath(), dryRun)
	if err != nil {
		return err
	}

	ec := &task.Context{
		DryRun: dryRun,
		Debug:  debug,
		Config: cfg,
		Runner: sysexec.NewExecRunner(),
		Fs:     fs,
		Log:    log,
	}

	reg, err := catalog.Build(cfg, catalog.Options{})
	if err != nil {
		return err
	}

	rec := report.NewRecorder()
	coord := resumepkg.New(ec, l)
	opts := installer.Options{
		PreReboot:  reg.PreReboot(),
		PostReboot: reg.PostReboot(),
		Resume:     resume,
		Fresh:      fresh,
		Preflight:  preflight.New(cfg, log),
		Resumer:    coord,
		Observers:  []engine.Observer{rec},
	}
	if len(cats) > 0 {
		manual := reg.Selected(cats...)
		opts.Manual = &manual
	}

	res := installer.New(ec, l, opts).Run(ctx)

	report.WriteSummary(cmd.OutOrStdout(), rec.Failures(), rec.Counts(), log.Path())
	if !dryRun {
		persistRun(cfg, log, rec, res, mode, l.Len(), coord.Pending())
	}

	switch {
	case res.Err == nil:
		if res.RebootScheduled {
			log.Info("pre-reboot phase complete, rebooting")
		} else {
			log.Info("finished")
		}
		return nil
	case res.Fault:
		return fmt.Errorf("aborted on internal error: %w", res.Err)
	case errors.As(res.Err, new(*preflight.FatalError)):
		return res.Err
	case errors.As(res.Err, new(*resumepkg.SchedulingError)):
		return fmt.Errorf("%w; completed tasks are kept, run fedora-setup again to retry", res.Err)
	default:
		return ErrRunFailed
	}
}

// persistRun writes the metrics textfile and the history row. Failures are
// logged; they never change the run's outcome.
func persistRun(cfg *config.Config, log *logging.Logger, rec *report.Recorder, res installer.Result, mode string, ledgerLen int, pending bool) {
	finished := time.Now()

	m := report.NewMetrics()
	m.ObserveRun(rec, res.Err == nil, finished)
	m.SetLedgerEntries(ledgerLen)
	m.SetResumePending(pending)
	if err := m.WriteTextfile(cfg.MetricsPath()); err != nil {
		log.Warn(fmt.Sprintf("failed to write metrics: %v", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := history.Open(ctx, cfg.HistoryPath())
	if err != nil {
		log.Warn(fmt.Sprintf("failed to open history: %v", err))
		return
	}
	defer store.Close()

	run := history.Run{
		ID:        history.NewRunID(),
		Mode:      mode,
		State:     string(res.State),
		ExitCode:  res.ExitCode(),
		StartedAt: rec.Started(),
		EndedAt:   finished,
	}
	if res.Err != nil {
		run.Error = res.Err.Error()
	}
	if err := store.SaveRun(ctx, run, rec.Results()); err != nil {
		log.Warn(fmt.Sprintf("failed to record history: %v", err))
		return
	}
	log.Debug("recorded run " + run.ID)
}

func planText(cfg *config.Config, mode string, cats []catalog.Category) string {
	var b strings.Builder
	switch {
	case mode == "manual":
		names := make([]string, 0, len(cats))
		for _, c := range cats {
			names = append(names, string(c))
		}
		fmt.Fprintf(&b, "Run the selected categories once: %s\n", strings.Join(names, ", "))
	default:
		b.WriteString("Run the automated installation. The machine reboots after the first phase\n")
		b.WriteString("and the installation continues automatically afterwards.\n")
	}
	fmt.Fprintf(&b, "User: %s (%s)\n", cfg.User.Name, cfg.User.Home)
	if dryRun {
		b.WriteString("Dry run: nothing will be changed.\n")
	}
	return b.String()
}

// confirm asks a yes/no question; anything but y/yes declines.
func confirm(in io.Reader, out io.Writer, plan string) (bool, error) {
	fmt.Fprint(out, plan)
	fmt.Fprint(out, "Continue? [y/N] ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
