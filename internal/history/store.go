// Package history keeps a SQLite record of past runs and their task
// results. The ledger answers "what is done in this cycle"; history answers
// "what happened in earlier invocations" and survives ledger clears.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/aahsnr/fedora-setup/internal/report"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// Run is one invocation of the installer.
type Run struct {
	ID        string
	Mode      string
	DryRun    bool
	State     string
	ExitCode  int
	Error     string
	StartedAt time.Time
	EndedAt   time.Time
	Executed  int
	Skipped   int
	Failed    int
}

// TaskRecord is a stored report.TaskResult.
type TaskRecord struct {
	RunID     string
	Seq       int
	Phase     string
	Task      string
	Status    string
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// Store is the SQLite-backed history.
type Store struct {
	db *sql.DB
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// Open opens (creating if needed) the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single writer; keep one connection so the pragmas below stick.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	timeout := int((3 * time.Second) / time.Millisecond)
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout=%d;", timeout),
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		dry_run INTEGER NOT NULL,
		state TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		error TEXT,
		started_at TEXT NOT NULL,
		ended_at TEXT NOT NULL,
		executed INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS task_results (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		phase TEXT NOT NULL,
		task TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		started_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		PRIMARY KEY (run_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_task_results_task ON task_results(task);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveRun stores run and its task results in one transaction. The counters
// on run are derived from results.
func (s *Store) SaveRun(ctx context.Context, run Run, results []report.TaskResult) error {
	for _, r := range results {
		switch r.Status() {
		case "skipped":
			run.Skipped++
		case "succeeded":
			run.Executed++
		default:
			run.Executed++
			run.Failed++
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, mode, dry_run, state, exit_code, error, started_at, ended_at, executed, skipped, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Mode, boolToInt(run.DryRun), run.State, run.ExitCode, nullableString(run.Error),
		formatTime(run.StartedAt), formatTime(run.EndedAt), run.Executed, run.Skipped, run.Failed)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, r := range results {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO task_results (run_id, seq, phase, task, status, error, started_at, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, run.ID, i, r.Phase, r.Task, r.Status(), nullableString(r.Error),
			formatTime(r.StartTime), r.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("insert task result %s: %w", r.Task, err)
		}
	}
	return tx.Commit()
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mode, dry_run, state, exit_code, error, started_at, ended_at, executed, skipped, failed
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns one run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, mode, dry_run, state, exit_code, error, started_at, ended_at, executed, skipped, failed
		FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return run, err
}

// TaskResults returns the task results of a run in execution order.
func (s *Store) TaskResults(ctx context.Context, runID string) ([]TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, phase, task, status, error, started_at, duration_ms
		FROM task_results
		WHERE run_id = ?
		ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list task results: %w", err)
	}
	defer rows.Close()

	var out []TaskRecord
	for rows.Next() {
		var (
			rec       TaskRecord
			errText   sql.NullString
			startedAt string
			ms        int64
		)
		if err := rows.Scan(&rec.RunID, &rec.Seq, &rec.Phase, &rec.Task, &rec.Status, &errText, &startedAt, &ms); err != nil {
			return nil, err
		}
		rec.Error = errText.String
		rec.StartedAt = parseTime(startedAt)
		rec.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run                Run
		dryRun             int
		errText            sql.NullString
		started, completed string
	)
	err := row.Scan(&run.ID, &run.Mode, &dryRun, &run.State, &run.ExitCode, &errText,
		&started, &completed, &run.Executed, &run.Skipped, &run.Failed)
	if err != nil {
		return Run{}, err
	}
	run.DryRun = dryRun != 0
	run.Error = errText.String
	run.StartedAt = parseTime(started)
	run.EndedAt = parseTime(completed)
	return run, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
