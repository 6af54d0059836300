package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aahsnr/fedora-setup/internal/report"
	"github.com/aahsnr/fedora-setup/internal/task"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "state", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveRun_RoundTrip(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	results := []report.TaskResult{
		{Phase: "pre-reboot", Task: "repos:dnf-conf", Skipped: true, StartTime: start},
		{Phase: "pre-reboot", Task: "packages:base", Outcome: task.OutcomeSucceeded, StartTime: start, Duration: 1500 * time.Millisecond},
		{Phase: "pre-reboot", Task: "packages:editors", Outcome: task.OutcomeFailed, Error: "dnf exited 1", StartTime: start.Add(2 * time.Second), Duration: time.Second},
	}
	run := Run{
		ID:        NewRunID(),
		Mode:      "automated",
		State:     "failed",
		ExitCode:  1,
		Error:     "dnf exited 1",
		StartedAt: start,
		EndedAt:   start.Add(3 * time.Second),
	}
	require.NoError(t, s.SaveRun(ctx, run, results))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	want := run
	want.Executed, want.Skipped, want.Failed = 2, 1, 1
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("run mismatch (-want +got):\n%s", diff)
	}

	recs, err := s.TaskResults(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "skipped", recs[0].Status)
	assert.Equal(t, "succeeded", recs[1].Status)
	assert.Equal(t, 1500*time.Millisecond, recs[1].Duration)
	assert.Equal(t, "failed", recs[2].Status)
	assert.Equal(t, "dnf exited 1", recs[2].Error)
}

func TestListRuns_NewestFirst(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		run := Run{ID: NewRunID(), Mode: "manual", State: "done", StartedAt: base.Add(time.Duration(i) * time.Hour), EndedAt: base.Add(time.Duration(i)*time.Hour + time.Minute)}
		require.NoError(t, s.SaveRun(ctx, run, nil))
		ids = append(ids, run.ID)
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
}

func TestGetRun_NotFound(t *testing.T) {
	s := openTemp(t)
	_, err := s.GetRun(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestOpen_ReopensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	require.NoError(t, err)
	run := Run{ID: NewRunID(), Mode: "automated", State: "schedule_reboot", StartedAt: time.Now(), EndedAt: time.Now()}
	require.NoError(t, s.SaveRun(ctx, run, nil))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
}

func TestSaveRun_DuplicateIDRollsBack(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	run := Run{ID: "fixed", Mode: "manual", State: "done", StartedAt: time.Now(), EndedAt: time.Now()}
	require.NoError(t, s.SaveRun(ctx, run, nil))

	err := s.SaveRun(ctx, run, []report.TaskResult{{Phase: "manual", Task: "repos:a", Outcome: task.OutcomeSucceeded}})
	require.Error(t, err)

	recs, err := s.TaskResults(ctx, "fixed")
	require.NoError(t, err)
	assert.Empty(t, recs)
}
