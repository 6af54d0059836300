package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aahsnr/fedora-setup/internal/config"
	"github.com/aahsnr/fedora-setup/internal/ledger"
	"github.com/aahsnr/fedora-setup/internal/report"
	"github.com/aahsnr/fedora-setup/internal/sysexec"
	"github.com/aahsnr/fedora-setup/internal/task"
	"github.com/aahsnr/fedora-setup/pkg/logging"
)

const ledgerPath = "/var/lib/fedora-setup/completed_tasks"

type fakeTask struct {
	name  string
	calls *[]string
	fn    func() error
}

func (f fakeTask) Name() string        { return f.name }
func (f fakeTask) Description() string { return "fake " + f.name }
func (f fakeTask) Execute(ctx context.Context, ec *task.Context) error {
	*f.calls = append(*f.calls, f.name)
	if f.fn == nil {
		return nil
	}
	return f.fn()
}

type harness struct {
	fs     afero.Fs
	ec     *task.Context
	ledger *ledger.Ledger
	calls  []string
	rec    *report.Recorder
}

func newHarness(t *testing.T, dryRun bool, existing ...string) *harness {
	t.Helper()
	h := &harness{fs: afero.NewMemMapFs(), rec: report.NewRecorder()}
	if len(existing) > 0 {
		content := ""
		for _, n := range existing {
			content += n + "\n"
		}
		require.NoError(t, afero.WriteFile(h.fs, ledgerPath, []byte(content), 0644))
	}
	l, err := ledger.Load(h.fs, ledgerPath, dryRun)
	require.NoError(t, err)
	h.ledger = l

	cfg := config.Default()
	h.ec = &task.Context{DryRun: dryRun, Config: &cfg, Runner: sysexec.NewFake(), Fs: h.fs, Log: logging.Nop()}
	return h
}

func (h *harness) task(name string, fn func() error) task.Task {
	return fakeTask{name: name, calls: &h.calls, fn: fn}
}

func (h *harness) run(phase Phase) PhaseResult {
	return New(h.ec, h.ledger, h.rec).Run(context.Background(), phase)
}

func (h *harness) persisted(t *testing.T) []string {
	t.Helper()
	l, err := ledger.Load(h.fs, ledgerPath, true)
	require.NoError(t, err)
	return l.Names()
}

func TestRun_StopsAtFirstFailure(t *testing.T) {
	h := newHarness(t, false)
	phase := NewPhase("pre-reboot",
		h.task("task1", nil),
		h.task("task2", nil),
		h.task("task3", func() error { return errors.New("dnf exited 1") }),
		h.task("task4", nil),
	)

	res := h.run(phase)

	assert.False(t, res.OK())
	assert.Equal(t, []string{"task1", "task2", "task3"}, h.calls, "task4 must not run after a failure")
	assert.Equal(t, []string{"task1", "task2"}, h.persisted(t))
	require.NotNil(t, res.Failure)
	assert.Equal(t, "task3", res.Failure.Task)
	assert.False(t, res.Fault)

	failures := h.rec.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "task3", failures[0].Task)
}

func TestRun_SkipsCompletedTasks(t *testing.T) {
	h := newHarness(t, false, "task1", "task2")
	phase := NewPhase("post-reboot", h.task("task1", nil), h.task("task2", nil), h.task("task3", nil))

	res := h.run(phase)

	require.True(t, res.OK())
	assert.Equal(t, []string{"task3"}, h.calls)
	assert.Equal(t, []string{"task1", "task2"}, res.Skipped)
	assert.Equal(t, []string{"task3"}, res.Executed)
	if diff := cmp.Diff([]string{"task1", "task2", "task3"}, h.persisted(t)); diff != "" {
		t.Errorf("ledger mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_RerunAfterFailureResumesAtFailedTask(t *testing.T) {
	h := newHarness(t, false)
	broken := true
	phase := NewPhase("pre-reboot",
		h.task("task1", nil),
		h.task("task2", func() error {
			if broken {
				return errors.New("network down")
			}
			return nil
		}),
		h.task("task3", nil),
	)

	h.run(phase)
	broken = false
	h.calls = nil
	res := h.run(phase)

	require.True(t, res.OK())
	assert.Equal(t, []string{"task2", "task3"}, h.calls)
}

func TestRun_PanicBecomesFault(t *testing.T) {
	h := newHarness(t, false)
	phase := NewPhase("pre-reboot",
		h.task("task1", func() error {
			var m map[string]int
			m["boom"]++
			return nil
		}),
		h.task("task2", nil),
	)

	res := h.run(phase)

	assert.True(t, res.Fault)
	assert.Equal(t, task.OutcomeFault, task.Classify(res.Err))
	var f *task.Fault
	require.ErrorAs(t, res.Err, &f)
	assert.Equal(t, "task1", f.Task)
	assert.NotEmpty(t, f.Stack)
	assert.Equal(t, []string{"task1"}, h.calls)
	assert.Empty(t, h.persisted(t))
}

func TestRun_ReturnedFaultIsAttributed(t *testing.T) {
	h := newHarness(t, false)
	res := h.run(NewPhase("pre", h.task("task1", func() error {
		return fmt.Errorf("wrapped: %w", task.Faultf("impossible state"))
	})))

	require.True(t, res.Fault)
	assert.Contains(t, res.Failure.Error, "internal error in task task1")
}

func TestRun_DryRunLeavesLedgerAlone(t *testing.T) {
	h := newHarness(t, true, "task1")
	res := h.run(NewPhase("pre", h.task("task1", nil), h.task("task2", nil)))

	require.True(t, res.OK())
	assert.Equal(t, []string{"task2"}, h.calls)
	assert.Equal(t, []string{"task1"}, h.persisted(t))
}

func TestRun_InterruptedContext(t *testing.T) {
	h := newHarness(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	phase := NewPhase("pre",
		h.task("task1", func() error { cancel(); return nil }),
		h.task("task2", nil),
	)

	res := New(h.ec, h.ledger).Run(ctx, phase)

	require.NotNil(t, res.Failure)
	assert.Equal(t, "task2", res.Failure.Task)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, []string{"task1"}, h.persisted(t))
}

type failingRenameFs struct{ afero.Fs }

func (failingRenameFs) Rename(string, string) error { return errors.New("read-only file system") }

func TestRun_LedgerWriteFailureFailsTask(t *testing.T) {
	h := newHarness(t, false)
	l, err := ledger.Load(failingRenameFs{h.fs}, ledgerPath, false)
	require.NoError(t, err)

	res := New(h.ec, l).Run(context.Background(), NewPhase("pre", h.task("task1", nil), h.task("task2", nil)))

	require.NotNil(t, res.Failure)
	assert.Equal(t, "task1", res.Failure.Task)
	assert.Contains(t, res.Failure.Error, "could not be recorded")
	assert.Equal(t, []string{"task1"}, h.calls)
}

type orderObserver struct{ events []string }

func (o *orderObserver) TaskStarted(phase string, t task.Task) {
	o.events = append(o.events, "start:"+t.Name())
}
func (o *orderObserver) TaskSkipped(phase string, t task.Task) {
	o.events = append(o.events, "skip:"+t.Name())
}
func (o *orderObserver) TaskFinished(phase string, t task.Task, outcome task.Outcome, err error, d time.Duration) {
	o.events = append(o.events, outcome.String()+":"+t.Name())
}

func TestRun_NotifiesObservers(t *testing.T) {
	h := newHarness(t, false, "task1")
	obs := &orderObserver{}
	New(h.ec, h.ledger, obs).Run(context.Background(), NewPhase("pre",
		h.task("task1", nil),
		h.task("task2", nil),
		h.task("task3", func() error { return errors.New("x") }),
	))

	assert.Equal(t, []string{"skip:task1", "start:task2", "succeeded:task2", "start:task3", "failed:task3"}, obs.events)
}

func TestPhase_IsImmutable(t *testing.T) {
	h := newHarness(t, false)
	tasks := []task.Task{h.task("a", nil), h.task("b", nil)}
	p := NewPhase("pre", tasks...)

	tasks[0] = h.task("mutated", nil)
	got := p.Tasks()
	got[1] = h.task("also-mutated", nil)

	assert.Equal(t, "a", p.Tasks()[0].Name())
	assert.Equal(t, "b", p.Tasks()[1].Name())
}

func TestValidateUnique(t *testing.T) {
	h := newHarness(t, false)
	pre := NewPhase("pre", h.task("a", nil), h.task("b", nil))
	post := NewPhase("post", h.task("c", nil))
	assert.NoError(t, ValidateUnique(pre, post))

	dup := NewPhase("post", h.task("a", nil))
	err := ValidateUnique(pre, dup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"a"`)
}
