package ledger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

const testPath = "/var/lib/fedora-setup/completed_tasks"

type failingRenameFs struct {
	afero.Fs
}

func (f failingRenameFs) Rename(string, string) error { return errors.New("disk full") }

type writeCountingFs struct {
	afero.Fs
	writes int
}

func (w *writeCountingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR) != 0 {
		w.writes++
	}
	return w.Fs.OpenFile(name, flag, perm)
}

func (w *writeCountingFs) Create(name string) (afero.File, error) {
	w.writes++
	return w.Fs.Create(name)
}

func (w *writeCountingFs) Remove(name string) error {
	w.writes++
	return w.Fs.Remove(name)
}

func TestLoad_Missing(t *testing.T) {
	l, err := Load(afero.NewMemMapFs(), testPath, false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if l.Exists() || l.Len() != 0 {
		t.Errorf("fresh ledger: Exists=%v Len=%d, want false/0", l.Exists(), l.Len())
	}
}

func TestLoad_SkipsBlankAndDuplicateLines(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, testPath, []byte("repos:rpmfusion\n\n  packages:base \nrepos:rpmfusion\n"), 0644)

	l, err := Load(fs, testPath, false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	got := strings.Join(l.Names(), ",")
	if got != "repos:rpmfusion,packages:base" {
		t.Errorf("Names() = %s", got)
	}
	if !l.Exists() {
		t.Error("Exists() = false for a ledger read from disk")
	}
}

func TestRecord_PersistsImmediately(t *testing.T) {
	fs := afero.NewMemMapFs()
	l, _ := Load(fs, testPath, false)

	for _, name := range []string{"task1", "task2", "task1"} {
		if err := l.Record(name); err != nil {
			t.Fatalf("Record(%s) error = %v", name, err)
		}
	}

	data, err := afero.ReadFile(fs, testPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "task1\ntask2\n" {
		t.Errorf("ledger file = %q, want %q", data, "task1\ntask2\n")
	}

	reloaded, _ := Load(fs, testPath, false)
	if !reloaded.Contains("task2") || reloaded.Len() != 2 {
		t.Errorf("reloaded ledger = %v", reloaded.Names())
	}

	entries, _ := afero.ReadDir(fs, filepath.Dir(testPath))
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file %s left behind", e.Name())
		}
	}
}

func TestRecord_FailedWriteKeepsPreviousContent(t *testing.T) {
	base := afero.NewMemMapFs()
	afero.WriteFile(base, testPath, []byte("task1\n"), 0644)

	l, err := Load(failingRenameFs{base}, testPath, false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := l.Record("task2"); err == nil {
		t.Fatal("Record() error = nil, want rename failure")
	}

	data, _ := afero.ReadFile(base, testPath)
	if string(data) != "task1\n" {
		t.Errorf("ledger file = %q after failed write, want untouched", data)
	}
	if l.Contains("task2") {
		t.Error("in-memory ledger kept a record that was not persisted")
	}
}

func TestRecord_RejectsInvalidNames(t *testing.T) {
	l, _ := Load(afero.NewMemMapFs(), testPath, false)
	for _, name := range []string{"", "a\nb"} {
		if err := l.Record(name); err == nil {
			t.Errorf("Record(%q) error = nil", name)
		}
	}
}

func TestReadOnly_NeverTouchesFile(t *testing.T) {
	fs := &writeCountingFs{Fs: afero.NewMemMapFs()}
	afero.WriteFile(fs.Fs, testPath, []byte("task1\n"), 0644)

	l, err := Load(fs, testPath, true)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := l.Record("task2"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !l.Contains("task2") {
		t.Error("read-only ledger should still track records in memory")
	}
	if err := l.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	if fs.writes != 0 {
		t.Errorf("writes = %d, want 0", fs.writes)
	}
	data, _ := afero.ReadFile(fs.Fs, testPath)
	if string(data) != "task1\n" {
		t.Errorf("ledger file = %q, want untouched", data)
	}
}

func TestClear(t *testing.T) {
	fs := afero.NewMemMapFs()
	l, _ := Load(fs, testPath, false)
	l.Record("task1")

	if err := l.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if exists, _ := afero.Exists(fs, testPath); exists {
		t.Error("ledger file still exists after Clear")
	}
	if l.Exists() || l.Len() != 0 {
		t.Errorf("after Clear: Exists=%v Len=%d", l.Exists(), l.Len())
	}
	if err := l.Clear(); err != nil {
		t.Errorf("second Clear() error = %v", err)
	}
}

func TestAcquire_SecondInstanceFailsFast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "run.lock")

	first, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if _, err := Acquire(path); !errors.Is(err, ErrLocked) {
		t.Fatalf("second Acquire() error = %v, want ErrLocked", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	again, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	again.Close()
}
