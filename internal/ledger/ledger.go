// Package ledger persists the names of completed tasks so an interrupted or
// rebooted installation resumes where it stopped.
package ledger

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// Ledger is an ordered set of completed task names backed by a
// newline-delimited file. Every Record is written through atomically.
type Ledger struct {
	fs       afero.Fs
	path     string
	readOnly bool

	mu     sync.Mutex
	names  []string
	set    map[string]struct{}
	exists bool
}

// Load reads the ledger at path. A missing file yields an empty ledger.
// A read-only ledger (dry-run) tracks records in memory and never touches
// the file.
func Load(fs afero.Fs, path string, readOnly bool) (*Ledger, error) {
	l := &Ledger{
		fs:       fs,
		path:     path,
		readOnly: readOnly,
		set:      make(map[string]struct{}),
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("failed to read ledger %s: %w", path, err)
	}
	l.exists = true

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		name := strings.TrimSpace(sc.Text())
		if name == "" {
			continue
		}
		l.add(name)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse ledger %s: %w", path, err)
	}
	return l, nil
}

func (l *Ledger) add(name string) bool {
	if _, ok := l.set[name]; ok {
		return false
	}
	l.set[name] = struct{}{}
	l.names = append(l.names, name)
	return true
}

// Path returns the backing file path.
func (l *Ledger) Path() string { return l.path }

// Exists reports whether the backing file was present at load time or has
// been written since. An existing ledger means a run is in progress.
func (l *Ledger) Exists() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exists
}

// Contains reports whether name has been recorded.
func (l *Ledger) Contains(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.set[name]
	return ok
}

// Names returns the recorded names in completion order.
func (l *Ledger) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.names))
	copy(out, l.names)
	return out
}

// Len returns the number of recorded names.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.names)
}

// Record adds name and persists the ledger before returning.
func (l *Ledger) Record(name string) error {
	if name == "" || strings.ContainsAny(name, "\r\n") {
		return fmt.Errorf("invalid task name %q", name)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.add(name) {
		return nil
	}
	if l.readOnly {
		return nil
	}
	if err := l.persist(); err != nil {
		// Keep memory in step with disk.
		delete(l.set, name)
		l.names = l.names[:len(l.names)-1]
		return err
	}
	return nil
}

// Clear forgets every record and removes the backing file.
func (l *Ledger) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.names = nil
	l.set = make(map[string]struct{})
	if l.readOnly {
		return nil
	}
	if err := l.fs.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove ledger %s: %w", l.path, err)
	}
	l.exists = false
	return nil
}

// persist writes the ledger with temp file, fsync, rename and directory
// fsync, so a crash leaves either the old or the new content.
func (l *Ledger) persist() error {
	var buf bytes.Buffer
	for _, n := range l.names {
		buf.WriteString(n)
		buf.WriteByte('\n')
	}

	dir := filepath.Dir(l.path)
	if err := l.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	tmp, err := afero.TempFile(l.fs, dir, "."+filepath.Base(l.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp ledger: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = l.fs.Remove(tmpName) }

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write temp ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp ledger: %w", err)
	}
	if err := l.fs.Rename(tmpName, l.path); err != nil {
		cleanup()
		return fmt.Errorf("failed to rename ledger: %w", err)
	}
	if err := syncDir(l.fs, dir); err != nil {
		return err
	}
	l.exists = true
	return nil
}

func syncDir(fs afero.Fs, dir string) error {
	d, err := fs.Open(dir)
	if err != nil {
		return fmt.Errorf("failed to open ledger directory: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("failed to sync ledger directory: %w", err)
	}
	return nil
}
