package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"warning", WARN},
		{"error", ERROR},
		{"fatal", FATAL},
		{"bogus", INFO},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLogger_SeparateThresholds(t *testing.T) {
	var console, file bytes.Buffer
	l := NewLogger(INFO, false)
	l.SetOutput(&console)
	l.SetFileOutput(&file)

	l.Debug("captured stdout", map[string]interface{}{"cmd": "dnf"})
	l.Info("visible")

	if strings.Contains(console.String(), "captured stdout") {
		t.Errorf("debug entry leaked to console: %q", console.String())
	}
	if !strings.Contains(file.String(), "DEBUG: captured stdout {cmd=dnf}") {
		t.Errorf("debug entry missing from file: %q", file.String())
	}
	if !strings.Contains(console.String(), "INFO: visible") {
		t.Errorf("info entry missing from console: %q", console.String())
	}
}

func TestLogger_WithFieldSharesSinks(t *testing.T) {
	var console bytes.Buffer
	l := NewLogger(DEBUG, true)
	l.SetOutput(&console)

	l.WithField("task", "repo:rpmfusion").Info("running")

	var entry LogEntry
	if err := json.Unmarshal(bytes.TrimSpace(console.Bytes()), &entry); err != nil {
		t.Fatalf("unmarshal: %v (%q)", err, console.String())
	}
	if entry.Fields["task"] != "repo:rpmfusion" {
		t.Errorf("fields = %v, want task field", entry.Fields)
	}
	if entry.Level != "INFO" {
		t.Errorf("level = %s, want INFO", entry.Level)
	}
}

func TestNewFileLogger_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fedora-setup.log")
	l, err := NewFileLogger(path, FATAL, false)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	l.Debug("hello file")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "DEBUG: hello file") {
		t.Errorf("log file = %q, want debug entry", string(data))
	}
	if l.Path() != path {
		t.Errorf("Path() = %q, want %q", l.Path(), path)
	}
}

func TestRotateIfNeeded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.log")
	if err := os.WriteFile(path, bytes.Repeat([]byte("x"), 64), 0644); err != nil {
		t.Fatal(err)
	}
	if err := rotateIfNeeded(path, 32); err != nil {
		t.Fatalf("rotateIfNeeded: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected %s to be moved aside, stat err = %v", path, err)
	}
	matches, _ := filepath.Glob(path + ".*")
	if len(matches) != 1 {
		t.Errorf("backups = %v, want exactly one", matches)
	}
}

func TestLogrotateConfig(t *testing.T) {
	cfg := LogrotateConfig("/var/log/fedora-setup")
	if !strings.Contains(cfg, "/var/log/fedora-setup/*.log {") {
		t.Errorf("missing log glob in:\n%s", cfg)
	}
	if !strings.Contains(cfg, "copytruncate") {
		t.Error("expected copytruncate")
	}
}
