package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Level represents log level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

var levelColors = map[Level]*color.Color{
	DEBUG: color.New(color.FgCyan),
	INFO:  color.New(color.FgBlue),
	WARN:  color.New(color.FgYellow),
	ERROR: color.New(color.FgRed),
	FATAL: color.New(color.FgRed, color.Bold),
}

// DefaultMaxSize is the size at which NewFileLogger rotates an existing log.
const DefaultMaxSize int64 = 10 * 1024 * 1024

// Logger writes leveled entries to the console and, optionally, a log file.
// The console and the file have separate thresholds: the file normally keeps
// everything down to DEBUG so command output survives a quiet console.
type Logger struct {
	mu           *sync.Mutex
	consoleLevel Level
	fileLevel    Level
	jsonFormat   bool
	colorize     bool
	console      io.Writer
	file         io.Writer
	logFile      *os.File
	fields       map[string]interface{}
}

// NewLogger creates a console logger
func NewLogger(level Level, jsonFormat bool) *Logger {
	return &Logger{
		mu:           &sync.Mutex{},
		consoleLevel: level,
		fileLevel:    DEBUG,
		jsonFormat:   jsonFormat,
		colorize:     true,
		console:      os.Stdout,
		fields:       make(map[string]interface{}),
	}
}

// NewFileLogger creates a logger that writes every entry at DEBUG or above to
// path and entries at consoleLevel or above to stdout.
// Falls back to ./logs/ if the directory of path is not writable.
func NewFileLogger(path string, consoleLevel Level, jsonFormat bool) (*Logger, error) {
	logDir := filepath.Dir(path)
	if !isWritable(logDir) {
		logDir = "./logs"
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
		path = filepath.Join(logDir, filepath.Base(path))
	}

	if err := rotateIfNeeded(path, DefaultMaxSize); err != nil {
		return nil, fmt.Errorf("failed to rotate log file %s: %w", path, err)
	}

	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	logger := NewLogger(consoleLevel, jsonFormat)
	logger.file = logFile
	logger.logFile = logFile

	logger.Debug(fmt.Sprintf("Logger initialized -> %s", path))

	return logger, nil
}

// SetOutput sets the console writer. Colors are disabled for anything that is
// not stdout.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.console = w
	l.colorize = w == os.Stdout
}

// SetFileOutput replaces the file sink, mostly for tests.
func (l *Logger) SetFileOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.file = w
}

// SetLevel changes the console threshold.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.consoleLevel = level
}

// Path returns the log file path, or "" for console-only loggers.
func (l *Logger) Path() string {
	if l.logFile == nil {
		return ""
	}
	return l.logFile.Name()
}

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// log writes a log entry
func (l *Logger) log(level Level, message string, fields map[string]interface{}) {
	toConsole := level >= l.consoleLevel && l.console != nil
	toFile := level >= l.fileLevel && l.file != nil
	if !toConsole && !toFile {
		return
	}

	mergedFields := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		mergedFields[k] = v
	}
	for k, v := range fields {
		mergedFields[k] = v
	}

	now := time.Now()
	var line, colored string
	if l.jsonFormat {
		entry := LogEntry{
			Timestamp: now.Format(time.RFC3339),
			Level:     level.String(),
			Message:   message,
			Fields:    mergedFields,
		}
		data, err := json.Marshal(entry)
		if err != nil {
			log.Printf("Failed to marshal log entry: %v", err)
			return
		}
		line = string(data)
		colored = line
	} else {
		timestamp := now.Format("2006-01-02 15:04:05")
		suffix := formatFields(mergedFields)
		line = fmt.Sprintf("[%s] %s: %s%s", timestamp, level.String(), message, suffix)
		colored = fmt.Sprintf("[%s] %s: %s%s", timestamp, levelColors[level].Sprint(level.String()), message, suffix)
	}

	l.mu.Lock()
	if toConsole {
		if l.colorize {
			fmt.Fprintln(l.console, colored)
		} else {
			fmt.Fprintln(l.console, line)
		}
	}
	if toFile {
		fmt.Fprintln(l.file, line)
	}
	l.mu.Unlock()

	if level == FATAL {
		os.Exit(1)
	}
}

func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return " {" + strings.Join(parts, " ") + "}"
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields ...map[string]interface{}) {
	var f map[string]interface{}
	if len(fields) > 0 {
		f = fields[0]
	}
	l.log(DEBUG, message, f)
}

// Info logs an info message
func (l *Logger) Info(message string, fields ...map[string]interface{}) {
	var f map[string]interface{}
	if len(fields) > 0 {
		f = fields[0]
	}
	l.log(INFO, message, f)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields ...map[string]interface{}) {
	var f map[string]interface{}
	if len(fields) > 0 {
		f = fields[0]
	}
	l.log(WARN, message, f)
}

// Error logs an error message
func (l *Logger) Error(message string, fields ...map[string]interface{}) {
	var f map[string]interface{}
	if len(fields) > 0 {
		f = fields[0]
	}
	l.log(ERROR, message, f)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(message string, fields ...map[string]interface{}) {
	var f map[string]interface{}
	if len(fields) > 0 {
		f = fields[0]
	}
	l.log(FATAL, message, f)
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	newFields := make(map[string]interface{}, len(l.fields)+1)
	for k, v := range l.fields {
		newFields[k] = v
	}
	newFields[key] = value
	return &Logger{
		mu:           l.mu,
		consoleLevel: l.consoleLevel,
		fileLevel:    l.fileLevel,
		jsonFormat:   l.jsonFormat,
		colorize:     l.colorize,
		console:      l.console,
		file:         l.file,
		logFile:      l.logFile,
		fields:       newFields,
	}
}

// ParseLevel parses a log level string
func ParseLevel(level string) Level {
	switch level {
	case "DEBUG", "debug":
		return DEBUG
	case "INFO", "info":
		return INFO
	case "WARN", "warn", "WARNING", "warning":
		return WARN
	case "ERROR", "error":
		return ERROR
	case "FATAL", "fatal":
		return FATAL
	default:
		return INFO
	}
}

// Close closes the log file if opened
func (l *Logger) Close() error {
	if l.logFile != nil {
		l.Debug("Logger closing")
		return l.logFile.Close()
	}
	return nil
}

// rotateIfNeeded moves path aside to a timestamped backup once it exceeds maxSize.
func rotateIfNeeded(path string, maxSize int64) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Size() <= maxSize {
		return nil
	}
	backupPath := path + "." + time.Now().Format("20060102-150405")
	return os.Rename(path, backupPath)
}

// isWritable checks if directory is writable
func isWritable(path string) bool {
	if err := os.MkdirAll(path, 0755); err != nil {
		return false
	}

	testFile := filepath.Join(path, ".write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(testFile)
	return true
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	l := NewLogger(FATAL+1, false)
	l.console = io.Discard
	l.colorize = false
	return l
}
