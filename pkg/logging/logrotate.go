package logging

import "fmt"

// LogrotatePath is where the installer's logrotate policy is installed.
const LogrotatePath = "/etc/logrotate.d/fedora-setup"

// LogrotateConfig creates a logrotate policy for the logs in logDir.
// NewFileLogger appends to the same file on every run, so copytruncate is
// used instead of a postrotate signal.
func LogrotateConfig(logDir string) string {
	return fmt.Sprintf(`# Logrotate configuration for fedora-setup

%s/*.log {
    # Rotate weekly
    weekly

    # Keep 8 weeks of logs
    rotate 8

    # Compress old logs
    compress
    delaycompress

    # Don't error if log is missing
    missingok

    # Don't rotate empty logs
    notifempty

    copytruncate
}
`, logDir)
}
