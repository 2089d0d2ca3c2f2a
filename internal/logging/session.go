package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SessionLogPath is <logsDir>/<app>.<yyyymmdd_hhmmss>.log.
func SessionLogPath(logsDir, app string, start time.Time) string {
	return filepath.Join(logsDir, fmt.Sprintf("%s.%s.log", app, start.Format("20060102_150405")))
}

// OpenSessionLog creates logsDir if needed and opens the session log for
// appending. A log left by a session started in the same second is kept as
// <path>.old.
func OpenSessionLog(logsDir, app string, start time.Time) (*os.File, string, error) {
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, "", fmt.Errorf("creating logs directory: %w", err)
	}
	path := SessionLogPath(logsDir, app, start)
	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+".old"); err != nil {
			return nil, "", fmt.Errorf("rotating %s: %w", path, err)
		}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, "", fmt.Errorf("opening log file: %w", err)
	}
	return f, path, nil
}
