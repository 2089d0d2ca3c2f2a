package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/gorm"
)

// ErrNoSnapshotPath is returned when a snapshot is requested without a
// target file.
var ErrNoSnapshotPath = errors.New("sqlite snapshot path not set")

// Snapshot writes a consistent copy of db to path with VACUUM INTO. The copy
// is built next to path and renamed over it, so readers never see a partial
// file.
func Snapshot(db *gorm.DB, path string) error {
	if path == "" {
		return ErrNoSnapshotPath
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}

	tmp := path + ".partial"
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale partial snapshot: %w", err)
	}

	quoted := strings.ReplaceAll(tmp, "'", "''")
	if err := db.Exec("VACUUM INTO '" + quoted + "'").Error; err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("vacuum into %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}
