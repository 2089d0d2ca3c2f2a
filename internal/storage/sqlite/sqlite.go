// Package sqlitestorage keeps runs in a private in-memory SQLite database
// and snapshots it to a file: periodically while a run is in progress and
// once more when it ends. Queueing and batch writes come from the GORM
// backend.
package sqlitestorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kartlab/vehiclesim/internal/cache"
	"github.com/kartlab/vehiclesim/internal/database"
	gormstorage "github.com/kartlab/vehiclesim/internal/storage/gorm"
	"github.com/kartlab/vehiclesim/pkg/core"
)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	// DumpPath receives the snapshots; empty keeps the run in memory only.
	DumpPath string
	// DumpInterval is the period of in-run snapshots; zero disables them.
	DumpInterval time.Duration
}

// Backend is the GORM backend plus snapshots.
type Backend struct {
	*gormstorage.Backend
	cfg Config
	log *slog.Logger

	stop      chan struct{}
	loop      sync.WaitGroup
	closeOnce sync.Once
	closeErr  error

	mu        sync.Mutex // serializes snapshots
	snapshots int
}

// New opens the in-memory database. The schema is created by Init.
func New(cfg Config, vehicleCache *cache.VehicleCache, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := database.OpenSQLite(database.PrivateMemoryDSN())
	if err != nil {
		return nil, fmt.Errorf("opening in-memory sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("accessing sql interface: %w", err)
	}
	// one connection for the writer and the snapshotter alike
	sqlDB.SetMaxOpenConns(1)

	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{
			DB:           db,
			VehicleCache: vehicleCache,
			Logger:       logger,
		}),
		cfg:  cfg,
		log:  logger.With("backend", "sqlite"),
		stop: make(chan struct{}),
	}, nil
}

// Init migrates the schema, starts the writer and, when configured, the
// periodic snapshots.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}
	if b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		b.loop.Add(1)
		go b.snapshotEvery(b.cfg.DumpInterval)
	}
	return nil
}

// EndRun closes the run and snapshots it, so the file holds the whole run.
func (b *Backend) EndRun(run *core.Run) error {
	err := b.Backend.EndRun(run)
	if b.cfg.DumpPath != "" {
		err = errors.Join(err, b.snapshot())
	}
	return err
}

// Snapshots reports how many snapshots were written.
func (b *Backend) Snapshots() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshots
}

// Close stops snapshots, flushes the writer and releases the database.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		close(b.stop)
		b.loop.Wait()
		b.closeErr = errors.Join(b.Backend.Close(), database.Close(b.Backend.DB()))
	})
	return b.closeErr
}

func (b *Backend) snapshot() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	if err := database.Snapshot(b.Backend.DB(), b.cfg.DumpPath); err != nil {
		return err
	}
	b.snapshots++
	b.log.Debug("Snapshot written", "path", b.cfg.DumpPath, "duration", time.Since(start))
	return nil
}

// snapshotEvery runs until Close. VACUUM INTO reads a consistent view, so
// the writer keeps going while a snapshot is taken.
func (b *Backend) snapshotEvery(interval time.Duration) {
	defer b.loop.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			if err := b.snapshot(); err != nil {
				b.log.Error("Snapshot failed", "path", b.cfg.DumpPath, "error", err)
			}
		}
	}
}
