package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/kartlab/vehiclesim/internal/cache"
	"github.com/kartlab/vehiclesim/internal/config"
	"github.com/kartlab/vehiclesim/internal/storage"
	"github.com/kartlab/vehiclesim/internal/storage/memory"
	pgstorage "github.com/kartlab/vehiclesim/internal/storage/postgres"
	sqlitestorage "github.com/kartlab/vehiclesim/internal/storage/sqlite"
	wsstorage "github.com/kartlab/vehiclesim/internal/storage/websocket"
)

// ErrUnknownStorage is returned for an unsupported storage.type.
var ErrUnknownStorage = errors.New("unknown storage type")

// createStorageBackend builds the primary backend for storageCfg.Type and,
// when a websocket URL is set, streams to it as well.
func createStorageBackend(storageCfg config.StorageConfig, vehicleCache *cache.VehicleCache, logger *slog.Logger) (storage.Backend, error) {
	var primary storage.Backend

	switch storageCfg.Type {
	case "", "memory":
		logger.Info("Memory storage backend selected", "outputDir", storageCfg.Memory.OutputDir)
		primary = memory.New(storageCfg.Memory)

	case "sqlite":
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpPath:     storageCfg.SQLite.Path,
		}, vehicleCache, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		logger.Info("SQLite storage backend selected", "path", storageCfg.SQLite.Path)
		primary = backend

	case "postgres":
		logger.Info("Postgres storage backend selected")
		primary = pgstorage.New(config.GetDBConfig(), vehicleCache, logger)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStorage, storageCfg.Type)
	}

	if storageCfg.WebSocket.URL == "" {
		return primary, nil
	}
	logger.Info("WebSocket streaming enabled", "url", storageCfg.WebSocket.URL)
	return storage.Multi{primary, wsstorage.New(wsstorage.Config{
		URL:        storageCfg.WebSocket.URL,
		Secret:     storageCfg.WebSocket.Secret,
		AckTimeout: storageCfg.WebSocket.AckTimeout,
	}, logger)}, nil
}

// uploadable finds the backend that produced an export file, if any.
func uploadable(b storage.Backend) (storage.Uploadable, bool) {
	switch v := b.(type) {
	case storage.Multi:
		return v.Uploadable()
	case storage.Uploadable:
		return v, true
	}
	return nil, false
}

// sqliteFallback returns a constructor for the backend used when postgres
// cannot be reached, or nil when there is nothing to fall back to. The
// fallback snapshots to storage.sqlite.path.
func sqliteFallback(storageCfg config.StorageConfig, vehicleCache *cache.VehicleCache, logger *slog.Logger) func() (storage.Backend, error) {
	if storageCfg.Type != "postgres" || storageCfg.SQLite.Path == "" {
		return nil
	}
	return func() (storage.Backend, error) {
		return sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpPath:     storageCfg.SQLite.Path,
		}, vehicleCache, logger)
	}
}

// initStorage initializes b. When the primary fails and fallback is set,
// the fallback takes its place. Secondary members of a Multi are optional:
// one that fails to start is logged and left out.
func initStorage(b storage.Backend, fallback func() (storage.Backend, error), logger *slog.Logger) (storage.Backend, error) {
	members := storage.Multi{b}
	if multi, ok := b.(storage.Multi); ok && len(multi) > 0 {
		members = multi
	}

	primary, err := initPrimary(members[0], fallback, logger)
	if err != nil {
		return nil, err
	}
	out := storage.Multi{primary}
	for _, secondary := range members[1:] {
		if err := secondary.Init(); err != nil {
			logger.Warn("Secondary storage backend unavailable, continuing without it", "backend", fmt.Sprintf("%T", secondary), "error", err)
			continue
		}
		out = append(out, secondary)
	}
	if len(out) == 1 {
		return out[0], nil
	}
	return out, nil
}

func initPrimary(b storage.Backend, fallback func() (storage.Backend, error), logger *slog.Logger) (storage.Backend, error) {
	err := b.Init()
	if err == nil || fallback == nil {
		return b, err
	}
	logger.Error("Primary storage backend unavailable, falling back to SQLite", "error", err)
	fb, fbErr := fallback()
	if fbErr == nil {
		fbErr = fb.Init()
	}
	if fbErr != nil {
		return nil, errors.Join(err, fmt.Errorf("sqlite fallback: %w", fbErr))
	}
	return fb, nil
}
