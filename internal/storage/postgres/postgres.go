// Package postgres implements the storage.Backend interface on a PostgreSQL
// server. Queueing and batch writes come from the GORM backend; this package
// owns the connection.
package postgres

import (
	"errors"
	"log/slog"

	"github.com/kartlab/vehiclesim/internal/cache"
	"github.com/kartlab/vehiclesim/internal/config"
	"github.com/kartlab/vehiclesim/internal/database"
	gormstorage "github.com/kartlab/vehiclesim/internal/storage/gorm"

	"gorm.io/gorm"
)

// Backend wraps the GORM backend with a postgres connection opened in Init.
type Backend struct {
	*gormstorage.Backend
	cfg          config.DBConfig
	vehicleCache *cache.VehicleCache
	log          *slog.Logger
}

// New creates a postgres backend. The connection is opened by Init.
func New(cfg config.DBConfig, vehicleCache *cache.VehicleCache, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		cfg:          cfg,
		vehicleCache: vehicleCache,
		log:          logger,
	}
}

// NewWithDB creates a backend on an already open connection.
func NewWithDB(db *gorm.DB, vehicleCache *cache.VehicleCache, logger *slog.Logger) *Backend {
	b := New(config.DBConfig{}, vehicleCache, logger)
	b.Backend = b.newGorm(db)
	return b
}

func (b *Backend) newGorm(db *gorm.DB) *gormstorage.Backend {
	return gormstorage.New(gormstorage.Dependencies{
		DB:           db,
		VehicleCache: b.vehicleCache,
		Logger:       b.log,
	})
}

// Init connects (unless a DB was injected), migrates the schema and starts
// the writer.
func (b *Backend) Init() error {
	if b.Backend == nil {
		b.log.Debug("Connecting to Postgres DB", "host", b.cfg.Host, "port", b.cfg.Port, "database", b.cfg.Database)
		db, err := database.OpenPostgres(b.cfg)
		if err != nil {
			return err
		}
		b.Backend = b.newGorm(db)
	}
	return b.Backend.Init()
}

// Close stops the writer and closes the connection.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	return errors.Join(b.Backend.Close(), database.Close(b.Backend.DB()))
}
