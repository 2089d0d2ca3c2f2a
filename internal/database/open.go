// Package database opens the telemetry databases and owns their schema.
package database

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kartlab/vehiclesim/internal/config"
)

const (
	postgresBatchSize = 10_000
	// sqlite caps bound variables per statement, so its batches stay small
	sqliteBatchSize = 2_000

	postgresMaxOpenConns = 10
	postgresPingTimeout  = 5 * time.Second
)

// sqlitePragmas trade durability for write speed; the file on disk is only
// ever produced by Snapshot.
var sqlitePragmas = []string{
	"PRAGMA user_version = 1",
	"PRAGMA journal_mode = MEMORY",
	"PRAGMA synchronous = OFF",
	"PRAGMA cache_size = -32000",
	"PRAGMA temp_store = MEMORY",
}

// PrivateMemoryDSN names a fresh shared-cache in-memory database. Every
// pooled connection opened with the same DSN sees the same data.
func PrivateMemoryDSN() string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
}

// PostgresDSN builds a key/value connection string from cfg.
func PostgresDSN(cfg config.DBConfig) string {
	dsn := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     cfg.Host + ":" + cfg.Port,
		Path:     "/" + cfg.Database,
		RawQuery: "sslmode=disable",
	}
	return dsn.String()
}

// OpenPostgres connects to the server in cfg and verifies it answers.
func OpenPostgres(cfg config.DBConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  PostgresDSN(cfg),
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		// The ping below runs with a deadline and a clearer error.
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        postgresBatchSize,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening postgres %s: %w", cfg.Host, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("accessing sql interface: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresPingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("postgres %s:%s unreachable: %w", cfg.Host, cfg.Port, err)
	}
	sqlDB.SetMaxOpenConns(postgresMaxOpenConns)
	return db, nil
}

// OpenSQLite opens the sqlite database at dsn, a file path or a
// PrivateMemoryDSN.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        sqliteBatchSize,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	for _, pragma := range sqlitePragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return db, nil
}

// Close releases the connection pool behind db.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
