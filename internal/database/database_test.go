package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kartlab/vehiclesim/internal/config"
	"github.com/kartlab/vehiclesim/internal/model"
)

func openMigrated(t *testing.T, dsn string) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	require.NoError(t, Migrate(db))
	return db
}

func TestMigrate_SeedsSimInfoOnce(t *testing.T) {
	db := openMigrated(t, filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, Migrate(db))

	var infos []model.SimInfo
	require.NoError(t, db.Find(&infos).Error)
	require.Len(t, infos, 1)
	assert.Equal(t, "vehiclesim", infos[0].TeamName)

	for _, m := range model.DatabaseModels {
		assert.True(t, db.Migrator().HasTable(m), "%T table should exist", m)
	}
}

func TestPrivateMemoryDSN_Isolated(t *testing.T) {
	a := openMigrated(t, PrivateMemoryDSN())
	b := openMigrated(t, PrivateMemoryDSN())

	require.NoError(t, a.Create(&model.Run{RunUUID: "only-in-a"}).Error)

	var count int64
	require.NoError(t, b.Model(&model.Run{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSnapshot(t *testing.T) {
	dir := t.TempDir()
	db := openMigrated(t, PrivateMemoryDSN())
	require.NoError(t, db.Create(&model.Run{RunUUID: "abc", Name: "practice"}).Error)

	target := filepath.Join(dir, "out", "it's.db")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0755))
	require.NoError(t, os.WriteFile(target, []byte("stale"), 0644))
	require.NoError(t, os.WriteFile(target+".partial", []byte("crashed"), 0644))

	require.NoError(t, Snapshot(db, target))
	assert.NoFileExists(t, target+".partial")

	snap := openMigrated(t, target)
	var run model.Run
	require.NoError(t, snap.Where("run_uuid = ?", "abc").First(&run).Error)
	assert.Equal(t, "practice", run.Name)
}

func TestTimeColumns_ReadBackOnSQLite(t *testing.T) {
	db := openMigrated(t, filepath.Join(t.TempDir(), "runs.db"))
	start := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)

	run := model.Run{RunUUID: "timed", StartTime: start, EndTime: &end}
	require.NoError(t, db.Create(&run).Error)
	require.NoError(t, db.Create(&model.Vehicle{RunID: run.ID, ObjectID: 1, JoinTime: start}).Error)
	require.NoError(t, db.Create(&model.VehicleState{RunID: run.ID, VehicleObjectID: 1, Time: end}).Error)
	require.NoError(t, db.Create(&model.TuningWarning{RunID: run.ID, VehicleObjectID: 1, Time: start}).Error)
	require.NoError(t, db.Create(&model.SimPerformance{RunID: run.ID, Time: end}).Error)

	var gotRun model.Run
	require.NoError(t, db.First(&gotRun, run.ID).Error)
	assert.WithinDuration(t, start, gotRun.StartTime, time.Millisecond)
	require.NotNil(t, gotRun.EndTime)
	assert.WithinDuration(t, end, *gotRun.EndTime, time.Millisecond)

	var vehicle model.Vehicle
	require.NoError(t, db.Where("run_id = ?", run.ID).First(&vehicle).Error)
	assert.WithinDuration(t, start, vehicle.JoinTime, time.Millisecond)

	var state model.VehicleState
	require.NoError(t, db.Where("run_id = ?", run.ID).First(&state).Error)
	assert.WithinDuration(t, end, state.Time, time.Millisecond)

	var warning model.TuningWarning
	require.NoError(t, db.Where("run_id = ?", run.ID).First(&warning).Error)
	assert.WithinDuration(t, start, warning.Time, time.Millisecond)

	var perf model.SimPerformance
	require.NoError(t, db.Where("run_id = ?", run.ID).First(&perf).Error)
	assert.WithinDuration(t, end, perf.Time, time.Millisecond)
}

func TestSnapshot_CreatesDir(t *testing.T) {
	db := openMigrated(t, PrivateMemoryDSN())
	target := filepath.Join(t.TempDir(), "a", "b", "runs.db")
	require.NoError(t, Snapshot(db, target))
	assert.FileExists(t, target)
}

func TestSnapshot_NoPath(t *testing.T) {
	assert.ErrorIs(t, Snapshot(nil, ""), ErrNoSnapshotPath)
}

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.DBConfig{Host: "db", Port: "5432", Username: "sim", Password: "p@ss word", Database: "telemetry"})
	assert.Equal(t, "postgres://sim:p%40ss%20word@db:5432/telemetry?sslmode=disable", dsn)
}

func TestOpenPostgres_Unreachable(t *testing.T) {
	// nothing listens on port 1
	_, err := OpenPostgres(config.DBConfig{Host: "127.0.0.1", Port: "1", Username: "u", Password: "p", Database: "d"})
	assert.ErrorContains(t, err, "unreachable")
}

func TestClose_Nil(t *testing.T) {
	assert.NoError(t, Close(nil))
}
