package gormstorage

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kartlab/vehiclesim/internal/database"
	"github.com/kartlab/vehiclesim/internal/model"
	"github.com/kartlab/vehiclesim/internal/queue"
	"github.com/kartlab/vehiclesim/pkg/core"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "writer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	return db
}

func countRows(t *testing.T, db *gorm.DB, m any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(m).Count(&n).Error)
	return n
}

func TestWriteRows(t *testing.T) {
	tests := []struct {
		name   string
		queued int
	}{
		{name: "empty queue", queued: 0},
		{name: "single batch", queued: 3},
		{name: "spills into a second batch", queued: WriteBatchSize + 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			q := queue.New[model.TuningWarning](0)
			for i := 0; i < tt.queued; i++ {
				q.Push(model.TuningWarning{Field: "maxSpeed", Time: time.Now()})
			}

			n, err := writeRows(db, q, "tuning_warnings", 42, quietLogger)
			require.NoError(t, err)
			assert.Equal(t, tt.queued, n)
			assert.Zero(t, q.Len())
			assert.Equal(t, int64(tt.queued), countRows(t, db, &model.TuningWarning{}))

			var stamped int64
			db.Model(&model.TuningWarning{}).Where("run_id = ?", 42).Count(&stamped)
			assert.Equal(t, int64(tt.queued), stamped, "every row carries the run ID")
		})
	}
}

func TestWriteRows_FailedBatchGoesBackToFront(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrator().DropTable(&model.TuningWarning{}))

	q := queue.New[model.TuningWarning](0)
	q.Push(model.TuningWarning{Field: "first"})

	var logs bytes.Buffer
	n, err := writeRows(db, q, "tuning_warnings", 1, slog.New(slog.NewTextHandler(&logs, nil)))

	require.Error(t, err)
	assert.Zero(t, n)
	assert.Contains(t, logs.String(), "rows requeued")
	assert.Contains(t, err.Error(), "insert tuning_warnings")

	q.Push(model.TuningWarning{Field: "second"})
	assert.Equal(t, []string{"first", "second"}, fields(q.Drain(0)))
}

func fields(ws []model.TuningWarning) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.Field
	}
	return out
}

func TestFlush_WritesVehiclesBeforeStatesAndSamples(t *testing.T) {
	db := newTestDB(t)
	b := New(Dependencies{DB: db, Logger: quietLogger, WriteInterval: time.Hour})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, b.Flush(), "no run yet")
	assert.Zero(t, countRows(t, db, &model.SimPerformance{}))

	run := &core.Run{RunID: "flush", StartTime: time.Now()}
	require.NoError(t, b.StartRun(run))
	require.NoError(t, b.AddVehicle(&core.Vehicle{ID: 4, JoinTime: time.Now()}))
	require.NoError(t, b.RecordVehicleState(&core.VehicleState{VehicleID: 4, Time: time.Now()}))
	require.NoError(t, b.Flush())

	var state model.VehicleState
	require.NoError(t, db.First(&state).Error)
	assert.Equal(t, run.ID, state.RunID)
	assert.Equal(t, uint16(4), state.VehicleObjectID)
	assert.Equal(t, int64(1), countRows(t, db, &model.Vehicle{}))

	var sample model.SimPerformance
	require.NoError(t, db.First(&sample).Error)
	assert.Equal(t, run.ID, sample.RunID)
	assert.Zero(t, sample.VehicleStateQueue)
}

func TestDBWriter_Ticks(t *testing.T) {
	db := newTestDB(t)
	b := New(Dependencies{DB: db, Logger: quietLogger, WriteInterval: 20 * time.Millisecond})
	require.NoError(t, b.Init())
	t.Cleanup(func() { require.NoError(t, b.Close()) })

	require.NoError(t, b.StartRun(&core.Run{RunID: "writer", StartTime: time.Now()}))
	require.NoError(t, b.AddVehicle(&core.Vehicle{ID: 2, JoinTime: time.Now()}))
	require.NoError(t, b.RecordVehicleState(&core.VehicleState{VehicleID: 2, Time: time.Now()}))

	require.Eventually(t, func() bool {
		var n int64
		return db.Model(&model.VehicleState{}).Count(&n).Error == nil && n == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestClose_FinalFlush(t *testing.T) {
	db := newTestDB(t)
	b := New(Dependencies{DB: db, Logger: quietLogger, WriteInterval: time.Hour})
	require.NoError(t, b.Init())

	require.NoError(t, b.StartRun(&core.Run{RunID: "close", StartTime: time.Now()}))
	require.NoError(t, b.RecordTuningWarning(&core.TuningWarning{VehicleID: 1, Field: "maxSpeed"}))
	require.NoError(t, b.Close())

	assert.Equal(t, int64(1), countRows(t, db, &model.TuningWarning{}))
}
