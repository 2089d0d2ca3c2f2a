// Package gormstorage implements the storage.Backend interface on any GORM
// database with internal queues and a background DB writer goroutine.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kartlab/vehiclesim/internal/cache"
	"github.com/kartlab/vehiclesim/internal/database"
	"github.com/kartlab/vehiclesim/internal/model"
	"github.com/kartlab/vehiclesim/internal/model/convert"
	"github.com/kartlab/vehiclesim/internal/queue"
	"github.com/kartlab/vehiclesim/internal/storage"
	"github.com/kartlab/vehiclesim/pkg/core"

	"gorm.io/gorm"
)

// DefaultWriteInterval is how often queued rows are written when no
// interval is configured.
const DefaultWriteInterval = 2 * time.Second

const (
	// WriteBatchSize is the most rows taken from a queue per transaction.
	// Drivers split it further by their own CreateBatchSize.
	WriteBatchSize = 10000
	// StateQueueLimit caps buffered vehicle states while the database is
	// unavailable. The oldest states are discarded first.
	StateQueueLimit = 1_000_000
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB *gorm.DB
	// VehicleCache is shared with the worker when given; otherwise the
	// backend keeps its own.
	VehicleCache  *cache.VehicleCache
	Logger        *slog.Logger
	WriteInterval time.Duration
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Vehicles       *queue.Queue[model.Vehicle]
	VehicleStates  *queue.Queue[model.VehicleState]
	TuningWarnings *queue.Queue[model.TuningWarning]
}

func newQueues() *queues {
	return &queues{
		Vehicles:       queue.New[model.Vehicle](0),
		VehicleStates:  queue.New[model.VehicleState](StateQueueLimit),
		TuningWarnings: queue.New[model.TuningWarning](0),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
// Without a DB it runs in queue-only mode.
type Backend struct {
	deps      Dependencies
	queues    *queues
	runID     atomic.Uint64
	lastWrite atomic.Int64 // nanoseconds

	flushMu   sync.Mutex
	stopChan  chan struct{}
	doneChan  chan struct{}
	closeOnce sync.Once
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.VehicleCache == nil {
		deps.VehicleCache = cache.NewVehicleCache()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.WriteInterval <= 0 {
		deps.WriteInterval = DefaultWriteInterval
	}
	return &Backend{
		deps: deps,
	}
}

// DB returns the underlying database handle (nil in queue-only mode).
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init creates internal queues, runs schema migration, and starts the DB writer goroutine.
func (b *Backend) Init() error {
	b.queues = newQueues()
	b.stopChan = make(chan struct{})
	b.doneChan = make(chan struct{})

	if b.deps.DB != nil {
		b.deps.Logger.Info("Migrating schema")
		if err := database.Migrate(b.deps.DB); err != nil {
			return fmt.Errorf("failed to setup DB: %w", err)
		}
		b.deps.Logger.Info("Database setup complete")
	}

	b.startDBWriter()
	return nil
}

// Close stops the DB writer goroutine after a final write cycle.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	b.closeOnce.Do(func() {
		close(b.stopChan)
		<-b.doneChan
	})
	return nil
}

// StartRun inserts the run synchronously so every queued row can reference
// its ID, which is written back to run.ID.
func (b *Backend) StartRun(run *core.Run) error {
	b.deps.VehicleCache.Reset()

	if b.deps.DB == nil {
		b.runID.Store(uint64(run.ID))
		return nil
	}

	gormRun := convert.CoreToRun(*run)
	gormRun.ID = 0
	if err := b.deps.DB.Create(&gormRun).Error; err != nil {
		return fmt.Errorf("failed to insert new run: %w", err)
	}
	run.ID = gormRun.ID
	b.runID.Store(uint64(gormRun.ID))

	b.deps.Logger.Info("Run started", "runId", run.RunID, "dbId", gormRun.ID)
	return nil
}

// SetRunID sets the current run ID for the DB writer (used by CLI tools).
func (b *Backend) SetRunID(id uint) {
	b.runID.Store(uint64(id))
}

// RunID returns the database ID of the current run.
func (b *Backend) RunID() uint {
	return uint(b.runID.Load())
}

// EndRun writes everything still queued, then stores the end time and
// duration on the run row.
func (b *Backend) EndRun(run *core.Run) error {
	flushErr := b.Flush()

	id := b.RunID()
	if b.deps.DB == nil || id == 0 {
		return flushErr
	}

	updates := map[string]any{"duration": run.Duration}
	if !run.EndTime.IsZero() {
		updates["end_time"] = run.EndTime
	}
	if err := b.deps.DB.Model(&model.Run{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return errors.Join(flushErr, fmt.Errorf("failed to update run %d: %w", id, err))
	}
	b.deps.Logger.Info("Run ended", "runId", run.RunID, "duration", run.Duration)
	return flushErr
}

// AddVehicle caches the vehicle and queues its row.
func (b *Backend) AddVehicle(v *core.Vehicle) error {
	b.deps.VehicleCache.Add(*v)
	b.queues.Vehicles.Push(convert.CoreToVehicle(*v))
	return nil
}

// RecordVehicleState converts and queues a vehicle state.
func (b *Backend) RecordVehicleState(s *core.VehicleState) error {
	if _, ok := b.deps.VehicleCache.Get(s.VehicleID); !ok {
		return fmt.Errorf("%w: %d", storage.ErrUnknownVehicle, s.VehicleID)
	}
	b.queues.VehicleStates.Push(convert.CoreToVehicleState(*s))
	return nil
}

// RecordTuningWarning converts and queues a tuning warning.
func (b *Backend) RecordTuningWarning(w *core.TuningWarning) error {
	b.queues.TuningWarnings.Push(convert.CoreToTuningWarning(*w))
	return nil
}

// GetLastDBWriteDuration reports how long the last write cycle took.
func (b *Backend) GetLastDBWriteDuration() time.Duration {
	return time.Duration(b.lastWrite.Load())
}

// QueueLengths returns the number of vehicle states and tuning warnings
// waiting to be written.
func (b *Backend) QueueLengths() (states, warnings int) {
	if b.queues == nil {
		return 0, 0
	}
	return b.queues.VehicleStates.Len(), b.queues.TuningWarnings.Len()
}

// DroppedStates returns how many vehicle states were discarded because the
// state queue was full.
func (b *Backend) DroppedStates() uint64 {
	if b.queues == nil {
		return 0
	}
	return b.queues.VehicleStates.Dropped()
}
