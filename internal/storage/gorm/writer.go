package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/kartlab/vehiclesim/internal/model"
	"github.com/kartlab/vehiclesim/internal/queue"
)

// runRow is a pointer to a row type that belongs to a run.
type runRow[T any] interface {
	*T
	AssignRun(id uint)
}

// writeRows moves q into its table, WriteBatchSize rows per transaction,
// stamping each row with runID. A batch that fails is put back at the
// front of q and ends the cycle; later batches wait for the next one.
func writeRows[T any, P runRow[T]](db *gorm.DB, q *queue.Queue[T], table string, runID uint, log *slog.Logger) (int, error) {
	written := 0
	for {
		batch := q.Drain(WriteBatchSize)
		if len(batch) == 0 {
			return written, nil
		}
		for i := range batch {
			P(&batch[i]).AssignRun(runID)
		}

		err := db.Transaction(func(tx *gorm.DB) error {
			return tx.Create(&batch).Error
		})
		if err != nil {
			q.Requeue(batch...)
			log.Error("Batch insert failed, rows requeued", "table", table, "rows", len(batch), "error", err)
			return written, fmt.Errorf("insert %s: %w", table, err)
		}
		written += len(batch)
	}
}

// Flush runs one write cycle now. It is a no-op in queue-only mode or
// before a run has been started.
func (b *Backend) Flush() error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	db := b.deps.DB
	if db == nil || b.queues == nil {
		return nil
	}
	runID := b.RunID()
	if runID == 0 {
		return nil
	}

	log := b.deps.Logger
	start := time.Now()

	// Vehicles go first so no state row points at a missing vehicle.
	vehicles, vErr := writeRows(db, b.queues.Vehicles, "vehicles", runID, log)
	states, sErr := writeRows(db, b.queues.VehicleStates, "vehicle_states", runID, log)
	warnings, wErr := writeRows(db, b.queues.TuningWarnings, "tuning_warnings", runID, log)

	took := time.Since(start)
	b.lastWrite.Store(int64(took))
	if vehicles+states+warnings > 0 {
		log.Debug("Write cycle",
			"vehicles", vehicles, "states", states, "warnings", warnings, "took", took)
	}

	b.samplePerformance(runID, took)
	return errors.Join(vErr, sErr, wErr)
}

// samplePerformance records the backlog left after a write cycle.
func (b *Backend) samplePerformance(runID uint, took time.Duration) {
	pendingStates, pendingWarnings := b.QueueLengths()
	sample := model.SimPerformance{
		Time:                time.Now(),
		RunID:               runID,
		VehicleStateQueue:   uint32(pendingStates),
		TuningWarningQueue:  uint32(pendingWarnings),
		LastWriteDurationMs: float32(took.Seconds() * 1000),
	}
	if err := b.deps.DB.Create(&sample).Error; err != nil {
		b.deps.Logger.Error("Error writing performance sample", "error", err)
	}
}

// startDBWriter flushes every WriteInterval until Close, then once more.
func (b *Backend) startDBWriter() {
	ticker := time.NewTicker(b.deps.WriteInterval)
	go func() {
		defer close(b.doneChan)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := b.Flush(); err != nil {
					b.deps.Logger.Error("Write cycle failed", "error", err)
				}
			case <-b.stopChan:
				if err := b.Flush(); err != nil {
					b.deps.Logger.Error("Final write failed", "error", err)
				}
				return
			}
		}
	}()
}
