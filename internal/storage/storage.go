// Package storage defines what the worker needs from a persistence backend.
// Implementations live in the subpackages: memory (JSON export), sqlite and
// postgres (via the shared gorm writer) and websocket (live stream).
package storage

import (
	"errors"

	"github.com/kartlab/vehiclesim/pkg/core"
)

var (
	// ErrNoActiveRun is returned when run data arrives outside StartRun/EndRun.
	ErrNoActiveRun = errors.New("no active run")
	// ErrUnknownVehicle is returned for data about a vehicle that was never added.
	ErrUnknownVehicle = errors.New("unknown vehicle")
)

// Backend receives one run at a time. Calls arrive from a single worker
// goroutine per event kind, so state and warning records may interleave.
type Backend interface {
	Init() error
	Close() error

	// EndRun receives the run with EndTime and Duration set.
	StartRun(run *core.Run) error
	EndRun(run *core.Run) error

	// AddVehicle registers a vehicle under its simulator-assigned ID.
	AddVehicle(v *core.Vehicle) error

	RecordVehicleState(s *core.VehicleState) error
	RecordTuningWarning(w *core.TuningWarning) error
}

// Uploadable backends leave a file behind that the web frontend accepts.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}
