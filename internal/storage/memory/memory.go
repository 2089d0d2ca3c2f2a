// Package memory keeps a whole run in memory and exports it as one JSON
// document (plus GeoJSON paths) when the run ends.
package memory

import (
	"fmt"
	"sync"

	"github.com/kartlab/vehiclesim/internal/config"
	"github.com/kartlab/vehiclesim/internal/storage"
	v1 "github.com/kartlab/vehiclesim/internal/storage/memory/export/v1"
	"github.com/kartlab/vehiclesim/pkg/core"
)

// recording is everything captured for one run.
type recording struct {
	run      core.Run
	vehicles map[uint16]*v1.VehicleRecord
	warnings []core.TuningWarning
}

func (r *recording) data() *v1.RunData {
	return &v1.RunData{Run: &r.run, Vehicles: r.vehicles, Warnings: r.warnings}
}

// lastTick is the highest tick recorded for any vehicle.
func (r *recording) lastTick() uint {
	var last uint
	for _, rec := range r.vehicles {
		for i := range rec.States {
			last = max(last, rec.States[i].Tick)
		}
	}
	return last
}

// Backend stores run data in memory and exports to JSON. The recording of
// the last run stays readable after EndRun so it can be uploaded.
type Backend struct {
	cfg config.MemoryConfig

	mu      sync.RWMutex
	rec     *recording
	jsonOut string
	geoOut  string
}

func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg}
}

func (b *Backend) Init() error  { return nil }
func (b *Backend) Close() error { return nil }

// StartRun discards the previous recording and begins a new one from a
// copy of run.
func (b *Backend) StartRun(run *core.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rec = &recording{run: *run, vehicles: make(map[uint16]*v1.VehicleRecord)}
	b.jsonOut, b.geoOut = "", ""
	return nil
}

// EndRun takes the final timing from run and writes the export files.
func (b *Backend) EndRun(run *core.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rec == nil {
		return fmt.Errorf("no run to end: %w", storage.ErrNoActiveRun)
	}
	if run != nil {
		b.rec.run.EndTime = run.EndTime
		b.rec.run.Duration = run.Duration
	}

	var err error
	b.jsonOut, b.geoOut, err = Export(b.cfg, b.rec.data())
	return err
}

func (b *Backend) AddVehicle(v *core.Vehicle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rec == nil {
		return fmt.Errorf("add vehicle %d: %w", v.ID, storage.ErrNoActiveRun)
	}
	b.rec.vehicles[v.ID] = &v1.VehicleRecord{Vehicle: *v, States: []core.VehicleState{}}
	return nil
}

// GetVehicle looks up a vehicle of the current run.
func (b *Backend) GetVehicle(id uint16) (core.Vehicle, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.rec == nil {
		return core.Vehicle{}, false
	}
	rec, ok := b.rec.vehicles[id]
	if !ok {
		return core.Vehicle{}, false
	}
	return rec.Vehicle, true
}

func (b *Backend) RecordVehicleState(s *core.VehicleState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rec == nil {
		return fmt.Errorf("record state: %w", storage.ErrNoActiveRun)
	}
	rec, ok := b.rec.vehicles[s.VehicleID]
	if !ok {
		return fmt.Errorf("%w: %d", storage.ErrUnknownVehicle, s.VehicleID)
	}
	rec.States = append(rec.States, *s)
	return nil
}

func (b *Backend) RecordTuningWarning(w *core.TuningWarning) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rec == nil {
		return fmt.Errorf("record warning: %w", storage.ErrNoActiveRun)
	}
	b.rec.warnings = append(b.rec.warnings, *w)
	return nil
}

// GetExportedFilePath returns the JSON export of the last run, or "" until
// one was written.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.jsonOut
}

// GetGeoJSONPath returns the GeoJSON export of the last run, if any.
func (b *Backend) GetGeoJSONPath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.geoOut
}

// GetExportMetadata describes the current run for upload. Before EndRun the
// duration is estimated from the last recorded tick.
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.rec == nil {
		return core.UploadMetadata{}
	}

	run := b.rec.run
	duration := run.Duration
	if duration == 0 {
		duration = float64(b.rec.lastTick()) * run.FixedDeltaTime
	}
	return core.UploadMetadata{
		RunName:  run.Name,
		Track:    run.Track,
		Tag:      run.Tag,
		Duration: duration,
	}
}
