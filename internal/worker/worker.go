package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kartlab/vehiclesim/internal/cache"
	"github.com/kartlab/vehiclesim/internal/influx"
	"github.com/kartlab/vehiclesim/internal/storage"
	"github.com/kartlab/vehiclesim/pkg/core"
)

// ErrTooEarlyForStateAssociation is returned when state data arrives before its vehicle is registered
var ErrTooEarlyForStateAssociation = errors.New("too early for state association")

// ErrUnexpectedPayload is returned when an event carries the wrong record type.
var ErrUnexpectedPayload = errors.New("unexpected payload")

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	VehicleCache *cache.VehicleCache
	Influx       *influx.Manager // optional
	Logger       *slog.Logger
}

// Manager forwards simulator events to the storage backend and InfluxDB.
type Manager struct {
	deps    Dependencies
	backend storage.Backend

	mu  sync.Mutex
	run *core.Run // active run, owned by the manager

	recordedStates cache.Counter
	droppedStates  cache.Counter
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.VehicleCache == nil {
		deps.VehicleCache = cache.NewVehicleCache()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Manager{
		deps:    deps,
		backend: backend,
	}
}

// DBWriteDurationProvider is an optional interface that backends can implement
// to expose their last DB write duration for monitoring.
type DBWriteDurationProvider interface {
	GetLastDBWriteDuration() time.Duration
}

// GetLastDBWriteDuration returns the duration of the last DB write cycle.
// Returns 0 if the backend doesn't support this metric.
func (m *Manager) GetLastDBWriteDuration() time.Duration {
	if p, ok := m.backend.(DBWriteDurationProvider); ok {
		return p.GetLastDBWriteDuration()
	}
	return 0
}

// Run returns a copy of the active run.
func (m *Manager) Run() (core.Run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.run == nil {
		return core.Run{}, false
	}
	return *m.run, true
}

// StateCounts returns how many vehicle states were stored and how many were
// rejected because their vehicle was not registered yet.
func (m *Manager) StateCounts() (recorded, dropped int) {
	return m.recordedStates.Value(), m.droppedStates.Value()
}

// EndRun closes the active run on the backend. Call it after the dispatcher
// has drained so every buffered state reaches storage first.
func (m *Manager) EndRun() error {
	m.mu.Lock()
	if m.run == nil {
		m.mu.Unlock()
		return fmt.Errorf("end run: %w", storage.ErrNoActiveRun)
	}
	run := *m.run
	m.run = nil
	m.mu.Unlock()

	err := m.backend.EndRun(&run)

	recorded, dropped := m.StateCounts()
	m.deps.Logger.Info("Run closed",
		"runId", run.RunID,
		"vehicles", m.deps.VehicleCache.IDs(),
		"recordedStates", recorded,
		"droppedStates", dropped,
		"lastDBWrite", m.GetLastDBWriteDuration(),
	)

	if m.deps.Influx != nil {
		perr := m.deps.Influx.WritePerformance(run.RunID, map[string]any{
			"recordedStates": recorded,
			"droppedStates":  dropped,
			"lastDBWriteMs":  float64(m.GetLastDBWriteDuration()) / float64(time.Millisecond),
			"duration":       run.Duration,
		}, run.EndTime)
		if perr != nil {
			m.deps.Logger.Warn("Failed to write run performance", "error", perr)
		}
	}

	if err != nil {
		return fmt.Errorf("end run: %w", err)
	}
	return nil
}
