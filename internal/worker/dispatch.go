package worker

import (
	"fmt"

	"github.com/kartlab/vehiclesim/internal/dispatcher"
	"github.com/kartlab/vehiclesim/internal/sim"
	"github.com/kartlab/vehiclesim/pkg/core"
)

const (
	// stateLane holds several seconds of captured states at the default
	// cadence; it blocks rather than lose telemetry.
	stateLane = 10_000
	// warningLane drops on overflow. Warnings repeat while the cause lasts.
	warningLane = 1_000
)

// RegisterHandlers routes every simulator command to the manager. Run and
// vehicle registration stay on the caller's goroutine because states depend
// on them having been applied.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(sim.CmdRunStart, typed(m.startRun), dispatcher.Logged())
	d.Register(sim.CmdRunEnd, typed(m.finishRun), dispatcher.Logged())
	d.Register(sim.CmdVehicleAdd, typed(m.addVehicle), dispatcher.Logged())

	d.Register(sim.CmdVehicleState, typed(m.recordState),
		dispatcher.Buffered(stateLane), dispatcher.Blocking(), dispatcher.Logged())
	d.Register(sim.CmdVehicleWarning, typed(m.recordWarning),
		dispatcher.Buffered(warningLane), dispatcher.Logged())
}

// typed adapts a handler for one payload type to the dispatcher.
func typed[T any](fn func(*T) (any, error)) dispatcher.HandlerFunc {
	return func(e dispatcher.Event) (any, error) {
		p, ok := e.Payload.(*T)
		if !ok || p == nil {
			return nil, fmt.Errorf("%w for %s: %T", ErrUnexpectedPayload, e.Command, e.Payload)
		}
		return fn(p)
	}
}

// startRun resets per-run state and opens the run on the backend. The
// simulator keeps mutating its record, so the backend gets a copy.
func (m *Manager) startRun(p *core.Run) (any, error) {
	run := *p
	m.deps.VehicleCache.Reset()
	m.recordedStates.Reset()
	m.droppedStates.Reset()

	if err := m.backend.StartRun(&run); err != nil {
		return nil, fmt.Errorf("start run %s: %w", run.RunID, err)
	}

	m.mu.Lock()
	m.run = &run
	m.mu.Unlock()
	return run.ID, nil
}

// finishRun records the final timing. The backend sees it in EndRun, once
// the lanes have drained.
func (m *Manager) finishRun(p *core.Run) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.run == nil || m.run.RunID != p.RunID {
		return nil, fmt.Errorf("run %s was never started", p.RunID)
	}
	m.run.EndTime = p.EndTime
	m.run.Duration = p.Duration
	return nil, nil
}

func (m *Manager) addVehicle(p *core.Vehicle) (any, error) {
	v := *p
	// Cached first so states queued behind this event find their vehicle
	// even if the backend rejects it.
	m.deps.VehicleCache.Add(v)

	if err := m.backend.AddVehicle(&v); err != nil {
		return nil, fmt.Errorf("add vehicle %d: %w", v.ID, err)
	}
	return nil, nil
}

func (m *Manager) recordState(s *core.VehicleState) (any, error) {
	if _, ok := m.deps.VehicleCache.Get(s.VehicleID); !ok {
		m.droppedStates.Inc()
		return nil, ErrTooEarlyForStateAssociation
	}
	if err := m.backend.RecordVehicleState(s); err != nil {
		m.droppedStates.Inc()
		return nil, fmt.Errorf("record state of vehicle %d: %w", s.VehicleID, err)
	}
	m.recordedStates.Inc()

	if m.deps.Influx == nil {
		return nil, nil
	}
	run, _ := m.Run()
	if err := m.deps.Influx.WriteVehicleState(run.RunID, s); err != nil {
		return nil, fmt.Errorf("influx: %w", err)
	}
	return nil, nil
}

func (m *Manager) recordWarning(w *core.TuningWarning) (any, error) {
	if _, ok := m.deps.VehicleCache.Get(w.VehicleID); !ok {
		return nil, ErrTooEarlyForStateAssociation
	}
	if err := m.backend.RecordTuningWarning(w); err != nil {
		return nil, fmt.Errorf("record warning for vehicle %d: %w", w.VehicleID, err)
	}
	return nil, nil
}
