package storage

import (
	"errors"

	"github.com/kartlab/vehiclesim/pkg/core"
)

// Multi fans every call out to several backends. All backends see every
// call; errors are joined.
type Multi []Backend

func (m Multi) each(fn func(Backend) error) error {
	var errs []error
	for _, b := range m {
		if err := fn(b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Init() error { return m.each(Backend.Init) }
func (m Multi) Close() error { return m.each(Backend.Close) }

func (m Multi) StartRun(run *core.Run) error {
	return m.each(func(b Backend) error { return b.StartRun(run) })
}

func (m Multi) EndRun(run *core.Run) error {
	return m.each(func(b Backend) error { return b.EndRun(run) })
}

func (m Multi) AddVehicle(v *core.Vehicle) error {
	return m.each(func(b Backend) error { return b.AddVehicle(v) })
}

func (m Multi) RecordVehicleState(s *core.VehicleState) error {
	return m.each(func(b Backend) error { return b.RecordVehicleState(s) })
}

func (m Multi) RecordTuningWarning(w *core.TuningWarning) error {
	return m.each(func(b Backend) error { return b.RecordTuningWarning(w) })
}

// Uploadable returns the first member that produces an upload file.
func (m Multi) Uploadable() (Uploadable, bool) {
	for _, b := range m {
		if u, ok := b.(Uploadable); ok {
			return u, true
		}
	}
	return nil, false
}
