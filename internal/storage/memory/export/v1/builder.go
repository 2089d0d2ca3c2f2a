package v1

import (
	"math"
	"sort"
	"time"

	"github.com/kartlab/vehiclesim/internal/geo"
	"github.com/kartlab/vehiclesim/pkg/core"
)

// RunData contains all the data needed to build an export
type RunData struct {
	Run      *core.Run
	Vehicles map[uint16]*VehicleRecord
	Warnings []core.TuningWarning
}

// VehicleRecord groups a vehicle with all its time-series data
type VehicleRecord struct {
	Vehicle core.Vehicle
	States  []core.VehicleState
}

// Build creates an Export from the run data
func Build(data *RunData) Export {
	run := data.Run
	export := Export{
		FormatVersion:  FormatVersion,
		RunID:          run.RunID,
		RunName:        run.Name,
		Track:          run.Track,
		Tag:            run.Tag,
		SimVersion:     run.SimVersion,
		StartTime:      formatTime(run.StartTime),
		EndTime:        formatTime(run.EndTime),
		FixedDeltaTime: run.FixedDeltaTime,
		FrameRate:      run.FrameRate,
		Duration:       run.Duration,
		Seed:           run.Seed,
		Origin: Origin{
			Latitude:  run.Origin.Latitude,
			Longitude: run.Origin.Longitude,
			Altitude:  run.Origin.Altitude,
		},
		Vehicles: make([]Vehicle, 0),
		Warnings: make([][]any, 0, len(data.Warnings)),
	}

	// The frontend looks vehicles up as vehicles[id], so the slice is
	// indexed by ID with zero-value placeholders in the gaps.
	var maxID uint16
	for id := range data.Vehicles {
		if id > maxID {
			maxID = id
		}
	}
	if len(data.Vehicles) > 0 {
		export.Vehicles = make([]Vehicle, maxID+1)
	}

	for id, record := range data.Vehicles {
		states := sortedStates(record.States)
		v := record.Vehicle
		entry := Vehicle{
			ID:         id,
			Name:       v.Name,
			Mass:       v.Mass,
			Spawn:      []float64{v.Spawn.X, v.Spawn.Y, v.Spawn.Z},
			Heading:    v.HeadingDeg,
			Enabled:    v.Enabled,
			JoinTick:   v.JoinTick,
			Tuning:     v.Tuning,
			PathLength: round(geo.PathLength(states), 3),
			States:     make([][]any, 0, len(states)),
		}

		for _, s := range states {
			if s.Speed > entry.TopSpeed {
				entry.TopSpeed = s.Speed
			}
			if !s.Grounded {
				entry.AirborneSamples++
			}
			if s.Tick > export.EndTick {
				export.EndTick = s.Tick
			}
			entry.States = append(entry.States, []any{
				s.Tick,
				[]float64{round(s.Position.X, 3), round(s.Position.Y, 3), round(s.Position.Z, 3)},
				round(s.HeadingDeg, 2),
				round(s.Speed, 3),
				round(s.SteeringAngle, 2),
				s.Vertical,
				s.Horizontal,
				stateFlags(s),
			})
		}
		entry.TopSpeed = round(entry.TopSpeed, 3)
		export.Vehicles[id] = entry
	}

	// Format: [vehicleId, field, value, message]
	for _, w := range data.Warnings {
		export.Warnings = append(export.Warnings, []any{
			w.VehicleID,
			w.Field,
			w.Value,
			w.Message,
		})
	}

	return export
}

// sortedStates returns a copy of states ordered by tick.
func sortedStates(states []core.VehicleState) []core.VehicleState {
	out := make([]core.VehicleState, len(states))
	copy(out, states)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Tick < out[j].Tick })
	return out
}

func stateFlags(s core.VehicleState) int {
	flags := 0
	if s.Grounded {
		flags |= FlagGrounded
	}
	if s.Braking {
		flags |= FlagBraking
	}
	if s.Clamped {
		flags |= FlagClamped
	}
	return flags
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
