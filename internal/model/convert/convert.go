package convert

import (
	"encoding/json"

	"github.com/kartlab/vehiclesim/internal/model"
	"github.com/kartlab/vehiclesim/pkg/core"
	"github.com/kartlab/vehiclesim/pkg/dynamics"
	geom "github.com/peterstace/simplefeatures/geom"
)

// pointToPosition3D converts an XYZ geom.Point to a core.Position3D
func pointToPosition3D(p geom.Point) core.Position3D {
	coord, ok := p.Coordinates()
	if !ok {
		return core.Position3D{}
	}
	return core.Position3D{X: coord.XY.X, Y: coord.XY.Y, Z: coord.Z}
}

// RunToCore converts a GORM Run to a core.Run.
func RunToCore(r model.Run) core.Run {
	run := core.Run{
		ID:             r.ID,
		RunID:          r.RunUUID,
		Name:           r.Name,
		Track:          r.Track,
		Tag:            r.Tag,
		StartTime:      r.StartTime,
		FixedDeltaTime: r.FixedDeltaTime,
		FrameRate:      r.FrameRate,
		Duration:       r.Duration,
		Seed:           r.Seed,
		Origin:         core.GeoOrigin{Altitude: r.OriginAltitude},
		SimVersion:     r.SimVersion,
	}
	if xy, ok := r.Origin.XY(); ok {
		run.Origin.Longitude = xy.X
		run.Origin.Latitude = xy.Y
	}
	if r.EndTime != nil {
		run.EndTime = *r.EndTime
	}
	return run
}

// VehicleToCore converts a GORM Vehicle to a core.Vehicle.
// GORM Vehicle.ObjectID maps to core Vehicle.ID. Tuning that fails to decode
// falls back to the defaults.
func VehicleToCore(v model.Vehicle) core.Vehicle {
	tuning := dynamics.DefaultConfig()
	if len(v.Tuning) > 0 {
		if err := json.Unmarshal(v.Tuning, &tuning); err != nil {
			tuning = dynamics.DefaultConfig()
		}
	}

	return core.Vehicle{
		ID:         v.ObjectID,
		Name:       v.Name,
		JoinTime:   v.JoinTime,
		JoinTick:   v.JoinTick,
		Mass:       v.Mass,
		Spawn:      pointToPosition3D(v.Spawn),
		HeadingDeg: v.HeadingDeg,
		Tuning:     tuning,
		Enabled:    v.Enabled,
	}
}

// VehicleStateToCore converts a GORM VehicleState to a core.VehicleState.
func VehicleStateToCore(s model.VehicleState) core.VehicleState {
	return core.VehicleState{
		VehicleID:     s.VehicleObjectID,
		Time:          s.Time,
		Tick:          s.Tick,
		SimTime:       s.SimTime,
		Position:      pointToPosition3D(s.Position),
		Velocity:      core.Position3D{X: s.VelocityX, Y: s.VelocityY, Z: s.VelocityZ},
		HeadingDeg:    s.HeadingDeg,
		Speed:         s.Speed,
		YawRate:       s.YawRate,
		SteeringAngle: s.SteeringAngle,
		Vertical:      s.Vertical,
		Horizontal:    s.Horizontal,
		Braking:       s.Braking,
		Grounded:      s.Grounded,
		Clamped:       s.Clamped,
	}
}

// TuningWarningToCore converts a GORM TuningWarning to a core.TuningWarning.
func TuningWarningToCore(w model.TuningWarning) core.TuningWarning {
	return core.TuningWarning{
		VehicleID: w.VehicleObjectID,
		Time:      w.Time,
		Field:     w.Field,
		Value:     w.Value,
		Message:   w.Message,
	}
}
