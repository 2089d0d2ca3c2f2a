// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"time"

	"github.com/kartlab/vehiclesim/internal/model"
	"github.com/kartlab/vehiclesim/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

// position3DToPoint converts a core.Position3D to an XYZ geom.Point.
// Non-finite coordinates are stored as an empty point.
func position3DToPoint(p core.Position3D) geom.Point {
	return newPoint(geom.Coordinates{XY: geom.XY{X: p.X, Y: p.Y}, Z: p.Z, Type: geom.DimXYZ})
}

// originToPoint stores the origin as a longitude/latitude point; altitude lives in its own column.
func originToPoint(o core.GeoOrigin) geom.Point {
	return newPoint(geom.Coordinates{XY: geom.XY{X: o.Longitude, Y: o.Latitude}, Type: geom.DimXY})
}

func newPoint(c geom.Coordinates) geom.Point {
	pt, err := geom.NewPoint(c, geom.OmitInvalid)
	if err != nil {
		return geom.NewEmptyPoint(c.Type)
	}
	return pt
}

// tuningToJSON snapshots a tuning config for DB storage.
func tuningToJSON(cfg any) datatypes.JSON {
	data, err := json.Marshal(cfg)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(data)
}

// CoreToRun converts a core.Run to a GORM model.Run.
// A zero EndTime is stored as NULL.
func CoreToRun(r core.Run) model.Run {
	run := model.Run{
		RunUUID:        r.RunID,
		Name:           r.Name,
		Track:          r.Track,
		Tag:            r.Tag,
		StartTime:      r.StartTime,
		FixedDeltaTime: r.FixedDeltaTime,
		FrameRate:      r.FrameRate,
		Duration:       r.Duration,
		Seed:           r.Seed,
		Origin:         originToPoint(r.Origin),
		OriginAltitude: r.Origin.Altitude,
		SimVersion:     r.SimVersion,
	}
	run.ID = r.ID
	if !r.EndTime.IsZero() {
		end := r.EndTime
		run.EndTime = &end
	}
	return run
}

// CoreToVehicle converts a core.Vehicle to a GORM model.Vehicle.
// core.Vehicle.ID maps to GORM Vehicle.ObjectID.
func CoreToVehicle(v core.Vehicle) model.Vehicle {
	return model.Vehicle{
		ObjectID:   v.ID,
		JoinTime:   v.JoinTime,
		JoinTick:   v.JoinTick,
		Name:       v.Name,
		Mass:       v.Mass,
		Spawn:      position3DToPoint(v.Spawn),
		HeadingDeg: v.HeadingDeg,
		Tuning:     tuningToJSON(v.Tuning),
		Enabled:    v.Enabled,
	}
}

// CoreToVehicleState converts a core.VehicleState to a GORM model.VehicleState.
func CoreToVehicleState(s core.VehicleState) model.VehicleState {
	return model.VehicleState{
		Time:            s.Time,
		VehicleObjectID: s.VehicleID,
		Tick:            s.Tick,
		SimTime:         s.SimTime,
		Position:        position3DToPoint(s.Position),
		VelocityX:       s.Velocity.X,
		VelocityY:       s.Velocity.Y,
		VelocityZ:       s.Velocity.Z,
		HeadingDeg:      s.HeadingDeg,
		Speed:           s.Speed,
		YawRate:         s.YawRate,
		SteeringAngle:   s.SteeringAngle,
		Vertical:        s.Vertical,
		Horizontal:      s.Horizontal,
		Braking:         s.Braking,
		Grounded:        s.Grounded,
		Clamped:         s.Clamped,
	}
}

// CoreToTuningWarning converts a core.TuningWarning to a GORM model.TuningWarning.
func CoreToTuningWarning(w core.TuningWarning) model.TuningWarning {
	t := w.Time
	if t.IsZero() {
		t = time.Now()
	}
	return model.TuningWarning{
		Time:            t,
		VehicleObjectID: w.VehicleID,
		Field:           w.Field,
		Value:           w.Value,
		Message:         w.Message,
	}
}
