package influx

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kartlab/vehiclesim/pkg/core"
)

// Measurements.
const (
	MeasurementVehicleState = "vehicle_state"
	MeasurementPerformance  = "sim_performance"
)

func statePoint(runID string, s *core.VehicleState) point {
	p := write.NewPointWithMeasurement(MeasurementVehicleState).
		AddTag("run", runID).
		AddTag("vehicle", strconv.FormatUint(uint64(s.VehicleID), 10)).
		SetTime(s.Time)

	p.AddField("tick", int64(s.Tick)).
		AddField("simTime", s.SimTime).
		AddField("x", s.Position.X).
		AddField("y", s.Position.Y).
		AddField("z", s.Position.Z).
		AddField("speed", s.Speed).
		AddField("heading", s.HeadingDeg).
		AddField("yawRate", s.YawRate).
		AddField("steeringAngle", s.SteeringAngle).
		AddField("vertical", s.Vertical).
		AddField("horizontal", s.Horizontal).
		AddField("braking", s.Braking).
		AddField("grounded", s.Grounded).
		AddField("clamped", s.Clamped)
	return p
}

func performancePoint(runID string, fields map[string]any, at time.Time) point {
	return write.NewPoint(MeasurementPerformance, map[string]string{"run": runID}, fields, at)
}
