package convert

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/kartlab/vehiclesim/internal/model"
	"github.com/kartlab/vehiclesim/pkg/core"
	"github.com/kartlab/vehiclesim/pkg/dynamics"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestPosition3DToPoint(t *testing.T) {
	pos := core.Position3D{X: 100.5, Y: 200.5, Z: 50.0}
	pt := position3DToPoint(pos)

	coord, ok := pt.Coordinates()
	require.True(t, ok)
	assert.Equal(t, 100.5, coord.XY.X)
	assert.Equal(t, 200.5, coord.XY.Y)
	assert.Equal(t, 50.0, coord.Z)
}

func TestPosition3DToPoint_NonFinite(t *testing.T) {
	tests := []core.Position3D{
		{X: math.NaN(), Y: 1, Z: 2},
		{X: 1, Y: math.Inf(1), Z: 2},
	}
	for _, pos := range tests {
		pt := position3DToPoint(pos)
		assert.True(t, pt.IsEmpty(), "%+v", pos)
		assert.Equal(t, core.Position3D{}, pointToPosition3D(pt))
	}
}

func TestOriginToPoint(t *testing.T) {
	coord, ok := originToPoint(core.GeoOrigin{Latitude: 51.5, Longitude: -0.12, Altitude: 11}).Coordinates()
	require.True(t, ok)
	assert.Equal(t, geom.XY{X: -0.12, Y: 51.5}, coord.XY)
}

func TestPointToPosition3D_Empty(t *testing.T) {
	assert.Equal(t, core.Position3D{}, pointToPosition3D(geom.NewEmptyPoint(geom.DimXYZ)))
}

func TestRunRoundTrip(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	original := core.Run{
		ID:             7,
		RunID:          "9f1c7a3e-2b0d-4c4e-9a51-3d2c0f6b8e11",
		Name:           "practice",
		Track:          "harbour",
		Tag:            "tuning",
		StartTime:      start,
		EndTime:        start.Add(30 * time.Second),
		FixedDeltaTime: 0.02,
		FrameRate:      60,
		Duration:       30,
		Seed:           42,
		Origin:         core.GeoOrigin{Latitude: 51.5, Longitude: -0.12, Altitude: 11},
		SimVersion:     "v1.0.0",
	}

	gormRun := CoreToRun(original)
	assert.Equal(t, uint(7), gormRun.ID)
	require.NotNil(t, gormRun.EndTime)
	assert.Equal(t, 11.0, gormRun.OriginAltitude)

	assert.Equal(t, original, RunToCore(gormRun))
}

func TestCoreToRun_OpenRunHasNullEnd(t *testing.T) {
	run := CoreToRun(core.Run{RunID: "r"})
	assert.Nil(t, run.EndTime)
	assert.True(t, RunToCore(run).EndTime.IsZero())
}

func TestVehicleRoundTrip(t *testing.T) {
	tuning := dynamics.DefaultConfig()
	tuning.MaxSpeed = 25

	original := core.Vehicle{
		ID:         3,
		Name:       "red",
		JoinTime:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		JoinTick:   0,
		Mass:       15,
		Spawn:      core.Position3D{X: 3, Y: 0.5, Z: -2},
		HeadingDeg: 90,
		Tuning:     tuning,
		Enabled:    true,
	}

	gormVehicle := CoreToVehicle(original)
	assert.Equal(t, uint16(3), gormVehicle.ObjectID)

	var stored map[string]any
	require.NoError(t, json.Unmarshal(gormVehicle.Tuning, &stored))
	assert.Equal(t, 25.0, stored["maxSpeed"])

	assert.Equal(t, original, VehicleToCore(gormVehicle))
}

func TestVehicleToCore_BadTuningFallsBack(t *testing.T) {
	v := VehicleToCore(model.Vehicle{ObjectID: 1, Tuning: datatypes.JSON(`{"maxSpeed":`)})
	assert.Equal(t, dynamics.DefaultConfig(), v.Tuning)

	v = VehicleToCore(model.Vehicle{ObjectID: 1})
	assert.Equal(t, dynamics.DefaultConfig(), v.Tuning)
}

func TestVehicleStateRoundTrip(t *testing.T) {
	original := core.VehicleState{
		VehicleID:     2,
		Time:          time.Date(2026, 3, 1, 10, 0, 1, 0, time.UTC),
		Tick:          50,
		SimTime:       1.0,
		Position:      core.Position3D{X: 1, Y: 0.5, Z: 12},
		Velocity:      core.Position3D{X: 0.1, Y: 0, Z: 15},
		HeadingDeg:    4.5,
		Speed:         15.0003,
		YawRate:       0.2,
		SteeringAngle: 120,
		Vertical:      1,
		Horizontal:    -0.5,
		Braking:       false,
		Grounded:      true,
		Clamped:       true,
	}

	gormState := CoreToVehicleState(original)
	assert.Equal(t, uint16(2), gormState.VehicleObjectID)
	assert.Equal(t, 15.0, gormState.VelocityZ)

	assert.Equal(t, original, VehicleStateToCore(gormState))
}

func TestTuningWarningRoundTrip(t *testing.T) {
	original := core.TuningWarning{
		VehicleID: 1,
		Time:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Field:     "turnStrength",
		Value:     100,
		Message:   "turn strength too low",
	}
	assert.Equal(t, original, TuningWarningToCore(CoreToTuningWarning(original)))
}

func TestCoreToTuningWarning_StampsMissingTime(t *testing.T) {
	w := CoreToTuningWarning(core.TuningWarning{Field: "maxSpeed"})
	assert.WithinDuration(t, time.Now(), w.Time, time.Second)
}
