package physics

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartlab/vehiclesim/pkg/dynamics"
)

func flatWorld(dt float64) *World {
	return NewWorld(dt, &Terrain{GroundHeight: 0})
}

func TestTerrain_HeightAt(t *testing.T) {
	terrain := &Terrain{
		GroundHeight: 2,
		Gaps:         []Rect{{MinX: 10, MinZ: -5, MaxX: 20, MaxZ: 5}},
	}

	h, ok := terrain.HeightAt(0, 0)
	require.True(t, ok)
	assert.Equal(t, 2.0, h)

	_, ok = terrain.HeightAt(15, 0)
	assert.False(t, ok, "point inside gap has no ground")

	_, ok = terrain.HeightAt(10, 5)
	assert.False(t, ok, "gap edges belong to the gap")

	var none *Terrain
	_, ok = none.HeightAt(0, 0)
	assert.False(t, ok)
}

func TestTerrain_Raycast(t *testing.T) {
	terrain := &Terrain{GroundHeight: 0, Gaps: []Rect{{MinX: 10, MinZ: -5, MaxX: 20, MaxZ: 5}}}

	tests := []struct {
		name   string
		origin mgl64.Vec3
		max    float64
		hit    bool
		dist   float64
	}{
		{"within range", mgl64.Vec3{0, 0.5, 0}, 1, true, 0.5},
		{"exactly at range", mgl64.Vec3{0, 1, 0}, 1, true, 1},
		{"too high", mgl64.Vec3{0, 1.5, 0}, 1, false, 0},
		{"over gap", mgl64.Vec3{15, 0.5, 0}, 1, false, 0},
		{"below surface", mgl64.Vec3{0, -0.5, 0}, 1, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hit, ok := terrain.Raycast(tt.origin, tt.max)
			assert.Equal(t, tt.hit, ok)
			if tt.hit {
				assert.InDelta(t, tt.dist, hit.Distance, 1e-9)
				assert.Equal(t, dynamics.Up, hit.Normal)
				assert.Equal(t, 0.0, hit.Point.Y())
			}
		})
	}
}

func TestBody_SpawnsOnGround(t *testing.T) {
	w := flatWorld(0.02)
	b := w.NewBody(DefaultBodySpec())

	assert.True(t, b.OnGround())
	assert.InDelta(t, 0.5, b.Position().Y(), 1e-9)
	assert.InDelta(t, 0.0, b.HeadingDeg(), 1e-9)
	assert.InDelta(t, 1.0, b.Forward().Z(), 1e-9)
}

func TestBody_RestsUnderGravity(t *testing.T) {
	w := flatWorld(0.02)
	b := w.NewBody(DefaultBodySpec())

	for i := 0; i < 100; i++ {
		w.Step()
	}

	assert.True(t, b.OnGround())
	assert.InDelta(t, 0.5, b.Position().Y(), 1e-9)
	assert.Equal(t, 0.0, b.LinearVelocity().Y())
}

func TestBody_AddForceModes(t *testing.T) {
	w := NewWorld(0.1, nil)
	spec := DefaultBodySpec()
	spec.Mass = 10

	force := w.NewBody(spec)
	force.AddForce(mgl64.Vec3{10, 0, 0}, dynamics.ForceModeForce)
	assert.InDelta(t, 0.1, force.LinearVelocity().X(), 1e-12)

	accel := w.NewBody(spec)
	accel.AddForce(mgl64.Vec3{10, 0, 0}, dynamics.ForceModeAcceleration)
	assert.InDelta(t, 1.0, accel.LinearVelocity().X(), 1e-12)
}

func TestBody_GroundAbsorbsDownwardForce(t *testing.T) {
	w := flatWorld(0.02)
	b := w.NewBody(DefaultBodySpec())

	b.AddForce(mgl64.Vec3{0, -1000, 0}, dynamics.ForceModeForce)
	assert.Equal(t, 0.0, b.LinearVelocity().Y())

	b.AddForce(mgl64.Vec3{0, 1000, 0}, dynamics.ForceModeForce)
	assert.Greater(t, b.LinearVelocity().Y(), 0.0, "upward force still lifts")
}

func TestBody_LinearDamping(t *testing.T) {
	w := flatWorld(0.02)
	b := w.NewBody(DefaultBodySpec())
	b.SetDamping(0.3, 3)
	b.SetLinearVelocity(mgl64.Vec3{0, 0, 10})

	w.Step()

	assert.InDelta(t, 10/(1+0.3*0.02), b.LinearVelocity().Z(), 1e-9)
	assert.InDelta(t, 0.02*10/(1+0.3*0.02), b.Position().Z(), 1e-9)
}

func TestBody_AngularVelocityLimit(t *testing.T) {
	w := flatWorld(0.02)
	b := w.NewBody(DefaultBodySpec())

	b.AddTorque(mgl64.Vec3{0, 1e6, 0}, dynamics.ForceModeForce)
	w.Step()

	assert.InDelta(t, DefaultMaxAngularVelocity, b.AngularVelocity().Len(), 1e-9)
}

func TestBody_YawIntegration(t *testing.T) {
	w := flatWorld(0.02)
	b := w.NewBody(DefaultBodySpec())
	b.SetAngularVelocity(mgl64.Vec3{0, math.Pi / 2, 0})

	for i := 0; i < 50; i++ {
		w.Step()
	}

	assert.InDelta(t, 90, b.HeadingDeg(), 1e-6)
	assert.InDelta(t, 1, b.Forward().X(), 1e-6)
}

func TestBody_TorqueUsesInertia(t *testing.T) {
	w := flatWorld(0.5)
	spec := DefaultBodySpec()
	spec.Inertia = mgl64.Vec3{1, 4, 1}
	b := w.NewBody(spec)

	b.AddTorque(mgl64.Vec3{0, 2, 0}, dynamics.ForceModeForce)
	assert.InDelta(t, 0.25, b.AngularVelocity().Y(), 1e-12)

	b.AddTorque(mgl64.Vec3{0, 2, 0}, dynamics.ForceModeAcceleration)
	assert.InDelta(t, 1.25, b.AngularVelocity().Y(), 1e-12)
}

func TestBody_FallsThroughGap(t *testing.T) {
	terrain := &Terrain{Gaps: []Rect{{MinX: -5, MinZ: -5, MaxX: 5, MaxZ: 5}}}
	w := NewWorld(0.02, terrain)
	b := w.NewBody(DefaultBodySpec())
	require.False(t, b.OnGround())

	start := b.Position().Y()
	for i := 0; i < 10; i++ {
		w.Step()
	}

	assert.False(t, b.OnGround())
	assert.Less(t, b.Position().Y(), start)
	assert.Less(t, b.LinearVelocity().Y(), 0.0)
}

func TestBody_TunerSetters(t *testing.T) {
	w := flatWorld(0.02)
	b := w.NewBody(DefaultBodySpec())

	b.SetCenterOfMass(mgl64.Vec3{0, -0.5, 0})
	b.SetDamping(0.3, 3)

	assert.Equal(t, mgl64.Vec3{0, -0.5, 0}, b.CenterOfMass())
	lin, ang := b.Damping()
	assert.Equal(t, 0.3, lin)
	assert.Equal(t, 3.0, ang)
}

func TestWorld_StepsAllBodies(t *testing.T) {
	w := flatWorld(0.02)
	a := w.NewBody(DefaultBodySpec())
	spec := DefaultBodySpec()
	spec.Position = mgl64.Vec3{5, 0.5, 0}
	b := w.NewBody(spec)

	a.SetLinearVelocity(mgl64.Vec3{0, 0, 1})
	b.SetLinearVelocity(mgl64.Vec3{0, 0, -1})
	w.Step()

	assert.Len(t, w.Bodies(), 2)
	assert.InDelta(t, 0.02, a.Position().Z(), 1e-9)
	assert.InDelta(t, -0.02, b.Position().Z(), 1e-9)
}
