package physics

import "github.com/go-gl/mathgl/mgl64"

// World owns bodies and advances them on a fixed step.
type World struct {
	FixedDeltaTime float64
	Gravity        mgl64.Vec3
	Terrain        *Terrain

	bodies []*Body
}

// NewWorld creates a world with standard gravity.
func NewWorld(fixedDeltaTime float64, terrain *Terrain) *World {
	return &World{
		FixedDeltaTime: fixedDeltaTime,
		Gravity:        mgl64.Vec3{0, DefaultGravity, 0},
		Terrain:        terrain,
	}
}

// NewBody spawns a body in the world.
func (w *World) NewBody(spec BodySpec) *Body {
	b := newBody(w, spec)
	w.bodies = append(w.bodies, b)
	return b
}

// Bodies returns the bodies in spawn order.
func (w *World) Bodies() []*Body {
	return w.bodies
}

// Step integrates every body by one fixed step.
func (w *World) Step() {
	for _, b := range w.bodies {
		b.step(w.FixedDeltaTime)
	}
}
