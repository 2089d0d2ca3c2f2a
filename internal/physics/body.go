// Package physics is a small rigid-body world standing in for the host engine:
// semi-implicit Euler integration, engine-style damping, yaw rotation and
// contact with a flat terrain.
package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/kartlab/vehiclesim/pkg/dynamics"
)

const (
	// DefaultMaxAngularVelocity matches the engine default angular speed limit (rad/s).
	DefaultMaxAngularVelocity = 7.0
	// DefaultGravity is standard gravity along -Y.
	DefaultGravity = -9.81
)

// BodySpec describes a body at spawn.
type BodySpec struct {
	Mass               float64
	Position           mgl64.Vec3
	HeadingDeg         float64
	RideHeight         float64    // origin height above the ground when resting
	Inertia            mgl64.Vec3 // diagonal inertia tensor; zero derives it from Dimensions
	Dimensions         mgl64.Vec3 // width, height, length
	MaxAngularVelocity float64
}

// DefaultBodySpec is a kart-sized box resting on the ground at the origin.
func DefaultBodySpec() BodySpec {
	return BodySpec{
		Mass:               15,
		Position:           mgl64.Vec3{0, 0.5, 0},
		RideHeight:         0.5,
		Dimensions:         mgl64.Vec3{1.2, 0.6, 2.0},
		MaxAngularVelocity: DefaultMaxAngularVelocity,
	}
}

// boxInertia returns the diagonal inertia of a solid box.
func boxInertia(mass float64, dims mgl64.Vec3) mgl64.Vec3 {
	w, h, l := dims.X(), dims.Y(), dims.Z()
	return mgl64.Vec3{
		mass / 12 * (h*h + l*l),
		mass / 12 * (w*w + l*l),
		mass / 12 * (w*w + h*h),
	}
}

// Body is a rigid body owned by a World. It implements dynamics.RigidBody
// and dynamics.BodyTuner.
type Body struct {
	world *World

	mass               float64
	inertia            mgl64.Vec3
	rideHeight         float64
	maxAngularVelocity float64
	linearDamping      float64
	angularDamping     float64
	centerOfMass       mgl64.Vec3

	position        mgl64.Vec3
	rotation        mgl64.Quat
	velocity        mgl64.Vec3
	angularVelocity mgl64.Vec3
	onGround        bool
}

var (
	_ dynamics.RigidBody = (*Body)(nil)
	_ dynamics.BodyTuner = (*Body)(nil)
)

func newBody(w *World, spec BodySpec) *Body {
	if spec.Mass <= 0 {
		spec.Mass = DefaultBodySpec().Mass
	}
	if spec.MaxAngularVelocity <= 0 {
		spec.MaxAngularVelocity = DefaultMaxAngularVelocity
	}
	inertia := spec.Inertia
	if inertia == (mgl64.Vec3{}) {
		dims := spec.Dimensions
		if dims == (mgl64.Vec3{}) {
			dims = DefaultBodySpec().Dimensions
		}
		inertia = boxInertia(spec.Mass, dims)
	}

	b := &Body{
		world:              w,
		mass:               spec.Mass,
		inertia:            inertia,
		rideHeight:         spec.RideHeight,
		maxAngularVelocity: spec.MaxAngularVelocity,
		position:           spec.Position,
		rotation:           mgl64.QuatRotate(mgl64.DegToRad(spec.HeadingDeg), dynamics.Up),
	}
	b.resolveContact()
	return b
}

// Position returns the body origin in world space.
func (b *Body) Position() mgl64.Vec3 { return b.position }

// Rotation returns the body orientation.
func (b *Body) Rotation() mgl64.Quat { return b.rotation }

// Forward returns the body's +Z axis in world space.
func (b *Body) Forward() mgl64.Vec3 {
	return b.rotation.Rotate(mgl64.Vec3{0, 0, 1})
}

// HeadingDeg returns the yaw of the forward axis in degrees, 0 along +Z, in [0, 360).
func (b *Body) HeadingDeg() float64 {
	f := b.Forward()
	deg := mgl64.RadToDeg(math.Atan2(f.X(), f.Z()))
	if deg < 0 {
		deg += 360
	}
	return deg
}

// Mass returns the body mass in kg.
func (b *Body) Mass() float64 { return b.mass }

// OnGround reports whether the last step ended in ground contact.
func (b *Body) OnGround() bool { return b.onGround }

// CenterOfMass returns the local center of mass offset.
func (b *Body) CenterOfMass() mgl64.Vec3 { return b.centerOfMass }

// Damping returns the linear and angular damping coefficients.
func (b *Body) Damping() (linear, angular float64) {
	return b.linearDamping, b.angularDamping
}

// LinearVelocity returns the velocity including forces applied this step.
func (b *Body) LinearVelocity() mgl64.Vec3 { return b.velocity }

// SetLinearVelocity overrides the body velocity.
func (b *Body) SetLinearVelocity(v mgl64.Vec3) { b.velocity = v }

// AngularVelocity returns the angular velocity in rad/s.
func (b *Body) AngularVelocity() mgl64.Vec3 { return b.angularVelocity }

// SetAngularVelocity overrides the angular velocity.
func (b *Body) SetAngularVelocity(w mgl64.Vec3) { b.angularVelocity = w }

// SetCenterOfMass sets the local center of mass offset.
func (b *Body) SetCenterOfMass(offset mgl64.Vec3) { b.centerOfMass = offset }

// SetDamping sets the linear and angular damping coefficients.
func (b *Body) SetDamping(linear, angular float64) {
	b.linearDamping = linear
	b.angularDamping = angular
}

// AddForce integrates f over the world's fixed step. While resting on the
// ground, the ground absorbs any downward change.
func (b *Body) AddForce(f mgl64.Vec3, mode dynamics.ForceMode) {
	a := f
	if mode == dynamics.ForceModeForce {
		a = f.Mul(1 / b.mass)
	}
	b.velocity = b.velocity.Add(a.Mul(b.world.FixedDeltaTime))
	b.groundReaction()
}

// AddTorque integrates t over the world's fixed step.
func (b *Body) AddTorque(t mgl64.Vec3, mode dynamics.ForceMode) {
	alpha := t
	if mode == dynamics.ForceModeForce {
		alpha = mgl64.Vec3{
			safeDiv(t.X(), b.inertia.X()),
			safeDiv(t.Y(), b.inertia.Y()),
			safeDiv(t.Z(), b.inertia.Z()),
		}
	}
	b.angularVelocity = b.angularVelocity.Add(alpha.Mul(b.world.FixedDeltaTime))
}

// ProbeGround casts straight down from the body origin.
func (b *Body) ProbeGround(maxDistance float64) (dynamics.GroundHit, bool) {
	return b.world.Terrain.Raycast(b.position, maxDistance)
}

// step integrates one fixed step of dt seconds.
func (b *Body) step(dt float64) {
	b.velocity = b.velocity.Add(b.world.Gravity.Mul(dt))
	b.groundReaction()

	b.velocity = b.velocity.Mul(1 / (1 + b.linearDamping*dt))
	b.angularVelocity = b.angularVelocity.Mul(1 / (1 + b.angularDamping*dt))
	if w := b.angularVelocity.Len(); w > b.maxAngularVelocity {
		b.angularVelocity = b.angularVelocity.Mul(b.maxAngularVelocity / w)
	}

	b.position = b.position.Add(b.velocity.Mul(dt))
	if w := b.angularVelocity.Len(); w > 0 {
		q := mgl64.QuatRotate(w*dt, b.angularVelocity.Mul(1/w))
		b.rotation = q.Mul(b.rotation).Normalize()
	}

	b.resolveContact()
}

func (b *Body) groundReaction() {
	if b.onGround && b.velocity.Y() < 0 {
		b.velocity[1] = 0
	}
}

// resolveContact snaps the body onto the ground when it is within ride height.
// Bodies that fell below the surface through a gap stay airborne.
func (b *Body) resolveContact() {
	h, ok := b.world.Terrain.HeightAt(b.position.X(), b.position.Z())
	if !ok {
		b.onGround = false
		return
	}
	clearance := b.position.Y() - h
	if clearance > b.rideHeight || clearance < -b.rideHeight {
		b.onGround = false
		return
	}
	b.position[1] = h + b.rideHeight
	if b.velocity.Y() < 0 {
		b.velocity[1] = 0
	}
	b.onGround = true
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
