package dynamics

import "github.com/go-gl/mathgl/mgl64"

// ForceMode selects how a force or torque is interpreted by the rigid body.
type ForceMode int

const (
	// ForceModeForce applies a continuous force scaled by the body's mass.
	ForceModeForce ForceMode = iota
	// ForceModeAcceleration applies a continuous acceleration, ignoring mass.
	ForceModeAcceleration
)

func (m ForceMode) String() string {
	switch m {
	case ForceModeForce:
		return "force"
	case ForceModeAcceleration:
		return "acceleration"
	default:
		return "unknown"
	}
}

// Up is the world vertical axis. Steering torque is applied about it.
var Up = mgl64.Vec3{0, 1, 0}

// GroundHit describes the result of a downward ground probe.
type GroundHit struct {
	Point    mgl64.Vec3
	Normal   mgl64.Vec3
	Distance float64
}

// RigidBody is the physics capability the controller drives.
//
// Forces and torques are integrated by the body over the current step.
// LinearVelocity reports the velocity including everything applied so far in
// the step, so the controller can gate and clamp on it.
type RigidBody interface {
	Forward() mgl64.Vec3
	Mass() float64
	LinearVelocity() mgl64.Vec3
	SetLinearVelocity(v mgl64.Vec3)
	AngularVelocity() mgl64.Vec3
	AddForce(f mgl64.Vec3, mode ForceMode)
	AddTorque(t mgl64.Vec3, mode ForceMode)
	// ProbeGround casts straight down from the body origin.
	ProbeGround(maxDistance float64) (GroundHit, bool)
}

// BodyTuner is an optional interface for bodies that accept setup-time tuning.
type BodyTuner interface {
	SetCenterOfMass(offset mgl64.Vec3)
	SetDamping(linear, angular float64)
}

// Input is one sample of driver intent.
type Input struct {
	Vertical   float64 `json:"vertical" mapstructure:"vertical"`
	Horizontal float64 `json:"horizontal" mapstructure:"horizontal"`
	Brake      bool    `json:"brake" mapstructure:"brake"`
}

// InputSource supplies driver intent once per frame.
type InputSource interface {
	ReadInput() Input
}
