// Package dynamics implements the fixed-step vehicle motion model: ground
// adherence, speed-sensitive steering, drive, braking and a hard speed
// envelope, expressed as forces on an external rigid body.
package dynamics

import (
	"log/slog"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	inputDeadzone        = 0.05
	minSteerSpeed        = 0.1
	minBrakeSpeed        = 0.1
	idleDragCoefficient  = 50.0
	highSpeedSteerFactor = 0.3
)

// State is a read-only view of the controller and its body.
type State struct {
	Vertical        float64
	Horizontal      float64
	Braking         bool
	SteeringAngle   float64
	Grounded        bool
	LinearVelocity  mgl64.Vec3
	AngularVelocity mgl64.Vec3
}

// Report describes what a single Tick issued to the body.
type Report struct {
	Grounded    bool
	Ground      GroundHit
	DownForce   mgl64.Vec3
	Steering    bool
	SpeedFactor float64
	SteerTorque float64
	DriveForce  mgl64.Vec3
	// BrakeAccel is the braking acceleration applied this tick. Its magnitude
	// is BrakeForce unless that would stop the body within the step; then it
	// is speed/dt, which brings the body exactly to rest.
	BrakeAccel  mgl64.Vec3
	DragForce   mgl64.Vec3
	SpeedCap    float64
	Clamped     bool
	Speed       float64
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger used for setup faults, tuning warnings and debug output.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithName tags log output and setup faults with a vehicle name.
func WithName(name string) Option {
	return func(c *Controller) {
		c.name = name
	}
}

// WithDebug enables per-tick steering and speed logging at debug level.
func WithDebug(enabled bool) Option {
	return func(c *Controller) {
		c.debug = enabled
	}
}

// Controller converts per-frame driver intent into forces on a rigid body.
// It is not safe for concurrent use; each vehicle owns its own controller.
type Controller struct {
	cfg      Config
	body     RigidBody
	log      *slog.Logger
	name     string
	debug    bool
	enabled  bool
	warnings []TuningWarning

	verticalInput        float64
	horizontalInput      float64
	isBraking            bool
	currentSteeringAngle float64
	isGrounded           bool
}

// New builds a controller for body. A nil body yields a disabled controller
// together with a *SetupFault; ticking it is a no-op.
func New(cfg Config, body RigidBody, opts ...Option) (*Controller, error) {
	c := &Controller{
		cfg: cfg,
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.name != "" {
		c.log = c.log.With("vehicle", c.name)
	}

	c.warnings = Validate(cfg)
	for _, w := range c.warnings {
		c.log.Warn("Tuning warning", "field", w.Field, "value", w.Value, "advice", w.Message)
	}

	if body == nil {
		fault := &SetupFault{Vehicle: c.name, Err: ErrNoRigidBody}
		c.log.Error("Rigid body not found, controller disabled", "error", fault)
		return c, fault
	}
	c.body = body

	if tuner, ok := body.(BodyTuner); ok {
		tuner.SetCenterOfMass(mgl64.Vec3{0, cfg.CenterOfMassOffset, 0})
		tuner.SetDamping(cfg.LinearDamping, cfg.AngularDamping)
	}

	c.enabled = true
	return c, nil
}

// Enabled reports whether the controller survived setup.
func (c *Controller) Enabled() bool {
	return c.enabled
}

// Config returns the tuning the controller was built with.
func (c *Controller) Config() Config {
	return c.cfg
}

// Warnings returns the tuning warnings found at construction.
func (c *Controller) Warnings() []TuningWarning {
	return c.warnings
}

// SampleInput records the driver's intent until the next sample.
// Axis values are taken as-is; keeping them in [-1, 1] is the caller's job.
func (c *Controller) SampleInput(vertical, horizontal float64, brake bool) {
	c.verticalInput = vertical
	c.horizontalInput = horizontal
	c.isBraking = brake

	if c.debug && math.Abs(horizontal) > 0.1 {
		c.log.Debug("Horizontal input", "horizontal", horizontal)
	}
}

// Sample reads one input sample from src.
func (c *Controller) Sample(src InputSource) {
	in := src.ReadInput()
	c.SampleInput(in.Vertical, in.Horizontal, in.Brake)
}

// State returns a snapshot of the controller state.
func (c *Controller) State() State {
	s := State{
		Vertical:      c.verticalInput,
		Horizontal:    c.horizontalInput,
		Braking:       c.isBraking,
		SteeringAngle: c.currentSteeringAngle,
		Grounded:      c.isGrounded,
	}
	if c.body != nil {
		s.LinearVelocity = c.body.LinearVelocity()
		s.AngularVelocity = c.body.AngularVelocity()
	}
	return s
}

// Tick advances the model by one fixed step of fixedDeltaTime seconds.
// The steps run in a fixed order: ground check, downforce, steering, drive,
// braking and drag, speed clamp.
func (c *Controller) Tick(fixedDeltaTime float64) Report {
	if !c.enabled {
		return Report{}
	}

	var r Report
	c.checkGround(&r)
	c.applyDownForce(&r)
	c.applySteering(fixedDeltaTime, &r)
	c.applyDriveForce(&r)
	c.applyBrakingAndDrag(fixedDeltaTime, &r)
	c.limitSpeed(&r)

	if c.debug {
		c.log.Debug("Tick",
			"speed", r.Speed,
			"yawRate", c.body.AngularVelocity().Y(),
			"steeringAngle", c.currentSteeringAngle,
			"grounded", r.Grounded,
		)
	}
	return r
}

func (c *Controller) checkGround(r *Report) {
	hit, ok := c.body.ProbeGround(c.cfg.GroundCheckDistance)
	c.isGrounded = ok
	r.Grounded = ok
	if ok {
		r.Ground = hit
	}
}

func (c *Controller) applyDownForce(r *Report) {
	if !c.isGrounded {
		return
	}
	f := mgl64.Vec3{0, -c.cfg.DownForce, 0}
	c.body.AddForce(f, ForceModeForce)
	r.DownForce = f
}

func (c *Controller) applySteering(dt float64, r *Report) {
	currentSpeed := c.body.LinearVelocity().Len()

	if c.isGrounded && math.Abs(c.horizontalInput) > inputDeadzone && currentSpeed > minSteerSpeed {
		target := c.horizontalInput * c.cfg.TurnStrength
		c.currentSteeringAngle = lerp(c.currentSteeringAngle, target, c.cfg.SteeringResponseFactor*dt)

		speedFactor := c.speedFactor(currentSpeed)
		torque := c.currentSteeringAngle * speedFactor
		c.body.AddTorque(Up.Mul(torque), ForceModeForce)

		r.Steering = true
		r.SpeedFactor = speedFactor
		r.SteerTorque = torque

		if c.debug {
			c.log.Debug("Steering",
				"input", c.horizontalInput,
				"angle", c.currentSteeringAngle,
				"speedFactor", speedFactor,
				"torque", torque,
			)
		}
		return
	}

	c.currentSteeringAngle = lerp(c.currentSteeringAngle, 0, c.cfg.SteeringResponseFactor*dt*2)
}

// speedFactor scales steering authority from 1.0 at rest down to 0.3 at max speed.
func (c *Controller) speedFactor(speed float64) float64 {
	normalized := 1.0
	if c.cfg.MaxSpeed > 0 {
		normalized = speed / c.cfg.MaxSpeed
	}
	return lerp(1, highSpeedSteerFactor, normalized)
}

func (c *Controller) applyDriveForce(r *Report) {
	if !c.isGrounded || math.Abs(c.verticalInput) <= inputDeadzone {
		return
	}
	// braking overrides forward drive but not reverse
	if c.isBraking && c.verticalInput > 0 {
		return
	}
	f := c.body.Forward().Mul(c.verticalInput * c.cfg.AccelerationForce)
	c.body.AddForce(f, ForceModeForce)
	r.DriveForce = f
}

func (c *Controller) applyBrakingAndDrag(dt float64, r *Report) {
	v := c.body.LinearVelocity()
	speed := v.Len()

	if c.isBraking {
		if speed <= minBrakeSpeed {
			return
		}
		decel := c.cfg.BrakeForce
		// a single step never brakes past standstill
		if dt > 0 && decel*dt > speed {
			decel = speed / dt
		}
		a := v.Mul(-decel / speed)
		c.body.AddForce(a, ForceModeAcceleration)
		r.BrakeAccel = a
		return
	}

	if math.Abs(c.verticalInput) > inputDeadzone || speed == 0 {
		return
	}
	k := idleDragCoefficient
	if m := c.body.Mass(); m > 0 && dt > 0 && k*dt > m {
		k = m / dt
	}
	f := v.Mul(-k)
	c.body.AddForce(f, ForceModeForce)
	r.DragForce = f
}

func (c *Controller) limitSpeed(r *Report) {
	v := c.body.LinearVelocity()

	maxSpeed := c.cfg.MaxSpeed
	if c.verticalInput < -inputDeadzone || v.Dot(c.body.Forward()) < 0 {
		maxSpeed = c.cfg.ReverseMaxSpeed
	}
	maxSpeed = math.Max(maxSpeed, 0)
	r.SpeedCap = maxSpeed

	speed := v.Len()
	if speed > maxSpeed {
		v = v.Mul(maxSpeed / speed)
		c.body.SetLinearVelocity(v)
		r.Clamped = true
		speed = maxSpeed
	}
	r.Speed = speed
}

// lerp interpolates from a toward b with t clamped to [0, 1].
func lerp(a, b, t float64) float64 {
	return a + (b-a)*mgl64.Clamp(t, 0, 1)
}
