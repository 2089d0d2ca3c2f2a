// Package sim drives vehicle controllers headless: a variable-rate frame loop
// samples scripted input, and a fixed-step accumulator ticks every controller
// and then the physics world.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/kartlab/vehiclesim/internal/dispatcher"
	"github.com/kartlab/vehiclesim/internal/input"
	"github.com/kartlab/vehiclesim/internal/physics"
	"github.com/kartlab/vehiclesim/pkg/core"
	"github.com/kartlab/vehiclesim/pkg/dynamics"
)

const (
	// DefaultMaxFrameDelta caps a single frame so a stall cannot queue an unbounded number of ticks.
	DefaultMaxFrameDelta = 0.333

	tickEpsilon = 1e-9
)

var ErrNoVehicles = errors.New("no vehicles configured")

// Emitter receives simulator events. *dispatcher.Dispatcher satisfies it.
type Emitter interface {
	Dispatch(e dispatcher.Event) (any, error)
	HasHandler(command string) bool
}

// Options controls the two cadences of a run.
type Options struct {
	Name           string
	Track          string
	Tag            string
	FixedDeltaTime float64 // seconds per physics tick
	FrameRate      float64 // frames per second
	FrameJitter    float64 // relative frame time jitter in [0, 1)
	Seed           int64
	Duration       float64 // simulated seconds
	CaptureEvery   int     // ticks between vehicle:state events, 0 disables
	Realtime       bool
	MaxFrameDelta  float64
	Origin         core.GeoOrigin
	Version        string // recorded on the run as SimVersion
}

// DefaultOptions is a 50 Hz physics step sampled at 60 frames per second.
func DefaultOptions() Options {
	return Options{
		Name:           "run",
		FixedDeltaTime: 0.02,
		FrameRate:      60,
		Duration:       10,
		CaptureEvery:   5,
		MaxFrameDelta:  DefaultMaxFrameDelta,
	}
}

// VehicleSpec describes one vehicle to spawn.
type VehicleSpec struct {
	Name   string
	Body   physics.BodySpec
	Tuning dynamics.Config
	Script input.Script
	Debug  bool
	// Detached spawns the controller without a rigid body, as when the body is
	// missing from the vehicle prefab. The controller stays disabled.
	Detached bool
}

type vehicle struct {
	id     uint16
	name   string
	ctrl   *dynamics.Controller
	body   *physics.Body
	player *input.Player
	fault  error

	lastPos       mgl64.Vec3
	distance      float64
	topSpeed      float64
	clamps        int
	airborneTicks int
}

// VehicleSummary is the end-of-run state of one vehicle.
type VehicleSummary struct {
	ID            uint16
	Name          string
	Enabled       bool
	FinalSpeed    float64
	TopSpeed      float64
	Distance      float64
	Position      core.Position3D
	HeadingDeg    float64
	Clamps        int
	AirborneTicks int
}

// Summary describes a finished run.
type Summary struct {
	RunID    string
	Ticks    uint
	Frames   uint
	SimTime  float64
	Vehicles []VehicleSummary
}

// Option configures a Simulator.
type Option func(*Simulator)

func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.log = l
		}
	}
}

// WithEmitter routes run events to e.
func WithEmitter(e Emitter) Option {
	return func(s *Simulator) {
		s.emitter = e
	}
}

// WithClock sets the wall clock used to stamp the run start.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) {
		s.now = now
	}
}

// Simulator owns a physics world and the vehicles in it.
type Simulator struct {
	opts     Options
	world    *physics.World
	vehicles []*vehicle
	emitter  Emitter
	log      *slog.Logger
	now      func() time.Time
	metrics  *metrics
	rng      *rand.Rand

	run         core.Run
	simTime     float64
	accumulator float64
	ticks       uint
	frames      uint
}

// New spawns every vehicle into a fresh world. A vehicle whose controller
// fails setup stays in the run, disabled.
func New(opts Options, terrain *physics.Terrain, specs []VehicleSpec, options ...Option) (*Simulator, error) {
	if len(specs) == 0 {
		return nil, ErrNoVehicles
	}
	if opts.FixedDeltaTime <= 0 {
		return nil, fmt.Errorf("fixed delta time must be positive, got %v", opts.FixedDeltaTime)
	}
	if opts.FrameRate <= 0 {
		return nil, fmt.Errorf("frame rate must be positive, got %v", opts.FrameRate)
	}
	if opts.FrameJitter < 0 || opts.FrameJitter >= 1 {
		return nil, fmt.Errorf("frame jitter must be in [0, 1), got %v", opts.FrameJitter)
	}
	if opts.MaxFrameDelta <= 0 {
		opts.MaxFrameDelta = DefaultMaxFrameDelta
	}

	s := &Simulator{
		opts:  opts,
		world: physics.NewWorld(opts.FixedDeltaTime, terrain),
		log:   slog.Default(),
		now:   time.Now,
		rng:   rand.New(rand.NewSource(opts.Seed)),
	}
	for _, o := range options {
		o(s)
	}

	m, err := newMetrics()
	if err != nil {
		return nil, err
	}
	s.metrics = m

	s.run = core.Run{
		RunID:          uuid.NewString(),
		Name:           opts.Name,
		Track:          opts.Track,
		Tag:            opts.Tag,
		FixedDeltaTime: opts.FixedDeltaTime,
		FrameRate:      opts.FrameRate,
		Duration:       opts.Duration,
		Seed:           opts.Seed,
		Origin:         opts.Origin,
		SimVersion:     opts.Version,
	}
	s.log = s.log.With("run", s.run.RunID)

	for i, spec := range specs {
		v := &vehicle{
			id:     uint16(i + 1),
			name:   spec.Name,
			player: input.NewPlayer(spec.Script),
		}
		if v.name == "" {
			v.name = fmt.Sprintf("vehicle-%d", v.id)
		}

		var rb dynamics.RigidBody
		if !spec.Detached {
			v.body = s.world.NewBody(spec.Body)
			v.lastPos = v.body.Position()
			rb = v.body
		}

		v.ctrl, v.fault = dynamics.New(spec.Tuning, rb,
			dynamics.WithLogger(s.log),
			dynamics.WithName(v.name),
			dynamics.WithDebug(spec.Debug),
		)
		s.vehicles = append(s.vehicles, v)
	}

	return s, nil
}

// RunInfo returns the run record.
func (s *Simulator) RunInfo() core.Run {
	return s.run
}

// Ticks returns the number of fixed steps executed so far.
func (s *Simulator) Ticks() uint {
	return s.ticks
}

// Controller returns the controller of vehicle id, 1-based.
func (s *Simulator) Controller(id uint16) (*dynamics.Controller, bool) {
	if id == 0 || int(id) > len(s.vehicles) {
		return nil, false
	}
	return s.vehicles[id-1].ctrl, true
}

// Body returns the rigid body of vehicle id, 1-based. Detached vehicles have none.
func (s *Simulator) Body(id uint16) (*physics.Body, bool) {
	if id == 0 || int(id) > len(s.vehicles) {
		return nil, false
	}
	b := s.vehicles[id-1].body
	return b, b != nil
}

// Run simulates until the configured duration elapses or ctx is cancelled.
// A cancelled run still ends cleanly and returns its partial summary with ctx.Err().
func (s *Simulator) Run(ctx context.Context) (Summary, error) {
	s.run.StartTime = s.now().UTC()
	s.emit(CmdRunStart, &s.run)
	s.log.Info("Run started",
		"name", s.run.Name,
		"vehicles", len(s.vehicles),
		"fixedDeltaTime", s.opts.FixedDeltaTime,
		"frameRate", s.opts.FrameRate,
		"duration", s.opts.Duration,
	)

	for _, v := range s.vehicles {
		s.announce(v)
	}

	var ticker *time.Ticker
	if s.opts.Realtime {
		ticker = time.NewTicker(time.Duration(float64(time.Second) / s.opts.FrameRate))
		defer ticker.Stop()
	}

	var runErr error
loop:
	for s.simTime < s.opts.Duration-tickEpsilon {
		if ticker != nil {
			select {
			case <-ctx.Done():
				runErr = ctx.Err()
				break loop
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			runErr = err
			break loop
		}

		s.Frame(s.frameDelta())
	}

	s.run.EndTime = s.run.StartTime.Add(secondsToDuration(s.simTime))
	s.run.Duration = s.simTime
	s.emit(CmdRunEnd, &s.run)

	summary := s.Summary()
	s.log.Info("Run finished", "ticks", summary.Ticks, "frames", summary.Frames, "simTime", summary.SimTime)
	return summary, runErr
}

// Frame advances one rendered frame of delta seconds: input is sampled once,
// then as many fixed ticks run as the accumulated time allows.
func (s *Simulator) Frame(delta float64) {
	delta = math.Min(math.Max(delta, 0), s.opts.MaxFrameDelta)
	if remaining := s.opts.Duration - s.simTime; s.opts.Duration > 0 && delta > remaining {
		delta = math.Max(remaining, 0)
	}
	s.frames++
	s.simTime += delta

	for _, v := range s.vehicles {
		v.player.Seek(s.simTime)
		v.ctrl.Sample(v.player)
	}

	s.accumulator += delta
	for s.accumulator >= s.opts.FixedDeltaTime-tickEpsilon {
		s.accumulator -= s.opts.FixedDeltaTime
		s.Tick()
	}
}

// Tick runs one fixed step for every vehicle, then integrates the world.
func (s *Simulator) Tick() {
	ctx := context.Background()
	start := time.Now()
	dt := s.opts.FixedDeltaTime

	reports := make([]dynamics.Report, len(s.vehicles))
	for i, v := range s.vehicles {
		reports[i] = v.ctrl.Tick(dt)
	}
	s.world.Step()
	s.ticks++

	for i, v := range s.vehicles {
		if v.body == nil {
			continue
		}
		r := reports[i]
		pos := v.body.Position()
		v.distance += pos.Sub(v.lastPos).Len()
		v.lastPos = pos
		v.topSpeed = math.Max(v.topSpeed, r.Speed)
		if r.Clamped {
			v.clamps++
		}
		if !r.Grounded {
			v.airborneTicks++
		}
		s.metrics.recordVehicle(ctx, v.name, r.Clamped, r.Grounded)

		if s.opts.CaptureEvery > 0 && s.ticks%uint(s.opts.CaptureEvery) == 0 {
			s.emit(CmdVehicleState, s.snapshot(v, r))
		}
	}

	s.metrics.recordTick(ctx, time.Since(start))
}

// Summary reports the current state of the run.
func (s *Simulator) Summary() Summary {
	out := Summary{
		RunID:   s.run.RunID,
		Ticks:   s.ticks,
		Frames:  s.frames,
		SimTime: s.simTime,
	}
	for _, v := range s.vehicles {
		vs := VehicleSummary{
			ID:            v.id,
			Name:          v.name,
			Enabled:       v.ctrl.Enabled(),
			TopSpeed:      v.topSpeed,
			Distance:      v.distance,
			Clamps:        v.clamps,
			AirborneTicks: v.airborneTicks,
		}
		if v.body != nil {
			vs.FinalSpeed = v.body.LinearVelocity().Len()
			vs.Position = toPosition(v.body.Position())
			vs.HeadingDeg = v.body.HeadingDeg()
		}
		out.Vehicles = append(out.Vehicles, vs)
	}
	return out
}

func (s *Simulator) announce(v *vehicle) {
	joined := s.stamp()
	rec := &core.Vehicle{
		ID:       v.id,
		Name:     v.name,
		JoinTime: joined,
		JoinTick: s.ticks,
		Tuning:   v.ctrl.Config(),
		Enabled:  v.ctrl.Enabled(),
	}
	if v.body != nil {
		rec.Mass = v.body.Mass()
		rec.Spawn = toPosition(v.body.Position())
		rec.HeadingDeg = v.body.HeadingDeg()
	}
	s.emit(CmdVehicleAdd, rec)

	for _, w := range v.ctrl.Warnings() {
		s.emit(CmdVehicleWarning, &core.TuningWarning{
			VehicleID: v.id,
			Time:      joined,
			Field:     w.Field,
			Value:     w.Value,
			Message:   w.Message,
		})
	}
}

func (s *Simulator) snapshot(v *vehicle, r dynamics.Report) *core.VehicleState {
	st := v.ctrl.State()
	return &core.VehicleState{
		VehicleID:     v.id,
		Time:          s.stamp(),
		Tick:          s.ticks,
		SimTime:       float64(s.ticks) * s.opts.FixedDeltaTime,
		Position:      toPosition(v.body.Position()),
		Velocity:      toPosition(v.body.LinearVelocity()),
		HeadingDeg:    v.body.HeadingDeg(),
		Speed:         v.body.LinearVelocity().Len(),
		YawRate:       v.body.AngularVelocity().Y(),
		SteeringAngle: st.SteeringAngle,
		Vertical:      st.Vertical,
		Horizontal:    st.Horizontal,
		Braking:       st.Braking,
		Grounded:      r.Grounded,
		Clamped:       r.Clamped,
	}
}

// stamp maps simulated time onto the wall clock of the run start.
func (s *Simulator) stamp() time.Time {
	return s.run.StartTime.Add(secondsToDuration(float64(s.ticks) * s.opts.FixedDeltaTime))
}

func (s *Simulator) emit(command string, payload any) {
	if s.emitter == nil || !s.emitter.HasHandler(command) {
		return
	}
	if _, err := s.emitter.Dispatch(dispatcher.Event{Command: command, Payload: payload}); err != nil {
		s.log.Warn("Dropped event", "command", command, "error", err)
	}
}

func (s *Simulator) frameDelta() float64 {
	base := 1 / s.opts.FrameRate
	if s.opts.FrameJitter == 0 {
		return base
	}
	return base * (1 + s.opts.FrameJitter*(2*s.rng.Float64()-1))
}

func toPosition(v mgl64.Vec3) core.Position3D {
	return core.Position3D{X: v.X(), Y: v.Y(), Z: v.Z()}
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}
