package main

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/kartlab/vehiclesim/internal/config"
	"github.com/kartlab/vehiclesim/internal/physics"
	"github.com/kartlab/vehiclesim/internal/sim"
)

// scenario is everything a Simulator needs, read from config.
type scenario struct {
	Options  sim.Options
	Terrain  *physics.Terrain
	Vehicles []sim.VehicleSpec
}

func loadScenario() (scenario, error) {
	simCfg := config.GetSimConfig()
	track, err := config.GetTrackConfig()
	if err != nil {
		return scenario{}, err
	}
	vehicles, err := config.GetVehicleConfigs()
	if err != nil {
		return scenario{}, err
	}

	opts := sim.Options{
		Name:           simCfg.Name,
		Track:          track.Name,
		Tag:            config.DefaultTag(),
		FixedDeltaTime: simCfg.FixedDeltaTime,
		FrameRate:      simCfg.FrameRate,
		FrameJitter:    simCfg.FrameJitter,
		Seed:           simCfg.Seed,
		Duration:       simCfg.Duration.Seconds(),
		CaptureEvery:   simCfg.CaptureEvery,
		Realtime:       simCfg.Realtime,
		MaxFrameDelta:  simCfg.MaxFrameDelta,
		Origin:         track.Origin,
		Version:        Version,
	}

	terrain := &physics.Terrain{GroundHeight: track.GroundHeight}
	for _, g := range track.Gaps {
		terrain.Gaps = append(terrain.Gaps, physics.Rect{MinX: g.MinX, MinZ: g.MinZ, MaxX: g.MaxX, MaxZ: g.MaxZ})
	}

	specs := make([]sim.VehicleSpec, 0, len(vehicles))
	for _, vc := range vehicles {
		specs = append(specs, vehicleSpec(vc, simCfg.Debug))
	}

	return scenario{Options: opts, Terrain: terrain, Vehicles: specs}, nil
}

func vehicleSpec(vc config.VehicleConfig, debug bool) sim.VehicleSpec {
	body := physics.DefaultBodySpec()
	if vc.Mass > 0 {
		body.Mass = vc.Mass
	}
	body.Position = mgl64.Vec3{vc.Position.X, vc.Position.Y, vc.Position.Z}
	body.HeadingDeg = vc.Heading
	if vc.RideHeight > 0 {
		body.RideHeight = vc.RideHeight
	}

	return sim.VehicleSpec{
		Name:     vc.Name,
		Body:     body,
		Tuning:   vc.Tuning,
		Script:   vc.Script,
		Debug:    debug,
		Detached: vc.Detached,
	}
}

// validateScripts reports the first broken input script.
func validateScripts(specs []sim.VehicleSpec) error {
	for _, s := range specs {
		if err := s.Script.Validate(); err != nil {
			return fmt.Errorf("vehicle %s script: %w", s.Name, err)
		}
	}
	return nil
}
