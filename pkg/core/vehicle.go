package core

import (
	"time"

	"github.com/kartlab/vehiclesim/pkg/dynamics"
)

// Vehicle is a controller/body pair taking part in a run.
// ID is assigned by the simulator in spawn order, starting at 1.
type Vehicle struct {
	ID         uint16          `json:"id"`
	Name       string          `json:"name"`
	JoinTime   time.Time       `json:"joinTime"`
	JoinTick   uint            `json:"joinTick"`
	Mass       float64         `json:"mass"`
	Spawn      Position3D      `json:"spawn"`
	HeadingDeg float64         `json:"heading"`
	Tuning     dynamics.Config `json:"tuning"`
	Enabled    bool            `json:"enabled"`
}

// VehicleState is a sampled snapshot of one vehicle.
type VehicleState struct {
	VehicleID     uint16     `json:"vehicleId"`
	Time          time.Time  `json:"time"`
	Tick          uint       `json:"tick"`
	SimTime       float64    `json:"simTime"` // seconds since run start
	Position      Position3D `json:"position"`
	Velocity      Position3D `json:"velocity"`
	HeadingDeg    float64    `json:"heading"`
	Speed         float64    `json:"speed"`
	YawRate       float64    `json:"yawRate"`
	SteeringAngle float64    `json:"steeringAngle"`
	Vertical      float64    `json:"vertical"`
	Horizontal    float64    `json:"horizontal"`
	Braking       bool       `json:"braking"`
	Grounded      bool       `json:"grounded"`
	Clamped       bool       `json:"clamped"`
}

// TuningWarning records an advisory raised while setting up a vehicle.
type TuningWarning struct {
	VehicleID uint16    `json:"vehicleId"`
	Time      time.Time `json:"time"`
	Field     string    `json:"field"`
	Value     float64   `json:"value"`
	Message   string    `json:"message"`
}
