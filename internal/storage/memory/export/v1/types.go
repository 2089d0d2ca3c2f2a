// Package v1 contains the v1 export format for recorded runs.
// This format is read by the run viewer frontend.
package v1

import "github.com/kartlab/vehiclesim/pkg/dynamics"

// FormatVersion is written into every export.
const FormatVersion = 1

// State flag bits packed into the last element of a state row
const (
	FlagGrounded = 1 << iota
	FlagBraking
	FlagClamped
)

// Export is the root JSON structure for v1 format
type Export struct {
	FormatVersion  int       `json:"formatVersion"`
	RunID          string    `json:"runId"`
	RunName        string    `json:"runName"`
	Track          string    `json:"track"`
	Tag            string    `json:"tag"`
	SimVersion     string    `json:"simVersion"`
	StartTime      string    `json:"startTime"`
	EndTime        string    `json:"endTime,omitempty"`
	FixedDeltaTime float64   `json:"fixedDeltaTime"`
	FrameRate      float64   `json:"frameRate"`
	Duration       float64   `json:"duration"`
	Seed           int64     `json:"seed"`
	Origin         Origin    `json:"origin"`
	EndTick        uint      `json:"endTick"`
	Vehicles       []Vehicle `json:"vehicles"`
	Warnings       [][]any   `json:"warnings"`
}

// Origin anchors the track on the globe
type Origin struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

// Vehicle is one kart with its sampled states.
// States rows are [tick, [x, y, z], heading, speed, steeringAngle, vertical, horizontal, flags].
type Vehicle struct {
	ID              uint16          `json:"id"`
	Name            string          `json:"name"`
	Mass            float64         `json:"mass"`
	Spawn           []float64       `json:"spawn"`
	Heading         float64         `json:"heading"`
	Enabled         bool            `json:"enabled"`
	JoinTick        uint            `json:"joinTick"`
	Tuning          dynamics.Config `json:"tuning"`
	PathLength      float64         `json:"pathLength"`
	TopSpeed        float64         `json:"topSpeed"`
	AirborneSamples int             `json:"airborneSamples"`
	States          [][]any         `json:"states"`
}
