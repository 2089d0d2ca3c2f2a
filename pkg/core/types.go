// Package core holds the storage-agnostic records of a simulation run.
package core

// Position3D is a point in track-local metres: X east, Y up, Z north.
type Position3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// GeoOrigin anchors the track-local frame to WGS84.
type GeoOrigin struct {
	Latitude  float64 `json:"latitude" mapstructure:"latitude"`
	Longitude float64 `json:"longitude" mapstructure:"longitude"`
	Altitude  float64 `json:"altitude" mapstructure:"altitude"`
}

// UploadMetadata describes an exported run for the web frontend.
type UploadMetadata struct {
	RunName  string
	Track    string
	Tag      string
	Duration float64
}
