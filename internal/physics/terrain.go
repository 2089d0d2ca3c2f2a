package physics

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/kartlab/vehiclesim/pkg/dynamics"
)

// Rect is an axis-aligned region of the ground plane, in world X/Z metres.
type Rect struct {
	MinX float64 `json:"minX" mapstructure:"minX"`
	MinZ float64 `json:"minZ" mapstructure:"minZ"`
	MaxX float64 `json:"maxX" mapstructure:"maxX"`
	MaxZ float64 `json:"maxZ" mapstructure:"maxZ"`
}

// Contains reports whether (x, z) lies inside r, edges included.
func (r Rect) Contains(x, z float64) bool {
	return x >= r.MinX && x <= r.MaxX && z >= r.MinZ && z <= r.MaxZ
}

// Terrain is a flat ground plane with rectangular holes.
type Terrain struct {
	GroundHeight float64 `json:"groundHeight" mapstructure:"groundHeight"`
	Gaps         []Rect  `json:"gaps" mapstructure:"gaps"`
}

// HeightAt returns the ground height under (x, z), or false over a gap.
func (t *Terrain) HeightAt(x, z float64) (float64, bool) {
	if t == nil {
		return 0, false
	}
	for _, gap := range t.Gaps {
		if gap.Contains(x, z) {
			return 0, false
		}
	}
	return t.GroundHeight, true
}

// Raycast casts straight down from origin and reports the ground hit within maxDistance.
func (t *Terrain) Raycast(origin mgl64.Vec3, maxDistance float64) (dynamics.GroundHit, bool) {
	h, ok := t.HeightAt(origin.X(), origin.Z())
	if !ok {
		return dynamics.GroundHit{}, false
	}
	d := origin.Y() - h
	if d < 0 || d > maxDistance {
		return dynamics.GroundHit{}, false
	}
	return dynamics.GroundHit{
		Point:    mgl64.Vec3{origin.X(), h, origin.Z()},
		Normal:   dynamics.Up,
		Distance: d,
	}, true
}
