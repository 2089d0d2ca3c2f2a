// Package geo places track-local positions on the globe and measures the
// paths vehicles drive.
package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/kartlab/vehiclesim/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// Track positions are metres with +X east and +Z north. They are placed on
// the globe by offsetting the origin in web mercator (EPSG:3857), where a
// ground metre at latitude φ spans 1/cos(φ) projected metres.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// maxMercatorLatitude bounds the origin to where EPSG:3857 is defined.
const maxMercatorLatitude = 85.05112878

// Projector maps track-local metres onto WGS84 around a fixed origin.
type Projector struct {
	origin     core.GeoOrigin
	originX    float64
	originY    float64
	scale      float64
	toGeodetic wgs84.Func
}

// NewProjector returns a projector anchored at origin.
func NewProjector(origin core.GeoOrigin) (*Projector, error) {
	if math.IsNaN(origin.Latitude) || math.IsNaN(origin.Longitude) ||
		math.Abs(origin.Latitude) > maxMercatorLatitude || math.Abs(origin.Longitude) > 180 {
		return nil, fmt.Errorf("%w: origin %g,%g", ErrInvalidCoordinates, origin.Longitude, origin.Latitude)
	}

	epsg := wgs84.EPSG()
	toMercator := epsg.Transform(4326, 3857)
	x, y, _ := toMercator(origin.Longitude, origin.Latitude, 0)

	return &Projector{
		origin:     origin,
		originX:    x,
		originY:    y,
		scale:      1 / math.Cos(origin.Latitude*math.Pi/180),
		toGeodetic: epsg.Transform(3857, 4326),
	}, nil
}

// Origin returns the anchor of the projection.
func (p *Projector) Origin() core.GeoOrigin {
	return p.origin
}

// ToWGS84 returns longitude, latitude and altitude for a track position.
func (p *Projector) ToWGS84(pos core.Position3D) (lon, lat, alt float64) {
	lon, lat, _ = p.toGeodetic(p.originX+pos.X*p.scale, p.originY+pos.Z*p.scale, 0)
	return lon, lat, p.origin.Altitude + pos.Y
}

// Point returns the geodetic XYZ point for a track position.
func (p *Projector) Point(pos core.Position3D) (geom.Point, error) {
	lon, lat, alt := p.ToWGS84(pos)
	pt, err := geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: lon, Y: lat},
		Z:    alt,
		Type: geom.DimXYZ,
	})
	if err != nil {
		return geom.Point{}, fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)
	}
	return pt, nil
}

// Trajectory returns the ground track (X, Z) of a sequence of states in
// track metres. Fewer than two samples give an empty line. A path that never
// leaves its first position, or holds a non-finite position, is not a line and
// yields ErrInvalidCoordinates.
func Trajectory(states []core.VehicleState) (geom.LineString, error) {
	if len(states) < 2 {
		return geom.LineString{}, nil
	}
	coords := make([]float64, 0, len(states)*2)
	for _, s := range states {
		coords = append(coords, s.Position.X, s.Position.Z)
	}
	return lineString(coords, geom.DimXY)
}

// PathLength is the ground distance covered by states, in metres. Paths
// that cannot form a line have no length.
func PathLength(states []core.VehicleState) float64 {
	ls, err := Trajectory(states)
	if err != nil {
		return 0
	}
	return ls.Length()
}

// GeoTrajectory projects a sequence of states onto WGS84 with altitude.
// It fails like Trajectory.
func (p *Projector) GeoTrajectory(states []core.VehicleState) (geom.LineString, error) {
	if len(states) < 2 {
		return geom.LineString{}, nil
	}
	coords := make([]float64, 0, len(states)*3)
	for _, s := range states {
		lon, lat, alt := p.ToWGS84(s.Position)
		coords = append(coords, lon, lat, alt)
	}
	return lineString(coords, geom.DimXYZ)
}

func lineString(coords []float64, ct geom.CoordinatesType) (geom.LineString, error) {
	ls, err := geom.NewLineString(geom.NewSequence(coords, ct))
	if err != nil {
		return geom.LineString{}, fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)
	}
	return ls, nil
}

// Feature is one vehicle path in a GeoJSON export.
type Feature struct {
	Name       string
	VehicleID  uint16
	States     []core.VehicleState
	Properties map[string]any
}

type geoJSONFeature struct {
	Type       string          `json:"type"`
	ID         uint16          `json:"id"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

type geoJSONCollection struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

// FeatureCollection renders the paths as a GeoJSON FeatureCollection.
// Features whose path is not a line (a parked vehicle, say) are skipped.
func (p *Projector) FeatureCollection(features []Feature) ([]byte, error) {
	out := geoJSONCollection{Type: "FeatureCollection", Features: make([]geoJSONFeature, 0, len(features))}
	for _, f := range features {
		path, err := p.GeoTrajectory(f.States)
		if err != nil || path.IsEmpty() {
			continue
		}
		geometry, err := path.AsGeometry().MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("encoding path of %s: %w", f.Name, err)
		}
		props := map[string]any{
			"name":       f.Name,
			"pathLength": PathLength(f.States),
		}
		for k, v := range f.Properties {
			props[k] = v
		}
		out.Features = append(out.Features, geoJSONFeature{
			Type:       "Feature",
			ID:         f.VehicleID,
			Geometry:   geometry,
			Properties: props,
		})
	}
	return json.Marshal(out)
}
