// Package roads holds the road network model: segments, a per-tile
// spatial index over them, and a tile manager keyed by S2 cells that
// builds and caches indexes as the platform moves.
package roads

import (
	"math"

	"github.com/paulmach/orb"
)

// Segment is one road polyline with the attributes the matcher scores.
// Geometry is lon/lat; Class is an ordinal where higher means more
// important road (motorway above residential above track).
type Segment struct {
	ID       int64
	Name     string
	Class    int
	Geometry orb.LineString
}

// Bound returns the segment's lon/lat bounding box.
func (s *Segment) Bound() orb.Bound {
	return s.Geometry.Bound()
}

// Bearing returns the overall direction of the polyline in radians east
// of north, from first vertex to last. Zero-length geometry yields 0.
func (s *Segment) Bearing() float64 {
	if len(s.Geometry) < 2 {
		return 0
	}
	a, b := s.Geometry[0], s.Geometry[len(s.Geometry)-1]
	dLon := (b.Lon() - a.Lon()) * math.Cos((a.Lat()+b.Lat())/2*math.Pi/180)
	dLat := b.Lat() - a.Lat()
	if dLon == 0 && dLat == 0 {
		return 0
	}
	return math.Atan2(dLon, dLat)
}
