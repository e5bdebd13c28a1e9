// Package frame converts between WGS84 geodetic coordinates and a local
// tangent plane. Sessions cover at most tens of kilometers, so an
// equirectangular approximation anchored at the session origin is
// sufficient and keeps the filter math in plain ENU meters.
package frame

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/rovermap/insd/common"
)

// LTP is a local tangent plane: east/north/up meters relative to an
// origin fix. Immutable after construction.
type LTP struct {
	originLat float64
	originLon float64
	originAlt float64
	mPerLon   float64
}

func NewLTP(lat, lon, alt float64) *LTP {
	return &LTP{
		originLat: lat,
		originLon: lon,
		originAlt: alt,
		mPerLon:   common.MetersPerDegreeLat * math.Cos(lat*math.Pi/180),
	}
}

func (l *LTP) Origin() (lat, lon, alt float64) {
	return l.originLat, l.originLon, l.originAlt
}

// ToENU converts a geodetic coordinate to local east/north/up meters.
func (l *LTP) ToENU(lat, lon, alt float64) [3]float64 {
	return [3]float64{
		(lon - l.originLon) * l.mPerLon,
		(lat - l.originLat) * common.MetersPerDegreeLat,
		alt - l.originAlt,
	}
}

// ToGeodetic converts local east/north/up meters back to lat/lon/alt.
func (l *LTP) ToGeodetic(e, n, u float64) (lat, lon, alt float64) {
	return l.originLat + n/common.MetersPerDegreeLat,
		l.originLon + e/l.mPerLon,
		l.originAlt + u
}

// ProjectPoint maps a lon/lat point into the plane as an orb.Point of
// east/north meters, for planar geometry ops on road polylines.
func (l *LTP) ProjectPoint(pt orb.Point) orb.Point {
	enu := l.ToENU(pt.Lat(), pt.Lon(), l.originAlt)
	return orb.Point{enu[0], enu[1]}
}

// ProjectLineString maps a lon/lat polyline into the plane.
func (l *LTP) ProjectLineString(ls orb.LineString) orb.LineString {
	out := make(orb.LineString, len(ls))
	for i, pt := range ls {
		out[i] = l.ProjectPoint(pt)
	}
	return out
}

// MetersPerDegree returns the local meters spanned by one degree of
// latitude and longitude at the given latitude. Linear approximation,
// suitable for envelope prefiltering only.
func MetersPerDegree(lat float64) (perLat, perLon float64) {
	return common.MetersPerDegreeLat,
		common.MetersPerDegreeLat * math.Cos(lat*math.Pi/180)
}
