package frame

import (
	"math"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	l := NewLTP(46.9292804, -114.0877518, 965.6)

	lat, lon, alt := 46.9301, -114.0891, 970.0
	enu := l.ToENU(lat, lon, alt)
	gotLat, gotLon, gotAlt := l.ToGeodetic(enu[0], enu[1], enu[2])

	if math.Abs(gotLat-lat) > 1e-9 || math.Abs(gotLon-lon) > 1e-9 || math.Abs(gotAlt-alt) > 1e-9 {
		t.Errorf("round trip drifted: got %f,%f,%f want %f,%f,%f", gotLat, gotLon, gotAlt, lat, lon, alt)
	}
}

func TestENUAxes(t *testing.T) {
	l := NewLTP(45.0, 7.0, 0)

	// One degree north should be ~111 km of northing and no easting.
	enu := l.ToENU(46.0, 7.0, 0)
	if enu[0] != 0 {
		t.Errorf("expected zero easting, got %f", enu[0])
	}
	if enu[1] < 110e3 || enu[1] > 112e3 {
		t.Errorf("northing out of range: %f", enu[1])
	}

	// Easting at 45N is compressed by cos(45).
	enu = l.ToENU(45.0, 8.0, 0)
	if enu[1] != 0 {
		t.Errorf("expected zero northing, got %f", enu[1])
	}
	want := 111132.954 * math.Cos(45*math.Pi/180)
	if math.Abs(enu[0]-want) > 1 {
		t.Errorf("easting: got %f want %f", enu[0], want)
	}
}

func TestOriginMapsToZero(t *testing.T) {
	l := NewLTP(-33.8688, 151.2093, 58)
	enu := l.ToENU(-33.8688, 151.2093, 58)
	if enu != [3]float64{} {
		t.Errorf("origin should map to zero, got %v", enu)
	}
}
