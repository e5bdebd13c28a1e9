package match

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/rovermap/insd/params"
	"github.com/rovermap/insd/roads"
)

const (
	qLat = 45.5155
	qLon = -122.6784
)

// northSouth builds a vertical segment offset east of the query point
// by roughly the given meters.
func northSouth(id int64, meters float64, class int) *roads.Segment {
	dLon := meters / (111132.954 * math.Cos(qLat*math.Pi/180))
	return &roads.Segment{
		ID:    id,
		Class: class,
		Geometry: orb.LineString{
			{qLon + dLon, qLat - 0.0005},
			{qLon + dLon, qLat + 0.0005},
		},
	}
}

func TestSelectRoadPrefersNearAlignedRoad(t *testing.T) {
	m := New(nil)
	near := northSouth(1, 5, 3)
	far := northSouth(2, 45, 3)

	// Heading north, matching both segments' bearing.
	got := m.SelectRoad(qLat, qLon, 0, []*roads.Segment{far, near})
	if got == nil {
		t.Fatal("no match")
	}
	if got.Segment.ID != 1 {
		t.Errorf("matched id %d, want 1", got.Segment.ID)
	}
	if got.Distance > 10 {
		t.Errorf("distance: %v", got.Distance)
	}
	if m.MatchedRoad() != got {
		t.Error("MatchedRoad out of sync")
	}
}

func TestSelectRoadHeadingBreaksDistanceNearTie(t *testing.T) {
	m := New(nil)
	// Same distance; one aligned with travel, one perpendicular.
	aligned := northSouth(1, 10, 3)
	perpendicular := &roads.Segment{
		ID:    2,
		Class: 3,
		Geometry: orb.LineString{
			{qLon - 0.0005, qLat + 10/111132.954},
			{qLon + 0.0005, qLat + 10/111132.954},
		},
	}
	got := m.SelectRoad(qLat, qLon, 0, []*roads.Segment{perpendicular, aligned})
	if got == nil || got.Segment.ID != 1 {
		t.Fatalf("want aligned segment 1, got %+v", got)
	}
}

func TestSelectRoadNoCandidates(t *testing.T) {
	m := New(nil)
	if got := m.SelectRoad(qLat, qLon, 0, nil); got != nil {
		t.Errorf("empty candidates: got %+v", got)
	}
	if m.MatchedRoad() != nil {
		t.Error("MatchedRoad not cleared")
	}
}

func TestSelectRoadAllTooFar(t *testing.T) {
	m := New(nil)
	far := northSouth(1, 200, 3)
	if got := m.SelectRoad(qLat, qLon, 0, []*roads.Segment{far}); got != nil {
		t.Errorf("far candidate matched: %+v", got)
	}
}

func TestSelectRoadMinScoreFloor(t *testing.T) {
	cfg := params.DefaultMatcherConfig()
	cfg.MinScore = 0.99 // effectively unreachable
	m := New(cfg)
	near := northSouth(1, 5, 7)
	if got := m.SelectRoad(qLat, qLon, 0, []*roads.Segment{near}); got != nil {
		t.Errorf("match below floor accepted: score=%v", got.Score)
	}
}

func TestSelectRoadDeterministicTies(t *testing.T) {
	m := New(nil)
	// Identical geometry and class, different IDs: lower ID wins, and
	// repeated calls agree.
	a := northSouth(7, 10, 3)
	b := northSouth(3, 10, 3)

	first := m.SelectRoad(qLat, qLon, 0, []*roads.Segment{a, b})
	second := m.SelectRoad(qLat, qLon, 0, []*roads.Segment{b, a})
	if first == nil || second == nil {
		t.Fatal("no match")
	}
	if first.Segment.ID != 3 || second.Segment.ID != 3 {
		t.Errorf("tie not deterministic: %d vs %d", first.Segment.ID, second.Segment.ID)
	}
}

func TestSelectRoadClassBreaksTies(t *testing.T) {
	m := New(nil)
	minor := northSouth(1, 10, 2)
	major := northSouth(2, 10, 5)
	got := m.SelectRoad(qLat, qLon, 0, []*roads.Segment{minor, major})
	if got == nil || got.Segment.ID != 2 {
		t.Fatalf("want higher-class segment 2, got %+v", got)
	}
}

func TestSelectRoadHeadingDirectionInsensitive(t *testing.T) {
	m := New(nil)
	seg := northSouth(1, 5, 3)
	// Driving south along a segment drawn south-to-north.
	got := m.SelectRoad(qLat, qLon, math.Pi, []*roads.Segment{seg})
	if got == nil {
		t.Fatal("opposite travel direction broke the match")
	}
}
