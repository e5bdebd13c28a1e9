// Package match snaps fused pose estimates onto road segments. It is a
// point matcher, not a path matcher: each pose is scored against nearby
// candidates independently, with distance, heading agreement and road
// class traded off by configured weights.
package match

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/rovermap/insd/geo/frame"
	"github.com/rovermap/insd/params"
	"github.com/rovermap/insd/roads"
)

// Match is one accepted road association.
type Match struct {
	Segment  *roads.Segment
	Score    float64
	Distance float64 // exact point-to-polyline meters
}

type Matcher struct {
	cfg  *params.MatcherConfig
	last *Match
}

func New(cfg *params.MatcherConfig) *Matcher {
	if cfg == nil {
		cfg = params.DefaultMatcherConfig()
	}
	return &Matcher{cfg: cfg}
}

// SelectRoad scores the candidates against a geodetic position and a
// heading (radians east of north) and returns the winner, or nil when
// no candidate clears the score floor. Ties break toward the higher
// road class, then the lower segment ID, so repeated calls on the same
// inputs return the same segment.
func (m *Matcher) SelectRoad(lat, lon, headingRad float64, candidates []*roads.Segment) *Match {
	if len(candidates) == 0 {
		m.last = nil
		return nil
	}

	// Exact distances come from planar geometry in a plane anchored at
	// the query point; candidate polylines are at most tens of meters
	// out, where the projection error is negligible.
	ltp := frame.NewLTP(lat, lon, 0)
	origin := orb.Point{0, 0}

	var best *Match
	for _, seg := range candidates {
		proj := ltp.ProjectLineString(seg.Geometry)
		d := planar.DistanceFrom(proj, origin)
		if d > m.cfg.MaxDistance {
			continue
		}

		// Heading agreement is direction-insensitive: a segment drawn
		// against travel direction is still the same road.
		dh := math.Abs(math.Cos(headingRad - seg.Bearing()))

		class := float64(seg.Class)
		if max := float64(m.cfg.MaxClass); class > max {
			class = max
		}

		score := m.cfg.DistanceWeight*(1-d/m.cfg.MaxDistance) +
			m.cfg.HeadingWeight*dh +
			m.cfg.ClassWeight*class/float64(m.cfg.MaxClass)

		if best == nil || better(score, seg, best) {
			best = &Match{Segment: seg, Score: score, Distance: d}
		}
	}

	if best == nil || best.Score < m.cfg.MinScore {
		m.last = nil
		return nil
	}
	m.last = best
	return best
}

// MatchedRoad returns the result of the most recent SelectRoad call,
// nil when it found nothing.
func (m *Matcher) MatchedRoad() *Match { return m.last }

// MaxDistance is the configured candidate radius, meters.
func (m *Matcher) MaxDistance() float64 { return m.cfg.MaxDistance }

func better(score float64, seg *roads.Segment, cur *Match) bool {
	if score != cur.Score {
		return score > cur.Score
	}
	if seg.Class != cur.Segment.Class {
		return seg.Class > cur.Segment.Class
	}
	return seg.ID < cur.Segment.ID
}
