package roads

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/rovermap/insd/geo/frame"
	"github.com/tidwall/rtree"
)

// Index is an immutable-after-build spatial index over road segments.
// Build it once per tile, then query concurrently; Insert is not safe
// against concurrent queries.
type Index struct {
	tr rtree.RTreeG[*Segment]
}

func NewIndex() *Index { return &Index{} }

// FromSegments builds an index over the given segments.
func FromSegments(segs []*Segment) *Index {
	idx := NewIndex()
	for _, s := range segs {
		idx.Insert(s)
	}
	return idx
}

func (idx *Index) Insert(s *Segment) {
	b := s.Bound()
	idx.tr.Insert([2]float64{b.Min.Lon(), b.Min.Lat()}, [2]float64{b.Max.Lon(), b.Max.Lat()}, s)
}

func (idx *Index) Len() int { return idx.tr.Len() }

// SegmentsInBBox returns every segment whose envelope intersects the
// lon/lat bound, in arbitrary order.
func (idx *Index) SegmentsInBBox(b orb.Bound) []*Segment {
	var out []*Segment
	idx.tr.Search(
		[2]float64{b.Min.Lon(), b.Min.Lat()},
		[2]float64{b.Max.Lon(), b.Max.Lat()},
		func(_, _ [2]float64, s *Segment) bool {
			out = append(out, s)
			return true
		})
	return out
}

// candidate pairs a segment with its approximate envelope distance, for
// prefilter ordering only. The matcher recomputes exact distances.
type candidate struct {
	seg  *Segment
	dist float64
}

// NearestSegments returns up to k segments whose envelopes lie within
// radiusMeters of the lon/lat point, ordered nearest first. A zero or
// negative radius, k <= 0, or an empty index all yield nil.
func (idx *Index) NearestSegments(pt orb.Point, radiusMeters float64, k int) []*Segment {
	if radiusMeters <= 0 || k <= 0 || idx.tr.Len() == 0 {
		return nil
	}
	perLat, perLon := frame.MetersPerDegree(pt.Lat())
	dLat := radiusMeters / perLat
	dLon := radiusMeters / perLon

	var cands []candidate
	idx.tr.Search(
		[2]float64{pt.Lon() - dLon, pt.Lat() - dLat},
		[2]float64{pt.Lon() + dLon, pt.Lat() + dLat},
		func(min, max [2]float64, s *Segment) bool {
			d := envelopeDistance(pt, min, max, perLat, perLon)
			if d <= radiusMeters {
				cands = append(cands, candidate{seg: s, dist: d})
			}
			return true
		})
	if len(cands) == 0 {
		return nil
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].seg.ID < cands[j].seg.ID
	})
	if len(cands) > k {
		cands = cands[:k]
	}
	out := make([]*Segment, len(cands))
	for i, c := range cands {
		out[i] = c.seg
	}
	return out
}

// envelopeDistance approximates the meters from a point to an envelope:
// zero inside, axis-aligned clamp outside.
func envelopeDistance(pt orb.Point, min, max [2]float64, perLat, perLon float64) float64 {
	var de, dn float64
	switch {
	case pt.Lon() < min[0]:
		de = (min[0] - pt.Lon()) * perLon
	case pt.Lon() > max[0]:
		de = (pt.Lon() - max[0]) * perLon
	}
	switch {
	case pt.Lat() < min[1]:
		dn = (min[1] - pt.Lat()) * perLat
	case pt.Lat() > max[1]:
		dn = (pt.Lat() - max[1]) * perLat
	}
	if de == 0 {
		return dn
	}
	if dn == 0 {
		return de
	}
	return math.Hypot(de, dn)
}
