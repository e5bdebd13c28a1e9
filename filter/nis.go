package filter

import (
	"sync"

	"github.com/montanaflynn/stats"
	"github.com/rovermap/insd/stream"
)

// Monitor accumulates the NIS statistic per accepted update, grouped by
// update type, over a rolling window. For a consistent filter the NIS is
// chi-squared with the update's DOF, so its rolling mean should sit near
// the DOF; tuning tools read these numbers, nothing here ever mutates
// filter state.
type Monitor struct {
	window int

	mu    sync.Mutex
	rings map[UpdateKind]*stream.RingBuffer[float64]
}

func NewMonitor(window int) *Monitor {
	if window <= 0 {
		window = 100
	}
	return &Monitor{
		window: window,
		rings:  make(map[UpdateKind]*stream.RingBuffer[float64]),
	}
}

// Record folds one update outcome in. Only applied updates carry a
// meaningful NIS; everything else is ignored.
func (m *Monitor) Record(o Outcome) {
	if !o.Applied() || o.DOF == 0 {
		return
	}
	m.mu.Lock()
	ring, ok := m.rings[o.Kind]
	if !ok {
		ring = stream.NewRingBuffer[float64](m.window)
		m.rings[o.Kind] = ring
	}
	m.mu.Unlock()
	ring.Add(o.NIS)
}

// NISStats summarizes one update type's rolling window.
type NISStats struct {
	Kind  UpdateKind `json:"kind"`
	DOF   int        `json:"dof"`
	Count int        `json:"count"`
	Mean  float64    `json:"mean"`
	Min   float64    `json:"min"`
	Max   float64    `json:"max"`
}

// Consistent is a coarse health heuristic: the rolling NIS mean of a
// well-tuned filter stays within a band around the DOF. Way below means
// pessimistic R, way above means optimistic R or unmodeled errors.
func (s NISStats) Consistent() bool {
	if s.Count < 5 {
		return true // not enough evidence to complain
	}
	dof := float64(s.DOF)
	return s.Mean > 0.1*dof && s.Mean < 3*dof
}

// Stats snapshots every tracked update type.
func (m *Monitor) Stats() map[UpdateKind]NISStats {
	m.mu.Lock()
	kinds := make([]UpdateKind, 0, len(m.rings))
	for k := range m.rings {
		kinds = append(kinds, k)
	}
	m.mu.Unlock()

	out := make(map[UpdateKind]NISStats, len(kinds))
	for _, kind := range kinds {
		m.mu.Lock()
		ring := m.rings[kind]
		m.mu.Unlock()
		values := ring.Get()
		s := NISStats{Kind: kind, DOF: kind.DOF(), Count: len(values)}
		if len(values) > 0 {
			s.Mean, _ = stats.Mean(values)
			s.Min, _ = stats.Min(values)
			s.Max, _ = stats.Max(values)
		}
		out[kind] = s
	}
	return out
}
