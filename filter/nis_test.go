package filter

import (
	"math"
	"testing"
)

func TestMonitorRecordsOnlyAppliedUpdates(t *testing.T) {
	m := NewMonitor(10)
	m.Record(Outcome{Kind: UpdateGPSPosition, Status: Accepted, NIS: 2.0, DOF: 3})
	m.Record(Outcome{Kind: UpdateGPSPosition, Status: Forced, NIS: 4.0, DOF: 3})
	m.Record(Outcome{Kind: UpdateGPSPosition, Status: Rejected, NIS: 99.0, DOF: 3})
	m.Record(Outcome{Kind: UpdateGPSPosition, Status: Failed, DOF: 3})
	m.Record(Outcome{Kind: UpdateGPSPosition, Status: Skipped})

	stats := m.Stats()
	s, ok := stats[UpdateGPSPosition]
	if !ok {
		t.Fatal("no stats for gps_position")
	}
	if s.Count != 2 {
		t.Errorf("count: got %d want 2", s.Count)
	}
	if math.Abs(s.Mean-3.0) > 1e-12 {
		t.Errorf("mean: got %v want 3", s.Mean)
	}
	if s.Min != 2.0 || s.Max != 4.0 {
		t.Errorf("min/max: got %v/%v want 2/4", s.Min, s.Max)
	}
}

func TestMonitorRollingWindow(t *testing.T) {
	m := NewMonitor(3)
	for i := 1; i <= 5; i++ {
		m.Record(Outcome{Kind: UpdateZUPT, Status: Accepted, NIS: float64(i), DOF: 3})
	}
	s := m.Stats()[UpdateZUPT]
	if s.Count != 3 {
		t.Errorf("count: got %d want 3", s.Count)
	}
	// Only 3,4,5 remain.
	if math.Abs(s.Mean-4.0) > 1e-12 {
		t.Errorf("mean: got %v want 4", s.Mean)
	}
}

func TestNISStatsConsistent(t *testing.T) {
	cases := []struct {
		name string
		s    NISStats
		want bool
	}{
		{"too few samples passes", NISStats{DOF: 3, Count: 2, Mean: 100}, true},
		{"healthy", NISStats{DOF: 3, Count: 50, Mean: 3.1}, true},
		{"overconfident", NISStats{DOF: 3, Count: 50, Mean: 15}, false},
		{"pessimistic", NISStats{DOF: 3, Count: 50, Mean: 0.01}, false},
		{"one dof healthy", NISStats{DOF: 1, Count: 50, Mean: 0.9}, true},
	}
	for _, c := range cases {
		if got := c.s.Consistent(); got != c.want {
			t.Errorf("%s: got %v want %v", c.name, got, c.want)
		}
	}
}
