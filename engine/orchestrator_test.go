package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/rovermap/insd/common"
	"github.com/rovermap/insd/filter"
	"github.com/rovermap/insd/match"
	"github.com/rovermap/insd/params"
	"github.com/rovermap/insd/roads"
	"github.com/rovermap/insd/types/pose"
	"github.com/rovermap/insd/types/sensor"
)

// stubFilter counts calls; good enough to exercise routing and
// publication without real estimation.
type stubFilter struct {
	name     string
	lat, lon float64
	predicts atomic.Int64
	gpsFixes atomic.Int64
	headings atomic.Int64
	zupts    atomic.Int64
	nhcs     atomic.Int64
}

func (s *stubFilter) Name() string { return s.name }
func (s *stubFilter) Predict(accel, gyro [3]float64, dt float64) error {
	s.predicts.Add(1)
	return nil
}
func (s *stubFilter) UpdateGPSPosition(o filter.GPSPosition) filter.Outcome {
	s.gpsFixes.Add(1)
	return filter.Outcome{Kind: filter.UpdateGPSPosition, Status: filter.Accepted, NIS: 1, DOF: 3}
}
func (s *stubFilter) UpdateGPSVelocity(o filter.GPSVelocity) filter.Outcome {
	return filter.Outcome{Kind: filter.UpdateGPSVelocity, Status: filter.Accepted, NIS: 1, DOF: 3}
}
func (s *stubFilter) UpdateHeading(o filter.Heading) filter.Outcome {
	s.headings.Add(1)
	return filter.Outcome{Kind: filter.UpdateHeading, Status: filter.Accepted, NIS: 0.5, DOF: 1}
}
func (s *stubFilter) ApplyZUPT() filter.Outcome {
	s.zupts.Add(1)
	return filter.Outcome{Kind: filter.UpdateZUPT, Status: filter.Accepted, NIS: 1, DOF: 3}
}
func (s *stubFilter) ApplyNHC() filter.Outcome {
	s.nhcs.Add(1)
	return filter.Outcome{Kind: filter.UpdateNHC, Status: filter.Skipped}
}
func (s *stubFilter) WidenGate() {}
func (s *stubFilter) ResetGate() {}
func (s *stubFilter) State() pose.Pose {
	return pose.Pose{Filter: s.name, Lat: s.lat, Lon: s.lon,
		Quat: [4]float64{1, 0, 0, 0}}
}

func fastEngineConfig() *params.EngineConfig {
	cfg := params.DefaultEngineConfig()
	cfg.DrainInterval = 2 * time.Millisecond
	return cfg
}

func TestNewRequiresFilters(t *testing.T) {
	if _, err := New(fastEngineConfig()); err == nil {
		t.Error("expected error for zero variants")
	}
}

func TestFeedValidatesAndRoutes(t *testing.T) {
	stub := &stubFilter{name: "stub"}
	e, err := New(fastEngineConfig(), stub)
	if err != nil {
		t.Fatal(err)
	}

	bad := sensor.Reading{Kind: sensor.KindGPS} // zero time, zero accuracy
	if err := e.Feed(bad); err == nil {
		t.Error("invalid reading accepted")
	}

	good := sensor.Reading{
		Kind: sensor.KindGPS, Time: time.Now(),
		Lat: 45.5, Lon: -122.7, Alt: 10, Accuracy: 5,
	}
	if err := e.Feed(good); err != nil {
		t.Fatal(err)
	}
	// Exact duplicate must be dropped silently.
	if err := e.Feed(good); err != nil {
		t.Fatal(err)
	}
	if got := e.runners[0].gps.Len(); got != 1 {
		t.Errorf("gps queue length: got %d want 1 (dedupe failed?)", got)
	}
}

func TestEngineProcessesAndPublishes(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelWarn + 1)()
	stub := &stubFilter{name: "stub"}
	e, err := New(fastEngineConfig(), stub)
	if err != nil {
		t.Fatal(err)
	}

	base := time.Now()
	feed := func(r sensor.Reading) {
		if err := e.Feed(r); err != nil {
			t.Fatal(err)
		}
	}
	// An accel/gyro pair per tick; the second gyro gives the first dt.
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * 10 * time.Millisecond)
		feed(sensor.Reading{Kind: sensor.KindAccel, Time: at,
			Values: [3]float64{0.01 * float64(i), 0, 9.81}})
		feed(sensor.Reading{Kind: sensor.KindGyro, Time: at,
			Values: [3]float64{0, 0, 0.001 * float64(i)}})
	}
	feed(sensor.Reading{Kind: sensor.KindGPS, Time: base.Add(40 * time.Millisecond),
		Lat: 45.5, Lon: -122.7, Alt: 10, Accuracy: 5})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = e.Run(ctx)

	if got := stub.predicts.Load(); got != 2 {
		t.Errorf("predicts: got %d want 2", got)
	}
	if got := stub.gpsFixes.Load(); got != 1 {
		t.Errorf("gps fixes: got %d want 1", got)
	}
	if p := e.Snapshot("stub"); p == nil {
		t.Error("no snapshot published")
	}
	if p := e.LastKnown("stub"); p == nil {
		t.Error("no last-known pose")
	}
	if e.Snapshot("nope") != nil {
		t.Error("snapshot for unknown variant")
	}

	stats := e.NIS("stub")
	if stats == nil {
		t.Fatal("no NIS stats")
	}
	if s := stats[filter.UpdateGPSPosition]; s.Count != 1 {
		t.Errorf("gps NIS count: got %d want 1", s.Count)
	}
}

// gatedFilter rejects every fix until forced, tracking gate calls.
type gatedFilter struct {
	stubFilter
	streak int
	widens int
	resets int
	forces int
}

func (g *gatedFilter) UpdateGPSPosition(o filter.GPSPosition) filter.Outcome {
	if o.Force {
		g.forces++
		g.streak = 0
		return filter.Outcome{Kind: filter.UpdateGPSPosition, Status: filter.Forced, NIS: 1, DOF: 3}
	}
	g.streak++
	return filter.Outcome{Kind: filter.UpdateGPSPosition, Status: filter.Rejected,
		Streak: g.streak, NIS: 100, DOF: 3}
}
func (g *gatedFilter) WidenGate() { g.widens++ }
func (g *gatedFilter) ResetGate() { g.resets++ }

func TestRejectionRunWidensThenForces(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelWarn + 1)()
	cfg := fastEngineConfig()
	cfg.MaxRejectionRun = 3

	g := &gatedFilter{stubFilter: stubFilter{name: "gated"}}
	e, err := New(cfg, g)
	if err != nil {
		t.Fatal(err)
	}
	rn := e.runners[0]

	fix := func(sec int) sensor.Reading {
		return sensor.Reading{Kind: sensor.KindGPS, Time: time.Unix(int64(sec), 0),
			Lat: 45.5, Lon: -122.7, Alt: 10, Accuracy: 5}
	}

	// Streaks 1 and 2: surfaced but tolerated.
	rn.updateGPS(fix(1))
	rn.updateGPS(fix(2))
	if g.widens != 0 || g.forces != 0 {
		t.Fatalf("gate touched early: widens=%d forces=%d", g.widens, g.forces)
	}

	// Streak 3 == MaxRejectionRun: widen once.
	rn.updateGPS(fix(3))
	if g.widens != 1 {
		t.Fatalf("widens at streak 3: got %d want 1", g.widens)
	}
	if g.forces != 0 {
		t.Fatalf("forced before 2x bound: %d", g.forces)
	}

	// Streaks 4 and 5: widened gate still rejecting, no new action.
	rn.updateGPS(fix(4))
	rn.updateGPS(fix(5))
	if g.widens != 1 || g.forces != 0 {
		t.Fatalf("mid-run: widens=%d forces=%d", g.widens, g.forces)
	}

	// Streak 6 >= 2*MaxRejectionRun: force the fix through, reset.
	rn.updateGPS(fix(6))
	if g.forces != 1 {
		t.Errorf("forces at streak 6: got %d want 1", g.forces)
	}
	if g.resets != 1 {
		t.Errorf("gate resets after force: got %d want 1", g.resets)
	}
	if rn.gateWidened {
		t.Error("widened flag not cleared after force")
	}
}

func TestRoadMatchingOnAcceptedFix(t *testing.T) {
	stub := &stubFilter{name: "stub", lat: 45.5152, lon: -122.6784}
	e, err := New(fastEngineConfig(), stub)
	if err != nil {
		t.Fatal(err)
	}

	seg := &roads.Segment{ID: 7, Name: "N Main", Class: 3, Geometry: orb.LineString{
		{-122.6784, 45.5150}, {-122.6784, 45.5160},
	}}
	source := roads.TileSourceFunc(func(ctx context.Context, key roads.TileKey) ([]*roads.Segment, error) {
		return []*roads.Segment{seg}, nil
	})
	tm, err := roads.NewTileManager(nil, source)
	if err != nil {
		t.Fatal(err)
	}
	e.SetRoadMatching(tm, match.New(nil))
	e.ctx = context.Background()

	if e.LastMatch() != nil {
		t.Fatal("match before any fix")
	}
	e.runners[0].updateGPS(sensor.Reading{Kind: sensor.KindGPS, Time: time.Now(),
		Lat: 45.5152, Lon: -122.6784, Alt: 10, Accuracy: 5})

	m := e.LastMatch()
	if m == nil {
		t.Fatal("no road match after accepted fix")
	}
	if m.Segment.ID != 7 {
		t.Errorf("matched segment: got %d want 7", m.Segment.ID)
	}
	if m.Distance > 1 {
		t.Errorf("distance to on-road pose: %v", m.Distance)
	}
}

func TestConstraintCadenceUsesReadingClock(t *testing.T) {
	cfg := fastEngineConfig()
	stub := &stubFilter{name: "stub"}
	e, err := New(cfg, stub)
	if err != nil {
		t.Fatal(err)
	}
	rn := e.runners[0]

	// A replayed historical stream: the OS flagged the platform
	// stationary back then, not now.
	base := time.Now().Add(-24 * time.Hour)
	e.detector.Observe(sensor.Reading{Kind: sensor.KindMotion, Time: base, Stationary: true})
	rn.imu.Push(sensor.Reading{Kind: sensor.KindAccel, Time: base,
		Values: [3]float64{0, 0, 9.81}})

	rn.cycle(e.detector)
	if got := stub.zupts.Load(); got != 1 {
		t.Errorf("zupts after historical batch: got %d want 1", got)
	}

	// Empty cycles must not advance any cadence on the wall clock.
	rn.cycle(e.detector)
	rn.cycle(e.detector)
	if got := stub.zupts.Load(); got != 1 {
		t.Errorf("zupts after empty cycles: got %d want 1", got)
	}
	if got := stub.nhcs.Load(); got != 0 {
		t.Errorf("nhcs after empty cycles: got %d want 0", got)
	}
}

func TestVariantsAndDrops(t *testing.T) {
	a := &stubFilter{name: "a"}
	b := &stubFilter{name: "b"}
	e, err := New(fastEngineConfig(), a, b)
	if err != nil {
		t.Fatal(err)
	}
	names := e.Variants()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("variants: %v", names)
	}
	drops := e.Drops()
	if len(drops) != 2 {
		t.Errorf("drops map: %v", drops)
	}
}
