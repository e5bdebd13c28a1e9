package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/paulmach/orb"
	"github.com/rovermap/insd/common"
	"github.com/rovermap/insd/events"
	"github.com/rovermap/insd/filter"
	"github.com/rovermap/insd/match"
	"github.com/rovermap/insd/params"
	"github.com/rovermap/insd/roads"
	"github.com/rovermap/insd/stream"
	"github.com/rovermap/insd/types/pose"
	"github.com/rovermap/insd/types/sensor"
)

// Engine fans sensor readings out to every filter variant and runs each
// variant on its own goroutine. Variants never block each other: each
// consumer drains its own queues, so a slow UKF cannot starve the EKF.
type Engine struct {
	cfg     *params.EngineConfig
	runners []*runner

	detector *Detector
	meter    *stream.TickMeter
	dedupe   func(sensor.Reading) bool

	// Road matching runs against the primary (first) variant's pose.
	tiles   *roads.TileManager
	matcher *match.Matcher

	lastKnown *ttlcache.Cache[string, *pose.Pose]
	lastMatch atomic.Pointer[match.Match]

	ctx context.Context
}

// runner owns one filter instance. The filter itself is not safe for
// concurrent use; everything that touches it happens on the runner's
// goroutine.
type runner struct {
	f       filter.Filter
	cfg     *params.EngineConfig
	monitor *filter.Monitor

	imu, gps, mag *Queue

	cache    *ttlcache.Cache[string, *pose.Pose]
	snapshot atomic.Pointer[pose.Pose]
	restarts int
	dead     atomic.Bool

	lastAccel    sensor.Reading
	haveAccel    bool
	lastIMUTime  time.Time
	lastZUPT     time.Time
	lastNHC      time.Time
	gateWidened  bool
	onGPSUpdated func(r *runner, reading sensor.Reading)
}

func New(cfg *params.EngineConfig, filters ...filter.Filter) (*Engine, error) {
	if cfg == nil {
		cfg = params.DefaultEngineConfig()
	}
	if len(filters) == 0 {
		return nil, fmt.Errorf("engine: no filter variants")
	}
	e := &Engine{
		cfg:      cfg,
		detector: NewDetector(cfg),
		meter:    stream.NewTickMeter("engine", params.MeterLogInterval),
		dedupe:   sensor.NewDedupePassLRUFunc(),
		lastKnown: ttlcache.New[string, *pose.Pose](
			ttlcache.WithTTL[string, *pose.Pose](params.CacheLastKnownTTL)),
	}
	for _, f := range filters {
		e.runners = append(e.runners, &runner{
			f:       f,
			cfg:     cfg,
			cache:   e.lastKnown,
			monitor: filter.NewMonitor(100),
			imu:     NewQueue(cfg.Queues.IMUSize),
			gps:     NewQueue(cfg.Queues.GPSSize),
			mag:     NewQueue(cfg.Queues.MagSize),
		})
	}
	return e, nil
}

// SetRoadMatching wires a tile source and matcher in. Optional; without
// it the engine publishes poses only.
func (e *Engine) SetRoadMatching(tm *roads.TileManager, m *match.Matcher) {
	e.tiles = tm
	e.matcher = m
	e.runners[0].onGPSUpdated = e.matchRoad
}

// Feed routes one reading to every variant. Invalid readings are
// rejected here, replayed duplicates dropped, and the reading is folded
// into the stationarity detector exactly once.
func (e *Engine) Feed(r sensor.Reading) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if !e.dedupe(r) {
		return nil
	}
	e.meter.Mark(r.Time)
	e.detector.Observe(r)

	for _, rn := range e.runners {
		switch r.Kind {
		case sensor.KindAccel, sensor.KindGyro:
			rn.imu.Push(r)
		case sensor.KindGPS:
			rn.gps.Push(r)
		case sensor.KindMag:
			rn.mag.Push(r)
		}
	}
	return nil
}

// Run blocks until ctx is canceled, then drains consumers and returns.
func (e *Engine) Run(ctx context.Context) error {
	e.ctx = ctx
	go e.lastKnown.Start()
	defer e.lastKnown.Stop()
	defer e.meter.Stop()

	wg := sync.WaitGroup{}
	for _, rn := range e.runners {
		wg.Add(1)
		go func(rn *runner) {
			defer wg.Done()
			rn.loop(ctx, e.detector)
		}(rn)
	}
	wg.Wait()
	return ctx.Err()
}

func (rn *runner) loop(ctx context.Context, det *Detector) {
	ticker := time.NewTicker(rn.cfg.DrainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if rn.dead.Load() {
				return
			}
			rn.cycle(det)
		}
	}
}

// cycle is one drain-and-process pass, fenced against panics so a bug
// in one variant's math cannot take down the siblings.
func (rn *runner) cycle(det *Detector) {
	defer func() {
		if r := recover(); r != nil {
			rn.restarts++
			slog.Error("Filter consumer recovered", "filter", rn.f.Name(),
				"panic", r, "restarts", rn.restarts)
			if rn.restarts > rn.cfg.MaxRestarts {
				slog.Error("Filter consumer exceeded max restarts, stopping",
					"filter", rn.f.Name())
				rn.dead.Store(true)
			}
		}
	}()

	// Everything below runs on the reading clock, never the wall clock:
	// replayed historical streams would otherwise see huge gaps that
	// fire the constraint cadences immediately.
	batch := append(rn.imu.Drain(), rn.gps.Drain()...)
	batch = append(batch, rn.mag.Drain()...)
	if len(batch) == 0 {
		return
	}
	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].Time.Before(batch[j].Time)
	})

	for _, r := range batch {
		rn.process(r)
	}
	last := batch[len(batch)-1].Time
	rn.constraints(det, last)
	rn.publish(last)
}

func (rn *runner) process(r sensor.Reading) {
	switch r.Kind {
	case sensor.KindAccel:
		rn.lastAccel, rn.haveAccel = r, true
	case sensor.KindGyro:
		if !rn.haveAccel {
			return
		}
		if rn.lastIMUTime.IsZero() {
			rn.lastIMUTime = r.Time
			return
		}
		dt := r.Time.Sub(rn.lastIMUTime).Seconds()
		rn.lastIMUTime = r.Time
		if err := rn.f.Predict(rn.lastAccel.Values, r.Values, dt); err != nil {
			slog.Debug("Predict rejected", "filter", rn.f.Name(), "error", err)
		}
	case sensor.KindGPS:
		rn.updateGPS(r)
	case sensor.KindMag:
		// Level-device approximation: yaw from the horizontal field
		// components, body x forward, y left.
		heading := common.WrapAngle(-math.Atan2(r.Values[1], r.Values[0]))
		out := rn.f.UpdateHeading(filter.Heading{Radians: heading})
		rn.observe(out)
	}
}

func (rn *runner) updateGPS(r sensor.Reading) {
	out := rn.f.UpdateGPSPosition(filter.GPSPosition{
		Lat: r.Lat, Lon: r.Lon, Alt: r.Alt, Accuracy: r.Accuracy,
	})
	rn.observe(out)

	// A long rejection run means the gate is starving the filter; widen
	// it first, then force the fix through and start clean.
	if out.Status == filter.Rejected {
		if out.Streak == rn.cfg.MaxRejectionRun {
			slog.Warn("Rejection run, widening gate", "filter", rn.f.Name(),
				"kind", out.Kind, "streak", out.Streak)
			rn.f.WidenGate()
			rn.gateWidened = true
		} else if out.Streak >= 2*rn.cfg.MaxRejectionRun {
			slog.Warn("Rejection run persists, forcing fix", "filter", rn.f.Name(),
				"kind", out.Kind, "streak", out.Streak)
			forced := rn.f.UpdateGPSPosition(filter.GPSPosition{
				Lat: r.Lat, Lon: r.Lon, Alt: r.Alt, Accuracy: r.Accuracy, Force: true,
			})
			rn.observe(forced)
			rn.f.ResetGate()
			rn.gateWidened = false
			out = forced
		}
	} else if rn.gateWidened && out.Applied() {
		rn.f.ResetGate()
		rn.gateWidened = false
	}

	// Course and speed ride along on most fixes; a moving receiver's
	// velocity observation is worth a separate update.
	if out.Applied() && r.Speed > 1 && r.Heading >= 0 {
		rad := r.Heading * math.Pi / 180
		vout := rn.f.UpdateGPSVelocity(filter.GPSVelocity{
			East:     r.Speed * math.Sin(rad),
			North:    r.Speed * math.Cos(rad),
			Up:       0,
			Accuracy: math.Max(0.5, r.Accuracy/10),
		})
		rn.observe(vout)
	}

	if out.Applied() && rn.onGPSUpdated != nil {
		rn.onGPSUpdated(rn, r)
	}
}

// constraints applies the pseudo-measurements on their own cadence:
// ZUPT while stationary, NHC while moving.
func (rn *runner) constraints(det *Detector, now time.Time) {
	if det.Stationary(now) {
		if now.Sub(rn.lastZUPT) >= rn.cfg.ZUPTInterval {
			rn.lastZUPT = now
			rn.observe(rn.f.ApplyZUPT())
		}
		return
	}
	if now.Sub(rn.lastNHC) >= rn.cfg.NHCInterval {
		rn.lastNHC = now
		rn.observe(rn.f.ApplyNHC())
	}
}

func (rn *runner) observe(out filter.Outcome) {
	rn.monitor.Record(out)
	if out.Status == filter.Failed {
		slog.Warn("Update failed", "filter", rn.f.Name(), "kind", out.Kind, "error", out.Err)
	}
}

func (rn *runner) publish(at time.Time) {
	p := rn.f.State()
	p.Time = at
	rn.snapshot.Store(&p)
	rn.cache.Set(p.Filter, &p, ttlcache.DefaultTTL)
	events.PoseUpdateFeed.Send(&p)
}

// matchRoad snaps the primary variant's fused pose onto the road
// network. Runs on the primary runner's goroutine.
func (e *Engine) matchRoad(rn *runner, r sensor.Reading) {
	p := rn.f.State()
	idx, err := e.tiles.IndexFor(e.ctx, p.Lat, p.Lon)
	if err != nil {
		slog.Warn("Road tile unavailable", "error", err)
		return
	}
	cands := idx.NearestSegments(orb.Point{p.Lon, p.Lat}, e.matcher.MaxDistance(), 10)
	m := e.matcher.SelectRoad(p.Lat, p.Lon, p.HeadingRad(), cands)
	if m == nil {
		e.lastMatch.Store(nil)
		return
	}
	e.lastMatch.Store(m)
	events.RoadMatchFeed.Send(m)
}

// Snapshot returns the latest pose for a variant, nil before the first
// publish or for an unknown name.
func (e *Engine) Snapshot(name string) *pose.Pose {
	for _, rn := range e.runners {
		if rn.f.Name() == name {
			return rn.snapshot.Load()
		}
	}
	return nil
}

// Snapshots returns the latest pose per variant, omitting variants that
// have not published yet.
func (e *Engine) Snapshots() []*pose.Pose {
	out := make([]*pose.Pose, 0, len(e.runners))
	for _, rn := range e.runners {
		if p := rn.snapshot.Load(); p != nil {
			out = append(out, p)
		}
	}
	return out
}

// LastKnown returns a variant's pose even shortly after its stream went
// quiet, backed by a TTL cache.
func (e *Engine) LastKnown(name string) *pose.Pose {
	if item := e.lastKnown.Get(name); item != nil {
		return item.Value()
	}
	return e.Snapshot(name)
}

// LastMatch returns the most recent road association, nil when the
// matcher last found nothing.
func (e *Engine) LastMatch() *match.Match { return e.lastMatch.Load() }

// NIS returns the rolling consistency statistics for one variant.
func (e *Engine) NIS(name string) map[filter.UpdateKind]filter.NISStats {
	for _, rn := range e.runners {
		if rn.f.Name() == name {
			return rn.monitor.Stats()
		}
	}
	return nil
}

// Variants lists the filter names in registration order.
func (e *Engine) Variants() []string {
	out := make([]string, len(e.runners))
	for i, rn := range e.runners {
		out[i] = rn.f.Name()
	}
	return out
}

// Drops reports per-variant queue overflow totals.
func (e *Engine) Drops() map[string]uint64 {
	out := make(map[string]uint64, len(e.runners))
	for _, rn := range e.runners {
		out[rn.f.Name()] = rn.imu.Drops() + rn.gps.Drops() + rn.mag.Drops()
	}
	return out
}
