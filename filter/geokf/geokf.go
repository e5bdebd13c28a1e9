// Package geokf wraps the regnull geo Kalman filter as a GPS-only
// baseline variant. It ignores the IMU entirely, which makes it a useful
// sanity reference next to the strapdown variants: when ekf and geokf
// disagree wildly, the IMU handling is suspect.
package geokf

import (
	"fmt"
	"math"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	rkalman "github.com/regnull/kalman"
	"github.com/rovermap/insd/common"
	"github.com/rovermap/insd/filter"
	"github.com/rovermap/insd/geo/frame"
	"github.com/rovermap/insd/params"
	"github.com/rovermap/insd/types/pose"
)

type GeoKF struct {
	cfg        *params.FilterConfig
	configHash uint64

	gf  *rkalman.GeoFilter
	ltp *frame.LTP

	// pendingDT accumulates predict intervals between fixes; rkalman
	// observes in wall-clock steps, not per-IMU-sample.
	pendingDT float64

	lastPt    orb.Point
	lastAlt   float64
	haveFix   bool
	lastSpeed float64
	lastDir   float64
	degraded  bool
}

var _ filter.Filter = (*GeoKF)(nil)

func New(cfg *params.FilterConfig) *GeoKF {
	if cfg == nil {
		cfg = params.DefaultFilterConfig()
	}
	hash, _ := hashstructure.Hash(cfg, hashstructure.FormatV2, nil)
	return &GeoKF{cfg: cfg, configHash: hash}
}

func (f *GeoKF) Name() string { return "geokf" }

// The baseline has no chi-squared gate; these are no-ops kept for the
// shared contract.
func (f *GeoKF) WidenGate() {}
func (f *GeoKF) ResetGate() {}

// Predict only keeps time for the next observation interval.
func (f *GeoKF) Predict(accel, gyro [3]float64, dt float64) error {
	if err := filter.ValidateIMU(accel, gyro, dt); err != nil {
		return err
	}
	f.pendingDT += dt
	return nil
}

func (f *GeoKF) UpdateGPSPosition(o filter.GPSPosition) filter.Outcome {
	kind := filter.UpdateGPSPosition
	if o.Accuracy <= 0 || !common.IsFinite(o.Lat, o.Lon, o.Alt, o.Accuracy) ||
		o.Lat < -90 || o.Lat > 90 || o.Lon < -180 || o.Lon > 180 {
		return filter.Outcome{Kind: kind, Status: filter.Invalid, DOF: kind.DOF(), Err: filter.ErrBadInput}
	}
	pt := orb.Point{o.Lon, o.Lat}

	if !f.haveFix {
		if err := f.init(o); err != nil {
			return filter.Outcome{Kind: kind, Status: filter.Failed, DOF: kind.DOF(),
				Err: fmt.Errorf("%w: %v", filter.ErrNumerical, err)}
		}
		f.lastPt, f.lastAlt, f.haveFix = pt, o.Alt, true
		return filter.Outcome{Kind: kind, Status: filter.Accepted, DOF: kind.DOF()}
	}

	td := f.pendingDT
	if td < 1 {
		td = 1
	}
	speed := orbgeo.Distance(f.lastPt, pt) / td
	dir := orbgeo.Bearing(f.lastPt, pt)
	if dir < 0 {
		dir += 360
	}

	err := f.gf.Observe(td, &rkalman.GeoObserved{
		Lat:                o.Lat,
		Lng:                o.Lon,
		Altitude:           o.Alt,
		Speed:              speed,
		SpeedAccuracy:      math.Sqrt(math.Max(1, speed)),
		Direction:          dir,
		DirectionAccuracy:  10,
		HorizontalAccuracy: o.Accuracy,
		VerticalAccuracy:   2 * o.Accuracy,
	})
	if err != nil {
		f.degraded = true
		return filter.Outcome{Kind: kind, Status: filter.Failed, DOF: kind.DOF(),
			Err: fmt.Errorf("%w: %v", filter.ErrNumerical, err)}
	}

	f.pendingDT = 0
	f.lastPt, f.lastAlt = pt, o.Alt
	f.lastSpeed, f.lastDir = speed, dir
	f.degraded = false
	return filter.Outcome{Kind: kind, Status: filter.Accepted, DOF: kind.DOF()}
}

func (f *GeoKF) UpdateGPSVelocity(filter.GPSVelocity) filter.Outcome {
	return filter.Outcome{Kind: filter.UpdateGPSVelocity, Status: filter.Skipped}
}

func (f *GeoKF) UpdateHeading(filter.Heading) filter.Outcome {
	return filter.Outcome{Kind: filter.UpdateHeading, Status: filter.Skipped}
}

func (f *GeoKF) ApplyZUPT() filter.Outcome {
	return filter.Outcome{Kind: filter.UpdateZUPT, Status: filter.Skipped}
}

func (f *GeoKF) ApplyNHC() filter.Outcome {
	return filter.Outcome{Kind: filter.UpdateNHC, Status: filter.Skipped}
}

func (f *GeoKF) init(o filter.GPSPosition) error {
	f.ltp = frame.NewLTP(o.Lat, o.Lon, o.Alt)
	// Process noise guesses in the same spirit as the upstream examples:
	// expect walking-to-driving movement.
	gf, err := rkalman.NewGeoFilter(&rkalman.GeoProcessNoise{
		BaseLat:           o.Lat,
		DistancePerSecond: common.SpeedOfWalkingMax,
		SpeedPerSecond:    1,
	})
	if err != nil {
		return err
	}
	f.gf = gf
	return nil
}

func (f *GeoKF) State() pose.Pose {
	p := pose.Pose{
		Filter:     f.Name(),
		ConfigHash: f.configHash,
		Quat:       [4]float64{1, 0, 0, 0},
		Degraded:   f.degraded,
	}
	if !f.haveFix {
		return p
	}
	lat, lng, alt := f.lastPt.Lat(), f.lastPt.Lon(), f.lastAlt
	speed, dir := f.lastSpeed, f.lastDir
	if est := f.gf.Estimate(); est != nil {
		lat, lng = est.Lat, est.Lng
		speed = est.Speed
	}
	p.Lat, p.Lon, p.Alt = lat, lng, alt
	enu := f.ltp.ToENU(lat, lng, alt)
	p.Position = enu
	rad := dir * math.Pi / 180
	p.Velocity = [3]float64{speed * math.Sin(rad), speed * math.Cos(rad), 0}
	return p
}
