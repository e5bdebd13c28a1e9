// Package ekf is the extended Kalman filter pose variant: mean propagated
// through the strapdown model, covariance through its Jacobian, gated
// Joseph-form corrections.
package ekf

import (
	"fmt"
	"math"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/rovermap/insd/common"
	"github.com/rovermap/insd/filter"
	"github.com/rovermap/insd/geo/frame"
	"github.com/rovermap/insd/params"
	"github.com/rovermap/insd/types/pose"
	"gonum.org/v1/gonum/mat"
)

type EKF struct {
	cfg    *params.FilterConfig
	layout filter.Layout
	gate   *filter.Gate

	x *mat.VecDense
	P *mat.SymDense

	// ltp is the local tangent plane, anchored by the first accepted fix.
	ltp *frame.LTP

	streaks    map[filter.UpdateKind]int
	degraded   bool
	configHash uint64
}

var _ filter.Filter = (*EKF)(nil)

func New(cfg *params.FilterConfig, gateCfg *params.GateConfig) *EKF {
	if cfg == nil {
		cfg = params.DefaultFilterConfig()
	}
	l := filter.Layout{ABAxes: cfg.AccelBiasAxes}
	x, P := filter.InitialState(l, cfg)
	hash, _ := hashstructure.Hash(cfg, hashstructure.FormatV2, nil)
	return &EKF{
		cfg:        cfg,
		layout:     l,
		gate:       filter.NewGate(gateCfg),
		x:          x,
		P:          P,
		streaks:    make(map[filter.UpdateKind]int),
		configHash: hash,
	}
}

// NewWithOrigin anchors the local frame up front instead of at the first
// fix. Tests and replays with a known start use this.
func NewWithOrigin(cfg *params.FilterConfig, gateCfg *params.GateConfig, lat, lon, alt float64) *EKF {
	f := New(cfg, gateCfg)
	f.ltp = frame.NewLTP(lat, lon, alt)
	return f
}

func (f *EKF) Name() string { return "ekf" }

func (f *EKF) WidenGate() { f.gate.Widen() }
func (f *EKF) ResetGate() { f.gate.Reset() }

func (f *EKF) Predict(accel, gyro [3]float64, dt float64) error {
	if err := filter.ValidateIMU(accel, gyro, dt); err != nil {
		return err
	}

	// Jacobian linearizes around the pre-update state; build it before
	// mechanization mutates x.
	F := filter.MechanizeJacobian(f.layout, f.x, accel, gyro, dt)
	filter.Mechanize(f.layout, f.x, accel, gyro, f.cfg.GravityMag, dt, f.x)
	f.layout.NormalizeQuat(f.x)

	n := f.layout.Dim()
	FP := mat.NewDense(n, n, nil)
	FP.Product(F, f.P, F.T())
	Q := filter.ProcessNoise(f.layout, f.cfg, dt)
	FP.Add(FP, Q)
	filter.Symmetrize(f.P, FP)

	if !f.finite() {
		f.recoverCovariance()
		return fmt.Errorf("%w: propagation produced non-finite values", filter.ErrNumerical)
	}
	return nil
}

func (f *EKF) UpdateGPSPosition(o filter.GPSPosition) filter.Outcome {
	kind := filter.UpdateGPSPosition
	if o.Accuracy <= 0 || !common.IsFinite(o.Lat, o.Lon, o.Alt, o.Accuracy) ||
		o.Lat < -90 || o.Lat > 90 || o.Lon < -180 || o.Lon > 180 {
		return filter.Outcome{Kind: kind, Status: filter.Invalid, DOF: kind.DOF(), Err: filter.ErrBadInput}
	}
	if f.ltp == nil {
		// First fix anchors the local frame; the filter position is
		// already zero there, so this is a zero-innovation accept.
		f.ltp = frame.NewLTP(o.Lat, o.Lon, o.Alt)
	}
	acc := math.Max(o.Accuracy, f.cfg.MinGPSAccuracy)
	enu := f.ltp.ToENU(o.Lat, o.Lon, o.Alt)
	z := mat.NewVecDense(3, enu[:])
	R := filter.MeasurementNoise(kind, f.cfg, acc)
	return f.update(kind, z, R, o.Force)
}

func (f *EKF) UpdateGPSVelocity(o filter.GPSVelocity) filter.Outcome {
	kind := filter.UpdateGPSVelocity
	if o.Accuracy <= 0 || !common.IsFinite(o.East, o.North, o.Up, o.Accuracy) {
		return filter.Outcome{Kind: kind, Status: filter.Invalid, DOF: kind.DOF(), Err: filter.ErrBadInput}
	}
	z := mat.NewVecDense(3, []float64{o.East, o.North, o.Up})
	R := filter.MeasurementNoise(kind, f.cfg, o.Accuracy)
	return f.update(kind, z, R, o.Force)
}

func (f *EKF) UpdateHeading(o filter.Heading) filter.Outcome {
	kind := filter.UpdateHeading
	if !common.IsFinite(o.Radians, o.Sigma) || o.Sigma < 0 {
		return filter.Outcome{Kind: kind, Status: filter.Invalid, DOF: kind.DOF(), Err: filter.ErrBadInput}
	}
	z := mat.NewVecDense(1, []float64{common.WrapAngle(o.Radians)})
	R := filter.MeasurementNoise(kind, f.cfg, o.Sigma)
	return f.update(kind, z, R, o.Force)
}

func (f *EKF) ApplyZUPT() filter.Outcome {
	kind := filter.UpdateZUPT
	z := mat.NewVecDense(3, nil)
	R := filter.MeasurementNoise(kind, f.cfg, 0)
	return f.update(kind, z, R, false)
}

func (f *EKF) ApplyNHC() filter.Outcome {
	kind := filter.UpdateNHC
	if !f.cfg.NHCEnabled {
		return filter.Outcome{Kind: kind, Status: filter.Skipped, DOF: kind.DOF()}
	}
	z := mat.NewVecDense(2, nil)
	R := filter.MeasurementNoise(kind, f.cfg, 0)
	return f.update(kind, z, R, false)
}

// update is the shared gate-then-correct path.
func (f *EKF) update(kind filter.UpdateKind, z *mat.VecDense, R *mat.SymDense, force bool) filter.Outcome {
	dof := kind.DOF()

	hx := mat.NewVecDense(dof, nil)
	filter.Measure(kind, f.layout, f.x, hx)

	y := mat.NewVecDense(dof, nil)
	y.SubVec(z, hx)
	if kind == filter.UpdateHeading {
		y.SetVec(0, common.WrapAngle(y.AtVec(0)))
	}

	H := filter.MeasureJacobian(kind, f.layout, f.x)
	nis, K, err := filter.Innovation(f.P, H, R, y)
	if err != nil {
		// Numerical, not statistical: fall back to predict-only for this
		// cycle and flag degradation.
		f.recoverCovariance()
		return filter.Outcome{Kind: kind, Status: filter.Failed, DOF: dof, Streak: f.streaks[kind], Err: err}
	}

	status := filter.Accepted
	if force {
		status = filter.Forced
	} else if nis > f.gate.Threshold(dof) {
		f.streaks[kind]++
		return filter.Outcome{Kind: kind, Status: filter.Rejected, NIS: nis, DOF: dof, Streak: f.streaks[kind]}
	}

	corr := mat.NewVecDense(f.layout.Dim(), nil)
	corr.MulVec(K, y)
	f.x.AddVec(f.x, corr)
	f.layout.NormalizeQuat(f.x)
	filter.JosephUpdate(f.P, K, H, R)

	if !f.finite() {
		f.recoverCovariance()
		return filter.Outcome{Kind: kind, Status: filter.Failed, DOF: dof, Streak: f.streaks[kind],
			Err: fmt.Errorf("%w: correction produced non-finite values", filter.ErrNumerical)}
	}

	f.streaks[kind] = 0
	f.degraded = false
	return filter.Outcome{Kind: kind, Status: status, NIS: nis, DOF: dof}
}

// finite checks mean and covariance for NaN/Inf and negative variances.
func (f *EKF) finite() bool {
	n := f.layout.Dim()
	for i := 0; i < n; i++ {
		if !common.IsFinite(f.x.AtVec(i)) {
			return false
		}
		d := f.P.At(i, i)
		if !common.IsFinite(d) || d < 0 {
			return false
		}
	}
	return true
}

// recoverCovariance substitutes a conservative diagonal covariance and
// scrubs non-finite mean entries, flagging degradation. The filter keeps
// running rather than poisoning every later estimate.
func (f *EKF) recoverCovariance() {
	fresh, P := filter.InitialState(f.layout, f.cfg)
	for i := 0; i < f.layout.Dim(); i++ {
		if !common.IsFinite(f.x.AtVec(i)) {
			f.x.SetVec(i, fresh.AtVec(i))
		}
	}
	f.layout.NormalizeQuat(f.x)
	f.P.CopySym(P)
	f.degraded = true
}

func (f *EKF) State() pose.Pose {
	l := f.layout
	p := pose.Pose{
		Filter:     f.Name(),
		ConfigHash: f.configHash,
		Position:   l.Pos(f.x),
		Velocity:   l.Vel(f.x),
		Quat:       l.Quat(f.x),
		GyroBias:   l.GyroBias(f.x),
		Degraded:   f.degraded,
	}
	ab := l.AccelBias(f.x)
	p.AccelBias = append(p.AccelBias, ab[:f.cfg.AccelBiasAxes]...)

	if f.ltp != nil {
		p.Lat, p.Lon, p.Alt = f.ltp.ToGeodetic(p.Position[0], p.Position[1], p.Position[2])
	}
	for i := 0; i < 3; i++ {
		p.PosVar += f.P.At(i, i)
		p.VelVar += f.P.At(3+i, 3+i)
	}
	for i := 6; i < 10; i++ {
		p.OrientVar += f.P.At(i, i)
	}
	if len(f.streaks) > 0 {
		p.RejectionStreaks = make(map[string]int, len(f.streaks))
		for k, v := range f.streaks {
			if v > 0 {
				p.RejectionStreaks[string(k)] = v
			}
		}
	}
	return p
}

// Covariance exposes a copy of P for tests and tuning tools.
func (f *EKF) Covariance() *mat.SymDense {
	c := mat.NewSymDense(f.layout.Dim(), nil)
	c.CopySym(f.P)
	return c
}
