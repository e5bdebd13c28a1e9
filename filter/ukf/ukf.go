// Package ukf is the unscented pose variant: 2n+1 sigma points pushed
// through the same strapdown/measurement models as the EKF, no Jacobians.
// Roughly twice the per-step compute for better behavior through the
// quaternion nonlinearity.
package ukf

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

type UKF struct {
	cfg    *params.FilterConfig
	layout filter.Layout
	gate   *filter.Gate

	x *mat.VecDense
	P *mat.SymDense

	ltp *frame.LTP

	// Unscented transform weights.
	gamma float64
	wm0   float64
	wc0   float64
	wi    float64

	// lastSqrt is the most recent successful Cholesky factor, the first
	// fallback when the covariance drifts off positive definite.
	lastSqrt *mat.TriDense

	streaks    map[filter.UpdateKind]int
	degraded   bool
	configHash uint64
}

var _ filter.Filter = (*UKF)(nil)

func New(cfg *params.FilterConfig, ucfg *params.UKFConfig, gateCfg *params.GateConfig) *UKF {
	if cfg == nil {
		cfg = params.DefaultFilterConfig()
	}
	if ucfg == nil {
		ucfg = params.DefaultUKFConfig()
	}
	l := filter.Layout{ABAxes: cfg.AccelBiasAxes}
	x, P := filter.InitialState(l, cfg)

	n := float64(l.Dim())
	lambda := ucfg.Alpha*ucfg.Alpha*(n+ucfg.Kappa) - n
	hash, _ := hashstructure.Hash(cfg, hashstructure.FormatV2, nil)

	return &UKF{
		cfg:        cfg,
		layout:     l,
		gate:       filter.NewGate(gateCfg),
		x:          x,
		P:          P,
		gamma:      math.Sqrt(n + lambda),
		wm0:        lambda / (n + lambda),
		wc0:        lambda/(n+lambda) + (1 - ucfg.Alpha*ucfg.Alpha + ucfg.Beta),
		wi:         1 / (2 * (n + lambda)),
		streaks:    make(map[filter.UpdateKind]int),
		configHash: hash,
	}
}

func NewWithOrigin(cfg *params.FilterConfig, ucfg *params.UKFConfig, gateCfg *params.GateConfig, lat, lon, alt float64) *UKF {
	f := New(cfg, ucfg, gateCfg)
	f.ltp = frame.NewLTP(lat, lon, alt)
	return f
}

func (f *UKF) Name() string { return "ukf" }

func (f *UKF) WidenGate() { f.gate.Widen() }
func (f *UKF) ResetGate() { f.gate.Reset() }

// sigmaPoints generates 2n+1 points from the mean and a scaled Cholesky
// factor. Cholesky failure never panics: the last valid factor, or a
// conservative diagonal, substitutes with the degradation flag set.
func (f *UKF) sigmaPoints() *mat.Dense {
	n := f.layout.Dim()
	var chol mat.Cholesky
	var L *mat.TriDense
	if ok := chol.Factorize(f.P); ok {
		L = mat.NewTriDense(n, mat.Lower, nil)
		chol.LTo(L)
		f.lastSqrt = L
	} else if f.lastSqrt != nil {
		L = f.lastSqrt
		f.degraded = true
	} else {
		L = mat.NewTriDense(n, mat.Lower, nil)
		for i := 0; i < n; i++ {
			d := math.Abs(f.P.At(i, i))
			if d < 1e-9 {
				d = 1e-9
			}
			L.SetTri(i, i, math.Sqrt(d))
		}
		f.degraded = true
	}

	pts := mat.NewDense(n, 2*n+1, nil)
	for i := 0; i < n; i++ {
		pts.Set(i, 0, f.x.AtVec(i))
	}
	for c := 0; c < n; c++ {
		for i := 0; i < n; i++ {
			off := f.gamma * L.At(i, c)
			pts.Set(i, 1+c, f.x.AtVec(i)+off)
			pts.Set(i, 1+n+c, f.x.AtVec(i)-off)
		}
	}
	return pts
}

func (f *UKF) weight(c int) (wm, wc float64) {
	if c == 0 {
		return f.wm0, f.wc0
	}
	return f.wi, f.wi
}

func (f *UKF) Predict(accel, gyro [3]float64, dt float64) error {
	if err := filter.ValidateIMU(accel, gyro, dt); err != nil {
		return err
	}
	n := f.layout.Dim()
	pts := f.sigmaPoints()
	_, cols := pts.Dims()

	// Propagate every sigma point through the strapdown model.
	xMean := mat.NewVecDense(n, nil)
	col := mat.NewVecDense(n, nil)
	for c := 0; c < cols; c++ {
		col.CopyVec(pts.ColView(c))
		filter.Mechanize(f.layout, col, accel, gyro, f.cfg.GravityMag, dt, col)
		for i := 0; i < n; i++ {
			pts.Set(i, c, col.AtVec(i))
		}
		wm, _ := f.weight(c)
		xMean.AddScaledVec(xMean, wm, col)
	}
	// Barycentric quaternion mean, renormalized.
	f.layout.NormalizeQuat(xMean)

	cov := mat.NewDense(n, n, nil)
	diff := mat.NewVecDense(n, nil)
	outer := mat.NewDense(n, n, nil)
	for c := 0; c < cols; c++ {
		diff.SubVec(pts.ColView(c), xMean)
		outer.Outer(1, diff, diff)
		_, wc := f.weight(c)
		cov.Add(cov, scaled(outer, wc))
	}
	Q := filter.ProcessNoise(f.layout, f.cfg, dt)
	cov.Add(cov, Q)

	f.x.CopyVec(xMean)
	filter.Symmetrize(f.P, cov)

	if !f.finite() {
		f.recoverCovariance()
		return fmt.Errorf("%w: sigma propagation produced non-finite values", filter.ErrNumerical)
	}
	return nil
}

func (f *UKF) UpdateGPSPosition(o filter.GPSPosition) filter.Outcome {
	kind := filter.UpdateGPSPosition
	if o.Accuracy <= 0 || !common.IsFinite(o.Lat, o.Lon, o.Alt, o.Accuracy) ||
		o.Lat < -90 || o.Lat > 90 || o.Lon < -180 || o.Lon > 180 {
		return filter.Outcome{Kind: kind, Status: filter.Invalid, DOF: kind.DOF(), Err: filter.ErrBadInput}
	}
	if f.ltp == nil {
		f.ltp = frame.NewLTP(o.Lat, o.Lon, o.Alt)
	}
	acc := math.Max(o.Accuracy, f.cfg.MinGPSAccuracy)
	enu := f.ltp.ToENU(o.Lat, o.Lon, o.Alt)
	z := mat.NewVecDense(3, enu[:])
	R := filter.MeasurementNoise(kind, f.cfg, acc)
	return f.update(kind, z, R, o.Force)
}

func (f *UKF) UpdateGPSVelocity(o filter.GPSVelocity) filter.Outcome {
	kind := filter.UpdateGPSVelocity
	if o.Accuracy <= 0 || !common.IsFinite(o.East, o.North, o.Up, o.Accuracy) {
		return filter.Outcome{Kind: kind, Status: filter.Invalid, DOF: kind.DOF(), Err: filter.ErrBadInput}
	}
	z := mat.NewVecDense(3, []float64{o.East, o.North, o.Up})
	R := filter.MeasurementNoise(kind, f.cfg, o.Accuracy)
	return f.update(kind, z, R, o.Force)
}

func (f *UKF) UpdateHeading(o filter.Heading) filter.Outcome {
	kind := filter.UpdateHeading
	if !common.IsFinite(o.Radians, o.Sigma) || o.Sigma < 0 {
		return filter.Outcome{Kind: kind, Status: filter.Invalid, DOF: kind.DOF(), Err: filter.ErrBadInput}
	}
	z := mat.NewVecDense(1, []float64{common.WrapAngle(o.Radians)})
	R := filter.MeasurementNoise(kind, f.cfg, o.Sigma)
	return f.update(kind, z, R, o.Force)
}

func (f *UKF) ApplyZUPT() filter.Outcome {
	kind := filter.UpdateZUPT
	z := mat.NewVecDense(3, nil)
	return f.update(kind, z, filter.MeasurementNoise(kind, f.cfg, 0), false)
}

func (f *UKF) ApplyNHC() filter.Outcome {
	kind := filter.UpdateNHC
	if !f.cfg.NHCEnabled {
		return filter.Outcome{Kind: kind, Status: filter.Skipped, DOF: kind.DOF()}
	}
	z := mat.NewVecDense(2, nil)
	return f.update(kind, z, filter.MeasurementNoise(kind, f.cfg, 0), false)
}

// update pushes the current sigma set through the measurement model and
// applies the gated unscented correction.
func (f *UKF) update(kind filter.UpdateKind, z *mat.VecDense, R *mat.SymDense, force bool) filter.Outcome {
	dof := kind.DOF()
	n := f.layout.Dim()
	pts := f.sigmaPoints()
	_, cols := pts.Dims()

	Y := mat.NewDense(dof, cols, nil)
	yMean := mat.NewVecDense(dof, nil)
	ycol := mat.NewVecDense(dof, nil)
	for c := 0; c < cols; c++ {
		filter.Measure(kind, f.layout, pts.ColView(c), ycol)
		for i := 0; i < dof; i++ {
			Y.Set(i, c, ycol.AtVec(i))
		}
		wm, _ := f.weight(c)
		yMean.AddScaledVec(yMean, wm, ycol)
	}

	Pyy := mat.NewDense(dof, dof, nil)
	Pxy := mat.NewDense(n, dof, nil)
	xdiff := mat.NewVecDense(n, nil)
	ydiff := mat.NewVecDense(dof, nil)
	outerYY := mat.NewDense(dof, dof, nil)
	outerXY := mat.NewDense(n, dof, nil)
	for c := 0; c < cols; c++ {
		xdiff.SubVec(pts.ColView(c), f.x)
		ydiff.SubVec(Y.ColView(c), yMean)
		if kind == filter.UpdateHeading {
			ydiff.SetVec(0, common.WrapAngle(ydiff.AtVec(0)))
		}
		_, wc := f.weight(c)
		outerYY.Outer(1, ydiff, ydiff)
		Pyy.Add(Pyy, scaled(outerYY, wc))
		outerXY.Outer(1, xdiff, ydiff)
		Pxy.Add(Pxy, scaled(outerXY, wc))
	}

	S := mat.NewSymDense(dof, nil)
	for i := 0; i < dof; i++ {
		for j := i; j < dof; j++ {
			S.SetSym(i, j, 0.5*(Pyy.At(i, j)+Pyy.At(j, i))+R.At(i, j))
		}
	}

	y := mat.NewVecDense(dof, nil)
	y.SubVec(z, yMean)
	if kind == filter.UpdateHeading {
		y.SetVec(0, common.WrapAngle(y.AtVec(0)))
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(S); !ok {
		f.recoverCovariance()
		return filter.Outcome{Kind: kind, Status: filter.Failed, DOF: dof, Streak: f.streaks[kind],
			Err: fmt.Errorf("%w: innovation covariance not positive definite", filter.ErrNumerical)}
	}
	sy := mat.NewVecDense(dof, nil)
	if err := chol.SolveVecTo(sy, y); err != nil {
		f.recoverCovariance()
		return filter.Outcome{Kind: kind, Status: filter.Failed, DOF: dof, Streak: f.streaks[kind],
			Err: fmt.Errorf("%w: %v", filter.ErrNumerical, err)}
	}
	nis := mat.Dot(y, sy)

	status := filter.Accepted
	if force {
		status = filter.Forced
	} else if nis > f.gate.Threshold(dof) {
		f.streaks[kind]++
		return filter.Outcome{Kind: kind, Status: filter.Rejected, NIS: nis, DOF: dof, Streak: f.streaks[kind]}
	}

	var Sinv mat.SymDense
	if err := chol.InverseTo(&Sinv); err != nil {
		f.recoverCovariance()
		return filter.Outcome{Kind: kind, Status: filter.Failed, DOF: dof, Streak: f.streaks[kind],
			Err: fmt.Errorf("%w: %v", filter.ErrNumerical, err)}
	}
	K := mat.NewDense(n, dof, nil)
	K.Mul(Pxy, &Sinv)

	corr := mat.NewVecDense(n, nil)
	corr.MulVec(K, y)
	f.x.AddVec(f.x, corr)
	f.layout.NormalizeQuat(f.x)

	// P = P - K S K^T
	KSK := mat.NewDense(n, n, nil)
	KSK.Product(K, S, K.T())
	Pnew := mat.NewDense(n, n, nil)
	Pnew.Sub(denseOf(f.P), KSK)
	filter.Symmetrize(f.P, Pnew)

	if !f.finite() {
		f.recoverCovariance()
		return filter.Outcome{Kind: kind, Status: filter.Failed, DOF: dof, Streak: f.streaks[kind],
			Err: fmt.Errorf("%w: correction produced non-finite values", filter.ErrNumerical)}
	}

	f.streaks[kind] = 0
	f.degraded = false
	return filter.Outcome{Kind: kind, Status: status, NIS: nis, DOF: dof}
}

func (f *UKF) finite() bool {
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

func (f *UKF) recoverCovariance() {
	fresh, P := filter.InitialState(f.layout, f.cfg)
	for i := 0; i < f.layout.Dim(); i++ {
		if !common.IsFinite(f.x.AtVec(i)) {
			f.x.SetVec(i, fresh.AtVec(i))
		}
	}
	f.layout.NormalizeQuat(f.x)
	f.P.CopySym(P)
	f.lastSqrt = nil
	f.degraded = true
}

func (f *UKF) State() pose.Pose {
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
func (f *UKF) Covariance() *mat.SymDense {
	c := mat.NewSymDense(f.layout.Dim(), nil)
	c.CopySym(f.P)
	return c
}

func scaled(m *mat.Dense, s float64) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	out.Scale(s, m)
	return out
}

func denseOf(s *mat.SymDense) *mat.Dense {
	n := s.SymmetricDim()
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			d.Set(i, j, s.At(i, j))
		}
	}
	return d
}
