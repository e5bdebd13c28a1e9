package filter

import (
	"fmt"

	"github.com/rovermap/insd/common"
	"github.com/rovermap/insd/params"
	"gonum.org/v1/gonum/mat"
)

// ValidateIMU rejects garbage IMU input before it can reach the linear
// algebra. Clipping-range bounds, not statistical ones.
func ValidateIMU(accel, gyro [3]float64, dt float64) error {
	if dt <= 0 || dt > 10 {
		return fmt.Errorf("%w: dt=%g", ErrBadInput, dt)
	}
	if !common.IsFinite(accel[0], accel[1], accel[2], gyro[0], gyro[1], gyro[2]) {
		return fmt.Errorf("%w: non-finite imu sample", ErrBadInput)
	}
	for _, a := range accel {
		if a < -common.MaxPlausibleAccel || a > common.MaxPlausibleAccel {
			return fmt.Errorf("%w: accel %g out of range", ErrBadInput, a)
		}
	}
	for _, g := range gyro {
		if g < -common.MaxPlausibleGyro || g > common.MaxPlausibleGyro {
			return fmt.Errorf("%w: gyro %g out of range", ErrBadInput, g)
		}
	}
	return nil
}

// Mechanize runs one strapdown step: integrate body rate into the
// quaternion, rotate bias-corrected specific force into the navigation
// frame, remove gravity, integrate to velocity and position. dst may
// alias x.
func Mechanize(l Layout, x mat.Vector, accel, gyro [3]float64, gravity, dt float64, dst *mat.VecDense) {
	q := l.Quat(x)
	gb := l.GyroBias(x)
	ab := l.AccelBias(x)
	vel := l.Vel(x)
	pos := l.Pos(x)

	w := [3]float64{gyro[0] - gb[0], gyro[1] - gb[1], gyro[2] - gb[2]}
	f := [3]float64{accel[0] - ab[0], accel[1] - ab[1], accel[2] - ab[2]}

	// Specific force in nav frame, gravity removed (ENU, z up).
	fNav := qRotate(q, f)
	a := [3]float64{fNav[0], fNav[1], fNav[2] - gravity}

	qNext := qIntegrate(q, w, dt)

	if dst != x {
		dst.CopyVec(x)
	}
	for i := 0; i < 3; i++ {
		dst.SetVec(offPos+i, pos[i]+vel[i]*dt+0.5*a[i]*dt*dt)
		dst.SetVec(offVel+i, vel[i]+a[i]*dt)
	}
	l.SetQuat(dst, qNext)
	// Biases are random walks; the deterministic part is identity.
}

// MechanizeJacobian linearizes Mechanize around x for the EKF covariance
// propagation. First-order blocks; position-through-attitude second-order
// terms are dropped as usual.
func MechanizeJacobian(l Layout, x mat.Vector, accel, gyro [3]float64, dt float64) *mat.Dense {
	n := l.Dim()
	q := l.Quat(x)
	gb := l.GyroBias(x)
	ab := l.AccelBias(x)

	w := [3]float64{gyro[0] - gb[0], gyro[1] - gb[1], gyro[2] - gb[2]}
	f := [3]float64{accel[0] - ab[0], accel[1] - ab[1], accel[2] - ab[2]}

	F := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		F.Set(i, i, 1)
	}
	// dp/dv
	for i := 0; i < 3; i++ {
		F.Set(offPos+i, offVel+i, dt)
	}
	// dv/dq
	dvdq := jacRotateWrtQ(q, f)
	for i := 0; i < 3; i++ {
		for k := 0; k < 4; k++ {
			F.Set(offVel+i, offQuat+k, dvdq.At(i, k)*dt)
		}
	}
	// dv/dba: the bias enters negated through the body-to-nav rotation.
	R := qRotMat(q)
	for i := 0; i < 3; i++ {
		for k := 0; k < l.ABAxes; k++ {
			F.Set(offVel+i, offAB+k, -R.At(i, k)*dt)
		}
	}
	// dq/dq
	omega := qOmega(w)
	for i := 0; i < 4; i++ {
		for k := 0; k < 4; k++ {
			v := 0.5 * dt * omega.At(i, k)
			if i == k {
				v += 1
			}
			F.Set(offQuat+i, offQuat+k, v)
		}
	}
	// dq/dbg
	xi := qXi(q)
	for i := 0; i < 4; i++ {
		for k := 0; k < 3; k++ {
			F.Set(offQuat+i, offGB+k, -0.5*dt*xi.At(i, k))
		}
	}
	return F
}

// ProcessNoise builds Q*dt, block-diagonal, from the configured IMU noise
// densities.
func ProcessNoise(l Layout, cfg *params.FilterConfig, dt float64) *mat.SymDense {
	n := l.Dim()
	q := mat.NewSymDense(n, nil)
	set := func(off, count int, density float64) {
		v := density * density * dt
		for i := 0; i < count; i++ {
			q.SetSym(off+i, off+i, v)
		}
	}
	set(offPos, 3, cfg.PosNoise)
	set(offVel, 3, cfg.VelNoise)
	set(offQuat, 4, cfg.OrientNoise)
	set(offGB, 3, cfg.GyroBiasNoise)
	set(offAB, l.ABAxes, cfg.AccBiasNoise)
	return q
}

// InitialState builds the session-start mean and covariance: zero pose at
// the origin, identity orientation, conservative variances.
func InitialState(l Layout, cfg *params.FilterConfig) (*mat.VecDense, *mat.SymDense) {
	n := l.Dim()
	x := mat.NewVecDense(n, nil)
	x.SetVec(offQuat, 1) // identity quaternion

	P := mat.NewSymDense(n, nil)
	set := func(off, count int, sigma float64) {
		for i := 0; i < count; i++ {
			P.SetSym(off+i, off+i, sigma*sigma)
		}
	}
	set(offPos, 3, cfg.InitPosSigma)
	set(offVel, 3, cfg.InitVelSigma)
	set(offQuat, 4, cfg.InitOrientSigma)
	set(offGB, 3, cfg.InitGyroBiasSigma)
	set(offAB, l.ABAxes, cfg.InitAccBiasSigma)
	return x, P
}
