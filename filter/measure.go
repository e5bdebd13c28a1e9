package filter

import (
	"github.com/rovermap/insd/params"
	"gonum.org/v1/gonum/mat"
)

// Measure evaluates the nonlinear measurement model h(x) for an update
// type. Both the EKF (for innovations) and the UKF (per sigma point)
// share these.
func Measure(kind UpdateKind, l Layout, x mat.Vector, dst *mat.VecDense) {
	switch kind {
	case UpdateGPSPosition:
		p := l.Pos(x)
		for i := 0; i < 3; i++ {
			dst.SetVec(i, p[i])
		}
	case UpdateGPSVelocity, UpdateZUPT:
		v := l.Vel(x)
		for i := 0; i < 3; i++ {
			dst.SetVec(i, v[i])
		}
	case UpdateHeading:
		dst.SetVec(0, qYaw(l.Quat(x)))
	case UpdateNHC:
		// Body-frame velocity; the constraint observes the lateral (y)
		// and vertical (z) components as near zero.
		vb := qRotateInv(l.Quat(x), l.Vel(x))
		dst.SetVec(0, vb[1])
		dst.SetVec(1, vb[2])
	}
}

// MeasureJacobian builds H = dh/dx at x for an update type.
func MeasureJacobian(kind UpdateKind, l Layout, x mat.Vector) *mat.Dense {
	n := l.Dim()
	switch kind {
	case UpdateGPSPosition:
		H := mat.NewDense(3, n, nil)
		for i := 0; i < 3; i++ {
			H.Set(i, offPos+i, 1)
		}
		return H
	case UpdateGPSVelocity, UpdateZUPT:
		H := mat.NewDense(3, n, nil)
		for i := 0; i < 3; i++ {
			H.Set(i, offVel+i, 1)
		}
		return H
	case UpdateHeading:
		H := mat.NewDense(1, n, nil)
		j := qYawJacobian(l.Quat(x))
		for k := 0; k < 4; k++ {
			H.Set(0, offQuat+k, j[k])
		}
		return H
	case UpdateNHC:
		H := mat.NewDense(2, n, nil)
		q := l.Quat(x)
		v := l.Vel(x)
		// d(R^T v)/dv: rows y and z of R^T, i.e. columns of R.
		R := qRotMat(q)
		for k := 0; k < 3; k++ {
			H.Set(0, offVel+k, R.At(k, 1))
			H.Set(1, offVel+k, R.At(k, 2))
		}
		dq := jacRotateInvWrtQ(q, v)
		for k := 0; k < 4; k++ {
			H.Set(0, offQuat+k, dq.At(1, k))
			H.Set(1, offQuat+k, dq.At(2, k))
		}
		return H
	}
	return mat.NewDense(1, n, nil)
}

// MeasurementNoise builds R for an update type. GPS accuracies come from
// the receiver per fix; the pseudo-measurements use configured sigmas.
// The vertical GPS channel is derated: handheld receivers report
// horizontal accuracy only.
func MeasurementNoise(kind UpdateKind, cfg *params.FilterConfig, accuracy float64) *mat.SymDense {
	switch kind {
	case UpdateGPSPosition:
		h := accuracy * accuracy
		R := mat.NewSymDense(3, nil)
		R.SetSym(0, 0, h)
		R.SetSym(1, 1, h)
		R.SetSym(2, 2, 4*h)
		return R
	case UpdateGPSVelocity:
		v := accuracy * accuracy
		R := mat.NewSymDense(3, nil)
		for i := 0; i < 3; i++ {
			R.SetSym(i, i, v)
		}
		return R
	case UpdateZUPT:
		s := cfg.ZUPTSigma * cfg.ZUPTSigma
		R := mat.NewSymDense(3, nil)
		for i := 0; i < 3; i++ {
			R.SetSym(i, i, s)
		}
		return R
	case UpdateNHC:
		s := cfg.NHCSigma * cfg.NHCSigma
		R := mat.NewSymDense(2, nil)
		R.SetSym(0, 0, s)
		R.SetSym(1, 1, s)
		return R
	case UpdateHeading:
		s := accuracy
		if s <= 0 {
			s = cfg.MagHeadingSigma
		}
		R := mat.NewSymDense(1, nil)
		R.SetSym(0, 0, s*s)
		return R
	}
	return mat.NewSymDense(1, nil)
}
