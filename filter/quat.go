package filter

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Quaternions are [4]float64, w-first, Hamilton convention, rotating
// body-frame vectors into the navigation frame.

func qNorm(q [4]float64) float64 {
	return math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
}

func qNormalize(q [4]float64) [4]float64 {
	n := qNorm(q)
	if n < 1e-12 {
		return [4]float64{1, 0, 0, 0}
	}
	return [4]float64{q[0] / n, q[1] / n, q[2] / n, q[3] / n}
}

func qMul(a, b [4]float64) [4]float64 {
	return [4]float64{
		a[0]*b[0] - a[1]*b[1] - a[2]*b[2] - a[3]*b[3],
		a[0]*b[1] + a[1]*b[0] + a[2]*b[3] - a[3]*b[2],
		a[0]*b[2] - a[1]*b[3] + a[2]*b[0] + a[3]*b[1],
		a[0]*b[3] + a[1]*b[2] - a[2]*b[1] + a[3]*b[0],
	}
}

func qConj(q [4]float64) [4]float64 {
	return [4]float64{q[0], -q[1], -q[2], -q[3]}
}

// qIntegrate advances q by a constant body rate w over dt. Exact
// axis-angle increment; degenerates gracefully for tiny rotations.
func qIntegrate(q [4]float64, w [3]float64, dt float64) [4]float64 {
	theta := math.Sqrt(w[0]*w[0]+w[1]*w[1]+w[2]*w[2]) * dt
	var dq [4]float64
	if theta < 1e-10 {
		dq = [4]float64{1, 0.5 * w[0] * dt, 0.5 * w[1] * dt, 0.5 * w[2] * dt}
	} else {
		half := theta / 2
		s := math.Sin(half) / (theta / dt)
		dq = [4]float64{math.Cos(half), w[0] * s, w[1] * s, w[2] * s}
	}
	return qNormalize(qMul(q, dq))
}

// qRotate rotates body vector v into the navigation frame.
func qRotate(q [4]float64, v [3]float64) [3]float64 {
	w, x, y, z := q[0], q[1], q[2], q[3]
	// v + 2w(qv x v) + 2 qv x (qv x v)
	cx := y*v[2] - z*v[1]
	cy := z*v[0] - x*v[2]
	cz := x*v[1] - y*v[0]
	return [3]float64{
		v[0] + 2*(w*cx+y*cz-z*cy),
		v[1] + 2*(w*cy+z*cx-x*cz),
		v[2] + 2*(w*cz+x*cy-y*cx),
	}
}

// qRotateInv rotates navigation vector v into the body frame.
func qRotateInv(q [4]float64, v [3]float64) [3]float64 {
	return qRotate(qConj(q), v)
}

// qRotMat builds the 3x3 body-to-nav rotation matrix.
func qRotMat(q [4]float64) *mat.Dense {
	w, x, y, z := q[0], q[1], q[2], q[3]
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
}

// qYaw extracts rotation about the vertical, radians east of north.
func qYaw(q [4]float64) float64 {
	w, x, y, z := q[0], q[1], q[2], q[3]
	return math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
}

// qYawJacobian is the 1x4 derivative of qYaw with respect to q.
func qYawJacobian(q [4]float64) [4]float64 {
	w, x, y, z := q[0], q[1], q[2], q[3]
	s := 2 * (w*z + x*y)
	c := 1 - 2*(y*y+z*z)
	den := s*s + c*c
	if den < 1e-12 {
		return [4]float64{}
	}
	// d(atan2(s,c)) = (c ds - s dc) / (s^2 + c^2)
	ds := [4]float64{2 * z, 2 * y, 2 * x, 2 * w}
	dc := [4]float64{0, 0, -4 * y, -4 * z}
	var out [4]float64
	for i := 0; i < 4; i++ {
		out[i] = (c*ds[i] - s*dc[i]) / den
	}
	return out
}

// jacRotateWrtQ is the 3x4 derivative of R(q)v with respect to q
// (Sola, "Quaternion kinematics for the error-state Kalman filter",
// eq. 174).
func jacRotateWrtQ(q [4]float64, v [3]float64) *mat.Dense {
	w := q[0]
	qv := [3]float64{q[1], q[2], q[3]}
	cr := cross(qv, v)
	dot := qv[0]*v[0] + qv[1]*v[1] + qv[2]*v[2]

	j := mat.NewDense(3, 4, nil)
	for i := 0; i < 3; i++ {
		j.Set(i, 0, 2*(w*v[i]+cr[i]))
	}
	vSkew := skew(v)
	for i := 0; i < 3; i++ {
		for k := 0; k < 3; k++ {
			val := qv[i]*v[k] - v[i]*qv[k] - w*vSkew[i][k]
			if i == k {
				val += dot
			}
			j.Set(i, k+1, 2*val)
		}
	}
	return j
}

// jacRotateInvWrtQ is the 3x4 derivative of R(q)^T v with respect to q,
// via R(q)^T = R(q*) and the conjugation chain rule.
func jacRotateInvWrtQ(q [4]float64, v [3]float64) *mat.Dense {
	j := jacRotateWrtQ(qConj(q), v)
	for i := 0; i < 3; i++ {
		for k := 1; k < 4; k++ {
			j.Set(i, k, -j.At(i, k))
		}
	}
	return j
}

// qOmega builds the 4x4 rate matrix with qdot = 0.5 * Omega(w) * q.
func qOmega(w [3]float64) *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		0, -w[0], -w[1], -w[2],
		w[0], 0, w[2], -w[1],
		w[1], -w[2], 0, w[0],
		w[2], w[1], -w[0], 0,
	})
}

// qXi builds the 4x3 matrix with qdot = 0.5 * Xi(q) * w.
func qXi(q [4]float64) *mat.Dense {
	w, x, y, z := q[0], q[1], q[2], q[3]
	return mat.NewDense(4, 3, []float64{
		-x, -y, -z,
		w, -z, y,
		z, w, -x,
		-y, x, w,
	})
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func skew(v [3]float64) [3][3]float64 {
	return [3][3]float64{
		{0, -v[2], v[1]},
		{v[2], 0, -v[0]},
		{-v[1], v[0], 0},
	}
}
