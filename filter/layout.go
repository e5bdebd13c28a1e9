package filter

import "gonum.org/v1/gonum/mat"

// Layout maps state-vector offsets. Only the accelerometer bias block is
// variable: the reference design carries fewer than three axes, folding
// the vertical bias into gravity, so the axis count is configuration.
type Layout struct {
	ABAxes int // accelerometer bias axes, 1..3
}

const (
	offPos  = 0
	offVel  = 3
	offQuat = 6
	offGB   = 10
	offAB   = 13
)

func (l Layout) Dim() int { return offAB + l.ABAxes }

func (l Layout) Pos(x mat.Vector) [3]float64 {
	return [3]float64{x.AtVec(offPos), x.AtVec(offPos + 1), x.AtVec(offPos + 2)}
}

func (l Layout) Vel(x mat.Vector) [3]float64 {
	return [3]float64{x.AtVec(offVel), x.AtVec(offVel + 1), x.AtVec(offVel + 2)}
}

func (l Layout) Quat(x mat.Vector) [4]float64 {
	return [4]float64{x.AtVec(offQuat), x.AtVec(offQuat + 1), x.AtVec(offQuat + 2), x.AtVec(offQuat + 3)}
}

func (l Layout) GyroBias(x mat.Vector) [3]float64 {
	return [3]float64{x.AtVec(offGB), x.AtVec(offGB + 1), x.AtVec(offGB + 2)}
}

// AccelBias returns the bias padded to three axes; axes beyond the
// configured count read zero.
func (l Layout) AccelBias(x mat.Vector) [3]float64 {
	var ab [3]float64
	for i := 0; i < l.ABAxes; i++ {
		ab[i] = x.AtVec(offAB + i)
	}
	return ab
}

func (l Layout) SetQuat(x *mat.VecDense, q [4]float64) {
	for i := 0; i < 4; i++ {
		x.SetVec(offQuat+i, q[i])
	}
}

// NormalizeQuat renormalizes the quaternion block in place. Collapsed
// quaternions (norm ~ 0) reset to identity rather than dividing by zero.
func (l Layout) NormalizeQuat(x *mat.VecDense) {
	q := l.Quat(x)
	l.SetQuat(x, qNormalize(q))
}
