package filter

import (
	"fmt"
	"sync"

	"github.com/rovermap/insd/params"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Gate is the chi-squared innovation gate. Thresholds are quantiles of
// the chi-squared distribution at the configured confidence, per degrees
// of freedom; e.g. 11.34 for 3 DOF at 99%.
type Gate struct {
	cfg *params.GateConfig

	mu         sync.Mutex
	scale      float64
	thresholds map[int]float64
}

func NewGate(cfg *params.GateConfig) *Gate {
	if cfg == nil {
		cfg = params.DefaultGateConfig()
	}
	g := &Gate{
		cfg:        cfg,
		scale:      1,
		thresholds: make(map[int]float64, 4),
	}
	for dof := 1; dof <= 4; dof++ {
		g.thresholds[dof] = distuv.ChiSquared{K: float64(dof)}.Quantile(cfg.Confidence)
	}
	return g
}

// Threshold returns the current gate limit for a DOF, including any
// widening in effect.
func (g *Gate) Threshold(dof int) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.thresholds[dof]
	if !ok {
		t = distuv.ChiSquared{K: float64(dof)}.Quantile(g.cfg.Confidence)
		g.thresholds[dof] = t
	}
	return t * g.scale
}

// Widen relaxes the gate by the configured factor. Callers do this after
// a surfaced rejection run; Reset restores the tuned gate.
func (g *Gate) Widen() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scale *= g.cfg.WidenFactor
}

func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scale = 1
}

func (g *Gate) MaxRejectionRun() int {
	return g.cfg.MaxRejectionRun
}

// Innovation solves the gated-update linear algebra shared by the
// variants: S = H P H^T + R, NIS = y^T S^-1 y, K = P H^T S^-1.
// A Cholesky failure on S is a numerical failure, reported distinctly
// from statistical rejection.
func Innovation(P *mat.SymDense, H *mat.Dense, R *mat.SymDense, y *mat.VecDense) (nis float64, K *mat.Dense, err error) {
	m, n := H.Dims()

	PHt := mat.NewDense(n, m, nil)
	PHt.Mul(P, H.T())

	Sd := mat.NewDense(m, m, nil)
	Sd.Mul(H, PHt)
	S := mat.NewSymDense(m, nil)
	for i := 0; i < m; i++ {
		for j := i; j < m; j++ {
			S.SetSym(i, j, 0.5*(Sd.At(i, j)+Sd.At(j, i))+R.At(i, j))
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(S); !ok {
		return 0, nil, fmt.Errorf("%w: innovation covariance not positive definite", ErrNumerical)
	}

	sy := mat.NewVecDense(m, nil)
	if err := chol.SolveVecTo(sy, y); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrNumerical, err)
	}
	nis = mat.Dot(y, sy)

	var Sinv mat.SymDense
	if err := chol.InverseTo(&Sinv); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrNumerical, err)
	}
	K = mat.NewDense(n, m, nil)
	K.Mul(PHt, &Sinv)
	return nis, K, nil
}

// JosephUpdate applies the numerically stable covariance correction
// P = (I-KH) P (I-KH)^T + K R K^T, then symmetrizes.
func JosephUpdate(P *mat.SymDense, K, H *mat.Dense, R *mat.SymDense) {
	n, _ := K.Dims()

	A := mat.NewDense(n, n, nil)
	A.Mul(K, H)
	A.Scale(-1, A)
	for i := 0; i < n; i++ {
		A.Set(i, i, A.At(i, i)+1)
	}

	APA := mat.NewDense(n, n, nil)
	APA.Product(A, P, A.T())

	KRK := mat.NewDense(n, n, nil)
	KRK.Product(K, R, K.T())

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := 0.5 * (APA.At(i, j) + APA.At(j, i) + KRK.At(i, j) + KRK.At(j, i))
			P.SetSym(i, j, v)
		}
	}
}

// Symmetrize folds a dense matrix into a SymDense, averaging the
// off-diagonal halves.
func Symmetrize(dst *mat.SymDense, src *mat.Dense) {
	n, _ := src.Dims()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			dst.SetSym(i, j, 0.5*(src.At(i, j)+src.At(j, i)))
		}
	}
}
