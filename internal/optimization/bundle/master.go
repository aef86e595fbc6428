package bundle

import (
	"fmt"
	"math"

	"github.com/hrautila/cvx"
	"github.com/hrautila/matrix"
)

// MasterSolver solves the stabilized master problem of one bundle
// iteration:
//
//	min  v + mu/2 ||d||^2
//	s.t. v >= consts[i] + grads[i]·(d + x)   for every bundle piece
//	     v >= fStar                          when cheat is true
//
// over the variables (d, v). Implementations report failure through the
// error; the bundle method translates it into a terminal error status.
type MasterSolver interface {
	Solve(mu float64, x []float64, grads [][]float64, consts []float64, fStar float64, cheat bool) (d []float64, v float64, err error)
}

// CvxMaster is the default MasterSolver, backed by the interior-point
// convex QP solver of the cvx package.
type CvxMaster struct {
	// MaxIter bounds the interior-point iterations per solve.
	MaxIter int
}

// NewCvxMaster returns a CvxMaster with a conventional iteration cap.
func NewCvxMaster() *CvxMaster {
	return &CvxMaster{MaxIter: 100}
}

// Solve implements MasterSolver. The problem is phrased in the standard
// QP form over z = (d, v):
//
//	min 1/2 z'Pz + c'z   s.t.  Gz <= h
//
// with P = diag(mu,...,mu,0), c = e_{n+1}, and one inequality row
// grads[i]·d - v <= -(consts[i] + grads[i]·x) per piece.
func (m *CvxMaster) Solve(mu float64, x []float64, grads [][]float64, consts []float64, fStar float64, cheat bool) ([]float64, float64, error) {
	n := len(x)
	k := len(grads)
	rows := k
	if cheat {
		rows++
	}

	P := matrix.FloatZeros(n+1, n+1)
	for i := 0; i < n; i++ {
		P.SetIndex(i*(n+2), mu) // (i,i) of an (n+1)x(n+1) matrix
	}
	c := matrix.FloatZeros(n+1, 1)
	c.SetIndex(n, 1.0)

	gtab := make([][]float64, rows)
	h := make([]float64, rows)
	for i := 0; i < k; i++ {
		row := make([]float64, n+1)
		rhs := -consts[i]
		for j := 0; j < n; j++ {
			row[j] = grads[i][j]
			rhs -= grads[i][j] * x[j]
		}
		row[n] = -1
		gtab[i] = row
		h[i] = rhs
	}
	if cheat {
		row := make([]float64, n+1)
		row[n] = -1
		gtab[k] = row
		h[k] = -fStar
	}

	G := matrix.FloatMatrixFromTable(gtab, matrix.RowOrder)
	hv := matrix.FloatVector(h)

	var opts cvx.SolverOptions
	opts.MaxIter = m.MaxIter
	opts.ShowProgress = false

	sol, err := cvx.Qp(P, c, G, hv, nil, nil, &opts, nil)
	if err != nil {
		return nil, 0, err
	}
	if sol == nil || sol.Status != cvx.Optimal {
		return nil, 0, fmt.Errorf("master problem not solved to optimality")
	}

	z := sol.Result.At("x")[0]
	d := make([]float64, n)
	for i := 0; i < n; i++ {
		d[i] = z.GetIndex(i)
	}
	v := z.GetIndex(n)
	if math.IsNaN(v) {
		return nil, 0, fmt.Errorf("master problem returned NaN")
	}
	return d, v, nil
}
