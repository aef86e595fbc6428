// Package quadratic provides the quadratic objective 1/2 x'Qx + q'x and
// the Lagrangian dual relaxation of its box-constrained variant.
package quadratic

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/descent/internal/optimization"
)

// Quadratic is the objective f(x) = 1/2 x'Qx + q'x with immutable
// symmetric Q. Its optimum, when Q is non-singular, is the solution of
// Qx = -q, computed lazily and cached.
type Quadratic struct {
	qmat *mat.SymDense
	q    []float64

	xStar  []float64
	fStar  float64
	solved bool
}

// New validates the dimensions and builds the objective.
func New(Q *mat.SymDense, q []float64) (*Quadratic, error) {
	if Q == nil {
		return nil, optimization.NewError("Q must not be nil").WithComponent("quadratic")
	}
	n := Q.SymmetricDim()
	if n == 0 {
		return nil, optimization.NewError("Q must not be empty").WithComponent("quadratic")
	}
	if len(q) != n {
		return nil, optimization.NewErrorf("dimension mismatch: Q is %dx%d but q has length %d",
			n, n, len(q)).WithComponent("quadratic")
	}
	qc := mat.NewSymDense(n, nil)
	qc.CopySym(Q)
	return &Quadratic{
		qmat: qc,
		q:    append([]float64(nil), q...),
	}, nil
}

// Dim returns the dimension of the domain.
func (f *Quadratic) Dim() int { return len(f.q) }

// Q returns the coefficient matrix. Callers must not mutate it.
func (f *Quadratic) Q() *mat.SymDense { return f.qmat }

// LinearTerm returns the linear coefficient vector. Callers must not
// mutate it.
func (f *Quadratic) LinearTerm() []float64 { return f.q }

func (f *Quadratic) Function(x []float64) float64 {
	n := len(f.q)
	xv := mat.NewVecDense(n, x)
	qx := mat.NewVecDense(n, nil)
	qx.MulVec(f.qmat, xv)
	return 0.5*mat.Dot(xv, qx) + dot(f.q, x)
}

func (f *Quadratic) Jacobian(x []float64) []float64 {
	n := len(f.q)
	qx := mat.NewVecDense(n, nil)
	qx.MulVec(f.qmat, mat.NewVecDense(n, x))
	g := make([]float64, n)
	for i := range g {
		g[i] = qx.AtVec(i) + f.q[i]
	}
	return g
}

// Start returns the origin.
func (f *Quadratic) Start() []float64 { return make([]float64, len(f.q)) }

// XStar returns the stationary point Q^-1 (-q), or nil when Q is
// singular.
func (f *Quadratic) XStar() []float64 {
	f.solve()
	return f.xStar
}

// FStar returns the value at the stationary point, or -Inf when Q is
// singular.
func (f *Quadratic) FStar() float64 {
	f.solve()
	return f.fStar
}

func (f *Quadratic) solve() {
	if f.solved {
		return
	}
	f.solved = true
	f.fStar = math.Inf(-1)

	n := len(f.q)
	rhs := mat.NewVecDense(n, nil)
	for i, v := range f.q {
		rhs.SetVec(i, -v)
	}
	var lu mat.LU
	lu.Factorize(f.qmat)
	x := mat.NewVecDense(n, nil)
	if err := lu.SolveVecTo(x, false, rhs); err != nil {
		return
	}
	f.xStar = make([]float64, n)
	copy(f.xStar, x.RawVector().Data)
	f.fStar = f.Function(f.xStar)
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
