// Package losses provides sample objectives built from data: mean
// squared error, mean absolute error and cross-entropy over (X, y),
// each with selectable L1/L2 regularization. They are consumed like any
// other objective by the solvers.
package losses

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/descent/internal/optimization"
)

// Regularization selects the penalty added to a loss.
type Regularization string

const (
	// RegNone disables regularization.
	RegNone Regularization = "none"
	// RegL1 adds lmbda * sum |theta_i|.
	RegL1 Regularization = "l1"
	// RegL2 adds lmbda * sum theta_i^2.
	RegL2 Regularization = "l2"
)

// base carries the shared data and regularization of every loss.
type base struct {
	x     *mat.Dense
	y     []float64
	reg   Regularization
	lmbda float64
	m, p  int // samples, features
}

func newBase(X *mat.Dense, y []float64, reg Regularization, lmbda float64) (base, error) {
	if X == nil {
		return base{}, optimization.NewError("design matrix must not be nil").WithComponent("losses")
	}
	m, p := X.Dims()
	if m == 0 || p == 0 {
		return base{}, optimization.NewError("design matrix must not be empty").WithComponent("losses")
	}
	if len(y) != m {
		return base{}, optimization.NewErrorf("dimension mismatch: X has %d rows but y has length %d",
			m, len(y)).WithComponent("losses")
	}
	switch reg {
	case RegNone, RegL1, RegL2:
	default:
		return base{}, optimization.NewErrorf("unknown regularization type %q", reg).WithComponent("losses")
	}
	if lmbda < 0 {
		return base{}, optimization.NewErrorf("lmbda must be >= 0, got %g", lmbda).WithComponent("losses")
	}
	return base{x: mat.DenseCopyOf(X), y: append([]float64(nil), y...), reg: reg, lmbda: lmbda, m: m, p: p}, nil
}

// predict returns X*theta.
func (b *base) predict(theta []float64) []float64 {
	out := mat.NewVecDense(b.m, nil)
	out.MulVec(b.x, mat.NewVecDense(b.p, theta))
	return out.RawVector().Data
}

// penalty returns the regularization term.
func (b *base) penalty(theta []float64) float64 {
	switch b.reg {
	case RegL1:
		s := 0.0
		for _, t := range theta {
			s += math.Abs(t)
		}
		return b.lmbda * s
	case RegL2:
		s := 0.0
		for _, t := range theta {
			s += t * t
		}
		return b.lmbda * s
	}
	return 0
}

// penaltyGrad returns the gradient (subgradient for L1) of the penalty.
func (b *base) penaltyGrad(theta []float64) []float64 {
	g := make([]float64, len(theta))
	switch b.reg {
	case RegL1:
		for i, t := range theta {
			if t < 0 {
				g[i] = -b.lmbda
			} else {
				g[i] = b.lmbda
			}
		}
	case RegL2:
		for i, t := range theta {
			g[i] = 2 * b.lmbda * t
		}
	}
	return g
}

// residualGrad returns X'(r)/m scaled by c, the common backbone of the
// loss gradients.
func (b *base) residualGrad(r []float64, c float64) []float64 {
	out := mat.NewVecDense(b.p, nil)
	out.MulVec(b.x.T(), mat.NewVecDense(b.m, r))
	g := make([]float64, b.p)
	for i := range g {
		g[i] = c * out.AtVec(i) / float64(b.m)
	}
	return g
}

func (b *base) Start() []float64 { return make([]float64, b.p) }

func (b *base) FStar() float64 { return math.Inf(-1) }

func (b *base) XStar() []float64 { return nil }

// MeanSquaredError is the loss mean((X theta - y)^2) plus penalty/m.
// Its unregularized least-squares minimizer is exposed through XStar.
type MeanSquaredError struct {
	base
	xStar []float64
	tried bool
}

// NewMeanSquaredError builds the loss.
func NewMeanSquaredError(X *mat.Dense, y []float64, reg Regularization, lmbda float64) (*MeanSquaredError, error) {
	b, err := newBase(X, y, reg, lmbda)
	if err != nil {
		return nil, err
	}
	return &MeanSquaredError{base: b}, nil
}

func (f *MeanSquaredError) Function(theta []float64) float64 {
	pred := f.predict(theta)
	s := 0.0
	for i, p := range pred {
		r := p - f.y[i]
		s += r * r
	}
	return s/float64(f.m) + f.penalty(theta)/float64(f.m)
}

func (f *MeanSquaredError) Jacobian(theta []float64) []float64 {
	pred := f.predict(theta)
	r := make([]float64, f.m)
	for i, p := range pred {
		r[i] = p - f.y[i]
	}
	g := f.residualGrad(r, 2)
	pg := f.penaltyGrad(theta)
	for i := range g {
		g[i] += pg[i] / float64(f.m)
	}
	return g
}

// XStar returns the least-squares solution of X theta = y, or nil when
// the system has no unique solution.
func (f *MeanSquaredError) XStar() []float64 {
	if !f.tried {
		f.tried = true
		sol := mat.NewVecDense(f.p, nil)
		if err := sol.SolveVec(f.x, mat.NewVecDense(f.m, f.y)); err == nil {
			f.xStar = append([]float64(nil), sol.RawVector().Data...)
		}
	}
	return f.xStar
}

// FStar returns the loss at the least-squares solution when it exists.
func (f *MeanSquaredError) FStar() float64 {
	if x := f.XStar(); x != nil {
		return f.Function(x)
	}
	return math.Inf(-1)
}

// MeanAbsoluteError is the loss mean(|X theta - y|) plus penalty/m. It
// is non-smooth; Jacobian returns a subgradient.
type MeanAbsoluteError struct {
	base
}

// NewMeanAbsoluteError builds the loss.
func NewMeanAbsoluteError(X *mat.Dense, y []float64, reg Regularization, lmbda float64) (*MeanAbsoluteError, error) {
	b, err := newBase(X, y, reg, lmbda)
	if err != nil {
		return nil, err
	}
	return &MeanAbsoluteError{base: b}, nil
}

func (f *MeanAbsoluteError) Function(theta []float64) float64 {
	pred := f.predict(theta)
	s := 0.0
	for i, p := range pred {
		s += math.Abs(p - f.y[i])
	}
	return s/float64(f.m) + f.penalty(theta)/float64(f.m)
}

func (f *MeanAbsoluteError) Jacobian(theta []float64) []float64 {
	pred := f.predict(theta)
	r := make([]float64, f.m)
	for i, p := range pred {
		switch {
		case p > f.y[i]:
			r[i] = 1
		case p < f.y[i]:
			r[i] = -1
		}
	}
	g := f.residualGrad(r, 1)
	pg := f.penaltyGrad(theta)
	for i := range g {
		g[i] += pg[i] / float64(f.m)
	}
	return g
}

// CrossEntropy is the binary cross-entropy loss with a sigmoid link:
// -mean(y log p + (1-y) log(1-p)) with p = sigmoid(X theta), plus
// penalty/m.
type CrossEntropy struct {
	base
}

// NewCrossEntropy builds the loss. y is expected to hold 0/1 labels.
func NewCrossEntropy(X *mat.Dense, y []float64, reg Regularization, lmbda float64) (*CrossEntropy, error) {
	b, err := newBase(X, y, reg, lmbda)
	if err != nil {
		return nil, err
	}
	for i, v := range y {
		if v != 0 && v != 1 {
			return nil, optimization.NewErrorf("labels must be 0 or 1, got y[%d] = %g", i, v).
				WithComponent("losses")
		}
	}
	return &CrossEntropy{base: b}, nil
}

func sigmoid(z float64) float64 { return 1 / (1 + math.Exp(-z)) }

// xlogy returns x*log(y), with the 0*log(0) = 0 convention.
func xlogy(x, y float64) float64 {
	if x == 0 {
		return 0
	}
	return x * math.Log(y)
}

func (f *CrossEntropy) Function(theta []float64) float64 {
	pred := f.predict(theta)
	s := 0.0
	for i, z := range pred {
		p := sigmoid(z)
		s -= xlogy(f.y[i], p) + xlogy(1-f.y[i], 1-p)
	}
	return s/float64(f.m) + f.penalty(theta)/float64(f.m)
}

func (f *CrossEntropy) Jacobian(theta []float64) []float64 {
	pred := f.predict(theta)
	r := make([]float64, f.m)
	for i, z := range pred {
		r[i] = sigmoid(z) - f.y[i]
	}
	g := f.residualGrad(r, 1)
	pg := f.penaltyGrad(theta)
	for i := range g {
		g[i] += pg[i] / float64(f.m)
	}
	return g
}
