// Package linesearch implements the one-dimensional step-size searches
// used by the gradient-based solvers: plain Backtracking (Armijo-only)
// and ArmijoWolfe (sufficient decrease plus strong curvature, via
// bracketing and safeguarded quadratic interpolation).
package linesearch

import (
	"github.com/copyleftdev/descent/internal/optimization"
)

// Failure distinguishes why a search returned without an admissible step.
type Failure int

const (
	// FailureNone means the step was accepted.
	FailureNone Failure = iota

	// FailureBudget means the shared evaluation budget ran out.
	FailureBudget

	// FailureStepCollapse means the step (or bracket width) fell at or
	// below min_a. The outer loop decides how to react: it usually means
	// d was not a descent direction, not a fatal program error.
	FailureStepCollapse
)

// Result reports the outcome of one search along a direction.
type Result struct {
	// A is the accepted (or last tried) step size.
	A float64
	// F is the objective value at X.
	F float64
	// X is the accepted point x + A*d.
	X []float64
	// G is the gradient at X. Nil when the search failed before any
	// gradient was taken.
	G []float64
	// Evals is the updated evaluation count, shared with the outer
	// loop's budget.
	Evals int
	// Failure is FailureNone on success.
	Failure Failure
}

// LineSearch searches for a step size along a descent direction d from x.
// f0 is f(x) and phip0 the directional derivative g(x)·d, which must be
// negative for the search to make sense. evals is the evaluation count
// consumed so far; implementations charge their own trials against the
// same budget.
type LineSearch interface {
	Search(obj optimization.Objective, x, d []float64, f0, phip0 float64, evals int) Result
}

// point returns x + a*d without clobbering x.
func point(x, d []float64, a float64) []float64 {
	p := make([]float64, len(x))
	for i := range x {
		p[i] = x[i] + a*d[i]
	}
	return p
}

// dot is the Euclidean inner product.
func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
