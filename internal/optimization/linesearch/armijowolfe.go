package linesearch

import (
	"math"

	"go.uber.org/zap"

	"github.com/copyleftdev/descent/internal/optimization"
)

// ArmijoWolfe enforces sufficient decrease and the strong curvature
// condition
//
//	|g(x + a*d)·d| <= m2*|g(x)·d|
//
// in two phases. Bracketing grows the step (dividing by tau) while the
// directional derivative stays negative, then a zoom phase shrinks the
// bracket with safeguarded quadratic interpolation: the trial point is
// forced into [aLo*(1+sfgrd), aHi*(1-sfgrd)] so the interpolant cannot
// collapse against either endpoint.
type ArmijoWolfe struct {
	maxFEval int
	m1, m2   float64
	aStart   float64
	tau      float64
	sfgrd    float64
	minA     float64
	logger   *zap.Logger
}

// NewArmijoWolfe validates the parameters and returns the search.
func NewArmijoWolfe(maxFEval int, m1, m2, aStart, tau, sfgrd, minA float64, logger *zap.Logger) (*ArmijoWolfe, error) {
	if maxFEval <= 0 {
		return nil, optimization.NewErrorf("max_f_eval must be a positive integer, got %d", maxFEval).
			WithComponent("linesearch")
	}
	if m1 <= 0 || m1 >= 1 {
		return nil, optimization.NewErrorf("m1 is not in (0,1): %g", m1).WithComponent("linesearch")
	}
	if m2 <= 0 || m2 >= 1 {
		return nil, optimization.NewErrorf("m2 is not in (0,1): %g", m2).WithComponent("linesearch")
	}
	if aStart <= 0 {
		return nil, optimization.NewErrorf("a_start must be > 0, got %g", aStart).WithComponent("linesearch")
	}
	if tau <= 0 || tau >= 1 {
		return nil, optimization.NewErrorf("tau is not in (0,1): %g", tau).WithComponent("linesearch")
	}
	if sfgrd <= 0 || sfgrd >= 0.5 {
		return nil, optimization.NewErrorf("sfgrd is not in (0,0.5): %g", sfgrd).WithComponent("linesearch")
	}
	if minA < 0 {
		return nil, optimization.NewErrorf("min_a must be >= 0, got %g", minA).WithComponent("linesearch")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArmijoWolfe{
		maxFEval: maxFEval,
		m1:       m1,
		m2:       m2,
		aStart:   aStart,
		tau:      tau,
		sfgrd:    sfgrd,
		minA:     minA,
		logger:   logger.Named("armijo_wolfe"),
	}, nil
}

// Search implements LineSearch.
func (ls *ArmijoWolfe) Search(obj optimization.Objective, x, d []float64, f0, phip0 float64, evals int) Result {
	eval := func(a float64) (fa float64, phip float64, xa, ga []float64) {
		xa = point(x, d, a)
		fa = obj.Function(xa)
		ga = obj.Jacobian(xa)
		return fa, dot(ga, d), xa, ga
	}
	accepted := func(a, fa, phip float64) bool {
		return fa <= f0+ls.m1*a*phip0 && math.Abs(phip) <= -ls.m2*phip0
	}

	// Bracketing: grow a while the derivative stays negative and no
	// Wolfe point shows up.
	aHi := ls.aStart
	var fHi, phipHi float64
	var xHi, gHi []float64
	for {
		if evals > ls.maxFEval {
			return Result{A: aHi, F: f0, X: x, Evals: evals, Failure: FailureBudget}
		}
		fHi, phipHi, xHi, gHi = eval(aHi)
		evals++

		ls.logger.Debug("bracketing step",
			zap.Float64("a", aHi),
			zap.Float64("f", fHi),
			zap.Float64("phip", phipHi),
			zap.Int("f_eval", evals),
		)

		if accepted(aHi, fHi, phipHi) {
			return Result{A: aHi, F: fHi, X: xHi, G: gHi, Evals: evals}
		}
		if phipHi >= 0 {
			break
		}
		aHi /= ls.tau
	}

	// Zoom: safeguarded quadratic interpolation on [aLo, aHi], with the
	// derivative negative at aLo and non-negative at aHi.
	aLo, phipLo := 0.0, phip0
	a, fa := aHi, fHi
	var xa, ga []float64 = xHi, gHi
	for evals <= ls.maxFEval && aHi-aLo > ls.minA && phipHi > 1e-12 {
		// Minimizer of the quadratic interpolating the two endpoint
		// derivatives, pushed away from both endpoints.
		a = (aLo*phipHi - aHi*phipLo) / (phipHi - phipLo)
		a = math.Max(aLo+(aHi-aLo)*ls.sfgrd, math.Min(aHi-(aHi-aLo)*ls.sfgrd, a))

		var phip float64
		fa, phip, xa, ga = eval(a)
		evals++

		ls.logger.Debug("zoom step",
			zap.Float64("a", a),
			zap.Float64("f", fa),
			zap.Float64("phip", phip),
			zap.Int("f_eval", evals),
		)

		if accepted(a, fa, phip) {
			return Result{A: a, F: fa, X: xa, G: ga, Evals: evals}
		}
		if phip < 0 {
			aLo, phipLo = a, phip
		} else {
			aHi, phipHi = a, phip
			if aHi <= ls.minA {
				break
			}
		}
	}

	if evals > ls.maxFEval {
		return Result{A: a, F: fa, X: xa, G: ga, Evals: evals, Failure: FailureBudget}
	}
	return Result{A: a, F: fa, X: xa, G: ga, Evals: evals, Failure: FailureStepCollapse}
}
