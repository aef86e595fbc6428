package linesearch

import (
	"go.uber.org/zap"

	"github.com/copyleftdev/descent/internal/optimization"
)

// Backtracking is the Armijo-only step-size search: starting from aStart,
// the step is multiplied by tau until the sufficient-decrease condition
//
//	f(x + a*d) <= f(x) + m1*a*(g·d)
//
// holds. The gradient is evaluated only at the accepted point.
type Backtracking struct {
	maxFEval int
	m1       float64
	aStart   float64
	tau      float64
	minA     float64
	logger   *zap.Logger
}

// NewBacktracking validates the parameters and returns the search.
// Passing a nil logger disables per-trial logging.
func NewBacktracking(maxFEval int, m1, aStart, tau, minA float64, logger *zap.Logger) (*Backtracking, error) {
	if maxFEval <= 0 {
		return nil, optimization.NewErrorf("max_f_eval must be a positive integer, got %d", maxFEval).
			WithComponent("linesearch")
	}
	if m1 <= 0 || m1 >= 1 {
		return nil, optimization.NewErrorf("m1 is not in (0,1): %g", m1).WithComponent("linesearch")
	}
	if aStart <= 0 {
		return nil, optimization.NewErrorf("a_start must be > 0, got %g", aStart).WithComponent("linesearch")
	}
	if tau <= 0 || tau >= 1 {
		return nil, optimization.NewErrorf("tau is not in (0,1): %g", tau).WithComponent("linesearch")
	}
	if minA < 0 {
		return nil, optimization.NewErrorf("min_a must be >= 0, got %g", minA).WithComponent("linesearch")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backtracking{
		maxFEval: maxFEval,
		m1:       m1,
		aStart:   aStart,
		tau:      tau,
		minA:     minA,
		logger:   logger.Named("backtracking"),
	}, nil
}

// SetStart overrides the starting step for the next searches. Used by the
// accelerated-gradient method when a_start < 0 requests reuse of the
// previously accepted step.
func (ls *Backtracking) SetStart(a float64) { ls.aStart = a }

// Search implements LineSearch.
func (ls *Backtracking) Search(obj optimization.Objective, x, d []float64, f0, phip0 float64, evals int) Result {
	a := ls.aStart
	for evals <= ls.maxFEval {
		xa := point(x, d, a)
		fa := obj.Function(xa)
		evals++

		ls.logger.Debug("trial step",
			zap.Float64("a", a),
			zap.Float64("f", fa),
			zap.Int("f_eval", evals),
		)

		if fa <= f0+ls.m1*a*phip0 {
			return Result{
				A:     a,
				F:     fa,
				X:     xa,
				G:     obj.Jacobian(xa),
				Evals: evals,
			}
		}

		if a*ls.tau <= ls.minA {
			return Result{A: a * ls.tau, F: fa, X: xa, Evals: evals, Failure: FailureStepCollapse}
		}
		a *= ls.tau
	}
	return Result{A: a, F: f0, X: x, Evals: evals, Failure: FailureBudget}
}
