// Package steepest implements the base line-search descent loop shared
// by the gradient methods: steepest-descent directions paired with a
// configurable one-dimensional step-size search.
package steepest

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/descent/internal/optimization"
	"github.com/copyleftdev/descent/internal/optimization/linesearch"
)

// Options configures the optimizer. The zero value is not usable; start
// from Defaults().
type Options struct {
	// Eps is the stopping tolerance on the gradient norm. A negative
	// value selects the relative criterion ||g|| <= -Eps*||g0||.
	Eps float64
	// MaxFEval is the evaluation budget shared with the line search.
	MaxFEval int
	// M1 is the sufficient-decrease parameter, in (0,1).
	M1 float64
	// M2 selects the line search: inside (0,1) it is the curvature
	// parameter of the Armijo-Wolfe search, any other value selects
	// plain Backtracking.
	M2 float64
	// AStart is the initial trial step of the line search.
	AStart float64
	// Tau is the step scaling factor of the line search, in (0,1).
	Tau float64
	// Sfgrd is the interpolation safeguard fraction of the
	// Armijo-Wolfe search.
	Sfgrd float64
	// MInf is the finite proxy for -Inf: any evaluated value at or
	// below it terminates the run as unbounded.
	MInf float64
	// MinA flags a collapsed step: a line-search step at or below it
	// terminates the run with an error status.
	MinA float64
	// Logger receives per-iteration statistics. Nil disables logging.
	Logger *zap.Logger
}

// Defaults returns the conventional parameter set.
func Defaults() Options {
	return Options{
		Eps:      1e-6,
		MaxFEval: 1000,
		M1:       0.01,
		M2:       0.9,
		AStart:   1,
		Tau:      0.9,
		Sfgrd:    0.01,
		MInf:     math.Inf(-1),
		MinA:     1e-16,
	}
}

// Optimizer is the steepest-descent solver.
type Optimizer struct {
	opts   Options
	ls     linesearch.LineSearch
	logger *zap.Logger
}

// New validates the options and builds the solver. The line search
// variant is fixed here: Armijo-Wolfe when 0 < M2 < 1, Backtracking
// otherwise.
func New(opts Options) (*Optimizer, error) {
	if opts.MaxFEval <= 0 {
		return nil, optimization.NewErrorf("max_f_eval must be a positive integer, got %d", opts.MaxFEval).
			WithComponent("steepest")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	logger := opts.Logger.Named("steepest_descent")

	var ls linesearch.LineSearch
	var err error
	if opts.M2 > 0 && opts.M2 < 1 {
		ls, err = linesearch.NewArmijoWolfe(opts.MaxFEval, opts.M1, opts.M2,
			opts.AStart, opts.Tau, opts.Sfgrd, opts.MinA, opts.Logger)
	} else {
		ls, err = linesearch.NewBacktracking(opts.MaxFEval, opts.M1,
			opts.AStart, opts.Tau, opts.MinA, opts.Logger)
	}
	if err != nil {
		return nil, err
	}

	return &Optimizer{opts: opts, ls: ls, logger: logger}, nil
}

// Minimize runs the descent loop from x0, or from obj.Start() when x0 is
// nil. The returned result always carries the best point reached and a
// terminal status; runtime failures are statuses, not errors.
func (o *Optimizer) Minimize(obj optimization.Objective, x0 []float64) *optimization.Result {
	if x0 == nil {
		x0 = obj.Start()
	}
	x := append([]float64(nil), x0...)

	v := obj.Function(x)
	g := obj.Jacobian(x)
	evals := 1
	ng := floats.Norm(g, 2)

	// ng0 = 1 gives the absolute criterion; with eps < 0 the norm of
	// the very first gradient makes the criterion relative.
	ng0 := 1.0
	if o.opts.Eps < 0 {
		ng0 = -ng
	}

	iters := 0
	status := optimization.StatusRunning
	for {
		o.logger.Debug("iteration",
			zap.Int("iter", iters),
			zap.Int("f_eval", evals),
			zap.Float64("f", v),
			zap.Float64("g_norm", ng),
		)

		if ng <= o.opts.Eps*ng0 {
			status = optimization.StatusOptimal
			break
		}
		if evals > o.opts.MaxFEval {
			status = optimization.StatusStopped
			break
		}

		// Steepest-descent direction.
		d := make([]float64, len(g))
		for i := range g {
			d[i] = -g[i]
		}

		res := o.ls.Search(obj, x, d, v, -ng*ng, evals)
		evals = res.Evals

		if res.Failure == linesearch.FailureStepCollapse || res.A <= o.opts.MinA {
			status = optimization.StatusError
			break
		}
		if res.Failure == linesearch.FailureBudget {
			status = optimization.StatusStopped
			break
		}

		x = res.X
		v = res.F
		g = res.G
		ng = floats.Norm(g, 2)
		if v <= o.opts.MInf {
			status = optimization.StatusUnbounded
			break
		}
		iters++
	}

	o.logger.Info("terminated",
		zap.Stringer("status", status),
		zap.Int("iterations", iters),
		zap.Int("f_eval", evals),
		zap.Float64("f", v),
	)
	return &optimization.Result{X: x, F: v, Status: status, Evaluations: evals, Iterations: iters}
}
