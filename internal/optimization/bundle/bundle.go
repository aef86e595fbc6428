// Package bundle implements the proximal bundle method for (possibly
// non-smooth) convex minimization. It accumulates an append-only
// cutting-plane lower model of the objective and delegates each
// iteration's step to an external quadratic-program master solver.
package bundle

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/descent/internal/optimization"
)

// piece is one affine element of the lower model. It is derived from an
// evaluation (x_i, f_i, g_i) as g = g_i and b = f_i - g_i·x_i, so that
// b + g·y lower-bounds the objective with equality at x_i.
type piece struct {
	g []float64
	b float64
}

// Options configures the solver. Start from Defaults().
type Options struct {
	// Mu is the fixed weight of the quadratic stabilization term. Must
	// be > 0.
	Mu float64
	// M1 is the serious-step parameter of the Armijo-like acceptance
	// test, in [0,1].
	M1 float64
	// Eps is the stopping tolerance on mu*||d||; negative selects the
	// relative criterion against the first subgradient norm.
	Eps float64
	// MaxIter is the iteration budget (one evaluation per iteration).
	MaxIter int
	// MInf is the unboundedness threshold.
	MInf float64
	// Master solves the per-iteration master problem. Nil selects the
	// default cvx-backed solver.
	Master MasterSolver
	// Logger receives per-iteration statistics. Nil disables logging.
	Logger *zap.Logger
}

// Defaults returns the conventional parameter set.
func Defaults() Options {
	return Options{
		Mu:      1,
		M1:      0.01,
		Eps:     1e-6,
		MaxIter: 1000,
		MInf:    math.Inf(-1),
	}
}

// Optimizer is the proximal bundle solver.
type Optimizer struct {
	opts   Options
	master MasterSolver
	logger *zap.Logger

	pieces []piece
}

// New validates the options and builds the solver.
func New(opts Options) (*Optimizer, error) {
	if opts.Mu <= 0 {
		return nil, optimization.NewErrorf("mu must be > 0, got %g", opts.Mu).WithComponent("bundle")
	}
	if opts.M1 < 0 || opts.M1 > 1 {
		return nil, optimization.NewErrorf("m1 is not in [0,1]: %g", opts.M1).WithComponent("bundle")
	}
	if opts.MaxIter <= 0 {
		return nil, optimization.NewErrorf("max_iter must be a positive integer, got %d", opts.MaxIter).
			WithComponent("bundle")
	}
	if opts.Master == nil {
		opts.Master = NewCvxMaster()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Optimizer{
		opts:   opts,
		master: opts.Master,
		logger: opts.Logger.Named("proximal_bundle"),
	}, nil
}

// addPiece appends the cutting plane derived from the evaluation
// (x, f, g). The bundle only ever grows; there is no compression.
func (o *Optimizer) addPiece(x []float64, f float64, g []float64) {
	b := f
	for i := range g {
		b -= g[i] * x[i]
	}
	o.pieces = append(o.pieces, piece{g: append([]float64(nil), g...), b: b})
}

// model returns the bundle as the parallel slices the master solver
// consumes.
func (o *Optimizer) model() (grads [][]float64, consts []float64) {
	grads = make([][]float64, len(o.pieces))
	consts = make([]float64, len(o.pieces))
	for i, p := range o.pieces {
		grads[i] = p.g
		consts[i] = p.b
	}
	return grads, consts
}

// Minimize runs the bundle iteration from x0, or from obj.Start() when
// x0 is nil.
func (o *Optimizer) Minimize(obj optimization.Objective, x0 []float64) *optimization.Result {
	if x0 == nil {
		x0 = obj.Start()
	}
	x := append([]float64(nil), x0...)
	o.pieces = o.pieces[:0]

	fStar := obj.FStar()
	cheat := !math.IsInf(fStar, -1)

	fx := obj.Function(x)
	g := obj.Jacobian(x)
	evals := 1
	o.addPiece(x, fx, g)

	ng := floats.Norm(g, 2)
	ng0 := 1.0
	if o.opts.Eps < 0 {
		ng0 = -ng
	}

	iters := 1
	status := optimization.StatusRunning
	for {
		grads, consts := o.model()
		d, v, err := o.master.Solve(o.opts.Mu, x, grads, consts, fStar, cheat)
		if err != nil {
			o.logger.Warn("master problem failed", zap.Error(err))
			status = optimization.StatusError
			break
		}
		nd := floats.Norm(d, 2)

		o.logger.Debug("iteration",
			zap.Int("iter", iters),
			zap.Float64("f", fx),
			zap.Float64("d_norm", nd),
			zap.Float64("v", v),
			zap.Int("bundle_size", len(o.pieces)),
		)

		if o.opts.Mu*nd <= o.opts.Eps*ng0 {
			status = optimization.StatusOptimal
			break
		}
		if iters > o.opts.MaxIter {
			status = optimization.StatusStopped
			break
		}

		trial := make([]float64, len(x))
		floats.AddTo(trial, x, d)
		fd := obj.Function(trial)
		g = obj.Jacobian(trial)
		evals++

		if fd <= o.opts.MInf {
			status = optimization.StatusUnbounded
			break
		}

		// The new cutting plane joins the bundle whether or not the
		// trial point is accepted.
		o.addPiece(trial, fd, g)

		if fd <= fx+o.opts.M1*(v-fx) {
			// Serious step: the model decrease materialized.
			o.logger.Debug("serious step", zap.Float64("f_new", fd))
			x = trial
			fx = fd
		} else {
			o.logger.Debug("null step", zap.Float64("f_trial", fd))
		}
		iters++
	}

	o.logger.Info("terminated",
		zap.Stringer("status", status),
		zap.Int("iterations", iters),
		zap.Int("f_eval", evals),
		zap.Float64("f", fx),
	)
	return &optimization.Result{X: x, F: fx, Status: status, Evaluations: evals, Iterations: iters}
}
