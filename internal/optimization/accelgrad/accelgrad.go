// Package accelgrad implements the accelerated (momentum) gradient
// method. The iteration runs on an auxiliary sequence y distinct from
// the maintained point x; four interchangeable extrapolation formulas
// are available, plus monotone and non-monotone variants.
package accelgrad

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/descent/internal/optimization"
	"github.com/copyleftdev/descent/internal/optimization/linesearch"
)

// Formula selects the momentum recursion.
type Formula int

const (
	// FormulaNesterov is the classical gamma recursion
	// gamma' = (sqrt(4g^2+g^4)-g^2)/2, beta = gamma'*(1/gamma - 1).
	FormulaNesterov Formula = iota
	// FormulaFISTA is gamma' = (1+sqrt(1+4*gamma))/2,
	// beta = (gamma-1)/gamma'.
	FormulaFISTA
	// FormulaSimple is the schedule beta = t/(t+3).
	FormulaSimple
	// FormulaAccumulated blends a running weighted gradient direction
	// with a separately extrapolated point, independent of beta.
	FormulaAccumulated
)

// Options configures the solver. Start from Defaults().
type Options struct {
	// AStart: |AStart| is the initial step of the line search, or the
	// fixed step when no line search is used. It can be read as an
	// estimate of 1/L. When a line search is used and AStart < 0, the
	// step accepted at iteration i seeds the search at iteration i+1.
	AStart float64
	// M1 is the sufficient-decrease parameter of the backtracking line
	// search, in [0,1). The special value 0 disables the line search
	// and uses the fixed step |AStart|. Values below 1/2 are raised to
	// 1/2: the search must enforce at least the descent-lemma decrease
	// f(y) - a/2*||g(y)||^2, otherwise the extrapolation can amplify
	// accepted overshoots without bound.
	M1 float64
	// Mon selects the monotone variant, which spends one extra
	// function evaluation per iteration to never move to a worse point.
	Mon bool
	// WF selects the extrapolation formula.
	WF Formula
	// Eps is the stopping tolerance on the gradient norm at y; negative
	// selects the relative criterion.
	Eps float64
	// MaxFEval is the evaluation budget.
	MaxFEval int
	// Tau is the backtracking shrink factor, in (0,1).
	Tau float64
	// MInf is the unboundedness threshold.
	MInf float64
	// MinA flags a collapsed line-search step.
	MinA float64
	// Logger receives per-iteration statistics. Nil disables logging.
	Logger *zap.Logger
}

// Defaults returns the conventional parameter set (no line search,
// non-monotone, classical Nesterov formula).
func Defaults() Options {
	return Options{
		AStart:   1,
		M1:       0,
		Mon:      false,
		WF:       FormulaNesterov,
		Eps:      1e-6,
		MaxFEval: 1000,
		Tau:      0.9,
		MInf:     math.Inf(-1),
		MinA:     1e-16,
	}
}

// Optimizer is the accelerated-gradient solver.
type Optimizer struct {
	opts   Options
	ls     *linesearch.Backtracking
	logger *zap.Logger
}

// New validates the options and builds the solver.
func New(opts Options) (*Optimizer, error) {
	if opts.MaxFEval <= 0 {
		return nil, optimization.NewErrorf("max_f_eval must be a positive integer, got %d", opts.MaxFEval).
			WithComponent("accelgrad")
	}
	if opts.M1 < 0 || opts.M1 >= 1 {
		return nil, optimization.NewErrorf("m1 is not in [0,1): %g", opts.M1).WithComponent("accelgrad")
	}
	if opts.WF < FormulaNesterov || opts.WF > FormulaAccumulated {
		return nil, optimization.NewErrorf("unknown fast gradient formula %d", opts.WF).WithComponent("accelgrad")
	}
	if opts.AStart == 0 {
		return nil, optimization.NewError("a_start must be non-zero").WithComponent("accelgrad")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	logger := opts.Logger.Named("accelerated_gradient")

	var ls *linesearch.Backtracking
	if opts.M1 > 0 {
		var err error
		ls, err = linesearch.NewBacktracking(opts.MaxFEval, math.Max(opts.M1, 0.5),
			math.Abs(opts.AStart), opts.Tau, opts.MinA, opts.Logger)
		if err != nil {
			return nil, err
		}
	}

	return &Optimizer{opts: opts, ls: ls, logger: logger}, nil
}

// Minimize runs the momentum iteration from x0, or from obj.Start()
// when x0 is nil.
func (o *Optimizer) Minimize(obj optimization.Objective, x0 []float64) *optimization.Result {
	if x0 == nil {
		x0 = obj.Start()
	}
	n := len(x0)

	x := append([]float64(nil), x0...)
	y := append([]float64(nil), x0...)

	// Monotone bookkeeping: best point and value seen so far.
	bestX := append([]float64(nil), x0...)
	bestF := math.Inf(1)

	gamma := 1.0
	dir := make([]float64, n) // running direction of the accumulated formula

	evals := 0
	iters := 1
	ng0 := 1.0
	status := optimization.StatusRunning
	var v float64

	// Value at the incumbent x, when known. The non-monotone fixed-step
	// variant never evaluates there once x moves away from x0.
	fx := math.NaN()

	for {
		// Evaluate at the extrapolated point y.
		v = obj.Function(y)
		g := obj.Jacobian(y)
		evals++
		ng := floats.Norm(g, 2)
		if evals == 1 {
			// x and y still coincide at the first evaluation.
			fx = v
			if o.opts.Eps < 0 {
				ng0 = -ng
			}
		}

		if o.opts.Mon && v < bestF {
			copy(bestX, y)
			copy(x, y)
			bestF = v
		}

		o.logger.Debug("iteration",
			zap.Int("iter", iters),
			zap.Int("f_eval", evals),
			zap.Float64("f_y", v),
			zap.Float64("g_norm", ng),
			zap.Float64("gamma", gamma),
		)

		if ng <= o.opts.Eps*ng0 {
			status = optimization.StatusOptimal
			break
		}
		if evals > o.opts.MaxFEval {
			status = optimization.StatusStopped
			break
		}

		d := make([]float64, n)
		for i := range g {
			d[i] = -g[i]
		}

		// Gradient step from y. With a line search the accepted point
		// satisfies f(y+a*d) <= f(y) - m1*a*||g(y)||^2 with m1 >= 1/2,
		// the quadratic-upper-bound acceptance of backtracking FISTA.
		var a float64
		var next []float64
		var nextF float64
		if o.ls != nil {
			res := o.ls.Search(obj, y, d, v, -ng*ng, evals)
			evals = res.Evals
			a, next, nextF = res.A, res.X, res.F
			if res.Failure == linesearch.FailureBudget {
				status = optimization.StatusStopped
				break
			}
			if res.Failure == linesearch.FailureStepCollapse {
				status = optimization.StatusError
				break
			}
			v = nextF
			if o.opts.AStart < 0 {
				// Convergence theory wants the previous optimal step
				// as the next starting value.
				o.ls.SetStart(a)
			}
		} else {
			a = math.Abs(o.opts.AStart)
			next = make([]float64, n)
			floats.AddScaledTo(next, y, a, d)
			if o.opts.Mon {
				nextF = obj.Function(next)
				evals++
			}
		}

		if a <= o.opts.MinA {
			status = optimization.StatusError
			break
		}
		if v <= o.opts.MInf {
			status = optimization.StatusUnbounded
			break
		}

		if o.opts.Mon {
			// Never move the incumbent to a worse point.
			if nextF > bestF {
				copy(next, bestX)
			} else {
				copy(bestX, next)
				bestF = nextF
			}
		}

		// Extrapolate the next auxiliary point.
		var beta float64
		switch o.opts.WF {
		case FormulaNesterov:
			past := gamma
			gamma = (math.Sqrt(4*past*past+math.Pow(past, 4)) - past*past) / 2
			beta = gamma * (1/past - 1)
		case FormulaFISTA:
			past := gamma
			gamma = (1 + math.Sqrt(1+4*past)) / 2
			beta = (past - 1) / gamma
		case FormulaSimple:
			beta = float64(iters) / float64(iters+3)
		}

		if o.opts.WF < FormulaAccumulated {
			for i := range y {
				y[i] = next[i] + beta*(next[i]-x[i])
			}
		} else {
			t := float64(iters)
			for i := range dir {
				dir[i] = (2/(t+2))*g[i] + (t/(t+2))*dir[i]
			}
			// z is the separately extrapolated auxiliary point.
			zScale := -(t + 1) * (t + 2) * a / 4
			for i := range y {
				z := zScale * dir[i]
				y[i] = (2/(t+3))*z + ((t+1)/(t+3))*next[i]
			}
		}

		copy(x, next)
		switch {
		case o.opts.Mon:
			fx = bestF
		case o.ls != nil:
			fx = nextF
		default:
			fx = math.NaN()
		}
		iters++
	}

	out, outF := x, v
	if o.opts.Mon && bestF < math.Inf(1) {
		out, outF = bestX, bestF
	} else if !math.IsNaN(fx) {
		outF = fx
	} else {
		// Value at the returned point unknown; evaluate and charge.
		outF = obj.Function(x)
		evals++
	}
	o.logger.Info("terminated",
		zap.Stringer("status", status),
		zap.Int("iterations", iters),
		zap.Int("f_eval", evals),
		zap.Float64("f", outF),
	)
	return &optimization.Result{
		X:           append([]float64(nil), out...),
		F:           outF,
		Status:      status,
		Evaluations: evals,
		Iterations:  iters,
	}
}
