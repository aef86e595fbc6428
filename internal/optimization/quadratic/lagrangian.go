package quadratic

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/descent/internal/optimization"
)

// LagrangianBoxRelaxation wraps the box-constrained quadratic program
//
//	min 1/2 x'Qx + q'x   s.t.  0 <= x <= ub
//
// as a dual objective over the doubled multiplier lambda = (l+, l-).
// The dual is a maximization problem, but the solvers in this module
// minimize, so Function and Jacobian return the negated dual: the
// gradient comes out as (ub - x, x).
//
// Every dual evaluation solves Qx = -(q + l+ - l-); the Cholesky
// factorization of Q is computed once at construction (after a nearest
// positive-definite repair when Q is indefinite) and reused for every
// solve. A one-slot memo keyed by the last lambda avoids recomputing x
// when Jacobian is called right after Function at the same point.
//
// Non-negativity of lambda is the caller's responsibility. The type is
// not safe for concurrent use: the memo and the primal-heuristic cache
// are mutated on every evaluation.
type LagrangianBoxRelaxation struct {
	primal *Quadratic
	qmat   *mat.SymDense // possibly repaired copy of the primal's Q
	q      []float64
	ub     []float64
	chol   mat.Cholesky

	lastLambda []float64
	lastX      []float64

	bestPrimalX []float64
	bestPrimalF float64

	logger *zap.Logger
}

// NewLagrangianBoxRelaxation builds the dual objective. primal must be a
// quadratic (the quadratic-only restriction is enforced here, at
// construction) and ub must be a non-negative upper bound per dimension.
// Passing a nil logger disables factorization diagnostics.
func NewLagrangianBoxRelaxation(primal *Quadratic, ub []float64, logger *zap.Logger) (*LagrangianBoxRelaxation, error) {
	const op = "NewLagrangianBoxRelaxation"

	if primal == nil {
		return nil, optimization.NewError("primal quadratic must not be nil").
			WithComponent("lagrangian").WithOperation(op)
	}
	n := primal.Dim()
	if len(ub) != n {
		return nil, optimization.NewErrorf("dimension mismatch: primal is %d-dimensional but ub has length %d",
			n, len(ub)).WithComponent("lagrangian").WithOperation(op)
	}
	for i, u := range ub {
		if u < 0 {
			return nil, optimization.NewErrorf("upper bound must be >= 0, got ub[%d] = %g", i, u).
				WithComponent("lagrangian").WithOperation(op)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("lagrangian")

	l := &LagrangianBoxRelaxation{
		primal:      primal,
		q:           primal.LinearTerm(),
		ub:          append([]float64(nil), ub...),
		bestPrimalF: math.Inf(1),
		logger:      logger,
	}
	if err := l.factorize(primal.Q()); err != nil {
		return nil, optimization.WrapError(err, "coefficient matrix cannot be factorized").
			WithComponent("lagrangian").WithOperation(op)
	}
	return l, nil
}

// factorize computes the one-time Cholesky factorization of Q, repairing
// an indefinite matrix to its nearest positive-definite neighbour and
// escalating a diagonal jitter until the factorization succeeds.
func (l *LagrangianBoxRelaxation) factorize(Q *mat.SymDense) error {
	if ok := l.chol.Factorize(Q); ok {
		l.qmat = Q
		return nil
	}

	l.logger.Debug("Q is not positive definite, repairing")
	repaired, err := nearestPosDef(Q)
	if err != nil {
		return err
	}

	n := repaired.SymmetricDim()
	jitter := 1e-12
	for attempt := 0; attempt < 10; attempt++ {
		if ok := l.chol.Factorize(repaired); ok {
			l.qmat = repaired
			return nil
		}
		l.logger.Debug("Cholesky factorization failed, increasing jitter",
			zap.Int("attempt", attempt+1),
			zap.Float64("jitter", jitter),
		)
		for i := 0; i < n; i++ {
			repaired.SetSym(i, i, repaired.At(i, i)+jitter)
		}
		jitter *= 10
	}
	return errFactorization("Cholesky factorization failed after repair")
}

// Dim returns the dimension of the dual domain, twice the primal's.
func (l *LagrangianBoxRelaxation) Dim() int { return 2 * len(l.q) }

// solve returns the minimizer x of the relaxation at lambda, reusing the
// memoized solution when lambda is unchanged since the last call.
func (l *LagrangianBoxRelaxation) solve(lmbda []float64) []float64 {
	if l.lastX != nil && floats.Equal(lmbda, l.lastLambda) {
		return l.lastX
	}

	n := len(l.q)
	rhs := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		// Qx = -(q + l+ - l-)
		rhs.SetVec(i, -(l.q[i] + lmbda[i] - lmbda[n+i]))
	}
	x := mat.NewVecDense(n, nil)
	if err := l.chol.SolveVecTo(x, rhs); err != nil {
		// The factorization was validated at construction; a solve
		// failure here means NaN/Inf input.
		l.logger.Warn("dual solve failed", zap.Error(err))
	}

	l.lastLambda = append(l.lastLambda[:0], lmbda...)
	l.lastX = append(l.lastX[:0], x.RawVector().Data...)
	return l.lastX
}

// Function evaluates the negated dual at lambda.
func (l *LagrangianBoxRelaxation) Function(lmbda []float64) float64 {
	x := l.solve(lmbda)
	n := len(l.q)

	xv := mat.NewVecDense(n, x)
	qx := mat.NewVecDense(n, nil)
	qx.MulVec(l.qmat, xv)

	// L(lambda) = 1/2 x'Qx + (q + l+ - l-)'x - l+'ub at the minimizing x.
	val := 0.5 * mat.Dot(xv, qx)
	for i := 0; i < n; i++ {
		val += (l.q[i] + lmbda[i] - lmbda[n+i]) * x[i]
		val -= lmbda[i] * l.ub[i]
	}
	return -val
}

// Jacobian evaluates the gradient (ub - x, x) of the negated dual and,
// as a side effect, projects x onto the box to update the best primal
// heuristic seen so far.
func (l *LagrangianBoxRelaxation) Jacobian(lmbda []float64) []float64 {
	x := l.solve(lmbda)
	n := len(l.q)

	g := make([]float64, 2*n)
	for i := 0; i < n; i++ {
		g[i] = l.ub[i] - x[i]
		g[n+i] = x[i]
	}

	// Primal heuristic: clamp the relaxed solution into the box.
	xp := make([]float64, n)
	for i := 0; i < n; i++ {
		xp[i] = math.Max(0, math.Min(x[i], l.ub[i]))
	}
	if v := l.primal.Function(xp); v < l.bestPrimalF {
		l.bestPrimalX = xp
		l.bestPrimalF = v
	}

	return g
}

// Start returns the zero multiplier.
func (l *LagrangianBoxRelaxation) Start() []float64 { return make([]float64, 2*len(l.q)) }

// FStar is unknown for the dual.
func (l *LagrangianBoxRelaxation) FStar() float64 { return math.Inf(-1) }

// XStar is unknown for the dual.
func (l *LagrangianBoxRelaxation) XStar() []float64 { return nil }

// PrimalSolution returns the best feasible primal point produced by the
// projection heuristic, with its primal objective value. ok is false
// before the first gradient evaluation.
func (l *LagrangianBoxRelaxation) PrimalSolution() (x []float64, f float64, ok bool) {
	if l.bestPrimalX == nil {
		return nil, math.Inf(1), false
	}
	return l.bestPrimalX, l.bestPrimalF, true
}
