package quadratic

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNewLagrangianBoxRelaxation(t *testing.T) {
	primal, err := New(mat.NewSymDense(2, []float64{2, 0, 0, 2}), []float64{-1, -1})
	require.NoError(t, err)

	tests := []struct {
		name    string
		primal  *Quadratic
		ub      []float64
		wantErr bool
	}{
		{name: "valid", primal: primal, ub: []float64{1, 1}},
		{name: "nil primal", primal: nil, ub: []float64{1, 1}, wantErr: true},
		{name: "dimension mismatch", primal: primal, ub: []float64{1}, wantErr: true},
		{name: "negative bound", primal: primal, ub: []float64{1, -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLagrangianBoxRelaxation(tt.primal, tt.ub, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 2*tt.primal.Dim(), l.Dim())
			assert.Len(t, l.Start(), 2*tt.primal.Dim())
		})
	}
}

func TestLagrangianIndefiniteRepaired(t *testing.T) {
	// Q has eigenvalues 3 and -1; construction repairs it so the
	// factorization still succeeds.
	primal, err := New(mat.NewSymDense(2, []float64{1, 2, 2, 1}), []float64{0, 0})
	require.NoError(t, err)

	l, err := NewLagrangianBoxRelaxation(primal, []float64{1, 1}, nil)
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestLagrangianDualAtZero(t *testing.T) {
	// With lambda = 0 the relaxation is the unconstrained problem, so
	// the negated dual value equals -f(x*) of the primal.
	primal, err := New(mat.NewSymDense(2, []float64{2, 0, 0, 2}), []float64{-1, -1})
	require.NoError(t, err)

	l, err := NewLagrangianBoxRelaxation(primal, []float64{2, 2}, nil)
	require.NoError(t, err)

	zero := l.Start()
	assert.InDelta(t, -primal.FStar(), l.Function(zero), 1e-10)

	g := l.Jacobian(zero)
	xStar := primal.XStar()
	require.NotNil(t, xStar)
	for i := range xStar {
		assert.InDelta(t, l.ub[i]-xStar[i], g[i], 1e-10)
		assert.InDelta(t, xStar[i], g[len(xStar)+i], 1e-10)
	}
}

func TestLagrangianMemo(t *testing.T) {
	primal, err := New(mat.NewSymDense(2, []float64{4, 1, 1, 3}), []float64{-2, 1})
	require.NoError(t, err)

	l, err := NewLagrangianBoxRelaxation(primal, []float64{1, 1}, nil)
	require.NoError(t, err)

	lmbda := []float64{0.5, 0.1, 0, 0.2}
	want := append([]float64(nil), l.solve(lmbda)...)

	// Poison the memo: a hit returns the cached slice untouched.
	l.lastX[0] = 42
	assert.Equal(t, 42.0, l.solve(lmbda)[0])

	// A different lambda forces a fresh solve.
	assert.NotEqual(t, 42.0, l.solve([]float64{0, 0, 0, 0})[0])

	// Returning to the first lambda recomputes the true solution.
	assert.InDeltaSlice(t, want, l.solve(lmbda), 1e-12)
}

func TestLagrangianPrimalHeuristic(t *testing.T) {
	primal, err := New(mat.NewSymDense(2, []float64{2, 0, 0, 2}), []float64{-10, -10})
	require.NoError(t, err)

	ub := []float64{1, 1}
	l, err := NewLagrangianBoxRelaxation(primal, ub, nil)
	require.NoError(t, err)

	_, _, ok := l.PrimalSolution()
	assert.False(t, ok)

	l.Jacobian(l.Start())
	x, f, ok := l.PrimalSolution()
	require.True(t, ok)
	assert.False(t, math.IsInf(f, 0))
	for i, xi := range x {
		assert.GreaterOrEqual(t, xi, 0.0)
		assert.LessOrEqual(t, xi, ub[i])
	}
	// The unconstrained minimizer (5, 5) clamps to the corner (1, 1).
	assert.InDelta(t, 1, x[0], 1e-10)
	assert.InDelta(t, 1, x[1], 1e-10)
	assert.InDelta(t, primal.Function([]float64{1, 1}), f, 1e-10)
}

func TestLagrangianEndToEnd(t *testing.T) {
	// min x'x - 10 e'x over [0, 1]^3: the box-constrained optimum is
	// the corner (1, 1, 1). Maximizing the dual with projected values
	// recovers it through the primal heuristic.
	qmat := mat.NewSymDense(3, []float64{2, 0, 0, 0, 2, 0, 0, 0, 2})
	primal, err := New(qmat, []float64{-10, -10, -10})
	require.NoError(t, err)

	ub := []float64{1, 1, 1}
	l, err := NewLagrangianBoxRelaxation(primal, ub, nil)
	require.NoError(t, err)

	// Projected gradient ascent on the dual: step against the gradient
	// of the negated dual, then clamp the multipliers at zero.
	lmbda := l.Start()
	prev := math.Inf(1)
	for i := 0; i < 100; i++ {
		v := l.Function(lmbda)
		g := l.Jacobian(lmbda)
		// Minimization steps on the negated dual never overshoot the
		// previous value by more than rounding at this fixed step.
		assert.LessOrEqual(t, v, prev+1e-9)
		prev = v
		for j := range lmbda {
			lmbda[j] = math.Max(0, lmbda[j]-0.05*g[j])
		}
	}

	x, f, ok := l.PrimalSolution()
	require.True(t, ok)
	for i, xi := range x {
		assert.GreaterOrEqual(t, xi, 0.0)
		assert.LessOrEqual(t, xi, ub[i])
	}
	assert.InDelta(t, primal.Function([]float64{1, 1, 1}), f, 1e-6)
	for i := range x {
		assert.InDeltaf(t, 1, x[i], 1e-6, "coordinate %d", i)
	}
}
