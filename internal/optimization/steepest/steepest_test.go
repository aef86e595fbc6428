package steepest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/descent/internal/optimization"
	"github.com/copyleftdev/descent/internal/optimization/quadratic"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Options) {}},
		{name: "backtracking when m2 is zero", mutate: func(o *Options) { o.M2 = 0 }},
		{name: "bad budget", mutate: func(o *Options) { o.MaxFEval = 0 }, wantErr: true},
		{name: "bad m1", mutate: func(o *Options) { o.M1 = 1.5 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Defaults()
			tt.mutate(&opts)
			opt, err := New(opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, opt)
		})
	}
}

func TestMinimizeSphere(t *testing.T) {
	opts := Defaults()
	opts.MaxFEval = 10000
	opt, err := New(opts)
	require.NoError(t, err)

	obj := &optimization.Sphere{Dim: 5}
	res := opt.Minimize(obj, nil)

	require.Equal(t, optimization.StatusOptimal, res.Status)
	assert.InDelta(t, 0, res.F, 1e-8)
	for i, xi := range res.X {
		assert.InDeltaf(t, 0, xi, 1e-4, "coordinate %d", i)
	}
	assert.LessOrEqual(t, res.Evaluations, opts.MaxFEval+1)
}

func TestMinimizeRosenbrock(t *testing.T) {
	opts := Defaults()
	opts.Eps = 1e-4
	opts.MaxFEval = 200000
	opt, err := New(opts)
	require.NoError(t, err)

	obj := &optimization.Rosenbrock{}
	res := opt.Minimize(obj, nil)

	// Steepest descent is slow on this valley but still gets there.
	require.Equal(t, optimization.StatusOptimal, res.Status)
	assert.InDelta(t, 1, res.X[0], 1e-2)
	assert.InDelta(t, 1, res.X[1], 1e-2)
}

func TestMinimizeQuadratic(t *testing.T) {
	qmat := mat.NewSymDense(2, []float64{6, 2, 2, 8})
	obj, err := quadratic.New(qmat, []float64{-10, -6})
	require.NoError(t, err)

	opts := Defaults()
	opts.MaxFEval = 10000
	opt, err := New(opts)
	require.NoError(t, err)

	res := opt.Minimize(obj, nil)
	require.Equal(t, optimization.StatusOptimal, res.Status)

	xStar := obj.XStar()
	require.NotNil(t, xStar)
	assert.InDelta(t, xStar[0], res.X[0], 1e-4)
	assert.InDelta(t, xStar[1], res.X[1], 1e-4)
	assert.InDelta(t, obj.FStar(), res.F, 1e-6)
}

func TestMinimizeRelativeTolerance(t *testing.T) {
	// With eps < 0 the criterion is relative to the initial gradient
	// norm, so a rescaled copy of the problem still reaches StatusOptimal
	// with the same tolerance.
	qmat := mat.NewSymDense(2, []float64{2, 0, 0, 4})
	obj, err := quadratic.New(qmat, []float64{1, -1})
	require.NoError(t, err)

	scaled := mat.NewSymDense(2, []float64{2e6, 0, 0, 4e6})
	objScaled, err := quadratic.New(scaled, []float64{1e6, -1e6})
	require.NoError(t, err)

	opts := Defaults()
	opts.Eps = -1e-8
	opts.MaxFEval = 10000

	opt, err := New(opts)
	require.NoError(t, err)
	res := opt.Minimize(obj, []float64{5, 5})

	opt2, err := New(opts)
	require.NoError(t, err)
	res2 := opt2.Minimize(objScaled, []float64{5, 5})

	require.Equal(t, optimization.StatusOptimal, res.Status)
	require.Equal(t, optimization.StatusOptimal, res2.Status)

	// Both minimizers agree: the scaling cancels in Qx = -q.
	xStar := obj.XStar()
	require.NotNil(t, xStar)
	for i := range xStar {
		assert.InDelta(t, xStar[i], res.X[i], 1e-6)
		assert.InDelta(t, xStar[i], res2.X[i], 1e-6)
	}
}

func TestMinimizeBudgetExhausted(t *testing.T) {
	opts := Defaults()
	opts.MaxFEval = 5
	opt, err := New(opts)
	require.NoError(t, err)

	res := opt.Minimize(&optimization.Rosenbrock{}, nil)
	assert.Equal(t, optimization.StatusStopped, res.Status)
}

func TestMinimizeUnbounded(t *testing.T) {
	// A concave direction: f(x) = -x^2 decreases without bound along
	// the descent direction.
	obj := &concave{}

	opts := Defaults()
	opts.M2 = 0 // backtracking accepts the unit step immediately
	opts.MInf = -1e10
	opts.MaxFEval = 100000
	opt, err := New(opts)
	require.NoError(t, err)

	res := opt.Minimize(obj, []float64{1})
	assert.Equal(t, optimization.StatusUnbounded, res.Status)
	assert.LessOrEqual(t, res.F, opts.MInf)
	// The result must carry the point that achieved the value, not the
	// iterate before the final step.
	assert.Equal(t, obj.Function(res.X), res.F)
}

type concave struct{}

func (concave) Function(x []float64) float64 { return -x[0] * x[0] }

func (concave) Jacobian(x []float64) []float64 { return []float64{-2 * x[0]} }

func (concave) Start() []float64 { return []float64{1} }

func (concave) FStar() float64 { return math.Inf(-1) }

func (concave) XStar() []float64 { return nil }
