package bundle

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/descent/internal/optimization"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Options) {}},
		{name: "m1 at bounds", mutate: func(o *Options) { o.M1 = 1 }},
		{name: "mu zero", mutate: func(o *Options) { o.Mu = 0 }, wantErr: true},
		{name: "mu negative", mutate: func(o *Options) { o.Mu = -1 }, wantErr: true},
		{name: "m1 above one", mutate: func(o *Options) { o.M1 = 1.5 }, wantErr: true},
		{name: "bad iteration budget", mutate: func(o *Options) { o.MaxIter = 0 }, wantErr: true},
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
			assert.NotNil(t, opt.master)
		})
	}
}

func TestAddPieceExactAtGenerator(t *testing.T) {
	opt, err := New(Defaults())
	require.NoError(t, err)

	obj := &optimization.Rosenbrock{}
	points := [][]float64{{-1.2, 1}, {0, 0}, {0.5, -2}}
	for _, x := range points {
		opt.addPiece(x, obj.Function(x), obj.Jacobian(x))
	}

	grads, consts := opt.model()
	require.Len(t, grads, len(points))
	for i, x := range points {
		// The cutting plane touches the objective at its generator.
		lin := consts[i]
		for j := range x {
			lin += grads[i][j] * x[j]
		}
		assert.InDelta(t, obj.Function(x), lin, 1e-12)
	}
}

// scriptedMaster halves the distance to the origin and reports the
// model value it pretends to have found.
type scriptedMaster struct {
	calls     int
	sawCheat  bool
	lastFStar float64
}

func (m *scriptedMaster) Solve(mu float64, x []float64, grads [][]float64, consts []float64, fStar float64, cheat bool) ([]float64, float64, error) {
	m.calls++
	m.sawCheat = cheat
	m.lastFStar = fStar
	d := make([]float64, len(x))
	for i := range x {
		d[i] = -0.5 * x[i]
	}
	return d, 0, nil
}

type failingMaster struct{}

func (failingMaster) Solve(float64, []float64, [][]float64, []float64, float64, bool) ([]float64, float64, error) {
	return nil, 0, errors.New("infeasible master problem")
}

func TestMinimizeWithScriptedMaster(t *testing.T) {
	master := &scriptedMaster{}
	opts := Defaults()
	opts.Master = master
	opt, err := New(opts)
	require.NoError(t, err)

	obj := &optimization.Sphere{Dim: 3}
	f0 := obj.Function(obj.Start())
	res := opt.Minimize(obj, nil)

	require.Equal(t, optimization.StatusOptimal, res.Status)
	assert.LessOrEqual(t, res.F, f0)
	assert.InDelta(t, 0, res.F, 1e-9)
	// The sphere advertises its optimum, so the cheat row is available.
	assert.True(t, master.sawCheat)
	assert.Equal(t, 0.0, master.lastFStar)
}

func TestMinimizeMasterFailure(t *testing.T) {
	opts := Defaults()
	opts.Master = failingMaster{}
	opt, err := New(opts)
	require.NoError(t, err)

	res := opt.Minimize(&optimization.Sphere{Dim: 2}, nil)
	assert.Equal(t, optimization.StatusError, res.Status)
}

func TestMinimizeIterationBudget(t *testing.T) {
	master := &scriptedMaster{}
	opts := Defaults()
	opts.Master = master
	opts.MaxIter = 3
	opts.Eps = 0 // unreachable, force the budget path
	opt, err := New(opts)
	require.NoError(t, err)

	res := opt.Minimize(&optimization.Sphere{Dim: 2}, nil)
	assert.Equal(t, optimization.StatusStopped, res.Status)
	assert.LessOrEqual(t, res.Iterations, opts.MaxIter+1)
}

func TestMinimizeNonSmooth(t *testing.T) {
	opts := Defaults()
	opts.Eps = 1e-6
	opts.MaxIter = 200
	opt, err := New(opts)
	require.NoError(t, err)

	obj := &optimization.AbsSum{Dim: 2}
	res := opt.Minimize(obj, nil)

	require.Equal(t, optimization.StatusOptimal, res.Status)
	assert.InDelta(t, 0, res.F, 1e-3)
	for i, xi := range res.X {
		assert.InDeltaf(t, 0, xi, 1e-3, "coordinate %d", i)
	}
}

func TestMinimizeRelativeTolerance(t *testing.T) {
	master := &scriptedMaster{}
	opts := Defaults()
	opts.Master = master
	opts.Eps = -1e-8
	opt, err := New(opts)
	require.NoError(t, err)

	res := opt.Minimize(&optimization.Sphere{Dim: 2}, nil)
	assert.Equal(t, optimization.StatusOptimal, res.Status)
	assert.False(t, math.IsInf(res.F, 0))
}
