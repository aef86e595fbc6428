package losses

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/descent/internal/optimization"
	"github.com/copyleftdev/descent/internal/optimization/steepest"
)

// fixture is a small full-rank regression problem with an exact
// solution: y = X * (2, -1).
func fixture() (*mat.Dense, []float64) {
	x := mat.NewDense(4, 2, []float64{
		1, 0,
		0, 1,
		1, 1,
		2, 1,
	})
	return x, []float64{2, -1, 1, 3}
}

func TestConstructorValidation(t *testing.T) {
	x, y := fixture()

	tests := []struct {
		name    string
		x       *mat.Dense
		y       []float64
		reg     Regularization
		lmbda   float64
		wantErr bool
	}{
		{name: "valid", x: x, y: y, reg: RegNone},
		{name: "valid l1", x: x, y: y, reg: RegL1, lmbda: 0.1},
		{name: "valid l2", x: x, y: y, reg: RegL2, lmbda: 0.1},
		{name: "nil design matrix", x: nil, y: y, reg: RegNone, wantErr: true},
		{name: "length mismatch", x: x, y: y[:2], reg: RegNone, wantErr: true},
		{name: "unknown regularization", x: x, y: y, reg: Regularization("ridge"), wantErr: true},
		{name: "negative lmbda", x: x, y: y, reg: RegL2, lmbda: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMeanSquaredError(tt.x, tt.y, tt.reg, tt.lmbda)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCrossEntropyLabelValidation(t *testing.T) {
	x, _ := fixture()
	_, err := NewCrossEntropy(x, []float64{0, 1, 0.5, 1}, RegNone, 0)
	assert.Error(t, err)

	_, err = NewCrossEntropy(x, []float64{0, 1, 0, 1}, RegNone, 0)
	assert.NoError(t, err)
}

func TestMeanSquaredErrorExactFit(t *testing.T) {
	x, y := fixture()
	f, err := NewMeanSquaredError(x, y, RegNone, 0)
	require.NoError(t, err)

	theta := []float64{2, -1}
	assert.InDelta(t, 0, f.Function(theta), 1e-12)

	g := f.Jacobian(theta)
	for i, gi := range g {
		assert.InDeltaf(t, 0, gi, 1e-12, "gradient component %d", i)
	}

	// The least-squares solution recovers the generating coefficients.
	xStar := f.XStar()
	require.NotNil(t, xStar)
	assert.InDelta(t, 2, xStar[0], 1e-10)
	assert.InDelta(t, -1, xStar[1], 1e-10)
	assert.InDelta(t, 0, f.FStar(), 1e-12)
}

func TestMeanSquaredErrorGradientNumeric(t *testing.T) {
	x, y := fixture()
	f, err := NewMeanSquaredError(x, y, RegL2, 0.3)
	require.NoError(t, err)

	theta := []float64{0.7, -0.2}
	g := f.Jacobian(theta)

	const h = 1e-6
	for i := range theta {
		plus := append([]float64(nil), theta...)
		minus := append([]float64(nil), theta...)
		plus[i] += h
		minus[i] -= h
		num := (f.Function(plus) - f.Function(minus)) / (2 * h)
		assert.InDeltaf(t, num, g[i], 1e-5, "gradient component %d", i)
	}
}

func TestCrossEntropyGradientNumeric(t *testing.T) {
	x, _ := fixture()
	f, err := NewCrossEntropy(x, []float64{1, 0, 1, 1}, RegL2, 0.1)
	require.NoError(t, err)

	theta := []float64{0.3, -0.8}
	g := f.Jacobian(theta)

	const h = 1e-6
	for i := range theta {
		plus := append([]float64(nil), theta...)
		minus := append([]float64(nil), theta...)
		plus[i] += h
		minus[i] -= h
		num := (f.Function(plus) - f.Function(minus)) / (2 * h)
		assert.InDeltaf(t, num, g[i], 1e-5, "gradient component %d", i)
	}
}

func TestMeanAbsoluteErrorSubgradient(t *testing.T) {
	x, y := fixture()
	f, err := NewMeanAbsoluteError(x, y, RegNone, 0)
	require.NoError(t, err)

	theta := []float64{2, -1}
	assert.InDelta(t, 0, f.Function(theta), 1e-12)

	// Away from the kinks the subgradient is the true gradient.
	theta = []float64{3, 0}
	g := f.Jacobian(theta)
	const h = 1e-6
	for i := range theta {
		plus := append([]float64(nil), theta...)
		minus := append([]float64(nil), theta...)
		plus[i] += h
		minus[i] -= h
		num := (f.Function(plus) - f.Function(minus)) / (2 * h)
		assert.InDeltaf(t, num, g[i], 1e-5, "subgradient component %d", i)
	}
}

func TestMinimizeMeanSquaredError(t *testing.T) {
	x, y := fixture()
	f, err := NewMeanSquaredError(x, y, RegNone, 0)
	require.NoError(t, err)

	opts := steepest.Defaults()
	opts.Eps = 1e-6
	opts.MaxFEval = 50000
	opt, err := steepest.New(opts)
	require.NoError(t, err)

	res := opt.Minimize(f, nil)
	require.Equal(t, optimization.StatusOptimal, res.Status)
	assert.InDelta(t, 2, res.X[0], 1e-4)
	assert.InDelta(t, -1, res.X[1], 1e-4)
}

func TestRegularizationPenalizes(t *testing.T) {
	x, y := fixture()
	plain, err := NewMeanSquaredError(x, y, RegNone, 0)
	require.NoError(t, err)
	l1, err := NewMeanSquaredError(x, y, RegL1, 1)
	require.NoError(t, err)
	l2, err := NewMeanSquaredError(x, y, RegL2, 1)
	require.NoError(t, err)

	theta := []float64{2, -1}
	assert.Greater(t, l1.Function(theta), plain.Function(theta))
	assert.Greater(t, l2.Function(theta), plain.Function(theta))
	assert.True(t, math.Abs(l1.Function(theta)-plain.Function(theta)-3.0/4) < 1e-12)
}
