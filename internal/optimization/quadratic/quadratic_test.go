package quadratic

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		qmat    *mat.SymDense
		q       []float64
		wantErr bool
	}{
		{name: "valid", qmat: mat.NewSymDense(2, []float64{2, 0, 0, 2}), q: []float64{1, 1}},
		{name: "nil matrix", qmat: nil, q: []float64{1}, wantErr: true},
		{name: "dimension mismatch", qmat: mat.NewSymDense(2, []float64{2, 0, 0, 2}), q: []float64{1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := New(tt.qmat, tt.q)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.q), f.Dim())
		})
	}
}

func TestQuadraticValueAndGradient(t *testing.T) {
	// f(x) = 1/2 x'Qx + q'x with Q = [[2,1],[1,4]], q = (-1, 2).
	f, err := New(mat.NewSymDense(2, []float64{2, 1, 1, 4}), []float64{-1, 2})
	require.NoError(t, err)

	x := []float64{3, -2}
	// 1/2 (2*9 + 2*1*3*(-2) + 4*4) + (-3 - 4) = 11 - 7
	assert.InDelta(t, 4, f.Function(x), 1e-12)

	g := f.Jacobian(x)
	// Qx + q = (6-2-1, 3-8+2)
	assert.InDelta(t, 3, g[0], 1e-12)
	assert.InDelta(t, -3, g[1], 1e-12)
}

func TestQuadraticImmutable(t *testing.T) {
	src := mat.NewSymDense(2, []float64{2, 0, 0, 2})
	f, err := New(src, []float64{0, 0})
	require.NoError(t, err)

	src.SetSym(0, 0, 100)
	assert.InDelta(t, 1, f.Function([]float64{1, 0}), 1e-12)
}

func TestQuadraticStationaryPoint(t *testing.T) {
	f, err := New(mat.NewSymDense(2, []float64{6, 2, 2, 8}), []float64{-10, -6})
	require.NoError(t, err)

	xStar := f.XStar()
	require.NotNil(t, xStar)

	// The gradient vanishes at the stationary point.
	g := f.Jacobian(xStar)
	assert.InDelta(t, 0, g[0], 1e-10)
	assert.InDelta(t, 0, g[1], 1e-10)
	assert.InDelta(t, f.Function(xStar), f.FStar(), 1e-12)
}

func TestQuadraticSingular(t *testing.T) {
	f, err := New(mat.NewSymDense(2, []float64{1, 1, 1, 1}), []float64{1, 0})
	require.NoError(t, err)

	assert.Nil(t, f.XStar())
	assert.True(t, math.IsInf(f.FStar(), -1))
}

func TestNearestPosDef(t *testing.T) {
	// An indefinite matrix with eigenvalues 3 and -1.
	a := mat.NewSymDense(2, []float64{1, 2, 2, 1})
	repaired, err := nearestPosDef(a)
	require.NoError(t, err)

	var chol mat.Cholesky
	assert.True(t, chol.Factorize(repaired))

	// The positive eigenspace is preserved.
	var eig mat.EigenSym
	require.True(t, eig.Factorize(repaired, false))
	vals := eig.Values(nil)
	for _, v := range vals {
		assert.Greater(t, v, 0.0)
	}
	assert.InDelta(t, 3, vals[len(vals)-1], 1e-9)
}
