package bundle

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCvxMasterOneDim(t *testing.T) {
	// Model of f(x) = |x| at x = 1: the two cuts v >= x+d and
	// v >= -(x+d). With mu = 1 the master minimum is d = -1, v = 0.
	master := NewCvxMaster()

	grads := [][]float64{{1}, {-1}}
	consts := []float64{0, 0}
	d, v, err := master.Solve(1, []float64{1}, grads, consts, math.Inf(-1), false)
	require.NoError(t, err)
	require.Len(t, d, 1)
	assert.InDelta(t, -1, d[0], 1e-4)
	assert.InDelta(t, 0, v, 1e-4)
}

func TestCvxMasterRespectsStabilization(t *testing.T) {
	// A single cut with slope -1 pulls d to +inf without the quadratic
	// term; with it, the optimum is d = 1/mu.
	master := NewCvxMaster()

	for _, mu := range []float64{0.5, 1, 2} {
		d, _, err := master.Solve(mu, []float64{0}, [][]float64{{-1}}, []float64{0}, math.Inf(-1), false)
		require.NoError(t, err)
		assert.InDeltaf(t, 1/mu, d[0], 1e-4, "mu = %g", mu)
	}
}

func TestCvxMasterCheatCut(t *testing.T) {
	// The lower-bound row keeps v above fStar even when the cuts allow
	// lower model values.
	master := NewCvxMaster()

	_, v, err := master.Solve(1, []float64{1}, [][]float64{{1}}, []float64{0}, 0.5, true)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, v, 0.5-1e-4)
}
