package quadratic

import (
	"gonum.org/v1/gonum/mat"
)

// nearestPosDef returns the nearest symmetric positive-definite matrix
// to A in the Frobenius sense: the negative eigenvalues of the spectral
// decomposition are clamped to a small positive floor and the matrix is
// rebuilt. Used to repair an indefinite Q before Cholesky factorization.
func nearestPosDef(A *mat.SymDense) (*mat.SymDense, error) {
	n := A.SymmetricDim()

	var eig mat.EigenSym
	if ok := eig.Factorize(A, true); !ok {
		return nil, errEigenFailed
	}

	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// Floor relative to the largest eigenvalue, so the repair scales
	// with the matrix.
	maxEig := 0.0
	for _, v := range vals {
		if v > maxEig {
			maxEig = v
		}
	}
	floor := 1e-10
	if maxEig > 0 {
		floor = 1e-10 * maxEig
	}
	for i, v := range vals {
		if v < floor {
			vals[i] = floor
		}
	}

	// Rebuild V * diag(vals) * V'.
	scaled := mat.NewDense(n, n, nil)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			scaled.Set(i, j, vecs.At(i, j)*vals[j])
		}
	}
	var full mat.Dense
	full.Mul(scaled, vecs.T())

	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			// Symmetrize against round-off.
			out.SetSym(i, j, 0.5*(full.At(i, j)+full.At(j, i)))
		}
	}
	return out, nil
}

var errEigenFailed = errFactorization("eigendecomposition failed")

type errFactorization string

func (e errFactorization) Error() string { return string(e) }
