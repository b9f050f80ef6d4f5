package core

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// minPairRows is the number of co-observed rows a pair needs before its
// covariance is estimated; pairs below it keep a zero entry.
const minPairRows = 2

const (
	opEstimateCovariance = "EstimateCovariance"
	opRepairPSD          = "RepairPSD"
)

// EstimateCovariance turns an observation matrix with missing cells into a
// symmetric positive-semi-definite p×p covariance matrix.
//
// Every entry is estimated from the rows where both columns are observed
// (pairwise-complete); pairs with fewer than two such rows stay 0. The
// assembled matrix is then repaired by clamping its negative eigenvalues
// to zero. Missing data never causes an error; only a failed
// factorization (for example non-finite input) does.
func EstimateCovariance(d *Data) (*mat.SymDense, error) {
	if d == nil {
		return nil, opErrorf(opEstimateCovariance, ErrShape)
	}
	raw := PairwiseCovariance(d)
	sigma, err := RepairPSD(raw)
	if err != nil {
		return nil, opErrorf(opEstimateCovariance, err)
	}
	return sigma, nil
}

// PairwiseCovariance returns the raw pairwise-complete covariance matrix.
// It is symmetric but not necessarily positive-semi-definite.
func PairwiseCovariance(d *Data) *mat.SymDense {
	_, p := d.Dims()
	raw := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			xi, xj := d.CoObserved(i, j)
			if len(xi) < minPairRows {
				continue
			}
			raw.SetSym(i, j, stat.Covariance(xi, xj, nil))
		}
	}
	return raw
}

// PairwiseCounts returns, for every pair of columns, the number of rows in
// which both are observed.
func PairwiseCounts(d *Data) [][]int {
	_, p := d.Dims()
	counts := make([][]int, p)
	for i := range counts {
		counts[i] = make([]int, p)
	}
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			xi, _ := d.CoObserved(i, j)
			counts[i][j] = len(xi)
			counts[j][i] = len(xi)
		}
	}
	return counts
}

// RepairPSD projects a symmetric matrix onto the PSD cone by clamping negative
// eigenvalues to zero and reconstructing V·diag(λ⁺)·Vᵀ.
//
// Columns with a non-positive diagonal carry no variance information; they
// are kept out of the eigendecomposition and their rows and columns are
// exactly zero in the result.
func RepairPSD(raw mat.Symmetric) (*mat.SymDense, error) {
	p := raw.SymmetricDim()
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			if v := raw.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, opErrorf(opRepairPSD, fmt.Errorf("entry (%d,%d) = %v: %w", i, j, v, ErrEigenFailed))
			}
		}
	}

	active := make([]int, 0, p)
	for i := 0; i < p; i++ {
		if raw.At(i, i) > 0 {
			active = append(active, i)
		}
	}
	out := mat.NewSymDense(p, nil)
	if len(active) == 0 {
		return out, nil
	}

	m := len(active)
	sub := mat.NewSymDense(m, nil)
	for a := 0; a < m; a++ {
		for b := a; b < m; b++ {
			sub.SetSym(a, b, raw.At(active[a], active[b]))
		}
	}

	var es mat.EigenSym
	if ok := es.Factorize(sub, true); !ok {
		return nil, opErrorf(opRepairPSD, ErrEigenFailed)
	}
	values := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	clamped := 0
	for k, v := range values {
		if v < 0 {
			values[k] = 0
			clamped++
		}
	}
	if clamped > 0 {
		log.Debug().Int("clamped", clamped).Int("dim", m).Msg("Clamped negative eigenvalues")
	}

	for a := 0; a < m; a++ {
		for b := a; b < m; b++ {
			var s float64
			for k := 0; k < m; k++ {
				if values[k] == 0 {
					continue
				}
				s += vecs.At(a, k) * values[k] * vecs.At(b, k)
			}
			out.SetSym(active[a], active[b], s)
		}
	}
	return out, nil
}
