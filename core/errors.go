package core

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every selector. Callers match them with errors.Is;
// operations wrap them with an operation tag via opErrorf.
var (
	// ErrShape is returned for nil, empty or ragged inputs.
	ErrShape = errors.New("core: invalid shape")

	// ErrInvalidSubset is returned for an empty subset, k > p, an
	// out-of-range index or a duplicated index.
	ErrInvalidSubset = errors.New("core: invalid subset")

	// ErrSingularSubset is returned when the covariance block of a subset
	// cannot be inverted.
	ErrSingularSubset = errors.New("core: singular subset covariance")

	// ErrEigenFailed is returned when the PSD repair cannot factorize the
	// pairwise covariance (for example because it holds non-finite values).
	ErrEigenFailed = errors.New("core: eigen decomposition failed")

	// ErrNoFeasibleSubset is returned by a search in which every visited
	// subset was singular.
	ErrNoFeasibleSubset = errors.New("core: no feasible subset found")
)

// opErrorf wraps err with an operation tag, keeping the sentinel reachable for errors.Is.
func opErrorf(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
