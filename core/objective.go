package core

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ConditionLimit is the largest condition number accepted for the correlation
// matrix of a subset's covariance block. Blocks above it are reported as
// ErrSingularSubset. Measuring the correlation matrix keeps the test
// independent of column units.
var ConditionLimit = 1e12

const opObjective = "Objective"

// ValidateSubset checks that subset holds between 1 and p distinct indices in [0, p).
func ValidateSubset(p int, subset []int) error {
	k := len(subset)
	if k == 0 || k > p {
		return fmt.Errorf("size %d for %d columns: %w", k, p, ErrInvalidSubset)
	}
	seen := make([]bool, p)
	for _, idx := range subset {
		if idx < 0 || idx >= p {
			return fmt.Errorf("index %d outside [0,%d): %w", idx, p, ErrInvalidSubset)
		}
		if seen[idx] {
			return fmt.Errorf("duplicate index %d: %w", idx, ErrInvalidSubset)
		}
		seen[idx] = true
	}
	return nil
}

// Objective returns the column subset selection objective
//
//	trace(Σ − Σ_·S Σ_SS⁻¹ Σ_S·)
//
// that is, the total variance left unexplained after projecting every
// variable onto the span of the variables in subset. Small negative values
// caused by cancellation are floored at 0.
//
// It returns ErrInvalidSubset for a malformed subset and ErrSingularSubset
// when Σ_SS is singular or worse conditioned than ConditionLimit.
func Objective(sigma mat.Symmetric, subset []int) (float64, error) {
	if sigma == nil {
		return 0, opErrorf(opObjective, ErrShape)
	}
	p := sigma.SymmetricDim()
	if err := ValidateSubset(p, subset); err != nil {
		return 0, opErrorf(opObjective, err)
	}

	k := len(subset)
	block := mat.NewSymDense(k, nil)
	for a := 0; a < k; a++ {
		for b := a; b < k; b++ {
			block.SetSym(a, b, sigma.At(subset[a], subset[b]))
		}
	}

	if cond := blockCondition(block); math.IsNaN(cond) || cond > ConditionLimit {
		return 0, opErrorf(opObjective, fmt.Errorf("subset %v: condition %.3g: %w", subset, cond, ErrSingularSubset))
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(block); !ok {
		return 0, opErrorf(opObjective, fmt.Errorf("subset %v: %w", subset, ErrSingularSubset))
	}

	// cross holds Σ_S·, the k×p rows of Σ indexed by the subset.
	cross := mat.NewDense(k, p, nil)
	for a, s := range subset {
		for j := 0; j < p; j++ {
			cross.Set(a, j, sigma.At(s, j))
		}
	}
	var proj mat.Dense
	if err := chol.SolveTo(&proj, cross); err != nil {
		return 0, opErrorf(opObjective, fmt.Errorf("subset %v: %v: %w", subset, err, ErrSingularSubset))
	}

	var total, explained float64
	for j := 0; j < p; j++ {
		total += sigma.At(j, j)
		for a := 0; a < k; a++ {
			explained += cross.At(a, j) * proj.At(a, j)
		}
	}

	obj := total - explained
	if obj < 0 {
		obj = 0
	}
	return obj, nil
}

// blockCondition returns the condition number of D^-1/2·block·D^-1/2 with D
// the diagonal of block, or +Inf when a diagonal entry is not positive or the
// rescaled block is not positive definite.
func blockCondition(block *mat.SymDense) float64 {
	k := block.SymmetricDim()
	scale := make([]float64, k)
	for a := 0; a < k; a++ {
		v := block.At(a, a)
		if !(v > 0) {
			return math.Inf(1)
		}
		scale[a] = 1 / math.Sqrt(v)
	}
	corr := mat.NewSymDense(k, nil)
	for a := 0; a < k; a++ {
		for b := a; b < k; b++ {
			corr.SetSym(a, b, block.At(a, b)*scale[a]*scale[b])
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(corr); !ok {
		return math.Inf(1)
	}
	return chol.Cond()
}
