package swap_test

import (
	"context"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/patrikhermansson/colsel/core"
	"github.com/patrikhermansson/colsel/swap"
)

// countingObserver counts events; safe for concurrent restarts.
type countingObserver struct {
	evals, infeasible, swaps, finished atomic.Int64
}

func (o *countingObserver) ObjectiveEvaluated(_ string, infeasible bool) {
	o.evals.Add(1)
	if infeasible {
		o.infeasible.Add(1)
	}
}

func (o *countingObserver) SwapAccepted(string) { o.swaps.Add(1) }

func (o *countingObserver) SelectionFinished(string, int, time.Duration, error) { o.finished.Add(1) }

// factorData returns n rows of p columns in which column dominant is a
// shared factor and every other column is that factor plus noise.
func factorData(t *testing.T, seed uint64, n, p, dominant int) *core.Data {
	t.Helper()
	rnd := rand.New(rand.NewPCG(seed, 17))
	rows := make([][]float64, n)
	for i := range rows {
		f := 3 * rnd.NormFloat64()
		rows[i] = make([]float64, p)
		for j := range rows[i] {
			rows[i][j] = f + 0.5*rnd.NormFloat64()
		}
		rows[i][dominant] = f
	}
	d, err := core.NewDataFromRows(rows)
	require.NoError(t, err)
	return d
}

func randomSigma(t *testing.T, seed uint64, n, p int) *mat.SymDense {
	t.Helper()
	rnd := rand.New(rand.NewPCG(seed, seed))
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, p)
		a, b := rnd.NormFloat64(), rnd.NormFloat64()
		for j := range rows[i] {
			w := float64(j) / float64(p)
			rows[i][j] = w*a + (1-w)*b + 0.7*rnd.NormFloat64()
		}
	}
	d, err := core.NewDataFromRows(rows)
	require.NoError(t, err)
	sigma, err := core.EstimateCovariance(d)
	require.NoError(t, err)
	return sigma
}

func bruteForceMin(t *testing.T, sigma mat.Symmetric, k int) float64 {
	t.Helper()
	p := sigma.SymmetricDim()
	best := math.Inf(1)
	subset := make([]int, k)
	var rec func(pos, from int)
	rec = func(pos, from int) {
		if pos == k {
			if obj, err := core.Objective(sigma, subset); err == nil && obj < best {
				best = obj
			}
			return
		}
		for c := from; c < p; c++ {
			subset[pos] = c
			rec(pos+1, c+1)
		}
	}
	rec(0, 0)
	return best
}

func TestSelectFindsDominantColumn(t *testing.T) {
	for seed := uint64(1); seed <= 5; seed++ {
		d := factorData(t, seed, 50, 5, 2)
		res, err := swap.SelectFromData(context.Background(), d, 1, 5, core.NewRand(seed))
		require.NoError(t, err)
		assert.Equal(t, []int{2}, res.Subset, "seed %d", seed)
	}
}

func TestSelectDominantAmongIndependentColumns(t *testing.T) {
	for seed := uint64(0); seed < 5; seed++ {
		rnd := rand.New(rand.NewPCG(seed, 99))
		rows := make([][]float64, 50)
		for i := range rows {
			rows[i] = make([]float64, 5)
			for j := range rows[i] {
				rows[i][j] = 0.05 * rnd.NormFloat64()
			}
			rows[i][3] = 10 * rnd.NormFloat64()
		}
		d, err := core.NewDataFromRows(rows)
		require.NoError(t, err)
		sigma, err := core.EstimateCovariance(d)
		require.NoError(t, err)

		res, err := swap.NewSelector(5).Select(context.Background(), sigma, 1, core.NewRand(seed))
		require.NoError(t, err)
		assert.Equal(t, []int{3}, res.Subset, "seed %d", seed)

		var tr float64
		for j := 0; j < 5; j++ {
			tr += sigma.At(j, j)
		}
		assert.Less(t, res.Objective, 1e-3*tr, "seed %d", seed)
	}
}

func TestSelectMixedUnits(t *testing.T) {
	sigma := mat.NewSymDense(2, []float64{1e7, 0, 0, 1e-6})
	res, err := swap.NewSelector(3).Select(context.Background(), sigma, 2, core.NewRand(4))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{0, 1}, res.Subset)
	assert.InDelta(t, 0, res.Objective, 1e-6)
}

func TestSelectResultIsConsistent(t *testing.T) {
	sigma := randomSigma(t, 3, 120, 7)
	s := swap.NewSelector(8)
	res, err := s.Select(context.Background(), sigma, 3, core.NewRand(42))
	require.NoError(t, err)
	require.Len(t, res.Subset, 3)
	require.NoError(t, core.ValidateSubset(7, res.Subset))

	obj, err := core.Objective(sigma, res.Subset)
	require.NoError(t, err)
	assert.InDelta(t, obj, res.Objective, 1e-12)
	assert.GreaterOrEqual(t, res.Objective, bruteForceMin(t, sigma, 3)-1e-12)
}

func TestSelectSingleColumnIsGlobalOptimum(t *testing.T) {
	sigma := randomSigma(t, 8, 80, 9)
	res, err := swap.NewSelector(1).Select(context.Background(), sigma, 1, core.NewRand(1))
	require.NoError(t, err)
	assert.InDelta(t, bruteForceMin(t, sigma, 1), res.Objective, 1e-12)
}

func TestSelectMoreRestartsNeverWorse(t *testing.T) {
	sigma := randomSigma(t, 5, 100, 10)
	prev := math.Inf(1)
	for restarts := 1; restarts <= 12; restarts++ {
		res, err := swap.NewSelector(restarts).Select(context.Background(), sigma, 3, core.NewRand(2024))
		require.NoError(t, err)
		assert.LessOrEqual(t, res.Objective, prev, "restarts=%d", restarts)
		prev = res.Objective
	}
}

func TestSelectIndependentOfWorkers(t *testing.T) {
	sigma := randomSigma(t, 6, 100, 10)

	serial := swap.NewSelector(16)
	serial.Workers = 1
	want, err := serial.Select(context.Background(), sigma, 4, core.NewRand(77))
	require.NoError(t, err)

	parallel := swap.NewSelector(16)
	parallel.Workers = 8
	got, err := parallel.Select(context.Background(), sigma, 4, core.NewRand(77))
	require.NoError(t, err)

	assert.Equal(t, want.Subset, got.Subset)
	assert.Equal(t, want.Objective, got.Objective)
}

func TestSelectAvoidsSingularSubsets(t *testing.T) {
	// Columns 0 and 1 are identical.
	sigma := mat.NewSymDense(3, []float64{
		1, 1, 0,
		1, 1, 0,
		0, 0, 1,
	})
	obs := &countingObserver{}
	s := swap.NewSelector(6)
	s.Observer = obs
	res, err := s.Select(context.Background(), sigma, 2, core.NewRand(9))
	require.NoError(t, err)
	assert.Contains(t, res.Subset, 2)
	assert.InDelta(t, 0.0, res.Objective, 1e-12)
	assert.EqualValues(t, 1, obs.finished.Load())
}

func TestSelectNoFeasibleSubset(t *testing.T) {
	sigma := mat.NewSymDense(3, nil)
	_, err := swap.NewSelector(3).Select(context.Background(), sigma, 1, core.NewRand(1))
	assert.ErrorIs(t, err, core.ErrNoFeasibleSubset)
}

func TestSelectMaxSwaps(t *testing.T) {
	sigma := randomSigma(t, 12, 100, 12)
	obs := &countingObserver{}
	s := swap.NewSelector(4)
	s.MaxSwaps = 1
	s.Observer = obs
	_, err := s.Select(context.Background(), sigma, 4, core.NewRand(3))
	require.NoError(t, err)
	assert.LessOrEqual(t, obs.swaps.Load(), int64(4))
	assert.Positive(t, obs.evals.Load())
}

func TestSelectCancelledContext(t *testing.T) {
	sigma := randomSigma(t, 1, 50, 6)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := swap.NewSelector(4).Select(ctx, sigma, 2, core.NewRand(1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSelectInvalidK(t *testing.T) {
	sigma := randomSigma(t, 1, 50, 6)
	for _, k := range []int{0, -1, 7} {
		_, err := swap.NewSelector(2).Select(context.Background(), sigma, k, core.NewRand(1))
		assert.ErrorIs(t, err, core.ErrInvalidSubset, "k=%d", k)
	}
	_, err := swap.NewSelector(2).Select(context.Background(), nil, 1, core.NewRand(1))
	assert.ErrorIs(t, err, core.ErrShape)
}

func TestNewSelectorDefaults(t *testing.T) {
	s := swap.NewSelector(0)
	assert.Equal(t, swap.DefaultRestarts, s.Restarts)
	assert.Zero(t, s.MaxSwaps)
	assert.Positive(t, s.Workers)
}
