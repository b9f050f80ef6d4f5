package bomp_test

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrikhermansson/colsel/bomp"
	"github.com/patrikhermansson/colsel/core"
)

func randomData(t *testing.T, seed uint64, n, p int, missing float64) *core.Data {
	t.Helper()
	rnd := rand.New(rand.NewPCG(seed, 3))
	rows := make([][]float64, n)
	for i := range rows {
		f := rnd.NormFloat64()
		rows[i] = make([]float64, p)
		for j := range rows[i] {
			rows[i][j] = float64(j+1)*0.3*f + rnd.NormFloat64()
			if rnd.Float64() < missing {
				rows[i][j] = math.NaN()
			}
		}
	}
	d, err := core.NewDataFromRows(rows)
	require.NoError(t, err)
	return d
}

func TestSelectOrthogonalColumnsByEnergy(t *testing.T) {
	d, err := core.NewDataFromRows([][]float64{
		{1, 0, 0},
		{-1, 0, 0},
		{0, 2, 0},
		{0, -2, 0},
		{0, 0, 3},
		{0, 0, -3},
	})
	require.NoError(t, err)

	picks, err := bomp.NewSelector().SelectWithScores(context.Background(), d, 3)
	require.NoError(t, err)
	require.Len(t, picks, 3)
	assert.Equal(t, 2, picks[0].Column)
	assert.Equal(t, 1, picks[1].Column)
	assert.Equal(t, 0, picks[2].Column)
	assert.InDelta(t, 18.0, picks[0].Score, 1e-12)
	assert.InDelta(t, 8.0, picks[1].Score, 1e-12)
	assert.InDelta(t, 2.0, picks[2].Score, 1e-12)
}

func TestSelectReturnsDistinctIndices(t *testing.T) {
	d := randomData(t, 1, 60, 8, 0.2)
	for k := 1; k <= 8; k++ {
		sel, err := bomp.NewSelector().Select(context.Background(), d, k)
		require.NoError(t, err)
		require.Len(t, sel, k)
		assert.NoError(t, core.ValidateSubset(8, sel))
	}
}

func TestSelectPrefixStable(t *testing.T) {
	d := randomData(t, 2, 60, 8, 0.1)
	short, err := bomp.NewSelector().Select(context.Background(), d, 3)
	require.NoError(t, err)
	long, err := bomp.NewSelector().Select(context.Background(), d, 6)
	require.NoError(t, err)
	assert.Equal(t, short, long[:3])
}

func TestSelectScoresDecreaseOnCompleteData(t *testing.T) {
	d := randomData(t, 4, 80, 7, 0)
	picks, err := bomp.NewSelector().SelectWithScores(context.Background(), d, 7)
	require.NoError(t, err)
	for i := 1; i < len(picks); i++ {
		assert.LessOrEqual(t, picks[i].Score, picks[i-1].Score*(1+1e-9), "pick %d", i)
	}
}

func TestSelectSparseColumnScoresZero(t *testing.T) {
	nan := math.NaN()
	d, err := core.NewDataFromRows([][]float64{
		{100, 1, 2},
		{nan, -1, 1},
		{nan, 2, -2},
		{nan, -2, 0},
	})
	require.NoError(t, err)

	picks, err := bomp.NewSelector().SelectWithScores(context.Background(), d, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, picks[2].Column, "a column with a single observation is picked last")
	assert.Zero(t, picks[2].Score)
}

func TestSelectInvalidInput(t *testing.T) {
	d := randomData(t, 5, 10, 4, 0)
	for _, k := range []int{0, 5} {
		_, err := bomp.NewSelector().Select(context.Background(), d, k)
		assert.ErrorIs(t, err, core.ErrInvalidSubset, "k=%d", k)
	}
	_, err := bomp.NewSelector().Select(context.Background(), nil, 1)
	assert.ErrorIs(t, err, core.ErrShape)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = bomp.NewSelector().Select(ctx, d, 2)
	assert.ErrorIs(t, err, context.Canceled)
}
