package store_test

import (
	"database/sql"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrikhermansson/colsel/internal/store"
)

func tempStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := tempStore(t)

	run, err := s.BeginRun(42, "k: [1]\n")
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)

	got, err := s.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got.Seed)
	assert.Equal(t, "k: [1]\n", got.ConfigYAML)
	assert.True(t, got.FinishedAt.IsZero())

	require.NoError(t, s.FinishRun(run.ID))
	got, err = s.GetRun(run.ID)
	require.NoError(t, err)
	assert.False(t, got.FinishedAt.IsZero())

	assert.ErrorIs(t, s.FinishRun("missing"), sql.ErrNoRows)
	_, err = s.GetRun("missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestFailRunRecordsCause(t *testing.T) {
	s := tempStore(t)
	run, err := s.BeginRun(7, "")
	require.NoError(t, err)

	require.NoError(t, s.FailRun(run.ID, errors.New("benchmark: context canceled")))
	got, err := s.GetRun(run.ID)
	require.NoError(t, err)
	assert.False(t, got.FinishedAt.IsZero())
	assert.Equal(t, "benchmark: context canceled", got.Err)

	ok, err := s.BeginRun(8, "")
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(ok.ID))
	got, err = s.GetRun(ok.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Err)

	assert.ErrorIs(t, s.FailRun("missing", assert.AnError), sql.ErrNoRows)
}

func TestSelectionsRoundTrip(t *testing.T) {
	s := tempStore(t)
	run, err := s.BeginRun(math.MaxUint64, "")
	require.NoError(t, err)

	in := []store.Selection{
		{RunID: run.ID, Trial: 0, K: 2, Method: "swap", Subset: []int{3, 1}, Objective: 1.5, TruthObjective: 1.25, Duration: 3 * time.Millisecond},
		{RunID: run.ID, Trial: 0, K: 2, Method: "grouplasso", Subset: nil, Objective: math.NaN(), TruthObjective: math.NaN(), Err: "no exact sparsity"},
		{RunID: run.ID, Trial: 1, K: 1, Method: "bomp", Subset: []int{0}, Objective: 2, TruthObjective: 2.5, Duration: time.Second},
	}
	require.NoError(t, s.SaveSelections(in))

	out, err := s.Selections(run.ID)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, "bomp", out[0].Method)
	assert.Equal(t, []int{0}, out[0].Subset)
	assert.Equal(t, time.Second, out[0].Duration)

	assert.Equal(t, "grouplasso", out[1].Method)
	assert.Empty(t, out[1].Subset)
	assert.True(t, math.IsNaN(out[1].Objective))
	assert.Equal(t, "no exact sparsity", out[1].Err)

	assert.Equal(t, []int{3, 1}, out[2].Subset)
	assert.Equal(t, 1.25, out[2].TruthObjective)
	assert.Empty(t, out[2].Err)

	got, err := s.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), got.Seed)
}

func TestSelectionsRequireRun(t *testing.T) {
	s := tempStore(t)
	err := s.SaveSelections([]store.Selection{{RunID: "nope", Method: "swap", Subset: []int{1}}})
	assert.Error(t, err)
}

func TestListRunsInMemory(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	first, err := s.BeginRun(1, "")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := s.BeginRun(2, "")
	require.NoError(t, err)

	runs, err := s.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, first.ID, runs[1].ID)
}
