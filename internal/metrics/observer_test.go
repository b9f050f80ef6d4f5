package metrics_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/patrikhermansson/colsel/core"
	"github.com/patrikhermansson/colsel/internal/metrics"
	"github.com/patrikhermansson/colsel/swap"
)

func counterSum(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var sum float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}

func TestObserverCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := metrics.NewObserver(reg)
	require.NoError(t, err)

	obs.ObjectiveEvaluated("swap", false)
	obs.ObjectiveEvaluated("swap", false)
	obs.ObjectiveEvaluated("swap", true)
	obs.SwapAccepted("swap")
	obs.SelectionFinished("swap", 2, 10*time.Millisecond, nil)
	obs.SelectionFinished("grouplasso", 2, time.Millisecond, errors.New("boom"))

	series, err := testutil.GatherAndCount(reg, "colsel_objective_evaluations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series)
	assert.Equal(t, 3.0, counterSum(t, reg, "colsel_objective_evaluations_total"))
	assert.Equal(t, 1.0, counterSum(t, reg, "colsel_swaps_accepted_total"))

	expected := `
# HELP colsel_selections_total Finished selections by method and status
# TYPE colsel_selections_total counter
colsel_selections_total{method="grouplasso",status="error"} 1
colsel_selections_total{method="swap",status="success"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "colsel_selections_total"))
}

func TestObserverDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := metrics.NewObserver(reg)
	require.NoError(t, err)
	_, err = metrics.NewObserver(reg)
	assert.Error(t, err)
}

func TestObserverWithSwapSelector(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := metrics.NewObserver(reg)
	require.NoError(t, err)

	sigma := mat.NewSymDense(3, []float64{
		2, 1, 0,
		1, 2, 0,
		0, 0, 1,
	})
	s := swap.NewSelector(3)
	s.Observer = obs
	_, err = s.Select(context.Background(), sigma, 1, core.NewRand(1))
	require.NoError(t, err)

	assert.GreaterOrEqual(t, counterSum(t, reg, "colsel_objective_evaluations_total"), 3.0)
	assert.Equal(t, 1.0, counterSum(t, reg, "colsel_selections_total"))
	series, err := testutil.GatherAndCount(reg, "colsel_selection_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, series)
}
