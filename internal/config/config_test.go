package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrikhermansson/colsel/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, config.Methods, cfg.Methods)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
k: [2, 4]
trials: 3
methods: [swap, bomp]
dataset:
  simulate:
    cols: 12
    missing: 0.25
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4}, cfg.Ks)
	assert.Equal(t, 3, cfg.Trials)
	assert.Equal(t, []string{"swap", "bomp"}, cfg.Methods)
	assert.Equal(t, 12, cfg.Dataset.Simulate.Cols)
	assert.Equal(t, 0.25, cfg.Dataset.Simulate.Missing)
	assert.Equal(t, 200, cfg.Dataset.Simulate.Rows, "unset fields keep their defaults")
	assert.Equal(t, 10, cfg.Restarts)
	assert.Equal(t, 1000, cfg.Lasso.Solver.MaxIter)
}

func TestParseRejectsInvalid(t *testing.T) {
	for name, doc := range map[string]string{
		"unknown method": "methods: [pca]",
		"zero k":         "k: [0]",
		"k above cols":   "k: [30]",
		"no trials":      "trials: 0",
		"bad missing":    "dataset: {simulate: {missing: 1.5}}",
		"negative tol":   "lasso: {tol: -1}",
	} {
		_, err := config.Parse([]byte(doc))
		assert.ErrorIs(t, err, config.ErrInvalid, name)
	}

	_, err := config.Parse([]byte("k: [1, 2"))
	assert.Error(t, err)
}

func TestCSVSkipsSimulationChecks(t *testing.T) {
	cfg, err := config.Parse([]byte(`
k: [50]
dataset:
  csv: data.csv
  simulate: {cols: 0}
`))
	require.NoError(t, err)
	assert.Equal(t, "data.csv", cfg.Dataset.CSV)
}

func TestYAMLRoundTrip(t *testing.T) {
	cfg := config.Default()
	cfg.Seed = 99
	doc, err := cfg.YAML()
	require.NoError(t, err)

	back, err := config.Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, cfg, *back)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
