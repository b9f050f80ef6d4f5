package example

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"github.com/patrikhermansson/colsel/bomp"
	"github.com/patrikhermansson/colsel/core"
	"github.com/patrikhermansson/colsel/grouplasso"
	"github.com/patrikhermansson/colsel/internal/config"
	"github.com/patrikhermansson/colsel/swap"
)

// Selection is the output of one selector run on one dataset.
type Selection struct {
	Method    string
	K         int
	Subset    []int
	Objective float64 // against the covariance estimated from the data; NaN when singular
	Duration  time.Duration
	Lambda    float64 // group lasso only
}

// Runner runs any of the selectors with shared settings.
type Runner struct {
	Restarts int           // swap restarts
	Workers  int           // swap parallelism, 0 for GOMAXPROCS
	Lasso    config.Lasso  // group-lasso settings
	Observer core.Observer // optional event sink passed to every selector
}

// NewRunner returns a runner with the defaults of config.Default.
func NewRunner() *Runner {
	def := config.Default()
	return &Runner{Restarts: def.Restarts, Lasso: def.Lasso}
}

// Run selects k columns of d with the named method. sigma is the covariance
// estimated from d; it drives the swap search and scores every method.
func (r *Runner) Run(ctx context.Context, method string, d *core.Data, sigma mat.Symmetric, k int, rnd *rand.Rand) (Selection, error) {
	sel := Selection{Method: method, K: k, Objective: math.NaN(), Lambda: math.NaN()}
	start := time.Now()

	switch method {
	case swap.Method:
		s := swap.NewSelector(r.Restarts)
		if r.Workers > 0 {
			s.Workers = r.Workers
		}
		s.Observer = r.Observer
		res, err := s.Select(ctx, sigma, k, rnd)
		sel.Duration = time.Since(start)
		if err != nil {
			return sel, err
		}
		sel.Subset, sel.Objective = res.Subset, res.Objective
		return sel, nil
	case bomp.Method:
		s := bomp.NewSelector()
		s.Observer = r.Observer
		subset, err := s.Select(ctx, d, k)
		sel.Duration = time.Since(start)
		if err != nil {
			return sel, err
		}
		sel.Subset = subset
	case grouplasso.Method:
		s := grouplasso.NewSelector()
		s.Groups = r.Lasso.Groups
		if r.Lasso.Tol > 0 {
			s.Tol = r.Lasso.Tol
		}
		if r.Lasso.MaxBisections > 0 {
			s.MaxBisections = r.Lasso.MaxBisections
		}
		s.Config = r.Lasso.Solver
		s.Observer = r.Observer
		res, err := s.Select(ctx, d, k)
		sel.Duration = time.Since(start)
		if err != nil {
			return sel, err
		}
		sel.Subset, sel.Lambda = res.Indices, res.Lambda
	default:
		return sel, fmt.Errorf("unknown method %q", method)
	}

	obj, err := core.Objective(sigma, sel.Subset)
	if err != nil {
		return sel, err
	}
	sel.Objective = obj
	return sel, nil
}

// RunDataset loads a CSV dataset, estimates its covariance and runs one
// selector on it, printing the selection and its objective.
func RunDataset(ctx context.Context, r *Runner, path string, skipHeader bool, na []string, method string, k int, seed uint64) (Selection, error) {
	overallStart := time.Now()
	d, err := LoadCSV(path, skipHeader, na)
	if err != nil {
		return Selection{}, err
	}
	sigma, err := core.EstimateCovariance(d)
	if err != nil {
		return Selection{}, fmt.Errorf("estimate covariance: %w", err)
	}
	n, p := d.Dims()
	log.Info().Msgf("Estimated %dx%d covariance from %d rows in %v", p, p, n, time.Since(overallStart))

	sel, err := r.Run(ctx, method, d, sigma, k, core.NewRand(seed))
	if err != nil {
		return sel, fmt.Errorf("%s: %w", method, err)
	}

	fmt.Printf("Method:     %s\n", sel.Method)
	fmt.Printf("Subset:     %s\n", FormatSubset(sel.Subset, p))
	fmt.Printf("Objective:  %.6g (total variance %.6g)\n", sel.Objective, trace(sigma))
	if !math.IsNaN(sel.Lambda) {
		fmt.Printf("Lambda:     %.6g\n", sel.Lambda)
	}
	fmt.Printf("Selection time: %v\n", sel.Duration)
	fmt.Printf("Overall runtime: %v\n", time.Since(overallStart))
	return sel, nil
}

// LassoPath reports how many predictors are active at steps+1 evenly spaced
// penalties from λ_max down to 0, using the imputed design of d.
func LassoPath(ctx context.Context, d *core.Data, steps int) ([]float64, []int, error) {
	if steps < 1 {
		steps = 1
	}
	x, y, err := grouplasso.Impute(d)
	if err != nil {
		return nil, nil, err
	}
	lmax, err := grouplasso.LambdaMax(x, y, nil)
	if err != nil {
		return nil, nil, err
	}
	lambdas := make([]float64, steps+1)
	for i := range lambdas {
		lambdas[i] = lmax * float64(steps-i) / float64(steps)
	}
	counts, err := grouplasso.Path(ctx, x, y, lambdas)
	if err != nil {
		return nil, nil, err
	}
	return lambdas, counts, nil
}

func trace(s mat.Symmetric) float64 {
	var tr float64
	for i := 0; i < s.SymmetricDim(); i++ {
		tr += s.At(i, i)
	}
	return tr
}
