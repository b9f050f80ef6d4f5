package grouplasso

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"github.com/patrikhermansson/colsel/core"
)

// Method is the name reported to core.Observer.
const Method = "grouplasso"

// ErrNoExactSparsity is returned when the bisection over λ ends without a
// fit that has exactly the requested number of non-zero coefficients.
var ErrNoExactSparsity = errors.New("grouplasso: no penalty gives the requested sparsity")

// Bisection defaults.
const (
	DefaultTol           = 1e-6
	DefaultMaxBisections = 100
)

// Selection is the outcome of a successful bisection.
type Selection struct {
	Indices      []int     // selected original column indices, ascending; column 0 is never included
	Lambda       float64   // penalty of the accepted fit
	Coefficients []float64 // one coefficient per predictor column 1..p-1
	Steps        int       // bisection steps taken
}

// Selector binary-searches the lasso penalty for a fit with exactly k
// non-zero coefficients. Missing cells are mean-imputed, column 0 is the
// response and the remaining columns are the predictors.
type Selector struct {
	Groups        [][]int       // optional partition of predictors (0-based over columns 1..p-1); nil means the plain lasso
	Tol           float64       // stop when the bracket is narrower than Tol·λ_max
	MaxBisections int           // cap on bisection steps
	Config        Config        // coordinate descent settings
	Observer      core.Observer // optional event sink
}

// NewSelector creates a lasso bisection selector with default settings.
func NewSelector() *Selector {
	return &Selector{
		Tol:           DefaultTol,
		MaxBisections: DefaultMaxBisections,
		Config:        DefaultConfig(),
	}
}

// Impute returns the design and response built from d: every missing cell is
// replaced by its column's observed mean (0 for an all-missing column),
// column 0 becomes y and columns 1..p-1 become X.
func Impute(d *core.Data) (*mat.Dense, []float64, error) {
	if d == nil {
		return nil, nil, fmt.Errorf("grouplasso: %w", core.ErrShape)
	}
	n, p := d.Dims()
	if p < 2 {
		return nil, nil, fmt.Errorf("grouplasso: need a response and at least one predictor, have %d columns: %w", p, core.ErrShape)
	}

	means := make([]float64, p)
	for j := 0; j < p; j++ {
		var sum float64
		cnt := 0
		for i := 0; i < n; i++ {
			if v, ok := d.At(i, j); ok {
				sum += v
				cnt++
			}
		}
		if cnt > 0 {
			means[j] = sum / float64(cnt)
		}
	}

	x := mat.NewDense(n, p-1, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			v, ok := d.At(i, j)
			if !ok {
				v = means[j]
			}
			if j == 0 {
				y[i] = v
			} else {
				x.Set(i, j-1, v)
			}
		}
	}
	return x, y, nil
}

// Select returns the predictor columns active in a fit with exactly k
// non-zero coefficients, or ErrNoExactSparsity.
func (s *Selector) Select(ctx context.Context, d *core.Data, k int) (sel *Selection, err error) {
	obs := core.ObserverOrNop(s.Observer)
	start := time.Now()
	defer func() { obs.SelectionFinished(Method, k, time.Since(start), err) }()

	x, y, err := Impute(d)
	if err != nil {
		return nil, err
	}
	_, m := x.Dims()
	if k < 1 || k > m {
		return nil, fmt.Errorf("grouplasso: k=%d for %d predictors: %w", k, m, core.ErrInvalidSubset)
	}

	pr, err := newProblem(x, y, s.Groups)
	if err != nil {
		return nil, err
	}
	lmax := pr.lambdaMax()
	if lmax == 0 {
		return nil, fmt.Errorf("grouplasso: response is uncorrelated with every predictor: %w", ErrNoExactSparsity)
	}

	tol := s.Tol
	if tol <= 0 {
		tol = DefaultTol
	}
	maxSteps := s.MaxBisections
	if maxSteps <= 0 {
		maxSteps = DefaultMaxBisections
	}

	lo, hi := 0.0, lmax
	for step := 1; step <= maxSteps && hi-lo >= tol*lmax; step++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("grouplasso: %w", err)
		}
		mid := (lo + hi) / 2
		beta, sweeps, err := pr.fit(ctx, mid, s.Config)
		if err != nil {
			return nil, fmt.Errorf("grouplasso: %w", err)
		}
		nz := countNonZero(beta)
		log.Debug().
			Int("step", step).
			Float64("lambda", mid).
			Int("nonzero", nz).
			Int("sweeps", sweeps).
			Msg("Bisection step")

		switch {
		case nz == k:
			indices := make([]int, 0, k)
			for j, b := range beta {
				if b != 0 {
					indices = append(indices, j+1)
				}
			}
			return &Selection{Indices: indices, Lambda: mid, Coefficients: beta, Steps: step}, nil
		case nz > k:
			lo = mid
		default:
			hi = mid
		}
	}
	return nil, fmt.Errorf("grouplasso: k=%d, bracket [%g, %g]: %w", k, lo, hi, ErrNoExactSparsity)
}
