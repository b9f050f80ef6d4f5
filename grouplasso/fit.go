package grouplasso

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/patrikhermansson/colsel/core"
)

// Config controls the block coordinate descent solver.
type Config struct {
	MaxIter int     `yaml:"max_iter"` // maximum number of full sweeps over the groups
	Tol     float64 `yaml:"tol"`      // stop when no coefficient moves more than this
}

// DefaultConfig returns the solver settings used when none are given.
func DefaultConfig() Config {
	return Config{MaxIter: 1000, Tol: 1e-8}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxIter <= 0 {
		c.MaxIter = def.MaxIter
	}
	if c.Tol <= 0 {
		c.Tol = def.Tol
	}
	return c
}

// problem is a centered design with its group structure precomputed.
type problem struct {
	n, m      int
	cols      [][]float64 // centered predictor columns
	y         []float64   // centered response
	groups    [][]int
	weights   []float64 // sqrt(|g|)
	lipschitz []float64 // largest eigenvalue of X_gᵀX_g/n
}

// Singletons returns the partition of m predictors into one group each.
func Singletons(m int) [][]int {
	groups := make([][]int, m)
	for j := range groups {
		groups[j] = []int{j}
	}
	return groups
}

func validateGroups(groups [][]int, m int) error {
	seen := make([]bool, m)
	count := 0
	for gi, g := range groups {
		if len(g) == 0 {
			return fmt.Errorf("group %d is empty: %w", gi, core.ErrShape)
		}
		for _, j := range g {
			if j < 0 || j >= m || seen[j] {
				return fmt.Errorf("group %d: predictor %d out of range or repeated: %w", gi, j, core.ErrShape)
			}
			seen[j] = true
			count++
		}
	}
	if count != m {
		return fmt.Errorf("groups cover %d of %d predictors: %w", count, m, core.ErrShape)
	}
	return nil
}

func newProblem(x mat.Matrix, y []float64, groups [][]int) (*problem, error) {
	if x == nil {
		return nil, fmt.Errorf("grouplasso: %w", core.ErrShape)
	}
	n, m := x.Dims()
	if n != len(y) || n < 1 || m < 1 {
		return nil, fmt.Errorf("grouplasso: design %dx%d with %d responses: %w", n, m, len(y), core.ErrShape)
	}
	if groups == nil {
		groups = Singletons(m)
	}
	if err := validateGroups(groups, m); err != nil {
		return nil, fmt.Errorf("grouplasso: %w", err)
	}

	pr := &problem{
		n:         n,
		m:         m,
		cols:      make([][]float64, m),
		y:         make([]float64, n),
		groups:    groups,
		weights:   make([]float64, len(groups)),
		lipschitz: make([]float64, len(groups)),
	}
	copy(pr.y, y)
	floats.AddConst(-stat.Mean(pr.y, nil), pr.y)
	for j := 0; j < m; j++ {
		col := mat.Col(nil, j, x)
		floats.AddConst(-stat.Mean(col, nil), col)
		pr.cols[j] = col
	}

	for gi, g := range groups {
		pr.weights[gi] = math.Sqrt(float64(len(g)))
		if len(g) == 1 {
			c := pr.cols[g[0]]
			pr.lipschitz[gi] = floats.Dot(c, c) / float64(n)
			continue
		}
		gram := mat.NewSymDense(len(g), nil)
		for a := range g {
			for b := a; b < len(g); b++ {
				gram.SetSym(a, b, floats.Dot(pr.cols[g[a]], pr.cols[g[b]])/float64(n))
			}
		}
		var es mat.EigenSym
		if ok := es.Factorize(gram, false); !ok {
			return nil, fmt.Errorf("grouplasso: group %d: %w", gi, core.ErrEigenFailed)
		}
		vals := es.Values(nil)
		pr.lipschitz[gi] = vals[len(vals)-1]
	}
	return pr, nil
}

// lambdaMax is the smallest penalty at which every coefficient is zero.
func (pr *problem) lambdaMax() float64 {
	var lmax float64
	for gi, g := range pr.groups {
		u := make([]float64, len(g))
		for a, j := range g {
			u[a] = floats.Dot(pr.cols[j], pr.y) / float64(pr.n)
		}
		lmax = math.Max(lmax, floats.Norm(u, 2)/pr.weights[gi])
	}
	return lmax
}

// fit minimizes (1/2n)‖y − Xb‖² + λ Σ_g w_g‖b_g‖ by block coordinate descent
// starting from zero. Each block takes one proximal gradient step of size
// 1/L_g, which for a singleton group is the exact lasso coordinate update.
func (pr *problem) fit(ctx context.Context, lambda float64, cfg Config) ([]float64, int, error) {
	cfg = cfg.withDefaults()
	beta := make([]float64, pr.m)
	resid := make([]float64, pr.n)
	copy(resid, pr.y)
	nf := float64(pr.n)

	sweeps := 0
	for sweeps < cfg.MaxIter {
		if err := ctx.Err(); err != nil {
			return nil, sweeps, err
		}
		sweeps++
		var maxDelta float64
		for gi, g := range pr.groups {
			lg := pr.lipschitz[gi]
			if lg <= 0 {
				continue
			}
			// u is L_g·b_g − ∇_g, the unscaled gradient step.
			u := make([]float64, len(g))
			for a, j := range g {
				u[a] = lg*beta[j] + floats.Dot(pr.cols[j], resid)/nf
			}
			norm := floats.Norm(u, 2)
			scale := 0.0
			if norm/pr.weights[gi] > lambda {
				scale = (1 - lambda*pr.weights[gi]/norm) / lg
			}
			for a, j := range g {
				next := scale * u[a]
				delta := next - beta[j]
				if delta == 0 {
					continue
				}
				floats.AddScaled(resid, -delta, pr.cols[j])
				beta[j] = next
				maxDelta = math.Max(maxDelta, math.Abs(delta))
			}
		}
		if maxDelta < cfg.Tol {
			break
		}
	}
	return beta, sweeps, nil
}

// Fit solves the group lasso of y on the columns of x at penalty lambda and
// returns one coefficient per column. Data are centered internally so the
// intercept is implicit. A nil groups argument puts every column in its own
// group, which is the plain lasso.
func Fit(ctx context.Context, x mat.Matrix, y []float64, groups [][]int, lambda float64, cfg Config) ([]float64, error) {
	pr, err := newProblem(x, y, groups)
	if err != nil {
		return nil, err
	}
	beta, _, err := pr.fit(ctx, lambda, cfg)
	if err != nil {
		return nil, fmt.Errorf("grouplasso: %w", err)
	}
	return beta, nil
}

// LambdaMax returns max_g ‖X_gᵀ(y−ȳ)‖ / (n·√|g|) over the groups of the
// centered design, the penalty at and above which every coefficient is zero.
func LambdaMax(x mat.Matrix, y []float64, groups [][]int) (float64, error) {
	pr, err := newProblem(x, y, groups)
	if err != nil {
		return 0, err
	}
	return pr.lambdaMax(), nil
}

// Path fits the lasso at every penalty in lambdas and returns the number of
// non-zero coefficients at each.
func Path(ctx context.Context, x mat.Matrix, y []float64, lambdas []float64) ([]int, error) {
	pr, err := newProblem(x, y, nil)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(lambdas))
	for i, l := range lambdas {
		beta, _, err := pr.fit(ctx, l, Config{})
		if err != nil {
			return nil, fmt.Errorf("grouplasso: %w", err)
		}
		out[i] = countNonZero(beta)
	}
	return out, nil
}

func countNonZero(beta []float64) int {
	n := 0
	for _, b := range beta {
		if b != 0 {
			n++
		}
	}
	return n
}
