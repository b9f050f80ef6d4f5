package swap

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/patrikhermansson/colsel/core"
)

// DefaultRestarts is the number of independent local searches run when none is given.
const DefaultRestarts = 10

// Method is the name reported to core.Observer.
const Method = "swap"

// NewSelector creates a swapping selector running the given number of restarts.
// A non-positive value selects DefaultRestarts.
func NewSelector(restarts int) *Selector {
	if restarts <= 0 {
		restarts = DefaultRestarts
	}
	return &Selector{
		Restarts: restarts,
		Workers:  runtime.GOMAXPROCS(0),
	}
}

// Selector is a multi-start first-improvement local search over k-subsets.
// Each restart begins at a uniformly random subset and keeps swapping one
// member for a non-member while that strictly lowers the objective.
type Selector struct {
	Restarts int           // number of independent local searches
	MaxSwaps int           // cap on accepted swaps per restart, 0 means unbounded
	Workers  int           // restarts run concurrently, defaults to GOMAXPROCS
	Observer core.Observer // optional event sink
}

// searchState is the state of one local search.
type searchState int

const (
	scanning  searchState = iota // walking positions and candidates
	improved                     // a swap was accepted, the scan starts over
	converged                    // a full pass found no improving swap
)

// restartOutcome is what a single restart hands back to the reduction.
type restartOutcome struct {
	subset    []int
	objective float64 // +Inf when every visited subset was singular
	swaps     int
	evals     int
}

// Select returns the best k-subset over all restarts for the covariance sigma.
//
// rnd drives the initial subsets. One PCG seed per restart is drawn from it in
// restart order before any work starts, so the result does not depend on
// Workers and the first R restarts of a longer run are the same searches.
// Ties between restarts keep the lowest restart index.
func (s *Selector) Select(ctx context.Context, sigma mat.Symmetric, k int, rnd *rand.Rand) (res core.Result, err error) {
	obs := core.ObserverOrNop(s.Observer)
	start := time.Now()
	defer func() { obs.SelectionFinished(Method, k, time.Since(start), err) }()

	if sigma == nil {
		return core.Result{}, fmt.Errorf("swap: %w", core.ErrShape)
	}
	p := sigma.SymmetricDim()
	if k < 1 || k > p {
		return core.Result{}, fmt.Errorf("swap: k=%d for %d columns: %w", k, p, core.ErrInvalidSubset)
	}
	if rnd == nil {
		rnd = core.NewRand(core.GetSeed())
	}

	restarts := s.Restarts
	if restarts <= 0 {
		restarts = DefaultRestarts
	}
	workers := s.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	seeds := make([][2]uint64, restarts)
	for r := range seeds {
		seeds[r] = [2]uint64{rnd.Uint64(), rnd.Uint64()}
	}

	outcomes := make([]restartOutcome, restarts)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for r := 0; r < restarts; r++ {
		g.Go(func() error {
			local := rand.New(rand.NewPCG(seeds[r][0], seeds[r][1]))
			out, err := s.localSearch(gctx, sigma, p, k, local, obs)
			if err != nil {
				return err
			}
			outcomes[r] = out
			log.Debug().
				Int("restart", r).
				Float64("objective", out.objective).
				Int("swaps", out.swaps).
				Int("evaluations", out.evals).
				Msg("Restart converged")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return core.Result{}, fmt.Errorf("swap: %w", err)
	}

	best := -1
	for r, out := range outcomes {
		if math.IsInf(out.objective, 1) {
			continue
		}
		if best < 0 || out.objective < outcomes[best].objective {
			best = r
		}
	}
	if best < 0 {
		return core.Result{}, fmt.Errorf("swap: %d restarts: %w", restarts, core.ErrNoFeasibleSubset)
	}

	log.Debug().Int("k", k).Int("restart", best).Float64("objective", outcomes[best].objective).Msg("Swap selection done")
	return core.Result{Subset: outcomes[best].subset, Objective: outcomes[best].objective}, nil
}

// localSearch runs one first-improvement search from a random subset.
// Positions are scanned in ascending order and, per position, candidates in
// ascending column order; the first strictly better swap is taken.
func (s *Selector) localSearch(ctx context.Context, sigma mat.Symmetric, p, k int, rnd *rand.Rand, obs core.Observer) (restartOutcome, error) {
	subset := make([]int, k)
	copy(subset, rnd.Perm(p)[:k])
	member := make([]bool, p)
	for _, c := range subset {
		member[c] = true
	}

	out := restartOutcome{}
	evaluate := func(candidate []int) (float64, error) {
		out.evals++
		obj, err := core.Objective(sigma, candidate)
		if errors.Is(err, core.ErrSingularSubset) {
			obs.ObjectiveEvaluated(Method, true)
			return math.Inf(1), nil
		}
		if err != nil {
			return 0, err
		}
		obs.ObjectiveEvaluated(Method, false)
		return obj, nil
	}

	current, err := evaluate(subset)
	if err != nil {
		return out, err
	}

	candidate := make([]int, k)
	for state := scanning; state != converged; {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if s.MaxSwaps > 0 && out.swaps >= s.MaxSwaps {
			break
		}

		state = converged
	pass:
		for i := 0; i < k; i++ {
			for c := 0; c < p; c++ {
				if member[c] {
					continue
				}
				copy(candidate, subset)
				candidate[i] = c
				obj, err := evaluate(candidate)
				if err != nil {
					return out, err
				}
				if obj < current {
					member[subset[i]] = false
					member[c] = true
					subset[i] = c
					current = obj
					out.swaps++
					obs.SwapAccepted(Method)
					state = improved
					break pass
				}
			}
		}
	}

	out.subset = subset
	out.objective = current
	return out, nil
}

// SelectFromData estimates the covariance of d and runs a swapping selector
// with the given number of restarts on it.
func SelectFromData(ctx context.Context, d *core.Data, k, restarts int, rnd *rand.Rand) (core.Result, error) {
	sigma, err := core.EstimateCovariance(d)
	if err != nil {
		return core.Result{}, fmt.Errorf("swap: %w", err)
	}
	return NewSelector(restarts).Select(ctx, sigma, k, rnd)
}
