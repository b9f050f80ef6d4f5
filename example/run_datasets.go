package example

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/patrikhermansson/colsel/core"
	"github.com/patrikhermansson/colsel/internal/config"
	"github.com/patrikhermansson/colsel/swap"
)

// WorkersEnv is read for the benchmark parallelism when the config leaves it at 0.
const WorkersEnv = "COLSEL_BENCH_WORKERS"

// TrialResult holds the outcome of one (trial, k, method) task.
type TrialResult struct {
	Trial          int
	K              int
	Method         string
	Subset         []int
	Objective      float64 // against the estimated covariance
	TruthObjective float64 // against the reference covariance
	Duration       time.Duration
	Err            error
}

// BenchmarkResult is everything a benchmark produced.
type BenchmarkResult struct {
	Seed      uint64
	Results   []TrialResult // ordered by trial, k, method as configured
	Reference []int         // reference subset from the config, nil when none is set
	Runtime   time.Duration
}

// trialData is the dataset and covariances shared by all tasks of a trial.
type trialData struct {
	data  *core.Data
	sigma *mat.SymDense // estimated from data
	truth *mat.SymDense // population covariance, or sigma for CSV input
}

type benchTask struct {
	idx    int
	trial  int
	k      int
	method string
	seed   uint64
}

// RunBenchmark runs every configured method for every k on every trial and
// scores the selections against both the estimated and the reference
// covariance. Selector failures are recorded per task; only context errors
// abort the run. With progress set, a progress bar is displayed.
// The number of worker goroutines comes from cfg.Workers or COLSEL_BENCH_WORKERS.
func RunBenchmark(ctx context.Context, cfg *config.Config, obs core.Observer, progress bool) (*BenchmarkResult, error) {
	overallStart := time.Now()
	seed := cfg.Seed
	if seed == 0 {
		seed = core.GetSeed()
	}
	master := core.NewRand(seed)

	trials, reference, err := prepareTrials(cfg, master)
	if err != nil {
		return nil, err
	}

	tasks := make([]benchTask, 0, cfg.Trials*len(cfg.Ks)*len(cfg.Methods))
	for t := range trials {
		for _, k := range cfg.Ks {
			taskSeed := master.Uint64()
			for _, m := range cfg.Methods {
				tasks = append(tasks, benchTask{idx: len(tasks), trial: t, k: k, method: m, seed: taskSeed})
			}
		}
	}

	threads := benchWorkers(cfg.Workers)
	fmt.Printf("Running %d selections (%d trials, k=%v, methods=%v) using %d threads\n",
		len(tasks), cfg.Trials, cfg.Ks, cfg.Methods, threads)

	runner := &Runner{Restarts: cfg.Restarts, Lasso: cfg.Lasso, Observer: obs}
	if threads > 1 {
		// Parallelism already comes from the task pool.
		runner.Workers = 1
	}

	var bar *progressbar.ProgressBar
	if progress {
		bar = progressbar.NewOptions(len(tasks),
			progressbar.OptionSetDescription("selections"),
			progressbar.OptionShowCount(),
			progressbar.OptionOnCompletion(func() { fmt.Print("\n") }),
		)
	}

	results := make([]TrialResult, len(tasks))
	queue := make(chan benchTask)
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < threads; i++ {
		g.Go(func() error {
			for task := range queue {
				td := trials[task.trial]
				res := TrialResult{
					Trial:          task.trial,
					K:              task.k,
					Method:         task.method,
					Objective:      math.NaN(),
					TruthObjective: math.NaN(),
				}
				sel, err := runner.Run(gctx, task.method, td.data, td.sigma, task.k, core.NewRand(task.seed))
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				res.Subset, res.Duration = sel.Subset, sel.Duration
				res.Objective = sel.Objective
				res.Err = err
				if err == nil {
					if res.TruthObjective, err = core.Objective(td.truth, sel.Subset); err != nil {
						res.TruthObjective = math.NaN()
						res.Err = fmt.Errorf("reference objective: %w", err)
					}
				} else {
					log.Debug().Err(err).Msgf("%s failed for trial %d, k=%d", task.method, task.trial, task.k)
				}
				results[task.idx] = res

				if bar != nil {
					if err := bar.Add(1); err != nil {
						log.Debug().Err(err).Msg("Progress bar update failed")
					}
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(queue)
		for _, task := range tasks {
			select {
			case queue <- task:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("benchmark: %w", err)
	}

	elapsed := time.Since(overallStart)
	log.Info().Msgf("Benchmark finished in %v", elapsed)
	return &BenchmarkResult{Seed: seed, Results: results, Reference: reference, Runtime: elapsed}, nil
}

// prepareTrials loads or simulates one dataset per trial and estimates its
// covariance. A CSV dataset is loaded once and shared by all trials. When the
// config names a reference subset it is loaded and checked against the
// column count.
func prepareTrials(cfg *config.Config, master *rand.Rand) ([]trialData, []int, error) {
	trials := make([]trialData, cfg.Trials)

	if cfg.Dataset.CSV != "" {
		d, err := LoadCSV(cfg.Dataset.CSV, cfg.Dataset.Header, cfg.Dataset.NA)
		if err != nil {
			return nil, nil, err
		}
		sigma, err := core.EstimateCovariance(d)
		if err != nil {
			return nil, nil, fmt.Errorf("estimate covariance: %w", err)
		}
		logCoverage(d)
		for t := range trials {
			trials[t] = trialData{data: d, sigma: sigma, truth: sigma}
		}
	} else {
		for t := range trials {
			syn, err := Simulate(cfg.Dataset.Simulate, core.NewRand(master.Uint64()))
			if err != nil {
				return nil, nil, err
			}
			sigma, err := core.EstimateCovariance(syn.Data)
			if err != nil {
				return nil, nil, fmt.Errorf("trial %d: estimate covariance: %w", t, err)
			}
			if t == 0 {
				logCoverage(syn.Data)
			}
			trials[t] = trialData{data: syn.Data, sigma: sigma, truth: syn.Truth}
		}
	}

	if cfg.Dataset.Reference == "" {
		return trials, nil, nil
	}
	reference, err := LoadSubset(cfg.Dataset.Reference)
	if err != nil {
		return nil, nil, fmt.Errorf("reference subset: %w", err)
	}
	_, p := trials[0].data.Dims()
	if err := core.ValidateSubset(p, reference); err != nil {
		return nil, nil, fmt.Errorf("reference subset %s: %w", cfg.Dataset.Reference, err)
	}
	log.Info().Msgf("Scoring recall against reference subset %s", FormatSubset(reference, p))
	return trials, reference, nil
}

// logCoverage reports the smallest number of co-observed rows over all pairs.
func logCoverage(d *core.Data) {
	counts := core.PairwiseCounts(d)
	minPair := math.MaxInt
	for i := range counts {
		for j := i; j < len(counts); j++ {
			minPair = min(minPair, counts[i][j])
		}
	}
	n, p := d.Dims()
	log.Info().Msgf("Dataset %dx%d: %.1f%% missing, fewest co-observed rows for a pair: %d",
		n, p, 100*d.MissingFraction(), minPair)
}

// benchWorkers returns configured workers, else COLSEL_BENCH_WORKERS, else 1.
func benchWorkers(configured int) int {
	if configured > 0 {
		return configured
	}
	threads := 1
	if env := os.Getenv(WorkersEnv); env != "" {
		if t, err := strconv.Atoi(env); err == nil && t > 0 {
			threads = t
			log.Info().Msgf("Using %d threads for benchmarking", threads)
		}
	}
	return threads
}

// Summary aggregates the trials of one (k, method) pair.
type Summary struct {
	K                  int
	Method             string
	Runs               int
	Failures           int
	MeanObjective      float64
	MeanTruthObjective float64
	MeanDuration       time.Duration
	MeanOverlap        float64 // Jaccard overlap with the swap subset of the same trial; NaN without swap
	MeanRecall         float64 // share of the reference subset recovered; NaN without a reference
	MeanGap            float64 // relative objective gap to swap on the same trial; NaN without swap
}

// Summarize groups results by k and method, in the order they first appear.
// A non-nil reference adds the mean recall of that subset.
func Summarize(results []TrialResult, reference []int) []Summary {
	type key struct {
		k      int
		method string
	}
	swapRuns := make(map[[2]int]TrialResult)
	for _, r := range results {
		if r.Method == swap.Method && r.Err == nil {
			swapRuns[[2]int{r.Trial, r.K}] = r
		}
	}

	var order []key
	acc := make(map[key]*Summary)
	overlaps := make(map[key]int)
	gaps := make(map[key]int)
	for _, r := range results {
		kk := key{r.K, r.Method}
		s, ok := acc[kk]
		if !ok {
			s = &Summary{K: r.K, Method: r.Method}
			acc[kk] = s
			order = append(order, kk)
		}
		s.Runs++
		if r.Err != nil {
			s.Failures++
			continue
		}
		s.MeanObjective += r.Objective
		s.MeanTruthObjective += r.TruthObjective
		s.MeanDuration += r.Duration
		if reference != nil {
			s.MeanRecall += Recall(r.Subset, reference)
		}
		if ref, ok := swapRuns[[2]int{r.Trial, r.K}]; ok {
			s.MeanOverlap += Jaccard(r.Subset, ref.Subset)
			overlaps[kk]++
			if gap := RelativeGap(r.Objective, ref.Objective); !math.IsNaN(gap) {
				s.MeanGap += gap
				gaps[kk]++
			}
		}
	}

	out := make([]Summary, 0, len(order))
	for _, kk := range order {
		s := acc[kk]
		ok := s.Runs - s.Failures
		if ok > 0 && reference != nil {
			s.MeanRecall /= float64(ok)
		} else {
			s.MeanRecall = math.NaN()
		}
		if ok > 0 {
			s.MeanObjective /= float64(ok)
			s.MeanTruthObjective /= float64(ok)
			s.MeanDuration /= time.Duration(ok)
		} else {
			s.MeanObjective, s.MeanTruthObjective = math.NaN(), math.NaN()
		}
		if n := gaps[kk]; n > 0 {
			s.MeanGap /= float64(n)
		} else {
			s.MeanGap = math.NaN()
		}
		if n := overlaps[kk]; n > 0 {
			s.MeanOverlap /= float64(n)
		} else {
			s.MeanOverlap = math.NaN()
		}
		out = append(out, *s)
	}
	return out
}

// FormatSummary writes the summaries as an aligned text table.
func FormatSummary(w io.Writer, summaries []Summary) {
	fmt.Fprintf(w, "%4s  %-11s %5s %6s %14s %14s %9s %9s %9s %12s\n",
		"k", "method", "runs", "failed", "objective", "reference", "overlap", "recall", "gap", "mean time")
	for _, s := range summaries {
		fmt.Fprintf(w, "%4d  %-11s %5d %6d %14.6g %14.6g %9.3f %9.3f %9.3g %12v\n",
			s.K, s.Method, s.Runs, s.Failures, s.MeanObjective, s.MeanTruthObjective,
			s.MeanOverlap, s.MeanRecall, s.MeanGap, s.MeanDuration.Round(time.Microsecond))
	}
}
