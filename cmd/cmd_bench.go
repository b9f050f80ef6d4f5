package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/patrikhermansson/colsel/core"
	"github.com/patrikhermansson/colsel/example"
	"github.com/patrikhermansson/colsel/internal/config"
	"github.com/patrikhermansson/colsel/internal/metrics"
	"github.com/patrikhermansson/colsel/internal/store"
)

var (
	benchConfig      string
	benchDB          string
	benchMetricsAddr string
	benchSeed        uint64
	benchWorkers     int
	benchProgress    bool

	benchCmd = &cobra.Command{
		Use:   "bench",
		Short: "Compare the selectors on simulated or CSV data",
		Args:  cobra.NoArgs,
		RunE:  runBench,
	}
)

func init() {
	f := benchCmd.Flags()
	f.StringVarP(&benchConfig, "config", "c", "", "YAML benchmark configuration (defaults apply when empty)")
	f.StringVar(&benchDB, "db", "", "SQLite file to record the run in")
	f.StringVar(&benchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	f.Uint64Var(&benchSeed, "seed", 0, "override the configured seed")
	f.IntVar(&benchWorkers, "workers", 0, "override the configured worker count")
	f.BoolVar(&benchProgress, "progress", true, "show a progress bar")
}

func runBench(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg := config.Default()
	if benchConfig != "" {
		loaded, err := config.Load(benchConfig)
		if err != nil {
			return err
		}
		cfg = *loaded
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = benchSeed
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = benchWorkers
	}
	if cfg.Seed == 0 {
		cfg.Seed = core.GetSeed()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var obs core.Observer
	if benchMetricsAddr != "" {
		reg := prometheus.NewRegistry()
		o, err := metrics.NewObserver(reg)
		if err != nil {
			return err
		}
		obs = o
		stop := serveMetrics(benchMetricsAddr, reg)
		defer stop()
	}

	var (
		st  *store.Store
		run store.Run
	)
	if benchDB != "" {
		var err error
		if st, err = store.Open(benchDB); err != nil {
			return err
		}
		defer st.Close()
		doc, err := cfg.YAML()
		if err != nil {
			return err
		}
		if run, err = st.BeginRun(cfg.Seed, doc); err != nil {
			return err
		}
		log.Info().Msgf("Recording run %s in %s", run.ID, benchDB)
	}

	res, err := example.RunBenchmark(ctx, &cfg, obs, benchProgress)
	if err != nil {
		if st != nil {
			if ferr := st.FailRun(run.ID, err); ferr != nil {
				log.Warn().Err(ferr).Msgf("Could not mark run %s as failed", run.ID)
			}
		}
		return err
	}

	example.FormatSummary(os.Stdout, example.Summarize(res.Results, res.Reference))
	fmt.Printf("Seed: %d, overall runtime: %v\n", res.Seed, res.Runtime)

	if st != nil {
		if err := st.SaveSelections(toStored(run.ID, res.Results)); err != nil {
			return err
		}
		if err := st.FinishRun(run.ID); err != nil {
			return err
		}
		fmt.Printf("Run %s saved to %s\n", run.ID, benchDB)
	}
	return nil
}

func toStored(runID string, results []example.TrialResult) []store.Selection {
	out := make([]store.Selection, len(results))
	for i, r := range results {
		sel := store.Selection{
			RunID:          runID,
			Trial:          r.Trial,
			K:              r.K,
			Method:         r.Method,
			Subset:         r.Subset,
			Objective:      r.Objective,
			TruthObjective: r.TruthObjective,
			Duration:       r.Duration,
		}
		if r.Err != nil {
			sel.Err = r.Err.Error()
		}
		out[i] = sel
	}
	return out
}

// serveMetrics exposes reg on addr until the returned stop function is called.
func serveMetrics(addr string, reg *prometheus.Registry) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info().Msgf("Serving metrics on http://%s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Metrics server shutdown")
		}
	}
}
