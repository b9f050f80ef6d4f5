package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/patrikhermansson/colsel/core"
)

// Observer implements core.Observer on top of Prometheus collectors.
type Observer struct {
	evaluations *prometheus.CounterVec
	swaps       *prometheus.CounterVec
	selections  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// Check that Observer implements the core.Observer interface.
var _ core.Observer = (*Observer)(nil)

// NewObserver creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewObserver(reg prometheus.Registerer) (*Observer, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &Observer{
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "colsel_objective_evaluations_total",
			Help: "Objective evaluations by method and feasibility",
		}, []string{"method", "feasible"}),
		swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "colsel_swaps_accepted_total",
			Help: "Improving swaps accepted by local search",
		}, []string{"method"}),
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "colsel_selections_total",
			Help: "Finished selections by method and status",
		}, []string{"method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "colsel_selection_duration_seconds",
			Help:    "Wall time of one selection",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"method"}),
	}
	for _, c := range []prometheus.Collector{o.evaluations, o.swaps, o.selections, o.latency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// ObjectiveEvaluated counts one evaluation under its feasibility label.
func (o *Observer) ObjectiveEvaluated(method string, infeasible bool) {
	feasible := "true"
	if infeasible {
		feasible = "false"
	}
	o.evaluations.WithLabelValues(method, feasible).Inc()
}

// SwapAccepted counts one accepted swap.
func (o *Observer) SwapAccepted(method string) {
	o.swaps.WithLabelValues(method).Inc()
}

// SelectionFinished counts the selection by status and records its wall time.
func (o *Observer) SelectionFinished(method string, _ int, elapsed time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	o.selections.WithLabelValues(method, status).Inc()
	o.latency.WithLabelValues(method).Observe(elapsed.Seconds())
}
