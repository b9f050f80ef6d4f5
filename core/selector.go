package core

import "time"

// Result is the outcome of one optimizer run.
type Result struct {
	Subset    []int   // selected column indices, positional order of the final subset
	Objective float64 // unexplained variance of Subset
}

// Observer receives events from the selectors. Implementations must be safe
// for concurrent use because swap restarts may run in parallel.
type Observer interface {
	// ObjectiveEvaluated is called once per objective evaluation; infeasible
	// is true when the candidate subset was singular.
	ObjectiveEvaluated(method string, infeasible bool)

	// SwapAccepted is called whenever a local search accepts an improving move.
	SwapAccepted(method string)

	// SelectionFinished is called once per Select call.
	SelectionFinished(method string, k int, elapsed time.Duration, err error)
}

// NopObserver discards every event.
type NopObserver struct{}

// ObjectiveEvaluated does nothing.
func (NopObserver) ObjectiveEvaluated(string, bool) {}

// SwapAccepted does nothing.
func (NopObserver) SwapAccepted(string) {}

// SelectionFinished does nothing.
func (NopObserver) SelectionFinished(string, int, time.Duration, error) {}

// Check that NopObserver implements the Observer interface.
var _ Observer = NopObserver{}

// ObserverOrNop returns o, or a NopObserver when o is nil.
func ObserverOrNop(o Observer) Observer {
	if o == nil {
		return NopObserver{}
	}
	return o
}
