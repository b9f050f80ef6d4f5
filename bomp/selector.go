package bomp

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/patrikhermansson/colsel/core"
)

// Method is the name reported to core.Observer.
const Method = "bomp"

// minObserved is the number of observed residual entries a column needs
// before it gets a non-zero score.
const minObserved = 2

// Pick is one greedy selection step.
type Pick struct {
	Column int     // selected column index
	Score  float64 // residual energy of the column when it was picked
}

// Selector is a matching pursuit baseline that tolerates missing cells.
// It picks the column with the largest observed residual energy, then
// regresses every column on the selection over the rows where they are
// co-observed and keeps the regression residual.
type Selector struct {
	Observer core.Observer // optional event sink
}

// NewSelector creates a matching pursuit selector.
func NewSelector() *Selector {
	return &Selector{}
}

// Select returns k column indices in selection order.
func (s *Selector) Select(ctx context.Context, d *core.Data, k int) ([]int, error) {
	picks, err := s.SelectWithScores(ctx, d, k)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(picks))
	for i, pk := range picks {
		out[i] = pk.Column
	}
	return out, nil
}

// SelectWithScores is Select but also reports the score each column had
// when it was picked.
func (s *Selector) SelectWithScores(ctx context.Context, d *core.Data, k int) (picks []Pick, err error) {
	obs := core.ObserverOrNop(s.Observer)
	start := time.Now()
	defer func() { obs.SelectionFinished(Method, k, time.Since(start), err) }()

	if d == nil {
		return nil, fmt.Errorf("bomp: %w", core.ErrShape)
	}
	n, p := d.Dims()
	if k < 1 || k > p {
		return nil, fmt.Errorf("bomp: k=%d for %d columns: %w", k, p, core.ErrInvalidSubset)
	}

	residual := d.Clone()
	chosen := make([]bool, p)
	selected := make([]int, 0, k)
	picks = make([]Pick, 0, k)

	for len(selected) < k {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("bomp: %w", err)
		}

		best, bestScore := -1, 0.0
		for j := 0; j < p; j++ {
			if chosen[j] {
				continue
			}
			score := residualEnergy(residual, n, j)
			if best < 0 || score > bestScore {
				best, bestScore = j, score
			}
		}
		chosen[best] = true
		selected = append(selected, best)
		picks = append(picks, Pick{Column: best, Score: bestScore})

		refitted := 0
		for j := 0; j < p; j++ {
			if refit(d, residual, selected, j) {
				refitted++
			}
		}
		log.Debug().Int("column", best).Float64("score", bestScore).Int("refitted", refitted).Msg("Matching pursuit pick")
	}
	return picks, nil
}

// residualEnergy is the sum of squares of the observed residual entries of
// column j, or 0 when fewer than minObserved entries are observed.
func residualEnergy(residual *core.Data, n, j int) float64 {
	vals := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if v, ok := residual.At(i, j); ok {
			vals = append(vals, v)
		}
	}
	if len(vals) < minObserved {
		return 0
	}
	return floats.Dot(vals, vals)
}

// refit regresses the original column j on the selected columns over the rows
// where all of them are observed and writes the residual of that fit back.
// It reports whether the residual was updated; too few rows or a
// rank-deficient design leave it unchanged.
func refit(d, residual *core.Data, selected []int, j int) bool {
	n, _ := d.Dims()
	rows := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if !d.Observed(i, j) {
			continue
		}
		all := true
		for _, s := range selected {
			if !d.Observed(i, s) {
				all = false
				break
			}
		}
		if all {
			rows = append(rows, i)
		}
	}
	if len(rows) < max(minObserved, len(selected)) {
		return false
	}

	x := mat.NewDense(len(rows), len(selected), nil)
	y := mat.NewVecDense(len(rows), nil)
	for r, i := range rows {
		for c, s := range selected {
			v, _ := d.At(i, s)
			x.Set(r, c, v)
		}
		v, _ := d.At(i, j)
		y.SetVec(r, v)
	}

	var beta mat.VecDense
	if err := beta.SolveVec(x, y); err != nil {
		return false
	}
	var fitted mat.VecDense
	fitted.MulVec(x, &beta)
	for r, i := range rows {
		// Rows come from observed cells, so Set cannot fail.
		_ = residual.Set(i, j, y.AtVec(r)-fitted.AtVec(r))
	}
	return true
}
