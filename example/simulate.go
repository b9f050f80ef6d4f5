package example

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/patrikhermansson/colsel/core"
	"github.com/patrikhermansson/colsel/internal/config"
)

// Synthetic is a simulated dataset together with its population covariance.
type Synthetic struct {
	Data     *core.Data
	Truth    *mat.SymDense // W·Wᵀ + noise²·I
	Loadings *mat.Dense    // p×factors
}

// Simulate draws rows from a latent factor model x = W·z + noise·e with
// standard normal loadings, factors and noise, then hides each cell
// independently with probability cfg.Missing.
func Simulate(cfg config.Simulation, rnd *rand.Rand) (*Synthetic, error) {
	if cfg.Rows < 1 || cfg.Cols < 1 || cfg.Factors < 1 {
		return nil, fmt.Errorf("simulate %dx%d with %d factors: %w", cfg.Rows, cfg.Cols, cfg.Factors, core.ErrShape)
	}
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rnd}
	hide := distuv.Bernoulli{P: cfg.Missing, Src: rnd}

	w := mat.NewDense(cfg.Cols, cfg.Factors, nil)
	for j := 0; j < cfg.Cols; j++ {
		for f := 0; f < cfg.Factors; f++ {
			w.Set(j, f, normal.Rand())
		}
	}

	// Hidden cells are NaN in values and become missing in the Data.
	values := mat.NewDense(cfg.Rows, cfg.Cols, nil)
	z := mat.NewVecDense(cfg.Factors, nil)
	var x mat.VecDense
	for i := 0; i < cfg.Rows; i++ {
		for f := 0; f < cfg.Factors; f++ {
			z.SetVec(f, normal.Rand())
		}
		x.MulVec(w, z)
		for j := 0; j < cfg.Cols; j++ {
			v := x.AtVec(j) + cfg.Noise*normal.Rand()
			if hide.Rand() == 1 {
				v = math.NaN()
			}
			values.Set(i, j, v)
		}
	}
	d, err := core.NewDataFromDense(values)
	if err != nil {
		return nil, err
	}

	truth := mat.NewSymDense(cfg.Cols, nil)
	truth.SymOuterK(1, w)
	for j := 0; j < cfg.Cols; j++ {
		truth.SetSym(j, j, truth.At(j, j)+cfg.Noise*cfg.Noise)
	}

	log.Debug().Msgf("Simulated %dx%d matrix with %d factors, %.1f%% missing",
		cfg.Rows, cfg.Cols, cfg.Factors, 100*d.MissingFraction())
	return &Synthetic{Data: d, Truth: truth, Loadings: w}, nil
}
