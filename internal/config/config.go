package config

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/patrikhermansson/colsel/bomp"
	"github.com/patrikhermansson/colsel/grouplasso"
	"github.com/patrikhermansson/colsel/swap"
)

// ErrInvalid is returned by Validate for an unusable configuration.
var ErrInvalid = errors.New("config: invalid configuration")

// Methods lists the selector names a benchmark may run.
var Methods = []string{swap.Method, bomp.Method, grouplasso.Method}

// Config describes one benchmark run.
type Config struct {
	Dataset  Dataset  `yaml:"dataset"`
	Ks       []int    `yaml:"k"`        // subset sizes to evaluate
	Trials   int      `yaml:"trials"`   // repetitions per k; simulated data is redrawn per trial
	Restarts int      `yaml:"restarts"` // swap restarts
	Methods  []string `yaml:"methods"`
	Seed     uint64   `yaml:"seed"`    // 0 takes the seed from the environment or the clock
	Workers  int      `yaml:"workers"` // 0 reads COLSEL_BENCH_WORKERS
	Lasso    Lasso    `yaml:"lasso"`
}

// Dataset is either a CSV file or a simulation; CSV wins when both are set.
type Dataset struct {
	CSV       string     `yaml:"csv"`
	Header    bool       `yaml:"header"`
	NA        []string   `yaml:"na"`        // cell values read as missing
	Reference string     `yaml:"reference"` // optional CSV file whose first row lists reference column indices
	Simulate  Simulation `yaml:"simulate"`
}

// Simulation parameters of the latent factor generator.
type Simulation struct {
	Rows    int     `yaml:"rows"`
	Cols    int     `yaml:"cols"`
	Factors int     `yaml:"factors"`
	Missing float64 `yaml:"missing"` // probability of a cell being missing
	Noise   float64 `yaml:"noise"`   // standard deviation of the idiosyncratic noise
}

// Lasso holds the group-lasso baseline settings.
type Lasso struct {
	Tol           float64           `yaml:"tol"`
	MaxBisections int               `yaml:"max_bisections"`
	Groups        [][]int           `yaml:"groups,omitempty"`
	Solver        grouplasso.Config `yaml:"solver"`
}

// Default returns the configuration used for fields a file leaves out.
func Default() Config {
	return Config{
		Dataset: Dataset{
			NA: []string{"", "NA", "NaN"},
			Simulate: Simulation{
				Rows:    200,
				Cols:    20,
				Factors: 3,
				Missing: 0.1,
				Noise:   0.5,
			},
		},
		Ks:       []int{1, 2, 3, 5},
		Trials:   5,
		Restarts: swap.DefaultRestarts,
		Methods:  slices.Clone(Methods),
		Lasso: Lasso{
			Tol:           grouplasso.DefaultTol,
			MaxBisections: grouplasso.DefaultMaxBisections,
			Solver:        grouplasso.DefaultConfig(),
		},
	}
}

// Load reads a YAML file on top of Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and method names.
func (c *Config) Validate() error {
	if len(c.Ks) == 0 {
		return fmt.Errorf("no subset sizes: %w", ErrInvalid)
	}
	for _, k := range c.Ks {
		if k < 1 {
			return fmt.Errorf("subset size %d: %w", k, ErrInvalid)
		}
		if c.Dataset.CSV == "" && k > c.Dataset.Simulate.Cols {
			return fmt.Errorf("subset size %d exceeds %d simulated columns: %w", k, c.Dataset.Simulate.Cols, ErrInvalid)
		}
	}
	if c.Trials < 1 {
		return fmt.Errorf("trials %d: %w", c.Trials, ErrInvalid)
	}
	if c.Restarts < 1 {
		return fmt.Errorf("restarts %d: %w", c.Restarts, ErrInvalid)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers %d: %w", c.Workers, ErrInvalid)
	}
	if len(c.Methods) == 0 {
		return fmt.Errorf("no methods: %w", ErrInvalid)
	}
	for _, m := range c.Methods {
		if !slices.Contains(Methods, m) {
			return fmt.Errorf("unknown method %q: %w", m, ErrInvalid)
		}
	}
	if c.Dataset.CSV == "" {
		s := c.Dataset.Simulate
		if s.Rows < 2 || s.Cols < 2 || s.Factors < 1 {
			return fmt.Errorf("simulation %dx%d with %d factors: %w", s.Rows, s.Cols, s.Factors, ErrInvalid)
		}
		if s.Missing < 0 || s.Missing >= 1 || s.Noise < 0 {
			return fmt.Errorf("simulation missing=%g noise=%g: %w", s.Missing, s.Noise, ErrInvalid)
		}
	}
	if c.Lasso.Tol < 0 || c.Lasso.MaxBisections < 0 {
		return fmt.Errorf("lasso tol=%g max_bisections=%d: %w", c.Lasso.Tol, c.Lasso.MaxBisections, ErrInvalid)
	}
	return nil
}

// YAML returns the configuration encoded as YAML.
func (c *Config) YAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return string(data), nil
}
