// Package config defines the pipeline configuration and its loading layers.
//
// Every path and tunable the pipeline uses lives here; stages receive a
// *Config instead of reading literals.
package config

import (
	"errors"
	"fmt"
	"runtime"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	InputPath   string `koanf:"input_path"`
	CleanedPath string `koanf:"cleaned_path"`
	ModelsDir   string `koanf:"models_dir"`
	ReportsDir  string `koanf:"reports_dir"`
	FiguresDir  string `koanf:"figures_dir"`
	LedgerPath  string `koanf:"ledger_path"`
	MetricsPath string `koanf:"metrics_path"`

	// GridFile optionally overrides registry grids (YAML, family -> grid).
	GridFile string `koanf:"grid_file"`

	TargetColumn  string         `koanf:"target_column"`
	TargetMapping map[string]int `koanf:"target_mapping"`
	DropColumns   []string       `koanf:"drop_columns"`
	EncodeColumns []string       `koanf:"encode_columns"`
	ScaleExclude  []string       `koanf:"scale_exclude"`

	TestSize float64 `koanf:"test_size"`
	Seed     int64   `koanf:"seed"`
	CVFolds  int     `koanf:"cv_folds"`

	// Workers bounds grid-search parallelism; 0 means all CPUs.
	Workers int `koanf:"workers"`

	// TopN is the number of features charted by the importance reporter.
	TopN int `koanf:"top_n"`

	// Models is the training roster, in comparison order.
	Models []string `koanf:"models"`

	BalanceEnabled   bool    `koanf:"balance_enabled"`
	BalanceRatio     float64 `koanf:"balance_ratio"`
	BalanceNeighbors int     `koanf:"balance_neighbors"`
}

// DefaultRoster is the training line-up. gradient_boosting covers the
// boosted-tree models.
var DefaultRoster = []string{
	"random_forest",
	"svm",
	"gradient_boosting",
	"knn",
	"logistic_regression",
	"mlp",
	"naive_bayes",
}

// DefaultTargetMapping is the fixed outcome encoding: home win, draw, away win.
func DefaultTargetMapping() map[string]int {
	return map[string]int{"H": 0, "D": 1, "A": 2}
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:    "info",
		InputPath:   "data/processed/final/all_seasons_final.csv",
		CleanedPath: "data/processed/cleaned_data.csv",
		ModelsDir:   "models",
		ReportsDir:  "outputs/reports",
		FiguresDir:  "outputs/figures",
		LedgerPath:  "outputs/ledger.db",
		MetricsPath: "outputs/pipeline.prom",

		TargetColumn:  "MatchOutcome",
		TargetMapping: DefaultTargetMapping(),
		DropColumns: []string{
			"Season", "Season.1", "Week", "Match Date", "Match Date.1",
			"Home Goals", "Away Goals", "Home Performance", "Away Performance",
		},
		EncodeColumns: []string{"Home Team", "Away Team", "Home Formation", "Away Formation"},
		ScaleExclude:  []string{"Home_Advantage"},

		TestSize: 0.2,
		Seed:     42,
		CVFolds:  5,
		Workers:  0,
		TopN:     10,
		Models:   append([]string(nil), DefaultRoster...),

		BalanceEnabled:   false,
		BalanceRatio:     0.5,
		BalanceNeighbors: 5,
	}
}

// Validate checks the invariants the pipeline depends on.
func (c *Config) Validate() error {
	var errs []error
	if c.InputPath == "" {
		errs = append(errs, errors.New("input_path must not be empty"))
	}
	if c.TargetColumn == "" {
		errs = append(errs, errors.New("target_column must not be empty"))
	}
	if len(c.TargetMapping) == 0 {
		errs = append(errs, errors.New("target_mapping must not be empty"))
	}
	seen := make(map[int]string, len(c.TargetMapping))
	for label, code := range c.TargetMapping {
		if prev, ok := seen[code]; ok {
			errs = append(errs, fmt.Errorf("target_mapping: %q and %q share code %d", prev, label, code))
		}
		seen[code] = label
	}
	if c.TestSize <= 0 || c.TestSize >= 1 {
		errs = append(errs, fmt.Errorf("test_size must be in (0,1), got %v", c.TestSize))
	}
	if c.CVFolds < 2 {
		errs = append(errs, fmt.Errorf("cv_folds must be at least 2, got %d", c.CVFolds))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if c.TopN <= 0 {
		errs = append(errs, fmt.Errorf("top_n must be positive, got %d", c.TopN))
	}
	if len(c.Models) == 0 {
		errs = append(errs, errors.New("models must list at least one family"))
	}
	if c.BalanceEnabled && (c.BalanceRatio <= 0 || c.BalanceRatio > 1) {
		errs = append(errs, fmt.Errorf("balance_ratio must be in (0,1], got %v", c.BalanceRatio))
	}
	if c.BalanceEnabled && c.BalanceNeighbors < 1 {
		errs = append(errs, fmt.Errorf("balance_neighbors must be positive, got %d", c.BalanceNeighbors))
	}
	return errors.Join(errs...)
}

// WorkerCount resolves Workers to a concrete pool size.
func (c *Config) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}
