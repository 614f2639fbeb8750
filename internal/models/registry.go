package models

import (
	"errors"
	"fmt"
	"sort"
)

const (
	FamilyKNN                = "knn"
	FamilyDecisionTree       = "decision_tree"
	FamilyRandomForest       = "random_forest"
	FamilyNaiveBayes         = "naive_bayes"
	FamilyLogisticRegression = "logistic_regression"
	FamilySVM                = "svm"
	FamilyMLP                = "mlp"
	FamilyGradientBoosting   = "gradient_boosting"
)

// ImportanceKind says how a family exposes feature importance.
type ImportanceKind int

const (
	ImportanceNone ImportanceKind = iota
	ImportanceTree
	ImportanceCoefficients
)

func (k ImportanceKind) String() string {
	switch k {
	case ImportanceTree:
		return "tree"
	case ImportanceCoefficients:
		return "coefficients"
	default:
		return "none"
	}
}

// Grid maps a parameter name to its candidate values. A nil candidate
// selects the estimator default.
type Grid map[string][]any

// Keys returns the parameter names in sorted order.
func (g Grid) Keys() []string {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Size is the number of combinations in the Cartesian product.
func (g Grid) Size() int {
	if len(g) == 0 {
		return 0
	}
	size := 1
	for _, values := range g {
		size *= len(values)
	}
	return size
}

// Combinations expands the grid over sorted parameter names. The last
// name varies fastest.
func (g Grid) Combinations() []map[string]any {
	keys := g.Keys()
	total := g.Size()
	out := make([]map[string]any, 0, total)
	for n := 0; n < total; n++ {
		combo := make(map[string]any, len(keys))
		rest := n
		for i := len(keys) - 1; i >= 0; i-- {
			values := g[keys[i]]
			combo[keys[i]] = values[rest%len(values)]
			rest /= len(values)
		}
		out = append(out, combo)
	}
	return out
}

// Clone copies the grid and its candidate lists.
func (g Grid) Clone() Grid {
	out := make(Grid, len(g))
	for k, v := range g {
		out[k] = append([]any(nil), v...)
	}
	return out
}

type Family struct {
	Name        string
	Importance  ImportanceKind
	DefaultGrid Grid
	build       func(params map[string]any) (Model, error)
}

// Registry maps family names to constructors and default grids.
type Registry struct {
	families map[string]Family
}

func NewRegistry(families ...Family) *Registry {
	r := &Registry{families: make(map[string]Family, len(families))}
	for _, f := range families {
		r.families[f.Name] = f
	}
	return r
}

var defaultRegistry = NewRegistry(
	Family{
		Name: FamilyKNN,
		DefaultGrid: Grid{
			"n_neighbors": {3, 5, 7, 9},
			"weights":     {"uniform", "distance"},
			"metric":      {"euclidean", "manhattan"},
		},
		build: newKNNFromParams,
	},
	Family{
		Name:       FamilyDecisionTree,
		Importance: ImportanceTree,
		DefaultGrid: Grid{
			"max_depth":         {nil, 5, 10, 20},
			"min_samples_split": {2, 5, 10},
			"min_samples_leaf":  {1, 2, 4},
		},
		build: newDecisionTreeFromParams,
	},
	Family{
		Name:       FamilyRandomForest,
		Importance: ImportanceTree,
		DefaultGrid: Grid{
			"n_estimators":      {100, 200, 300},
			"max_depth":         {nil, 10, 20, 30},
			"min_samples_split": {2, 5, 10},
			"min_samples_leaf":  {1, 2, 4},
			"bootstrap":         {true, false},
		},
		build: newRandomForestFromParams,
	},
	Family{
		Name: FamilyNaiveBayes,
		DefaultGrid: Grid{
			"var_smoothing": {1e-9},
		},
		build: newNaiveBayesFromParams,
	},
	Family{
		Name:       FamilyLogisticRegression,
		Importance: ImportanceCoefficients,
		DefaultGrid: Grid{
			"C":       {0.01, 0.1, 1.0, 10.0, 100.0},
			"solver":  {"lbfgs", "saga"},
			"penalty": {"l2"},
		},
		build: newLogisticRegressionFromParams,
	},
	Family{
		Name:       FamilySVM,
		Importance: ImportanceCoefficients,
		DefaultGrid: Grid{
			"C":      {0.1, 1.0, 10.0, 100.0},
			"gamma":  {"scale", "auto", 0.001, 0.01, 0.1},
			"kernel": {"linear", "rbf", "poly"},
		},
		build: newSVMFromParams,
	},
	Family{
		Name: FamilyMLP,
		DefaultGrid: Grid{
			"hidden_layer_sizes": {[]int{50}, []int{100}, []int{100, 50}},
			"activation":         {"relu", "tanh"},
			"solver":             {"adam", "sgd"},
			"alpha":              {0.0001, 0.001, 0.01},
			"learning_rate":      {"constant", "adaptive"},
		},
		build: newMLPFromParams,
	},
	Family{
		Name:       FamilyGradientBoosting,
		Importance: ImportanceTree,
		DefaultGrid: Grid{
			"n_estimators":      {100, 200, 300},
			"learning_rate":     {0.01, 0.1, 0.2},
			"max_depth":         {3, 5, 7},
			"min_samples_split": {2, 5, 10},
			"min_samples_leaf":  {1, 2, 4},
		},
		build: newGradientBoostingFromParams,
	},
)

// Default returns the registry of every built-in family.
func Default() *Registry {
	return defaultRegistry
}

// Names returns the registered family names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.families))
	for name := range r.families {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Lookup(family string) (Family, error) {
	f, ok := r.families[family]
	if !ok {
		return Family{}, fmt.Errorf("%q: %w", family, ErrUnknownFamily)
	}
	f.DefaultGrid = f.DefaultGrid.Clone()
	return f, nil
}

// New builds an unfitted estimator of the family from params.
func (r *Registry) New(family string, params map[string]any) (Model, error) {
	f, ok := r.families[family]
	if !ok {
		return nil, fmt.Errorf("%q: %w", family, ErrUnknownFamily)
	}
	return f.build(params)
}

// NewSpec validates family and grid. An empty grid, an empty candidate
// list or a combination the estimator rejects is an error.
func (r *Registry) NewSpec(family, name string, grid Grid) (Spec, error) {
	if _, err := r.Lookup(family); err != nil {
		return Spec{}, err
	}
	if name == "" {
		name = family
	}
	if len(grid) == 0 {
		return Spec{}, fmt.Errorf("%s: empty grid: %w", name, ErrInvalidParam)
	}
	var errs []error
	for _, key := range grid.Keys() {
		if len(grid[key]) == 0 {
			errs = append(errs, fmt.Errorf("%s: parameter %q has no candidates: %w", name, key, ErrInvalidParam))
		}
	}
	if len(errs) > 0 {
		return Spec{}, errors.Join(errs...)
	}
	for _, combo := range grid.Combinations() {
		if _, err := r.New(family, combo); err != nil {
			return Spec{}, fmt.Errorf("%s: %w", name, err)
		}
	}
	return Spec{family: family, name: name, grid: grid.Clone(), registry: r}, nil
}

// DefaultSpec returns the spec for family with its default grid, named
// after the family.
func (r *Registry) DefaultSpec(family string) (Spec, error) {
	f, err := r.Lookup(family)
	if err != nil {
		return Spec{}, err
	}
	return r.NewSpec(family, family, f.DefaultGrid)
}

// NewSpec validates against the default registry.
func NewSpec(family, name string, grid Grid) (Spec, error) {
	return defaultRegistry.NewSpec(family, name, grid)
}

// New builds an estimator from the default registry.
func New(family string, params map[string]any) (Model, error) {
	return defaultRegistry.New(family, params)
}

// Spec is an immutable declaration of one model to train: its family,
// display name and search grid.
type Spec struct {
	family   string
	name     string
	grid     Grid
	registry *Registry
}

func (s Spec) Family() string { return s.family }
func (s Spec) Name() string   { return s.name }
func (s Spec) Grid() Grid     { return s.grid.Clone() }

// Importance reports how the spec's family exposes feature importance.
func (s Spec) Importance() ImportanceKind {
	return s.registry.families[s.family].Importance
}

// Build returns an unfitted estimator for one grid combination.
func (s Spec) Build(params map[string]any) (Model, error) {
	return s.registry.New(s.family, params)
}
