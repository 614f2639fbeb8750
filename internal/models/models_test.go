package models

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clusters returns three well separated groups of ten points.
func clusters() ([][]decimal.Decimal, []int) {
	centers := [][2]float64{{0, 0}, {6, 6}, {12, 0}}
	var X [][]decimal.Decimal
	var y []int
	for c, center := range centers {
		for i := 0; i < 10; i++ {
			dx := 0.3*float64(i%5) - 0.6
			dy := 0.4*float64(i/5) - 0.2
			X = append(X, []decimal.Decimal{
				decimal.NewFromFloat(center[0] + dx),
				decimal.NewFromFloat(center[1] + dy),
			})
			y = append(y, c)
		}
	}
	return X, y
}

func accuracy(pred, y []int) float64 {
	hits := 0
	for i := range y {
		if pred[i] == y[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(y))
}

func TestEveryFamilyFitsSeparableData(t *testing.T) {
	X, y := clusters()

	cases := map[string]map[string]any{
		FamilyKNN:                {"n_neighbors": 3},
		FamilyDecisionTree:       {},
		FamilyRandomForest:       {"n_estimators": 15},
		FamilyNaiveBayes:         {},
		FamilyLogisticRegression: {"C": 1.0},
		FamilySVM:                {"kernel": "rbf"},
		FamilyMLP:                {"hidden_layer_sizes": []int{16}, "learning_rate_init": 0.01},
		FamilyGradientBoosting:   {"n_estimators": 20},
	}
	require.Len(t, cases, len(Default().Names()))

	for family, params := range cases {
		t.Run(family, func(t *testing.T) {
			m, err := New(family, params)
			require.NoError(t, err)
			assert.Equal(t, family, m.GetType())

			require.NoError(t, m.Fit(X, y))
			assert.Equal(t, []int{0, 1, 2}, m.GetClasses())

			pred := m.Predict(X)
			assert.GreaterOrEqual(t, accuracy(pred, y), 0.9)

			proba := m.PredictProba(X[:1])
			require.Len(t, proba, 1)
			require.Len(t, proba[0], 3)
			sum := decimal.Zero
			for _, p := range proba[0] {
				sum = sum.Add(p)
			}
			assert.InDelta(t, 1.0, sum.InexactFloat64(), 1e-6)

			m.Reset()
			assert.Empty(t, m.GetClasses())
		})
	}
}

func TestFitRejectsBadInput(t *testing.T) {
	m := NewKNN(3, "uniform", "euclidean")
	assert.Error(t, m.Fit(nil, nil))

	X, y := clusters()
	assert.Error(t, m.Fit(X, y[:5]))

	ragged := [][]decimal.Decimal{{decimal.NewFromInt(1)}, {decimal.NewFromInt(1), decimal.NewFromInt(2)}}
	assert.Error(t, m.Fit(ragged, []int{0, 1}))

	tooFew := NewKNN(50, "uniform", "euclidean")
	assert.Error(t, tooFew.Fit(X, y))
}

func TestInvalidParams(t *testing.T) {
	cases := []struct {
		family string
		params map[string]any
	}{
		{FamilyKNN, map[string]any{"n_neighbors": 0}},
		{FamilyKNN, map[string]any{"weights": "gaussian"}},
		{FamilyKNN, map[string]any{"leaf_size": 30}},
		{FamilyLogisticRegression, map[string]any{"C": -1.0}},
		{FamilyLogisticRegression, map[string]any{"penalty": "l1"}},
		{FamilySVM, map[string]any{"gamma": "wide"}},
		{FamilyMLP, map[string]any{"hidden_layer_sizes": "a,b"}},
		{FamilyGradientBoosting, map[string]any{"subsample": 1.5}},
		{FamilyRandomForest, map[string]any{"bootstrap": "sometimes"}},
	}
	for _, tc := range cases {
		_, err := New(tc.family, tc.params)
		assert.ErrorIs(t, err, ErrInvalidParam, "%s %v", tc.family, tc.params)
	}

	_, err := New("catboost", nil)
	assert.ErrorIs(t, err, ErrUnknownFamily)
}

func TestNilParamSelectsDefault(t *testing.T) {
	m, err := New(FamilyRandomForest, map[string]any{"max_depth": nil})
	require.NoError(t, err)
	assert.Equal(t, 0, m.GetParams()["max_depth"])
}

func TestGridCombinationsOrder(t *testing.T) {
	g := Grid{"b": {1, 2}, "a": {"x", "y"}}
	assert.Equal(t, 4, g.Size())
	assert.Equal(t, []map[string]any{
		{"a": "x", "b": 1},
		{"a": "x", "b": 2},
		{"a": "y", "b": 1},
		{"a": "y", "b": 2},
	}, g.Combinations())

	assert.Equal(t, 0, Grid{}.Size())
	assert.Empty(t, Grid{}.Combinations())
}

func TestNewSpecValidatesGrid(t *testing.T) {
	_, err := NewSpec(FamilyKNN, "knn", Grid{})
	assert.ErrorIs(t, err, ErrInvalidParam)

	_, err = NewSpec(FamilyKNN, "knn", Grid{"n_neighbors": {}})
	assert.ErrorIs(t, err, ErrInvalidParam)

	_, err = NewSpec(FamilyKNN, "knn", Grid{"n_neighbors": {3, -1}})
	assert.ErrorIs(t, err, ErrInvalidParam)

	_, err = NewSpec("xgboost", "xgb", Grid{"n_estimators": {10}})
	assert.ErrorIs(t, err, ErrUnknownFamily)

	spec, err := NewSpec(FamilyKNN, "", Grid{"n_neighbors": {3, 5}})
	require.NoError(t, err)
	assert.Equal(t, FamilyKNN, spec.Name())
	assert.Equal(t, ImportanceNone, spec.Importance())
}

func TestSpecIsImmutable(t *testing.T) {
	grid := Grid{"n_neighbors": {3, 5}}
	spec, err := NewSpec(FamilyKNN, "knn", grid)
	require.NoError(t, err)

	grid["n_neighbors"][0] = 99
	got := spec.Grid()
	got["weights"] = []any{"distance"}

	assert.Equal(t, Grid{"n_neighbors": {3, 5}}, spec.Grid())
}

func TestDefaultSpecsBuild(t *testing.T) {
	r := Default()
	for _, family := range r.Names() {
		spec, err := r.DefaultSpec(family)
		require.NoError(t, err, family)
		assert.Positive(t, spec.Grid().Size(), family)
	}
	rf, err := r.DefaultSpec(FamilyRandomForest)
	require.NoError(t, err)
	assert.Equal(t, 216, rf.Grid().Size())
	assert.Equal(t, ImportanceTree, rf.Importance())
}

func TestTreeImportances(t *testing.T) {
	X, y := clusters()
	for _, m := range []Model{
		NewDecisionTree(0, 2, 1),
		NewRandomForest(10, 0, 2, 1),
		NewGradientBoosting(10, 0.1, 3),
	} {
		_, err := m.(ImportanceModel).FeatureImportances()
		assert.ErrorIs(t, err, ErrNotFitted)

		require.NoError(t, m.Fit(X, y))
		imp, err := m.(ImportanceModel).FeatureImportances()
		require.NoError(t, err)
		require.Len(t, imp, 2)
		assert.InDelta(t, 1.0, imp[0]+imp[1], 1e-9, m.GetName())
	}
}

func TestLinearCoefficients(t *testing.T) {
	X, y := clusters()

	lr := NewLogisticRegression(1, "lbfgs")
	require.NoError(t, lr.Fit(X, y))
	coef, err := lr.Coefficients()
	require.NoError(t, err)
	require.Len(t, coef, 3)
	assert.Len(t, coef[0], 2)

	linear := NewSVM(1, "linear", "scale")
	require.NoError(t, linear.Fit(X, y))
	coef, err = linear.Coefficients()
	require.NoError(t, err)
	require.Len(t, coef, 3)
	assert.Len(t, coef[0], 2)

	rbf := NewSVM(1, "rbf", "scale")
	require.NoError(t, rbf.Fit(X, y))
	_, err = rbf.Coefficients()
	assert.True(t, errors.Is(err, ErrNotLinear))
}

func TestSeededModelsAreDeterministic(t *testing.T) {
	X, y := clusters()
	probe := [][]decimal.Decimal{{decimal.NewFromFloat(3), decimal.NewFromFloat(3)}}

	for _, family := range []string{FamilyRandomForest, FamilyMLP, FamilyGradientBoosting} {
		params := map[string]any{"random_state": 7}
		a, err := New(family, params)
		require.NoError(t, err)
		b, err := New(family, params)
		require.NoError(t, err)
		require.NoError(t, a.Fit(X, y))
		require.NoError(t, b.Fit(X, y))
		assert.Equal(t, a.PredictProba(probe), b.PredictProba(probe), family)
	}
}
