package persistence

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"matchpredict/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toyData() ([][]decimal.Decimal, []int) {
	var X [][]decimal.Decimal
	var y []int
	for c := 0; c < 3; c++ {
		for i := 0; i < 8; i++ {
			X = append(X, []decimal.Decimal{
				decimal.NewFromFloat(float64(c*5) + 0.2*float64(i)),
				decimal.NewFromFloat(float64(i % 3)),
			})
			y = append(y, c)
		}
	}
	return X, y
}

func TestStoreRoundTripsEveryFamily(t *testing.T) {
	X, y := toyData()
	store := NewStore(filepath.Join(t.TempDir(), "models"))

	params := map[string]map[string]any{
		models.FamilyKNN:                {"n_neighbors": 3},
		models.FamilyDecisionTree:       {"max_depth": nil},
		models.FamilyRandomForest:       {"n_estimators": 5},
		models.FamilyNaiveBayes:         {},
		models.FamilyLogisticRegression: {},
		models.FamilySVM:                {"kernel": "linear"},
		models.FamilyMLP:                {"hidden_layer_sizes": []int{8}, "max_iter": 50},
		models.FamilyGradientBoosting:   {"n_estimators": 5},
	}

	for family, p := range params {
		m, err := models.New(family, p)
		require.NoError(t, err)
		require.NoError(t, m.Fit(X, y))

		mb := NewModelBundle(family, m)
		mb.SetBestParams(p)
		mb.Metadata.Features = []string{"a", "b"}
		mb.Metadata.BestScore = 0.75
		require.NoError(t, store.Save(mb), family)

		loaded, err := store.Load(family)
		require.NoError(t, err, family)
		assert.Equal(t, family, loaded.Metadata.Family)
		assert.Equal(t, []string{"a", "b"}, loaded.Metadata.Features)
		assert.Equal(t, []int{0, 1, 2}, loaded.Metadata.Classes)
		assert.Equal(t, 0.75, loaded.Metadata.BestScore)
		assert.Equal(t, m.Predict(X), loaded.Model.Predict(X), family)
	}
}

func TestStoreOverwrites(t *testing.T) {
	X, y := toyData()
	store := NewStore(t.TempDir())

	first := NewModelBundle("knn", models.NewKNN(1, "uniform", "euclidean"))
	require.NoError(t, first.Model.Fit(X, y))
	require.NoError(t, store.Save(first))

	second := NewModelBundle("knn", models.NewKNN(3, "uniform", "euclidean"))
	require.NoError(t, second.Model.Fit(X, y))
	require.NoError(t, store.Save(second))

	loaded, err := store.Load("knn")
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Model.GetParams()["n_neighbors"])
}

func TestStoreLoadMissing(t *testing.T) {
	_, err := NewStore(t.TempDir()).Load("svm")
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestSaveHyperparameters(t *testing.T) {
	mb := NewModelBundle("random_forest", models.NewRandomForest(10, 0, 2, 1))
	mb.SetBestParams(map[string]any{
		"n_estimators":      200,
		"max_depth":         nil,
		"bootstrap":         true,
		"min_samples_split": 5,
	})

	dir := filepath.Join(t.TempDir(), "reports")
	path, err := SaveHyperparameters(dir, mb)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "random_forest_best_hyperparameters.csv"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"bootstrap", "max_depth", "min_samples_split", "n_estimators"},
		{"true", "", "5", "200"},
	}, records)
}
