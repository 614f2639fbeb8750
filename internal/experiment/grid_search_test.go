package experiment

import (
	"context"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"

	"matchpredict/internal/models"
	"matchpredict/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoClusters has two groups of ten points on a line.
func twoClusters() ([][]decimal.Decimal, []int) {
	var X [][]decimal.Decimal
	var y []int
	for i := 0; i < 20; i++ {
		offset := 0.0
		if i >= 10 {
			offset = 20
		}
		X = append(X, []decimal.Decimal{decimal.NewFromFloat(offset + float64(i%10)*0.1)})
		y = append(y, i/10)
	}
	return X, y
}

func TestGridSearchPicksEarliestOnTies(t *testing.T) {
	X, y := twoClusters()
	spec, err := models.NewSpec(models.FamilyKNN, "knn", models.Grid{
		"n_neighbors": {1, 3, 5},
	})
	require.NoError(t, err)

	gs := NewGridSearch(5, 42, 2, logger.Nop())
	sr, err := gs.Fit(context.Background(), spec, X, y)
	require.NoError(t, err)

	require.Len(t, sr.Results, 3)
	for _, r := range sr.Results {
		assert.Equal(t, 1.0, r.MeanScore)
		assert.Equal(t, 1, r.Rank)
		assert.Len(t, r.FoldScores, 5)
	}
	assert.Equal(t, 0, sr.BestIndex)
	assert.Equal(t, map[string]any{"n_neighbors": 1}, sr.BestParams)
	assert.Equal(t, 1, sr.Best.GetParams()["n_neighbors"])
	assert.Equal(t, y, sr.Best.Predict(X))
}

func TestGridSearchScoresFailuresAsNaN(t *testing.T) {
	X, y := twoClusters()
	// 16 training rows per fold, so 20 neighbours cannot fit
	spec, err := models.NewSpec(models.FamilyKNN, "knn", models.Grid{
		"n_neighbors": {20, 1},
	})
	require.NoError(t, err)

	sr, err := NewGridSearch(5, 42, 3, logger.Nop()).Fit(context.Background(), spec, X, y)
	require.NoError(t, err)

	assert.True(t, math.IsNaN(sr.Results[0].MeanScore))
	assert.Error(t, sr.Results[0].Err)
	assert.Equal(t, 2, sr.Results[0].Rank)
	assert.Equal(t, 1, sr.Results[1].Rank)
	assert.Equal(t, 1, sr.BestIndex)
}

func TestGridSearchFailsWhenEveryCombinationFails(t *testing.T) {
	X, y := twoClusters()
	spec, err := models.NewSpec(models.FamilyKNN, "knn", models.Grid{"n_neighbors": {19, 20}})
	require.NoError(t, err)

	_, err = NewGridSearch(5, 42, 2, nil).Fit(context.Background(), spec, X, y)
	assert.ErrorIs(t, err, ErrAllCombinationsFailed)
}

func TestGridSearchStopsOnCancel(t *testing.T) {
	X, y := twoClusters()
	spec, err := models.NewSpec(models.FamilyKNN, "knn", models.Grid{"n_neighbors": {1, 3}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewGridSearch(5, 42, 2, nil).Fit(ctx, spec, X, y)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExportCVResults(t *testing.T) {
	X, y := twoClusters()
	spec, err := models.NewSpec(models.FamilyKNN, "knn", models.Grid{
		"n_neighbors": {1, 3},
		"weights":     {"uniform"},
	})
	require.NoError(t, err)
	sr, err := NewGridSearch(2, 42, 1, nil).Fit(context.Background(), spec, X, y)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "reports", "knn_cv_results.csv")
	require.NoError(t, ExportCVResults(path, sr))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, []string{
		"param_n_neighbors", "param_weights",
		"split0_test_score", "split1_test_score",
		"mean_test_score", "std_test_score", "rank_test_score", "mean_fit_time", "error",
	}, records[0])
	assert.Equal(t, "1", records[1][0])
	assert.Equal(t, "uniform", records[1][1])
	assert.Equal(t, "1", records[1][6])
}

func TestLoadGridFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grids.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
grids:
  random_forest:
    n_estimators: [10, 20]
    max_depth: [null, 5]
  mlp:
    hidden_layer_sizes: [[8], [8, 4]]
`), 0o644))

	grids, err := LoadGridFile(path)
	require.NoError(t, err)
	require.Contains(t, grids, "random_forest")
	assert.Equal(t, 4, grids["random_forest"].Size())
	assert.Nil(t, grids["random_forest"]["max_depth"][0])

	specs, err := Specs(models.Default(), []string{"random_forest", "mlp", "knn"}, grids)
	require.NoError(t, err)
	require.Len(t, specs, 3)
	assert.Equal(t, 4, specs[0].Grid().Size())
	assert.Equal(t, 2, specs[1].Grid().Size())
	assert.Equal(t, 16, specs[2].Grid().Size())

	_, err = LoadGridFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	none, err := LoadGridFile("")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSpecsReportsBadRosterEntries(t *testing.T) {
	_, err := Specs(models.Default(), []string{"catboost"}, nil)
	assert.ErrorIs(t, err, models.ErrUnknownFamily)

	_, err = Specs(models.Default(), []string{"knn"}, map[string]models.Grid{"knn": {"n_neighbors": {}}})
	assert.ErrorIs(t, err, models.ErrInvalidParam)
}

// threeClusters is a separable 2-feature, 3-class toy set.
func threeClusters() ([][]decimal.Decimal, []int) {
	centers := [][2]float64{{0, 0}, {6, 0}, {0, 6}}
	var X [][]decimal.Decimal
	var y []int
	for i := 0; i < 30; i++ {
		c := i % 3
		X = append(X, []decimal.Decimal{
			decimal.NewFromFloat(centers[c][0] + 0.1*float64(i%5)),
			decimal.NewFromFloat(centers[c][1] - 0.1*float64(i%4)),
		})
		y = append(y, c)
	}
	return X, y
}

func TestEveryFamilyScoresOnToyData(t *testing.T) {
	X, y := threeClusters()
	reg := models.Default()
	gs := NewGridSearch(5, 42, 0, nil)

	for _, family := range reg.Names() {
		t.Run(family, func(t *testing.T) {
			f, err := reg.Lookup(family)
			require.NoError(t, err)
			// first candidate of every parameter keeps the search small
			grid := models.Grid{}
			for _, k := range f.DefaultGrid.Keys() {
				grid[k] = f.DefaultGrid[k][:1]
			}
			spec, err := reg.NewSpec(family, family, grid)
			require.NoError(t, err)

			sr, err := gs.Fit(context.Background(), spec, X, y)
			require.NoError(t, err)
			assert.Greater(t, sr.BestScore, 0.0)
			assert.Len(t, sr.Results, 1)
		})
	}
}
