package importance

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"matchpredict/internal/models"
	"matchpredict/internal/persistence"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// informative puts all the signal in the second feature.
func informative() ([][]decimal.Decimal, []int) {
	var X [][]decimal.Decimal
	var y []int
	for i := 0; i < 30; i++ {
		c := i % 3
		X = append(X, []decimal.Decimal{
			decimal.NewFromFloat(float64(i%2) * 0.1),
			decimal.NewFromFloat(float64(c*4) + 0.1*float64(i%5)),
			decimal.NewFromFloat(0.5),
		})
		y = append(y, c)
	}
	return X, y
}

func save(t *testing.T, store *persistence.Store, name string, m models.Model) {
	X, y := informative()
	require.NoError(t, m.Fit(X, y))
	mb := persistence.NewModelBundle(name, m)
	mb.Metadata.Features = []string{"noise", "signal", "constant"}
	require.NoError(t, store.Save(mb))
}

func TestRankOrdersByMagnitude(t *testing.T) {
	ranked, err := Rank([]string{"a", "b", "c", "d"}, []float64{0.1, -0.7, 0.3, 0.3})
	require.NoError(t, err)
	assert.Equal(t, []Feature{{"b", -0.7}, {"c", 0.3}, {"d", 0.3}, {"a", 0.1}}, ranked)

	_, err = Rank([]string{"a"}, []float64{1, 2})
	assert.Error(t, err)
}

func TestReportTreeModel(t *testing.T) {
	root := t.TempDir()
	store := persistence.NewStore(filepath.Join(root, "models"))
	save(t, store, "decision_tree", models.NewDecisionTree(0, 2, 1))

	r := NewReporter(store, filepath.Join(root, "reports"), filepath.Join(root, "figures"), 2, nil)
	res, err := r.Report(context.Background(), "decision_tree")
	require.NoError(t, err)

	assert.Equal(t, models.ImportanceTree, res.Kind)
	require.Len(t, res.Ranking, 3)
	assert.Equal(t, "signal", res.Ranking[0].Name)
	assert.FileExists(t, res.FigurePath)

	f, err := os.Open(res.CSVPath)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"Rank", "Feature", "Importance"}, records[0])
	assert.Equal(t, "signal", records[1][1])
}

func TestReportLinearModel(t *testing.T) {
	root := t.TempDir()
	store := persistence.NewStore(root)
	save(t, store, "logistic_regression", models.NewLogisticRegression(1, "lbfgs"))

	res, err := NewReporter(store, root, root, 10, nil).Report(context.Background(), "logistic_regression")
	require.NoError(t, err)
	assert.Equal(t, models.ImportanceCoefficients, res.Kind)
	assert.Len(t, res.Ranking, 3)
}

func TestReportAllMarksUnavailable(t *testing.T) {
	root := t.TempDir()
	store := persistence.NewStore(root)
	save(t, store, "knn", models.NewKNN(3, "uniform", "euclidean"))
	save(t, store, "svm", models.NewSVM(1, "rbf", "scale"))
	save(t, store, "random_forest", models.NewRandomForest(5, 0, 2, 1))

	results := NewReporter(store, root, root, 10, nil).ReportAll(context.Background(), []string{"knn", "svm", "random_forest", "mlp"})
	require.Len(t, results, 4)
	assert.ErrorIs(t, results[0].Err, ErrImportanceUnavailable)
	assert.ErrorIs(t, results[1].Err, ErrImportanceUnavailable)
	assert.NoError(t, results[2].Err)
	assert.ErrorIs(t, results[3].Err, persistence.ErrArtifactNotFound)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Random Forest", displayName("random_forest"))
	assert.Equal(t, "Svm", displayName("svm"))
}
