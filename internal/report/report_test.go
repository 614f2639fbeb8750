package report

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"matchpredict/internal/evaluation"
	"matchpredict/internal/models"
	"matchpredict/internal/persistence"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dirs struct {
	models, reports, figures string
}

func newDirs(t *testing.T) dirs {
	root := t.TempDir()
	return dirs{
		models:  filepath.Join(root, "models"),
		reports: filepath.Join(root, "reports"),
		figures: filepath.Join(root, "figures"),
	}
}

func data() ([][]decimal.Decimal, []int) {
	var X [][]decimal.Decimal
	var y []int
	for c := 0; c < 3; c++ {
		for i := 0; i < 6; i++ {
			X = append(X, []decimal.Decimal{decimal.NewFromFloat(float64(c*10) + 0.5*float64(i))})
			y = append(y, c)
		}
	}
	return X, y
}

func saveKNN(t *testing.T, store *persistence.Store, name string, X [][]decimal.Decimal, y []int) {
	m := models.NewKNN(1, "uniform", "euclidean")
	require.NoError(t, m.Fit(X, y))
	mb := persistence.NewModelBundle(name, m)
	mb.Metadata.Features = []string{"x"}
	require.NoError(t, store.Save(mb))
}

func TestEvaluateWritesReportAndFigure(t *testing.T) {
	d := newDirs(t)
	X, y := data()
	store := persistence.NewStore(d.models)
	saveKNN(t, store, "knn", X, y)

	ev := NewEvaluator(store, d.reports, d.figures, map[int]string{0: "H", 1: "D", 2: "A"}, nil)
	result, err := ev.Evaluate(context.Background(), "knn", X, y)
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.Metrics.Accuracy)
	assert.FileExists(t, result.FigurePath)
	assert.Equal(t, filepath.Join(d.figures, "confusion_matrix_knn.png"), result.FigurePath)

	f, err := os.Open(result.ReportPath)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 7)
	assert.Equal(t, []string{"", "precision", "recall", "f1-score", "support"}, records[0])
	assert.Equal(t, "0", records[1][0])
	assert.Equal(t, []string{"accuracy", "1", "1", "1", "18"}, records[4])
	assert.Equal(t, "macro avg", records[5][0])
	assert.Equal(t, "weighted avg", records[6][0])

	acc, err := ReportAccuracy(d.reports, "knn")
	require.NoError(t, err)
	assert.Equal(t, 1.0, acc)
}

func TestEvaluateAllIsolatesFailures(t *testing.T) {
	d := newDirs(t)
	X, y := data()
	store := persistence.NewStore(d.models)
	saveKNN(t, store, "knn", X, y)

	ev := NewEvaluator(store, d.reports, d.figures, nil, nil)
	results := ev.EvaluateAll(context.Background(), []string{"svm", "knn"}, X, y)
	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, persistence.ErrArtifactNotFound)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, "knn", results[1].Name)
}

func TestEvaluateRejectsFeatureMismatch(t *testing.T) {
	d := newDirs(t)
	X, y := data()
	store := persistence.NewStore(d.models)
	saveKNN(t, store, "knn", X, y)

	wide := [][]decimal.Decimal{{decimal.NewFromInt(1), decimal.NewFromInt(2)}}
	_, err := NewEvaluator(store, d.reports, d.figures, nil, nil).Evaluate(context.Background(), "knn", wide, []int{0})
	assert.Error(t, err)
}

func writeAccuracy(t *testing.T, reportsDir, name string, acc float64) {
	rows := []evaluation.ReportRow{
		{Label: "0", Precision: acc, Recall: acc, F1Score: acc, Support: 10},
		{Label: "accuracy", Precision: acc, Recall: acc, F1Score: acc, Support: 10},
	}
	require.NoError(t, WriteReport(ReportPath(reportsDir, name), rows))
}

func TestCompareRanksInInputOrder(t *testing.T) {
	d := newDirs(t)
	writeAccuracy(t, d.reports, "svm", 0.52)
	writeAccuracy(t, d.reports, "random_forest", 0.61)
	writeAccuracy(t, d.reports, "knn", 0.52)

	cmp, err := NewComparator(d.reports, d.figures, nil).Compare(context.Background(), []string{"svm", "random_forest", "knn"})
	require.NoError(t, err)

	assert.Equal(t, []ComparisonRow{
		{Model: "svm", Accuracy: 0.52, Rank: 2},
		{Model: "random_forest", Accuracy: 0.61, Rank: 1},
		{Model: "knn", Accuracy: 0.52, Rank: 2},
	}, cmp.Rows)

	best, ok := cmp.Best()
	require.True(t, ok)
	assert.Equal(t, "random_forest", best.Model)
	assert.FileExists(t, cmp.FigurePath)

	f, err := os.Open(cmp.CSVPath)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"Model", "Accuracy", "Rank"}, records[0])
	assert.Equal(t, []string{"svm", "0.52", "2"}, records[1])
}

func TestCompareAbortsOnMissingReport(t *testing.T) {
	d := newDirs(t)
	writeAccuracy(t, d.reports, "svm", 0.5)

	_, err := NewComparator(d.reports, d.figures, nil).Compare(context.Background(), []string{"svm", "mlp"})
	require.ErrorIs(t, err, ErrReportNotFound)
	assert.Contains(t, err.Error(), "mlp")
	assert.NoFileExists(t, filepath.Join(d.reports, "model_accuracy_comparison.csv"))
}
