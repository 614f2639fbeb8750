package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"matchpredict/internal/config"
	"matchpredict/internal/data"
	"matchpredict/internal/jobs"
	"matchpredict/internal/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const testGrids = `grids:
  knn:
    n_neighbors: [3]
    weights: [uniform]
    metric: [euclidean]
  decision_tree:
    max_depth: [null, 3]
    min_samples_split: [2]
    min_samples_leaf: [1]
  logistic_regression:
    C: [1.0]
    solver: [lbfgs]
    penalty: [l2]
`

// writeMatches writes a season of 90 matches whose outcome follows the
// home and away form columns.
func writeMatches(t *testing.T, path string, outcome func(i int) string) {
	t.Helper()
	var b strings.Builder
	b.WriteString("Season,Home Team,Away Team,Home Formation,Away Formation,Home_Advantage,HomeForm,AwayForm,MatchOutcome\n")
	for i := 0; i < 90; i++ {
		c := i % 3
		home := fmt.Sprintf("%.2f", float64(2-2*c)+0.1*float64(i%5))
		if i == 7 {
			home = ""
		}
		fmt.Fprintf(&b, "2023-2024,Team %d,Team %d,4-3-3,4-4-2,1,%s,%.2f,%s\n",
			i%6, (i+1)%6, home, float64(2*c-2)+0.05*float64(i%4), outcome(i))
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

func outcomes(i int) string { return []string{"H", "D", "A"}[i%3] }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.New()
	cfg.InputPath = filepath.Join(root, "data", "matches.csv")
	cfg.CleanedPath = filepath.Join(root, "data", "cleaned.csv")
	cfg.ModelsDir = filepath.Join(root, "models")
	cfg.ReportsDir = filepath.Join(root, "outputs", "reports")
	cfg.FiguresDir = filepath.Join(root, "outputs", "figures")
	cfg.LedgerPath = filepath.Join(root, "outputs", "ledger.db")
	cfg.MetricsPath = filepath.Join(root, "outputs", "pipeline.prom")
	cfg.GridFile = filepath.Join(root, "grids.yaml")
	cfg.Models = []string{"knn", "decision_tree", "naive_bayes", "logistic_regression"}
	cfg.Workers = 2
	require.NoError(t, os.WriteFile(cfg.GridFile, []byte(testGrids), 0o644))
	return cfg
}

func TestRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	writeMatches(t, cfg.InputPath, outcomes)

	l, err := ledger.Open(ctx, cfg.LedgerPath)
	require.NoError(t, err)
	defer l.Close()

	r, err := NewRunner(cfg, nil, WithLedger(l))
	require.NoError(t, err)
	s, err := r.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, RunCompleted, s.Status)
	assert.Equal(t, r.RunID(), s.RunID)
	assert.Equal(t, 90, s.Samples)
	assert.Equal(t, 7, s.Features)
	require.Len(t, s.Models, 4)
	require.Len(t, s.Completed(), 4)
	assert.NotEmpty(t, s.BestModel)
	assert.Greater(t, s.BestAccuracy, 0.8)

	byName := map[string]ModelSummary{}
	var worked time.Duration
	for _, m := range s.Models {
		byName[m.Name] = m
		assert.True(t, m.Duration > 0, m.Name)
		worked += m.Duration
		assert.Equal(t, StageImportance, m.Stage, m.Name)
		require.NotNil(t, m.CVScore, m.Name)
		require.NotNil(t, m.Accuracy, m.Name)
	}
	// models train one after another, so their work fits inside the run
	assert.True(t, worked <= s.FinishedAt.Sub(s.StartedAt), "worked %s", worked)
	assert.Equal(t, "not available", byName["knn"].Importance)
	assert.Equal(t, "not available", byName["naive_bayes"].Importance)
	assert.Equal(t, "tree", byName["decision_tree"].Importance)
	assert.Equal(t, "coefficients", byName["logistic_regression"].Importance)

	for _, p := range []string{
		cfg.CleanedPath,
		cfg.MetricsPath,
		filepath.Join(cfg.ModelsDir, "knn.model"),
		filepath.Join(cfg.ReportsDir, "knn_best_hyperparameters.csv"),
		filepath.Join(cfg.ReportsDir, "knn_cv_results.csv"),
		filepath.Join(cfg.ReportsDir, "knn_classification_report.csv"),
		filepath.Join(cfg.FiguresDir, "confusion_matrix_knn.png"),
		filepath.Join(cfg.ReportsDir, "model_accuracy_comparison.csv"),
		filepath.Join(cfg.FiguresDir, "model_accuracy_comparison.png"),
		filepath.Join(cfg.ReportsDir, "decision_tree_feature_importance.csv"),
		filepath.Join(cfg.FiguresDir, "decision_tree_feature_importance.png"),
		ManifestPath(cfg.ReportsDir),
	} {
		assert.FileExists(t, p)
	}
	assert.NoFileExists(t, filepath.Join(cfg.FiguresDir, "knn_feature_importance.png"))

	cleaned, err := data.LoadTable(cfg.CleanedPath)
	require.NoError(t, err)
	assert.Equal(t, 90, cleaned.Len())
	_, hasSeason := cleaned.Column("Season")
	assert.False(t, hasSeason)

	runs, err := l.Runs(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunCompleted, runs[0].Status)
	assert.Equal(t, s.BestModel, runs[0].BestModel)
	assert.Equal(t, 90, runs[0].Samples)
	results, err := l.ModelResults(ctx, r.RunID())
	require.NoError(t, err)
	assert.Len(t, results, 4)

	raw, err := os.ReadFile(ManifestPath(cfg.ReportsDir))
	require.NoError(t, err)
	var m manifest
	require.NoError(t, yaml.Unmarshal(raw, &m))
	assert.Equal(t, s.RunID, m.RunID)
	assert.Len(t, m.Models, 4)

	assert.Equal(t, map[jobs.JobStatus]int{jobs.JobCompleted: 4}, r.Jobs().Counts())
}

func TestRunIsDeterministic(t *testing.T) {
	ctx := context.Background()
	accuracies := func() map[string]float64 {
		cfg := testConfig(t)
		cfg.Models = []string{"decision_tree", "logistic_regression"}
		writeMatches(t, cfg.InputPath, outcomes)
		r, err := NewRunner(cfg, nil)
		require.NoError(t, err)
		s, err := r.Run(ctx)
		require.NoError(t, err)
		out := map[string]float64{}
		for _, m := range s.Models {
			out[m.Name] = *m.Accuracy
		}
		return out
	}
	assert.Equal(t, accuracies(), accuracies())
}

func TestRunAbortsOnUnmappedTargets(t *testing.T) {
	cfg := testConfig(t)
	writeMatches(t, cfg.InputPath, func(i int) string {
		if i == 11 {
			return "P"
		}
		return outcomes(i)
	})

	r, err := NewRunner(cfg, nil)
	require.NoError(t, err)
	s, err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrUnmappedTargets)
	assert.Contains(t, err.Error(), `"P"`)
	assert.Equal(t, RunFailed, s.Status)
	assert.Empty(t, s.Models)
	assert.FileExists(t, cfg.CleanedPath)
	assert.NoDirExists(t, cfg.ModelsDir)
}

func TestRunAbortsOnMissingInput(t *testing.T) {
	cfg := testConfig(t)
	r, err := NewRunner(cfg, nil)
	require.NoError(t, err)

	s, err := r.Run(context.Background())
	require.ErrorIs(t, err, data.ErrFileNotFound)
	assert.Equal(t, RunFailed, s.Status)
	assert.FileExists(t, ManifestPath(cfg.ReportsDir))
}

func TestUnknownRosterFamily(t *testing.T) {
	cfg := testConfig(t)
	cfg.Models = []string{"knn", "catboost"}
	writeMatches(t, cfg.InputPath, outcomes)

	r, err := NewRunner(cfg, nil)
	require.NoError(t, err)
	_, err = r.Run(context.Background())
	assert.ErrorContains(t, err, "catboost")
}

func TestFailedModelDoesNotStopOthers(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	writeMatches(t, cfg.InputPath, outcomes)

	r, err := NewRunner(cfg, nil)
	require.NoError(t, err)
	ds, err := r.Prepare(ctx)
	require.NoError(t, err)

	trained, err := r.Train(ctx, ds, []string{"knn", "naive_bayes"})
	require.NoError(t, err)
	require.Equal(t, []string{"knn", "naive_bayes"}, trained)

	require.NoError(t, os.Remove(filepath.Join(cfg.ModelsDir, "knn.model")))
	evals := r.Evaluate(ctx, ds, trained)
	require.Len(t, evals, 2)
	assert.Error(t, evals[0].Err)
	assert.NoError(t, evals[1].Err)

	cmp, err := r.Compare(ctx, []string{"naive_bayes"})
	require.NoError(t, err)
	require.Len(t, cmp.Rows, 1)

	s := r.Finish(ctx, nil)
	assert.Equal(t, RunPartial, s.Status)
	assert.Equal(t, "naive_bayes", s.BestModel)
	require.Len(t, s.Models, 2)
	assert.Equal(t, jobs.JobFailed, s.Models[0].Status)
	assert.Equal(t, StageEvaluate, s.Models[0].Stage)
	assert.Equal(t, jobs.JobCompleted, s.Models[1].Status)
}

func TestCancelledRun(t *testing.T) {
	cfg := testConfig(t)
	writeMatches(t, cfg.InputPath, outcomes)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := NewRunner(cfg, nil)
	require.NoError(t, err)
	s, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, RunCancelled, s.Status)
}

func TestBalancedTrainingSplit(t *testing.T) {
	cfg := testConfig(t)
	cfg.BalanceEnabled = true
	// draws are rare
	writeMatches(t, cfg.InputPath, func(i int) string {
		if i%3 == 1 && i > 30 {
			return "H"
		}
		return outcomes(i)
	})

	r, err := NewRunner(cfg, nil)
	require.NoError(t, err)
	ds, err := r.Prepare(context.Background())
	require.NoError(t, err)
	assert.True(t, ds.Balanced)

	counts := map[int]int{}
	for _, c := range ds.YTrain {
		counts[c]++
	}
	assert.Equal(t, counts[0], counts[1])
	assert.Equal(t, counts[0], counts[2])
	assert.Less(t, len(ds.YTest), ds.Samples()-len(ds.YTest))
}

func TestFormatParams(t *testing.T) {
	assert.Equal(t, "C=1, max_depth=default, solver=lbfgs",
		FormatParams(map[string]string{"solver": "lbfgs", "C": "1", "max_depth": ""}))
	assert.Equal(t, "", FormatParams(nil))
}
