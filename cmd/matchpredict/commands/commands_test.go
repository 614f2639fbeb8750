package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"matchpredict/internal/config"
	"matchpredict/internal/ledger"
	"matchpredict/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRosterArgs(t *testing.T) {
	cfg := config.New()
	cfg.Models = []string{"knn", "svm"}
	cmd := &cobra.Command{}
	cmd.SetContext(setGlobals(context.Background(), &globals{cfg: cfg, log: logger.Nop()}))

	assert.Equal(t, []string{"knn", "svm"}, rosterArgs(cmd, nil))
	assert.Equal(t, []string{"mlp"}, rosterArgs(cmd, []string{"mlp"}))
}

func TestModelsListsEveryFamily(t *testing.T) {
	grids := filepath.Join(t.TempDir(), "grids.yaml")
	require.NoError(t, os.WriteFile(grids, []byte("grids:\n  knn:\n    n_neighbors: [3, 5]\n"), 0o644))
	path := writeConfig(t, fmt.Sprintf("models: [knn]\ngrid_file: %s\n", grids))

	out, err := execute(t, "models", "-c", path)
	require.NoError(t, err)
	for _, family := range []string{
		"knn", "decision_tree", "random_forest", "naive_bayes",
		"logistic_regression", "svm", "mlp", "gradient_boosting",
	} {
		assert.Contains(t, out, family)
	}
	assert.Contains(t, out, "yes")
	assert.Contains(t, out, "n_neighbors")
}

func TestModelsRejectsArgs(t *testing.T) {
	_, err := execute(t, "models", "extra", "-c", writeConfig(t, "models: [knn]\n"))
	assert.Error(t, err)
}

func TestHistoryShowsRecordedRuns(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	l, err := ledger.Open(ctx, dbPath)
	require.NoError(t, err)
	at := time.Now()
	require.NoError(t, l.StartRun(ctx, ledger.Run{ID: "run-1", StartedAt: at, Status: "running", InputPath: "matches.csv"}))
	require.NoError(t, l.FinishRun(ctx, "run-1", "completed", "svm", 0.61, at.Add(time.Minute)))
	require.NoError(t, l.Close())

	out, err := execute(t, "history", "-c", writeConfig(t, "ledger_path: "+dbPath+"\n"))
	require.NoError(t, err)
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "0.6100")
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := execute(t, "models", "--log-level", "verbose", "-c", writeConfig(t, "models: [knn]\n"))
	assert.ErrorContains(t, err, "unknown log level")
	logLevel = ""
}

func TestMissingConfigFile(t *testing.T) {
	_, err := execute(t, "models", "-c", filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "load config file")
}
