package charts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertPNG(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	assert.Equal(t, "\x89PNG", string(data[:4]))
}

func TestHorizontalBars(t *testing.T) {
	path := filepath.Join(t.TempDir(), "figures", "comparison.png")
	err := HorizontalBars(path, []Bar{
		{Label: "random_forest", Value: 0.61},
		{Label: "knn", Value: 0.48},
	}, BarOptions{Title: "Model accuracy", XLabel: "Accuracy", Format: "%.2f", XMax: 1})
	require.NoError(t, err)
	assertPNG(t, path)

	assert.Error(t, HorizontalBars(path, nil, BarOptions{}))
}

func TestConfusionMatrix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cm.png")
	err := ConfusionMatrix(path, "svm", [][]int{{5, 1, 0}, {2, 3, 1}, {0, 1, 4}}, []string{"H", "D", "A"})
	require.NoError(t, err)
	assertPNG(t, path)

	// a constant matrix still renders
	require.NoError(t, ConfusionMatrix(path, "zeros", [][]int{{0, 0}, {0, 0}}, []string{"H", "A"}))

	assert.Error(t, ConfusionMatrix(path, "bad", [][]int{{1}}, []string{"H", "A"}))
	assert.Error(t, ConfusionMatrix(path, "empty", nil, nil))
}
