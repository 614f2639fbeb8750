package persistence

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// HyperparameterPath is where the one-row parameter report of a model goes.
func HyperparameterPath(reportsDir, name string) string {
	return filepath.Join(reportsDir, name+"_best_hyperparameters.csv")
}

// SaveHyperparameters writes the winning combination as one CSV row with
// the parameter names, sorted, as header.
func SaveHyperparameters(reportsDir string, mb *ModelBundle) (string, error) {
	names := make([]string, 0, len(mb.Metadata.BestParams))
	for k := range mb.Metadata.BestParams {
		names = append(names, k)
	}
	sort.Strings(names)

	values := make([]string, len(names))
	for i, k := range names {
		values[i] = mb.Metadata.BestParams[k]
	}

	if err := os.MkdirAll(reportsDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create reports directory: %w", err)
	}
	path := HyperparameterPath(reportsDir, mb.Metadata.ModelName)
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(names); err != nil {
		return "", err
	}
	if err := w.Write(values); err != nil {
		return "", err
	}
	w.Flush()
	return path, w.Error()
}
