package experiment

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"matchpredict/internal/models"
)

func CVResultsPath(reportsDir, name string) string {
	return filepath.Join(reportsDir, name+"_cv_results.csv")
}

// ExportCVResults writes one row per grid combination, in grid order, with
// the per-fold scores, their mean and std, the rank and the mean fit time.
func ExportCVResults(filename string, sr *SearchResult) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	keys := sr.Spec.Grid().Keys()
	nFolds := 0
	if len(sr.Results) > 0 {
		nFolds = len(sr.Results[0].FoldScores)
	}

	header := make([]string, 0, len(keys)+nFolds+5)
	for _, k := range keys {
		header = append(header, "param_"+k)
	}
	for f := 0; f < nFolds; f++ {
		header = append(header, fmt.Sprintf("split%d_test_score", f))
	}
	header = append(header, "mean_test_score", "std_test_score", "rank_test_score", "mean_fit_time", "error")

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, r := range sr.Results {
		row := make([]string, 0, len(header))
		for _, k := range keys {
			row = append(row, models.FormatParam(r.Params[k]))
		}
		for _, s := range r.FoldScores {
			row = append(row, formatScore(s))
		}
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		row = append(row,
			formatScore(r.MeanScore),
			formatScore(r.StdScore),
			strconv.Itoa(r.Rank),
			fmt.Sprintf("%.4f", r.FitTime.Seconds()),
			errText,
		)
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatScore(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}
