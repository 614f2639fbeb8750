package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"matchpredict/internal/evaluation"
)

var ErrReportNotFound = errors.New("classification report not found")

var reportHeader = []string{"", "precision", "recall", "f1-score", "support"}

func ReportPath(reportsDir, name string) string {
	return filepath.Join(reportsDir, name+"_classification_report.csv")
}

func ConfusionMatrixPath(figuresDir, name string) string {
	return filepath.Join(figuresDir, "confusion_matrix_"+name+".png")
}

// WriteReport stores the rows with the label in the first, unnamed column.
func WriteReport(path string, rows []evaluation.ReportRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create reports directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(reportHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.Write([]string{
			r.Label,
			formatMetric(r.Precision),
			formatMetric(r.Recall),
			formatMetric(r.F1Score),
			strconv.Itoa(r.Support),
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ReadReport parses a report written by WriteReport.
func ReadReport(path string) ([]evaluation.ReportRow, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrReportNotFound)
		}
		return nil, fmt.Errorf("failed to open report: %w", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read report %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("report %s has no rows", path)
	}

	rows := make([]evaluation.ReportRow, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) != len(reportHeader) {
			return nil, fmt.Errorf("report %s line %d: expected %d fields, got %d", path, i+2, len(reportHeader), len(rec))
		}
		var row evaluation.ReportRow
		row.Label = rec[0]
		values := []*float64{&row.Precision, &row.Recall, &row.F1Score}
		for j, dst := range values {
			v, err := strconv.ParseFloat(rec[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("report %s line %d: %w", path, i+2, err)
			}
			*dst = v
		}
		support, err := strconv.ParseFloat(rec[4], 64)
		if err != nil {
			return nil, fmt.Errorf("report %s line %d: %w", path, i+2, err)
		}
		row.Support = int(support)
		rows = append(rows, row)
	}
	return rows, nil
}

// ReportAccuracy reads the accuracy row of a model's report.
func ReportAccuracy(reportsDir, name string) (float64, error) {
	rows, err := ReadReport(ReportPath(reportsDir, name))
	if err != nil {
		return 0, err
	}
	for _, r := range rows {
		if r.Label == "accuracy" {
			return r.Precision, nil
		}
	}
	return 0, fmt.Errorf("report for %s has no accuracy row", name)
}

func formatMetric(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
