package report

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"matchpredict/internal/charts"
	"matchpredict/pkg/logger"
)

type ComparisonRow struct {
	Model    string
	Accuracy float64
	Rank     int
}

type Comparison struct {
	Rows       []ComparisonRow
	CSVPath    string
	FigurePath string
}

// Best returns the row ranked first, the earliest one on ties.
func (c *Comparison) Best() (ComparisonRow, bool) {
	for _, r := range c.Rows {
		if r.Rank == 1 {
			return r, true
		}
	}
	return ComparisonRow{}, false
}

type Comparator struct {
	reportsDir string
	figuresDir string
	log        logger.Logger
}

func NewComparator(reportsDir, figuresDir string, log logger.Logger) *Comparator {
	if log == nil {
		log = logger.Nop()
	}
	return &Comparator{reportsDir: reportsDir, figuresDir: figuresDir, log: log.Named("comparator")}
}

func (c *Comparator) CSVPath() string {
	return filepath.Join(c.reportsDir, "model_accuracy_comparison.csv")
}

func (c *Comparator) FigurePath() string {
	return filepath.Join(c.figuresDir, "model_accuracy_comparison.png")
}

// Compare reads each model's report and ranks the accuracies. Rows keep the
// input order. Any missing report aborts the comparison.
func (c *Comparator) Compare(ctx context.Context, names []string) (*Comparison, error) {
	if len(names) == 0 {
		return nil, errors.New("no models to compare")
	}
	rows := make([]ComparisonRow, len(names))
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		acc, err := ReportAccuracy(c.reportsDir, name)
		if err != nil {
			return nil, fmt.Errorf("compare %s: %w", name, err)
		}
		rows[i] = ComparisonRow{Model: name, Accuracy: acc}
	}
	rankRows(rows)

	cmp := &Comparison{Rows: rows, CSVPath: c.CSVPath(), FigurePath: c.FigurePath()}
	if err := writeComparison(cmp.CSVPath, rows); err != nil {
		return nil, err
	}

	bars := make([]charts.Bar, len(rows))
	for i, r := range rows {
		bars[i] = charts.Bar{Label: r.Model, Value: r.Accuracy}
	}
	if err := charts.HorizontalBars(cmp.FigurePath, bars, charts.BarOptions{
		Title:  "Comparison of Model Accuracy Scores",
		XLabel: "Accuracy Score",
		Format: "%.2f",
		XMax:   1,
	}); err != nil {
		return nil, err
	}

	if best, ok := cmp.Best(); ok {
		c.log.Info(ctx, "models compared",
			logger.Int("models", len(rows)),
			logger.String("best", best.Model),
			logger.Float64("best_accuracy", best.Accuracy))
	}
	return cmp, nil
}

// rankRows gives rank 1 to the highest accuracy; equal accuracies share the
// lower rank.
func rankRows(rows []ComparisonRow) {
	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return rows[order[a]].Accuracy > rows[order[b]].Accuracy
	})
	for pos, i := range order {
		rows[i].Rank = pos + 1
		if pos > 0 && rows[order[pos-1]].Accuracy == rows[i].Accuracy {
			rows[i].Rank = rows[order[pos-1]].Rank
		}
	}
}

func writeComparison(path string, rows []ComparisonRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create reports directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{"Model", "Accuracy", "Rank"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.Write([]string{r.Model, formatMetric(r.Accuracy), strconv.Itoa(r.Rank)}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
