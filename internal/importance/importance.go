// Package importance ranks the features of stored models.
package importance

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"matchpredict/internal/charts"
	"matchpredict/internal/models"
	"matchpredict/internal/persistence"
	"matchpredict/pkg/logger"
)

var ErrImportanceUnavailable = errors.New("feature importance not available")

type Feature struct {
	Name  string
	Value float64
}

type Result struct {
	Name string
	Kind models.ImportanceKind
	// Ranking holds every feature, largest magnitude first.
	Ranking    []Feature
	CSVPath    string
	FigurePath string
	Err        error
}

type Reporter struct {
	store      *persistence.Store
	reportsDir string
	figuresDir string
	topN       int
	log        logger.Logger
}

func NewReporter(store *persistence.Store, reportsDir, figuresDir string, topN int, log logger.Logger) *Reporter {
	if topN <= 0 {
		topN = 10
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Reporter{
		store:      store,
		reportsDir: reportsDir,
		figuresDir: figuresDir,
		topN:       topN,
		log:        log.Named("importance"),
	}
}

// Extract returns the raw importance of each feature: impurity importances
// for tree models, and the first class's coefficients for linear ones.
func Extract(m models.Model) ([]float64, models.ImportanceKind, error) {
	if im, ok := m.(models.ImportanceModel); ok {
		values, err := im.FeatureImportances()
		if err != nil {
			return nil, models.ImportanceNone, err
		}
		return values, models.ImportanceTree, nil
	}
	if lm, ok := m.(models.LinearModel); ok {
		coef, err := lm.Coefficients()
		if errors.Is(err, models.ErrNotLinear) {
			return nil, models.ImportanceNone, fmt.Errorf("%s: %w", m.GetType(), ErrImportanceUnavailable)
		}
		if err != nil {
			return nil, models.ImportanceNone, err
		}
		if len(coef) == 0 {
			return nil, models.ImportanceNone, fmt.Errorf("%s: no coefficients: %w", m.GetType(), ErrImportanceUnavailable)
		}
		return coef[0], models.ImportanceCoefficients, nil
	}
	return nil, models.ImportanceNone, fmt.Errorf("%s: %w", m.GetType(), ErrImportanceUnavailable)
}

// Rank pairs values with names and orders them by magnitude; equal
// magnitudes keep feature order.
func Rank(names []string, values []float64) ([]Feature, error) {
	if len(names) != len(values) {
		return nil, fmt.Errorf("%d feature names for %d values", len(names), len(values))
	}
	out := make([]Feature, len(names))
	for i := range names {
		out[i] = Feature{Name: names[i], Value: values[i]}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return math.Abs(out[a].Value) > math.Abs(out[b].Value)
	})
	return out, nil
}

// Report ranks the named model's features, writes the full ranking CSV and
// charts the top N.
func (r *Reporter) Report(ctx context.Context, name string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bundle, err := r.store.Load(name)
	if err != nil {
		return nil, err
	}
	values, kind, err := Extract(bundle.Model)
	if err != nil {
		return nil, err
	}
	ranking, err := Rank(bundle.Metadata.Features, values)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	res := &Result{
		Name:       name,
		Kind:       kind,
		Ranking:    ranking,
		CSVPath:    filepath.Join(r.reportsDir, name+"_feature_importance.csv"),
		FigurePath: filepath.Join(r.figuresDir, name+"_feature_importance.png"),
	}
	if err := writeRanking(res.CSVPath, ranking); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	top := ranking[:min(r.topN, len(ranking))]
	bars := make([]charts.Bar, len(top))
	for i, f := range top {
		bars[i] = charts.Bar{Label: f.Name, Value: math.Abs(f.Value)}
	}
	title, axis := fmt.Sprintf("%s Top %d Important Features", displayName(name), len(top)), "Feature Importance"
	if kind == models.ImportanceCoefficients {
		title, axis = fmt.Sprintf("%s Top %d Feature Contributions", displayName(name), len(top)), "Feature Coefficient"
	}
	if err := charts.HorizontalBars(res.FigurePath, bars, charts.BarOptions{Title: title, XLabel: axis}); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	r.log.Info(ctx, "feature importance reported",
		logger.String("model", name),
		logger.String("kind", kind.String()),
		logger.String("top_feature", ranking[0].Name))
	return res, nil
}

// ReportAll reports every name. Models without importances are logged as
// not available and do not fail the batch.
func (r *Reporter) ReportAll(ctx context.Context, names []string) []Result {
	out := make([]Result, 0, len(names))
	for _, name := range names {
		res, err := r.Report(ctx, name)
		switch {
		case errors.Is(err, ErrImportanceUnavailable):
			r.log.Info(ctx, "feature importance not available", logger.String("model", name))
			out = append(out, Result{Name: name, Err: err})
		case err != nil:
			r.log.Error(ctx, "feature importance failed", logger.String("model", name), logger.Error(err))
			out = append(out, Result{Name: name, Err: err})
		default:
			out = append(out, *res)
		}
	}
	return out
}

func writeRanking(path string, ranking []Feature) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create reports directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{"Rank", "Feature", "Importance"}); err != nil {
		return err
	}
	for i, f := range ranking {
		if err := w.Write([]string{strconv.Itoa(i + 1), f.Name, strconv.FormatFloat(f.Value, 'f', -1, 64)}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// displayName turns "random_forest" into "Random Forest".
func displayName(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
