package report

import (
	"context"
	"fmt"
	"time"

	"matchpredict/internal/charts"
	"matchpredict/internal/evaluation"
	"matchpredict/internal/persistence"
	"matchpredict/pkg/logger"

	"github.com/shopspring/decimal"
)

// Evaluation is the outcome of evaluating one stored model on a test set.
type Evaluation struct {
	Name       string
	Metrics    *evaluation.ClassificationMetrics
	ReportPath string
	FigurePath string
	Elapsed    time.Duration
	Err        error
}

type Evaluator struct {
	store      *persistence.Store
	reportsDir string
	figuresDir string
	labels     map[int]string
	log        logger.Logger
}

// NewEvaluator reads artifacts from store. labels names the classes on the
// confusion-matrix axes; codes without a name are printed as numbers.
func NewEvaluator(store *persistence.Store, reportsDir, figuresDir string, labels map[int]string, log logger.Logger) *Evaluator {
	if log == nil {
		log = logger.Nop()
	}
	return &Evaluator{
		store:      store,
		reportsDir: reportsDir,
		figuresDir: figuresDir,
		labels:     labels,
		log:        log.Named("evaluator"),
	}
}

// Evaluate loads the named artifact, predicts X and writes the report CSV
// and the confusion-matrix figure.
func (e *Evaluator) Evaluate(ctx context.Context, name string, X [][]decimal.Decimal, y []int) (*Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	bundle, err := e.store.Load(name)
	if err != nil {
		return nil, err
	}
	if n := len(bundle.Metadata.Features); n > 0 && len(X) > 0 && len(X[0]) != n {
		return nil, fmt.Errorf("%s: model expects %d features, got %d", name, n, len(X[0]))
	}

	predictions := bundle.Model.Predict(X)
	metrics, err := evaluation.CalculateMetrics(y, predictions, bundle.Model.GetClasses())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	ev := &Evaluation{
		Name:       name,
		Metrics:    metrics,
		ReportPath: ReportPath(e.reportsDir, name),
		FigurePath: ConfusionMatrixPath(e.figuresDir, name),
	}
	if err := WriteReport(ev.ReportPath, metrics.ReportRows(nil)); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	axis := make([]string, len(metrics.Classes))
	for i, c := range metrics.Classes {
		axis[i] = e.label(c)
	}
	if err := charts.ConfusionMatrix(ev.FigurePath, name+" confusion matrix", metrics.ConfusionMatrix, axis); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	ev.Elapsed = time.Since(start)
	e.log.Info(ctx, "model evaluated",
		logger.String("model", name),
		logger.Float64("accuracy", metrics.Accuracy),
		logger.String("report", ev.ReportPath))
	return ev, nil
}

// EvaluateAll evaluates every name in order. A failing model is recorded in
// its Evaluation and the rest still run.
func (e *Evaluator) EvaluateAll(ctx context.Context, names []string, X [][]decimal.Decimal, y []int) []Evaluation {
	out := make([]Evaluation, 0, len(names))
	for _, name := range names {
		ev, err := e.Evaluate(ctx, name, X, y)
		if err != nil {
			e.log.Error(ctx, "evaluation failed", logger.String("model", name), logger.Error(err))
			out = append(out, Evaluation{Name: name, Err: err})
			continue
		}
		out = append(out, *ev)
	}
	return out
}

func (e *Evaluator) label(class int) string {
	if l, ok := e.labels[class]; ok {
		return l
	}
	return fmt.Sprint(class)
}
