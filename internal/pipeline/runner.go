// Package pipeline runs the match-outcome workflow end to end: load,
// preprocess, split, train, evaluate, compare and feature importance.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"matchpredict/internal/config"
	"matchpredict/internal/data"
	"matchpredict/internal/evaluation"
	"matchpredict/internal/jobs"
	"matchpredict/internal/ledger"
	"matchpredict/internal/metrics"
	"matchpredict/internal/models"
	"matchpredict/internal/persistence"
	"matchpredict/internal/preprocessing"
	"matchpredict/internal/report"
	"matchpredict/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrUnmappedTargets = errors.New("target values outside the mapping")
	ErrNoModels        = errors.New("no model completed")
)

const (
	StageLoad       = "load"
	StagePreprocess = "preprocess"
	StageSplit      = "split"
	StageTrain      = "train"
	StageSave       = "save"
	StageEvaluate   = "evaluate"
	StageCompare    = "compare"
	StageImportance = "importance"
)

type Option func(*Runner)

// WithLedger records the run in l. The runner does not close it.
func WithLedger(l *ledger.Ledger) Option {
	return func(r *Runner) { r.ledger = l }
}

func WithMetrics(m *metrics.Manager) Option {
	return func(r *Runner) { r.metrics = m }
}

func WithRegistry(reg *models.Registry) Option {
	return func(r *Runner) { r.registry = reg }
}

func WithJobs(m *jobs.Manager) Option {
	return func(r *Runner) { r.jobs = m }
}

// Dataset is the split feature table handed to the training stages.
type Dataset struct {
	Features []string
	XTrain   [][]decimal.Decimal
	XTest    [][]decimal.Decimal
	YTrain   []int
	YTest    []int
	Report   *preprocessing.Report
	// Stats describes the full feature table, before the split.
	Stats    data.DatasetStats
	Balanced bool
}

func (d *Dataset) Samples() int { return len(d.YTrain) + len(d.YTest) }

type modelState struct {
	job        *jobs.Job
	ctx        context.Context
	family     string
	cvScore    *float64
	accuracy   *float64
	bestParams map[string]string
	importance string
}

// Runner owns one pipeline run. Stage methods may be called on their own,
// as the CLI subcommands do, or all together through Run.
type Runner struct {
	cfg      *config.Config
	log      logger.Logger
	registry *models.Registry
	store    *persistence.Store
	jobs     *jobs.Manager
	metrics  *metrics.Manager
	ledger   *ledger.Ledger
	labels   map[int]string

	runID      string
	startedAt  time.Time
	began      bool
	samples    int
	features   int
	states     map[string]*modelState
	order      []string
	comparison *report.Comparison
}

func NewRunner(cfg *config.Config, log logger.Logger, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	te, err := preprocessing.NewTargetEncoder(cfg.TargetMapping)
	if err != nil {
		return nil, fmt.Errorf("invalid target mapping: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}

	labels := make(map[int]string)
	for i, code := range te.Codes() {
		labels[code] = te.Labels()[i]
	}

	r := &Runner{
		cfg:    cfg,
		log:    log.Named("pipeline"),
		store:  persistence.NewStore(cfg.ModelsDir),
		labels: labels,
		runID:  uuid.NewString(),
		states: make(map[string]*modelState),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.registry == nil {
		r.registry = models.Default()
	}
	if r.jobs == nil {
		r.jobs = jobs.NewManager()
	}
	if r.metrics == nil {
		r.metrics = metrics.NewManager()
	}
	return r, nil
}

func (r *Runner) RunID() string             { return r.runID }
func (r *Runner) Jobs() *jobs.Manager       { return r.jobs }
func (r *Runner) Metrics() *metrics.Manager { return r.metrics }

// Run executes every stage. Load, preprocess and split failures abort the
// run; a model failing in any later stage is recorded and skipped.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	ds, err := r.Prepare(ctx)
	if err != nil {
		return r.Finish(ctx, err), err
	}

	trained, err := r.Train(ctx, ds, r.cfg.Models)
	if err != nil {
		return r.Finish(ctx, err), err
	}

	var evaluated []string
	for _, ev := range r.Evaluate(ctx, ds, trained) {
		if ev.Err == nil {
			evaluated = append(evaluated, ev.Name)
		}
	}

	if len(evaluated) > 0 {
		if _, err := r.Compare(ctx, evaluated); err != nil {
			r.log.Error(ctx, "comparison failed", logger.Error(err))
		}
		r.Importance(ctx, evaluated)
	}

	s := r.Finish(ctx, ctx.Err())
	if err := ctx.Err(); err != nil {
		return s, err
	}
	if len(evaluated) == 0 {
		return s, ErrNoModels
	}
	return s, nil
}

// begin opens the run in the ledger the first time any stage starts.
func (r *Runner) begin(ctx context.Context) {
	if r.began {
		return
	}
	r.began = true
	r.startedAt = time.Now()
	r.log.Info(ctx, "run started", logger.String("run_id", r.runID), logger.String("input", r.cfg.InputPath))

	if r.ledger == nil {
		return
	}
	err := r.ledger.StartRun(ctx, ledger.Run{
		ID:        r.runID,
		StartedAt: r.startedAt,
		Status:    string(jobs.JobRunning),
		InputPath: r.cfg.InputPath,
	})
	if err != nil {
		r.log.Warn(ctx, "ledger unavailable for this run", logger.Error(err))
		r.ledger = nil
	}
}

// Preprocess loads the input, cleans it and writes the cleaned CSV. Target
// values outside the mapping fail with ErrUnmappedTargets after the cleaned
// table is written, so the offending rows can be inspected.
func (r *Runner) Preprocess(ctx context.Context) (*data.Table, *preprocessing.Report, error) {
	r.begin(ctx)

	start := time.Now()
	raw, err := data.LoadTable(r.cfg.InputPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", StageLoad, err)
	}
	r.metrics.ObserveStage(StageLoad, "", time.Since(start))
	r.log.Info(ctx, "input loaded",
		logger.String("path", r.cfg.InputPath),
		logger.Int("rows", raw.Len()),
		logger.Int("columns", raw.Width()))

	start = time.Now()
	p, err := preprocessing.NewPreprocessor(preprocessing.OptionsFromConfig(r.cfg), r.log)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", StagePreprocess, err)
	}
	cleaned, rep, err := p.Process(ctx, raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", StagePreprocess, err)
	}
	if err := data.WriteTable(r.cfg.CleanedPath, cleaned); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", StagePreprocess, err)
	}
	r.metrics.ObserveStage(StagePreprocess, "", time.Since(start))
	r.log.Info(ctx, "cleaned table written", logger.String("path", r.cfg.CleanedPath))

	if n := len(rep.UnmappedTargets); n > 0 {
		first := rep.UnmappedTargets[0]
		return cleaned, rep, fmt.Errorf("%d rows, first at row %d (%q): %w", n, first.Row, first.Value, ErrUnmappedTargets)
	}
	return cleaned, rep, nil
}

// Prepare preprocesses the input and returns the stratified train/test
// split, with the training half oversampled when balancing is enabled.
func (r *Runner) Prepare(ctx context.Context) (*Dataset, error) {
	cleaned, rep, err := r.Preprocess(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	X, y, names, err := cleaned.FeatureMatrix(r.cfg.TargetColumn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", StageSplit, err)
	}
	validator := data.NewDataValidator()
	if err := validator.ValidateDataset(X, y); err != nil {
		return nil, fmt.Errorf("%s: %w", StageSplit, err)
	}
	if err := validator.ValidateLabels(y, 0); err != nil {
		return nil, fmt.Errorf("%s: %w", StageSplit, err)
	}

	splitter := evaluation.NewTrainTestSplitter(r.cfg.TestSize, r.cfg.Seed)
	XTrain, XTest, yTrain, yTest, err := splitter.StratifiedSplit(X, y)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", StageSplit, err)
	}
	if err := validator.ValidateTrainTestSplit(XTrain, XTest, yTrain, yTest); err != nil {
		return nil, fmt.Errorf("%s: %w", StageSplit, err)
	}

	ds := &Dataset{
		Features: names,
		XTrain:   XTrain,
		XTest:    XTest,
		YTrain:   yTrain,
		YTest:    yTest,
		Report:   rep,
		Stats:    validator.GetDatasetStats(X, y, names),
	}

	if r.cfg.BalanceEnabled {
		b := preprocessing.NewBalancer(r.cfg.BalanceRatio, r.cfg.BalanceNeighbors, r.cfg.Seed)
		before := len(ds.YTrain)
		ds.XTrain, ds.YTrain, ds.Balanced, err = b.Resample(ds.XTrain, ds.YTrain)
		if err != nil {
			return nil, fmt.Errorf("balance: %w", err)
		}
		if ds.Balanced {
			r.log.Info(ctx, "training split oversampled",
				logger.Int("before", before),
				logger.Int("after", len(ds.YTrain)))
		}
	}

	if err := validator.ValidateLabels(ds.YTrain, r.cfg.CVFolds); err != nil {
		return nil, fmt.Errorf("%s: %w", StageSplit, err)
	}

	r.samples, r.features = len(X), len(names)
	r.metrics.RecordDataset(r.samples, r.features)
	r.metrics.ObserveStage(StageSplit, "", time.Since(start))
	if r.ledger != nil {
		if err := r.ledger.UpdateDataset(ctx, r.runID, r.samples, r.features); err != nil {
			r.log.Warn(ctx, "ledger update failed", logger.Error(err))
		}
	}

	classes := make([]string, len(ds.Stats.Classes))
	for i, cc := range ds.Stats.Classes {
		classes[i] = fmt.Sprintf("%s=%d", r.label(cc.Class), cc.Count)
	}
	r.log.Info(ctx, "dataset split",
		logger.Strings("classes", classes),
		logger.Int("train", len(ds.YTrain)),
		logger.Int("test", len(ds.YTest)),
		logger.Int("features", len(names)))
	return ds, nil
}

// state returns the open tracking state for name, creating a job when the
// model has none or its last job already ended.
func (r *Runner) state(ctx context.Context, name string) *modelState {
	if st, ok := r.states[name]; ok {
		switch st.job.GetStatus() {
		case jobs.JobPending, jobs.JobRunning:
			return st
		}
	} else {
		r.order = append(r.order, name)
	}
	job, jobCtx := r.jobs.CreateJob(ctx, name, "run "+r.runID)
	st := &modelState{job: job, ctx: jobCtx}
	r.states[name] = st
	return st
}

func (r *Runner) fail(ctx context.Context, st *modelState, err error) {
	st.job.SetError(err)
	r.log.Error(ctx, "model failed",
		logger.String("model", st.job.Model),
		logger.String("stage", st.job.GetStage()),
		logger.Error(err))
}
