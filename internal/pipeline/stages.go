package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"matchpredict/internal/experiment"
	"matchpredict/internal/importance"
	"matchpredict/internal/models"
	"matchpredict/internal/persistence"
	"matchpredict/internal/report"
	"matchpredict/pkg/logger"
)

// Train runs the grid search for each roster name and saves the winner, its
// hyperparameters and the CV table. It returns the names that were saved.
// An invalid roster or grid file is returned as an error before any model
// trains.
func (r *Runner) Train(ctx context.Context, ds *Dataset, names []string) ([]string, error) {
	r.begin(ctx)
	if len(names) == 0 {
		names = r.cfg.Models
	}

	overrides, err := experiment.LoadGridFile(r.cfg.GridFile)
	if err != nil {
		return nil, err
	}
	specs, err := experiment.Specs(r.registry, names, overrides)
	if err != nil {
		return nil, err
	}

	gs := experiment.NewGridSearch(r.cfg.CVFolds, r.cfg.Seed, r.cfg.WorkerCount(), r.log)
	var trained []string
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return trained, err
		}
		st := r.state(ctx, spec.Name())
		st.family = spec.Family()
		start := time.Now()
		err := r.trainOne(st, gs, spec, ds)
		st.job.AddElapsed(time.Since(start))
		if err != nil {
			r.fail(ctx, st, err)
			continue
		}
		trained = append(trained, spec.Name())
	}
	return trained, nil
}

func (r *Runner) trainOne(st *modelState, gs *experiment.GridSearch, spec models.Spec, ds *Dataset) error {
	ctx := st.ctx
	name := spec.Name()

	st.job.StartStage(StageTrain)
	r.log.Info(ctx, "grid search started",
		logger.String("model", name),
		logger.Int("combinations", spec.Grid().Size()))
	sr, err := gs.Fit(ctx, spec, ds.XTrain, ds.YTrain)
	if err != nil {
		return err
	}
	r.metrics.ObserveStage(StageTrain, name, sr.Elapsed)
	r.metrics.RecordSearch(name, sr.BestScore, len(sr.Results))

	st.job.StartStage(StageSave)
	mb := persistence.NewModelBundle(name, sr.Best)
	mb.SetBestParams(sr.BestParams)
	mb.Metadata.RunID = r.runID
	mb.Metadata.BestScore = sr.BestScore
	mb.Metadata.Features = ds.Features
	mb.Metadata.TrainingTime = sr.Elapsed
	for _, c := range mb.Metadata.Classes {
		mb.Metadata.ClassLabels = append(mb.Metadata.ClassLabels, r.label(c))
	}
	if err := r.store.Save(mb); err != nil {
		return err
	}
	if _, err := persistence.SaveHyperparameters(r.cfg.ReportsDir, mb); err != nil {
		return err
	}
	if err := experiment.ExportCVResults(experiment.CVResultsPath(r.cfg.ReportsDir, name), sr); err != nil {
		return err
	}

	score := sr.BestScore
	st.cvScore = &score
	st.bestParams = mb.Metadata.BestParams
	st.job.AddLog(fmt.Sprintf("best cv accuracy %.4f", score))
	r.log.Info(ctx, "model saved",
		logger.String("model", name),
		logger.Float64("cv_score", score),
		logger.String("path", r.store.Path(name)))
	return nil
}

// Evaluate scores each stored model on the test split. Failures are
// recorded per model.
func (r *Runner) Evaluate(ctx context.Context, ds *Dataset, names []string) []report.Evaluation {
	r.begin(ctx)
	for _, name := range names {
		r.state(ctx, name).job.StartStage(StageEvaluate)
	}

	ev := report.NewEvaluator(r.store, r.cfg.ReportsDir, r.cfg.FiguresDir, r.labels, r.log)
	results := ev.EvaluateAll(ctx, names, ds.XTest, ds.YTest)
	for _, res := range results {
		st := r.states[res.Name]
		if res.Err != nil {
			r.fail(ctx, st, res.Err)
			continue
		}
		st.job.AddElapsed(res.Elapsed)
		acc := res.Metrics.Accuracy
		st.accuracy = &acc
		st.job.AddLog(fmt.Sprintf("test accuracy %.4f", acc))
		r.metrics.RecordAccuracy(res.Name, acc)
		r.metrics.ObserveStage(StageEvaluate, res.Name, res.Elapsed)
	}
	return results
}

// Compare ranks the named models by the accuracy in their reports.
func (r *Runner) Compare(ctx context.Context, names []string) (*report.Comparison, error) {
	r.begin(ctx)
	start := time.Now()
	cmp, err := report.NewComparator(r.cfg.ReportsDir, r.cfg.FiguresDir, r.log).Compare(ctx, names)
	if err != nil {
		return nil, err
	}
	r.metrics.ObserveStage(StageCompare, "", time.Since(start))
	r.comparison = cmp
	for _, row := range cmp.Rows {
		if st, ok := r.states[row.Model]; ok && st.accuracy == nil {
			acc := row.Accuracy
			st.accuracy = &acc
		}
	}
	return cmp, nil
}

// Importance writes feature rankings for the named models. Families without
// importances are noted and do not fail.
func (r *Runner) Importance(ctx context.Context, names []string) []importance.Result {
	r.begin(ctx)
	for _, name := range names {
		r.state(ctx, name).job.StartStage(StageImportance)
	}

	start := time.Now()
	rep := importance.NewReporter(r.store, r.cfg.ReportsDir, r.cfg.FiguresDir, r.cfg.TopN, r.log)
	results := rep.ReportAll(ctx, names)
	r.metrics.ObserveStage(StageImportance, "", time.Since(start))

	for _, res := range results {
		st := r.states[res.Name]
		switch {
		case errors.Is(res.Err, importance.ErrImportanceUnavailable):
			st.importance = "not available"
			st.job.AddLog("feature importance not available")
		case res.Err != nil:
			r.fail(ctx, st, res.Err)
		default:
			st.importance = res.Kind.String()
			st.job.AddLog("feature importance written to " + res.CSVPath)
		}
	}
	return results
}

func (r *Runner) label(class int) string {
	if l, ok := r.labels[class]; ok {
		return l
	}
	return fmt.Sprint(class)
}
