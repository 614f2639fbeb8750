package experiment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"matchpredict/internal/evaluation"
	"matchpredict/internal/models"
	"matchpredict/pkg/logger"

	"github.com/shopspring/decimal"
)

var ErrAllCombinationsFailed = errors.New("every grid combination failed")

// CVResult is the cross-validated outcome of one grid combination.
type CVResult struct {
	Params     map[string]any
	FoldScores []float64
	MeanScore  float64
	StdScore   float64
	FitTime    time.Duration
	Rank       int
	Err        error
}

type SearchResult struct {
	Spec       models.Spec
	Best       models.Model
	BestIndex  int
	BestParams map[string]any
	BestScore  float64
	Results    []CVResult
	Elapsed    time.Duration
}

type GridSearch struct {
	CV      *evaluation.CrossValidator
	Workers int
	log     logger.Logger
}

func NewGridSearch(folds int, seed int64, workers int, log logger.Logger) *GridSearch {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GridSearch{
		CV:      evaluation.NewCrossValidator(folds, seed),
		Workers: workers,
		log:     log.Named("grid_search"),
	}
}

type foldJob struct {
	combo int
	fold  int
}

type foldOutcome struct {
	score   float64
	elapsed time.Duration
	err     error
}

// Fit scores every combination of the spec's grid with stratified k-fold
// CV and refits the winner on all of X. Ties go to the earliest
// combination. A combination whose fit fails scores NaN.
func (gs *GridSearch) Fit(ctx context.Context, spec models.Spec, X [][]decimal.Decimal, y []int) (*SearchResult, error) {
	start := time.Now()
	folds, err := gs.CV.KFoldSplit(y)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", spec.Name(), err)
	}
	combos := spec.Grid().Combinations()
	gs.log.Info(ctx, "starting grid search",
		logger.String("model", spec.Name()),
		logger.Int("combinations", len(combos)),
		logger.Int("folds", len(folds)),
		logger.Int("workers", gs.Workers))

	outcomes := make([][]foldOutcome, len(combos))
	for i := range outcomes {
		outcomes[i] = make([]foldOutcome, len(folds))
	}

	jobs := make(chan foldJob, gs.Workers)
	var wg sync.WaitGroup
	for w := 0; w < gs.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if ctx.Err() != nil {
					continue
				}
				outcomes[job.combo][job.fold] = gs.runFold(spec, combos[job.combo], X, y, folds[job.fold])
			}
		}()
	}

produce:
	for c := range combos {
		for f := range folds {
			select {
			case <-ctx.Done():
				break produce
			case jobs <- foldJob{combo: c, fold: f}:
			}
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: grid search interrupted: %w", spec.Name(), err)
	}

	results := make([]CVResult, len(combos))
	for c, combo := range combos {
		r := CVResult{Params: combo, FoldScores: make([]float64, len(folds))}
		for f, o := range outcomes[c] {
			r.FoldScores[f] = o.score
			r.FitTime += o.elapsed
			if o.err != nil && r.Err == nil {
				r.Err = o.err
			}
		}
		r.FitTime /= time.Duration(len(folds))
		r.MeanScore, r.StdScore = evaluation.Stats(r.FoldScores)
		if r.Err != nil {
			gs.log.Warn(ctx, "grid combination failed",
				logger.String("model", spec.Name()),
				logger.Any("params", combo),
				logger.Error(r.Err))
		}
		results[c] = r
	}
	rankResults(results)

	best := -1
	for i, r := range results {
		if math.IsNaN(r.MeanScore) {
			continue
		}
		if best < 0 || r.MeanScore > results[best].MeanScore {
			best = i
		}
	}
	if best < 0 {
		return nil, fmt.Errorf("%s: %w: %v", spec.Name(), ErrAllCombinationsFailed, results[0].Err)
	}

	model, err := spec.Build(combos[best])
	if err != nil {
		return nil, fmt.Errorf("%s: rebuild best combination: %w", spec.Name(), err)
	}
	if err := model.Fit(X, y); err != nil {
		return nil, fmt.Errorf("%s: refit best combination: %w", spec.Name(), err)
	}

	sr := &SearchResult{
		Spec:       spec,
		Best:       model,
		BestIndex:  best,
		BestParams: combos[best],
		BestScore:  results[best].MeanScore,
		Results:    results,
		Elapsed:    time.Since(start),
	}
	gs.log.Info(ctx, "grid search finished",
		logger.String("model", spec.Name()),
		logger.Float64("best_score", sr.BestScore),
		logger.Any("best_params", sr.BestParams),
		logger.Duration("elapsed", sr.Elapsed))
	return sr, nil
}

func (gs *GridSearch) runFold(spec models.Spec, combo map[string]any, X [][]decimal.Decimal, y []int, testIdx []int) foldOutcome {
	start := time.Now()
	m, err := spec.Build(combo)
	if err != nil {
		return foldOutcome{score: math.NaN(), err: err}
	}
	score, err := gs.CV.EvaluateFold(m, X, y, testIdx)
	if err != nil {
		score = math.NaN()
	}
	return foldOutcome{score: score, elapsed: time.Since(start), err: err}
}

// rankResults assigns rank 1 to the best mean score. Equal scores share
// the lowest rank and NaN scores rank last.
func rankResults(results []CVResult) {
	order := make([]int, len(results))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := results[order[a]].MeanScore, results[order[b]].MeanScore
		if math.IsNaN(sb) {
			return !math.IsNaN(sa)
		}
		if math.IsNaN(sa) {
			return false
		}
		return sa > sb
	})
	for pos, i := range order {
		rank := pos + 1
		if pos > 0 {
			prev := results[order[pos-1]]
			if prev.MeanScore == results[i].MeanScore ||
				(math.IsNaN(prev.MeanScore) && math.IsNaN(results[i].MeanScore)) {
				rank = prev.Rank
			}
		}
		results[i].Rank = rank
	}
}
