package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"matchpredict/internal/jobs"
	"matchpredict/internal/ledger"
	"matchpredict/pkg/logger"

	"gopkg.in/yaml.v3"
)

const (
	RunCompleted = "completed"
	RunPartial   = "partial"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

const manifestName = "run_manifest.yaml"

type ModelSummary struct {
	Name       string
	Family     string
	Status     jobs.JobStatus
	Stage      string
	CVScore    *float64
	Accuracy   *float64
	BestParams map[string]string
	Importance string
	Duration   time.Duration
	Err        error
}

type Summary struct {
	RunID        string
	Status       string
	StartedAt    time.Time
	FinishedAt   time.Time
	Samples      int
	Features     int
	Models       []ModelSummary
	BestModel    string
	BestAccuracy float64
	Err          error
}

// Completed returns the models whose pipeline finished without error.
func (s *Summary) Completed() []ModelSummary {
	var out []ModelSummary
	for _, m := range s.Models {
		if m.Status == jobs.JobCompleted {
			out = append(out, m)
		}
	}
	return out
}

// Finish closes every open job, records the run in the ledger and the
// metrics textfile, writes the run manifest and returns the summary. runErr
// is the error that aborted the run, if any.
func (r *Runner) Finish(ctx context.Context, runErr error) *Summary {
	r.begin(ctx)
	// outputs are still written after an interrupt
	ctx = context.WithoutCancel(ctx)

	s := &Summary{
		RunID:      r.runID,
		StartedAt:  r.startedAt,
		FinishedAt: time.Now(),
		Samples:    r.samples,
		Features:   r.features,
		Err:        runErr,
	}

	failed := 0
	for _, name := range r.order {
		st := r.states[name]
		switch st.job.GetStatus() {
		case jobs.JobPending, jobs.JobRunning:
			if runErr != nil {
				st.job.SetError(runErr)
			} else {
				st.job.Complete()
			}
		}
		ms := ModelSummary{
			Name:       name,
			Family:     st.family,
			Status:     st.job.GetStatus(),
			Stage:      st.job.GetStage(),
			CVScore:    st.cvScore,
			Accuracy:   st.accuracy,
			BestParams: st.bestParams,
			Importance: st.importance,
			Duration:   st.job.GetElapsed(),
			Err:        st.job.GetError(),
		}
		if ms.Status != jobs.JobCompleted {
			failed++
		}
		r.metrics.RecordModel(name, string(ms.Status))
		s.Models = append(s.Models, ms)
	}

	s.BestModel, s.BestAccuracy = r.best(s.Models)
	switch {
	case errors.Is(runErr, context.Canceled):
		s.Status = RunCancelled
	case runErr != nil:
		s.Status = RunFailed
	case len(s.Models) > 0 && failed == len(s.Models):
		s.Status = RunFailed
	case failed > 0:
		s.Status = RunPartial
	default:
		s.Status = RunCompleted
	}

	r.metrics.RecordRun(s.Status, s.FinishedAt)
	if err := r.metrics.WriteTextfile(r.cfg.MetricsPath); err != nil {
		r.log.Warn(ctx, "metrics not written", logger.Error(err))
	}
	r.record(ctx, s)
	if path, err := r.writeManifest(s); err != nil {
		r.log.Warn(ctx, "run manifest not written", logger.Error(err))
	} else {
		r.log.Debug(ctx, "run manifest written", logger.String("path", path))
	}

	r.log.Info(ctx, "run finished",
		logger.String("run_id", s.RunID),
		logger.String("status", s.Status),
		logger.String("best_model", s.BestModel),
		logger.Duration("elapsed", s.FinishedAt.Sub(s.StartedAt)))
	return s
}

// best prefers the comparison ranking and falls back to the highest test
// accuracy, the earliest model winning ties.
func (r *Runner) best(ms []ModelSummary) (string, float64) {
	if r.comparison != nil {
		if row, ok := r.comparison.Best(); ok {
			return row.Model, row.Accuracy
		}
	}
	name, acc := "", 0.0
	for _, m := range ms {
		if m.Accuracy != nil && (name == "" || *m.Accuracy > acc) {
			name, acc = m.Name, *m.Accuracy
		}
	}
	return name, acc
}

func (r *Runner) record(ctx context.Context, s *Summary) {
	if r.ledger == nil {
		return
	}
	for _, m := range s.Models {
		res := ledger.ModelResult{
			RunID:        s.RunID,
			Model:        m.Name,
			Status:       string(m.Status),
			Stage:        m.Stage,
			CVScore:      m.CVScore,
			TestAccuracy: m.Accuracy,
			BestParams:   FormatParams(m.BestParams),
			Duration:     m.Duration,
		}
		if m.Err != nil {
			res.Error = m.Err.Error()
		}
		if err := r.ledger.RecordModel(ctx, res); err != nil {
			r.log.Warn(ctx, "ledger model record failed", logger.String("model", m.Name), logger.Error(err))
		}
	}
	if err := r.ledger.FinishRun(ctx, s.RunID, s.Status, s.BestModel, s.BestAccuracy, s.FinishedAt); err != nil {
		r.log.Warn(ctx, "ledger run record failed", logger.Error(err))
	}
}

// FormatParams renders params as "k=v" pairs in key order.
func FormatParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		v := params[k]
		if v == "" {
			v = "default"
		}
		parts[i] = k + "=" + v
	}
	return strings.Join(parts, ", ")
}

type manifest struct {
	RunID        string          `yaml:"run_id"`
	Status       string          `yaml:"status"`
	StartedAt    time.Time       `yaml:"started_at"`
	FinishedAt   time.Time       `yaml:"finished_at"`
	Input        string          `yaml:"input"`
	Samples      int             `yaml:"samples"`
	Features     int             `yaml:"features"`
	Seed         int64           `yaml:"seed"`
	TestSize     float64         `yaml:"test_size"`
	CVFolds      int             `yaml:"cv_folds"`
	Balanced     bool            `yaml:"balance_enabled"`
	BestModel    string          `yaml:"best_model,omitempty"`
	BestAccuracy float64         `yaml:"best_accuracy,omitempty"`
	Error        string          `yaml:"error,omitempty"`
	Models       []manifestModel `yaml:"models"`
}

type manifestModel struct {
	Name       string            `yaml:"name"`
	Status     string            `yaml:"status"`
	Stage      string            `yaml:"stage"`
	CVScore    *float64          `yaml:"cv_score,omitempty"`
	Accuracy   *float64          `yaml:"test_accuracy,omitempty"`
	BestParams map[string]string `yaml:"best_params,omitempty"`
	Importance string            `yaml:"importance,omitempty"`
	Error      string            `yaml:"error,omitempty"`
}

// ManifestPath is where Finish writes the YAML description of the run.
func ManifestPath(reportsDir string) string {
	return filepath.Join(reportsDir, manifestName)
}

func (r *Runner) writeManifest(s *Summary) (string, error) {
	m := manifest{
		RunID:        s.RunID,
		Status:       s.Status,
		StartedAt:    s.StartedAt.UTC(),
		FinishedAt:   s.FinishedAt.UTC(),
		Input:        r.cfg.InputPath,
		Samples:      s.Samples,
		Features:     s.Features,
		Seed:         r.cfg.Seed,
		TestSize:     r.cfg.TestSize,
		CVFolds:      r.cfg.CVFolds,
		Balanced:     r.cfg.BalanceEnabled,
		BestModel:    s.BestModel,
		BestAccuracy: s.BestAccuracy,
	}
	if s.Err != nil {
		m.Error = s.Err.Error()
	}
	for _, ms := range s.Models {
		mm := manifestModel{
			Name:       ms.Name,
			Status:     string(ms.Status),
			Stage:      ms.Stage,
			CVScore:    ms.CVScore,
			Accuracy:   ms.Accuracy,
			BestParams: ms.BestParams,
			Importance: ms.Importance,
		}
		if ms.Err != nil {
			mm.Error = ms.Err.Error()
		}
		m.Models = append(m.Models, mm)
	}

	out, err := yaml.Marshal(&m)
	if err != nil {
		return "", fmt.Errorf("failed to encode manifest: %w", err)
	}
	path := ManifestPath(r.cfg.ReportsDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}
	return path, nil
}
