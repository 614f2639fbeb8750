// Package ledger keeps a SQLite history of pipeline runs.
package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

var ErrRunNotFound = errors.New("run not found")

type Run struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Status       string
	InputPath    string
	Samples      int
	Features     int
	BestModel    string
	BestAccuracy *float64
}

type ModelResult struct {
	RunID        string
	Model        string
	Status       string
	Stage        string
	CVScore      *float64
	TestAccuracy *float64
	BestParams   string
	Error        string
	Duration     time.Duration
}

type Ledger struct {
	db *sql.DB
}

// Open creates the database file and schema when missing.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) StartRun(ctx context.Context, r Run) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, status, input_path, samples, features) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.UnixMilli(), r.Status, r.InputPath, r.Samples, r.Features)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", r.ID, err)
	}
	return nil
}

// UpdateDataset records the size of the feature table of a run.
func (l *Ledger) UpdateDataset(ctx context.Context, runID string, samples, features int) error {
	return l.exec(ctx, runID,
		`UPDATE runs SET samples = ?, features = ? WHERE id = ?`,
		samples, features, runID)
}

// FinishRun closes a run. An empty bestModel leaves the best columns null.
func (l *Ledger) FinishRun(ctx context.Context, runID, status, bestModel string, bestAccuracy float64, at time.Time) error {
	var model, acc any
	if bestModel != "" {
		model, acc = bestModel, bestAccuracy
	}
	return l.exec(ctx, runID,
		`UPDATE runs SET finished_at = ?, status = ?, best_model = ?, best_accuracy = ? WHERE id = ?`,
		at.UnixMilli(), status, model, acc, runID)
}

func (l *Ledger) exec(ctx context.Context, runID, query string, args ...any) error {
	res, err := l.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// RecordModel inserts or replaces the result of one model in a run.
func (l *Ledger) RecordModel(ctx context.Context, m ModelResult) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO model_results (run_id, model, status, stage, cv_score, test_accuracy, best_params, error, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, model) DO UPDATE SET
		   status = excluded.status,
		   stage = excluded.stage,
		   cv_score = excluded.cv_score,
		   test_accuracy = excluded.test_accuracy,
		   best_params = excluded.best_params,
		   error = excluded.error,
		   duration_ms = excluded.duration_ms`,
		m.RunID, m.Model, m.Status, m.Stage, nullFloat(m.CVScore), nullFloat(m.TestAccuracy),
		m.BestParams, m.Error, m.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to record model %s: %w", m.Model, err)
	}
	return nil
}

// Runs returns the most recent runs first.
func (l *Ledger) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, status, input_path, samples, features, best_model, best_accuracy
		 FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r        Run
			started  int64
			finished sql.NullInt64
			best     sql.NullString
			acc      sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Status, &r.InputPath, &r.Samples, &r.Features, &best, &acc); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		if finished.Valid {
			t := time.UnixMilli(finished.Int64)
			r.FinishedAt = &t
		}
		r.BestModel = best.String
		if acc.Valid {
			v := acc.Float64
			r.BestAccuracy = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (l *Ledger) ModelResults(ctx context.Context, runID string) ([]ModelResult, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, model, status, stage, cv_score, test_accuracy, best_params, error, duration_ms
		 FROM model_results WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query model results: %w", err)
	}
	defer rows.Close()

	var out []ModelResult
	for rows.Next() {
		var (
			m        ModelResult
			cv, test sql.NullFloat64
			ms       int64
		)
		if err := rows.Scan(&m.RunID, &m.Model, &m.Status, &m.Stage, &cv, &test, &m.BestParams, &m.Error, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan model result: %w", err)
		}
		if cv.Valid {
			v := cv.Float64
			m.CVScore = &v
		}
		if test.Valid {
			v := test.Float64
			m.TestAccuracy = &v
		}
		m.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, m)
	}
	return out, rows.Err()
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
