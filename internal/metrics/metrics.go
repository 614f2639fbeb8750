// Package metrics collects pipeline counters and writes them in the
// Prometheus text format.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "matchpredict"

// Manager owns a private registry so repeated runs in one process do not
// collide on the default registerer.
type Manager struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	modelsTotal    *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	cvScore        *prometheus.GaugeVec
	testAccuracy   *prometheus.GaugeVec
	combinations   *prometheus.GaugeVec
	samples        prometheus.Gauge
	features       prometheus.Gauge
	lastRunSeconds prometheus.Gauge
}

func NewManager() *Manager {
	reg := prometheus.NewRegistry()
	auto := promauto.With(reg)

	return &Manager{
		registry: reg,
		runsTotal: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by final status",
		}, []string{"status"}),
		modelsTotal: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "models_total",
			Help:      "Model pipelines by family and final status",
		}, []string{"model", "status"}),
		stageDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each pipeline stage",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"stage", "model"}),
		cvScore: auto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cv_best_score",
			Help:      "Best mean cross-validation accuracy of the last search",
		}, []string{"model"}),
		testAccuracy: auto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "test_accuracy",
			Help:      "Accuracy on the held-out split",
		}, []string{"model"}),
		combinations: auto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "grid_combinations",
			Help:      "Parameter combinations evaluated by the last search",
		}, []string{"model"}),
		samples: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_samples",
			Help:      "Rows in the feature table",
		}),
		features: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_features",
			Help:      "Columns in the feature table",
		}),
		lastRunSeconds: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
	}
}

func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Manager) RecordDataset(samples, features int) {
	m.samples.Set(float64(samples))
	m.features.Set(float64(features))
}

// ObserveStage records the duration of stage. model is empty for run-wide
// stages.
func (m *Manager) ObserveStage(stage, model string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage, model).Observe(d.Seconds())
}

func (m *Manager) RecordSearch(model string, bestScore float64, combinations int) {
	m.cvScore.WithLabelValues(model).Set(bestScore)
	m.combinations.WithLabelValues(model).Set(float64(combinations))
}

func (m *Manager) RecordAccuracy(model string, accuracy float64) {
	m.testAccuracy.WithLabelValues(model).Set(accuracy)
}

func (m *Manager) RecordModel(model, status string) {
	m.modelsTotal.WithLabelValues(model, status).Inc()
}

func (m *Manager) RecordRun(status string, at time.Time) {
	m.runsTotal.WithLabelValues(status).Inc()
	m.lastRunSeconds.Set(float64(at.Unix()))
}

// WriteTextfile writes the registry to path, in the format read by the node
// exporter textfile collector.
func (m *Manager) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
