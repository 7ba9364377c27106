package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for one process.
type Metrics struct {
	registry *prometheus.Registry

	// OperationDuration tracks timed operations by name and status.
	OperationDuration *prometheus.HistogramVec

	// JobsTotal counts finished jobs by final status.
	JobsTotal *prometheus.CounterVec

	// JobDuration tracks whole-job execution time.
	JobDuration *prometheus.HistogramVec

	// StageItems counts batch items processed by stage and outcome.
	StageItems *prometheus.CounterVec
}

// NewMetrics registers the shotline collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "shotline",
				Name:      "operation_duration_seconds",
				Help:      "Duration of timed operations in seconds",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"operation", "status"},
		),
		JobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "shotline",
				Name:      "jobs_total",
				Help:      "Total number of jobs by final status",
			},
			[]string{"status"},
		),
		JobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "shotline",
				Name:      "job_duration_seconds",
				Help:      "Job execution duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"stack", "status"},
		),
		StageItems: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "shotline",
				Name:      "stage_items_total",
				Help:      "Batch items processed by stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes every collector in the textfile exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
