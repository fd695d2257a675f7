// Package metrics exposes the Prometheus collectors for the import pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's collectors, registered on one registry so the
// HTTP layer can serve them from a single handler.
type Metrics struct {
	Registry *prometheus.Registry

	ImportsStarted   prometheus.Counter
	ImportsCompleted *prometheus.CounterVec
	RowsProcessed    prometheus.Counter
	RowsFailed       prometheus.Counter
	ProcessDuration  prometheus.Histogram
}

// New creates and registers the collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		Registry: registry,
		ImportsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "import_jobs_started_total",
			Help: "Import jobs that entered processing.",
		}),
		ImportsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "import_jobs_finished_total",
			Help: "Import jobs by terminal status.",
		}, []string{"status"}),
		RowsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "import_rows_processed_total",
			Help: "Rows successfully converted and persisted.",
		}),
		RowsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "import_rows_failed_total",
			Help: "Rows that failed mapping or persistence.",
		}),
		ProcessDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "import_process_duration_seconds",
			Help:    "Wall time of whole-file process calls.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
}
