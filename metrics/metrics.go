// api/metrics/metrics.go
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the analytics API.
type Metrics struct {
	// Dataset load metrics
	DatasetLoads *prometheus.CounterVec
	LoadDuration prometheus.Histogram
	RowsLoaded   prometheus.Histogram

	// Aggregation query metrics
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec

	// System metrics
	ActiveDatasets prometheus.Gauge
}

var (
	// DefaultMetrics is the global metrics instance
	DefaultMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		DatasetLoads: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dataset_loads_total",
				Help:      "Total dataset archive uploads by outcome",
			},
			[]string{"status"}, // loaded, format_error, data_error
		),
		LoadDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dataset_load_duration_seconds",
				Help:      "Archive parse and load duration",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
			},
		),
		RowsLoaded: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dataset_rows_loaded",
				Help:      "Event rows per successfully loaded dataset",
				Buckets:   prometheus.ExponentialBuckets(1000, 10, 6),
			},
		),
		QueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Aggregation query duration by operation",
				Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5},
			},
			[]string{"operation"},
		),
		QueryErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "query_errors_total",
				Help:      "Rejected aggregation queries by operation",
			},
			[]string{"operation"},
		),
		ActiveDatasets: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_datasets",
				Help:      "Datasets currently held in memory",
			},
		),
	}

	DefaultMetrics = m
	return m
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordLoad records a dataset load attempt.
func (m *Metrics) RecordLoad(status string, rows int, duration time.Duration) {
	m.DatasetLoads.WithLabelValues(status).Inc()
	if status == "loaded" {
		m.LoadDuration.Observe(duration.Seconds())
		m.RowsLoaded.Observe(float64(rows))
	}
}

// RecordQuery records a completed aggregation query.
func (m *Metrics) RecordQuery(operation string, duration time.Duration) {
	m.QueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordQueryError records a rejected aggregation query.
func (m *Metrics) RecordQueryError(operation string) {
	m.QueryErrors.WithLabelValues(operation).Inc()
}

// SetActiveDatasets updates the in-memory dataset count.
func (m *Metrics) SetActiveDatasets(n int) {
	m.ActiveDatasets.Set(float64(n))
}
