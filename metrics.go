package datastore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records the same timings that go into QueryResult.DbTime.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// OperationDuration is the elapsed time of each collection operation.
	OperationDuration *prometheus.HistogramVec
	// OperationErrors counts operations that returned a driver error.
	OperationErrors *prometheus.CounterVec
	// OperationResults counts items returned or written by operations.
	OperationResults *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with registerer.
// A nil registerer leaves them unregistered.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	labels := []string{"database", "collection", "operation"}
	return &Metrics{
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "datastore_operation_duration_seconds",
				Help:    "Latency of datastore collection operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			labels,
		),
		OperationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datastore_operation_errors_total",
				Help: "Total number of failed datastore collection operations",
			},
			labels,
		),
		OperationResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datastore_operation_results_total",
				Help: "Total number of documents returned or streamed by datastore operations",
			},
			labels,
		),
	}
}

func (m *Metrics) observe(database, collection, operation string, elapsed time.Duration, results int64) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(database, collection, operation).Observe(elapsed.Seconds())
	if results > 0 {
		m.OperationResults.WithLabelValues(database, collection, operation).Add(float64(results))
	}
}

func (m *Metrics) failed(database, collection, operation string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(database, collection, operation).Observe(elapsed.Seconds())
	m.OperationErrors.WithLabelValues(database, collection, operation).Inc()
}
