// Package metrics provides datastore metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DatastoreMetrics contains Prometheus metrics for result store operations.
// It implements Recorder.
type DatastoreMetrics struct {
	registry *prometheus.Registry

	dbOperationsTotal      *prometheus.CounterVec
	dbOperationDuration    *prometheus.HistogramVec
	dbOperationErrorsTotal *prometheus.CounterVec

	dbConnections       *prometheus.GaugeVec
	dbPoolWaitsTotal    prometheus.Counter
	dbPoolWaitSecsTotal prometheus.Counter
}

// NewDatastoreMetrics creates and registers new datastore metrics
func NewDatastoreMetrics(registry *prometheus.Registry) (*DatastoreMetrics, error) {
	m := &DatastoreMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *DatastoreMetrics) initMetrics() {
	m.dbOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidguard_store_operations_total",
			Help: "Total number of result store operations",
		},
		[]string{"operation", "status"},
	)

	m.dbOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vidguard_store_operation_duration_seconds",
			Help:    "Time taken for result store operations",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
		[]string{"operation"},
	)

	m.dbOperationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidguard_store_operation_errors_total",
			Help: "Total number of failed result store operations, by error category",
		},
		[]string{"operation", "error_type"},
	)

	m.dbConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vidguard_store_connections",
			Help: "Database connections by state: in_use, idle or max_open",
		},
		[]string{"state"},
	)

	m.dbPoolWaitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vidguard_store_pool_waits_total",
			Help: "Total number of times a query waited for a free connection",
		},
	)

	m.dbPoolWaitSecsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vidguard_store_pool_wait_seconds_total",
			Help: "Total time spent waiting for a free connection",
		},
	)
}

// Describe implements prometheus.Collector
func (m *DatastoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.dbOperationsTotal.Describe(ch)
	m.dbOperationDuration.Describe(ch)
	m.dbOperationErrorsTotal.Describe(ch)
	m.dbConnections.Describe(ch)
	m.dbPoolWaitsTotal.Describe(ch)
	m.dbPoolWaitSecsTotal.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *DatastoreMetrics) Collect(ch chan<- prometheus.Metric) {
	m.dbOperationsTotal.Collect(ch)
	m.dbOperationDuration.Collect(ch)
	m.dbOperationErrorsTotal.Collect(ch)
	m.dbConnections.Collect(ch)
	m.dbPoolWaitsTotal.Collect(ch)
	m.dbPoolWaitSecsTotal.Collect(ch)
}

// RecordOperation implements Recorder.
func (m *DatastoreMetrics) RecordOperation(operation, status string) {
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *DatastoreMetrics) RecordDuration(operation string, seconds float64) {
	m.dbOperationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *DatastoreMetrics) RecordError(operation, errorType string) {
	m.dbOperationErrorsTotal.WithLabelValues(operation, errorType).Inc()
}

// UpdateConnectionMetrics sets the connection pool gauges.
func (m *DatastoreMetrics) UpdateConnectionMetrics(inUse, idle, maxOpen int) {
	m.dbConnections.WithLabelValues("in_use").Set(float64(inUse))
	m.dbConnections.WithLabelValues("idle").Set(float64(idle))
	m.dbConnections.WithLabelValues("max_open").Set(float64(maxOpen))
}

// RecordPoolWaits adds waits for a free connection observed since the last call.
func (m *DatastoreMetrics) RecordPoolWaits(count int64, seconds float64) {
	if count <= 0 {
		return
	}
	m.dbPoolWaitsTotal.Add(float64(count))
	m.dbPoolWaitSecsTotal.Add(seconds)
}
