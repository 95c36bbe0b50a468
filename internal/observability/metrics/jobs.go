// Package metrics provides custom Prometheus metrics for the components of vidguard.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// JobMetrics contains the Prometheus metrics of the analysis pipeline.
type JobMetrics struct {
	JobsSubmitted      prometheus.Counter
	JobsCompleted      *prometheus.CounterVec   // by verdict
	JobsFailed         *prometheus.CounterVec   // by error kind
	ChecksFinished     *prometheus.CounterVec   // by check and status
	CheckAttempts      *prometheus.HistogramVec // by check
	Triggers           *prometheus.CounterVec   // by check
	ProcessingDuration prometheus.Histogram
	DecisionConfidence *prometheus.HistogramVec // by verdict
	JobsActive         prometheus.Gauge
	registry           *prometheus.Registry
}

// NewJobMetrics creates a new instance of JobMetrics and registers it with registry.
func NewJobMetrics(registry *prometheus.Registry) (*JobMetrics, error) {
	m := &JobMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register job metrics: %w", err)
	}
	return m, nil
}

func (m *JobMetrics) initMetrics() {
	m.JobsSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vidguard_jobs_submitted_total",
		Help: "Total number of analysis jobs accepted",
	})

	m.JobsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vidguard_jobs_completed_total",
		Help: "Total number of analysis jobs completed with a decision, by verdict",
	}, []string{"verdict"})

	m.JobsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vidguard_jobs_failed_total",
		Help: "Total number of analysis jobs that failed, by error kind",
	}, []string{"kind"})

	m.ChecksFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vidguard_checks_finished_total",
		Help: "Total number of policy checks of finished jobs, by check and final status",
	}, []string{"check", "status"})

	m.CheckAttempts = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vidguard_check_attempts",
		Help:    "Detector attempts needed per check",
		Buckets: []float64{1, 2, 3, 5, 8},
	}, []string{"check"})

	m.Triggers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vidguard_triggers_total",
		Help: "Total number of triggering checks in rejected decisions",
	}, []string{"check"})

	m.ProcessingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vidguard_job_processing_seconds",
		Help:    "Time from the start of analysis to a terminal state",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms to ~7min
	})

	m.DecisionConfidence = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vidguard_decision_confidence",
		Help:    "Confidence of decisions, by verdict",
		Buckets: []float64{50, 60, 70, 75, 80, 85, 90, 95, 100},
	}, []string{"verdict"})

	m.JobsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vidguard_jobs_active",
		Help: "Number of jobs that are queued or analyzing",
	})
}

// ActiveJobs returns the current value of the active jobs gauge.
func (m *JobMetrics) ActiveJobs() float64 {
	metric := &dto.Metric{}
	if err := m.JobsActive.Write(metric); err != nil {
		return 0
	}
	if metric.Gauge != nil && metric.Gauge.Value != nil {
		return *metric.Gauge.Value
	}
	return 0
}

func (m *JobMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.JobsSubmitted,
		m.JobsCompleted,
		m.JobsFailed,
		m.ChecksFinished,
		m.CheckAttempts,
		m.Triggers,
		m.ProcessingDuration,
		m.DecisionConfidence,
		m.JobsActive,
	}
}

// Describe implements the prometheus.Collector interface.
func (m *JobMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *JobMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}
