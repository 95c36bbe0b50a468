// Package observability provides Prometheus metrics for vidguard. Error
// telemetry is handled in the telemetry package.
package observability

import (
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/vidguard/internal/moderation"
	"github.com/tphakala/vidguard/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry
	Jobs     *metrics.JobMetrics
	MQTT     *metrics.MQTTMetrics
	HTTP     *metrics.HTTPMetrics
	Store    *metrics.DatastoreMetrics

	mu     sync.Mutex
	active map[string]struct{}
}

// NewMetrics creates a new instance of Metrics, initializing all metric collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	jobMetrics, err := metrics.NewJobMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create job metrics: %w", err)
	}

	mqttMetrics, err := metrics.NewMQTTMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create MQTT metrics: %w", err)
	}

	httpMetrics, err := metrics.NewHTTPMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}

	storeMetrics, err := metrics.NewDatastoreMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create datastore metrics: %w", err)
	}

	return &Metrics{
		registry: registry,
		Jobs:     jobMetrics,
		MQTT:     mqttMetrics,
		HTTP:     httpMetrics,
		Store:    storeMetrics,
		active:   make(map[string]struct{}),
	}, nil
}

// Registry returns the registry all collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler serving the metrics in the Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      stdlog.New(os.Stderr, "metrics handler: ", stdlog.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// RegisterHandlers registers the metrics endpoint with the provided http.ServeMux.
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", m.Handler())
}

// Notify records a job change. It is registered as an orchestrator notifier,
// which delivers every change of a job in order.
func (m *Metrics) Notify(job *moderation.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, tracked := m.active[job.ID]
	if !job.State.Terminal() {
		if !tracked {
			m.active[job.ID] = struct{}{}
			m.Jobs.JobsActive.Inc()
			if job.State == moderation.JobQueued && job.StartedAt == nil {
				m.Jobs.JobsSubmitted.Inc()
			}
		}
		return
	}

	if tracked {
		delete(m.active, job.ID)
		m.Jobs.JobsActive.Dec()
	}
	m.recordTerminal(job)
}

func (m *Metrics) recordTerminal(job *moderation.Job) {
	switch {
	case job.State == moderation.JobCompleted && job.Decision != nil:
		verdict := string(job.Decision.Verdict)
		m.Jobs.JobsCompleted.WithLabelValues(verdict).Inc()
		m.Jobs.DecisionConfidence.WithLabelValues(verdict).Observe(job.Decision.Confidence)
		for _, t := range job.Decision.Triggers {
			m.Jobs.Triggers.WithLabelValues(string(t.Check)).Inc()
		}
	case job.Error != nil:
		m.Jobs.JobsFailed.WithLabelValues(string(job.Error.Kind)).Inc()
	default:
		m.Jobs.JobsFailed.WithLabelValues("unknown").Inc()
	}

	for _, c := range job.Checks {
		m.Jobs.ChecksFinished.WithLabelValues(string(c.Check), string(c.Status)).Inc()
		if c.Attempts > 0 {
			m.Jobs.CheckAttempts.WithLabelValues(string(c.Check)).Observe(float64(c.Attempts))
		}
	}
	if d := job.ProcessingTime(); d > 0 {
		m.Jobs.ProcessingDuration.Observe(d.Seconds())
	}
}
