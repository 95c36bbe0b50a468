package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics covers the JSON API. Routes are labelled by their pattern,
// e.g. /api/v2/analyses/:id, so job ids never become label values.
type HTTPMetrics struct {
	requests    *prometheus.CounterVec   // method, path, status_code
	latency     *prometheus.HistogramVec // method, path
	errors      *prometheus.CounterVec   // method, path, category
	rateLimited *prometheus.CounterVec   // path
}

// NewHTTPMetrics creates the API metrics and registers them with registry.
func NewHTTPMetrics(registry *prometheus.Registry) (*HTTPMetrics, error) {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vidguard_http_requests_total",
			Help: "API requests served",
		}, []string{"method", "path", "status_code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vidguard_http_request_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vidguard_http_request_errors_total",
			Help: "API requests answered with an error, by error category",
		}, []string{"method", "path", "category"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vidguard_http_rate_limited_total",
			Help: "Submissions rejected by the rate limiter",
		}, []string{"path"}),
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// ObserveRequest records one served request.
func (m *HTTPMetrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// CountError records a request answered with an error of category.
func (m *HTTPMetrics) CountError(method, route, category string) {
	m.errors.WithLabelValues(method, route, category).Inc()
}

// CountRateLimited records a submission refused by the rate limiter.
func (m *HTTPMetrics) CountRateLimited(route string) {
	m.rateLimited.WithLabelValues(route).Inc()
}

func (m *HTTPMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.requests, m.latency, m.errors, m.rateLimited}
}

// Describe implements prometheus.Collector.
func (m *HTTPMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *HTTPMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}
