package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Reasons a decision message was not delivered.
const (
	DropDisconnected = "disconnected"
	DropEncode       = "encode"
	DropPublish      = "publish"
)

// MQTTMetrics tracks the broker connection and the delivery of decision
// messages.
type MQTTMetrics struct {
	Connected      prometheus.Gauge
	Reconnects     prometheus.Counter
	Published      *prometheus.CounterVec // by outcome: verdict or "failed"
	Dropped        *prometheus.CounterVec // by reason
	PublishLatency prometheus.Histogram
	PayloadBytes   prometheus.Histogram
}

// NewMQTTMetrics creates the MQTT metrics and registers them with registry.
func NewMQTTMetrics(registry *prometheus.Registry) (*MQTTMetrics, error) {
	m := &MQTTMetrics{
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vidguard_mqtt_connected",
			Help: "1 while connected to the MQTT broker",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vidguard_mqtt_reconnects_total",
			Help: "Reconnection attempts to the MQTT broker",
		}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vidguard_mqtt_decisions_published_total",
			Help: "Decision messages delivered to the broker, by outcome",
		}, []string{"outcome"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vidguard_mqtt_decisions_dropped_total",
			Help: "Decision messages that were not delivered, by reason",
		}, []string{"reason"}),
		PublishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vidguard_mqtt_publish_seconds",
			Help:    "Time until the broker acknowledged a publish",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		PayloadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vidguard_mqtt_payload_bytes",
			Help:    "Size of published decision messages",
			Buckets: prometheus.ExponentialBuckets(128, 2, 8),
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register MQTT metrics: %w", err)
	}
	return m, nil
}

// SetConnected records the broker connection state.
func (m *MQTTMetrics) SetConnected(connected bool) {
	if connected {
		m.Connected.Set(1)
		return
	}
	m.Connected.Set(0)
}

// RecordReconnect counts one reconnection attempt.
func (m *MQTTMetrics) RecordReconnect() {
	m.Reconnects.Inc()
}

// RecordPublish records one acknowledged publish.
func (m *MQTTMetrics) RecordPublish(latency time.Duration, size int) {
	m.PublishLatency.Observe(latency.Seconds())
	m.PayloadBytes.Observe(float64(size))
}

// RecordDecision counts a delivered decision message.
func (m *MQTTMetrics) RecordDecision(outcome string) {
	m.Published.WithLabelValues(outcome).Inc()
}

// RecordDropped counts a decision message that was not delivered.
func (m *MQTTMetrics) RecordDropped(reason string) {
	m.Dropped.WithLabelValues(reason).Inc()
}

func (m *MQTTMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Connected, m.Reconnects, m.Published, m.Dropped, m.PublishLatency, m.PayloadBytes}
}

// Describe implements the prometheus.Collector interface.
func (m *MQTTMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *MQTTMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}
