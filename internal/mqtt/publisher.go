package mqtt

import (
	"context"
	"encoding/json"
	"path"
	"time"

	"github.com/tphakala/vidguard/internal/logger"
	"github.com/tphakala/vidguard/internal/moderation"
	"github.com/tphakala/vidguard/internal/observability/metrics"
)

// Publisher publishes decisions of finished jobs. It implements the
// orchestrator notifier contract and ignores non-terminal updates.
type Publisher struct {
	client  Client
	metrics *metrics.MQTTMetrics
	topic   string
	timeout time.Duration
}

// NewPublisher creates a publisher writing to <topic>/decisions/<verdict or failed>.
// m may be nil.
func NewPublisher(client Client, cfg Config, m *metrics.MQTTMetrics) *Publisher {
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().PublishTimeout
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultConfig().Topic
	}
	return &Publisher{client: client, metrics: m, topic: topic, timeout: timeout}
}

// Topic returns the topic a job's decision is published to.
func (p *Publisher) Topic(job *moderation.Job) string {
	return path.Join(p.topic, "decisions", outcome(job))
}

func outcome(job *moderation.Job) string {
	if job.Decision != nil {
		return string(job.Decision.Verdict)
	}
	return "failed"
}

// Notify publishes job if it is terminal. Delivery failures are logged; a
// decision is never blocked on the broker.
func (p *Publisher) Notify(job *moderation.Job) {
	if !job.State.Terminal() {
		return
	}
	log := GetLogger().With(logger.JobID(job.ID))
	if !p.client.IsConnected() {
		log.Warn("not connected to MQTT broker, decision not published")
		p.dropped(metrics.DropDisconnected)
		return
	}

	payload, err := json.Marshal(NewDecisionMessage(job))
	if err != nil {
		log.Error("failed to encode decision message", logger.Error(err))
		p.dropped(metrics.DropEncode)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	topic := p.Topic(job)
	if err := p.client.Publish(ctx, topic, payload); err != nil {
		log.Error("failed to publish decision", logger.String("topic", topic), logger.Error(err))
		p.dropped(metrics.DropPublish)
		return
	}
	if p.metrics != nil {
		p.metrics.RecordDecision(outcome(job))
	}
	log.Debug("decision published", logger.String("topic", topic), logger.Int("bytes", len(payload)))
}

func (p *Publisher) dropped(reason string) {
	if p.metrics != nil {
		p.metrics.RecordDropped(reason)
	}
}
