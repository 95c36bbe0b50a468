package mqtt

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/vidguard/internal/conf"
	"github.com/tphakala/vidguard/internal/errors"
	"github.com/tphakala/vidguard/internal/logger"
	"github.com/tphakala/vidguard/internal/observability/metrics"
)

// client implements Client on top of paho. Reconnection after a lost
// connection is left to paho's auto-reconnect.
type client struct {
	config      Config
	metrics     *metrics.MQTTMetrics
	mu          sync.Mutex
	paho        pahomqtt.Client
	lastAttempt time.Time
}

// ConfigFromSettings maps the MQTT settings onto Config.
func ConfigFromSettings(settings *conf.Settings) Config {
	cfg := DefaultConfig()
	cfg.Broker = settings.MQTT.Broker
	cfg.ClientID = settings.Main.Name
	cfg.Username = settings.MQTT.Username
	cfg.Password = settings.MQTT.Password
	cfg.Retain = settings.MQTT.Retain
	cfg.QoS = settings.MQTT.QoS
	if settings.MQTT.Topic != "" {
		cfg.Topic = settings.MQTT.Topic
	}
	return cfg
}

// NewClient validates cfg and returns an unconnected client. m may be nil.
func NewClient(cfg Config, m *metrics.MQTTMetrics) (Client, error) {
	switch {
	case cfg.Broker == "":
		return nil, configError("mqtt broker address is empty")
	case cfg.QoS > 2:
		return nil, configError(fmt.Sprintf("mqtt qos must be 0, 1 or 2, got %d", cfg.QoS))
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "vidguard"
	}
	return &client{config: cfg, metrics: m}, nil
}

// Connect dials the broker. Hostnames are resolved first so a DNS failure
// is reported as such instead of as a connect timeout. Attempts closer
// together than ReconnectCooldown are refused.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if since := time.Since(c.lastAttempt); since < c.config.ReconnectCooldown {
		return connError(fmt.Errorf("last connection attempt was %v ago", since.Round(time.Millisecond)), c.config.Broker)
	}
	c.lastAttempt = time.Now()

	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return configError(fmt.Sprintf("invalid broker URL: %v", err))
	}
	if host := u.Hostname(); net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return connError(fmt.Errorf("resolving %s: %w", host, err), c.config.Broker)
		}
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(c.config.Broker).
		SetClientID(c.config.ClientID).
		SetUsername(c.config.Username).
		SetPassword(c.config.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(c.config.MaxReconnectInterval).
		SetConnectTimeout(c.config.ConnectTimeout).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost).
		SetReconnectingHandler(c.onReconnecting)

	c.paho = pahomqtt.NewClient(opts)
	token := c.paho.Connect()
	if !token.WaitTimeout(c.config.ConnectTimeout) {
		return connError(fmt.Errorf("timed out after %v", c.config.ConnectTimeout), c.config.Broker)
	}
	if err := token.Error(); err != nil {
		return connError(err, c.config.Broker)
	}
	c.setConnected(true)
	return nil
}

// Publish sends payload and waits for the broker's acknowledgement, bounded
// by PublishTimeout and the context deadline.
func (c *client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.IsConnected() {
		return publishError(errors.NewStd("not connected to MQTT broker"), topic)
	}

	timeout := c.config.PublishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}

	start := time.Now()
	token := c.paho.Publish(topic, c.config.QoS, c.config.Retain, payload)
	if !token.WaitTimeout(timeout) {
		return publishError(fmt.Errorf("no acknowledgement within %v", timeout), topic)
	}
	if err := token.Error(); err != nil {
		return publishError(err, topic)
	}
	if c.metrics != nil {
		c.metrics.RecordPublish(time.Since(start), len(payload))
	}
	return nil
}

// IsConnected reports whether paho currently holds a connection.
func (c *client) IsConnected() bool {
	return c.paho != nil && c.paho.IsConnected()
}

// Disconnect closes the connection and stops auto-reconnect. It is safe to
// call more than once.
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paho == nil {
		return
	}
	c.paho.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
	c.paho = nil
	c.setConnected(false)
}

func (c *client) onConnect(pahomqtt.Client) {
	GetLogger().Info("connected to MQTT broker", logger.String("broker", c.config.Broker))
	c.setConnected(true)
}

func (c *client) onConnectionLost(_ pahomqtt.Client, err error) {
	GetLogger().Warn("connection to MQTT broker lost", logger.String("broker", c.config.Broker), logger.Error(err))
	c.setConnected(false)
}

func (c *client) onReconnecting(pahomqtt.Client, *pahomqtt.ClientOptions) {
	GetLogger().Debug("reconnecting to MQTT broker", logger.String("broker", c.config.Broker))
	if c.metrics != nil {
		c.metrics.RecordReconnect()
	}
}

func (c *client) setConnected(connected bool) {
	if c.metrics != nil {
		c.metrics.SetConnected(connected)
	}
}

func configError(msg string) error {
	return errors.Newf("%s", msg).
		Component("mqtt").
		Category(errors.CategoryConfiguration).
		Build()
}

func connError(err error, broker string) error {
	return errors.New(err).
		Component("mqtt").
		Category(errors.CategoryMQTTConnection).
		Context("broker", broker).
		Build()
}

func publishError(err error, topic string) error {
	return errors.New(err).
		Component("mqtt").
		Category(errors.CategoryMQTTPublish).
		Context("topic", topic).
		Build()
}
