// Package mqtt publishes the decisions of finished analysis jobs to an MQTT
// broker under <topic>/decisions/<verdict>, or <topic>/decisions/failed for
// jobs that ended without a decision.
package mqtt

import (
	"context"
	"time"

	"github.com/tphakala/vidguard/internal/logger"
)

// Client is the broker connection used by Publisher.
type Client interface {
	Connect(ctx context.Context) error
	// Publish fails when the client is not connected.
	Publish(ctx context.Context, topic string, payload []byte) error
	IsConnected() bool
	Disconnect()
}

// Config configures the broker connection and the topic prefix.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	Retain   bool
	QoS      byte

	ReconnectCooldown    time.Duration // minimum gap between Connect calls
	MaxReconnectInterval time.Duration // upper bound of paho's reconnect backoff
	ConnectTimeout       time.Duration
	PublishTimeout       time.Duration
	DisconnectTimeout    time.Duration
}

// DefaultConfig returns the defaults used when settings leave a value unset.
func DefaultConfig() Config {
	return Config{
		Topic:                "vidguard",
		ReconnectCooldown:    5 * time.Second,
		MaxReconnectInterval: 5 * time.Minute,
		ConnectTimeout:       30 * time.Second,
		PublishTimeout:       10 * time.Second,
		DisconnectTimeout:    250 * time.Millisecond,
	}
}

// GetLogger returns the mqtt module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("mqtt")
}
