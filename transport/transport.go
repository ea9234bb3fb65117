// Package transport defines the bus backends a node can run on. Each backend
// lives in its own sub-package and registers a Builder with the registry.
package transport

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport combines a publisher and subscriber pair produced by a backend.
// Payloads travel as the raw message payload, without envelopes of their own.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Builder is the function signature for creating a transport from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the configuration values needed by backends without
// depending on the full config package.
type Config interface {
	// GetPubSubSystem returns the backend name.
	GetPubSubSystem() string

	// GetNodeID identifies the local node. Backends that need per-node
	// queues or consumer groups derive them from it.
	GetNodeID() string

	// NATS
	GetNATSURL() string
	GetNATSUser() string
	GetNATSPassword() string

	// Kafka
	GetKafkaBrokers() []string
	GetKafkaConsumerGroup() string

	// RabbitMQ
	GetRabbitMQURL() string

	// AWS
	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}

// Address returns the connection string reported in connect errors.
func Address(cfg Config) string {
	if cfg == nil {
		return ""
	}
	switch cfg.GetPubSubSystem() {
	case "nats":
		return cfg.GetNATSURL()
	case "rabbitmq":
		return cfg.GetRabbitMQURL()
	case "kafka":
		brokers := cfg.GetKafkaBrokers()
		if len(brokers) > 0 {
			return brokers[0]
		}
	case "aws":
		if endpoint := cfg.GetAWSEndpoint(); endpoint != "" {
			return endpoint
		}
		return "aws:" + cfg.GetAWSRegion()
	}
	return cfg.GetPubSubSystem()
}

// CapabilitiesProvider is implemented by transports that can report their capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}

// ErrClosed is returned by backends used after Close.
var ErrClosed = errors.New("transport: closed")
