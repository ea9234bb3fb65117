// Package nats provides the core NATS backend, the bus most nodes share.
package nats

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/drblury/nodeflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nats.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return nats.NewSubscriber(cfg, logger)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

// Build creates a core NATS transport. JetStream stays disabled: packets are
// fire-and-forget and every node subscribes without a queue group, so
// broadcast subjects reach all of them.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetNATSURL()
	if url == "" {
		return transport.Transport{}, fmt.Errorf("nats: URL is required")
	}
	options := Options(cfg)
	marshaler := RawMarshaler{}

	publisher, err := PublisherFactory(
		nats.PublisherConfig{
			URL:         url,
			NatsOptions: options,
			Marshaler:   marshaler,
			JetStream:   nats.JetStreamConfig{Disabled: true},
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(
		nats.SubscriberConfig{
			URL:         url,
			NatsOptions: options,
			Unmarshaler: marshaler,
			JetStream:   nats.JetStreamConfig{Disabled: true},
		},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

// Options returns the connection options derived from cfg: the client name
// and, when a user is configured, the username/password pair.
func Options(cfg transport.Config) []nc.Option {
	options := []nc.Option{nc.Name("nodeflow-" + cfg.GetNodeID())}
	if user := cfg.GetNATSUser(); user != "" {
		options = append(options, nc.UserInfo(user, cfg.GetNATSPassword()))
	}
	return options
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}

// RawMarshaler puts the payload on the wire as is, without headers, so
// nodes that know nothing about Watermill can read it.
type RawMarshaler struct{}

func (RawMarshaler) Marshal(topic string, msg *message.Message) (*nc.Msg, error) {
	out := nc.NewMsg(topic)
	out.Data = msg.Payload
	return out, nil
}

func (RawMarshaler) Unmarshal(msg *nc.Msg) (*message.Message, error) {
	return message.NewMessage(watermill.NewUUID(), msg.Data), nil
}
