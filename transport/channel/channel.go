// Package channel provides an in-memory backend. Every node built in the same
// process shares one Watermill GoChannel, so several brokers can talk to each
// other in tests and local runs.
package channel

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/nodeflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// OutputBuffer is the per-subscriber buffer of the shared bus.
const OutputBuffer = 64

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	h := attach(cfg, logger)
	return h, h
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// Build joins the shared in-memory bus.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	pub, sub := Factory(gochannel.Config{OutputChannelBuffer: OutputBuffer}, logger)
	return transport.Transport{
		Publisher:  pub,
		Subscriber: sub,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}

var (
	busMu sync.Mutex
	bus   *gochannel.GoChannel
	refs  int
)

// handle is one node's view of the shared bus. Closing it ends only the
// subscriptions it opened; the bus itself closes with the last handle.
type handle struct {
	mu      sync.Mutex
	pubSub  *gochannel.GoChannel
	cancels []context.CancelFunc
	closed  bool
}

func attach(cfg gochannel.Config, logger watermill.LoggerAdapter) *handle {
	busMu.Lock()
	defer busMu.Unlock()
	if bus == nil {
		bus = gochannel.NewGoChannel(cfg, logger)
	}
	refs++
	return &handle{pubSub: bus}
}

func (h *handle) Publish(topic string, messages ...*message.Message) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}
	return h.pubSub.Publish(topic, messages...)
}

func (h *handle) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, transport.ErrClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	h.cancels = append(h.cancels, cancel)
	h.mu.Unlock()

	messages, err := h.pubSub.Subscribe(ctx, topic)
	if err != nil {
		cancel()
		return nil, err
	}
	return messages, nil
}

func (h *handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	cancels := h.cancels
	h.cancels = nil
	h.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}

	busMu.Lock()
	defer busMu.Unlock()
	refs--
	if refs == 0 && bus != nil {
		err := bus.Close()
		bus = nil
		return err
	}
	return nil
}
