package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/nodeflow/internal/runtime/config"
	errspkg "github.com/drblury/nodeflow/internal/runtime/errors"
	"github.com/drblury/nodeflow/internal/runtime/logging"
	"github.com/drblury/nodeflow/internal/runtime/metrics"
	bus "github.com/drblury/nodeflow/transport"
)

// WarnAttempts is how many failed publish attempts are logged at warning
// level before the log level becomes error.
const WarnAttempts = 4

// Conn is one connection to the bus, shared by every worker. It is safe for
// concurrent use.
type Conn struct {
	transport  Transport
	logger     logging.ServiceLogger
	metrics    *metrics.Metrics
	address    string
	retryDelay time.Duration

	mu     sync.RWMutex
	closed bool
}

type connOptions struct {
	factory Factory
	metrics *metrics.Metrics
}

// Option customises Connect.
type Option func(*connOptions)

// WithFactory replaces the registry-backed factory.
func WithFactory(factory Factory) Option {
	return func(o *connOptions) { o.factory = factory }
}

// WithMetrics records publish statistics into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *connOptions) { o.metrics = m }
}

// Connect builds the configured backend exactly once. Any failure is a
// *errors.ConnectError; retrying is up to the caller.
func Connect(ctx context.Context, conf *config.Config, logger logging.ServiceLogger, opts ...Option) (*Conn, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	o := connOptions{factory: DefaultFactory()}
	for _, opt := range opts {
		opt(&o)
	}

	address := bus.Address(conf)
	t, err := o.factory.Build(ctx, conf, logging.NewWatermillAdapter(logger))
	if err != nil {
		return nil, &errspkg.ConnectError{Address: address, Err: err}
	}
	if t.Publisher == nil || t.Subscriber == nil {
		return nil, &errspkg.ConnectError{Address: address, Err: fmt.Errorf("transport %q returned no publisher or subscriber", conf.GetPubSubSystem())}
	}

	logger.Info("Connected to bus", logging.LogFields{"transport": conf.GetPubSubSystem(), "address": address})
	return &Conn{
		transport:  t,
		logger:     logger,
		metrics:    o.metrics,
		address:    address,
		retryDelay: conf.PublishRetryDelay,
	}, nil
}

// Address is the bus address the connection was built for.
func (c *Conn) Address() string { return c.address }

// Publish hands payload to the bus, retrying until a send succeeds. Failed
// attempts 1 to 4 are logged as warnings, later ones as errors. The only
// error returned is ctx's error when ctx ends while retrying, or
// ErrConnectionClosed after Close.
func (c *Conn) Publish(ctx context.Context, subject string, payload []byte) error {
	if subject == "" {
		return errspkg.ErrSubjectRequired
	}
	failures := 0
	for {
		if c.isClosed() {
			return errspkg.ErrConnectionClosed
		}
		msg := message.NewMessage(watermill.NewUUID(), payload)
		err := c.transport.Publisher.Publish(subject, msg)
		if err == nil {
			c.metrics.RecordPublished(subject)
			return nil
		}

		failures++
		c.metrics.RecordPublishRetry(subject)
		fields := logging.LogFields{"subject": subject, "attempt": failures}
		text := fmt.Sprintf("Failed to send message, failed %d times", failures)
		if failures <= WarnAttempts {
			c.logger.Warn(text, err, fields)
		} else {
			c.logger.Error(text, err, fields)
		}

		if err := c.wait(ctx); err != nil {
			return err
		}
	}
}

func (c *Conn) wait(ctx context.Context) error {
	if c.retryDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(c.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Subscribe binds subject. Failure is a *errors.SubscribeError and is not
// retried.
func (c *Conn) Subscribe(ctx context.Context, subject string) (*Subscription, error) {
	if subject == "" {
		return nil, &errspkg.SubscribeError{Subject: subject, Err: errspkg.ErrSubjectRequired}
	}
	if c.isClosed() {
		return nil, &errspkg.SubscribeError{Subject: subject, Err: errspkg.ErrConnectionClosed}
	}
	subCtx, cancel := context.WithCancel(ctx)
	messages, err := c.transport.Subscriber.Subscribe(subCtx, subject)
	if err != nil {
		cancel()
		return nil, &errspkg.SubscribeError{Subject: subject, Err: err}
	}
	return &Subscription{subject: subject, messages: messages, cancel: cancel}, nil
}

// Close releases the publisher and subscriber. Further publishes fail with
// ErrConnectionClosed.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	pubErr := c.transport.Publisher.Close()
	subErr := c.transport.Subscriber.Close()
	if pubErr != nil {
		return pubErr
	}
	return subErr
}

func (c *Conn) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Subscription is the stream of raw messages for one subject.
type Subscription struct {
	subject  string
	messages <-chan *message.Message
	cancel   context.CancelFunc
	once     sync.Once
}

// Subject returns the bound subject.
func (s *Subscription) Subject() string { return s.subject }

// Next blocks until a message arrives. It returns false once the stream has
// ended or ctx is done. The caller must Ack every message it receives.
func (s *Subscription) Next(ctx context.Context) (*message.Message, bool) {
	select {
	case <-ctx.Done():
		return nil, false
	case msg, ok := <-s.messages:
		return msg, ok
	}
}

// Close ends the stream.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}
