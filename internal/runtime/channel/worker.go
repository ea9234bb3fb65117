package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/nodeflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/nodeflow/internal/runtime/logging"
	"github.com/drblury/nodeflow/internal/runtime/metrics"
	"github.com/drblury/nodeflow/internal/runtime/protocol"
	"github.com/drblury/nodeflow/internal/runtime/serializer"
	"github.com/drblury/nodeflow/internal/runtime/transport"
)

const tracerName = "github.com/drblury/nodeflow/internal/runtime/channel"

var (
	errStreamEnded   = errors.New("subscription stream ended")
	errStopRequested = errors.New("worker stop requested")
)

// env is what every worker shares: the node identity, the connection and
// the registry it reports to.
type env struct {
	nodeID     string
	namespace  string
	conn       *transport.Conn
	serializer serializer.Serializer
	logger     loggingpkg.ServiceLogger
	metrics    *metrics.Metrics
	registry   *Registry
	tracer     trace.Tracer
}

func (e *env) prefix() string {
	return protocol.Prefix(e.namespace)
}

// publish encodes packet and sends it to kind, addressed to target when set.
func (e *env) publish(ctx context.Context, kind protocol.Kind, target string, packet any) error {
	payload, err := e.serializer.Marshal(packet)
	if err != nil {
		return fmt.Errorf("encode %s packet: %w", kind, err)
	}
	return e.conn.Publish(ctx, protocol.Subject(kind, e.namespace, target), payload)
}

// runner is the type-erased view the supervisor keeps of a worker.
type runner interface {
	ID() string
	Subject() string
	Run(ctx context.Context) error
	resubscribe(ctx context.Context) error
	Close()
}

// worker listens on one subject and feeds every decoded packet of type P to
// its handler. Messages are handled one at a time, in arrival order.
type worker[P protocol.Packet] struct {
	id      string
	channel protocol.Channel
	subject string
	env     *env
	logger  loggingpkg.ServiceLogger
	handle  func(context.Context, P) error

	mu  sync.Mutex
	sub *transport.Subscription
}

// newWorker subscribes the channel's subject. A failure is returned as a
// *errors.SubscribeError and leaves nothing bound.
func newWorker[P protocol.Packet](ctx context.Context, e *env, ch protocol.Channel, handle func(context.Context, P) error) (*worker[P], error) {
	subject := ch.Subject(e.namespace, e.nodeID)
	w := &worker[P]{
		id:      ch.Name(),
		channel: ch,
		subject: subject,
		env:     e,
		logger:  e.logger.With(loggingpkg.LogFields{"worker": ch.Name(), "subject": subject}),
		handle:  handle,
	}
	e.registry.add(w.id, subject)

	sub, err := e.conn.Subscribe(ctx, subject)
	if err != nil {
		e.registry.remove(w.id)
		return nil, err
	}
	w.sub = sub
	e.registry.setState(w.id, StateSubscribed)
	w.logger.Debug("Worker subscribed", nil)
	return w, nil
}

func (w *worker[P]) ID() string      { return w.id }
func (w *worker[P]) Subject() string { return w.subject }

func (w *worker[P]) subscription() *transport.Subscription {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sub
}

// Run consumes the subscription until ctx ends (nil), the stream closes
// (errStreamEnded) or the supervisor asks the worker to stop.
func (w *worker[P]) Run(ctx context.Context) error {
	sub := w.subscription()
	w.env.registry.setState(w.id, StateListening)
	for {
		msg, ok := sub.Next(ctx)
		if !ok {
			if ctx.Err() != nil {
				return nil
			}
			return errStreamEnded
		}
		if stop := w.process(ctx, msg); stop {
			return errStopRequested
		}
	}
}

// process handles a single message and always acks it. It reports whether
// the worker should stop.
func (w *worker[P]) process(ctx context.Context, msg *message.Message) bool {
	defer msg.Ack()

	started := time.Now()
	ctx, span := w.env.tracer.Start(ctx, w.subject+" process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", w.subject),
			attribute.String("messaging.message.id", msg.UUID),
			attribute.String("nodeflow.worker", w.id),
		),
	)
	defer span.End()
	defer func() { w.env.metrics.RecordHandled(w.subject, time.Since(started)) }()

	w.env.registry.received(w.id)

	packet, err := w.decode(msg.Payload)
	if err != nil {
		decodeErr := &errspkg.DecodeError{Subject: w.subject, Err: err}
		w.logger.Error("Failed to decode message", decodeErr, loggingpkg.LogFields{"message_uuid": msg.UUID})
		w.env.registry.decodeFailed(w.id, decodeErr)
		w.env.metrics.RecordDecodeFailure(w.subject)
		span.RecordError(decodeErr)
		span.SetStatus(codes.Error, "decode failed")
		return false
	}

	sender := packet.PacketHeader().Sender
	span.SetAttributes(attribute.String("nodeflow.sender", sender))
	if !w.channel.Targeted && sender == w.env.nodeID {
		return false
	}

	w.env.registry.setState(w.id, StateHandling)
	err = w.invoke(ctx, packet)
	w.env.registry.setState(w.id, StateListening)
	if err == nil {
		return false
	}

	workerErr := &errspkg.WorkerError{WorkerID: w.id, Err: err}
	w.env.metrics.RecordHandlerError(w.subject)
	span.RecordError(workerErr)
	span.SetStatus(codes.Error, "handler failed")
	return w.env.registry.Report(w.id, workerErr)
}

func (w *worker[P]) decode(payload []byte) (P, error) {
	var packet P
	if err := w.env.serializer.Unmarshal(payload, &packet); err != nil {
		return packet, err
	}
	if err := packet.PacketHeader().Validate(); err != nil {
		return packet, err
	}
	return packet, nil
}

func (w *worker[P]) invoke(ctx context.Context, packet P) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return w.handle(ctx, packet)
}

// resubscribe binds the same subject again under the same worker id.
func (w *worker[P]) resubscribe(ctx context.Context) error {
	sub, err := w.env.conn.Subscribe(ctx, w.subject)
	if err != nil {
		return err
	}
	w.mu.Lock()
	old := w.sub
	w.sub = sub
	w.mu.Unlock()
	if old != nil {
		old.Close()
	}
	w.env.registry.setState(w.id, StateSubscribed)
	return nil
}

func (w *worker[P]) Close() {
	if sub := w.subscription(); sub != nil {
		sub.Close()
	}
}

func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
