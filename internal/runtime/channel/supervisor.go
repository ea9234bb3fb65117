// Package channel runs one worker per protocol subject and supervises them.
package channel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/nodeflow/internal/runtime/config"
	errspkg "github.com/drblury/nodeflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/nodeflow/internal/runtime/logging"
	"github.com/drblury/nodeflow/internal/runtime/metrics"
	"github.com/drblury/nodeflow/internal/runtime/protocol"
	"github.com/drblury/nodeflow/internal/runtime/serializer"
	"github.com/drblury/nodeflow/internal/runtime/service"
	"github.com/drblury/nodeflow/internal/runtime/transport"
)

// Deps holds the collaborators of the supervisor and its handlers. Only
// Logger is required.
type Deps struct {
	Logger     loggingpkg.ServiceLogger
	Serializer serializer.Serializer // defaults to conf.Serializer
	Metrics    *metrics.Metrics
	Services   *service.Catalog
	// Info builds the INFO packet sent in reply to DISCOVER.
	Info     func() protocol.InfoPacket
	Observer Observer
	Pending  *Pending
	Tracer   trace.Tracer
	// NewBackOff drives resubscribe attempts under the "resubscribe" policy.
	NewBackOff func() backoff.BackOff
}

// Supervisor owns every channel worker of a node.
type Supervisor struct {
	conf       *config.Config
	logger     loggingpkg.ServiceLogger
	metrics    *metrics.Metrics
	registry   *Registry
	newBackOff func() backoff.BackOff

	workers []runner
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stop    sync.Once
}

// Start subscribes a worker to every protocol subject and runs them. If any
// subscription fails, the workers bound so far are closed and the
// *errors.SubscribeError is returned: a node never starts partially bound.
func Start(ctx context.Context, conf *config.Config, conn *transport.Conn, deps Deps) (*Supervisor, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if conf.NodeID == "" {
		return nil, errspkg.ErrNodeIDRequired
	}
	if deps.Logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if conn == nil {
		return nil, errspkg.ErrConnectionClosed
	}

	ser := deps.Serializer
	if ser == nil {
		var err error
		if ser, err = serializer.New(conf.Serializer); err != nil {
			return nil, errspkg.NewConfigValidationError(err)
		}
	}
	services := deps.Services
	if services == nil {
		services = service.NewCatalog()
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = defaultTracer()
	}

	s := &Supervisor{
		conf:       conf,
		logger:     deps.Logger.With(loggingpkg.LogFields{"node_id": conf.NodeID}),
		metrics:    deps.Metrics,
		newBackOff: deps.NewBackOff,
	}
	if s.newBackOff == nil {
		s.newBackOff = func() backoff.BackOff { return backoff.NewExponentialBackOff() }
	}
	s.registry = NewRegistry(s.OnWorkerError)

	h := &handlers{
		env: &env{
			nodeID:     conf.NodeID,
			namespace:  conf.Namespace,
			conn:       conn,
			serializer: ser,
			logger:     s.logger,
			metrics:    deps.Metrics,
			registry:   s.registry,
			tracer:     tracer,
		},
		services: services,
		info:     deps.Info,
		observer: deps.Observer,
		pending:  deps.Pending,
	}

	runCtx, cancel := context.WithCancel(ctx)
	for _, ch := range protocol.Channels() {
		w, err := h.build(runCtx, ch)
		if err != nil {
			cancel()
			for _, bound := range s.workers {
				bound.Close()
				s.registry.remove(bound.ID())
			}
			s.logger.Error("Failed to start channel workers", err, loggingpkg.LogFields{"channel": ch.Name()})
			return nil, err
		}
		s.workers = append(s.workers, w)
	}

	s.cancel = cancel
	for _, w := range s.workers {
		s.wg.Add(1)
		go s.run(runCtx, w)
	}
	s.logger.Info("Channel workers started", loggingpkg.LogFields{"workers": len(s.workers), "serializer": ser.Name()})
	return s, nil
}

// OnWorkerError logs a failure reported by a worker. It returns false: a
// failing handler never stops its worker.
func (s *Supervisor) OnWorkerError(workerID string, err error) bool {
	s.logger.Error("Channel worker reported an error", err, loggingpkg.LogFields{"worker": workerID})
	return false
}

func (s *Supervisor) run(ctx context.Context, w runner) {
	defer s.wg.Done()
	defer w.Close()
	for {
		err := w.Run(ctx)
		if !errors.Is(err, errStreamEnded) || ctx.Err() != nil {
			break
		}
		if s.conf.WorkerRestartPolicy != config.RestartResubscribe {
			s.logger.Warn("Worker subscription ended", err, loggingpkg.LogFields{"worker": w.ID(), "subject": w.Subject()})
			break
		}
		if err := s.resubscribe(ctx, w); err != nil {
			s.logger.Error("Failed to resubscribe worker", err, loggingpkg.LogFields{"worker": w.ID(), "subject": w.Subject()})
			break
		}
		s.registry.restarted(w.ID())
		s.metrics.RecordRestart(w.Subject())
		s.logger.Info("Worker resubscribed", loggingpkg.LogFields{"worker": w.ID(), "subject": w.Subject()})
	}
	s.registry.setState(w.ID(), StateStopped)
}

func (s *Supervisor) resubscribe(ctx context.Context, w runner) error {
	opts := []backoff.RetryOption{
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Warn("Resubscribe attempt failed", err, loggingpkg.LogFields{"worker": w.ID(), "retry_in": next.String()})
		}),
	}
	if s.conf.WorkerRestartMaxTries > 0 {
		opts = append(opts, backoff.WithMaxTries(uint(s.conf.WorkerRestartMaxTries)))
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, w.resubscribe(ctx)
	}, opts...)
	return err
}

// Registry exposes the worker status index.
func (s *Supervisor) Registry() *Registry {
	return s.registry
}

// Worker returns the status of the worker with the given id, such as "PING"
// or "PONG.node".
func (s *Supervisor) Worker(id string) (Status, bool) {
	return s.registry.Lookup(id)
}

// Workers returns the status of every worker.
func (s *Supervisor) Workers() []Status {
	return s.registry.Snapshot()
}

// Wait blocks until every worker has stopped.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Stop cancels every worker and waits for them to finish.
func (s *Supervisor) Stop() {
	s.stop.Do(func() {
		s.cancel()
	})
	s.wg.Wait()
}
