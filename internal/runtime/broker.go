package runtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/nodeflow/internal/runtime/channel"
	configpkg "github.com/drblury/nodeflow/internal/runtime/config"
	errspkg "github.com/drblury/nodeflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/nodeflow/internal/runtime/logging"
	"github.com/drblury/nodeflow/internal/runtime/metrics"
	"github.com/drblury/nodeflow/internal/runtime/protocol"
	"github.com/drblury/nodeflow/internal/runtime/serializer"
	"github.com/drblury/nodeflow/internal/runtime/service"
	transportpkg "github.com/drblury/nodeflow/internal/runtime/transport"
)

// shutdownTimeout bounds the DISCONNECT publish and HTTP shutdown once the
// broker context is done.
const shutdownTimeout = 5 * time.Second

// BrokerDependencies holds optional collaborators. Leave fields nil for the
// defaults.
type BrokerDependencies struct {
	TransportFactory transportpkg.Factory
	// Observer receives INFO, HEARTBEAT and DISCONNECT packets of other nodes.
	Observer channel.Observer
	// Registerer receives the Prometheus collectors. Defaults to
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	Tracer     trace.Tracer
}

// Broker is one node on the bus. It owns the connection, the hosted
// services and the channel supervisor.
type Broker struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	deps       BrokerDependencies
	instanceID string
	services   *service.Catalog
	pending    *channel.Pending
	metrics    *metrics.Metrics
	serializer serializer.Serializer
	cpu        *cpuSampler
	infoSeq    atomic.Int64

	mu         sync.RWMutex
	started    bool
	conn       *transportpkg.Conn
	supervisor *channel.Supervisor
	ready      chan struct{}

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex
}

// NewBroker validates conf and prepares a node. Services are added with
// AddService before Start.
func NewBroker(conf *configpkg.Config, log loggingpkg.ServiceLogger, deps BrokerDependencies) (*Broker, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	c := conf.WithDefaults()
	if err := c.Validate(); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}
	ser, err := serializer.New(c.Serializer)
	if err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}

	b := &Broker{
		Conf:       &c,
		Logger:     log.With(loggingpkg.LogFields{"node_id": c.NodeID}),
		deps:       deps,
		instanceID: uuid.NewString(),
		services:   service.NewCatalog(),
		pending:    channel.NewPending(),
		metrics:    metrics.New(deps.Registerer),
		serializer: ser,
		cpu:        newCPUSampler(),
		ready:      make(chan struct{}),
	}
	b.infoSeq.Store(1)
	b.Logger.Info("Creating broker", loggingpkg.LogFields{
		"transporter": c.Transporter,
		"namespace":   c.Namespace,
		"serializer":  ser.Name(),
		"config":      c.String(),
	})
	return b, nil
}

// NodeID returns the id this node uses on the bus.
func (b *Broker) NodeID() string { return b.Conf.NodeID }

// InstanceID is unique per broker instance, even when a node id is reused.
func (b *Broker) InstanceID() string { return b.instanceID }

// Metrics exposes the broker's counters.
func (b *Broker) Metrics() *metrics.Metrics { return b.metrics }

// AddService hosts svc on this node. A copy is taken, so later builder calls
// on svc have no effect.
func (b *Broker) AddService(svc *service.Service) error {
	b.mu.RLock()
	started := b.started
	b.mu.RUnlock()
	if started {
		return errspkg.ErrBrokerStarted
	}
	if err := b.services.Add(svc); err != nil {
		return err
	}
	b.infoSeq.Add(1)
	b.Logger.Info("Service registered", loggingpkg.LogFields{"service": svc.FullName(), "actions": svc.ActionNames(), "events": svc.EventNames()})
	return nil
}

// Services lists the full names of the hosted services.
func (b *Broker) Services() []string {
	return b.services.Names()
}

// Ready is closed once Start has connected and every worker is bound.
func (b *Broker) Ready() <-chan struct{} {
	return b.ready
}

// Start connects, binds every protocol subject, announces the node and
// blocks until ctx is done. It then announces DISCONNECT, stops the workers
// and closes the connection. Connect and subscribe failures abort startup.
func (b *Broker) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return errspkg.ErrBrokerStarted
	}
	b.started = true
	b.mu.Unlock()

	if b.Conf.MetricsEnabled {
		if err := b.metrics.Register(); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}

	opts := []transportpkg.Option{transportpkg.WithMetrics(b.metrics)}
	if b.deps.TransportFactory != nil {
		opts = append(opts, transportpkg.WithFactory(b.deps.TransportFactory))
	}
	conn, err := transportpkg.Connect(ctx, b.Conf, b.Logger, opts...)
	if err != nil {
		b.Logger.Error("Failed to connect", err, nil)
		return err
	}

	sup, err := channel.Start(ctx, b.Conf, conn, channel.Deps{
		Logger:     b.Logger,
		Serializer: b.serializer,
		Metrics:    b.metrics,
		Services:   b.services,
		Info:       b.info,
		Observer:   b.deps.Observer,
		Pending:    b.pending,
		Tracer:     b.deps.Tracer,
	})
	if err != nil {
		_ = conn.Close()
		return err
	}

	b.mu.Lock()
	b.conn = conn
	b.supervisor = sup
	b.mu.Unlock()

	servers := b.startHTTPServers()
	b.announce(ctx)

	var wg sync.WaitGroup
	if b.Conf.HeartbeatInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.heartbeatLoop(ctx)
		}()
	}

	close(b.ready)
	b.Logger.Info("Broker started", loggingpkg.LogFields{"services": b.services.Names(), "instance_id": b.instanceID})

	<-ctx.Done()
	wg.Wait()
	b.shutdown(servers)
	return nil
}

func (b *Broker) announce(ctx context.Context) {
	if err := b.publish(ctx, protocol.KindDiscover, "", protocol.NewDiscover(b.NodeID())); err != nil {
		b.Logger.Warn("Failed to publish DISCOVER", err, nil)
	}
	if err := b.publish(ctx, protocol.KindInfo, "", b.info()); err != nil {
		b.Logger.Warn("Failed to publish INFO", err, nil)
	}
}

func (b *Broker) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(b.Conf.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hb := protocol.NewHeartbeat(b.NodeID(), b.cpu.Percent())
			if err := b.publish(ctx, protocol.KindHeartbeat, "", hb); err != nil && ctx.Err() == nil {
				b.Logger.Warn("Failed to publish HEARTBEAT", err, nil)
			}
		}
	}
}

func (b *Broker) shutdown(servers []*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := b.publish(ctx, protocol.KindDisconnect, "", protocol.NewDisconnect(b.NodeID())); err != nil {
		b.Logger.Warn("Failed to publish DISCONNECT", err, nil)
	}

	b.mu.RLock()
	sup, conn := b.supervisor, b.conn
	b.mu.RUnlock()

	sup.Stop()
	if err := conn.Close(); err != nil {
		b.Logger.Warn("Failed to close connection", err, nil)
	}
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			b.Logger.Warn("Failed to stop HTTP server", err, loggingpkg.LogFields{"address": srv.Addr})
		}
	}
	b.Logger.Info("Broker stopped", nil)
}

// info is the INFO packet describing this node.
func (b *Broker) info() protocol.InfoPacket {
	return protocol.NewInfo(b.NodeID(), b.instanceID, b.infoSeq.Load(), b.services.Schemas())
}

func (b *Broker) connection() (*transportpkg.Conn, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.conn == nil {
		return nil, errspkg.ErrBrokerNotStarted
	}
	return b.conn, nil
}

func (b *Broker) publish(ctx context.Context, kind protocol.Kind, target string, packet any) error {
	conn, err := b.connection()
	if err != nil {
		return err
	}
	payload, err := b.serializer.Marshal(packet)
	if err != nil {
		return fmt.Errorf("encode %s packet: %w", kind, err)
	}
	return conn.Publish(ctx, protocol.Subject(kind, b.Conf.Namespace, target), payload)
}

// Workers reports the status of every channel worker. It is empty before
// Start.
func (b *Broker) Workers() []channel.Status {
	b.mu.RLock()
	sup := b.supervisor
	b.mu.RUnlock()
	if sup == nil {
		return []channel.Status{}
	}
	return sup.Workers()
}
