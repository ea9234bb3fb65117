package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/nodeflow/internal/runtime/config"
	"github.com/drblury/nodeflow/internal/runtime/logging/logtest"
	"github.com/drblury/nodeflow/internal/runtime/protocol"
	"github.com/drblury/nodeflow/internal/runtime/serializer"
	"github.com/drblury/nodeflow/internal/runtime/transport"
)

const waitTimeout = 5 * time.Second

func channelConf(namespace, nodeID string) *config.Config {
	return &config.Config{
		Namespace:           namespace,
		NodeID:              nodeID,
		Transporter:         "channel",
		Serializer:          config.SerializerJSON,
		WorkerRestartPolicy: config.RestartNever,
	}
}

type testNode struct {
	conf *config.Config
	conn *transport.Conn
	sup  *Supervisor
	logs *logtest.Recorder
}

func startNode(t *testing.T, conf *config.Config, deps Deps, opts ...transport.Option) *testNode {
	t.Helper()
	logs := logtest.New()
	conn, err := transport.Connect(context.Background(), conf, logs, opts...)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	deps.Logger = logs
	sup, err := Start(context.Background(), conf, conn, deps)
	if err != nil {
		_ = conn.Close()
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(func() {
		sup.Stop()
		_ = conn.Close()
	})
	return &testNode{conf: conf, conn: conn, sup: sup, logs: logs}
}

func (n *testNode) status(t *testing.T, id string) Status {
	t.Helper()
	status, ok := n.sup.Worker(id)
	if !ok {
		t.Fatalf("worker %s not registered", id)
	}
	return status
}

// probe is a bare bus client used to inject packets and capture replies.
type probe struct {
	conn      *transport.Conn
	ser       serializer.Serializer
	namespace string
}

func newProbe(t *testing.T, namespace, serializerName string) *probe {
	t.Helper()
	conn, err := transport.Connect(context.Background(), channelConf(namespace, "probe"), logtest.New())
	if err != nil {
		t.Fatalf("probe connect failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	ser, err := serializer.New(serializerName)
	if err != nil {
		t.Fatal(err)
	}
	return &probe{conn: conn, ser: ser, namespace: namespace}
}

func (p *probe) subject(kind protocol.Kind, nodeID string) string {
	return protocol.Subject(kind, p.namespace, nodeID)
}

func (p *probe) send(t *testing.T, subject string, packet any) {
	t.Helper()
	payload, err := p.ser.Marshal(packet)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	p.sendRaw(t, subject, payload)
}

func (p *probe) sendRaw(t *testing.T, subject string, payload []byte) {
	t.Helper()
	if err := p.conn.Publish(context.Background(), subject, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
}

func (p *probe) listen(t *testing.T, subject string) *transport.Subscription {
	t.Helper()
	sub, err := p.conn.Subscribe(context.Background(), subject)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	t.Cleanup(sub.Close)
	return sub
}

func receive[P any](t *testing.T, p *probe, sub *transport.Subscription) P {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	var packet P
	msg, ok := sub.Next(ctx)
	if !ok {
		t.Fatalf("no message on %s", sub.Subject())
	}
	msg.Ack()
	if err := p.ser.Unmarshal(msg.Payload, &packet); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return packet
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// stubPublisher accepts and drops everything.
type stubPublisher struct{}

func (stubPublisher) Publish(string, ...*message.Message) error { return nil }
func (stubPublisher) Close() error                              { return nil }

// scriptedSubscriber hands out streams the test can end at will and fails
// subjects matching failOn.
type scriptedSubscriber struct {
	mu      sync.Mutex
	failOn  func(topic string) bool
	streams map[string][]*stream
}

type stream struct {
	ctx  context.Context
	out  chan *message.Message
	once sync.Once
}

func (s *stream) end() {
	s.once.Do(func() { close(s.out) })
}

func newScriptedSubscriber(failOn func(string) bool) *scriptedSubscriber {
	return &scriptedSubscriber{failOn: failOn, streams: make(map[string][]*stream)}
}

func (s *scriptedSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if s.failOn != nil && s.failOn(topic) {
		return nil, errNotAuthorized
	}
	st := &stream{ctx: ctx, out: make(chan *message.Message)}
	go func() {
		<-ctx.Done()
		st.end()
	}()
	s.mu.Lock()
	s.streams[topic] = append(s.streams[topic], st)
	s.mu.Unlock()
	return st.out, nil
}

func (s *scriptedSubscriber) Close() error { return nil }

func (s *scriptedSubscriber) all() []*stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*stream
	for _, list := range s.streams {
		out = append(out, list...)
	}
	return out
}

func (s *scriptedSubscriber) count(topic string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams[topic])
}

func (s *scriptedSubscriber) latest(topic string) *stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.streams[topic]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

func scriptedFactory(sub *scriptedSubscriber) transport.Option {
	return transport.WithFactory(transport.FactoryFunc(func(context.Context, *config.Config, watermill.LoggerAdapter) (transport.Transport, error) {
		return transport.Transport{Publisher: stubPublisher{}, Subscriber: sub}, nil
	}))
}

type recordingObserver struct {
	mu          sync.Mutex
	infos       []protocol.InfoPacket
	heartbeats  []protocol.HeartbeatPacket
	disconnects []protocol.DisconnectPacket
}

func (o *recordingObserver) OnInfo(_ context.Context, info protocol.InfoPacket) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.infos = append(o.infos, info)
}

func (o *recordingObserver) OnHeartbeat(_ context.Context, hb protocol.HeartbeatPacket) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.heartbeats = append(o.heartbeats, hb)
}

func (o *recordingObserver) OnDisconnect(_ context.Context, d protocol.DisconnectPacket) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.disconnects = append(o.disconnects, d)
}

func (o *recordingObserver) counts() (int, int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.infos), len(o.heartbeats), len(o.disconnects)
}
