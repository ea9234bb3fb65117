// Package metrics holds the Prometheus collectors shared by the transport
// connection and the channel workers.
package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks per-subject transport and worker statistics.
type Metrics struct {
	mu sync.RWMutex

	subjects map[string]*SubjectMetrics

	publishedTotal  *prometheus.CounterVec
	retriesTotal    *prometheus.CounterVec
	receivedTotal   *prometheus.CounterVec
	decodeFailures  *prometheus.CounterVec
	handlerErrors   *prometheus.CounterVec
	restartsTotal   *prometheus.CounterVec
	handlingSeconds *prometheus.HistogramVec

	registerer prometheus.Registerer
	registered bool
}

// SubjectMetrics holds the counters of one subject.
type SubjectMetrics struct {
	Published      uint64    `json:"published"`
	PublishRetries uint64    `json:"publish_retries"`
	Received       uint64    `json:"received"`
	DecodeFailures uint64    `json:"decode_failures"`
	HandlerErrors  uint64    `json:"handler_errors"`
	Restarts       uint64    `json:"restarts"`
	LastUpdatedAt  time.Time `json:"last_updated_at"`
}

// Snapshot is a point-in-time copy of all subjects.
type Snapshot struct {
	Subjects    map[string]SubjectMetrics `json:"subjects"`
	CollectedAt time.Time                 `json:"collected_at"`
}

func newCounterVec(subsystem, name, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nodeflow",
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		[]string{"subject"},
	)
}

// New creates the collectors. A nil registerer means prometheus.DefaultRegisterer.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Metrics{
		subjects:       make(map[string]*SubjectMetrics),
		registerer:     registerer,
		publishedTotal: newCounterVec("transport", "published_total", "Messages handed to the bus"),
		retriesTotal:   newCounterVec("transport", "publish_retries_total", "Failed publish attempts that were retried"),
		receivedTotal:  newCounterVec("worker", "received_total", "Messages received by channel workers"),
		decodeFailures: newCounterVec("worker", "decode_failures_total", "Messages discarded because they could not be decoded"),
		handlerErrors:  newCounterVec("worker", "handler_errors_total", "Handler failures reported to the supervisor"),
		restartsTotal:  newCounterVec("worker", "restarts_total", "Worker resubscriptions after the stream ended"),
		handlingSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "nodeflow",
				Subsystem: "worker",
				Name:      "handling_seconds",
				Help:      "Time spent decoding and handling one message",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"subject"},
		),
	}
}

// Register registers the collectors. Safe to call multiple times; collectors
// already registered by another instance are reused.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	vecs := []**prometheus.CounterVec{
		&m.publishedTotal,
		&m.retriesTotal,
		&m.receivedTotal,
		&m.decodeFailures,
		&m.handlerErrors,
		&m.restartsTotal,
	}
	for _, vec := range vecs {
		if err := m.registerer.Register(*vec); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				*vec = existing
			}
		}
	}
	if err := m.registerer.Register(m.handlingSeconds); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return err
		}
		if existing, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
			m.handlingSeconds = existing
		}
	}

	m.registered = true
	return nil
}

func (m *Metrics) update(subject string, fn func(*SubjectMetrics)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sm, ok := m.subjects[subject]
	if !ok {
		sm = &SubjectMetrics{}
		m.subjects[subject] = sm
	}
	fn(sm)
	sm.LastUpdatedAt = time.Now()
}

func (m *Metrics) RecordPublished(subject string) {
	if m == nil {
		return
	}
	m.update(subject, func(sm *SubjectMetrics) { sm.Published++ })
	m.publishedTotal.WithLabelValues(subject).Inc()
}

func (m *Metrics) RecordPublishRetry(subject string) {
	if m == nil {
		return
	}
	m.update(subject, func(sm *SubjectMetrics) { sm.PublishRetries++ })
	m.retriesTotal.WithLabelValues(subject).Inc()
}

// RecordHandled records one received message and how long it took.
func (m *Metrics) RecordHandled(subject string, took time.Duration) {
	if m == nil {
		return
	}
	m.update(subject, func(sm *SubjectMetrics) { sm.Received++ })
	m.receivedTotal.WithLabelValues(subject).Inc()
	m.handlingSeconds.WithLabelValues(subject).Observe(took.Seconds())
}

func (m *Metrics) RecordDecodeFailure(subject string) {
	if m == nil {
		return
	}
	m.update(subject, func(sm *SubjectMetrics) { sm.DecodeFailures++ })
	m.decodeFailures.WithLabelValues(subject).Inc()
}

func (m *Metrics) RecordHandlerError(subject string) {
	if m == nil {
		return
	}
	m.update(subject, func(sm *SubjectMetrics) { sm.HandlerErrors++ })
	m.handlerErrors.WithLabelValues(subject).Inc()
}

func (m *Metrics) RecordRestart(subject string) {
	if m == nil {
		return
	}
	m.update(subject, func(sm *SubjectMetrics) { sm.Restarts++ })
	m.restartsTotal.WithLabelValues(subject).Inc()
}

// Subject returns a copy of the counters of one subject.
func (m *Metrics) Subject(subject string) (SubjectMetrics, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sm, ok := m.subjects[subject]
	if !ok {
		return SubjectMetrics{}, false
	}
	return *sm, true
}

// GetSnapshot returns a copy of every subject's counters.
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := Snapshot{
		Subjects:    make(map[string]SubjectMetrics, len(m.subjects)),
		CollectedAt: time.Now(),
	}
	for subject, sm := range m.subjects {
		snapshot.Subjects[subject] = *sm
	}
	return snapshot
}
