package channel

import (
	"sort"
	"sync"
	"time"
)

// State is where a worker is in its lifecycle.
type State string

const (
	StateCreated    State = "created"
	StateSubscribed State = "subscribed"
	StateListening  State = "listening"
	StateHandling   State = "handling"
	StateStopped    State = "stopped"
)

// Status is the externally visible record of one worker.
type Status struct {
	WorkerID       string    `json:"workerID"`
	Subject        string    `json:"subject"`
	State          State     `json:"state"`
	Received       uint64    `json:"received"`
	DecodeFailures uint64    `json:"decodeFailures"`
	HandlerErrors  uint64    `json:"handlerErrors"`
	Restarts       uint64    `json:"restarts"`
	LastError      string    `json:"lastError,omitempty"`
	LastHandledAt  time.Time `json:"lastHandledAt"`
}

// ErrorHandler receives worker failures. Returning true asks the worker to
// stop listening.
type ErrorHandler func(workerID string, err error) bool

// Registry is the supervisor-owned index of workers. Workers only keep their
// id and report through it. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]*Status
	onError ErrorHandler
}

// NewRegistry creates a registry forwarding reports to onError.
func NewRegistry(onError ErrorHandler) *Registry {
	return &Registry{
		workers: make(map[string]*Status),
		onError: onError,
	}
}

func (r *Registry) add(id, subject string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[id] = &Status{WorkerID: id, Subject: subject, State: StateCreated}
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workers, id)
}

func (r *Registry) update(id string, fn func(*Status)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if status, ok := r.workers[id]; ok {
		fn(status)
	}
}

func (r *Registry) setState(id string, state State) {
	r.update(id, func(s *Status) { s.State = state })
}

func (r *Registry) received(id string) {
	r.update(id, func(s *Status) {
		s.Received++
		s.LastHandledAt = time.Now()
	})
}

func (r *Registry) decodeFailed(id string, err error) {
	r.update(id, func(s *Status) {
		s.DecodeFailures++
		s.LastError = err.Error()
	})
}

func (r *Registry) restarted(id string) {
	r.update(id, func(s *Status) { s.Restarts++ })
}

// Report records err against the worker and hands it to the error handler.
// The result tells the worker whether to stop.
func (r *Registry) Report(id string, err error) bool {
	r.update(id, func(s *Status) {
		s.HandlerErrors++
		s.LastError = err.Error()
	})
	if r.onError == nil {
		return false
	}
	return r.onError(id, err)
}

// Lookup returns a copy of the worker's status.
func (r *Registry) Lookup(id string) (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	status, ok := r.workers[id]
	if !ok {
		return Status{}, false
	}
	return *status, true
}

// Snapshot returns every worker status ordered by worker id.
func (r *Registry) Snapshot() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, 0, len(r.workers))
	for _, status := range r.workers {
		out = append(out, *status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkerID < out[j].WorkerID })
	return out
}
