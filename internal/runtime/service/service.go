package service

import (
	"fmt"
	"sort"

	jsoncodec "github.com/drblury/nodeflow/internal/runtime/jsoncodec"
)

// ActionCallback handles a request. A nil payload means "no payload"; a
// non-nil error is sent back to the caller as a failed response.
type ActionCallback func(ctx Context) ([]byte, error)

// EventCallback consumes an event.
type EventCallback func(ctx Context)

// Action pairs an action name with its callback.
type Action struct {
	name     string
	callback ActionCallback
}

// NewAction creates an action registration.
func NewAction(name string, callback ActionCallback) Action {
	return Action{name: name, callback: callback}
}

// Event pairs an event name with its callback.
type Event struct {
	name     string
	callback EventCallback
}

// NewEvent creates an event registration.
func NewEvent(name string, callback EventCallback) Event {
	return Event{name: name, callback: callback}
}

// Service is the local registration record of one service. Build it with
// New and the chained Version/Action/Event calls before the broker starts.
// Registering the same action or event name twice keeps the last callback.
type Service struct {
	name    string
	version *int32
	actions map[string]ActionCallback
	events  map[string]EventCallback
}

// New starts building a service called name.
func New(name string) *Service {
	return &Service{
		name:    name,
		actions: make(map[string]ActionCallback),
		events:  make(map[string]EventCallback),
	}
}

// Version sets the service version.
func (s *Service) Version(version int32) *Service {
	s.version = &version
	return s
}

// Action registers an action callback.
func (s *Service) Action(action Action) *Service {
	s.actions[action.name] = action.callback
	return s
}

// Event registers an event callback.
func (s *Service) Event(event Event) *Service {
	s.events[event.name] = event.callback
	return s
}

// Name returns the service name.
func (s *Service) Name() string { return s.name }

// VersionNumber returns the version and whether one was set.
func (s *Service) VersionNumber() (int32, bool) {
	if s.version == nil {
		return 0, false
	}
	return *s.version, true
}

// FullName is "v<version>.<name>" for versioned services and "<name>" otherwise.
func (s *Service) FullName() string {
	if s.version == nil {
		return s.name
	}
	return fmt.Sprintf("v%d.%s", *s.version, s.name)
}

// FullActionName qualifies an action name with the service full name.
func (s *Service) FullActionName(action string) string {
	return s.FullName() + "." + action
}

// FindAction looks up an action by its short name.
func (s *Service) FindAction(name string) (ActionCallback, bool) {
	cb, ok := s.actions[name]
	return cb, ok
}

// FindEvent looks up an event callback by event name.
func (s *Service) FindEvent(name string) (EventCallback, bool) {
	cb, ok := s.events[name]
	return cb, ok
}

// ActionNames returns the registered action names in sorted order.
func (s *Service) ActionNames() []string {
	return sortedKeys(s.actions)
}

// EventNames returns the registered event names in sorted order.
func (s *Service) EventNames() []string {
	return sortedKeys(s.events)
}

// Clone returns an independent copy, so later builder calls on s do not
// affect a running broker.
func (s *Service) Clone() *Service {
	out := New(s.name)
	if s.version != nil {
		v := *s.version
		out.version = &v
	}
	for k, v := range s.actions {
		out.actions[k] = v
	}
	for k, v := range s.events {
		out.events[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Schema is the wire form of a service inside INFO packets.
type Schema struct {
	Name     string                  `json:"name"`
	Version  *int32                  `json:"version"`
	FullName string                  `json:"fullName"`
	Settings map[string]any          `json:"settings"`
	Metadata map[string]any          `json:"metadata"`
	Actions  map[string]ActionSchema `json:"actions"`
	Events   map[string]EventSchema  `json:"events"`
}

// ActionSchema describes one action of a Schema.
type ActionSchema struct {
	Name    string `json:"name"`
	RawName string `json:"rawName"`
}

// EventSchema describes one event subscription of a Schema.
type EventSchema struct {
	Name string `json:"name"`
}

// Schema returns the wire description of s.
func (s *Service) Schema() Schema {
	schema := Schema{
		Name:     s.name,
		Version:  s.version,
		FullName: s.FullName(),
		Settings: map[string]any{},
		Metadata: map[string]any{},
		Actions:  make(map[string]ActionSchema, len(s.actions)),
		Events:   make(map[string]EventSchema, len(s.events)),
	}
	for name := range s.actions {
		full := s.FullActionName(name)
		schema.Actions[full] = ActionSchema{Name: full, RawName: name}
	}
	for name := range s.events {
		schema.Events[name] = EventSchema{Name: name}
	}
	return schema
}

// MarshalJSON encodes the service as its Schema.
func (s *Service) MarshalJSON() ([]byte, error) {
	return jsoncodec.Marshal(s.Schema())
}
