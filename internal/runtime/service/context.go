package service

import (
	"fmt"

	errspkg "github.com/drblury/nodeflow/internal/runtime/errors"
	idspkg "github.com/drblury/nodeflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/nodeflow/internal/runtime/jsoncodec"
)

// EventType tells whether an event goes to one member of each subscriber
// group (emit) or to every subscriber (broadcast).
type EventType string

const (
	EventEmit      EventType = "emit"
	EventBroadcast EventType = "broadcast"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	return t == EventEmit || t == EventBroadcast
}

// UnmarshalJSON rejects anything but the two wire values.
func (t *EventType) UnmarshalJSON(data []byte) error {
	var raw string
	if err := jsoncodec.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", errspkg.ErrInvalidEventType, err)
	}
	value := EventType(raw)
	if !value.Valid() {
		return fmt.Errorf("%w: %q", errspkg.ErrInvalidEventType, raw)
	}
	*t = value
	return nil
}

// Context is the RPC/event envelope handed to action and event callbacks.
// Params, Meta and Locals are opaque, independently encoded payloads.
type Context struct {
	ID     string  `json:"id"`
	Broker string  `json:"broker"`
	NodeID string  `json:"nodeID"`
	Action *string `json:"action,omitempty"`

	Event       *string    `json:"event,omitempty"`
	EventName   *string    `json:"eventName,omitempty"`
	EventType   *EventType `json:"eventType,omitempty"`
	EventGroups []string   `json:"eventGroups"`

	Caller    string `json:"caller"`
	RequestID string `json:"requestID"`
	ParentID  string `json:"parentID"`

	Params []byte `json:"params"`
	Meta   []byte `json:"meta"`
	Locals []byte `json:"locals"`

	Level int32 `json:"level"`
}

// NewActionContext builds a root context for calling action on behalf of
// nodeID.
func NewActionContext(broker, nodeID, action string, params, meta []byte) Context {
	id := idspkg.CreateULID()
	return Context{
		ID:        id,
		Broker:    broker,
		NodeID:    nodeID,
		Action:    &action,
		RequestID: id,
		Params:    params,
		Meta:      meta,
		Level:     1,
	}
}

// NewEventContext builds a root context for an emitted or broadcast event.
func NewEventContext(broker, nodeID, event string, eventType EventType, groups []string, data, meta []byte) Context {
	id := idspkg.CreateULID()
	name := event
	return Context{
		ID:          id,
		Broker:      broker,
		NodeID:      nodeID,
		Event:       &event,
		EventName:   &name,
		EventType:   &eventType,
		EventGroups: groups,
		RequestID:   id,
		Params:      data,
		Meta:        meta,
		Level:       1,
	}
}

// ActionName returns the action name or "" for event contexts.
func (c Context) ActionName() string {
	if c.Action == nil {
		return ""
	}
	return *c.Action
}

// EventTopic returns the event name or "" for action contexts.
func (c Context) EventTopic() string {
	if c.Event == nil {
		return ""
	}
	return *c.Event
}

// Child derives a nested call context. The chain keeps its request id, the
// parent becomes c and the level grows by one.
func (c Context) Child(nodeID, caller, action string, params []byte) Context {
	return Context{
		ID:        idspkg.CreateULID(),
		Broker:    c.Broker,
		NodeID:    nodeID,
		Action:    &action,
		Caller:    caller,
		RequestID: c.RequestID,
		ParentID:  c.ID,
		Params:    params,
		Meta:      c.Meta,
		Locals:    c.Locals,
		Level:     c.Level + 1,
	}
}

// Validate enforces the envelope invariants.
func (c Context) Validate() error {
	switch {
	case c.ID == "":
		return fmt.Errorf("%w: id is empty", errspkg.ErrInvalidContext)
	case c.NodeID == "":
		return fmt.Errorf("%w: nodeID is empty", errspkg.ErrInvalidContext)
	case c.RequestID == "":
		return fmt.Errorf("%w: requestID is empty", errspkg.ErrInvalidContext)
	case c.Level < 1:
		return fmt.Errorf("%w: level %d below 1", errspkg.ErrInvalidContext, c.Level)
	case (c.Action == nil) == (c.Event == nil):
		return fmt.Errorf("%w: exactly one of action or event must be set", errspkg.ErrInvalidContext)
	case c.EventType != nil && !c.EventType.Valid():
		return fmt.Errorf("%w: %q", errspkg.ErrInvalidEventType, *c.EventType)
	}
	return nil
}
