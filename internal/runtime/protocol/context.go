package protocol

import (
	"encoding/json"

	idspkg "github.com/drblury/nodeflow/internal/runtime/ids"
	"github.com/drblury/nodeflow/internal/runtime/service"
)

// Context turns an inbound request into the envelope handed to an action.
// broker is the subject prefix the packet arrived on.
func (p RequestPacket) Context(broker string) service.Context {
	action := p.Action
	level := p.Level
	if level < 1 {
		level = 1
	}
	requestID := p.RequestID
	if requestID == "" {
		requestID = p.ID
	}
	return service.Context{
		ID:          p.ID,
		Broker:      broker,
		NodeID:      p.Sender,
		Action:      &action,
		EventGroups: []string{},
		Caller:      p.Caller,
		RequestID:   requestID,
		ParentID:    p.ParentID,
		Params:      rawBytes(p.Params),
		Meta:        rawBytes(p.Meta),
		Level:       level,
	}
}

// Context turns an inbound event into the envelope handed to event callbacks.
func (p EventPacket) Context(broker string) service.Context {
	event := p.Event
	name := p.Event
	eventType := service.EventEmit
	if p.Broadcast {
		eventType = service.EventBroadcast
	}
	groups := p.Groups
	if groups == nil {
		groups = []string{}
	}
	level := p.Level
	if level < 1 {
		level = 1
	}
	id := p.ID
	if id == "" {
		id = idspkg.CreateULID()
	}
	requestID := p.RequestID
	if requestID == "" {
		requestID = id
	}
	return service.Context{
		ID:          id,
		Broker:      broker,
		NodeID:      p.Sender,
		Event:       &event,
		EventName:   &name,
		EventType:   &eventType,
		EventGroups: groups,
		Caller:      p.Caller,
		RequestID:   requestID,
		ParentID:    p.ParentID,
		Params:      rawBytes(p.Data),
		Meta:        rawBytes(p.Meta),
		Level:       level,
	}
}

// NewRequest builds the packet sent for an outbound call described by ctx.
func NewRequest(sender string, ctx service.Context, timeout float64) RequestPacket {
	return RequestPacket{
		Header:    newHeader(sender),
		ID:        ctx.ID,
		Action:    ctx.ActionName(),
		Params:    rawJSON(ctx.Params),
		Meta:      rawJSON(ctx.Meta),
		Timeout:   timeout,
		Level:     ctx.Level,
		ParentID:  ctx.ParentID,
		RequestID: ctx.RequestID,
		Caller:    ctx.Caller,
	}
}

// NewEvent builds the packet sent for an outbound event described by ctx.
func NewEvent(sender string, ctx service.Context) EventPacket {
	broadcast := ctx.EventType != nil && *ctx.EventType == service.EventBroadcast
	return EventPacket{
		Header:    newHeader(sender),
		ID:        ctx.ID,
		Event:     ctx.EventTopic(),
		Data:      rawJSON(ctx.Params),
		Meta:      rawJSON(ctx.Meta),
		Level:     ctx.Level,
		ParentID:  ctx.ParentID,
		RequestID: ctx.RequestID,
		Caller:    ctx.Caller,
		Broadcast: broadcast,
		Groups:    ctx.EventGroups,
	}
}

// NewResponse answers request id with either data or err.
func NewResponse(sender, id string, data []byte, err *ErrorPayload) ResponsePacket {
	return ResponsePacket{
		Header:  newHeader(sender),
		ID:      id,
		Success: err == nil,
		Data:    rawJSON(data),
		Error:   err,
		Meta:    json.RawMessage("{}"),
	}
}

func rawBytes(raw json.RawMessage) []byte {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return []byte(raw)
}

// rawJSON maps an empty payload to JSON null so the packet stays valid.
func rawJSON(b []byte) json.RawMessage {
	if len(b) == 0 {
		return json.RawMessage("null")
	}
	return json.RawMessage(b)
}
