package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	errspkg "github.com/drblury/nodeflow/internal/runtime/errors"
	idspkg "github.com/drblury/nodeflow/internal/runtime/ids"
	"github.com/drblury/nodeflow/internal/runtime/service"
)

// Header carries the fields shared by every packet.
type Header struct {
	Ver    string `json:"ver"`
	Sender string `json:"sender"`
}

// PacketHeader exposes the header of any packet embedding it.
func (h Header) PacketHeader() Header { return h }

// Validate rejects packets without a sender.
func (h Header) Validate() error {
	if h.Sender == "" {
		return fmt.Errorf("packet sender is empty")
	}
	return nil
}

// Packet is implemented by every wire packet.
type Packet interface {
	PacketHeader() Header
}

func newHeader(sender string) Header {
	return Header{Ver: Version, Sender: sender}
}

// NowMillis returns the wall clock in Unix milliseconds, the unit used by
// PING/PONG timestamps.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

type PingPacket struct {
	Header
	ID   string `json:"id"`
	Time int64  `json:"time"`
}

// NewPing creates a ping stamped with the current time.
func NewPing(sender string) PingPacket {
	return PingPacket{Header: newHeader(sender), ID: idspkg.CreateULID(), Time: NowMillis()}
}

// PongPacket acknowledges a ping. Arrived is when the ping reached the
// responding node.
type PongPacket struct {
	Header
	ID      string `json:"id"`
	Time    int64  `json:"time"`
	Arrived int64  `json:"arrived"`
}

// Pong answers ping on behalf of sender.
func (p PingPacket) Pong(sender string, arrived int64) PongPacket {
	return PongPacket{Header: newHeader(sender), ID: p.ID, Time: p.Time, Arrived: arrived}
}

type HeartbeatPacket struct {
	Header
	CPU float64 `json:"cpu"`
}

func NewHeartbeat(sender string, cpu float64) HeartbeatPacket {
	return HeartbeatPacket{Header: newHeader(sender), CPU: cpu}
}

type DiscoverPacket struct {
	Header
}

func NewDiscover(sender string) DiscoverPacket {
	return DiscoverPacket{Header: newHeader(sender)}
}

type DisconnectPacket struct {
	Header
}

func NewDisconnect(sender string) DisconnectPacket {
	return DisconnectPacket{Header: newHeader(sender)}
}

// ClientInfo identifies the implementation behind a node.
type ClientInfo struct {
	Type        string `json:"type"`
	Version     string `json:"version"`
	LangVersion string `json:"langVersion"`
}

// InfoPacket describes a node and the services it hosts.
type InfoPacket struct {
	Header
	Services   []service.Schema `json:"services"`
	Config     map[string]any   `json:"config"`
	InstanceID string           `json:"instanceID"`
	IPList     []string         `json:"ipList"`
	Hostname   string           `json:"hostname"`
	Client     ClientInfo       `json:"client"`
	Seq        int64            `json:"seq"`
	Metadata   map[string]any   `json:"metadata"`
}

// RequestPacket calls an action on a remote node.
type RequestPacket struct {
	Header
	ID        string          `json:"id"`
	Action    string          `json:"action"`
	Params    json.RawMessage `json:"params"`
	Meta      json.RawMessage `json:"meta"`
	Timeout   float64         `json:"timeout"`
	Level     int32           `json:"level"`
	Tracing   *bool           `json:"tracing"`
	ParentID  string          `json:"parentID"`
	RequestID string          `json:"requestID"`
	Caller    string          `json:"caller"`
	Stream    *bool           `json:"stream,omitempty"`
	Seq       *int64          `json:"seq,omitempty"`
}

// ErrorPayload is the error carried by a failed response.
type ErrorPayload struct {
	Name    string          `json:"name"`
	Message string          `json:"message"`
	Code    int             `json:"code"`
	Type    string          `json:"type"`
	NodeID  string          `json:"nodeID"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// RemoteError converts the payload to the error returned to callers.
func (e *ErrorPayload) RemoteError() *errspkg.RemoteError {
	return &errspkg.RemoteError{Name: e.Name, Message: e.Message, Code: e.Code, Type: e.Type, NodeID: e.NodeID}
}

// ResponsePacket answers a RequestPacket with the same ID.
type ResponsePacket struct {
	Header
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorPayload   `json:"error,omitempty"`
	Meta    json.RawMessage `json:"meta"`
	Stream  *bool           `json:"stream,omitempty"`
	Seq     *int64          `json:"seq,omitempty"`
}

// EventPacket delivers an emitted or broadcast event.
type EventPacket struct {
	Header
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Meta      json.RawMessage `json:"meta"`
	Level     int32           `json:"level"`
	Tracing   *bool           `json:"tracing"`
	ParentID  string          `json:"parentID"`
	RequestID string          `json:"requestID"`
	Caller    string          `json:"caller"`
	NeedAck   *bool           `json:"needAck"`
	Broadcast bool            `json:"broadcast"`
	Groups    []string        `json:"groups"`
}
