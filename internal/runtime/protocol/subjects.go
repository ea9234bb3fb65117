package protocol

import "strings"

// Kind names one protocol message family. Its string form is the subject
// segment used on the bus.
type Kind string

const (
	KindEvent      Kind = "EVENT"
	KindRequest    Kind = "REQ"
	KindResponse   Kind = "RES"
	KindDiscover   Kind = "DISCOVER"
	KindInfo       Kind = "INFO"
	KindHeartbeat  Kind = "HEARTBEAT"
	KindPing       Kind = "PING"
	KindPong       Kind = "PONG"
	KindDisconnect Kind = "DISCONNECT"
)

// Version is the protocol version carried in every packet.
const Version = "4"

const subjectRoot = "MOL"

// Channel is a subscribed subject: a kind plus whether it is addressed to
// this node only.
type Channel struct {
	Kind     Kind
	Targeted bool
}

// Name is a stable worker-friendly name such as "PING" or "PING.node".
func (c Channel) Name() string {
	if c.Targeted {
		return string(c.Kind) + ".node"
	}
	return string(c.Kind)
}

// Subject resolves the channel for a namespace and local node id.
func (c Channel) Subject(namespace, nodeID string) string {
	if c.Targeted {
		return Subject(c.Kind, namespace, nodeID)
	}
	return Subject(c.Kind, namespace, "")
}

// Channels lists every subject a node listens on, one worker each.
func Channels() []Channel {
	return []Channel{
		{Kind: KindEvent, Targeted: true},
		{Kind: KindRequest, Targeted: true},
		{Kind: KindResponse, Targeted: true},
		{Kind: KindDiscover},
		{Kind: KindDiscover, Targeted: true},
		{Kind: KindInfo},
		{Kind: KindInfo, Targeted: true},
		{Kind: KindHeartbeat},
		{Kind: KindPing},
		{Kind: KindPing, Targeted: true},
		{Kind: KindPong, Targeted: true},
		{Kind: KindDisconnect},
	}
}

// Prefix returns "MOL" or "MOL-<namespace>".
func Prefix(namespace string) string {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		return subjectRoot
	}
	return subjectRoot + "-" + namespace
}

// Subject builds "<prefix>.<KIND>" or, with a node id, "<prefix>.<KIND>.<nodeID>".
func Subject(kind Kind, namespace, nodeID string) string {
	subject := Prefix(namespace) + "." + string(kind)
	if nodeID != "" {
		subject += "." + nodeID
	}
	return subject
}
