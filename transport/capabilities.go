package transport

// Capabilities describes how a backend delivers protocol packets.
type Capabilities struct {
	// Name is the registered backend name.
	Name string

	// SupportsBroadcast means every subscribed node receives each message
	// published to a broadcast subject.
	SupportsBroadcast bool

	// SupportsOrdering means messages on one subject arrive in publish order.
	SupportsOrdering bool

	// SupportsAck means the backend waits for an explicit acknowledgement
	// before delivering the next message to a subscriber.
	SupportsAck bool

	// Persistent means messages survive while no subscriber is bound.
	Persistent bool

	// RawSubjects means subjects are used verbatim. When false the backend
	// rewrites them (see the aws backend).
	RawSubjects bool

	// MaxMessageSize is the maximum payload in bytes (0 = unlimited/unknown).
	MaxMessageSize int64
}

// SupportsProtocol reports whether the backend can carry the full packet
// family: broadcast subjects and verbatim targeted subjects.
func (c Capabilities) SupportsProtocol() bool {
	return c.SupportsBroadcast
}

var (
	ChannelCapabilities = Capabilities{
		Name:              "channel",
		SupportsBroadcast: true,
		SupportsOrdering:  true,
		SupportsAck:       true,
		RawSubjects:       true,
	}

	NATSCapabilities = Capabilities{
		Name:              "nats",
		SupportsBroadcast: true,
		RawSubjects:       true,
		MaxMessageSize:    1048576, // Default 1MB
	}

	RabbitMQCapabilities = Capabilities{
		Name:              "rabbitmq",
		SupportsBroadcast: true,
		SupportsOrdering:  true,
		SupportsAck:       true,
		RawSubjects:       true,
	}

	KafkaCapabilities = Capabilities{
		Name:              "kafka",
		SupportsBroadcast: true,
		SupportsOrdering:  true,
		SupportsAck:       true,
		Persistent:        true,
		RawSubjects:       true,
		MaxMessageSize:    1048576, // Default 1MB
	}

	AWSCapabilities = Capabilities{
		Name:              "aws",
		SupportsBroadcast: true,
		SupportsAck:       true,
		Persistent:        true,
		MaxMessageSize:    262144, // 256KB
	}
)

// GetCapabilities returns the capabilities registered for a backend name.
// Unknown names get a zero Capabilities carrying only the name.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
