package nodeflow

import (
	runtimepkg "github.com/drblury/nodeflow/internal/runtime"
	"github.com/drblury/nodeflow/internal/runtime/channel"
	configpkg "github.com/drblury/nodeflow/internal/runtime/config"
	errspkg "github.com/drblury/nodeflow/internal/runtime/errors"
	idspkg "github.com/drblury/nodeflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/nodeflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/nodeflow/internal/runtime/logging"
	"github.com/drblury/nodeflow/internal/runtime/protocol"
	"github.com/drblury/nodeflow/internal/runtime/service"
	transportpkg "github.com/drblury/nodeflow/internal/runtime/transport"
	bus "github.com/drblury/nodeflow/transport"
)

type (
	Config               = configpkg.Config
	Broker               = runtimepkg.Broker
	BrokerDependencies   = runtimepkg.BrokerDependencies
	NodeHooks            = runtimepkg.NodeHooks
	Observer             = channel.Observer
	WorkerStatus         = channel.Status
	WorkerState          = channel.State
	Transport            = transportpkg.Transport
	TransportFactory     = transportpkg.Factory
	TransportFactoryFunc = transportpkg.FactoryFunc

	Service        = service.Service
	Context        = service.Context
	EventType      = service.EventType
	ActionCallback = service.ActionCallback
	EventCallback  = service.EventCallback
	ServiceSchema  = service.Schema

	InfoPacket       = protocol.InfoPacket
	HeartbeatPacket  = protocol.HeartbeatPacket
	DisconnectPacket = protocol.DisconnectPacket

	LogFields                 = loggingpkg.LogFields
	ServiceLogger             = loggingpkg.ServiceLogger
	EntryLogger               = loggingpkg.EntryLogger
	EntryLoggerAdapter[T any] = loggingpkg.EntryLoggerAdapter[T]

	ConfigValidationError = errspkg.ConfigValidationError
	ConnectError          = errspkg.ConnectError
	SubscribeError        = errspkg.SubscribeError
	DecodeError           = errspkg.DecodeError
	WorkerError           = errspkg.WorkerError
	RemoteError           = errspkg.RemoteError

	TransportBuilder      = bus.Builder
	TransportConfig       = bus.Config
	TransportRegistry     = bus.Registry
	TransportCapabilities = bus.Capabilities
)

const (
	EventEmit      = service.EventEmit
	EventBroadcast = service.EventBroadcast

	RestartNever       = configpkg.RestartNever
	RestartResubscribe = configpkg.RestartResubscribe
	SerializerJSON     = configpkg.SerializerJSON
	SerializerProto    = configpkg.SerializerProto

	ProtocolVersion = protocol.Version
)

var (
	NewBroker      = runtimepkg.NewBroker
	LoggingHooks   = runtimepkg.LoggingHooks
	ValidateConfig = configpkg.ValidateConfig
	LoadConfig     = configpkg.Load
	ConfigFromEnv  = configpkg.FromEnv

	NewService = service.New
	NewAction  = service.NewAction
	NewEvent   = service.NewEvent

	NewActionContext = service.NewActionContext
	NewEventContext  = service.NewEventContext

	Subject = protocol.Subject
	Prefix  = protocol.Prefix

	DefaultTransportFactory  = transportpkg.DefaultFactory
	DefaultTransportRegistry = bus.DefaultRegistry
	RegisterTransport        = bus.Register
	BuildTransport           = bus.Build
	GetCapabilities          = bus.GetCapabilities

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode
	Valid         = jsoncodec.Valid

	ErrConfigRequired      = errspkg.ErrConfigRequired
	ErrLoggerRequired      = errspkg.ErrLoggerRequired
	ErrNodeIDRequired      = errspkg.ErrNodeIDRequired
	ErrServiceRequired     = errspkg.ErrServiceRequired
	ErrServiceNameRequired = errspkg.ErrServiceNameRequired
	ErrDuplicateService    = errspkg.ErrDuplicateService
	ErrBrokerStarted       = errspkg.ErrBrokerStarted
	ErrBrokerNotStarted    = errspkg.ErrBrokerNotStarted
	ErrActionNotFound      = errspkg.ErrActionNotFound
	ErrInvalidEventType    = errspkg.ErrInvalidEventType
	ErrInvalidContext      = errspkg.ErrInvalidContext
	ErrConnectionClosed    = errspkg.ErrConnectionClosed

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewTextServiceLogger      = loggingpkg.NewTextServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger

	CreateULID = idspkg.CreateULID
)

func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	return loggingpkg.NewEntryServiceLogger(entry)
}
