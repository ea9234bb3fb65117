package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrConfigRequired      = sterrors.New("nodeflow: configuration is required")
	ErrLoggerRequired      = sterrors.New("nodeflow: logger is required")
	ErrNodeIDRequired      = sterrors.New("nodeflow: node id is required")
	ErrServiceRequired     = sterrors.New("nodeflow: service is required")
	ErrServiceNameRequired = sterrors.New("nodeflow: service name is required")
	ErrDuplicateService    = sterrors.New("nodeflow: service already registered")
	ErrBrokerStarted       = sterrors.New("nodeflow: broker already started")
	ErrBrokerNotStarted    = sterrors.New("nodeflow: broker is not started")
	ErrActionNotFound      = sterrors.New("nodeflow: action not found")
	ErrInvalidEventType    = sterrors.New("nodeflow: invalid event type")
	ErrInvalidContext      = sterrors.New("nodeflow: invalid context")
	ErrConnectionClosed    = sterrors.New("nodeflow: connection is closed")
	ErrSubjectRequired     = sterrors.New("nodeflow: subject is required")
)

// ConfigValidationError wraps the joined validation failures of a Config.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "nodeflow: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error { return e.Err }

// NewConfigValidationError returns nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}

// ConnectError is returned when the bus is unreachable or rejects the
// credentials. It is fatal: startup aborts.
type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("nodeflow: unable to connect to %s: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// SubscribeError is returned when binding a subject fails. The node must not
// start partially bound, so it is fatal for startup as well.
type SubscribeError struct {
	Subject string
	Err     error
}

func (e *SubscribeError) Error() string {
	return fmt.Sprintf("nodeflow: unable to subscribe to channel (%s): %v", e.Subject, e.Err)
}

func (e *SubscribeError) Unwrap() error { return e.Err }

// DecodeError marks a single inbound message that could not be decoded. It
// never leaves the worker that produced it.
type DecodeError struct {
	Subject string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("nodeflow: unable to decode message on %s: %v", e.Subject, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// WorkerError is what a channel worker reports to its supervisor when the
// protocol handler fails or panics.
type WorkerError struct {
	WorkerID string
	Err      error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("nodeflow: worker %s: %v", e.WorkerID, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }

// RemoteError is the failure carried back in a RESPONSE packet.
type RemoteError struct {
	Name    string
	Message string
	Code    int
	Type    string
	NodeID  string
}

func (e *RemoteError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("nodeflow: remote %s: %s", e.Name, e.Message)
	}
	return fmt.Sprintf("nodeflow: remote %s from %s: %s", e.Name, e.NodeID, e.Message)
}
