package channel

import (
	"context"
	"errors"
	"fmt"

	errspkg "github.com/drblury/nodeflow/internal/runtime/errors"
	jsoncodec "github.com/drblury/nodeflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/nodeflow/internal/runtime/logging"
	"github.com/drblury/nodeflow/internal/runtime/protocol"
	"github.com/drblury/nodeflow/internal/runtime/service"
)

// Observer is told about other nodes' INFO, HEARTBEAT and DISCONNECT
// packets. No remote registry is kept by the node itself.
type Observer interface {
	OnInfo(ctx context.Context, info protocol.InfoPacket)
	OnHeartbeat(ctx context.Context, heartbeat protocol.HeartbeatPacket)
	OnDisconnect(ctx context.Context, disconnect protocol.DisconnectPacket)
}

// handlers holds the protocol logic behind each subject.
type handlers struct {
	env      *env
	services *service.Catalog
	info     func() protocol.InfoPacket
	observer Observer
	pending  *Pending
}

// build creates the worker for ch with the handler matching its kind.
func (h *handlers) build(ctx context.Context, ch protocol.Channel) (runner, error) {
	switch ch.Kind {
	case protocol.KindEvent:
		return newWorker(ctx, h.env, ch, h.event)
	case protocol.KindRequest:
		return newWorker(ctx, h.env, ch, h.request)
	case protocol.KindResponse:
		return newWorker(ctx, h.env, ch, h.response)
	case protocol.KindDiscover:
		return newWorker(ctx, h.env, ch, h.discover)
	case protocol.KindInfo:
		return newWorker(ctx, h.env, ch, h.infoPacket)
	case protocol.KindHeartbeat:
		return newWorker(ctx, h.env, ch, h.heartbeat)
	case protocol.KindPing:
		return newWorker(ctx, h.env, ch, h.ping)
	case protocol.KindPong:
		return newWorker(ctx, h.env, ch, h.pong)
	case protocol.KindDisconnect:
		return newWorker(ctx, h.env, ch, h.disconnect)
	default:
		return nil, &errspkg.SubscribeError{
			Subject: ch.Subject(h.env.namespace, h.env.nodeID),
			Err:     fmt.Errorf("no handler for %s", ch.Kind),
		}
	}
}

// pong is inert: the liveness acknowledgement is only logged.
func (h *handlers) pong(_ context.Context, p protocol.PongPacket) error {
	h.env.logger.Debug("Received PONG", loggingpkg.LogFields{
		"sender":  p.Sender,
		"id":      p.ID,
		"time":    p.Time,
		"arrived": p.Arrived,
	})
	return nil
}

func (h *handlers) ping(ctx context.Context, p protocol.PingPacket) error {
	pong := p.Pong(h.env.nodeID, protocol.NowMillis())
	return h.env.publish(ctx, protocol.KindPong, p.Sender, pong)
}

func (h *handlers) discover(ctx context.Context, p protocol.DiscoverPacket) error {
	return h.env.publish(ctx, protocol.KindInfo, p.Sender, h.localInfo())
}

func (h *handlers) localInfo() protocol.InfoPacket {
	if h.info != nil {
		info := h.info()
		info.Ver = protocol.Version
		info.Sender = h.env.nodeID
		return info
	}
	return protocol.NewInfo(h.env.nodeID, h.env.nodeID, 1, h.services.Schemas())
}

func (h *handlers) infoPacket(ctx context.Context, p protocol.InfoPacket) error {
	if h.observer != nil {
		h.observer.OnInfo(ctx, p)
	}
	return nil
}

func (h *handlers) heartbeat(ctx context.Context, p protocol.HeartbeatPacket) error {
	if h.observer != nil {
		h.observer.OnHeartbeat(ctx, p)
	}
	return nil
}

func (h *handlers) disconnect(ctx context.Context, p protocol.DisconnectPacket) error {
	if h.observer != nil {
		h.observer.OnDisconnect(ctx, p)
	}
	return nil
}

func (h *handlers) response(_ context.Context, p protocol.ResponsePacket) error {
	if h.pending == nil || !h.pending.Resolve(p) {
		h.env.logger.Debug("Dropping response without pending call", loggingpkg.LogFields{"id": p.ID, "sender": p.Sender})
	}
	return nil
}

// request runs the local action and always answers the caller, even when
// the action is unknown or panics.
func (h *handlers) request(ctx context.Context, p protocol.RequestPacket) error {
	callCtx := p.Context(h.env.prefix())

	var (
		data       []byte
		errPayload *protocol.ErrorPayload
		panicErr   error
	)
	cb, ok := h.services.Action(p.Action)
	if !ok {
		errPayload = &protocol.ErrorPayload{
			Name:    "ServiceNotFoundError",
			Message: fmt.Sprintf("Service '%s' is not found.", p.Action),
			Code:    404,
			Type:    "SERVICE_NOT_FOUND",
			NodeID:  h.env.nodeID,
		}
	} else {
		var (
			err      error
			panicked bool
		)
		data, panicked, err = callAction(cb, callCtx)
		if panicked {
			panicErr = err
		}
		if err == nil && len(data) > 0 && !jsoncodec.Valid(data) {
			err = fmt.Errorf("action %s returned a payload that is not JSON", p.Action)
		}
		if err != nil {
			data = nil
			errPayload = h.errorPayload(err)
		}
	}

	res := protocol.NewResponse(h.env.nodeID, p.ID, data, errPayload)
	if err := h.env.publish(ctx, protocol.KindResponse, p.Sender, res); err != nil {
		return err
	}
	return panicErr
}

func callAction(cb service.ActionCallback, ctx service.Context) (data []byte, panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, panicked = nil, true
			err = fmt.Errorf("action %s panicked: %v", ctx.ActionName(), r)
		}
	}()
	data, err = cb(ctx)
	return data, false, err
}

func (h *handlers) errorPayload(err error) *protocol.ErrorPayload {
	var remote *errspkg.RemoteError
	if errors.As(err, &remote) {
		nodeID := remote.NodeID
		if nodeID == "" {
			nodeID = h.env.nodeID
		}
		return &protocol.ErrorPayload{Name: remote.Name, Message: remote.Message, Code: remote.Code, Type: remote.Type, NodeID: nodeID}
	}
	return &protocol.ErrorPayload{Name: "Error", Message: err.Error(), Code: 500, NodeID: h.env.nodeID}
}

// event calls every matching local callback. A panicking callback does not
// keep the others from running.
func (h *handlers) event(_ context.Context, p protocol.EventPacket) error {
	eventCtx := p.Context(h.env.prefix())
	callbacks := h.services.Events(p.Event, p.Groups)
	if len(callbacks) == 0 {
		h.env.logger.Debug("No local subscriber for event", loggingpkg.LogFields{"event": p.Event, "sender": p.Sender})
		return nil
	}
	var errs []error
	for _, cb := range callbacks {
		if err := callEvent(cb, eventCtx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func callEvent(cb service.EventCallback, ctx service.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event %s callback panicked: %v", ctx.EventTopic(), r)
		}
	}()
	cb(ctx)
	return nil
}
