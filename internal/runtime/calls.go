package runtime

import (
	"context"
	"strings"
	"time"

	errspkg "github.com/drblury/nodeflow/internal/runtime/errors"
	"github.com/drblury/nodeflow/internal/runtime/protocol"
	"github.com/drblury/nodeflow/internal/runtime/service"
)

// Call invokes action on nodeID and waits for its RES packet. A failed
// response comes back as *errors.RemoteError. A null result returns nil.
// When ctx has no deadline, Config.RequestTimeout bounds the wait.
func (b *Broker) Call(ctx context.Context, nodeID, action string, params, meta []byte) ([]byte, error) {
	return b.call(ctx, nodeID, service.NewActionContext(protocol.Prefix(b.Conf.Namespace), b.NodeID(), action, params, meta))
}

// CallFrom invokes action as a nested call of parent, keeping its request
// chain and raising its level by one. A node serves its REQ subject with a
// single worker, so an action calling back into its own node blocks that
// worker and the nested call fails once the request timeout expires.
func (b *Broker) CallFrom(ctx context.Context, parent service.Context, nodeID, action string, params []byte) ([]byte, error) {
	caller := ""
	if name := parent.ActionName(); name != "" {
		caller = serviceOf(name)
	}
	return b.call(ctx, nodeID, parent.Child(b.NodeID(), caller, action, params))
}

func (b *Broker) call(ctx context.Context, nodeID string, callCtx service.Context) ([]byte, error) {
	if _, err := b.connection(); err != nil {
		return nil, err
	}
	if _, ok := ctx.Deadline(); !ok && b.Conf.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Conf.RequestTimeout)
		defer cancel()
	}

	wait, release := b.pending.Register(callCtx.ID)
	defer release()

	timeout := 0.0
	if deadline, ok := ctx.Deadline(); ok {
		timeout = float64(time.Until(deadline).Milliseconds())
	}
	req := protocol.NewRequest(b.NodeID(), callCtx, timeout)
	if err := b.publish(ctx, protocol.KindRequest, nodeID, req); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-wait:
		if !res.Success {
			if res.Error == nil {
				return nil, &errspkg.RemoteError{Name: "Error", Message: "request failed", Code: 500, NodeID: nodeID}
			}
			return nil, res.Error.RemoteError()
		}
		if len(res.Data) == 0 || string(res.Data) == "null" {
			return nil, nil
		}
		return []byte(res.Data), nil
	}
}

// Emit sends event to nodeID. Empty groups reach every matching service on
// that node; otherwise only services named in groups run.
func (b *Broker) Emit(ctx context.Context, nodeID, event string, data []byte, groups []string) error {
	return b.sendEvent(ctx, nodeID, event, service.EventEmit, data, groups)
}

// Broadcast sends event to nodeID flagged as a broadcast.
func (b *Broker) Broadcast(ctx context.Context, nodeID, event string, data []byte) error {
	return b.sendEvent(ctx, nodeID, event, service.EventBroadcast, data, nil)
}

func (b *Broker) sendEvent(ctx context.Context, nodeID, event string, eventType service.EventType, data []byte, groups []string) error {
	if _, err := b.connection(); err != nil {
		return err
	}
	evCtx := service.NewEventContext(protocol.Prefix(b.Conf.Namespace), b.NodeID(), event, eventType, groups, data, nil)
	return b.publish(ctx, protocol.KindEvent, nodeID, protocol.NewEvent(b.NodeID(), evCtx))
}

// Ping sends a PING to nodeID, or to every node when nodeID is empty.
func (b *Broker) Ping(ctx context.Context, nodeID string) error {
	return b.publish(ctx, protocol.KindPing, nodeID, protocol.NewPing(b.NodeID()))
}

// serviceOf strips the action segment from a full action name.
func serviceOf(action string) string {
	if i := strings.LastIndex(action, "."); i > 0 {
		return action[:i]
	}
	return action
}
