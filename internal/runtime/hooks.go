package runtime

import (
	"context"

	"github.com/drblury/nodeflow/internal/runtime/channel"
	loggingpkg "github.com/drblury/nodeflow/internal/runtime/logging"
	"github.com/drblury/nodeflow/internal/runtime/protocol"
)

// NodeHooks are optional callbacks for packets describing other nodes.
// All hooks are optional: nil hooks are simply not called. NodeHooks
// satisfies channel.Observer.
type NodeHooks struct {
	// Info is called for every INFO packet, broadcast or addressed to this node.
	Info func(ctx context.Context, info protocol.InfoPacket)
	// Heartbeat is called for every HEARTBEAT of another node.
	Heartbeat func(ctx context.Context, heartbeat protocol.HeartbeatPacket)
	// Disconnect is called when another node announces it is leaving.
	Disconnect func(ctx context.Context, disconnect protocol.DisconnectPacket)
}

var _ channel.Observer = NodeHooks{}

func (h NodeHooks) OnInfo(ctx context.Context, info protocol.InfoPacket) {
	if h.Info != nil {
		h.Info(ctx, info)
	}
}

func (h NodeHooks) OnHeartbeat(ctx context.Context, heartbeat protocol.HeartbeatPacket) {
	if h.Heartbeat != nil {
		h.Heartbeat(ctx, heartbeat)
	}
}

func (h NodeHooks) OnDisconnect(ctx context.Context, disconnect protocol.DisconnectPacket) {
	if h.Disconnect != nil {
		h.Disconnect(ctx, disconnect)
	}
}

// Merge combines two NodeHooks. The hooks from other run after those of h.
func (h NodeHooks) Merge(other NodeHooks) NodeHooks {
	return NodeHooks{
		Info:       chain(h.Info, other.Info),
		Heartbeat:  chain(h.Heartbeat, other.Heartbeat),
		Disconnect: chain(h.Disconnect, other.Disconnect),
	}
}

func chain[P any](a, b func(context.Context, P)) func(context.Context, P) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, packet P) {
		a(ctx, packet)
		b(ctx, packet)
	}
}

// LoggingHooks returns hooks that log what other nodes announce.
func LoggingHooks(logger loggingpkg.ServiceLogger) NodeHooks {
	return NodeHooks{
		Info: func(_ context.Context, info protocol.InfoPacket) {
			logger.Info("Node info received", loggingpkg.LogFields{
				"sender":   info.Sender,
				"services": len(info.Services),
				"hostname": info.Hostname,
				"seq":      info.Seq,
			})
		},
		Heartbeat: func(_ context.Context, hb protocol.HeartbeatPacket) {
			logger.Debug("Node heartbeat received", loggingpkg.LogFields{
				"sender": hb.Sender,
				"cpu":    hb.CPU,
			})
		},
		Disconnect: func(_ context.Context, d protocol.DisconnectPacket) {
			logger.Info("Node disconnected", loggingpkg.LogFields{"sender": d.Sender})
		},
	}
}
