package channel

import (
	"sync"

	"github.com/drblury/nodeflow/internal/runtime/protocol"
)

// Pending tracks outbound calls waiting for their RESPONSE packet.
type Pending struct {
	mu    sync.Mutex
	calls map[string]chan protocol.ResponsePacket
}

func NewPending() *Pending {
	return &Pending{calls: make(map[string]chan protocol.ResponsePacket)}
}

// Register reserves id. The returned release func must be called once the
// caller stops waiting.
func (p *Pending) Register(id string) (<-chan protocol.ResponsePacket, func()) {
	ch := make(chan protocol.ResponsePacket, 1)
	p.mu.Lock()
	p.calls[id] = ch
	p.mu.Unlock()
	return ch, func() {
		p.mu.Lock()
		delete(p.calls, id)
		p.mu.Unlock()
	}
}

// Resolve delivers res to its waiting call. It reports false for responses
// nobody waits for, such as late replies after a timeout.
func (p *Pending) Resolve(res protocol.ResponsePacket) bool {
	p.mu.Lock()
	ch, ok := p.calls[res.ID]
	if ok {
		delete(p.calls, res.ID)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	ch <- res
	return true
}

// Len reports how many calls are waiting.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
