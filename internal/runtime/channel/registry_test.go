package channel

import (
	"errors"
	"testing"

	"github.com/drblury/nodeflow/internal/runtime/protocol"
)

func TestRegistryTracksWorkers(t *testing.T) {
	var reported []string
	r := NewRegistry(func(id string, err error) bool {
		reported = append(reported, id+": "+err.Error())
		return id == "PING"
	})
	r.add("PONG.node", "MOL.PONG.n1")
	r.add("PING", "MOL.PING")

	r.setState("PONG.node", StateListening)
	r.received("PONG.node")
	r.received("PONG.node")
	r.decodeFailed("PONG.node", errors.New("bad json"))

	if stop := r.Report("PONG.node", errors.New("boom")); stop {
		t.Fatal("PONG.node should keep running")
	}
	if stop := r.Report("PING", errors.New("fatal")); !stop {
		t.Fatal("handler asked PING to stop")
	}

	status, ok := r.Lookup("PONG.node")
	if !ok {
		t.Fatal("expected PONG.node")
	}
	if status.Subject != "MOL.PONG.n1" || status.State != StateListening {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.Received != 2 || status.DecodeFailures != 1 || status.HandlerErrors != 1 || status.LastError != "boom" {
		t.Fatalf("unexpected counters %+v", status)
	}
	if status.LastHandledAt.IsZero() {
		t.Fatal("expected last handled time")
	}
	if len(reported) != 2 || reported[0] != "PONG.node: boom" {
		t.Fatalf("unexpected reports %v", reported)
	}

	snapshot := r.Snapshot()
	if len(snapshot) != 2 || snapshot[0].WorkerID != "PING" || snapshot[1].WorkerID != "PONG.node" {
		t.Fatalf("expected snapshot ordered by id, got %+v", snapshot)
	}

	r.remove("PING")
	if _, ok := r.Lookup("PING"); ok {
		t.Fatal("expected PING to be removed")
	}
	r.setState("missing", StateStopped)
}

func TestRegistryWithoutHandler(t *testing.T) {
	r := NewRegistry(nil)
	r.add("EVENT.node", "MOL.EVENT.n1")
	if r.Report("EVENT.node", errors.New("x")) {
		t.Fatal("expected workers to keep running without a handler")
	}
}

func TestPendingResolve(t *testing.T) {
	p := NewPending()
	ch, release := p.Register("req-1")
	defer release()

	if p.Len() != 1 {
		t.Fatalf("expected one pending call, got %d", p.Len())
	}
	if p.Resolve(protocol.ResponsePacket{ID: "other"}) {
		t.Fatal("unknown ids must not resolve")
	}
	if !p.Resolve(protocol.ResponsePacket{ID: "req-1", Success: true}) {
		t.Fatal("expected req-1 to resolve")
	}
	res := <-ch
	if !res.Success {
		t.Fatalf("unexpected response %+v", res)
	}
	if p.Resolve(protocol.ResponsePacket{ID: "req-1"}) {
		t.Fatal("a call resolves only once")
	}
	if p.Len() != 0 {
		t.Fatalf("expected no pending calls, got %d", p.Len())
	}
}

func TestPendingRelease(t *testing.T) {
	p := NewPending()
	_, release := p.Register("req-2")
	release()
	if p.Resolve(protocol.ResponsePacket{ID: "req-2"}) {
		t.Fatal("released calls must not resolve")
	}
}
