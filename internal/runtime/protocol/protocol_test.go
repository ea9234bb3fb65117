package protocol

import (
	"reflect"
	"strings"
	"testing"

	jsoncodec "github.com/drblury/nodeflow/internal/runtime/jsoncodec"
	"github.com/drblury/nodeflow/internal/runtime/service"
)

func TestSubject(t *testing.T) {
	tests := []struct {
		kind      Kind
		namespace string
		nodeID    string
		want      string
	}{
		{KindPong, "", "node-1", "MOL.PONG.node-1"},
		{KindPong, "ns", "node-1", "MOL-ns.PONG.node-1"},
		{KindHeartbeat, "", "", "MOL.HEARTBEAT"},
		{KindDiscover, " staging ", "", "MOL-staging.DISCOVER"},
		{KindRequest, "prod", "api-7", "MOL-prod.REQ.api-7"},
	}
	for _, tt := range tests {
		if got := Subject(tt.kind, tt.namespace, tt.nodeID); got != tt.want {
			t.Errorf("Subject(%s, %q, %q) = %q, want %q", tt.kind, tt.namespace, tt.nodeID, got, tt.want)
		}
	}
}

func TestChannelsCoverEverySubject(t *testing.T) {
	var subjects []string
	seen := map[string]bool{}
	for _, ch := range Channels() {
		subject := ch.Subject("ns", "n1")
		if seen[subject] {
			t.Fatalf("duplicate subject %s", subject)
		}
		seen[subject] = true
		subjects = append(subjects, subject)
	}
	want := []string{
		"MOL-ns.EVENT.n1", "MOL-ns.REQ.n1", "MOL-ns.RES.n1",
		"MOL-ns.DISCOVER", "MOL-ns.DISCOVER.n1",
		"MOL-ns.INFO", "MOL-ns.INFO.n1",
		"MOL-ns.HEARTBEAT",
		"MOL-ns.PING", "MOL-ns.PING.n1", "MOL-ns.PONG.n1",
		"MOL-ns.DISCONNECT",
	}
	if !reflect.DeepEqual(subjects, want) {
		t.Fatalf("unexpected subjects\n got: %v\nwant: %v", subjects, want)
	}
	if (Channel{Kind: KindPing, Targeted: true}).Name() != "PING.node" {
		t.Fatal("unexpected targeted channel name")
	}
}

func TestPongPacketDecoding(t *testing.T) {
	var pong PongPacket
	raw := `{"ver":"1","sender":"nodeA","id":"abc","time":1000,"arrived":1005}`
	if err := jsoncodec.Unmarshal([]byte(raw), &pong); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	want := PongPacket{Header: Header{Ver: "1", Sender: "nodeA"}, ID: "abc", Time: 1000, Arrived: 1005}
	if pong != want {
		t.Fatalf("got %+v want %+v", pong, want)
	}
	if pong.PacketHeader().Sender != "nodeA" || pong.Validate() != nil {
		t.Fatal("expected a valid header")
	}
}

func TestPingPong(t *testing.T) {
	ping := NewPing("a")
	if ping.Ver != Version || ping.ID == "" || ping.Time == 0 {
		t.Fatalf("unexpected ping %+v", ping)
	}
	pong := ping.Pong("b", ping.Time+5)
	if pong.Sender != "b" || pong.ID != ping.ID || pong.Time != ping.Time || pong.Arrived != ping.Time+5 {
		t.Fatalf("unexpected pong %+v", pong)
	}
}

func TestHeaderValidate(t *testing.T) {
	if err := (Header{Ver: Version}).Validate(); err == nil {
		t.Fatal("expected missing sender to fail")
	}
}

func TestRequestContextRoundTrip(t *testing.T) {
	ctx := service.NewActionContext("MOL", "caller-node", "v1.math.add", []byte(`{"a":1}`), []byte(`{"user":"x"}`))
	ctx.Caller = "gateway"

	req := NewRequest("caller-node", ctx, 5000)
	data, err := jsoncodec.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{`"requestID"`, `"parentID"`, `"params":{"a":1}`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("expected %s in %s", field, data)
		}
	}

	var decoded RequestPacket
	if err := jsoncodec.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	got := decoded.Context("MOL")
	if !reflect.DeepEqual(got, withGroups(ctx)) {
		t.Fatalf("context mismatch\n got: %#v\nwant: %#v", got, ctx)
	}
}

func withGroups(ctx service.Context) service.Context {
	ctx.EventGroups = []string{}
	return ctx
}

func TestEventContext(t *testing.T) {
	ctx := service.NewEventContext("MOL", "n1", "user.created", service.EventBroadcast, []string{"mail"}, []byte(`{"id":1}`), nil)
	pkt := NewEvent("n1", ctx)
	if !pkt.Broadcast || pkt.Event != "user.created" || string(pkt.Meta) != "null" {
		t.Fatalf("unexpected packet %+v", pkt)
	}

	back := pkt.Context("MOL")
	if back.EventTopic() != "user.created" || *back.EventType != service.EventBroadcast || !reflect.DeepEqual(back.EventGroups, []string{"mail"}) {
		t.Fatalf("unexpected context %+v", back)
	}
	if string(back.Params) != `{"id":1}` || back.Meta != nil {
		t.Fatalf("unexpected payloads %q %q", back.Params, back.Meta)
	}
	if err := back.Validate(); err != nil {
		t.Fatal(err)
	}

	emitted := EventPacket{Header: Header{Sender: "x"}, Event: "e"}.Context("MOL")
	if *emitted.EventType != service.EventEmit || emitted.EventGroups == nil || emitted.Level != 1 || emitted.ID == "" {
		t.Fatalf("unexpected defaults %+v", emitted)
	}
}

func TestNewResponse(t *testing.T) {
	ok := NewResponse("n1", "req", []byte(`42`), nil)
	if !ok.Success || string(ok.Data) != "42" || ok.Error != nil {
		t.Fatalf("unexpected success response %+v", ok)
	}
	failed := NewResponse("n1", "req", nil, &ErrorPayload{Name: "ServiceNotFoundError", Message: "missing", Code: 404, NodeID: "n1"})
	if failed.Success || string(failed.Data) != "null" {
		t.Fatalf("unexpected failed response %+v", failed)
	}
	remote := failed.Error.RemoteError()
	if remote.Code != 404 || !strings.Contains(remote.Error(), "missing") {
		t.Fatalf("unexpected remote error %v", remote)
	}
}

func TestNewInfo(t *testing.T) {
	svc := service.New("math").Action(service.NewAction("add", func(service.Context) ([]byte, error) { return nil, nil }))
	info := NewInfo("node-a", "instance-1", 3, []service.Schema{svc.Schema()})

	if info.Ver != Version || info.Sender != "node-a" || info.InstanceID != "instance-1" || info.Seq != 3 {
		t.Fatalf("unexpected header fields %+v", info.Header)
	}
	if info.Client.Type != ClientType || info.Client.LangVersion == "" {
		t.Fatalf("unexpected client %+v", info.Client)
	}
	if len(info.Services) != 1 || info.Services[0].FullName != "math" {
		t.Fatalf("unexpected services %+v", info.Services)
	}
	if info.IPList == nil || info.Config == nil || info.Metadata == nil {
		t.Fatal("collections must be non-nil so they encode as empty values")
	}

	empty := NewInfo("node-a", "i", 1, nil)
	if empty.Services == nil {
		t.Fatal("expected empty service list")
	}
}
