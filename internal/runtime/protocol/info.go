package protocol

import (
	"net"
	"os"
	"runtime"

	"github.com/drblury/nodeflow/internal/runtime/service"
)

const (
	ClientType    = "go"
	ClientVersion = "0.1.0"
)

// NewInfo describes the local node. seq grows each time the hosted service
// set changes.
func NewInfo(sender, instanceID string, seq int64, services []service.Schema) InfoPacket {
	if services == nil {
		services = []service.Schema{}
	}
	hostname, _ := os.Hostname()
	return InfoPacket{
		Header:     newHeader(sender),
		Services:   services,
		Config:     map[string]any{},
		InstanceID: instanceID,
		IPList:     localIPs(),
		Hostname:   hostname,
		Client: ClientInfo{
			Type:        ClientType,
			Version:     ClientVersion,
			LangVersion: runtime.Version(),
		},
		Seq:      seq,
		Metadata: map[string]any{},
	}
}

func localIPs() []string {
	ips := []string{}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ips
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			ips = append(ips, v4.String())
		}
	}
	return ips
}
