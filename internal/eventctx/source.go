package eventctx

import (
	"net"
	"os"

	"github.com/google/uuid"

	"example.com/eventrelay/internal/event"
)

// ResolveSource builds the process-wide source descriptor. It is resolved
// once at startup: instance id comes from $HOSTNAME or a random UUID, host
// from reverse DNS of the first non-loopback address.
func ResolveSource(service, environment, version string) event.Source {
	return event.Source{
		Service:     service,
		Environment: environment,
		InstanceID:  instanceID(),
		Host:        resolveHost(),
		Version:     version,
	}
}

func instanceID() string {
	if h := os.Getenv("HOSTNAME"); h != "" {
		return h
	}
	return uuid.NewString()
}

func resolveHost() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return unknown
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		names, err := net.LookupAddr(ipNet.IP.String())
		if err == nil && len(names) > 0 {
			return names[0]
		}
	}
	return unknown
}
