// Package sink delivers encoded events over UDP.
package sink

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"github.com/dtmfin/dtmfin/internal/errors"
)

// Endpoint is the resolved destination. It is built once at startup and
// never changes afterwards.
type Endpoint struct {
	Host      string
	Port      int
	Addr      *net.UDPAddr
	Broadcast bool
}

// String returns host:port of the resolved address.
func (e Endpoint) String() string {
	if e.Addr == nil {
		return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
	}
	return e.Addr.String()
}

// network returns udp4 or udp6 to match the resolved address family.
func (e Endpoint) network() string {
	if e.Addr != nil && e.Addr.IP.To4() == nil {
		return "udp6"
	}
	return "udp4"
}

// ResolveEndpoint performs the blocking name lookup. IPv4 results are
// preferred so that broadcast addresses behave as expected.
func ResolveEndpoint(ctx context.Context, host string, port int, broadcast bool) (Endpoint, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return Endpoint{}, configError(errors.NewStd("Please specify an ip and port to send to."), host, port)
	}
	if port < 1 || port > 65535 {
		return Endpoint{}, configError(fmt.Errorf("invalid port %d, must be between 1 and 65535", port), host, port)
	}

	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return Endpoint{}, configError(fmt.Errorf("could not resolve host %q: %w", host, err), host, port)
	}
	if len(addrs) == 0 {
		return Endpoint{}, configError(fmt.Errorf("host %q has no addresses", host), host, port)
	}

	chosen := addrs[0]
	for _, a := range addrs {
		if a.Unmap().Is4() {
			chosen = a
			break
		}
	}
	chosen = chosen.Unmap()

	return Endpoint{
		Host:      host,
		Port:      port,
		Addr:      net.UDPAddrFromAddrPort(netip.AddrPortFrom(chosen, uint16(port))),
		Broadcast: broadcast,
	}, nil
}

func configError(err error, host string, port int) error {
	return errors.New(err).
		Component("sink").
		Category(errors.CategoryConfiguration).
		Context("host", host).
		Context("port", port).
		Build()
}
