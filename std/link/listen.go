// Package link provides the datagram sockets the protocol engines run on:
// real UDP sockets, an in-memory link for tests, and a loss injector.
package link

import (
	"context"
	"errors"
	"net"
)

// Listen binds a datagram socket on address. network is "udp", "udp4" or "udp6".
func Listen(ctx context.Context, network, address string) (net.PacketConn, error) {
	lc := &net.ListenConfig{Control: reuseAddr}
	return lc.ListenPacket(ctx, network, address)
}

// SameAddr reports whether two addresses name the same endpoint.
func SameAddr(a, b net.Addr) bool {
	if a == nil || b == nil {
		return a == b
	}
	if ua, ok := a.(*net.UDPAddr); ok {
		if ub, ok := b.(*net.UDPAddr); ok {
			return ua.Port == ub.Port && ua.IP.Equal(ub.IP) && ua.Zone == ub.Zone
		}
	}
	return a.Network() == b.Network() && a.String() == b.String()
}

// IsTimeout reports whether err is a read deadline expiry.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
