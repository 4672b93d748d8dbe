package relay

import (
	"fmt"
	"net"

	"github.com/pion/transport/v3"
	"github.com/pion/transport/v3/stdnet"
)

// Bind opens the relay's UDP socket on addr (host:port) using n. A nil n binds
// on the host network stack.
func Bind(n transport.Net, addr string) (net.PacketConn, error) {
	if n == nil {
		std, err := stdnet.NewNet()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrBind, addr, err)
		}
		n = std
	}
	conn, err := n.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBind, addr, err)
	}
	return conn, nil
}
