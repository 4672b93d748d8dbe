package relay

import "errors"

var (
	// ErrBind wraps failures to bind the relay socket.
	ErrBind = errors.New("relay: bind failed")
	// ErrReceive wraps a receive failure on a bound socket. The loop cannot make
	// progress after one.
	ErrReceive = errors.New("relay: receive failed")
)
