package relay

import "time"

const (
	DefaultExpiryWindow     = 10 * time.Second
	DefaultMaxDatagramBytes = 1500
)

type Config struct {
	// ExpiryWindow is how long a peer may stay silent before the sweep removes
	// it.
	ExpiryWindow time.Duration

	// MaxDatagramBytes sizes the receive buffer. Larger datagrams are truncated
	// by the socket.
	MaxDatagramBytes int

	// MaxPeers caps the peer table. Zero means unbounded.
	MaxPeers int
}

func DefaultConfig() Config {
	return Config{
		ExpiryWindow:     DefaultExpiryWindow,
		MaxDatagramBytes: DefaultMaxDatagramBytes,
	}
}

// WithDefaults returns c with any zero/invalid fields replaced with sensible
// defaults.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ExpiryWindow <= 0 {
		c.ExpiryWindow = d.ExpiryWindow
	}
	if c.MaxDatagramBytes <= 0 {
		c.MaxDatagramBytes = d.MaxDatagramBytes
	}
	if c.MaxPeers < 0 {
		c.MaxPeers = 0
	}
	return c
}
