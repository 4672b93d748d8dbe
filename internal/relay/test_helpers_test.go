package relay

import (
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"
)

type inboundDatagram struct {
	payload []byte
	from    net.Addr
}

type sentDatagram struct {
	payload []byte
	to      netip.AddrPort
}

// fakeConn is a scripted net.PacketConn. Reads are fed through in; writes are
// recorded (copied) for later inspection.
type fakeConn struct {
	in      chan inboundDatagram
	readErr chan error
	done    chan struct{}

	mu     sync.Mutex
	sent   []sentDatagram
	failTo map[netip.AddrPort]error
	closed bool
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:      make(chan inboundDatagram, 16),
		readErr: make(chan error, 1),
		done:    make(chan struct{}),
		failTo:  make(map[netip.AddrPort]error),
	}
}

func (c *fakeConn) ReadFrom(p []byte) (int, net.Addr, error) {
	select {
	case d := <-c.in:
		n := copy(p, d.payload)
		return n, d.from, nil
	case err := <-c.readErr:
		return 0, nil, err
	case <-c.done:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, net.ErrClosed
	}
	to := addr.(*net.UDPAddr).AddrPort()
	if err := c.failTo[to]; err != nil {
		return 0, err
	}
	c.sent = append(c.sent, sentDatagram{payload: append([]byte(nil), p...), to: to})
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	})
	return nil
}

func (c *fakeConn) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5000}
}

func (c *fakeConn) SetDeadline(time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) failSendsTo(addr netip.AddrPort, err error) {
	c.mu.Lock()
	c.failTo[addr] = err
	c.mu.Unlock()
}

func (c *fakeConn) takeSent() []sentDatagram {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.sent
	c.sent = nil
	return out
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Publish(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSink) take() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.events
	s.events = nil
	return out
}

func udpAddr(ap netip.AddrPort) *net.UDPAddr {
	return net.UDPAddrFromAddrPort(ap)
}

func countByDest(sent []sentDatagram) map[netip.AddrPort]int {
	out := make(map[netip.AddrPort]int)
	for _, s := range sent {
		out[s.to]++
	}
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}
