package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wilsonzlin/aero/proxy/udp-broadcast-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/udp-broadcast-relay/internal/peertable"
)

// Options carries a Relay's collaborators. Zero values are replaced with
// defaults: slog.Default, no metrics, no event sink and the system clock.
type Options struct {
	Config  Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Events  EventSink
	Clock   Clock
}

// Relay fans every received datagram out to all other live peers.
//
// A Relay takes ownership of conn. Run and HandleDatagram must not be called
// concurrently.
type Relay struct {
	conn    net.PacketConn
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics
	events  EventSink
	clock   Clock

	peers *peertable.Table
	buf   []byte

	running   atomic.Bool
	closeOnce sync.Once
}

func New(conn net.PacketConn, opts Options) *Relay {
	cfg := opts.Config.WithDefaults()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = realClock{}
	}
	return &Relay{
		conn:    conn,
		cfg:     cfg,
		log:     logger,
		metrics: opts.Metrics,
		events:  opts.Events,
		clock:   clock,
		peers:   peertable.New(cfg.MaxPeers),
		buf:     make([]byte, cfg.MaxDatagramBytes),
	}
}

func (r *Relay) LocalAddr() net.Addr {
	return r.conn.LocalAddr()
}

// Running reports whether Run is currently receiving.
func (r *Relay) Running() bool {
	return r.running.Load()
}

// Close closes the relay socket, unblocking Run.
func (r *Relay) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.conn.Close()
	})
	return err
}

// Run receives and relays datagrams until ctx is cancelled or the socket
// fails. Cancelling ctx closes the socket and Run returns nil; any other
// receive failure is returned wrapped in ErrReceive.
func (r *Relay) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = r.Close() })
	defer stop()
	defer r.Close()

	r.running.Store(true)
	defer r.running.Store(false)

	r.log.Info("relay_listening",
		"addr", r.conn.LocalAddr().String(),
		"expiry_window", r.cfg.ExpiryWindow,
		"max_datagram_bytes", r.cfg.MaxDatagramBytes,
		"max_peers", r.cfg.MaxPeers,
	)

	for {
		n, from, err := r.conn.ReadFrom(r.buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrReceive, err)
		}
		if err := r.HandleDatagram(r.buf[:n], from); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// HandleDatagram runs one relay iteration for a datagram received from from:
// record the sender, send payload to every other peer, then sweep peers that
// have been silent longer than the expiry window.
//
// A failed send to one peer is logged and the remaining peers are still
// attempted. The only error returned is a send on a closed socket.
func (r *Relay) HandleDatagram(payload []byte, from net.Addr) error {
	now := r.clock.Now()
	r.metrics.Inc(metrics.DatagramsIn)

	sender, ok := peertable.Key(from)
	if !ok {
		r.metrics.Inc(metrics.DroppedBadSource)
		r.log.Debug("relay_dropped_bad_source", "from", addrString(from))
		return nil
	}

	isNew, evicted := r.peers.Touch(sender, now)
	for _, p := range evicted {
		r.metrics.Inc(metrics.PeersEvicted)
		r.peerRemoved(p, now, RemoveReasonEvicted)
	}
	if isNew {
		r.metrics.Inc(metrics.PeersJoined)
		r.log.Info("peer_joined", "peer", sender.String(), "peers", r.peers.Len())
		r.publish(Event{Type: EventPeerJoined, Peer: sender, Time: now})
	}

	for _, dst := range r.peers.AllExcept(sender) {
		if _, err := r.conn.WriteTo(payload, net.UDPAddrFromAddrPort(dst)); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("relay: send to %s: %w", dst, err)
			}
			r.metrics.Inc(metrics.SendErrors)
			r.log.Warn("relay_send_failed", "peer", dst.String(), "bytes", len(payload), "err", err)
			continue
		}
		r.metrics.Inc(metrics.DatagramsRelayed)
	}

	for _, p := range r.peers.Sweep(now, r.cfg.ExpiryWindow) {
		r.metrics.Inc(metrics.PeersExpired)
		r.peerRemoved(p, now, RemoveReasonExpired)
	}
	r.metrics.SetActivePeers(r.peers.Len())
	return nil
}

func (r *Relay) peerRemoved(p netip.AddrPort, now time.Time, reason RemoveReason) {
	r.log.Info("peer_removed", "peer", p.String(), "reason", string(reason), "peers", r.peers.Len())
	r.publish(Event{Type: EventPeerRemoved, Peer: p, Time: now, Reason: reason})
}

func (r *Relay) publish(ev Event) {
	if r.events == nil {
		return
	}
	r.events.Publish(ev)
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
