// Package peerfeed streams relay membership events to WebSocket subscribers.
//
// The relay loop publishes into a Hub without ever blocking: each subscriber
// owns a bounded buffer and events for a subscriber that has fallen behind are
// dropped.
package peerfeed

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/udp-broadcast-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/udp-broadcast-relay/internal/relay"
)

const (
	wsWriteWait = 1 * time.Second

	DefaultPingInterval     = 20 * time.Second
	DefaultSubscriberBuffer = 64
)

// Message is the JSON form of a relay.Event sent to subscribers.
type Message struct {
	Type   string `json:"type"`
	Peer   string `json:"peer"`
	Time   string `json:"time"`
	Reason string `json:"reason,omitempty"`
}

func MessageFromEvent(ev relay.Event) Message {
	return Message{
		Type:   string(ev.Type),
		Peer:   ev.Peer.String(),
		Time:   ev.Time.UTC().Format(time.RFC3339Nano),
		Reason: string(ev.Reason),
	}
}

type Config struct {
	// SubscriberBuffer is the number of events buffered per subscriber before
	// new events are dropped for it.
	SubscriberBuffer int
	PingInterval     time.Duration
}

func (c Config) withDefaults() Config {
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = DefaultSubscriberBuffer
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	return c
}

type subscriber struct {
	ch   chan Message
	done chan struct{}
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// Hub fans relay events out to WebSocket subscribers. It implements
// relay.EventSink.
type Hub struct {
	cfg      Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

func NewHub(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:     cfg.withDefaults(),
		log:     logger,
		metrics: m,
		// The feed is read-only and served on the admin listener; browser
		// dashboards on other origins are expected consumers.
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs: make(map[*subscriber]struct{}),
	}
}

// Publish hands ev to every subscriber without blocking.
func (h *Hub) Publish(ev relay.Event) {
	msg := MessageFromEvent(ev)

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.ch <- msg:
		default:
			h.metrics.Inc(metrics.PeerEventsDropped)
		}
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[*subscriber]struct{})
	h.mu.Unlock()

	for s := range subs {
		s.close()
	}
}

func (h *Hub) subscribe() (*subscriber, bool) {
	s := &subscriber{
		ch:   make(chan Message, h.cfg.SubscriberBuffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	h.subs[s] = struct{}{}
	h.metrics.Inc(metrics.PeerFeedSubscribed)
	return s, true
}

func (h *Hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
	s.close()
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub, ok := h.subscribe()
	if !ok {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(wsWriteWait))
		return
	}
	defer h.unsubscribe(sub)

	h.log.Info("peer_feed_connected", "remote_addr", r.RemoteAddr)
	defer h.log.Info("peer_feed_disconnected", "remote_addr", r.RemoteAddr)

	// Subscribers never send data; reading only surfaces close frames and
	// broken connections.
	conn.SetReadLimit(512)
	go func() {
		defer sub.close()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(h.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case msg := <-sub.ch:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-sub.done:
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
			return
		}
	}
}
