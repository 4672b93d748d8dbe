package metrics

import (
	"sync"
	"sync/atomic"
)

// Relay event counters.
const (
	DatagramsIn        = "datagrams_in"
	DatagramsRelayed   = "datagrams_relayed"
	SendErrors         = "send_errors"
	PeersJoined        = "peers_joined"
	PeersExpired       = "peers_expired"
	PeersEvicted       = "peers_evicted"
	DroppedBadSource   = "datagrams_dropped_bad_source"
	PeerEventsDropped  = "peer_events_dropped"
	PeerFeedSubscribed = "peer_feed_subscribed"
)

// Metrics is a minimal, concurrency-safe counter registry plus the active
// peer gauge.
//
// The relay loop is the only writer for most counters; the admin server reads
// them concurrently when scraped.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64

	activePeers atomic.Int64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	if m == nil || delta == 0 {
		return
	}
	m.mu.Lock()
	if m.m == nil {
		m.m = make(map[string]uint64)
	}
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return map[string]uint64{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}

func (m *Metrics) SetActivePeers(n int) {
	if m == nil {
		return
	}
	m.activePeers.Store(int64(n))
}

func (m *Metrics) ActivePeers() int64 {
	if m == nil {
		return 0
	}
	return m.activePeers.Load()
}
