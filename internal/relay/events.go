package relay

import (
	"net/netip"
	"time"
)

type EventType string

const (
	EventPeerJoined  EventType = "peer_joined"
	EventPeerRemoved EventType = "peer_removed"
)

// RemoveReason explains why a peer left the table.
type RemoveReason string

const (
	RemoveReasonExpired RemoveReason = "expired"
	RemoveReasonEvicted RemoveReason = "evicted"
)

// Event is a peer membership change observed by the relay loop.
type Event struct {
	Type   EventType
	Peer   netip.AddrPort
	Time   time.Time
	Reason RemoveReason
}

// EventSink receives membership events. Publish is called from the relay loop
// and must not block.
type EventSink interface {
	Publish(Event)
}

// Clock is the relay's time source. Readings are allowed to go backwards;
// the peer table never evicts peers last seen in the future.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
