// Package peertable tracks which UDP peers are live and when each was last
// heard from.
//
// A Table is not safe for concurrent use. It is owned by a single relay loop,
// which is the only reader and writer.
package peertable

import (
	"bytes"
	"net"
	"net/netip"
	"time"
)

// Table maps peer endpoints to the time a datagram was last received from
// them.
type Table struct {
	maxPeers int
	lastSeen map[netip.AddrPort]time.Time
}

// New returns an empty table. maxPeers <= 0 means the table is unbounded.
func New(maxPeers int) *Table {
	if maxPeers < 0 {
		maxPeers = 0
	}
	return &Table{
		maxPeers: maxPeers,
		lastSeen: make(map[netip.AddrPort]time.Time),
	}
}

// Key normalizes addr into the form used as a table key. IPv4-mapped IPv6
// addresses are unmapped so a dual-stack socket and a v4 socket agree on the
// identity of the same peer.
func Key(addr net.Addr) (netip.AddrPort, bool) {
	var ap netip.AddrPort
	switch a := addr.(type) {
	case nil:
		return netip.AddrPort{}, false
	case *net.UDPAddr:
		if a == nil {
			return netip.AddrPort{}, false
		}
		ap = a.AddrPort()
	default:
		parsed, err := netip.ParseAddrPort(addr.String())
		if err != nil {
			return netip.AddrPort{}, false
		}
		ap = parsed
	}
	if !ap.Addr().IsValid() {
		return netip.AddrPort{}, false
	}
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), true
}

// Touch records that a datagram arrived from addr at now.
//
// isNew reports whether addr was absent before the call. When the table has a
// peer cap and inserting addr would exceed it, the least recently seen peers
// are removed first and returned in evicted. A refresh never evicts.
func (t *Table) Touch(addr netip.AddrPort, now time.Time) (isNew bool, evicted []netip.AddrPort) {
	if _, ok := t.lastSeen[addr]; ok {
		t.lastSeen[addr] = now
		return false, nil
	}
	if t.maxPeers > 0 && len(t.lastSeen)+1 > t.maxPeers {
		evicted = t.evictOldest(len(t.lastSeen) + 1 - t.maxPeers)
	}
	t.lastSeen[addr] = now
	return true, evicted
}

// AllExcept returns every tracked peer other than excluded. The order is
// unspecified.
func (t *Table) AllExcept(excluded netip.AddrPort) []netip.AddrPort {
	out := make([]netip.AddrPort, 0, len(t.lastSeen))
	for addr := range t.lastSeen {
		if addr == excluded {
			continue
		}
		out = append(out, addr)
	}
	return out
}

// Sweep removes and returns every peer that has been silent for longer than
// window as of now.
//
// Peers whose last-seen time is after now (clock stepped backwards) are kept:
// no elapsed time can be computed for them, so they are not provably stale.
func (t *Table) Sweep(now time.Time, window time.Duration) []netip.AddrPort {
	var removed []netip.AddrPort
	for addr, seen := range t.lastSeen {
		if seen.After(now) {
			continue
		}
		if now.Sub(seen) > window {
			delete(t.lastSeen, addr)
			removed = append(removed, addr)
		}
	}
	return removed
}

// LastSeen returns the last time addr was touched.
func (t *Table) LastSeen(addr netip.AddrPort) (time.Time, bool) {
	ts, ok := t.lastSeen[addr]
	return ts, ok
}

func (t *Table) Contains(addr netip.AddrPort) bool {
	_, ok := t.lastSeen[addr]
	return ok
}

func (t *Table) Len() int {
	return len(t.lastSeen)
}

// evictOldest removes up to n entries, least recently seen first. Ties are
// broken by address order so eviction is deterministic.
func (t *Table) evictOldest(n int) []netip.AddrPort {
	var evicted []netip.AddrPort
	for len(evicted) < n && len(t.lastSeen) > 0 {
		var oldestKey netip.AddrPort
		var oldestTS time.Time
		oldestSet := false

		for k, ts := range t.lastSeen {
			if !oldestSet || ts.Before(oldestTS) || (ts.Equal(oldestTS) && addrLess(k, oldestKey)) {
				oldestKey = k
				oldestTS = ts
				oldestSet = true
			}
		}
		delete(t.lastSeen, oldestKey)
		evicted = append(evicted, oldestKey)
	}
	return evicted
}

func addrLess(a, b netip.AddrPort) bool {
	aa := a.Addr().As16()
	ab := b.Addr().As16()
	if c := bytes.Compare(aa[:], ab[:]); c != 0 {
		return c < 0
	}
	return a.Port() < b.Port()
}
