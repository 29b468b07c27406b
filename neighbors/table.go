// Package neighbors tracks peer liveness: a map of peer address to
// last-seen time, added on first validated frame, refreshed on every
// subsequent one, and pruned once stale. Grounded on
// original_source/src/node.rs's peers: HashMap<SocketAddr, Instant>
// and its prune_dead_nodes.
package neighbors

import (
	"net"
	"time"
)

// Table is a liveness-tracked set of peer addresses. It is not safe
// for concurrent use; the node engine owns it exclusively under its
// own coarse mutex.
type Table struct {
	lastSeen map[string]time.Time
	addrs    map[string]net.Addr
	now      func() time.Time
}

// New returns an empty neighbor table.
func New() *Table {
	return &Table{
		lastSeen: make(map[string]time.Time),
		addrs:    make(map[string]net.Addr),
		now:      time.Now,
	}
}

// Add inserts addr if absent, or refreshes it if present, and reports
// whether this call inserted a brand new neighbor (the signal the
// node engine uses to emit "new neighbor" log events).
func (t *Table) Add(addr net.Addr) (isNew bool) {
	key := addr.String()
	_, existed := t.lastSeen[key]
	t.lastSeen[key] = t.now()
	t.addrs[key] = addr
	return !existed
}

// Refresh updates addr's last-seen time. It is a no-op if addr is not
// already tracked — callers that want insert-or-refresh should use
// Add.
func (t *Table) Refresh(addr net.Addr) {
	key := addr.String()
	if _, ok := t.lastSeen[key]; ok {
		t.lastSeen[key] = t.now()
	}
}

// Contains reports whether addr is currently tracked.
func (t *Table) Contains(addr net.Addr) bool {
	_, ok := t.lastSeen[addr.String()]
	return ok
}

// Prune removes every neighbor whose last-seen time is older than
// timeout and returns the removed addresses. Iteration order is
// unspecified.
func (t *Table) Prune(timeout time.Duration) []net.Addr {
	cutoff := t.now().Add(-timeout)
	var dead []net.Addr
	for key, seen := range t.lastSeen {
		if seen.Before(cutoff) {
			dead = append(dead, t.addrs[key])
			delete(t.lastSeen, key)
			delete(t.addrs, key)
		}
	}
	return dead
}

// Snapshot returns a point-in-time copy of every tracked address,
// suitable for fan-out: a concurrent insertion completing after the
// snapshot is taken does not receive the outbound frame the snapshot
// was taken for, which SPEC_FULL.md §5 accepts.
func (t *Table) Snapshot() []net.Addr {
	out := make([]net.Addr, 0, len(t.addrs))
	for _, a := range t.addrs {
		out = append(out, a)
	}
	return out
}

// Len reports the number of tracked neighbors.
func (t *Table) Len() int {
	return len(t.lastSeen)
}
