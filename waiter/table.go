// Package waiter holds the handshake-waiter table: the bounded, FIFO
// holding area for sessions that have received a CONNECT but have not
// yet been promoted into the conversation registry by a first data
// datagram at KCP sequence number 0.
package waiter

import (
	"container/list"
	"sync"

	"github.com/YuukiPS/grasskcpper-v2/session"
)

// Entry is a half-open handshake: a convId allocated for an origin that
// has not yet sent its first SN=0 data datagram. No Session exists for
// an Entry — one is only constructed at promotion time.
type Entry struct {
	Conv   session.ConvID
	Origin session.Endpoint
}

// Table is the bounded FIFO, dual-indexed by convId and by origin
// endpoint, mirroring the teacher's byIndex/byPubkey dual-map style
// (grounded on net/manager.go's SessionManager) with FIFO eviction
// order tracked by a container/list.
//
// Eviction follows the original engine literally: the size check that
// decides whether to evict happens before the new entry is appended, so
// once full the table holds cap+1 entries, never more.
type Table struct {
	mu       sync.Mutex
	cap      int
	order    *list.List // list.Element.Value is *Entry, front = oldest
	byConv   map[session.ConvID]*list.Element
	byOrigin map[session.Endpoint]*list.Element
}

// New creates a Table bounded at cap entries. cap <= 0 means
// config.DefaultWaiterCap.
func New(cap int) *Table {
	if cap <= 0 {
		cap = 10
	}
	return &Table{
		cap:      cap,
		order:    list.New(),
		byConv:   make(map[session.ConvID]*list.Element),
		byOrigin: make(map[session.Endpoint]*list.Element),
	}
}

// Append files a new half-open handshake, evicting the oldest entry
// first if the table's size already exceeds cap — matching the Java
// source's "if (handshakeWaiters.size() > cap) evictOldest()" check
// evaluated before insertion, not after.
//
// evicted, if non-nil, names the entry that fell out of the table; the
// caller decides what (if anything) that implies for the peer that owns
// it.
func (t *Table) Append(e *Entry) (evicted *Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.order.Len() > t.cap {
		evicted = t.evictOldestLocked()
	}

	elem := t.order.PushBack(e)
	t.byConv[e.Conv] = elem
	t.byOrigin[e.Origin] = elem
	return evicted
}

// evictOldestLocked removes and returns the front (oldest) entry. Must
// be called with t.mu held.
func (t *Table) evictOldestLocked() *Entry {
	front := t.order.Front()
	if front == nil {
		return nil
	}
	e := front.Value.(*Entry)
	t.order.Remove(front)
	delete(t.byConv, e.Conv)
	delete(t.byOrigin, e.Origin)
	return e
}

// FindByConv returns the waiting entry for conv, if any.
func (t *Table) FindByConv(conv session.ConvID) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	elem, ok := t.byConv[conv]
	if !ok {
		return nil, false
	}
	return elem.Value.(*Entry), true
}

// FindByEndpoint returns the waiting entry for origin, if any.
func (t *Table) FindByEndpoint(origin session.Endpoint) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	elem, ok := t.byOrigin[origin]
	if !ok {
		return nil, false
	}
	return elem.Value.(*Entry), true
}

// Remove removes the entry for conv from the table, if present, and
// returns it. Used when promoting a waiter into the conversation
// registry.
func (t *Table) Remove(conv session.ConvID) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elem, ok := t.byConv[conv]
	if !ok {
		return nil, false
	}
	e := elem.Value.(*Entry)
	t.order.Remove(elem)
	delete(t.byConv, e.Conv)
	delete(t.byOrigin, e.Origin)
	return e, true
}

// Len reports the current number of waiting entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.order.Len()
}

// ContainsConv reports whether conv currently has a waiting entry, used
// by the conversation registry's AllocateConvID as the "elsewhere"
// collision check.
func (t *Table) ContainsConv(conv session.ConvID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.byConv[conv]
	return ok
}
