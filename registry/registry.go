// Package registry holds the conversation registry: the authoritative
// {convId -> Session} and {originEndpoint -> Session} mapping the
// dispatcher and the session engine share.
package registry

import (
	"sync"

	"github.com/YuukiPS/grasskcpper-v2/session"
)

// Registry is the conversation registry. Both indexes always agree: a
// Session reachable by one key is reachable by the other, and Remove
// invalidates both atomically.
type Registry struct {
	mu       sync.RWMutex
	byConv   map[session.ConvID]session.Session
	byOrigin map[session.Endpoint]session.Session
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		byConv:   make(map[session.ConvID]session.Session),
		byOrigin: make(map[session.Endpoint]session.Session),
	}
}

// GetByEndpoint returns the session registered for origin, if any.
func (r *Registry) GetByEndpoint(origin session.Endpoint) (session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byOrigin[origin]
	return s, ok
}

// GetByConv returns the session registered for conv, if any.
// AllocateConvID does not call it; it reads the same index directly
// under its own lock.
func (r *Registry) GetByConv(conv session.ConvID) (session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byConv[conv]
	return s, ok
}

// ContainsConv reports whether conv is currently assigned.
func (r *Registry) ContainsConv(conv session.ConvID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byConv[conv]
	return ok
}

// Insert atomically installs both indexes for s. A different session
// already registered under origin or conv is displaced from both
// indexes, so neither keeps pointing at it alone.
func (r *Registry) Insert(s session.Session, origin session.Endpoint, conv session.ConvID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byOrigin[origin]; ok && old != s {
		if cur, ok := r.byConv[old.Conv()]; ok && cur == old {
			delete(r.byConv, old.Conv())
		}
	}
	if old, ok := r.byConv[conv]; ok && old != s {
		if u := old.User(); u != nil {
			if cur, ok := r.byOrigin[u.Origin()]; ok && cur == old {
				delete(r.byOrigin, u.Origin())
			}
		}
	}
	r.byConv[conv] = s
	r.byOrigin[origin] = s
}

// Remove atomically removes both indexes for s. It is idempotent, and a
// no-op if s is not (or no longer) the session registered under its own
// keys — which can happen if a newer session has since replaced it.
func (r *Registry) Remove(s session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := s.User()
	if u != nil {
		if cur, ok := r.byOrigin[u.Origin()]; ok && cur == s {
			delete(r.byOrigin, u.Origin())
		}
	}
	conv := s.Conv()
	if cur, ok := r.byConv[conv]; ok && cur == s {
		delete(r.byConv, conv)
	}
}

// AllocateConvID draws conversation ids from rng until it finds one that
// is neither already assigned in this registry nor reported taken by
// elsewhere (typically the handshake-waiter table). The whole operation,
// including onAllocated, runs under the registry's own lock, which
// serializes it against concurrent Insert/Remove calls and closes the
// check-then-act race between the draw and the caller recording it:
// onAllocated is the caller's chance to record the chosen id (typically
// inserting it into the waiter table) before another allocation can
// observe the lock as free again. onAllocated may be nil.
func (r *Registry) AllocateConvID(rng func() session.ConvID, elsewhere func(session.ConvID) bool, onAllocated func(session.ConvID)) session.ConvID {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		id := rng()
		if id == 0 {
			continue
		}
		if _, taken := r.byConv[id]; taken {
			continue
		}
		if elsewhere != nil && elsewhere(id) {
			continue
		}
		if onAllocated != nil {
			onAllocated(id)
		}
		return id
	}
}

// Get implements session.ChannelManager.
func (r *Registry) Get(origin session.Endpoint) (session.Session, bool) {
	return r.GetByEndpoint(origin)
}

// New implements session.ChannelManager: it installs s under its own
// conv id and origin, read from s itself.
func (r *Registry) New(origin session.Endpoint, s session.Session) {
	r.Insert(s, origin, s.Conv())
}

// ConvExists implements session.ChannelManager.
func (r *Registry) ConvExists(conv session.ConvID) bool {
	return r.ContainsConv(conv)
}

var _ session.ChannelManager = (*Registry)(nil)
