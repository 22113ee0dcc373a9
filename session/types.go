// Package session holds the data types and external-collaborator
// contracts this module dispatches work to. The KCP ARQ engine itself,
// the FEC layer, and the client connector all live behind the
// interfaces defined here — this package describes the shape of those
// collaborators without implementing any of them.
package session

import (
	"net/netip"
	"sync"
)

// Endpoint is an IP address plus a UDP port. Two endpoints compare equal
// by (address, port); netip.AddrPort already gives us that for free.
type Endpoint = netip.AddrPort

// ConvID is the 64-bit conversation identifier carried in every data
// datagram. Zero is reserved to mean "unassigned".
type ConvID = uint64

// User is the identity of the peer of a session.
//
// Origin and local are fixed for the life of the session; response may
// be rewritten, but only by the session that owns this User (typically
// from inside a Session implementation reacting to a roaming client),
// which is why it is mutated through an accessor rather than a public
// field.
type User struct {
	mu       sync.RWMutex
	response Endpoint
	origin   Endpoint
	local    Endpoint
	cache    any
}

// NewUser constructs a User. response is where outbound datagrams are
// sent (the proxy's endpoint if the datagram was proxied, otherwise the
// direct peer); origin is the real client endpoint extracted from a
// PROXY header (or equal to response when not proxied); local is the
// server-side recipient address from the datagram.
func NewUser(response, origin, local Endpoint) *User {
	return &User{response: response, origin: origin, local: local}
}

// Response returns the endpoint outbound datagrams must be sent to.
func (u *User) Response() Endpoint {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.response
}

// SetResponse rewrites the response endpoint. Only the session that owns
// this User should call this (e.g. on observed client roaming).
func (u *User) SetResponse(e Endpoint) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.response = e
}

// Origin returns the real client endpoint, immutable for the session's
// lifetime.
func (u *User) Origin() Endpoint {
	return u.origin
}

// Local returns the server-side recipient address, immutable for the
// session's lifetime.
func (u *User) Local() Endpoint {
	return u.local
}

// Cache returns the opaque application-attached value, or nil if unset.
func (u *User) Cache() any {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.cache
}

// SetCache attaches an opaque application value to this User.
func (u *User) SetCache(v any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.cache = v
}
