package session

import "time"

// OutputFunc sends a packet produced by a Session over the wire, to the
// user's current response endpoint.
type OutputFunc func(user *User, data []byte) error

// SendHandshakeRspFunc sends a handshake-response datagram carrying enet
// and the chosen conversation id to user's response endpoint. Its wire
// encoding is the external engine's responsibility; this core only
// decides when to call it and with which convId.
type SendHandshakeRspFunc func(user *User, enet int32, conv ConvID) error

// Session is an opaque per-conversation handle owned by the KCP ARQ
// engine. The core packages never implement Session — the engine,
// its retransmission and windowing behavior, and its FEC layer live
// elsewhere; the only implementation in this module is cmd/kcpgated's
// demo stand-in — but they drive one through this interface.
//
// Implementations MUST invoke Listener.HandleClose exactly once when the
// session transitions to closed, whether that happens via an explicit
// Close call or an internal decision by the engine (idle timeout, fatal
// protocol error). That callback is how this module removes the session
// from its registry; nothing else observes a session's closure.
type Session interface {
	// SetConv assigns the conversation id chosen during the handshake.
	SetConv(conv ConvID)
	// Conv returns the conversation id.
	Conv() ConvID
	// SetUser attaches the User identity established during handshake
	// completion.
	SetUser(u *User)
	// User returns the session's peer identity.
	User() *User
	// Executor returns the single-consumer executor this session is
	// bound to for its lifetime.
	Executor() Executor
	// Interval returns the engine's update-tick interval, used to
	// schedule each tick on the timing wheel.
	Interval() time.Duration
	// Update runs the engine's periodic tick (retransmission aging,
	// RTO recalculation, and similar bookkeeping in a real KCP engine)
	// on the session's executor goroutine. It reports whether the
	// session is still alive; the dispatcher reschedules the next tick
	// after Interval() only while this keeps returning true.
	Update() bool
	// Read delivers an inbound payload to the engine. On success the
	// engine takes ownership of data; the caller must not reuse it.
	Read(data []byte) error
	// Close closes the session. force selects between a graceful
	// drain (false) and an immediate teardown (true).
	Close(force bool) error
}

// ChannelManager is the dual-index lookup the Session engine consults
// (and is constructed with) to find itself again and to check for
// conversation-id collisions. A *registry.Registry implements this.
type ChannelManager interface {
	Get(origin Endpoint) (Session, bool)
	New(origin Endpoint, s Session)
	ConvExists(conv ConvID) bool
}

// Executor is a single-consumer task runner bound to a session for its
// lifetime. All state mutation on that session happens on its executor.
type Executor interface {
	// IsActive reports whether the executor can still accept tasks.
	// False while draining, shut down, or terminated.
	IsActive() bool
	// Submit queues task to run on the executor's consumer goroutine.
	// Returns an error if the executor has become inactive since the
	// caller last checked IsActive.
	Submit(task func()) error
}

// ExecutorPool hands out executors to bind new sessions to.
type ExecutorPool interface {
	Acquire() Executor
}

// TimingWheel schedules a one-shot delayed task, used to drive each of
// a session's Update ticks.
type TimingWheel interface {
	Schedule(delay time.Duration, task func())
}

// Listener receives session lifecycle callbacks from the engine.
type Listener interface {
	// OnConnected fires strictly before the first HandleReceive for a
	// newly established session.
	OnConnected(s Session)
	// HandleReceive fires when the engine has a reassembled message
	// ready for the application.
	HandleReceive(s Session, data []byte)
	// HandleException fires when a listener callback or a dispatch
	// step fails; it never prevents subsequent processing.
	HandleException(err error, s Session)
	// HandleClose fires exactly once when s transitions to closed.
	HandleClose(s Session)
}

// SessionFactory constructs a new Session for a freshly completed
// handshake. output sends outbound engine packets, listener receives
// lifecycle callbacks, exec is the executor the session is bound to for
// its lifetime, and channels is the registry the engine consults for
// conv-id bookkeeping.
type SessionFactory func(output OutputFunc, listener Listener, exec Executor, channels ChannelManager) Session
