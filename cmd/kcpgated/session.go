package main

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/yamux"

	"github.com/YuukiPS/grasskcpper-v2/session"
)

// demoInterval is the update-tick interval this stand-in engine reports
// through Interval. A real KCP engine derives this from its window and
// RTT estimate; this demo has no retransmission loop to drive, so the
// value only matters insofar as it paces how often the dispatcher
// arms Update on the timing wheel.
const demoInterval = 100 * time.Millisecond

// demoSession is a minimal session.Session good enough to exercise the
// ingress pipeline end to end without a real KCP ARQ engine.
//
// It treats every inbound Read as already being a complete, in-order
// application message — there is no window, no retransmission, no
// fragmentation reassembly — and hands that byte stream to a
// yamux.Session the same way pkg/kcp/service.go's ServiceMux layers
// yamux over a KCPConn. yamux streams opened by the peer are drained
// and delivered to the Listener as if they were the engine's own
// reassembled messages.
type demoSession struct {
	output   session.OutputFunc
	listener session.Listener
	exec     session.Executor
	// channels is unused beyond satisfying SessionFactory: this demo
	// never roams a User to a new response endpoint, so it never needs
	// to ask the registry about another conv or origin.
	channels session.ChannelManager

	adapter *streamAdapter
	yamux   *yamux.Session

	mu     sync.Mutex
	conv   session.ConvID
	user   *session.User
	closed bool
}

// newDemoSession constructs a demoSession and starts its yamux server
// session and stream-accept loop. It never fails outward: yamux.Server
// only errors on a malformed config, and this demo always passes nil
// (defaults).
func newDemoSession(output session.OutputFunc, listener session.Listener, exec session.Executor, channels session.ChannelManager) session.Session {
	s := &demoSession{
		output:   output,
		listener: listener,
		exec:     exec,
		channels: channels,
	}
	s.adapter = newStreamAdapter(s)

	ysess, err := yamux.Server(s.adapter, nil)
	if err != nil {
		// yamux.Server only fails on invalid config; nil config is
		// always valid, so this path is unreachable in practice.
		panic("kcpgated: yamux.Server: " + err.Error())
	}
	s.yamux = ysess

	go s.acceptLoop()
	return s
}

func (s *demoSession) SetConv(conv session.ConvID) {
	s.mu.Lock()
	s.conv = conv
	s.mu.Unlock()
}

func (s *demoSession) Conv() session.ConvID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv
}

func (s *demoSession) SetUser(u *session.User) {
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
}

func (s *demoSession) User() *session.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *demoSession) Executor() session.Executor { return s.exec }

func (s *demoSession) Interval() time.Duration { return demoInterval }

// Update has no retransmission state to age in this demo engine; it
// only reports whether the session is still open, so the dispatcher
// knows whether to arm another tick.
func (s *demoSession) Update() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Read hands data to the yamux session's transport as if it were the
// next in-order chunk of the underlying reliable stream. The caller
// must not reuse data afterward; streamAdapter takes ownership.
func (s *demoSession) Read(data []byte) error {
	return s.adapter.deliver(data)
}

func (s *demoSession) Close(force bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.yamux.Close()
	s.adapter.Close()
	s.listener.HandleClose(s)
	if force {
		return err
	}
	return nil
}

// acceptLoop drains every yamux stream the peer opens and forwards its
// full contents to the Listener, echoing a simple acknowledgement back
// on the same stream. This is the seam a real client connector would
// replace with actual application framing; here it only proves the
// round trip from UDP datagram to application callback and back works.
func (s *demoSession) acceptLoop() {
	for {
		stream, err := s.yamux.AcceptStream()
		if err != nil {
			return
		}
		go s.serveStream(stream)
	}
}

func (s *demoSession) serveStream(stream net.Conn) {
	defer stream.Close()
	data, err := io.ReadAll(stream)
	if err != nil && !errors.Is(err, io.EOF) {
		s.listener.HandleException(err, s)
		return
	}
	s.listener.HandleReceive(s, data)
	_, _ = stream.Write([]byte("ok"))
}

// streamAdapter presents demoSession as a net.Conn so yamux can treat
// it as the transport it multiplexes over: Write sends bytes out over
// the real UDP socket via OutputFunc, Read hands back the bytes that
// arrived through demoSession.Read, in arrival order. It plays the same
// role as pkg/kcp/service.go's kcpPipe, minus the KCPConn it would
// normally wrap.
type streamAdapter struct {
	session *demoSession

	inbox     chan []byte
	leftover  []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newStreamAdapter(s *demoSession) *streamAdapter {
	return &streamAdapter{
		session: s,
		inbox:   make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

// deliver queues data for the next Read. It never blocks: a full inbox
// means the peer is writing faster than yamux is draining it, which
// this demo treats as a condition to drop rather than stall the
// dispatcher's caller.
func (a *streamAdapter) deliver(data []byte) error {
	select {
	case <-a.closed:
		return io.ErrClosedPipe
	default:
	}
	select {
	case a.inbox <- data:
		return nil
	default:
		return errors.New("kcpgated: session inbox full, dropping datagram")
	}
}

func (a *streamAdapter) Read(b []byte) (int, error) {
	if len(a.leftover) > 0 {
		n := copy(b, a.leftover)
		a.leftover = a.leftover[n:]
		return n, nil
	}
	select {
	case data, ok := <-a.inbox:
		if !ok {
			return 0, io.EOF
		}
		n := copy(b, data)
		if n < len(data) {
			a.leftover = data[n:]
		}
		return n, nil
	case <-a.closed:
		return 0, io.EOF
	}
}

func (a *streamAdapter) Write(b []byte) (int, error) {
	u := a.session.User()
	if u == nil {
		return 0, errors.New("kcpgated: write before user attached")
	}
	if err := a.session.output(u, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (a *streamAdapter) Close() error {
	a.closeOnce.Do(func() { close(a.closed) })
	return nil
}

func (a *streamAdapter) LocalAddr() net.Addr              { return pipeAddr{} }
func (a *streamAdapter) RemoteAddr() net.Addr             { return pipeAddr{} }
func (a *streamAdapter) SetDeadline(time.Time) error      { return nil }
func (a *streamAdapter) SetReadDeadline(time.Time) error  { return nil }
func (a *streamAdapter) SetWriteDeadline(time.Time) error { return nil }

type pipeAddr struct{}

func (pipeAddr) Network() string { return "kcpgated" }
func (pipeAddr) String() string  { return "demo-session" }

var (
	_ net.Conn        = (*streamAdapter)(nil)
	_ session.Session = (*demoSession)(nil)
)
