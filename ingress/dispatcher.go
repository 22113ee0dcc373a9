// Package ingress implements the single-threaded ingress dispatcher:
// the state machine that turns a raw inbound UDP datagram into either a
// handshake-response, a dropped packet, or a task submitted to a
// session's executor.
package ingress

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/YuukiPS/grasskcpper-v2/config"
	"github.com/YuukiPS/grasskcpper-v2/registry"
	"github.com/YuukiPS/grasskcpper-v2/session"
	"github.com/YuukiPS/grasskcpper-v2/waiter"
	"github.com/YuukiPS/grasskcpper-v2/wire/handshake"
	"github.com/YuukiPS/grasskcpper-v2/wire/proxy"
)

// ikcpSNOffset is the byte offset of the KCP sequence number within a
// data datagram for this core's 8-byte conversation id: conv(8) +
// cmd(1) + frg(1) + wnd(2) + ts(4) = 16.
const ikcpSNOffset = 16

// Dispatcher is the ingress state machine described by the KCP-over-UDP
// handshake and demultiplexing rules this module implements. One
// Dispatcher serves one socket; the caller's network event loop is
// expected to call HandleDatagram serially.
type Dispatcher struct {
	cfg      config.Config
	registry *registry.Registry
	waiters  *waiter.Table
	pool     session.ExecutorPool
	wheel    session.TimingWheel
	factory  session.SessionFactory
	output   session.OutputFunc
	sendRsp  session.SendHandshakeRspFunc
	listener session.Listener
	log      *slog.Logger
}

// New constructs a Dispatcher. listener is the embedder's session
// listener; HandleClose is wrapped so that every session's closure
// removes it from reg, regardless of which internal path triggered the
// close.
func New(
	cfg config.Config,
	reg *registry.Registry,
	waiters *waiter.Table,
	pool session.ExecutorPool,
	wheel session.TimingWheel,
	factory session.SessionFactory,
	output session.OutputFunc,
	sendRsp session.SendHandshakeRspFunc,
	listener session.Listener,
	log *slog.Logger,
) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		cfg:      cfg,
		registry: reg,
		waiters:  waiters,
		pool:     pool,
		wheel:    wheel,
		factory:  factory,
		output:   output,
		sendRsp:  sendRsp,
		listener: listener,
		log:      log,
	}
}

// HandleDatagram processes one inbound UDP datagram. sender is the
// socket peer address, recipient is the local address the datagram
// arrived on. buf must be the caller's own copy: on the data path it
// may be handed to a session's executor without a further copy, so the
// caller must not reuse or mutate it after this call returns.
func (d *Dispatcher) HandleDatagram(buf []byte, sender, recipient session.Endpoint) error {
	payload, origin := d.stripProxy(buf, sender)
	user := session.NewUser(sender, origin, recipient)

	existing, hasExisting := d.registry.GetByEndpoint(origin)

	switch {
	case handshake.IsControl(len(payload)):
		return d.handleControl(payload, user, origin, existing)
	case len(payload) < 8 && !hasExisting:
		d.log.Warn("ingress: dropping too-short datagram", "origin", origin, "len", len(payload))
		return nil
	default:
		return d.handleData(payload, user, origin, existing)
	}
}

func (d *Dispatcher) stripProxy(buf []byte, sender session.Endpoint) ([]byte, session.Endpoint) {
	if !d.cfg.ProxyProtocolV2Enabled {
		return buf, sender
	}
	res := proxy.Strip(buf, sender)
	if !res.WasProxied {
		return res.Payload, sender
	}
	return res.Payload, res.Origin
}

func (d *Dispatcher) handleControl(payload []byte, user *session.User, origin session.Endpoint, existing session.Session) error {
	ctrl, ok := handshake.Decode(payload)
	if !ok {
		return nil
	}

	switch ctrl.Code {
	case handshake.CodeConnect:
		return d.handleConnect(ctrl, user, origin)
	case handshake.CodeDisconnect:
		if existing != nil {
			if err := existing.Close(false); err != nil {
				d.log.Error("ingress: disconnect close failed", "origin", origin, "err", err)
			}
		}
		return nil
	default:
		return nil
	}
}

// handleConnect deliberately never consults the conversation registry
// for an existing session at this origin: the reference engine's
// CONNECT branch only ever looks at the waiter table. A duplicate
// CONNECT while a session is already active allocates and announces a
// fresh waiter exactly as if no session existed; it is not torn down.
func (d *Dispatcher) handleConnect(ctrl handshake.Control, user *session.User, origin session.Endpoint) error {
	w, ok := d.waiters.FindByEndpoint(origin)

	var conv session.ConvID
	if ok {
		conv = w.Conv
	} else {
		conv = d.registry.AllocateConvID(d.nextConvID, d.waiters.ContainsConv, func(id session.ConvID) {
			if evicted := d.waiters.Append(&waiter.Entry{Conv: id, Origin: origin}); evicted != nil {
				d.log.Debug("ingress: evicted stale handshake waiter", "conv", evicted.Conv, "origin", evicted.Origin)
			}
		})
	}

	if err := d.sendRsp(user, ctrl.Enet, conv); err != nil {
		d.log.Error("ingress: handshake response failed", "origin", origin, "conv", conv, "err", err)
		return err
	}
	return nil
}

func (d *Dispatcher) handleData(payload []byte, user *session.User, origin session.Endpoint, existing session.Session) error {
	newConnection := false
	s := existing

	// An already-established session only needs its listener for
	// exception forwarding, which removingListener passes straight
	// through to d.listener anyway; only a freshly promoted session
	// needs the wrapper, so its HandleClose also removes it from the
	// registry.
	var listener session.Listener = d.listener

	if s == nil {
		conv := binary.BigEndian.Uint64(payload[0:8])
		w, ok := d.waiters.FindByConv(conv)
		if !ok {
			d.log.Warn("ingress: unknown conv id", "conv", conv, "origin", origin)
			return nil
		}

		sn, ok := d.readSN(payload)
		if !ok {
			d.log.Warn("ingress: data datagram too short for SN field", "conv", conv, "origin", origin)
			return nil
		}
		if sn != 0 {
			d.log.Warn("ingress: handshake SN mismatch", "conv", conv, "sn", sn, "origin", origin)
			return nil
		}

		d.waiters.Remove(w.Conv)

		listener = &removingListener{inner: d.listener, registry: d.registry}
		exec := d.pool.Acquire()
		s = d.factory(d.output, listener, exec, d.registry)
		s.SetConv(conv)
		s.SetUser(user)
		d.registry.New(origin, s)
		d.scheduleUpdate(s)
		newConnection = true
	}

	exec := s.Executor()
	if !exec.IsActive() {
		if err := s.Close(false); err != nil {
			d.log.Error("ingress: close on inactive executor failed", "conv", s.Conv(), "err", err)
		}
		return nil
	}

	// payload is already this datagram's own owned copy (the ingress
	// loop hands out a fresh slice per datagram), so it can be captured
	// directly without a second copy on this hot path.
	err := exec.Submit(func() {
		d.runDispatchedTask(s, listener, newConnection, payload)
	})
	if err != nil {
		d.log.Error("ingress: executor rejected submit", "conv", s.Conv(), "err", err)
		if closeErr := s.Close(false); closeErr != nil {
			d.log.Error("ingress: close after rejected submit failed", "conv", s.Conv(), "err", closeErr)
		}
		return ErrRejected
	}
	return nil
}

// runDispatchedTask runs on the session's executor goroutine. It
// mirrors the reference engine's two independently-guarded steps:
// onConnected failures never prevent the subsequent deliver.
func (d *Dispatcher) runDispatchedTask(s session.Session, listener session.Listener, newConnection bool, payload []byte) {
	if newConnection {
		func() {
			defer func() {
				if r := recover(); r != nil {
					listener.HandleException(fmt.Errorf("ingress: onConnected panic: %v", r), s)
				}
			}()
			listener.OnConnected(s)
		}()
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				listener.HandleException(fmt.Errorf("ingress: read panic: %v", r), s)
			}
		}()
		if err := s.Read(payload); err != nil {
			listener.HandleException(err, s)
		}
	}()
}

// scheduleUpdate arms the next update tick for s after s.Interval().
// The scheduled task runs on the timing wheel's own goroutine, so it
// only ever submits work to s's executor rather than calling into s
// directly.
func (d *Dispatcher) scheduleUpdate(s session.Session) {
	d.wheel.Schedule(s.Interval(), func() {
		d.runUpdateTick(s)
	})
}

// runUpdateTick submits one Update call to s's executor and, if the
// session reports it is still alive, arms the next tick. A rejected or
// skipped submit (executor inactive) simply lets the chain die; the
// session is being or has already been torn down some other way.
func (d *Dispatcher) runUpdateTick(s session.Session) {
	exec := s.Executor()
	if !exec.IsActive() {
		return
	}
	err := exec.Submit(func() {
		if s.Update() {
			d.scheduleUpdate(s)
		}
	})
	if err != nil {
		d.log.Debug("ingress: update tick rejected, executor inactive", "conv", s.Conv())
	}
}

// readSN reads the little-endian 32-bit KCP sequence number at the
// offset this core's conv-id width and the optional FEC adapter imply.
func (d *Dispatcher) readSN(payload []byte) (uint32, bool) {
	off := ikcpSNOffset + d.cfg.FECHeaderOffset()
	if len(payload) < off+4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(payload[off : off+4]), true
}

// nextConvID draws a conversation id from a cryptographic RNG. Zero is
// filtered out by the registry's AllocateConvID, not here.
func (d *Dispatcher) nextConvID() session.ConvID {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand.Read on the standard reader only fails if the
		// OS entropy source is unavailable, which is unrecoverable;
		// panicking here matches the "do not guess a convId" intent.
		panic(fmt.Errorf("ingress: reading random conv id: %w", err))
	}
	return binary.BigEndian.Uint64(b[:])
}

// removingListener wraps the embedder's Listener so that a session's
// closure always removes it from the registry, regardless of whether
// the close originated from the KCP engine, a DISCONNECT control, or an
// inactive executor.
type removingListener struct {
	inner    session.Listener
	registry *registry.Registry
}

func (l *removingListener) OnConnected(s session.Session) {
	l.inner.OnConnected(s)
}

func (l *removingListener) HandleReceive(s session.Session, data []byte) {
	l.inner.HandleReceive(s, data)
}

func (l *removingListener) HandleException(err error, s session.Session) {
	l.inner.HandleException(err, s)
}

func (l *removingListener) HandleClose(s session.Session) {
	l.registry.Remove(s)
	l.inner.HandleClose(s)
}

var _ session.Listener = (*removingListener)(nil)
