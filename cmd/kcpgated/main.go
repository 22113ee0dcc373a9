// Command kcpgated is a small demonstration daemon wiring config,
// netutil, executor, timingwheel, and ingress together over a real UDP
// socket, using an in-process yamux-backed stand-in Session so the
// whole pipeline can be exercised without a real KCP ARQ engine, which
// this module never implements itself.
//
// Usage:
//
//	kcpgated -c /path/to/kcpgated.yaml
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/YuukiPS/grasskcpper-v2/executor"
	"github.com/YuukiPS/grasskcpper-v2/ingress"
	"github.com/YuukiPS/grasskcpper-v2/netutil"
	"github.com/YuukiPS/grasskcpper-v2/registry"
	"github.com/YuukiPS/grasskcpper-v2/session"
	"github.com/YuukiPS/grasskcpper-v2/timingwheel"
	"github.com/YuukiPS/grasskcpper-v2/waiter"
	"github.com/YuukiPS/grasskcpper-v2/wire/handshake"
)

var configPath = flag.String("c", "kcpgated.yaml", "path to kcpgated config file")

func main() {
	flag.Parse()

	cfg, err := loadDaemonConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kcpgated: %v\n", err)
		fmt.Fprintf(os.Stderr, "kcpgated: falling back to built-in defaults\n")
		cfg = defaultDaemonConfig()
	}
	setupLogging(cfg.LogLevel)

	if err := run(cfg); err != nil {
		slog.Error("kcpgated: fatal", "err", err)
		os.Exit(1)
	}
}

func setupLogging(level string) {
	var l slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	slog.SetDefault(slog.New(handler))
}

func run(cfg daemonConfig) error {
	udpAddr, err := net.ResolveUDPAddr("udp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("resolve listen addr %s: %w", cfg.Listen, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("listen udp %s: %w", cfg.Listen, err)
	}
	defer conn.Close()

	report := netutil.ApplySocketOptions(conn, netutil.DefaultSocketConfig())
	slog.Info("kcpgated: socket tuned", "report", report.String())

	reg := registry.New()
	waiters := waiter.New(cfg.WaiterCapOrDefault())
	wheel := timingwheel.New()
	defer wheel.Close()

	pool := executor.NewPool(executor.Config{
		Size:       cfg.ExecutorPoolSize,
		QueueDepth: cfg.ExecutorQueueDepth,
	})

	output := func(u *session.User, data []byte) error {
		_, err := conn.WriteToUDPAddrPort(data, u.Response())
		return err
	}
	sendRsp := func(u *session.User, enet int32, conv session.ConvID) error {
		buf := encodeHandshakeRsp(enet, conv)
		_, err := conn.WriteToUDPAddrPort(buf, u.Response())
		return err
	}
	listener := &logListener{log: slog.Default()}

	disp := ingress.New(
		cfg.Config,
		reg,
		waiters,
		pool,
		wheel,
		newDemoSession,
		output,
		sendRsp,
		listener,
		slog.Default(),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("kcpgated: received signal, shutting down", "signal", sig.String())
		conn.Close()
	}()

	slog.Info("kcpgated: listening", "addr", conn.LocalAddr().String())
	readLoop(conn, disp)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Close(ctx); err != nil {
		slog.Warn("kcpgated: executor pool shutdown", "err", err)
	}
	return nil
}

// readLoop is the network event loop that calls HandleDatagram
// serially: one goroutine, one socket, no concurrent dispatch. It
// returns once the socket is closed (signal handler or a genuine read
// error).
//
// It reads through a netutil.BatchReader so that on Linux a single
// ReadBatch syscall can drain several queued KCP datagrams at once; on
// other platforms the same call site falls back to one
// ReadFromUDPAddrPort per datagram. run tunes the socket with
// netutil.DefaultSocketConfig, which leaves GRO off.
func readLoop(conn *net.UDPConn, disp *ingress.Dispatcher) {
	reader := netutil.NewBatchReader(conn)
	local, _ := netAddrPort(conn.LocalAddr())

	for {
		datagrams, err := reader.ReadBatch()
		if err != nil {
			slog.Info("kcpgated: read loop exiting", "err", err)
			return
		}
		for _, dg := range datagrams {
			if err := disp.HandleDatagram(dg.Payload, dg.Sender, local); err != nil {
				slog.Warn("kcpgated: dispatch error", "sender", dg.Sender, "err", err)
			}
		}
	}
}

func netAddrPort(a net.Addr) (session.Endpoint, bool) {
	udpAddr, ok := a.(*net.UDPAddr)
	if !ok {
		return session.Endpoint{}, false
	}
	ap := udpAddr.AddrPort()
	return ap, true
}

// encodeHandshakeRsp builds the demo wire format for a handshake
// response: the same 20-byte layout handshake.Encode produces for
// CONNECT (so a packet sniffer sees a familiar control frame), followed
// by the allocated conversation id as a big-endian 64-bit integer. The
// ingress core itself only decides when to call SendHandshakeRspFunc
// and with which convId; the wire encoding is the caller's choice, and
// this is this demo command's own pick.
func encodeHandshakeRsp(enet int32, conv session.ConvID) []byte {
	head := handshake.Encode(handshake.CodeConnect, enet)
	buf := make([]byte, handshake.Size+8)
	copy(buf, head)
	binary.BigEndian.PutUint64(buf[handshake.Size:], conv)
	return buf
}

// logListener is the demo command's session.Listener: it only logs.
// The ingress dispatcher wraps it so every session's HandleClose also
// removes the session from the registry; this listener never has to.
type logListener struct {
	log *slog.Logger
}

func (l *logListener) OnConnected(s session.Session) {
	l.log.Info("kcpgated: session connected", "conv", s.Conv())
}

func (l *logListener) HandleReceive(s session.Session, data []byte) {
	l.log.Info("kcpgated: message received", "conv", s.Conv(), "len", len(data))
}

func (l *logListener) HandleException(err error, s session.Session) {
	l.log.Error("kcpgated: session exception", "conv", s.Conv(), "err", err)
}

func (l *logListener) HandleClose(s session.Session) {
	l.log.Info("kcpgated: session closed", "conv", s.Conv())
}

var _ session.Listener = (*logListener)(nil)
