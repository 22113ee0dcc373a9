//go:build linux

package netutil

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"syscall"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// batchSize bounds how many datagrams one ReadBatch syscall tries to
// collect. GRO can coalesce many KCP datagrams into one NIC receive
// event; this keeps the batch large enough to drain that in one call
// without growing unbounded.
const batchSize = 32

// maxDatagramSize is large enough for any UDP payload (the IPv4/IPv6
// maximum), including a GRO-coalesced receive.
const maxDatagramSize = 65535

const (
	sysSO_BUSY_POLL = 0x2e // SO_BUSY_POLL
	sysUDP_GRO      = 104  // UDP_GRO
	sysUDP_SEGMENT  = 103  // UDP_SEGMENT (GSO)
)

// getSocketBufSize reads the actual socket buffer size via getsockopt.
func getSocketBufSize(conn *net.UDPConn, recv bool) int {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0
	}
	opt := unix.SO_SNDBUF
	if recv {
		opt = unix.SO_RCVBUF
	}
	var val int
	raw.Control(func(fd uintptr) {
		val, _ = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, opt)
	})
	return val
}

// SetReusePort sets SO_REUSEPORT on a raw fd before bind, so multiple
// listener goroutines can share one address and let the kernel
// load-balance across them.
func SetReusePort(fd uintptr) error {
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}

// ListenUDPReusePort creates a UDP socket with SO_REUSEPORT set.
func ListenUDPReusePort(addr string) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var err error
			c.Control(func(fd uintptr) {
				err = SetReusePort(fd)
			})
			return err
		},
	}
	pc, err := lc.ListenPacket(context.Background(), "udp", addr)
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}

func applyPlatformOptions(conn *net.UDPConn, cfg SocketConfig, report *OptimizationReport) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return
	}

	if cfg.BusyPollUS > 0 {
		var setErr error
		raw.Control(func(fd uintptr) {
			setErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, sysSO_BUSY_POLL, cfg.BusyPollUS)
		})
		if setErr != nil {
			report.Entries = append(report.Entries, OptimizationEntry{Name: "SO_BUSY_POLL", Err: setErr})
		} else {
			report.Entries = append(report.Entries, OptimizationEntry{
				Name: "SO_BUSY_POLL", Applied: true,
				Detail: fmt.Sprintf("SO_BUSY_POLL=%dus", cfg.BusyPollUS),
			})
		}
	}

	if cfg.GRO {
		var setErr error
		raw.Control(func(fd uintptr) {
			setErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_UDP, sysUDP_GRO, 1)
		})
		if setErr != nil {
			report.Entries = append(report.Entries, OptimizationEntry{Name: "UDP_GRO", Err: setErr})
		} else {
			report.Entries = append(report.Entries, OptimizationEntry{Name: "UDP_GRO", Applied: true, Detail: "UDP_GRO=1"})
		}
	}
}

// GSOSupported reports whether UDP_SEGMENT (GSO) is usable on conn.
func GSOSupported(conn *net.UDPConn) bool {
	raw, err := conn.SyscallConn()
	if err != nil {
		return false
	}
	var supported bool
	raw.Control(func(fd uintptr) {
		err := unix.SetsockoptInt(int(fd), unix.IPPROTO_UDP, sysUDP_SEGMENT, DefaultGSOSegment)
		supported = err == nil
	})
	return supported
}

// PacketConn wraps conn with golang.org/x/net/ipv4's batched
// ReadBatch/WriteBatch. NewBatchReader is the only caller: it reads a
// whole batch of coalesced KCP datagrams per syscall when GRO is
// active on conn.
func PacketConn(conn *net.UDPConn) *ipv4.PacketConn {
	return ipv4.NewPacketConn(conn)
}

// linuxBatchReader reads datagrams batchSize at a time through an
// ipv4.PacketConn, so a GRO-coalesced receive moves several KCP
// datagrams in one ReadBatch syscall instead of one ReadFromUDPAddrPort
// per datagram.
type linuxBatchReader struct {
	pc  *ipv4.PacketConn
	ms  []ipv4.Message
	buf [][]byte
}

// NewBatchReader returns a BatchReader backed by golang.org/x/net/ipv4's
// batched ReadBatch, for use by the ingress read loop.
func NewBatchReader(conn *net.UDPConn) BatchReader {
	ms := make([]ipv4.Message, batchSize)
	buf := make([][]byte, batchSize)
	for i := range ms {
		buf[i] = make([]byte, maxDatagramSize)
		ms[i].Buffers = [][]byte{buf[i]}
	}
	return &linuxBatchReader{pc: PacketConn(conn), ms: ms, buf: buf}
}

func (r *linuxBatchReader) ReadBatch() ([]Datagram, error) {
	n, err := r.pc.ReadBatch(r.ms, 0)
	if err != nil {
		return nil, err
	}
	out := make([]Datagram, 0, n)
	for i := 0; i < n; i++ {
		udpAddr, ok := r.ms[i].Addr.(*net.UDPAddr)
		if !ok {
			continue
		}
		sender, ok := netip.AddrFromSlice(udpAddr.IP)
		if !ok {
			continue
		}
		payload := append([]byte(nil), r.buf[i][:r.ms[i].N]...)
		out = append(out, Datagram{
			Payload: payload,
			Sender:  netip.AddrPortFrom(sender.Unmap(), uint16(udpAddr.Port)),
		})
	}
	return out, nil
}

var _ BatchReader = (*linuxBatchReader)(nil)
