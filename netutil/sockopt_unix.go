//go:build unix && !linux

package netutil

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
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
