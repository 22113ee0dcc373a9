//go:build windows

package netutil

import (
	"errors"
	"net"
)

func getSocketBufSize(_ *net.UDPConn, _ bool) int { return 0 }

// SetReusePort is unsupported on Windows; there is no SO_REUSEPORT
// equivalent that shares a listening UDP socket across processes the
// way the Linux/BSD implementations do.
func SetReusePort(_ uintptr) error {
	return errors.New("netutil: SO_REUSEPORT not supported on windows")
}

// ListenUDPReusePort falls back to a plain listen; see SetReusePort.
func ListenUDPReusePort(addr string) (*net.UDPConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	return net.ListenUDP("udp", udpAddr)
}
