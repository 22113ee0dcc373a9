//go:build !linux

package netutil

import "net"

// applyPlatformOptions is a no-op outside Linux: busy-poll and GRO have
// no portable equivalent, so a non-Linux listener only gets the
// buffer-size tuning from ApplySocketOptions.
func applyPlatformOptions(_ *net.UDPConn, _ SocketConfig, _ *OptimizationReport) {}

const maxDatagramSize = 65535

// portableBatchReader reads one datagram per call and reports it as a
// batch of one, so the ingress read loop can call the same BatchReader
// API on every platform even where there is no GRO/ReadBatch syscall to
// exploit.
type portableBatchReader struct {
	conn *net.UDPConn
	buf  []byte
}

// NewBatchReader returns a BatchReader that reads a single datagram per
// call via conn.ReadFromUDPAddrPort.
func NewBatchReader(conn *net.UDPConn) BatchReader {
	return &portableBatchReader{conn: conn, buf: make([]byte, maxDatagramSize)}
}

func (r *portableBatchReader) ReadBatch() ([]Datagram, error) {
	n, sender, err := r.conn.ReadFromUDPAddrPort(r.buf)
	if err != nil {
		return nil, err
	}
	payload := append([]byte(nil), r.buf[:n]...)
	return []Datagram{{Payload: payload, Sender: sender}}, nil
}

var _ BatchReader = (*portableBatchReader)(nil)
