// Package handshake encodes and decodes the fixed 20-byte control
// datagrams exchanged before a KCP conversation exists: CONNECT,
// DISCONNECT, and the handshake-response.
package handshake

import "encoding/binary"

// Size is the fixed length of every control datagram.
const Size = 20

// Recognized control codes. Any other code is silently ignored by the
// dispatcher.
const (
	CodeConnect    int32 = 255
	CodeDisconnect int32 = 404
)

// Control is a decoded 20-byte control datagram.
type Control struct {
	Code int32
	Enet int32
}

// IsControl reports whether a payload of this length is a control
// datagram at all (exactly 20 bytes).
func IsControl(payloadLen int) bool {
	return payloadLen == Size
}

// Decode parses a 20-byte control datagram. ok is false if buf is not
// exactly Size bytes.
//
// Layout (all big-endian unless noted):
//
//	0:4   code (signed)
//	4:8   reserved, little-endian, discarded
//	8:12  reserved, little-endian, discarded
//	12:16 enet (signed)
//	16:20 reserved, discarded
func Decode(buf []byte) (Control, bool) {
	if len(buf) != Size {
		return Control{}, false
	}
	code := int32(binary.BigEndian.Uint32(buf[0:4]))
	enet := int32(binary.BigEndian.Uint32(buf[12:16]))
	return Control{Code: code, Enet: enet}, true
}

// Encode serializes a control datagram. Reserved fields are zeroed.
func Encode(code, enet int32) []byte {
	buf := make([]byte, Size)
	binary.BigEndian.PutUint32(buf[0:4], uint32(code))
	binary.BigEndian.PutUint32(buf[12:16], uint32(enet))
	return buf
}
