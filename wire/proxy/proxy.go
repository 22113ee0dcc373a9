// Package proxy strips an optional PROXY protocol v2 header from an
// inbound UDP datagram, recovering the real client endpoint when the
// datagram arrived through a trusted proxy such as FRP.
//
// It implements only the subset of the PROXY v2 spec this transport
// needs: detection, LOCAL/PROXY commands, and INET4/INET6 address
// blocks over UDP. TCP-specific fields, UNIX sockets, and PROXY v1 are
// not handled; callers that don't sit behind a PROXY-v2-speaking proxy
// should leave ProxyProtocolV2Enabled off.
package proxy

import (
	"encoding/binary"
	"net/netip"

	"github.com/YuukiPS/grasskcpper-v2/session"
)

// Signature is the fixed 12-byte PROXY protocol v2 preamble
// ("\r\n\r\n\x00\r\nQUIT\n").
var Signature = [12]byte{0x0D, 0x0A, 0x0D, 0x0A, 0x00, 0x0D, 0x0A, 0x51, 0x55, 0x49, 0x54, 0x0A}

const (
	cmdLocal = 0x0
	cmdProxy = 0x1

	familyUnspec = 0x0
	familyInet4  = 0x1
	familyInet6  = 0x2
	familyUnix   = 0x3
)

// Result is the outcome of stripping a buffer. Payload is a non-owning
// slice over the input buffer's backing array — the caller must keep
// the input alive until done with Payload.
type Result struct {
	Payload    []byte
	Origin     session.Endpoint
	WasProxied bool
}

// Strip detects and removes a PROXY v2 header from buf, returning the
// clean payload and the real client endpoint. fallback is used as the
// endpoint whenever buf turns out not to carry proxy information —
// either because it has no PROXY v2 signature at all, or because the
// header parses but declares command=LOCAL or an address family this
// parser doesn't decode.
//
// Strip never mutates buf and never fails outward: any parse error
// falls back to a full passthrough of the original buffer with
// WasProxied=false, exactly as if no signature had been found.
func Strip(buf []byte, fallback session.Endpoint) Result {
	if !hasSignature(buf) {
		return Result{Payload: buf, Origin: fallback, WasProxied: false}
	}

	headerLen, origin, wasProxied, ok := parseHeader(buf)
	if !ok {
		return Result{Payload: buf, Origin: fallback, WasProxied: false}
	}

	clean := buf[headerLen:]
	if !wasProxied {
		origin = fallback
	}
	return Result{Payload: clean, Origin: origin, WasProxied: wasProxied}
}

func hasSignature(buf []byte) bool {
	if len(buf) < len(Signature) {
		return false
	}
	for i, b := range Signature {
		if buf[i] != b {
			return false
		}
	}
	return true
}

// parseHeader parses the 16-byte fixed header plus address block that
// follows Signature. It returns the total header length (16+L), the
// origin endpoint when the command is PROXY and the address family is
// decodable, whether the datagram was genuinely proxied, and whether
// parsing succeeded at all (false only for version/command mismatches
// or a truncated buffer — not for unsupported address families, which
// are a successful parse that simply yields no origin).
func parseHeader(buf []byte) (headerLen int, origin session.Endpoint, wasProxied bool, ok bool) {
	if len(buf) < 16 {
		return 0, session.Endpoint{}, false, false
	}

	verCmd := buf[12]
	version := verCmd >> 4
	cmd := verCmd & 0x0F
	if version != 0x2 {
		return 0, session.Endpoint{}, false, false
	}
	if cmd != cmdLocal && cmd != cmdProxy {
		return 0, session.Endpoint{}, false, false
	}

	famTransport := buf[13]
	family := famTransport >> 4

	addrLen := int(binary.BigEndian.Uint16(buf[14:16]))
	headerLen = 16 + addrLen
	if len(buf) < headerLen {
		return 0, session.Endpoint{}, false, false
	}

	if cmd == cmdLocal {
		return headerLen, session.Endpoint{}, false, true
	}

	block := buf[16:headerLen]
	switch family {
	case familyInet4:
		if len(block) < 12 {
			return headerLen, session.Endpoint{}, false, true
		}
		addr := netip.AddrFrom4([4]byte{block[0], block[1], block[2], block[3]})
		port := binary.BigEndian.Uint16(block[8:10])
		return headerLen, netip.AddrPortFrom(addr, port), true, true

	case familyInet6:
		if len(block) < 36 {
			return headerLen, session.Endpoint{}, false, true
		}
		var addrBytes [16]byte
		copy(addrBytes[:], block[0:16])
		addr := netip.AddrFrom16(addrBytes)
		port := binary.BigEndian.Uint16(block[32:34])
		return headerLen, netip.AddrPortFrom(addr, port), true, true

	default:
		// UNIX, UNSPEC, or anything else: unknown, not an error.
		return headerLen, session.Endpoint{}, false, true
	}
}
