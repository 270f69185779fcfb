// Package header provides the wire formats used by the engine: the
// Ethernet and IPv6 fixed headers and the checksum algebra. All fields are
// read and written at explicit byte offsets in network byte order; headers
// are never overlaid onto buffers as structures.
package header

import (
	"encoding/binary"

	"ip6stack/tcpip"
)

const pseudoHeaderSize = 2*IPv6AddressSize + 8

// Checksum calculates the ones'-complement partial checksum of the given
// buffer. It is given as the accumulated value of the buffer's 16-bit words
// plus the initial seed, with the carries folded back in. An odd trailing
// byte is padded with zero.
func Checksum(buf []byte, initial uint16) uint16 {
	v := uint32(initial)

	l := len(buf)
	if l&1 != 0 {
		l--
		v += uint32(buf[l]) << 8
	}

	for i := 0; i < l; i += 2 {
		v += (uint32(buf[i]) << 8) + uint32(buf[i+1])
	}

	return ChecksumCombine(uint16(v), uint16(v>>16))
}

// ChecksumCombine combines the two uint16 to form their checksum. This is
// done by adding them and the carry.
func ChecksumCombine(a, b uint16) uint16 {
	v := uint32(a) + uint32(b)
	return uint16(v + v>>16)
}

// PseudoHeaderChecksum calculates the checksum of the 40-byte IPv6
// pseudo-header for the given addresses, upper-layer length and next-header
// value: source and destination addresses, the length as 4 bytes in network
// order, 3 bytes of zero padding and the next-header byte. The pseudo-header
// exists only for this computation and is never transmitted.
//
// The returned value is the complement of the partial checksum, ready to be
// combined into an upper-layer protocol's own checksum. The function is pure;
// identical inputs always yield identical output.
func PseudoHeaderChecksum(src, dst tcpip.Address, upperLen uint32, next tcpip.TransportProtocolNumber) uint16 {
	var ps [pseudoHeaderSize]byte

	copy(ps[:IPv6AddressSize], src)
	copy(ps[IPv6AddressSize:], dst)
	binary.BigEndian.PutUint32(ps[2*IPv6AddressSize:], upperLen)
	// ps[36:39] stay zero.
	ps[pseudoHeaderSize-1] = uint8(next)

	return ^Checksum(ps[:], 0)
}
