package header

import (
	"encoding/binary"

	"ip6stack/tcpip"
)

const (
	dstMAC  = 0
	srcMAC  = 6
	ethType = 12
)

// EthernetFields contains the fields of an Ethernet frame header. It is
// used to describe the fields of a frame that needs to be encoded.
type EthernetFields struct {
	// SrcAddr is the "MAC source" field of the frame header.
	SrcAddr tcpip.LinkAddress

	// DstAddr is the "MAC destination" field of the frame header.
	DstAddr tcpip.LinkAddress

	// Type is the "ethertype" field of the frame header.
	Type tcpip.NetworkProtocolNumber
}

// Ethernet represents an Ethernet frame header stored in a byte array.
type Ethernet []byte

const (
	// EthernetMinimumSize is the minimum size of a valid frame header.
	EthernetMinimumSize = 14

	// EthernetAddressSize is the size, in bytes, of a MAC address.
	EthernetAddressSize = 6
)

// SourceAddress returns the "MAC source" field of the frame header.
func (b Ethernet) SourceAddress() tcpip.LinkAddress {
	return tcpip.LinkAddress(b[srcMAC:][:EthernetAddressSize])
}

// DestinationAddress returns the "MAC destination" field of the frame header.
func (b Ethernet) DestinationAddress() tcpip.LinkAddress {
	return tcpip.LinkAddress(b[dstMAC:][:EthernetAddressSize])
}

// Type returns the "ethertype" field of the frame header.
func (b Ethernet) Type() tcpip.NetworkProtocolNumber {
	return tcpip.NetworkProtocolNumber(binary.BigEndian.Uint16(b[ethType:]))
}

// Encode encodes all the fields of the frame header.
func (b Ethernet) Encode(e *EthernetFields) {
	binary.BigEndian.PutUint16(b[ethType:], uint16(e.Type))
	copy(b[srcMAC:][:EthernetAddressSize], e.SrcAddr)
	copy(b[dstMAC:][:EthernetAddressSize], e.DstAddr)
}

// EthernetAllNodesMulticastAddress is the link-layer group every IPv6 node
// must belong to, 33:33:00:00:00:01.
const EthernetAllNodesMulticastAddress tcpip.LinkAddress = "\x33\x33\x00\x00\x00\x01"

// EthernetAddressFromMulticastIPv6Address returns the link-layer address
// mapped from an IPv6 multicast address: 33:33 followed by the last 4 bytes
// of the address.
func EthernetAddressFromMulticastIPv6Address(addr tcpip.Address) tcpip.LinkAddress {
	var mac [EthernetAddressSize]byte
	mac[0] = 0x33
	mac[1] = 0x33
	copy(mac[2:], addr[IPv6AddressSize-4:])
	return tcpip.LinkAddress(mac[:])
}

// SolicitedNodeEthernetAddress returns the link-layer address of the
// solicited-node multicast group for the given address: 33:33:FF followed
// by the last 3 bytes of the address.
func SolicitedNodeEthernetAddress(addr tcpip.Address) tcpip.LinkAddress {
	var mac [EthernetAddressSize]byte
	mac[0] = 0x33
	mac[1] = 0x33
	mac[2] = 0xff
	copy(mac[3:], addr[IPv6AddressSize-3:])
	return tcpip.LinkAddress(mac[:])
}
