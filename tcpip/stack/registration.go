// Package stack defines the contracts between the IPv6 engine and its
// collaborators: the link device it reads configuration from and transmits
// through, the neighbor resolver that maps network addresses to link
// addresses, and the upper-layer dispatchers packets are delivered to.
package stack

import (
	"ip6stack/tcpip"
	"ip6stack/tcpip/buffer"
	"ip6stack/tcpip/header"
)

// NetworkInterface is a configured link device. The engine never owns one;
// it reads its configuration and invokes its transmit operation.
type NetworkInterface interface {
	// MTU is the maximum transmission unit of the device: the largest
	// frame payload (network header included) the link accepts.
	MTU() uint32

	// LinkAddress is the hardware (MAC) address of the device.
	LinkAddress() tcpip.LinkAddress

	// Addresses returns the configured unicast addresses of the device.
	// Each address implies a fixed 64-bit on-link prefix; variable prefix
	// lengths are a known limitation.
	Addresses() []tcpip.Address

	// Gateway returns the default gateway used for destinations that are
	// not on-link.
	Gateway() tcpip.Address

	// LinkLocalAddress returns the device's link-local address.
	LinkLocalAddress() tcpip.Address

	// DefaultHopLimit returns the configured default hop limit, or 0 when
	// the device carries no preference.
	DefaultHopLimit() uint8

	// WritePacket transmits a fully assembled link-layer frame. When
	// blocking is set the call does not return until the device has
	// accepted the frame. The device never retries.
	WritePacket(frame buffer.View, blocking bool) *tcpip.Error

	// JoinGroup subscribes the device to the given link-layer multicast
	// group.
	JoinGroup(addr tcpip.LinkAddress) *tcpip.Error

	// LeaveGroup removes the device from the given link-layer multicast
	// group.
	LeaveGroup(addr tcpip.LinkAddress) *tcpip.Error
}

// NeighborResolver maps an on-link IPv6 address to a link-layer address.
//
// ResolveLinkAddress returns one of three outcomes:
//   - the target's link address and a nil error;
//   - tcpip.ErrWouldBlock when resolution has been started and the packet
//     (hdr and payload) has been queued for retransmission by the resolver,
//     which then owns both buffers;
//   - any other error when the target is unreachable.
type NeighborResolver interface {
	ResolveLinkAddress(nic NetworkInterface, target tcpip.Address, hdr header.IPv6, payload buffer.View) (tcpip.LinkAddress, *tcpip.Error)
}

// TransportDispatcher is an upper-layer protocol handler, e.g. ICMPv6.
type TransportDispatcher interface {
	// DeliverTransportPacket hands a validated packet to the upper layer.
	// nic is the device the packet arrived on, or nil for packets looped
	// back locally. h is the parsed network header; payload covers exactly
	// the bytes the header declares.
	DeliverTransportPacket(nic NetworkInterface, protocol tcpip.TransportProtocolNumber, h header.IPv6, payload buffer.View) *tcpip.Error
}

// NetworkDispatcher is implemented by the network layer so link devices can
// deliver inbound packets to it.
type NetworkDispatcher interface {
	// DeliverNetworkPacket finds the appropriate network protocol for the
	// given packet, whose link-layer framing has already been removed.
	DeliverNetworkPacket(nic NetworkInterface, protocol tcpip.NetworkProtocolNumber, pkt buffer.View)
}
