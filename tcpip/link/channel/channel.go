// Package channel provides an in-memory network interface whose outbound
// frames are pushed onto a channel. It is used as the link device in tests
// and by consumers that process frames themselves.
package channel

import (
	"ip6stack/tcpip"
	"ip6stack/tcpip/buffer"
	"ip6stack/tcpip/header"
	"ip6stack/tcpip/stack"
)

// PacketInfo holds one transmitted frame.
type PacketInfo struct {
	Frame buffer.View
}

// Endpoint is an in-memory stack.NetworkInterface. The configuration fields
// are plain and set once before use.
type Endpoint struct {
	dispatcher stack.NetworkDispatcher
	mtu        uint32
	linkAddr   tcpip.LinkAddress

	// ConfiguredAddrs are the device's unicast addresses (64-bit on-link
	// prefixes implied).
	ConfiguredAddrs []tcpip.Address

	// GatewayAddr is the default gateway.
	GatewayAddr tcpip.Address

	// LinkLocalAddr is the device's link-local address.
	LinkLocalAddr tcpip.Address

	// HopLimit is the device's default hop limit; 0 means no preference.
	HopLimit uint8

	// C receives the frames written to the device.
	C chan PacketInfo

	groups []tcpip.LinkAddress
}

var _ stack.NetworkInterface = (*Endpoint)(nil)

// New creates a new channel-backed device.
func New(size int, mtu uint32, linkAddr tcpip.LinkAddress) *Endpoint {
	return &Endpoint{
		C:        make(chan PacketInfo, size),
		mtu:      mtu,
		linkAddr: linkAddr,
	}
}

// Drain removes all outbound frames from the channel and counts them.
func (e *Endpoint) Drain() int {
	c := 0
	for {
		select {
		case <-e.C:
			c++
		default:
			return c
		}
	}
}

// Inject delivers an inbound packet (link-layer framing already removed) to
// the attached dispatcher. Packets injected before a dispatcher is attached
// are dropped.
func (e *Endpoint) Inject(protocol tcpip.NetworkProtocolNumber, pkt buffer.View) {
	if e.dispatcher == nil {
		return
	}
	e.dispatcher.DeliverNetworkPacket(e, protocol, buffer.NewViewFromBytes(pkt))
}

// Attach sets the dispatcher that Inject delivers to.
func (e *Endpoint) Attach(dispatcher stack.NetworkDispatcher) {
	e.dispatcher = dispatcher
}

// IsAttached returns whether a dispatcher is attached.
func (e *Endpoint) IsAttached() bool {
	return e.dispatcher != nil
}

// MTU implements stack.NetworkInterface.
func (e *Endpoint) MTU() uint32 {
	return e.mtu
}

// LinkAddress implements stack.NetworkInterface.
func (e *Endpoint) LinkAddress() tcpip.LinkAddress {
	return e.linkAddr
}

// Addresses implements stack.NetworkInterface.
func (e *Endpoint) Addresses() []tcpip.Address {
	return e.ConfiguredAddrs
}

// Gateway implements stack.NetworkInterface.
func (e *Endpoint) Gateway() tcpip.Address {
	return e.GatewayAddr
}

// LinkLocalAddress implements stack.NetworkInterface.
func (e *Endpoint) LinkLocalAddress() tcpip.Address {
	return e.LinkLocalAddr
}

// DefaultHopLimit implements stack.NetworkInterface.
func (e *Endpoint) DefaultHopLimit() uint8 {
	return e.HopLimit
}

// WritePacket implements stack.NetworkInterface. Frames are dropped when
// the channel is full; the device never blocks regardless of the flag.
func (e *Endpoint) WritePacket(frame buffer.View, blocking bool) *tcpip.Error {
	select {
	case e.C <- PacketInfo{Frame: frame}:
	default:
	}

	return nil
}

// JoinGroup implements stack.NetworkInterface.
func (e *Endpoint) JoinGroup(addr tcpip.LinkAddress) *tcpip.Error {
	if len(addr) != header.EthernetAddressSize {
		return tcpip.ErrBadAddress
	}
	e.groups = append(e.groups, addr)
	return nil
}

// LeaveGroup implements stack.NetworkInterface.
func (e *Endpoint) LeaveGroup(addr tcpip.LinkAddress) *tcpip.Error {
	for i, g := range e.groups {
		if g == addr {
			e.groups = append(e.groups[:i], e.groups[i+1:]...)
			return nil
		}
	}
	return tcpip.ErrBadAddress
}

// Groups returns the groups the device currently belongs to.
func (e *Endpoint) Groups() []tcpip.LinkAddress {
	return append([]tcpip.LinkAddress(nil), e.groups...)
}
