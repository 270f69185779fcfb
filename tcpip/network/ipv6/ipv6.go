// Package ipv6 contains the IPv6 network-layer engine: it composes outbound
// packets, picks their next hop, assembles link-layer frames, and validates
// and demultiplexes inbound packets. Link devices, neighbor resolution and
// upper-layer protocols are collaborators injected through the interfaces in
// package stack.
package ipv6

import (
	"log"
	"sync"

	"ip6stack/logger"
	"ip6stack/tcpip"
	"ip6stack/tcpip/buffer"
	"ip6stack/tcpip/header"
	"ip6stack/tcpip/stack"
)

const (
	// ProtocolName is the string representation of the ipv6 protocol name.
	ProtocolName = "ipv6"

	// ProtocolNumber is the ipv6 protocol number.
	ProtocolNumber = header.IPv6ProtocolNumber

	// DefaultHopLimit is the hop limit used when neither the caller nor
	// the device specifies one.
	DefaultHopLimit = 255

	// maxPayloadSize is the maximum size that can be encoded in the 16-bit
	// PayloadLength field of the ipv6 header.
	maxPayloadSize = 0xffff
)

// Options configures an Endpoint.
type Options struct {
	// NIC is the default device used when callers pass a nil interface.
	// May be nil, in which case such calls fail with ErrDeviceUnavailable.
	NIC stack.NetworkInterface

	// Resolver maps on-link unicast destinations to link addresses. May be
	// nil, in which case unicast sends fail with ErrNetworkUnreachable.
	Resolver stack.NeighborResolver
}

// Endpoint is an instance of the engine. It owns the statistics and the
// multicast group membership established by Init; packet buffers live only
// for the duration of a single Send or Input call.
type Endpoint struct {
	nic      stack.NetworkInterface
	resolver stack.NeighborResolver

	mu       sync.RWMutex
	handlers map[tcpip.TransportProtocolNumber]stack.TransportDispatcher

	stats tcpip.IPv6Stats
}

var _ stack.NetworkDispatcher = (*Endpoint)(nil)

// NewEndpoint creates an engine instance with zeroed statistics and no
// registered upper-layer handlers.
func NewEndpoint(opts Options) *Endpoint {
	return &Endpoint{
		nic:      opts.NIC,
		resolver: opts.Resolver,
		handlers: make(map[tcpip.TransportProtocolNumber]stack.TransportDispatcher),
	}
}

// RegisterTransportDispatcher attaches an upper-layer handler for the given
// next-header value. Packets carrying a value with no handler are rejected
// by Input.
func (e *Endpoint) RegisterTransportDispatcher(protocol tcpip.TransportProtocolNumber, d stack.TransportDispatcher) {
	e.mu.Lock()
	e.handlers[protocol] = d
	e.mu.Unlock()
}

// Init joins the link-layer multicast groups every node must listen on: the
// all-nodes group and the solicited-node group of the default device's
// link-local address (which covers its other addresses as well, since they
// share the interface identifier).
func (e *Endpoint) Init() *tcpip.Error {
	nic := e.nic
	if nic == nil {
		return tcpip.ErrDeviceUnavailable
	}

	lladdr := nic.LinkLocalAddress()
	if len(lladdr) != header.IPv6AddressSize {
		return tcpip.ErrBadAddress
	}

	if err := nic.JoinGroup(header.EthernetAllNodesMulticastAddress); err != nil {
		return err
	}
	return nic.JoinGroup(header.SolicitedNodeEthernetAddress(lladdr))
}

// Shutdown leaves the groups joined by Init, using the identical
// derivation. Statistics are not reset.
func (e *Endpoint) Shutdown() {
	nic := e.nic
	if nic == nil {
		return
	}

	nic.LeaveGroup(header.EthernetAllNodesMulticastAddress)

	lladdr := nic.LinkLocalAddress()
	if len(lladdr) == header.IPv6AddressSize {
		nic.LeaveGroup(header.SolicitedNodeEthernetAddress(lladdr))
	}
}

// Stats returns a snapshot of the engine's counters.
func (e *Endpoint) Stats() tcpip.IPv6StatsSnapshot {
	return e.stats.Snapshot()
}

// Send composes a packet around the given payload and hands it to the
// next-hop dispatcher. The hop limit is the first non-zero of the explicit
// argument, the device default and DefaultHopLimit. Payloads that would not
// fit the device MTU are rejected before any serialization; fragmentation
// is not implemented.
func (e *Endpoint) Send(nic stack.NetworkInterface, payload buffer.View, hopLimit uint8,
	protocol tcpip.TransportProtocolNumber, src, dst tcpip.Address) *tcpip.Error {
	if nic == nil {
		nic = e.nic
		if nic == nil {
			return tcpip.ErrDeviceUnavailable
		}
	}

	if len(src) != header.IPv6AddressSize || len(dst) != header.IPv6AddressSize {
		return tcpip.ErrBadAddress
	}

	if len(payload) > maxPayloadSize || header.IPv6MinimumSize+len(payload) > int(nic.MTU()) {
		return tcpip.ErrMessageTooLong
	}

	if hopLimit == 0 {
		hopLimit = nic.DefaultHopLimit()
	}
	if hopLimit == 0 {
		hopLimit = DefaultHopLimit
	}

	return e.sendPacket(nic, &header.IPv6Fields{
		PayloadLength: uint16(len(payload)),
		NextHeader:    uint8(protocol),
		HopLimit:      hopLimit,
		SrcAddr:       src,
		DstAddr:       dst,
	}, payload)
}

// sendPacket decides the next hop for an outbound packet, first match wins:
// loopback destinations are fed straight back into Input, multicast
// destinations get their mapped link address, anything else goes through
// neighbor resolution, with the gateway substituted for off-link targets.
func (e *Endpoint) sendPacket(nic stack.NetworkInterface, fields *header.IPv6Fields, payload buffer.View) *tcpip.Error {
	frame := buffer.NewPrependable(header.EthernetMinimumSize + header.IPv6MinimumSize + len(payload))
	copy(frame.Prepend(len(payload)), payload)
	ip := header.IPv6(frame.Prepend(header.IPv6MinimumSize))
	ip.Encode(fields)

	dst := fields.DstAddr
	var dstLinkAddr tcpip.LinkAddress

	switch {
	case header.IsV6LoopbackAddress(dst):
		e.stats.PacketsSent.Increment()

		// Deliver the packet "away" without building a frame. The
		// destination of a looped-back packet is never loopback again,
		// so this cannot recurse further.
		e.Input(nil, frame.View())
		return nil

	case header.IsV6MulticastAddress(dst):
		dstLinkAddr = header.EthernetAddressFromMulticastIPv6Address(dst)

	default:
		target := dst
		if !isOnLink(nic, dst) {
			target = nic.Gateway()
		}

		if e.resolver == nil {
			e.stats.PacketsSendFailed.Increment()
			return tcpip.ErrNetworkUnreachable
		}

		linkAddr, err := e.resolver.ResolveLinkAddress(nic, target, ip, payload)
		switch err {
		case nil:
			dstLinkAddr = linkAddr
		case tcpip.ErrWouldBlock:
			// The resolver queued the packet and now owns its buffers;
			// the caller may retry later.
			e.stats.PacketsSendFailed.Increment()
			return err
		default:
			e.stats.PacketsSendFailed.Increment()
			return tcpip.ErrNetworkUnreachable
		}
	}

	eth := header.Ethernet(frame.Prepend(header.EthernetMinimumSize))
	eth.Encode(&header.EthernetFields{
		DstAddr: dstLinkAddr,
		SrcAddr: nic.LinkAddress(),
		Type:    ProtocolNumber,
	})

	logger.GetInstance().Info(logger.IP, func() {
		log.Printf("ipv6: sending %d bytes to %v via %v", frame.UsedLength(), dst, dstLinkAddr)
	})

	if err := nic.WritePacket(frame.View(), true); err != nil {
		return err
	}

	e.stats.PacketsSent.Increment()
	return nil
}

// isOnLink reports whether dst is reachable without a gateway. Link-local
// destinations always are; everything else is matched against the leading
// 8 bytes of each configured address, assuming 64-bit prefixes throughout.
func isOnLink(nic stack.NetworkInterface, dst tcpip.Address) bool {
	if header.IsV6LinkLocalAddress(dst) {
		return true
	}

	for _, addr := range nic.Addresses() {
		if len(addr) == header.IPv6AddressSize && addr[:8] == dst[:8] {
			return true
		}
	}

	return false
}

// Input validates an inbound packet and demultiplexes it to the handler
// registered for its next-header value. nic is nil for packets looped back
// locally. Malformed packets are dropped and counted, never propagated.
func (e *Endpoint) Input(nic stack.NetworkInterface, pkt buffer.View) *tcpip.Error {
	if len(pkt) < header.IPv6MinimumSize {
		e.stats.PacketsReceivedBadSize.Increment()
		return tcpip.ErrPacketTooSmall
	}

	h := header.IPv6(pkt)
	if !h.IsValid(len(pkt)) {
		// The fixed header is present, so the only way validation can
		// fail is a packet smaller than the payload length it declares
		// plus the fixed header; it must be bad.
		e.stats.PacketsReceivedBadSize.Increment()
		return tcpip.ErrPayloadLengthMismatch
	}
	dlen := int(h.PayloadLength())

	protocol := h.TransportProtocol()

	e.mu.RLock()
	handler, ok := e.handlers[protocol]
	e.mu.RUnlock()

	if !ok {
		// No Parameter Problem message is generated for unhandled
		// next-header values.
		logger.GetInstance().Info(logger.IP, func() {
			log.Printf("ipv6: dropping packet with unhandled next header %d", protocol)
		})
		return tcpip.ErrUnknownProtocol
	}

	return handler.DeliverTransportPacket(nic, protocol, h, pkt[header.IPv6MinimumSize:header.IPv6MinimumSize+dlen])
}

// DeliverNetworkPacket implements stack.NetworkDispatcher, letting link
// devices hand their inbound packets to the engine.
func (e *Endpoint) DeliverNetworkPacket(nic stack.NetworkInterface, protocol tcpip.NetworkProtocolNumber, pkt buffer.View) {
	if protocol != ProtocolNumber {
		return
	}
	e.Input(nic, pkt)
}
