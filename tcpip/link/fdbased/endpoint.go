//go:build linux

// Package fdbased provides a network interface backed by a raw AF_PACKET
// socket bound to a host device. Frames written to it go straight to the
// wire; inbound IPv6 frames are filtered in the kernel with a classic BPF
// program and delivered to the attached network dispatcher.
package fdbased

import (
	"net"
	"sync"

	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"

	"ip6stack/tcpip"
	"ip6stack/tcpip/buffer"
	"ip6stack/tcpip/header"
	"ip6stack/tcpip/stack"
)

// Options configures the parts of the device the kernel cannot tell us:
// the IPv6 addressing of the interface and the error callback.
type Options struct {
	// MTU overrides the device MTU when non-zero.
	MTU uint32

	// Addresses are the configured unicast addresses (64-bit on-link
	// prefixes implied).
	Addresses []tcpip.Address

	// Gateway is the default gateway.
	Gateway tcpip.Address

	// LinkLocal is the device's link-local address.
	LinkLocal tcpip.Address

	// HopLimit is the default hop limit; 0 means no preference.
	HopLimit uint8

	// ClosedFunc is called once when the dispatch loop stops on an error.
	ClosedFunc func(*tcpip.Error)
}

// Endpoint is an AF_PACKET-backed stack.NetworkInterface.
type Endpoint struct {
	fd       int
	ifindex  int
	mtu      uint32
	linkAddr tcpip.LinkAddress

	addrs     []tcpip.Address
	gateway   tcpip.Address
	linkLocal tcpip.Address
	hopLimit  uint8

	closed func(*tcpip.Error)

	mu         sync.Mutex
	dispatcher stack.NetworkDispatcher
}

var _ stack.NetworkInterface = (*Endpoint)(nil)

func htons(v uint16) uint16 {
	return v<<8 | v>>8
}

// ipv6Filter accepts frames whose ethertype is IPv6 and drops everything
// else before it reaches userspace.
var ipv6Filter = []bpf.Instruction{
	bpf.LoadAbsolute{Off: 12, Size: 2},
	bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: uint32(header.IPv6ProtocolNumber), SkipTrue: 1},
	bpf.RetConstant{Val: 0xffff},
	bpf.RetConstant{Val: 0},
}

// New opens a raw socket on the named host interface and returns a device
// ready to be attached.
func New(ifaceName string, opts Options) (*Endpoint, error) {
	ni, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_IPV6)))
	if err != nil {
		return nil, err
	}

	if err := unix.Bind(fd, &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_IPV6),
		Ifindex:  ni.Index,
	}); err != nil {
		unix.Close(fd)
		return nil, err
	}

	if err := attachFilter(fd, ipv6Filter); err != nil {
		unix.Close(fd)
		return nil, err
	}

	mtu := opts.MTU
	if mtu == 0 {
		mtu = uint32(ni.MTU)
	}

	return &Endpoint{
		fd:        fd,
		ifindex:   ni.Index,
		mtu:       mtu,
		linkAddr:  tcpip.LinkAddress(ni.HardwareAddr),
		addrs:     opts.Addresses,
		gateway:   opts.Gateway,
		linkLocal: opts.LinkLocal,
		hopLimit:  opts.HopLimit,
		closed:    opts.ClosedFunc,
	}, nil
}

func attachFilter(fd int, filter []bpf.Instruction) error {
	assembled, err := bpf.Assemble(filter)
	if err != nil {
		return err
	}

	prog := make([]unix.SockFilter, len(assembled))
	for i, ins := range assembled {
		prog[i] = unix.SockFilter{Code: ins.Op, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}

	return unix.SetsockoptSockFprog(fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, &unix.SockFprog{
		Len:    uint16(len(prog)),
		Filter: &prog[0],
	})
}

// Attach starts the inbound dispatch loop delivering to dispatcher.
func (e *Endpoint) Attach(dispatcher stack.NetworkDispatcher) {
	e.dispatcher = dispatcher
	go e.dispatchLoop()
}

// IsAttached returns whether a dispatcher is attached.
func (e *Endpoint) IsAttached() bool {
	return e.dispatcher != nil
}

// Close shuts the socket down, stopping the dispatch loop.
func (e *Endpoint) Close() {
	unix.Close(e.fd)
}

func (e *Endpoint) dispatchLoop() {
	buf := make([]byte, int(e.mtu)+header.EthernetMinimumSize)
	for {
		n, err := unix.Read(e.fd, buf)
		if err != nil {
			if e.closed != nil {
				e.closed(tcpip.ErrBadLinkEndpoint)
			}
			return
		}
		if n < header.EthernetMinimumSize {
			continue
		}

		eth := header.Ethernet(buf[:n])
		if eth.Type() != header.IPv6ProtocolNumber {
			continue
		}

		e.dispatcher.DeliverNetworkPacket(e, eth.Type(), buffer.NewViewFromBytes(buf[header.EthernetMinimumSize:n]))
	}
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
	return e.addrs
}

// Gateway implements stack.NetworkInterface.
func (e *Endpoint) Gateway() tcpip.Address {
	return e.gateway
}

// LinkLocalAddress implements stack.NetworkInterface.
func (e *Endpoint) LinkLocalAddress() tcpip.Address {
	return e.linkLocal
}

// DefaultHopLimit implements stack.NetworkInterface.
func (e *Endpoint) DefaultHopLimit() uint8 {
	return e.hopLimit
}

// WritePacket implements stack.NetworkInterface, transmitting one frame.
func (e *Endpoint) WritePacket(frame buffer.View, blocking bool) *tcpip.Error {
	flags := 0
	if !blocking {
		flags = unix.MSG_DONTWAIT
	}

	err := unix.Sendto(e.fd, frame, flags, &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_IPV6),
		Ifindex:  e.ifindex,
		Halen:    header.EthernetAddressSize,
	})
	if err == unix.EWOULDBLOCK || err == unix.EAGAIN {
		return tcpip.ErrWouldBlock
	}
	if err != nil {
		return tcpip.ErrBadLinkEndpoint
	}
	return nil
}

// JoinGroup implements stack.NetworkInterface via PACKET_ADD_MEMBERSHIP.
func (e *Endpoint) JoinGroup(addr tcpip.LinkAddress) *tcpip.Error {
	return e.setMembership(unix.PACKET_ADD_MEMBERSHIP, addr)
}

// LeaveGroup implements stack.NetworkInterface via PACKET_DROP_MEMBERSHIP.
func (e *Endpoint) LeaveGroup(addr tcpip.LinkAddress) *tcpip.Error {
	return e.setMembership(unix.PACKET_DROP_MEMBERSHIP, addr)
}

func (e *Endpoint) setMembership(opt int, addr tcpip.LinkAddress) *tcpip.Error {
	if len(addr) != header.EthernetAddressSize {
		return tcpip.ErrBadAddress
	}

	mreq := unix.PacketMreq{
		Ifindex: int32(e.ifindex),
		Type:    unix.PACKET_MR_MULTICAST,
		Alen:    header.EthernetAddressSize,
	}
	copy(mreq.Address[:], addr)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := unix.SetsockoptPacketMreq(e.fd, unix.SOL_PACKET, opt, &mreq); err != nil {
		return tcpip.ErrBadLinkEndpoint
	}
	return nil
}
