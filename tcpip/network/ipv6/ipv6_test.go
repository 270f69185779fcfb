package ipv6_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"ip6stack/tcpip"
	"ip6stack/tcpip/buffer"
	"ip6stack/tcpip/header"
	"ip6stack/tcpip/link/channel"
	"ip6stack/tcpip/network/ipv6"
	"ip6stack/tcpip/stack"
)

const (
	defaultMTU = 1500

	testLinkAddr = tcpip.LinkAddress("\x52\x54\x00\x12\x34\x56")
	peerLinkAddr = tcpip.LinkAddress("\x52\x54\x00\xaa\xbb\xcc")

	testLinkLocalAddr = tcpip.Address("\xfe\x80\x00\x00\x00\x00\x00\x00\x02\x12\x34\xff\xfe\x56\x78\x9a")
	testAddr          = tcpip.Address("\x20\x01\x0d\xb8\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x01")
	testGateway       = tcpip.Address("\x20\x01\x0d\xb8\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\xff\xff")
	onLinkDst         = tcpip.Address("\x20\x01\x0d\xb8\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x42")
	offLinkDst        = tcpip.Address("\x20\x01\xde\xad\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x01")
	linkLocalDst      = tcpip.Address("\xfe\x80\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x09")
)

// testResolver scripts the three neighbor resolution outcomes and records
// what it was asked to resolve.
type testResolver struct {
	linkAddr   tcpip.LinkAddress
	err        *tcpip.Error
	gotTarget  tcpip.Address
	gotHdr     header.IPv6
	gotPayload buffer.View
	calls      int
}

func (r *testResolver) ResolveLinkAddress(nic stack.NetworkInterface, target tcpip.Address,
	hdr header.IPv6, payload buffer.View) (tcpip.LinkAddress, *tcpip.Error) {
	r.calls++
	r.gotTarget = target
	r.gotHdr = hdr
	r.gotPayload = payload
	if r.err != nil {
		return "", r.err
	}
	return r.linkAddr, nil
}

type delivery struct {
	fromLink   bool
	protocol   tcpip.TransportProtocolNumber
	nextHeader uint8
	payload    string
}

// testDispatcher records upper-layer deliveries.
type testDispatcher struct {
	deliveries []delivery
}

func (d *testDispatcher) DeliverTransportPacket(nic stack.NetworkInterface, protocol tcpip.TransportProtocolNumber,
	h header.IPv6, payload buffer.View) *tcpip.Error {
	d.deliveries = append(d.deliveries, delivery{
		fromLink:   nic != nil,
		protocol:   protocol,
		nextHeader: h.NextHeader(),
		payload:    string(payload),
	})
	return nil
}

func newTestStack(t *testing.T) (*ipv6.Endpoint, *channel.Endpoint, *testResolver, *testDispatcher) {
	t.Helper()

	nic := channel.New(16, defaultMTU, testLinkAddr)
	nic.ConfiguredAddrs = []tcpip.Address{testAddr}
	nic.GatewayAddr = testGateway
	nic.LinkLocalAddr = testLinkLocalAddr

	resolver := &testResolver{linkAddr: peerLinkAddr}
	e := ipv6.NewEndpoint(ipv6.Options{NIC: nic, Resolver: resolver})

	dispatcher := &testDispatcher{}
	e.RegisterTransportDispatcher(header.ICMPv6ProtocolNumber, dispatcher)
	nic.Attach(e)

	return e, nic, resolver, dispatcher
}

func readFrame(t *testing.T, nic *channel.Endpoint) buffer.View {
	t.Helper()
	select {
	case p := <-nic.C:
		return p.Frame
	default:
		t.Fatal("no frame was transmitted")
		return nil
	}
}

func makePacket(nextHeader uint8, payload string) buffer.View {
	pkt := buffer.NewView(header.IPv6MinimumSize + len(payload))
	header.IPv6(pkt).Encode(&header.IPv6Fields{
		PayloadLength: uint16(len(payload)),
		NextHeader:    nextHeader,
		HopLimit:      64,
		SrcAddr:       onLinkDst,
		DstAddr:       testAddr,
	})
	copy(pkt[header.IPv6MinimumSize:], payload)
	return pkt
}

func TestSendLoopback(t *testing.T) {
	e, nic, _, dispatcher := newTestStack(t)

	if err := e.Send(nil, buffer.View("PING"), 0, header.ICMPv6ProtocolNumber, testAddr, header.IPv6Loopback); err != nil {
		t.Fatalf("Send to loopback failed: %v", err)
	}

	want := []delivery{{fromLink: false, protocol: header.ICMPv6ProtocolNumber, nextHeader: 58, payload: "PING"}}
	if diff := cmp.Diff(want, dispatcher.deliveries, cmp.AllowUnexported(delivery{})); diff != "" {
		t.Errorf("loopback delivery mismatch (-want +got):\n%s", diff)
	}

	if got := e.Stats().PacketsSent; got != 1 {
		t.Errorf("PacketsSent = %d, want 1", got)
	}
	if n := nic.Drain(); n != 0 {
		t.Errorf("loopback built %d link-layer frames, want 0", n)
	}
}

func TestSendMulticast(t *testing.T) {
	e, nic, resolver, _ := newTestStack(t)

	if err := e.Send(nil, buffer.View("hello"), 0, header.ICMPv6ProtocolNumber, testLinkLocalAddr, header.IPv6AllNodesMulticastAddress); err != nil {
		t.Fatalf("Send to all-nodes failed: %v", err)
	}
	if resolver.calls != 0 {
		t.Errorf("multicast send consulted the resolver %d times", resolver.calls)
	}

	frame := readFrame(t, nic)
	eth := header.Ethernet(frame)
	if got, want := eth.DestinationAddress(), tcpip.LinkAddress("\x33\x33\x00\x00\x00\x01"); got != want {
		t.Errorf("destination MAC = %v, want %v", got, want)
	}
	if got := eth.SourceAddress(); got != testLinkAddr {
		t.Errorf("source MAC = %v, want %v", got, testLinkAddr)
	}
	if eth.Type() != header.IPv6ProtocolNumber {
		t.Errorf("ethertype = %#x, want %#x", eth.Type(), header.IPv6ProtocolNumber)
	}

	ip := header.IPv6(frame[header.EthernetMinimumSize:])
	if got := ip.DestinationAddress(); got != header.IPv6AllNodesMulticastAddress {
		t.Errorf("destination address = %v, want all-nodes", got)
	}
	if got := string(ip.Payload()); got != "hello" {
		t.Errorf("payload = %q, want %q", got, "hello")
	}
}

func TestSendMulticastLinkAddressDerivation(t *testing.T) {
	e, nic, _, _ := newTestStack(t)

	dsts := []tcpip.Address{
		header.IPv6AllRoutersMulticastAddress,
		tcpip.Address("\xff\x02\x00\x00\x00\x00\x00\x00\x00\x00\x00\x01\xff\x56\x78\x9a"),
	}
	for _, dst := range dsts {
		if err := e.Send(nil, nil, 0, header.ICMPv6ProtocolNumber, testLinkLocalAddr, dst); err != nil {
			t.Fatalf("Send to %v failed: %v", dst, err)
		}
		frame := readFrame(t, nic)
		want := tcpip.LinkAddress("\x33\x33" + string(dst[12:]))
		if got := header.Ethernet(frame).DestinationAddress(); got != want {
			t.Errorf("MAC for %v = %v, want %v", dst, got, want)
		}
	}
}

func TestSendHopLimitPrecedence(t *testing.T) {
	tests := []struct {
		name       string
		arg        uint8
		nicDefault uint8
		want       uint8
	}{
		{"explicit argument wins", 5, 64, 5},
		{"device default", 0, 64, 64},
		{"fallback constant", 0, 0, 255},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			e, nic, _, _ := newTestStack(t)
			nic.HopLimit = test.nicDefault

			if err := e.Send(nil, nil, test.arg, header.ICMPv6ProtocolNumber, testLinkLocalAddr, header.IPv6AllNodesMulticastAddress); err != nil {
				t.Fatalf("Send failed: %v", err)
			}

			frame := readFrame(t, nic)
			ip := header.IPv6(frame[header.EthernetMinimumSize:])
			if got := ip.HopLimit(); got != test.want {
				t.Errorf("hop limit = %d, want %d", got, test.want)
			}
		})
	}
}

func TestSendUnicastOnLink(t *testing.T) {
	e, nic, resolver, _ := newTestStack(t)

	if err := e.Send(nil, buffer.View("data"), 0, header.ICMPv6ProtocolNumber, testAddr, onLinkDst); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if resolver.gotTarget != onLinkDst {
		t.Errorf("resolver target = %v, want the destination %v", resolver.gotTarget, onLinkDst)
	}

	frame := readFrame(t, nic)
	if got := header.Ethernet(frame).DestinationAddress(); got != peerLinkAddr {
		t.Errorf("destination MAC = %v, want resolved %v", got, peerLinkAddr)
	}
	if got := e.Stats().PacketsSent; got != 1 {
		t.Errorf("PacketsSent = %d, want 1", got)
	}
}

func TestSendUnicastResolverSeesPacket(t *testing.T) {
	e, nic, resolver, _ := newTestStack(t)

	if err := e.Send(nil, buffer.View("neighbor payload"), 0, header.ICMPv6ProtocolNumber, testAddr, onLinkDst); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if got := string(resolver.gotPayload); got != "neighbor payload" {
		t.Errorf("resolver payload = %q, want %q", got, "neighbor payload")
	}
	if got := resolver.gotHdr.PayloadLength(); got != uint16(len("neighbor payload")) {
		t.Errorf("resolver header payload length = %d, want %d", got, len("neighbor payload"))
	}
	if got := resolver.gotHdr.DestinationAddress(); got != onLinkDst {
		t.Errorf("resolver header destination = %v, want %v", got, onLinkDst)
	}

	frame := readFrame(t, nic)
	ip := header.IPv6(frame[header.EthernetMinimumSize:])
	if got := string(ip.Payload()); got != "neighbor payload" {
		t.Errorf("transmitted payload = %q, want %q", got, "neighbor payload")
	}
}

func TestSendUnicastLinkLocalIsOnLink(t *testing.T) {
	e, _, resolver, _ := newTestStack(t)

	if err := e.Send(nil, nil, 0, header.ICMPv6ProtocolNumber, testLinkLocalAddr, linkLocalDst); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if resolver.gotTarget != linkLocalDst {
		t.Errorf("resolver target = %v, want %v", resolver.gotTarget, linkLocalDst)
	}
}

func TestSendUnicastOffLinkUsesGateway(t *testing.T) {
	e, nic, resolver, _ := newTestStack(t)

	if err := e.Send(nil, nil, 0, header.ICMPv6ProtocolNumber, testAddr, offLinkDst); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if resolver.gotTarget != testGateway {
		t.Errorf("resolver target = %v, want the gateway %v", resolver.gotTarget, testGateway)
	}

	// The packet itself still names the final destination.
	frame := readFrame(t, nic)
	ip := header.IPv6(frame[header.EthernetMinimumSize:])
	if got := ip.DestinationAddress(); got != offLinkDst {
		t.Errorf("destination address = %v, want %v", got, offLinkDst)
	}
}

func TestSendResolverUnreachable(t *testing.T) {
	e, nic, resolver, _ := newTestStack(t)
	resolver.err = tcpip.ErrNoLinkAddress

	if err := e.Send(nil, nil, 0, header.ICMPv6ProtocolNumber, testAddr, onLinkDst); err != tcpip.ErrNetworkUnreachable {
		t.Fatalf("Send returned %v, want ErrNetworkUnreachable", err)
	}

	want := tcpip.IPv6StatsSnapshot{PacketsSendFailed: 1}
	if diff := cmp.Diff(want, e.Stats()); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
	if n := nic.Drain(); n != 0 {
		t.Errorf("%d frames transmitted after resolution failure, want 0", n)
	}
}

func TestSendResolverPending(t *testing.T) {
	e, _, resolver, _ := newTestStack(t)
	resolver.err = tcpip.ErrWouldBlock

	if err := e.Send(nil, nil, 0, header.ICMPv6ProtocolNumber, testAddr, onLinkDst); err != tcpip.ErrWouldBlock {
		t.Fatalf("Send returned %v, want ErrWouldBlock", err)
	}

	want := tcpip.IPv6StatsSnapshot{PacketsSendFailed: 1}
	if diff := cmp.Diff(want, e.Stats()); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestSendNoDevice(t *testing.T) {
	e := ipv6.NewEndpoint(ipv6.Options{})

	if err := e.Send(nil, nil, 0, header.ICMPv6ProtocolNumber, testAddr, onLinkDst); err != tcpip.ErrDeviceUnavailable {
		t.Fatalf("Send returned %v, want ErrDeviceUnavailable", err)
	}
}

func TestSendPayloadExceedsMTU(t *testing.T) {
	nic := channel.New(1, 100, testLinkAddr)
	nic.LinkLocalAddr = testLinkLocalAddr
	e := ipv6.NewEndpoint(ipv6.Options{NIC: nic})

	payload := buffer.NewView(100)
	if err := e.Send(nil, payload, 0, header.ICMPv6ProtocolNumber, testLinkLocalAddr, header.IPv6AllNodesMulticastAddress); err != tcpip.ErrMessageTooLong {
		t.Fatalf("Send returned %v, want ErrMessageTooLong", err)
	}
	if n := nic.Drain(); n != 0 {
		t.Errorf("%d frames transmitted for an oversized payload, want 0", n)
	}
}

func TestInputTooSmall(t *testing.T) {
	e, _, _, dispatcher := newTestStack(t)

	if err := e.Input(nil, buffer.NewView(header.IPv6MinimumSize-1)); err != tcpip.ErrPacketTooSmall {
		t.Fatalf("Input returned %v, want ErrPacketTooSmall", err)
	}

	want := tcpip.IPv6StatsSnapshot{PacketsReceivedBadSize: 1}
	if diff := cmp.Diff(want, e.Stats()); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
	if len(dispatcher.deliveries) != 0 {
		t.Errorf("dropped packet was delivered upward")
	}
}

func TestInputPayloadLengthMismatch(t *testing.T) {
	e, _, _, dispatcher := newTestStack(t)

	// A 50-byte buffer whose header declares 100 bytes of payload.
	pkt := buffer.NewView(50)
	header.IPv6(pkt).Encode(&header.IPv6Fields{
		PayloadLength: 100,
		NextHeader:    uint8(header.ICMPv6ProtocolNumber),
		HopLimit:      64,
		SrcAddr:       onLinkDst,
		DstAddr:       testAddr,
	})

	if err := e.Input(nil, pkt); err != tcpip.ErrPayloadLengthMismatch {
		t.Fatalf("Input returned %v, want ErrPayloadLengthMismatch", err)
	}

	want := tcpip.IPv6StatsSnapshot{PacketsReceivedBadSize: 1}
	if diff := cmp.Diff(want, e.Stats()); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
	if len(dispatcher.deliveries) != 0 {
		t.Errorf("dropped packet was delivered upward")
	}
}

func TestInputUnknownNextHeader(t *testing.T) {
	e, _, _, dispatcher := newTestStack(t)

	if err := e.Input(nil, makePacket(17, "datagram")); err != tcpip.ErrUnknownProtocol {
		t.Fatalf("Input returned %v, want ErrUnknownProtocol", err)
	}
	if len(dispatcher.deliveries) != 0 {
		t.Errorf("packet with unhandled next header was delivered upward")
	}

	want := tcpip.IPv6StatsSnapshot{}
	if diff := cmp.Diff(want, e.Stats()); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestInputDelivery(t *testing.T) {
	e, _, _, dispatcher := newTestStack(t)

	// Trailing link-layer padding beyond the declared payload must not
	// reach the upper layer.
	pkt := makePacket(uint8(header.ICMPv6ProtocolNumber), "PING")
	pkt = append(pkt, 0, 0, 0, 0)

	if err := e.Input(nil, pkt); err != nil {
		t.Fatalf("Input failed: %v", err)
	}

	want := []delivery{{fromLink: false, protocol: header.ICMPv6ProtocolNumber, nextHeader: 58, payload: "PING"}}
	if diff := cmp.Diff(want, dispatcher.deliveries, cmp.AllowUnexported(delivery{})); diff != "" {
		t.Errorf("delivery mismatch (-want +got):\n%s", diff)
	}
}

func TestInjectFromLinkDevice(t *testing.T) {
	_, nic, _, dispatcher := newTestStack(t)

	nic.Inject(header.IPv6ProtocolNumber, makePacket(uint8(header.ICMPv6ProtocolNumber), "PING"))

	want := []delivery{{fromLink: true, protocol: header.ICMPv6ProtocolNumber, nextHeader: 58, payload: "PING"}}
	if diff := cmp.Diff(want, dispatcher.deliveries, cmp.AllowUnexported(delivery{})); diff != "" {
		t.Errorf("delivery mismatch (-want +got):\n%s", diff)
	}
}

func TestInitShutdownGroupMembership(t *testing.T) {
	e, nic, _, _ := newTestStack(t)

	if err := e.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	want := []tcpip.LinkAddress{
		"\x33\x33\x00\x00\x00\x01",
		"\x33\x33\xff\x56\x78\x9a", // solicited-node group of the link-local address
	}
	if diff := cmp.Diff(want, nic.Groups()); diff != "" {
		t.Errorf("groups after Init mismatch (-want +got):\n%s", diff)
	}

	e.Shutdown()
	if groups := nic.Groups(); len(groups) != 0 {
		t.Errorf("groups after Shutdown = %v, want none", groups)
	}
}

func TestChecksumDoesNotTouchStats(t *testing.T) {
	e, _, _, _ := newTestStack(t)

	first := header.PseudoHeaderChecksum(testAddr, onLinkDst, 4, header.ICMPv6ProtocolNumber)
	second := header.PseudoHeaderChecksum(testAddr, onLinkDst, 4, header.ICMPv6ProtocolNumber)
	if first != second {
		t.Errorf("checksum not deterministic: %#x != %#x", first, second)
	}

	want := tcpip.IPv6StatsSnapshot{}
	if diff := cmp.Diff(want, e.Stats()); diff != "" {
		t.Errorf("stats mutated by checksum (-want +got):\n%s", diff)
	}
}
