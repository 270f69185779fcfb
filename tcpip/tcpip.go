// Package tcpip defines the value types and the error taxonomy shared by
// every layer of the IPv6 engine. Addresses are immutable string-backed
// byte sequences so they can be copied and compared by value.
package tcpip

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Error is the error type returned by the engine. Values are compared by
// pointer identity, one variable per condition.
type Error struct {
	msg         string
	ignoreStats bool
}

func (e *Error) String() string {
	return e.msg
}

// IgnoreStats returns true for transient conditions that must not be
// reflected in failure counters by callers that aggregate them.
func (e *Error) IgnoreStats() bool {
	return e.ignoreStats
}

var (
	ErrDeviceUnavailable     = &Error{msg: "no network device available"}
	ErrPacketTooSmall        = &Error{msg: "packet smaller than fixed header"}
	ErrPayloadLengthMismatch = &Error{msg: "declared payload length exceeds packet"}
	ErrNetworkUnreachable    = &Error{msg: "network is unreachable"}
	ErrWouldBlock            = &Error{msg: "link address resolution pending", ignoreStats: true}
	ErrNoLinkAddress         = &Error{msg: "no remote link address"}
	ErrUnknownProtocol       = &Error{msg: "unknown next header protocol"}
	ErrMessageTooLong        = &Error{msg: "message too long"}
	ErrBadAddress            = &Error{msg: "bad address"}
	ErrBadLinkEndpoint       = &Error{msg: "bad link layer endpoint"}
)

// Address is a network-layer address. For IPv6 it is always 16 bytes.
type Address string

// String implements fmt.Stringer, printing the address as colon-separated
// hex groups.
func (a Address) String() string {
	if len(a) != 16 {
		return fmt.Sprintf("%x", string(a))
	}
	var b strings.Builder
	for i := 0; i < 16; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		fmt.Fprintf(&b, "%02x%02x", a[i], a[i+1])
	}
	return b.String()
}

// LinkAddress is a byte slice cast as a string that represents a link-layer
// address. It is typically a 6-byte MAC address.
type LinkAddress string

func (a LinkAddress) String() string {
	if len(a) != 6 {
		return fmt.Sprintf("%x", string(a))
	}
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}

// NetworkProtocolNumber is an ethertype-style network protocol identifier.
type NetworkProtocolNumber uint32

// TransportProtocolNumber is the value carried in the IPv6 next-header
// field for an upper-layer protocol.
type TransportProtocolNumber uint32

// StatCounter is an atomic counter. The zero value is ready to use.
type StatCounter struct {
	count uint64
}

func (s *StatCounter) Increment() {
	atomic.AddUint64(&s.count, 1)
}

func (s *StatCounter) Value() uint64 {
	return atomic.LoadUint64(&s.count)
}

// IPv6Stats holds the counters mutated by the send and input paths. The
// counters are atomic so the two paths may run from different goroutines
// without extra locking.
type IPv6Stats struct {
	// PacketsSent counts packets handed to a link device or looped back.
	PacketsSent StatCounter

	// PacketsSendFailed counts packets dropped because the next hop could
	// not be resolved, including resolutions still pending.
	PacketsSendFailed StatCounter

	// PacketsReceivedBadSize counts inbound packets dropped by size
	// validation before demultiplexing.
	PacketsReceivedBadSize StatCounter
}

// IPv6StatsSnapshot is an immutable copy of IPv6Stats.
type IPv6StatsSnapshot struct {
	PacketsSent            uint64
	PacketsSendFailed      uint64
	PacketsReceivedBadSize uint64
}

// Snapshot returns a point-in-time copy of the counters.
func (s *IPv6Stats) Snapshot() IPv6StatsSnapshot {
	return IPv6StatsSnapshot{
		PacketsSent:            s.PacketsSent.Value(),
		PacketsSendFailed:      s.PacketsSendFailed.Value(),
		PacketsReceivedBadSize: s.PacketsReceivedBadSize.Value(),
	}
}
