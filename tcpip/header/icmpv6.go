package header

import "ip6stack/tcpip"

const (
	// ICMPv6ProtocolNumber is ICMPv6's transport protocol number, the
	// value carried in the next-header field of packets destined to it.
	ICMPv6ProtocolNumber tcpip.TransportProtocolNumber = 58

	// ICMPv6MinimumSize is the minimum size of a valid ICMPv6 packet.
	ICMPv6MinimumSize = 8
)
