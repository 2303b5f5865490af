package nat64

import "net/netip"

// Protocol is the L4 protocol kind a BIB entry or session is keyed on.
type Protocol uint8

const (
	ProtoUDP Protocol = iota + 1
	ProtoTCP
	ProtoICMP
)

func (p Protocol) String() string {
	switch p {
	case ProtoUDP:
		return "udp"
	case ProtoTCP:
		return "tcp"
	case ProtoICMP:
		return "icmp"
	default:
		return "unknown"
	}
}

// V6Transport is an IPv6 transport address: an address plus a port (or,
// for ICMP, the query identifier carried in the port field).
type V6Transport struct {
	Addr netip.Addr
	Port uint16
}

// V4Transport is an IPv4 transport address, symmetric with V6Transport.
type V4Transport struct {
	Addr netip.Addr
	Port uint16
}

// Direction is the side a packet arrived from. It doubles as the TCP
// FSM's event direction and the Filter/Update entry point's ingress
// direction, since both concepts are the same "which side observed
// this packet" question.
type Direction uint8

const (
	DirFromV6 Direction = iota
	DirFromV4
)

func (d Direction) String() string {
	if d == DirFromV6 {
		return "from-v6"
	}
	return "from-v4"
}

// TCPFlags is the subset of TCP control bits the FSM cares about.
// Payload inspection is out of scope.
type TCPFlags struct {
	SYN bool
	FIN bool
	RST bool
}

// Verdict is the packet-processing entry point's result.
type Verdict uint8

const (
	Accept Verdict = iota
	Drop
)

func (v Verdict) String() string {
	if v == Accept {
		return "accept"
	}
	return "drop"
}
