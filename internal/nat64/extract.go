package nat64

import (
	"fmt"
	"net/netip"
)

// validPrefixLengths are the RFC 6052 §2.2 well-known prefix lengths. /96
// is handled by the same loop as the rest: skipping the reserved "u"
// octet at byte 8 is a no-op once the prefix already covers it.
var validPrefixLengths = map[int]bool{
	32: true, 40: true, 48: true, 56: true, 64: true, 96: true,
}

// ExtractV4 extracts the embedded IPv4 address from an IPv6 address
// carrying it at the given RFC 6052 prefix length. It implements all
// six well-known prefix lengths, including the "u" octet (byte 8,
// always reserved/zero) excision required for lengths shorter than
// /96.
func ExtractV4(addr netip.Addr, prefixLen int) (netip.Addr, error) {
	if !addr.Is6() {
		return netip.Addr{}, fmt.Errorf("extract_v4 %s: %w", addr, ErrNotV6)
	}
	if !validPrefixLengths[prefixLen] {
		return netip.Addr{}, fmt.Errorf("extract_v4 prefix length %d: %w", prefixLen, ErrUnsupportedPrefixLen)
	}

	b := addr.As16()
	var v4 [4]byte
	vIdx := 0
	for srcIdx := prefixLen / 8; vIdx < 4; srcIdx++ {
		if srcIdx == 8 {
			continue // byte 8 is the reserved "u" octet, never part of v4
		}
		v4[vIdx] = b[srcIdx]
		vIdx++
	}
	return netip.AddrFrom4(v4), nil
}
