package nat64

import (
	"net/netip"
	"testing"
)

func TestExtractV4(t *testing.T) {
	tests := []struct {
		name      string
		v6        string
		prefixLen int
		wantV4    string
		wantErrIs error
	}{
		{name: "well-known /96 prefix", v6: "64:ff9b::198.51.100.7", prefixLen: 96, wantV4: "198.51.100.7"},
		{name: "unsupported prefix length", v6: "64:ff9b::198.51.100.7", prefixLen: 80, wantErrIs: ErrUnsupportedPrefixLen},
		{name: "not an ipv6 address", v6: "198.51.100.7", prefixLen: 96, wantErrIs: ErrNotV6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := netip.MustParseAddr(tt.v6)
			got, err := ExtractV4(addr, tt.prefixLen)
			if tt.wantErrIs != nil {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != netip.MustParseAddr(tt.wantV4) {
				t.Fatalf("got %v, want %v", got, netip.MustParseAddr(tt.wantV4))
			}
		})
	}
}

// TestExtractV4RoundTrip exercises every well-known prefix length by
// hand-constructing the IPv6 address RFC 6052 §2.2's figure describes
// (v4 bits split around the reserved byte 8 "u" octet) and checking
// ExtractV4 recovers the original IPv4 address.
func TestExtractV4RoundTrip(t *testing.T) {
	v4Bytes := [4]byte{198, 51, 100, 7}

	build := func(prefixLen int) netip.Addr {
		var b [16]byte
		vIdx := 0
		for srcIdx := prefixLen / 8; vIdx < 4; srcIdx++ {
			if srcIdx == 8 {
				continue
			}
			b[srcIdx] = v4Bytes[vIdx]
			vIdx++
		}
		return netip.AddrFrom16(b)
	}

	for _, pl := range []int{32, 40, 48, 56, 64, 96} {
		addr := build(pl)
		got, err := ExtractV4(addr, pl)
		if err != nil {
			t.Fatalf("prefix %d: unexpected error: %v", pl, err)
		}
		want := netip.AddrFrom4(v4Bytes)
		if got != want {
			t.Fatalf("prefix %d: got %v, want %v", pl, got, want)
		}
	}
}
