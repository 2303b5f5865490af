package nat64

import (
	"errors"
	"net/netip"
	"testing"
)

func newTestPool4(t *testing.T, addrs ...string) *Pool4 {
	t.Helper()
	p := NewPool4(nil, nil)
	for _, a := range addrs {
		if err := p.Register(netip.MustParseAddr(a)); err != nil {
			t.Fatalf("register %s: %v", a, err)
		}
	}
	return p
}

func TestPool4RegisterRemove(t *testing.T) {
	p := newTestPool4(t, "203.0.113.5")

	if !p.Contains(netip.MustParseAddr("203.0.113.5")) {
		t.Fatal("expected address to be registered")
	}
	if err := p.Register(netip.MustParseAddr("203.0.113.5")); !errors.Is(err, ErrAlreadyPresent) {
		t.Fatalf("expected ErrAlreadyPresent, got %v", err)
	}
	if err := p.Remove(netip.MustParseAddr("203.0.113.5")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if p.Contains(netip.MustParseAddr("203.0.113.5")) {
		t.Fatal("expected address to be gone")
	}
	if err := p.Remove(netip.MustParseAddr("203.0.113.5")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// TestPool4PortParityPreservation checks that an odd, high IPv6
// source port yields an odd port in [1025, 65535].
func TestPool4PortParityPreservation(t *testing.T) {
	p := newTestPool4(t, "203.0.113.5")
	hint := V4Transport{Addr: netip.MustParseAddr("203.0.113.5"), Port: 4001}

	got, err := p.GetSimilar(ProtoTCP, hint)
	if err != nil {
		t.Fatalf("get_similar: %v", err)
	}
	if got.Port%2 == 0 {
		t.Fatalf("expected odd port, got %d", got.Port)
	}
	if got.Port < 1025 {
		t.Fatalf("expected high port, got %d", got.Port)
	}
}

// TestPool4Exhaustion checks that a section exhausts after its ports
// are all allocated, and the next request for that section returns
// ErrPoolExhausted.
func TestPool4Exhaustion(t *testing.T) {
	p := newTestPool4(t, "203.0.113.5")
	addr := netip.MustParseAddr("203.0.113.5")

	// Even-high section: 1024, 1026, ..., 65534 -> 32256 ports.
	const evenHighCount = (65534-1024)/2 + 1
	for i := 0; i < evenHighCount; i++ {
		if _, err := p.GetSimilar(ProtoTCP, V4Transport{Addr: addr, Port: 1024}); err != nil {
			t.Fatalf("unexpected exhaustion at iteration %d: %v", i, err)
		}
	}
	if _, err := p.GetSimilar(ProtoTCP, V4Transport{Addr: addr, Port: 1024}); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}
}

func TestPool4ReturnAllowsReuse(t *testing.T) {
	p := newTestPool4(t, "203.0.113.5")
	hint := V4Transport{Addr: netip.MustParseAddr("203.0.113.5"), Port: 4001}

	v4, err := p.GetSimilar(ProtoUDP, hint)
	if err != nil {
		t.Fatalf("get_similar: %v", err)
	}
	if err := p.Return(ProtoUDP, v4); err != nil {
		t.Fatalf("return: %v", err)
	}
	again, err := p.GetSimilar(ProtoUDP, hint)
	if err != nil {
		t.Fatalf("get_similar after return: %v", err)
	}
	if again != v4 {
		t.Fatalf("expected the returned port to be reused first (FIFO free list), got %v want %v", again, v4)
	}
}

func TestPool4GetSimilarFallsBackToOtherAddress(t *testing.T) {
	p := newTestPool4(t, "203.0.113.5", "203.0.113.6")
	first := netip.MustParseAddr("203.0.113.5")

	// Drain every even-high port on the first address.
	const evenHighCount = (65534-1024)/2 + 1
	for i := 0; i < evenHighCount; i++ {
		if _, err := p.GetSimilar(ProtoTCP, V4Transport{Addr: first, Port: 1024}); err != nil {
			t.Fatalf("unexpected exhaustion at iteration %d: %v", i, err)
		}
	}

	got, err := p.GetSimilar(ProtoTCP, V4Transport{Addr: first, Port: 1024})
	if err != nil {
		t.Fatalf("expected fallback to the second address to succeed: %v", err)
	}
	if got.Addr == first {
		t.Fatalf("expected fallback to a different address, got %v", got.Addr)
	}
}
