package nat64

import (
	"net/netip"
	"testing"
	"time"
)

// fakeClock lets tests control ExpiryManager's notion of "now" without
// sleeping, so sweeps are deterministic.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(t *testing.T, timeouts [numExpiryClasses]time.Duration, addrs ...string) (*BIB, *ExpiryManager, *fakeClock) {
	t.Helper()
	pool := newTestPool4(t, addrs...)
	bib := NewBIB(pool, nil, nil)
	expiry := NewExpiryManager(bib, timeouts, nil, nil)
	clock := &fakeClock{t: time.Unix(0, 0)}
	expiry.now = clock.now
	return bib, expiry, clock
}

// TestExpiryIdleDemotion checks that an ESTABLISHED session whose
// deadline has passed is demoted to TRANS with a fresh TCP_TRANS
// deadline on the first sweep, then destroyed (reclaiming its BIB) on a
// second sweep after the TRANS deadline also passes.
func TestExpiryIdleDemotion(t *testing.T) {
	timeouts := DefaultTimeouts
	timeouts[ClassTCPEst] = time.Minute
	timeouts[ClassTCPTrans] = time.Minute

	bib, expiry, clock := newTestManager(t, timeouts, "203.0.113.5")

	v6Src := V6Transport{Addr: netip.MustParseAddr("2001:db8::a"), Port: 4000}
	entry, err := bib.Create(ProtoTCP, v6Src)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	v4Dst := V4Transport{Addr: netip.MustParseAddr("198.51.100.7"), Port: 80}
	sess := expiry.CreateSession(entry, V6Transport{}, v4Dst, StateEstablished, ClassTCPEst)

	clock.advance(timeouts[ClassTCPEst] + time.Second)
	expiry.SweepOnce()

	if sess.State() != StateTransitory {
		t.Fatalf("expected demotion to TRANS, got %v", sess.State())
	}
	if sess.Class() != ClassTCPTrans {
		t.Fatalf("expected class TCP_TRANS, got %v", sess.Class())
	}
	if entry.sessionCount() != 1 {
		t.Fatalf("expected the session to survive the first sweep")
	}

	clock.advance(timeouts[ClassTCPTrans] + time.Second)
	expiry.SweepOnce()

	if entry.sessionCount() != 0 {
		t.Fatalf("expected the session to be destroyed on the second sweep")
	}
	if _, ok := bib.LookupV6(ProtoTCP, v6Src); ok {
		t.Fatalf("expected the now-empty bib entry to be reclaimed")
	}
	if !bib.pool4.Contains(netip.MustParseAddr("203.0.113.5")) {
		t.Fatalf("pool4 address should still be registered")
	}
	// The reclaimed v4_src port must be available for reallocation.
	if _, err := bib.pool4.GetSimilar(ProtoTCP, entry.V4Src()); err != nil {
		t.Fatalf("expected the reclaimed port to be reallocatable: %v", err)
	}
}

func TestExpiryRenewIsIdempotentWithinATick(t *testing.T) {
	bib, expiry, _ := newTestManager(t, DefaultTimeouts, "203.0.113.5")
	v6Src := V6Transport{Addr: netip.MustParseAddr("2001:db8::a"), Port: 4000}
	entry, _ := bib.Create(ProtoUDP, v6Src)
	v4Dst := V4Transport{Addr: netip.MustParseAddr("198.51.100.7"), Port: 53}
	sess := expiry.CreateSession(entry, V6Transport{}, v4Dst, StateEstablished, ClassUDP)

	d1 := sess.Deadline()
	expiry.Renew(sess, ClassUDP)
	d2 := sess.Deadline()

	if !d2.After(d1) && !d2.Equal(d1) {
		t.Fatalf("expected renew to not move the deadline backwards: %v -> %v", d1, d2)
	}
	q := expiry.queues[ClassUDP]
	if q.items.Len() != 1 {
		t.Fatalf("expected exactly one entry in the UDP queue after two renewals, got %d", q.items.Len())
	}
}
