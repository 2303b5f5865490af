package nat64

import (
	"log/slog"
	"time"
)

// IngressTuple is the 5-tuple plus TCP flags the packet-processing
// entry point classifies, already reduced to transport-address form by the
// caller (header parsing is the caller's job; ExtractV4 in this
// package does the IPv6-to-IPv4 embedding half for whoever drives
// Manager).
type IngressTuple struct {
	Proto Protocol

	// V6Src/V6Dst are populated for an IPv6-ingress packet: the real
	// IPv6 client and the IPv4-embedded IPv6 destination.
	V6Src V6Transport
	V6Dst V6Transport

	// V4Src/V4Dst are populated for an IPv4-ingress packet: the real
	// IPv4 peer and the pool's own destination transport address.
	V4Src V4Transport
	V4Dst V4Transport

	Flags TCPFlags
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithManagerMetrics wires a MetricsReporter into the manager and
// everything it owns.
func WithManagerMetrics(m MetricsReporter) ManagerOption {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithAllowIncomingSYN enables provisional-session creation on an
// unsolicited IPv4-ingress SYN (RFC 6146 §3.5.2.2 leaves this an
// implementation choice). Disabled by default: an IPv4-ingress packet
// with no matching session is dropped.
func WithAllowIncomingSYN(allow bool) ManagerOption {
	return func(mgr *Manager) { mgr.allowIncomingSYN = allow }
}

// Manager ties Pool4, BIB and the ExpiryManager together behind the
// single Process entry point.
type Manager struct {
	pool4  *Pool4
	bib    *BIB
	expiry *ExpiryManager

	prefixLen        int
	allowIncomingSYN bool

	logger  *slog.Logger
	metrics MetricsReporter
}

// NewManager constructs a Manager with its own Pool4, BIB and
// ExpiryManager, seeded with timeouts (use DefaultTimeouts for sensible
// defaults) and translating IPv6 addresses embedded at prefixLen (one
// of the RFC 6052 well-known lengths ExtractV4 accepts).
func NewManager(logger *slog.Logger, prefixLen int, timeouts [numExpiryClasses]time.Duration, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	mgr := &Manager{
		prefixLen: prefixLen,
		logger:    logger.With(slog.String("component", "nat64.manager")),
		metrics:   noopMetrics{},
	}
	for _, opt := range opts {
		opt(mgr)
	}
	mgr.pool4 = NewPool4(mgr.logger, mgr.metrics)
	mgr.bib = NewBIB(mgr.pool4, mgr.logger, mgr.metrics)
	mgr.expiry = NewExpiryManager(mgr.bib, timeouts, mgr.logger, mgr.metrics)
	return mgr
}

// Pool4 exposes the manager's address pool, for config-driven seeding
// and the control API's pool4 add/rm/list operations.
func (m *Manager) Pool4() *Pool4 { return m.pool4 }

// BIB exposes the manager's binding table, for introspection.
func (m *Manager) BIB() *BIB { return m.bib }

// Expiry exposes the manager's expiry sweeper, so cmd/nat64d can drive
// Run under its own errgroup.
func (m *Manager) Expiry() *ExpiryManager { return m.expiry }

// Process classifies one packet against the BIB and session table,
// creating state as needed, driving the TCP FSM, and returning an
// Accept/Drop verdict. dir identifies which side the packet arrived
// from; t carries whichever half of IngressTuple matches dir.
func (m *Manager) Process(dir Direction, t IngressTuple) (Verdict, error) {
	if dir == DirFromV6 {
		return m.processFromV6(t)
	}
	return m.processFromV4(t)
}

func (m *Manager) processFromV6(t IngressTuple) (Verdict, error) {
	entry, ok := m.bib.LookupV6(t.Proto, t.V6Src)
	if !ok {
		created, err := m.bib.Create(t.Proto, t.V6Src)
		if err != nil {
			m.logger.Debug("dropping v6-ingress packet: bib create failed",
				slog.String("proto", t.Proto.String()), slog.Any("error", err))
			return Drop, err
		}
		entry = created
	}

	v4Dst, err := ExtractV4(t.V6Dst.Addr, m.prefixLen)
	if err != nil {
		return Drop, err
	}
	peer := V4Transport{Addr: v4Dst, Port: t.V6Dst.Port}

	sess, ok := entry.Lookup(peer)
	if !ok {
		initialState := StateEstablished
		class := initialClassFor(t.Proto)
		if t.Proto == ProtoTCP {
			initialState = StateV6SynRcv
		}
		sess = m.expiry.CreateSession(entry, t.V6Dst, peer, initialState, class)
	}

	m.applyEvent(sess, DirFromV6, t)
	return Accept, nil
}

func (m *Manager) processFromV4(t IngressTuple) (Verdict, error) {
	entry, ok := m.bib.LookupV4(t.Proto, t.V4Dst)
	if !ok {
		return Drop, ErrNoBinding
	}

	sess, ok := entry.LookupV6(t.V4Src)
	if !ok {
		if t.Proto != ProtoTCP || !m.allowIncomingSYN || !t.Flags.SYN {
			return Drop, ErrNoSession
		}
		sess = m.expiry.CreateSession(entry, V6Transport{}, t.V4Src, StateV4SynRcv, ClassTCPIncomingSyn)
	}

	m.applyEvent(sess, DirFromV4, t)
	return Accept, nil
}

// applyEvent drives the TCP FSM for TCP sessions and simply renews
// non-TCP sessions on every packet.
func (m *Manager) applyEvent(sess *Session, dir Direction, t IngressTuple) {
	if t.Proto != ProtoTCP {
		m.expiry.Renew(sess, initialClassFor(t.Proto))
		return
	}

	sess.mu.Lock()
	state := sess.state
	sess.mu.Unlock()

	res := ApplyTCPEvent(state, dir, t.Flags)
	if res.Changed {
		sess.mu.Lock()
		sess.state = res.NewState
		sess.mu.Unlock()
		m.metrics.IncFSMTransition(res.OldState, res.NewState)
	}
	if res.RenewTo != nil {
		m.expiry.Renew(sess, *res.RenewTo)
	}
}

func initialClassFor(proto Protocol) ExpiryClass {
	switch proto {
	case ProtoUDP:
		return ClassUDP
	case ProtoICMP:
		return ClassICMP
	default: // ProtoTCP
		return ClassTCPTrans
	}
}
