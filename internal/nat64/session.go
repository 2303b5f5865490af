package nat64

import (
	"container/list"
	"sync"
	"time"
)

// SessionState is the per-session TCP state. Non-TCP sessions (UDP,
// ICMP) stay pinned at StateEstablished for their whole life; only TCP
// sessions walk the rest of the states.
type SessionState uint8

const (
	StateClosed SessionState = iota
	StateV6SynRcv
	StateV4SynRcv
	StateEstablished
	StateTransitory
	StateV6FinRcv
	StateV4FinRcv
	StateV6FinV4Fin
)

func (s SessionState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateV6SynRcv:
		return "v6-syn-rcv"
	case StateV4SynRcv:
		return "v4-syn-rcv"
	case StateEstablished:
		return "established"
	case StateTransitory:
		return "trans"
	case StateV6FinRcv:
		return "v6-fin-rcv"
	case StateV4FinRcv:
		return "v4-fin-rcv"
	case StateV6FinV4Fin:
		return "v6-fin-v4-fin"
	default:
		return "unknown"
	}
}

// ExpiryClass selects which of the expiry manager's five FIFO queues a
// session belongs to.
type ExpiryClass uint8

const (
	ClassUDP ExpiryClass = iota
	ClassTCPTrans
	ClassTCPEst
	ClassTCPIncomingSyn
	ClassICMP
	numExpiryClasses
)

func (c ExpiryClass) String() string {
	switch c {
	case ClassUDP:
		return "udp"
	case ClassTCPTrans:
		return "tcp-trans"
	case ClassTCPEst:
		return "tcp-est"
	case ClassTCPIncomingSyn:
		return "tcp-incoming-syn"
	case ClassICMP:
		return "icmp"
	default:
		return "unknown"
	}
}

// DefaultTimeouts holds the default per-class session lifetime table,
// following RFC 6146 §4's recommended minimums.
var DefaultTimeouts = [numExpiryClasses]time.Duration{
	ClassUDP:            5 * time.Minute,
	ClassTCPTrans:       4 * time.Minute,
	ClassTCPEst:         2*time.Hour + 4*time.Minute,
	ClassTCPIncomingSyn: 6 * time.Second,
	ClassICMP:           1 * time.Minute,
}

// Session is one 5-tuple binding within a BIB entry. The v4Src half of
// the 5-tuple lives on the owning BIBEntry, shared by every session on
// it.
type Session struct {
	bib   *BIBEntry
	proto Protocol

	v6Dst V6Transport // the embedded IPv6 remote, as seen on the wire
	v4Dst V4Transport // the real IPv4 peer

	mu       sync.Mutex
	state    SessionState
	class    ExpiryClass
	deadline time.Time

	elem      *list.Element // position within bib.sessions
	queueElem *list.Element // position within its current expiry queue
}

// State returns the session's current TCP state (StateEstablished for
// non-TCP sessions, which never transition).
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Class returns the session's current expiry class.
func (s *Session) Class() ExpiryClass {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.class
}

// Deadline returns the session's current expiry deadline.
func (s *Session) Deadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline
}

// V6Dst and V4Dst expose the session's peer-side transport addresses.
func (s *Session) V6Dst() V6Transport { return s.v6Dst }
func (s *Session) V4Dst() V4Transport { return s.v4Dst }

// BIBEntry is a single (protocol, v6_src) -> v4_src binding with its
// ordered list of live sessions, embedded directly on the entry rather
// than kept in a separate global table.
type BIBEntry struct {
	proto Protocol
	v6Src V6Transport
	v4Src V4Transport

	mu       sync.Mutex
	sessions *list.List // of *Session, oldest-created first
}

// V6Src and V4Src expose the entry's binding halves.
func (e *BIBEntry) V6Src() V6Transport { return e.v6Src }
func (e *BIBEntry) V4Src() V4Transport { return e.v4Src }
func (e *BIBEntry) Proto() Protocol    { return e.proto }

// Lookup finds the session matching the packet's (already-extracted)
// IPv4 destination peer, for the IPv6-ingress path.
func (e *BIBEntry) Lookup(v4Dst V4Transport) (*Session, bool) {
	return e.find(v4Dst)
}

// LookupV6 finds the session for the IPv4-ingress path, where the
// packet's source IS the session's IPv4 peer — both lookups key on the
// same v4Dst field, the only half of the 5-tuple not owned by the BIB
// entry itself.
func (e *BIBEntry) LookupV6(v4Peer V4Transport) (*Session, bool) {
	return e.find(v4Peer)
}

func (e *BIBEntry) find(v4Dst V4Transport) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for el := e.sessions.Front(); el != nil; el = el.Next() {
		s := el.Value.(*Session)
		if s.v4Dst == v4Dst {
			return s, true
		}
	}
	return nil, false
}

func (e *BIBEntry) insertSession(s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s.elem = e.sessions.PushBack(s)
}

func (e *BIBEntry) removeSession(s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s.elem != nil {
		e.sessions.Remove(s.elem)
		s.elem = nil
	}
}

func (e *BIBEntry) sessionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions.Len()
}

// Sessions returns a snapshot copy of the entry's live sessions.
func (e *BIBEntry) Sessions() []*Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Session, 0, e.sessions.Len())
	for el := e.sessions.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*Session))
	}
	return out
}
