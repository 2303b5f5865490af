package nat64

import "time"

// BIBSnapshot is a read-only copy of one BIB entry and its sessions,
// for the control API and metrics layer to read without holding the
// BIB's lock for longer than the copy.
type BIBSnapshot struct {
	Proto Protocol
	V6Src V6Transport
	V4Src V4Transport
	Sessions []SessionSnapshot
}

// SessionSnapshot is a read-only copy of one session.
type SessionSnapshot struct {
	Proto    Protocol
	V6Dst    V6Transport
	V4Dst    V4Transport
	State    SessionState
	Class    ExpiryClass
	Deadline time.Time
}

// Pool4Snapshot is a read-only copy of one registered Pool4 address.
// Per-section free/cursor counts are intentionally omitted: they churn
// on every packet and aren't useful for external introspection.
type Pool4Snapshot struct {
	Addr string
}

// BIBs returns a snapshot of every live BIB entry for proto.
func (m *Manager) BIBs(proto Protocol) []BIBSnapshot {
	entries := m.bib.Entries(proto)
	out := make([]BIBSnapshot, 0, len(entries))
	for _, e := range entries {
		snap := BIBSnapshot{Proto: e.Proto(), V6Src: e.V6Src(), V4Src: e.V4Src()}
		for _, s := range e.Sessions() {
			snap.Sessions = append(snap.Sessions, sessionSnapshot(s))
		}
		out = append(out, snap)
	}
	return out
}

// Sessions returns a snapshot of every live session for proto, across
// every BIB entry.
func (m *Manager) Sessions(proto Protocol) []SessionSnapshot {
	entries := m.bib.Entries(proto)
	var out []SessionSnapshot
	for _, e := range entries {
		for _, s := range e.Sessions() {
			out = append(out, sessionSnapshot(s))
		}
	}
	return out
}

func sessionSnapshot(s *Session) SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionSnapshot{
		Proto:    s.proto,
		V6Dst:    s.v6Dst,
		V4Dst:    s.v4Dst,
		State:    s.state,
		Class:    s.class,
		Deadline: s.deadline,
	}
}

// Pool4Addresses returns a snapshot of every registered Pool4 address.
func (m *Manager) Pool4Addresses() []Pool4Snapshot {
	addrs := m.pool4.ToArray()
	out := make([]Pool4Snapshot, len(addrs))
	for i, a := range addrs {
		out[i] = Pool4Snapshot{Addr: a.String()}
	}
	return out
}
