package nat64

import (
	"container/list"
	"fmt"
	"log/slog"
	"sync"
)

type bibKeyV6 struct {
	proto Protocol
	v6    V6Transport
}

type bibKeyV4 struct {
	proto Protocol
	v4    V4Transport
}

// BIB is the dual-indexed Binding Information Base: a (protocol,
// v6_src) index for the IPv6-ingress path and a (protocol, v4_src)
// index for the IPv4-ingress path, both pointing at the same BIBEntry.
// Reads are expected to dominate writes, so a single RWMutex gives
// reader parallelism with writer serialization.
type BIB struct {
	mu       sync.RWMutex
	byRemote map[bibKeyV6]*BIBEntry
	byLocal  map[bibKeyV4]*BIBEntry

	pool4   *Pool4
	logger  *slog.Logger
	metrics MetricsReporter
}

// NewBIB constructs an empty BIB bound to pool4 for v4_src allocation.
func NewBIB(pool4 *Pool4, logger *slog.Logger, metrics MetricsReporter) *BIB {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &BIB{
		byRemote: make(map[bibKeyV6]*BIBEntry),
		byLocal:  make(map[bibKeyV4]*BIBEntry),
		pool4:    pool4,
		logger:   logger.With(slog.String("component", "nat64.bib")),
		metrics:  metrics,
	}
}

// LookupV6 finds the entry bound to (proto, v6Src), used on the
// IPv6-ingress path.
func (b *BIB) LookupV6(proto Protocol, v6Src V6Transport) (*BIBEntry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.byRemote[bibKeyV6{proto, v6Src}]
	return e, ok
}

// LookupV4 finds the entry bound to (proto, v4Dst), used on the
// IPv4-ingress path, where v4Dst is the packet's own destination
// transport address.
func (b *BIB) LookupV4(proto Protocol, v4Dst V4Transport) (*BIBEntry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.byLocal[bibKeyV4{proto, v4Dst}]
	return e, ok
}

// Create allocates a v4_src via Pool4.GetSimilar, using the pool's
// first registered address as the locality hint and v6Src.Port for
// parity/range section selection. The v4_src port has the same parity
// and range as v6Src.Port, but it is that section's next free port:
// v6Src.Port itself is not reused, even when it is free.
func (b *BIB) Create(proto Protocol, v6Src V6Transport) (*BIBEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := bibKeyV6{proto, v6Src}
	if _, exists := b.byRemote[key]; exists {
		return nil, fmt.Errorf("create bib for %s/%v: %w", proto, v6Src, ErrAlreadyPresent)
	}

	hintAddr, ok := b.pool4.firstAddr()
	if !ok {
		return nil, fmt.Errorf("create bib for %s/%v: %w", proto, v6Src, ErrPoolExhausted)
	}
	v4Src, err := b.pool4.GetSimilar(proto, V4Transport{Addr: hintAddr, Port: v6Src.Port})
	if err != nil {
		return nil, fmt.Errorf("create bib for %s/%v: %w", proto, v6Src, err)
	}

	entry := newBIBEntry(proto, v6Src, v4Src)
	b.byRemote[key] = entry
	b.byLocal[bibKeyV4{proto, v4Src}] = entry
	b.metrics.SetBIBCount(proto, b.countLocked(proto))
	b.logger.Debug("bib entry created",
		slog.String("proto", proto.String()),
		slog.String("v6_src", v6Src.Addr.String()),
		slog.String("v4_src", v4Src.Addr.String()))
	return entry, nil
}

// remove unlinks entry from both indices and returns its v4_src to
// Pool4. The caller must already hold assurance that
// entry.sessionCount() == 0 — violating it returns ErrBIBNotEmpty
// rather than corrupting the pool.
func (b *BIB) remove(entry *BIBEntry) error {
	if n := entry.sessionCount(); n != 0 {
		return fmt.Errorf("remove bib for %s/%v: %d live sessions: %w", entry.proto, entry.v6Src, n, ErrBIBNotEmpty)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.byRemote, bibKeyV6{entry.proto, entry.v6Src})
	delete(b.byLocal, bibKeyV4{entry.proto, entry.v4Src})
	b.metrics.SetBIBCount(entry.proto, b.countLocked(entry.proto))
	if err := b.pool4.Return(entry.proto, entry.v4Src); err != nil {
		b.logger.Error("failed returning v4_src to pool4",
			slog.String("addr", entry.v4Src.Addr.String()), slog.Any("error", err))
		return err
	}
	b.logger.Debug("bib entry removed",
		slog.String("proto", entry.proto.String()),
		slog.String("v6_src", entry.v6Src.Addr.String()))
	return nil
}

// Entries returns a snapshot of every live BIB entry for proto.
func (b *BIB) Entries(proto Protocol) []*BIBEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*BIBEntry, 0, len(b.byRemote))
	for k, e := range b.byRemote {
		if k.proto == proto {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the number of live BIB entries for proto.
func (b *BIB) Count(proto Protocol) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.countLocked(proto)
}

// countLocked is Count's body, for callers that already hold b.mu.
func (b *BIB) countLocked(proto Protocol) int {
	n := 0
	for k := range b.byRemote {
		if k.proto == proto {
			n++
		}
	}
	return n
}

func newBIBEntry(proto Protocol, v6Src V6Transport, v4Src V4Transport) *BIBEntry {
	return &BIBEntry{
		proto:    proto,
		v6Src:    v6Src,
		v4Src:    v4Src,
		sessions: list.New(),
	}
}
