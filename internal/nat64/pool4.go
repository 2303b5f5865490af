package nat64

import (
	"container/list"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
)

// portSection is one of a pool node's four port-parity/range sections
// (odd_low, even_low, odd_high, even_high). Allocation prefers the
// FIFO free list (ports returned by earlier sessions) over
// advancing the never-allocated cursor, so that a long-idle pool settles
// into reusing a small working set of ports instead of climbing forever.
type portSection struct {
	next int // next never-allocated port in this section, monotonic
	max  int // inclusive upper bound for this section
	free *list.List
}

func newPortSection(start, max int) *portSection {
	return &portSection{next: start, max: max, free: list.New()}
}

func (s *portSection) allocate() (uint16, bool) {
	if e := s.free.Front(); e != nil {
		s.free.Remove(e)
		return e.Value.(uint16), true
	}
	if s.next > s.max {
		return 0, false
	}
	p := s.next
	s.next += 2
	return uint16(p), true
}

func (s *portSection) release(port uint16) {
	s.free.PushBack(port)
}

// sectionKind identifies one of the four sections a port falls into.
type sectionKind uint8

const (
	sectionOddLow sectionKind = iota
	sectionEvenLow
	sectionOddHigh
	sectionEvenHigh
)

func sectionFor(port uint16) sectionKind {
	low := port < 1024
	odd := port%2 == 1
	switch {
	case low && odd:
		return sectionOddLow
	case low && !odd:
		return sectionEvenLow
	case !low && odd:
		return sectionOddHigh
	default:
		return sectionEvenHigh
	}
}

// poolNode is one registered IPv4 address and its four port sections,
// for a single protocol pool.
type poolNode struct {
	addr     netip.Addr
	sections [4]*portSection
}

func newPoolNode(addr netip.Addr) *poolNode {
	return &poolNode{
		addr: addr,
		sections: [4]*portSection{
			sectionOddLow:  newPortSection(1, 1023),
			sectionEvenLow: newPortSection(0, 1022),
			sectionOddHigh: newPortSection(1025, 65535),
			sectionEvenHigh: newPortSection(1024, 65534),
		},
	}
}

// protocolPool is the per-protocol view of Pool4: one lock guarding the
// allocation/return critical section for every node registered, held
// only for the duration of that section.
type protocolPool struct {
	mu     sync.Mutex
	nodes  []*poolNode
	byAddr map[netip.Addr]*poolNode
}

func newProtocolPool() *protocolPool {
	return &protocolPool{byAddr: make(map[netip.Addr]*poolNode)}
}

func (p *protocolPool) register(addr netip.Addr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	node := newPoolNode(addr)
	p.nodes = append(p.nodes, node)
	p.byAddr[addr] = node
}

func (p *protocolPool) remove(addr netip.Addr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.byAddr, addr)
	for i, n := range p.nodes {
		if n.addr == addr {
			p.nodes = append(p.nodes[:i], p.nodes[i+1:]...)
			break
		}
	}
}

func (p *protocolPool) getSimilar(hint V4Transport) (V4Transport, bool) {
	sec := sectionFor(hint.Port)
	p.mu.Lock()
	defer p.mu.Unlock()
	if node, ok := p.byAddr[hint.Addr]; ok {
		if port, ok := node.sections[sec].allocate(); ok {
			return V4Transport{Addr: node.addr, Port: port}, true
		}
	}
	for _, node := range p.nodes {
		if node.addr == hint.Addr {
			continue
		}
		if port, ok := node.sections[sec].allocate(); ok {
			return V4Transport{Addr: node.addr, Port: port}, true
		}
	}
	return V4Transport{}, false
}

func (p *protocolPool) getAny(hintPort uint16) (V4Transport, bool) {
	sec := sectionFor(hintPort)
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, node := range p.nodes {
		if port, ok := node.sections[sec].allocate(); ok {
			return V4Transport{Addr: node.addr, Port: port}, true
		}
	}
	return V4Transport{}, false
}

func (p *protocolPool) putBack(v4 V4Transport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	node, ok := p.byAddr[v4.Addr]
	if !ok {
		return fmt.Errorf("return %s: %w", v4.Addr, ErrNotFound)
	}
	node.sections[sectionFor(v4.Port)].release(v4.Port)
	return nil
}

// Pool4 is the IPv4 transport-address pool, one protocolPool per L4
// protocol, sharing a single set of registered addresses: register and
// remove act on all three protocol pools atomically.
type Pool4 struct {
	regMu      sync.Mutex
	registered map[netip.Addr]struct{}
	order      []netip.Addr // registration order, for to_array and "some_pool_addr" hints
	pools      [3]*protocolPool
	logger     *slog.Logger
	metrics    MetricsReporter
}

// NewPool4 constructs an empty Pool4 with no registered addresses.
func NewPool4(logger *slog.Logger, metrics MetricsReporter) *Pool4 {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Pool4{
		registered: make(map[netip.Addr]struct{}),
		pools: [3]*protocolPool{
			newProtocolPool(), newProtocolPool(), newProtocolPool(),
		},
		logger:  logger.With(slog.String("component", "nat64.pool4")),
		metrics: metrics,
	}
}

func (p *Pool4) pool(proto Protocol) *protocolPool {
	return p.pools[proto-1]
}

// Register adds addr to all three per-protocol pools. Returns
// ErrAlreadyPresent if addr is already registered.
func (p *Pool4) Register(addr netip.Addr) error {
	p.regMu.Lock()
	defer p.regMu.Unlock()
	if _, ok := p.registered[addr]; ok {
		return fmt.Errorf("register %s: %w", addr, ErrAlreadyPresent)
	}
	p.registered[addr] = struct{}{}
	p.order = append(p.order, addr)
	for _, pool := range p.pools {
		pool.register(addr)
	}
	p.logger.Info("pool4 address registered", slog.String("addr", addr.String()))
	return nil
}

// Remove removes addr from all three per-protocol pools. Returns
// ErrNotFound if it is absent from all of them.
func (p *Pool4) Remove(addr netip.Addr) error {
	p.regMu.Lock()
	defer p.regMu.Unlock()
	if _, ok := p.registered[addr]; !ok {
		return fmt.Errorf("remove %s: %w", addr, ErrNotFound)
	}
	delete(p.registered, addr)
	for i, a := range p.order {
		if a == addr {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	for _, pool := range p.pools {
		pool.remove(addr)
	}
	p.logger.Info("pool4 address removed", slog.String("addr", addr.String()))
	return nil
}

// Contains reports whether addr is currently registered.
func (p *Pool4) Contains(addr netip.Addr) bool {
	p.regMu.Lock()
	defer p.regMu.Unlock()
	_, ok := p.registered[addr]
	return ok
}

// ToArray returns the registered addresses in registration order.
func (p *Pool4) ToArray() []netip.Addr {
	p.regMu.Lock()
	defer p.regMu.Unlock()
	out := make([]netip.Addr, len(p.order))
	copy(out, p.order)
	return out
}

func (p *Pool4) firstAddr() (netip.Addr, bool) {
	p.regMu.Lock()
	defer p.regMu.Unlock()
	if len(p.order) == 0 {
		return netip.Addr{}, false
	}
	return p.order[0], true
}

// GetSimilar returns a free port in the same parity section as
// hint.Port, preferring hint.Addr's node and falling back to any other
// registered address in registration order.
func (p *Pool4) GetSimilar(proto Protocol, hint V4Transport) (V4Transport, error) {
	if v4, ok := p.pool(proto).getSimilar(hint); ok {
		return v4, nil
	}
	p.metrics.IncPoolExhausted(proto)
	return V4Transport{}, fmt.Errorf("get_similar %s/%s: %w", proto, hint.Addr, ErrPoolExhausted)
}

// GetAny returns any free port in the parity section matching hintPort,
// scanning registered addresses in registration order.
func (p *Pool4) GetAny(proto Protocol, hintPort uint16) (V4Transport, error) {
	if v4, ok := p.pool(proto).getAny(hintPort); ok {
		return v4, nil
	}
	p.metrics.IncPoolExhausted(proto)
	return V4Transport{}, fmt.Errorf("get_any %s: %w", proto, ErrPoolExhausted)
}

// Return releases v4 back to its section's free list.
func (p *Pool4) Return(proto Protocol, v4 V4Transport) error {
	return p.pool(proto).putBack(v4)
}
