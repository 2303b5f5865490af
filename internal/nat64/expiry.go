package nat64

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// expiryQueue is one of the Expiry Manager's five FIFO queues. Each
// class uses a single fixed duration, so while that duration is
// unchanged every append carries a deadline greater than or equal to
// every entry already in the queue: the queue stays deadline-ordered by
// construction and a sweep can stop at the first entry that hasn't yet
// expired — no per-session timers needed. After SetTimeout shortens a
// class, entries enqueued under the old value can sit ahead of newer,
// earlier deadlines; the sweep reaches those only once every entry
// ahead of them has expired.
type expiryQueue struct {
	mu    sync.Mutex
	items *list.List // of *Session
}

func newExpiryQueue() *expiryQueue {
	return &expiryQueue{items: list.New()}
}

// ExpiryManager owns the five timeout queues and the periodic sweep
// that reclaims expired sessions, cascading into BIB and Pool4 removal
// when a BIB entry's last session dies.
type ExpiryManager struct {
	queues   [numExpiryClasses]*expiryQueue
	timeouts [numExpiryClasses]atomic.Int64 // nanoseconds, read on every renew

	sessionCounts [3]atomic.Int64 // live sessions per protocol, indexed proto-1

	bib     *BIB
	logger  *slog.Logger
	metrics MetricsReporter
	now     func() time.Time
}

// NewExpiryManager constructs an ExpiryManager with the given per-class
// timeouts (use DefaultTimeouts for sensible defaults) reclaiming into
// bib.
func NewExpiryManager(bib *BIB, timeouts [numExpiryClasses]time.Duration, logger *slog.Logger, metrics MetricsReporter) *ExpiryManager {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	m := &ExpiryManager{
		bib:     bib,
		logger:  logger.With(slog.String("component", "nat64.expiry")),
		metrics: metrics,
		now:     time.Now,
	}
	for i := range m.queues {
		m.queues[i] = newExpiryQueue()
		m.timeouts[i].Store(int64(timeouts[i]))
	}
	return m
}

// SetTimeout updates class's session lifetime for every future renewal.
// Sessions already enqueued keep the deadline they were given at their
// last renewal; the new value takes effect the next time they (or any
// other session in the class) are renewed.
func (m *ExpiryManager) SetTimeout(class ExpiryClass, d time.Duration) {
	m.timeouts[class].Store(int64(d))
}

// Timeout returns class's current session lifetime.
func (m *ExpiryManager) Timeout(class ExpiryClass) time.Duration {
	return time.Duration(m.timeouts[class].Load())
}

// renew moves sess to the back of class's queue with a fresh deadline,
// unlinking it from whatever queue it was previously in. It never holds
// more than one queue's lock at a time, so it composes safely with
// SweepOnce's queue-then-BIB-then-queue sequencing below without
// creating a queue/BIB lock cycle.
func (m *ExpiryManager) renew(sess *Session, class ExpiryClass) {
	m.unlink(sess)

	sess.mu.Lock()
	sess.class = class
	sess.deadline = m.now().Add(m.Timeout(class))
	sess.mu.Unlock()

	q := m.queues[class]
	q.mu.Lock()
	sess.queueElem = q.items.PushBack(sess)
	q.mu.Unlock()
}

func (m *ExpiryManager) unlink(sess *Session) {
	sess.mu.Lock()
	cur := sess.class
	elem := sess.queueElem
	sess.queueElem = nil
	sess.mu.Unlock()
	if elem == nil {
		return
	}
	q := m.queues[cur]
	q.mu.Lock()
	q.items.Remove(elem)
	q.mu.Unlock()
}

// CreateSession creates a session on entry in the given initial state
// and enrolls it in the given initial expiry class. Non-TCP callers
// always pass StateEstablished, the only state those protocols ever
// occupy.
func (m *ExpiryManager) CreateSession(entry *BIBEntry, v6Dst V6Transport, v4Dst V4Transport, initialState SessionState, class ExpiryClass) *Session {
	sess := &Session{
		bib:   entry,
		proto: entry.proto,
		v6Dst: v6Dst,
		v4Dst: v4Dst,
		state: initialState,
	}
	entry.insertSession(sess)
	m.renew(sess, class)
	m.metrics.IncSessionsCreated(entry.proto)
	n := m.sessionCounts[entry.proto-1].Add(1)
	m.metrics.SetSessionCount(entry.proto, int(n))
	return sess
}

// Renew renews sess's expiry deadline into class. Used by the
// packet-processing entry point after every packet.
func (m *ExpiryManager) Renew(sess *Session, class ExpiryClass) {
	m.renew(sess, class)
}

// Run drives the periodic sweep until ctx is canceled, sleeping
// interval between passes. Intended to be run under an errgroup
// alongside the daemon's other long-running workers.
func (m *ExpiryManager) Run(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			m.SweepOnce()
		}
	}
}

// SweepOnce walks every queue once, reclaiming expired sessions and
// demoting idle ESTABLISHED sessions to TRANS before they'd otherwise
// be destroyed. It acquires locks in the order queue -> BIB -> pool,
// but never holds a queue lock and a BIB entry lock at the same time:
// each victim is fully
// unlinked from its queue (and that lock released) before its BIB
// entry lock is taken. Renew and CreateSession likewise never hold a
// BIB entry lock while taking a queue lock, so no path nests the two
// in either order.
func (m *ExpiryManager) SweepOnce() {
	for class := ExpiryClass(0); class < numExpiryClasses; class++ {
		m.sweepQueue(class)
	}
}

func (m *ExpiryManager) sweepQueue(class ExpiryClass) {
	q := m.queues[class]
	for {
		sess, ok := m.popExpired(q)
		if !ok {
			return
		}
		m.reapOrDemote(sess)
	}
}

func (m *ExpiryManager) popExpired(q *expiryQueue) (*Session, bool) {
	now := m.now()
	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.items.Front()
	if front == nil {
		return nil, false
	}
	sess := front.Value.(*Session)
	sess.mu.Lock()
	expired := !now.Before(sess.deadline)
	sess.mu.Unlock()
	if !expired {
		return nil, false
	}
	q.items.Remove(front)
	sess.mu.Lock()
	sess.queueElem = nil
	sess.mu.Unlock()
	return sess, true
}

// reapOrDemote decides, for one expired session, whether to demote it
// (ESTABLISHED -> TRANS) or destroy it outright.
func (m *ExpiryManager) reapOrDemote(sess *Session) {
	entry := sess.bib

	sess.mu.Lock()
	demote := sess.proto == ProtoTCP && sess.state == StateEstablished
	if demote {
		sess.state = StateTransitory
	}
	sess.mu.Unlock()

	if demote {
		m.renew(sess, ClassTCPTrans)
		m.logger.Debug("demoted idle session to trans",
			slog.String("proto", sess.proto.String()),
			slog.String("v4_dst", sess.v4Dst.Addr.String()))
		return
	}

	entry.removeSession(sess)
	m.metrics.IncSessionsReclaimed(sess.proto, sess.Class())
	n := m.sessionCounts[sess.proto-1].Add(-1)
	m.metrics.SetSessionCount(sess.proto, int(n))
	empty := entry.sessionCount() == 0
	if !empty {
		return
	}
	if err := m.bib.remove(entry); err != nil {
		m.logger.Error("failed reclaiming empty bib entry",
			slog.String("proto", entry.proto.String()),
			slog.String("v6_src", entry.v6Src.Addr.String()),
			slog.Any("error", err))
	}
}
