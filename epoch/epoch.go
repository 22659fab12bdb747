// Package epoch implements epoch-based reclamation (EBR): a global epoch
// counter, per-participant pinned epochs, and per-participant deferred-free
// queues, so memory retired by a writer is only freed once no pinned
// participant could still observe it (spec.md §4.2).
package epoch

import (
	"sync"
	"sync/atomic"

	"github.com/outofforest/bwtree/delta"
)

// noEpoch is the "not pinned" sentinel for a participant's pinned epoch.
const noEpoch = ^uint64(0)

// safetyMargin is the number of epoch boundaries a retired record must
// survive before it is safe to free (spec.md §4.2: "retire-epoch + 2 <=
// minimum pinned").
const safetyMargin = 2

// retired is a single queued-for-reclamation pointer, tagged with the
// global epoch it was retired in.
type retired struct {
	ptr         *delta.Header
	retireEpoch uint64
}

// Manager owns the global epoch and the registry of
// participants. It is the "environment" spec.md §9 asks for in place of
// the source's implicit module-level global: callers construct one
// Manager per index instance, and every participant is scoped to it.
type Manager struct {
	global uint64 // accessed only via atomic, aligned by being first field

	batchSize int

	mu           sync.Mutex
	participants []*Participant
}

// New creates a Manager with the given auto-collect batch threshold
// (spec.md §6 garbage_batch_size, default 64). The global epoch starts at
// 1; 0 is never a live epoch value, which lets 0 double as a degenerate
// "nothing retired yet" marker in tests without colliding with noEpoch.
func New(batchSize int) *Manager {
	m := &Manager{batchSize: batchSize}
	atomic.StoreUint64(&m.global, 1)
	return m
}

// CurrentEpoch returns the current global epoch.
func (m *Manager) CurrentEpoch() uint64 {
	return atomic.LoadUint64(&m.global)
}

// AdvanceGlobal atomically increments the global epoch and returns its new
// value. Invoked periodically from writer paths (spec.md §4.2).
func (m *Manager) AdvanceGlobal() uint64 {
	return atomic.AddUint64(&m.global, 1)
}

// Participant is one registered reader/writer's epoch state: an atomic
// pinned epoch and a private deferred-free queue. A Participant is meant
// to be borrowed for the duration of one façade operation and returned via
// Manager.Return; its deferred-free queue persists across borrows so entries can
// accumulate toward the batch threshold, following the same pool
// borrow/return idiom used elsewhere for reusable per-operation state.
type Participant struct {
	mgr        *Manager
	pinned     uint64 // atomic; noEpoch when not pinned
	checkedOut uint32 // atomic bool

	mu       sync.Mutex
	deferred []retired
}

// Borrow returns an available Participant, creating one if every existing
// participant is currently checked out. Borrowed participants must be
// returned with Return once the caller's operation (and any Guard it
// pinned) has completed.
func (m *Manager) Borrow() *Participant {
	m.mu.Lock()
	for _, p := range m.participants {
		if atomic.CompareAndSwapUint32(&p.checkedOut, 0, 1) {
			m.mu.Unlock()
			return p
		}
	}

	p := &Participant{mgr: m, pinned: noEpoch, checkedOut: 1}
	m.participants = append(m.participants, p)
	m.mu.Unlock()
	return p
}

// Return releases a Participant back to the Manager's pool for reuse. The
// participant must not be pinned when returned.
func (m *Manager) Return(p *Participant) {
	atomic.StoreUint32(&p.checkedOut, 0)
}

// Guard represents a scoped epoch pin. It must be released on every exit
// path of the operation that acquired it, including early returns and
// failures (spec.md §4.7's "read discipline" / §5's "resource scoping").
type Guard struct {
	p *Participant
}

// Pin records the current global epoch into p's pinned slot and returns a
// Guard. While the guard is held, p is guaranteed not to observe any
// pointer retired strictly after the pinned epoch minus the safety margin
// being freed out from under it.
func (p *Participant) Pin() *Guard {
	e := atomic.LoadUint64(&p.mgr.global)
	atomic.StoreUint64(&p.pinned, e)
	return &Guard{p: p}
}

// Epoch returns the epoch this guard pinned at.
func (g *Guard) Epoch() uint64 {
	return atomic.LoadUint64(&g.p.pinned)
}

// Release clears the participant's pinned slot. Idempotent.
func (g *Guard) Release() {
	atomic.StoreUint64(&g.p.pinned, noEpoch)
}

// DeferFree enqueues ptr for later reclamation, tagged with the current
// global epoch, and opportunistically triggers collection once the queue
// reaches the Manager's batch threshold.
func (p *Participant) DeferFree(ptr *delta.Header) {
	if ptr == nil {
		return
	}

	e := atomic.LoadUint64(&p.mgr.global)

	p.mu.Lock()
	p.deferred = append(p.deferred, retired{ptr: ptr, retireEpoch: e})
	shouldCollect := len(p.deferred) >= p.mgr.batchSize
	p.mu.Unlock()

	if shouldCollect {
		p.mgr.TryCollect()
	}
}

// DeferFreeChain enqueues every record along the chain rooted at head, the
// bulk form used by consolidate.Run to retire a whole superseded chain in
// one call.
func (p *Participant) DeferFreeChain(head *delta.Header) {
	for h := head; h != nil; h = h.Next {
		p.DeferFree(h)
	}
}

// minPinnedEpoch returns the minimum pinned epoch across every registered
// participant, treating participants pinned at noEpoch ("none") as not
// blocking. If nothing is pinned, the current global epoch is returned.
func (m *Manager) minPinnedEpoch() uint64 {
	min := atomic.LoadUint64(&m.global)

	m.mu.Lock()
	participants := m.participants
	m.mu.Unlock()

	for _, p := range participants {
		e := atomic.LoadUint64(&p.pinned)
		if e == noEpoch {
			continue
		}
		if e < min {
			min = e
		}
	}
	return min
}

// TryCollect frees every queued record across every participant whose
// retire-epoch + safetyMargin <= the minimum pinned epoch. It never
// blocks: on contention for a participant's queue it simply moves on and
// is retried by the next caller (spec.md §4.2 "Failure semantics").
// It returns the number of records freed.
func (m *Manager) TryCollect() int {
	min := m.minPinnedEpoch()

	m.mu.Lock()
	participants := append([]*Participant(nil), m.participants...)
	m.mu.Unlock()

	var freed int
	for _, p := range participants {
		if !p.mu.TryLock() {
			continue
		}
		freed += p.collectLocked(min)
		p.mu.Unlock()
	}
	return freed
}

func (p *Participant) collectLocked(min uint64) int {
	kept := p.deferred[:0]
	freed := 0
	for _, r := range p.deferred {
		if r.retireEpoch+safetyMargin <= min {
			freed++
			continue
		}
		kept = append(kept, r)
	}
	p.deferred = kept
	return freed
}

// PendingCount returns the number of records still queued for reclamation
// across every participant.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	participants := append([]*Participant(nil), m.participants...)
	m.mu.Unlock()

	var n int
	for _, p := range participants {
		p.mu.Lock()
		n += len(p.deferred)
		p.mu.Unlock()
	}
	return n
}

// Flush unconditionally frees every queued record across every
// participant, regardless of pinned epochs. It is shutdown-only: the
// caller must ensure no participant is pinned (spec.md §4.2 "Failure
// semantics"). It returns the number of records freed.
func (m *Manager) Flush() int {
	m.mu.Lock()
	participants := append([]*Participant(nil), m.participants...)
	m.mu.Unlock()

	var freed int
	for _, p := range participants {
		p.mu.Lock()
		freed += len(p.deferred)
		p.deferred = nil
		p.mu.Unlock()
	}
	return freed
}
