// Package pagetable implements the sole cross-component synchronization
// point of the index (spec.md §4.3): a fixed-capacity array of atomic
// slots mapping a logical page id to the address of its delta-chain head.
package pagetable

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/outofforest/bwtree/delta"
)

// ErrCapacityExceeded is returned by AllocateID once every slot has been
// handed out.
var ErrCapacityExceeded = errors.New("page table capacity exceeded")

// Table is a fixed-capacity array of atomic head pointers, one per logical
// page id. 0 <= id < capacity; the zero value of a slot (nil) means
// unmapped. Capacity is fixed at construction (no resize), per spec.md
// §4.3's "Constraints".
type Table struct {
	slots  []atomic.Pointer[delta.Header]
	nextID atomic.Uint64
}

// New creates a page table with the given capacity. Logical page id 0 is
// reserved for the root (spec.md §3) and is pre-claimed, so the monotonic
// id counter used by AllocateID starts at 1.
func New(capacity uint64) *Table {
	t := &Table{
		slots: make([]atomic.Pointer[delta.Header], capacity),
	}
	t.nextID.Store(1)
	return t
}

// Capacity returns the number of slots in the table.
func (t *Table) Capacity() uint64 {
	return uint64(len(t.slots))
}

// AllocatedCount returns the number of ids handed out by AllocateID so
// far, not counting the pre-claimed root id 0. Used by the façade's Stats
// snapshot (SPEC_FULL.md §D.3).
func (t *Table) AllocatedCount() uint64 {
	n := t.nextID.Load() - 1
	// Failed AllocateID calls advance the counter too; ids 1..capacity-1
	// are the most that can ever be handed out.
	if limit := uint64(len(t.slots)); n >= limit {
		if limit == 0 {
			return 0
		}
		return limit - 1
	}
	return n
}

// checkRange panics on an out-of-range id: per spec.md §4.3 this is a
// programming error, not a runtime fault to be reported to a caller.
func (t *Table) checkRange(id uint64) {
	if id >= uint64(len(t.slots)) {
		panic(errors.Errorf("page id %d out of range [0, %d)", id, len(t.slots)))
	}
}

// Get atomically loads the head pointer of slot id with acquire ordering.
func (t *Table) Get(id uint64) *delta.Header {
	t.checkRange(id)
	return t.slots[id].Load()
}

// Set unconditionally publishes value into slot id with release ordering.
func (t *Table) Set(id uint64, value *delta.Header) {
	t.checkRange(id)
	t.slots[id].Store(value)
}

// Update performs a CAS on slot id: if the slot currently equals *expected,
// it is replaced by desired and true is returned. On failure, *expected is
// updated to the slot's observed current value, so a retry loop can
// proceed without a second Get call (spec.md §4.3).
func (t *Table) Update(id uint64, expected **delta.Header, desired *delta.Header) bool {
	t.checkRange(id)
	if t.slots[id].CompareAndSwap(*expected, desired) {
		return true
	}
	*expected = t.slots[id].Load()
	return false
}

// AllocateID hands out a fresh logical page id from the monotonic counter
// described in spec.md §3, starting at 1 (0 is the reserved root). It
// returns ErrCapacityExceeded once the table is exhausted. Allocated ids
// are never reused; deleting the content at a page id does not return the
// id to a free list (spec.md defines no such protocol).
func (t *Table) AllocateID() (uint64, error) {
	id := t.nextID.Add(1) - 1
	if id >= uint64(len(t.slots)) {
		return 0, ErrCapacityExceeded
	}
	return id, nil
}
