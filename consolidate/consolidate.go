// Package consolidate implements the consolidation algorithm of spec.md
// §4.5: collapsing a delta chain into a fresh, sorted base node and
// atomically swapping it into the page table.
package consolidate

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/outofforest/bwtree/backoff"
	"github.com/outofforest/bwtree/delta"
	"github.com/outofforest/bwtree/epoch"
	"github.com/outofforest/bwtree/pagetable"
)

// ErrSuperseded is returned when another writer altered the slot during
// consolidation; the caller may retry (spec.md §4.5 step 6, §7).
var ErrSuperseded = errors.New("consolidation superseded: slot changed concurrently")

// ErrNeedsTreeStructuralHandling is returned when the chain walk
// encounters a Split or Merge delta. Tree-structural growth is a non-goal
// of this core (spec.md §1, §9); rather than silently misapplying the
// delta as if it were an Insert — the bug spec.md §9 calls out in the
// source — every walk in this package surfaces it explicitly.
type ErrNeedsTreeStructuralHandling struct {
	PageID uint64
	Tag    delta.Tag
}

func (e *ErrNeedsTreeStructuralHandling) Error() string {
	return errors.Errorf("page %d: %s delta needs tree-structural handling, unsupported by this core",
		e.PageID, e.Tag).Error()
}

// Outcome is an entry in the final-state map built while walking a chain:
// either a present value or a tombstone. Exported so callers outside this
// package (the façade's Scan, in particular) can reuse the exact same
// materialization Run uses, rather than re-implementing chain-folding.
type Outcome struct {
	Value uint64
	Tomb  bool
}

// Walk applies every delta in the chain rooted at head into a final-state
// map, newest-to-oldest, "first write wins" (spec.md §4.5 step 3), then
// merges any terminating base node's entries for keys not already decided.
// length counts the number of delta links walked before the base
// (excluding the base node itself), used by callers deciding whether a
// chain has crossed the consolidation threshold.
//
// The returned map is the complete decided state for every key reachable
// from head — exactly the materialization both consolidation and a
// full-range scan need, so both operations share this one walk.
func Walk(pageID uint64, head *delta.Header) (state map[int64]Outcome, length int, err error) {
	state = make(map[int64]Outcome)

	var base *delta.Base
	for h := range delta.All(head) {
		if h.Tag == delta.TagBase {
			base = delta.AsBase(h)
			break
		}

		length++
		switch h.Tag {
		case delta.TagInsert:
			ins := delta.AsInsert(h)
			if _, decided := state[ins.Key]; !decided {
				state[ins.Key] = Outcome{Value: ins.Value}
			}
		case delta.TagDelete:
			del := delta.AsDelete(h)
			if _, decided := state[del.Key]; !decided {
				state[del.Key] = Outcome{Tomb: true}
			}
		case delta.TagSplit, delta.TagMerge:
			return nil, 0, &ErrNeedsTreeStructuralHandling{PageID: pageID, Tag: h.Tag}
		default:
			return nil, 0, errors.Errorf("page %d: unrecognized delta tag %d", pageID, h.Tag)
		}
	}

	if base != nil {
		for i, k := range base.Keys {
			if _, decided := state[k]; !decided {
				state[k] = Outcome{Value: base.Values[i]}
			}
		}
	}

	return state, length, nil
}

// Len walks the chain at pageID purely to report its delta-link length
// (excluding the terminating base), without building or publishing
// anything. Used by the façade to decide whether to request consolidation
// (spec.md §4.4 "Consolidation threshold") and by the ChainLen diagnostic
// (SPEC_FULL.md §D.1).
func Len(pageID uint64, head *delta.Header) (int, error) {
	_, length, err := Walk(pageID, head)
	return length, err
}

// Run performs one consolidation attempt on pageID: it re-reads the slot,
// walks the observed chain into a final-state map, materializes a sorted
// Base node from the present entries, and CASes it into the slot. On
// success, the old chain is handed to participant for deferred
// reclamation and Run returns the new Base. On CAS failure it discards the
// candidate and returns ErrSuperseded, per spec.md §4.5 step 6.
//
// If oldHead diverges from the slot's current value before the CAS (a
// concurrent writer raced ahead), Run still attempts the CAS against the
// observed oldHead — consistent with spec.md's "optimistic, idempotent"
// framing: losers simply discard their candidate and return without side
// effects.
func Run(table *pagetable.Table, participant *epoch.Participant, pageID uint64) (*delta.Base, error) {
	oldHead := table.Get(pageID)

	state, _, err := Walk(pageID, oldHead)
	if err != nil {
		return nil, err
	}

	keys := make([]int64, 0, len(state))
	for k, o := range state {
		if !o.Tomb {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	values := make([]uint64, len(keys))
	for i, k := range keys {
		values[i] = state[k].Value
	}

	base := delta.NewBase(keys, values)

	expected := oldHead
	if !table.Update(pageID, &expected, &base.Header) {
		return nil, ErrSuperseded
	}

	if oldHead != nil {
		participant.DeferFreeChain(oldHead)
	}

	return base, nil
}

// RunWithRetry repeats Run against pageID, pacing retries with pacer,
// until either a consolidation attempt succeeds or pacer's retry cap is
// exhausted. This is the real consolidation-CAS retry loop spec.md §4.1's
// composite spin-then-backoff policy exists to pace: a losing attempt here
// means another writer altered the slot between the read and the CAS, the
// same transient condition the append-delta protocol retries through.
func RunWithRetry(
	table *pagetable.Table, participant *epoch.Participant, pageID uint64, pacer backoff.Pacer, maxRetries int,
) (*delta.Base, error) {
	for {
		base, err := Run(table, participant, pageID)
		if err == nil {
			return base, nil
		}
		if !errors.Is(err, ErrSuperseded) {
			return nil, err
		}
		if !pacer.ShouldRetry(maxRetries) {
			return nil, err
		}
		pacer.Backoff()
	}
}
