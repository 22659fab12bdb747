// Package bwtree implements a latch-free, in-memory, ordered key-value
// index in the Bw-Tree family: a page table of atomically swapped delta
// chains, epoch-based reclamation, and SIMD-accelerated search over
// consolidated base nodes.
//
// The public surface is deliberately small — Insert, Delete, Lookup, Scan,
// Consolidate, CollectGarbage — mirroring the façade described in
// spec.md §4.7. Tree-structural growth (splits, merges across more than
// one page) is out of scope: every operation targets the single root page.
package bwtree

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/outofforest/logger"
	"github.com/outofforest/mass"
	"github.com/outofforest/parallel"
	"go.uber.org/zap"

	"github.com/outofforest/bwtree/backoff"
	"github.com/outofforest/bwtree/consolidate"
	"github.com/outofforest/bwtree/delta"
	"github.com/outofforest/bwtree/epoch"
	"github.com/outofforest/bwtree/pagetable"
)

// RootPageID is the sole logical page id every operation targets
// (spec.md §4.7 "Root"). Tree-structural extension to more than one page
// is deferred.
const RootPageID uint64 = 0

// ErrNeedsTreeStructuralHandling is returned by any traversal that
// encounters a Split or Merge delta — the signal spec.md §9 calls for in
// place of silently misreading a tree-structural delta as data. It is a
// type alias for the consolidate package's error so callers can inspect
// PageID and Tag without importing consolidate themselves.
type ErrNeedsTreeStructuralHandling = consolidate.ErrNeedsTreeStructuralHandling

// Pair is one (key, value) result of a Scan.
type Pair struct {
	Key   int64
	Value uint64
}

// Stats is a read-only snapshot of an Index's bookkeeping, the in-memory
// analogue of a read-only occupancy snapshot: page-table occupancy, delta
// records outstanding, pending-reclaim count, and the current epoch.
type Stats struct {
	PageTableCapacity uint64
	PagesAllocated    uint64
	RootChainLength   int
	PendingReclaim    int
	CurrentEpoch      uint64
}

// Index is a single latch-free ordered index instance. Every exported
// method is safe for concurrent use by any number of goroutines.
type Index struct {
	cfg Config

	table *pagetable.Table
	epoch *epoch.Manager

	massInsert *mass.Mass[delta.Insert]
	massDelete *mass.Mass[delta.Delete]

	writeCount atomic.Uint64
}

// New constructs an Index from cfg, rejecting a non-viable configuration.
func New(cfg Config) (*Index, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	idx := &Index{
		cfg:        cfg,
		table:      pagetable.New(cfg.PageTableCapacity),
		epoch:      epoch.New(cfg.GarbageBatchSize),
		massInsert: mass.New[delta.Insert](uint64(cfg.MaxDeltaChainLength) + 1), //nolint:gomnd
		massDelete: mass.New[delta.Delete](uint64(cfg.MaxDeltaChainLength) + 1), //nolint:gomnd
	}

	// Claim the root slot so it reads as "mapped, empty" rather than
	// "unmapped" from the very first lookup.
	idx.table.Set(RootPageID, &delta.NewBase(nil, nil).Header)

	return idx, nil
}

// Run drives the Index's background maintenance loop: periodic global
// epoch advancement and best-effort garbage collection. It blocks until
// ctx is cancelled, the same supervised-background-loop shape used so
// callers wire it with parallel.Group.Spawn("bwtree", parallel.Continue,
// idx.Run) the same way any other supervised background loop is wired.
//
// Run is optional: callers that advance the epoch and collect garbage
// solely via the periodic hooks on the write path (see insert/delete
// below) never need to spawn it.
func (idx *Index) Run(ctx context.Context) error {
	return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		spawn("collector", parallel.Fail, func(ctx context.Context) error {
			log := logger.Get(ctx)
			ticker := newTicker()
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return errors.WithStack(ctx.Err())
				case <-ticker.C:
					idx.epoch.AdvanceGlobal()
					freed := idx.epoch.TryCollect()
					if freed > 0 {
						log.Debug("epoch collection",
							zap.Int("freed", freed),
							zap.Int("pending", idx.epoch.PendingCount()))
					}
				}
			}
		})
		return nil
	})
}

// Insert appends an Insert delta for key, publishing value as the newest
// write. Repeated inserts of the same key do not overwrite in place; the
// newest delta wins at read time (spec.md §4.7 "Duplicate-key semantics").
func (idx *Index) Insert(key int64, value uint64) error {
	return idx.write(func(next *delta.Header) *delta.Header {
		d := idx.massInsert.New()
		delta.PopulateInsert(d, key, value, next)
		return &d.Header
	})
}

// Delete appends a Delete delta (tombstone) for key.
func (idx *Index) Delete(key int64) error {
	return idx.write(func(next *delta.Header) *delta.Header {
		d := idx.massDelete.New()
		delta.PopulateDelete(d, key, next)
		return &d.Header
	})
}

// write implements the append-delta protocol of spec.md §4.4: pin the
// epoch, build a fresh delta against the observed head, CAS it in, retry
// with backoff on failure up to CASMaxRetries. On a successful publish it
// requests consolidation if the chain crossed threshold, and periodically
// advances the global epoch and triggers a best-effort collection
// (spec.md §4.7 "Write discipline").
func (idx *Index) write(build func(next *delta.Header) *delta.Header) error {
	participant := idx.epoch.Borrow()
	defer idx.epoch.Return(participant)

	guard := participant.Pin()
	defer guard.Release()

	ctrl := backoff.New(idx.backoffConfig())

	for {
		head := idx.table.Get(RootPageID)
		candidate := build(head)

		expected := head
		if idx.table.Update(RootPageID, &expected, candidate) {
			break
		}

		if !ctrl.ShouldRetry(idx.cfg.CASMaxRetries) {
			return errors.WithStack(ErrCapacityExceeded)
		}
		ctrl.Backoff()
	}

	if n := idx.writeCount.Add(1); n%uint64(idx.cfg.GarbageBatchSize) == 0 {
		idx.epoch.AdvanceGlobal()
		idx.epoch.TryCollect()
	}

	// A raw pointer-chase count, cheap enough to run on every write, gates
	// the far more expensive tag-decoding Walk below: delta.Len counts the
	// terminating base node too, so it always exceeds consolidate.Len's
	// exclusive count by exactly one, and can only ever rule the threshold
	// out, never in.
	if newHead := idx.table.Get(RootPageID); delta.Len(newHead) > idx.cfg.MaxDeltaChainLength+1 {
		if length, err := consolidate.Len(RootPageID, newHead); err == nil &&
			length > idx.cfg.MaxDeltaChainLength {
			// Best-effort: exhausting the pacer's retries here just means
			// another writer's consolidation (or none at all yet) wins; the
			// chain stays correct either way, only longer than ideal.
			_, _ = consolidate.RunWithRetry(
				idx.table, participant, RootPageID, idx.consolidationPacer(), idx.cfg.CASMaxRetries)
		}
	}

	return nil
}

// Lookup returns (value, true) if the newest delta mentioning key is an
// Insert, (0, false) if it is a Delete or key is absent entirely
// (spec.md §4.7 "lookup"). It never fails under normal operation; a Split
// or Merge delta encountered mid-chain (never produced by this core, but
// part of the data model) surfaces as ErrNeedsTreeStructuralHandling.
func (idx *Index) Lookup(key int64) (uint64, bool, error) {
	participant := idx.epoch.Borrow()
	defer idx.epoch.Return(participant)

	guard := participant.Pin()
	defer guard.Release()

	head := idx.table.Get(RootPageID)
	for h := range delta.All(head) {
		switch h.Tag {
		case delta.TagInsert:
			ins := delta.AsInsert(h)
			if ins.Key == key {
				return ins.Value, true, nil
			}
		case delta.TagDelete:
			del := delta.AsDelete(h)
			if del.Key == key {
				return 0, false, nil
			}
		case delta.TagSplit, delta.TagMerge:
			return 0, false, &consolidate.ErrNeedsTreeStructuralHandling{PageID: RootPageID, Tag: h.Tag}
		case delta.TagBase:
			base := delta.AsBase(h)
			value, present := base.Find(key)
			return value, present, nil
		default:
			return 0, false, errors.Errorf("page %d: unrecognized delta tag %d", RootPageID, h.Tag)
		}
	}

	return 0, false, nil
}

// Scan returns every (key, value) pair with lo <= key < hi, each key's
// outcome decided by its newest delta (spec.md §4.7 "scan"), in ascending
// key order. lo > hi is a caller contract violation and panics, matching
// a caller-error panic rather than a returned error, since lo > hi is a precondition violation, not a runtime condition.
func (idx *Index) Scan(lo, hi int64) ([]Pair, error) {
	if lo > hi {
		panic(errors.Errorf("scan: lo (%d) > hi (%d)", lo, hi))
	}

	participant := idx.epoch.Borrow()
	defer idx.epoch.Return(participant)

	guard := participant.Pin()
	defer guard.Release()

	head := idx.table.Get(RootPageID)
	state, _, err := consolidate.Walk(RootPageID, head)
	if err != nil {
		return nil, err
	}

	keys := make([]int64, 0, len(state))
	for k, o := range state {
		if !o.Tomb && k >= lo && k < hi {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	pairs := make([]Pair, len(keys))
	for i, k := range keys {
		pairs[i] = Pair{Key: k, Value: state[k].Value}
	}
	return pairs, nil
}

// Consolidate drives the root page through consolidation
// (spec.md §4.5), independent of whether the chain has crossed threshold,
// retrying a losing CAS race under the composite spin-then-backoff policy
// of spec.md §4.1 paced by Config.ConsolidationSpinLimit. Returns
// ErrConsolidationSuperseded if every retry lost the race; the caller may
// retry again.
func (idx *Index) Consolidate() error {
	participant := idx.epoch.Borrow()
	defer idx.epoch.Return(participant)

	guard := participant.Pin()
	defer guard.Release()

	_, err := consolidate.RunWithRetry(idx.table, participant, RootPageID, idx.consolidationPacer(), idx.cfg.CASMaxRetries)
	if errors.Is(err, consolidate.ErrSuperseded) {
		return errors.WithStack(ErrConsolidationSuperseded)
	}
	return err
}

// CollectGarbage performs one best-effort, non-blocking EBR collection
// pass (spec.md §4.7 "collect_garbage") and returns the number of records
// freed.
func (idx *Index) CollectGarbage() int {
	idx.epoch.AdvanceGlobal()
	return idx.epoch.TryCollect()
}

// ChainLen reports the root page's current delta-chain length (the
// number of links from head to the terminating base, exclusive), the
// diagnostic SPEC_FULL.md §D.1 adds for observability.
func (idx *Index) ChainLen() (int, error) {
	return consolidate.Len(RootPageID, idx.table.Get(RootPageID))
}

// Stats returns a point-in-time snapshot of the Index's bookkeeping
// (SPEC_FULL.md §D.3).
func (idx *Index) Stats() Stats {
	chainLen, _ := idx.ChainLen()
	return Stats{
		PageTableCapacity: idx.table.Capacity(),
		PagesAllocated:    1 + idx.table.AllocatedCount(),
		RootChainLength:   chainLen,
		PendingReclaim:    idx.epoch.PendingCount(),
		CurrentEpoch:      idx.epoch.CurrentEpoch(),
	}
}

func (idx *Index) backoffConfig() backoff.Config {
	return backoff.Config{
		Min:       idx.cfg.BackoffMin,
		Max:       idx.cfg.BackoffMax,
		SpinLimit: idx.cfg.ConsolidationSpinLimit,
	}
}

// consolidationPacer builds a fresh composite spin-then-backoff policy for
// one consolidation-CAS retry loop: Config.ConsolidationSpinLimit tight
// spins before falling through to the same jittered exponential backoff
// the write path uses.
func (idx *Index) consolidationPacer() backoff.Pacer {
	return backoff.NewSpinThenBackoff(backoff.New(idx.backoffConfig()), idx.cfg.ConsolidationSpinLimit)
}

// newTicker paces the background collector loop. A fixed interval rather
// than a Config field: the loop is a convenience wrapper around the same
// AdvanceGlobal/TryCollect calls the write path already makes inline,
// not a tuning surface of its own.
func newTicker() *time.Ticker {
	return time.NewTicker(10 * time.Millisecond) //nolint:gomnd
}
