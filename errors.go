package bwtree

import "github.com/pkg/errors"

// Sentinel error kinds of spec.md §7 that this single-root-page core can
// actually produce. Insert and Delete return ErrCapacityExceeded and
// Consolidate returns ErrConsolidationSuperseded, each wrapped with
// errors.WithStack — callers are expected to errors.Is against these
// sentinels. Traversals can also return ErrNeedsTreeStructuralHandling or
// an unrecognized-tag error, which are not sentinels of this file.
//
// spec.md §7 also names a third kind, "slot unmapped" (an operation
// targeting a page id whose slot is still 0), but every façade operation
// here targets only RootPageID, and New pre-claims that slot before
// returning — there is no operation in this core's surface that can ever
// observe it unmapped, so no corresponding sentinel is declared. See
// DESIGN.md.
var (
	// ErrCapacityExceeded is returned when a write exhausts its CAS retry
	// cap under sustained contention. (A full page table is reported by
	// pagetable.ErrCapacityExceeded, a separate sentinel.)
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrConsolidationSuperseded is returned by Consolidate when another
	// writer altered the slot first; the caller may retry.
	ErrConsolidationSuperseded = errors.New("consolidation superseded")
)

func errConfig(msg string) error {
	return errors.Errorf("invalid config: %s", msg)
}
