// Package search implements the ordered lower-bound search specified in
// spec.md §4.6: two routines over a sorted []int64 that must agree on every
// input (P8). Scalar is classical binary search. Vectorized processes the
// array in hardware-width batches, the software-visible shape of an
// AVX512/AVX2/SSE kernel generated with avo (see the ./avo package doc for
// why the generated assembly itself isn't checked in here).
package search

import "golang.org/x/sys/cpu"

// Scalar returns the lowest index i such that array[i] >= target, or
// len(array) if no such index exists. Classical lower-bound binary search.
func Scalar(array []int64, target int64) int {
	lo, hi := 0, len(array)
	for lo < hi {
		mid := lo + (hi-lo)/2
		if array[mid] < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// width picks the batch size used by Vectorized, based on the widest
// integer SIMD instruction set detected at startup: 8 lanes for AVX512,
// 4 for AVX2, 2 for SSE2, otherwise 1 (each step then compares a single
// key, which is an ordinary binary search). This mirrors the tiered 8/4/2-element chunking an
// avo-generated comparison kernel performs for ZMM/YMM/XMM registers.
func width() int {
	switch {
	case cpu.X86.HasAVX512F:
		return 8
	case cpu.X86.HasAVX2:
		return 4
	case cpu.X86.HasSSE2:
		return 2
	default:
		return 1
	}
}

// w is computed once at package init from the running CPU's feature bits.
var w = width()

// Vectorized returns the same index Scalar would, but narrows the search
// window W keys at a time as described in spec.md §4.6: while the window
// is at least W wide, it loads a W-aligned slice near the midpoint,
// compares it against target, and either skips the whole slice (all < the
// target) or stops it short (none < target) or narrows into it (target is
// inside); the residual window below W finishes with the same lower-bound
// logic as Scalar.
func Vectorized(array []int64, target int64) int {
	lo, hi := 0, len(array)
	ww := w
	if ww < 1 {
		ww = 1
	}

	for hi-lo >= ww {
		mid := lo + (hi-lo)/2
		// Align the W-slice down to a W-multiple boundary relative to lo,
		// then clamp so it stays inside [lo, hi).
		aligned := lo + (mid-lo)/ww*ww
		if aligned+ww > hi {
			aligned = hi - ww
		}
		if aligned < lo {
			aligned = lo
		}

		slice := array[aligned : aligned+ww]
		lessCount := 0
		for _, v := range slice {
			if v < target {
				lessCount++
			}
		}

		switch lessCount {
		case ww:
			// Every element in the slice is < target: the answer is beyond it.
			lo = aligned + ww
		case 0:
			// No element is < target: the answer is at or before it.
			hi = aligned
		default:
			// target lies inside this slice; narrow to it and finish with
			// the scalar lower-bound logic below.
			lo, hi = aligned, aligned+ww
			goto scalarFinish
		}
	}

scalarFinish:
	for lo < hi {
		mid := lo + (hi-lo)/2
		if array[mid] < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// FindKey reports whether target is present in array, and its index if so.
// array must be sorted ascending; for duplicate keys the first occurrence
// is returned (spec.md §4.6 tie handling).
func FindKey(array []int64, target int64) (index int, found bool) {
	idx := Vectorized(array, target)
	if idx < len(array) && array[idx] == target {
		return idx, true
	}
	return idx, false
}
