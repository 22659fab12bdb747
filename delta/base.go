package delta

import "github.com/outofforest/bwtree/search"

// Base is the terminating, consolidated snapshot of a node's present
// entries: parallel, strictly-ascending key/value slices (I4). It is
// immutable after construction, exactly like every delta record — a
// consolidation that wants different content builds a new Base and CASes
// it into the slot rather than mutating this one (I5).
type Base struct {
	Header
	Keys   []int64
	Values []uint64
}

// NewBase builds a Base node from parallel, already-sorted key/value
// slices. Callers (consolidate.Run, tests) are responsible for the sort;
// NewBase only wires the Header and stores the slices.
func NewBase(keys []int64, values []uint64) *Base {
	return &Base{
		Header: Header{Tag: TagBase},
		Keys:   keys,
		Values: values,
	}
}

// Len returns the number of entries in the base node.
func (b *Base) Len() int {
	return len(b.Keys)
}

// Find looks up key using the ordered search package (§4.6) and reports
// whether it is present, along with its value.
func (b *Base) Find(key int64) (value uint64, present bool) {
	idx, ok := search.FindKey(b.Keys, key)
	if !ok {
		return 0, false
	}
	return b.Values[idx], true
}

// LowerBound returns the smallest index i such that Keys[i] >= key, or
// len(Keys) if none exists.
func (b *Base) LowerBound(key int64) int {
	return search.Vectorized(b.Keys, key)
}
