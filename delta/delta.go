// Package delta implements the delta-chain data model: a singly linked list
// of immutable, tagged update records terminated by a base node or nil.
//
// Every record — Insert, Delete, Split, Merge, and the terminating Base
// node — embeds Header as its first field, so a *Header observed through a
// page-table slot can always be downcast to its concrete type once its Tag
// has been read. This is the tagged-sum-type redesign spec.md §9 calls for,
// in place of the blind pointer-cast the source used.
package delta

import "unsafe"

// Tag discriminates the concrete type behind a *Header.
type Tag uint8

const (
	// TagBase marks a terminating, consolidated base node.
	TagBase Tag = iota
	// TagInsert marks an Insert delta.
	TagInsert
	// TagDelete marks a Delete delta (tombstone).
	TagDelete
	// TagSplit marks a Split delta.
	TagSplit
	// TagMerge marks a Merge delta.
	TagMerge
)

// String returns a human-readable name for the tag, used in logs and error
// messages.
func (t Tag) String() string {
	switch t {
	case TagBase:
		return "base"
	case TagInsert:
		return "insert"
	case TagDelete:
		return "delete"
	case TagSplit:
		return "split"
	case TagMerge:
		return "merge"
	default:
		return "unknown"
	}
}

// Header is embedded as the first field of every chain record. Its Next
// link and Tag are fixed at construction and never mutated afterwards
// (I5): a delta is either published once via CAS, or discarded.
type Header struct {
	Tag  Tag
	Next *Header
}

// Insert establishes Key -> Value at this chain position.
type Insert struct {
	Header
	Key   int64
	Value uint64
}

// NewInsert allocates a new, unpublished Insert delta linked to next.
func NewInsert(key int64, value uint64, next *Header) *Insert {
	d := &Insert{}
	PopulateInsert(d, key, value, next)
	return d
}

// PopulateInsert fills a pooled Insert record (obtained from a
// mass.Mass[Insert], as the façade does) in place of allocating a fresh
// one with NewInsert.
func PopulateInsert(d *Insert, key int64, value uint64, next *Header) {
	d.Header = Header{Tag: TagInsert, Next: next}
	d.Key = key
	d.Value = value
}

// Delete tombstones Key at this chain position.
type Delete struct {
	Header
	Key int64
}

// NewDelete allocates a new, unpublished Delete delta linked to next.
func NewDelete(key int64, next *Header) *Delete {
	d := &Delete{}
	PopulateDelete(d, key, next)
	return d
}

// PopulateDelete fills a pooled Delete record in place of NewDelete.
func PopulateDelete(d *Delete, key int64, next *Header) {
	d.Header = Header{Tag: TagDelete, Next: next}
	d.Key = key
}

// Split records that keys >= SplitKey now logically live at SiblingPageID.
// Tree-structural growth is a non-goal of the core operations (spec.md §1,
// §9); this record exists so the data model is complete, but no operation
// in this repository produces one.
type Split struct {
	Header
	SplitKey      int64
	SiblingPageID uint64
}

// NewSplit allocates a new, unpublished Split delta linked to next.
func NewSplit(splitKey int64, siblingPageID uint64, next *Header) *Split {
	return &Split{
		Header:        Header{Tag: TagSplit, Next: next},
		SplitKey:      splitKey,
		SiblingPageID: siblingPageID,
	}
}

// Merge records that this node has been folded into MergedIntoPageID.
type Merge struct {
	Header
	MergedIntoPageID uint64
}

// NewMerge allocates a new, unpublished Merge delta linked to next.
func NewMerge(mergedIntoPageID uint64, next *Header) *Merge {
	return &Merge{
		Header:           Header{Tag: TagMerge, Next: next},
		MergedIntoPageID: mergedIntoPageID,
	}
}

// AsInsert downcasts h, which must have Tag == TagInsert.
func AsInsert(h *Header) *Insert { return (*Insert)(unsafe.Pointer(h)) }

// AsDelete downcasts h, which must have Tag == TagDelete.
func AsDelete(h *Header) *Delete { return (*Delete)(unsafe.Pointer(h)) }

// AsSplit downcasts h, which must have Tag == TagSplit.
func AsSplit(h *Header) *Split { return (*Split)(unsafe.Pointer(h)) }

// AsMerge downcasts h, which must have Tag == TagMerge.
func AsMerge(h *Header) *Merge { return (*Merge)(unsafe.Pointer(h)) }

// AsBase downcasts h, which must have Tag == TagBase.
func AsBase(h *Header) *Base { return (*Base)(unsafe.Pointer(h)) }

// All iterates the chain from head to the terminating base node (or nil),
// newest first, yielding each record's Header, using the
// `func(func(T) bool)` range-over-func iterator idiom.
func All(head *Header) func(func(*Header) bool) {
	return func(yield func(*Header) bool) {
		for h := head; h != nil; h = h.Next {
			if !yield(h) {
				return
			}
		}
	}
}

// Len returns the number of links from head to the terminator, inclusive
// of the terminating base node if present. Used as a cheap pre-check when
// deciding whether a chain has crossed MaxDeltaChainLength (§4.4). It
// walks until nil and places no bound of its own on the walk.
func Len(head *Header) int {
	var n int
	for h := head; h != nil; h = h.Next {
		n++
	}
	return n
}
