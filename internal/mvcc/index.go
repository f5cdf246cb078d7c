package mvcc

import (
	"github.com/tidwall/btree"

	"storyengine/internal/errs"
	"storyengine/internal/tuple"
)

// KeyDef describes the comparison key of one index, generalizing the
// teacher's single hardcoded VersionedKey.Compare into a per-index,
// per-space definition: which tuple fields form the key, whether the
// index enforces uniqueness, and whether it is ordered (tree) or
// unordered (hash).
type KeyDef struct {
	Parts    []int
	Unique   bool
	Ordered  bool
	Multikey bool
}

// Index is the engine's reference implementation of the external index
// collaborator spec.md §6 describes: it exposes exactly the replace,
// lookup, iteration and comparison primitives this package consumes, and
// nothing else (no persistence, no DDL). Per spec.md §1 the index
// subsystem proper is out of scope; this type exists so the MVCC engine
// has something concrete to drive in tests and in the demo binary.
//
// Ordered indexes are backed by github.com/tidwall/btree.BTreeG, the
// teacher's own storage primitive, generalized from one fixed key type to
// a pluggable per-KeyDef comparator over *Story. Unordered (hash) indexes
// are backed by a Go map keyed by the xxhash-derived bucket key from
// internal/tuple.
type Index struct {
	ID   int
	Name string
	Def  KeyDef

	tree *btree.BTreeG[*Story]
	hash map[uint64][]*Story // bucket -> collision list, for hash-key collisions

	// ReadGaps is the index's own global gap list (spec.md §3 invariant 5:
	// "A gap tracker belongs either to the top story of some chain... or
	// to the index directly"). Nearby gaps with no successor, count gaps
	// and full-scan gaps all live here.
	ReadGaps list[*GapTracker]

	// PointHoles is non-nil only for unique indexes (spec.md §3
	// "Point-hole tracker" is defined over "a unique index").
	PointHoles *pointHoleTable
}

// NewIndex validates def and builds an Index. Multikey definitions are
// refused outright (SPEC_FULL.md §13, spec.md §9 first Open Question):
// the engine does not attempt to support them.
func NewIndex(id int, name string, def KeyDef) (*Index, error) {
	if def.Multikey {
		return nil, errs.ErrMultikeyUnsupported
	}
	idx := &Index{ID: id, Name: name, Def: def}
	if def.Ordered {
		idx.tree = btree.NewBTreeG(func(a, b *Story) bool {
			return tuple.CompareParts(a.Tuple, b.Tuple, def.Parts) < 0
		})
	} else {
		idx.hash = make(map[uint64][]*Story)
	}
	if def.Unique {
		idx.PointHoles = newPointHoleTable()
	}
	return idx, nil
}

func (idx *Index) keyOf(t *tuple.Tuple) string {
	return tuple.KeyString(t, idx.Def.Parts)
}

func (idx *Index) bucket(t *tuple.Tuple) uint64 {
	return tuple.HashKey(idx.keyOf(t))
}

// Lookup returns the story currently physically present at t's key, i.e.
// the chain head, per spec.md §3 invariant 1.
func (idx *Index) Lookup(t *tuple.Tuple) (*Story, bool) {
	if idx.Def.Ordered {
		probe := &Story{Tuple: t}
		return idx.tree.Get(probe)
	}
	b := idx.bucket(t)
	key := idx.keyOf(t)
	for _, s := range idx.hash[b] {
		if idx.keyOf(s.Tuple) == key {
			return s, true
		}
	}
	return nil, false
}

// Replace performs the physical index.replace primitive of spec.md §6:
// it installs newStory as the physical occupant of its key and returns
// whatever story was displaced (nil if the slot was empty), plus, for
// ordered indexes, the immediate successor story in ascending key order
// (used by the nearby-gap writer scan, spec.md §4.3 item 3).
func (idx *Index) Replace(newStory *Story) (displaced, successor *Story) {
	t := newStory.Tuple
	if idx.Def.Ordered {
		if old, ok := idx.tree.Get(newStory); ok {
			displaced = old
		}
		idx.tree.Set(newStory)
		if displaced == nil {
			seenSelf := false
			idx.tree.Ascend(newStory, func(item *Story) bool {
				if !seenSelf && item == newStory {
					seenSelf = true
					return true
				}
				successor = item
				return false
			})
		}
		return displaced, successor
	}

	b := idx.bucket(t)
	key := idx.keyOf(t)
	bucket := idx.hash[b]
	for i, s := range bucket {
		if idx.keyOf(s.Tuple) == key {
			displaced = s
			bucket[i] = newStory
			return displaced, nil
		}
	}
	idx.hash[b] = append(bucket, newStory)
	return nil, nil
}

// RemoveExact physically deletes the index entry for t's key, regardless
// of what is stored there. Used only by the garbage collector (spec.md
// §4.6 step 5) when it unlinks a head story whose del_psn > 0: that is the
// moment the tuple is finally removed from the index.
func (idx *Index) RemoveExact(t *tuple.Tuple) {
	if idx.Def.Ordered {
		idx.tree.Delete(&Story{Tuple: t})
		return
	}
	b := idx.bucket(t)
	key := idx.keyOf(t)
	bucket := idx.hash[b]
	for i, s := range bucket {
		if idx.keyOf(s.Tuple) == key {
			idx.hash[b] = append(bucket[:i], bucket[i+1:]...)
			return
		}
	}
}

// Ascend/Descend walk the ordered index from pivot (inclusive) in the
// given direction. Used by the engine's scan/count operations to record
// nearby and count gaps (spec.md §4.3) and by demo/test code.
func (idx *Index) Ascend(pivot *tuple.Tuple, fn func(*Story) bool) {
	if !idx.Def.Ordered {
		return
	}
	idx.tree.Ascend(&Story{Tuple: pivot}, fn)
}

func (idx *Index) Descend(pivot *tuple.Tuple, fn func(*Story) bool) {
	if !idx.Def.Ordered {
		return
	}
	idx.tree.Descend(&Story{Tuple: pivot}, fn)
}

// Each performs a full, unordered walk — the shape spec.md §4.3's
// full-scan gap protects.
func (idx *Index) Each(fn func(*Story) bool) {
	if idx.Def.Ordered {
		idx.tree.Scan(fn)
		return
	}
	for _, bucket := range idx.hash {
		for _, s := range bucket {
			if !fn(s) {
				return
			}
		}
	}
}
