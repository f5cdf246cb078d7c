package engine

import "storyengine/internal/mvcc"

// Space is a handle to one typed table: a primary index plus whatever
// secondary indexes AttachIndex adds.
type Space struct {
	core   *mvcc.Space
	engine *mvcc.Engine
}

// IndexDef describes one index to attach to a space.
type IndexDef struct {
	Parts    []int
	Unique   bool
	Ordered  bool
	Multikey bool
}

// AttachIndex adds an index to the space and returns its ID, to be
// passed to Txn's per-index operations (Get, ScanFrom, ...). The first
// index attached becomes index 0, the primary index (spec.md §2).
func (sp *Space) AttachIndex(name string, def IndexDef) (int, error) {
	idx, err := sp.core.AttachIndex(name, mvcc.KeyDef{
		Parts:    def.Parts,
		Unique:   def.Unique,
		Ordered:  def.Ordered,
		Multikey: def.Multikey,
	})
	if err != nil {
		return 0, err
	}
	return idx.ID, nil
}

// SystemSpace marks sp as always-visible regardless of a reader's
// isolation level (spec.md §4.4's system-space carve-out).
func (sp *Space) SystemSpace() {
	sp.core.SystemSpace = true
}
