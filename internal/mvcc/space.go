package mvcc

import (
	"storyengine/internal/errs"
)

// Space is a typed table: a primary index plus zero or more secondary
// indexes sharing one story chain set (spec.md §2 "Share" table — Space
// is the unit indexes and story chains are scoped to).
type Space struct {
	Name    string
	Indexes []*Index

	// SystemSpace spaces are always fully visible regardless of isolation
	// (spec.md §4.4's is_prepared_ok systemSpace carve-out) — metadata
	// spaces the engine itself depends on, never user data.
	SystemSpace bool

	Invalidated bool

	stories list[*Story]
}

// NewSpace allocates an empty space. Indexes are attached afterward with
// AttachIndex, index 0 always being the primary index (spec.md §2).
func NewSpace(name string) *Space {
	return &Space{Name: name}
}

// AttachIndex adds idx to the space at the next available index ID.
// Multikey index definitions are refused (SPEC_FULL.md §13): the engine
// never attempts to support them, so the refusal happens here, before
// NewIndex (which refuses them as well) is reached.
func (sp *Space) AttachIndex(name string, def KeyDef) (*Index, error) {
	if def.Multikey {
		return nil, errs.ErrMultikeyUnsupported
	}
	idx, err := NewIndex(len(sp.Indexes), name, def)
	if err != nil {
		return nil, err
	}
	sp.Indexes = append(sp.Indexes, idx)
	return idx, nil
}

func (sp *Space) primary() *Index {
	if len(sp.Indexes) == 0 {
		return nil
	}
	return sp.Indexes[0]
}

// InvalidateSpace implements spec.md §4.6's DDL invalidation hook and
// SPEC_FULL.md §12 item 5's explicit ordering: every transaction with a
// not-yet-prepared statement against sp is aborted first (it cannot
// safely continue against a space whose shape is about to change), and
// only afterward are statements that had already prepared force-
// committed, baking in their owner-visible versions before the space is
// marked invalidated for good.
func (e *Engine) InvalidateSpace(sp *Space) {
	var toAbort, toCommit []*Statement

	sp.stories.Each(func(st *Story) bool {
		if st.AddStmt != nil {
			if st.AddStmt.Txn.Psn == 0 {
				toAbort = append(toAbort, st.AddStmt)
			} else {
				toCommit = append(toCommit, st.AddStmt)
			}
		}
		st.eachDeleter(func(d *Statement) bool {
			if d.Txn.Psn == 0 {
				toAbort = append(toAbort, d)
			} else {
				toCommit = append(toCommit, d)
			}
			return true
		})
		return true
	})

	for _, stmt := range toAbort {
		e.AbortWithConflict(stmt.Txn)
	}
	for _, stmt := range toCommit {
		e.CommitStmt(stmt)
	}

	sp.Invalidated = true
	e.log.Infow("space invalidated", "space", sp.Name)
}

func (sp *Space) checkNotInvalidated() error {
	if sp.Invalidated {
		return errs.ErrSpaceInvalidated
	}
	return nil
}
