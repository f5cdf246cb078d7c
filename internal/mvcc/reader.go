package mvcc

import "storyengine/internal/tuple"

// ReadTracker records that Txn read Story (spec.md §3 "Read tracker").
type ReadTracker struct {
	Txn   *Transaction
	Story *Story

	storyNode *node[*ReadTracker] // link in Story.Readers
	txnNode   *node[*ReadTracker] // link in Txn.ReadSet
}

func (rt *ReadTracker) unlink() {
	rt.storyNode.Unlink()
	rt.txnNode.Unlink()
}

// trackReadStory implements spec.md §4.2's track_read_story: install a
// read tracker for (txn, story), deduplicating by walking Story.Readers
// and Txn.ReadSet in parallel from the front. Both lists are MRU-ordered,
// so a tracker that is reused often surfaces near the front of whichever
// list is shorter — the effective constant-time behavior the spec
// describes.
func trackReadStory(txn *Transaction, st *Story) *ReadTracker {
	a := st.Readers.Front()
	b := txn.ReadSet.Front()
	for a != nil || b != nil {
		if a != nil {
			if rt := a.Value(); rt.Txn == txn {
				rt.storyNode.MoveToFront()
				rt.txnNode.MoveToFront()
				return rt
			}
			a = a.next
		}
		if b != nil {
			if rt := b.Value(); rt.Story == st {
				rt.storyNode.MoveToFront()
				rt.txnNode.MoveToFront()
				return rt
			}
			b = b.next
		}
	}

	rt := &ReadTracker{Txn: txn, Story: st}
	rt.storyNode = st.Readers.PushFront(rt)
	rt.txnNode = txn.ReadSet.PushFront(rt)
	return rt
}

// trackRead implements spec.md §4.2's track_read: if t is clean (no story
// has ever referenced it), a degenerate one-story chain is created first
// so there is something to attach the tracker to.
func (e *Engine) trackRead(txn *Transaction, sp *Space, t *tuple.Tuple) *ReadTracker {
	if txn == nil {
		return nil
	}
	st := e.storyForCleanTuple(sp, t)
	rt := trackReadStory(txn, st)
	e.metrics.ReadTrackersUsed.Inc()
	return rt
}

// storyForCleanTuple returns t's existing story if one exists (t is
// dirty), or allocates a degenerate single-story chain for it otherwise
// (spec.md §3 "Lifecycle": "Stories are created by a statement... or
// lazily by a tracker that needs to attach to a clean tuple"). By the
// time this runs, dirtyStory has already failed to find a story for t
// via the primary index, so t genuinely has no story anywhere yet: it
// becomes a solo head in every index, physically registered there for
// the first time.
func (e *Engine) storyForCleanTuple(sp *Space, t *tuple.Tuple) *Story {
	if t.IsDirty() {
		if st, ok := e.dirtyStory(sp, t); ok {
			return st
		}
	}
	st := e.storyNew(sp, t, len(sp.Indexes))
	for i, idx := range sp.Indexes {
		linkTop(idx, st, nil, i, true)
		idx.Replace(st)
	}
	return st
}

// dirtyStory looks up the story currently backing a dirty tuple via the
// primary index (index 0), which always carries either the current head
// or, transiently, nothing while a displaced tuple is being resolved.
func (e *Engine) dirtyStory(sp *Space, t *tuple.Tuple) (*Story, bool) {
	if len(sp.Indexes) == 0 {
		return nil, false
	}
	return sp.Indexes[0].Lookup(t)
}
