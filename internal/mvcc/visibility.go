package mvcc

import "storyengine/internal/tuple"

// Clarify implements spec.md §4.4: resolve what txn is allowed to see at
// t's key in idx, walking the chain from newest to oldest, demoting txn
// to a read view the first time it meets data whose visibility depends
// on a statement that is prepared but not yet committed and that its
// isolation level cannot simply see through, and leaving inplace gaps
// wherever an in-progress (not yet prepared) insert or delete was
// skipped. It also installs the read tracker (or, if nothing is visible,
// the point-hole tracker) as a side effect — a single resolved read in
// this engine is never a side-effect-free operation.
func (e *Engine) Clarify(txn *Transaction, sp *Space, idxID int, t *tuple.Tuple) (*tuple.Tuple, bool) {
	idx := sp.Indexes[idxID]
	head, ok := idx.Lookup(t)
	if !e.cfg.MVCCEnabled {
		// MVCC off: the physical chain top is the only version anyone ever
		// sees, and there is nothing to track (config.go's MVCCEnabled doc).
		if !ok {
			return nil, false
		}
		return head.Tuple, true
	}
	if !ok {
		e.trackPointHole(txn, idx, t)
		return nil, false
	}
	st := e.clarifyChain(txn, idx, idxID, head, sp.SystemSpace)
	if st == nil {
		e.trackPointHole(txn, idx, t)
		return nil, false
	}
	trackReadStory(txn, st)
	e.metrics.ReadTrackersUsed.Inc()
	return st.Tuple, true
}

func (e *Engine) trackPointHole(txn *Transaction, idx *Index, t *tuple.Tuple) {
	if txn == nil || idx.PointHoles == nil {
		return
	}
	idx.PointHoles.Track(txn, idx, t)
	e.metrics.PointHoles.Inc()
}

// clarifyChain walks chain i of head toward the oldest story, returning
// the first story visible to txn, or nil if none is.
func (e *Engine) clarifyChain(txn *Transaction, idx *Index, i int, head *Story, systemSpace bool) *Story {
	for cur := head; cur != nil; cur = cur.Link[i].Older {
		if !e.addDecided(txn, i, cur, systemSpace) {
			continue
		}
		if e.maskedByDelete(txn, i, cur, systemSpace) {
			continue
		}
		return cur
	}
	return nil
}

// addDecided reports whether cur's insertion is visible to txn, handling
// demotion and inplace-gap bookkeeping as a side effect. It returns false
// when cur should be skipped (its insert is not yet visible).
func (e *Engine) addDecided(txn *Transaction, i int, cur *Story, systemSpace bool) bool {
	if cur.AddStmt == nil {
		return cur.AddPsn < txn.EffectiveRvPsn()
	}
	if cur.AddStmt.Txn == txn {
		return true // a transaction always sees its own writes
	}
	if cur.AddPsn == 0 {
		// in-progress, not yet prepared: invisible to everyone else, and
		// the reader must be told if this statement later prepares.
		attachInplaceGap(txn, findTop(cur, i), i)
		e.metrics.GapTrackers.WithLabelValues("inplace").Inc()
		return false
	}
	if !isPreparedOK(txn, systemSpace) {
		// A prepared-but-uncommitted insert this isolation level can't see
		// through is never visible, no matter where the demotion ends up
		// setting the horizon — cur.AddPsn and the fresh RvPsn can tie.
		e.demoteToReadView(txn, cur.AddPsn)
		return false
	}
	return cur.AddPsn < txn.EffectiveRvPsn()
}

// maskedByDelete mirrors addDecided for cur's deletion side: it reports
// whether txn must treat cur as already deleted.
func (e *Engine) maskedByDelete(txn *Transaction, i int, cur *Story, systemSpace bool) bool {
	if cur.DelPsn == 0 {
		masked := false
		cur.eachDeleter(func(d *Statement) bool {
			if d.Txn == txn {
				masked = true
				return false
			}
			attachInplaceGap(txn, findTop(cur, i), i)
			e.metrics.GapTrackers.WithLabelValues("inplace").Inc()
			return true
		})
		return masked
	}

	var deleter *Transaction
	cur.eachDeleter(func(d *Statement) bool {
		deleter = d.Txn
		return false
	})
	if deleter == txn {
		return true
	}
	if deleter != nil && !isPreparedOK(txn, systemSpace) {
		// Mirrors addDecided: a prepared-but-uncommitted delete this
		// isolation level can't see through hasn't happened yet from txn's
		// point of view, so cur stays unmasked regardless of where the
		// demotion ends up setting the horizon.
		e.demoteToReadView(txn, cur.DelPsn)
		return false
	}
	return cur.DelPsn < txn.EffectiveRvPsn()
}
