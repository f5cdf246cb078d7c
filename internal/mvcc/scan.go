package mvcc

import "storyengine/internal/tuple"

// visibleAt resolves the first story visible to txn starting from head in
// chain i, tracking a read on it, the way Clarify does for a point lookup
// — factored out so range scans can reuse it story by story.
func (e *Engine) visibleAt(txn *Transaction, idx *Index, i int, head *Story) *Story {
	st := e.clarifyChain(txn, idx, i, head, head.Space.SystemSpace)
	if st != nil {
		trackReadStory(txn, st)
		e.metrics.ReadTrackersUsed.Inc()
	}
	return st
}

// TrackGap implements spec.md §3/§4.3's nearby gap read side: walk idx
// from key in the direction it names, return the first tuple visible to
// txn, and install a nearby gap tracker at the boundary (either the
// story that was found, or the index itself if the scan ran off the end
// without finding anything).
func (e *Engine) TrackGap(txn *Transaction, sp *Space, idxID int, it IterType, key *tuple.Tuple) (*tuple.Tuple, bool) {
	idx := sp.Indexes[idxID]
	var found *Story
	walk := idx.Ascend
	if !it.Ascending() {
		walk = idx.Descend
	}
	walk(key, func(cand *Story) bool {
		vis := e.visibleAt(txn, idx, idxID, cand)
		if vis == nil {
			return true
		}
		found = vis
		return false
	})

	partCount := len(idx.Def.Parts)
	if found != nil {
		attachNearbyGap(txn, idx, found, idxID, it, key, partCount)
		e.metrics.GapTrackers.WithLabelValues("nearby").Inc()
		return found.Tuple, true
	}
	attachNearbyGap(txn, idx, nil, idxID, it, key, partCount)
	e.metrics.GapTrackers.WithLabelValues("nearby").Inc()
	return nil, false
}

// TrackFullScan implements spec.md §3/§4.3's full-scan gap: every tuple
// currently visible to txn in idx, plus a tracker that will be converted
// into an inplace gap against any future insert (gapwriter.go's
// handleGapWrite).
func (e *Engine) TrackFullScan(txn *Transaction, sp *Space, idxID int) []*tuple.Tuple {
	idx := sp.Indexes[idxID]
	var out []*tuple.Tuple
	idx.Each(func(cand *Story) bool {
		if vis := e.visibleAt(txn, idx, idxID, cand); vis != nil {
			out = append(out, vis.Tuple)
		}
		return true
	})
	attachFullScanGap(txn, idx)
	e.metrics.GapTrackers.WithLabelValues("fullscan").Inc()
	return out
}

// TrackCountUntil implements spec.md §3/§4.3's count gap: count the
// tuples visible to txn starting at key in direction it, stopping before
// until (nil means run to the end of the index), and install a count
// gap tracker recording exactly that shape so a later insert landing
// inside it is reflected back to txn (gapwriter.go's handleCountedWrite).
func (e *Engine) TrackCountUntil(txn *Transaction, sp *Space, idxID int, it IterType, key, until *tuple.Tuple) int {
	idx := sp.Indexes[idxID]
	count := 0
	walk := idx.Ascend
	if !it.Ascending() {
		walk = idx.Descend
	}
	walk(key, func(cand *Story) bool {
		if until != nil {
			cmp := tuple.CompareParts(cand.Tuple, until, idx.Def.Parts)
			if (it.Ascending() && cmp >= 0) || (!it.Ascending() && cmp <= 0) {
				return false
			}
		}
		if vis := e.visibleAt(txn, idx, idxID, cand); vis != nil {
			count++
		}
		return true
	})

	var untilHint uint64
	attachCountGap(txn, idx, it, key, len(idx.Def.Parts), until, untilHint)
	e.metrics.GapTrackers.WithLabelValues("count").Inc()
	return count
}

// TrackPoint implements spec.md §3's point-hole tracker read side
// directly: used when a caller already knows (e.g. from a failed
// Clarify) that idx has nothing at t's key and wants to record the hole
// without repeating the lookup.
func (e *Engine) TrackPoint(txn *Transaction, idx *Index, t *tuple.Tuple) {
	e.trackPointHole(txn, idx, t)
}
