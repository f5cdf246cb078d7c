package mvcc

// gcStep implements spec.md §4.6's gc_step: advance through the engine's
// global story list a fixed number of iterations, classifying each story
// against the ordered predicates in memtx_tx_story_gc_step and freeing it
// only once all of them clear:
//
//  1. USED if any statement or reader still references it directly;
//  2. READ_VIEW if its add or del PSN is at or above the lowest rv_psn
//     any read-view transaction still depends on — an active read view
//     may yet need exactly this version;
//  3. USED if it is a chain head with an older sibling still behind it
//     (unlinking would leave that sibling head without being physically
//     in the index), a never-deleted chain head (this engine's index
//     stores the story itself, so there is no bare-tuple representation
//     to fall back to), or — on a secondary index — its newer sibling is
//     still an unprepared insert that might roll back onto it;
//  4. TRACK_GAP if it still holds any read_gaps;
//  5. otherwise it is detached from every chain it is still linked into
//     and freed.
//
// It returns the number of stories freed.
func (e *Engine) gcStep(budget int) int {
	e.metrics.GCSweeps.Inc()
	freed := 0
	low := e.lowestReadViewPsn()

	n := e.allStories.tail
	for n != nil && budget > 0 {
		prev := n.prev
		st := n.val
		e.metrics.GCStoriesScanned.Inc()
		budget--

		if e.collectStory(st, low) {
			freed++
			e.metrics.GCStoriesFreed.Inc()
		}
		n = prev
	}

	e.newStoriesSinceGC = 0
	e.log.Infow("gc sweep complete", "freed", freed)
	return freed
}

func (e *Engine) collectStory(st *Story, lowReadViewPsn uint64) bool {
	if st.AddStmt != nil || st.DelStmt != nil || st.Readers.Len() > 0 {
		// spec.md §4.6 predicate 1: a statement or reader still referencing
		// this story directly makes it USED.
		st.Status = StatusUsed
		e.metrics.StoryClassifications.WithLabelValues("used").Inc()
		return false
	}
	if st.AddPsn >= lowReadViewPsn || st.DelPsn >= lowReadViewPsn {
		// spec.md §4.6 predicate 2: an active read view may still need this
		// exact version, regardless of whether it's currently a chain head.
		st.Status = StatusReadView
		e.metrics.StoryClassifications.WithLabelValues("read_view").Inc()
		return false
	}
	for i := range st.Link {
		if st.Link[i].Newer == nil {
			// st is the physical head of chain i. Unlinking it with an
			// older sibling still behind it would leave that sibling, which
			// isn't in the index, as the new head — violating the
			// top-of-chain invariant. And since this engine's index stores
			// the story itself rather than a bare tuple (DESIGN.md), a head
			// that was never deleted (DelPsn == 0) is the tuple's only
			// surviving representation: freeing it would erase a live row,
			// not just retire spent MVCC bookkeeping.
			if st.Link[i].Older != nil || st.DelPsn == 0 {
				st.Status = StatusUsed
				e.metrics.StoryClassifications.WithLabelValues("used").Inc()
				return false
			}
		} else if i > 0 && st.Link[i].Newer.AddStmt != nil {
			// A secondary-index story whose newer sibling is still an
			// unprepared insert must be retained: a rollback of that
			// sibling needs st back, and only the primary index's deleter
			// list (not this chain) is rewired to track that (spec.md
			// §4.6 predicate 3, memtx_tx_story_gc_step).
			st.Status = StatusUsed
			e.metrics.StoryClassifications.WithLabelValues("used").Inc()
			return false
		}
		if st.Link[i].ReadGaps.Len() > 0 {
			st.Status = StatusTrackGap
			e.metrics.StoryClassifications.WithLabelValues("track_gap").Inc()
			return false
		}
	}

	for i, idx := range st.Space.Indexes {
		e.detachStory(st, idx, i)
	}
	e.freeStory(st)
	return true
}
