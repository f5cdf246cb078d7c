package mvcc

import "storyengine/internal/tuple"

// Link is a story's per-index chain state (spec.md §3 "Story" /
// "per-index link[i]"). It is a value, not a pointer, sized implicitly by
// Story.Link's slice length — the teacher's fixed-size flexible record
// trick (spec.md §9 "variable per-story link array") is unnecessary in Go,
// where a slice already grows to IndexCount without a pool-per-size hack;
// that simplification is recorded in DESIGN.md.
type Link struct {
	Newer, Older *Story

	// ReadGaps holds gap trackers whose holder is this story, valid only
	// while this story is the top of chain i (spec.md §3 invariant 5).
	ReadGaps list[*GapTracker]

	// InIndex is non-nil iff this story is the top of chain i and is
	// physically represented in that index (spec.md §3 invariant 1).
	InIndex *Index
}

// Story is a version record for a tuple in one space (spec.md §3
// "Story").
type Story struct {
	ID    uint64
	Space *Space
	Tuple *tuple.Tuple

	AddStmt *Statement
	DelStmt *Statement // head of the singly linked list of in-progress deleters
	AddPsn  uint64
	DelPsn  uint64

	Readers list[*ReadTracker]
	Link    []Link

	IndexCount int
	Status     StoryStatus

	TupleRetained bool
	HasFuncKey    bool
	FuncKeys      map[int]*tuple.Tuple // cached secondary keys, by index id

	allNode   *node[*Story] // link in the engine's global story list
	spaceNode *node[*Story] // link in the per-space story list
}

// eachDeleter walks the Statement.nextDeleter chain that lets Story.DelStmt
// hold more than one in-progress deleter at once (spec.md §3: "del_stmt
// forms a singly linked list").
func (s *Story) eachDeleter(fn func(*Statement) bool) {
	for st := s.DelStmt; st != nil; st = st.nextDeleter {
		if !fn(st) {
			return
		}
	}
}

func (s *Story) removeDeleter(target *Statement) {
	if s.DelStmt == target {
		s.DelStmt = target.nextDeleter
		target.nextDeleter = nil
		return
	}
	for st := s.DelStmt; st != nil; st = st.nextDeleter {
		if st.nextDeleter == target {
			st.nextDeleter = target.nextDeleter
			target.nextDeleter = nil
			return
		}
	}
}

func (s *Story) addDeleter(stmt *Statement) {
	stmt.nextDeleter = s.DelStmt
	s.DelStmt = stmt
}

// storyNew allocates a story, publishes the dirty flag on its tuple, and
// links it into the engine's global and per-space story lists (spec.md
// §4.1 "story_new"). indexCount fixes the size of the per-index Link
// array for this story's lifetime.
func (e *Engine) storyNew(sp *Space, t *tuple.Tuple, indexCount int) *Story {
	t.MarkDirty()
	e.storyCounter++
	st := &Story{
		ID:         e.storyCounter,
		Space:      sp,
		Tuple:      t.Ref(),
		IndexCount: indexCount,
		Link:       make([]Link, indexCount),
		Status:     StatusUsed,
	}
	st.allNode = e.allStories.PushFront(st)
	st.spaceNode = sp.stories.PushFront(st)
	e.metrics.StoriesCreated.Inc()
	e.metrics.StoriesInUse.Inc()
	e.newStoriesSinceGC++
	e.log.Debugw("story created", "story", st.ID, "space", sp.Name)
	return st
}

// linkTop implements spec.md §4.1 "link_top". When isNewTuple is true the
// story is a freshly created solo head (nothing was displaced); when
// false, newS is being reordered in front of an existing chain and the
// InIndex marker, the ReadGaps list and (for the primary index, i==0) the
// strong tuple reference all move from the old head to the new one.
func linkTop(idx *Index, newS, old *Story, i int, isNewTuple bool) {
	if isNewTuple {
		newS.Link[i].Older = nil
		newS.Link[i].Newer = nil
		newS.Link[i].InIndex = idx
		return
	}

	old.Link[i].Newer = newS
	newS.Link[i].Older = old
	newS.Link[i].Newer = nil

	newS.Link[i].InIndex = idx
	old.Link[i].InIndex = nil

	old.Link[i].ReadGaps.Each(func(g *GapTracker) bool {
		g.reattach(newS, i)
		return true
	})

	if i == 0 {
		if old.TupleRetained {
			newS.Tuple.Unref()
		} else {
			old.TupleRetained = true
		}
	}

	idx.Replace(newS)
}

// reorder implements spec.md §4.1 "reorder" (memtx_tx_story_reorder):
// swaps story and its older sibling old within chain i so old ends up
// directly above story. If story is currently the physical top of the
// chain, the swap goes through linkTop instead of a plain pointer
// exchange, since old must then inherit the InIndex marker, the tuple
// reference and the read_gaps list — not just change rank.
func reorder(i int, story, old *Story) {
	newer := story.Link[i].Newer
	if newer == nil {
		idx := story.Link[i].InIndex
		beneath := old.Link[i].Older
		linkTop(idx, old, story, i, false)
		story.Link[i].Older = beneath
		if beneath != nil {
			beneath.Link[i].Newer = story
		}
		return
	}

	older := old.Link[i].Older

	newer.Link[i].Older = old
	old.Link[i].Newer = newer

	old.Link[i].Older = story
	story.Link[i].Newer = old

	story.Link[i].Older = older
	if older != nil {
		older.Link[i].Newer = story
	}
}

// findTop walks newer_story links until it reaches the chain head
// (spec.md §4.1 "find_top").
func findTop(s *Story, i int) *Story {
	for s.Link[i].Newer != nil {
		s = s.Link[i].Newer
	}
	return s
}

func unlinkAddedBy(s *Story, stmt *Statement) {
	if s.AddStmt == stmt {
		s.AddStmt = nil
	}
}

func unlinkDeletedBy(s *Story, stmt *Statement) {
	s.removeDeleter(stmt)
}

// freeStory releases a story that is no longer reachable from any index
// or chain: it drops the engine's and the space's bookkeeping links and
// unrefs the tuple, freeing it once nothing else (a still-live neighbor
// that inherited the strong reference) holds it.
func (e *Engine) freeStory(s *Story) {
	s.allNode.Unlink()
	s.spaceNode.Unlink()
	if !s.TupleRetained {
		s.Tuple.Unref()
	}
	e.metrics.StoriesFreed.Inc()
	e.metrics.StoriesInUse.Dec()
	e.log.Debugw("story freed", "story", s.ID, "space", s.Space.Name)
}

// unlinkChain detaches s from chain i entirely, stitching its neighbors
// together. It does not touch the physical index — callers decide
// separately whether index.replace-to-null is needed (spec.md §4.6 step
// 5).
func unlinkChain(s *Story, i int) {
	newer, older := s.Link[i].Newer, s.Link[i].Older
	if newer != nil {
		newer.Link[i].Older = older
	}
	if older != nil {
		older.Link[i].Newer = newer
	}
	s.Link[i].Newer, s.Link[i].Older = nil, nil
}
