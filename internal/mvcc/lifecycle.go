package mvcc

import (
	"storyengine/internal/errs"
	"storyengine/internal/tuple"
)

// AddStmt implements spec.md §4.5's add_stmt: it allocates a story for
// the new tuple and, for each index, either installs it as a brand-new
// chain (running the writer-side gap scan, since nothing occupied this
// key before) or reorders it above the existing chain head (a replace).
func (e *Engine) AddStmt(txn *Transaction, sp *Space, mode ReplaceMode, fields ...interface{}) (*Statement, error) {
	if err := sp.checkNotInvalidated(); err != nil {
		return nil, err
	}
	if txn.Status == Aborted || txn.Status == Committed {
		return nil, errs.ErrTransactionAborted
	}

	newT := tuple.New(fields...)
	stmt := &Statement{ID: e.nextStmtID(), Txn: txn, Space: sp, NewTuple: newT, Mode: mode}

	story := e.storyNew(sp, newT, len(sp.Indexes))
	story.AddStmt = stmt
	stmt.AddStory = story

	for i, idx := range sp.Indexes {
		top, found := idx.Lookup(newT)
		if !found {
			linkTop(idx, story, nil, i, true)
			_, successor := idx.Replace(story)
			handleGapWrite(idx, i, story, successor, txn)
			handlePointHoleWrite(idx, i, story, txn)
			handleCountedWrite(e, idx, story, txn, true)
			continue
		}

		if idx.Def.Unique {
			// Resolve the displaced version's visibility against the
			// writer (spec.md §4.1(b)) instead of asking whether top is
			// physically occupied: a demoted or otherwise-invisible top
			// must not trigger a duplicate-key refusal, and must instead
			// be treated the way an empty slot would be.
			visible := e.clarifyChain(txn, idx, i, top, sp.SystemSpace)
			if mode == ModeInsert && visible != nil {
				e.unwindPartialAdd(story, sp, i)
				return nil, errs.ErrDuplicateKey
			}
			if i == 0 && visible != nil {
				// spec.md §4.1(e): the version this replace actually
				// supersedes becomes this statement's delete target too.
				stmt.DelStory = visible
				visible.addDeleter(stmt)
			}
		}

		linkTop(idx, story, top, i, false)
	}

	txn.HasWritten = true
	txn.Stmts = append(txn.Stmts, stmt)
	return stmt, nil
}

// unwindPartialAdd undoes the index links AddStmt already made on indexes
// [0, upto) before discovering a duplicate key on index upto.
func (e *Engine) unwindPartialAdd(story *Story, sp *Space, upto int) {
	for i := 0; i < upto; i++ {
		e.detachStory(story, sp.Indexes[i], i)
	}
	e.freeStory(story)
}

// DeleteStmt implements the delete half of spec.md §4.5: it records txn
// as an in-progress deleter of the story currently visible to it at key,
// without yet touching the physical index (that happens only once the
// delete is prepared and, ultimately, garbage collected).
func (e *Engine) DeleteStmt(txn *Transaction, sp *Space, idxID int, key *tuple.Tuple) (*Statement, error) {
	if err := sp.checkNotInvalidated(); err != nil {
		return nil, err
	}
	if txn.Status == Aborted || txn.Status == Committed {
		return nil, errs.ErrTransactionAborted
	}
	visible, ok := e.Clarify(txn, sp, idxID, key)
	if !ok {
		return nil, errs.ErrNotFound
	}
	primary := sp.Indexes[0]
	head, _ := primary.Lookup(visible)

	stmt := &Statement{ID: e.nextStmtID(), Txn: txn, Space: sp, OldTuple: visible, DelStory: head}
	head.addDeleter(stmt)

	txn.HasWritten = true
	txn.Stmts = append(txn.Stmts, stmt)
	return stmt, nil
}

// PrepareStmt implements spec.md §4.5's prepare_stmt: it assigns the
// transaction's PSN on first use, bakes that PSN into this statement's
// story, sinks the story below any still-in-progress sibling so the
// chain-order invariant survives future prepares, and runs the conflict
// cascade against every reader and inplace-gap holder this statement's
// decision affects.
func (e *Engine) PrepareStmt(stmt *Statement) {
	txn := stmt.Txn
	if txn.Psn == 0 {
		e.psnCounter++
		txn.Psn = e.psnCounter
	}
	stmt.prepared = true

	if stmt.AddStory != nil {
		st := stmt.AddStory
		st.AddPsn = txn.Psn
		for i := range st.Link {
			sinkPastInProgress(i, st)
		}
		e.rewireInProgressDeleters(stmt, st)
		e.cascadeConflicts(st, txn)
		e.cascadeDisplacedReaders(st, txn)
	}
	if stmt.DelStory != nil {
		st := stmt.DelStory
		st.DelPsn = txn.Psn
		e.cascadeConflicts(st, txn)
		for _, idx := range st.Space.Indexes {
			handleCountedWrite(e, idx, st, txn, false)
		}
	}
	txn.Status = Prepared
}

// sinkPastInProgress keeps a just-prepared story below any older sibling
// in chain i that has not prepared yet (spec.md §4.5 "prepare_stmt" step
// 1, memtx_tx_history_prepare_insert_stmt): an undecided statement must
// always out-rank a decided one in newest-first order, since it may
// itself end up with a still-higher PSN later.
func sinkPastInProgress(i int, s *Story) {
	for s.Link[i].Older != nil && s.Link[i].Older.AddStmt != nil && s.Link[i].Older.AddPsn == 0 {
		reorder(i, s, s.Link[i].Older)
	}
}

// rewireInProgressDeleters implements spec.md §4.5 prepare_stmt step 2
// (memtx_tx.c's rewiring block right before it runs the conflict
// cascade): once st is authoritative at its key, any other in-progress
// statement that still targets the version st superseded must be
// retargeted to st, or it would silently apply to a story nobody can see
// anymore once it eventually prepares.
func (e *Engine) rewireInProgressDeleters(stmt *Statement, st *Story) {
	if stmt.DelStory == nil {
		// Nothing was visibly replaced: other in-progress inserts stacked
		// above st in the primary chain also believed the key was empty.
		// Now that st is prepared, they in fact replace it.
		for test := st.Link[0].Newer; test != nil; test = test.Link[0].Newer {
			testStmt := test.AddStmt
			if testStmt == nil || testStmt.Txn == stmt.Txn || testStmt.DelStory != nil {
				continue
			}
			testStmt.DelStory = st
			st.addDeleter(testStmt)
		}
		return
	}

	old := stmt.DelStory
	for test := old.DelStmt; test != nil; {
		next := test.nextDeleter
		if test == stmt {
			test = next
			continue
		}
		old.removeDeleter(test)
		test.DelStory = st
		st.addDeleter(test)
		test = next
	}
}

// unrewireDeleters undoes rewireInProgressDeleters when a prepared add is
// rolled back (spec.md §4.5 rollback_stmt, memtx_tx_history_rollback_added_story):
// every statement rewireInProgressDeleters retargeted onto st must be moved
// back before st is detached and freed, or those statements would be left
// pointing at a story that no longer exists.
func (e *Engine) unrewireDeleters(stmt *Statement, st *Story) {
	old := stmt.DelStory
	for test := st.DelStmt; test != nil; {
		next := test.nextDeleter
		st.removeDeleter(test)
		test.DelStory = old
		if old != nil {
			old.addDeleter(test)
		}
		test = next
	}
}

// cascadeConflicts implements spec.md §4.5 step 3: every reader of st and
// every inplace-gap holder on st, other than the preparing transaction
// itself, must either be demoted to a frozen read view (if it hasn't
// committed to a serialization point yet) or aborted outright (if it
// already has — a prepared transaction cannot un-prepare).
func (e *Engine) cascadeConflicts(st *Story, self *Transaction) {
	for _, rt := range st.Readers.ToSlice() {
		e.resolveConflict(rt.Txn, self)
	}
	for i := range st.Link {
		for _, g := range st.Link[i].ReadGaps.ToSlice() {
			if g.Flavor == GapInplace {
				e.resolveConflict(g.Txn, self)
			}
		}
	}
}

// cascadeDisplacedReaders implements spec.md §4.5 step 3's first bullet for
// a replace: "every reader of a story whose version is ending". That story
// is not st itself (nobody could have read a story still unprepared a
// moment ago) but whichever story st's linkTop pushed down out of the head
// position in each index — the version a prior reader resolved to and is
// about to stop being current.
func (e *Engine) cascadeDisplacedReaders(st *Story, self *Transaction) {
	for i := range st.Link {
		older := st.Link[i].Older
		if older == nil {
			continue
		}
		for _, rt := range older.Readers.ToSlice() {
			e.resolveConflict(rt.Txn, self)
		}
	}
}

func (e *Engine) resolveConflict(other, self *Transaction) {
	if other == self {
		return
	}
	switch other.Status {
	case Prepared:
		e.AbortWithConflict(other)
	case InProgress, InReadView:
		e.demoteToReadView(other, self.Psn)
	}
}

// demoteToReadView implements spec.md §4.4's send_to_read_view: freeze the
// transaction's visibility horizon at psn — the PSN of the story whose
// conflicting decision triggered the demotion — rather than at whatever
// has committed so far, so every read it performs from here on stays
// internally consistent with what it has already seen. A transaction
// already in a read view only ever moves its horizon down, never up: a
// second, tighter conflict can still shrink what it's allowed to see, but
// a looser one must not re-admit data the first demotion already hid.
func (e *Engine) demoteToReadView(txn *Transaction, psn uint64) {
	if txn.Status == InReadView {
		if psn >= txn.RvPsn {
			return
		}
		e.removeReadViewTxn(txn)
		txn.RvPsn = psn
		e.insertReadViewTxn(txn)
		e.metrics.Demotions.Inc()
		e.log.Warnw("read view horizon lowered", "txn", txn.ID, "rv_psn", txn.RvPsn)
		return
	}
	txn.RvPsn = psn
	txn.Status = InReadView
	e.insertReadViewTxn(txn)
	e.metrics.Demotions.Inc()
	e.log.Warnw("transaction demoted to read view", "txn", txn.ID, "rv_psn", txn.RvPsn)
}

// CommitStmt implements spec.md §4.5's commit_stmt: the statement's story
// stops pointing back at it (the version is now final), but the PSN
// baked in at prepare time is left untouched.
func (e *Engine) CommitStmt(stmt *Statement) {
	if stmt.AddStory != nil {
		unlinkAddedBy(stmt.AddStory, stmt)
	}
	if stmt.DelStory != nil {
		unlinkDeletedBy(stmt.DelStory, stmt)
	}
}

// CommitTxn commits every statement of txn and confirms its PSN,
// unblocking visibility for every transaction waiting on that boundary.
func (e *Engine) CommitTxn(txn *Transaction) {
	for _, stmt := range txn.Stmts {
		e.CommitStmt(stmt)
	}
	if txn.Psn > e.lastConfirmedPsn {
		e.lastConfirmedPsn = txn.Psn
	}
	txn.Status = Committed
	e.removeReadViewTxn(txn)
	e.teardownTxn(txn)
}

// RollbackStmt implements spec.md §4.5's rollback_stmt for both the
// never-prepared and already-prepared cases. SPEC_FULL.md §13 records the
// deliberate divergence preserved here: a reader this statement's prepare
// had already demoted to a read view is never un-demoted by a later
// rollback — its RvPsn stays exactly where the cascade left it.
func (e *Engine) RollbackStmt(stmt *Statement) {
	if stmt.AddStory != nil {
		e.unwindAdd(stmt)
	}
	if stmt.DelStory != nil {
		stmt.DelStory.removeDeleter(stmt)
	}
}

func (e *Engine) unwindAdd(stmt *Statement) {
	st := stmt.AddStory
	e.unrewireDeleters(stmt, st)
	sp := st.Space
	for i, idx := range sp.Indexes {
		e.detachStory(st, idx, i)
	}
	e.freeStory(st)
}

// detachStory removes st from chain i, restoring whatever story was
// immediately below it (if any) as the new physical top and moving its
// read/gap trackers there — the mirror image of story.go's linkTop.
func (e *Engine) detachStory(st *Story, idx *Index, i int) {
	older := st.Link[i].Older
	wasTop := st.Link[i].InIndex != nil
	unlinkChain(st, i)

	if !wasTop {
		return
	}
	if older == nil {
		idx.RemoveExact(st.Tuple)
		return
	}
	older.Link[i].Newer = nil
	older.Link[i].InIndex = idx
	idx.Replace(older)
	st.Link[i].ReadGaps.Each(func(g *GapTracker) bool {
		g.reattach(older, i)
		return true
	})
	if i == 0 && st.TupleRetained {
		older.Tuple.Ref()
		older.TupleRetained = true
	}
}

// AbortWithConflict implements spec.md §4.5's abort_with_conflict:
// unwind every statement the transaction has issued, in reverse order,
// and mark it aborted.
func (e *Engine) AbortWithConflict(txn *Transaction) {
	if txn.Status == Aborted || txn.Status == Committed {
		return
	}
	for i := len(txn.Stmts) - 1; i >= 0; i-- {
		e.RollbackStmt(txn.Stmts[i])
	}
	txn.Status = Aborted
	e.removeReadViewTxn(txn)
	e.metrics.Aborts.Inc()
	e.log.Warnw("transaction aborted by conflict", "txn", txn.ID)
	e.teardownTxn(txn)
}

// teardownTxn releases every reader, gap and point-hole tracker a
// finished transaction still holds.
func (e *Engine) teardownTxn(txn *Transaction) {
	for _, rt := range txn.ReadSet.ToSlice() {
		rt.unlink()
	}
	for _, g := range txn.GapList.ToSlice() {
		g.unlink()
	}
	for _, p := range txn.PointHolesList.ToSlice() {
		p.unlink()
	}
}

func (e *Engine) insertReadViewTxn(txn *Transaction) {
	i := 0
	for ; i < len(e.readViewTxns); i++ {
		if e.readViewTxns[i].RvPsn > txn.RvPsn {
			break
		}
	}
	e.readViewTxns = append(e.readViewTxns, nil)
	copy(e.readViewTxns[i+1:], e.readViewTxns[i:])
	e.readViewTxns[i] = txn
	txn.readViewIdx = i
}

func (e *Engine) removeReadViewTxn(txn *Transaction) {
	if txn.readViewIdx < 0 || txn.readViewIdx >= len(e.readViewTxns) || e.readViewTxns[txn.readViewIdx] != txn {
		return
	}
	e.readViewTxns = append(e.readViewTxns[:txn.readViewIdx], e.readViewTxns[txn.readViewIdx+1:]...)
	for i := txn.readViewIdx; i < len(e.readViewTxns); i++ {
		e.readViewTxns[i].readViewIdx = i
	}
	txn.readViewIdx = -1
}

// lowestReadViewPsn returns the smallest rv_psn among transactions
// currently frozen in a read view, or psnInfinite if none are — the
// garbage collector's low watermark (spec.md §4.6, SPEC_FULL.md §12
// item 1).
func (e *Engine) lowestReadViewPsn() uint64 {
	if len(e.readViewTxns) == 0 {
		return psnInfinite
	}
	return e.readViewTxns[0].RvPsn
}

func (e *Engine) sendToReadView(txn *Transaction, psn uint64) {
	e.demoteToReadView(txn, psn)
}

func (e *Engine) nextStmtID() uint64 {
	e.stmtCounter++
	return e.stmtCounter
}
