package engine

import (
	"storyengine/internal/errs"
	"storyengine/internal/mvcc"
	"storyengine/internal/tuple"
)

// Txn is a handle to one in-flight transaction.
type Txn struct {
	core   *mvcc.Transaction
	engine *mvcc.Engine
}

// Insert adds a brand-new row to sp. fields are positional, matching the
// field indexes used in every index's IndexDef.Parts.
func (t *Txn) Insert(sp *Space, fields ...interface{}) error {
	_, err := t.engine.AddStmt(t.core, sp.core, ModeInsert, fields...)
	return err
}

// Replace overwrites whatever row currently occupies this key, or
// inserts if nothing does.
func (t *Txn) Replace(sp *Space, fields ...interface{}) error {
	_, err := t.engine.AddStmt(t.core, sp.core, ModeReplaceOrInsert, fields...)
	return err
}

// Delete removes the row visible to t at key in sp's index idxID.
func (t *Txn) Delete(sp *Space, idxID int, key ...interface{}) error {
	_, err := t.engine.DeleteStmt(t.core, sp.core, idxID, tuple.New(key...))
	return err
}

// Get resolves the row visible to t at key in sp's index idxID.
func (t *Txn) Get(sp *Space, idxID int, key ...interface{}) (*Tuple, bool) {
	return t.engine.Clarify(t.core, sp.core, idxID, tuple.New(key...))
}

// ScanFrom returns the first row visible to t when walking sp's index
// idxID from key in direction it, recording a nearby gap so a later
// insert into the range just scanned is reflected back to t at prepare
// time.
func (t *Txn) ScanFrom(sp *Space, idxID int, it IterType, key ...interface{}) (*Tuple, bool) {
	return t.engine.TrackGap(t.core, sp.core, idxID, it, tuple.New(key...))
}

// FullScan returns every row visible to t in sp's index idxID, recording
// a full-scan gap.
func (t *Txn) FullScan(sp *Space, idxID int) []*Tuple {
	return t.engine.TrackFullScan(t.core, sp.core, idxID)
}

// CountFrom counts the rows visible to t when walking sp's index idxID
// from key in direction it, stopping before until (nil runs to the end
// of the index), recording a count gap.
func (t *Txn) CountFrom(sp *Space, idxID int, it IterType, key, until []interface{}) int {
	var k, u *Tuple
	if key != nil {
		k = tuple.New(key...)
	}
	if until != nil {
		u = tuple.New(until...)
	}
	return t.engine.TrackCountUntil(t.core, sp.core, idxID, it, k, u)
}

// Prepare assigns a commit PSN to every statement t has issued so far
// and runs the conflict cascade — exposed for callers that need to
// separate preparation from commit (spec.md §4.5).
func (t *Txn) Prepare() {
	for _, stmt := range t.core.Stmts {
		if !stmt.IsPrepared() {
			t.engine.PrepareStmt(stmt)
		}
	}
}

// Commit prepares (if not already prepared) and commits every statement t
// has issued. If a conflicting transaction's prepare aborted t in the
// meantime — the only way a previously in-progress or prepared transaction
// becomes ABORTED without t calling Rollback itself — Commit reports the
// conflict instead of committing (spec.md §7: "a transaction is marked for
// abort at the next control return").
func (t *Txn) Commit() error {
	switch t.core.Status {
	case mvcc.Committed:
		return nil
	case mvcc.Aborted:
		return errs.ErrTransactionConflict
	}
	if t.core.Psn == 0 {
		t.Prepare()
	}
	if t.core.Status == mvcc.Aborted {
		return errs.ErrTransactionConflict
	}
	t.engine.CommitTxn(t.core)
	return nil
}

// Rollback aborts t, unwinding every statement it has issued. Safe to
// call on an already-committed or already-aborted transaction.
func (t *Txn) Rollback() {
	switch t.core.Status {
	case mvcc.Committed, mvcc.Aborted:
		return
	}
	t.engine.AbortWithConflict(t.core)
}
