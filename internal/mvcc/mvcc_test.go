package mvcc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"storyengine/internal/config"
	"storyengine/internal/errs"
	"storyengine/internal/tuple"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(config.Default(), nil)
}

func newPkSpace(t *testing.T) *Space {
	t.Helper()
	sp := NewSpace("items")
	_, err := sp.AttachIndex("primary", KeyDef{Parts: []int{0}, Unique: true, Ordered: true})
	assert.NoError(t, err)
	return sp
}

// insertCommitted runs a whole insert to completion so its story is
// visible to every transaction started afterward, the shape every test
// below needs for its "already there" fixture rows.
func insertCommitted(t *testing.T, e *Engine, sp *Space, fields ...interface{}) {
	t.Helper()
	stmt, err := e.AddStmt(e.Begin(ReadCommitted), sp, ModeInsert, fields...)
	assert.NoError(t, err)
	e.PrepareStmt(stmt)
	e.CommitTxn(stmt.Txn)
}

func TestNearbyGapOnAnEmptyRangeConflictsALaterInsert(t *testing.T) {
	e := newTestEngine(t)
	sp := newPkSpace(t)

	insertCommitted(t, e, sp, 1)
	insertCommitted(t, e, sp, 5)

	reader := e.Begin(ReadCommitted)
	tuple5, found := e.TrackGap(reader, sp, 0, IterGE, tuple.New(2))
	assert.True(t, found)
	assert.Equal(t, 5, tuple5.Field(0))

	writer := e.Begin(ReadCommitted)
	stmt, err := e.AddStmt(writer, sp, ModeInsert, 3)
	assert.NoError(t, err)
	e.PrepareStmt(stmt)
	e.CommitTxn(writer)

	assert.Equal(t, InReadView, reader.Status)
}

func TestPointHoleConflictsALaterInsertAtTheSameKey(t *testing.T) {
	e := newTestEngine(t)
	sp := newPkSpace(t)

	reader := e.Begin(ReadCommitted)
	_, found := e.Clarify(reader, sp, 0, tuple.New(7))
	assert.False(t, found)

	writer := e.Begin(ReadCommitted)
	stmt, err := e.AddStmt(writer, sp, ModeInsert, 7)
	assert.NoError(t, err)
	e.PrepareStmt(stmt)
	e.CommitTxn(writer)

	assert.Equal(t, InReadView, reader.Status)
}

func TestFullScanGapConflictsAnyLaterInsert(t *testing.T) {
	e := newTestEngine(t)
	sp := NewSpace("tags")
	_, err := sp.AttachIndex("byName", KeyDef{Parts: []int{0}, Unique: false, Ordered: false})
	assert.NoError(t, err)

	insertCommitted(t, e, sp, "red")

	reader := e.Begin(ReadCommitted)
	rows := e.TrackFullScan(reader, sp, 0)
	assert.Len(t, rows, 1)

	writer := e.Begin(ReadCommitted)
	stmt, err := e.AddStmt(writer, sp, ModeInsert, "blue")
	assert.NoError(t, err)
	e.PrepareStmt(stmt)
	e.CommitTxn(writer)

	assert.Equal(t, InReadView, reader.Status)
}

func TestCountGapConflictsAnInsertInsideItsRange(t *testing.T) {
	e := newTestEngine(t)
	sp := newPkSpace(t)

	for _, v := range []int{1, 2, 3} {
		insertCommitted(t, e, sp, v)
	}

	counter := e.Begin(ReadCommitted)
	n := e.TrackCountUntil(counter, sp, 0, IterGE, tuple.New(1), nil)
	assert.Equal(t, 3, n)

	writer := e.Begin(ReadCommitted)
	stmt, err := e.AddStmt(writer, sp, ModeInsert, 4)
	assert.NoError(t, err)
	e.PrepareStmt(stmt)
	e.CommitTxn(writer)

	assert.Equal(t, InReadView, counter.Status)
}

func TestGCFreesASupersededStoryWithNoReaders(t *testing.T) {
	e := newTestEngine(t)
	sp := newPkSpace(t)

	stmt1, err := e.AddStmt(e.Begin(ReadCommitted), sp, ModeInsert, 1)
	assert.NoError(t, err)
	e.PrepareStmt(stmt1)
	e.CommitTxn(stmt1.Txn)

	stmt2, err := e.AddStmt(e.Begin(ReadCommitted), sp, ModeReplaceOrInsert, 1)
	assert.NoError(t, err)
	e.PrepareStmt(stmt2)
	e.CommitTxn(stmt2.Txn)

	freed := e.gcStep(10)
	assert.Equal(t, 1, freed)

	_, found := sp.Indexes[0].Lookup(tuple.New(1))
	assert.True(t, found)
}

func TestGCDoesNotFreeAStoryStillHeldByAReadView(t *testing.T) {
	e := newTestEngine(t)
	sp := newPkSpace(t)

	stmt1, err := e.AddStmt(e.Begin(ReadCommitted), sp, ModeInsert, 1)
	assert.NoError(t, err)
	e.PrepareStmt(stmt1)
	e.CommitTxn(stmt1.Txn)

	reader := e.Begin(ReadCommitted)
	_, found := e.Clarify(reader, sp, 0, tuple.New(1))
	assert.True(t, found)

	stmt2, err := e.AddStmt(e.Begin(ReadCommitted), sp, ModeReplaceOrInsert, 1)
	assert.NoError(t, err)
	e.PrepareStmt(stmt2)
	e.CommitTxn(stmt2.Txn)
	assert.Equal(t, InReadView, reader.Status)

	freed := e.gcStep(10)
	assert.Equal(t, 0, freed)
}

func TestInvalidateSpaceAbortsInProgressWritersAndCommitsPreparedOnes(t *testing.T) {
	e := newTestEngine(t)
	sp := newPkSpace(t)

	inProgress := e.Begin(ReadCommitted)
	_, err := e.AddStmt(inProgress, sp, ModeInsert, 1)
	assert.NoError(t, err)

	preparedTxn := e.Begin(ReadCommitted)
	stmt, err := e.AddStmt(preparedTxn, sp, ModeInsert, 2)
	assert.NoError(t, err)
	e.PrepareStmt(stmt)

	e.InvalidateSpace(sp)

	assert.Equal(t, Aborted, inProgress.Status)
	assert.True(t, sp.Invalidated)
	_, err = e.AddStmt(e.Begin(ReadCommitted), sp, ModeInsert, 3)
	assert.ErrorIs(t, err, errs.ErrSpaceInvalidated)
}
