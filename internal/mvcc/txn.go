package mvcc

import (
	"github.com/google/uuid"

	"storyengine/internal/tuple"
)

// Statement is one add/delete issued by a transaction against a space
// (spec.md §4.5's add_stmt/prepare_stmt/commit_stmt/rollback_stmt operate
// on this type).
type Statement struct {
	ID    uint64
	Txn   *Transaction
	Space *Space

	OldTuple *tuple.Tuple
	NewTuple *tuple.Tuple

	AddStory *Story // story this statement adds; nil for a pure delete
	DelStory *Story // story this statement deletes; nil for a pure insert

	Mode ReplaceMode

	nextDeleter *Statement // Story.DelStmt's singly linked list, see story.go
	prepared    bool
}

// IsPrepared reports whether PrepareStmt has already run for this
// statement.
func (s *Statement) IsPrepared() bool {
	return s.prepared
}

// Transaction carries exactly the fields spec.md §3 says the MVCC engine
// reads and writes. Everything else about a transaction (its statement
// execution, its SQL/Lua context, WAL coordination) is the caller's
// concern.
type Transaction struct {
	ID uuid.UUID

	Psn       uint64 // 0 until prepared
	RvPsn     uint64 // 0 unless Status == InReadView
	Isolation IsolationLevel
	Status    TxnStatus

	// HasWritten records whether add_stmt has ever succeeded for this
	// transaction (SPEC_FULL.md §12 item 2): BEST_EFFORT's is_prepared_ok
	// rule needs to know "has this transaction already issued a write",
	// not just its isolation level.
	HasWritten bool

	ReadSet       list[*ReadTracker]
	GapList       list[*GapTracker]
	PointHolesList list[*pointHole]
	Stmts         []*Statement

	IsSchemaChanged bool

	readViewIdx int // position in engine.readViewTxns, -1 when not in the list
}

// newTransaction allocates a transaction handle. Engines hand these out
// through Engine.Begin; tests that only need the fields below may also
// construct them directly.
func newTransaction(isolation IsolationLevel) *Transaction {
	return &Transaction{
		ID:          uuid.New(),
		Isolation:   isolation,
		Status:      InProgress,
		readViewIdx: -1,
	}
}

// EffectiveRvPsn returns the PSN boundary this transaction's reads must
// respect: its own rv_psn when it has been sent to a read view, or
// "infinite" otherwise — an ordinary in-progress transaction must see
// every statement that has already committed, however recently (spec.md
// §8 testable property 3).
func (t *Transaction) EffectiveRvPsn() uint64 {
	if t.Status == InReadView {
		return t.RvPsn
	}
	return psnInfinite
}

// isPreparedOK implements spec.md §4.4's is_prepared_ok rule.
// systemSpace lets system spaces always see prepared data, per spec.
func isPreparedOK(t *Transaction, systemSpace bool) bool {
	if t == nil {
		return true // autocommit / no transaction: always see latest committed+prepared
	}
	if systemSpace {
		return true
	}
	switch t.Isolation {
	case ReadCommitted:
		return true
	case ReadConfirmed, Linearizable:
		return false
	case BestEffort:
		return t.HasWritten
	default:
		return false
	}
}
