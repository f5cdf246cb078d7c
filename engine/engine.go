// Package engine is the public facade over internal/mvcc, the way the
// teacher repo's pkg/db wraps pkg/txn: a small surface a caller can
// actually construct and hold onto, hiding the transaction-history
// manager's internals behind View/Update-style closures plus an
// explicit statement API for callers that need finer control than a
// single closure gives them.
package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"storyengine/internal/config"
	"storyengine/internal/mvcc"
	"storyengine/internal/tuple"
)

// Re-exported so callers never need to import internal/mvcc directly.
type (
	IsolationLevel = mvcc.IsolationLevel
	ReplaceMode    = mvcc.ReplaceMode
	IterType       = mvcc.IterType
	Tuple          = tuple.Tuple
)

const (
	ReadCommitted = mvcc.ReadCommitted
	ReadConfirmed = mvcc.ReadConfirmed
	Linearizable  = mvcc.Linearizable
	BestEffort    = mvcc.BestEffort
)

const (
	ModeInsert          = mvcc.ModeInsert
	ModeReplace         = mvcc.ModeReplace
	ModeReplaceOrInsert = mvcc.ModeReplaceOrInsert
)

const (
	IterEQ  = mvcc.IterEQ
	IterREQ = mvcc.IterREQ
	IterGE  = mvcc.IterGE
	IterGT  = mvcc.IterGT
	IterLE  = mvcc.IterLE
	IterLT  = mvcc.IterLT
)

// Engine owns one transaction-history manager instance and the set of
// spaces registered against it.
type Engine struct {
	core   *mvcc.Engine
	spaces map[string]*mvcc.Space
}

// New builds an Engine. A nil cfg uses config.Default(); a nil
// registerer skips Prometheus registration.
func New(cfg *config.Config, reg prometheus.Registerer) *Engine {
	return &Engine{
		core:   mvcc.NewEngine(cfg, reg),
		spaces: make(map[string]*mvcc.Space),
	}
}

// CreateSpace registers a new, empty space under name. It is a DDL
// operation: call AttachIndex on the returned handle before any
// transaction touches it.
func (e *Engine) CreateSpace(name string) *Space {
	sp := mvcc.NewSpace(name)
	e.spaces[name] = sp
	return &Space{core: sp, engine: e.core}
}

// DropSpace invalidates a space (spec.md §4.6's DDL hook): in-progress
// writers are aborted, already-prepared ones are baked in, and the space
// is marked invalidated so no further statement can be issued against
// it.
func (e *Engine) DropSpace(name string) {
	sp, ok := e.spaces[name]
	if !ok {
		return
	}
	e.core.InvalidateSpace(sp)
	delete(e.spaces, name)
}

// Begin starts a new transaction at the given isolation level.
func (e *Engine) Begin(isolation IsolationLevel) *Txn {
	return &Txn{core: e.core.Begin(isolation), engine: e.core}
}

// Update runs fn inside a transaction, preparing and committing every
// statement it issued if fn returns nil, or aborting them all otherwise
// — the teacher's db.Update shape (spec.md has no closure API of its
// own; this is the ambient ergonomics layer around it).
func (e *Engine) Update(isolation IsolationLevel, fn func(*Txn) error) error {
	txn := e.Begin(isolation)
	if err := fn(txn); err != nil {
		txn.Rollback()
		return err
	}
	return txn.Commit()
}

// View runs fn inside a read-only transaction and always rolls it back
// afterward (nothing it does needs to be prepared or committed).
func (e *Engine) View(isolation IsolationLevel, fn func(*Txn) error) error {
	txn := e.Begin(isolation)
	defer txn.Rollback()
	return fn(txn)
}

// GCStep drives one batch of garbage collection (spec.md §4.6). Callers
// typically call this periodically or after every N commits.
func (e *Engine) GCStep() int {
	return e.core.GCStep()
}
