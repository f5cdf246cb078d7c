// Package errs collects the sentinel errors the engine surfaces to callers.
package errs

import "github.com/pkg/errors"

var (
	// ErrKeyEmpty names an empty key. No statement or lookup returns it:
	// keys are not checked for emptiness.
	ErrKeyEmpty = errors.New("key is empty")

	// ErrDuplicateKey is returned by add_stmt when the insert path's
	// duplicate-key check (memtx_tx.c parlance: check_dup) finds a visible
	// conflicting tuple already occupying a unique index slot.
	ErrDuplicateKey = errors.New("duplicate key violates unique index")

	// ErrTransactionConflict is returned at commit time for a transaction
	// that another transaction's prepare aborted outright through
	// abort_with_conflict. A transaction that was only demoted by
	// send_to_read_view still commits without an error.
	ErrTransactionConflict = errors.New("transaction has been aborted by conflict")

	// ErrTransactionAborted is returned by a further statement (add or
	// delete) issued on a transaction already in status ABORTED or
	// COMMITTED.
	ErrTransactionAborted = errors.New("transaction has been aborted by conflict")

	// ErrReadOnlyTransaction names a write attempted on a read-only
	// transaction. No operation returns it: the engine has no read-only
	// transaction handle.
	ErrReadOnlyTransaction = errors.New("read-only transaction")

	// ErrMultikeyUnsupported is returned by Space.AttachIndex when the
	// index definition is marked multikey. See SPEC_FULL.md open question:
	// multikey indexes are explicitly refused rather than silently
	// mishandled.
	ErrMultikeyUnsupported = errors.New("multikey indexes are not supported by this engine")

	// ErrSpaceInvalidated is returned by any operation against a space
	// that has gone through invalidate_space.
	ErrSpaceInvalidated = errors.New("space has been invalidated")

	// ErrNotFound is returned by a delete statement when no tuple is
	// visible to the transaction at the given key. Lookups report a miss
	// as (nil, false) instead.
	ErrNotFound = errors.New("tuple not found")

	// ErrFunctionalKeyFailed names a functional-index key computation
	// failure. The engine has no functional indexes and never raises it.
	ErrFunctionalKeyFailed = errors.New("functional index key computation failed")
)

// Wrap annotates err with msg using github.com/pkg/errors, or returns nil
// if err is nil. It exists so call sites read like the rest of the
// retrieval pack (talent-plan-tinykv, FeatureBaseDB) rather than reaching
// for fmt.Errorf.
func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}

// Wrapf is the formatted variant of Wrap.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}
