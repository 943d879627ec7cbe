package error

import "errors"

// Error codes for the buffer pool taxonomy.
const (
	CodeDeadlock           = "DEADLOCK_DETECTED"
	CodeBufferPoolFull     = "BUFFER_POOL_FULL"
	CodeIOFailure          = "IO_FAILURE"
	CodeInvalidPage        = "INVALID_PAGE"
	CodeInvariantViolation = "INVARIANT_VIOLATION"
	CodeInvalidArgument    = "INVALID_ARGUMENT"
	CodeTableNotFound      = "TABLE_NOT_FOUND"
)

// Sentinels. Match with errors.Is; never mutate them.
var (
	// ErrTransactionAborted is returned when a lock request would close a
	// cycle in the wait-for graph. The requesting transaction must abort.
	ErrTransactionAborted = &DBError{Code: CodeDeadlock, Category: ErrCategoryConcurrency, Message: "transaction aborted: deadlock detected"}

	// ErrBufferPoolFull is returned when the cache is at capacity and every
	// resident page is dirty.
	ErrBufferPoolFull = &DBError{Code: CodeBufferPoolFull, Category: ErrCategoryTransient, Message: "buffer pool full: all resident pages are dirty"}

	// ErrIOFailure wraps a read or write error from a table file.
	ErrIOFailure = &DBError{Code: CodeIOFailure, Category: ErrCategorySystem, Message: "page I/O failed"}

	// ErrInvalidPage is returned for a page outside a table file's bounds.
	ErrInvalidPage = &DBError{Code: CodeInvalidPage, Category: ErrCategoryUser, Message: "invalid page"}

	// ErrInvariantViolation marks a broken access discipline, e.g. a page
	// dirtied by a transaction that does not hold its exclusive lock.
	ErrInvariantViolation = &DBError{Code: CodeInvariantViolation, Category: ErrCategoryInternal, Message: "invariant violation"}

	// ErrInvalidArgument is returned for nil or malformed arguments.
	ErrInvalidArgument = &DBError{Code: CodeInvalidArgument, Category: ErrCategoryUser, Message: "invalid argument"}

	// ErrTableNotFound is returned when no table file is registered for an ID.
	ErrTableNotFound = &DBError{Code: CodeTableNotFound, Category: ErrCategoryUser, Message: "table not found"}
)

// IsCategory reports whether err carries a DBError of the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var dbErr *DBError
	if errors.As(err, &dbErr) {
		return dbErr.Category == category
	}
	return false
}

// MustAbort reports whether err obliges the caller to abort its
// transaction: deadlock and buffer exhaustion surface from page fetches
// and leave the transaction unable to proceed.
func MustAbort(err error) bool {
	return errors.Is(err, ErrTransactionAborted) || errors.Is(err, ErrBufferPoolFull)
}
