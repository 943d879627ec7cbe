// Package lock implements page-level Two-Phase Locking (2PL) for the buffer
// pool's concurrency control layer.
//
// # Overview
//
// A transaction acquires the locks it needs while it runs and releases them
// all at once when it commits or aborts. Two lock modes are supported:
//
//   - [SharedLock] is required to read a page; compatible with other shared locks.
//   - [ExclusiveLock] is required to write a page; incompatible with all other locks.
//
// A transaction that is the sole shared holder of a page may upgrade to
// exclusive. A transaction holding exclusive already satisfies a shared request.
//
// # Components
//
// [LockManager] is the public entry point. Internally it coordinates:
//
//   - [LockTable] holds exactly one lock state per page (an optional exclusive
//     holder, a set of shared holders and the set of parked waiters) plus a
//     reverse index of the pages each transaction holds.
//   - [DependencyGraph] is the wait-for graph. An edge A→B means transaction
//     A is waiting for a page B holds.
//
// # Lock Acquisition Flow
//
// When [LockManager.LockPage] cannot grant a request it replaces the
// requester's wait-for edges with the current holders of the page and runs a
// cycle check rooted at the requester, both under the graph mutex. A cycle
// fails the request with dberror.ErrTransactionAborted; the caller must abort
// the transaction. Otherwise the requester parks on the page's condition
// variable. Every change to the page's holder set refreshes the edges of the
// parked waiters and wakes them, and each woken waiter repeats the
// grant/edge/check sequence.
//
// Lock order is page state mutex, then lock table mutex, then graph mutex.
package lock
