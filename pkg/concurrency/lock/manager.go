package lock

import (
	"time"

	dberror "storecore/pkg/error"
	"storecore/pkg/logging"
	"storecore/pkg/metrics"
	"storecore/pkg/primitives"
)

// LockManager manages page-level locks for database transactions.
// It provides deadlock detection, lock upgrade capabilities, and maintains
// transaction dependencies through a dependency graph.
type LockManager struct {
	lockTable *LockTable
	depGraph  *DependencyGraph
	recorder  metrics.Recorder
}

// Option configures a LockManager.
type Option func(*LockManager)

// WithRecorder reports lock waits and deadlocks to r.
func WithRecorder(r metrics.Recorder) Option {
	return func(lm *LockManager) {
		if r != nil {
			lm.recorder = r
		}
	}
}

// NewLockManager creates and initializes a new LockManager instance.
func NewLockManager(opts ...Option) *LockManager {
	lm := &LockManager{
		lockTable: NewLockTable(),
		depGraph:  NewDependencyGraph(),
		recorder:  metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(lm)
	}
	return lm
}

// DependencyGraph exposes the wait-for graph for diagnostics.
func (lm *LockManager) DependencyGraph() *DependencyGraph {
	return lm.depGraph
}

// LockPage acquires a lock of the given type on pid for tid, blocking until
// it is granted. It returns dberror.ErrTransactionAborted when waiting would
// close a wait-for cycle; locks already held by tid are kept and the caller
// must abort the transaction.
func (lm *LockManager) LockPage(tid *primitives.TransactionID, pid primitives.PageID, lockType LockType) error {
	if tid == nil {
		return dberror.Newf(dberror.ErrInvalidArgument, "LockPage", "LockManager", "transaction ID cannot be nil")
	}

	pl := lm.lockTable.acquireState(pid)
	defer pl.mu.Unlock()

	if pl.hasSufficient(tid, lockType) {
		return nil
	}

	var waitStart time.Time
	for !pl.canGrant(tid, lockType) {
		if waitStart.IsZero() {
			waitStart = time.Now()
			logging.WithLock(tid.ID(), pid.String()).Debug("lock wait", "mode", lockType.String())
		}

		pl.waiters[tid] = lockType
		if lm.depGraph.WaitFor(tid, pl.holdersExcept(tid)) {
			delete(pl.waiters, tid)
			lm.recorder.RecordDeadlock()
			logging.WithLock(tid.ID(), pid.String()).Warn("deadlock detected, aborting requester", "mode", lockType.String())
			return dberror.Newf(dberror.ErrTransactionAborted, "LockPage", "LockManager",
				"%s would deadlock waiting for %s lock on %s", tid, lockType, pid)
		}
		pl.cond.Wait()
	}

	if !waitStart.IsZero() {
		delete(pl.waiters, tid)
		lm.depGraph.Clear(tid)
		lm.recorder.RecordLockWait(time.Since(waitStart))
	}

	pl.grant(tid, lockType)
	held, _ := pl.holds(tid)
	lm.lockTable.record(tid, pid, held)
	lm.holdersChanged(pl)
	return nil
}

// holdersChanged refreshes every parked waiter's edges to the page's new
// holder set and wakes them. Caller holds pl.mu.
func (lm *LockManager) holdersChanged(pl *pageLock) {
	if len(pl.waiters) == 0 {
		return
	}
	for waiter := range pl.waiters {
		lm.depGraph.SetEdges(waiter, pl.holdersExcept(waiter))
	}
	pl.cond.Broadcast()
}

// UnlockPage releases the lock tid holds on pid, if any.
func (lm *LockManager) UnlockPage(tid *primitives.TransactionID, pid primitives.PageID) {
	pl := lm.lockTable.lookupState(pid)
	if pl == nil {
		return
	}
	defer pl.mu.Unlock()

	lm.unlock(pl, tid)
}

func (lm *LockManager) unlock(pl *pageLock, tid *primitives.TransactionID) {
	if !pl.release(tid) {
		return
	}
	lm.lockTable.forget(tid, pl.pid)
	lm.holdersChanged(pl)
	lm.lockTable.retireIfIdle(pl)
}

// UnlockAllPages releases all locks held by tid and drops it from the
// wait-for graph. It returns the pages that were unlocked.
func (lm *LockManager) UnlockAllPages(tid *primitives.TransactionID) []primitives.PageID {
	pages := lm.lockTable.PagesOf(tid)
	for _, pid := range pages {
		lm.UnlockPage(tid, pid)
	}
	lm.depGraph.RemoveTransaction(tid)
	return pages
}

// Holders returns a snapshot of the transactions holding a lock on pid.
func (lm *LockManager) Holders(pid primitives.PageID) []*primitives.TransactionID {
	pl := lm.lockTable.lookupState(pid)
	if pl == nil {
		return nil
	}
	defer pl.mu.Unlock()

	return pl.holdersExcept(nil)
}

// HoldsLock reports whether tid holds any lock on pid.
func (lm *LockManager) HoldsLock(tid *primitives.TransactionID, pid primitives.PageID) bool {
	_, ok := lm.lockTable.LockMode(tid, pid)
	return ok
}

// HoldsExclusive reports whether tid holds the exclusive lock on pid.
func (lm *LockManager) HoldsExclusive(tid *primitives.TransactionID, pid primitives.PageID) bool {
	mode, ok := lm.lockTable.LockMode(tid, pid)
	return ok && mode == ExclusiveLock
}

// LockMode returns the mode tid holds on pid.
func (lm *LockManager) LockMode(tid *primitives.TransactionID, pid primitives.PageID) (LockType, bool) {
	return lm.lockTable.LockMode(tid, pid)
}

// LockedPages returns every page tid holds a lock on.
func (lm *LockManager) LockedPages(tid *primitives.TransactionID) []primitives.PageID {
	return lm.lockTable.PagesOf(tid)
}

// IsPageLocked checks if any locks are currently held on a page.
func (lm *LockManager) IsPageLocked(pid primitives.PageID) bool {
	pl := lm.lockTable.lookupState(pid)
	if pl == nil {
		return false
	}
	defer pl.mu.Unlock()

	return pl.exclusive != nil || len(pl.shared) > 0
}
