package lock

import (
	"sync"

	"storecore/pkg/primitives"
)

// LockTable owns the single lock state of every page and a reverse index
// from transactions to the pages they hold and in which mode.
//
// The table mutex only guards the two maps. A page's holder fields are
// guarded by that page's own mutex, which is always taken first.
type LockTable struct {
	mutex            sync.Mutex
	pageLocks        map[primitives.PageID]*pageLock
	transactionLocks map[*primitives.TransactionID]map[primitives.PageID]LockType
}

// NewLockTable creates an empty lock table.
func NewLockTable() *LockTable {
	return &LockTable{
		pageLocks:        make(map[primitives.PageID]*pageLock),
		transactionLocks: make(map[*primitives.TransactionID]map[primitives.PageID]LockType),
	}
}

// acquireState returns the live lock state of pid with its mutex held,
// creating the state on first use.
func (lt *LockTable) acquireState(pid primitives.PageID) *pageLock {
	for {
		lt.mutex.Lock()
		pl, ok := lt.pageLocks[pid]
		if !ok {
			pl = newPageLock(pid)
			lt.pageLocks[pid] = pl
		}
		lt.mutex.Unlock()

		pl.mu.Lock()
		if !pl.retired {
			return pl
		}
		pl.mu.Unlock()
	}
}

// lookupState is acquireState without creation; it returns nil when the
// page has no lock state.
func (lt *LockTable) lookupState(pid primitives.PageID) *pageLock {
	for {
		lt.mutex.Lock()
		pl, ok := lt.pageLocks[pid]
		lt.mutex.Unlock()
		if !ok {
			return nil
		}

		pl.mu.Lock()
		if !pl.retired {
			return pl
		}
		pl.mu.Unlock()
	}
}

// retireIfIdle drops pl from the table once nobody holds or waits on it.
// Caller holds pl.mu.
func (lt *LockTable) retireIfIdle(pl *pageLock) {
	if !pl.idle() {
		return
	}

	lt.mutex.Lock()
	if lt.pageLocks[pl.pid] == pl {
		delete(lt.pageLocks, pl.pid)
	}
	lt.mutex.Unlock()
	pl.retired = true
}

func (lt *LockTable) record(tid *primitives.TransactionID, pid primitives.PageID, lockType LockType) {
	lt.mutex.Lock()
	defer lt.mutex.Unlock()

	if lt.transactionLocks[tid] == nil {
		lt.transactionLocks[tid] = make(map[primitives.PageID]LockType)
	}
	lt.transactionLocks[tid][pid] = lockType
}

func (lt *LockTable) forget(tid *primitives.TransactionID, pid primitives.PageID) {
	lt.mutex.Lock()
	defer lt.mutex.Unlock()

	if txPages, exists := lt.transactionLocks[tid]; exists {
		delete(txPages, pid)
		if len(txPages) == 0 {
			delete(lt.transactionLocks, tid)
		}
	}
}

// LockMode returns the mode tid holds on pid, if any.
func (lt *LockTable) LockMode(tid *primitives.TransactionID, pid primitives.PageID) (LockType, bool) {
	lt.mutex.Lock()
	defer lt.mutex.Unlock()

	if txPages, exists := lt.transactionLocks[tid]; exists {
		lockType, ok := txPages[pid]
		return lockType, ok
	}
	return SharedLock, false
}

// PagesOf returns the pages tid currently holds a lock on.
func (lt *LockTable) PagesOf(tid *primitives.TransactionID) []primitives.PageID {
	lt.mutex.Lock()
	defer lt.mutex.Unlock()

	txPages := lt.transactionLocks[tid]
	pages := make([]primitives.PageID, 0, len(txPages))
	for pid := range txPages {
		pages = append(pages, pid)
	}
	return pages
}

// NumPages returns the number of pages that currently have a lock state.
func (lt *LockTable) NumPages() int {
	lt.mutex.Lock()
	defer lt.mutex.Unlock()
	return len(lt.pageLocks)
}
