package transaction

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"storecore/pkg/primitives"
	"storecore/pkg/storage/page"
)

// TransactionStatus represents the current state of a transaction
type TransactionStatus int

const (
	TxActive TransactionStatus = iota
	TxCommitting
	TxAborting
	TxCommitted
	TxAborted
)

func (ts TransactionStatus) String() string {
	switch ts {
	case TxActive:
		return "ACTIVE"
	case TxCommitting:
		return "COMMITTING"
	case TxAborting:
		return "ABORTING"
	case TxCommitted:
		return "COMMITTED"
	case TxAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

type TransactionStats struct {
	PagesRead     int
	PagesWritten  int
	TuplesWritten int
	TuplesDeleted int
	LockedPages   int
	DirtyPages    int
}

// TransactionContext is the buffer pool's record of one transaction: the
// pages it has fetched (its page set) and the pages it has dirtied.
type TransactionContext struct {
	ID *primitives.TransactionID

	status    TransactionStatus
	startTime time.Time
	endTime   time.Time
	mutex     sync.RWMutex

	// Maps PageID to the strongest permission requested for it.
	lockedPages map[primitives.PageID]page.Permissions
	dirtyPages  map[primitives.PageID]struct{}

	pagesRead     int
	pagesWritten  int
	tuplesWritten int
	tuplesDeleted int
}

func NewTransactionContext(tid *primitives.TransactionID) *TransactionContext {
	return &TransactionContext{
		ID:          tid,
		status:      TxActive,
		startTime:   time.Now(),
		lockedPages: make(map[primitives.PageID]page.Permissions),
		dirtyPages:  make(map[primitives.PageID]struct{}),
	}
}

// IsActive returns true if the transaction is still active
func (tc *TransactionContext) IsActive() bool {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	return tc.status == TxActive
}

func (tc *TransactionContext) GetStatus() TransactionStatus {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	return tc.status
}

// SetStatus updates the transaction status
func (tc *TransactionContext) SetStatus(status TransactionStatus) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()
	tc.status = status
	if status == TxCommitted || status == TxAborted {
		tc.endTime = time.Now()
	}
}

// RecordPageAccess adds pid to the page set. A ReadWrite entry is never
// weakened by a later ReadOnly access.
func (tc *TransactionContext) RecordPageAccess(pid primitives.PageID, perm page.Permissions) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	existing, exists := tc.lockedPages[pid]
	if exists && existing == page.ReadWrite {
		return
	}

	tc.lockedPages[pid] = perm
	if !exists {
		tc.pagesRead++
	}
}

// ForgetPage removes pid from the page set, used when a single lock is
// released early.
func (tc *TransactionContext) ForgetPage(pid primitives.PageID) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()
	delete(tc.lockedPages, pid)
}

// MarkPageDirty marks a page as dirty (modified) by this transaction
func (tc *TransactionContext) MarkPageDirty(pid primitives.PageID) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if _, ok := tc.dirtyPages[pid]; !ok {
		tc.dirtyPages[pid] = struct{}{}
		tc.pagesWritten++
	}
}

// ClearDirty drops pid from the dirty set after it has been written.
func (tc *TransactionContext) ClearDirty(pid primitives.PageID) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()
	delete(tc.dirtyPages, pid)
}

// GetDirtyPages returns a copy of all dirty pages
func (tc *TransactionContext) GetDirtyPages() []primitives.PageID {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	return slices.Collect(maps.Keys(tc.dirtyPages))
}

// GetLockedPages returns a copy of all locked pages
func (tc *TransactionContext) GetLockedPages() []primitives.PageID {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	return slices.Collect(maps.Keys(tc.lockedPages))
}

func (tc *TransactionContext) GetPagePermission(pid primitives.PageID) (perm page.Permissions, exists bool) {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	perm, exists = tc.lockedPages[pid]
	return
}

// RecordTupleWrite increments the tuples written counter
func (tc *TransactionContext) RecordTupleWrite() {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()
	tc.tuplesWritten++
}

// RecordTupleDelete increments the tuples deleted counter
func (tc *TransactionContext) RecordTupleDelete() {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()
	tc.tuplesDeleted++
}

// GetStatistics returns a snapshot of transaction statistics
func (tc *TransactionContext) GetStatistics() TransactionStats {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()

	return TransactionStats{
		PagesRead:     tc.pagesRead,
		PagesWritten:  tc.pagesWritten,
		TuplesWritten: tc.tuplesWritten,
		TuplesDeleted: tc.tuplesDeleted,
		LockedPages:   len(tc.lockedPages),
		DirtyPages:    len(tc.dirtyPages),
	}
}

// Duration returns how long the transaction has been running
func (tc *TransactionContext) Duration() time.Duration {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	return tc.duration()
}

func (tc *TransactionContext) duration() time.Duration {
	endTime := tc.endTime
	if endTime.IsZero() {
		endTime = time.Now()
	}
	return endTime.Sub(tc.startTime)
}

// String returns a string representation of the transaction context
func (tc *TransactionContext) String() string {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()

	return fmt.Sprintf("Transaction %s [Status=%s, Duration=%v, Dirty=%d, Locked=%d]",
		tc.ID.String(), tc.status.String(), tc.duration(),
		len(tc.dirtyPages), len(tc.lockedPages))
}
