package lock

import (
	"sync"

	"storecore/pkg/primitives"
)

// LockType is the mode a page lock is held or requested in.
type LockType int

const (
	SharedLock LockType = iota
	ExclusiveLock
)

func (lt LockType) String() string {
	if lt == ExclusiveLock {
		return "EXCLUSIVE"
	}
	return "SHARED"
}

// pageLock is the lock state of one page. All fields are guarded by mu;
// cond is signalled whenever the holder set changes.
type pageLock struct {
	pid       primitives.PageID
	mu        sync.Mutex
	cond      *sync.Cond
	exclusive *primitives.TransactionID
	shared    map[*primitives.TransactionID]struct{}
	waiters   map[*primitives.TransactionID]LockType

	// retired is set once the state has been dropped from the lock table;
	// a requester that finds it set must look the page up again.
	retired bool
}

func newPageLock(pid primitives.PageID) *pageLock {
	pl := &pageLock{
		pid:     pid,
		shared:  make(map[*primitives.TransactionID]struct{}),
		waiters: make(map[*primitives.TransactionID]LockType),
	}
	pl.cond = sync.NewCond(&pl.mu)
	return pl
}

// holds reports the mode tid currently holds on the page.
func (pl *pageLock) holds(tid *primitives.TransactionID) (LockType, bool) {
	if pl.exclusive == tid {
		return ExclusiveLock, true
	}
	if _, ok := pl.shared[tid]; ok {
		return SharedLock, true
	}
	return SharedLock, false
}

// hasSufficient reports whether tid's current hold already covers lockType.
func (pl *pageLock) hasSufficient(tid *primitives.TransactionID, lockType LockType) bool {
	held, ok := pl.holds(tid)
	if !ok {
		return false
	}
	return held == ExclusiveLock || lockType == SharedLock
}

func (pl *pageLock) canGrant(tid *primitives.TransactionID, lockType LockType) bool {
	if lockType == SharedLock {
		return pl.exclusive == nil || pl.exclusive == tid
	}

	if pl.exclusive != nil && pl.exclusive != tid {
		return false
	}
	switch len(pl.shared) {
	case 0:
		return true
	case 1:
		_, sole := pl.shared[tid]
		return sole
	default:
		return false
	}
}

// grant must only be called after canGrant returned true. An exclusive
// grant to a shared holder moves it to the exclusive slot.
func (pl *pageLock) grant(tid *primitives.TransactionID, lockType LockType) {
	if lockType == ExclusiveLock {
		delete(pl.shared, tid)
		pl.exclusive = tid
		return
	}
	if pl.exclusive == tid {
		return
	}
	pl.shared[tid] = struct{}{}
}

// release clears tid from whichever slot it occupies and reports whether
// the holder set changed.
func (pl *pageLock) release(tid *primitives.TransactionID) bool {
	if pl.exclusive == tid {
		pl.exclusive = nil
		return true
	}
	if _, ok := pl.shared[tid]; ok {
		delete(pl.shared, tid)
		return true
	}
	return false
}

// holdersExcept returns the union of exclusive and shared holders minus tid.
func (pl *pageLock) holdersExcept(tid *primitives.TransactionID) []*primitives.TransactionID {
	holders := make([]*primitives.TransactionID, 0, len(pl.shared)+1)
	if pl.exclusive != nil && pl.exclusive != tid {
		holders = append(holders, pl.exclusive)
	}
	for h := range pl.shared {
		if h != tid {
			holders = append(holders, h)
		}
	}
	return holders
}

func (pl *pageLock) idle() bool {
	return pl.exclusive == nil && len(pl.shared) == 0 && len(pl.waiters) == 0
}
