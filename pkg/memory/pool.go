package memory

import (
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"storecore/pkg/concurrency/lock"
	"storecore/pkg/concurrency/transaction"
	"storecore/pkg/config"
	dberror "storecore/pkg/error"
	"storecore/pkg/logging"
	"storecore/pkg/metrics"
	"storecore/pkg/primitives"
	"storecore/pkg/storage/page"
)

// BufferPool manages a bounded in-memory cache of database pages and handles
// transaction-aware page operations. It is the single entry point through
// which transactions read and modify pages.
//
// Every page access first takes the page lock in the lock manager. Dirty
// pages are never evicted (no-steal) and are written only when their
// transaction commits (force), so abort only has to restore before-images.
type BufferPool struct {
	cfg      config.Config
	tables   *TableManager
	locks    *lock.LockManager
	registry *transaction.TransactionRegistry
	cache    PageCache
	recorder metrics.Recorder
	limiter  *rate.Limiter

	// mutex makes residency check, eviction and insertion one step.
	mutex sync.Mutex
	loads singleflight.Group
}

// Option configures a BufferPool.
type Option func(*BufferPool)

// WithRecorder reports cache, lock and transaction events to r.
func WithRecorder(r metrics.Recorder) Option {
	return func(bp *BufferPool) {
		if r != nil {
			bp.recorder = r
		}
	}
}

// WithCache replaces the policy-selected cache. Its capacity must match
// cfg.Capacity.
func WithCache(c PageCache) Option {
	return func(bp *BufferPool) {
		if c != nil {
			bp.cache = c
		}
	}
}

// NewBufferPool creates a buffer pool over the tables registered in tm.
func NewBufferPool(cfg config.Config, tm *TableManager, opts ...Option) (*BufferPool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tm == nil {
		return nil, dberror.Newf(dberror.ErrInvalidArgument, "NewBufferPool", "BufferPool", "table manager cannot be nil")
	}

	bp := &BufferPool{
		cfg:      cfg,
		tables:   tm,
		registry: transaction.NewTransactionRegistry(),
		cache:    NewPageCache(cfg.EvictionPolicy, cfg.Capacity),
		recorder: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(bp)
	}

	bp.locks = lock.NewLockManager(lock.WithRecorder(bp.recorder))
	if cfg.FlushBytesPerSec > 0 {
		burst := max(int(cfg.FlushBytesPerSec), cfg.PageSize)
		bp.limiter = rate.NewLimiter(rate.Limit(cfg.FlushBytesPerSec), burst)
	}

	bp.log().Info("buffer pool created",
		"capacity", cfg.Capacity,
		"page_size", cfg.PageSize,
		"eviction_policy", string(cfg.EvictionPolicy))
	return bp, nil
}

func (bp *BufferPool) log() *slog.Logger {
	return logging.WithComponent("BufferPool")
}

// Capacity returns the maximum number of resident pages.
func (bp *BufferPool) Capacity() int {
	return bp.cfg.Capacity
}

// PageSize returns the configured page size in bytes.
func (bp *BufferPool) PageSize() int {
	return bp.cfg.PageSize
}

// ResidentPages returns the number of pages currently cached.
func (bp *BufferPool) ResidentPages() int {
	return bp.cache.Size()
}

// Tables returns the table manager the pool reads through.
func (bp *BufferPool) Tables() *TableManager {
	return bp.tables
}

// LockManager exposes the lock manager for diagnostics.
func (bp *BufferPool) LockManager() *lock.LockManager {
	return bp.locks
}

// Registry exposes the registry of running transactions.
func (bp *BufferPool) Registry() *transaction.TransactionRegistry {
	return bp.registry
}

// GetPage retrieves a page with the given permission for a transaction.
// ReadOnly takes a shared lock and ReadWrite an exclusive one; the call
// blocks until the lock is granted. It fails with
// dberror.ErrTransactionAborted on deadlock and with
// dberror.ErrBufferPoolFull when the page is not resident and every
// resident page is dirty. Both require the caller to abort tid.
func (bp *BufferPool) GetPage(tid *primitives.TransactionID, pid primitives.PageID, perm page.Permissions) (page.Page, error) {
	if tid == nil {
		return nil, dberror.Newf(dberror.ErrInvalidArgument, "GetPage", "BufferPool", "transaction ID cannot be nil")
	}

	lockType := lock.SharedLock
	if perm == page.ReadWrite {
		lockType = lock.ExclusiveLock
	}

	if err := bp.locks.LockPage(tid, pid, lockType); err != nil {
		return nil, err
	}
	bp.registry.GetOrCreate(tid).RecordPageAccess(pid, perm)

	return bp.loadPage(pid)
}

// loadPage returns the resident copy of pid or reads it from its table
// file. Concurrent loads of the same page share one read.
func (bp *BufferPool) loadPage(pid primitives.PageID) (page.Page, error) {
	bp.mutex.Lock()
	if p, ok := bp.cache.Get(pid); ok {
		bp.mutex.Unlock()
		bp.recorder.RecordHit()
		return p, nil
	}
	bp.mutex.Unlock()

	v, err, _ := bp.loads.Do(pid.String(), func() (any, error) {
		return bp.readAndInsert(pid)
	})
	if err != nil {
		return nil, err
	}
	return v.(page.Page), nil
}

func (bp *BufferPool) readAndInsert(pid primitives.PageID) (page.Page, error) {
	bp.mutex.Lock()
	if p, ok := bp.cache.Get(pid); ok {
		bp.mutex.Unlock()
		bp.recorder.RecordHit()
		return p, nil
	}
	// Fail before any I/O when nothing can make room.
	if err := bp.ensureRoomLocked(); err != nil {
		bp.mutex.Unlock()
		return nil, err
	}
	bp.mutex.Unlock()

	dbFile, err := bp.tables.GetDbFile(pid.GetTableID())
	if err != nil {
		return nil, err
	}

	p, err := dbFile.ReadPage(pid)
	if err != nil {
		return nil, err
	}
	p.SetBeforeImage()

	bp.mutex.Lock()
	defer bp.mutex.Unlock()

	if existing, ok := bp.cache.Peek(pid); ok {
		return existing, nil
	}
	if err := bp.ensureRoomLocked(); err != nil {
		return nil, err
	}
	if err := bp.cache.Put(pid, p); err != nil {
		return nil, err
	}

	bp.recorder.RecordMiss()
	bp.recorder.SetResidentPages(bp.cache.Size())
	return p, nil
}

// ensureRoomLocked evicts one page if the cache is at capacity.
// Caller holds bp.mutex.
func (bp *BufferPool) ensureRoomLocked() error {
	if bp.cache.Size() < bp.cfg.Capacity {
		return nil
	}
	return bp.evictLocked()
}

// evictLocked discards the first clean page in candidate order without
// writing it. It never evicts a dirty page; if every resident page is dirty
// it fails with dberror.ErrBufferPoolFull. Caller holds bp.mutex.
func (bp *BufferPool) evictLocked() error {
	for _, pid := range bp.cache.GetAll() {
		p, ok := bp.cache.Peek(pid)
		if !ok || p.IsDirty() != nil {
			continue
		}

		bp.cache.Remove(pid)
		bp.recorder.RecordEviction()
		bp.recorder.SetResidentPages(bp.cache.Size())
		bp.log().Debug("page evicted", "page", pid.String())
		return nil
	}

	bp.recorder.RecordEvictionFailure()
	bp.log().Warn("eviction failed, all resident pages are dirty", "resident", bp.cache.Size())
	return dberror.Newf(dberror.ErrBufferPoolFull, "evict", "BufferPool",
		"all %d resident pages are dirty", bp.cache.Size())
}

// DiscardPage drops pid from the cache regardless of its dirty state.
// Uncommitted changes on the page are lost.
func (bp *BufferPool) DiscardPage(pid primitives.PageID) {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()

	bp.cache.Remove(pid)
	bp.recorder.SetResidentPages(bp.cache.Size())
}

// HoldsLock reports whether tid holds a lock on pid.
func (bp *BufferPool) HoldsLock(tid *primitives.TransactionID, pid primitives.PageID) bool {
	return bp.locks.HoldsLock(tid, pid)
}

// ReleasePage releases tid's lock on pid before the transaction completes.
// This breaks two-phase locking and is only safe for pages tid read and
// did not modify.
func (bp *BufferPool) ReleasePage(tid *primitives.TransactionID, pid primitives.PageID) {
	bp.locks.UnlockPage(tid, pid)
	if ctx, err := bp.registry.Get(tid); err == nil {
		ctx.ForgetPage(pid)
	}
}
