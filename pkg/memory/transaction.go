package memory

import (
	"fmt"

	"storecore/pkg/concurrency/transaction"
	dberror "storecore/pkg/error"
	"storecore/pkg/logging"
	"storecore/pkg/primitives"
	"storecore/pkg/storage/page"
)

// CommitTransaction finalizes tid. See TransactionComplete.
func (bp *BufferPool) CommitTransaction(tid *primitives.TransactionID) error {
	return bp.TransactionComplete(tid, true)
}

// AbortTransaction rolls tid back. It never fails for a non-nil tid.
func (bp *BufferPool) AbortTransaction(tid *primitives.TransactionID) error {
	return bp.TransactionComplete(tid, false)
}

// TransactionComplete commits or aborts tid.
//
// For every page tid holds exclusively: on commit a dirty page is written
// to its table file, its before-image is recaptured and the dirty flag
// cleared; on abort the cached page is replaced by its before-image without
// any I/O. Afterwards every lock of tid is released and tid is removed from
// the registry.
//
// A failed commit write is returned wrapped with dberror.ErrIOFailure. The
// transaction keeps its locks and registry entry so the caller can abort
// it; pages written before the failure stay durable.
//
// A resident page dirtied by tid without tid holding its exclusive lock is
// a broken access discipline and panics with a dberror.DBError of code
// INVARIANT_VIOLATION.
func (bp *BufferPool) TransactionComplete(tid *primitives.TransactionID, commit bool) error {
	if tid == nil {
		return dberror.Newf(dberror.ErrInvalidArgument, "TransactionComplete", "BufferPool", "transaction ID cannot be nil")
	}

	ctx := bp.registry.GetOrCreate(tid)
	bp.checkDirtyPages(tid, ctx)

	if commit {
		ctx.SetStatus(transaction.TxCommitting)
		if err := bp.commitPages(tid, ctx); err != nil {
			ctx.SetStatus(transaction.TxActive)
			logging.WithTx(tid.ID()).Error("commit failed, transaction must abort", "error", err)
			return err
		}
	} else {
		ctx.SetStatus(transaction.TxAborting)
		bp.abortPages(tid)
	}

	released := bp.locks.UnlockAllPages(tid)
	bp.registry.Remove(tid)

	if commit {
		ctx.SetStatus(transaction.TxCommitted)
		bp.recorder.RecordCommit()
	} else {
		ctx.SetStatus(transaction.TxAborted)
		bp.recorder.RecordAbort()
	}

	stats := ctx.GetStatistics()
	logging.WithTx(tid.ID()).Debug("transaction complete",
		"commit", commit,
		"released_locks", len(released),
		"dirty_pages", stats.PagesWritten,
		"duration", ctx.Duration())
	return nil
}

// checkDirtyPages panics if a resident page is dirty under tid while
// tid does not hold its exclusive lock.
func (bp *BufferPool) checkDirtyPages(tid *primitives.TransactionID, ctx *transaction.TransactionContext) {
	for _, pid := range ctx.GetDirtyPages() {
		bp.mutex.Lock()
		p, resident := bp.cache.Peek(pid)
		bp.mutex.Unlock()

		if !resident || p.IsDirty() != tid || bp.locks.HoldsExclusive(tid, pid) {
			continue
		}

		panic(dberror.Newf(dberror.ErrInvariantViolation, "TransactionComplete", "BufferPool",
			"page %s is dirty under %s without an exclusive lock", pid, tid))
	}
}

func (bp *BufferPool) exclusivePages(tid *primitives.TransactionID) []primitives.PageID {
	held := bp.locks.LockedPages(tid)
	pages := held[:0]
	for _, pid := range held {
		if bp.locks.HoldsExclusive(tid, pid) {
			pages = append(pages, pid)
		}
	}
	return pages
}

func (bp *BufferPool) commitPages(tid *primitives.TransactionID, ctx *transaction.TransactionContext) error {
	for _, pid := range bp.exclusivePages(tid) {
		bp.mutex.Lock()
		p, resident := bp.cache.Peek(pid)
		bp.mutex.Unlock()

		if !resident || p.IsDirty() == nil {
			continue
		}

		// tid holds the exclusive lock and dirty pages are never evicted,
		// so p cannot change underneath the write.
		if err := bp.writePage(p); err != nil {
			return err
		}
		ctx.ClearDirty(pid)
	}
	return nil
}

// writePage writes p to its table file, then rebases its before-image and
// clears the dirty flag.
func (bp *BufferPool) writePage(p page.Page) error {
	pid := p.GetID()
	dbFile, err := bp.tables.GetDbFile(pid.GetTableID())
	if err != nil {
		return dberror.WithCause(dberror.ErrIOFailure, err, "writePage", "BufferPool", "no table file for %s", pid)
	}

	data := p.GetPageData()
	if err := dbFile.WritePage(p); err != nil {
		return dberror.WithCause(dberror.ErrIOFailure, err, "writePage", "BufferPool", "write %s", pid)
	}

	p.SetBeforeImage()
	p.MarkDirty(false, nil)
	bp.recorder.RecordFlush(len(data))
	return nil
}

// abortPages replaces every exclusively held resident page with its
// before-image. A page without a before-image is dropped so the next fetch
// rereads it from disk.
func (bp *BufferPool) abortPages(tid *primitives.TransactionID) {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()

	for _, pid := range bp.exclusivePages(tid) {
		p, resident := bp.cache.Peek(pid)
		if !resident {
			continue
		}

		before := p.GetBeforeImage()
		if before == nil {
			bp.cache.Remove(pid)
			continue
		}
		if err := bp.cache.Put(pid, before); err != nil {
			bp.cache.Remove(pid)
		}
	}
	bp.recorder.SetResidentPages(bp.cache.Size())
}

// FlushPages writes every page tid has dirtied, without releasing locks.
// The written state becomes the pages' before-image, so a later abort of
// tid no longer undoes it.
func (bp *BufferPool) FlushPages(tid *primitives.TransactionID) error {
	ctx, err := bp.registry.Get(tid)
	if err != nil {
		return nil
	}

	for _, pid := range ctx.GetDirtyPages() {
		bp.mutex.Lock()
		p, resident := bp.cache.Peek(pid)
		bp.mutex.Unlock()

		if !resident || p.IsDirty() != tid {
			continue
		}
		if err := bp.writePage(p); err != nil {
			return fmt.Errorf("flush pages of %s: %w", tid, err)
		}
		ctx.ClearDirty(pid)
	}
	return nil
}
