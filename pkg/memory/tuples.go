package memory

import (
	"fmt"

	dberror "storecore/pkg/error"
	"storecore/pkg/primitives"
	"storecore/pkg/storage/page"
	"storecore/pkg/tuple"
)

// InsertTuple adds t to the table with the given ID on behalf of tid. The
// table file chooses the page; every page it modified is marked dirty under
// tid and cached.
func (bp *BufferPool) InsertTuple(tid *primitives.TransactionID, tableID primitives.TableID, t *tuple.Tuple) error {
	if tid == nil {
		return dberror.Newf(dberror.ErrInvalidArgument, "InsertTuple", "BufferPool", "transaction ID cannot be nil")
	}
	if t == nil {
		return dberror.Newf(dberror.ErrInvalidArgument, "InsertTuple", "BufferPool", "tuple cannot be nil")
	}

	dbFile, err := bp.tables.GetDbFile(tableID)
	if err != nil {
		return err
	}

	modified, err := dbFile.InsertTuple(tid, t, bp)
	if err != nil {
		return fmt.Errorf("insert into table %d: %w", tableID, err)
	}

	if err := bp.applyMutation(tid, modified); err != nil {
		return err
	}
	bp.registry.GetOrCreate(tid).RecordTupleWrite()
	return nil
}

// DeleteTuple removes t, located by its RecordID, on behalf of tid.
func (bp *BufferPool) DeleteTuple(tid *primitives.TransactionID, t *tuple.Tuple) error {
	if tid == nil {
		return dberror.Newf(dberror.ErrInvalidArgument, "DeleteTuple", "BufferPool", "transaction ID cannot be nil")
	}
	if t == nil || t.RecordID == nil {
		return dberror.Newf(dberror.ErrInvalidArgument, "DeleteTuple", "BufferPool", "tuple has no record ID")
	}

	tableID := t.RecordID.PageID.GetTableID()
	dbFile, err := bp.tables.GetDbFile(tableID)
	if err != nil {
		return err
	}

	modified, err := dbFile.DeleteTuple(tid, t, bp)
	if err != nil {
		return fmt.Errorf("delete from table %d: %w", tableID, err)
	}

	if err := bp.applyMutation(tid, modified); err != nil {
		return err
	}
	bp.registry.GetOrCreate(tid).RecordTupleDelete()
	return nil
}

// UpdateTuple replaces oldTuple with newTuple in oldTuple's table as a
// delete followed by an insert. On failure the transaction must be aborted
// to undo a delete that already happened.
func (bp *BufferPool) UpdateTuple(tid *primitives.TransactionID, oldTuple, newTuple *tuple.Tuple) error {
	if oldTuple == nil || oldTuple.RecordID == nil {
		return dberror.Newf(dberror.ErrInvalidArgument, "UpdateTuple", "BufferPool", "old tuple has no record ID")
	}

	tableID := oldTuple.RecordID.PageID.GetTableID()
	if err := bp.DeleteTuple(tid, oldTuple); err != nil {
		return fmt.Errorf("update: %w", err)
	}
	if err := bp.InsertTuple(tid, tableID, newTuple); err != nil {
		return fmt.Errorf("update: %w", err)
	}
	return nil
}

// applyMutation marks every page the table file returned as dirty under
// tid and caches it. The returned page is authoritative and replaces any
// cached copy.
func (bp *BufferPool) applyMutation(tid *primitives.TransactionID, pages []page.Page) error {
	ctx := bp.registry.GetOrCreate(tid)

	bp.mutex.Lock()
	defer bp.mutex.Unlock()

	for _, p := range pages {
		pid := p.GetID()
		if _, resident := bp.cache.Peek(pid); !resident {
			if err := bp.ensureRoomLocked(); err != nil {
				return err
			}
		}

		p.MarkDirty(true, tid)
		if err := bp.cache.Put(pid, p); err != nil {
			return err
		}
		ctx.MarkPageDirty(pid)
	}

	bp.recorder.SetResidentPages(bp.cache.Size())
	return nil
}
