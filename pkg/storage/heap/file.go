package heap

import (
	"fmt"

	dberror "storecore/pkg/error"
	"storecore/pkg/primitives"
	"storecore/pkg/storage/page"
	"storecore/pkg/tuple"
)

// HeapFile is a table file of fixed-width tuples stored on HeapPages with
// no particular ordering. Page I/O goes through the embedded BaseFile;
// tuple placement fetches pages through the caller's PageFetcher so every
// page it touches is locked by the transaction.
type HeapFile struct {
	*page.BaseFile
	tupleSize int
}

// NewHeapFile opens (creating if needed) a heap file storing tuples of
// tupleSize bytes on pages of pageSize bytes.
func NewHeapFile(filePath primitives.Filepath, tupleSize, pageSize int) (*HeapFile, error) {
	if _, err := slotCount("NewHeapFile", "HeapFile", pageSize, tupleSize); err != nil {
		return nil, err
	}

	baseFile, err := page.NewBaseFile(filePath, pageSize)
	if err != nil {
		return nil, err
	}

	return &HeapFile{BaseFile: baseFile, tupleSize: tupleSize}, nil
}

// TupleSize returns the fixed tuple width of this file.
func (hf *HeapFile) TupleSize() int {
	return hf.tupleSize
}

// ReadPage reads the specified page from disk.
func (hf *HeapFile) ReadPage(pid primitives.PageID) (page.Page, error) {
	if pid.GetTableID() != hf.GetID() {
		return nil, dberror.Newf(dberror.ErrInvalidPage, "ReadPage", "HeapFile",
			"page %s does not belong to table %d", pid, hf.GetID())
	}

	data, err := hf.ReadPageData(pid.PageNumber())
	if err != nil {
		return nil, err
	}

	return NewHeapPage(pid, data, hf.tupleSize)
}

// WritePage persists a page at its designated location.
func (hf *HeapFile) WritePage(p page.Page) error {
	if p == nil {
		return dberror.Newf(dberror.ErrInvalidArgument, "WritePage", "HeapFile", "page cannot be nil")
	}

	pid := p.GetID()
	if pid.GetTableID() != hf.GetID() {
		return dberror.Newf(dberror.ErrInvalidPage, "WritePage", "HeapFile",
			"page %s does not belong to table %d", pid, hf.GetID())
	}

	return hf.WritePageData(pid.PageNumber(), p.GetPageData())
}

// InsertTuple places t in the first page with a free slot. Existing pages
// are scanned with ReadOnly and the first with space is re-fetched with
// ReadWrite; if none has space a new page is appended to the file.
func (hf *HeapFile) InsertTuple(tid *primitives.TransactionID, t *tuple.Tuple, pages page.PageFetcher) ([]page.Page, error) {
	if t == nil {
		return nil, dberror.Newf(dberror.ErrInvalidArgument, "InsertTuple", "HeapFile", "tuple cannot be nil")
	}
	if t.Size() != hf.tupleSize {
		return nil, dberror.Newf(dberror.ErrInvalidArgument, "InsertTuple", "HeapFile",
			"tuple is %d bytes, table stores %d-byte tuples", t.Size(), hf.tupleSize)
	}

	numPages, err := hf.NumPages()
	if err != nil {
		return nil, err
	}

	for i := primitives.PageNumber(0); i < numPages; i++ {
		pid := primitives.NewPageID(hf.GetID(), i)
		hp, err := hf.fetch(tid, pid, page.ReadOnly, pages)
		if err != nil {
			return nil, err
		}
		if hp.GetNumEmptySlots() == 0 {
			continue
		}

		if hp, err = hf.fetch(tid, pid, page.ReadWrite, pages); err != nil {
			return nil, err
		}
		// Another transaction may have filled it before the upgrade.
		if hp.GetNumEmptySlots() == 0 {
			continue
		}
		if err := hp.AddTuple(t); err != nil {
			return nil, err
		}
		return []page.Page{hp}, nil
	}

	pageNo, err := hf.AllocateNewPage()
	if err != nil {
		return nil, err
	}

	hp, err := hf.fetch(tid, primitives.NewPageID(hf.GetID(), pageNo), page.ReadWrite, pages)
	if err != nil {
		return nil, err
	}
	if err := hp.AddTuple(t); err != nil {
		return nil, err
	}
	return []page.Page{hp}, nil
}

// DeleteTuple removes t from the page named by its RecordID.
func (hf *HeapFile) DeleteTuple(tid *primitives.TransactionID, t *tuple.Tuple, pages page.PageFetcher) ([]page.Page, error) {
	if t == nil || t.RecordID == nil {
		return nil, dberror.Newf(dberror.ErrInvalidArgument, "DeleteTuple", "HeapFile", "tuple has no record ID")
	}

	pid := t.RecordID.PageID
	if pid.GetTableID() != hf.GetID() {
		return nil, dberror.Newf(dberror.ErrInvalidArgument, "DeleteTuple", "HeapFile",
			"tuple %s is not in table %d", t.RecordID, hf.GetID())
	}

	hp, err := hf.fetch(tid, pid, page.ReadWrite, pages)
	if err != nil {
		return nil, err
	}

	if err := hp.DeleteTuple(t); err != nil {
		return nil, err
	}
	return []page.Page{hp}, nil
}

func (hf *HeapFile) fetch(tid *primitives.TransactionID, pid primitives.PageID, perm page.Permissions, pages page.PageFetcher) (*HeapPage, error) {
	p, err := pages.GetPage(tid, pid, perm)
	if err != nil {
		return nil, err
	}

	hp, ok := p.(*HeapPage)
	if !ok {
		return nil, fmt.Errorf("page %s is %T, not a heap page", pid, p)
	}
	return hp, nil
}
