package heap

import (
	"errors"

	"storecore/pkg/primitives"
	"storecore/pkg/storage/page"
	"storecore/pkg/tuple"
)

// ErrIteratorClosed is returned by a HeapFileIterator used after Close.
var ErrIteratorClosed = errors.New("heap file iterator is closed")

// HeapFileIterator walks every tuple of a heap file page by page. Pages are
// fetched through the PageFetcher with ReadOnly, so the iterating
// transaction holds a shared lock on every page it has visited.
type HeapFileIterator struct {
	file        *HeapFile
	tid         *primitives.TransactionID
	pages       page.PageFetcher
	currentPage primitives.PageNumber
	tuples      []*tuple.Tuple
	index       int
	isOpen      bool
}

// NewHeapFileIterator returns a closed iterator over hf.
func NewHeapFileIterator(hf *HeapFile, tid *primitives.TransactionID, pages page.PageFetcher) *HeapFileIterator {
	return &HeapFileIterator{file: hf, tid: tid, pages: pages}
}

// Open positions the iterator before the first tuple.
func (it *HeapFileIterator) Open() error {
	it.isOpen = true
	it.currentPage = 0
	it.tuples = nil
	it.index = 0
	return nil
}

// HasNext reports whether another tuple is available, loading following
// pages as needed.
func (it *HeapFileIterator) HasNext() (bool, error) {
	if !it.isOpen {
		return false, ErrIteratorClosed
	}

	for it.index >= len(it.tuples) {
		more, err := it.moveToNextPage()
		if err != nil || !more {
			return false, err
		}
	}
	return true, nil
}

// Next returns the next tuple, or nil when the file is exhausted.
func (it *HeapFileIterator) Next() (*tuple.Tuple, error) {
	ok, err := it.HasNext()
	if err != nil || !ok {
		return nil, err
	}

	t := it.tuples[it.index]
	it.index++
	return t, nil
}

// Rewind restarts iteration from the first page.
func (it *HeapFileIterator) Rewind() error {
	return it.Open()
}

// Close releases the buffered page contents.
func (it *HeapFileIterator) Close() error {
	it.isOpen = false
	it.tuples = nil
	return nil
}

func (it *HeapFileIterator) moveToNextPage() (bool, error) {
	numPages, err := it.file.NumPages()
	if err != nil {
		return false, err
	}
	if it.currentPage >= numPages {
		return false, nil
	}

	hp, err := it.file.fetch(it.tid, primitives.NewPageID(it.file.GetID(), it.currentPage), page.ReadOnly, it.pages)
	if err != nil {
		return false, err
	}

	it.currentPage++
	it.tuples = hp.GetTuples()
	it.index = 0
	return true, nil
}
