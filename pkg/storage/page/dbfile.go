package page

import (
	"storecore/pkg/primitives"
	"storecore/pkg/tuple"
)

// PageFetcher is the part of the buffer pool a table file needs while it
// places or removes tuples: every page it touches must be read through the
// pool so the transaction holds the right lock on it.
type PageFetcher interface {
	GetPage(tid *primitives.TransactionID, pid primitives.PageID, perm Permissions) (Page, error)
}

// DbFile represents a table file: the opaque page source and sink behind
// the buffer pool. It owns on-disk layout and slot placement.
type DbFile interface {
	// GetID returns the table identifier every PageID of this file carries.
	GetID() primitives.TableID

	// NumPages returns the number of pages currently in the file.
	NumPages() (primitives.PageNumber, error)

	// ReadPage loads a page from disk. A page outside the file's bounds is
	// reported as dberror.ErrInvalidPage, a failed read as dberror.ErrIOFailure.
	ReadPage(pid primitives.PageID) (Page, error)

	// WritePage persists a page at its designated location.
	WritePage(p Page) error

	// InsertTuple places t on some page of the file and returns every page
	// it modified. Pages are fetched through pages with ReadWrite.
	InsertTuple(tid *primitives.TransactionID, t *tuple.Tuple, pages PageFetcher) ([]Page, error)

	// DeleteTuple removes t, located by its RecordID, and returns the pages
	// it modified.
	DeleteTuple(tid *primitives.TransactionID, t *tuple.Tuple, pages PageFetcher) ([]Page, error)

	// Close releases the underlying file handle.
	Close() error
}
