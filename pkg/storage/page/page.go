package page

import (
	"storecore/pkg/primitives"
)

// Permissions represents the access level a transaction requests on a page.
type Permissions int

const (
	// ReadOnly requests a shared lock.
	ReadOnly Permissions = iota
	// ReadWrite requests an exclusive lock.
	ReadWrite
)

func (p Permissions) String() string {
	if p == ReadWrite {
		return "READ_WRITE"
	}
	return "READ_ONLY"
}

// Page interface represents a page that is resident in the buffer pool
// Pages may be "dirty", indicating they have been modified since last written to disk
type Page interface {
	// GetID returns the ID of this page
	GetID() primitives.PageID

	// IsDirty returns the transaction ID that last dirtied this page, or nil if clean
	IsDirty() *primitives.TransactionID

	// MarkDirty sets the dirty state of this page
	MarkDirty(dirty bool, tid *primitives.TransactionID)

	// GetPageData returns a byte array representing the contents of this page
	// Used to serialize this page to disk
	GetPageData() []byte

	// GetBeforeImage returns a copy of this page as it was when the
	// before-image was last captured. Used to undo an aborted transaction.
	GetBeforeImage() Page

	// SetBeforeImage copies current content to the before image
	// Called when a page is loaded and when a transaction that wrote it commits
	SetBeforeImage()
}
