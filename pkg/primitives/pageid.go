package primitives

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
)

// PageIDSize is the length of a serialized PageID in bytes.
const PageIDSize = 16

// PageID identifies a page as (table, page number). It is an immutable value
// type and is comparable, so it can be used directly as a map key by the
// page cache and the lock table.
type PageID struct {
	TableID TableID
	PageNo  PageNumber
}

// NewPageID creates a page identifier for the given table and page number.
func NewPageID(tableID TableID, pageNo PageNumber) PageID {
	return PageID{TableID: tableID, PageNo: pageNo}
}

// GetTableID returns the table this page belongs to.
func (p PageID) GetTableID() TableID {
	return p.TableID
}

// PageNumber returns the page number within the table.
func (p PageID) PageNumber() PageNumber {
	return p.PageNo
}

// Serialize returns the 16-byte little-endian encoding (table, page).
func (p PageID) Serialize() []byte {
	buf := make([]byte, PageIDSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(p.TableID))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(p.PageNo))
	return buf
}

// Equals checks if two page IDs refer to the same page.
func (p PageID) Equals(other PageID) bool {
	return p == other
}

// HashCode returns an FNV-1a hash over both fields.
func (p PageID) HashCode() HashCode {
	h := fnv.New64a()
	h.Write(p.Serialize())
	return HashCode(h.Sum64())
}

// String returns a string representation of this page ID.
func (p PageID) String() string {
	return fmt.Sprintf("PageID(table=%d, page=%d)", p.TableID, p.PageNo)
}
