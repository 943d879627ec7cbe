package primitives

import "fmt"

// HashCode represents a hash value (e.g., for keys, page IDs, etc.)
// It is typically computed for fast comparisons or lookups.
type HashCode uint64

// FileID is the base type representing a unique file identifier derived from hashing a file path.
// It serves as the foundation for TableID, representing the physical file's identity.
type FileID uint64

// TableID identifies the table file a page belongs to.
type TableID uint64

// PageNumber represents a page number within a table
type PageNumber uint64

// SlotID represents a slot number within a page (for tuple storage)
type SlotID uint16

// Sentinel values for invalid/unset identifiers
const (
	// InvalidFileID represents an invalid or unset file ID
	InvalidFileID FileID = 0

	// InvalidTableID represents an invalid or unset table ID
	InvalidTableID TableID = 0
)

// IsValid checks if the FileID is a valid non-zero identifier.
func (f FileID) IsValid() bool {
	return f != InvalidFileID
}

// String returns a string representation of the FileID.
func (f FileID) String() string {
	return fmt.Sprintf("FileID(%d)", f)
}

// IsValid checks if the TableID is a valid non-zero identifier.
func (t TableID) IsValid() bool {
	return t != InvalidTableID
}

// ToFileID converts the TableID to its underlying FileID.
func (t TableID) ToFileID() FileID {
	return FileID(t)
}

// String returns a string representation of the TableID.
func (t TableID) String() string {
	return fmt.Sprintf("TableID(%d)", t)
}
