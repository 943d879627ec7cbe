package primitives

import (
	"hash/fnv"
	"os"
	"path/filepath"
)

// Filepath is a type-safe wrapper around file paths used for table files.
//
// Example usage:
//
//	dataDir := primitives.Filepath("/data")
//	tablePath := dataDir.Join("users.dat")
//	tableID := tablePath.HashAsTableID()
type Filepath string

// Hash generates a FileID from the file path using FNV-1a hashing.
// The same path always produces the same ID.
func (f Filepath) Hash() FileID {
	h := fnv.New64a()
	h.Write([]byte(f))
	return FileID(h.Sum64())
}

// HashAsTableID generates a TableID by hashing the file path.
func (f Filepath) HashAsTableID() TableID {
	return TableID(f.Hash())
}

// Join appends path elements to this path.
func (f Filepath) Join(elem ...string) Filepath {
	parts := append([]string{string(f)}, elem...)
	return Filepath(filepath.Join(parts...))
}

// Dir returns the directory portion of the file path.
func (f Filepath) Dir() Filepath {
	return Filepath(filepath.Dir(string(f)))
}

// Exists reports whether a file exists at this path.
func (f Filepath) Exists() bool {
	_, err := os.Stat(string(f))
	return err == nil
}

// String returns the path as a plain string.
func (f Filepath) String() string {
	return string(f)
}
