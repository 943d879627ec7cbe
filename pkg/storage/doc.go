// Package storage is the root of the disk-based storage layer.
//
// Table data lives in fixed-size pages that are read and written as whole
// units. Every page of every table file has the same size, taken from the
// buffer pool configuration.
//
// # Sub-packages
//
//   - [storecore/pkg/storage/page] – the Page and DbFile contracts, access
//     permissions, and BaseFile, the positional page I/O shared by table
//     files.
//   - [storecore/pkg/storage/heap] – heap files: unordered fixed-size
//     tuples packed into slotted pages, with a used-slot bitmap header and
//     a sequential iterator that reads through the buffer pool.
//
// # Page layout
//
// A heap page starts with a bitmap of ceil(n/8) bytes, one bit per slot,
// least significant bit first. The n slots of tuple data follow, and any
// remaining bytes are zero. Pages are only written on commit or on an
// explicit flush, so a table file never holds uncommitted data unless a
// flush was forced.
package storage
