package page

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	dberror "storecore/pkg/error"
	"storecore/pkg/primitives"
)

// BaseFile provides raw page I/O shared by table file implementations.
// It handles the OS file handle, page counting and page allocation.
//
// Thread-safety: All public methods use read/write locks to ensure safe concurrent access.
type BaseFile struct {
	file     *os.File
	tableID  primitives.TableID
	pageSize int
	mutex    sync.RWMutex
	filePath primitives.Filepath
}

// NewBaseFile opens (creating if needed) the file at filePath. The table ID
// is derived from the path hash.
func NewBaseFile(filePath primitives.Filepath, pageSize int) (*BaseFile, error) {
	if filePath == "" {
		return nil, dberror.Newf(dberror.ErrInvalidArgument, "NewBaseFile", "BaseFile", "file path cannot be empty")
	}
	if pageSize <= 0 {
		return nil, dberror.Newf(dberror.ErrInvalidArgument, "NewBaseFile", "BaseFile", "page size must be positive, got %d", pageSize)
	}

	file, err := os.OpenFile(string(filePath), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, dberror.WithCause(dberror.ErrIOFailure, err, "NewBaseFile", "BaseFile", "open %s", filePath)
	}

	return &BaseFile{
		file:     file,
		tableID:  filePath.HashAsTableID(),
		pageSize: pageSize,
		filePath: filePath,
	}, nil
}

// GetID returns the table identifier derived from the file path.
func (bf *BaseFile) GetID() primitives.TableID {
	return bf.tableID
}

// PageSize returns the page size this file was opened with.
func (bf *BaseFile) PageSize() int {
	return bf.pageSize
}

// FilePath returns the path used to open this file.
func (bf *BaseFile) FilePath() primitives.Filepath {
	return bf.filePath
}

// NumPages returns the total number of pages in this file, rounding a
// trailing partial page up.
func (bf *BaseFile) NumPages() (primitives.PageNumber, error) {
	bf.mutex.RLock()
	defer bf.mutex.RUnlock()

	return bf.numPages()
}

func (bf *BaseFile) numPages() (primitives.PageNumber, error) {
	if bf.file == nil {
		return 0, dberror.Newf(dberror.ErrIOFailure, "NumPages", "BaseFile", "file %s is closed", bf.filePath)
	}

	fileInfo, err := bf.file.Stat()
	if err != nil {
		return 0, dberror.WithCause(dberror.ErrIOFailure, err, "NumPages", "BaseFile", "stat %s", bf.filePath)
	}

	size := fileInfo.Size()
	numPages := primitives.PageNumber(size / int64(bf.pageSize))
	if size%int64(bf.pageSize) != 0 {
		numPages++
	}

	return numPages, nil
}

// ReadPageData reads exactly one page of raw bytes. Page numbers at or past
// the end of the file are rejected with dberror.ErrInvalidPage.
func (bf *BaseFile) ReadPageData(pageNo primitives.PageNumber) ([]byte, error) {
	bf.mutex.RLock()
	defer bf.mutex.RUnlock()

	numPages, err := bf.numPages()
	if err != nil {
		return nil, err
	}
	if pageNo >= numPages {
		return nil, dberror.Newf(dberror.ErrInvalidPage, "ReadPageData", "BaseFile",
			"page %d out of range for %s (%d pages)", pageNo, bf.filePath, numPages)
	}

	pageData := make([]byte, bf.pageSize)
	_, err = bf.file.ReadAt(pageData, int64(pageNo)*int64(bf.pageSize))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, dberror.WithCause(dberror.ErrIOFailure, err, "ReadPageData", "BaseFile", "read page %d of %s", pageNo, bf.filePath)
	}

	// A short trailing page reads as zero-padded.
	return pageData, nil
}

// WritePageData writes one page of raw bytes and syncs the file.
func (bf *BaseFile) WritePageData(pageNo primitives.PageNumber, pageData []byte) error {
	bf.mutex.Lock()
	defer bf.mutex.Unlock()

	if bf.file == nil {
		return dberror.Newf(dberror.ErrIOFailure, "WritePageData", "BaseFile", "file %s is closed", bf.filePath)
	}

	if len(pageData) != bf.pageSize {
		return dberror.Newf(dberror.ErrInvalidArgument, "WritePageData", "BaseFile",
			"invalid page data size: expected %d, got %d", bf.pageSize, len(pageData))
	}

	if _, err := bf.file.WriteAt(pageData, int64(pageNo)*int64(bf.pageSize)); err != nil {
		return dberror.WithCause(dberror.ErrIOFailure, err, "WritePageData", "BaseFile", "write page %d of %s", pageNo, bf.filePath)
	}

	if err := bf.file.Sync(); err != nil {
		return dberror.WithCause(dberror.ErrIOFailure, err, "WritePageData", "BaseFile", "sync %s", bf.filePath)
	}

	return nil
}

// AllocateNewPage atomically reserves the next page number by extending
// the file with a zero-filled page. Concurrent callers receive distinct
// page numbers.
func (bf *BaseFile) AllocateNewPage() (primitives.PageNumber, error) {
	bf.mutex.Lock()
	defer bf.mutex.Unlock()

	pageNo, err := bf.numPages()
	if err != nil {
		return 0, err
	}

	zeroPage := make([]byte, bf.pageSize)
	if _, err := bf.file.WriteAt(zeroPage, int64(pageNo)*int64(bf.pageSize)); err != nil {
		return 0, dberror.WithCause(dberror.ErrIOFailure, err, "AllocateNewPage", "BaseFile", "extend %s", bf.filePath)
	}

	if err := bf.file.Sync(); err != nil {
		return 0, dberror.WithCause(dberror.ErrIOFailure, err, "AllocateNewPage", "BaseFile", "sync %s", bf.filePath)
	}

	return pageNo, nil
}

// Close closes the underlying file handle. Closing twice is a no-op.
func (bf *BaseFile) Close() error {
	bf.mutex.Lock()
	defer bf.mutex.Unlock()

	if bf.file == nil {
		return nil
	}

	err := bf.file.Close()
	bf.file = nil
	if err != nil {
		return fmt.Errorf("failed to close %s: %w", bf.filePath, err)
	}
	return nil
}
