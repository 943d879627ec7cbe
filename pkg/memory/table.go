package memory

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	dberror "storecore/pkg/error"
	"storecore/pkg/logging"
	"storecore/pkg/primitives"
	"storecore/pkg/storage/page"
)

// TableInfo pairs a table file with the name it was registered under.
type TableInfo struct {
	File page.DbFile
	Name string
}

// GetID returns the table's unique identifier
func (ti *TableInfo) GetID() primitives.TableID {
	return ti.File.GetID()
}

// TableManager maps table IDs to the table files the buffer pool reads
// from and writes to, with a name index for lookups by callers.
type TableManager struct {
	nameToTable map[string]*TableInfo
	idToTable   map[primitives.TableID]*TableInfo
	mutex       sync.RWMutex
}

// NewTableManager creates a new empty TableManager instance.
func NewTableManager() *TableManager {
	return &TableManager{
		nameToTable: make(map[string]*TableInfo),
		idToTable:   make(map[primitives.TableID]*TableInfo),
	}
}

// AddTable registers f under name. A table with the same name or ID is
// replaced (without closing its file).
func (tm *TableManager) AddTable(f page.DbFile, name string) error {
	if f == nil {
		return dberror.Newf(dberror.ErrInvalidArgument, "AddTable", "TableManager", "file cannot be nil")
	}
	if name == "" {
		return dberror.Newf(dberror.ErrInvalidArgument, "AddTable", "TableManager", "table name cannot be empty")
	}

	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	info := &TableInfo{File: f, Name: name}
	if old, ok := tm.nameToTable[name]; ok {
		delete(tm.idToTable, old.GetID())
	}
	if old, ok := tm.idToTable[info.GetID()]; ok {
		delete(tm.nameToTable, old.Name)
	}

	tm.nameToTable[name] = info
	tm.idToTable[info.GetID()] = info
	return nil
}

// GetDbFile returns the table file registered for tableID.
func (tm *TableManager) GetDbFile(tableID primitives.TableID) (page.DbFile, error) {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	info, exists := tm.idToTable[tableID]
	if !exists {
		return nil, dberror.Newf(dberror.ErrTableNotFound, "GetDbFile", "TableManager", "table with ID %d not found", tableID)
	}
	return info.File, nil
}

// GetTableID retrieves the unique identifier for a table given its name.
func (tm *TableManager) GetTableID(tableName string) (primitives.TableID, error) {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	info, exists := tm.nameToTable[tableName]
	if !exists {
		return primitives.InvalidTableID, dberror.Newf(dberror.ErrTableNotFound, "GetTableID", "TableManager", "table '%s' not found", tableName)
	}
	return info.GetID(), nil
}

// TableExists reports whether a table is registered under name.
func (tm *TableManager) TableExists(name string) bool {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()
	_, exists := tm.nameToTable[name]
	return exists
}

// GetAllTableNames returns the registered names in sorted order.
func (tm *TableManager) GetAllTableNames() []string {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	names := make([]string, 0, len(tm.nameToTable))
	for name := range tm.nameToTable {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// RemoveTable unregisters a table and closes its file.
func (tm *TableManager) RemoveTable(name string) error {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	info, exists := tm.nameToTable[name]
	if !exists {
		return dberror.Newf(dberror.ErrTableNotFound, "RemoveTable", "TableManager", "table '%s' not found", name)
	}

	delete(tm.nameToTable, name)
	delete(tm.idToTable, info.GetID())

	if err := info.File.Close(); err != nil {
		return fmt.Errorf("close table '%s': %w", name, err)
	}
	return nil
}

// Clear unregisters every table and closes the files. Close errors are
// logged and joined into the returned error.
func (tm *TableManager) Clear() error {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	var errs []error
	for _, info := range tm.idToTable {
		if err := info.File.Close(); err != nil {
			logging.WithError(err).Warn("failed to close table file", "table", info.Name)
			errs = append(errs, fmt.Errorf("close table '%s': %w", info.Name, err))
		}
	}

	tm.nameToTable = make(map[string]*TableInfo)
	tm.idToTable = make(map[primitives.TableID]*TableInfo)
	return errors.Join(errs...)
}
