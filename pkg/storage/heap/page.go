package heap

import (
	"fmt"
	"math"
	"sync"

	dberror "storecore/pkg/error"
	"storecore/pkg/primitives"
	"storecore/pkg/storage/page"
	"storecore/pkg/tuple"
)

// HeapPage represents a single page in a heap file and implements the page.Page interface.
// Tuples are fixed-width; the page starts with a slot-occupancy bitmap
// followed by the slot array.
//
// Page Layout:
//
//	[header bitmap: ceil(numSlots/8) bytes][slot 0][slot 1]...[slot N-1][padding]
//
// Bit i of the header (LSB first within each byte) is set when slot i holds a tuple.
type HeapPage struct {
	pageID    primitives.PageID
	pageSize  int
	tupleSize int
	numSlots  primitives.SlotID
	header    []byte
	tuples    []*tuple.Tuple // In-memory tuple cache (indexed by slot number)
	dirtier   *primitives.TransactionID
	oldData   []byte // Before-image for rollback
	mutex     sync.RWMutex
}

// SlotsPerPage returns how many tuples of tupleSize bytes fit on a page of
// pageSize bytes, counting one header bit per slot.
func SlotsPerPage(pageSize, tupleSize int) int {
	return (pageSize * 8) / (tupleSize*8 + 1)
}

// slotCount validates a page geometry. The slot count must be at least one
// and addressable by a SlotID.
func slotCount(op, component string, pageSize, tupleSize int) (primitives.SlotID, error) {
	if tupleSize <= 0 {
		return 0, dberror.Newf(dberror.ErrInvalidArgument, op, component, "tuple size must be positive, got %d", tupleSize)
	}

	n := SlotsPerPage(pageSize, tupleSize)
	switch {
	case n == 0:
		return 0, dberror.Newf(dberror.ErrInvalidArgument, op, component,
			"page of %d bytes cannot hold a %d-byte tuple", pageSize, tupleSize)
	case n > math.MaxUint16:
		return 0, dberror.Newf(dberror.ErrInvalidArgument, op, component,
			"page of %d bytes holds %d slots of %d bytes, more than the %d a page can address",
			pageSize, n, tupleSize, math.MaxUint16)
	}
	return primitives.SlotID(n), nil
}

func headerSize(numSlots primitives.SlotID) int {
	return (int(numSlots) + 7) / 8
}

// NewEmptyHeapPage creates a page with every slot free.
func NewEmptyHeapPage(pid primitives.PageID, pageSize, tupleSize int) (*HeapPage, error) {
	return NewHeapPage(pid, make([]byte, pageSize), tupleSize)
}

// NewHeapPage creates a new HeapPage by deserializing raw page data. The
// data also becomes the page's before-image.
func NewHeapPage(pid primitives.PageID, data []byte, tupleSize int) (*HeapPage, error) {
	numSlots, err := slotCount("NewHeapPage", "HeapPage", len(data), tupleSize)
	if err != nil {
		return nil, err
	}

	hp := &HeapPage{
		pageID:    pid,
		pageSize:  len(data),
		tupleSize: tupleSize,
		numSlots:  numSlots,
		header:    make([]byte, headerSize(numSlots)),
		tuples:    make([]*tuple.Tuple, numSlots),
		oldData:   make([]byte, len(data)),
	}

	hp.parsePageData(data)
	copy(hp.oldData, data)
	return hp, nil
}

// GetID returns the unique page identifier for this heap page.
func (hp *HeapPage) GetID() primitives.PageID {
	return hp.pageID
}

// IsDirty returns the transaction that last modified this page.
// A nil return indicates the page is clean.
func (hp *HeapPage) IsDirty() *primitives.TransactionID {
	hp.mutex.RLock()
	defer hp.mutex.RUnlock()
	return hp.dirtier
}

// MarkDirty marks this page as dirty or clean for a specific transaction.
// This is typically called by the buffer pool when a page is modified or flushed.
func (hp *HeapPage) MarkDirty(dirty bool, tid *primitives.TransactionID) {
	hp.mutex.Lock()
	defer hp.mutex.Unlock()

	if dirty {
		hp.dirtier = tid
	} else {
		hp.dirtier = nil
	}
}

// GetPageData serializes the header and every occupied slot.
func (hp *HeapPage) GetPageData() []byte {
	hp.mutex.RLock()
	defer hp.mutex.RUnlock()
	return hp.serialize()
}

func (hp *HeapPage) serialize() []byte {
	pageData := make([]byte, hp.pageSize)
	copy(pageData, hp.header)

	base := len(hp.header)
	for i, t := range hp.tuples {
		if t == nil {
			continue
		}
		copy(pageData[base+i*hp.tupleSize:], t.Data())
	}

	return pageData
}

// GetBeforeImage returns a page holding the state captured by the last
// SetBeforeImage (or the state it was loaded with). It returns nil when no
// before-image was captured.
func (hp *HeapPage) GetBeforeImage() page.Page {
	hp.mutex.RLock()
	defer hp.mutex.RUnlock()

	if hp.oldData == nil {
		return nil
	}

	beforePage, err := NewHeapPage(hp.pageID, hp.oldData, hp.tupleSize)
	if err != nil {
		// The geometry was validated when this page was built.
		panic(dberror.WithCause(dberror.ErrInvariantViolation, err, "GetBeforeImage", "HeapPage",
			"before-image of page %s cannot be decoded", hp.pageID))
	}
	return beforePage
}

// SetBeforeImage captures the current page state as the before-image.
func (hp *HeapPage) SetBeforeImage() {
	hp.mutex.Lock()
	defer hp.mutex.Unlock()
	hp.oldData = hp.serialize()
}

// AddTuple inserts a tuple into the first free slot and sets its RecordID.
func (hp *HeapPage) AddTuple(t *tuple.Tuple) error {
	hp.mutex.Lock()
	defer hp.mutex.Unlock()

	if t.Size() != hp.tupleSize {
		return dberror.Newf(dberror.ErrInvalidArgument, "AddTuple", "HeapPage",
			"tuple is %d bytes, page stores %d-byte tuples", t.Size(), hp.tupleSize)
	}

	slot, ok := hp.findFirstEmptySlot()
	if !ok {
		return fmt.Errorf("page %s has no empty slot", hp.pageID)
	}

	hp.setSlot(slot, true)
	hp.tuples[slot] = tuple.NewTuple(t.Data())
	rid := tuple.NewRecordID(hp.pageID, slot)
	hp.tuples[slot].RecordID = rid
	t.RecordID = tuple.NewRecordID(hp.pageID, slot)
	return nil
}

// DeleteTuple frees the slot named by the tuple's RecordID and clears it.
func (hp *HeapPage) DeleteTuple(t *tuple.Tuple) error {
	hp.mutex.Lock()
	defer hp.mutex.Unlock()

	rid := t.RecordID
	if rid == nil {
		return dberror.Newf(dberror.ErrInvalidArgument, "DeleteTuple", "HeapPage", "tuple has no record ID")
	}

	if rid.PageID != hp.pageID {
		return dberror.Newf(dberror.ErrInvalidArgument, "DeleteTuple", "HeapPage", "tuple %s is not on page %s", rid, hp.pageID)
	}

	if rid.TupleNum >= hp.numSlots || !hp.isSlotUsed(rid.TupleNum) {
		return dberror.Newf(dberror.ErrInvalidArgument, "DeleteTuple", "HeapPage", "slot %d is already empty", rid.TupleNum)
	}

	hp.setSlot(rid.TupleNum, false)
	hp.tuples[rid.TupleNum] = nil
	t.RecordID = nil
	return nil
}

// GetTuples returns copies of all stored tuples in slot order.
func (hp *HeapPage) GetTuples() []*tuple.Tuple {
	hp.mutex.RLock()
	defer hp.mutex.RUnlock()

	tuples := make([]*tuple.Tuple, 0, hp.numSlots)
	for _, t := range hp.tuples {
		if t != nil {
			tuples = append(tuples, t.Clone())
		}
	}
	return tuples
}

// GetTupleAt returns a copy of the tuple at the slot, or nil if the slot is empty.
func (hp *HeapPage) GetTupleAt(idx primitives.SlotID) (*tuple.Tuple, error) {
	hp.mutex.RLock()
	defer hp.mutex.RUnlock()

	if idx >= hp.numSlots {
		return nil, dberror.Newf(dberror.ErrInvalidArgument, "GetTupleAt", "HeapPage", "slot index %d out of bounds", idx)
	}
	if hp.tuples[idx] == nil {
		return nil, nil
	}
	return hp.tuples[idx].Clone(), nil
}

// NumSlots returns the slot capacity of the page.
func (hp *HeapPage) NumSlots() primitives.SlotID {
	return hp.numSlots
}

// GetNumEmptySlots returns the count of unoccupied tuple slots on this page.
func (hp *HeapPage) GetNumEmptySlots() primitives.SlotID {
	hp.mutex.RLock()
	defer hp.mutex.RUnlock()

	var empty primitives.SlotID
	for i := primitives.SlotID(0); i < hp.numSlots; i++ {
		if !hp.isSlotUsed(i) {
			empty++
		}
	}
	return empty
}

func (hp *HeapPage) parsePageData(data []byte) {
	copy(hp.header, data[:len(hp.header)])

	base := len(hp.header)
	for i := primitives.SlotID(0); i < hp.numSlots; i++ {
		if !hp.isSlotUsed(i) {
			continue
		}
		off := base + int(i)*hp.tupleSize
		t := tuple.NewTuple(data[off : off+hp.tupleSize])
		t.RecordID = tuple.NewRecordID(hp.pageID, i)
		hp.tuples[i] = t
	}
}

func (hp *HeapPage) isSlotUsed(i primitives.SlotID) bool {
	return hp.header[i/8]&(1<<(i%8)) != 0
}

func (hp *HeapPage) setSlot(i primitives.SlotID, used bool) {
	if used {
		hp.header[i/8] |= 1 << (i % 8)
	} else {
		hp.header[i/8] &^= 1 << (i % 8)
	}
}

func (hp *HeapPage) findFirstEmptySlot() (primitives.SlotID, bool) {
	for i := primitives.SlotID(0); i < hp.numSlots; i++ {
		if !hp.isSlotUsed(i) {
			return i, true
		}
	}
	return 0, false
}
