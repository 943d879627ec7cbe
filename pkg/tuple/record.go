package tuple

import (
	"fmt"

	"storecore/pkg/primitives"
)

// RecordID represents a reference to a specific tuple on a specific page
type RecordID struct {
	PageID   primitives.PageID // The page containing this tuple
	TupleNum primitives.SlotID // The slot number within the page
}

// NewRecordID creates a new RecordID
func NewRecordID(pageID primitives.PageID, tupleNum primitives.SlotID) *RecordID {
	return &RecordID{
		PageID:   pageID,
		TupleNum: tupleNum,
	}
}

func (rid *RecordID) Equals(other *RecordID) bool {
	if rid == nil || other == nil {
		return rid == other
	}
	return rid.PageID == other.PageID && rid.TupleNum == other.TupleNum
}

func (rid *RecordID) String() string {
	return fmt.Sprintf("RecordID(page=%s, tuple=%d)", rid.PageID.String(), rid.TupleNum)
}
