// Package tuple defines the record payload that table files store. The
// buffer pool never looks inside a tuple: it is an opaque fixed-width byte
// string whose width is fixed per table.
package tuple

import (
	"bytes"
	"fmt"
)

// Tuple is a single fixed-width record.
type Tuple struct {
	data     []byte
	RecordID *RecordID // Where this tuple is stored (nil until inserted)
}

// NewTuple creates a tuple holding a copy of data.
func NewTuple(data []byte) *Tuple {
	return &Tuple{data: bytes.Clone(data)}
}

// Data returns the tuple payload. Callers must not modify it.
func (t *Tuple) Data() []byte {
	return t.data
}

// Size returns the payload width in bytes.
func (t *Tuple) Size() int {
	return len(t.data)
}

// Equals compares payloads only; the record location is ignored.
func (t *Tuple) Equals(other *Tuple) bool {
	if t == nil || other == nil {
		return t == other
	}
	return bytes.Equal(t.data, other.data)
}

// Clone returns a deep copy, including the record location.
func (t *Tuple) Clone() *Tuple {
	c := NewTuple(t.data)
	if t.RecordID != nil {
		rid := *t.RecordID
		c.RecordID = &rid
	}
	return c
}

func (t *Tuple) String() string {
	return fmt.Sprintf("Tuple(%x @ %v)", t.data, t.RecordID)
}
