package primitives

import (
	"fmt"
	"sync/atomic"
)

var transactionCounter atomic.Int64

// TransactionID is the opaque token identifying an active transaction.
// Transactions are compared by pointer identity; the numeric id is only
// used for logging and display.
type TransactionID struct {
	id int64
}

// NewTransactionID allocates a fresh, process-unique transaction ID.
func NewTransactionID() *TransactionID {
	return &TransactionID{
		id: transactionCounter.Add(1),
	}
}

// ID returns the numeric value of the transaction ID.
func (tid *TransactionID) ID() int64 {
	if tid == nil {
		return 0
	}
	return tid.id
}

func (tid *TransactionID) String() string {
	if tid == nil {
		return "TID-nil"
	}
	return fmt.Sprintf("TID-%d", tid.id)
}

// Equals reports whether both IDs denote the same transaction.
func (tid *TransactionID) Equals(other *TransactionID) bool {
	if tid == nil || other == nil {
		return tid == other
	}
	return tid.id == other.id
}
