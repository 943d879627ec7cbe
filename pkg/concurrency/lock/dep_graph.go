package lock

import (
	"sync"

	"storecore/pkg/primitives"
)

// DependencyGraph tracks wait-for relationships between transactions for deadlock detection.
// It maintains a directed graph where edges represent "waits-for" relationships - if transaction A
// is waiting for a lock held by transaction B, there will be an edge from A to B.
//
// A waiter's edge set is replaced wholesale on every blocked attempt and
// never merged across attempts.
type DependencyGraph struct {
	edges map[*primitives.TransactionID]map[*primitives.TransactionID]struct{}
	mutex sync.RWMutex
}

// NewDependencyGraph creates and initializes a new dependency graph for deadlock detection.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		edges: make(map[*primitives.TransactionID]map[*primitives.TransactionID]struct{}),
	}
}

// WaitFor replaces waiter's edges with holders and checks for a cycle
// through waiter in one critical section. On a cycle the waiter's edges are
// cleared again and true is returned; the waiter must not park.
func (dg *DependencyGraph) WaitFor(waiter *primitives.TransactionID, holders []*primitives.TransactionID) bool {
	dg.mutex.Lock()
	defer dg.mutex.Unlock()

	dg.setEdges(waiter, holders)
	if dg.hasCycleFrom(waiter) {
		delete(dg.edges, waiter)
		return true
	}
	return false
}

// SetEdges replaces waiter's edges without running a cycle check.
func (dg *DependencyGraph) SetEdges(waiter *primitives.TransactionID, holders []*primitives.TransactionID) {
	dg.mutex.Lock()
	defer dg.mutex.Unlock()
	dg.setEdges(waiter, holders)
}

func (dg *DependencyGraph) setEdges(waiter *primitives.TransactionID, holders []*primitives.TransactionID) {
	targets := make(map[*primitives.TransactionID]struct{}, len(holders))
	for _, h := range holders {
		if h != nil && h != waiter {
			targets[h] = struct{}{}
		}
	}

	if len(targets) == 0 {
		delete(dg.edges, waiter)
		return
	}
	dg.edges[waiter] = targets
}

// Clear empties tid's outgoing edges, typically once its lock is granted.
func (dg *DependencyGraph) Clear(tid *primitives.TransactionID) {
	dg.mutex.Lock()
	defer dg.mutex.Unlock()
	delete(dg.edges, tid)
}

// RemoveTransaction completely removes a transaction from the dependency graph.
// This removes all edges where the transaction appears as either a waiter or holder.
func (dg *DependencyGraph) RemoveTransaction(tid *primitives.TransactionID) {
	dg.mutex.Lock()
	defer dg.mutex.Unlock()

	delete(dg.edges, tid)
	for waiter, holders := range dg.edges {
		delete(holders, tid)
		if len(holders) == 0 {
			delete(dg.edges, waiter)
		}
	}
}

// HasCycleFrom reports whether a wait-for cycle is reachable from root.
func (dg *DependencyGraph) HasCycleFrom(root *primitives.TransactionID) bool {
	dg.mutex.RLock()
	defer dg.mutex.RUnlock()
	return dg.hasCycleFrom(root)
}

// hasCycleFrom is a depth-first search with an on-path set; revisiting a
// transaction already on the current path is a cycle.
func (dg *DependencyGraph) hasCycleFrom(root *primitives.TransactionID) bool {
	visited := make(map[*primitives.TransactionID]bool)
	onPath := make(map[*primitives.TransactionID]bool)

	var visit func(tid *primitives.TransactionID) bool
	visit = func(tid *primitives.TransactionID) bool {
		visited[tid] = true
		onPath[tid] = true

		for next := range dg.edges[tid] {
			if onPath[next] {
				return true
			}
			if !visited[next] && visit(next) {
				return true
			}
		}

		onPath[tid] = false
		return false
	}

	return visit(root)
}

// WaitingOn returns the transactions tid currently waits for.
func (dg *DependencyGraph) WaitingOn(tid *primitives.TransactionID) []*primitives.TransactionID {
	dg.mutex.RLock()
	defer dg.mutex.RUnlock()

	holders := make([]*primitives.TransactionID, 0, len(dg.edges[tid]))
	for h := range dg.edges[tid] {
		holders = append(holders, h)
	}
	return holders
}

// GetWaitingTransactions returns a list of all transactions that are currently
// waiting for resources held by other transactions. These are the transactions
// that have outgoing edges in the dependency graph.
func (dg *DependencyGraph) GetWaitingTransactions() []*primitives.TransactionID {
	dg.mutex.RLock()
	defer dg.mutex.RUnlock()

	waiters := make([]*primitives.TransactionID, 0, len(dg.edges))
	for tid := range dg.edges {
		waiters = append(waiters, tid)
	}
	return waiters
}
