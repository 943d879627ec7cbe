// Package memory implements the transactional buffer pool: a bounded page
// cache with no-steal eviction, page-level locking through the lock
// manager, and commit/abort by flushing or restoring before-images.
package memory

import (
	"fmt"
	"sync"

	"storecore/pkg/config"
	"storecore/pkg/primitives"
	"storecore/pkg/storage/page"
)

// PageCache defines the interface for caching database pages in memory.
// It is responsible ONLY for storing and retrieving pages in memory.
// It knows nothing about transactions, locks, or durability.
type PageCache interface {
	// Get retrieves a page and counts as a use for recency-based policies.
	Get(pid primitives.PageID) (page.Page, bool)

	// Peek retrieves a page without affecting eviction order.
	Peek(pid primitives.PageID) (page.Page, bool)

	// Put stores a page in the cache with the given page ID.
	// Returns an error if the page cannot be stored (e.g., cache is full).
	// If the page already exists, it is replaced.
	Put(pid primitives.PageID, p page.Page) error

	// Remove removes a page from the cache by its page ID.
	// Does nothing if the page doesn't exist.
	Remove(pid primitives.PageID)

	// Size returns the current number of pages in the cache.
	Size() int

	// Clear removes all pages from the cache.
	Clear()

	// GetAll returns every cached page ID in eviction-candidate order,
	// first candidate first.
	GetAll() []primitives.PageID
}

// NewPageCache returns a cache of the given capacity ordered by policy.
func NewPageCache(policy config.EvictionPolicy, capacity int) PageCache {
	if policy == config.EvictLRU {
		return NewLRUPageCache(capacity)
	}
	return NewFIFOPageCache(capacity)
}

// node represents a single node in the doubly linked list
type node struct {
	pid  primitives.PageID
	page page.Page
	prev *node
	next *node
}

// listCache is a map plus a doubly linked list with dummy head and tail.
// The node next to head is the newest, the node before tail the first
// eviction candidate. touch controls whether Get and replacing Put move a
// node to the front.
type listCache struct {
	maxSize int
	cache   map[primitives.PageID]*node
	head    *node
	tail    *node
	touch   bool
	mutex   sync.Mutex
}

func (c *listCache) init(maxSize int, touch bool) {
	c.head = &node{}
	c.tail = &node{}
	c.head.next = c.tail
	c.tail.prev = c.head

	c.maxSize = maxSize
	c.cache = make(map[primitives.PageID]*node)
	c.touch = touch
}

// LRUPageCache orders eviction candidates least recently used first.
// When the cache is at capacity Put of a new page fails; the buffer pool
// decides what to evict.
type LRUPageCache struct {
	listCache
}

// NewLRUPageCache creates a new LRU page cache with the specified maximum size.
func NewLRUPageCache(maxSize int) *LRUPageCache {
	c := &LRUPageCache{}
	c.init(maxSize, true)
	return c
}

// FIFOPageCache orders eviction candidates by insertion time. Lookups and
// replacements keep a page's original position.
type FIFOPageCache struct {
	listCache
}

// NewFIFOPageCache creates a new insertion-ordered page cache.
func NewFIFOPageCache(maxSize int) *FIFOPageCache {
	c := &FIFOPageCache{}
	c.init(maxSize, false)
	return c
}

func (c *listCache) addToFront(n *node) {
	n.prev = c.head
	n.next = c.head.next
	c.head.next.prev = n
	c.head.next = n
}

func (c *listCache) removeNode(n *node) {
	n.prev.next = n.next
	n.next.prev = n.prev
}

func (c *listCache) moveToFront(n *node) {
	c.removeNode(n)
	c.addToFront(n)
}

func (c *listCache) Get(pid primitives.PageID) (page.Page, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	n, exists := c.cache[pid]
	if !exists {
		return nil, false
	}
	if c.touch {
		c.moveToFront(n)
	}
	return n.page, true
}

func (c *listCache) Peek(pid primitives.PageID) (page.Page, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if n, exists := c.cache[pid]; exists {
		return n.page, true
	}
	return nil, false
}

func (c *listCache) Put(pid primitives.PageID, p page.Page) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if n, exists := c.cache[pid]; exists {
		n.page = p
		if c.touch {
			c.moveToFront(n)
		}
		return nil
	}

	if len(c.cache) >= c.maxSize {
		return fmt.Errorf("cache full (%d pages), cannot add page %s", c.maxSize, pid)
	}

	newNode := &node{pid: pid, page: p}
	c.cache[pid] = newNode
	c.addToFront(newNode)
	return nil
}

func (c *listCache) Remove(pid primitives.PageID) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if n, exists := c.cache[pid]; exists {
		delete(c.cache, pid)
		c.removeNode(n)
	}
}

func (c *listCache) Size() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.cache)
}

func (c *listCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.cache = make(map[primitives.PageID]*node)
	c.head.next = c.tail
	c.tail.prev = c.head
}

func (c *listCache) GetAll() []primitives.PageID {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	pids := make([]primitives.PageID, 0, len(c.cache))
	for current := c.tail.prev; current != c.head; current = current.prev {
		pids = append(pids, current.pid)
	}
	return pids
}
