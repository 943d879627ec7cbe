package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storecore/pkg/config"
	"storecore/pkg/primitives"
	"storecore/pkg/storage/heap"
	"storecore/pkg/storage/page"
)

func cachePage(t *testing.T, pageNo int) (primitives.PageID, page.Page) {
	t.Helper()
	pid := primitives.NewPageID(1, primitives.PageNumber(pageNo))
	p, err := heap.NewEmptyHeapPage(pid, testPageSize, testTupleSize)
	require.NoError(t, err)
	return pid, p
}

func TestNewPageCache_Policy(t *testing.T) {
	assert.IsType(t, &FIFOPageCache{}, NewPageCache(config.EvictFIFO, 4))
	assert.IsType(t, &LRUPageCache{}, NewPageCache(config.EvictLRU, 4))
	assert.IsType(t, &FIFOPageCache{}, NewPageCache("", 4))
}

func TestPageCache_PutGetRemove(t *testing.T) {
	for _, policy := range []config.EvictionPolicy{config.EvictFIFO, config.EvictLRU} {
		t.Run(string(policy), func(t *testing.T) {
			c := NewPageCache(policy, 2)
			pid0, p0 := cachePage(t, 0)
			pid1, p1 := cachePage(t, 1)
			pid2, p2 := cachePage(t, 2)

			require.NoError(t, c.Put(pid0, p0))
			require.NoError(t, c.Put(pid1, p1))
			assert.Error(t, c.Put(pid2, p2), "put beyond capacity fails")

			got, ok := c.Get(pid0)
			require.True(t, ok)
			assert.Same(t, p0, got)

			_, replacement := cachePage(t, 0)
			require.NoError(t, c.Put(pid0, replacement), "replacing a resident page never fails")
			got, _ = c.Peek(pid0)
			assert.Same(t, replacement, got)
			assert.Equal(t, 2, c.Size())

			c.Remove(pid1)
			c.Remove(pid1)
			_, ok = c.Peek(pid1)
			assert.False(t, ok)
			require.NoError(t, c.Put(pid2, p2))

			c.Clear()
			assert.Zero(t, c.Size())
			assert.Empty(t, c.GetAll())
		})
	}
}

func TestFIFOPageCache_Order(t *testing.T) {
	c := NewFIFOPageCache(3)
	pid0, p0 := cachePage(t, 0)
	pid1, p1 := cachePage(t, 1)
	pid2, p2 := cachePage(t, 2)

	require.NoError(t, c.Put(pid0, p0))
	require.NoError(t, c.Put(pid1, p1))
	require.NoError(t, c.Put(pid2, p2))

	c.Get(pid0)
	require.NoError(t, c.Put(pid0, p0))

	assert.Equal(t, []primitives.PageID{pid0, pid1, pid2}, c.GetAll(), "lookups and replacements keep insertion order")
}

func TestLRUPageCache_Order(t *testing.T) {
	c := NewLRUPageCache(3)
	pid0, p0 := cachePage(t, 0)
	pid1, p1 := cachePage(t, 1)
	pid2, p2 := cachePage(t, 2)

	require.NoError(t, c.Put(pid0, p0))
	require.NoError(t, c.Put(pid1, p1))
	require.NoError(t, c.Put(pid2, p2))

	c.Get(pid0)
	assert.Equal(t, []primitives.PageID{pid1, pid2, pid0}, c.GetAll())

	c.Peek(pid1)
	assert.Equal(t, []primitives.PageID{pid1, pid2, pid0}, c.GetAll(), "peek does not count as a use")

	require.NoError(t, c.Put(pid1, p1))
	assert.Equal(t, []primitives.PageID{pid2, pid0, pid1}, c.GetAll())
}
