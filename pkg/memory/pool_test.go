package memory

import (
	"bytes"
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"storecore/pkg/concurrency/transaction"
	"storecore/pkg/config"
	dberror "storecore/pkg/error"
	"storecore/pkg/metrics"
	"storecore/pkg/primitives"
	"storecore/pkg/storage/heap"
	"storecore/pkg/storage/page"
	"storecore/pkg/tuple"
)

const (
	testPageSize  = 128
	testTupleSize = 8
	waitTimeout   = 2 * time.Second
)

type fixture struct {
	bp   *BufferPool
	file *heap.HeapFile
	dir  string
}

func testConfig(capacity int) config.Config {
	cfg := config.Default()
	cfg.PageSize = testPageSize
	cfg.Capacity = capacity
	return cfg
}

func newFixtureWithConfig(t testing.TB, cfg config.Config, opts ...Option) *fixture {
	t.Helper()
	dir := t.TempDir()
	hf := newHeapFile(t, dir, "table.dat")

	tm := NewTableManager()
	require.NoError(t, tm.AddTable(hf, "table"))

	bp, err := NewBufferPool(cfg, tm, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bp.Close() })

	return &fixture{bp: bp, file: hf, dir: dir}
}

func newFixture(t testing.TB, capacity int, opts ...Option) *fixture {
	return newFixtureWithConfig(t, testConfig(capacity), opts...)
}

// allocPages extends the table file with n empty pages.
func (f *fixture) allocPages(t testing.TB, n int) []primitives.PageID {
	t.Helper()
	pids := make([]primitives.PageID, n)
	for i := range pids {
		pageNo, err := f.file.AllocateNewPage()
		require.NoError(t, err)
		pids[i] = primitives.NewPageID(f.file.GetID(), pageNo)
	}
	return pids
}

// dirtyPage adds a tuple to pid under tid through the pool.
func (f *fixture) dirtyPage(t *testing.T, tid *primitives.TransactionID, pid primitives.PageID, b byte) {
	t.Helper()
	p, err := f.bp.GetPage(tid, pid, page.ReadWrite)
	require.NoError(t, err)
	require.NoError(t, p.(*heap.HeapPage).AddTuple(tup(b)))
	require.NoError(t, f.bp.applyMutation(tid, []page.Page{p}))
}

// diskTuples reads pid straight from the table file.
func (f *fixture) diskTuples(t *testing.T, pid primitives.PageID) []*tuple.Tuple {
	t.Helper()
	p, err := f.file.ReadPage(pid)
	require.NoError(t, err)
	return p.(*heap.HeapPage).GetTuples()
}

func tup(b byte) *tuple.Tuple {
	return tuple.NewTuple(bytes.Repeat([]byte{b}, testTupleSize))
}

func firstBytes(tuples []*tuple.Tuple) []byte {
	out := make([]byte, 0, len(tuples))
	for _, tp := range tuples {
		out = append(out, tp.Data()[0])
	}
	return out
}

type countingRecorder struct {
	metrics.NoopRecorder
	hits, misses atomic.Int64
}

func (r *countingRecorder) RecordHit()  { r.hits.Add(1) }
func (r *countingRecorder) RecordMiss() { r.misses.Add(1) }

func awaitErr(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("operation did not complete")
		return nil
	}
}

func TestNewBufferPool_Validation(t *testing.T) {
	_, err := NewBufferPool(testConfig(0), NewTableManager())
	assert.ErrorIs(t, err, dberror.ErrInvalidArgument)

	_, err = NewBufferPool(testConfig(4), nil)
	assert.ErrorIs(t, err, dberror.ErrInvalidArgument)
}

func TestBufferPool_GetPageCachesPage(t *testing.T) {
	rec := &countingRecorder{}
	f := newFixture(t, 4, WithRecorder(rec))
	pids := f.allocPages(t, 1)
	tid := primitives.NewTransactionID()

	p1, err := f.bp.GetPage(tid, pids[0], page.ReadOnly)
	require.NoError(t, err)
	p2, err := f.bp.GetPage(tid, pids[0], page.ReadOnly)
	require.NoError(t, err)

	assert.Same(t, p1, p2)
	assert.Equal(t, 1, f.bp.ResidentPages())
	assert.True(t, f.bp.HoldsLock(tid, pids[0]))
	assert.Equal(t, int64(1), rec.misses.Load())
	assert.Equal(t, int64(1), rec.hits.Load())
}

func TestBufferPool_GetPageErrors(t *testing.T) {
	f := newFixture(t, 4)
	tid := primitives.NewTransactionID()

	_, err := f.bp.GetPage(nil, primitives.NewPageID(f.file.GetID(), 0), page.ReadOnly)
	assert.ErrorIs(t, err, dberror.ErrInvalidArgument)

	_, err = f.bp.GetPage(tid, primitives.NewPageID(f.file.GetID(), 7), page.ReadOnly)
	assert.ErrorIs(t, err, dberror.ErrInvalidPage)

	_, err = f.bp.GetPage(tid, primitives.NewPageID(f.file.GetID()+1, 0), page.ReadOnly)
	assert.ErrorIs(t, err, dberror.ErrTableNotFound)

	assert.Zero(t, f.bp.ResidentPages())
	require.NoError(t, f.bp.AbortTransaction(tid))
}

// Capacity 2; T1 dirties pages A and B; fetching C must fail.
func TestBufferPool_AllDirtyFetchFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := metrics.NewPrometheusRecorder("test", reg)
	require.NoError(t, err)

	f := newFixture(t, 2, WithRecorder(rec))
	pids := f.allocPages(t, 3)
	t1 := primitives.NewTransactionID()

	f.dirtyPage(t, t1, pids[0], 0xA)
	f.dirtyPage(t, t1, pids[1], 0xB)

	_, err = f.bp.GetPage(t1, pids[2], page.ReadOnly)
	require.ErrorIs(t, err, dberror.ErrBufferPoolFull)
	assert.True(t, dberror.MustAbort(err))
	assert.Equal(t, 2, f.bp.ResidentPages())

	expected := `
# HELP test_bufferpool_evictions_total Eviction attempts by outcome
# TYPE test_bufferpool_evictions_total counter
test_bufferpool_evictions_total{status="all_dirty"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_bufferpool_evictions_total"))

	require.NoError(t, f.bp.AbortTransaction(t1))
	_, err = f.bp.GetPage(primitives.NewTransactionID(), pids[2], page.ReadOnly)
	assert.NoError(t, err, "aborted pages are clean and evictable")
}

func TestBufferPool_EvictsCleanPageOnly(t *testing.T) {
	f := newFixture(t, 2)
	pids := f.allocPages(t, 3)
	t1 := primitives.NewTransactionID()

	f.dirtyPage(t, t1, pids[0], 1)
	_, err := f.bp.GetPage(t1, pids[1], page.ReadOnly)
	require.NoError(t, err)
	_, err = f.bp.GetPage(t1, pids[2], page.ReadOnly)
	require.NoError(t, err)

	_, dirtyResident := f.bp.cache.Peek(pids[0])
	_, cleanResident := f.bp.cache.Peek(pids[1])
	assert.True(t, dirtyResident)
	assert.False(t, cleanResident)
	assert.Equal(t, 2, f.bp.ResidentPages())
}

func TestBufferPool_EvictionPolicies(t *testing.T) {
	tests := []struct {
		policy  config.EvictionPolicy
		evicted int
	}{
		{config.EvictFIFO, 0},
		{config.EvictLRU, 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			cfg := testConfig(2)
			cfg.EvictionPolicy = tt.policy
			f := newFixtureWithConfig(t, cfg)
			pids := f.allocPages(t, 3)
			tid := primitives.NewTransactionID()

			for _, i := range []int{0, 1, 0, 2} {
				_, err := f.bp.GetPage(tid, pids[i], page.ReadOnly)
				require.NoError(t, err)
			}

			_, resident := f.bp.cache.Peek(pids[tt.evicted])
			assert.False(t, resident)
			assert.Equal(t, 2, f.bp.ResidentPages())
		})
	}
}

func TestBufferPool_ConcurrentLoadsShareOneRead(t *testing.T) {
	rec := &countingRecorder{}
	f := newFixture(t, 4, WithRecorder(rec))
	pids := f.allocPages(t, 1)

	const readers = 16
	results := make([]page.Page, readers)
	var g errgroup.Group
	for i := range readers {
		g.Go(func() error {
			p, err := f.bp.GetPage(primitives.NewTransactionID(), pids[0], page.ReadOnly)
			results[i] = p
			return err
		})
	}
	require.NoError(t, g.Wait())

	for _, p := range results {
		assert.Same(t, results[0], p)
	}
	assert.Equal(t, int64(1), rec.misses.Load())
	assert.Equal(t, 1, f.bp.ResidentPages())
}

func TestBufferPool_DiscardPage(t *testing.T) {
	f := newFixture(t, 4)
	pids := f.allocPages(t, 1)
	tid := primitives.NewTransactionID()

	f.dirtyPage(t, tid, pids[0], 9)
	f.bp.DiscardPage(pids[0])
	assert.Zero(t, f.bp.ResidentPages())

	p, err := f.bp.GetPage(tid, pids[0], page.ReadOnly)
	require.NoError(t, err)
	assert.Empty(t, p.(*heap.HeapPage).GetTuples(), "discarded changes are gone")
	require.NoError(t, f.bp.AbortTransaction(tid))
}

// T1 holds shared on P; T2 blocks on exclusive; T1 completes; T2 proceeds.
func TestBufferPool_WriterWaitsForReader(t *testing.T) {
	f := newFixture(t, 4)
	pids := f.allocPages(t, 1)
	t1, t2 := primitives.NewTransactionID(), primitives.NewTransactionID()

	_, err := f.bp.GetPage(t1, pids[0], page.ReadOnly)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := f.bp.GetPage(t2, pids[0], page.ReadWrite)
		done <- err
	}()

	require.Eventually(t, func() bool {
		return len(f.bp.LockManager().DependencyGraph().WaitingOn(t2)) == 1
	}, waitTimeout, time.Millisecond)
	assert.False(t, f.bp.HoldsLock(t2, pids[0]))

	require.NoError(t, f.bp.CommitTransaction(t1))
	require.NoError(t, awaitErr(t, done))
	assert.True(t, f.bp.LockManager().HoldsExclusive(t2, pids[0]))
	require.NoError(t, f.bp.CommitTransaction(t2))
}

// T1 waits on P held by T2; T2 then waits on Q held by T1 and is aborted.
func TestBufferPool_DeadlockVictimAborts(t *testing.T) {
	f := newFixture(t, 4)
	pids := f.allocPages(t, 2)
	p, q := pids[0], pids[1]
	t1, t2 := primitives.NewTransactionID(), primitives.NewTransactionID()

	f.dirtyPage(t, t2, p, 2)
	f.dirtyPage(t, t1, q, 1)

	done := make(chan error, 1)
	go func() {
		_, err := f.bp.GetPage(t1, p, page.ReadWrite)
		done <- err
	}()
	require.Eventually(t, func() bool {
		return len(f.bp.LockManager().DependencyGraph().WaitingOn(t1)) == 1
	}, waitTimeout, time.Millisecond)

	_, err := f.bp.GetPage(t2, q, page.ReadOnly)
	require.ErrorIs(t, err, dberror.ErrTransactionAborted)
	require.NoError(t, f.bp.AbortTransaction(t2))

	require.NoError(t, awaitErr(t, done))
	require.NoError(t, f.bp.CommitTransaction(t1))

	assert.Equal(t, []byte{1}, firstBytes(f.diskTuples(t, q)))
	assert.Empty(t, f.diskTuples(t, p), "the victim's change was rolled back")
}

func TestBufferPool_InsertAndCommitIsDurable(t *testing.T) {
	f := newFixture(t, 8)
	tid := primitives.NewTransactionID()

	slots := int(heap.SlotsPerPage(testPageSize, testTupleSize))
	for i := range slots + 2 {
		require.NoError(t, f.bp.InsertTuple(tid, f.file.GetID(), tup(byte(i))))
	}

	ctx, err := f.bp.Registry().Get(tid)
	require.NoError(t, err)
	assert.Len(t, ctx.GetDirtyPages(), 2)

	numPages, err := f.file.NumPages()
	require.NoError(t, err)
	require.Equal(t, primitives.PageNumber(2), numPages)
	assert.Empty(t, f.diskTuples(t, primitives.NewPageID(f.file.GetID(), 0)), "nothing is written before commit")

	require.NoError(t, f.bp.CommitTransaction(tid))

	first := f.diskTuples(t, primitives.NewPageID(f.file.GetID(), 0))
	second := f.diskTuples(t, primitives.NewPageID(f.file.GetID(), 1))
	assert.Len(t, first, slots)
	assert.Len(t, second, 2)

	for _, pid := range []primitives.PageID{primitives.NewPageID(f.file.GetID(), 0), primitives.NewPageID(f.file.GetID(), 1)} {
		p, ok := f.bp.cache.Peek(pid)
		require.True(t, ok)
		assert.Nil(t, p.IsDirty())
		assert.Equal(t, p.GetPageData(), p.GetBeforeImage().GetPageData(), "before-image rebased on commit")
		assert.False(t, f.bp.LockManager().IsPageLocked(pid))
	}
	assert.Zero(t, f.bp.Registry().Count())
}

// T1 mutates P and aborts; a later reader sees P's original content.
func TestBufferPool_AbortRestoresBeforeImage(t *testing.T) {
	f := newFixture(t, 4)
	t0 := primitives.NewTransactionID()
	require.NoError(t, f.bp.InsertTuple(t0, f.file.GetID(), tup(0x10)))
	require.NoError(t, f.bp.CommitTransaction(t0))

	pid := primitives.NewPageID(f.file.GetID(), 0)
	t1 := primitives.NewTransactionID()
	require.NoError(t, f.bp.InsertTuple(t1, f.file.GetID(), tup(0x20)))

	stored, err := f.bp.GetPage(t1, pid, page.ReadOnly)
	require.NoError(t, err)
	require.Len(t, stored.(*heap.HeapPage).GetTuples(), 2)

	require.NoError(t, f.bp.AbortTransaction(t1))
	assert.False(t, f.bp.LockManager().IsPageLocked(pid))

	t2 := primitives.NewTransactionID()
	p, err := f.bp.GetPage(t2, pid, page.ReadOnly)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x10}, firstBytes(p.(*heap.HeapPage).GetTuples()))
	assert.Nil(t, p.IsDirty())
	assert.Equal(t, []byte{0x10}, firstBytes(f.diskTuples(t, pid)), "abort performs no I/O")
	require.NoError(t, f.bp.CommitTransaction(t2))
}

func TestBufferPool_DeleteAndUpdate(t *testing.T) {
	f := newFixture(t, 4)
	t0 := primitives.NewTransactionID()
	a, b := tup(0xA), tup(0xB)
	require.NoError(t, f.bp.InsertTuple(t0, f.file.GetID(), a))
	require.NoError(t, f.bp.InsertTuple(t0, f.file.GetID(), b))
	require.NoError(t, f.bp.CommitTransaction(t0))

	t1 := primitives.NewTransactionID()
	require.NoError(t, f.bp.DeleteTuple(t1, a))
	require.NoError(t, f.bp.UpdateTuple(t1, b, tup(0xC)))
	require.NoError(t, f.bp.CommitTransaction(t1))

	got := firstBytes(f.diskTuples(t, primitives.NewPageID(f.file.GetID(), 0)))
	assert.Equal(t, []byte{0xC}, got)

	assert.ErrorIs(t, f.bp.DeleteTuple(primitives.NewTransactionID(), tup(1)), dberror.ErrInvalidArgument)
	assert.ErrorIs(t, f.bp.InsertTuple(primitives.NewTransactionID(), 999, tup(1)), dberror.ErrTableNotFound)
}

func TestBufferPool_CommitWriteFailureKeepsLocks(t *testing.T) {
	f := newFixture(t, 4)
	pids := f.allocPages(t, 1)
	tid := primitives.NewTransactionID()
	f.dirtyPage(t, tid, pids[0], 5)

	require.NoError(t, f.file.Close())

	err := f.bp.CommitTransaction(tid)
	require.ErrorIs(t, err, dberror.ErrIOFailure)
	assert.True(t, dberror.IsCategory(err, dberror.ErrCategorySystem))
	assert.True(t, f.bp.LockManager().HoldsExclusive(tid, pids[0]))
	assert.Equal(t, 1, f.bp.Registry().Count())

	ctx, err := f.bp.Registry().Get(tid)
	require.NoError(t, err)
	assert.Equal(t, transaction.TxActive, ctx.GetStatus(), "failed commit returns to active")

	require.NoError(t, f.bp.AbortTransaction(tid))
	assert.False(t, f.bp.HoldsLock(tid, pids[0]))
	assert.Zero(t, f.bp.Registry().Count())

	p, ok := f.bp.cache.Peek(pids[0])
	require.True(t, ok)
	assert.Nil(t, p.IsDirty())
	assert.Empty(t, p.(*heap.HeapPage).GetTuples())
}

func TestBufferPool_DirtyWithoutExclusiveLockPanics(t *testing.T) {
	f := newFixture(t, 4)
	pids := f.allocPages(t, 1)
	tid := primitives.NewTransactionID()
	f.dirtyPage(t, tid, pids[0], 1)

	f.bp.ReleasePage(tid, pids[0])
	assert.False(t, f.bp.HoldsLock(tid, pids[0]))

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.ErrorIs(t, err, dberror.ErrInvariantViolation)
		f.bp.DiscardPage(pids[0])
	}()
	_ = f.bp.CommitTransaction(tid)
}

func TestBufferPool_FlushPages(t *testing.T) {
	f := newFixture(t, 4)
	pids := f.allocPages(t, 1)
	tid := primitives.NewTransactionID()
	f.dirtyPage(t, tid, pids[0], 7)

	require.NoError(t, f.bp.FlushPages(tid))
	assert.Equal(t, []byte{7}, firstBytes(f.diskTuples(t, pids[0])))
	assert.True(t, f.bp.LockManager().HoldsExclusive(tid, pids[0]), "flushing keeps locks")

	p, _ := f.bp.cache.Peek(pids[0])
	assert.Nil(t, p.IsDirty())
	require.NoError(t, f.bp.CommitTransaction(tid))
	assert.NoError(t, f.bp.FlushPages(primitives.NewTransactionID()))
}

func TestBufferPool_FlushAllPages(t *testing.T) {
	cfg := testConfig(8)
	cfg.FlushBytesPerSec = 1 << 20
	f := newFixtureWithConfig(t, cfg)

	other := newHeapFile(t, f.dir, "other.dat")
	require.NoError(t, f.bp.Tables().AddTable(other, "other"))

	tid := primitives.NewTransactionID()
	require.NoError(t, f.bp.InsertTuple(tid, f.file.GetID(), tup(1)))
	require.NoError(t, f.bp.InsertTuple(tid, other.GetID(), tup(2)))

	require.NoError(t, f.bp.FlushAllPages(context.Background()))

	assert.Equal(t, []byte{1}, firstBytes(f.diskTuples(t, primitives.NewPageID(f.file.GetID(), 0))))
	p, err := other.ReadPage(primitives.NewPageID(other.GetID(), 0))
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, firstBytes(p.(*heap.HeapPage).GetTuples()))
	assert.Empty(t, f.bp.dirtyPagesByTable())

	require.NoError(t, f.bp.CommitTransaction(tid))
}

func TestBufferPool_FlushAllPagesCanceled(t *testing.T) {
	f := newFixture(t, 4)
	pids := f.allocPages(t, 1)
	tid := primitives.NewTransactionID()
	f.dirtyPage(t, tid, pids[0], 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, f.bp.FlushAllPages(ctx), context.Canceled)
	assert.Empty(t, f.diskTuples(t, pids[0]))
	require.NoError(t, f.bp.AbortTransaction(tid))
}

func TestBufferPool_Close(t *testing.T) {
	f := newFixture(t, 4)
	tid := primitives.NewTransactionID()
	require.NoError(t, f.bp.InsertTuple(tid, f.file.GetID(), tup(4)))

	require.NoError(t, f.bp.Close())
	assert.Zero(t, f.bp.ResidentPages())
	assert.Empty(t, f.bp.Tables().GetAllTableNames())

	reopened := newHeapFile(t, f.dir, "table.dat")
	t.Cleanup(func() { _ = reopened.Close() })
	p, err := reopened.ReadPage(primitives.NewPageID(reopened.GetID(), 0))
	require.NoError(t, err)
	assert.Equal(t, []byte{4}, firstBytes(p.(*heap.HeapPage).GetTuples()))
}
