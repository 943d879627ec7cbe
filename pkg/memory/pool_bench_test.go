package memory

import (
	"context"
	"encoding/binary"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"storecore/pkg/primitives"
	"storecore/pkg/storage/page"
	"storecore/pkg/tuple"
)

func BenchmarkBufferPool_GetPageHit(b *testing.B) {
	f := newFixture(b, 4)
	pid := f.allocPages(b, 1)[0]
	tid := primitives.NewTransactionID()

	_, err := f.bp.GetPage(tid, pid, page.ReadOnly)
	require.NoError(b, err)

	for b.Loop() {
		if _, err := f.bp.GetPage(tid, pid, page.ReadOnly); err != nil {
			b.Fatal(err)
		}
	}
	require.NoError(b, f.bp.CommitTransaction(tid))
}

func BenchmarkBufferPool_InsertCommit(b *testing.B) {
	f := newFixture(b, 16)
	tableID := f.file.GetID()

	var seq uint64
	for b.Loop() {
		seq++
		data := make([]byte, testTupleSize)
		binary.LittleEndian.PutUint64(data, seq)

		tid := primitives.NewTransactionID()
		if err := f.bp.InsertTuple(tid, tableID, tuple.NewTuple(data)); err != nil {
			b.Fatal(err)
		}
		if err := f.bp.CommitTransaction(tid); err != nil {
			b.Fatal(err)
		}
	}
}

// Readers share every page, so no request ever blocks.
func BenchmarkBufferPool_ParallelReaders(b *testing.B) {
	f := newFixture(b, 8)
	pids := f.allocPages(b, 8)

	var next atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			tid := primitives.NewTransactionID()
			pid := pids[next.Add(1)%int64(len(pids))]
			if _, err := f.bp.GetPage(tid, pid, page.ReadOnly); err != nil {
				b.Error(err)
				return
			}
			if err := f.bp.CommitTransaction(tid); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

func BenchmarkBufferPool_FlushAllPages(b *testing.B) {
	f := newFixture(b, 32)
	pids := f.allocPages(b, 16)

	for i := 0; i < b.N; i++ {
		b.StopTimer()
		tid := primitives.NewTransactionID()
		for _, pid := range pids {
			p, err := f.bp.GetPage(tid, pid, page.ReadWrite)
			if err != nil {
				b.Fatal(err)
			}
			p.MarkDirty(true, tid)
		}
		b.StartTimer()

		if err := f.bp.FlushAllPages(context.Background()); err != nil {
			b.Fatal(err)
		}

		b.StopTimer()
		if err := f.bp.CommitTransaction(tid); err != nil {
			b.Fatal(err)
		}
		b.StartTimer()
	}
}
