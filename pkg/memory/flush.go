package memory

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"storecore/pkg/primitives"
	"storecore/pkg/storage/page"
)

// FlushAllPages writes every dirty resident page to its table file. Pages
// of different tables are written concurrently; the total write rate is
// bounded by the configured FlushBytesPerSec.
//
// It is meant for checkpoints and shutdown. Calling it while transactions
// are running makes their uncommitted changes durable.
func (bp *BufferPool) FlushAllPages(ctx context.Context) error {
	byTable := bp.dirtyPagesByTable()
	if len(byTable) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for tableID, pages := range byTable {
		g.Go(func() error {
			return bp.flushTable(gctx, tableID, pages)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("flush all pages: %w", err)
	}
	bp.log().Debug("flushed all dirty pages", "tables", len(byTable))
	return nil
}

func (bp *BufferPool) dirtyPagesByTable() map[primitives.TableID][]page.Page {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()

	byTable := make(map[primitives.TableID][]page.Page)
	for _, pid := range bp.cache.GetAll() {
		p, ok := bp.cache.Peek(pid)
		if !ok || p.IsDirty() == nil {
			continue
		}
		byTable[pid.GetTableID()] = append(byTable[pid.GetTableID()], p)
	}
	return byTable
}

func (bp *BufferPool) flushTable(ctx context.Context, tableID primitives.TableID, pages []page.Page) error {
	for _, p := range pages {
		if bp.limiter != nil {
			if err := bp.limiter.WaitN(ctx, bp.cfg.PageSize); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		if p.IsDirty() == nil {
			continue
		}
		if err := bp.writePage(p); err != nil {
			return fmt.Errorf("table %d: %w", tableID, err)
		}
	}
	return nil
}

// Close flushes every dirty page and closes all table files.
func (bp *BufferPool) Close() error {
	flushErr := bp.FlushAllPages(context.Background())

	bp.mutex.Lock()
	bp.cache.Clear()
	bp.mutex.Unlock()

	return errors.Join(flushErr, bp.tables.Clear())
}
