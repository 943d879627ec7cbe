package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"storecore/pkg/config"
	dberror "storecore/pkg/error"
	"storecore/pkg/logging"
	"storecore/pkg/memory"
	"storecore/pkg/metrics"
	"storecore/pkg/primitives"
	"storecore/pkg/storage/heap"
	"storecore/pkg/tuple"
)

const (
	workloadTable = "events"
	tupleSize     = 16
)

// Simulator drives a small insert workload through the buffer pool so that
// the exported metrics move. Commit forces pages to disk, so the workload
// never needs a background flush.
type Simulator struct {
	pool    *memory.BufferPool
	tableID primitives.TableID
	workers int
	seq     atomic.Uint64

	committed atomic.Int64
	aborted   atomic.Int64

	group *errgroup.Group
}

func NewSimulator(pool *memory.BufferPool, tableID primitives.TableID, workers int) *Simulator {
	return &Simulator{pool: pool, tableID: tableID, workers: workers}
}

// runTransaction inserts one tuple and commits it, or aborts one time in
// four. Any failure aborts the transaction before returning.
func (s *Simulator) runTransaction(rng *rand.Rand) error {
	tid := s.pool.Registry().Begin().ID

	data := make([]byte, tupleSize)
	binary.LittleEndian.PutUint64(data, rng.Uint64())
	binary.LittleEndian.PutUint64(data[8:], s.seq.Add(1))

	err := s.pool.InsertTuple(tid, s.tableID, tuple.NewTuple(data))
	if err == nil && rng.IntN(4) != 0 {
		if err = s.pool.CommitTransaction(tid); err == nil {
			s.committed.Add(1)
			return nil
		}
	}

	s.aborted.Add(1)
	if abortErr := s.pool.AbortTransaction(tid); abortErr != nil {
		return errors.Join(err, abortErr)
	}
	return err
}

// Start runs the workload every interval until ctx is canceled. A worker
// finishes its current transaction before it stops.
func (s *Simulator) Start(ctx context.Context, interval time.Duration) {
	s.group = &errgroup.Group{}

	for w := range s.workers {
		seed := uint64(w)
		s.group.Go(func() error {
			rng := rand.New(rand.NewPCG(seed, uint64(time.Now().UnixNano())))
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					err := s.runTransaction(rng)
					switch {
					case err == nil:
					case errors.Is(err, dberror.ErrTransactionAborted):
						logging.Debug("simulated transaction chosen as deadlock victim")
					case dberror.IsCategory(err, dberror.ErrCategoryTransient):
						logging.Debug("simulated transaction aborted, retry later", "error", err)
					default:
						logging.Warn("simulated transaction failed", "error", err)
					}
				}
			}
		})
	}
}

// Wait blocks until every worker started by Start has returned.
func (s *Simulator) Wait() error {
	if s.group == nil {
		return nil
	}
	return s.group.Wait()
}

// Committed returns the number of transactions that committed.
func (s *Simulator) Committed() int64 { return s.committed.Load() }

// Aborted returns the number of transactions that were rolled back.
func (s *Simulator) Aborted() int64 { return s.aborted.Load() }

func loadConfig() (config.Config, error) {
	path := os.Getenv("STORECORE_CONFIG")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func main() {
	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "/app/data"
	}

	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		metricsPort = "8080"
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logging.Init(cfg.Logging); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer func() { _ = logging.Close() }()

	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	hf, err := heap.NewHeapFile(primitives.Filepath(filepath.Join(dataDir, workloadTable+".dat")), tupleSize, cfg.PageSize)
	if err != nil {
		log.Fatalf("Failed to open table file: %v", err)
	}

	tables := memory.NewTableManager()
	if err := tables.AddTable(hf, workloadTable); err != nil {
		log.Fatalf("Failed to register table: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	recorder, err := metrics.NewPrometheusRecorder("storecore", reg)
	if err != nil {
		log.Fatalf("Failed to register metrics: %v", err)
	}

	pool, err := memory.NewBufferPool(cfg, tables, memory.WithRecorder(recorder))
	if err != nil {
		log.Fatalf("Failed to create buffer pool: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim := NewSimulator(pool, hf.GetID(), 4)
	sim.Start(ctx, 200*time.Millisecond)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})

	srv := &http.Server{
		Addr:         ":" + metricsPort,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logging.Info("metrics exporter listening", "addr", srv.Addr, "data_dir", dataDir)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Metrics server failed: %v", err)
	}

	stop()
	if err := sim.Wait(); err != nil {
		logging.Error("workload stopped with error", "error", err)
	}

	logging.Info("workload stopped", "committed", sim.Committed(), "aborted", sim.Aborted())
	if err := pool.Close(); err != nil {
		logging.Error("failed to close buffer pool", "error", err)
	}
}
