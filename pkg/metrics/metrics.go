// Package metrics exposes buffer pool and lock manager counters.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives operational events from the buffer pool and lock
// manager. Implementations must be safe for concurrent use.
type Recorder interface {
	// RecordHit is called when a requested page is already resident.
	RecordHit()

	// RecordMiss is called when a page has to be loaded from its table file.
	RecordMiss()

	// RecordEviction is called when a clean page is dropped to make room.
	RecordEviction()

	// RecordEvictionFailure is called when every resident page is dirty.
	RecordEvictionFailure()

	// RecordLockWait is called once a blocked lock request finishes,
	// granted or aborted, with the time spent parked.
	RecordLockWait(d time.Duration)

	// RecordDeadlock is called when a lock request closes a wait-for cycle.
	RecordDeadlock()

	// RecordCommit and RecordAbort are called on transaction completion.
	RecordCommit()
	RecordAbort()

	// RecordFlush is called for every page written back to its table file.
	RecordFlush(bytes int)

	// SetResidentPages reports the current cache size.
	SetResidentPages(n int)
}

// NoopRecorder discards all events.
type NoopRecorder struct{}

func (NoopRecorder) RecordHit()                   {}
func (NoopRecorder) RecordMiss()                  {}
func (NoopRecorder) RecordEviction()              {}
func (NoopRecorder) RecordEvictionFailure()       {}
func (NoopRecorder) RecordLockWait(time.Duration) {}
func (NoopRecorder) RecordDeadlock()              {}
func (NoopRecorder) RecordCommit()                {}
func (NoopRecorder) RecordAbort()                 {}
func (NoopRecorder) RecordFlush(int)              {}
func (NoopRecorder) SetResidentPages(int)         {}

// PrometheusRecorder implements Recorder with Prometheus collectors.
type PrometheusRecorder struct {
	lookups       *prometheus.CounterVec
	evictions     *prometheus.CounterVec
	lockWait      prometheus.Histogram
	deadlocks     prometheus.Counter
	transactions  *prometheus.CounterVec
	flushedPages  prometheus.Counter
	flushedBytes  prometheus.Counter
	residentPages prometheus.Gauge
}

// NewPrometheusRecorder creates the collectors under the given namespace and
// registers them with reg. A nil reg leaves them unregistered.
func NewPrometheusRecorder(namespace string, reg prometheus.Registerer) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bufferpool",
			Name:      "page_lookups_total",
			Help:      "Page fetches by cache outcome",
		}, []string{"result"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bufferpool",
			Name:      "evictions_total",
			Help:      "Eviction attempts by outcome",
		}, []string{"status"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "lock",
			Name:      "wait_seconds",
			Help:      "Time blocked lock requests spent waiting",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		deadlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lock",
			Name:      "deadlocks_total",
			Help:      "Lock requests aborted because of a wait-for cycle",
		}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bufferpool",
			Name:      "transactions_total",
			Help:      "Completed transactions by outcome",
		}, []string{"outcome"}),
		flushedPages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bufferpool",
			Name:      "flushed_pages_total",
			Help:      "Pages written back to table files",
		}),
		flushedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bufferpool",
			Name:      "flushed_bytes_total",
			Help:      "Bytes written back to table files",
		}),
		residentPages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bufferpool",
			Name:      "resident_pages",
			Help:      "Pages currently held in the cache",
		}),
	}

	if reg != nil {
		for _, c := range r.collectors() {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return r, nil
}

func (r *PrometheusRecorder) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		r.lookups, r.evictions, r.lockWait, r.deadlocks,
		r.transactions, r.flushedPages, r.flushedBytes, r.residentPages,
	}
}

func (r *PrometheusRecorder) RecordHit()  { r.lookups.WithLabelValues("hit").Inc() }
func (r *PrometheusRecorder) RecordMiss() { r.lookups.WithLabelValues("miss").Inc() }

func (r *PrometheusRecorder) RecordEviction() { r.evictions.WithLabelValues("evicted").Inc() }

func (r *PrometheusRecorder) RecordEvictionFailure() {
	r.evictions.WithLabelValues("all_dirty").Inc()
}

func (r *PrometheusRecorder) RecordLockWait(d time.Duration) { r.lockWait.Observe(d.Seconds()) }
func (r *PrometheusRecorder) RecordDeadlock()                { r.deadlocks.Inc() }

func (r *PrometheusRecorder) RecordCommit() { r.transactions.WithLabelValues("commit").Inc() }
func (r *PrometheusRecorder) RecordAbort()  { r.transactions.WithLabelValues("abort").Inc() }

func (r *PrometheusRecorder) RecordFlush(bytes int) {
	r.flushedPages.Inc()
	r.flushedBytes.Add(float64(bytes))
}

func (r *PrometheusRecorder) SetResidentPages(n int) { r.residentPages.Set(float64(n)) }
