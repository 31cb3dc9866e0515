// Package metrics exposes the isolate pool and DB facade as Prometheus
// gauges/counters/histograms, grounded on the teacher's
// internal/metrics package naming convention (now-deleted
// prometheus.go), narrowed from per-VM/per-function gauges to the two
// things nino's process actually has a pool of: isolates and DB
// connections.
package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TaskQueueDepth is the number of tasks currently buffered in the
	// MPMC queue, waiting for a free isolate.
	TaskQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "nino",
		Subsystem: "taskqueue",
		Name:      "depth",
		Help:      "Number of tasks buffered in the MPMC task queue.",
	})

	// IsolatesBusy is the number of isolates currently executing a task.
	IsolatesBusy = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "nino",
		Subsystem: "isolate_pool",
		Name:      "busy",
		Help:      "Number of isolates currently executing a task.",
	})

	// TasksProcessedTotal counts tasks an isolate has finished, labeled
	// by kind ("servlet" or "message") and outcome ("ok" or "error").
	TasksProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nino",
		Subsystem: "isolate_pool",
		Name:      "tasks_processed_total",
		Help:      "Tasks completed by the isolate pool.",
	}, []string{"kind", "outcome"})

	// DBPoolConnsInUse mirrors pgxpool's in-use connection count per
	// alias, sampled periodically rather than pushed.
	DBPoolConnsInUse = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "nino",
		Subsystem: "db_pool",
		Name:      "conns_in_use",
		Help:      "Connections currently checked out of a database alias's pool.",
	}, []string{"alias"})

	// RequestDuration is the end-to-end HTTP request latency observed by
	// the dispatcher, labeled by outcome status class.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nino",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status_class"})
)

// dbPoolSampleInterval is how often WatchDBPool polls pgxpool.Stat, since
// pgxpool exposes no hook to push connection-count changes.
const dbPoolSampleInterval = 5 * time.Second

// WatchDBPool samples pool's connection stats every dbPoolSampleInterval
// and publishes them as DBPoolConnsInUse, labeled by alias. It blocks until
// ctx is cancelled, so callers run it in its own goroutine.
func WatchDBPool(ctx context.Context, pool *pgxpool.Pool, alias string) {
	ticker := time.NewTicker(dbPoolSampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			DBPoolConnsInUse.WithLabelValues(alias).Set(float64(pool.Stat().AcquiredConns()))
		}
	}
}
