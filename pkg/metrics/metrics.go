// Package metrics holds the Prometheus collectors exported by docserve.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DocumentsResident is the number of documents currently loaded.
	DocumentsResident = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "docserve_documents_resident",
		Help: "Number of documents held in memory",
	})

	// LoadsTotal counts document loads by result.
	LoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docserve_loads_total",
		Help: "Total document loads by result",
	}, []string{"result"})

	// SavesTotal counts document saves by result.
	SavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docserve_saves_total",
		Help: "Total document saves by result",
	}, []string{"result"})

	// UnloadsTotal counts evictions by reason (explicit, expired, shutdown).
	UnloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docserve_unloads_total",
		Help: "Total document unloads by reason",
	}, []string{"reason"})

	// LockWaitSeconds tracks how long callers wait for a document lock.
	LockWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docserve_lock_wait_seconds",
		Help:    "Time spent waiting for a document lock",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 0.1ms to ~26s
	})

	// QueriesTotal counts executed queries by action and result.
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docserve_queries_total",
		Help: "Total executed queries by action and result",
	}, []string{"action", "result"})

	// SaveQueueDepth is the number of saves waiting in the background queue.
	SaveQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "docserve_save_queue_depth",
		Help: "Number of pending background saves",
	})
)

// Result labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// ResultLabel maps an error to a result label.
func ResultLabel(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}
