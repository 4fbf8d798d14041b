// Package metrics holds the Prometheus collectors of the cart synchronizer
// and session manager.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sync operation names.
const (
	OpLoad  = "load"
	OpSave  = "save"
	OpMerge = "merge"
)

// Sync operation results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

var (
	// SyncOperations counts load, save and merge runs by outcome.
	SyncOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_sync_operations_total",
			Help: "Total number of cart persistence operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	// SyncDuration observes how long each persistence operation took.
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cart_sync_operation_duration_seconds",
			Help:    "Duration of cart persistence operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// StaleResponses counts completions discarded because the identity they
	// were issued for is no longer current.
	StaleResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_sync_stale_responses_total",
			Help: "Total number of persistence results discarded after an identity change",
		},
		[]string{"operation"},
	)

	// SessionsActive is the number of cart sessions held in memory.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cart_sessions_active",
			Help: "Number of cart sessions currently held in memory",
		},
	)
)
