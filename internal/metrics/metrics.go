package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion pipeline counters and gauges.

var (
	// Gap detector
	GapTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "gap",
		Name:      "ticks_total",
		Help:      "Total gap detector cycles",
	})

	GapTickErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "gap",
		Name:      "tick_errors_total",
		Help:      "Gap detector cycles that failed and were skipped",
	})

	HeightsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "gap",
		Name:      "heights_enqueued_total",
		Help:      "Pending heights newly inserted",
	})

	StuckHeights = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "gap",
		Name:      "stuck_heights",
		Help:      "Pending heights older than the stuck horizon at the last cycle",
	})

	// Worker pool
	HeightsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "worker",
		Name:      "heights_processed_total",
		Help:      "Heights fully persisted and removed from the pending store",
	})

	HeightAttemptsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "worker",
		Name:      "attempts_failed_total",
		Help:      "Failed height attempts by stage",
	}, []string{"stage"})

	HeightJobLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "indexer",
		Subsystem: "worker",
		Name:      "attempt_duration_seconds",
		Help:      "Duration of a single height attempt",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	InFlightHeights = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "worker",
		Name:      "in_flight_heights",
		Help:      "Height jobs currently running",
	})

	RecordsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "decoder",
		Name:      "records_total",
		Help:      "Domain records decoded, by table",
	}, []string{"table"})

	// Sync position
	LatestHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "sync",
		Name:      "latest_height",
		Help:      "Latest chain height reported by the node",
	})

	CursorHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "sync",
		Name:      "cursor_height",
		Help:      "Height cursor",
	})

	PendingHeights = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "sync",
		Name:      "pending_heights",
		Help:      "Rows in the pending-height store",
	})
)
