package telemetry

import "github.com/prometheus/client_golang/prometheus"

var CollectionRunsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "blacklist",
		Subsystem: "collection",
		Name:      "runs_total",
		Help:      "Total number of collection runs by source and outcome.",
	},
	[]string{"source", "outcome"},
)

var CollectionDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "blacklist",
		Subsystem: "collection",
		Name:      "duration_seconds",
		Help:      "Collection run duration in seconds, by source.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	},
	[]string{"source"},
)

var IngestUpsertedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "blacklist",
		Subsystem: "ingest",
		Name:      "upserted_total",
		Help:      "Total number of IP records inserted or updated by source.",
	},
	[]string{"source"},
)

var IngestSkippedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "blacklist",
		Subsystem: "ingest",
		Name:      "skipped_total",
		Help:      "Total number of candidate records skipped during ingestion, by reason.",
	},
	[]string{"source", "reason"},
)

var CacheRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "blacklist",
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Total number of cache lookups by tier and result.",
	},
	[]string{"tier", "result"},
)

var ActiveIPsGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "blacklist",
		Name:      "active_ips",
		Help:      "Current number of active (non-expired) IP records.",
	},
)

var ServingRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "blacklist",
		Subsystem: "serving",
		Name:      "request_duration_seconds",
		Help:      "Query/serving endpoint request duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	},
	[]string{"endpoint", "format"},
)

var VaultAuthFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "blacklist",
		Subsystem: "vault",
		Name:      "auth_failures_total",
		Help:      "Total number of failed credential vault unlock/collector-auth attempts, by source.",
	},
	[]string{"source"},
)

// All returns all blacklist-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		CollectionRunsTotal,
		CollectionDuration,
		IngestUpsertedTotal,
		IngestSkippedTotal,
		CacheRequestsTotal,
		ActiveIPsGauge,
		ServingRequestDuration,
		VaultAuthFailuresTotal,
	}
}
