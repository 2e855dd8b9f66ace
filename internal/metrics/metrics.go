// Package metrics defines the process-wide Prometheus collectors
// internal/dnsserver and internal/anycast report against. Ported from the
// teacher's internal/infrastructure/metrics/metrics.go: one package-level
// var block registered via promauto at import time, no registry threading.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTotal tracks total DNS queries processed, labeled by query
	// type, response code, and transport.
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dnscore_queries_total",
		Help: "Total number of DNS queries processed",
	}, []string{"qtype", "rcode", "protocol"})

	// QueryDuration tracks query processing time; its "source" label
	// carries the transport the query arrived on (udp, tcp, doh, ...).
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dnscore_query_duration_seconds",
		Help:    "Histogram of query processing duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	// CacheOperations tracks L1/L2 cache hits and misses.
	CacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dnscore_cache_operations_total",
		Help: "Total number of cache hits and misses",
	}, []string{"level", "result"})

	// ActiveWorkers tracks the number of busy UDP workers.
	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dnscore_active_workers",
		Help: "Number of active workers in the UDP pool",
	})

	// DBConnectionsActive tracks open database connections to the record
	// store.
	DBConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dnscore_db_connections_active",
		Help: "Number of active database connections",
	})

	// BGPAnnounced indicates whether this node is currently announcing its
	// anycast VIP via BGP (1 = announcing, 0 = withdrawn).
	BGPAnnounced = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dnscore_bgp_announced",
		Help: "Binary indicator of BGP announcement status",
	})

	// ZoneTransfersTotal tracks completed AXFR/IXFR transfers, labeled by
	// direction (inbound pull vs outbound serve) and outcome.
	ZoneTransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dnscore_zone_transfers_total",
		Help: "Total number of zone transfers, by direction and outcome",
	}, []string{"direction", "outcome"})
)
