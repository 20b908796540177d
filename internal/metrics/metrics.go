package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ekspedisi_http_requests_total",
		Help: "Total number of HTTP requests by route, method and status.",
	},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ekspedisi_http_request_duration_seconds",
		Help:    "HTTP request latency by route and method.",
		Buckets: prometheus.DefBuckets,
	},
		[]string{"route", "method"},
	)

	ShipmentsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ekspedisi_shipments_created_total",
		Help: "Total number of shipments successfully created.",
	})

	PackagesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ekspedisi_packages_created_total",
		Help: "Total number of packages successfully created.",
	})

	StatusChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ekspedisi_shipment_status_changes_total",
		Help: "Total number of accepted shipment status changes by target status.",
	},
		[]string{"status"},
	)

	CodeConflictRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ekspedisi_code_conflict_retries_total",
		Help: "Insert transactions retried after a duplicate generated code.",
	},
		[]string{"prefix"},
	)

	TrackingCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ekspedisi_tracking_cache_total",
		Help: "Tracking lookups by cache result (hit, miss, error).",
	},
		[]string{"result"},
	)

	OperationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ekspedisi_operation_errors_total",
		Help: "Total number of errors encountered during side effects (notify, publish, cache).",
	},
		[]string{"operation"},
	)
)
