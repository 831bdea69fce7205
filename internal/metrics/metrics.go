package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts requests by method, route pattern and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panshare_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "panshare_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)

	// ShareValidationsTotal counts share validations by outcome
	// (valid, not_found, expired, limit_exceeded, bad_password).
	ShareValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panshare_share_validations_total",
			Help: "Total number of share token validations",
		},
		[]string{"result"},
	)

	// ShareDownloadsTotal counts download accounting attempts by outcome.
	ShareDownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panshare_share_downloads_total",
			Help: "Total number of share downloads recorded",
		},
		[]string{"result"},
	)

	SharesSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "panshare_shares_swept_total",
			Help: "Total number of expired shares deactivated by the sweeper",
		},
	)

	AuditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panshare_audit_events_total",
			Help: "Total number of audit events by sink result",
		},
		[]string{"result"},
	)
)
