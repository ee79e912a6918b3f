package proxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	proxyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxy_requests_total",
		Help: "Total proxied requests by cache status",
	}, []string{"cache_status"}) // "hit", "miss"

	proxyRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "proxy_request_duration_seconds",
		Help:    "End-to-end request duration by cache status",
		Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"cache_status"})

	originFetchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proxy_origin_fetches_total",
		Help: "Total requests forwarded to the origin",
	})

	originFetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxy_origin_fetch_errors_total",
		Help: "Total failed origin fetches by kind",
	}, []string{"kind"}) // "timeout", "connection_refused", "protocol"

	flightFollowersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proxy_inflight_followers_total",
		Help: "Total requests served by waiting on another request's origin fetch",
	})

	passthroughTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proxy_store_passthrough_total",
		Help: "Total requests forwarded uncached because the cache store was unavailable",
	})
)
