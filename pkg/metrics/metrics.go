// Package metrics provides the centralized Prometheus registry for the
// caching proxy. Metrics are defined in the packages that own them
// (pkg/cache, pkg/proxy) to avoid circular dependencies; this package
// documents them in one place and exposes the registry the admin server
// serves from.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the registerer all proxy metrics attach to via promauto.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the matching gatherer used by the /metrics endpoint.
var Gatherer = prometheus.DefaultGatherer

// Metrics Reference
//
// Cache metrics (pkg/cache):
//   - proxy_cache_hits_total (Counter): lookups served from the store
//   - proxy_cache_misses_total (Counter): lookups with no usable entry
//   - proxy_cache_errors_total{operation} (Counter): store operation errors
//   - proxy_cache_corrupt_entries_total (Counter): entries dropped as corrupt
//   - proxy_cache_stored_bytes_total (Counter): bytes written to the store
//
// Pipeline metrics (pkg/proxy):
//   - proxy_requests_total{cache_status} (Counter): requests by hit/miss
//   - proxy_request_duration_seconds{cache_status} (Histogram): end-to-end latency
//   - proxy_origin_fetches_total (Counter): requests forwarded to the origin
//   - proxy_origin_fetch_errors_total{kind} (Counter): failed origin fetches
//   - proxy_inflight_followers_total (Counter): requests resolved by another
//     request's fetch (single-flight)
//   - proxy_store_passthrough_total (Counter): requests forwarded uncached
//     because the store was unreachable
//
// Example Prometheus queries:
//
//   # Cache hit rate
//   sum(rate(proxy_cache_hits_total[5m])) /
//   (sum(rate(proxy_cache_hits_total[5m])) + sum(rate(proxy_cache_misses_total[5m])))
//
//   # Origin error rate by kind
//   rate(proxy_origin_fetch_errors_total[5m])
//
//   # P95 latency for misses
//   histogram_quantile(0.95, rate(proxy_request_duration_seconds_bucket{cache_status="miss"}[5m]))
