package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks lookups served from the store
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proxy_cache_hits_total",
			Help: "Total number of cache hits",
		},
	)

	// CacheMisses tracks lookups that found no usable entry
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proxy_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// CacheErrors tracks store operation failures
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_cache_errors_total",
			Help: "Total number of cache store operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "clear"
	)

	// CacheCorruptions tracks entries that failed to deserialize
	CacheCorruptions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proxy_cache_corrupt_entries_total",
			Help: "Total number of cache entries dropped because they failed to deserialize",
		},
	)

	// CacheStoredBytes tracks the volume written to the store
	CacheStoredBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proxy_cache_stored_bytes_total",
			Help: "Total number of bytes written to the cache store",
		},
	)
)
