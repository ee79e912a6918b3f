// Package cache provides the proxy's caching layer with a Redis backend.
//
// The package covers three concerns:
//
//   - Deterministic cache key generation from request attributes (Keyer)
//   - The cached response model with TTL bookkeeping (CachedResponse)
//   - The store adapter over the key-value backend (Store, RedisStore)
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	store := cache.NewRedisStore(redisClient, logger)
//
//	keyer := cache.NewKeyer(originURL, []string{"Accept", "Accept-Encoding"})
//	key := keyer.Build("GET", requestURL, requestHeaders)
//
//	entry, err := store.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from origin, then store.Set(ctx, key, entry, ttl)
//	}
//
// # Error Contract
//
// Every store operation may fail with an error wrapping
// ErrStoreUnavailable when Redis is unreachable; the proxy reacts by
// degrading to pass-through rather than failing requests. A stored
// entry that no longer deserializes is deleted on read and reported as
// ErrInvalidEntry, which callers treat as a miss.
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - proxy_cache_hits_total - Cache hits
//   - proxy_cache_misses_total - Cache misses
//   - proxy_cache_errors_total{operation} - Store operation errors
//   - proxy_cache_corrupt_entries_total - Entries dropped as corrupt
//   - proxy_cache_stored_bytes_total - Bytes written to the store
package cache
