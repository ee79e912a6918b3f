package cache

import (
	"net/http"
	"time"
)

// CachedResponse is an origin response as persisted in the cache.
// Headers are stored post-sanitization; the coordinator only ever holds
// a transient copy during a request cycle.
type CachedResponse struct {
	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// Headers are the sanitized response headers
	Headers http.Header `json:"headers"`

	// Body is the response body
	Body []byte `json:"body"`

	// StoredAt is when the response was written to the cache
	StoredAt time.Time `json:"stored_at"`

	// TTLSeconds is the lifetime the response was stored with
	TTLSeconds int `json:"ttl_seconds"`
}

// ExpiresAt returns the moment the entry becomes stale.
func (r *CachedResponse) ExpiresAt() time.Time {
	return r.StoredAt.Add(time.Duration(r.TTLSeconds) * time.Second)
}

// IsExpired returns true if the entry is past its lifetime. The backend
// enforces expiry on its own; this guards against clock skew between
// proxy instances sharing one store.
func (r *CachedResponse) IsExpired() bool {
	return time.Now().After(r.ExpiresAt())
}

// TTL returns the remaining time until expiration, 0 if already expired.
func (r *CachedResponse) TTL() time.Duration {
	ttl := time.Until(r.ExpiresAt())
	if ttl < 0 {
		return 0
	}
	return ttl
}
