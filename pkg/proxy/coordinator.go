package proxy

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Pokulord/CachedProxy/pkg/cache"
)

// Status marks how a response was produced.
type Status string

const (
	// StatusHit means the response was served from the store.
	StatusHit Status = "HIT"

	// StatusMiss means the response came fresh from the origin,
	// whether or not it was then cached.
	StatusMiss Status = "MISS"
)

// Result is the coordinator's answer for one request.
type Result struct {
	Response *cache.CachedResponse
	Status   Status
}

// Policy decides which responses may be persisted and for how long.
// The defaults are configuration, not law: both the status set and the
// TTL come from the config layer.
type Policy struct {
	// CacheableStatuses is the set of status codes eligible for caching
	CacheableStatuses map[int]bool

	// DefaultTTL is the lifetime used absent origin directives
	DefaultTTL time.Duration

	// HonorOriginTTL lets Cache-Control/Expires override DefaultTTL
	HonorOriginTTL bool
}

// Cacheable reports whether a response may be written to the store.
func (p Policy) Cacheable(status int, header http.Header) bool {
	if !p.CacheableStatuses[status] {
		return false
	}

	cc := header.Get("Cache-Control")
	for _, directive := range []string{"no-store", "private"} {
		if containsDirective(cc, directive) {
			return false
		}
	}

	// A Set-Cookie response is per-client state, never shared.
	if header.Get("Set-Cookie") != "" {
		return false
	}

	return true
}

// TTL selects the lifetime for a response about to be stored.
func (p Policy) TTL(header http.Header) time.Duration {
	return cache.SelectTTL(header, p.DefaultTTL, p.HonorOriginTTL)
}

func containsDirective(cc, directive string) bool {
	for _, part := range strings.Split(cc, ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(part), "=")
		if strings.EqualFold(name, directive) {
			return true
		}
	}
	return false
}

// Coordinator orchestrates lookup, miss-fill and store for every
// request: it owns the single-flight registry and applies the
// cacheability policy. Per key it moves through Idle -> Fetching ->
// (Filled | Failed) -> Idle; the registry holds the Fetching state.
type Coordinator struct {
	store     cache.Store
	fetcher   *Fetcher
	keyer     cache.Keyer
	sanitizer *Sanitizer
	policy    Policy
	flight    *Flight
	logger    zerolog.Logger
}

// NewCoordinator wires the coordinator. All collaborators are injected;
// nothing here is ambient process state.
func NewCoordinator(store cache.Store, fetcher *Fetcher, keyer cache.Keyer, sanitizer *Sanitizer, policy Policy, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:     store,
		fetcher:   fetcher,
		keyer:     keyer,
		sanitizer: sanitizer,
		policy:    policy,
		flight:    NewFlight(),
		logger:    logger,
	}
}

// Handle serves one request: from the store on a hit, through a
// single-flight origin fetch on a miss. Only GET requests consult the
// cache; everything else is forwarded as-is.
func (c *Coordinator) Handle(ctx context.Context, desc *RequestDescriptor) (*Result, error) {
	start := time.Now()
	result, err := c.handle(ctx, desc)
	if err == nil {
		label := strings.ToLower(string(result.Status))
		proxyRequestsTotal.WithLabelValues(label).Inc()
		proxyRequestDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}
	return result, err
}

func (c *Coordinator) handle(ctx context.Context, desc *RequestDescriptor) (*Result, error) {
	if desc.Method != http.MethodGet {
		return c.passthrough(ctx, desc)
	}

	key := c.keyer.Build(desc.Method, desc.URL, desc.Header)

	entry, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		c.logger.Debug().Str("key", key).Str("url", desc.URL.Redacted()).Msg("Cache hit")
		return &Result{Response: entry, Status: StatusHit}, nil

	case errors.Is(err, cache.ErrCacheMiss):
		c.logger.Debug().Str("key", key).Str("url", desc.URL.Redacted()).Msg("Cache miss")

	case errors.Is(err, cache.ErrInvalidEntry):
		// Store already deleted the corrupt entry; refill below.
		c.logger.Warn().Str("key", key).Msg("Corrupt cache entry, refetching")

	default:
		c.logger.Warn().Err(err).Msg("Cache store unavailable, forwarding uncached")
		passthroughTotal.Inc()
		return c.passthrough(ctx, desc)
	}

	fresh, shared, err := c.flight.Do(ctx, key, func() (*cache.CachedResponse, error) {
		return c.fill(ctx, key, desc)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		flightFollowersTotal.Inc()
	}

	return &Result{Response: fresh, Status: StatusMiss}, nil
}

// fill is the leader path: fetch from the origin, sanitize, and store
// when the policy allows. A store failure is logged, not surfaced; the
// fresh response is still valid for every waiter.
func (c *Coordinator) fill(ctx context.Context, key string, desc *RequestDescriptor) (*cache.CachedResponse, error) {
	originFetchesTotal.Inc()

	origin, err := c.fetcher.Fetch(ctx, desc, c.sanitizer.Request(desc.Header))
	if err != nil {
		return nil, err
	}

	entry := &cache.CachedResponse{
		StatusCode: origin.StatusCode,
		Headers:    c.sanitizer.Response(origin.Header),
		Body:       origin.Body,
		StoredAt:   time.Now(),
	}

	if !c.policy.Cacheable(origin.StatusCode, origin.Header) {
		c.logger.Debug().Str("key", key).Int("status", origin.StatusCode).Msg("Response not cacheable")
		return entry, nil
	}

	ttl := c.policy.TTL(origin.Header)
	entry.TTLSeconds = int(ttl / time.Second)

	if err := c.store.Set(ctx, key, entry, ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to store response")
	} else {
		c.logger.Debug().Str("key", key).Dur("ttl", ttl).Msg("Stored response")
	}

	return entry, nil
}

// passthrough forwards a request without consulting or filling the
// cache. Used for non-GET methods and while the store is down.
func (c *Coordinator) passthrough(ctx context.Context, desc *RequestDescriptor) (*Result, error) {
	originFetchesTotal.Inc()

	origin, err := c.fetcher.Fetch(ctx, desc, c.sanitizer.Request(desc.Header))
	if err != nil {
		return nil, err
	}

	return &Result{
		Response: &cache.CachedResponse{
			StatusCode: origin.StatusCode,
			Headers:    c.sanitizer.Response(origin.Header),
			Body:       origin.Body,
			StoredAt:   time.Now(),
		},
		Status: StatusMiss,
	}, nil
}
