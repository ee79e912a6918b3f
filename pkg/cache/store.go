package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	// ErrCacheMiss indicates the requested key was not found in the store
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates a stored entry failed to deserialize.
	// The store deletes the entry before returning this error, so the
	// caller can treat it as a miss and refill.
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrStoreUnavailable indicates the backend could not be reached.
	// Callers degrade to pass-through rather than failing the request.
	ErrStoreUnavailable = errors.New("cache store unavailable")
)

// Store is the typed interface over the key-value backend. All methods
// may fail with an error wrapping ErrStoreUnavailable when the backend
// is unreachable.
type Store interface {
	// Get retrieves an entry. Returns ErrCacheMiss when absent and
	// ErrInvalidEntry when the stored data is corrupt.
	Get(ctx context.Context, key string) (*CachedResponse, error)

	// Set stores an entry with backend-enforced expiry after ttl.
	Set(ctx context.Context, key string, entry *CachedResponse, ttl time.Duration) error

	// Delete removes an entry. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes every entry in this proxy's namespace and returns
	// the number of keys deleted.
	Clear(ctx context.Context) (int, error)
}

// RedisStore implements Store on a Redis backend. Entries are stored as
// JSON under the Namespace prefix; atomicity of individual reads and
// writes is delegated to Redis.
type RedisStore struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(redisClient *redis.Client, logger zerolog.Logger) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis:  redisClient,
		logger: logger,
	}
}

// Ping verifies the backend is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (*CachedResponse, error) {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: redis get: %v", ErrStoreUnavailable, err)
	}

	var entry CachedResponse
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheCorruptions.Inc()
		s.logger.Warn().Err(err).Str("key", key).Msg("Dropping corrupt cache entry")
		if delErr := s.redis.Del(ctx, key).Err(); delErr != nil {
			CacheErrors.WithLabelValues("delete").Inc()
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = s.Delete(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.Inc()
	return &entry, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, entry *CachedResponse, ttl time.Duration) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	if ttl <= 0 {
		// Nothing to store, the entry would be born expired.
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("%w: redis set: %v", ErrStoreUnavailable, err)
	}

	CacheStoredBytes.Add(float64(len(data)))
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("%w: redis del: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Clear walks the namespace with SCAN and deletes in batches, so a
// large cache never blocks Redis the way a single KEYS call would.
func (s *RedisStore) Clear(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		deleted int
	)

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, Namespace+"*", 500).Result()
		if err != nil {
			CacheErrors.WithLabelValues("clear").Inc()
			return deleted, fmt.Errorf("%w: redis scan: %v", ErrStoreUnavailable, err)
		}

		if len(keys) > 0 {
			n, err := s.redis.Del(ctx, keys...).Result()
			if err != nil {
				CacheErrors.WithLabelValues("clear").Inc()
				return deleted, fmt.Errorf("%w: redis del: %v", ErrStoreUnavailable, err)
			}
			deleted += int(n)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	s.logger.Info().Int("deleted", deleted).Msg("Cleared cache namespace")
	return deleted, nil
}
