package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Pokulord/CachedProxy/pkg/cache"
)

// FakeStore is an in-memory cache.Store for tests. It honors TTLs with
// the real clock and can be flipped into an unavailable state to drive
// the pass-through degrade path.
type FakeStore struct {
	mu          sync.Mutex
	entries     map[string]fakeEntry
	Unavailable bool

	// SetCalls counts successful writes
	SetCalls int
}

type fakeEntry struct {
	entry     cache.CachedResponse
	expiresAt time.Time
	corrupt   bool
}

// NewFakeStore creates an empty in-memory store.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		entries: make(map[string]fakeEntry),
	}
}

func (s *FakeStore) Get(_ context.Context, key string) (*cache.CachedResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Unavailable {
		return nil, cache.ErrStoreUnavailable
	}

	stored, ok := s.entries[key]
	if !ok || time.Now().After(stored.expiresAt) {
		delete(s.entries, key)
		return nil, cache.ErrCacheMiss
	}
	if stored.corrupt {
		// Mirror RedisStore: drop the entry, report it invalid.
		delete(s.entries, key)
		return nil, cache.ErrInvalidEntry
	}

	entry := stored.entry
	return &entry, nil
}

func (s *FakeStore) Set(_ context.Context, key string, entry *cache.CachedResponse, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Unavailable {
		return cache.ErrStoreUnavailable
	}
	if ttl <= 0 {
		return nil
	}

	s.entries[key] = fakeEntry{
		entry:     *entry,
		expiresAt: time.Now().Add(ttl),
	}
	s.SetCalls++
	return nil
}

func (s *FakeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Unavailable {
		return cache.ErrStoreUnavailable
	}

	delete(s.entries, key)
	return nil
}

func (s *FakeStore) Clear(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Unavailable {
		return 0, cache.ErrStoreUnavailable
	}

	deleted := 0
	for key := range s.entries {
		if strings.HasPrefix(key, cache.Namespace) {
			delete(s.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

// Len returns the number of live entries.
func (s *FakeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Corrupt replaces the entry at key with one that will fail to
// deserialize on read, mimicking store-level corruption.
func (s *FakeStore) Corrupt(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = fakeEntry{corrupt: true, expiresAt: time.Now().Add(time.Hour)}
}
