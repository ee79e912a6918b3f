package integration

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Pokulord/CachedProxy/internal/testutil"
	"github.com/Pokulord/CachedProxy/pkg/cache"
	"github.com/Pokulord/CachedProxy/pkg/proxy"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// setupProxy wires a full proxy pipeline in front of the mock origin,
// backed by the given Redis instance.
func setupProxy(t *testing.T, redisClient *redis.Client, origin *testutil.MockOrigin, ttl time.Duration) *httptest.Server {
	t.Helper()

	logger := zerolog.Nop()
	originURL := origin.BaseURL(t)

	store := cache.NewRedisStore(redisClient, logger)
	fetcher := proxy.NewFetcher(10*time.Second, logger)
	keyer := cache.NewKeyer(originURL, []string{"Accept", "Accept-Encoding"})
	sanitizer := proxy.NewSanitizer(nil, []string{"Set-Cookie"})
	policy := proxy.Policy{
		CacheableStatuses: map[int]bool{200: true, 203: true, 301: true, 404: true},
		DefaultTTL:        ttl,
	}

	coordinator := proxy.NewCoordinator(store, fetcher, keyer, sanitizer, policy, logger)
	handler := proxy.NewHandler(coordinator, originURL, logger)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()

	resp, err := http.Get(url) //nolint:gosec
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	return resp, body
}

// TestFullRequestFlow tests the complete flow: miss fills the cache
// from the origin, a hit serves from Redis without touching the
// origin, clearing the cache brings the next request back to a miss.
func TestFullRequestFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/products", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"products":[{"id":1}]}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	})

	srv := setupProxy(t, redisClient, origin, time.Hour)
	store := cache.NewRedisStore(redisClient, zerolog.Nop())

	// first request goes through to the origin
	resp, body := get(t, srv.URL+"/products")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Cache") != "MISS" {
		t.Errorf("Expected X-Cache MISS, got %q", resp.Header.Get("X-Cache"))
	}
	if origin.RequestCount() != 1 {
		t.Errorf("Expected 1 origin request, got %d", origin.RequestCount())
	}

	// second request is served from the cache
	resp2, body2 := get(t, srv.URL+"/products")
	if resp2.Header.Get("X-Cache") != "HIT" {
		t.Errorf("Expected X-Cache HIT, got %q", resp2.Header.Get("X-Cache"))
	}
	if string(body) != string(body2) {
		t.Errorf("Cached body differs: %q vs %q", body, body2)
	}
	if origin.RequestCount() != 1 {
		t.Errorf("Expected origin untouched on hit, got %d requests", origin.RequestCount())
	}

	// clearing the cache reverts to a miss
	deleted, err := store.Clear(context.Background())
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted entry, got %d", deleted)
	}

	resp3, _ := get(t, srv.URL+"/products")
	if resp3.Header.Get("X-Cache") != "MISS" {
		t.Errorf("Expected X-Cache MISS after clear, got %q", resp3.Header.Get("X-Cache"))
	}
	if origin.RequestCount() != 2 {
		t.Errorf("Expected 2 origin requests after clear, got %d", origin.RequestCount())
	}
}

// TestTTLExpiry verifies entries stored with a short TTL fall out of
// Redis and the next request refetches from the origin.
func TestTTLExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping TTL expiry test in short mode")
	}

	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	origin := testutil.NewMockOrigin()
	defer origin.Close()

	srv := setupProxy(t, redisClient, origin, time.Second)

	resp, _ := get(t, srv.URL+"/")
	if resp.Header.Get("X-Cache") != "MISS" {
		t.Fatalf("Expected initial MISS, got %q", resp.Header.Get("X-Cache"))
	}

	time.Sleep(1100 * time.Millisecond)

	resp2, _ := get(t, srv.URL+"/")
	if resp2.Header.Get("X-Cache") != "MISS" {
		t.Errorf("Expected MISS after expiry, got %q", resp2.Header.Get("X-Cache"))
	}
	if origin.RequestCount() != 2 {
		t.Errorf("Expected 2 origin requests, got %d", origin.RequestCount())
	}
}

// TestNonCacheableStatus verifies errors from the origin are forwarded
// but never stored.
func TestNonCacheableStatus(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/flaky", testutil.MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       "upstream error",
	})

	srv := setupProxy(t, redisClient, origin, time.Hour)

	for i := 0; i < 2; i++ {
		resp, _ := get(t, srv.URL+"/flaky")
		if resp.StatusCode != http.StatusInternalServerError {
			t.Fatalf("Expected 500, got %d", resp.StatusCode)
		}
		if resp.Header.Get("X-Cache") != "MISS" {
			t.Errorf("Expected MISS, got %q", resp.Header.Get("X-Cache"))
		}
	}
	if origin.RequestCount() != 2 {
		t.Errorf("Expected every request to reach the origin, got %d", origin.RequestCount())
	}
}
