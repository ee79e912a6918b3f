package proxy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Pokulord/CachedProxy/pkg/cache"
)

func TestFlight_CollapsesConcurrentCalls(t *testing.T) {
	flight := NewFlight()
	ctx := context.Background()

	var fetches atomic.Int32
	release := make(chan struct{})

	const n = 20
	var wg sync.WaitGroup
	results := make([]*cache.CachedResponse, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, _, err := flight.Do(ctx, "key", func() (*cache.CachedResponse, error) {
				fetches.Add(1)
				<-release
				return &cache.CachedResponse{StatusCode: 200, Body: []byte("shared")}, nil
			})
			results[i], errs[i] = entry, err
		}(i)
	}

	// Let all goroutines pile up on the same key before resolving.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := fetches.Load(); got != 1 {
		t.Errorf("fn executed %d times, want 1", got)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d got error: %v", i, errs[i])
		}
		if string(results[i].Body) != "shared" {
			t.Errorf("caller %d got body %q, want %q", i, results[i].Body, "shared")
		}
	}
}

func TestFlight_DistinctKeysDoNotCollapse(t *testing.T) {
	flight := NewFlight()
	ctx := context.Background()

	var fetches atomic.Int32
	fn := func() (*cache.CachedResponse, error) {
		fetches.Add(1)
		return &cache.CachedResponse{}, nil
	}

	if _, _, err := flight.Do(ctx, "a", fn); err != nil {
		t.Fatal(err)
	}
	if _, _, err := flight.Do(ctx, "b", fn); err != nil {
		t.Fatal(err)
	}

	if got := fetches.Load(); got != 2 {
		t.Errorf("fn executed %d times, want 2", got)
	}
}

func TestFlight_LeaderErrorReachesAllWaiters(t *testing.T) {
	flight := NewFlight()
	ctx := context.Background()

	wantErr := errors.New("origin down")
	release := make(chan struct{})

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = flight.Do(ctx, "key", func() (*cache.CachedResponse, error) {
				<-release
				return nil, wantErr
			})
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < n; i++ {
		if !errors.Is(errs[i], wantErr) {
			t.Errorf("caller %d got %v, want %v", i, errs[i], wantErr)
		}
	}
}

func TestFlight_FollowerCancellationIsLocal(t *testing.T) {
	flight := NewFlight()

	release := make(chan struct{})
	started := make(chan struct{})

	var leaderErr error
	var leaderDone sync.WaitGroup
	leaderDone.Add(1)
	go func() {
		defer leaderDone.Done()
		_, _, leaderErr = flight.Do(context.Background(), "key", func() (*cache.CachedResponse, error) {
			close(started)
			<-release
			return &cache.CachedResponse{StatusCode: 200}, nil
		})
	}()

	<-started

	// A follower with an expired context stops waiting immediately.
	followerCtx, cancel := context.WithCancel(context.Background())
	cancel()
	_, shared, err := flight.Do(followerCtx, "key", func() (*cache.CachedResponse, error) {
		t.Fatal("follower must not execute the fetch")
		return nil, nil
	})
	if !shared {
		t.Error("expected the cancelled caller to be a follower")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("follower got %v, want context.Canceled", err)
	}

	// The leader is unaffected.
	close(release)
	leaderDone.Wait()
	if leaderErr != nil {
		t.Errorf("leader got error: %v", leaderErr)
	}
}

func TestFlight_ForgetDetachesInFlightHandle(t *testing.T) {
	flight := NewFlight()
	ctx := context.Background()

	var fetches atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})

	var firstDone sync.WaitGroup
	firstDone.Add(1)
	go func() {
		defer firstDone.Done()
		flight.Do(ctx, "key", func() (*cache.CachedResponse, error) {
			fetches.Add(1)
			close(started)
			<-release
			return &cache.CachedResponse{}, nil
		})
	}()

	<-started
	flight.Forget("key")

	// With the handle detached, the next caller leads its own fetch
	// instead of following the first.
	_, shared, err := flight.Do(ctx, "key", func() (*cache.CachedResponse, error) {
		fetches.Add(1)
		return &cache.CachedResponse{}, nil
	})
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if shared {
		t.Error("second caller followed a forgotten fetch")
	}

	close(release)
	firstDone.Wait()

	if got := fetches.Load(); got != 2 {
		t.Errorf("fn executed %d times, want 2", got)
	}
	if flight.Len() != 0 {
		t.Errorf("Len() = %d, want 0", flight.Len())
	}
}

func TestFlight_KeyReusableAfterCompletion(t *testing.T) {
	flight := NewFlight()
	ctx := context.Background()

	var fetches atomic.Int32
	fn := func() (*cache.CachedResponse, error) {
		fetches.Add(1)
		return &cache.CachedResponse{}, nil
	}

	for i := 0; i < 3; i++ {
		if _, shared, err := flight.Do(ctx, "key", fn); err != nil || shared {
			t.Fatalf("call %d: shared=%v err=%v", i, shared, err)
		}
	}

	if got := fetches.Load(); got != 3 {
		t.Errorf("fn executed %d times, want 3", got)
	}
	if flight.Len() != 0 {
		t.Errorf("Len() = %d, want 0", flight.Len())
	}
}
