package proxy

import (
	"context"
	"sync"

	"github.com/Pokulord/CachedProxy/pkg/cache"
)

// inflightCall is one origin fetch in progress. done is closed exactly
// once, after entry and err are set.
type inflightCall struct {
	done  chan struct{}
	entry *cache.CachedResponse
	err   error
}

// Flight is the in-flight key registry: at most one origin fetch per
// cache key is outstanding at any instant across the process. The first
// request for a missing key becomes the leader and runs the fetch;
// concurrent requests for the same key become followers and receive the
// leader's outcome without touching the origin.
//
// Cancellation policy: the leader runs fn under its own context. If
// that context is cancelled mid-fetch, the resulting error is delivered
// to the leader and every follower alike; no follower is promoted to
// retry, since a second hit on a failing origin is exactly what the
// registry exists to prevent. A follower whose own context is cancelled
// stops waiting without affecting anyone else.
type Flight struct {
	mu    sync.Mutex
	calls map[string]*inflightCall
}

// NewFlight creates an empty registry.
func NewFlight() *Flight {
	return &Flight{
		calls: make(map[string]*inflightCall),
	}
}

// Do executes fn for key, collapsing concurrent calls. The boolean
// reports whether the result came from another caller's fetch.
func (f *Flight) Do(ctx context.Context, key string, fn func() (*cache.CachedResponse, error)) (*cache.CachedResponse, bool, error) {
	f.mu.Lock()
	if existing, ok := f.calls[key]; ok {
		f.mu.Unlock()
		select {
		case <-existing.done:
			return existing.entry, true, existing.err
		case <-ctx.Done():
			return nil, true, ctx.Err()
		}
	}

	call := &inflightCall{done: make(chan struct{})}
	f.calls[key] = call
	f.mu.Unlock()

	call.entry, call.err = fn()

	// Remove before signalling so a request arriving after completion
	// starts a fresh fetch instead of reading a settled handle. Only
	// this call's own handle is removed; after a Forget the slot may
	// already belong to a successor.
	f.mu.Lock()
	if f.calls[key] == call {
		delete(f.calls, key)
	}
	f.mu.Unlock()
	close(call.done)

	return call.entry, false, call.err
}

// Forget detaches the in-flight handle for key, letting the next caller
// lead a fresh fetch.
func (f *Flight) Forget(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.calls, key)
}

// Len returns the number of fetches currently in flight.
func (f *Flight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
