package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Pokulord/CachedProxy/internal/testutil"
)

func descriptorFor(t *testing.T, method, rawURL string) *RequestDescriptor {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse %q: %v", rawURL, err)
	}
	return &RequestDescriptor{Method: method, URL: u, Header: http.Header{}}
}

func TestFetcher_Success(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	origin.SetResponse("/items/42", testutil.MockResponse{
		StatusCode: 200,
		Body:       `{"id":42}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	})

	fetcher := NewFetcher(5*time.Second, zerolog.Nop())
	desc := descriptorFor(t, "GET", origin.URL()+"/items/42")

	resp, err := fetcher.Fetch(context.Background(), desc, http.Header{"Accept": []string{"application/json"}})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if string(resp.Body) != `{"id":42}` {
		t.Errorf("Body = %q, want %q", resp.Body, `{"id":42}`)
	}
	if got := origin.LastRequestHeader().Get("Accept"); got != "application/json" {
		t.Errorf("forwarded Accept = %q, want %q", got, "application/json")
	}
}

func TestFetcher_Timeout(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	origin.SetResponse("/slow", testutil.MockResponse{
		StatusCode: 200,
		Delay:      500 * time.Millisecond,
	})

	fetcher := NewFetcher(50*time.Millisecond, zerolog.Nop())
	desc := descriptorFor(t, "GET", origin.URL()+"/slow")

	_, err := fetcher.Fetch(context.Background(), desc, http.Header{})

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fetchErr.Kind != FetchTimeout {
		t.Errorf("Kind = %q, want %q", fetchErr.Kind, FetchTimeout)
	}
}

func TestFetcher_ConnectionRefused(t *testing.T) {
	origin := testutil.NewMockOrigin()
	base := origin.URL()
	origin.Close() // nobody listening anymore

	fetcher := NewFetcher(time.Second, zerolog.Nop())
	desc := descriptorFor(t, "GET", base+"/items")

	_, err := fetcher.Fetch(context.Background(), desc, http.Header{})

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fetchErr.Kind != FetchConnectionRefused {
		t.Errorf("Kind = %q, want %q", fetchErr.Kind, FetchConnectionRefused)
	}
}

func TestFetcher_Cancellation(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	origin.SetResponse("/slow", testutil.MockResponse{
		StatusCode: 200,
		Delay:      time.Second,
	})

	fetcher := NewFetcher(5*time.Second, zerolog.Nop())
	desc := descriptorFor(t, "GET", origin.URL()+"/slow")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := fetcher.Fetch(ctx, desc, http.Header{})
	if !errors.Is(err, ErrFetchCancelled) {
		t.Errorf("expected ErrFetchCancelled, got %v", err)
	}
}

// brokenTransport fails every request at the transport layer.
type brokenTransport struct {
	err error
}

func (bt *brokenTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, bt.err
}

func TestFetcher_ProtocolErrorKind(t *testing.T) {
	fetcher := NewFetcher(time.Second, zerolog.Nop())
	fetcher.SetHTTPClient(&http.Client{
		Transport: &brokenTransport{err: errors.New("malformed response")},
	})

	desc := descriptorFor(t, "GET", "http://origin.example.com/items")
	_, err := fetcher.Fetch(context.Background(), desc, http.Header{})

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fetchErr.Kind != FetchProtocol {
		t.Errorf("Kind = %q, want %q", fetchErr.Kind, FetchProtocol)
	}
}

func TestFetcher_ForwardsBody(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	var received string
	origin.SetHandler("/submit", func(w http.ResponseWriter, r *http.Request) {
		data := make([]byte, r.ContentLength)
		r.Body.Read(data)
		received = string(data)
		w.WriteHeader(http.StatusCreated)
	})

	fetcher := NewFetcher(time.Second, zerolog.Nop())
	desc := descriptorFor(t, "POST", origin.URL()+"/submit")
	desc.Body = []byte(`{"name":"new"}`)

	resp, err := fetcher.Fetch(context.Background(), desc, http.Header{})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	if received != `{"name":"new"}` {
		t.Errorf("origin received body %q, want %q", received, `{"name":"new"}`)
	}
}
