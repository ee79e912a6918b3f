package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// ErrFetchCancelled is returned when the requester went away before the
// origin answered. It is distinct from FetchError because the origin
// did nothing wrong.
var ErrFetchCancelled = errors.New("origin fetch cancelled")

// FetchErrorKind classifies origin failures.
type FetchErrorKind string

const (
	// FetchTimeout means the origin did not answer within the bound.
	FetchTimeout FetchErrorKind = "timeout"

	// FetchConnectionRefused means the origin could not be reached.
	FetchConnectionRefused FetchErrorKind = "connection_refused"

	// FetchProtocol covers every other transport-level failure.
	FetchProtocol FetchErrorKind = "protocol"
)

// FetchError is a failed origin call with its classification.
type FetchError struct {
	Kind FetchErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("origin fetch %s (%s): %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// OriginResponse is the raw outcome of one upstream call.
type OriginResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Fetcher performs the actual upstream HTTP call with a bounded
// timeout. It never retries; whether a failure is retried is the
// coordinator's decision, and the coordinator chooses not to.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	logger  zerolog.Logger
}

// NewFetcher creates a Fetcher with the given per-request timeout.
func NewFetcher(timeout time.Duration, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
		logger:  logger,
	}
}

// SetHTTPClient swaps the underlying HTTP client (for testing).
func (f *Fetcher) SetHTTPClient(client *http.Client) {
	f.client = client
}

// Fetch forwards the descriptor to the origin with the given
// already-sanitized headers and reads the full response.
func (f *Fetcher) Fetch(ctx context.Context, desc *RequestDescriptor, header http.Header) (*OriginResponse, error) {
	var body io.Reader
	if desc.Body != nil {
		body = bytes.NewReader(desc.Body)
	}

	req, err := http.NewRequestWithContext(ctx, desc.Method, desc.URL.String(), body)
	if err != nil {
		return nil, &FetchError{Kind: FetchProtocol, URL: desc.URL.String(), Err: err}
	}
	req.Header = header.Clone()

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, f.classify(ctx, desc.URL.String(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, f.classify(ctx, desc.URL.String(), err)
	}

	f.logger.Debug().
		Str("url", desc.URL.Redacted()).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Origin responded")

	return &OriginResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       data,
	}, nil
}

// classify translates transport errors into the FetchError taxonomy.
func (f *Fetcher) classify(ctx context.Context, url string, err error) error {
	if ctx.Err() == context.Canceled || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrFetchCancelled, err)
	}

	kind := FetchProtocol
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = FetchTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = FetchTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		kind = FetchConnectionRefused
	}

	f.logger.Error().Err(err).Str("url", url).Str("kind", string(kind)).Msg("Origin fetch failed")
	originFetchErrors.WithLabelValues(string(kind)).Inc()

	return &FetchError{Kind: kind, URL: url, Err: err}
}
