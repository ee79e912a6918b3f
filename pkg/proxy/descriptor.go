// Package proxy implements the request pipeline of the caching proxy:
// request descriptors, header sanitization, the origin fetcher, the
// per-key single-flight registry, the cache coordinator and the HTTP
// handler tying them together.
package proxy

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// maxRequestBody caps the inbound body size the proxy will buffer and
// forward. Bodies never take part in cache keys.
const maxRequestBody = 16 << 20

// ErrBodyTooLarge is returned for inbound bodies over maxRequestBody.
// Forwarding a truncated body would hand the origin corrupt data, so
// oversized requests are rejected outright.
var ErrBodyTooLarge = errors.New("request body too large")

// RequestDescriptor is an immutable snapshot of an inbound request,
// resolved against the configured origin. It is built once by the
// handler; every later component only reads it.
type RequestDescriptor struct {
	// Method is the HTTP method, upper case
	Method string

	// URL is the absolute origin URL the request resolves to
	URL *url.URL

	// Header holds the inbound headers (case-insensitive keys,
	// value ordering preserved)
	Header http.Header

	// Body is the buffered request body, nil when absent
	Body []byte
}

// NewRequestDescriptor snapshots an inbound request, rewriting its URL
// onto the origin base. The caller must have validated the request
// first; the error paths are an unreadable body and ErrBodyTooLarge.
func NewRequestDescriptor(r *http.Request, origin *url.URL) (*RequestDescriptor, error) {
	target := *origin
	target.Path = r.URL.Path
	target.RawPath = r.URL.RawPath
	target.RawQuery = r.URL.RawQuery

	var body []byte
	if r.Body != nil && r.Body != http.NoBody {
		// Read one byte past the cap to tell "exactly at the limit"
		// apart from "over it".
		data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		if len(data) > maxRequestBody {
			return nil, ErrBodyTooLarge
		}
		if len(data) > 0 {
			body = data
		}
	}

	return &RequestDescriptor{
		Method: r.Method,
		URL:    &target,
		Header: r.Header.Clone(),
		Body:   body,
	}, nil
}
