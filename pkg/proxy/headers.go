package proxy

import (
	"net/http"
	"strings"
)

// hopByHopHeaders are meaningful only for a single transport link and
// must never be forwarded or cached verbatim (RFC 9110 section 7.6.1).
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Connection",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Sanitizer filters request and response headers against deny lists.
// The hop-by-hop set is always denied; the configured lists add to it.
// Filtering is deterministic and keeps value ordering for retained
// headers; the input header map is never mutated.
type Sanitizer struct {
	requestDeny  map[string]struct{}
	responseDeny map[string]struct{}
}

// NewSanitizer builds a Sanitizer from the configured extra deny lists.
// Request sanitization additionally drops Host, which is set by the
// transport from the outbound URL.
func NewSanitizer(requestDeny, responseDeny []string) *Sanitizer {
	s := &Sanitizer{
		requestDeny:  make(map[string]struct{}),
		responseDeny: make(map[string]struct{}),
	}

	for _, name := range hopByHopHeaders {
		s.requestDeny[http.CanonicalHeaderKey(name)] = struct{}{}
		s.responseDeny[http.CanonicalHeaderKey(name)] = struct{}{}
	}
	s.requestDeny["Host"] = struct{}{}

	for _, name := range requestDeny {
		s.requestDeny[http.CanonicalHeaderKey(name)] = struct{}{}
	}
	for _, name := range responseDeny {
		s.responseDeny[http.CanonicalHeaderKey(name)] = struct{}{}
	}

	return s
}

// Request returns a new header map safe to forward to the origin.
func (s *Sanitizer) Request(header http.Header) http.Header {
	return filter(header, s.requestDeny)
}

// Response returns a new header map safe to cache and return to the
// client.
func (s *Sanitizer) Response(header http.Header) http.Header {
	return filter(header, s.responseDeny)
}

func filter(header http.Header, deny map[string]struct{}) http.Header {
	// Fields named by the Connection header are hop-by-hop too.
	connectionNamed := make(map[string]struct{})
	for _, value := range header.Values("Connection") {
		for _, name := range strings.Split(value, ",") {
			if name = strings.TrimSpace(name); name != "" {
				connectionNamed[http.CanonicalHeaderKey(name)] = struct{}{}
			}
		}
	}

	out := make(http.Header, len(header))
	for name, values := range header {
		canonical := http.CanonicalHeaderKey(name)
		if _, denied := deny[canonical]; denied {
			continue
		}
		if _, denied := connectionNamed[canonical]; denied {
			continue
		}
		out[canonical] = append([]string(nil), values...)
	}
	return out
}
