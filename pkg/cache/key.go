package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"
)

// Namespace is the key prefix shared by every entry this proxy writes.
// Clearing the cache removes exactly the keys under this prefix, so
// other users of the same Redis are never touched.
const Namespace = "proxy:cache:"

// Keyer builds deterministic cache keys for requests against one origin.
//
// Two requests that are equivalent for caching purposes (same method,
// same normalized URL, same values for the whitelisted headers) always
// produce the same key. The origin identity is folded into the hashed
// input so proxies for different origins can share a Redis without
// collisions.
type Keyer struct {
	// Origin identifies the upstream, e.g. "https://api.example.com"
	Origin string

	// Headers is the whitelist of header names whose values take part
	// in the key, in the order given
	Headers []string
}

// NewKeyer creates a Keyer for the given origin base URL.
func NewKeyer(origin *url.URL, headers []string) Keyer {
	return Keyer{
		Origin:  strings.ToLower(origin.Scheme) + "://" + strings.ToLower(origin.Host),
		Headers: headers,
	}
}

// Build generates the cache key for a request. It is pure and never
// fails; malformed URLs are rejected by the handler before reaching it.
//
// The key is Namespace + hex(sha256(origin|METHOD|url|hdr:val...)).
// Scheme and host are lowercased, path and query ordering preserved.
func (k Keyer) Build(method string, u *url.URL, header http.Header) string {
	parts := []string{k.Origin, strings.ToUpper(method), normalizeURL(u)}

	for _, name := range k.Headers {
		if values, ok := header[http.CanonicalHeaderKey(name)]; ok {
			parts = append(parts, strings.ToLower(name)+":"+strings.Join(values, ","))
		}
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return Namespace + hex.EncodeToString(sum[:])
}

func normalizeURL(u *url.URL) string {
	normalized := *u
	normalized.Scheme = strings.ToLower(u.Scheme)
	normalized.Host = strings.ToLower(u.Host)
	return normalized.String()
}
