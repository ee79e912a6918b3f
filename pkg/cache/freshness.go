package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// SelectTTL chooses the lifetime for a response about to be cached.
//
// When honorOrigin is false the configured fallback always wins. When
// true, explicit freshness directives from the origin take precedence:
// Cache-Control s-maxage, then max-age, then the Expires header. A
// directive that fails to parse falls through to the fallback.
func SelectTTL(headers http.Header, fallback time.Duration, honorOrigin bool) time.Duration {
	if !honorOrigin {
		return fallback
	}

	if ttl, ok := maxAgeTTL(headers); ok {
		return ttl
	}

	if ttl, ok := expiresTTL(headers); ok {
		return ttl
	}

	return fallback
}

func maxAgeTTL(headers http.Header) (time.Duration, bool) {
	cc := headers.Get("Cache-Control")
	if cc == "" {
		return 0, false
	}

	var maxAge time.Duration
	found := false

	for _, directive := range strings.Split(cc, ",") {
		name, value, hasValue := strings.Cut(strings.TrimSpace(directive), "=")
		if !hasValue {
			continue
		}

		switch strings.ToLower(name) {
		case "s-maxage":
			if seconds, err := strconv.Atoi(value); err == nil {
				// s-maxage targets shared caches and beats max-age
				return time.Duration(seconds) * time.Second, true
			}
		case "max-age":
			if seconds, err := strconv.Atoi(value); err == nil {
				maxAge = time.Duration(seconds) * time.Second
				found = true
			}
		}
	}

	return maxAge, found
}

func expiresTTL(headers http.Header) (time.Duration, bool) {
	expiresStr := headers.Get("Expires")
	if expiresStr == "" {
		return 0, false
	}

	expires, err := http.ParseTime(expiresStr)
	if err != nil {
		return 0, false
	}

	ttl := time.Until(expires)
	if ttl < 0 {
		return 0, true
	}
	return ttl, true
}
