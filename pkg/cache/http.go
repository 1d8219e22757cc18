package cache

import (
	"math"
	"net/http"
	"time"
)

const (
	// DefaultResponseTTL is the response lifetime assumed when ESI sends no
	// expires header. Only the validator tier is written in that case.
	DefaultResponseTTL = 600 * time.Second

	// ValidatorTTLFactor scales the response TTL into the validator TTL.
	ValidatorTTLFactor = 10
)

// ResponseTTL computes how long a response may be served from cache.
//
// The TTL is expires minus date, rounded up to whole seconds and never less
// than one second. When the date header is missing or unparsable, now is used
// instead. ok is false when the response has no usable expires header, in
// which case the response must not be cached.
func ResponseTTL(headers http.Header, now time.Time) (ttl time.Duration, ok bool) {
	expiresStr := headers.Get("Expires")
	if expiresStr == "" {
		return 0, false
	}

	expires, err := http.ParseTime(expiresStr)
	if err != nil {
		return 0, false
	}

	date := now
	if dateStr := headers.Get("Date"); dateStr != "" {
		if parsed, err := http.ParseTime(dateStr); err == nil {
			date = parsed
		}
	}

	seconds := math.Ceil(expires.Sub(date).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second, true
}

// ValidatorTTL returns the lifetime of the etag tier for a given response TTL.
func ValidatorTTL(responseTTL time.Duration) time.Duration {
	return responseTTL * ValidatorTTLFactor
}

// AddConditionalHeaders sets If-None-Match from a stored validator.
func AddConditionalHeaders(headers http.Header, entry *ETagEntry) {
	if headers == nil || entry == nil || entry.ETag == "" {
		return
	}
	headers.Set("If-None-Match", entry.ETag)
}
