package client

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Sternrassler/esi-middleware/pkg/cache"
)

// DefaultVersion is the ESI route version used when a request sets none.
const DefaultVersion = "latest"

// Strategy selects the adapter that executes a request.
type Strategy int

const (
	// StrategyDefault defers to Config.CacheStrategy.
	StrategyDefault Strategy = iota

	// StrategyDirect never touches the cache.
	StrategyDirect

	// StrategyTTLCache serves cached responses until their expires time.
	StrategyTTLCache

	// StrategyETagCache adds a long-lived validator tier on top of the TTL tier.
	StrategyETagCache
)

// String returns the configuration name of the strategy.
func (s Strategy) String() string {
	switch s {
	case StrategyDefault:
		return "default"
	case StrategyDirect:
		return "direct"
	case StrategyTTLCache:
		return "ttl"
	case StrategyETagCache:
		return "etag"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy parses a configuration value such as "ttl" or "etag".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return StrategyDefault, nil
	case "direct", "none":
		return StrategyDirect, nil
	case "ttl":
		return StrategyTTLCache, nil
	case "etag":
		return StrategyETagCache, nil
	default:
		return StrategyDefault, fmt.Errorf("unknown cache strategy %q", s)
	}
}

// Request describes a single ESI call. The pipeline rewrites it in place:
// the URL gains its version prefix, the Authorization header is installed and
// Retries counts transient upstream failures. A Request must not be shared
// between concurrent Do calls.
type Request struct {
	// Method defaults to GET
	Method string

	// URL is the route path, e.g. "/characters/1/". After normalization it
	// holds the canonical form "latest/characters/1/".
	URL string

	// Params are the query parameters
	Params url.Values

	// Header holds request headers. It is replaced when a token resolves.
	Header http.Header

	// Token authenticates the request; nil for public endpoints
	Token Token

	// Version is the ESI route version ("latest", "dev", "v4", ...)
	Version string

	// Retries counts the transient failures retried so far
	Retries int

	// Cache overrides the client's store for this request
	Cache cache.Store

	// Strategy overrides the client's cache strategy for this request
	Strategy Strategy

	// ID correlates log lines; assigned during normalization if empty
	ID string

	start      time.Time
	normalized bool
}

// NewRequest creates a GET request for an ESI route.
func NewRequest(path string, params url.Values) *Request {
	return &Request{
		Method: http.MethodGet,
		URL:    path,
		Params: params,
	}
}

// Started returns the time the request entered the pipeline.
func (r *Request) Started() time.Time {
	return r.start
}

// CacheStatus reports how a response was served.
type CacheStatus string

const (
	// CacheStatusNone marks responses that bypassed the cache.
	CacheStatusNone CacheStatus = ""

	// CacheStatusMiss marks a fresh upstream payload.
	CacheStatusMiss CacheStatus = "false"

	// CacheStatusHit marks a response served from the response tier.
	CacheStatusHit CacheStatus = "true"

	// CacheStatusETag marks a response revalidated upstream but unchanged.
	CacheStatusETag CacheStatus = "etag"
)

// Response is a fully buffered ESI response.
type Response struct {
	Status     int
	StatusText string
	Header     http.Header
	Body       []byte

	// URL is the absolute URL the response was fetched from
	URL string

	Cached  CacheStatus
	Elapsed time.Duration

	// Request is the normalized request that produced this response
	Request *Request
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

func (r *Response) failed() bool {
	return r.Status >= http.StatusBadRequest
}

func responseFromEntry(entry *cache.Entry, req *Request) *Response {
	return &Response{
		Status:     entry.Status,
		StatusText: entry.StatusText,
		Header:     entry.Headers,
		Body:       entry.Data,
		URL:        entry.URL,
		Request:    req,
	}
}

func (r *Response) entry() *cache.Entry {
	return &cache.Entry{
		Status:     r.Status,
		StatusText: r.StatusText,
		Headers:    r.Header,
		Data:       r.Body,
		URL:        r.URL,
	}
}
