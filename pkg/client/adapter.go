package client

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Sternrassler/esi-middleware/pkg/cache"
	"github.com/rs/zerolog"
)

// Adapter executes a normalized request, optionally through a cache.
type Adapter interface {
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// DirectAdapter sends every request upstream.
type DirectAdapter struct {
	runner Runner
}

// NewDirectAdapter creates an adapter without caching.
func NewDirectAdapter(runner Runner) *DirectAdapter {
	return &DirectAdapter{runner: runner}
}

// Execute delegates to the runner.
func (a *DirectAdapter) Execute(ctx context.Context, req *Request) (*Response, error) {
	return a.runner.Run(ctx, req)
}

// TTLCacheAdapter serves responses from req.Cache until their expires time
// and never revalidates them upstream.
type TTLCacheAdapter struct {
	runner Runner
	logger zerolog.Logger
	now    func() time.Time
}

// NewTTLCacheAdapter creates a TTL caching adapter.
func NewTTLCacheAdapter(runner Runner, logger zerolog.Logger) *TTLCacheAdapter {
	return &TTLCacheAdapter{runner: runner, logger: logger, now: time.Now}
}

// Execute returns the cached entry for req or fetches and caches it.
func (a *TTLCacheAdapter) Execute(ctx context.Context, req *Request) (*Response, error) {
	store := req.Cache
	if store == nil {
		return a.runner.Run(ctx, req)
	}

	key := requestKey(req)
	if entry := lookup(ctx, a.logger, store, key.String(), "ttl", cache.DecodeEntry); entry != nil {
		resp := responseFromEntry(entry, req)
		resp.Cached = CacheStatusHit
		a.logger.Debug().Str("request_id", req.ID).Str("endpoint", req.URL).Msg("Cache hit")
		return resp, nil
	}

	resp, err := a.runner.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	resp.Cached = CacheStatusMiss

	if ttl, ok := cache.ResponseTTL(resp.Header, a.now()); ok && resp.OK() {
		write(ctx, a.logger, store, key.String(), "ttl", ttl, resp.entry())
	}

	return resp, nil
}

// ETagCacheAdapter keeps two tiers per request: the full response for its
// TTL, and the validator with the last body for ten times as long, so an
// expired response can be revalidated with If-None-Match. The validator tier
// is only written when the response carries an ETag header.
type ETagCacheAdapter struct {
	runner Runner
	logger zerolog.Logger
	now    func() time.Time
}

// NewETagCacheAdapter creates a two-tier caching adapter.
func NewETagCacheAdapter(runner Runner, logger zerolog.Logger) *ETagCacheAdapter {
	return &ETagCacheAdapter{runner: runner, logger: logger, now: time.Now}
}

// Execute serves req from the response tier, revalidates it with the stored
// validator, or fetches it fresh.
func (a *ETagCacheAdapter) Execute(ctx context.Context, req *Request) (*Response, error) {
	store := req.Cache
	if store == nil {
		return a.runner.Run(ctx, req)
	}

	key := requestKey(req)
	if entry := lookup(ctx, a.logger, store, key.Response(), "response", cache.DecodeEntry); entry != nil {
		resp := responseFromEntry(entry, req)
		resp.Cached = CacheStatusHit
		a.logger.Debug().Str("request_id", req.ID).Str("endpoint", req.URL).Msg("Cache hit")
		return resp, nil
	}

	validator := lookup(ctx, a.logger, store, key.ETag(), "etag", cache.DecodeETagEntry)
	if validator != nil {
		if req.Header == nil {
			req.Header = http.Header{}
		}
		cache.AddConditionalHeaders(req.Header, validator)
		cache.ConditionalRequestsSent.Inc()
		a.logger.Debug().
			Str("request_id", req.ID).
			Str("endpoint", req.URL).
			Str("etag", validator.ETag).
			Msg("Making conditional request")
	}

	resp, err := a.runner.Run(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.Status == http.StatusNotModified {
		if validator == nil {
			// Unsolicited 304; nothing stored to serve.
			resp.Cached = CacheStatusMiss
			return resp, nil
		}
		cache.NotModifiedResponses.Inc()
		resp.Body = validator.Data
		resp.Cached = CacheStatusETag
		a.logger.Debug().Str("request_id", req.ID).Str("endpoint", req.URL).Msg("304 Not Modified - using cached body")
		return resp, nil
	}

	resp.Cached = CacheStatusMiss
	if !resp.OK() {
		return resp, nil
	}

	ttl, ok := cache.ResponseTTL(resp.Header, a.now())
	if ok {
		write(ctx, a.logger, store, key.Response(), "response", ttl, resp.entry())
	} else {
		ttl = cache.DefaultResponseTTL
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		write(ctx, a.logger, store, key.ETag(), "etag", cache.ValidatorTTL(ttl), &cache.ETagEntry{ETag: etag, Data: resp.Body})
	}

	return resp, nil
}

// requestKey derives the cache key from the normalized request.
func requestKey(req *Request) cache.Key {
	return cache.NewKey(cache.Identity{
		Method: req.Method,
		URL:    req.URL,
		Params: req.Params,
		Auth:   req.Header.Get("Authorization"),
	})
}

// lookup reads and decodes a cache entry. Read and decode failures are
// logged and reported as a miss.
func lookup[T any](ctx context.Context, logger zerolog.Logger, store cache.Store, key, tier string, decode func([]byte) (*T, error)) *T {
	data, err := store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			cache.CacheErrors.WithLabelValues("get").Inc()
			logger.Warn().Err(err).Str("key", key).Msg("Cache get error")
		}
		cache.CacheMisses.WithLabelValues(tier).Inc()
		return nil
	}

	entry, err := decode(data)
	if err != nil {
		cache.CacheErrors.WithLabelValues("decode").Inc()
		cache.CacheMisses.WithLabelValues(tier).Inc()
		logger.Warn().Err(err).Str("key", key).Msg("Discarding unreadable cache entry")
		return nil
	}

	cache.CacheHits.WithLabelValues(tier).Inc()
	return entry
}

type encoder interface {
	Encode() ([]byte, error)
}

// write stores an entry. Failures are logged and counted but never fail the
// request.
func write(ctx context.Context, logger zerolog.Logger, store cache.Store, key, tier string, ttl time.Duration, entry encoder) {
	data, err := entry.Encode()
	if err == nil {
		err = store.SetWithExpiry(ctx, key, ttl, data)
	}
	if err != nil {
		cache.CacheErrors.WithLabelValues("set").Inc()
		logger.Warn().Err(err).Str("key", key).Msg("Failed to cache response")
		return
	}

	cache.CacheWrites.WithLabelValues(tier).Inc()
	logger.Debug().Str("key", key).Str("tier", tier).Dur("ttl", ttl).Msg("Cached response")
}
