// Package cache provides the storage side of ESI response caching.
//
// It contains:
//
// - Key derivation: a SHA-1 digest of method, URL, query parameters and
// the resolved Authorization header
// - Entry and ETagEntry, the serialized forms written to a Store
// - ResponseTTL, which turns the expires/date headers into a lifetime
// - Store implementations: RedisStore (go-redis) and MemoryStore (in-process LRU)
//
// The caching decisions themselves (when to read, when to write, how to
// revalidate) live in the client package adapters.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := cache.NewRedisStore(redisClient)
//
//	key := cache.NewKey(cache.Identity{
//		Method: "GET",
//		URL:    "latest/markets/10000002/orders/",
//		Params: url.Values{"order_type": []string{"all"}},
//	})
//
//	data, err := store.Get(ctx, key.String())
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// Cache miss - fetch from ESI
//	}
//
// # Two-Tier Keys
//
// The etag strategy uses two namespaces per key:
//
//   - key.Response() holds the full Entry for the lifetime given by expires
//   - key.ETag() holds the validator and last body for ten times as long
//
// # Metrics
//
//   - esi_cache_hits_total{tier} - Cache hits
//   - esi_cache_misses_total{tier} - Cache misses
//   - esi_304_responses_total - Revalidations answered with 304
//   - esi_conditional_requests_total - Requests sent with If-None-Match
//   - esi_cache_writes_total{tier} - Entries written
//   - esi_cache_written_bytes_total{layer} - Bytes written per store
//   - esi_cache_errors_total{operation} - Cache operation errors
//
// # ESI Compliance
//
// - MUST respect expires header (never serve a refetch before it)
// - SHOULD use conditional requests (If-None-Match) when possible
// - 304 Not Modified responses do NOT count against error limit
package cache
