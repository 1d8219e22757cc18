package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by tier
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esi_cache_hits_total",
			Help: "Total number of ESI cache hits",
		},
		[]string{"tier"}, // "ttl", "response"
	)

	// CacheMisses tracks cache misses by tier
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esi_cache_misses_total",
			Help: "Total number of ESI cache misses",
		},
		[]string{"tier"},
	)

	// NotModifiedResponses tracks 304 Not Modified responses served from the etag tier
	NotModifiedResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "esi_304_responses_total",
			Help: "Total number of ESI 304 Not Modified responses",
		},
	)

	// ConditionalRequestsSent tracks requests sent with If-None-Match
	ConditionalRequestsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "esi_conditional_requests_total",
			Help: "Total number of conditional requests sent with If-None-Match",
		},
	)

	// CacheWrites tracks successful entry writes by tier
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esi_cache_writes_total",
			Help: "Total number of cache entries written",
		},
		[]string{"tier"}, // "ttl", "response", "etag"
	)

	// CacheWrittenBytes tracks bytes written by store layer
	CacheWrittenBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esi_cache_written_bytes_total",
			Help: "Total bytes written to the ESI cache",
		},
		[]string{"layer"}, // "redis", "memory"
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esi_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "decode"
	)
)
