// Package metrics exposes the Prometheus registry used by the ESI middleware.
// Metrics are defined with promauto next to the code that records them
// (client, cache, ratelimit); this package only serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the ESI client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects everything registered on Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - esi_errors_remaining (Gauge): Errors remaining in the last observed ESI error limit window
//   - esi_rate_limit_cooldowns_total (Counter): Cooldowns applied before propagating an error
//   - esi_rate_limit_cooldown_seconds (Histogram): Cooldown durations
//
// Cache Metrics (pkg/cache):
//   - esi_cache_hits_total{tier} (Counter): Hits by tier (ttl, response, etag)
//   - esi_cache_misses_total{tier} (Counter): Misses by tier
//   - esi_cache_writes_total{tier} (Counter): Entries written by tier
//   - esi_cache_written_bytes_total{layer} (Counter): Bytes written by store (redis, memory)
//   - esi_304_responses_total (Counter): 304 Not Modified responses served from the etag tier
//   - esi_conditional_requests_total (Counter): Conditional requests sent with If-None-Match
//   - esi_cache_errors_total{operation} (Counter): Cache errors (get, set, decode)
//
// Request Metrics (pkg/client):
//   - esi_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - esi_request_duration_seconds{endpoint} (Histogram): Pipeline duration by endpoint
//   - esi_errors_total{class} (Counter): Errors by class (client, server, transient, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - esi_retries_total{error_class} (Counter): Retries of 502/504 responses
//   - esi_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(esi_cache_hits_total[5m])) /
//   (sum(rate(esi_cache_hits_total[5m])) + sum(rate(esi_cache_misses_total[5m])))
//
//   # Error Limit Status
//   esi_errors_remaining < 20
//
//   # Time spent in cooldown
//   rate(esi_rate_limit_cooldown_seconds_sum[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(esi_request_duration_seconds_bucket[5m]))
//
//   # Revalidation Rate
//   rate(esi_304_responses_total[5m]) / rate(esi_conditional_requests_total[5m])
