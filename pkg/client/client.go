// Package client provides the ESI request pipeline: request normalization,
// cache adapter selection, bounded retry with error limit cooldown, and
// response finalization.
package client

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/esi-middleware/pkg/cache"
	"github.com/Sternrassler/esi-middleware/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Prometheus metrics for ESI client operations.
var (
	esiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esi_requests_total",
		Help: "Total ESI requests by endpoint and status",
	}, []string{"endpoint", "status"})

	esiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "esi_request_duration_seconds",
		Help:    "ESI request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	esiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esi_errors_total",
		Help: "Total ESI errors by class",
	}, []string{"class"})
)

const (
	// DefaultBaseURL is the public ESI host.
	DefaultBaseURL = "https://esi.evetech.net/"

	// DefaultTimeout bounds a single round trip to ESI.
	DefaultTimeout = 11 * time.Second

	// DefaultMaxRetries is the number of retries for 502/504 responses.
	DefaultMaxRetries = 3
)

// Client is the main ESI client. It is safe for concurrent use.
type Client struct {
	config  Config
	engine  *RetryEngine
	direct  Adapter
	ttl     Adapter
	etag    Adapter
	tracker *ratelimit.Tracker
	logger  zerolog.Logger
	now     func() time.Time
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the ESI host, default DefaultBaseURL
	BaseURL string

	// User-Agent header (REQUIRED by ESI)
	// Format: "AppName/Version (contact@example.com)"
	UserAgent string

	// Timeout applies to the default HTTP client only
	Timeout time.Duration

	// HTTPClient overrides the transport
	HTTPClient Doer

	// Cache is the default store; requests may carry their own
	Cache cache.Store

	// CacheStrategy is used for requests that do not choose one
	CacheStrategy Strategy

	// DisableCache forces every request through the direct adapter
	DisableCache bool

	// Retry
	MaxRetries int

	// CooldownThreshold delays errors while fewer errors than this remain
	CooldownThreshold int

	// RateLimit paces outgoing requests per second; 0 disables pacing
	RateLimit float64
	RateBurst int

	// Sleeper performs the error limit cooldown, default ratelimit.TimerSleeper
	Sleeper ratelimit.Sleeper
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		UserAgent:         userAgent,
		Timeout:           DefaultTimeout,
		CacheStrategy:     StrategyTTLCache,
		MaxRetries:        DefaultMaxRetries,
		CooldownThreshold: ratelimit.DefaultCooldownThreshold,
	}
}

// New creates a new ESI client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}

	if cfg.CooldownThreshold < 1 {
		return nil, fmt.Errorf("cooldown_threshold must be >= 1 (got %d)", cfg.CooldownThreshold)
	}

	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate_limit must be >= 0 (got %v)", cfg.RateLimit)
	}

	switch cfg.CacheStrategy {
	case StrategyDefault:
		cfg.CacheStrategy = StrategyTTLCache
	case StrategyDirect, StrategyTTLCache, StrategyETagCache:
	default:
		return nil, fmt.Errorf("unknown cache strategy %s", cfg.CacheStrategy)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = newHTTPClient(cfg.Timeout)
	}
	if cfg.Sleeper == nil {
		cfg.Sleeper = ratelimit.TimerSleeper
	}

	logger := log.With().Str("component", "esi-client").Logger()
	tracker := ratelimit.NewTracker(logger)

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := max(cfg.RateBurst, 1)
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	engine := &RetryEngine{
		doer:              cfg.HTTPClient,
		baseURL:           strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:         cfg.UserAgent,
		maxRetries:        cfg.MaxRetries,
		cooldownThreshold: cfg.CooldownThreshold,
		sleeper:           cfg.Sleeper,
		limiter:           limiter,
		tracker:           tracker,
		logger:            logger,
	}

	return &Client{
		config:  cfg,
		engine:  engine,
		direct:  NewDirectAdapter(engine),
		ttl:     NewTTLCacheAdapter(engine, logger),
		etag:    NewETagCacheAdapter(engine, logger),
		tracker: tracker,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// newHTTPClient returns a keep-alive client with a fixed round trip timeout.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Do runs req through the pipeline. Upstream error responses are returned as
// *APIError; transport failures and context errors are returned unchanged.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	adapter, err := c.normalize(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := adapter.Execute(ctx, req)
	resp, err = c.finalize(req, resp, err)

	endpoint := req.URL
	esiRequestDuration.WithLabelValues(endpoint).Observe(c.now().Sub(req.start).Seconds())

	if err != nil {
		if apiErr, ok := err.(*APIError); ok {
			esiRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(apiErr.Status)).Inc()
			esiErrorsTotal.WithLabelValues(string(apiErr.Class())).Inc()
			c.logger.Warn().
				Str("request_id", req.ID).
				Str("endpoint", endpoint).
				Int("status", apiErr.Status).
				Str("error_class", string(apiErr.Class())).
				Msg("ESI request error")
		} else {
			esiRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		}
		return nil, err
	}

	esiRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.Status)).Inc()
	c.logger.Debug().
		Str("request_id", req.ID).
		Str("endpoint", endpoint).
		Int("status", resp.Status).
		Str("cache", string(resp.Cached)).
		Dur("elapsed", resp.Elapsed).
		Msg("ESI request complete")

	return resp, nil
}

// Get performs a GET request to an ESI route such as "/characters/1/".
func (c *Client) Get(ctx context.Context, path string, params url.Values) (*Response, error) {
	return c.Do(ctx, NewRequest(path, params))
}

// FetchPage fetches one page of a paginated endpoint and returns its body
// together with the X-Pages total (1 when the header is absent).
func (c *Client) FetchPage(ctx context.Context, endpoint string, page int) ([]byte, int, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))

	resp, err := c.Get(ctx, endpoint, params)
	if err != nil {
		return nil, 0, err
	}

	pages := 1
	if header := resp.Header.Get("X-Pages"); header != "" {
		n, err := strconv.Atoi(header)
		if err != nil || n < 1 {
			return nil, 0, fmt.Errorf("invalid X-Pages header %q", header)
		}
		pages = n
	}

	return resp.Body, pages, nil
}

// Tracker returns the last observed error limit state.
func (c *Client) Tracker() *ratelimit.Tracker {
	return c.tracker
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.config
}
