package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Sternrassler/esi-middleware/pkg/client"
	"github.com/Sternrassler/esi-middleware/pkg/logging"
	"github.com/Sternrassler/esi-middleware/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// cacheBypass is the X-Cache value for responses that skipped the cache.
const cacheBypass = "bypass"

// pinger is implemented by stores with a health check (cache.RedisStore).
type pinger interface {
	Ping(ctx context.Context) error
}

// newRouter builds the HTTP router.
func newRouter(esiClient *client.Client, timeout time.Duration, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logging.Middleware(logger))

	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(esiClient))
	r.Get("/ratelimit", rateLimitHandler(esiClient))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/esi/{version}/*", proxyHandler(esiClient, timeout))

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// readyHandler reports 503 while the configured cache store is unreachable.
func readyHandler(esiClient *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p, ok := esiClient.Config().Cache.(pinger); ok {
			if err := p.Ping(r.Context()); err != nil {
				http.Error(w, "cache unavailable: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("OK"))
	}
}

func rateLimitHandler(esiClient *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, esiClient.Tracker().Snapshot())
	}
}

// proxyHandler serves /esi/{version}/{route} through the pipeline. Query
// parameters are forwarded and a bearer token in the incoming Authorization
// header authenticates the upstream request.
func proxyHandler(esiClient *client.Client, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		req := client.NewRequest("/"+chi.URLParam(r, "*"), r.URL.Query())
		req.Version = chi.URLParam(r, "version")
		req.ID = middleware.GetReqID(r.Context())
		if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && token != "" {
			req.Token = client.LiteralToken(token)
		}

		resp, err := esiClient.Do(ctx, req)
		if err != nil {
			writeError(w, req, err)
			return
		}

		for key, values := range resp.Header {
			if skipHeader(key) {
				continue
			}
			for _, value := range values {
				w.Header().Add(key, value)
			}
		}
		w.Header().Set("X-Cache", cacheHeader(resp.Cached))

		// A revalidated 304 carries the stored body; the downstream caller
		// never sent a validator, so it gets the payload as a 200.
		status := resp.Status
		if status == http.StatusNotModified && resp.Cached == client.CacheStatusETag {
			status = http.StatusOK
		}

		w.WriteHeader(status)
		if len(resp.Body) > 0 && status != http.StatusNotModified {
			_, _ = w.Write(resp.Body)
		}
	}
}

// writeError answers with the normalized error shape. Failures without an
// upstream response map to 504 on timeouts and 502 otherwise.
func writeError(w http.ResponseWriter, req *client.Request, err error) {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		w.Header().Set("X-Cache", cacheBypass)
		writeJSON(w, apiErr.Status, apiErr)
		return
	}

	status := http.StatusBadGateway
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, &client.APIError{
		Status:  status,
		Message: err.Error(),
		URL:     req.URL,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func cacheHeader(status client.CacheStatus) string {
	if status == client.CacheStatusNone {
		return cacheBypass
	}
	return string(status)
}

// skipHeader drops headers the server recomputes for the new body.
func skipHeader(key string) bool {
	switch http.CanonicalHeaderKey(key) {
	case "Content-Length", "Connection", "Transfer-Encoding", "Keep-Alive":
		return true
	}
	return false
}
