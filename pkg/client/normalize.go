package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// normalize rewrites req into canonical form and selects its adapter.
// Path and token rewriting happen once per request. Per-call state (start
// time, retry counter, conditional header) is reset on every call.
func (c *Client) normalize(ctx context.Context, req *Request) (Adapter, error) {
	req.start = c.now()
	req.Retries = 0

	if !req.normalized {
		if req.ID == "" {
			req.ID = uuid.NewString()
		}

		req.Method = strings.ToUpper(req.Method)
		if req.Method == "" {
			req.Method = http.MethodGet
		}

		path := req.URL
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		version := req.Version
		if version == "" {
			version = DefaultVersion
		}
		req.URL = version + path

		if req.Token != nil {
			token, err := req.Token.resolve(ctx)
			if err != nil {
				return nil, fmt.Errorf("resolve token: %w", err)
			}
			if token != "" {
				req.Header = http.Header{"Authorization": {"Bearer " + token}}
			}
		}
		if req.Header == nil {
			req.Header = http.Header{}
		}

		if req.Cache == nil && !c.config.DisableCache {
			req.Cache = c.config.Cache
		}

		req.normalized = true
	}

	// The etag adapter adds the validator it finds for this call.
	req.Header.Del("If-None-Match")

	return c.selectAdapter(req), nil
}

// selectAdapter picks the adapter for a normalized request.
func (c *Client) selectAdapter(req *Request) Adapter {
	if c.config.DisableCache || req.Cache == nil {
		return c.direct
	}

	strategy := req.Strategy
	if strategy == StrategyDefault {
		strategy = c.config.CacheStrategy
	}

	switch strategy {
	case StrategyETagCache:
		return c.etag
	case StrategyDirect:
		return c.direct
	default:
		return c.ttl
	}
}
