package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/Sternrassler/esi-middleware/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for retry operations.
var (
	esiRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esi_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	esiRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esi_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// Doer executes HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Runner executes a normalized request against ESI.
type Runner interface {
	Run(ctx context.Context, req *Request) (*Response, error)
}

// RetryEngine executes requests against the transport. It retries 502 and
// 504 responses immediately, up to maxRetries times, and holds back the
// propagation of any other failure while the error budget is low.
//
// Failed responses are returned as a *responseError; transport failures are
// returned as-is.
type RetryEngine struct {
	doer              Doer
	baseURL           string
	userAgent         string
	maxRetries        int
	cooldownThreshold int
	sleeper           ratelimit.Sleeper
	limiter           *rate.Limiter
	tracker           *ratelimit.Tracker
	logger            zerolog.Logger
}

// Run executes req until it succeeds or fails terminally.
func (e *RetryEngine) Run(ctx context.Context, req *Request) (*Response, error) {
	for {
		resp, err := e.execute(ctx, req)
		if err != nil {
			esiErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			e.logger.Error().Err(err).
				Str("request_id", req.ID).
				Str("endpoint", req.URL).
				Msg("ESI request failed without response")
			return nil, err
		}

		if !resp.failed() {
			if req.Retries > 0 {
				e.logger.Info().
					Str("request_id", req.ID).
					Str("endpoint", req.URL).
					Int("attempt", req.Retries+1).
					Msg("Request succeeded after retry")
			}
			return resp, nil
		}

		class := classifyStatus(resp.Status)

		if isTransient(resp.Status) {
			req.Retries++
			if req.Retries <= e.maxRetries {
				esiRetriesTotal.WithLabelValues(string(class)).Inc()
				e.logger.Warn().
					Str("request_id", req.ID).
					Str("endpoint", req.URL).
					Int("status", resp.Status).
					Int("attempt", req.Retries).
					Msg("ESI overloaded, retrying request")
				continue
			}

			esiRetryExhaustedTotal.WithLabelValues(string(class)).Inc()
			e.logger.Error().
				Str("request_id", req.ID).
				Str("endpoint", req.URL).
				Int("status", resp.Status).
				Int("max_retries", e.maxRetries).
				Msg("Retry attempts exhausted")
			return nil, &responseError{resp: resp}
		}

		state := ratelimit.FromHeaders(resp.Header)
		if state.NeedsCooldown(e.cooldownThreshold) {
			e.logger.Warn().
				Str("request_id", req.ID).
				Str("endpoint", req.URL).
				Int("errors_remaining", state.Remain).
				Int("reset", state.Reset).
				Msgf("Error limit has been reached, sleeping for %ds", state.Reset)

			if _, err := ratelimit.Cooldown(ctx, e.sleeper, state, e.cooldownThreshold); err != nil {
				return nil, fmt.Errorf("rate limit cooldown interrupted: %w", err)
			}
		}

		return nil, &responseError{resp: resp}
	}
}

// execute performs a single round trip and buffers the response.
func (e *RetryEngine) execute(ctx context.Context, req *Request) (*Response, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("request pacer: %w", err)
		}
	}

	target := e.baseURL + "/" + strings.TrimLeft(req.URL, "/")
	if len(req.Params) > 0 {
		target += "?" + req.Params.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header = req.Header.Clone()
	if httpReq.Header == nil {
		httpReq.Header = http.Header{}
	}
	httpReq.Header.Set("User-Agent", e.userAgent)
	httpReq.Header.Set("Accept", "application/json")

	e.logger.Debug().
		Str("request_id", req.ID).
		Str("method", req.Method).
		Str("endpoint", req.URL).
		Int("attempt", req.Retries+1).
		Msg("Executing ESI request")

	httpResp, err := e.doer.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, target, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if e.tracker != nil {
		e.tracker.Observe(ratelimit.FromHeaders(httpResp.Header))
	}

	return &Response{
		Status:     httpResp.StatusCode,
		StatusText: statusText(httpResp),
		Header:     httpResp.Header,
		Body:       body,
		URL:        target,
	}, nil
}

// statusText extracts the reason phrase from "404 Not Found".
func statusText(resp *http.Response) string {
	if text, ok := strings.CutPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "); ok && text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
