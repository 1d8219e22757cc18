package client

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/esi-middleware/pkg/cache"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "empty user agent", mutate: func(c *Config) { c.UserAgent = "" }, errorMsg: "user-agent is required"},
		{name: "negative max retries", mutate: func(c *Config) { c.MaxRetries = -1 }, errorMsg: "max_retries must be >= 0"},
		{name: "zero cooldown threshold", mutate: func(c *Config) { c.CooldownThreshold = 0 }, errorMsg: "cooldown_threshold must be >= 1"},
		{name: "negative rate limit", mutate: func(c *Config) { c.RateLimit = -2 }, errorMsg: "rate_limit must be >= 0"},
		{name: "unknown strategy", mutate: func(c *Config) { c.CacheStrategy = Strategy(42) }, errorMsg: "unknown cache strategy"},
		{name: "invalid base url", mutate: func(c *Config) { c.BaseURL = "http://[::1" }, errorMsg: "invalid base url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(testUserAgent)
			tt.mutate(&cfg)

			c, err := New(cfg)
			if tt.errorMsg == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if c == nil {
					t.Fatal("expected client, got nil")
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.errorMsg)
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.errorMsg)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(testUserAgent)

	if cfg.BaseURL != "https://esi.evetech.net/" {
		t.Errorf("BaseURL = %s", cfg.BaseURL)
	}
	if cfg.Timeout != 11*time.Second {
		t.Errorf("Timeout = %v, want 11s", cfg.Timeout)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.CooldownThreshold != 10 {
		t.Errorf("CooldownThreshold = %d, want 10", cfg.CooldownThreshold)
	}
	if cfg.CacheStrategy != StrategyTTLCache {
		t.Errorf("CacheStrategy = %s, want ttl", cfg.CacheStrategy)
	}
}

func TestNew_DefaultsApplied(t *testing.T) {
	c, err := New(Config{UserAgent: testUserAgent, CooldownThreshold: 10})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	cfg := c.Config()
	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.CacheStrategy != StrategyTTLCache {
		t.Errorf("CacheStrategy = %s", cfg.CacheStrategy)
	}
	if _, ok := cfg.HTTPClient.(*http.Client); !ok {
		t.Errorf("HTTPClient = %T, want *http.Client", cfg.HTTPClient)
	}
	if c.Tracker() == nil {
		t.Error("Tracker() = nil")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name       string
		req        *Request
		wantURL    string
		wantMethod string
		wantAuth   string
	}{
		{
			name:       "leading slash",
			req:        &Request{URL: "/characters/1/"},
			wantURL:    "latest/characters/1/",
			wantMethod: http.MethodGet,
		},
		{
			name:       "missing slash",
			req:        &Request{URL: "characters/1/"},
			wantURL:    "latest/characters/1/",
			wantMethod: http.MethodGet,
		},
		{
			name:       "explicit version",
			req:        &Request{URL: "/universe/types/", Version: "v3", Method: "post"},
			wantURL:    "v3/universe/types/",
			wantMethod: http.MethodPost,
		},
		{
			name:       "literal token",
			req:        &Request{URL: "/characters/1/assets/", Token: LiteralToken("abc")},
			wantURL:    "latest/characters/1/assets/",
			wantMethod: http.MethodGet,
			wantAuth:   "Bearer abc",
		},
		{
			name: "deferred token",
			req: &Request{URL: "/characters/1/assets/", Token: DeferredToken(func(context.Context) (string, error) {
				return "xyz", nil
			})},
			wantURL:    "latest/characters/1/assets/",
			wantMethod: http.MethodGet,
			wantAuth:   "Bearer xyz",
		},
		{
			name:       "empty literal token",
			req:        &Request{URL: "/status/", Token: LiteralToken("")},
			wantURL:    "latest/status/",
			wantMethod: http.MethodGet,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, newFakeDoer(scripted{status: http.StatusOK}))

			if _, err := c.normalize(context.Background(), tt.req); err != nil {
				t.Fatalf("normalize() error = %v", err)
			}
			if tt.req.URL != tt.wantURL {
				t.Errorf("URL = %q, want %q", tt.req.URL, tt.wantURL)
			}
			if tt.req.Method != tt.wantMethod {
				t.Errorf("Method = %q, want %q", tt.req.Method, tt.wantMethod)
			}
			if got := tt.req.Header.Get("Authorization"); got != tt.wantAuth {
				t.Errorf("Authorization = %q, want %q", got, tt.wantAuth)
			}
			if tt.req.ID == "" {
				t.Error("ID not assigned")
			}
			if tt.req.Started().IsZero() {
				t.Error("start time not recorded")
			}
		})
	}
}

func TestNormalize_TokenReplacesHeaders(t *testing.T) {
	c, _ := newTestClient(t, newFakeDoer(scripted{status: http.StatusOK}))
	req := &Request{
		URL:    "/characters/1/wallet/",
		Token:  LiteralToken("abc"),
		Header: http.Header{"X-Custom": {"1"}},
	}

	if _, err := c.normalize(context.Background(), req); err != nil {
		t.Fatalf("normalize() error = %v", err)
	}
	if req.Header.Get("X-Custom") != "" {
		t.Error("caller headers should be replaced when a token resolves")
	}
	if len(req.Header) != 1 {
		t.Errorf("Header = %v, want only Authorization", req.Header)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	c, _ := newTestClient(t, newFakeDoer(scripted{status: http.StatusOK}))
	calls := 0
	req := &Request{URL: "/status/", Token: DeferredToken(func(context.Context) (string, error) {
		calls++
		return "abc", nil
	})}

	for range 2 {
		if _, err := c.normalize(context.Background(), req); err != nil {
			t.Fatalf("normalize() error = %v", err)
		}
	}
	if req.URL != "latest/status/" {
		t.Errorf("URL = %q after second normalize", req.URL)
	}
	if calls != 1 {
		t.Errorf("token resolved %d times, want 1", calls)
	}
}

func TestNormalize_EmptyTokenKeepsHeaders(t *testing.T) {
	tests := []struct {
		name  string
		token Token
	}{
		{name: "literal", token: LiteralToken("")},
		{name: "deferred", token: DeferredToken(func(context.Context) (string, error) { return "", nil })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, newFakeDoer(scripted{status: http.StatusOK}))
			req := &Request{URL: "/status/", Token: tt.token, Header: http.Header{"X-Custom": {"1"}}}

			if _, err := c.normalize(context.Background(), req); err != nil {
				t.Fatalf("normalize() error = %v", err)
			}
			if req.Header.Get("Authorization") != "" {
				t.Errorf("Authorization = %q, want none", req.Header.Get("Authorization"))
			}
			if req.Header.Get("X-Custom") != "1" {
				t.Error("caller headers should be kept when the token is empty")
			}
		})
	}
}

func TestDo_ReusedRequestGetsFullRetryBudget(t *testing.T) {
	doer := newFakeDoer(scripted{status: http.StatusBadGateway})
	c, _ := newTestClient(t, doer)
	req := NewRequest("/status/", nil)

	for i, want := range []int{4, 8} {
		_, err := c.Do(context.Background(), req)
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadGateway {
			t.Fatalf("Do() #%d error = %v, want 502 APIError", i+1, err)
		}
		if doer.calls() != want {
			t.Errorf("after Do() #%d transport calls = %d, want %d", i+1, doer.calls(), want)
		}
	}
	if req.Retries != 4 {
		t.Errorf("Retries = %d, want 4", req.Retries)
	}
}

func TestDo_ReusedRequestDropsStaleValidator(t *testing.T) {
	store := newRecordingStore()
	doer := newFakeDoer(
		scripted{status: http.StatusOK, header: http.Header{"Etag": {`"v1"`}}, body: `{"v":1}`},
		scripted{status: http.StatusNotModified},
		scripted{status: http.StatusOK, body: `{"v":2}`},
	)
	c, _ := newTestClient(t, doer, withStore(store), withStrategy(StrategyETagCache))
	ctx := context.Background()
	req := NewRequest("/markets/prices/", nil)

	if _, err := c.Do(ctx, req); err != nil {
		t.Fatalf("first Do() error = %v", err)
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		t.Fatalf("second Do() error = %v", err)
	}
	if resp.Cached != CacheStatusETag {
		t.Fatalf("second Cached = %q, want %q", resp.Cached, CacheStatusETag)
	}

	// The validator tier lapses; the next call must go out unconditional.
	store.delete(requestKey(req).ETag())

	resp, err = c.Do(ctx, req)
	if err != nil {
		t.Fatalf("third Do() error = %v", err)
	}
	if got := doer.last().Header.Get("If-None-Match"); got != "" {
		t.Errorf("third request If-None-Match = %q, want none", got)
	}
	if resp.Status != http.StatusOK || resp.Cached != CacheStatusMiss || string(resp.Body) != `{"v":2}` {
		t.Errorf("third response = %d %q %s", resp.Status, resp.Cached, resp.Body)
	}
}

func TestNormalize_TokenError(t *testing.T) {
	doer := newFakeDoer(scripted{status: http.StatusOK})
	c, _ := newTestClient(t, doer)
	sso := errors.New("sso unavailable")

	req := &Request{URL: "/status/", Token: DeferredToken(func(context.Context) (string, error) {
		return "", sso
	})}
	_, err := c.Do(context.Background(), req)
	if !errors.Is(err, ErrTokenUnavailable) || !errors.Is(err, sso) {
		t.Errorf("error = %v, want wrapped ErrTokenUnavailable and provider error", err)
	}
	if doer.calls() != 0 {
		t.Errorf("transport calls = %d, want 0", doer.calls())
	}
}

// Scenario A: no store configured.
func TestDo_DirectWithoutStore(t *testing.T) {
	doer := newFakeDoer(scripted{status: http.StatusOK, header: cacheHeaders(time.Minute), body: `{"name":"Tester"}`})
	c, _ := newTestClient(t, doer)

	resp, err := c.Get(context.Background(), "/characters/1/", nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.Cached != CacheStatusNone {
		t.Errorf("Cached = %q, want none", resp.Cached)
	}
	if string(resp.Body) != `{"name":"Tester"}` {
		t.Errorf("Body = %s", resp.Body)
	}
	if resp.URL != "https://esi.evetech.net/latest/characters/1/" {
		t.Errorf("URL = %s", resp.URL)
	}
	if resp.StatusText != "OK" {
		t.Errorf("StatusText = %q", resp.StatusText)
	}
	if doer.calls() != 1 {
		t.Errorf("transport calls = %d, want 1", doer.calls())
	}
}

// Scenario B: store configured, response cached for its expires window.
func TestDo_CachesForExpiresWindow(t *testing.T) {
	store := newRecordingStore()
	doer := newFakeDoer(scripted{status: http.StatusOK, header: cacheHeaders(300 * time.Second), body: `{"name":"Tester"}`})
	c, _ := newTestClient(t, doer, withStore(store))
	ctx := context.Background()

	if _, err := c.Get(ctx, "/characters/1/", nil); err != nil {
		t.Fatalf("first Get() error = %v", err)
	}
	ttl, ok := store.ttl(keyFor(t, c, "/characters/1/").String())
	if !ok || ttl != 300*time.Second {
		t.Errorf("ttl = %v (present %v), want 300s", ttl, ok)
	}

	resp, err := c.Get(ctx, "/characters/1/", nil)
	if err != nil {
		t.Fatalf("second Get() error = %v", err)
	}
	if resp.Cached != CacheStatusHit {
		t.Errorf("Cached = %q, want hit", resp.Cached)
	}
	if doer.calls() != 1 {
		t.Errorf("transport calls = %d, want 1", doer.calls())
	}
}

// Scenario C: three 502s then success.
func TestDo_RecoversFromOverload(t *testing.T) {
	doer := newFakeDoer(
		scripted{status: http.StatusBadGateway},
		scripted{status: http.StatusBadGateway},
		scripted{status: http.StatusBadGateway},
		scripted{status: http.StatusOK, body: `{}`},
	)
	c, _ := newTestClient(t, doer)

	resp, err := c.Get(context.Background(), "/characters/1/", nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("Status = %d, want 200", resp.Status)
	}
	if doer.calls() != 4 {
		t.Errorf("transport calls = %d, want 4", doer.calls())
	}
}

// Scenario D: a failing request with a low error budget is delayed.
func TestDo_CooldownBeforeError(t *testing.T) {
	doer := newFakeDoer(scripted{
		status: http.StatusBadRequest,
		body:   `{"error":"Invalid character ID"}`,
		header: http.Header{
			"X-Esi-Error-Limit-Remain": {"5"},
			"X-Esi-Error-Limit-Reset":  {"20"},
		},
	})
	c, sleeper := newTestClient(t, doer)

	_, err := c.Get(context.Background(), "/characters/abc/", nil)

	if got := sleeper.total(); got < 20*time.Second {
		t.Errorf("cooldown = %v, want >= 20s", got)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %T %v, want *APIError", err, err)
	}
	want := APIError{
		Status:    http.StatusBadRequest,
		Message:   "Invalid character ID",
		URL:       "latest/characters/abc/",
		RateLimit: RateLimitInfo{Remain: 5, Reset: 20},
	}
	if *apiErr != want {
		t.Errorf("APIError = %+v, want %+v", *apiErr, want)
	}

	snap := c.Tracker().Snapshot()
	if !snap.Known || snap.Remain != 5 {
		t.Errorf("tracker snapshot = %+v, want remain 5", snap)
	}
}

func TestDo_Elapsed(t *testing.T) {
	doer := newFakeDoer(scripted{status: http.StatusOK})
	c, _ := newTestClient(t, doer)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(150 * time.Millisecond)}
	c.now = func() time.Time {
		now := ticks[0]
		if len(ticks) > 1 {
			ticks = ticks[1:]
		}
		return now
	}

	resp, err := c.Get(context.Background(), "/status/", nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.Elapsed != 150*time.Millisecond {
		t.Errorf("Elapsed = %v, want 150ms", resp.Elapsed)
	}
	if resp.Request == nil || resp.Request.URL != "latest/status/" {
		t.Errorf("Request = %+v", resp.Request)
	}
}

func TestDo_ElapsedNeverNegative(t *testing.T) {
	c, _ := newTestClient(t, newFakeDoer(scripted{status: http.StatusOK}))

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	c.now = func() time.Time {
		calls++
		if calls == 1 {
			return base
		}
		return base.Add(-time.Second)
	}

	resp, err := c.Get(context.Background(), "/status/", nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.Elapsed < 0 {
		t.Errorf("Elapsed = %v, want >= 0", resp.Elapsed)
	}
}

func TestDo_DisableCache(t *testing.T) {
	store := newRecordingStore()
	doer := newFakeDoer(scripted{status: http.StatusOK, header: cacheHeaders(time.Minute), body: `{}`})
	c, _ := newTestClient(t, doer, withStore(store), func(cfg *Config) { cfg.DisableCache = true })

	for range 2 {
		if _, err := c.Get(context.Background(), "/status/", nil); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
	}
	if doer.calls() != 2 || store.len() != 0 {
		t.Errorf("calls = %d entries = %d, want 2 and 0", doer.calls(), store.len())
	}
}

func TestDo_RequestScopedStore(t *testing.T) {
	store := cache.NewMemoryStore(16)
	doer := newFakeDoer(scripted{status: http.StatusOK, header: cacheHeaders(time.Minute), body: `{}`})
	c, _ := newTestClient(t, doer)

	for range 2 {
		req := NewRequest("/status/", nil)
		req.Cache = store
		if _, err := c.Do(context.Background(), req); err != nil {
			t.Fatalf("Do() error = %v", err)
		}
	}
	if doer.calls() != 1 {
		t.Errorf("transport calls = %d, want 1", doer.calls())
	}
	if store.Len() != 1 {
		t.Errorf("store entries = %d, want 1", store.Len())
	}
}

func TestFetchPage(t *testing.T) {
	tests := []struct {
		name      string
		header    http.Header
		wantPages int
		wantErr   bool
	}{
		{name: "with X-Pages", header: http.Header{"X-Pages": {"7"}}, wantPages: 7},
		{name: "without X-Pages", header: http.Header{}, wantPages: 1},
		{name: "malformed X-Pages", header: http.Header{"X-Pages": {"lots"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := newFakeDoer(scripted{status: http.StatusOK, header: tt.header, body: `[1,2,3]`})
			c, _ := newTestClient(t, doer)

			data, pages, err := c.FetchPage(context.Background(), "/markets/10000002/orders/", 3)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchPage() error = %v", err)
			}
			if pages != tt.wantPages {
				t.Errorf("pages = %d, want %d", pages, tt.wantPages)
			}
			if string(data) != `[1,2,3]` {
				t.Errorf("data = %s", data)
			}
			if got := doer.last().URL.Query().Get("page"); got != "3" {
				t.Errorf("page param = %q, want 3", got)
			}
		})
	}
}
