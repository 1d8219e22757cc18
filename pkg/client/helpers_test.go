package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/esi-middleware/pkg/cache"
)

const testUserAgent = "TestApp/1.0.0 (test@example.com)"

// scripted is one canned transport outcome.
type scripted struct {
	status int
	header http.Header
	body   string
	err    error
}

// fakeDoer replays a script of responses and records every request. The
// last entry repeats once the script is exhausted.
type fakeDoer struct {
	mu       sync.Mutex
	script   []scripted
	requests []*http.Request
}

func newFakeDoer(script ...scripted) *fakeDoer {
	return &fakeDoer{script: script}
}

func (d *fakeDoer) Do(r *http.Request) (*http.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.requests = append(d.requests, r)
	idx := min(len(d.requests)-1, len(d.script)-1)
	s := d.script[idx]
	if s.err != nil {
		return nil, s.err
	}

	header := s.header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: s.status,
		Status:     fmt.Sprintf("%d %s", s.status, http.StatusText(s.status)),
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(s.body)),
		Request:    r,
	}, nil
}

func (d *fakeDoer) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

func (d *fakeDoer) last() *http.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests[len(d.requests)-1]
}

// recordingStore is an in-memory store that remembers the TTL of every write.
type recordingStore struct {
	mu     sync.Mutex
	values map[string][]byte
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		values: make(map[string][]byte),
		ttls:   make(map[string]time.Duration),
	}
}

func (s *recordingStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	v, ok := s.values[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return v, nil
}

func (s *recordingStore) SetWithExpiry(_ context.Context, key string, ttl time.Duration, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.values[key] = value
	s.ttls[key] = ttl
	return nil
}

func (s *recordingStore) ttl(key string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ttl, ok := s.ttls[key]
	return ttl, ok
}

func (s *recordingStore) delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	delete(s.ttls, key)
}

func (s *recordingStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

// fakeSleeper records cooldowns without waiting.
type fakeSleeper struct {
	mu    sync.Mutex
	slept []time.Duration
	err   error
}

func (s *fakeSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slept = append(s.slept, d)
	return s.err
}

func (s *fakeSleeper) total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total time.Duration
	for _, d := range s.slept {
		total += d
	}
	return total
}

// newTestClient builds a client around doer with a fake sleeper.
func newTestClient(t *testing.T, doer Doer, opts ...func(*Config)) (*Client, *fakeSleeper) {
	t.Helper()

	sleeper := &fakeSleeper{}
	cfg := DefaultConfig(testUserAgent)
	cfg.HTTPClient = doer
	cfg.Sleeper = sleeper
	for _, opt := range opts {
		opt(&cfg)
	}

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, sleeper
}

func withStore(store cache.Store) func(*Config) {
	return func(cfg *Config) { cfg.Cache = store }
}

func withStrategy(s Strategy) func(*Config) {
	return func(cfg *Config) { cfg.CacheStrategy = s }
}

// cacheHeaders returns Date/Expires headers lifetime apart.
func cacheHeaders(lifetime time.Duration) http.Header {
	date := time.Now().UTC().Truncate(time.Second)
	return http.Header{
		"Date":    {date.Format(http.TimeFormat)},
		"Expires": {date.Add(lifetime).Format(http.TimeFormat)},
	}
}

func withHeader(h http.Header, key, value string) http.Header {
	h = h.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set(key, value)
	return h
}
