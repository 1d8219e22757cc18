// Package testutil provides a scriptable mock ESI server for tests.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockESIResponse defines the behavior for a mock ESI endpoint response.
type MockESIResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockESI is a configurable mock ESI server for testing. Paths are matched
// exactly, including the version prefix ("/latest/status/").
type MockESI struct {
	server   *httptest.Server
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	counts   map[string]int

	requestCount      int
	conditionalCount  int
	lastRequestHeader http.Header
}

// NewMockESI creates a new mock ESI server.
func NewMockESI() *MockESI {
	mock := &MockESI{
		handlers: make(map[string]http.HandlerFunc),
		counts:   make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.counts[r.URL.Path]++
		mock.lastRequestHeader = r.Header.Clone()
		if r.Header.Get("If-None-Match") != "" {
			mock.conditionalCount++
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockESI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockESI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockESI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.conditionalCount = 0
	m.lastRequestHeader = nil
	m.counts = make(map[string]int)
}

// SetHandler sets a custom handler for a specific path.
func (m *MockESI) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockESI) SetResponse(path string, resp MockESIResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, resp)
	})
}

// SetSequence serves the responses in order; the last one repeats.
func (m *MockESI) SetSequence(path string, responses ...MockESIResponse) {
	if len(responses) == 0 {
		panic("SetSequence requires at least one response")
	}

	var mu sync.Mutex
	next := 0
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[min(next, len(responses)-1)]
		next++
		mu.Unlock()

		writeResponse(w, resp)
	})
}

// SetPagedResponse serves page N of a paginated endpoint as a JSON array
// with a single element {"page": N}.
func (m *MockESI) SetPagedResponse(path string, totalPages int) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		page, err := strconv.Atoi(r.URL.Query().Get("page"))
		if err != nil || page < 1 {
			page = 1
		}
		if page > totalPages {
			writeResponse(w, NewErrorResponse(http.StatusNotFound, "Requested page does not exist"))
			return
		}

		resp := NewHealthyResponse(fmt.Sprintf(`[{"page":%d}]`, page))
		resp.Headers["X-Pages"] = strconv.Itoa(totalPages)
		delete(resp.Headers, "ETag")
		writeResponse(w, resp)
	})
}

// RequestCount returns the number of requests made to the server.
func (m *MockESI) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// PathCount returns the number of requests made to path.
func (m *MockESI) PathCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[path]
}

// ConditionalCount returns the number of requests carrying If-None-Match.
func (m *MockESI) ConditionalCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conditionalCount
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockESI) LastRequestHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequestHeader
}

// defaultHandler answers unknown paths like ESI's /status/ route.
func (m *MockESI) defaultHandler(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, NewHealthyResponse(`{"players":31337,"server_version":"2468526"}`))
}

func writeResponse(w http.ResponseWriter, resp MockESIResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}

	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// esiHeaders returns the headers ESI sends on every response.
func esiHeaders(remain, reset int) map[string]string {
	return map[string]string{
		"X-ESI-Error-Limit-Remain": strconv.Itoa(remain),
		"X-ESI-Error-Limit-Reset":  strconv.Itoa(reset),
		"Date":                     time.Now().UTC().Format(http.TimeFormat),
		"Content-Type":             "application/json; charset=utf-8",
	}
}

// NewHealthyResponse creates a 200 OK response cacheable for five minutes.
func NewHealthyResponse(data string) MockESIResponse {
	headers := esiHeaders(100, 60)
	headers["ETag"] = `"test-etag-123"`
	headers["Expires"] = time.Now().UTC().Add(5 * time.Minute).Format(http.TimeFormat)

	return MockESIResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers:    headers,
	}
}

// NewUncacheableResponse creates a 200 OK response without expires header.
func NewUncacheableResponse(data string) MockESIResponse {
	return MockESIResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers:    esiHeaders(100, 60),
	}
}

// NewNotModifiedResponse creates a 304 Not Modified response.
func NewNotModifiedResponse() MockESIResponse {
	headers := esiHeaders(100, 60)
	headers["Expires"] = time.Now().UTC().Add(5 * time.Minute).Format(http.TimeFormat)
	delete(headers, "Content-Type")

	return MockESIResponse{
		StatusCode: http.StatusNotModified,
		Headers:    headers,
	}
}

// NewErrorResponse creates an ESI error response with a healthy error budget.
func NewErrorResponse(status int, message string) MockESIResponse {
	return MockESIResponse{
		StatusCode: status,
		Body:       fmt.Sprintf(`{"error":%q}`, message),
		Headers:    esiHeaders(95, 60),
	}
}

// NewBadGatewayResponse creates the 502 ESI answers with while overloaded.
func NewBadGatewayResponse() MockESIResponse {
	return NewErrorResponse(http.StatusBadGateway, "Bad Gateway")
}

// NewGatewayTimeoutResponse creates the 504 ESI answers with while overloaded.
func NewGatewayTimeoutResponse() MockESIResponse {
	return NewErrorResponse(http.StatusGatewayTimeout, "Timeout contacting tranquility")
}

// NewErrorLimitedResponse creates an error response reporting a nearly
// exhausted error budget.
func NewErrorLimitedResponse(status, remain, reset int) MockESIResponse {
	resp := NewErrorResponse(status, "Error limited")
	resp.Headers = esiHeaders(remain, reset)
	return resp
}

// NewConditionalHandler creates a handler that responds with 304 when the
// request carries etag in If-None-Match.
func NewConditionalHandler(etag string, data string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == etag {
			writeResponse(w, NewNotModifiedResponse())
			return
		}

		resp := NewHealthyResponse(data)
		resp.Headers["ETag"] = etag
		writeResponse(w, resp)
	}
}
