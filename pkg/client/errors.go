package client

import (
	"fmt"
	"net/http"

	"github.com/Sternrassler/esi-middleware/pkg/ratelimit"
	"github.com/tidwall/gjson"
)

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassTransient represents 502/504 responses from an overloaded ESI.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassRateLimit represents 420 and 520 error limit responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// classifyStatus categorizes a failed status for observability and handling.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == 420 || status == 520:
		return ErrorClassRateLimit
	case isTransient(status):
		return ErrorClassTransient
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// isTransient reports whether ESI answered with one of its overload statuses.
func isTransient(status int) bool {
	return status == http.StatusBadGateway || status == http.StatusGatewayTimeout
}

// RateLimitInfo is the error limit snapshot attached to an APIError.
type RateLimitInfo struct {
	Remain int `json:"remain"`
	Reset  int `json:"reset"`
}

// APIError is the normalized form of an ESI error response.
type APIError struct {
	Status    int           `json:"status"`
	Message   string        `json:"message"`
	URL       string        `json:"url"`
	RateLimit RateLimitInfo `json:"ratelimit"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("ESI %s error (status %d) %s: %s", e.Class(), e.Status, e.URL, e.Message)
}

// Class returns the error classification of the status.
func (e *APIError) Class() ErrorClass {
	return classifyStatus(e.Status)
}

// newAPIError builds the normalized error for a failed response. ESI error
// bodies look like {"error": "Character not found"}; other bodies fall back to
// the status text.
func newAPIError(req *Request, resp *Response) *APIError {
	message := gjson.GetBytes(resp.Body, "error").String()
	if message == "" {
		message = resp.StatusText
	}

	state := ratelimit.FromHeaders(resp.Header)
	return &APIError{
		Status:  resp.Status,
		Message: message,
		URL:     req.URL,
		RateLimit: RateLimitInfo{
			Remain: state.Remain,
			Reset:  state.Reset,
		},
	}
}

// responseError carries a failed upstream response through the pipeline
// until the finalizer turns it into an APIError.
type responseError struct {
	resp *Response
}

func (e *responseError) Error() string {
	return fmt.Sprintf("ESI responded %d %s", e.resp.Status, e.resp.StatusText)
}
