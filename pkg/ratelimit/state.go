// Package ratelimit implements ESI error rate limit handling.
// It reads the X-ESI-Error-Limit-Remain and X-ESI-Error-Limit-Reset headers
// from each response and enforces a cooldown before an error is propagated
// while the remaining error budget is low.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ESI error limit headers.
const (
	HeaderErrorLimitRemain = "X-ESI-Error-Limit-Remain"
	HeaderErrorLimitReset  = "X-ESI-Error-Limit-Reset"
)

// Thresholds for rate limit decisions.
const (
	// DefaultCooldownThreshold triggers a cooldown when errors remaining falls below this value.
	DefaultCooldownThreshold = 10

	// ErrorThresholdWarning marks the error budget as degraded below this value.
	ErrorThresholdWarning = 20

	// ErrorThresholdHealthy indicates normal operation at or above this value.
	ErrorThresholdHealthy = 50
)

// State is the error limit reported by a single response. It is derived
// fresh from every response and never persisted.
type State struct {
	// Remain is the number of errors allowed before ESI blocks the client.
	Remain int `json:"remain"`

	// Reset is the number of seconds until the error window resets.
	Reset int `json:"reset"`

	// Present is true when the response carried a parsable remain header.
	Present bool `json:"-"`
}

// FromHeaders parses the error limit headers. Missing or malformed headers
// yield zero values; Present reports whether the remain header was usable.
func FromHeaders(headers http.Header) State {
	var s State

	if remain, err := strconv.Atoi(strings.TrimSpace(headers.Get(HeaderErrorLimitRemain))); err == nil {
		s.Remain = remain
		s.Present = true
	}
	if reset, err := strconv.Atoi(strings.TrimSpace(headers.Get(HeaderErrorLimitReset))); err == nil {
		s.Reset = reset
	}

	return s
}

// NeedsCooldown returns true if the remaining error budget is below threshold.
func (s State) NeedsCooldown(threshold int) bool {
	return s.Present && s.Remain < threshold
}

// ResetDuration returns the reset window as a duration, never negative.
func (s State) ResetDuration() time.Duration {
	if s.Reset <= 0 {
		return 0
	}
	return time.Duration(s.Reset) * time.Second
}

// IsHealthy reports whether the error budget is at or above ErrorThresholdHealthy.
func (s State) IsHealthy() bool {
	return s.Remain >= ErrorThresholdHealthy
}
