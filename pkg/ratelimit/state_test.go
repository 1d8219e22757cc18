package ratelimit

import (
	"net/http"
	"testing"
	"time"
)

func TestFromHeaders(t *testing.T) {
	tests := []struct {
		name          string
		remainHeader  string
		resetHeader   string
		expected      State
		expectHealthy bool
	}{
		{
			name:          "healthy state",
			remainHeader:  "100",
			resetHeader:   "60",
			expected:      State{Remain: 100, Reset: 60, Present: true},
			expectHealthy: true,
		},
		{
			name:         "warning state",
			remainHeader: "15",
			resetHeader:  "30",
			expected:     State{Remain: 15, Reset: 30, Present: true},
		},
		{
			name:         "critical state",
			remainHeader: "5",
			resetHeader:  "20",
			expected:     State{Remain: 5, Reset: 20, Present: true},
		},
		{
			name:          "at healthy threshold",
			remainHeader:  "50",
			resetHeader:   "60",
			expected:      State{Remain: 50, Reset: 60, Present: true},
			expectHealthy: true,
		},
		{
			name:     "headers missing",
			expected: State{},
		},
		{
			name:         "malformed remain",
			remainHeader: "many",
			resetHeader:  "60",
			expected:     State{Reset: 60},
		},
		{
			name:         "reset missing",
			remainHeader: "42",
			expected:     State{Remain: 42, Present: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			if tt.remainHeader != "" {
				headers.Set("X-ESI-Error-Limit-Remain", tt.remainHeader)
			}
			if tt.resetHeader != "" {
				headers.Set("X-ESI-Error-Limit-Reset", tt.resetHeader)
			}

			got := FromHeaders(headers)
			if got != tt.expected {
				t.Errorf("FromHeaders() = %+v, want %+v", got, tt.expected)
			}
			if got.IsHealthy() != tt.expectHealthy {
				t.Errorf("IsHealthy() = %v, want %v", got.IsHealthy(), tt.expectHealthy)
			}
		})
	}
}

func TestState_NeedsCooldown(t *testing.T) {
	tests := []struct {
		name      string
		state     State
		threshold int
		want      bool
	}{
		{name: "below threshold", state: State{Remain: 9, Present: true}, threshold: 10, want: true},
		{name: "at threshold", state: State{Remain: 10, Present: true}, threshold: 10, want: false},
		{name: "exhausted", state: State{Remain: 0, Present: true}, threshold: 10, want: true},
		{name: "header absent", state: State{}, threshold: 10, want: false},
		{name: "custom threshold", state: State{Remain: 15, Present: true}, threshold: 20, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.NeedsCooldown(tt.threshold); got != tt.want {
				t.Errorf("NeedsCooldown(%d) = %v, want %v", tt.threshold, got, tt.want)
			}
		})
	}
}

func TestState_ResetDuration(t *testing.T) {
	if got := (State{Reset: 20}).ResetDuration(); got != 20*time.Second {
		t.Errorf("ResetDuration() = %v, want 20s", got)
	}
	if got := (State{Reset: -5}).ResetDuration(); got != 0 {
		t.Errorf("ResetDuration() with negative reset = %v, want 0", got)
	}
}
