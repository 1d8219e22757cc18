package ratelimit

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var esiErrorsRemaining = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "esi_errors_remaining",
	Help: "Number of errors remaining in the last observed ESI rate limit window",
})

// Snapshot is the last error limit state seen by a Tracker.
type Snapshot struct {
	Known      bool      `json:"known"`
	Remain     int       `json:"remain"`
	Reset      int       `json:"reset"`
	ResetAt    time.Time `json:"reset_at"`
	ObservedAt time.Time `json:"observed_at"`
	Healthy    bool      `json:"healthy"`
}

// Tracker records the most recent error limit state for observability.
// It is process-local and never gates requests; cooldown decisions are
// always made from the response at hand.
type Tracker struct {
	mu       sync.RWMutex
	snapshot Snapshot
	logger   zerolog.Logger
	now      func() time.Time
}

// NewTracker creates a new rate limit tracker.
func NewTracker(logger zerolog.Logger) *Tracker {
	return &Tracker{
		logger: logger,
		now:    time.Now,
	}
}

// Observe records the state parsed from a response. States without a
// remain header are ignored.
func (t *Tracker) Observe(state State) {
	if !state.Present {
		return
	}

	now := t.now()
	snap := Snapshot{
		Known:      true,
		Remain:     state.Remain,
		Reset:      state.Reset,
		ResetAt:    now.Add(state.ResetDuration()),
		ObservedAt: now,
		Healthy:    state.IsHealthy(),
	}

	t.mu.Lock()
	previous := t.snapshot
	t.snapshot = snap
	t.mu.Unlock()

	esiErrorsRemaining.Set(float64(state.Remain))

	// Only log transitions to keep the hot path quiet.
	if previous.Known && previous.Remain == snap.Remain {
		return
	}

	switch {
	case state.Remain < DefaultCooldownThreshold:
		t.logger.Error().
			Int("errors_remaining", state.Remain).
			Int("reset", state.Reset).
			Msg("ESI error limit CRITICAL - errors will be delayed by cooldown")
	case state.Remain < ErrorThresholdWarning:
		t.logger.Warn().
			Int("errors_remaining", state.Remain).
			Int("reset", state.Reset).
			Msg("ESI error limit WARNING")
	default:
		t.logger.Debug().
			Int("errors_remaining", state.Remain).
			Bool("is_healthy", snap.Healthy).
			Msg("ESI error limit state updated")
	}
}

// Snapshot returns the last observed state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshot
}
