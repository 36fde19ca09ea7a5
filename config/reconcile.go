package config

import (
	"fmt"
	"time"
)

// ReconcileConfig tunes the existence oracle and the clock calibrator.
// Defaults: 10 polls one second apart, 12 minute future grace.
type ReconcileConfig struct {
	PollAttempts       int            `json:"poll_attempts,omitempty" yaml:"poll_attempts,omitempty" toml:"poll_attempts,omitempty"`                      // re-queries when an expected state is not yet visible
	PollIntervalMs     int            `json:"poll_interval_ms,omitempty" yaml:"poll_interval_ms,omitempty" toml:"poll_interval_ms,omitempty"`             // pause before each re-query
	FutureGraceMinutes int            `json:"future_grace_minutes,omitempty" yaml:"future_grace_minutes,omitempty" toml:"future_grace_minutes,omitempty"` // year-less listing dates further ahead than this are last year's
	Calibrate          bool           `json:"calibrate,omitempty" yaml:"calibrate,omitempty" toml:"calibrate,omitempty"`                                  // measure the clock offset at startup
	DegradedClock      bool           `json:"degraded_clock,omitempty" yaml:"degraded_clock,omitempty" toml:"degraded_clock,omitempty"`                   // use offset zero when uncalibrated instead of failing
	KnownClockOffsets  map[string]int `json:"known_clock_offsets,omitempty" yaml:"known_clock_offsets,omitempty" toml:"known_clock_offsets,omitempty"`    // server identity -> remote minus local, in seconds
	ReuseOffsets       bool           `json:"reuse_offsets,omitempty" yaml:"reuse_offsets,omitempty" toml:"reuse_offsets,omitempty"`                      // seed offsets from the cache database
}

// ApplyDefaults sets default values for reconcile configuration
func (rc *ReconcileConfig) ApplyDefaults() {
	if rc.PollAttempts <= 0 {
		rc.PollAttempts = 10
	}
	if rc.PollIntervalMs <= 0 {
		rc.PollIntervalMs = 1000
	}
	if rc.FutureGraceMinutes <= 0 {
		rc.FutureGraceMinutes = 12
	}
}

// Validate validates reconcile configuration
func (rc *ReconcileConfig) Validate() error {
	if rc.PollAttempts < 0 {
		return fmt.Errorf("poll_attempts cannot be negative")
	}
	if rc.PollIntervalMs < 0 {
		return fmt.Errorf("poll_interval_ms cannot be negative")
	}
	if rc.FutureGraceMinutes < 0 {
		return fmt.Errorf("future_grace_minutes cannot be negative")
	}
	for server := range rc.KnownClockOffsets {
		if server == "" {
			return fmt.Errorf("known_clock_offsets contains an empty server identity")
		}
	}
	return nil
}

func (rc *ReconcileConfig) PollInterval() time.Duration {
	return time.Duration(rc.PollIntervalMs) * time.Millisecond
}

func (rc *ReconcileConfig) FutureGrace() time.Duration {
	return time.Duration(rc.FutureGraceMinutes) * time.Minute
}

// KnownOffsets converts the configured offsets to durations.
func (rc *ReconcileConfig) KnownOffsets() map[string]time.Duration {
	out := make(map[string]time.Duration, len(rc.KnownClockOffsets))
	for server, secs := range rc.KnownClockOffsets {
		out[server] = time.Duration(secs) * time.Second
	}
	return out
}
