// Package config loads runtime tuning knobs from the environment: every
// knob has a hardcoded production default and can be overridden by an env
// var parsed defensively (a malformed value is silently ignored and the
// default kept, never a startup panic).
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every tunable governing timeouts, the generator client, and
// the retry policies layered on top of it.
type Config struct {
	// GeneratorBaseURL is the external music-generation service's base URL.
	GeneratorBaseURL string

	// GeneratorMaxConcurrent bounds the generator client's semaphore.
	GeneratorMaxConcurrent int

	// GeneratorCBThreshold is consecutive failures before the circuit opens.
	GeneratorCBThreshold int

	// GeneratorCBCooldown is how long the circuit stays open.
	GeneratorCBCooldown time.Duration

	// GeneratorSubmitMaxRetries caps submit-retry attempts; values above
	// len(RetryDelays()) are capped at that length.
	GeneratorSubmitMaxRetries int

	// GeneratorPollMaxAttempts caps the poll loop.
	GeneratorPollMaxAttempts int

	// GeneratorPollTimeout is the server-side long-poll timeout per attempt.
	GeneratorPollTimeout time.Duration

	// SectionChildTimeout bounds one section child's pipeline.
	SectionChildTimeout time.Duration

	// BassSignalWaitTimeout bounds bass's wait for the drum section's
	// completion signal.
	BassSignalWaitTimeout time.Duration

	// MaxSectionRetries caps server-owned section retries.
	MaxSectionRetries int

	// SnapshotRingSize is how many pre-transaction snapshots the state store retains.
	SnapshotRingSize int
}

// Default returns the production-ready defaults for every tunable above.
func Default() *Config {
	return &Config{
		GeneratorBaseURL:          "http://localhost:8080",
		GeneratorMaxConcurrent:    4,
		GeneratorCBThreshold:      3,
		GeneratorCBCooldown:       60 * time.Second,
		GeneratorSubmitMaxRetries: 4,
		GeneratorPollMaxAttempts:  30,
		GeneratorPollTimeout:      10 * time.Second,
		SectionChildTimeout:       180 * time.Second,
		BassSignalWaitTimeout:     60 * time.Second,
		MaxSectionRetries:         2,
		SnapshotRingSize:          10,
	}
}

// Load builds a Config from Default(), overridden by any of the
// MAESTRO_* environment variables that are set and parse cleanly.
func Load() *Config {
	c := Default()

	if v := os.Getenv("MAESTRO_GENERATOR_BASE_URL"); v != "" {
		c.GeneratorBaseURL = v
	}
	c.GeneratorMaxConcurrent = envInt("MAESTRO_GENERATOR_MAX_CONCURRENT", c.GeneratorMaxConcurrent)
	c.GeneratorCBThreshold = envInt("MAESTRO_GENERATOR_CB_THRESHOLD", c.GeneratorCBThreshold)
	c.GeneratorCBCooldown = envSeconds("MAESTRO_GENERATOR_CB_COOLDOWN_SECONDS", c.GeneratorCBCooldown)
	c.GeneratorSubmitMaxRetries = envInt("MAESTRO_GENERATOR_SUBMIT_MAX_RETRIES", c.GeneratorSubmitMaxRetries)
	c.GeneratorPollMaxAttempts = envInt("MAESTRO_GENERATOR_POLL_MAX_ATTEMPTS", c.GeneratorPollMaxAttempts)
	c.GeneratorPollTimeout = envSeconds("MAESTRO_GENERATOR_POLL_TIMEOUT_SECONDS", c.GeneratorPollTimeout)
	c.SectionChildTimeout = envSeconds("MAESTRO_SECTION_CHILD_TIMEOUT_SECONDS", c.SectionChildTimeout)
	c.BassSignalWaitTimeout = envSeconds("MAESTRO_BASS_SIGNAL_WAIT_TIMEOUT_SECONDS", c.BassSignalWaitTimeout)
	c.MaxSectionRetries = envInt("MAESTRO_MAX_SECTION_RETRIES", c.MaxSectionRetries)
	c.SnapshotRingSize = envInt("MAESTRO_SNAPSHOT_RING_SIZE", c.SnapshotRingSize)

	return c
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envSeconds(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

// RetryDelays returns the fixed submit-retry backoff schedule:
// [2, 5, 10, 20] seconds.
func RetryDelays() []time.Duration {
	return []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second, 20 * time.Second}
}

// SectionRetryDelays returns the fixed server-owned section retry backoff
// schedule: [2, 5] seconds.
func SectionRetryDelays() []time.Duration {
	return []time.Duration{2 * time.Second, 5 * time.Second}
}
