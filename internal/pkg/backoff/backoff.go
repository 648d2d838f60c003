// Package backoff computes capped exponential delays and tracks reconnect
// attempts for long-running loops.
package backoff

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// ErrExhausted is returned by Next once the maximum attempt count is used up.
var ErrExhausted = errors.New("backoff: max attempts exhausted")

// Config controls the delay curve.
type Config struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
}

// DefaultConfig matches the reconnect policy of the monitor.
func DefaultConfig() Config {
	return Config{
		Base:        5 * time.Second,
		Max:         5 * time.Minute,
		MaxAttempts: 10,
	}
}

// Delay returns base * 2^attempt capped at max. Attempt is zero-based.
func Delay(base, max time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	exp := float64(base) * math.Pow(2, float64(attempt))
	if max > 0 && exp > float64(max) {
		exp = float64(max)
	}
	if exp > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(exp)
}

// Tracker counts consecutive failed attempts. Reset is called on success.
// Safe for concurrent use.
type Tracker struct {
	cfg Config

	mu      sync.Mutex
	attempt int
}

// NewTracker creates a tracker. Zero fields in cfg fall back to DefaultConfig.
func NewTracker(cfg Config) *Tracker {
	def := DefaultConfig()
	if cfg.Base <= 0 {
		cfg.Base = def.Base
	}
	if cfg.Max <= 0 {
		cfg.Max = def.Max
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	return &Tracker{cfg: cfg}
}

// Next consumes one attempt and returns how long to wait before it.
// Once MaxAttempts have been consumed it returns ErrExhausted.
func (t *Tracker) Next() (time.Duration, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.attempt >= t.cfg.MaxAttempts {
		return 0, fmt.Errorf("%w after %d attempts", ErrExhausted, t.attempt)
	}
	d := Delay(t.cfg.Base, t.cfg.Max, t.attempt)
	t.attempt++
	return d, nil
}

// Reset clears the attempt counter.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.attempt = 0
	t.mu.Unlock()
}

// Attempts returns the number of attempts consumed since the last Reset.
func (t *Tracker) Attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempt
}
