// Package pacing computes human-scale timing for the engagement loops:
// reading delays proportional to content length, pauses between actions,
// the acceptable-hours window, and session/break scheduling.
//
// The package holds no state beyond its Config and random source, so every
// function is safe to call from any loop.
package pacing

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Rand is the subset of *rand.Rand the model draws from.
type Rand interface {
	Float64() float64
	Int63n(n int64) int64
}

// Config holds the tunables of the pacing model.
type Config struct {
	// Reading delay = ReadBase + len(text)/ReadCharsPerSecond, jittered by ±ReadJitter.
	ReadBase           time.Duration
	ReadCharsPerSecond float64
	ReadJitter         float64
	ReadMin            time.Duration
	ReadMax            time.Duration

	// Inter-action pause range.
	PauseMin time.Duration
	PauseMax time.Duration

	// Reaction delay range applied right before posting.
	ReactionMin time.Duration
	ReactionMax time.Duration

	// Acceptable hours [ActiveStartHour, ActiveEndHour) in Location.
	// A window whose end is before its start wraps midnight.
	ActiveStartHour int
	ActiveEndHour   int
	Location        *time.Location

	// Session length (actions) and break duration ranges.
	SessionActionsMin int
	SessionActionsMax int
	BreakMin          time.Duration
	BreakMax          time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ReadBase:           3 * time.Second,
		ReadCharsPerSecond: 25,
		ReadJitter:         0.25,
		ReadMin:            2 * time.Second,
		ReadMax:            3 * time.Minute,
		PauseMin:           45 * time.Second,
		PauseMax:           4 * time.Minute,
		ReactionMin:        2 * time.Minute,
		ReactionMax:        12 * time.Minute,
		ActiveStartHour:    8,
		ActiveEndHour:      23,
		Location:           time.UTC,
		SessionActionsMin:  5,
		SessionActionsMax:  12,
		BreakMin:           20 * time.Minute,
		BreakMax:           90 * time.Minute,
	}
}

// Model is the pacing model bound to a config and random source.
type Model struct {
	cfg Config

	mu  sync.Mutex
	rnd Rand
}

// New creates a pacing model. If rnd is nil a time-seeded source is used.
func New(cfg Config, rnd Rand) *Model {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.ReadCharsPerSecond <= 0 {
		cfg.ReadCharsPerSecond = DefaultConfig().ReadCharsPerSecond
	}
	return &Model{cfg: cfg, rnd: rnd}
}

// Config returns the model configuration.
func (m *Model) Config() Config { return m.cfg }

func (m *Model) float() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rnd.Float64()
}

func (m *Model) intn(n int64) int64 {
	if n <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rnd.Int63n(n)
}

// ReadingDelay is the time a person would spend reading textLen characters.
func (m *Model) ReadingDelay(textLen int) time.Duration {
	secs := float64(textLen) / m.cfg.ReadCharsPerSecond
	d := float64(m.cfg.ReadBase) + secs*float64(time.Second)

	if m.cfg.ReadJitter > 0 {
		// uniform in [1-j, 1+j]
		factor := 1 + m.cfg.ReadJitter*(2*m.float()-1)
		d *= factor
	}
	return clamp(time.Duration(d), m.cfg.ReadMin, m.cfg.ReadMax)
}

// Pause returns a uniform draw in [min, max].
func (m *Model) Pause(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(m.intn(int64(max-min)+1))
}

// InterActionPause is the gap between two actions of one loop.
func (m *Model) InterActionPause() time.Duration {
	return m.Pause(m.cfg.PauseMin, m.cfg.PauseMax)
}

// ReactionDelay is the longer "noticed it a while ago" delay before posting.
func (m *Model) ReactionDelay() time.Duration {
	return m.Pause(m.cfg.ReactionMin, m.cfg.ReactionMax)
}

// IsActiveHour reports whether t falls inside the acceptable-hours window.
func (m *Model) IsActiveHour(t time.Time) bool {
	start, end := m.cfg.ActiveStartHour, m.cfg.ActiveEndHour
	if start == end {
		return true
	}
	h := t.In(m.cfg.Location).Hour()
	if start < end {
		return h >= start && h < end
	}
	return h >= start || h < end
}

// UntilActive returns how long to sleep before the window reopens; zero
// when t is already inside it.
func (m *Model) UntilActive(t time.Time) time.Duration {
	if m.IsActiveHour(t) {
		return 0
	}
	local := t.In(m.cfg.Location)
	next := time.Date(local.Year(), local.Month(), local.Day(), m.cfg.ActiveStartHour, 0, 0, 0, m.cfg.Location)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(local)
}

// SessionLength draws how many actions the next session runs before a break.
func (m *Model) SessionLength() int {
	lo, hi := m.cfg.SessionActionsMin, m.cfg.SessionActionsMax
	if lo <= 0 {
		lo = 1
	}
	if hi <= lo {
		return lo
	}
	return lo + int(m.intn(int64(hi-lo+1)))
}

// BreakDuration draws the length of a between-sessions break.
func (m *Model) BreakDuration() time.Duration {
	return m.Pause(m.cfg.BreakMin, m.cfg.BreakMax)
}

// Chance returns true with probability p.
func (m *Model) Chance(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return m.float() < p
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if lo > 0 && d < lo {
		return lo
	}
	if hi > 0 && d > hi {
		return hi
	}
	return time.Duration(math.Max(0, float64(d)))
}
