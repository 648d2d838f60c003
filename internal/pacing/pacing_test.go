package pacing

import (
	"testing"
	"time"
)

// fixedRand always returns the same draw.
type fixedRand struct{ f float64 }

func (r fixedRand) Float64() float64 { return r.f }
func (r fixedRand) Int63n(n int64) int64 {
	v := int64(r.f * float64(n))
	if v >= n {
		v = n - 1
	}
	return v
}

func TestReadingDelay_ProportionalToLength(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReadJitter = 0
	m := New(cfg, fixedRand{0.5})

	short := m.ReadingDelay(50)
	long := m.ReadingDelay(1000)

	if short >= long {
		t.Errorf("ReadingDelay(50)=%s should be shorter than ReadingDelay(1000)=%s", short, long)
	}
	// 3s base + 1000/25 = 43s
	if long != 43*time.Second {
		t.Errorf("ReadingDelay(1000) = %s, want 43s", long)
	}
}

func TestReadingDelay_Clamped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReadJitter = 0
	cfg.ReadMax = 10 * time.Second
	m := New(cfg, fixedRand{0.5})

	if got := m.ReadingDelay(100000); got != 10*time.Second {
		t.Errorf("ReadingDelay clamped = %s, want 10s", got)
	}
	if got := m.ReadingDelay(0); got != cfg.ReadBase {
		t.Errorf("ReadingDelay(0) = %s, want %s", got, cfg.ReadBase)
	}
}

func TestReadingDelay_Jitter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReadJitter = 0.5

	lo := New(cfg, fixedRand{0}).ReadingDelay(500)
	hi := New(cfg, fixedRand{0.999}).ReadingDelay(500)
	if lo >= hi {
		t.Errorf("jitter low=%s should be below high=%s", lo, hi)
	}
}

func TestPause_Range(t *testing.T) {
	m := New(DefaultConfig(), nil)
	for i := 0; i < 200; i++ {
		d := m.Pause(time.Second, 3*time.Second)
		if d < time.Second || d > 3*time.Second {
			t.Fatalf("Pause out of range: %s", d)
		}
	}
	if d := m.Pause(5*time.Second, time.Second); d != 5*time.Second {
		t.Errorf("Pause with inverted range = %s, want min", d)
	}
}

func TestReactionDelay_MinutesScale(t *testing.T) {
	m := New(DefaultConfig(), nil)
	read := m.ReadingDelay(200)
	react := m.ReactionDelay()
	if react < 2*time.Minute {
		t.Errorf("ReactionDelay = %s, want >= 2m", react)
	}
	if react <= read {
		t.Errorf("ReactionDelay %s should exceed reading delay %s", react, read)
	}
}

func TestIsActiveHour(t *testing.T) {
	day := func(h int) time.Time { return time.Date(2026, 3, 10, h, 30, 0, 0, time.UTC) }

	tests := []struct {
		name       string
		start, end int
		hour       int
		want       bool
	}{
		{"inside daytime", 8, 23, 12, true},
		{"before start", 8, 23, 7, false},
		{"at end", 8, 23, 23, false},
		{"wrap inside late", 22, 6, 23, true},
		{"wrap inside early", 22, 6, 3, true},
		{"wrap outside", 22, 6, 12, false},
		{"always", 0, 0, 4, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.ActiveStartHour, cfg.ActiveEndHour = tt.start, tt.end
			m := New(cfg, nil)
			if got := m.IsActiveHour(day(tt.hour)); got != tt.want {
				t.Errorf("IsActiveHour(%02d:30) = %v, want %v", tt.hour, got, tt.want)
			}
		})
	}
}

func TestUntilActive(t *testing.T) {
	cfg := DefaultConfig()
	m := New(cfg, nil)

	night := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	if got := m.UntilActive(night); got != 8*time.Hour+30*time.Minute {
		t.Errorf("UntilActive(23:30) = %s, want 8h30m", got)
	}

	early := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	if got := m.UntilActive(early); got != 2*time.Hour {
		t.Errorf("UntilActive(06:00) = %s, want 2h", got)
	}

	noon := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if got := m.UntilActive(noon); got != 0 {
		t.Errorf("UntilActive(12:00) = %s, want 0", got)
	}
}

func TestUntilActive_Location(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Location = time.FixedZone("UTC+3", 3*3600)
	m := New(cfg, nil)

	// 03:00 UTC is 06:00 local; window opens at 08:00 local
	at := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	if m.IsActiveHour(at) {
		t.Fatal("06:00 local should be outside the window")
	}
	if got := m.UntilActive(at); got != 2*time.Hour {
		t.Errorf("UntilActive = %s, want 2h", got)
	}
}

func TestSessionLengthAndBreak(t *testing.T) {
	cfg := DefaultConfig()
	m := New(cfg, nil)
	for i := 0; i < 100; i++ {
		n := m.SessionLength()
		if n < cfg.SessionActionsMin || n > cfg.SessionActionsMax {
			t.Fatalf("SessionLength = %d, outside [%d,%d]", n, cfg.SessionActionsMin, cfg.SessionActionsMax)
		}
		b := m.BreakDuration()
		if b < cfg.BreakMin || b > cfg.BreakMax {
			t.Fatalf("BreakDuration = %s outside range", b)
		}
	}
}

func TestChance(t *testing.T) {
	m := New(DefaultConfig(), fixedRand{0.3})
	if m.Chance(0) {
		t.Error("Chance(0) should be false")
	}
	if !m.Chance(1) {
		t.Error("Chance(1) should be true")
	}
	if !m.Chance(0.5) {
		t.Error("Chance(0.5) with draw 0.3 should be true")
	}
	if m.Chance(0.2) {
		t.Error("Chance(0.2) with draw 0.3 should be false")
	}
}
