package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/engagement-engine/internal/domain"
	"github.com/ignite/engagement-engine/internal/pacing"
	"github.com/ignite/engagement-engine/internal/pkg/logger"
)

// SessionTracker counts actions in the current activity session and
// schedules breaks. Every change is checkpointed to the store.
type SessionTracker struct {
	tenantID   string
	store      SessionStore
	pacing     *pacing.Model
	resetAfter time.Duration
	now        func() time.Time
	log        *logger.Logger

	mu    sync.Mutex
	state domain.SessionState
}

// NewSessionTracker creates a tracker. A nil store keeps state in memory only.
func NewSessionTracker(tenantID string, store SessionStore, model *pacing.Model, resetAfter time.Duration) *SessionTracker {
	t := &SessionTracker{
		tenantID:   tenantID,
		store:      store,
		pacing:     model,
		resetAfter: resetAfter,
		now:        func() time.Time { return time.Now().UTC() },
		log:        logger.With("component", "session", "tenant", tenantID),
	}
	t.state = t.fresh(t.now())
	return t
}

func (t *SessionTracker) fresh(now time.Time) domain.SessionState {
	return domain.SessionState{
		TenantID:  t.tenantID,
		StartedAt: now,
		Target:    t.pacing.SessionLength(),
	}
}

// Restore loads the last checkpoint. A checkpoint older than resetAfter is
// discarded and a fresh session begins.
func (t *SessionTracker) Restore(ctx context.Context) error {
	now := t.now()
	var saved *domain.SessionState
	if t.store != nil {
		st, err := t.store.LoadSession(ctx, t.tenantID)
		if err != nil {
			return err
		}
		saved = st
	}

	t.mu.Lock()
	switch {
	case saved == nil:
		t.state = t.fresh(now)
	case t.resetAfter > 0 && now.Sub(saved.CheckpointedAt) > t.resetAfter:
		t.log.Info("stale session checkpoint discarded", "checkpointed_at", saved.CheckpointedAt.Format(time.RFC3339))
		t.state = t.fresh(now)
	default:
		t.state = *saved
		if t.state.Target <= 0 {
			t.state.Target = t.pacing.SessionLength()
		}
		t.log.Info("session resumed", "actions", t.state.Actions, "target", t.state.Target)
	}
	t.mu.Unlock()
	return t.checkpoint(ctx)
}

// BreakRemaining returns how long the current break still lasts. When a
// break has just ended a new session starts.
func (t *SessionTracker) BreakRemaining(ctx context.Context) time.Duration {
	now := t.now()
	t.mu.Lock()
	if t.state.OnBreak(now) {
		d := t.state.BreakUntil.Sub(now)
		t.mu.Unlock()
		return d
	}
	ended := t.state.BreakUntil != nil
	if ended {
		t.state = t.fresh(now)
	}
	t.mu.Unlock()

	if ended {
		t.log.Info("break over, new session")
		if err := t.checkpoint(ctx); err != nil {
			t.log.Warn("session checkpoint failed", "error", err)
		}
	}
	return 0
}

// RecordAction counts one action. It reports whether a break just began.
func (t *SessionTracker) RecordAction(ctx context.Context) bool {
	now := t.now()
	t.mu.Lock()
	t.state.Actions++
	startBreak := t.state.BreakUntil == nil && t.state.Actions >= t.state.Target
	if startBreak {
		until := now.Add(t.pacing.BreakDuration())
		t.state.BreakUntil = &until
	}
	st := t.state
	t.mu.Unlock()

	if startBreak {
		t.log.Info("session target reached, taking a break",
			"actions", st.Actions, "until", st.BreakUntil.Format(time.RFC3339))
	}
	if err := t.checkpoint(ctx); err != nil {
		t.log.Warn("session checkpoint failed", "error", err)
	}
	return startBreak
}

// State returns a copy of the current session.
func (t *SessionTracker) State() domain.SessionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.state
	if st.BreakUntil != nil {
		b := *st.BreakUntil
		st.BreakUntil = &b
	}
	return st
}

func (t *SessionTracker) checkpoint(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	t.mu.Lock()
	t.state.CheckpointedAt = t.now()
	st := t.state
	t.mu.Unlock()
	return t.store.SaveSession(ctx, &st)
}
