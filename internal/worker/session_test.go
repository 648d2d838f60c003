package worker

import (
	"context"
	"testing"
	"time"

	"github.com/ignite/engagement-engine/internal/domain"
	"github.com/ignite/engagement-engine/internal/pacing"
	"github.com/ignite/engagement-engine/internal/repository/memory"
)

func sessionPacing(actions int) *pacing.Model {
	cfg := pacing.DefaultConfig()
	cfg.SessionActionsMin, cfg.SessionActionsMax = actions, actions
	cfg.BreakMin, cfg.BreakMax = 30*time.Minute, 30*time.Minute
	return pacing.New(cfg, nil)
}

func TestSession_BreakAfterTarget(t *testing.T) {
	store := memory.New()
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	tr := NewSessionTracker("t1", store, sessionPacing(2), time.Hour)
	tr.now = func() time.Time { return now }
	ctx := context.Background()

	if tr.RecordAction(ctx) {
		t.Fatal("break must not start after the first action")
	}
	if !tr.RecordAction(ctx) {
		t.Fatal("break must start once the target is reached")
	}
	if d := tr.BreakRemaining(ctx); d != 30*time.Minute {
		t.Errorf("BreakRemaining = %s, want 30m", d)
	}

	saved, err := store.LoadSession(ctx, "t1")
	if err != nil || saved == nil {
		t.Fatalf("LoadSession = %v, %v", saved, err)
	}
	if saved.Actions != 2 || saved.BreakUntil == nil {
		t.Errorf("checkpoint = %+v", saved)
	}

	now = now.Add(31 * time.Minute)
	if d := tr.BreakRemaining(ctx); d != 0 {
		t.Fatalf("break should be over, remaining %s", d)
	}
	if st := tr.State(); st.Actions != 0 || st.BreakUntil != nil {
		t.Errorf("a new session should start after the break, got %+v", st)
	}
}

func TestSession_RestoreResumesRecentCheckpoint(t *testing.T) {
	store := memory.New()
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()
	if err := store.SaveSession(ctx, &domain.SessionState{
		TenantID: "t1", StartedAt: now.Add(-time.Hour), Actions: 3, Target: 8,
		CheckpointedAt: now.Add(-10 * time.Minute),
	}); err != nil {
		t.Fatal(err)
	}

	tr := NewSessionTracker("t1", store, sessionPacing(5), time.Hour)
	tr.now = func() time.Time { return now }
	if err := tr.Restore(ctx); err != nil {
		t.Fatal(err)
	}
	if st := tr.State(); st.Actions != 3 || st.Target != 8 {
		t.Errorf("expected resumed session, got %+v", st)
	}
}

func TestSession_RestoreDiscardsStaleCheckpoint(t *testing.T) {
	store := memory.New()
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()
	if err := store.SaveSession(ctx, &domain.SessionState{
		TenantID: "t1", Actions: 4, Target: 8,
		CheckpointedAt: now.Add(-6 * time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	tr := NewSessionTracker("t1", store, sessionPacing(5), time.Hour)
	tr.now = func() time.Time { return now }
	if err := tr.Restore(ctx); err != nil {
		t.Fatal(err)
	}
	if st := tr.State(); st.Actions != 0 || st.Target != 5 {
		t.Errorf("stale checkpoint must give a fresh session, got %+v", st)
	}
}

func TestSession_NilStore(t *testing.T) {
	tr := NewSessionTracker("t1", nil, sessionPacing(1), 0)
	ctx := context.Background()
	if err := tr.Restore(ctx); err != nil {
		t.Fatal(err)
	}
	if !tr.RecordAction(ctx) {
		t.Error("target of one should start a break immediately")
	}
}
