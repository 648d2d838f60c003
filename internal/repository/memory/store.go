// Package memory is an in-process implementation of every engine
// repository. It backs the "memory" storage mode and the loop tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/engagement-engine/internal/domain"
)

type strategyKey struct{ segment, source, strategy string }

type itemKey struct {
	source string
	item   int64
}

// Store holds all state in maps guarded by one mutex.
type Store struct {
	mu         sync.RWMutex
	accounts   map[string]*domain.Account
	sources    map[string]*domain.Source
	actions    []*domain.EngagementAction
	actionByID map[string]*domain.EngagementAction
	commented  map[itemKey]string // live comment row per item
	strategies map[strategyKey]*domain.StrategyEffectiveness
	sessions   map[string]*domain.SessionState
}

// New creates an empty store.
func New() *Store {
	return &Store{
		accounts:   make(map[string]*domain.Account),
		sources:    make(map[string]*domain.Source),
		actionByID: make(map[string]*domain.EngagementAction),
		commented:  make(map[itemKey]string),
		strategies: make(map[strategyKey]*domain.StrategyEffectiveness),
		sessions:   make(map[string]*domain.SessionState),
	}
}

// --- accounts ---

// ListAccounts returns the tenant's accounts ordered by id.
func (s *Store) ListAccounts(_ context.Context, tenantID string) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Account
	for _, a := range s.accounts {
		if a.TenantID == tenantID {
			out = append(out, *a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveAccount upserts an account.
func (s *Store) SaveAccount(_ context.Context, a *domain.Account) error {
	if a.ID == "" {
		return fmt.Errorf("account id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a.Clone()
	return nil
}

// --- sources ---

// ListSources returns the tenant's active sources ordered by id.
func (s *Store) ListSources(_ context.Context, tenantID string) ([]domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Source
	for _, src := range s.sources {
		if src.TenantID == tenantID && src.Active {
			out = append(out, *src)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveSource upserts a source.
func (s *Store) SaveSource(_ context.Context, src *domain.Source) error {
	if src.ID == "" {
		return fmt.Errorf("source id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *src
	s.sources[src.ID] = &c
	return nil
}

// GetSource returns one source.
func (s *Store) GetSource(_ context.Context, id string) (*domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[id]
	if !ok {
		return nil, fmt.Errorf("source %s not found", id)
	}
	c := *src
	return &c, nil
}

// AdvanceWatermark moves the watermark forward only.
func (s *Store) AdvanceWatermark(_ context.Context, sourceID string, itemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[sourceID]
	if !ok {
		return fmt.Errorf("source %s not found", sourceID)
	}
	src.Advance(itemID)
	return nil
}

// --- actions ---

// HasSuccessfulComment implements the cross-identity dedup check.
func (s *Store) HasSuccessfulComment(_ context.Context, sourceID string, itemID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.commented[itemKey{sourceID, itemID}]
	return ok, nil
}

// InsertAction stores an action row.
func (s *Store) InsertAction(_ context.Context, a *domain.EngagementAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	k := itemKey{a.SourceID, a.ItemID}
	if _, taken := s.commented[k]; taken && a.Live() {
		return domain.ErrDuplicateAction
	}
	if _, dup := s.actionByID[a.ID]; dup {
		return fmt.Errorf("action %s already exists", a.ID)
	}
	c := *a
	s.actions = append(s.actions, &c)
	s.actionByID[c.ID] = &c
	if c.Live() {
		s.commented[k] = c.ID
	}
	return nil
}

// FinishAction stores the outcome of a pending row.
func (s *Store) FinishAction(_ context.Context, a *domain.EngagementAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.actionByID[a.ID]
	if !ok {
		return fmt.Errorf("action %s not found", a.ID)
	}
	k := itemKey{stored.SourceID, stored.ItemID}
	next := *stored
	next.Status = a.Status
	next.PostedID = a.PostedID
	next.ErrorMessage = a.ErrorMessage
	if owner, taken := s.commented[k]; taken && owner != stored.ID && next.Live() {
		return domain.ErrDuplicateAction
	}
	*stored = next
	switch {
	case stored.Live():
		s.commented[k] = stored.ID
	case s.commented[k] == stored.ID:
		delete(s.commented, k)
	}
	return nil
}

// ListFeedbackCandidates returns unchecked successful comments, never
// checked rows first.
func (s *Store) ListFeedbackCandidates(_ context.Context, tenantID string, createdBefore time.Time, limit int) ([]domain.EngagementAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.EngagementAction
	for _, a := range s.actions {
		if a.TenantID != tenantID || a.Type != domain.ActionComment || a.Status != domain.ActionSuccess {
			continue
		}
		if a.FeedbackChecked || !a.CreatedAt.Before(createdBefore) {
			continue
		}
		out = append(out, *a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := out[i].LastCheckedAt, out[j].LastCheckedAt
		switch {
		case ci == nil && cj != nil:
			return true
		case ci != nil && cj == nil:
			return false
		case ci != nil && !ci.Equal(*cj):
			return ci.Before(*cj)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// TouchFeedback records a check without response.
func (s *Store) TouchFeedback(_ context.Context, actionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actionByID[actionID]
	if !ok {
		return fmt.Errorf("action %s not found", actionID)
	}
	if !a.FeedbackChecked {
		a.LastCheckedAt = &at
	}
	return nil
}

// MarkFeedback marks an unchecked row checked.
func (s *Store) MarkFeedback(_ context.Context, actionID string, replyCount int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actionByID[actionID]
	if !ok || a.FeedbackChecked {
		return false, nil
	}
	a.FeedbackChecked = true
	if replyCount > a.ReplyCount {
		a.ReplyCount = replyCount
	}
	if replyCount > 0 {
		a.GotReply = true
	}
	return true, nil
}

// Actions returns a copy of every stored action in insertion order.
func (s *Store) Actions() []domain.EngagementAction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.EngagementAction, len(s.actions))
	for i, a := range s.actions {
		out[i] = *a
	}
	return out
}

// --- strategy rows ---

// ListEffectiveness returns the bandit rows of one key.
func (s *Store) ListEffectiveness(_ context.Context, segment, sourceID string) ([]domain.StrategyEffectiveness, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.StrategyEffectiveness
	for k, r := range s.strategies {
		if k.segment == segment && k.source == sourceID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strategy < out[j].Strategy })
	return out, nil
}

// AddOutcome upserts a bandit row additively.
func (s *Store) AddOutcome(_ context.Context, segment, sourceID, strategy string, reward float64, topic string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := strategyKey{segment, sourceID, strategy}
	r, ok := s.strategies[k]
	if !ok {
		r = &domain.StrategyEffectiveness{Segment: segment, SourceID: sourceID, Strategy: strategy}
		s.strategies[k] = r
	}
	r.Attempts++
	r.Successes += reward
	if topic != "" {
		r.LastTopic = topic
	}
	r.LastUpdated = at
	return nil
}

// --- sessions ---

// LoadSession returns the checkpoint of a tenant, or nil.
func (s *Store) LoadSession(_ context.Context, tenantID string) (*domain.SessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[tenantID]
	if !ok {
		return nil, nil
	}
	c := *st
	return &c, nil
}

// SaveSession stores a checkpoint.
func (s *Store) SaveSession(_ context.Context, st *domain.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *st
	if st.BreakUntil != nil {
		t := *st.BreakUntil
		c.BreakUntil = &t
	}
	s.sessions[st.TenantID] = &c
	return nil
}
