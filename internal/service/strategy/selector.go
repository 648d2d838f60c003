package strategy

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ignite/engagement-engine/internal/domain"
	"github.com/ignite/engagement-engine/internal/pkg/logger"
)

// Tie-break policies for equal samples.
const (
	TieBreakFirst  = "first"
	TieBreakRandom = "random"
)

// Reward values for observed outcomes.
const (
	ReplyReward    = 1.0
	ReactionReward = 0.5
)

// DefaultStrategies are the response styles offered when none are configured.
var DefaultStrategies = []string{"analytical", "supportive", "humorous", "expert", "question"}

// Config controls the selector.
type Config struct {
	Strategies []string
	TieBreak   string
	CacheTTL   time.Duration
}

// Outcome is one observed result of an action.
type Outcome struct {
	Strategy    string
	GotReply    bool
	GotReaction bool
	Segment     string
	SourceID    string
	Topic       string
}

// Reward is 1.0 for a reply plus 0.5 for a reaction.
func Reward(gotReply, gotReaction bool) float64 {
	r := 0.0
	if gotReply {
		r += ReplyReward
	}
	if gotReaction {
		r += ReactionReward
	}
	return r
}

// Arm is the effective state of one candidate for a key.
type Arm struct {
	Strategy  string  `json:"strategy"`
	Attempts  float64 `json:"attempts"`
	Successes float64 `json:"successes"`
	Score     float64 `json:"score"`
	// Fallback is true when the numbers come from the segment-wide rows.
	Fallback bool `json:"fallback"`
}

type cacheKey struct{ segment, source string }

type cacheEntry struct {
	rows     map[string]domain.StrategyEffectiveness
	loadedAt time.Time
}

// Selector is a persisted Thompson Sampling bandit. It is safe for
// concurrent use.
type Selector struct {
	cfg  Config
	repo Repository
	log  *logger.Logger
	now  func() time.Time

	// sample draws from Beta(alpha, beta).
	sample func(alpha, beta float64) float64

	rmu sync.Mutex
	rnd *rand.Rand

	mu    sync.Mutex
	cache map[cacheKey]cacheEntry
}

// NewSelector creates a selector over repo.
func NewSelector(cfg Config, repo Repository) *Selector {
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = append([]string(nil), DefaultStrategies...)
	}
	if cfg.TieBreak == "" {
		cfg.TieBreak = TieBreakFirst
	}
	return &Selector{
		cfg:  cfg,
		repo: repo,
		log:  logger.With("component", "strategy"),
		now:  func() time.Time { return time.Now().UTC() },
		sample: func(alpha, beta float64) float64 {
			return distuv.Beta{Alpha: alpha, Beta: beta}.Rand()
		},
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		cache: make(map[cacheKey]cacheEntry),
	}
}

// Select returns the candidate with the highest Beta sample for
// (segment, sourceID).
func (s *Selector) Select(ctx context.Context, segment, sourceID string) (string, error) {
	if len(s.cfg.Strategies) == 0 {
		return "", ErrNoStrategies
	}
	arms, err := s.Arms(ctx, segment, sourceID)
	if err != nil {
		return "", err
	}

	best := -1.0
	var tied []string
	for _, arm := range arms {
		failures := arm.Attempts - arm.Successes
		if failures < 0 {
			failures = 0
		}
		v := s.sample(arm.Successes+1, failures+1)
		switch {
		case v > best:
			best = v
			tied = append(tied[:0], arm.Strategy)
		case v == best:
			tied = append(tied, arm.Strategy)
		}
	}

	choice := tied[0]
	if len(tied) > 1 && s.cfg.TieBreak == TieBreakRandom {
		s.rmu.Lock()
		choice = tied[s.rnd.Intn(len(tied))]
		s.rmu.Unlock()
	}
	s.log.Debug("strategy selected", "segment", segment, "source", sourceID, "strategy", choice, "sample", best)
	return choice, nil
}

// Arms returns the effective state of every candidate, in configured order.
// The most specific key with any history wins as a whole: a source without
// rows falls back to the segment-wide rows, and candidates missing from the
// chosen key get the uniform prior.
func (s *Selector) Arms(ctx context.Context, segment, sourceID string) ([]Arm, error) {
	rows, err := s.rows(ctx, segment, sourceID)
	if err != nil {
		return nil, err
	}
	fallback := false
	if !hasHistory(rows) && sourceID != domain.WildcardSource {
		if rows, err = s.rows(ctx, segment, domain.WildcardSource); err != nil {
			return nil, err
		}
		fallback = true
	}

	arms := make([]Arm, 0, len(s.cfg.Strategies))
	for _, name := range s.cfg.Strategies {
		arm := Arm{Strategy: name, Fallback: fallback}
		if row, ok := rows[name]; ok && row.Attempts > 0 {
			arm.Attempts, arm.Successes = row.Attempts, row.Successes
			arm.Score = arm.Successes / arm.Attempts
		}
		arms = append(arms, arm)
	}
	return arms, nil
}

func hasHistory(rows map[string]domain.StrategyEffectiveness) bool {
	for _, r := range rows {
		if r.Attempts > 0 {
			return true
		}
	}
	return false
}

func (s *Selector) rows(ctx context.Context, segment, sourceID string) (map[string]domain.StrategyEffectiveness, error) {
	key := cacheKey{segment, sourceID}
	now := s.now()

	s.mu.Lock()
	if e, ok := s.cache[key]; ok && (s.cfg.CacheTTL <= 0 || now.Sub(e.loadedAt) < s.cfg.CacheTTL) {
		s.mu.Unlock()
		return e.rows, nil
	}
	s.mu.Unlock()

	list, err := s.repo.ListEffectiveness(ctx, segment, sourceID)
	if err != nil {
		return nil, fmt.Errorf("load strategy rows %s/%s: %w", segment, sourceID, err)
	}
	rows := make(map[string]domain.StrategyEffectiveness, len(list))
	for _, r := range list {
		rows[r.Strategy] = r
	}

	s.mu.Lock()
	s.cache[key] = cacheEntry{rows: rows, loadedAt: now}
	s.mu.Unlock()
	return rows, nil
}

// RecordResult adds the outcome's reward to the source row and to the
// segment-wide row, then drops both from the cache. It returns the reward.
func (s *Selector) RecordResult(ctx context.Context, o Outcome) (float64, error) {
	if o.Strategy == "" {
		return 0, ErrMissingStrategy
	}
	reward := Reward(o.GotReply, o.GotReaction)
	now := s.now()

	keys := []string{o.SourceID}
	if o.SourceID != domain.WildcardSource {
		keys = append(keys, domain.WildcardSource)
	}
	for _, src := range keys {
		if err := s.repo.AddOutcome(ctx, o.Segment, src, o.Strategy, reward, o.Topic, now); err != nil {
			return 0, fmt.Errorf("record outcome %s/%s/%s: %w", o.Segment, src, o.Strategy, err)
		}
		s.invalidate(o.Segment, src)
	}
	s.log.Info("strategy outcome recorded",
		"segment", o.Segment, "source", o.SourceID, "strategy", o.Strategy, "reward", reward)
	return reward, nil
}

func (s *Selector) invalidate(segment, sourceID string) {
	s.mu.Lock()
	delete(s.cache, cacheKey{segment, sourceID})
	s.mu.Unlock()
}
