package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ignite/engagement-engine/internal/domain"
	"github.com/ignite/engagement-engine/internal/pacing"
	"github.com/ignite/engagement-engine/internal/pkg/logger"
	"github.com/ignite/engagement-engine/internal/service/strategy"
	"github.com/ignite/engagement-engine/internal/transport"
)

// ResultRecorder feeds observed outcomes back into the bandit.
type ResultRecorder interface {
	RecordResult(ctx context.Context, o strategy.Outcome) (float64, error)
}

// FeedbackConfig holds configuration for the feedback collector.
type FeedbackConfig struct {
	Interval    time.Duration // Gap between passes
	MinAge      time.Duration // Comments younger than this are not checked yet
	Lookback    time.Duration // Comments older than this are closed with reward 0
	BatchSize   int
	ReplyLimit  int
	CallTimeout time.Duration
}

// DefaultFeedbackConfig returns default configuration.
func DefaultFeedbackConfig() FeedbackConfig {
	return FeedbackConfig{
		Interval:    15 * time.Minute,
		MinAge:      time.Hour,
		Lookback:    72 * time.Hour,
		BatchSize:   50,
		ReplyLimit:  20,
		CallTimeout: 30 * time.Second,
	}
}

// FeedbackCollector checks our posted comments for replies and reactions and
// converts them into bandit rewards. A row is rewarded at most once.
type FeedbackCollector struct {
	tenantID string
	cfg      FeedbackConfig
	pool     Pool
	sources  SourceRepository
	actions  ActionRepository
	results  ResultRecorder
	pacing   *pacing.Model
	now      func() time.Time
	sleep    SleepFunc
	log      *logger.Logger

	// Stats
	passes   int64
	checked  int64
	rewarded int64
	agedOut  int64
	errors   int64
}

// NewFeedbackCollector creates a collector for one tenant.
func NewFeedbackCollector(tenantID string, cfg FeedbackConfig, pool Pool, sources SourceRepository, actions ActionRepository, results ResultRecorder, model *pacing.Model) *FeedbackCollector {
	def := DefaultFeedbackConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = def.Lookback
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if model == nil {
		model = pacing.New(pacing.DefaultConfig(), nil)
	}
	return &FeedbackCollector{
		tenantID: tenantID,
		cfg:      cfg,
		pool:     pool,
		sources:  sources,
		actions:  actions,
		results:  results,
		pacing:   model,
		now:      func() time.Time { return time.Now().UTC() },
		sleep:    Sleep,
		log:      logger.With("component", "feedback", "tenant", tenantID),
	}
}

// Run executes passes until ctx is cancelled.
func (c *FeedbackCollector) Run(ctx context.Context) error {
	c.log.Info("feedback collector starting", "interval", c.cfg.Interval.String(), "lookback", c.cfg.Lookback.String())
	for {
		if _, err := c.RunOnce(ctx); err != nil && ctx.Err() == nil {
			atomic.AddInt64(&c.errors, 1)
			c.log.Error("feedback pass failed", "error", err)
		}
		if c.sleep(ctx, c.cfg.Interval) != nil {
			c.log.Info("feedback collector stopped", "stats", c.Stats())
			return nil
		}
	}
}

// RunOnce checks one batch of candidates and returns how many rows it closed.
func (c *FeedbackCollector) RunOnce(ctx context.Context) (int, error) {
	atomic.AddInt64(&c.passes, 1)
	now := c.now()
	candidates, err := c.actions.ListFeedbackCandidates(ctx, c.tenantID, now.Add(-c.cfg.MinAge), c.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list feedback candidates: %w", err)
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	sources, err := c.sources.ListSources(ctx, c.tenantID)
	if err != nil {
		return 0, fmt.Errorf("list sources: %w", err)
	}
	byID := make(map[string]domain.Source, len(sources))
	for _, s := range sources {
		byID[s.ID] = s
	}

	closed := 0
	for i, a := range candidates {
		if ctx.Err() != nil {
			return closed, nil
		}
		if now.Sub(a.CreatedAt) > c.cfg.Lookback {
			if c.close(ctx, a, 0, false) {
				atomic.AddInt64(&c.agedOut, 1)
				closed++
			}
			continue
		}

		src, ok := byID[a.SourceID]
		if !ok {
			src = domain.Source{ID: a.SourceID, TenantID: a.TenantID}
		}
		done, err := c.check(ctx, src, a)
		if err != nil {
			atomic.AddInt64(&c.errors, 1)
			c.log.Warn("feedback check failed", "action", a.ID, "error", err)
		}
		if done {
			closed++
		}
		if i < len(candidates)-1 {
			if c.sleep(ctx, c.pacing.Pause(time.Second, 5*time.Second)) != nil {
				return closed, nil
			}
		}
	}
	return closed, nil
}

// check looks up replies and reactions for one comment. Rows without any
// response stay unchecked until they age out of the lookback window; each
// miss moves the row to the back of the candidate order.
func (c *FeedbackCollector) check(ctx context.Context, src domain.Source, a domain.EngagementAction) (bool, error) {
	if a.PostedID == "" {
		return c.close(ctx, a, 0, false), nil
	}
	h, ok := c.pool.AcquireFor(domain.ActionFeedback, src.ID)
	if !ok {
		return false, nil
	}
	defer c.pool.Release(h.ID())
	atomic.AddInt64(&c.checked, 1)

	replies, reactions, err := c.lookup(ctx, h.Session, src, a.PostedID)
	if err == nil && (len(replies) > 0 || reactions > 0) {
		return c.close(ctx, a, len(replies), reactions > 0), nil
	}
	if terr := c.actions.TouchFeedback(ctx, a.ID, c.now()); terr != nil {
		atomic.AddInt64(&c.errors, 1)
		c.log.Error("touch feedback failed", "action", a.ID, "error", terr)
	}
	return false, err
}

func (c *FeedbackCollector) lookup(ctx context.Context, s transport.Session, src domain.Source, postedID string) ([]string, int, error) {
	cctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	replies, err := s.FetchReplies(cctx, src, postedID, c.cfg.ReplyLimit)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch replies: %w", err)
	}
	reactions, err := s.CountReactions(cctx, src, postedID)
	if err != nil {
		return nil, 0, fmt.Errorf("count reactions: %w", err)
	}
	return replies, reactions, nil
}

// close marks the row checked and, only if this call flipped it, records
// the reward for the strategy that produced it.
func (c *FeedbackCollector) close(ctx context.Context, a domain.EngagementAction, replies int, reacted bool) bool {
	updated, err := c.actions.MarkFeedback(ctx, a.ID, replies)
	if err != nil {
		atomic.AddInt64(&c.errors, 1)
		c.log.Error("mark feedback failed", "action", a.ID, "error", err)
		return false
	}
	if !updated {
		return false
	}
	if a.StrategyUsed == "" {
		return true
	}
	reward, err := c.results.RecordResult(ctx, strategy.Outcome{
		Strategy:    a.StrategyUsed,
		GotReply:    replies > 0,
		GotReaction: reacted,
		Segment:     a.Segment,
		SourceID:    a.SourceID,
		Topic:       a.Topic,
	})
	if err != nil {
		atomic.AddInt64(&c.errors, 1)
		c.log.Error("record strategy result failed", "action", a.ID, "error", err)
		return true
	}
	if reward > 0 {
		atomic.AddInt64(&c.rewarded, 1)
		c.log.Info("comment feedback recorded", "action", a.ID, "strategy", a.StrategyUsed,
			"replies", replies, "reacted", reacted, "reward", reward)
	}
	return true
}

// Stats returns current collector statistics.
func (c *FeedbackCollector) Stats() map[string]int64 {
	return map[string]int64{
		"passes":   atomic.LoadInt64(&c.passes),
		"checked":  atomic.LoadInt64(&c.checked),
		"rewarded": atomic.LoadInt64(&c.rewarded),
		"aged_out": atomic.LoadInt64(&c.agedOut),
		"errors":   atomic.LoadInt64(&c.errors),
	}
}
