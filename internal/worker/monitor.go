// Package worker contains the long-running engine loops: the engagement
// monitor that polls sources and posts responses, and the feedback collector
// that turns downstream replies into bandit rewards.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ignite/engagement-engine/internal/domain"
	"github.com/ignite/engagement-engine/internal/generation"
	"github.com/ignite/engagement-engine/internal/notify"
	"github.com/ignite/engagement-engine/internal/pacing"
	"github.com/ignite/engagement-engine/internal/pkg/backoff"
	"github.com/ignite/engagement-engine/internal/pkg/distlock"
	"github.com/ignite/engagement-engine/internal/pkg/logger"
	"github.com/ignite/engagement-engine/internal/service/accountpool"
	"github.com/ignite/engagement-engine/internal/transport"
)

// Pool is the slice of the account pool the loops use.
type Pool interface {
	AcquireFor(t domain.ActionType, sourceID string) (*accountpool.Handle, bool)
	Release(accountID string)
	RecordUsage(ctx context.Context, accountID string, t domain.ActionType) error
	SetCooldown(ctx context.Context, accountID string, d time.Duration) error
	MarkFailed(ctx context.Context, accountID, reason string) error
	DisableSource(ctx context.Context, accountID, sourceID string) error
	Reconnect(ctx context.Context) (int, error)
	AllBanned() bool
	Stats() accountpool.Stats
}

// StrategySelector picks a response strategy for (segment, source).
type StrategySelector interface {
	Select(ctx context.Context, segment, sourceID string) (string, error)
}

// SleepFunc suspends for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// MonitorConfig holds configuration for the engagement monitor.
type MonitorConfig struct {
	PollInterval time.Duration // Gap between polling ticks
	FetchLimit   int           // Items fetched per source per tick

	RelevanceThreshold float64 // Minimum analysis relevance to act
	SkipChanceActive   float64 // "Skip anyway" probability for active identities
	SkipChanceWarming  float64 // Same, for identities still warming up
	LurkWindow         time.Duration

	CallTimeout       time.Duration // Bound on any single transport call
	GenerationTimeout time.Duration // Bound on analyze/generate calls
	ReplySample       int           // Existing replies handed to analysis

	MaxIdentitiesPerItem int // Identities tried for one item within a tick
	SystemicThreshold    int // Consecutive non-network errors before tripping
	DefaultRetryAfter    time.Duration
	ClaimTTL             time.Duration

	Reconnect backoff.Config
}

// DefaultMonitorConfig returns default configuration.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		PollInterval:         3 * time.Minute,
		FetchLimit:           20,
		RelevanceThreshold:   0.6,
		SkipChanceActive:     0.3,
		SkipChanceWarming:    0.5,
		LurkWindow:           24 * time.Hour,
		CallTimeout:          30 * time.Second,
		GenerationTimeout:    90 * time.Second,
		ReplySample:          10,
		MaxIdentitiesPerItem: 3,
		SystemicThreshold:    5,
		DefaultRetryAfter:    5 * time.Minute,
		ClaimTTL:             30 * time.Minute,
		Reconnect:            backoff.DefaultConfig(),
	}
}

// MonitorDeps are the collaborators of a Monitor.
type MonitorDeps struct {
	Pool      Pool
	Sources   SourceRepository
	Actions   ActionRepository
	Selector  StrategySelector
	Generator generation.Client
	Pacing    *pacing.Model
	Locker    distlock.Locker
	Notifier  notify.Sender
	Session   *SessionTracker
}

// Monitor is the per-tenant polling loop.
type Monitor struct {
	tenantID string
	cfg      MonitorConfig
	MonitorDeps

	backoff *backoff.Tracker
	now     func() time.Time
	sleep   SleepFunc
	log     *logger.Logger

	// Stats
	ticks        int64
	itemsSeen    int64
	filtered     int64
	deduped      int64
	lurkSkips    int64
	randomSkips  int64
	gated        int64
	posted       int64
	failed       int64
	rateLimited  int64
	forbidden    int64
	banned       int64
	noIdentity   int64
	reconnects   int64
	systemicTrip int64
}

// NewMonitor creates a monitor for one tenant.
func NewMonitor(tenantID string, cfg MonitorConfig, deps MonitorDeps) *Monitor {
	def := DefaultMonitorConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = def.FetchLimit
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = def.GenerationTimeout
	}
	if cfg.MaxIdentitiesPerItem <= 0 {
		cfg.MaxIdentitiesPerItem = def.MaxIdentitiesPerItem
	}
	if cfg.SystemicThreshold <= 0 {
		cfg.SystemicThreshold = def.SystemicThreshold
	}
	if cfg.DefaultRetryAfter <= 0 {
		cfg.DefaultRetryAfter = def.DefaultRetryAfter
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = def.ClaimTTL
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Pacing == nil {
		deps.Pacing = pacing.New(pacing.DefaultConfig(), nil)
	}
	if deps.Locker == nil {
		deps.Locker = distlock.NewMemoryLocker(cfg.ClaimTTL)
	}
	if deps.Session == nil {
		deps.Session = NewSessionTracker(tenantID, nil, deps.Pacing, 0)
	}
	return &Monitor{
		tenantID:    tenantID,
		cfg:         cfg,
		MonitorDeps: deps,
		backoff:     backoff.NewTracker(cfg.Reconnect),
		now:         func() time.Time { return time.Now().UTC() },
		sleep:       Sleep,
		log:         logger.With("component", "monitor", "tenant", tenantID),
	}
}

// Run polls until ctx is cancelled. It returns nil on shutdown and an error
// only when the tenant cannot continue: reconnects exhausted or every
// identity banned. The caller owns the fatal notification for that error.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info("monitor starting", "poll_interval", m.cfg.PollInterval.String(), "fetch_limit", m.cfg.FetchLimit)
	if err := m.Session.Restore(ctx); err != nil {
		m.log.Warn("session restore failed, starting fresh", "error", err)
	}
	defer m.log.Info("monitor stopped", "stats", m.Stats())

	for {
		if ctx.Err() != nil {
			return nil
		}
		if m.Pool.AllBanned() {
			m.log.Error("every identity is banned")
			return ErrNoUsableAccounts
		}

		if wait := m.Pacing.UntilActive(m.now()); wait > 0 {
			m.log.Info("outside active hours, sleeping", "for", wait.String())
			if m.sleep(ctx, wait) != nil {
				return nil
			}
			continue
		}
		if wait := m.Session.BreakRemaining(ctx); wait > 0 {
			m.log.Info("on break", "for", wait.String())
			if m.sleep(ctx, wait) != nil {
				return nil
			}
			continue
		}

		err := m.Tick(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if rerr := m.recover(ctx, err); rerr != nil {
				return rerr
			}
			continue
		}
		m.backoff.Reset()

		if m.sleep(ctx, m.cfg.PollInterval) != nil {
			return nil
		}
	}
}

// recover runs the reconnect path for a network or systemic failure.
func (m *Monitor) recover(ctx context.Context, cause error) error {
	if errors.Is(cause, ErrSystemic) {
		atomic.AddInt64(&m.systemicTrip, 1)
	}
	delay, err := m.backoff.Next()
	if err != nil {
		m.log.Error("reconnect attempts exhausted", "error", cause, "attempts", m.backoff.Attempts())
		return fmt.Errorf("%w: %v", ErrReconnectExhausted, cause)
	}

	m.log.Warn("polling cycle failed, reconnecting",
		"error", cause, "attempt", m.backoff.Attempts(), "delay", delay.String())
	if m.sleep(ctx, delay) != nil {
		return nil
	}
	atomic.AddInt64(&m.reconnects, 1)
	n, err := m.Pool.Reconnect(ctx)
	if err != nil {
		m.log.Warn("reconnect failed", "error", err)
		return nil
	}
	m.log.Info("reconnected", "live_sessions", n)
	return nil
}

// cycle tracks consecutive non-network errors within one polling tick.
type cycle struct {
	threshold   int
	consecutive int
}

func (c *cycle) fail(err error) error {
	c.consecutive++
	if c.consecutive >= c.threshold {
		return fmt.Errorf("%w (%d in a row, last: %v)", ErrSystemic, c.consecutive, err)
	}
	return nil
}

func (c *cycle) ok() { c.consecutive = 0 }

// Tick runs one polling pass over every active source. A returned error is
// network-class or systemic and calls for the reconnect path.
func (m *Monitor) Tick(ctx context.Context) error {
	atomic.AddInt64(&m.ticks, 1)
	sources, err := m.Sources.ListSources(ctx, m.tenantID)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}

	cyc := &cycle{threshold: m.cfg.SystemicThreshold}
	for i := range sources {
		if ctx.Err() != nil {
			return nil
		}
		if err := m.processSource(ctx, sources[i], cyc); err != nil {
			return err
		}
		if m.Session.BreakRemaining(ctx) > 0 {
			return nil
		}
	}
	return nil
}

func (m *Monitor) processSource(ctx context.Context, src domain.Source, cyc *cycle) error {
	log := m.log.With("source", src.ID)
	if src.Lurking(m.now(), m.cfg.LurkWindow) {
		atomic.AddInt64(&m.lurkSkips, 1)
		log.Debug("source in lurk window, skipping")
		return nil
	}

	items, err := m.fetch(ctx, src, cyc)
	if err != nil || len(items) == 0 {
		return err
	}

	// oldest first
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	watermark := src.LastProcessedItemID
	contiguous := true
	for _, it := range items {
		if it.ID <= src.LastProcessedItemID {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		atomic.AddInt64(&m.itemsSeen, 1)

		handled, err := m.processItem(ctx, src, it, cyc)
		if err != nil {
			if errors.Is(err, errNoIdentity) {
				atomic.AddInt64(&m.noIdentity, 1)
				log.Debug("no identity available, leaving rest of batch", "item", it.ID)
				break
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !handled {
			contiguous = false
		}
		if handled && contiguous {
			watermark = it.ID
		}
		if m.Session.BreakRemaining(ctx) > 0 {
			break
		}
	}

	if watermark > src.LastProcessedItemID {
		if err := m.Sources.AdvanceWatermark(context.WithoutCancel(ctx), src.ID, watermark); err != nil {
			log.Error("advance watermark failed", "to", watermark, "error", err)
			return cyc.fail(err)
		}
		log.Debug("watermark advanced", "from", src.LastProcessedItemID, "to", watermark)
	}
	return nil
}

// fetch reads the newest items through any reader identity.
func (m *Monitor) fetch(ctx context.Context, src domain.Source, cyc *cycle) ([]domain.Item, error) {
	h, ok := m.Pool.AcquireFor(domain.ActionFetch, src.ID)
	if !ok {
		if m.Pool.Stats().Connected == 0 {
			return nil, transport.Network(errors.New("no live sessions"))
		}
		m.log.Debug("no reader identity available", "source", src.ID)
		return nil, nil
	}
	defer m.Pool.Release(h.ID())

	cctx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	items, err := h.Session.FetchRecentItems(cctx, src, src.LastProcessedItemID, m.cfg.FetchLimit)
	cancel()
	if err == nil {
		cyc.ok()
		return items, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	kind := m.handleIdentityError(ctx, h, src, err)
	if kind == transport.KindNetwork {
		return nil, fmt.Errorf("fetch %s: %w", src.ID, err)
	}
	m.log.Warn("fetch failed", "source", src.ID, "account", h.ID(), "kind", kind, "error", err)
	return nil, cyc.fail(err)
}

// handleIdentityError applies the pool-level consequence of a transport
// error and returns its kind.
func (m *Monitor) handleIdentityError(ctx context.Context, h *accountpool.Handle, src domain.Source, err error) transport.Kind {
	ctx = context.WithoutCancel(ctx)
	kind := transport.Classify(err)
	var perr error
	switch kind {
	case transport.KindRateLimited:
		atomic.AddInt64(&m.rateLimited, 1)
		wait := transport.RetryAfter(err)
		if wait <= 0 {
			wait = m.cfg.DefaultRetryAfter
		}
		perr = m.Pool.SetCooldown(ctx, h.ID(), wait)
	case transport.KindForbidden:
		atomic.AddInt64(&m.forbidden, 1)
		perr = m.Pool.DisableSource(ctx, h.ID(), src.ID)
	case transport.KindBanned:
		atomic.AddInt64(&m.banned, 1)
		perr = m.Pool.MarkFailed(ctx, h.ID(), err.Error())
	}
	if perr != nil {
		m.log.Error("pool update failed", "account", h.ID(), "kind", kind, "error", perr)
	}
	return kind
}

// processItem runs one item through the pipeline. handled is true when the
// item needs no further attention: acted upon, filtered, deduplicated or
// deliberately skipped.
func (m *Monitor) processItem(ctx context.Context, src domain.Source, it domain.Item, cyc *cycle) (bool, error) {
	log := m.log.With("source", src.ID, "item", it.ID)

	if reason := filterReason(src, it); reason != "" {
		atomic.AddInt64(&m.filtered, 1)
		log.Debug("item filtered", "reason", reason)
		return true, nil
	}

	done, err := m.Actions.HasSuccessfulComment(ctx, src.ID, it.ID)
	if err != nil {
		log.Warn("dedup check failed", "error", err)
		return false, cyc.fail(err)
	}
	if done {
		atomic.AddInt64(&m.deduped, 1)
		return true, nil
	}

	h, ok := m.Pool.AcquireFor(domain.ActionComment, src.ID)
	if !ok {
		return false, errNoIdentity
	}
	released := false
	release := func() {
		if !released {
			m.Pool.Release(h.ID())
			released = true
		}
	}
	defer release()

	skip := m.cfg.SkipChanceActive
	if h.Account.Status == domain.AccountWarming {
		skip = m.cfg.SkipChanceWarming
	}
	if m.Pacing.Chance(skip) {
		atomic.AddInt64(&m.randomSkips, 1)
		log.Debug("skipping item by chance")
		return true, nil
	}

	// reading
	if err := m.sleep(ctx, m.Pacing.ReadingDelay(len(it.Text))); err != nil {
		return false, err
	}

	replies := m.sampleReplies(ctx, h, src, it)
	segment := src.Segment
	if segment == "" {
		segment = h.Account.Segment
	}

	actx, cancel := context.WithTimeout(ctx, m.cfg.GenerationTimeout)
	analysis, err := m.Generator.Analyze(actx, generation.AnalyzeRequest{
		ItemText:        it.Text,
		ExistingReplies: replies,
		SourceTitle:     src.Title,
		Segment:         segment,
	})
	cancel()
	if err != nil || analysis == nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err == nil {
			err = errors.New("analysis returned nothing")
		}
		m.recordGenerationFailure(ctx, h, src, it, segment, "", "analysis", err)
		return true, cyc.fail(err)
	}

	if !analysis.ShouldAct || analysis.Relevance < m.cfg.RelevanceThreshold || analysis.Mood == generation.MoodHostile {
		atomic.AddInt64(&m.gated, 1)
		log.Debug("analysis declined", "should_act", analysis.ShouldAct,
			"relevance", analysis.Relevance, "mood", analysis.Mood)
		return true, nil
	}

	strat, err := m.Selector.Select(ctx, segment, src.ID)
	if err != nil || strat == "" {
		log.Warn("strategy selection failed, using analysis suggestion", "error", err, "suggested", analysis.Strategy)
		strat = analysis.Strategy
	}
	if strat != analysis.Strategy && analysis.Strategy != "" {
		log.Debug("bandit overrides suggested strategy", "bandit", strat, "suggested", analysis.Strategy)
	}

	gctx, cancel := context.WithTimeout(ctx, m.cfg.GenerationTimeout)
	content, err := m.Generator.Generate(gctx, generation.GenerateRequest{
		ItemText:        it.Text,
		Strategy:        strat,
		Segment:         segment,
		Analysis:        analysis,
		ExistingReplies: replies,
	})
	cancel()
	if err != nil || content == "" {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err == nil {
			err = errors.New("generation returned nothing")
		}
		m.recordGenerationFailure(ctx, h, src, it, segment, strat, "generation", err)
		return true, cyc.fail(err)
	}

	// Claim the item before pacing so no other identity or process spends
	// its reaction delay on it.
	lock := m.Locker.Lock(distlock.ItemKey(string(domain.ActionComment), src.ID, it.ID))
	got, err := lock.Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		log.Warn("item claim failed", "error", err)
		return false, cyc.fail(err)
	}
	if !got {
		atomic.AddInt64(&m.deduped, 1)
		log.Debug("item claimed by another identity")
		return true, nil
	}
	defer func() {
		if rerr := lock.Release(context.WithoutCancel(ctx)); rerr != nil {
			log.Debug("item claim release failed", "error", rerr)
		}
	}()

	// reacting
	if err := m.sleep(ctx, m.Pacing.ReactionDelay()); err != nil {
		return false, err
	}

	draft := domain.EngagementAction{
		TenantID:       m.tenantID,
		Type:           domain.ActionComment,
		SourceID:       src.ID,
		ItemID:         it.ID,
		Segment:        segment,
		StrategyUsed:   strat,
		Topic:          analysis.Topic,
		Content:        content,
		RelevanceScore: &analysis.Relevance,
	}

	for attempt := 0; ; attempt++ {
		out, err := m.post(ctx, h, src, lock, draft, cyc)
		release()
		if out.posted && err == nil {
			// pause before the next action
			if serr := m.sleep(ctx, m.Pacing.InterActionPause()); serr != nil {
				return out.handled, nil
			}
		}
		if err != nil || !out.retry {
			return out.handled, err
		}
		if attempt+1 >= m.cfg.MaxIdentitiesPerItem {
			log.Info("identity retries used up, leaving item for a later tick")
			return false, nil
		}

		next, ok := m.Pool.AcquireFor(domain.ActionComment, src.ID)
		if !ok {
			return false, errNoIdentity
		}
		h = next
		released = false
		if err := m.sleep(ctx, m.Pacing.InterActionPause()); err != nil {
			return false, err
		}
	}
}

type postOutcome struct {
	handled bool
	posted  bool
	// retry is set when the failure was identity-specific and another
	// identity may try the same item.
	retry bool
}

// post re-checks dedup under the claim, writes a pending row and posts
// through h. The row then takes the outcome of the call.
func (m *Monitor) post(ctx context.Context, h *accountpool.Handle, src domain.Source, lock distlock.DistLock, draft domain.EngagementAction, cyc *cycle) (postOutcome, error) {
	log := m.log.With("source", src.ID, "item", draft.ItemID, "account", h.ID())

	// From here the item is finished even if shutdown starts.
	wctx := context.WithoutCancel(ctx)

	if err := distlock.Refresh(wctx, lock, m.cfg.ClaimTTL); err != nil {
		log.Warn("item claim lost before posting", "error", err)
		return postOutcome{}, cyc.fail(err)
	}

	if done, err := m.Actions.HasSuccessfulComment(wctx, src.ID, draft.ItemID); err != nil {
		log.Warn("dedup re-check failed", "error", err)
		return postOutcome{}, cyc.fail(err)
	} else if done {
		atomic.AddInt64(&m.deduped, 1)
		return postOutcome{handled: true}, nil
	}

	action := draft
	action.AccountID = h.ID()
	action.CreatedAt = m.now()
	action.Status = domain.ActionPending
	if err := m.Actions.InsertAction(wctx, &action); err != nil {
		if errors.Is(err, domain.ErrDuplicateAction) {
			atomic.AddInt64(&m.deduped, 1)
			log.Warn("item already holds a comment row")
			return postOutcome{handled: true}, nil
		}
		log.Error("record pending action failed", "error", err)
		return postOutcome{}, cyc.fail(err)
	}

	pctx, cancel := context.WithTimeout(wctx, m.cfg.CallTimeout)
	res, perr := h.Session.Post(pctx, src, draft.ItemID, draft.Content)
	cancel()

	if perr == nil {
		action.Status = domain.ActionSuccess
		action.PostedID = res.PostedID
		ferr := m.Actions.FinishAction(wctx, &action)
		if uerr := m.Pool.RecordUsage(wctx, h.ID(), domain.ActionComment); uerr != nil {
			log.Error("record usage failed", "error", uerr)
		}
		atomic.AddInt64(&m.posted, 1)
		m.Session.RecordAction(wctx)
		if ferr != nil {
			// The pending row keeps the item blocked; the watermark stays
			// below it until a later tick sees that row.
			log.Error("record posted comment failed", "posted_id", res.PostedID, "error", ferr)
			return postOutcome{posted: true}, cyc.fail(ferr)
		}
		cyc.ok()
		log.Info("comment posted", "strategy", action.StrategyUsed, "posted_id", res.PostedID)
		m.Notifier.Send(notify.Event{
			Kind:       notify.KindActionSucceeded,
			TenantID:   m.tenantID,
			ActionType: string(domain.ActionComment),
			AccountID:  h.ID(),
			SourceID:   src.ID,
			Preview:    notify.Preview(action.Content),
		})
		return postOutcome{handled: true, posted: true}, nil
	}

	kind := m.handleIdentityError(wctx, h, src, perr)
	action.ErrorMessage = perr.Error()
	action.Status = domain.ActionFailed
	if kind == transport.KindRateLimited {
		action.Status = domain.ActionRateLimited
	}
	if ferr := m.Actions.FinishAction(wctx, &action); ferr != nil {
		log.Error("record failed attempt failed", "error", ferr)
		if kind != transport.KindNetwork {
			return postOutcome{}, cyc.fail(ferr)
		}
	}

	switch kind {
	case transport.KindNetwork:
		return postOutcome{}, fmt.Errorf("post %s/%d: %w", src.ID, draft.ItemID, perr)
	case transport.KindRateLimited, transport.KindForbidden, transport.KindBanned:
		log.Info("post rejected for identity, trying another", "kind", kind, "error", perr)
		if serr := cyc.fail(perr); serr != nil {
			return postOutcome{}, serr
		}
		return postOutcome{retry: true}, nil
	default:
		atomic.AddInt64(&m.failed, 1)
		log.Warn("post failed", "error", perr)
		m.Notifier.Send(notify.Event{
			Kind:       notify.KindActionFailed,
			TenantID:   m.tenantID,
			ActionType: string(domain.ActionComment),
			AccountID:  h.ID(),
			SourceID:   src.ID,
			ErrorKind:  kind.String(),
			Message:    perr.Error(),
		})
		return postOutcome{handled: true}, cyc.fail(perr)
	}
}

func (m *Monitor) record(ctx context.Context, a *domain.EngagementAction) {
	err := m.Actions.InsertAction(ctx, a)
	switch {
	case errors.Is(err, domain.ErrDuplicateAction):
		m.log.Warn("duplicate successful comment rejected by store",
			"source", a.SourceID, "item", a.ItemID, "account", a.AccountID)
	case err != nil:
		m.log.Error("record action failed", "source", a.SourceID, "item", a.ItemID, "error", err)
	}
}

func (m *Monitor) recordGenerationFailure(ctx context.Context, h *accountpool.Handle, src domain.Source, it domain.Item, segment, strat, stage string, cause error) {
	atomic.AddInt64(&m.failed, 1)
	m.log.Warn(stage+" failed", "source", src.ID, "item", it.ID, "error", cause)
	m.record(context.WithoutCancel(ctx), &domain.EngagementAction{
		TenantID:     m.tenantID,
		AccountID:    h.ID(),
		Type:         domain.ActionComment,
		SourceID:     src.ID,
		ItemID:       it.ID,
		Segment:      segment,
		StrategyUsed: strat,
		Status:       domain.ActionFailed,
		ErrorMessage: fmt.Sprintf("%s: %v", stage, cause),
		CreatedAt:    m.now(),
	})
	m.Notifier.Send(notify.Event{
		Kind:       notify.KindActionFailed,
		TenantID:   m.tenantID,
		ActionType: string(domain.ActionComment),
		AccountID:  h.ID(),
		SourceID:   src.ID,
		ErrorKind:  stage,
		Message:    cause.Error(),
	})
}

// sampleReplies fetches a bounded sample of existing replies. Failures only
// cost the analysis some context.
func (m *Monitor) sampleReplies(ctx context.Context, h *accountpool.Handle, src domain.Source, it domain.Item) []string {
	if m.cfg.ReplySample <= 0 {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()
	replies, err := h.Session.FetchReplies(cctx, src, fmt.Sprint(it.ID), m.cfg.ReplySample)
	if err != nil {
		m.log.Debug("reply sample unavailable", "source", src.ID, "item", it.ID, "error", err)
		return nil
	}
	return replies
}

func filterReason(src domain.Source, it domain.Item) string {
	switch {
	case src.SkipAds && it.IsAd:
		return "advertisement"
	case src.SkipReposts && it.IsForward:
		return "repost"
	case len([]rune(it.Text)) < src.MinLength:
		return "too short"
	}
	return ""
}

// Stats returns current monitor statistics.
func (m *Monitor) Stats() map[string]int64 {
	return map[string]int64{
		"ticks":          atomic.LoadInt64(&m.ticks),
		"items_seen":     atomic.LoadInt64(&m.itemsSeen),
		"filtered":       atomic.LoadInt64(&m.filtered),
		"deduped":        atomic.LoadInt64(&m.deduped),
		"lurk_skips":     atomic.LoadInt64(&m.lurkSkips),
		"random_skips":   atomic.LoadInt64(&m.randomSkips),
		"gated":          atomic.LoadInt64(&m.gated),
		"posted":         atomic.LoadInt64(&m.posted),
		"failed":         atomic.LoadInt64(&m.failed),
		"rate_limited":   atomic.LoadInt64(&m.rateLimited),
		"forbidden":      atomic.LoadInt64(&m.forbidden),
		"banned":         atomic.LoadInt64(&m.banned),
		"no_identity":    atomic.LoadInt64(&m.noIdentity),
		"reconnects":     atomic.LoadInt64(&m.reconnects),
		"systemic_trips": atomic.LoadInt64(&m.systemicTrip),
	}
}
