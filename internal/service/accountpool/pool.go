package accountpool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ignite/engagement-engine/internal/domain"
	"github.com/ignite/engagement-engine/internal/notify"
	"github.com/ignite/engagement-engine/internal/pkg/logger"
	"github.com/ignite/engagement-engine/internal/transport"
)

// Config controls eligibility rules.
type Config struct {
	// DailyCaps limits counted actions per UTC day for active identities.
	// A missing entry means no cap.
	DailyCaps map[domain.ActionType]int
	// WarmingDailyCaps applies while an identity is still warming.
	WarmingDailyCaps map[domain.ActionType]int
	// WarmupPeriod is how long after creation an identity stays warming.
	WarmupPeriod time.Duration
	// LurkWindow excludes an identity from counted actions in a source it
	// joined less than this long ago.
	LurkWindow time.Duration
	// ConnectTimeout bounds a single Connect/IsAuthorized call.
	ConnectTimeout time.Duration
}

// DefaultConfig returns conservative caps.
func DefaultConfig() Config {
	return Config{
		DailyCaps: map[domain.ActionType]int{
			domain.ActionComment:   25,
			domain.ActionViewStory: 150,
			domain.ActionInvite:    20,
		},
		WarmingDailyCaps: map[domain.ActionType]int{
			domain.ActionComment:   5,
			domain.ActionViewStory: 40,
			domain.ActionInvite:    0,
		},
		WarmupPeriod:   72 * time.Hour,
		LurkWindow:     24 * time.Hour,
		ConnectTimeout: 30 * time.Second,
	}
}

// Handle is a leased identity. Account is a snapshot; mutate state only
// through the pool.
type Handle struct {
	Account *domain.Account
	Session transport.Session
}

// ID returns the leased account id.
func (h *Handle) ID() string { return h.Account.ID }

type entry struct {
	acct    *domain.Account
	session transport.Session
	leased  bool
}

// Pool manages the identities of one tenant. It is safe for concurrent use.
type Pool struct {
	tenantID  string
	cfg       Config
	repo      Repository
	connector transport.Connector
	notifier  notify.Sender
	log       *logger.Logger
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	order   []string

	// saveMu serializes repository writes so the last snapshot wins.
	saveMu sync.Mutex
}

// New creates a pool. Call Load then Connect before leasing identities.
func New(tenantID string, cfg Config, repo Repository, connector transport.Connector, notifier notify.Sender) *Pool {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConfig().ConnectTimeout
	}
	return &Pool{
		tenantID:  tenantID,
		cfg:       cfg,
		repo:      repo,
		connector: connector,
		notifier:  notifier,
		log:       logger.With("component", "pool", "tenant", tenantID),
		now:       func() time.Time { return time.Now().UTC() },
		entries:   make(map[string]*entry),
	}
}

// Load reads the tenant's accounts from the repository. Sessions of accounts
// already in the pool are kept.
func (p *Pool) Load(ctx context.Context) error {
	accounts, err := p.repo.ListAccounts(ctx, p.tenantID)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}
	if len(accounts) == 0 {
		return ErrNoAccounts
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	for i := range accounts {
		a := accounts[i].Clone()
		if a.DailyCounters == nil {
			a.DailyCounters = make(map[domain.ActionType]int)
		}
		p.refreshLocked(a, now)
		if e, ok := p.entries[a.ID]; ok {
			e.acct = a
			continue
		}
		p.entries[a.ID] = &entry{acct: a}
		p.order = append(p.order, a.ID)
	}
	p.log.Info("accounts loaded", "count", len(accounts))
	return nil
}

// Connect opens a session for every non-terminal account without one and
// returns how many sessions are live afterwards. Per-account failures are
// logged; a banned verdict marks the account failed.
func (p *Pool) Connect(ctx context.Context) (int, error) {
	p.mu.Lock()
	var pending []domain.Account
	for _, id := range p.order {
		e := p.entries[id]
		if e.session == nil && !e.acct.Status.Terminal() {
			pending = append(pending, *e.acct.Clone())
		}
	}
	p.mu.Unlock()

	for _, a := range pending {
		if err := ctx.Err(); err != nil {
			return p.connected(), err
		}
		sess, err := p.dial(ctx, a)
		if err != nil {
			kind := transport.Classify(err)
			p.log.Warn("connect failed", "account", a.ID, "kind", kind, "error", err)
			if kind == transport.KindBanned {
				if merr := p.MarkFailed(ctx, a.ID, err.Error()); merr != nil {
					p.log.Error("mark failed", "account", a.ID, "error", merr)
				}
			}
			continue
		}

		p.mu.Lock()
		e, ok := p.entries[a.ID]
		if !ok || e.session != nil || e.acct.Status.Terminal() {
			p.mu.Unlock()
			sess.Close()
			continue
		}
		e.session = sess
		p.mu.Unlock()
		p.log.Debug("session connected", "account", a.ID)
	}
	n := p.connected()
	p.log.Info("pool connected", "live_sessions", n, "attempted", len(pending))
	return n, nil
}

func (p *Pool) dial(ctx context.Context, a domain.Account) (transport.Session, error) {
	cctx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()
	sess, err := p.connector.Connect(cctx, a)
	if err != nil {
		return nil, err
	}
	ok, err := sess.IsAuthorized(cctx)
	if err != nil {
		sess.Close()
		return nil, err
	}
	if !ok {
		sess.Close()
		return nil, transport.Banned(fmt.Errorf("account %s is not authorized", a.ID))
	}
	return sess, nil
}

// Reconnect closes every idle session and dials again. Leased sessions are
// left alone; their holders release them at the end of the current item.
func (p *Pool) Reconnect(ctx context.Context) (int, error) {
	p.mu.Lock()
	var stale []transport.Session
	for _, e := range p.entries {
		if e.session != nil && !e.leased {
			stale = append(stale, e.session)
			e.session = nil
		}
	}
	p.mu.Unlock()

	for _, s := range stale {
		if err := s.Close(); err != nil {
			p.log.Debug("close stale session", "account", s.AccountID(), "error", err)
		}
	}
	return p.Connect(ctx)
}

// Acquire leases the least-recently-used identity eligible for t.
// It returns false when no identity qualifies.
func (p *Pool) Acquire(t domain.ActionType) (*Handle, bool) {
	return p.AcquireFor(t, "")
}

// AcquireFor is Acquire with the per-source exclusions applied: identities
// forbidden in sourceID, and for counted actions identities still lurking
// there, are skipped.
func (p *Pool) AcquireFor(t domain.ActionType, sourceID string) (*Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()

	var best *entry
	for _, id := range p.order {
		e := p.entries[id]
		p.refreshLocked(e.acct, now)
		if !p.eligibleLocked(e, t, sourceID, now) {
			continue
		}
		if best == nil || e.acct.LastUsedAt.Before(best.acct.LastUsedAt) {
			best = e
		}
	}
	if best == nil {
		return nil, false
	}
	best.leased = true
	best.acct.LastUsedAt = now
	return &Handle{Account: best.acct.Clone(), Session: best.session}, true
}

func (p *Pool) eligibleLocked(e *entry, t domain.ActionType, sourceID string, now time.Time) bool {
	a := e.acct
	if e.session == nil || e.leased || a.Status.Terminal() || a.InCooldown(now) {
		return false
	}
	if t.Counted() {
		caps := p.cfg.DailyCaps
		if a.Status == domain.AccountWarming {
			caps = p.cfg.WarmingDailyCaps
		}
		if limit, ok := caps[t]; ok && a.Counter(t, now) >= limit {
			return false
		}
	}
	if sourceID == "" {
		return true
	}
	if a.DisabledSources[sourceID] {
		return false
	}
	if t.Counted() && p.cfg.LurkWindow > 0 {
		if joined, ok := a.JoinedAt[sourceID]; ok && now.Sub(joined) < p.cfg.LurkWindow {
			return false
		}
	}
	return true
}

// refreshLocked applies time-driven transitions: expired cooldowns, warmup
// promotion and the UTC day rollover of counters.
func (p *Pool) refreshLocked(a *domain.Account, now time.Time) {
	if a.Status == domain.AccountCooldown && !a.InCooldown(now) {
		a.Status = domain.AccountWarming
		a.CooldownUntil = nil
	}
	if a.Status == domain.AccountWarming && now.Sub(a.CreatedAt) >= p.cfg.WarmupPeriod {
		a.Status = domain.AccountActive
	}
	if day := domain.UTCDay(now); a.CountersDay != day {
		a.CountersDay = day
		a.DailyCounters = make(map[domain.ActionType]int)
	}
}

// Release returns a leased identity to the eligible set. Its session stays open.
func (p *Pool) Release(accountID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[accountID]; ok {
		e.leased = false
	}
}

// RecordUsage counts one action of type t against today's counter.
func (p *Pool) RecordUsage(ctx context.Context, accountID string, t domain.ActionType) error {
	p.mu.Lock()
	e, ok := p.entries[accountID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	now := p.now()
	p.refreshLocked(e.acct, now)
	e.acct.LastUsedAt = now
	if t.Counted() {
		e.acct.DailyCounters[t]++
	}
	p.mu.Unlock()
	return p.save(ctx, accountID)
}

// SetCooldown moves the identity into cooldown for d. A cooldown already
// ending later is kept; cooldowns only extend.
func (p *Pool) SetCooldown(ctx context.Context, accountID string, d time.Duration) error {
	p.mu.Lock()
	e, ok := p.entries[accountID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	if e.acct.Status.Terminal() {
		p.mu.Unlock()
		return nil
	}
	until := p.now().Add(d)
	if e.acct.CooldownUntil != nil && e.acct.CooldownUntil.After(until) {
		until = *e.acct.CooldownUntil
	}
	e.acct.CooldownUntil = &until
	e.acct.Status = domain.AccountCooldown
	p.mu.Unlock()

	p.log.Info("account cooling down", "account", accountID, "until", until.Format(time.RFC3339))
	p.notifier.Send(notify.Event{
		Kind:      notify.KindInfo,
		TenantID:  p.tenantID,
		AccountID: accountID,
		ErrorKind: transport.KindRateLimited.String(),
		Message:   fmt.Sprintf("cooldown until %s", until.Format(time.RFC3339)),
	})
	return p.save(ctx, accountID)
}

// MarkFailed bans the identity permanently and closes its session.
func (p *Pool) MarkFailed(ctx context.Context, accountID, reason string) error {
	p.mu.Lock()
	e, ok := p.entries[accountID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	if e.acct.Status == domain.AccountBanned {
		p.mu.Unlock()
		return nil
	}
	e.acct.Status = domain.AccountBanned
	e.acct.FailureReason = reason
	sess := e.session
	e.session = nil
	p.mu.Unlock()

	if sess != nil {
		if err := sess.Close(); err != nil {
			p.log.Debug("close banned session", "account", accountID, "error", err)
		}
	}
	p.log.Warn("account banned", "account", accountID, "reason", reason)
	p.notifier.Send(notify.Event{
		Kind:      notify.KindInfo,
		TenantID:  p.tenantID,
		AccountID: accountID,
		ErrorKind: transport.KindBanned.String(),
		Message:   reason,
	})
	return p.save(ctx, accountID)
}

// DisableSource stops offering the identity for sourceID only.
func (p *Pool) DisableSource(ctx context.Context, accountID, sourceID string) error {
	p.mu.Lock()
	e, ok := p.entries[accountID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	if e.acct.DisabledSources == nil {
		e.acct.DisabledSources = make(map[string]bool)
	}
	e.acct.DisabledSources[sourceID] = true
	p.mu.Unlock()

	p.log.Info("source disabled for account", "account", accountID, "source", sourceID)
	p.notifier.Send(notify.Event{
		Kind:      notify.KindInfo,
		TenantID:  p.tenantID,
		AccountID: accountID,
		SourceID:  sourceID,
		ErrorKind: transport.KindForbidden.String(),
		Message:   "identity forbidden in source",
	})
	return p.save(ctx, accountID)
}

// Account returns a snapshot of one account.
func (p *Pool) Account(accountID string) (*domain.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	return e.acct.Clone(), nil
}

func (p *Pool) save(ctx context.Context, accountID string) error {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	p.mu.Lock()
	e, ok := p.entries[accountID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	snap := e.acct.Clone()
	p.mu.Unlock()

	if err := p.repo.SaveAccount(ctx, snap); err != nil {
		return fmt.Errorf("save account %s: %w", accountID, err)
	}
	return nil
}

// AllBanned reports whether every identity is in a terminal state.
func (p *Pool) AllBanned() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) == 0 {
		return false
	}
	for _, e := range p.entries {
		if !e.acct.Status.Terminal() {
			return false
		}
	}
	return true
}

func (p *Pool) connected() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.entries {
		if e.session != nil {
			n++
		}
	}
	return n
}

// Stats summarises the pool.
type Stats struct {
	Total     int            `json:"total"`
	Connected int            `json:"connected"`
	Leased    int            `json:"leased"`
	ByStatus  map[string]int `json:"by_status"`
	UsedToday map[string]int `json:"used_today"`
}

// Stats returns a point-in-time summary.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	st := Stats{
		Total:     len(p.entries),
		ByStatus:  make(map[string]int),
		UsedToday: make(map[string]int),
	}
	for _, e := range p.entries {
		status := e.acct.Status
		if status == domain.AccountCooldown && !e.acct.InCooldown(now) {
			status = domain.AccountActive
		}
		st.ByStatus[string(status)]++
		if e.session != nil {
			st.Connected++
		}
		if e.leased {
			st.Leased++
		}
		for _, t := range []domain.ActionType{domain.ActionComment, domain.ActionViewStory, domain.ActionInvite} {
			st.UsedToday[string(t)] += e.acct.Counter(t, now)
		}
	}
	return st
}

// Close closes every session. The pool can be reconnected afterwards.
func (p *Pool) Close() error {
	p.mu.Lock()
	var sessions []transport.Session
	ids := make([]string, 0, len(p.entries))
	for id := range p.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		e := p.entries[id]
		if e.session != nil {
			sessions = append(sessions, e.session)
			e.session = nil
		}
		e.leased = false
	}
	p.mu.Unlock()

	var firstErr error
	for _, s := range sessions {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close session %s: %w", s.AccountID(), err)
		}
	}
	p.log.Info("pool closed", "sessions", len(sessions))
	return firstErr
}
