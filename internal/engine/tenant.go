// Package engine wires the per-tenant components together and supervises
// their loops.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/engagement-engine/internal/domain"
	"github.com/ignite/engagement-engine/internal/generation"
	"github.com/ignite/engagement-engine/internal/notify"
	"github.com/ignite/engagement-engine/internal/pacing"
	"github.com/ignite/engagement-engine/internal/pkg/distlock"
	"github.com/ignite/engagement-engine/internal/service/accountpool"
	"github.com/ignite/engagement-engine/internal/service/strategy"
	"github.com/ignite/engagement-engine/internal/transport"
	"github.com/ignite/engagement-engine/internal/worker"
)

// Stores groups the repositories a tenant needs. The memory and postgres
// backends implement all of them.
type Stores struct {
	Accounts   accountpool.Repository
	Sources    worker.SourceRepository
	Actions    worker.ActionRepository
	Strategies strategy.Repository
	Sessions   worker.SessionStore
}

// Settings are the tunables of one tenant.
type Settings struct {
	Pool         accountpool.Config
	Pacing       pacing.Config
	Monitor      worker.MonitorConfig
	Feedback     worker.FeedbackConfig
	Strategy     strategy.Config
	SessionReset time.Duration
}

// Deps are the collaborators shared by every tenant.
type Deps struct {
	Stores    Stores
	Connector transport.Connector
	Generator generation.Client
	Locker    distlock.Locker
	Notifier  notify.Sender
}

// Tenant owns the account pool and the loops of one tenant.
type Tenant struct {
	ID       string
	Pool     *accountpool.Pool
	Selector *strategy.Selector
	Session  *worker.SessionTracker
	Monitor  *worker.Monitor
	Feedback *worker.FeedbackCollector
}

// NewTenant builds a tenant. Nothing is loaded or connected until Start.
func NewTenant(id string, s Settings, d Deps) *Tenant {
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	model := pacing.New(s.Pacing, nil)
	pool := accountpool.New(id, s.Pool, d.Stores.Accounts, d.Connector, d.Notifier)
	selector := strategy.NewSelector(s.Strategy, d.Stores.Strategies)
	session := worker.NewSessionTracker(id, d.Stores.Sessions, model, s.SessionReset)

	monitor := worker.NewMonitor(id, s.Monitor, worker.MonitorDeps{
		Pool:      pool,
		Sources:   d.Stores.Sources,
		Actions:   d.Stores.Actions,
		Selector:  selector,
		Generator: d.Generator,
		Pacing:    model,
		Locker:    d.Locker,
		Notifier:  d.Notifier,
		Session:   session,
	})
	feedback := worker.NewFeedbackCollector(id, s.Feedback, pool, d.Stores.Sources, d.Stores.Actions, selector, model)

	return &Tenant{
		ID:       id,
		Pool:     pool,
		Selector: selector,
		Session:  session,
		Monitor:  monitor,
		Feedback: feedback,
	}
}

// Start loads the tenant's identities and opens their sessions.
func (t *Tenant) Start(ctx context.Context) error {
	if err := t.Pool.Load(ctx); err != nil {
		return fmt.Errorf("tenant %s: %w", t.ID, err)
	}
	if _, err := t.Pool.Connect(ctx); err != nil {
		return fmt.Errorf("tenant %s: connect: %w", t.ID, err)
	}
	if t.Pool.AllBanned() {
		return fmt.Errorf("tenant %s: %w", t.ID, ErrAllAccountsBanned)
	}
	return nil
}

// Stats is a point-in-time view of one tenant.
type Stats struct {
	TenantID string              `json:"tenant_id"`
	Pool     accountpool.Stats   `json:"pool"`
	Monitor  map[string]int64    `json:"monitor"`
	Feedback map[string]int64    `json:"feedback"`
	Session  domain.SessionState `json:"session"`
}

// Stats returns the tenant's counters.
func (t *Tenant) Stats() Stats {
	return Stats{
		TenantID: t.ID,
		Pool:     t.Pool.Stats(),
		Monitor:  t.Monitor.Stats(),
		Feedback: t.Feedback.Stats(),
		Session:  t.Session.State(),
	}
}
