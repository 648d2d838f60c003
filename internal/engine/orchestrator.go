package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/engagement-engine/internal/notify"
	"github.com/ignite/engagement-engine/internal/pkg/logger"
	"github.com/ignite/engagement-engine/internal/service/strategy"
	"github.com/ignite/engagement-engine/internal/worker"
)

// Orchestrator runs the monitor and feedback loops of every tenant. The
// first loop that cannot continue stops all of them.
type Orchestrator struct {
	tenants  []*Tenant
	notifier notify.Sender
	log      *logger.Logger

	mu      sync.Mutex
	running bool
}

// NewOrchestrator creates the orchestrator.
func NewOrchestrator(notifier notify.Sender, tenants ...*Tenant) *Orchestrator {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Orchestrator{
		tenants:  tenants,
		notifier: notifier,
		log:      logger.With("component", "orchestrator"),
	}
}

// Tenants returns the supervised tenants.
func (o *Orchestrator) Tenants() []*Tenant { return o.tenants }

// IsRunning returns whether the loops are active.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

func (o *Orchestrator) setRunning(v bool) {
	o.mu.Lock()
	o.running = v
	o.mu.Unlock()
}

// Run starts every tenant and blocks until ctx is cancelled or a loop fails.
// It returns nil on a clean shutdown. Sessions are closed before returning.
func (o *Orchestrator) Run(ctx context.Context) error {
	if len(o.tenants) == 0 {
		return ErrNoTenants
	}
	defer o.closeSessions()

	for _, t := range o.tenants {
		if err := t.Start(ctx); err != nil {
			o.fatal(t.ID, err)
			return err
		}
	}

	o.notifier.Send(notify.Event{Kind: notify.KindSystemStart, Counts: o.counts()})
	o.log.Info("orchestrator started", "tenants", len(o.tenants))
	o.setRunning(true)
	defer o.setRunning(false)

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range o.tenants {
		t := t
		g.Go(func() error {
			err := t.Monitor.Run(gctx)
			if errors.Is(err, worker.ErrNoUsableAccounts) {
				err = fmt.Errorf("%w: %v", ErrAllAccountsBanned, err)
			}
			if err != nil {
				err = fmt.Errorf("tenant %s monitor: %w", t.ID, err)
				o.fatal(t.ID, err)
				return err
			}
			return nil
		})
		g.Go(func() error {
			if err := t.Feedback.Run(gctx); err != nil {
				err = fmt.Errorf("tenant %s feedback: %w", t.ID, err)
				o.fatal(t.ID, err)
				return err
			}
			return nil
		})
	}

	err := g.Wait()
	counts := o.counts()
	if err != nil {
		o.log.Error("orchestrator stopped", "error", err, "counts", counts)
	} else {
		o.log.Info("orchestrator stopped", "counts", counts)
	}
	o.notifier.Send(notify.Event{Kind: notify.KindSystemStop, Counts: counts})
	return err
}

// fatal is the single fatal notification for a tenant that cannot go on.
func (o *Orchestrator) fatal(tenantID string, err error) {
	o.log.Error("tenant stopped", "tenant", tenantID, "error", err)
	o.notifier.Send(notify.Event{Kind: notify.KindFatal, TenantID: tenantID, Message: err.Error()})
}

func (o *Orchestrator) closeSessions() {
	for _, t := range o.tenants {
		if err := t.Pool.Close(); err != nil {
			o.log.Warn("closing sessions", "tenant", t.ID, "error", err)
		}
	}
}

// counts aggregates pool and monitor counters for start/stop notifications.
func (o *Orchestrator) counts() map[string]int {
	c := map[string]int{"tenants": len(o.tenants)}
	for _, t := range o.tenants {
		st := t.Pool.Stats()
		c["accounts"] += st.Total
		c["connected"] += st.Connected
		for status, n := range st.ByStatus {
			c["accounts_"+status] += n
		}
		ms := t.Monitor.Stats()
		c["posted"] += int(ms["posted"])
		c["failed"] += int(ms["failed"])
	}
	return c
}

// Stats returns per-tenant counters.
func (o *Orchestrator) Stats() []Stats {
	out := make([]Stats, 0, len(o.tenants))
	for _, t := range o.tenants {
		out = append(out, t.Stats())
	}
	return out
}

// Tenant returns the tenant with the given id.
func (o *Orchestrator) Tenant(id string) (*Tenant, error) {
	for _, t := range o.tenants {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTenant, id)
}

// Arms returns the strategy posteriors of one tenant for (segment, source).
func (o *Orchestrator) Arms(ctx context.Context, tenantID, segment, sourceID string) ([]strategy.Arm, error) {
	t, err := o.Tenant(tenantID)
	if err != nil {
		return nil, err
	}
	return t.Selector.Arms(ctx, segment, sourceID)
}
