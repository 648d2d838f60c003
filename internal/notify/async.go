package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/engagement-engine/internal/pkg/logger"
)

// Async wraps a Notifier with a bounded queue and a single delivery
// goroutine. Send never blocks: when the queue is full the event is dropped.
type Async struct {
	next    Notifier
	queue   chan Event
	timeout time.Duration

	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewAsync starts the delivery goroutine. timeout bounds each delivery.
func NewAsync(next Notifier, buffer int, timeout time.Duration) *Async {
	if buffer <= 0 {
		buffer = 256
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	a := &Async{
		next:    next,
		queue:   make(chan Event, buffer),
		timeout: timeout,
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// Send enqueues e without blocking.
func (a *Async) Send(e Event) {
	if a == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- e:
	default:
		a.dropped.Add(1)
		logger.Warn("notification dropped: queue full", "kind", e.Kind, "tenant", e.TenantID)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (a *Async) Dropped() int64 { return a.dropped.Load() }

// Failed returns how many deliveries returned an error.
func (a *Async) Failed() int64 { return a.failed.Load() }

// Close stops accepting events and waits for queued ones to be delivered.
func (a *Async) Close() {
	if a == nil {
		return
	}
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	a.wg.Wait()
}

func (a *Async) run() {
	defer a.wg.Done()
	for e := range a.queue {
		a.deliver(e)
	}
}

func (a *Async) deliver(e Event) {
	defer func() {
		if r := recover(); r != nil {
			a.failed.Add(1)
			logger.Error("notifier panicked", "kind", e.Kind, "panic", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.next.Notify(ctx, e); err != nil {
		a.failed.Add(1)
		logger.Warn("notification delivery failed", "kind", e.Kind, "tenant", e.TenantID, "error", err)
	}
}
