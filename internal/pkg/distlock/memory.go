package distlock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLocker is a single-process lock table used when no shared backend
// is configured. Entries expire after ttl like their Redis counterparts.
type MemoryLocker struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.Mutex
	held map[string]memEntry
}

type memEntry struct {
	owner   string
	expires time.Time
}

// NewMemoryLocker creates an in-process lock table.
func NewMemoryLocker(ttl time.Duration) *MemoryLocker {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &MemoryLocker{ttl: ttl, now: time.Now, held: make(map[string]memEntry)}
}

// Lock implements Locker.
func (m *MemoryLocker) Lock(key string) DistLock {
	return &memoryLock{table: m, key: key, owner: uuid.NewString()}
}

type memoryLock struct {
	table *MemoryLocker
	key   string
	owner string
}

func (l *memoryLock) Acquire(_ context.Context) (bool, error) {
	t := l.table
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if e, ok := t.held[l.key]; ok && now.Before(e.expires) && e.owner != l.owner {
		return false, nil
	}
	t.held[l.key] = memEntry{owner: l.owner, expires: now.Add(t.ttl)}
	return true, nil
}

func (l *memoryLock) Release(_ context.Context) error {
	t := l.table
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.held[l.key]; ok && e.owner == l.owner {
		delete(t.held, l.key)
	}
	return nil
}

func (l *memoryLock) Extend(_ context.Context, ttl time.Duration) error {
	t := l.table
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	e, ok := t.held[l.key]
	if !ok || e.owner != l.owner || !now.Before(e.expires) {
		return ErrNotOwned
	}
	t.held[l.key] = memEntry{owner: l.owner, expires: now.Add(ttl)}
	return nil
}
