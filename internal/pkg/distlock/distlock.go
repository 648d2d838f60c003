// Package distlock provides short-lived mutual exclusion across processes.
// The engine uses it to claim a single source item before posting, so two
// identities never answer the same post even when several engine processes
// share one database.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is the interface for distributed locking.
// Implementations must be safe for use from a single goroutine;
// concurrent use across goroutines requires separate lock instances.
type DistLock interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// ErrNotOwned is returned when extending a lock that expired or was taken
// over by another owner.
var ErrNotOwned = errors.New("lock no longer owned")

// Extender is implemented by locks that expire and can be refreshed while
// held.
type Extender interface {
	Extend(ctx context.Context, ttl time.Duration) error
}

// Refresh restarts l's expiry at ttl. Locks that never expire, like
// PostgreSQL advisory locks, are left as they are.
func Refresh(ctx context.Context, l DistLock, ttl time.Duration) error {
	if e, ok := l.(Extender); ok {
		return e.Extend(ctx, ttl)
	}
	return nil
}

// Locker hands out locks by key.
type Locker interface {
	Lock(key string) DistLock
}

// NewLocker picks the best available backend: Redis when a client is given,
// PostgreSQL advisory locks when only a database is given, and an in-process
// table otherwise.
func NewLocker(redisClient *redis.Client, db *sql.DB, ttl time.Duration) Locker {
	switch {
	case redisClient != nil:
		return redisLocker{client: redisClient, ttl: ttl}
	case db != nil:
		return pgLocker{db: db}
	default:
		return NewMemoryLocker(ttl)
	}
}

// ItemKey is the claim key for engaging a single item of a source.
func ItemKey(action, sourceID string, itemID int64) string {
	return fmt.Sprintf("engage:%s:%s:%d", action, sourceID, itemID)
}

type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func (r redisLocker) Lock(key string) DistLock { return NewRedisLock(r.client, key, r.ttl) }

type pgLocker struct{ db *sql.DB }

func (p pgLocker) Lock(key string) DistLock { return NewPGAdvisoryLock(p.db, key) }

// =============================================================================
// PostgreSQL Advisory Lock (fallback when Redis is unavailable)
// =============================================================================
// pg_try_advisory_lock is session-scoped, so the lock pins one pooled
// connection from Acquire until Release. If the connection drops the server
// releases the lock.

// PGAdvisoryLock implements DistLock using PostgreSQL advisory locks.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock creates a PG advisory lock with a deterministic lock ID
// derived from the given key string.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

// Acquire tries to acquire the advisory lock. Returns true if successful.
// Uses pg_try_advisory_lock which returns immediately (non-blocking).
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return false, fmt.Errorf("advisory lock %d already held by this instance", l.lockID)
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get connection for advisory lock: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, fmt.Errorf("failed to acquire advisory lock %d: %w", l.lockID, err)
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release releases the advisory lock and returns its connection to the pool.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	conn := l.conn
	l.conn = nil
	_, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	if cerr := conn.Close(); err == nil {
		err = cerr
	}
	return err
}
