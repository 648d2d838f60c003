// Package redisstore keeps short-lived engine state in Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/engagement-engine/internal/domain"
)

const sessionKeyPrefix = "engage:session:"

// SessionStore implements worker.SessionStore. Checkpoints expire after ttl
// so an abandoned tenant does not keep a stale session forever.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore creates a Redis-backed checkpoint store.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) LoadSession(ctx context.Context, tenantID string) (*domain.SessionState, error) {
	raw, err := s.client.Get(ctx, sessionKeyPrefix+tenantID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", tenantID, err)
	}
	var st domain.SessionState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", tenantID, err)
	}
	return &st, nil
}

func (s *SessionStore) SaveSession(ctx context.Context, st *domain.SessionState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+st.TenantID, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", st.TenantID, err)
	}
	return nil
}
