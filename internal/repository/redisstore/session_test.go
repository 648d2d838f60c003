package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/engagement-engine/internal/domain"
)

func TestSessionStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	store := NewSessionStore(rdb, time.Hour)
	ctx := context.Background()

	st, err := store.LoadSession(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, st)

	started := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	brk := started.Add(2 * time.Hour)
	require.NoError(t, store.SaveSession(ctx, &domain.SessionState{
		TenantID: "t1", StartedAt: started, Actions: 7, Target: 7, BreakUntil: &brk, CheckpointedAt: started.Add(time.Hour),
	}))

	st, err = store.LoadSession(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, 7, st.Actions)
	assert.True(t, st.OnBreak(started.Add(90*time.Minute)))
	assert.True(t, mr.Exists(sessionKeyPrefix+"t1"))

	mr.FastForward(2 * time.Hour)
	st, err = store.LoadSession(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, st, "checkpoints expire")
}

func TestSessionStore_CorruptValue(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	require.NoError(t, mr.Set(sessionKeyPrefix+"t1", "{not json"))
	_, err := NewSessionStore(rdb, 0).LoadSession(context.Background(), "t1")
	assert.Error(t, err)
}
