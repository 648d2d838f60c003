package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/engagement-engine/internal/config"
	"github.com/ignite/engagement-engine/internal/domain"
	"github.com/ignite/engagement-engine/internal/generation"
	"github.com/ignite/engagement-engine/internal/generation/generationtest"
	"github.com/ignite/engagement-engine/internal/notify"
	"github.com/ignite/engagement-engine/internal/repository/memory"
	"github.com/ignite/engagement-engine/internal/transport"
	"github.com/ignite/engagement-engine/internal/transport/transporttest"
)

var registerOnce sync.Once

func registerFakes() {
	registerOnce.Do(func() {
		transport.Register("wiring-fake", func(map[string]string) (transport.Connector, error) {
			return transporttest.NewPlatform(), nil
		})
		generation.Register("wiring-fake", func(map[string]string) (generation.Client, error) {
			return generationtest.New(), nil
		})
	})
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(writeFile(t, `
tenants:
  - id: acme
    accounts:
      - id: acc-1
        segment: crypto
        status: active
        created_at: "2026-01-02T03:04:05Z"
      - id: acc-2
    sources:
      - id: src-1
        platform_id: "-100"
        title: Crypto Talk
        joined_at: "2026-01-01T00:00:00Z"
        min_length: 15
pool:
  daily_caps:
    comment: 7
pacing:
  timezone: Europe/Berlin
  pause_min_seconds: 10
  pause_max_seconds: 20
monitor:
  poll_interval_seconds: 60
  reconnect_base_seconds: 2
transport:
  driver: wiring-fake
generation:
  driver: wiring-fake
`))
	require.NoError(t, err)
	return cfg
}

func TestSettingsFrom(t *testing.T) {
	s, err := settingsFrom(testConfig(t))
	require.NoError(t, err)

	assert.Equal(t, 7, s.Pool.DailyCaps[domain.ActionComment])
	assert.Equal(t, 5, s.Pool.WarmingDailyCaps[domain.ActionComment])
	assert.Equal(t, 72*time.Hour, s.Pool.WarmupPeriod)

	assert.Equal(t, "Europe/Berlin", s.Pacing.Location.String())
	assert.Equal(t, 10*time.Second, s.Pacing.PauseMin)
	assert.Equal(t, 20*time.Second, s.Pacing.PauseMax)
	assert.Equal(t, 3*time.Second, s.Pacing.ReadBase)
	assert.Equal(t, 2*time.Second, s.Pacing.ReadMin, "unset fields keep model defaults")

	assert.Equal(t, time.Minute, s.Monitor.PollInterval)
	assert.Equal(t, 2*time.Second, s.Monitor.Reconnect.Base)
	assert.Equal(t, 10, s.Monitor.Reconnect.MaxAttempts)
	assert.Equal(t, 24*time.Hour, s.Monitor.LurkWindow)

	assert.Equal(t, time.Hour, s.Feedback.Interval)
	assert.Equal(t, 72*time.Hour, s.Feedback.Lookback)
	assert.Equal(t, "first", s.Strategy.TieBreak)
	assert.Equal(t, 6*time.Hour, s.SessionReset)
}

func TestSeedTenant(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	cfg := testConfig(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	n, err := seedTenant(ctx, store, store, cfg.Tenants[0], now)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	accounts, err := store.ListAccounts(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	byID := map[string]domain.Account{}
	for _, a := range accounts {
		byID[a.ID] = a
	}
	assert.Equal(t, domain.AccountActive, byID["acc-1"].Status)
	assert.Equal(t, "crypto", byID["acc-1"].Segment)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), byID["acc-1"].CreatedAt)
	assert.Equal(t, domain.AccountWarming, byID["acc-2"].Status)
	assert.Equal(t, now, byID["acc-2"].CreatedAt)

	// a second seed must not reset stored progress
	require.NoError(t, store.AdvanceWatermark(ctx, "src-1", 42))
	n, err = seedTenant(ctx, store, store, cfg.Tenants[0], now)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	src, err := store.GetSource(ctx, "src-1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), src.LastProcessedItemID)
	assert.Equal(t, 15, src.MinLength)
}

func TestSeedTenant_InvalidRows(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	_, err := seedTenant(ctx, store, store, config.TenantConfig{
		ID:       "acme",
		Accounts: []config.AccountConfig{{ID: "x", Status: "cooldown"}},
	}, time.Now())
	assert.ErrorContains(t, err, "unsupported status")

	_, err = seedTenant(ctx, store, store, config.TenantConfig{
		ID:      "acme",
		Sources: []config.SourceConfig{{ID: "s", JoinedAt: "yesterday"}},
	}, time.Now())
	assert.ErrorContains(t, err, "joined_at")
}

func TestBuildOrchestrator(t *testing.T) {
	registerFakes()
	ctx := context.Background()
	cfg := testConfig(t)

	b, err := openBackend(ctx, cfg)
	require.NoError(t, err)
	defer b.Close()
	require.NotNil(t, b.memory)

	orch, err := buildOrchestrator(ctx, cfg, b, notify.Nop{})
	require.NoError(t, err)
	require.Len(t, orch.Tenants(), 1)
	assert.Equal(t, "acme", orch.Tenants()[0].ID)

	sources, err := b.memory.ListSources(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, sources, 1)
}

func TestBuildOrchestrator_UnknownDriver(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Transport.Driver = "carrier-pigeon"

	b, err := openBackend(ctx, cfg)
	require.NoError(t, err)
	defer b.Close()

	_, err = buildOrchestrator(ctx, cfg, b, notify.Nop{})
	var unknown *transport.UnknownDriverError
	require.True(t, errors.As(err, &unknown), "err = %v", err)
	assert.Equal(t, "carrier-pigeon", unknown.Name)
}

func TestNewNotifier(t *testing.T) {
	n := newNotifier(config.NotifyConfig{QueueSize: 4, DeliveryTimeoutSeconds: 1})
	n.Send(notify.Event{Kind: notify.KindInfo, Message: "hello"})
	n.Close()
	assert.Equal(t, int64(0), n.Dropped())
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}
