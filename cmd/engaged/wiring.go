package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/engagement-engine/internal/config"
	"github.com/ignite/engagement-engine/internal/domain"
	"github.com/ignite/engagement-engine/internal/engine"
	"github.com/ignite/engagement-engine/internal/generation"
	"github.com/ignite/engagement-engine/internal/notify"
	"github.com/ignite/engagement-engine/internal/pacing"
	"github.com/ignite/engagement-engine/internal/pkg/backoff"
	"github.com/ignite/engagement-engine/internal/pkg/distlock"
	"github.com/ignite/engagement-engine/internal/pkg/logger"
	"github.com/ignite/engagement-engine/internal/repository/memory"
	"github.com/ignite/engagement-engine/internal/repository/postgres"
	"github.com/ignite/engagement-engine/internal/repository/redisstore"
	"github.com/ignite/engagement-engine/internal/service/accountpool"
	"github.com/ignite/engagement-engine/internal/service/strategy"
	"github.com/ignite/engagement-engine/internal/transport"
	"github.com/ignite/engagement-engine/internal/worker"
)

// backend is the storage selected by configuration.
type backend struct {
	stores engine.Stores
	locker distlock.Locker
	db     *sql.DB
	redis  *redis.Client
	memory *memory.Store
}

func (b *backend) Close() {
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			logger.Warn("closing redis", "error", err)
		}
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			logger.Warn("closing database", "error", err)
		}
	}
}

func openDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnLifetime())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// openBackend connects the configured storage. With postgres, session
// checkpoints and item claims go to Redis when a URL is set.
func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	claimTTL := time.Duration(cfg.Monitor.ClaimTTLMinutes) * time.Minute

	if cfg.Storage.Type == config.StorageMemory {
		store := memory.New()
		return &backend{
			stores: engine.Stores{
				Accounts:   store,
				Sources:    store,
				Actions:    store,
				Strategies: store,
				Sessions:   store,
			},
			locker: distlock.NewMemoryLocker(claimTTL),
			memory: store,
		}, nil
	}

	db, err := openDB(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	b := &backend{
		db: db,
		stores: engine.Stores{
			Accounts:   postgres.NewAccountRepo(db),
			Sources:    postgres.NewSourceRepo(db),
			Actions:    postgres.NewActionRepo(db),
			Strategies: postgres.NewStrategyRepo(db),
			Sessions:   postgres.NewSessionRepo(db),
		},
	}
	if cfg.Redis.URL != "" {
		if b.redis, err = openRedis(ctx, cfg.Redis.URL); err != nil {
			b.Close()
			return nil, err
		}
		b.stores.Sessions = redisstore.NewSessionStore(b.redis, cfg.Redis.SessionTTL())
	}
	b.locker = distlock.NewLocker(b.redis, db, claimTTL)
	return b, nil
}

type sourceSaver interface {
	ListSources(ctx context.Context, tenantID string) ([]domain.Source, error)
	SaveSource(ctx context.Context, s *domain.Source) error
}

// seedTenant inserts the configured accounts and sources that are not stored
// yet. Existing rows are left alone so counters and watermarks survive.
func seedTenant(ctx context.Context, accounts accountpool.Repository, sources sourceSaver, t config.TenantConfig, now time.Time) (int, error) {
	existingAccounts, err := accounts.ListAccounts(ctx, t.ID)
	if err != nil {
		return 0, err
	}
	haveAccount := make(map[string]bool, len(existingAccounts))
	for _, a := range existingAccounts {
		haveAccount[a.ID] = true
	}
	existingSources, err := sources.ListSources(ctx, t.ID)
	if err != nil {
		return 0, err
	}
	haveSource := make(map[string]bool, len(existingSources))
	for _, s := range existingSources {
		haveSource[s.ID] = true
	}

	seeded := 0
	for _, ac := range t.Accounts {
		if haveAccount[ac.ID] {
			continue
		}
		a, err := accountFromConfig(t.ID, ac, now)
		if err != nil {
			return seeded, err
		}
		if err := accounts.SaveAccount(ctx, a); err != nil {
			return seeded, err
		}
		seeded++
	}
	for _, sc := range t.Sources {
		if haveSource[sc.ID] {
			continue
		}
		s, err := sourceFromConfig(t.ID, sc)
		if err != nil {
			return seeded, err
		}
		if err := sources.SaveSource(ctx, s); err != nil {
			return seeded, err
		}
		seeded++
	}
	return seeded, nil
}

func parseTime(field, v string, fallback time.Time) (time.Time, error) {
	if v == "" {
		return fallback, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", field, err)
	}
	return t.UTC(), nil
}

func accountFromConfig(tenantID string, ac config.AccountConfig, now time.Time) (*domain.Account, error) {
	created, err := parseTime("account "+ac.ID+" created_at", ac.CreatedAt, now)
	if err != nil {
		return nil, err
	}
	status := domain.AccountStatus(ac.Status)
	switch status {
	case "":
		status = domain.AccountWarming
	case domain.AccountWarming, domain.AccountActive, domain.AccountBanned, domain.AccountDisabled:
	default:
		return nil, fmt.Errorf("account %s: unsupported status %q", ac.ID, ac.Status)
	}
	return &domain.Account{
		ID:             ac.ID,
		TenantID:       tenantID,
		CredentialsRef: ac.CredentialsRef,
		Status:         status,
		Segment:        ac.Segment,
		CreatedAt:      created,
	}, nil
}

func sourceFromConfig(tenantID string, sc config.SourceConfig) (*domain.Source, error) {
	joined, err := parseTime("source "+sc.ID+" joined_at", sc.JoinedAt, time.Time{})
	if err != nil {
		return nil, err
	}
	return &domain.Source{
		ID:          sc.ID,
		TenantID:    tenantID,
		PlatformID:  sc.PlatformID,
		Title:       sc.Title,
		Segment:     sc.Segment,
		JoinedAt:    joined,
		SkipAds:     sc.SkipAds,
		SkipReposts: sc.SkipReposts,
		MinLength:   sc.MinLength,
		Active:      true,
	}, nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func caps(in map[string]int) map[domain.ActionType]int {
	out := make(map[domain.ActionType]int, len(in))
	for k, v := range in {
		out[domain.ActionType(k)] = v
	}
	return out
}

// settingsFrom maps the file configuration onto the component configs.
func settingsFrom(cfg *config.Config) (engine.Settings, error) {
	loc, err := cfg.Pacing.Location()
	if err != nil {
		return engine.Settings{}, fmt.Errorf("pacing.timezone: %w", err)
	}

	pc := pacing.DefaultConfig()
	p := cfg.Pacing
	pc.ReadBase = time.Duration(p.ReadBaseMillis) * time.Millisecond
	pc.ReadCharsPerSecond = p.ReadCharsPerSecond
	pc.ReadJitter = p.ReadJitter
	pc.PauseMin, pc.PauseMax = seconds(p.PauseMinSeconds), seconds(p.PauseMaxSeconds)
	pc.ReactionMin, pc.ReactionMax = seconds(p.ReactionMinSeconds), seconds(p.ReactionMaxSeconds)
	pc.ActiveStartHour, pc.ActiveEndHour = p.ActiveStartHour, p.ActiveEndHour
	pc.Location = loc
	pc.SessionActionsMin, pc.SessionActionsMax = p.SessionActionsMin, p.SessionActionsMax
	pc.BreakMin = time.Duration(p.BreakMinMinutes) * time.Minute
	pc.BreakMax = time.Duration(p.BreakMaxMinutes) * time.Minute

	m := cfg.Monitor
	mc := worker.MonitorConfig{
		PollInterval:         m.PollInterval(),
		FetchLimit:           m.FetchLimit,
		RelevanceThreshold:   m.RelevanceThreshold,
		SkipChanceActive:     m.SkipChanceActive,
		SkipChanceWarming:    m.SkipChanceWarming,
		LurkWindow:           cfg.Pool.Lurk(),
		CallTimeout:          seconds(m.CallTimeoutSeconds),
		GenerationTimeout:    seconds(m.GenerationTimeoutSeconds),
		ReplySample:          m.ReplySample,
		MaxIdentitiesPerItem: m.MaxIdentitiesPerItem,
		SystemicThreshold:    m.SystemicThreshold,
		DefaultRetryAfter:    seconds(m.DefaultRetryAfterSeconds),
		ClaimTTL:             time.Duration(m.ClaimTTLMinutes) * time.Minute,
		Reconnect: backoff.Config{
			Base:        seconds(m.ReconnectBaseSeconds),
			Max:         seconds(m.ReconnectMaxSeconds),
			MaxAttempts: m.ReconnectMaxAttempts,
		},
	}

	f := cfg.Feedback
	fc := worker.FeedbackConfig{
		Interval:    f.Interval(),
		MinAge:      time.Duration(f.MinAgeMinutes) * time.Minute,
		Lookback:    time.Duration(f.LookbackHours) * time.Hour,
		BatchSize:   f.BatchSize,
		ReplyLimit:  f.ReplyLimit,
		CallTimeout: seconds(m.CallTimeoutSeconds),
	}

	return engine.Settings{
		Pool: accountpool.Config{
			DailyCaps:        caps(cfg.Pool.DailyCaps),
			WarmingDailyCaps: caps(cfg.Pool.WarmingDailyCaps),
			WarmupPeriod:     cfg.Pool.Warmup(),
			LurkWindow:       cfg.Pool.Lurk(),
			ConnectTimeout:   cfg.Pool.ConnectTimeout(),
		},
		Pacing:   pc,
		Monitor:  mc,
		Feedback: fc,
		Strategy: strategy.Config{
			Strategies: cfg.Strategy.Strategies,
			TieBreak:   cfg.Strategy.TieBreak,
			CacheTTL:   seconds(cfg.Strategy.CacheTTLSeconds),
		},
		SessionReset: cfg.Pacing.SessionReset(),
	}, nil
}

// newNotifier builds the fire-and-forget notifier. Mail is used when an SMTP
// host is configured, the log otherwise.
func newNotifier(cfg config.NotifyConfig) *notify.Async {
	var next notify.Notifier = notify.LogNotifier{}
	if cfg.SMTP.Host != "" {
		kinds := make([]notify.Kind, 0, len(cfg.SMTP.Kinds))
		for _, k := range cfg.SMTP.Kinds {
			kinds = append(kinds, notify.Kind(k))
		}
		next = notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:  cfg.SMTP.Host,
			Port:  cfg.SMTP.Port,
			From:  cfg.SMTP.From,
			To:    cfg.SMTP.To,
			Kinds: kinds,
		})
	}
	return notify.NewAsync(next, cfg.QueueSize, seconds(cfg.DeliveryTimeoutSeconds))
}

// buildOrchestrator opens the drivers and creates one tenant per configured
// tenant id. Memory storage is seeded from the configuration.
func buildOrchestrator(ctx context.Context, cfg *config.Config, b *backend, n notify.Sender) (*engine.Orchestrator, error) {
	settings, err := settingsFrom(cfg)
	if err != nil {
		return nil, err
	}
	connector, err := transport.Open(cfg.Transport.Driver, cfg.Transport.Options)
	if err != nil {
		return nil, err
	}
	generator, err := generation.Open(cfg.Generation.Driver, cfg.Generation.Options)
	if err != nil {
		return nil, err
	}

	deps := engine.Deps{
		Stores:    b.stores,
		Connector: connector,
		Generator: generator,
		Locker:    b.locker,
		Notifier:  n,
	}
	tenants := make([]*engine.Tenant, 0, len(cfg.Tenants))
	for _, tc := range cfg.Tenants {
		if b.memory != nil {
			seeded, err := seedTenant(ctx, b.memory, b.memory, tc, time.Now().UTC())
			if err != nil {
				return nil, fmt.Errorf("seed tenant %s: %w", tc.ID, err)
			}
			logger.Info("seeded memory store", "tenant", tc.ID, "rows", seeded)
		}
		tenants = append(tenants, engine.NewTenant(tc.ID, settings, deps))
	}
	return engine.NewOrchestrator(n, tenants...), nil
}
