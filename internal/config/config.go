package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the engine
type Config struct {
	Server     ServerConfig   `yaml:"server"`
	Log        LogConfig      `yaml:"log"`
	Storage    StorageConfig  `yaml:"storage"`
	Database   DatabaseConfig `yaml:"database"`
	Redis      RedisConfig    `yaml:"redis"`
	Tenants    []TenantConfig `yaml:"tenants"`
	Pool       PoolConfig     `yaml:"pool"`
	Pacing     PacingConfig   `yaml:"pacing"`
	Monitor    MonitorConfig  `yaml:"monitor"`
	Feedback   FeedbackConfig `yaml:"feedback"`
	Strategy   StrategyConfig `yaml:"strategy"`
	Transport  DriverConfig   `yaml:"transport"`
	Generation DriverConfig   `yaml:"generation"`
	Notify     NotifyConfig   `yaml:"notify"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Addr returns host:port for the health listener.
func (c ServerConfig) Addr() string {
	host := c.Host
	if h := os.Getenv("SERVER_HOST"); h != "" {
		host = h
	}
	return fmt.Sprintf("%s:%d", host, c.Port)
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Redact *bool  `yaml:"redact"` // nil means on
}

// RedactEnabled reports whether log redaction is on.
func (c LogConfig) RedactEnabled() bool {
	return c.Redact == nil || *c.Redact
}

// Storage backends.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Type string `yaml:"type"` // "memory" or "postgres"
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// ConnLifetime returns the connection lifetime as a duration
func (c DatabaseConfig) ConnLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetime) * time.Minute
}

// RedisConfig holds Redis settings. An empty URL disables Redis; item claims
// then fall back to PostgreSQL advisory locks.
type RedisConfig struct {
	URL             string `yaml:"url"`
	SessionTTLHours int    `yaml:"session_ttl_hours"`
}

// SessionTTL returns the checkpoint TTL as a duration
func (c RedisConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// TenantConfig describes one tenant. Accounts and Sources seed the memory
// store; with postgres storage they are read from the database instead.
type TenantConfig struct {
	ID       string          `yaml:"id"`
	Accounts []AccountConfig `yaml:"accounts"`
	Sources  []SourceConfig  `yaml:"sources"`
}

// AccountConfig seeds one identity
type AccountConfig struct {
	ID             string `yaml:"id"`
	CredentialsRef string `yaml:"credentials_ref"`
	Segment        string `yaml:"segment"`
	Status         string `yaml:"status"`     // default "warming"
	CreatedAt      string `yaml:"created_at"` // RFC3339, default now
}

// SourceConfig seeds one monitored source
type SourceConfig struct {
	ID          string `yaml:"id"`
	PlatformID  string `yaml:"platform_id"`
	Title       string `yaml:"title"`
	Segment     string `yaml:"segment"`
	JoinedAt    string `yaml:"joined_at"` // RFC3339, empty means long ago
	SkipAds     bool   `yaml:"skip_ads"`
	SkipReposts bool   `yaml:"skip_reposts"`
	MinLength   int    `yaml:"min_length"`
}

// PoolConfig holds identity caps and warmup rules
type PoolConfig struct {
	DailyCaps             map[string]int `yaml:"daily_caps"`
	WarmingDailyCaps      map[string]int `yaml:"warming_daily_caps"`
	WarmupHours           int            `yaml:"warmup_hours"`
	LurkHours             int            `yaml:"lurk_hours"`
	ConnectTimeoutSeconds int            `yaml:"connect_timeout_seconds"`
}

// Warmup returns the warmup period as a duration
func (c PoolConfig) Warmup() time.Duration { return time.Duration(c.WarmupHours) * time.Hour }

// Lurk returns the lurk window as a duration
func (c PoolConfig) Lurk() time.Duration { return time.Duration(c.LurkHours) * time.Hour }

// ConnectTimeout returns the per-connect timeout as a duration
func (c PoolConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

// PacingConfig holds the human-scale timing model
type PacingConfig struct {
	ReadBaseMillis      int     `yaml:"read_base_ms"`
	ReadCharsPerSecond  float64 `yaml:"read_chars_per_second"`
	ReadJitter          float64 `yaml:"read_jitter"`
	PauseMinSeconds     int     `yaml:"pause_min_seconds"`
	PauseMaxSeconds     int     `yaml:"pause_max_seconds"`
	ReactionMinSeconds  int     `yaml:"reaction_min_seconds"`
	ReactionMaxSeconds  int     `yaml:"reaction_max_seconds"`
	ActiveStartHour     int     `yaml:"active_start_hour"`
	ActiveEndHour       int     `yaml:"active_end_hour"`
	Timezone            string  `yaml:"timezone"`
	SessionActionsMin   int     `yaml:"session_actions_min"`
	SessionActionsMax   int     `yaml:"session_actions_max"`
	BreakMinMinutes     int     `yaml:"break_min_minutes"`
	BreakMaxMinutes     int     `yaml:"break_max_minutes"`
	SessionResetMinutes int     `yaml:"session_reset_minutes"`
}

// Location resolves the configured IANA zone
func (c PacingConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// SessionReset returns the stale-checkpoint age as a duration
func (c PacingConfig) SessionReset() time.Duration {
	return time.Duration(c.SessionResetMinutes) * time.Minute
}

// MonitorConfig holds the polling loop settings
type MonitorConfig struct {
	PollIntervalSeconds      int     `yaml:"poll_interval_seconds"`
	FetchLimit               int     `yaml:"fetch_limit"`
	RelevanceThreshold       float64 `yaml:"relevance_threshold"`
	SkipChanceActive         float64 `yaml:"skip_chance_active"`
	SkipChanceWarming        float64 `yaml:"skip_chance_warming"`
	CallTimeoutSeconds       int     `yaml:"call_timeout_seconds"`
	GenerationTimeoutSeconds int     `yaml:"generation_timeout_seconds"`
	ReplySample              int     `yaml:"reply_sample"`
	MaxIdentitiesPerItem     int     `yaml:"max_identities_per_item"`
	SystemicThreshold        int     `yaml:"systemic_threshold"`
	DefaultRetryAfterSeconds int     `yaml:"default_retry_after_seconds"`
	ClaimTTLMinutes          int     `yaml:"claim_ttl_minutes"`
	ReconnectBaseSeconds     int     `yaml:"reconnect_base_seconds"`
	ReconnectMaxSeconds      int     `yaml:"reconnect_max_seconds"`
	ReconnectMaxAttempts     int     `yaml:"reconnect_max_attempts"`
}

// PollInterval returns the polling interval as a duration
func (c MonitorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// FeedbackConfig holds the feedback loop settings
type FeedbackConfig struct {
	IntervalMinutes int `yaml:"interval_minutes"`
	MinAgeMinutes   int `yaml:"min_age_minutes"`
	LookbackHours   int `yaml:"lookback_hours"`
	BatchSize       int `yaml:"batch_size"`
	ReplyLimit      int `yaml:"reply_limit"`
}

// Interval returns the pass interval as a duration
func (c FeedbackConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// StrategyConfig holds bandit settings
type StrategyConfig struct {
	Strategies      []string `yaml:"strategies"`
	TieBreak        string   `yaml:"tie_break"` // "first" or "random"
	CacheTTLSeconds int      `yaml:"cache_ttl_seconds"`
}

// DriverConfig names a registered driver and its options
type DriverConfig struct {
	Driver  string            `yaml:"driver"`
	Options map[string]string `yaml:"options"`
}

// NotifyConfig holds operator notification settings
type NotifyConfig struct {
	QueueSize              int        `yaml:"queue_size"`
	DeliveryTimeoutSeconds int        `yaml:"delivery_timeout_seconds"`
	SMTP                   SMTPConfig `yaml:"smtp"`
}

// SMTPConfig enables mail delivery when Host is set
type SMTPConfig struct {
	Host  string   `yaml:"host"`
	Port  int      `yaml:"port"`
	From  string   `yaml:"from"`
	To    []string `yaml:"to"`
	Kinds []string `yaml:"kinds"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = StorageMemory
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5
	}
	if cfg.Redis.SessionTTLHours == 0 {
		cfg.Redis.SessionTTLHours = 48
	}

	// Pool defaults
	if cfg.Pool.DailyCaps == nil {
		cfg.Pool.DailyCaps = map[string]int{"comment": 25, "view_story": 150, "invite": 20}
	}
	if cfg.Pool.WarmingDailyCaps == nil {
		cfg.Pool.WarmingDailyCaps = map[string]int{"comment": 5, "view_story": 40, "invite": 0}
	}
	if cfg.Pool.WarmupHours == 0 {
		cfg.Pool.WarmupHours = 72
	}
	if cfg.Pool.LurkHours == 0 {
		cfg.Pool.LurkHours = 24
	}
	if cfg.Pool.ConnectTimeoutSeconds == 0 {
		cfg.Pool.ConnectTimeoutSeconds = 30
	}

	// Pacing defaults
	p := &cfg.Pacing
	if p.ReadBaseMillis == 0 {
		p.ReadBaseMillis = 3000
	}
	if p.ReadCharsPerSecond == 0 {
		p.ReadCharsPerSecond = 25
	}
	if p.ReadJitter == 0 {
		p.ReadJitter = 0.25
	}
	if p.PauseMinSeconds == 0 {
		p.PauseMinSeconds = 45
	}
	if p.PauseMaxSeconds == 0 {
		p.PauseMaxSeconds = 240
	}
	if p.ReactionMinSeconds == 0 {
		p.ReactionMinSeconds = 120
	}
	if p.ReactionMaxSeconds == 0 {
		p.ReactionMaxSeconds = 720
	}
	if p.ActiveStartHour == 0 && p.ActiveEndHour == 0 {
		p.ActiveStartHour, p.ActiveEndHour = 8, 23
	}
	if p.SessionActionsMin == 0 {
		p.SessionActionsMin = 5
	}
	if p.SessionActionsMax == 0 {
		p.SessionActionsMax = 12
	}
	if p.BreakMinMinutes == 0 {
		p.BreakMinMinutes = 20
	}
	if p.BreakMaxMinutes == 0 {
		p.BreakMaxMinutes = 90
	}
	if p.SessionResetMinutes == 0 {
		p.SessionResetMinutes = 360
	}

	// Monitor defaults
	m := &cfg.Monitor
	if m.PollIntervalSeconds == 0 {
		m.PollIntervalSeconds = 180
	}
	if m.FetchLimit == 0 {
		m.FetchLimit = 20
	}
	if m.RelevanceThreshold == 0 {
		m.RelevanceThreshold = 0.6
	}
	if m.SkipChanceActive == 0 {
		m.SkipChanceActive = 0.3
	}
	if m.SkipChanceWarming == 0 {
		m.SkipChanceWarming = 0.5
	}
	if m.CallTimeoutSeconds == 0 {
		m.CallTimeoutSeconds = 30
	}
	if m.GenerationTimeoutSeconds == 0 {
		m.GenerationTimeoutSeconds = 90
	}
	if m.ReplySample == 0 {
		m.ReplySample = 10
	}
	if m.MaxIdentitiesPerItem == 0 {
		m.MaxIdentitiesPerItem = 3
	}
	if m.SystemicThreshold == 0 {
		m.SystemicThreshold = 5
	}
	if m.DefaultRetryAfterSeconds == 0 {
		m.DefaultRetryAfterSeconds = 300
	}
	if m.ClaimTTLMinutes == 0 {
		m.ClaimTTLMinutes = 30
	}
	if m.ReconnectBaseSeconds == 0 {
		m.ReconnectBaseSeconds = 5
	}
	if m.ReconnectMaxSeconds == 0 {
		m.ReconnectMaxSeconds = 300
	}
	if m.ReconnectMaxAttempts == 0 {
		m.ReconnectMaxAttempts = 10
	}

	// Feedback defaults
	f := &cfg.Feedback
	if f.IntervalMinutes == 0 {
		f.IntervalMinutes = 60
	}
	if f.MinAgeMinutes == 0 {
		f.MinAgeMinutes = 60
	}
	if f.LookbackHours == 0 {
		f.LookbackHours = 72
	}
	if f.BatchSize == 0 {
		f.BatchSize = 50
	}
	if f.ReplyLimit == 0 {
		f.ReplyLimit = 20
	}

	if cfg.Strategy.TieBreak == "" {
		cfg.Strategy.TieBreak = "first"
	}
	if cfg.Strategy.CacheTTLSeconds == 0 {
		cfg.Strategy.CacheTTLSeconds = 300
	}

	if cfg.Notify.QueueSize == 0 {
		cfg.Notify.QueueSize = 256
	}
	if cfg.Notify.DeliveryTimeoutSeconds == 0 {
		cfg.Notify.DeliveryTimeoutSeconds = 10
	}
	if cfg.Notify.SMTP.Port == 0 {
		cfg.Notify.SMTP.Port = 587
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables if present
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
		if os.Getenv("STORAGE_TYPE") == "" {
			cfg.Storage.Type = StoragePostgres
		}
	}
	if v := os.Getenv("STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("TRANSPORT_DRIVER"); v != "" {
		cfg.Transport.Driver = v
	}
	if v := os.Getenv("GENERATION_DRIVER"); v != "" {
		cfg.Generation.Driver = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Notify.SMTP.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}

	return cfg, nil
}

// Validate reports configuration that cannot run.
func (cfg *Config) Validate() error {
	var errs []error
	switch cfg.Storage.Type {
	case StorageMemory:
	case StoragePostgres:
		if cfg.Database.URL == "" {
			errs = append(errs, errors.New("storage postgres requires database.url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage type %q", cfg.Storage.Type))
	}

	if len(cfg.Tenants) == 0 {
		errs = append(errs, errors.New("at least one tenant is required"))
	}
	seen := make(map[string]bool)
	for i, t := range cfg.Tenants {
		if t.ID == "" {
			errs = append(errs, fmt.Errorf("tenants[%d]: id is required", i))
			continue
		}
		if seen[t.ID] {
			errs = append(errs, fmt.Errorf("tenants[%d]: duplicate id %q", i, t.ID))
		}
		seen[t.ID] = true
	}

	if cfg.Strategy.TieBreak != "first" && cfg.Strategy.TieBreak != "random" {
		errs = append(errs, fmt.Errorf("strategy.tie_break must be first or random, got %q", cfg.Strategy.TieBreak))
	}
	if cfg.Transport.Driver == "" {
		errs = append(errs, errors.New("transport.driver is required"))
	}
	if cfg.Generation.Driver == "" {
		errs = append(errs, errors.New("generation.driver is required"))
	}
	if _, err := cfg.Pacing.Location(); err != nil {
		errs = append(errs, fmt.Errorf("pacing.timezone: %w", err))
	}
	for _, p := range []float64{cfg.Monitor.SkipChanceActive, cfg.Monitor.SkipChanceWarming, cfg.Monitor.RelevanceThreshold} {
		if p < 0 || p > 1 {
			errs = append(errs, fmt.Errorf("monitor probabilities and thresholds must be within [0,1], got %v", p))
		}
	}
	return errors.Join(errs...)
}
