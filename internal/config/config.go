// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers the YAML file and environment on top of the defaults.
// - External errors must be wrapped with this package's sentinels.
package config

import (
	"time"

	"github.com/okian/rally/internal/domain/rating"
	"github.com/okian/rally/pkg/metrics"
)

// Store and conversational-state drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// StoreDriver is memory, postgres or sqlite.
	StoreDriver string `koanf:"store_driver"`
	StoreDSN    string `koanf:"store_dsn"`

	// ConvoDriver is memory or redis.
	ConvoDriver string        `koanf:"convo_driver"`
	RedisAddr   string        `koanf:"redis_addr"`
	ConvoTTL    time.Duration `koanf:"convo_ttl"`

	// NotifyWebhookURL receives outbound messages. Empty logs them instead.
	NotifyWebhookURL string `koanf:"notify_webhook_url"`

	// FixturesPath points at a YAML seed file loaded at startup.
	FixturesPath string `koanf:"fixtures_path"`

	SchedulerEnabled bool   `koanf:"scheduler_enabled"`
	RefillSchedule   string `koanf:"refill_schedule"`
	CatchupSchedule  string `koanf:"catchup_schedule"`
	BehaviorSchedule string `koanf:"behavior_schedule"`

	// Club defaults, used when a club leaves the setting unset.
	DefaultBatchSize     int           `koanf:"default_batch_size"`
	DefaultInviteTimeout time.Duration `koanf:"default_invite_timeout"`
	DefaultQuietStart    string        `koanf:"default_quiet_start"`
	DefaultQuietEnd      string        `koanf:"default_quiet_end"`
	DefaultTimezone      string        `koanf:"default_timezone"`

	RatingScale                float64 `koanf:"rating_scale"`
	RatingOffset               float64 `koanf:"rating_offset"`
	RatingKProvisional         float64 `koanf:"rating_k_provisional"`
	RatingKStable              float64 `koanf:"rating_k_stable"`
	RatingProvisionalThreshold int     `koanf:"rating_provisional_threshold"`
	LevelMin                   float64 `koanf:"level_min"`
	LevelMax                   float64 `koanf:"level_max"`

	// DefaultSkillWindow is the half-width of the level window for matches
	// without explicit bounds.
	DefaultSkillWindow float64 `koanf:"default_skill_window"`
	// BroadenStep widens a window when an organizer accepts broadening.
	BroadenStep float64 `koanf:"broaden_step"`

	// DedupeSize bounds the inbound message id memory.
	DedupeSize int `koanf:"dedupe_size"`

	// MetricsEnabled toggles Prometheus collection. MetricsLabels are added
	// as constant labels to every series.
	MetricsEnabled bool              `koanf:"metrics_enabled"`
	MetricsLabels  map[string]string `koanf:"metrics_labels"`
}

// New creates a Config with defaults.
func New() *Config {
	p := rating.DefaultParams()
	return &Config{
		LogLevel:                   "info",
		LogFormat:                  "text",
		Addr:                       ":9080",
		ShutdownTimeout:            10 * time.Second,
		StoreDriver:                DriverMemory,
		ConvoDriver:                DriverMemory,
		RedisAddr:                  "localhost:6379",
		ConvoTTL:                   24 * time.Hour,
		SchedulerEnabled:           true,
		RefillSchedule:             "@every 2m",
		CatchupSchedule:            "@every 5m",
		BehaviorSchedule:           "0 0 4 * * *",
		DefaultBatchSize:           6,
		DefaultInviteTimeout:       15 * time.Minute,
		DefaultTimezone:            "UTC",
		RatingScale:                p.Scale,
		RatingOffset:               p.Offset,
		RatingKProvisional:         p.KProvisional,
		RatingKStable:              p.KStable,
		RatingProvisionalThreshold: p.ProvisionalThreshold,
		LevelMin:                   p.LevelMin,
		LevelMax:                   p.LevelMax,
		DefaultSkillWindow:         0.5,
		BroadenStep:                0.5,
		DedupeSize:                 10_000,
		MetricsEnabled:             true,
	}
}

// RatingParams returns the rating engine parameters.
func (c *Config) RatingParams() rating.Params {
	return rating.Params{
		Scale:                c.RatingScale,
		Offset:               c.RatingOffset,
		KProvisional:         c.RatingKProvisional,
		KStable:              c.RatingKStable,
		ProvisionalThreshold: c.RatingProvisionalThreshold,
		LevelMin:             c.LevelMin,
		LevelMax:             c.LevelMax,
	}
}

// MetricsOptions returns the metrics manager options.
func (c *Config) MetricsOptions() []metrics.Option {
	return []metrics.Option{
		metrics.WithMetricsEnabled(c.MetricsEnabled),
		metrics.WithCustomLabels(c.MetricsLabels),
	}
}
