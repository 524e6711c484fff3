package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/okian/rally/internal/adapters/scheduler"
	"github.com/okian/rally/internal/domain/model"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RALLY_"

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if RALLY_CONFIG is set
//  3. env (prefix RALLY_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(EnvPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// RALLY_STORE_DSN -> store_dsn. Keys are flat, so underscores stay.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every problem found in c.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if strings.TrimSpace(c.Addr) == "" {
		bad("addr must not be empty")
	}
	switch c.StoreDriver {
	case DriverMemory, DriverPostgres, DriverSQLite:
	default:
		bad("unknown store_driver %q", c.StoreDriver)
	}
	if c.StoreDriver == DriverPostgres && c.StoreDSN == "" {
		bad("store_dsn is required for postgres")
	}
	switch c.ConvoDriver {
	case DriverMemory, DriverRedis:
	default:
		bad("unknown convo_driver %q", c.ConvoDriver)
	}
	if c.ConvoDriver == DriverRedis && c.RedisAddr == "" {
		bad("redis_addr is required for redis")
	}
	if c.DefaultBatchSize <= 0 {
		bad("default_batch_size must be positive")
	}
	if c.DefaultInviteTimeout <= 0 {
		bad("default_invite_timeout must be positive")
	}
	if c.DedupeSize <= 0 {
		bad("dedupe_size must be positive")
	}
	if c.LevelMin >= c.LevelMax {
		bad("level_min must be below level_max")
	}
	if c.DefaultSkillWindow <= 0 || c.BroadenStep <= 0 {
		bad("default_skill_window and broaden_step must be positive")
	}
	if c.RatingScale <= 0 || c.RatingKProvisional <= 0 || c.RatingKStable <= 0 {
		bad("rating_scale and K factors must be positive")
	}
	if c.SchedulerEnabled {
		for name, spec := range map[string]string{
			"refill_schedule":   c.RefillSchedule,
			"catchup_schedule":  c.CatchupSchedule,
			"behavior_schedule": c.BehaviorSchedule,
		} {
			if err := scheduler.Validate(spec); err != nil {
				bad("%s: %v", name, err)
			}
		}
	}
	if (c.DefaultQuietStart == "") != (c.DefaultQuietEnd == "") {
		bad("default quiet hours need both start and end")
	}
	for _, clock := range []string{c.DefaultQuietStart, c.DefaultQuietEnd} {
		if clock == "" {
			continue
		}
		if _, err := model.ParseClock(clock); err != nil {
			bad("%v", err)
		}
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		bad("default_timezone: %v", err)
	}
	return errors.Join(errs...)
}
