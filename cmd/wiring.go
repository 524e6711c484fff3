package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/rally/internal/adapters/convo"
	"github.com/okian/rally/internal/adapters/http/api"
	"github.com/okian/rally/internal/adapters/http/swagger"
	"github.com/okian/rally/internal/adapters/notify"
	"github.com/okian/rally/internal/adapters/repository"
	"github.com/okian/rally/internal/adapters/repository/gormstore"
	"github.com/okian/rally/internal/adapters/scheduler"
	service "github.com/okian/rally/internal/app"
	"github.com/okian/rally/internal/config"
	"github.com/okian/rally/internal/domain/dedupe"
	"github.com/okian/rally/internal/domain/rating"
	"github.com/okian/rally/internal/fixtures"
	"github.com/okian/rally/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Scheduled job names.
const (
	jobRefill   = "refill"
	jobCatchup  = "catchup"
	jobBehavior = "behavior"
)

func buildStore(cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return repository.NewMemoryStore(), nil
	case config.DriverPostgres, config.DriverSQLite:
		dsn := cfg.StoreDSN
		if dsn == "" {
			dsn = "file:rally.db?_pragma=busy_timeout(5000)"
		}
		return gormstore.Open(cfg.StoreDriver, dsn, gormstore.WithLogger(logger.Named("store")))
	}
	return nil, fmt.Errorf("%w: %s", gormstore.ErrUnknownDriver, cfg.StoreDriver)
}

func seedFixtures(ctx context.Context, cfg *config.Config, dir repository.Directory) error {
	if cfg.FixturesPath == "" {
		return nil
	}
	seed, err := fixtures.Load(cfg.FixturesPath)
	if err != nil {
		return err
	}
	_, err = seed.Apply(ctx, dir, time.Now().UTC())
	return err
}

// buildConvo returns the conversational state store and a func releasing it.
func buildConvo(ctx context.Context, cfg *config.Config) (convo.Store, func(), error) {
	if cfg.ConvoDriver != config.DriverRedis {
		return convo.NewMemoryStore(convo.WithTTL(cfg.ConvoTTL)), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
	}
	return convo.NewRedisStore(client, cfg.ConvoTTL), func() { _ = client.Close() }, nil
}

func buildSender(cfg *config.Config) notify.Sender {
	if cfg.NotifyWebhookURL == "" {
		return notify.NewLogSender()
	}
	return notify.NewWebhookSender(cfg.NotifyWebhookURL)
}

func buildService(cfg *config.Config, store repository.Store, sender notify.Sender, states convo.Store) *service.Service {
	return service.New(store, sender,
		service.WithLogger(logger.Named("engine")),
		service.WithConvoStore(states),
		service.WithDeduper(dedupe.New(dedupe.WithMaxSize(cfg.DedupeSize))),
		service.WithRatingEngine(rating.NewEngine(store, rating.WithParams(cfg.RatingParams()))),
		service.WithBatchSize(cfg.DefaultBatchSize),
		service.WithInviteTimeout(cfg.DefaultInviteTimeout),
		service.WithQuietHours(cfg.DefaultQuietStart, cfg.DefaultQuietEnd),
		service.WithTimezone(cfg.DefaultTimezone),
		service.WithSkillWindow(cfg.DefaultSkillWindow),
		service.WithBroadenStep(cfg.BroadenStep),
	)
}

func buildScheduler(cfg *config.Config, svc *service.Service) (*scheduler.Scheduler, error) {
	s := scheduler.New()
	jobs := []struct {
		name string
		spec string
		fn   scheduler.JobFunc
	}{
		{jobRefill, cfg.RefillSchedule, func(ctx context.Context) error {
			_, err := svc.RunRefillSweep(ctx)
			return err
		}},
		{jobCatchup, cfg.CatchupSchedule, func(ctx context.Context) error {
			_, err := svc.RunCatchupSweep(ctx)
			return err
		}},
		{jobBehavior, cfg.BehaviorSchedule, func(ctx context.Context) error {
			_, err := svc.RecomputeBehavior(ctx)
			return err
		}},
	}
	for _, j := range jobs {
		if err := s.Add(j.name, j.spec, j.fn); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func newMux(ctx context.Context, deps api.Dependencies) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(deps).Register(ctx, mux)
	return mux
}
