// Package scheduler triggers the periodic sweeps on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/rally/pkg/logger"
	"github.com/robfig/cron/v3"
)

// ErrUnknownJob is returned by RunNow for names that were never added.
var ErrUnknownJob = errors.New("unknown job")

// parser accepts five or six field expressions and descriptors such as
// "@every 1m".
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate reports whether spec is a schedule the scheduler accepts.
func Validate(spec string) error {
	_, err := parser.Parse(spec)
	return err
}

// JobFunc is one unit of periodic work.
type JobFunc func(ctx context.Context) error

type job struct {
	name string
	spec string
	fn   JobFunc
	mu   sync.Mutex
}

// Scheduler runs named jobs on cron schedules. A run that is still going when
// its next tick fires is skipped, and RunNow waits for any run in progress.
type Scheduler struct {
	cron    *cron.Cron
	jobs    map[string]*job
	timeout time.Duration
	log     logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithJobTimeout bounds a single run.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets a custom logger for the scheduler.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a stopped Scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		jobs:    make(map[string]*job),
		timeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("scheduler")
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cronLogger{log: s.log}),
		cron.WithChain(cron.Recover(cronLogger{log: s.log})),
	)
	return s
}

// Add registers fn under name on the given schedule.
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %s already registered", name)
	}
	j := &job{name: name, spec: spec, fn: fn}
	if _, err := s.cron.AddFunc(spec, func() { s.tick(j) }); err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	s.jobs[name] = j
	return nil
}

// Start begins firing scheduled jobs.
func (s *Scheduler) Start() {
	s.log.Info(s.ctx, "scheduler starting", logger.Int("jobs", len(s.jobs)))
	s.cron.Start()
}

// Stop halts the schedule, cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.log.Info(s.ctx, "scheduler stopping")
	done := s.cron.Stop()
	s.cancel()
	<-done.Done()
	s.log.Info(context.Background(), "scheduler stopped")
}

// RunNow runs the named job immediately, waiting for a run already in
// progress to finish first.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return s.run(ctx, j)
}

// tick is the cron entry point. Overlapping ticks are dropped.
func (s *Scheduler) tick(j *job) {
	if !j.mu.TryLock() {
		s.log.Warn(s.ctx, "job still running, tick skipped", logger.String("job", j.name))
		return
	}
	defer j.mu.Unlock()
	if err := s.run(s.ctx, j); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error(s.ctx, "job failed", logger.String("job", j.name), logger.Error(err))
	}
}

func (s *Scheduler) run(ctx context.Context, j *job) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	started := time.Now()
	err := j.fn(ctx)
	s.log.Debug(ctx, "job finished",
		logger.String("job", j.name),
		logger.Duration("took", time.Since(started)),
		logger.Bool("ok", err == nil))
	return err
}

// cronLogger adapts the structured logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(context.Background(), msg, pairs(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(context.Background(), msg, append(pairs(keysAndValues), logger.Error(err))...)
}

func pairs(kv []interface{}) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields = append(fields, logger.Any(key, kv[i+1]))
	}
	return fields
}
