// Package service implements the matchmaking engine: dispatching invitations,
// reacting to replies, running the periodic sweeps and scoring results.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/okian/rally/internal/adapters/convo"
	"github.com/okian/rally/internal/adapters/notify"
	"github.com/okian/rally/internal/adapters/repository"
	"github.com/okian/rally/internal/domain/dedupe"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/internal/domain/rating"
	"github.com/okian/rally/internal/domain/scoring"
	"github.com/okian/rally/pkg/logger"
)

// Defaults applied when neither the club nor the options say otherwise.
const (
	defaultBatchSize     = 6
	defaultInviteTimeout = 15 * time.Minute
	defaultSkillWindow   = 0.5
	defaultBroadenStep   = 0.5
	defaultLevel         = 3.5
	// firstWaveMinimum is the number of first-wave invites below which a match
	// is checked for deadpool right away.
	firstWaveMinimum = 3
)

// Service is the matchmaking engine. Every method is a short, independent
// operation; the store provides all atomicity.
type Service struct {
	store   repository.Store
	sender  notify.Sender
	convo   convo.Store
	dedupe  dedupe.Deduper
	scorer  *scoring.Scorer
	ratings *rating.Engine

	batchSize     int
	inviteTimeout time.Duration
	quietStart    string
	quietEnd      string
	timezone      string
	skillWindow   float64
	broadenStep   float64

	now   func() time.Time
	newID func() string
	log   logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConvoStore sets the conversational state store.
func WithConvoStore(c convo.Store) Option {
	return func(s *Service) {
		if c != nil {
			s.convo = c
		}
	}
}

// WithDeduper sets the inbound message deduper.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Service) {
		if d != nil {
			s.dedupe = d
		}
	}
}

// WithScorer sets the candidate scorer.
func WithScorer(sc *scoring.Scorer) Option {
	return func(s *Service) {
		if sc != nil {
			s.scorer = sc
		}
	}
}

// WithRatingEngine sets the rating engine.
func WithRatingEngine(e *rating.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.ratings = e
		}
	}
}

// WithBatchSize sets the first-wave size for clubs that do not set one.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithInviteTimeout sets the invitation expiry for clubs that do not set one.
func WithInviteTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.inviteTimeout = d
		}
	}
}

// WithQuietHours sets the quiet window for clubs that do not set one.
func WithQuietHours(start, end string) Option {
	return func(s *Service) {
		s.quietStart = start
		s.quietEnd = end
	}
}

// WithTimezone sets the timezone for clubs that do not set one.
func WithTimezone(tz string) Option {
	return func(s *Service) { s.timezone = tz }
}

// WithSkillWindow sets the half-width of the level window used when a match
// has none.
func WithSkillWindow(w float64) Option {
	return func(s *Service) {
		if w > 0 {
			s.skillWindow = w
		}
	}
}

// WithBroadenStep sets how far an accepted broadening widens the window.
func WithBroadenStep(step float64) Option {
	return func(s *Service) {
		if step > 0 {
			s.broadenStep = step
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator replaces the match id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// New constructs a Service on top of store and sender.
func New(store repository.Store, sender notify.Sender, opts ...Option) *Service {
	s := &Service{
		store:         store,
		sender:        sender,
		batchSize:     defaultBatchSize,
		inviteTimeout: defaultInviteTimeout,
		skillWindow:   defaultSkillWindow,
		broadenStep:   defaultBroadenStep,
		now:           time.Now,
		newID:         uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("engine")
	}
	if s.convo == nil {
		s.convo = convo.NewMemoryStore(convo.WithClock(s.now))
	}
	if s.dedupe == nil {
		s.dedupe = dedupe.New()
	}
	if s.scorer == nil {
		s.scorer = scoring.New()
	}
	if s.ratings == nil {
		s.ratings = rating.NewEngine(store, rating.WithClock(s.now))
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// club loads a club and fills unset settings from the service defaults.
func (s *Service) club(ctx context.Context, id string) (model.Club, error) {
	c, err := s.store.GetClub(ctx, id)
	if err != nil {
		return model.Club{}, err
	}
	if c.BatchSize <= 0 {
		c.BatchSize = s.batchSize
	}
	if c.InviteTimeout <= 0 {
		c.InviteTimeout = s.inviteTimeout
	}
	if c.QuietStart == "" && c.QuietEnd == "" {
		c.QuietStart, c.QuietEnd = s.quietStart, s.quietEnd
	}
	if c.Timezone == "" {
		c.Timezone = s.timezone
	}
	return c, nil
}

// send delivers body to p from the club's number. Delivery failure is logged
// and otherwise ignored.
func (s *Service) send(ctx context.Context, c model.Club, p model.Player, body string) bool {
	if s.sender.Send(ctx, p.Address, body, c.Origin()) {
		return true
	}
	s.log.Warn(ctx, "notification not delivered",
		logger.String("player_id", p.ID),
		logger.String("club_id", c.ID))
	return false
}

// names maps participant ids to display names.
func (s *Service) names(ctx context.Context, ids []string) map[string]string {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out
	}
	players, err := s.store.ListPlayers(ctx, repository.PlayerFilter{IDs: ids})
	if err != nil {
		s.log.Warn(ctx, "participant lookup failed", logger.Error(err))
		return out
	}
	for _, p := range players {
		out[p.ID] = p.Name
	}
	return out
}

// awaitingBroaden reports whether the match's deadpool target currently has an
// open broadening offer for this match.
func (s *Service) awaitingBroaden(ctx context.Context, m model.Match) bool {
	target, err := s.deadpoolTarget(ctx, m)
	if err != nil {
		return false
	}
	st, err := s.convo.Get(ctx, target.Address)
	if err != nil {
		if !errors.Is(err, convo.ErrNoState) {
			s.log.Warn(ctx, "conversational state unavailable", logger.Error(err))
		}
		return false
	}
	return st.Name == convo.AwaitingBroaden && st.MatchID == m.ID
}
