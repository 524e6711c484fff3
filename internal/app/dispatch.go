package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/rally/internal/adapters/repository"
	"github.com/okian/rally/internal/domain/messages"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/internal/domain/scoring"
	"github.com/okian/rally/pkg/logger"
	"github.com/okian/rally/pkg/metrics"
)

// MatchRequest asks for a new doubles match.
type MatchRequest struct {
	ClubID      string
	GroupID     string
	RequestedBy string
	ScheduledAt time.Time
	// LevelMin and LevelMax bound the skill window. Group-scoped requests
	// ignore filters and invite every member.
	LevelMin    *float64
	LevelMax    *float64
	Gender      model.GenderFilter
	SkipFilters bool
	// RequesterPlays seats the requester on team 1 as organizer.
	RequesterPlays bool
}

// DispatchResult summarizes one dispatch wave.
type DispatchResult struct {
	Batch int `json:"batch"`
	// Claimed counts successful claims, deferred ones included.
	Claimed  int `json:"claimed"`
	Deferred int `json:"deferred"`
	Notified int `json:"notified"`
	// Full is set when the match filled while the wave was running.
	Full     bool `json:"full"`
	Deadpool bool `json:"deadpool"`
}

func (r MatchRequest) validate() error {
	switch {
	case r.ClubID == "":
		return fmt.Errorf("%w: club is required", ErrInvalidRequest)
	case r.RequestedBy == "":
		return fmt.Errorf("%w: requester is required", ErrInvalidRequest)
	case r.ScheduledAt.IsZero():
		return fmt.Errorf("%w: scheduled time is required", ErrInvalidRequest)
	case (r.LevelMin == nil) != (r.LevelMax == nil):
		return fmt.Errorf("%w: level window needs both bounds", ErrInvalidRequest)
	case r.LevelMin != nil && *r.LevelMin > *r.LevelMax:
		return fmt.Errorf("%w: level window is inverted", ErrInvalidRequest)
	}
	switch r.Gender {
	case model.GenderAny, model.GenderMixed, model.GenderOnlyM, model.GenderOnlyF:
	default:
		return fmt.Errorf("%w: unknown gender filter %q", ErrInvalidRequest, r.Gender)
	}
	return nil
}

// CreateMatch records a match request and sends the first wave of invites.
func (s *Service) CreateMatch(ctx context.Context, req MatchRequest) (model.Match, DispatchResult, error) {
	if err := req.validate(); err != nil {
		return model.Match{}, DispatchResult{}, err
	}
	club, err := s.club(ctx, req.ClubID)
	if err != nil {
		return model.Match{}, DispatchResult{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	requester, err := s.store.GetPlayer(ctx, req.RequestedBy)
	if err != nil {
		return model.Match{}, DispatchResult{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if requester.ClubID != club.ID {
		return model.Match{}, DispatchResult{}, fmt.Errorf("%w: requester is not a member of %s", ErrInvalidRequest, club.ID)
	}
	if req.GroupID != "" {
		g, err := s.store.GetGroup(ctx, req.GroupID)
		if err != nil {
			return model.Match{}, DispatchResult{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		if g.ClubID != club.ID {
			return model.Match{}, DispatchResult{}, fmt.Errorf("%w: group %s belongs to another club", ErrInvalidRequest, g.ID)
		}
	}

	now := s.clock()
	m := model.Match{
		ID:          s.newID(),
		ClubID:      club.ID,
		GroupID:     req.GroupID,
		RequestedBy: requester.ID,
		ScheduledAt: req.ScheduledAt.UTC(),
		LevelMin:    req.LevelMin,
		LevelMax:    req.LevelMax,
		Gender:      req.Gender,
		SkipFilters: req.SkipFilters || req.GroupID != "",
		Status:      model.MatchPending,
		CreatedAt:   now,
	}
	if req.RequesterPlays {
		m.Seat(requester.ID)
		m.OrganizerID = requester.ID
	}
	if err := s.store.CreateMatch(ctx, m); err != nil {
		return model.Match{}, DispatchResult{}, err
	}
	metrics.RecordMatchCreated()
	ctx = logger.With(ctx, logger.String("match_id", m.ID))
	s.log.Info(ctx, "match created",
		logger.String("club_id", m.ClubID),
		logger.String("group_id", m.GroupID),
		logger.Time("scheduled_at", m.ScheduledAt))

	res, err := s.firstWave(ctx, club, m)
	if err != nil {
		return m, res, err
	}
	if fresh, err := s.store.GetMatch(ctx, m.ID); err == nil {
		m = fresh
	}
	return m, res, nil
}

// firstWave sends batch 1 and checks for deadpool when it came out thin.
func (s *Service) firstWave(ctx context.Context, club model.Club, m model.Match) (DispatchResult, error) {
	budget := club.BatchSize
	if m.GroupID != "" {
		budget = 0
	}
	res, err := s.dispatch(ctx, club, m, budget, 1)
	if err != nil {
		return res, err
	}
	if res.Claimed < min(firstWaveMinimum, m.OpenSeats()) {
		res.Deadpool, err = s.checkDeadpool(ctx, club, m.ID)
	}
	return res, err
}

// replace dispatches n replacements with the next batch number and checks for
// deadpool when fewer could be sent.
func (s *Service) replace(ctx context.Context, club model.Club, m model.Match, n int) (DispatchResult, error) {
	if n <= 0 || !m.Status.Seeking() {
		return DispatchResult{}, nil
	}
	if s.awaitingBroaden(ctx, m) {
		s.log.Debug(ctx, "replacement held until organizer decides", logger.String("match_id", m.ID))
		return DispatchResult{}, nil
	}
	batch, err := s.store.NextBatch(ctx, m.ID)
	if err != nil {
		return DispatchResult{}, err
	}
	res, err := s.dispatch(ctx, club, m, n, batch)
	if err != nil {
		return res, err
	}
	if res.Claimed < n && !res.Full {
		res.Deadpool, err = s.checkDeadpool(ctx, club, m.ID)
	}
	return res, err
}

// dispatch ranks the candidate pool and claims invitations in order until
// budget claims succeed. A budget of zero or less invites every candidate.
func (s *Service) dispatch(ctx context.Context, club model.Club, m model.Match, budget, batch int) (DispatchResult, error) {
	res := DispatchResult{Batch: batch}
	now := s.clock()

	ranked, err := s.rank(ctx, m, now)
	if err != nil {
		return res, err
	}

	quiet := club.InQuietHours(now)
	for _, cand := range ranked {
		if budget > 0 && res.Claimed >= budget {
			break
		}
		req := model.ClaimRequest{
			MatchID:   m.ID,
			PlayerID:  cand.Player.ID,
			Status:    model.InviteSent,
			Batch:     batch,
			Score:     cand.Score,
			Breakdown: cand.Breakdown,
			Now:       now,
		}
		if quiet {
			req.Status = model.InvitePendingSMS
		} else {
			exp := now.Add(club.InviteTimeout)
			req.ExpiresAt = &exp
		}

		outcome, _, err := s.store.ClaimInvitation(ctx, req)
		if err != nil {
			return res, fmt.Errorf("claim %s for %s: %w", cand.Player.ID, m.ID, err)
		}
		metrics.RecordClaimOutcome(string(outcome))

		switch outcome {
		case model.ClaimSuccess:
			res.Claimed++
			metrics.RecordInvitation(string(req.Status))
			if quiet {
				res.Deferred++
				continue
			}
			if s.deliverInvite(ctx, club, m, cand.Player) {
				res.Notified++
			}
		case model.ClaimMatchFull:
			res.Full = true
		}
		if res.Full {
			break
		}
	}

	s.log.Info(ctx, "dispatch wave",
		logger.String("match_id", m.ID),
		logger.Int("batch", batch),
		logger.Int("budget", budget),
		logger.Int("ranked", len(ranked)),
		logger.Int("claimed", res.Claimed),
		logger.Int("deferred", res.Deferred),
		logger.Bool("full", res.Full))
	return res, nil
}

// deliverInvite sends an invitation and clears the player's stale
// conversational state so a late reply is not misrouted.
func (s *Service) deliverInvite(ctx context.Context, club model.Club, m model.Match, p model.Player) bool {
	if !s.send(ctx, club, p, messages.Invite(p, club, m)) {
		return false
	}
	if err := s.convo.Clear(ctx, p.Address); err != nil {
		s.log.Warn(ctx, "clearing conversational state failed", logger.String("player_id", p.ID), logger.Error(err))
	}
	return true
}

// rank returns the scored, ordered candidates for m.
func (s *Service) rank(ctx context.Context, m model.Match, now time.Time) ([]scoring.Candidate, error) {
	started := time.Now()
	pool, err := s.store.ListPlayers(ctx, repository.PlayerFilter{ClubID: m.ClubID, GroupID: m.GroupID, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	invites, err := s.store.ListInvitations(ctx, repository.InvitationFilter{MatchID: m.ID})
	if err != nil {
		return nil, err
	}
	criteria := scoring.CriteriaFor(m, invites, s.fallbackLevel(ctx, m), s.skillWindow, now)
	ranked := s.scorer.Rank(pool, criteria)
	metrics.RecordRankingLatency(float64(time.Since(started).Microseconds()) / 1000)
	return ranked, nil
}

// fallbackLevel is the centre of the level window for matches without one.
func (s *Service) fallbackLevel(ctx context.Context, m model.Match) float64 {
	for _, id := range []string{m.RequestedBy, m.OrganizerID} {
		if id == "" {
			continue
		}
		p, err := s.store.GetPlayer(ctx, id)
		if err == nil {
			return p.Level()
		}
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.Warn(ctx, "requester lookup failed", logger.String("player_id", id), logger.Error(err))
		}
	}
	return defaultLevel
}
