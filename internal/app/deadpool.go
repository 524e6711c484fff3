package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/elliotchance/pie/v2"
	"github.com/okian/rally/internal/adapters/convo"
	"github.com/okian/rally/internal/adapters/repository"
	"github.com/okian/rally/internal/domain/messages"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/internal/domain/scoring"
	"github.com/okian/rally/pkg/logger"
	"github.com/okian/rally/pkg/metrics"
)

// DeadpoolReport is the arithmetic behind a deadpool decision.
type DeadpoolReport struct {
	Needed    int
	Available int
}

// Dead reports whether the remaining pool cannot fill the open seats.
func (r DeadpoolReport) Dead() bool {
	return r.Needed > 0 && r.Available < r.Needed
}

// assessDeadpool computes how many more players the match needs beyond its
// outstanding invitations and how many eligible players were never invited.
func (s *Service) assessDeadpool(ctx context.Context, m model.Match) (DeadpoolReport, error) {
	invites, err := s.store.ListInvitations(ctx, repository.InvitationFilter{MatchID: m.ID})
	if err != nil {
		return DeadpoolReport{}, err
	}
	outstanding := len(pie.Filter(invites, func(inv model.Invitation) bool { return inv.Status.Open() }))
	r := DeadpoolReport{Needed: m.OpenSeats() - outstanding}
	if r.Needed <= 0 {
		return r, nil
	}

	pool, err := s.store.ListPlayers(ctx, repository.PlayerFilter{ClubID: m.ClubID, GroupID: m.GroupID, ActiveOnly: true})
	if err != nil {
		return r, err
	}
	criteria := scoring.CriteriaFor(m, nil, s.fallbackLevel(ctx, m), s.skillWindow, s.clock())
	for _, inv := range invites {
		criteria.Excluded[inv.PlayerID] = struct{}{}
	}
	r.Available = len(scoring.Eligible(pool, criteria))
	return r, nil
}

// checkDeadpool offers the organizer a wider search when the match cannot
// fill under its current scope. It never changes the match itself.
func (s *Service) checkDeadpool(ctx context.Context, club model.Club, matchID string) (bool, error) {
	m, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return false, err
	}
	if !m.Status.Seeking() {
		return false, nil
	}
	report, err := s.assessDeadpool(ctx, m)
	if err != nil {
		return false, err
	}
	if !report.Dead() {
		return false, nil
	}

	target, err := s.deadpoolTarget(ctx, m)
	if err != nil {
		return true, err
	}
	if s.awaitingBroaden(ctx, m) {
		s.log.Debug(ctx, "deadpool already offered", logger.String("match_id", m.ID))
		return true, nil
	}

	offer := messages.BroadenOffer(m, s.broadenStep)
	s.send(ctx, club, target, messages.Deadpool(club, m, report.Needed, report.Available, offer))
	if err := s.convo.Set(ctx, target.Address, convo.State{Name: convo.AwaitingBroaden, MatchID: m.ID}); err != nil {
		return true, fmt.Errorf("store broaden state: %w", err)
	}
	metrics.RecordDeadpoolAlert()
	s.log.Info(ctx, "deadpool detected",
		logger.String("match_id", m.ID),
		logger.String("organizer_id", target.ID),
		logger.Int("needed", report.Needed),
		logger.Int("available", report.Available))
	return true, nil
}

// deadpoolTarget is the organizer, or the requester while nobody has taken
// ownership.
func (s *Service) deadpoolTarget(ctx context.Context, m model.Match) (model.Player, error) {
	id := m.OrganizerID
	if id == "" {
		id = m.RequestedBy
	}
	return s.store.GetPlayer(ctx, id)
}

// broaden applies an organizer's answer to a deadpool offer.
func (s *Service) broaden(ctx context.Context, p model.Player, accept bool) (ReplyOutcome, error) {
	out := ReplyOutcome{Intent: model.IntentBroaden}
	st, err := s.convo.Get(ctx, p.Address)
	if errors.Is(err, convo.ErrNoState) || (err == nil && st.Name != convo.AwaitingBroaden) {
		out.Result = "no_pending_decision"
		if c, cerr := s.club(ctx, p.ClubID); cerr == nil {
			s.send(ctx, c, p, messages.NoInvite())
		}
		return out, nil
	}
	if err != nil {
		return out, err
	}
	out.MatchID = st.MatchID

	m, err := s.store.GetMatch(ctx, st.MatchID)
	if err != nil {
		return out, err
	}
	club, err := s.club(ctx, m.ClubID)
	if err != nil {
		return out, err
	}
	if err := s.convo.Clear(ctx, p.Address); err != nil {
		return out, err
	}

	if !accept {
		out.Result = "kept_scope"
		s.send(ctx, club, p, messages.BroadenDeclined())
		return out, nil
	}
	if !m.Status.Seeking() {
		out.Result = "match_closed"
		s.send(ctx, club, p, messages.MatchFull(club, m))
		return out, nil
	}

	m, err = s.store.UpdateMatchScope(ctx, m.ID, s.widen(m))
	if err != nil {
		return out, err
	}
	report, err := s.assessDeadpool(ctx, m)
	if err != nil {
		return out, err
	}

	var res DispatchResult
	if report.Needed > 0 {
		batch, err := s.store.NextBatch(ctx, m.ID)
		if err != nil {
			return out, err
		}
		if res, err = s.dispatch(ctx, club, m, report.Needed, batch); err != nil {
			return out, err
		}
	}
	out.Result = "broadened"
	s.send(ctx, club, p, messages.Broadened(club, m, res.Claimed))
	s.log.Info(ctx, "match scope broadened",
		logger.String("match_id", m.ID),
		logger.String("group_id", m.GroupID),
		logger.Bool("skip_filters", m.SkipFilters),
		logger.Int("claimed", res.Claimed))

	if report.Needed > 0 && res.Claimed < report.Needed && !res.Full {
		if _, err := s.checkDeadpool(ctx, club, m.ID); err != nil {
			return out, err
		}
	}
	return out, nil
}

// widen relaxes the scope one notch: group first, then the level window,
// then every filter.
func (s *Service) widen(m model.Match) repository.ScopeUpdate {
	u := repository.ScopeUpdate{LevelMin: m.LevelMin, LevelMax: m.LevelMax, SkipFilters: m.SkipFilters}
	switch {
	case m.GroupID != "":
		// Members were invited regardless of fit; the rest of the club is not.
		u.SkipFilters = false
	case m.HasWindow() && !m.SkipFilters:
		params := s.ratings.Params()
		lo := max(params.LevelMin, *m.LevelMin-s.broadenStep)
		hi := min(params.LevelMax, *m.LevelMax+s.broadenStep)
		u.LevelMin, u.LevelMax = &lo, &hi
		if lo == *m.LevelMin && hi == *m.LevelMax {
			u.SkipFilters = true
		}
	default:
		u.SkipFilters = true
	}
	return u
}
