package service

import (
	"context"
	"fmt"

	"github.com/okian/rally/internal/adapters/repository"
	"github.com/okian/rally/internal/domain/messages"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/internal/domain/rating"
	"github.com/okian/rally/pkg/logger"
)

// ReportResult rates a confirmed match and marks it completed. Reporting an
// already completed match corrects the earlier result.
func (s *Service) ReportResult(ctx context.Context, matchID string, w model.Winner) ([]rating.Change, error) {
	m, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.Status != model.MatchConfirmed && m.Status != model.MatchCompleted {
		return nil, fmt.Errorf("%w: match %s is %s", ErrMatchNotScorable, m.ID, m.Status)
	}
	if len(m.Team1) != model.SeatsPerTeam || len(m.Team2) != model.SeatsPerTeam {
		return nil, fmt.Errorf("%w: match %s has %d+%d players", ErrMatchNotScorable, m.ID, len(m.Team1), len(m.Team2))
	}

	changes, err := s.ratings.Update(ctx, m.ID,
		[2]string{m.Team1[0], m.Team1[1]},
		[2]string{m.Team2[0], m.Team2[1]},
		w)
	if err != nil {
		return nil, err
	}
	if err := s.store.CompleteMatch(ctx, m.ID, w, s.clock()); err != nil {
		return changes, err
	}
	s.log.Info(ctx, "result recorded",
		logger.String("match_id", m.ID),
		logger.String("winner", w.String()),
		logger.Bool("correction", m.Status == model.MatchCompleted))
	return changes, nil
}

// reportFromReply handles a score texted in by a participant. Without a match
// id the player's most recent confirmed or completed match is used.
func (s *Service) reportFromReply(ctx context.Context, p model.Player, in model.ResultIntent) (ReplyOutcome, error) {
	out := ReplyOutcome{Intent: model.IntentResult, MatchID: in.MatchID}
	club, err := s.club(ctx, p.ClubID)
	if err != nil {
		return out, err
	}

	var m model.Match
	if in.MatchID != "" {
		if m, err = s.store.GetMatch(ctx, in.MatchID); err != nil {
			return out, err
		}
	} else {
		matches, err := s.store.ListMatches(ctx, repository.MatchFilter{
			ClubID:   p.ClubID,
			Statuses: []model.MatchStatus{model.MatchConfirmed, model.MatchCompleted},
		})
		if err != nil {
			return out, err
		}
		for _, cand := range matches {
			if cand.HasParticipant(p.ID) && (m.ID == "" || !cand.ScheduledAt.Before(m.ScheduledAt)) {
				m = cand
			}
		}
	}
	if m.ID == "" || !m.HasParticipant(p.ID) {
		out.Result = "not_participant"
		s.send(ctx, club, p, messages.NoInvite())
		return out, nil
	}
	out.MatchID = m.ID

	if _, err := s.ReportResult(ctx, m.ID, in.Winner); err != nil {
		return out, err
	}
	out.Result = "recorded"
	s.send(ctx, club, p, messages.ResultRecorded(m, in.Winner, s.names(ctx, m.Participants())))
	return out, nil
}
