package service

import (
	"context"

	"github.com/okian/rally/internal/adapters/repository"
	"github.com/okian/rally/internal/domain/messages"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/pkg/logger"
)

// MatchView is a match with its invitations.
type MatchView struct {
	Match       model.Match        `json:"match"`
	Invitations []model.Invitation `json:"invitations"`
}

// GetMatch returns a match and all of its invitations.
func (s *Service) GetMatch(ctx context.Context, id string) (MatchView, error) {
	m, err := s.store.GetMatch(ctx, id)
	if err != nil {
		return MatchView{}, err
	}
	invs, err := s.store.ListInvitations(ctx, repository.InvitationFilter{MatchID: id})
	if err != nil {
		return MatchView{}, err
	}
	return MatchView{Match: m, Invitations: invs}, nil
}

// RemoveParticipant detaches a seated player. A confirmed match reverts to
// pending and one replacement goes out so the match keeps filling.
func (s *Service) RemoveParticipant(ctx context.Context, matchID, playerID string) (model.Match, DispatchResult, error) {
	m, err := s.store.RemoveParticipant(ctx, matchID, playerID, s.clock())
	if err != nil {
		return model.Match{}, DispatchResult{}, err
	}
	club, err := s.club(ctx, m.ClubID)
	if err != nil {
		return m, DispatchResult{}, err
	}
	s.log.Info(ctx, "participant removed",
		logger.String("match_id", m.ID),
		logger.String("player_id", playerID),
		logger.String("status", string(m.Status)))

	if p, err := s.store.GetPlayer(ctx, playerID); err == nil {
		s.send(ctx, club, p, messages.Removed(club, m))
	}
	res, err := s.replace(ctx, club, m, 1)
	if err != nil {
		return m, res, err
	}
	if fresh, err := s.store.GetMatch(ctx, m.ID); err == nil {
		m = fresh
	}
	return m, res, nil
}

// CancelMatch abandons a match and tells its participants.
func (s *Service) CancelMatch(ctx context.Context, matchID string) (model.Match, error) {
	m, err := s.store.CancelMatch(ctx, matchID, s.clock())
	if err != nil {
		return model.Match{}, err
	}
	club, err := s.club(ctx, m.ClubID)
	if err != nil {
		return m, err
	}
	for _, id := range m.Participants() {
		p, err := s.store.GetPlayer(ctx, id)
		if err != nil {
			continue
		}
		s.send(ctx, club, p, messages.Cancelled(club, m))
	}
	s.log.Info(ctx, "match cancelled", logger.String("match_id", m.ID))
	return m, nil
}
