package service

import (
	"context"
	"time"

	"github.com/okian/rally/internal/adapters/repository"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/pkg/logger"
	"github.com/okian/rally/pkg/metrics"
)

// Reputation adjustments.
const (
	noShowPenalty      = 10
	matchesPerBonus    = 10
	maxVolumeBonus     = 10
	maxBehavioralScore = 100
)

// Responsiveness is the percentage of closed invitations the player answered.
// An expired invitation counts as missed only when its reply window ran out:
// the refill sweep retired it, or it lapsed before the match was confirmed.
// Invitations closed early because the match filled or was cancelled are left
// out. confirmedAt maps match ids to their confirmation time. Players with no
// counted invitations score neutral.
func Responsiveness(invs []model.Invitation, confirmedAt map[string]time.Time) int {
	asked, answered := 0, 0
	for _, inv := range invs {
		switch inv.Status {
		case model.InviteAccepted, model.InviteDeclined, model.InviteMaybe, model.InviteRemoved:
			asked++
			answered++
		case model.InviteExpired:
			switch {
			case inv.SentAt == nil:
			case inv.RespondedAt != nil:
				asked++
				answered++
			case inv.RefilledAt != nil || lapsedBefore(inv, confirmedAt):
				asked++
			}
		}
	}
	if asked == 0 {
		return model.DefaultResponsiveness
	}
	return answered * maxBehavioralScore / asked
}

func lapsedBefore(inv model.Invitation, confirmedAt map[string]time.Time) bool {
	at, ok := confirmedAt[inv.MatchID]
	return ok && inv.ExpiresAt != nil && !inv.ExpiresAt.After(at)
}

// Reputation starts at the default, loses points per no-show and gains a
// little with match volume.
func Reputation(p model.Player) int {
	v := model.DefaultReputation - noShowPenalty*p.NoShows + min(maxVolumeBonus, p.MatchesPlayed/matchesPerBonus)
	return max(0, min(maxBehavioralScore, v))
}

// RecomputeBehavior refreshes every player's responsiveness and reputation
// and returns how many players changed.
func (s *Service) RecomputeBehavior(ctx context.Context) (int, error) {
	started := time.Now()
	players, err := s.store.ListPlayers(ctx, repository.PlayerFilter{})
	if err != nil {
		return 0, err
	}
	invs, err := s.store.ListInvitations(ctx, repository.InvitationFilter{})
	if err != nil {
		return 0, err
	}
	matches, err := s.store.ListMatches(ctx, repository.MatchFilter{})
	if err != nil {
		return 0, err
	}
	confirmedAt := make(map[string]time.Time, len(matches))
	for _, m := range matches {
		if m.ConfirmedAt != nil {
			confirmedAt[m.ID] = *m.ConfirmedAt
		}
	}
	byPlayer := make(map[string][]model.Invitation)
	for _, inv := range invs {
		byPlayer[inv.PlayerID] = append(byPlayer[inv.PlayerID], inv)
	}

	updated := 0
	for _, p := range players {
		resp := Responsiveness(byPlayer[p.ID], confirmedAt)
		rep := Reputation(p)
		if resp == p.Responsiveness && rep == p.Reputation {
			continue
		}
		if err := s.store.UpdateBehavior(ctx, p.ID, resp, rep); err != nil {
			return updated, err
		}
		updated++
	}

	metrics.RecordSweep("behavior", updated, float64(time.Since(started).Microseconds())/1000)
	s.log.Info(ctx, "behavior recomputed",
		logger.Int("players", len(players)),
		logger.Int("updated", updated))
	return updated, nil
}
