package service

import (
	"context"
	"time"

	"github.com/elliotchance/pie/v2"
	"github.com/okian/rally/internal/adapters/repository"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/pkg/logger"
	"github.com/okian/rally/pkg/metrics"
)

// SweepReport summarizes one sweep run.
type SweepReport struct {
	Matches   int `json:"matches"`
	Refilled  int `json:"refilled"`
	Invited   int `json:"invited"`
	Flushed   int `json:"flushed"`
	Dropped   int `json:"dropped"`
	Deadpools int `json:"deadpools"`
	Skipped   int `json:"skipped"`
}

// groupByMatch buckets invitations by match, keeping first-seen order.
func groupByMatch(invs []model.Invitation) ([]string, map[string][]model.Invitation) {
	byMatch := make(map[string][]model.Invitation)
	var order []string
	for _, inv := range invs {
		if _, ok := byMatch[inv.MatchID]; !ok {
			order = append(order, inv.MatchID)
		}
		byMatch[inv.MatchID] = append(byMatch[inv.MatchID], inv)
	}
	return order, byMatch
}

// RunRefillSweep replaces sent invitations whose expiry passed. Each stale
// invitation triggers at most one replacement: it is marked refilled
// atomically before the replacement batch goes out.
func (s *Service) RunRefillSweep(ctx context.Context) (SweepReport, error) {
	started := time.Now()
	var report SweepReport
	now := s.clock()

	stale, err := s.store.ListInvitations(ctx, repository.InvitationFilter{
		Statuses:      []model.InvitationStatus{model.InviteSent},
		ExpiresBefore: &now,
		NotRefilled:   true,
	})
	if err != nil {
		return report, err
	}

	order, byMatch := groupByMatch(stale)
	for _, matchID := range order {
		m, err := s.store.GetMatch(ctx, matchID)
		if err != nil {
			return report, err
		}
		if !m.Status.Seeking() {
			continue
		}
		club, err := s.club(ctx, m.ClubID)
		if err != nil {
			return report, err
		}
		if club.InQuietHours(now) {
			report.Skipped++
			continue
		}

		ids := pie.Map(byMatch[matchID], func(inv model.Invitation) string { return inv.ID })
		marked, err := s.store.MarkRefilled(ctx, ids, now)
		if err != nil {
			return report, err
		}
		if len(marked) == 0 {
			continue
		}
		report.Matches++
		report.Refilled += len(marked)

		res, err := s.replace(ctx, club, m, len(marked))
		if err != nil {
			return report, err
		}
		report.Invited += res.Claimed
		if res.Deadpool {
			report.Deadpools++
		}
	}

	metrics.RecordSweep("refill", report.Refilled, float64(time.Since(started).Microseconds())/1000)
	s.log.Info(ctx, "refill sweep finished",
		logger.Int("matches", report.Matches),
		logger.Int("refilled", report.Refilled),
		logger.Int("invited", report.Invited),
		logger.Int("deadpools", report.Deadpools),
		logger.Int("skipped_quiet", report.Skipped))
	return report, nil
}

// RunCatchupSweep flushes invitations held during quiet hours and sends a
// first wave to seeking matches that never got one.
func (s *Service) RunCatchupSweep(ctx context.Context) (SweepReport, error) {
	started := time.Now()
	var report SweepReport
	now := s.clock()

	held, err := s.store.ListInvitations(ctx, repository.InvitationFilter{
		Statuses: []model.InvitationStatus{model.InvitePendingSMS},
	})
	if err != nil {
		return report, err
	}
	order, byMatch := groupByMatch(held)
	for _, matchID := range order {
		if err := s.flushMatch(ctx, matchID, byMatch[matchID], now, &report); err != nil {
			return report, err
		}
	}

	seeking, err := s.store.ListMatches(ctx, repository.MatchFilter{
		Statuses: []model.MatchStatus{model.MatchPending, model.MatchVoting},
	})
	if err != nil {
		return report, err
	}
	for _, m := range seeking {
		if m.ScheduledAt.Before(now) {
			continue
		}
		invs, err := s.store.ListInvitations(ctx, repository.InvitationFilter{MatchID: m.ID})
		if err != nil {
			return report, err
		}
		if len(invs) > 0 {
			continue
		}
		club, err := s.club(ctx, m.ClubID)
		if err != nil {
			return report, err
		}
		res, err := s.firstWave(ctx, club, m)
		if err != nil {
			return report, err
		}
		report.Matches++
		report.Invited += res.Claimed
		if res.Deadpool {
			report.Deadpools++
		}
	}

	metrics.RecordSweep("catchup", report.Flushed+report.Invited, float64(time.Since(started).Microseconds())/1000)
	s.log.Info(ctx, "catch-up sweep finished",
		logger.Int("flushed", report.Flushed),
		logger.Int("dropped", report.Dropped),
		logger.Int("first_waves", report.Matches),
		logger.Int("invited", report.Invited),
		logger.Int("skipped_quiet", report.Skipped))
	return report, nil
}

// flushMatch sends the held invitations of one match once its club is out of
// quiet hours. Each row is re-checked against match capacity as it flushes.
func (s *Service) flushMatch(ctx context.Context, matchID string, held []model.Invitation, now time.Time, report *SweepReport) error {
	m, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return err
	}
	club, err := s.club(ctx, m.ClubID)
	if err != nil {
		return err
	}
	if club.InQuietHours(now) {
		report.Skipped += len(held)
		return nil
	}
	for _, inv := range held {
		ok, err := s.store.FlushPendingSMS(ctx, inv.ID, now, now.Add(club.InviteTimeout))
		if err != nil {
			return err
		}
		if !ok {
			report.Dropped++
			continue
		}
		report.Flushed++
		p, err := s.store.GetPlayer(ctx, inv.PlayerID)
		if err != nil {
			return err
		}
		if fresh, err := s.store.GetMatch(ctx, matchID); err == nil {
			m = fresh
		}
		s.deliverInvite(ctx, club, m, p)
	}
	return nil
}
