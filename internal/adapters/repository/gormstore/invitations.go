package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/rally/internal/adapters/repository"
	"github.com/okian/rally/internal/domain/model"
	"gorm.io/gorm"
)

func findInvitation(tx *gorm.DB, matchID, playerID string) (invitationRecord, bool, error) {
	var r invitationRecord
	err := tx.Where("match_id = ? AND player_id = ?", matchID, playerID).Limit(1).Find(&r).Error
	if err != nil {
		return invitationRecord{}, false, translate(err, "invitation "+matchID+"/"+playerID)
	}
	return r, r.ID != "", nil
}

func (s *Store) ClaimInvitation(ctx context.Context, req model.ClaimRequest) (model.ClaimOutcome, model.Invitation, error) {
	if req.Status != model.InviteSent && req.Status != model.InvitePendingSMS {
		return "", model.Invitation{}, fmt.Errorf("claim status %q: %w", req.Status, repository.ErrInvalidInput)
	}
	var (
		outcome model.ClaimOutcome
		inv     model.Invitation
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.lockMatch(tx, req.MatchID)
		if err != nil {
			return err
		}
		m := r.toModel()
		if !m.Status.Seeking() || m.OpenSeats() <= 0 {
			outcome = model.ClaimMatchFull
			return nil
		}
		if m.HasParticipant(req.PlayerID) {
			outcome = model.ClaimAlreadyInMatch
			return nil
		}
		if _, ok, err := findInvitation(tx, req.MatchID, req.PlayerID); err != nil {
			return err
		} else if ok {
			outcome = model.ClaimAlreadyInvited
			return nil
		}

		now := req.Now.UTC()
		rec := invitationRecord{
			ID:             s.newID(),
			MatchID:        req.MatchID,
			PlayerID:       req.PlayerID,
			Status:         string(req.Status),
			Batch:          req.Batch,
			Score:          req.Score,
			Compatibility:  req.Breakdown.Compatibility,
			Responsiveness: req.Breakdown.Responsiveness,
			Reputation:     req.Breakdown.Reputation,
			ExpiresAt:      utcPtr(req.ExpiresAt),
			CreatedAt:      now,
		}
		if req.Status == model.InviteSent {
			rec.SentAt = &now
		}
		if err := tx.Create(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				outcome = model.ClaimAlreadyInvited
				return nil
			}
			return translate(err, "claim "+req.MatchID+"/"+req.PlayerID)
		}
		outcome = model.ClaimSuccess
		inv = rec.toModel()
		return nil
	})
	if err != nil {
		return "", model.Invitation{}, err
	}
	return outcome, inv, nil
}

func (s *Store) AcceptInvitation(ctx context.Context, matchID, playerID string, at time.Time) (model.AcceptOutcome, error) {
	var out model.AcceptOutcome
	at = at.UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.lockMatch(tx, matchID)
		if err != nil {
			return err
		}
		m := r.toModel()
		inv, ok, err := findInvitation(tx, matchID, playerID)
		if err != nil {
			return err
		}
		status := model.InvitationStatus(inv.Status)
		switch {
		case !ok:
			out = model.AcceptOutcome{Result: model.AcceptNoInvite, Match: m}
			return nil
		case status == model.InviteAccepted:
			out = model.AcceptOutcome{Result: model.AcceptDuplicate, Match: m}
			return nil
		case !status.Open():
			out = model.AcceptOutcome{Result: model.AcceptClosed, Match: m}
			return nil
		}

		inv.RespondedAt = &at
		if !m.Status.Seeking() || m.OpenSeats() <= 0 || m.HasParticipant(playerID) {
			inv.Status = string(model.InviteExpired)
			if err := tx.Save(&inv).Error; err != nil {
				return translate(err, "expire invitation "+inv.ID)
			}
			out = model.AcceptOutcome{Result: model.AcceptMatchFull, Match: m}
			return nil
		}

		out = model.AcceptOutcome{Result: model.AcceptSeated, Team: m.Seat(playerID)}
		inv.Status = string(model.InviteAccepted)
		if err := tx.Save(&inv).Error; err != nil {
			return translate(err, "accept invitation "+inv.ID)
		}
		if m.OrganizerID == "" {
			m.OrganizerID = playerID
			out.BecameOrganizer = true
		}
		if m.OpenSeats() == 0 {
			m.Status = model.MatchConfirmed
			m.ConfirmedAt = &at
			out.Confirmed = true
			expired, err := expireUnanswered(tx, matchID)
			if err != nil {
				return err
			}
			out.Expired = expired
		}
		rec := matchFromModel(m)
		if err := tx.Save(&rec).Error; err != nil {
			return translate(err, "seat "+playerID+" in "+matchID)
		}
		out.Match = m
		return nil
	})
	return out, err
}

// expireUnanswered closes sent and held invitations once a match fills.
// Maybe holders keep their invitation.
func expireUnanswered(tx *gorm.DB, matchID string) ([]model.Invitation, error) {
	statuses := []string{string(model.InviteSent), string(model.InvitePendingSMS)}
	var rows []invitationRecord
	err := tx.Where("match_id = ? AND status IN ?", matchID, statuses).Order("created_at, id").Find(&rows).Error
	if err != nil {
		return nil, translate(err, "unanswered invitations of "+matchID)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	err = tx.Model(&invitationRecord{}).
		Where("match_id = ? AND status IN ?", matchID, statuses).
		Update("status", string(model.InviteExpired)).Error
	if err != nil {
		return nil, translate(err, "expire invitations of "+matchID)
	}
	out := make([]model.Invitation, 0, len(rows))
	for _, r := range rows {
		r.Status = string(model.InviteExpired)
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *Store) RespondInvitation(ctx context.Context, matchID, playerID string, to model.InvitationStatus, at time.Time) (model.Invitation, bool, error) {
	if to != model.InviteDeclined && to != model.InviteMaybe {
		return model.Invitation{}, false, fmt.Errorf("respond status %q: %w", to, repository.ErrInvalidInput)
	}
	var (
		out     model.Invitation
		changed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.lockMatch(tx, matchID); err != nil {
			return err
		}
		inv, ok, err := findInvitation(tx, matchID, playerID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("invitation %s/%s: %w", matchID, playerID, repository.ErrNotFound)
		}
		status := model.InvitationStatus(inv.Status)
		if !status.Open() || status == to {
			out = inv.toModel()
			return nil
		}
		responded := at.UTC()
		inv.Status = string(to)
		inv.RespondedAt = &responded
		if err := tx.Save(&inv).Error; err != nil {
			return translate(err, "respond invitation "+inv.ID)
		}
		out, changed = inv.toModel(), true
		return nil
	})
	if err != nil {
		return model.Invitation{}, false, err
	}
	return out, changed, nil
}

func (s *Store) RemoveParticipant(ctx context.Context, matchID, playerID string, at time.Time) (model.Match, error) {
	var out model.Match
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.lockMatch(tx, matchID)
		if err != nil {
			return err
		}
		m := r.toModel()
		if m.Status == model.MatchCompleted || m.Status == model.MatchCancelled {
			return fmt.Errorf("match %s is %s: %w", matchID, m.Status, repository.ErrConflict)
		}
		if !m.Unseat(playerID) {
			return fmt.Errorf("participant %s in %s: %w", playerID, matchID, repository.ErrNotFound)
		}
		if m.OrganizerID == playerID {
			m.OrganizerID = ""
		}
		if m.Status == model.MatchConfirmed && m.OpenSeats() > 0 {
			m.Status = model.MatchPending
			m.ConfirmedAt = nil
		}
		rec := matchFromModel(m)
		if err := tx.Save(&rec).Error; err != nil {
			return translate(err, "remove "+playerID+" from "+matchID)
		}
		inv, ok, err := findInvitation(tx, matchID, playerID)
		if err != nil {
			return err
		}
		if ok {
			removed := at.UTC()
			inv.Status = string(model.InviteRemoved)
			inv.RespondedAt = &removed
			if err := tx.Save(&inv).Error; err != nil {
				return translate(err, "remove invitation "+inv.ID)
			}
		}
		out = m
		return nil
	})
	return out, err
}

func (s *Store) ListInvitations(ctx context.Context, f repository.InvitationFilter) ([]model.Invitation, error) {
	q := s.db.WithContext(ctx).Model(&invitationRecord{})
	if f.MatchID != "" {
		q = q.Where("match_id = ?", f.MatchID)
	}
	if f.PlayerID != "" {
		q = q.Where("player_id = ?", f.PlayerID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, st := range f.Statuses {
			statuses = append(statuses, string(st))
		}
		q = q.Where("status IN ?", statuses)
	}
	if f.ExpiresBefore != nil {
		q = q.Where("expires_at IS NOT NULL AND expires_at < ?", f.ExpiresBefore.UTC())
	}
	if f.NotRefilled {
		q = q.Where("refilled_at IS NULL")
	}
	var rows []invitationRecord
	if err := q.Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, translate(err, "list invitations")
	}
	out := make([]model.Invitation, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *Store) NextBatch(ctx context.Context, matchID string) (int, error) {
	var maxBatch int
	err := s.db.WithContext(ctx).Model(&invitationRecord{}).
		Where("match_id = ?", matchID).
		Select("COALESCE(MAX(batch), 0)").
		Scan(&maxBatch).Error
	if err != nil {
		return 0, translate(err, "next batch of "+matchID)
	}
	return maxBatch + 1, nil
}

func (s *Store) MarkRefilled(ctx context.Context, ids []string, at time.Time) ([]model.Invitation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []model.Invitation
	at = at.UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []invitationRecord
		err := s.forUpdate(tx).
			Where("id IN ? AND status = ? AND refilled_at IS NULL", ids, string(model.InviteSent)).
			Order("created_at, id").
			Find(&rows).Error
		if err != nil {
			return translate(err, "stale invitations")
		}
		if len(rows) == 0 {
			return nil
		}
		marked := make([]string, 0, len(rows))
		for _, r := range rows {
			marked = append(marked, r.ID)
		}
		err = tx.Model(&invitationRecord{}).Where("id IN ?", marked).Updates(map[string]any{
			"status":      string(model.InviteExpired),
			"refilled_at": at,
		}).Error
		if err != nil {
			return translate(err, "mark refilled")
		}
		for _, r := range rows {
			r.Status = string(model.InviteExpired)
			r.RefilledAt = &at
			out = append(out, r.toModel())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) FlushPendingSMS(ctx context.Context, id string, at, expiresAt time.Time) (bool, error) {
	var flushed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv invitationRecord
		if err := tx.First(&inv, "id = ?", id).Error; err != nil {
			return translate(err, "invitation "+id)
		}
		r, err := s.lockMatch(tx, inv.MatchID)
		if err != nil {
			return err
		}
		// Re-read under the match lock; an accept may have expired it.
		if err := tx.First(&inv, "id = ?", id).Error; err != nil {
			return translate(err, "invitation "+id)
		}
		if model.InvitationStatus(inv.Status) != model.InvitePendingSMS {
			return nil
		}
		m := r.toModel()
		if !m.Status.Seeking() || m.OpenSeats() <= 0 {
			inv.Status = string(model.InviteExpired)
			return translate(tx.Save(&inv).Error, "expire held invitation "+id)
		}
		sent, exp := at.UTC(), expiresAt.UTC()
		inv.Status = string(model.InviteSent)
		inv.SentAt = &sent
		inv.ExpiresAt = &exp
		if err := tx.Save(&inv).Error; err != nil {
			return translate(err, "flush invitation "+id)
		}
		flushed = true
		return nil
	})
	return flushed, err
}
