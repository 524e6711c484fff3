package gormstore

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/rally/internal/adapters/repository"
	"github.com/okian/rally/internal/domain/model"
	"gorm.io/gorm"
)

// openStatuses are the invitation statuses that still count against a match.
var openStatuses = []string{
	string(model.InvitePendingSMS),
	string(model.InviteSent),
	string(model.InviteMaybe),
}

// lockMatch loads a match row inside tx, locking it on dialects that support
// row locks.
func (s *Store) lockMatch(tx *gorm.DB, id string) (matchRecord, error) {
	var r matchRecord
	if err := s.forUpdate(tx).First(&r, "id = ?", id).Error; err != nil {
		return matchRecord{}, translate(err, "match "+id)
	}
	return r, nil
}

func (s *Store) CreateMatch(ctx context.Context, m model.Match) error {
	if m.ID == "" {
		return fmt.Errorf("match id: %w", repository.ErrInvalidInput)
	}
	if m.ParticipantCount() > model.MatchSeats {
		return fmt.Errorf("match %s seats: %w", m.ID, repository.ErrInvalidInput)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&matchRecord{}).Where("id = ?", m.ID).Count(&n).Error; err != nil {
			return translate(err, "match "+m.ID)
		}
		if n > 0 {
			return fmt.Errorf("match %s: %w", m.ID, repository.ErrConflict)
		}
		r := matchFromModel(m)
		return translate(tx.Create(&r).Error, "create match "+m.ID)
	})
}

func (s *Store) GetMatch(ctx context.Context, id string) (model.Match, error) {
	var r matchRecord
	if err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return model.Match{}, translate(err, "match "+id)
	}
	return r.toModel(), nil
}

func (s *Store) ListMatches(ctx context.Context, f repository.MatchFilter) ([]model.Match, error) {
	q := s.db.WithContext(ctx).Model(&matchRecord{})
	if f.ClubID != "" {
		q = q.Where("club_id = ?", f.ClubID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, st := range f.Statuses {
			statuses = append(statuses, string(st))
		}
		q = q.Where("status IN ?", statuses)
	}
	var rows []matchRecord
	if err := q.Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, translate(err, "list matches")
	}
	out := make([]model.Match, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *Store) UpdateMatchScope(ctx context.Context, matchID string, u repository.ScopeUpdate) (model.Match, error) {
	var out model.Match
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.lockMatch(tx, matchID)
		if err != nil {
			return err
		}
		r.GroupID = u.GroupID
		r.LevelMin = u.LevelMin
		r.LevelMax = u.LevelMax
		r.SkipFilters = u.SkipFilters
		if err := tx.Save(&r).Error; err != nil {
			return translate(err, "update match "+matchID)
		}
		out = r.toModel()
		return nil
	})
	return out, err
}

func (s *Store) CancelMatch(ctx context.Context, matchID string, at time.Time) (model.Match, error) {
	var out model.Match
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.lockMatch(tx, matchID)
		if err != nil {
			return err
		}
		st := model.MatchStatus(r.Status)
		if st == model.MatchCompleted || st == model.MatchCancelled {
			return fmt.Errorf("match %s is %s: %w", matchID, st, repository.ErrConflict)
		}
		r.Status = string(model.MatchCancelled)
		if err := tx.Save(&r).Error; err != nil {
			return translate(err, "cancel match "+matchID)
		}
		err = tx.Model(&invitationRecord{}).
			Where("match_id = ? AND status IN ?", matchID, openStatuses).
			Update("status", string(model.InviteExpired)).Error
		if err != nil {
			return translate(err, "expire invitations of "+matchID)
		}
		out = r.toModel()
		return nil
	})
	return out, err
}

func (s *Store) CompleteMatch(ctx context.Context, matchID string, w model.Winner, at time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.lockMatch(tx, matchID)
		if err != nil {
			return err
		}
		st := model.MatchStatus(r.Status)
		if st != model.MatchConfirmed && st != model.MatchCompleted {
			return fmt.Errorf("match %s is %s: %w", matchID, st, repository.ErrConflict)
		}
		completed := at.UTC()
		r.Status = string(model.MatchCompleted)
		r.Winner = int(w)
		r.CompletedAt = &completed
		return translate(tx.Save(&r).Error, "complete match "+matchID)
	})
}
