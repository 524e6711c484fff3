package gormstore

import (
	"context"
	"fmt"

	"github.com/okian/rally/internal/adapters/repository"
	"github.com/okian/rally/internal/domain/model"
	"gorm.io/gorm"
)

// WithRatingTx runs fn in one database transaction. Rows read through the
// transaction are locked on postgres so concurrent updates queue up.
func (s *Store) WithRatingTx(ctx context.Context, fn func(tx repository.RatingTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&ratingTx{db: tx, store: s})
	})
}

func (s *Store) RatingHistory(ctx context.Context, playerID string) ([]model.RatingHistory, error) {
	var rows []ratingHistoryRecord
	err := s.db.WithContext(ctx).Where("player_id = ?", playerID).Order("created_at, id").Find(&rows).Error
	if err != nil {
		return nil, translate(err, "rating history of "+playerID)
	}
	out := make([]model.RatingHistory, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

type ratingTx struct {
	db    *gorm.DB
	store *Store
}

func (t *ratingTx) LockMatch(ctx context.Context, matchID string) error {
	var rows []matchRecord
	err := t.store.forUpdate(t.db.WithContext(ctx)).Where("id = ?", matchID).Limit(1).Find(&rows).Error
	return translate(err, "lock match "+matchID)
}

func (t *ratingTx) HistoryForMatch(ctx context.Context, matchID string) ([]model.RatingHistory, error) {
	var rows []ratingHistoryRecord
	err := t.db.WithContext(ctx).Where("match_id = ?", matchID).Order("created_at, id").Find(&rows).Error
	if err != nil {
		return nil, translate(err, "rating history of "+matchID)
	}
	out := make([]model.RatingHistory, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (t *ratingTx) DeleteHistoryForMatch(ctx context.Context, matchID string) error {
	err := t.db.WithContext(ctx).Where("match_id = ?", matchID).Delete(&ratingHistoryRecord{}).Error
	return translate(err, "delete rating history of "+matchID)
}

func (t *ratingTx) GetPlayer(ctx context.Context, id string) (model.Player, error) {
	return getPlayer(t.store.forUpdate(t.db.WithContext(ctx)), id)
}

func (t *ratingTx) SaveRating(ctx context.Context, p model.Player) error {
	res := t.db.WithContext(ctx).Model(&playerRecord{}).Where("id = ?", p.ID).Updates(map[string]any{
		"rating":            p.Rating,
		"adjusted_level":    p.AdjustedLevel,
		"rating_confidence": p.RatingConfidence,
		"matches_played":    p.MatchesPlayed,
	})
	if res.Error != nil {
		return translate(res.Error, "save rating of "+p.ID)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("player %s: %w", p.ID, repository.ErrNotFound)
	}
	return nil
}

func (t *ratingTx) InsertHistory(ctx context.Context, h model.RatingHistory) error {
	if h.ID == "" {
		h.ID = t.store.newID()
	}
	r := historyFromModel(h)
	return translate(t.db.WithContext(ctx).Create(&r).Error, "insert rating history "+h.MatchID+"/"+h.PlayerID)
}
