package gormstore

import (
	"context"
	"fmt"

	"github.com/okian/rally/internal/adapters/repository"
	"github.com/okian/rally/internal/domain/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Store) GetClub(ctx context.Context, id string) (model.Club, error) {
	var r clubRecord
	if err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return model.Club{}, translate(err, "club "+id)
	}
	return r.toModel(), nil
}

func (s *Store) SaveClub(ctx context.Context, c model.Club) error {
	if c.ID == "" {
		return fmt.Errorf("club id: %w", repository.ErrInvalidInput)
	}
	r := clubFromModel(c)
	return translate(s.db.WithContext(ctx).Save(&r).Error, "save club "+c.ID)
}

func (s *Store) GetGroup(ctx context.Context, id string) (model.Group, error) {
	var r groupRecord
	db := s.db.WithContext(ctx)
	if err := db.First(&r, "id = ?", id).Error; err != nil {
		return model.Group{}, translate(err, "group "+id)
	}
	var members []groupMemberRecord
	if err := db.Where("group_id = ?", id).Order("ordinal").Find(&members).Error; err != nil {
		return model.Group{}, translate(err, "group members "+id)
	}
	g := model.Group{ID: r.ID, ClubID: r.ClubID, Name: r.Name}
	for _, m := range members {
		g.MemberIDs = append(g.MemberIDs, m.PlayerID)
	}
	return g, nil
}

func (s *Store) SaveGroup(ctx context.Context, g model.Group) error {
	if g.ID == "" {
		return fmt.Errorf("group id: %w", repository.ErrInvalidInput)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := groupRecord{ID: g.ID, ClubID: g.ClubID, Name: g.Name}
		if err := tx.Save(&r).Error; err != nil {
			return translate(err, "save group "+g.ID)
		}
		if err := tx.Where("group_id = ?", g.ID).Delete(&groupMemberRecord{}).Error; err != nil {
			return translate(err, "clear group members "+g.ID)
		}
		if len(g.MemberIDs) == 0 {
			return nil
		}
		members := make([]groupMemberRecord, 0, len(g.MemberIDs))
		for i, id := range g.MemberIDs {
			members = append(members, groupMemberRecord{GroupID: g.ID, PlayerID: id, Ordinal: i})
		}
		return translate(tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&members).Error, "save group members "+g.ID)
	})
}

func (s *Store) GetPlayer(ctx context.Context, id string) (model.Player, error) {
	return getPlayer(s.db.WithContext(ctx), id)
}

func getPlayer(db *gorm.DB, id string) (model.Player, error) {
	var r playerRecord
	if err := db.First(&r, "id = ?", id).Error; err != nil {
		return model.Player{}, translate(err, "player "+id)
	}
	return r.toModel(), nil
}

func (s *Store) FindPlayerByAddress(ctx context.Context, address string) (model.Player, error) {
	var r playerRecord
	err := s.db.WithContext(ctx).Where("address = ?", address).Order("created_at, id").First(&r).Error
	if err != nil {
		return model.Player{}, translate(err, "player at "+address)
	}
	return r.toModel(), nil
}

func (s *Store) ListPlayers(ctx context.Context, f repository.PlayerFilter) ([]model.Player, error) {
	db := s.db.WithContext(ctx)
	q := db.Model(&playerRecord{})
	if f.GroupID != "" {
		var g groupRecord
		if err := db.First(&g, "id = ?", f.GroupID).Error; err != nil {
			return nil, translate(err, "group "+f.GroupID)
		}
		q = q.Where("id IN (?)", db.Model(&groupMemberRecord{}).Select("player_id").Where("group_id = ?", f.GroupID))
	}
	if f.ClubID != "" {
		q = q.Where("club_id = ?", f.ClubID)
	}
	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}
	if f.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	var rows []playerRecord
	if err := q.Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, translate(err, "list players")
	}
	out := make([]model.Player, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *Store) SavePlayer(ctx context.Context, p model.Player) error {
	if p.ID == "" {
		return fmt.Errorf("player id: %w", repository.ErrInvalidInput)
	}
	r := playerFromModel(p)
	return translate(s.db.WithContext(ctx).Save(&r).Error, "save player "+p.ID)
}

func (s *Store) UpdateBehavior(ctx context.Context, playerID string, responsiveness, reputation int) error {
	res := s.db.WithContext(ctx).Model(&playerRecord{}).Where("id = ?", playerID).Updates(map[string]any{
		"responsiveness": responsiveness,
		"reputation":     reputation,
	})
	if res.Error != nil {
		return translate(res.Error, "update behavior "+playerID)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("player %s: %w", playerID, repository.ErrNotFound)
	}
	return nil
}
