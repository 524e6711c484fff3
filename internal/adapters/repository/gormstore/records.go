package gormstore

import (
	"strings"
	"time"

	"github.com/okian/rally/internal/domain/model"
)

type clubRecord struct {
	ID                  string `gorm:"primaryKey;size:64"`
	Name                string `gorm:"size:120;not null"`
	Timezone            string `gorm:"size:64"`
	BatchSize           int
	InviteTimeoutSec    int64
	QuietStart          string `gorm:"size:5"`
	QuietEnd            string `gorm:"size:5"`
	OriginAddress       string `gorm:"size:32"`
	FeedbackDelaySec    int64
	ResultNudgeDelaySec int64
}

func (clubRecord) TableName() string { return "clubs" }

type groupRecord struct {
	ID     string `gorm:"primaryKey;size:64"`
	ClubID string `gorm:"size:64;not null;index"`
	Name   string `gorm:"size:120"`
}

func (groupRecord) TableName() string { return "player_groups" }

type groupMemberRecord struct {
	GroupID  string `gorm:"primaryKey;size:64"`
	PlayerID string `gorm:"primaryKey;size:64"`
	Ordinal  int    `gorm:"not null"`
}

func (groupMemberRecord) TableName() string { return "group_members" }

type playerRecord struct {
	ID               string  `gorm:"primaryKey;size:64"`
	ClubID           string  `gorm:"size:64;not null;index"`
	Name             string  `gorm:"size:120"`
	Address          string  `gorm:"size:32;index"`
	Gender           string  `gorm:"size:10"`
	DeclaredLevel    float64 `gorm:"not null"`
	AdjustedLevel    float64
	Rating           float64
	RatingConfidence int
	MatchesPlayed    int
	NoShows          int
	Responsiveness   int
	Reputation       int
	MutedUntil       *time.Time
	Active           bool `gorm:"not null"`
	CreatedAt        time.Time
}

func (playerRecord) TableName() string { return "players" }

type matchRecord struct {
	ID          string    `gorm:"primaryKey;size:64"`
	ClubID      string    `gorm:"size:64;not null;index"`
	GroupID     string    `gorm:"size:64"`
	RequestedBy string    `gorm:"size:64"`
	OrganizerID string    `gorm:"size:64"`
	ScheduledAt time.Time `gorm:"not null"`
	LevelMin    *float64
	LevelMax    *float64
	Gender      string `gorm:"size:10"`
	SkipFilters bool
	Status      string `gorm:"size:20;not null;index"`
	Team1       string `gorm:"size:140"`
	Team2       string `gorm:"size:140"`
	Winner      int
	ConfirmedAt *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
}

func (matchRecord) TableName() string { return "matches" }

type invitationRecord struct {
	ID             string `gorm:"primaryKey;size:64"`
	MatchID        string `gorm:"size:64;not null;uniqueIndex:idx_invitation_match_player"`
	PlayerID       string `gorm:"size:64;not null;uniqueIndex:idx_invitation_match_player"`
	Status         string `gorm:"size:20;not null;index"`
	Batch          int    `gorm:"not null"`
	Score          int
	Compatibility  int
	Responsiveness int
	Reputation     int
	SentAt         *time.Time
	ExpiresAt      *time.Time `gorm:"index"`
	RespondedAt    *time.Time
	RefilledAt     *time.Time
	CreatedAt      time.Time
}

func (invitationRecord) TableName() string { return "invitations" }

type ratingHistoryRecord struct {
	ID               string  `gorm:"primaryKey;size:64"`
	MatchID          string  `gorm:"size:64;not null;index"`
	PlayerID         string  `gorm:"size:64;not null;index"`
	OldRating        float64 `gorm:"not null"`
	NewRating        float64 `gorm:"not null"`
	OldAdjustedLevel float64
	NewAdjustedLevel float64
	CreatedAt        time.Time
}

func (ratingHistoryRecord) TableName() string { return "rating_history" }

func clubFromModel(c model.Club) clubRecord {
	return clubRecord{
		ID:                  c.ID,
		Name:                c.Name,
		Timezone:            c.Timezone,
		BatchSize:           c.BatchSize,
		InviteTimeoutSec:    int64(c.InviteTimeout / time.Second),
		QuietStart:          c.QuietStart,
		QuietEnd:            c.QuietEnd,
		OriginAddress:       c.OriginAddress,
		FeedbackDelaySec:    int64(c.FeedbackDelay / time.Second),
		ResultNudgeDelaySec: int64(c.ResultNudgeDelay / time.Second),
	}
}

func (r clubRecord) toModel() model.Club {
	return model.Club{
		ID:               r.ID,
		Name:             r.Name,
		Timezone:         r.Timezone,
		BatchSize:        r.BatchSize,
		InviteTimeout:    time.Duration(r.InviteTimeoutSec) * time.Second,
		QuietStart:       r.QuietStart,
		QuietEnd:         r.QuietEnd,
		OriginAddress:    r.OriginAddress,
		FeedbackDelay:    time.Duration(r.FeedbackDelaySec) * time.Second,
		ResultNudgeDelay: time.Duration(r.ResultNudgeDelaySec) * time.Second,
	}
}

func playerFromModel(p model.Player) playerRecord {
	return playerRecord{
		ID:               p.ID,
		ClubID:           p.ClubID,
		Name:             p.Name,
		Address:          p.Address,
		Gender:           p.Gender,
		DeclaredLevel:    p.DeclaredLevel,
		AdjustedLevel:    p.AdjustedLevel,
		Rating:           p.Rating,
		RatingConfidence: p.RatingConfidence,
		MatchesPlayed:    p.MatchesPlayed,
		NoShows:          p.NoShows,
		Responsiveness:   p.Responsiveness,
		Reputation:       p.Reputation,
		MutedUntil:       utcPtr(p.MutedUntil),
		Active:           p.Active,
		CreatedAt:        p.CreatedAt.UTC(),
	}
}

func (r playerRecord) toModel() model.Player {
	return model.Player{
		ID:               r.ID,
		ClubID:           r.ClubID,
		Name:             r.Name,
		Address:          r.Address,
		Gender:           r.Gender,
		DeclaredLevel:    r.DeclaredLevel,
		AdjustedLevel:    r.AdjustedLevel,
		Rating:           r.Rating,
		RatingConfidence: r.RatingConfidence,
		MatchesPlayed:    r.MatchesPlayed,
		NoShows:          r.NoShows,
		Responsiveness:   r.Responsiveness,
		Reputation:       r.Reputation,
		MutedUntil:       utcPtr(r.MutedUntil),
		Active:           r.Active,
		CreatedAt:        r.CreatedAt.UTC(),
	}
}

func matchFromModel(m model.Match) matchRecord {
	return matchRecord{
		ID:          m.ID,
		ClubID:      m.ClubID,
		GroupID:     m.GroupID,
		RequestedBy: m.RequestedBy,
		OrganizerID: m.OrganizerID,
		ScheduledAt: m.ScheduledAt.UTC(),
		LevelMin:    m.LevelMin,
		LevelMax:    m.LevelMax,
		Gender:      string(m.Gender),
		SkipFilters: m.SkipFilters,
		Status:      string(m.Status),
		Team1:       strings.Join(m.Team1, ","),
		Team2:       strings.Join(m.Team2, ","),
		Winner:      int(m.Winner),
		ConfirmedAt: utcPtr(m.ConfirmedAt),
		CompletedAt: utcPtr(m.CompletedAt),
		CreatedAt:   m.CreatedAt.UTC(),
	}
}

func (r matchRecord) toModel() model.Match {
	return model.Match{
		ID:          r.ID,
		ClubID:      r.ClubID,
		GroupID:     r.GroupID,
		RequestedBy: r.RequestedBy,
		OrganizerID: r.OrganizerID,
		ScheduledAt: r.ScheduledAt.UTC(),
		LevelMin:    r.LevelMin,
		LevelMax:    r.LevelMax,
		Gender:      model.GenderFilter(r.Gender),
		SkipFilters: r.SkipFilters,
		Status:      model.MatchStatus(r.Status),
		Team1:       splitTeam(r.Team1),
		Team2:       splitTeam(r.Team2),
		Winner:      model.Winner(r.Winner),
		ConfirmedAt: utcPtr(r.ConfirmedAt),
		CompletedAt: utcPtr(r.CompletedAt),
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

func (r invitationRecord) toModel() model.Invitation {
	return model.Invitation{
		ID:       r.ID,
		MatchID:  r.MatchID,
		PlayerID: r.PlayerID,
		Status:   model.InvitationStatus(r.Status),
		Batch:    r.Batch,
		Score:    r.Score,
		Breakdown: model.ScoreBreakdown{
			Compatibility:  r.Compatibility,
			Responsiveness: r.Responsiveness,
			Reputation:     r.Reputation,
		},
		SentAt:      utcPtr(r.SentAt),
		ExpiresAt:   utcPtr(r.ExpiresAt),
		RespondedAt: utcPtr(r.RespondedAt),
		RefilledAt:  utcPtr(r.RefilledAt),
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

func historyFromModel(h model.RatingHistory) ratingHistoryRecord {
	return ratingHistoryRecord{
		ID:               h.ID,
		MatchID:          h.MatchID,
		PlayerID:         h.PlayerID,
		OldRating:        h.OldRating,
		NewRating:        h.NewRating,
		OldAdjustedLevel: h.OldAdjustedLevel,
		NewAdjustedLevel: h.NewAdjustedLevel,
		CreatedAt:        h.CreatedAt.UTC(),
	}
}

func (r ratingHistoryRecord) toModel() model.RatingHistory {
	return model.RatingHistory{
		ID:               r.ID,
		MatchID:          r.MatchID,
		PlayerID:         r.PlayerID,
		OldRating:        r.OldRating,
		NewRating:        r.NewRating,
		OldAdjustedLevel: r.OldAdjustedLevel,
		NewAdjustedLevel: r.NewAdjustedLevel,
		CreatedAt:        r.CreatedAt.UTC(),
	}
}

func splitTeam(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
