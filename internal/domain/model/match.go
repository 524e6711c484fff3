package model

import (
	"slices"
	"time"
)

// Seat layout of a doubles match.
const (
	SeatsPerTeam = 2
	MatchSeats   = 2 * SeatsPerTeam
)

// MatchStatus is the lifecycle state of a match.
type MatchStatus string

const (
	MatchPending   MatchStatus = "pending"
	MatchVoting    MatchStatus = "voting"
	MatchConfirmed MatchStatus = "confirmed"
	MatchCompleted MatchStatus = "completed"
	MatchCancelled MatchStatus = "cancelled"
)

// Seeking reports whether the match is still looking for players.
func (s MatchStatus) Seeking() bool {
	return s == MatchPending || s == MatchVoting
}

// GenderFilter restricts who may be invited.
type GenderFilter string

const (
	GenderAny   GenderFilter = ""
	GenderMixed GenderFilter = "mixed"
	GenderOnlyM GenderFilter = "male"
	GenderOnlyF GenderFilter = "female"
)

// Allows reports whether a player of the given gender passes the filter.
func (f GenderFilter) Allows(gender string) bool {
	switch f {
	case GenderOnlyM:
		return gender == GenderMale
	case GenderOnlyF:
		return gender == GenderFemale
	default:
		return true
	}
}

// Match is a request for a doubles game and its seating.
type Match struct {
	ID          string       `json:"id"`
	ClubID      string       `json:"club_id"`
	GroupID     string       `json:"group_id,omitempty"` // empty when the whole club is in scope
	RequestedBy string       `json:"requested_by"`
	OrganizerID string       `json:"organizer_id,omitempty"` // empty until someone takes ownership
	ScheduledAt time.Time    `json:"scheduled_at"`
	LevelMin    *float64     `json:"level_min,omitempty"`
	LevelMax    *float64     `json:"level_max,omitempty"`
	Gender      GenderFilter `json:"gender,omitempty"`
	// SkipFilters invites regardless of level and gender fit.
	SkipFilters bool        `json:"skip_filters"`
	Status      MatchStatus `json:"status"`
	Team1       []string    `json:"team1"`
	Team2       []string    `json:"team2"`
	Winner      Winner      `json:"winner,omitempty"`
	ConfirmedAt *time.Time  `json:"confirmed_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Participants lists seated players, team 1 first.
func (m Match) Participants() []string {
	out := make([]string, 0, len(m.Team1)+len(m.Team2))
	out = append(out, m.Team1...)
	return append(out, m.Team2...)
}

// ParticipantCount returns the number of filled seats.
func (m Match) ParticipantCount() int {
	return len(m.Team1) + len(m.Team2)
}

// OpenSeats returns how many seats are still free.
func (m Match) OpenSeats() int {
	return MatchSeats - m.ParticipantCount()
}

// HasParticipant reports whether playerID holds a seat.
func (m Match) HasParticipant(playerID string) bool {
	return slices.Contains(m.Team1, playerID) || slices.Contains(m.Team2, playerID)
}

// Seat places playerID on the first team with room. It returns the team
// number, or 0 when the match is full.
func (m *Match) Seat(playerID string) int {
	switch {
	case len(m.Team1) < SeatsPerTeam:
		m.Team1 = append(m.Team1, playerID)
		return 1
	case len(m.Team2) < SeatsPerTeam:
		m.Team2 = append(m.Team2, playerID)
		return 2
	}
	return 0
}

// Unseat removes playerID from whichever team holds it.
func (m *Match) Unseat(playerID string) bool {
	if i := slices.Index(m.Team1, playerID); i >= 0 {
		m.Team1 = slices.Delete(m.Team1, i, i+1)
		return true
	}
	if i := slices.Index(m.Team2, playerID); i >= 0 {
		m.Team2 = slices.Delete(m.Team2, i, i+1)
		return true
	}
	return false
}

// Clone returns a deep copy safe to mutate.
func (m Match) Clone() Match {
	c := m
	c.Team1 = slices.Clone(m.Team1)
	c.Team2 = slices.Clone(m.Team2)
	if m.LevelMin != nil {
		v := *m.LevelMin
		c.LevelMin = &v
	}
	if m.LevelMax != nil {
		v := *m.LevelMax
		c.LevelMax = &v
	}
	if m.ConfirmedAt != nil {
		v := *m.ConfirmedAt
		c.ConfirmedAt = &v
	}
	if m.CompletedAt != nil {
		v := *m.CompletedAt
		c.CompletedAt = &v
	}
	return c
}

// HasWindow reports whether both ends of the level window are set.
func (m Match) HasWindow() bool {
	return m.LevelMin != nil && m.LevelMax != nil
}

// Window returns the match's level bounds. Without an explicit window it is
// centred on fallback with half-width defaultWindow.
func (m Match) Window(fallback, defaultWindow float64) (lo, hi float64) {
	if m.HasWindow() {
		return *m.LevelMin, *m.LevelMax
	}
	return fallback - defaultWindow, fallback + defaultWindow
}
