// Package model contains domain models passed between layers.
package model

import "time"

// Gender values recorded on a player profile.
const (
	GenderMale   = "male"
	GenderFemale = "female"
)

// Neutral behavioral scores for players without history.
const (
	DefaultResponsiveness = 50
	DefaultReputation     = 75
)

// Player is a club member who can be invited to matches.
type Player struct {
	ID            string
	ClubID        string
	Name          string
	Address       string // SMS destination, E.164
	Gender        string
	DeclaredLevel float64 // self-reported skill level
	AdjustedLevel float64 // derived from Rating; zero until first rated match
	Rating        float64 // zero means never rated
	// RatingConfidence counts rated matches; below the provisional threshold the
	// rating moves faster.
	RatingConfidence int
	MatchesPlayed    int
	// NoShows is written by the post-match feedback flow, not by the engine.
	NoShows        int
	Responsiveness int
	Reputation     int
	MutedUntil     *time.Time
	Active         bool
	CreatedAt      time.Time
}

// Level returns the skill value used for matching: the adjusted level once the
// player has been rated, the declared level otherwise.
func (p Player) Level() float64 {
	if p.AdjustedLevel > 0 {
		return p.AdjustedLevel
	}
	return p.DeclaredLevel
}

// Muted reports whether the player asked not to be contacted at t.
func (p Player) Muted(t time.Time) bool {
	return p.MutedUntil != nil && t.Before(*p.MutedUntil)
}
