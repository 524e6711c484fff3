package model

import (
	"fmt"
	"time"
)

// Winner identifies a match outcome.
type Winner int

const (
	NoWinner Winner = iota
	WinnerTeam1
	WinnerTeam2
	WinnerDraw
)

// Valid reports whether w is a reportable outcome.
func (w Winner) Valid() bool {
	return w == WinnerTeam1 || w == WinnerTeam2 || w == WinnerDraw
}

func (w Winner) String() string {
	switch w {
	case WinnerTeam1:
		return "team1"
	case WinnerTeam2:
		return "team2"
	case WinnerDraw:
		return "draw"
	}
	return fmt.Sprintf("winner(%d)", int(w))
}

// RatingHistory records one player's rating change for one match.
type RatingHistory struct {
	ID               string
	MatchID          string
	PlayerID         string
	OldRating        float64
	NewRating        float64
	OldAdjustedLevel float64
	NewAdjustedLevel float64
	CreatedAt        time.Time
}
