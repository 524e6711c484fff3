// Package rating computes and applies doubles rating updates.
package rating

import (
	"math"

	"github.com/okian/rally/internal/domain/model"
)

// Default rating parameters. A declared 3.5 seeds at 1500.
const (
	defaultScale                = 400.0
	defaultOffset               = 100.0
	defaultKProvisional         = 64.0
	defaultKStable              = 32.0
	defaultProvisionalThreshold = 5
	defaultLevelMin             = 1.0
	defaultLevelMax             = 7.0
	eloDivisor                  = 400.0
)

// Params configures the rating map and K-factors.
type Params struct {
	Scale                float64
	Offset               float64
	KProvisional         float64
	KStable              float64
	ProvisionalThreshold int
	LevelMin             float64
	LevelMax             float64
}

// DefaultParams returns the stock parameters.
func DefaultParams() Params {
	return Params{
		Scale:                defaultScale,
		Offset:               defaultOffset,
		KProvisional:         defaultKProvisional,
		KStable:              defaultKStable,
		ProvisionalThreshold: defaultProvisionalThreshold,
		LevelMin:             defaultLevelMin,
		LevelMax:             defaultLevelMax,
	}
}

// Seed maps a declared skill level to an initial rating.
func (p Params) Seed(level float64) float64 {
	return math.Round(level*p.Scale + p.Offset)
}

// AdjustedLevel maps a rating back to a display skill level, rounded to two
// decimals and clamped to the configured range.
func (p Params) AdjustedLevel(rating float64) float64 {
	lvl := (rating - p.Offset) / p.Scale
	lvl = math.Round(lvl*100) / 100
	return math.Max(p.LevelMin, math.Min(p.LevelMax, lvl))
}

// K returns the K-factor for a player with the given confidence counter.
func (p Params) K(confidence int) float64 {
	if confidence < p.ProvisionalThreshold {
		return p.KProvisional
	}
	return p.KStable
}

// CurrentRating returns the player's rating, seeding unrated players.
func (p Params) CurrentRating(pl model.Player) float64 {
	if pl.Rating > 0 {
		return pl.Rating
	}
	return p.Seed(pl.DeclaredLevel)
}

// ExpectedScore is the logistic win expectation of rating against opponent.
func ExpectedScore(rating, opponent float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (opponent-rating)/eloDivisor))
}

// ActualScore returns 1, 0 or 0.5 for the given team under outcome w.
func ActualScore(team int, w model.Winner) float64 {
	switch {
	case w == model.WinnerDraw:
		return 0.5
	case (w == model.WinnerTeam1 && team == 1) || (w == model.WinnerTeam2 && team == 2):
		return 1.0
	default:
		return 0.0
	}
}

// Delta is K*(actual-expected) rounded to the nearest integer.
func Delta(k, actual, expected float64) float64 {
	return math.Round(k * (actual - expected))
}

// TeamAverage returns the mean rating of a pair.
func TeamAverage(a, b float64) float64 {
	return (a + b) / 2.0
}

// Change is one player's computed rating movement.
type Change struct {
	PlayerID string
	Team     int
	Old      float64
	New      float64
	OldLevel float64
	NewLevel float64
}

// Compute returns the four changes for a doubles outcome. Each player is rated
// individually against the opposing team's average.
func (p Params) Compute(team1, team2 [2]model.Player, w model.Winner) []Change {
	r1 := [2]float64{p.CurrentRating(team1[0]), p.CurrentRating(team1[1])}
	r2 := [2]float64{p.CurrentRating(team2[0]), p.CurrentRating(team2[1])}
	avg1 := TeamAverage(r1[0], r1[1])
	avg2 := TeamAverage(r2[0], r2[1])

	changes := make([]Change, 0, model.MatchSeats)
	add := func(pl model.Player, team int, rating, oppAvg float64) {
		d := Delta(p.K(pl.RatingConfidence), ActualScore(team, w), ExpectedScore(rating, oppAvg))
		oldLevel := pl.AdjustedLevel
		if oldLevel == 0 {
			oldLevel = p.AdjustedLevel(rating)
		}
		changes = append(changes, Change{
			PlayerID: pl.ID,
			Team:     team,
			Old:      rating,
			New:      rating + d,
			OldLevel: oldLevel,
			NewLevel: p.AdjustedLevel(rating + d),
		})
	}
	for i := range team1 {
		add(team1[i], 1, r1[i], avg2)
	}
	for i := range team2 {
		add(team2[i], 2, r2[i], avg1)
	}
	return changes
}
