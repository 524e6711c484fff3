package rating_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okian/rally/internal/adapters/repository"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/internal/domain/rating"
	"github.com/okian/rally/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func seedPlayers(store *repository.MemoryStore, confidence int) {
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		_ = store.SavePlayer(ctx, model.Player{
			ID:               fmt.Sprintf("p%d", i),
			ClubID:           "c1",
			DeclaredLevel:    3.5,
			RatingConfidence: confidence,
			Active:           true,
		})
	}
}

func player(store *repository.MemoryStore, id string) model.Player {
	p, err := store.GetPlayer(context.Background(), id)
	So(err, ShouldBeNil)
	return p
}

func TestParams(t *testing.T) {
	Convey("Given the default parameters", t, func() {
		p := rating.DefaultParams()

		Convey("A declared 3.5 seeds at 1500 and maps back", func() {
			So(p.Seed(3.5), ShouldEqual, 1500)
			So(p.AdjustedLevel(1500), ShouldEqual, 3.5)
			So(p.AdjustedLevel(1532), ShouldEqual, 3.58)
		})

		Convey("Adjusted levels are clamped", func() {
			So(p.AdjustedLevel(9000), ShouldEqual, 7.0)
			So(p.AdjustedLevel(0), ShouldEqual, 1.0)
		})

		Convey("K drops once the player leaves the provisional band", func() {
			So(p.K(0), ShouldEqual, 64)
			So(p.K(4), ShouldEqual, 64)
			So(p.K(5), ShouldEqual, 32)
		})

		Convey("Expected scores of equal ratings are even", func() {
			So(rating.ExpectedScore(1500, 1500), ShouldEqual, 0.5)
			So(rating.ExpectedScore(1700, 1500), ShouldBeGreaterThan, 0.5)
		})

		Convey("Actual scores follow the winner", func() {
			So(rating.ActualScore(1, model.WinnerTeam1), ShouldEqual, 1.0)
			So(rating.ActualScore(2, model.WinnerTeam1), ShouldEqual, 0.0)
			So(rating.ActualScore(2, model.WinnerDraw), ShouldEqual, 0.5)
		})

		Convey("Rated players keep their rating", func() {
			So(p.CurrentRating(model.Player{Rating: 1620, DeclaredLevel: 2.0}), ShouldEqual, 1620)
			So(p.CurrentRating(model.Player{DeclaredLevel: 4.0}), ShouldEqual, 1700)
		})
	})
}

func TestEngineUpdate(t *testing.T) {
	Convey("Given four unrated 3.5 players", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		seedPlayers(store, 0)
		now := time.Date(2026, 3, 4, 20, 0, 0, 0, time.UTC)
		engine := rating.NewEngine(store, rating.WithClock(func() time.Time { return now }))
		team1 := [2]string{"p1", "p2"}
		team2 := [2]string{"p3", "p4"}

		Convey("When team 1 wins", func() {
			changes, err := engine.Update(ctx, "m1", team1, team2, model.WinnerTeam1)
			So(err, ShouldBeNil)
			So(changes, ShouldHaveLength, 4)

			Convey("Then winners gain what losers lose", func() {
				sum := 0.0
				for _, c := range changes {
					sum += c.New - c.Old
				}
				So(sum, ShouldEqual, 0)
				So(player(store, "p1").Rating, ShouldEqual, 1532)
				So(player(store, "p3").Rating, ShouldEqual, 1468)
				So(player(store, "p1").AdjustedLevel, ShouldEqual, 3.58)
				So(player(store, "p4").AdjustedLevel, ShouldEqual, 3.42)
			})

			Convey("Then counters and history advance", func() {
				p := player(store, "p2")
				So(p.RatingConfidence, ShouldEqual, 1)
				So(p.MatchesPlayed, ShouldEqual, 1)
				hist, err := store.RatingHistory(ctx, "p2")
				So(err, ShouldBeNil)
				So(hist, ShouldHaveLength, 1)
				So(hist[0].OldRating, ShouldEqual, 1500)
				So(hist[0].NewRating, ShouldEqual, 1532)
				So(hist[0].CreatedAt, ShouldEqual, now)
			})

			Convey("And the same result is reported again", func() {
				_, err := engine.Update(ctx, "m1", team1, team2, model.WinnerTeam1)
				So(err, ShouldBeNil)

				Convey("Then nothing moves", func() {
					p := player(store, "p1")
					So(p.Rating, ShouldEqual, 1532)
					So(p.RatingConfidence, ShouldEqual, 1)
					So(p.MatchesPlayed, ShouldEqual, 1)
					hist, _ := store.RatingHistory(ctx, "p1")
					So(hist, ShouldHaveLength, 1)
				})
			})

			Convey("And the result is corrected to team 2", func() {
				_, err := engine.Update(ctx, "m1", team1, team2, model.WinnerTeam2)
				So(err, ShouldBeNil)

				Convey("Then ratings match a clean team 2 win", func() {
					So(player(store, "p1").Rating, ShouldEqual, 1468)
					So(player(store, "p3").Rating, ShouldEqual, 1532)
					So(player(store, "p3").RatingConfidence, ShouldEqual, 1)
					hist, _ := store.RatingHistory(ctx, "p3")
					So(hist, ShouldHaveLength, 1)
					So(hist[0].NewRating, ShouldEqual, 1532)
				})
			})
		})

		Convey("When the match is drawn between equals", func() {
			_, err := engine.Update(ctx, "m1", team1, team2, model.WinnerDraw)
			So(err, ShouldBeNil)
			So(player(store, "p1").Rating, ShouldEqual, 1500)
			So(player(store, "p1").MatchesPlayed, ShouldEqual, 1)
		})

		Convey("When a player is unknown", func() {
			_, err := engine.Update(ctx, "m1", team1, [2]string{"p3", "ghost"}, model.WinnerTeam1)

			Convey("Then nothing is written", func() {
				So(errors.Is(err, rating.ErrUnknownPlayer), ShouldBeTrue)
				So(player(store, "p1").Rating, ShouldEqual, 0)
				So(player(store, "p1").MatchesPlayed, ShouldEqual, 0)
			})
		})

		Convey("When the input is malformed", func() {
			_, err := engine.Update(ctx, "m1", team1, team2, model.NoWinner)
			So(errors.Is(err, rating.ErrInvalidWinner), ShouldBeTrue)

			_, err = engine.Update(ctx, "m1", team1, [2]string{"p1", "p3"}, model.WinnerTeam1)
			So(errors.Is(err, rating.ErrMalformedTeams), ShouldBeTrue)

			_, err = engine.Update(ctx, "m1", team1, [2]string{"", "p3"}, model.WinnerTeam1)
			So(errors.Is(err, rating.ErrMalformedTeams), ShouldBeTrue)
		})
	})

	Convey("Given established players", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		seedPlayers(store, 5)
		engine := rating.NewEngine(store)

		Convey("The stable K-factor halves the movement", func() {
			_, err := engine.Update(ctx, "m1", [2]string{"p1", "p2"}, [2]string{"p3", "p4"}, model.WinnerTeam2)
			So(err, ShouldBeNil)
			So(player(store, "p1").Rating, ShouldEqual, 1484)
			So(player(store, "p4").Rating, ShouldEqual, 1516)
		})
	})
}
