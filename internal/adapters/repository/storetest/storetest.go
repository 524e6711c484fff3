// Package storetest holds the behavioural contract every repository.Store
// implementation must satisfy.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/rally/internal/adapters/repository"
	"github.com/okian/rally/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) repository.Store

var base = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

// Seed writes a club "c1" and players p1..pN at level 3.5.
func Seed(t *testing.T, s repository.Store, n int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.SaveClub(ctx, model.Club{ID: "c1", Name: "Court One", Timezone: "UTC", BatchSize: 3, InviteTimeout: 15 * time.Minute}))
	for i := 1; i <= n; i++ {
		require.NoError(t, s.SavePlayer(ctx, model.Player{
			ID:             fmt.Sprintf("p%d", i),
			ClubID:         "c1",
			Name:           fmt.Sprintf("Player %d", i),
			Address:        fmt.Sprintf("+1555000%04d", i),
			Gender:         model.GenderMale,
			DeclaredLevel:  3.5,
			Responsiveness: model.DefaultResponsiveness,
			Reputation:     model.DefaultReputation,
			Active:         true,
			CreatedAt:      base,
		}))
	}
}

// NewMatch builds a pending match in club c1 with the given players seated.
func NewMatch(id string, seated ...string) model.Match {
	m := model.Match{ID: id, ClubID: "c1", RequestedBy: "p1", Status: model.MatchPending, ScheduledAt: base.Add(48 * time.Hour), CreatedAt: base}
	for _, p := range seated {
		m.Seat(p)
	}
	if len(seated) > 0 {
		m.OrganizerID = seated[0]
	}
	return m
}

func claim(matchID, playerID string, batch int) model.ClaimRequest {
	exp := base.Add(15 * time.Minute)
	return model.ClaimRequest{MatchID: matchID, PlayerID: playerID, Status: model.InviteSent, Batch: batch, Score: 80, Now: base, ExpiresAt: &exp}
}

// Run executes the whole contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Claim", func(t *testing.T) { testClaim(t, newStore(t)) })
	t.Run("ConcurrentClaim", func(t *testing.T) { testConcurrentClaim(t, newStore(t)) })
	t.Run("Accept", func(t *testing.T) { testAccept(t, newStore(t)) })
	t.Run("ConcurrentAccept", func(t *testing.T) { testConcurrentAccept(t, newStore(t)) })
	t.Run("Respond", func(t *testing.T) { testRespond(t, newStore(t)) })
	t.Run("Remove", func(t *testing.T) { testRemove(t, newStore(t)) })
	t.Run("Refill", func(t *testing.T) { testRefill(t, newStore(t)) })
	t.Run("PendingSMS", func(t *testing.T) { testPendingSMS(t, newStore(t)) })
	t.Run("CancelAndComplete", func(t *testing.T) { testCancelAndComplete(t, newStore(t)) })
	t.Run("RatingTx", func(t *testing.T) { testRatingTx(t, newStore(t)) })
	t.Run("ConcurrentRatingTx", func(t *testing.T) { testConcurrentRatingTx(t, newStore(t)) })
	t.Run("Directory", func(t *testing.T) { testDirectory(t, newStore(t)) })
}

func testClaim(t *testing.T, s repository.Store) {
	ctx := context.Background()
	Seed(t, s, 6)
	require.NoError(t, s.CreateMatch(ctx, NewMatch("m1", "p1")))

	out, inv, err := s.ClaimInvitation(ctx, claim("m1", "p2", 1))
	require.NoError(t, err)
	assert.Equal(t, model.ClaimSuccess, out)
	assert.Equal(t, model.InviteSent, inv.Status)
	assert.NotEmpty(t, inv.ID)
	require.NotNil(t, inv.SentAt)

	out, _, err = s.ClaimInvitation(ctx, claim("m1", "p2", 2))
	require.NoError(t, err)
	assert.Equal(t, model.ClaimAlreadyInvited, out)

	out, _, err = s.ClaimInvitation(ctx, claim("m1", "p1", 1))
	require.NoError(t, err)
	assert.Equal(t, model.ClaimAlreadyInMatch, out)

	require.NoError(t, s.CreateMatch(ctx, NewMatch("full", "p1", "p2", "p3", "p4")))
	out, _, err = s.ClaimInvitation(ctx, claim("full", "p5", 1))
	require.NoError(t, err)
	assert.Equal(t, model.ClaimMatchFull, out)

	_, _, err = s.ClaimInvitation(ctx, claim("missing", "p5", 1))
	assert.ErrorIs(t, err, repository.ErrNotFound)

	next, err := s.NextBatch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 2, next)
}

func testConcurrentClaim(t *testing.T, s repository.Store) {
	ctx := context.Background()
	Seed(t, s, 2)
	require.NoError(t, s.CreateMatch(ctx, NewMatch("m1", "p1")))

	var wg sync.WaitGroup
	results := make(chan model.ClaimOutcome, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, _, err := s.ClaimInvitation(ctx, claim("m1", "p2", 1))
			if assert.NoError(t, err) {
				results <- out
			}
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	for out := range results {
		if out == model.ClaimSuccess {
			success++
		}
	}
	assert.Equal(t, 1, success)
	invs, err := s.ListInvitations(ctx, repository.InvitationFilter{MatchID: "m1"})
	require.NoError(t, err)
	assert.Len(t, invs, 1)
}

func testAccept(t *testing.T, s repository.Store) {
	ctx := context.Background()
	Seed(t, s, 6)
	m := NewMatch("m1")
	require.NoError(t, s.CreateMatch(ctx, m))
	for _, p := range []string{"p1", "p2", "p3", "p4", "p5"} {
		out, _, err := s.ClaimInvitation(ctx, claim("m1", p, 1))
		require.NoError(t, err)
		require.Equal(t, model.ClaimSuccess, out)
	}

	res, err := s.AcceptInvitation(ctx, "m1", "p1", base)
	require.NoError(t, err)
	assert.Equal(t, model.AcceptSeated, res.Result)
	assert.Equal(t, 1, res.Team)
	assert.True(t, res.BecameOrganizer)

	res, err = s.AcceptInvitation(ctx, "m1", "p1", base)
	require.NoError(t, err)
	assert.Equal(t, model.AcceptDuplicate, res.Result)

	for i, p := range []string{"p2", "p3"} {
		res, err = s.AcceptInvitation(ctx, "m1", p, base)
		require.NoError(t, err)
		assert.Equal(t, model.AcceptSeated, res.Result)
		assert.False(t, res.BecameOrganizer)
		assert.Equal(t, []int{1, 2}[i], res.Team)
	}
	_, _, err = s.RespondInvitation(ctx, "m1", "p5", model.InviteMaybe, base)
	require.NoError(t, err)

	res, err = s.AcceptInvitation(ctx, "m1", "p4", base)
	require.NoError(t, err)
	assert.Equal(t, model.AcceptSeated, res.Result)
	assert.True(t, res.Confirmed)
	assert.Equal(t, model.MatchConfirmed, res.Match.Status)
	assert.Empty(t, res.Expired)

	res, err = s.AcceptInvitation(ctx, "m1", "p5", base)
	require.NoError(t, err)
	assert.Equal(t, model.AcceptMatchFull, res.Result)

	res, err = s.AcceptInvitation(ctx, "m1", "p6", base)
	require.NoError(t, err)
	assert.Equal(t, model.AcceptNoInvite, res.Result)

	got, err := s.GetMatch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, got.Team1)
	assert.Equal(t, []string{"p3", "p4"}, got.Team2)
	assert.Equal(t, "p1", got.OrganizerID)
	require.NotNil(t, got.ConfirmedAt)
}

func testConcurrentAccept(t *testing.T, s repository.Store) {
	ctx := context.Background()
	Seed(t, s, 9)
	require.NoError(t, s.CreateMatch(ctx, NewMatch("m1", "p1", "p2", "p3")))
	contenders := []string{"p4", "p5", "p6", "p7", "p8", "p9"}
	for _, p := range contenders {
		out, _, err := s.ClaimInvitation(ctx, claim("m1", p, 1))
		require.NoError(t, err)
		require.Equal(t, model.ClaimSuccess, out)
	}

	var wg sync.WaitGroup
	results := make(chan model.AcceptOutcome, len(contenders))
	for _, p := range contenders {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			res, err := s.AcceptInvitation(ctx, "m1", p, base)
			if assert.NoError(t, err) {
				results <- res
			}
		}(p)
	}
	wg.Wait()
	close(results)

	seated, confirmed := 0, 0
	for res := range results {
		if res.Result == model.AcceptSeated {
			seated++
		}
		if res.Confirmed {
			confirmed++
		}
	}
	assert.Equal(t, 1, seated)
	assert.Equal(t, 1, confirmed)

	got, err := s.GetMatch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, model.MatchSeats, got.ParticipantCount())
	assert.Equal(t, model.MatchConfirmed, got.Status)
}

func testRespond(t *testing.T, s repository.Store) {
	ctx := context.Background()
	Seed(t, s, 3)
	require.NoError(t, s.CreateMatch(ctx, NewMatch("m1", "p1")))
	_, _, err := s.ClaimInvitation(ctx, claim("m1", "p2", 1))
	require.NoError(t, err)

	inv, changed, err := s.RespondInvitation(ctx, "m1", "p2", model.InviteMaybe, base)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.InviteMaybe, inv.Status)

	_, changed, err = s.RespondInvitation(ctx, "m1", "p2", model.InviteMaybe, base)
	require.NoError(t, err)
	assert.False(t, changed)

	inv, changed, err = s.RespondInvitation(ctx, "m1", "p2", model.InviteDeclined, base)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.InviteDeclined, inv.Status)

	_, changed, err = s.RespondInvitation(ctx, "m1", "p2", model.InviteMaybe, base)
	require.NoError(t, err)
	assert.False(t, changed)

	res, err := s.AcceptInvitation(ctx, "m1", "p2", base)
	require.NoError(t, err)
	assert.Equal(t, model.AcceptClosed, res.Result)

	_, _, err = s.RespondInvitation(ctx, "m1", "p3", model.InviteDeclined, base)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, _, err = s.RespondInvitation(ctx, "m1", "p2", model.InviteAccepted, base)
	assert.ErrorIs(t, err, repository.ErrInvalidInput)
}

func testRemove(t *testing.T, s repository.Store) {
	ctx := context.Background()
	Seed(t, s, 4)
	require.NoError(t, s.CreateMatch(ctx, NewMatch("m1", "p1", "p2", "p3")))
	_, _, err := s.ClaimInvitation(ctx, claim("m1", "p4", 1))
	require.NoError(t, err)
	res, err := s.AcceptInvitation(ctx, "m1", "p4", base)
	require.NoError(t, err)
	require.True(t, res.Confirmed)

	m, err := s.RemoveParticipant(ctx, "m1", "p4", base)
	require.NoError(t, err)
	assert.Equal(t, model.MatchPending, m.Status)
	assert.Nil(t, m.ConfirmedAt)
	assert.Equal(t, 3, m.ParticipantCount())

	invs, err := s.ListInvitations(ctx, repository.InvitationFilter{MatchID: "m1", PlayerID: "p4"})
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.Equal(t, model.InviteRemoved, invs[0].Status)

	m, err = s.RemoveParticipant(ctx, "m1", "p1", base)
	require.NoError(t, err)
	assert.Empty(t, m.OrganizerID)

	_, err = s.RemoveParticipant(ctx, "m1", "p4", base)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func testRefill(t *testing.T, s repository.Store) {
	ctx := context.Background()
	Seed(t, s, 4)
	require.NoError(t, s.CreateMatch(ctx, NewMatch("m1", "p1")))
	var ids []string
	for _, p := range []string{"p2", "p3", "p4"} {
		_, inv, err := s.ClaimInvitation(ctx, claim("m1", p, 1))
		require.NoError(t, err)
		ids = append(ids, inv.ID)
	}
	_, _, err := s.RespondInvitation(ctx, "m1", "p4", model.InviteMaybe, base)
	require.NoError(t, err)

	cutoff := base.Add(time.Hour)
	stale, err := s.ListInvitations(ctx, repository.InvitationFilter{
		Statuses:      []model.InvitationStatus{model.InviteSent},
		ExpiresBefore: &cutoff,
		NotRefilled:   true,
	})
	require.NoError(t, err)
	assert.Len(t, stale, 2)

	done, err := s.MarkRefilled(ctx, ids, cutoff)
	require.NoError(t, err)
	require.Len(t, done, 2)
	for _, inv := range done {
		assert.Equal(t, model.InviteExpired, inv.Status)
		assert.NotNil(t, inv.RefilledAt)
	}

	again, err := s.MarkRefilled(ctx, ids, cutoff)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func testPendingSMS(t *testing.T, s repository.Store) {
	ctx := context.Background()
	Seed(t, s, 6)
	require.NoError(t, s.CreateMatch(ctx, NewMatch("m1", "p1", "p2", "p3")))
	req := claim("m1", "p4", 1)
	req.Status = model.InvitePendingSMS
	req.ExpiresAt = nil
	_, held, err := s.ClaimInvitation(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, held.SentAt)
	req.PlayerID = "p5"
	_, held2, err := s.ClaimInvitation(ctx, req)
	require.NoError(t, err)

	later := base.Add(8 * time.Hour)
	ok, err := s.FlushPendingSMS(ctx, held.ID, later, later.Add(15*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.FlushPendingSMS(ctx, held.ID, later, later.Add(15*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	res, err := s.AcceptInvitation(ctx, "m1", "p4", later)
	require.NoError(t, err)
	require.True(t, res.Confirmed)
	require.Len(t, res.Expired, 1)
	assert.Equal(t, "p5", res.Expired[0].PlayerID)

	ok, err = s.FlushPendingSMS(ctx, held2.ID, later, later.Add(15*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
	invs, err := s.ListInvitations(ctx, repository.InvitationFilter{MatchID: "m1", PlayerID: "p5"})
	require.NoError(t, err)
	assert.Equal(t, model.InviteExpired, invs[0].Status)
}

func testCancelAndComplete(t *testing.T, s repository.Store) {
	ctx := context.Background()
	Seed(t, s, 5)
	require.NoError(t, s.CreateMatch(ctx, NewMatch("m1", "p1")))
	_, _, err := s.ClaimInvitation(ctx, claim("m1", "p2", 1))
	require.NoError(t, err)

	err = s.CompleteMatch(ctx, "m1", model.WinnerTeam1, base)
	assert.ErrorIs(t, err, repository.ErrConflict)

	m, err := s.CancelMatch(ctx, "m1", base)
	require.NoError(t, err)
	assert.Equal(t, model.MatchCancelled, m.Status)
	invs, err := s.ListInvitations(ctx, repository.InvitationFilter{MatchID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, model.InviteExpired, invs[0].Status)
	_, err = s.CancelMatch(ctx, "m1", base)
	assert.ErrorIs(t, err, repository.ErrConflict)

	require.NoError(t, s.CreateMatch(ctx, model.Match{
		ID: "m2", ClubID: "c1", Status: model.MatchConfirmed,
		Team1: []string{"p1", "p2"}, Team2: []string{"p3", "p4"}, CreatedAt: base,
	}))
	require.NoError(t, s.CompleteMatch(ctx, "m2", model.WinnerTeam2, base))
	require.NoError(t, s.CompleteMatch(ctx, "m2", model.WinnerTeam1, base))
	got, err := s.GetMatch(ctx, "m2")
	require.NoError(t, err)
	assert.Equal(t, model.MatchCompleted, got.Status)
	assert.Equal(t, model.WinnerTeam1, got.Winner)

	list, err := s.ListMatches(ctx, repository.MatchFilter{Statuses: []model.MatchStatus{model.MatchCompleted}})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "m2", list[0].ID)
}

func testRatingTx(t *testing.T, s repository.Store) {
	ctx := context.Background()
	Seed(t, s, 2)
	boom := errors.New("boom")

	err := s.WithRatingTx(ctx, func(tx repository.RatingTx) error {
		p, err := tx.GetPlayer(ctx, "p1")
		if err != nil {
			return err
		}
		p.Rating = 1600
		if err := tx.SaveRating(ctx, p); err != nil {
			return err
		}
		if err := tx.InsertHistory(ctx, model.RatingHistory{MatchID: "m1", PlayerID: "p1", OldRating: 1500, NewRating: 1600, CreatedAt: base}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	p, err := s.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, p.Rating)
	hist, err := s.RatingHistory(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, hist)

	err = s.WithRatingTx(ctx, func(tx repository.RatingTx) error {
		p, err := tx.GetPlayer(ctx, "p1")
		if err != nil {
			return err
		}
		p.Rating = 1516
		p.AdjustedLevel = 3.54
		p.RatingConfidence = 1
		p.MatchesPlayed = 1
		if err := tx.SaveRating(ctx, p); err != nil {
			return err
		}
		return tx.InsertHistory(ctx, model.RatingHistory{MatchID: "m1", PlayerID: "p1", OldRating: 1500, NewRating: 1516, OldAdjustedLevel: 3.5, NewAdjustedLevel: 3.54, CreatedAt: base})
	})
	require.NoError(t, err)
	p, err = s.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1516.0, p.Rating)
	assert.Equal(t, 1, p.MatchesPlayed)
	assert.Equal(t, "Player 1", p.Name)

	err = s.WithRatingTx(ctx, func(tx repository.RatingTx) error {
		rows, err := tx.HistoryForMatch(ctx, "m1")
		if err != nil {
			return err
		}
		if len(rows) != 1 {
			return fmt.Errorf("want 1 history row, got %d", len(rows))
		}
		if err := tx.DeleteHistoryForMatch(ctx, "m1"); err != nil {
			return err
		}
		rows, err = tx.HistoryForMatch(ctx, "m1")
		if err != nil {
			return err
		}
		if len(rows) != 0 {
			return fmt.Errorf("want 0 history rows after delete, got %d", len(rows))
		}
		return nil
	})
	require.NoError(t, err)
	hist, err = s.RatingHistory(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, hist)

	err = s.WithRatingTx(ctx, func(tx repository.RatingTx) error {
		_, err := tx.GetPlayer(ctx, "ghost")
		return err
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

// testConcurrentRatingTx runs read-modify-write updates of one shared player
// from several matches at once. Every delta must survive.
func testConcurrentRatingTx(t *testing.T, s repository.Store) {
	ctx := context.Background()
	Seed(t, s, 1)
	require.NoError(t, s.CreateMatch(ctx, NewMatch("m1", "p1")))

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.WithRatingTx(ctx, func(tx repository.RatingTx) error {
				if err := tx.LockMatch(ctx, fmt.Sprintf("m%d", i+1)); err != nil {
					return err
				}
				p, err := tx.GetPlayer(ctx, "p1")
				if err != nil {
					return err
				}
				p.Rating += 10
				p.MatchesPlayed++
				return tx.SaveRating(ctx, p)
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	p, err := s.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, float64(10*n), p.Rating)
	assert.Equal(t, n, p.MatchesPlayed)
}

func testDirectory(t *testing.T, s repository.Store) {
	ctx := context.Background()
	Seed(t, s, 4)
	require.NoError(t, s.SaveGroup(ctx, model.Group{ID: "g1", ClubID: "c1", Name: "Tuesday", MemberIDs: []string{"p2", "p3"}}))

	p3, err := s.GetPlayer(ctx, "p3")
	require.NoError(t, err)
	p3.Active = false
	require.NoError(t, s.SavePlayer(ctx, p3))

	all, err := s.ListPlayers(ctx, repository.PlayerFilter{ClubID: "c1"})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	active, err := s.ListPlayers(ctx, repository.PlayerFilter{ClubID: "c1", ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 3)

	members, err := s.ListPlayers(ctx, repository.PlayerFilter{GroupID: "g1"})
	require.NoError(t, err)
	require.Len(t, members, 2)

	_, err = s.ListPlayers(ctx, repository.PlayerFilter{GroupID: "nope"})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	found, err := s.FindPlayerByAddress(ctx, "+15550000002")
	require.NoError(t, err)
	assert.Equal(t, "p2", found.ID)
	_, err = s.FindPlayerByAddress(ctx, "+19999999999")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, s.UpdateBehavior(ctx, "p2", 90, 60))
	found, err = s.GetPlayer(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, 90, found.Responsiveness)
	assert.Equal(t, 60, found.Reputation)

	club, err := s.GetClub(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, club.InviteTimeout)
	g, err := s.GetGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p3"}, g.MemberIDs)
}
