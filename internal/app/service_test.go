package service_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/rally/internal/adapters/convo"
	"github.com/okian/rally/internal/adapters/repository"
	service "github.com/okian/rally/internal/app"
	"github.com/okian/rally/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCreateMatch(t *testing.T) {
	Convey("Given a club of eight players", t, func() {
		h := newHarness(8)

		Convey("When the requester asks for a match they play in", func() {
			m, res := h.create(service.MatchRequest{})

			Convey("Then they are seated as organizer", func() {
				So(m.Team1, ShouldResemble, []string{"p1"})
				So(m.OrganizerID, ShouldEqual, "p1")
				So(m.Status, ShouldEqual, model.MatchPending)
			})

			Convey("Then a first wave of the club batch size goes out", func() {
				So(res.Batch, ShouldEqual, 1)
				So(res.Claimed, ShouldEqual, 4)
				So(res.Notified, ShouldEqual, 4)
				So(res.Deadpool, ShouldBeFalse)

				invs := h.invitations(m.ID)
				So(invs, ShouldHaveLength, 4)
				for _, id := range []string{"p2", "p3", "p4", "p5"} {
					So(invs[id].Status, ShouldEqual, model.InviteSent)
					So(invs[id].Batch, ShouldEqual, 1)
					So(*invs[id].ExpiresAt, ShouldEqual, start.Add(15*time.Minute))
					So(h.received(id, "Reply YES, NO or MAYBE"), ShouldEqual, 1)
				}
				So(h.inbox("p6"), ShouldBeEmpty)
			})
		})

		Convey("Invalid requests are rejected before anything is stored", func() {
			_, _, err := h.svc.CreateMatch(h.ctx, service.MatchRequest{ClubID: "c1", RequestedBy: "p1"})
			So(errors.Is(err, service.ErrInvalidRequest), ShouldBeTrue)

			_, _, err = h.svc.CreateMatch(h.ctx, service.MatchRequest{
				ClubID: "c1", RequestedBy: "p1", ScheduledAt: start.Add(time.Hour),
				LevelMin: level(4), LevelMax: level(3),
			})
			So(errors.Is(err, service.ErrInvalidRequest), ShouldBeTrue)

			_, _, err = h.svc.CreateMatch(h.ctx, service.MatchRequest{
				ClubID: "c1", RequestedBy: "ghost", ScheduledAt: start.Add(time.Hour),
			})
			So(errors.Is(err, service.ErrInvalidRequest), ShouldBeTrue)

			matches, err := h.store.ListMatches(h.ctx, repository.MatchFilter{})
			So(err, ShouldBeNil)
			So(matches, ShouldBeEmpty)
		})
	})

	Convey("Given an invitee holding state from an older conversation", t, func() {
		states := convo.NewMemoryStore()
		h := newHarness(6, service.WithConvoStore(states))
		So(states.Set(h.ctx, addr("p3"), convo.State{Name: convo.AwaitingBroaden, MatchID: "old"}), ShouldBeNil)
		So(states.Set(h.ctx, addr("p6"), convo.State{Name: convo.AwaitingBroaden, MatchID: "old"}), ShouldBeNil)

		h.create(service.MatchRequest{})

		Convey("Then sending the invitation clears it", func() {
			_, err := states.Get(h.ctx, addr("p3"))
			So(errors.Is(err, convo.ErrNoState), ShouldBeTrue)
		})

		Convey("Then players who were not invited keep theirs", func() {
			st, err := states.Get(h.ctx, addr("p6"))
			So(err, ShouldBeNil)
			So(st.MatchID, ShouldEqual, "old")
		})
	})
}

func TestHappyPath(t *testing.T) {
	Convey("Given a match with four invitations out", t, func() {
		h := newHarness(8)
		m, _ := h.create(service.MatchRequest{})

		Convey("When three invitees accept around a maybe", func() {
			out := h.mustReply("p2", model.AcceptIntent{})
			So(out.Result, ShouldEqual, string(model.AcceptSeated))
			So(out.MatchID, ShouldEqual, m.ID)

			out = h.mustReply("p3", model.MaybeIntent{})
			So(out.Result, ShouldEqual, string(model.InviteMaybe))

			h.mustReply("p4", model.AcceptIntent{MatchID: m.ID})
			So(h.received("p3", "P4 just joined"), ShouldEqual, 1)

			out = h.mustReply("p3", model.AcceptIntent{})
			So(out.Result, ShouldEqual, string(model.AcceptSeated))

			Convey("Then the match is confirmed with four seats", func() {
				got := h.match(m.ID)
				So(got.Status, ShouldEqual, model.MatchConfirmed)
				So(got.ConfirmedAt, ShouldNotBeNil)
				So(got.Team1, ShouldResemble, []string{"p1", "p2"})
				So(got.Team2, ShouldResemble, []string{"p4", "p3"})
			})

			Convey("Then the organizer gets the booking and the rest the roster", func() {
				So(h.received("p1", "Please book a court"), ShouldEqual, 1)
				for _, id := range []string{"p2", "p3", "p4"} {
					So(h.received(id, "Match confirmed for"), ShouldEqual, 1)
				}
			})

			Convey("Then the unanswered invitation is expired", func() {
				So(h.invitations(m.ID)["p5"].Status, ShouldEqual, model.InviteExpired)
			})

			Convey("And a late yes gets a match-full answer", func() {
				out := h.mustReply("p5", model.AcceptIntent{})
				So(out.Result, ShouldEqual, string(model.AcceptClosed))
				So(h.received("p5", "already full"), ShouldEqual, 1)
				So(h.match(m.ID).ParticipantCount(), ShouldEqual, model.MatchSeats)
			})

			Convey("And a player without any invitation is told so", func() {
				out := h.mustReply("p8", model.AcceptIntent{})
				So(out.Result, ShouldEqual, string(model.AcceptNoInvite))
				So(h.received("p8", "couldn't find an open invitation"), ShouldEqual, 1)
			})

			Convey("And the organizer can report the score by text", func() {
				out := h.mustReply("p1", model.ResultIntent{Winner: model.WinnerTeam1})
				So(out.Result, ShouldEqual, "recorded")
				So(out.MatchID, ShouldEqual, m.ID)

				got := h.match(m.ID)
				So(got.Status, ShouldEqual, model.MatchCompleted)
				So(got.Winner, ShouldEqual, model.WinnerTeam1)
				So(h.player("p1").Rating, ShouldEqual, 1532.0)
				So(h.player("p2").Rating, ShouldEqual, 1532.0)
				So(h.player("p3").Rating, ShouldEqual, 1468.0)
				So(h.received("p1", "Result recorded: P1 & P2 won"), ShouldEqual, 1)

				Convey("And a corrected score replaces the first one", func() {
					_, err := h.svc.ReportResult(h.ctx, m.ID, model.WinnerTeam2)
					So(err, ShouldBeNil)
					So(h.player("p1").Rating, ShouldEqual, 1468.0)
					So(h.player("p4").Rating, ShouldEqual, 1532.0)
					So(h.player("p4").MatchesPlayed, ShouldEqual, 1)
					So(h.match(m.ID).Winner, ShouldEqual, model.WinnerTeam2)
				})
			})

			Convey("And a non-participant cannot report a score", func() {
				out := h.mustReply("p7", model.ResultIntent{MatchID: m.ID, Winner: model.WinnerTeam1})
				So(out.Result, ShouldEqual, "not_participant")
				So(h.match(m.ID).Status, ShouldEqual, model.MatchConfirmed)
			})
		})

		Convey("When a maybe holder waits while the last seat fills", func() {
			h.mustReply("p2", model.AcceptIntent{})
			h.mustReply("p5", model.MaybeIntent{})
			h.mustReply("p3", model.AcceptIntent{})
			So(h.received("p5", "P3 just joined"), ShouldEqual, 1)

			out := h.mustReply("p4", model.AcceptIntent{})
			So(out.Result, ShouldEqual, string(model.AcceptSeated))

			Convey("Then they are told the match filled", func() {
				So(h.match(m.ID).Status, ShouldEqual, model.MatchConfirmed)
				So(h.received("p5", "P4 took the last spot"), ShouldEqual, 1)
				So(h.received("p5", "P4 just joined"), ShouldEqual, 0)
				So(h.received("p4", "took the last spot"), ShouldEqual, 0)
			})
		})

		Convey("When an invitee declines", func() {
			out := h.mustReply("p2", model.DeclineIntent{})

			Convey("Then exactly one replacement goes out in the next batch", func() {
				So(out.Result, ShouldEqual, string(model.InviteDeclined))
				invs := h.invitations(m.ID)
				So(invs["p2"].Status, ShouldEqual, model.InviteDeclined)
				So(invs, ShouldHaveLength, 5)
				So(invs["p6"].Status, ShouldEqual, model.InviteSent)
				So(invs["p6"].Batch, ShouldEqual, 2)
				So(h.received("p2", "thanks for letting us know"), ShouldEqual, 1)
			})

			Convey("Then declining again changes nothing", func() {
				out := h.mustReply("p2", model.DeclineIntent{})
				So(out.Result, ShouldEqual, "unchanged")
				So(h.invitations(m.ID), ShouldHaveLength, 5)
			})
		})
	})
}

func TestReplyDedupe(t *testing.T) {
	Convey("Given a match with invitations out", t, func() {
		h := newHarness(8)
		m, _ := h.create(service.MatchRequest{})

		Convey("A redelivered message is processed once", func() {
			out, err := h.replyWithID("sms-1", "p2", model.DeclineIntent{})
			So(err, ShouldBeNil)
			So(out.Duplicate, ShouldBeFalse)

			out, err = h.replyWithID("sms-1", "p2", model.DeclineIntent{})
			So(err, ShouldBeNil)
			So(out.Duplicate, ShouldBeTrue)
			So(h.invitations(m.ID), ShouldHaveLength, 5)
			So(h.received("p2", "thanks for letting us know"), ShouldEqual, 1)
		})

		Convey("A failed reply can be retried with the same id", func() {
			_, err := h.replyWithID("sms-2", "p1", model.ResultIntent{MatchID: m.ID, Winner: model.WinnerTeam1})
			So(errors.Is(err, service.ErrMatchNotScorable), ShouldBeTrue)
			So(h.received("p1", "something went wrong"), ShouldEqual, 1)

			out, err := h.replyWithID("sms-2", "p1", model.ResultIntent{MatchID: m.ID, Winner: model.WinnerTeam1})
			So(errors.Is(err, service.ErrMatchNotScorable), ShouldBeTrue)
			So(out.Duplicate, ShouldBeFalse)
		})

		Convey("Unknown senders and empty intents are errors", func() {
			_, err := h.svc.HandleReply(h.ctx, model.Reply{MessageID: "x", From: "+19999", Intent: model.AcceptIntent{}})
			So(errors.Is(err, service.ErrUnknownSender), ShouldBeTrue)

			_, err = h.svc.HandleReply(h.ctx, model.Reply{MessageID: "y", From: addr("p2")})
			So(errors.Is(err, service.ErrUnsupportedReply), ShouldBeTrue)
		})
	})
}

func TestQuietHoursAndCatchup(t *testing.T) {
	Convey("Given a club in quiet hours", t, func() {
		h := newHarness(8)
		h.setQuietHours("22:00", "08:00")
		h.clock.t = time.Date(2026, 6, 10, 23, 0, 0, 0, time.UTC)

		m, res := h.create(service.MatchRequest{})

		Convey("Then invitations are held instead of sent", func() {
			So(res.Claimed, ShouldEqual, 4)
			So(res.Deferred, ShouldEqual, 4)
			So(res.Notified, ShouldEqual, 0)
			inv := h.invitations(m.ID)["p2"]
			So(inv.Status, ShouldEqual, model.InvitePendingSMS)
			So(inv.ExpiresAt, ShouldBeNil)
			So(h.inbox("p2"), ShouldBeEmpty)
		})

		Convey("Then the catch-up sweep waits for quiet hours to end", func() {
			h.clock.Advance(30 * time.Minute)
			report, err := h.svc.RunCatchupSweep(h.ctx)
			So(err, ShouldBeNil)
			So(report.Skipped, ShouldEqual, 4)
			So(report.Flushed, ShouldEqual, 0)
			So(h.inbox("p2"), ShouldBeEmpty)
		})

		Convey("When the morning sweep runs", func() {
			h.clock.t = time.Date(2026, 6, 11, 8, 30, 0, 0, time.UTC)
			report, err := h.svc.RunCatchupSweep(h.ctx)
			So(err, ShouldBeNil)

			Convey("Then held invitations are sent with a fresh expiry", func() {
				So(report.Flushed, ShouldEqual, 4)
				So(report.Matches, ShouldEqual, 0)
				inv := h.invitations(m.ID)["p2"]
				So(inv.Status, ShouldEqual, model.InviteSent)
				So(*inv.ExpiresAt, ShouldEqual, h.clock.Now().Add(15*time.Minute))
				So(h.received("p2", "Reply YES, NO or MAYBE"), ShouldEqual, 1)
			})

			Convey("Then running it again sends nothing", func() {
				again, err := h.svc.RunCatchupSweep(h.ctx)
				So(err, ShouldBeNil)
				So(again.Flushed, ShouldEqual, 0)
				So(h.received("p2", "Reply YES, NO or MAYBE"), ShouldEqual, 1)
			})
		})

		Convey("When the match fills before the flush", func() {
			h.mustReply("p2", model.AcceptIntent{})
			h.mustReply("p3", model.AcceptIntent{})
			h.mustReply("p4", model.AcceptIntent{})
			So(h.match(m.ID).Status, ShouldEqual, model.MatchConfirmed)

			h.clock.t = time.Date(2026, 6, 11, 8, 30, 0, 0, time.UTC)
			report, err := h.svc.RunCatchupSweep(h.ctx)
			So(err, ShouldBeNil)

			Convey("Then the leftover held invitation is never sent", func() {
				So(report.Flushed, ShouldEqual, 0)
				So(h.invitations(m.ID)["p5"].Status, ShouldEqual, model.InviteExpired)
				So(h.inbox("p5"), ShouldBeEmpty)
			})
		})
	})

	Convey("Given seeking matches that never got a first wave", t, func() {
		h := newHarness(6)
		for _, m := range []model.Match{
			{ID: "fresh", ClubID: "c1", RequestedBy: "p1", ScheduledAt: start.Add(24 * time.Hour), Status: model.MatchPending, CreatedAt: start},
			{ID: "stale", ClubID: "c1", RequestedBy: "p1", ScheduledAt: start.Add(-time.Hour), Status: model.MatchPending, CreatedAt: start},
		} {
			So(h.store.CreateMatch(h.ctx, m), ShouldBeNil)
		}

		report, err := h.svc.RunCatchupSweep(h.ctx)
		So(err, ShouldBeNil)

		Convey("Then only the future one is dispatched", func() {
			So(report.Matches, ShouldEqual, 1)
			So(report.Invited, ShouldEqual, 4)
			So(h.invitations("fresh"), ShouldHaveLength, 4)
			So(h.invitations("stale"), ShouldBeEmpty)
		})
	})
}

func TestRefillSweep(t *testing.T) {
	Convey("Given a match in a club of seven with one acceptance", t, func() {
		h := newHarness(7)
		m, _ := h.create(service.MatchRequest{})
		h.mustReply("p2", model.AcceptIntent{})

		Convey("Nothing happens before invitations expire", func() {
			report, err := h.svc.RunRefillSweep(h.ctx)
			So(err, ShouldBeNil)
			So(report.Refilled, ShouldEqual, 0)
		})

		Convey("When the remaining invitations expire", func() {
			h.clock.Advance(20 * time.Minute)
			report, err := h.svc.RunRefillSweep(h.ctx)
			So(err, ShouldBeNil)

			Convey("Then each stale invitation triggers one replacement", func() {
				So(report.Matches, ShouldEqual, 1)
				So(report.Refilled, ShouldEqual, 3)
				So(report.Invited, ShouldEqual, 2)
				So(report.Deadpools, ShouldEqual, 0)

				invs := h.invitations(m.ID)
				for _, id := range []string{"p3", "p4", "p5"} {
					So(invs[id].Status, ShouldEqual, model.InviteExpired)
					So(invs[id].RefilledAt, ShouldNotBeNil)
				}
				So(invs["p6"].Batch, ShouldEqual, 2)
				So(invs["p7"].Batch, ShouldEqual, 2)
			})

			Convey("Then a second run at the same instant does nothing", func() {
				again, err := h.svc.RunRefillSweep(h.ctx)
				So(err, ShouldBeNil)
				So(again.Refilled, ShouldEqual, 0)
				So(again.Invited, ShouldEqual, 0)
			})

			Convey("Then a late yes on an expired invitation is turned away", func() {
				out := h.mustReply("p3", model.AcceptIntent{})
				So(out.Result, ShouldEqual, string(model.AcceptClosed))
				So(h.received("p3", "no longer open"), ShouldEqual, 1)
			})

			Convey("When the replacements expire too", func() {
				h.clock.Advance(20 * time.Minute)
				report, err := h.svc.RunRefillSweep(h.ctx)
				So(err, ShouldBeNil)

				Convey("Then the pool is exhausted and the organizer is warned", func() {
					So(report.Refilled, ShouldEqual, 2)
					So(report.Invited, ShouldEqual, 0)
					So(report.Deadpools, ShouldEqual, 1)
					So(h.received("p1", "running out of players"), ShouldEqual, 1)
				})

				Convey("Then the sweep terminates", func() {
					h.clock.Advance(time.Hour)
					again, err := h.svc.RunRefillSweep(h.ctx)
					So(err, ShouldBeNil)
					So(again.Refilled, ShouldEqual, 0)
					So(h.received("p1", "running out of players"), ShouldEqual, 1)
				})
			})
		})

		Convey("Quiet hours postpone the refill", func() {
			h.setQuietHours("12:10", "13:00")
			h.clock.Advance(20 * time.Minute)
			report, err := h.svc.RunRefillSweep(h.ctx)
			So(err, ShouldBeNil)
			So(report.Skipped, ShouldEqual, 1)
			So(report.Refilled, ShouldEqual, 0)
			So(h.invitations(m.ID)["p3"].Status, ShouldEqual, model.InviteSent)
		})
	})
}

func TestDeadpoolAndBroaden(t *testing.T) {
	Convey("Given a level window only two other players fit", t, func() {
		h := newHarness(7)
		for _, id := range []string{"p4", "p5", "p6", "p7"} {
			h.setLevel(id, 4.4)
		}
		m, res := h.create(service.MatchRequest{LevelMin: level(3.0), LevelMax: level(4.0)})

		Convey("Then the first wave is short and the organizer is offered a wider search", func() {
			So(res.Claimed, ShouldEqual, 2)
			So(res.Deadpool, ShouldBeTrue)
			So(h.received("p1", "1 more needed, 0 left to ask"), ShouldEqual, 1)
			So(h.received("p1", "widen the level range to 2.5-4.5"), ShouldEqual, 1)
		})

		Convey("When an invitee declines while the organizer decides", func() {
			h.mustReply("p2", model.DeclineIntent{})

			Convey("Then no replacement or repeat prompt goes out", func() {
				So(h.invitations(m.ID), ShouldHaveLength, 2)
				So(h.received("p1", "running out of players"), ShouldEqual, 1)
			})

			Convey("When the organizer accepts the wider search", func() {
				out := h.mustReply("p1", model.BroadenIntent{Accept: true})

				Convey("Then the window widens and the shortfall is invited", func() {
					So(out.Result, ShouldEqual, "broadened")
					So(out.MatchID, ShouldEqual, m.ID)

					got := h.match(m.ID)
					So(*got.LevelMin, ShouldEqual, 2.5)
					So(*got.LevelMax, ShouldEqual, 4.5)

					invs := h.invitations(m.ID)
					So(invs, ShouldHaveLength, 4)
					So(invs["p4"].Batch, ShouldEqual, 2)
					So(invs["p5"].Batch, ShouldEqual, 2)
					So(h.received("p1", "sent 2 new invites"), ShouldEqual, 1)
				})

				Convey("Then a second answer finds no pending decision", func() {
					out := h.mustReply("p1", model.BroadenIntent{Accept: true})
					So(out.Result, ShouldEqual, "no_pending_decision")
				})
			})
		})

		Convey("When the organizer keeps the current scope", func() {
			out := h.mustReply("p1", model.BroadenIntent{Accept: false})

			Convey("Then nothing about the match changes", func() {
				So(out.Result, ShouldEqual, "kept_scope")
				So(*h.match(m.ID).LevelMax, ShouldEqual, 4.0)
				So(h.invitations(m.ID), ShouldHaveLength, 2)
				So(h.received("p1", "keep the current search"), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a match scoped to a three-member group", t, func() {
		h := newHarness(6)
		So(h.store.SaveGroup(h.ctx, model.Group{ID: "g1", ClubID: "c1", Name: "Tuesday", MemberIDs: []string{"p1", "p2", "p3"}}), ShouldBeNil)
		m, res := h.create(service.MatchRequest{GroupID: "g1"})

		Convey("Then every member is invited at once", func() {
			So(m.SkipFilters, ShouldBeTrue)
			So(res.Claimed, ShouldEqual, 2)
			So(res.Deadpool, ShouldBeTrue)
			So(h.received("p1", "invite the whole club"), ShouldEqual, 1)
		})

		Convey("When the organizer opens it to the club", func() {
			h.mustReply("p1", model.BroadenIntent{Accept: true})

			Convey("Then the group scope is dropped and the last seat is invited", func() {
				got := h.match(m.ID)
				So(got.GroupID, ShouldBeEmpty)
				So(got.SkipFilters, ShouldBeFalse)
				invs := h.invitations(m.ID)
				So(invs, ShouldHaveLength, 3)
				So(invs["p4"].Status, ShouldEqual, model.InviteSent)
			})
		})
	})
}

func TestAdministration(t *testing.T) {
	Convey("Given a confirmed match in a club of eight", t, func() {
		h := newHarness(8)
		m, _ := h.create(service.MatchRequest{})
		for _, id := range []string{"p2", "p3", "p4"} {
			h.mustReply(id, model.AcceptIntent{})
		}
		So(h.match(m.ID).Status, ShouldEqual, model.MatchConfirmed)

		Convey("When a participant is removed", func() {
			got, res, err := h.svc.RemoveParticipant(h.ctx, m.ID, "p3")
			So(err, ShouldBeNil)

			Convey("Then the match reverts to seeking and one replacement goes out", func() {
				So(got.Status, ShouldEqual, model.MatchPending)
				So(got.ConfirmedAt, ShouldBeNil)
				So(got.HasParticipant("p3"), ShouldBeFalse)
				So(res.Claimed, ShouldEqual, 1)

				invs := h.invitations(m.ID)
				So(invs["p3"].Status, ShouldEqual, model.InviteRemoved)
				So(invs["p6"].Status, ShouldEqual, model.InviteSent)
				So(invs["p6"].Batch, ShouldEqual, 2)
				So(h.received("p3", "removed from"), ShouldEqual, 1)
			})

			Convey("Then the replacement can fill the match again", func() {
				out := h.mustReply("p6", model.AcceptIntent{})
				So(out.Result, ShouldEqual, string(model.AcceptSeated))
				So(h.match(m.ID).Status, ShouldEqual, model.MatchConfirmed)
			})
		})

		Convey("Removing someone who is not seated fails", func() {
			_, _, err := h.svc.RemoveParticipant(h.ctx, m.ID, "p7")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When the match is cancelled", func() {
			got, err := h.svc.CancelMatch(h.ctx, m.ID)
			So(err, ShouldBeNil)

			Convey("Then participants are told and it cannot be cancelled twice", func() {
				So(got.Status, ShouldEqual, model.MatchCancelled)
				for _, id := range []string{"p1", "p2", "p3", "p4"} {
					So(h.received(id, "has been cancelled"), ShouldEqual, 1)
				}
				_, err := h.svc.CancelMatch(h.ctx, m.ID)
				So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
			})

			Convey("Then its result cannot be reported", func() {
				_, err := h.svc.ReportResult(h.ctx, m.ID, model.WinnerTeam1)
				So(errors.Is(err, service.ErrMatchNotScorable), ShouldBeTrue)
			})
		})

		Convey("The match view lists every invitation", func() {
			view, err := h.svc.GetMatch(h.ctx, m.ID)
			So(err, ShouldBeNil)
			So(view.Match.ID, ShouldEqual, m.ID)
			So(view.Invitations, ShouldHaveLength, 4)
		})
	})
}

func TestBehavior(t *testing.T) {
	Convey("Responsiveness counts answers among invitations that were seen", t, func() {
		sent := start
		lapsed := start.Add(15 * time.Minute)
		confirmed := map[string]time.Time{"m1": start.Add(time.Hour), "m2": start.Add(5 * time.Minute)}
		invs := []model.Invitation{
			{MatchID: "m1", Status: model.InviteAccepted, SentAt: &sent},
			{MatchID: "m1", Status: model.InviteDeclined, SentAt: &sent},
			{MatchID: "m3", Status: model.InviteExpired, SentAt: &sent, RefilledAt: &lapsed},
			{MatchID: "m2", Status: model.InviteExpired, SentAt: &sent, RespondedAt: &lapsed},
			{MatchID: "m1", Status: model.InviteExpired, SentAt: &sent, ExpiresAt: &lapsed},
			{MatchID: "m2", Status: model.InviteExpired, SentAt: &sent, ExpiresAt: &lapsed},
			{MatchID: "m3", Status: model.InviteExpired, SentAt: &sent, ExpiresAt: &lapsed},
			{MatchID: "m1", Status: model.InviteExpired},
			{MatchID: "m1", Status: model.InviteSent, SentAt: &sent},
		}
		So(service.Responsiveness(invs, confirmed), ShouldEqual, 60)
		So(service.Responsiveness(nil, nil), ShouldEqual, model.DefaultResponsiveness)
	})

	Convey("Reputation rewards volume and punishes no-shows", t, func() {
		So(service.Reputation(model.Player{}), ShouldEqual, 75)
		So(service.Reputation(model.Player{NoShows: 1, MatchesPlayed: 25}), ShouldEqual, 67)
		So(service.Reputation(model.Player{MatchesPlayed: 500}), ShouldEqual, 85)
		So(service.Reputation(model.Player{NoShows: 9}), ShouldEqual, 0)
	})

	Convey("Given a club where one player declined", t, func() {
		h := newHarness(8)
		updated, err := h.svc.RecomputeBehavior(h.ctx)
		So(err, ShouldBeNil)
		So(updated, ShouldEqual, 0)

		h.create(service.MatchRequest{})
		h.mustReply("p2", model.DeclineIntent{})

		Convey("Then only that player's scores change", func() {
			updated, err := h.svc.RecomputeBehavior(h.ctx)
			So(err, ShouldBeNil)
			So(updated, ShouldEqual, 1)
			So(h.player("p2").Responsiveness, ShouldEqual, 100)
			So(h.player("p3").Responsiveness, ShouldEqual, model.DefaultResponsiveness)
		})
	})

	Convey("Given a match that filled before one invitee replied", t, func() {
		h := newHarness(8)
		m, _ := h.create(service.MatchRequest{})
		for _, id := range []string{"p2", "p3", "p4"} {
			h.mustReply(id, model.AcceptIntent{})
		}
		So(h.invitations(m.ID)["p5"].Status, ShouldEqual, model.InviteExpired)

		Convey("Then the unanswered invitee keeps a neutral reply rate", func() {
			_, err := h.svc.RecomputeBehavior(h.ctx)
			So(err, ShouldBeNil)
			So(h.player("p5").Responsiveness, ShouldEqual, model.DefaultResponsiveness)
			So(h.player("p2").Responsiveness, ShouldEqual, 100)
		})
	})
}
