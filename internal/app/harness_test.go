package service_test

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/rally/internal/adapters/notify"
	"github.com/okian/rally/internal/adapters/repository"
	service "github.com/okian/rally/internal/app"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
	_ = logger.SetLevelString("error")
}

var start = time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// harness wires a Service to an in-memory store, a recording sender and a
// manual clock.
type harness struct {
	ctx   context.Context
	store *repository.MemoryStore
	sent  *notify.Recorder
	clock *fakeClock
	svc   *service.Service
	msgs  int
}

func newHarness(players int, opts ...service.Option) *harness {
	h := &harness{
		ctx:   context.Background(),
		store: repository.NewMemoryStore(),
		sent:  notify.NewRecorder(),
		clock: &fakeClock{t: start},
	}
	So(h.store.SaveClub(h.ctx, model.Club{
		ID:            "c1",
		Name:          "Rally Club",
		Timezone:      "UTC",
		BatchSize:     4,
		InviteTimeout: 15 * time.Minute,
		OriginAddress: "+15550000000",
	}), ShouldBeNil)
	for i := 1; i <= players; i++ {
		So(h.store.SavePlayer(h.ctx, model.Player{
			ID:             fmt.Sprintf("p%d", i),
			ClubID:         "c1",
			Name:           fmt.Sprintf("P%d Tester", i),
			Address:        addr(fmt.Sprintf("p%d", i)),
			Gender:         model.GenderMale,
			DeclaredLevel:  3.5,
			Responsiveness: model.DefaultResponsiveness,
			Reputation:     model.DefaultReputation,
			Active:         true,
			CreatedAt:      start,
		}), ShouldBeNil)
	}

	n := 0
	base := []service.Option{
		service.WithClock(h.clock.Now),
		service.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("m%d", n)
		}),
	}
	h.svc = service.New(h.store, h.sent, append(base, opts...)...)
	return h
}

func addr(playerID string) string {
	return "+1555" + strings.TrimPrefix(playerID, "p")
}

func (h *harness) club() model.Club {
	c, err := h.store.GetClub(h.ctx, "c1")
	So(err, ShouldBeNil)
	return c
}

func (h *harness) setQuietHours(start, end string) {
	c := h.club()
	c.QuietStart, c.QuietEnd = start, end
	So(h.store.SaveClub(h.ctx, c), ShouldBeNil)
}

func (h *harness) setLevel(playerID string, level float64) {
	p, err := h.store.GetPlayer(h.ctx, playerID)
	So(err, ShouldBeNil)
	p.DeclaredLevel = level
	So(h.store.SavePlayer(h.ctx, p), ShouldBeNil)
}

func (h *harness) create(req service.MatchRequest) (model.Match, service.DispatchResult) {
	if req.ClubID == "" {
		req.ClubID = "c1"
	}
	if req.RequestedBy == "" {
		req.RequestedBy = "p1"
		req.RequesterPlays = true
	}
	if req.ScheduledAt.IsZero() {
		req.ScheduledAt = start.Add(48 * time.Hour)
	}
	m, res, err := h.svc.CreateMatch(h.ctx, req)
	So(err, ShouldBeNil)
	return m, res
}

// reply sends an intent from a player with a fresh message id.
func (h *harness) reply(playerID string, in model.Intent) (service.ReplyOutcome, error) {
	h.msgs++
	return h.replyWithID(fmt.Sprintf("msg-%d", h.msgs), playerID, in)
}

func (h *harness) replyWithID(messageID, playerID string, in model.Intent) (service.ReplyOutcome, error) {
	return h.svc.HandleReply(h.ctx, model.Reply{
		MessageID:  messageID,
		From:       addr(playerID),
		Intent:     in,
		ReceivedAt: h.clock.Now(),
	})
}

func (h *harness) mustReply(playerID string, in model.Intent) service.ReplyOutcome {
	out, err := h.reply(playerID, in)
	So(err, ShouldBeNil)
	return out
}

func (h *harness) match(id string) model.Match {
	m, err := h.store.GetMatch(h.ctx, id)
	So(err, ShouldBeNil)
	return m
}

func (h *harness) invitations(matchID string) map[string]model.Invitation {
	invs, err := h.store.ListInvitations(h.ctx, repository.InvitationFilter{MatchID: matchID})
	So(err, ShouldBeNil)
	out := make(map[string]model.Invitation, len(invs))
	for _, inv := range invs {
		out[inv.PlayerID] = inv
	}
	return out
}

func (h *harness) player(id string) model.Player {
	p, err := h.store.GetPlayer(h.ctx, id)
	So(err, ShouldBeNil)
	return p
}

// inbox joins everything sent to a player.
func (h *harness) inbox(playerID string) string {
	return strings.Join(h.sent.To(addr(playerID)), "\n")
}

// received counts messages to a player containing substr.
func (h *harness) received(playerID, substr string) int {
	n := 0
	for _, body := range h.sent.To(addr(playerID)) {
		if strings.Contains(body, substr) {
			n++
		}
	}
	return n
}

func level(v float64) *float64 { return &v }
