package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/rally/internal/adapters/http/api"
	"github.com/okian/rally/internal/adapters/repository"
	service "github.com/okian/rally/internal/app"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/internal/domain/rating"
	"github.com/okian/rally/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

// mockDependencies records what the handlers pass in and returns canned
// values.
type mockDependencies struct {
	err error

	created  service.MatchRequest
	match    model.Match
	dispatch service.DispatchResult
	view     service.MatchView

	resultFor string
	winner    model.Winner
	changes   []rating.Change

	removedFrom string
	removed     string
	cancelled   string

	reply   model.Reply
	outcome service.ReplyOutcome

	report  service.SweepReport
	updated int
	sweeps  []string
}

func (m *mockDependencies) CreateMatch(_ context.Context, req service.MatchRequest) (model.Match, service.DispatchResult, error) {
	m.created = req
	return m.match, m.dispatch, m.err
}

func (m *mockDependencies) GetMatch(_ context.Context, id string) (service.MatchView, error) {
	if m.err != nil {
		return service.MatchView{}, m.err
	}
	v := m.view
	v.Match.ID = id
	return v, nil
}

func (m *mockDependencies) ReportResult(_ context.Context, matchID string, w model.Winner) ([]rating.Change, error) {
	m.resultFor, m.winner = matchID, w
	return m.changes, m.err
}

func (m *mockDependencies) RemoveParticipant(_ context.Context, matchID, playerID string) (model.Match, service.DispatchResult, error) {
	m.removedFrom, m.removed = matchID, playerID
	return m.match, m.dispatch, m.err
}

func (m *mockDependencies) CancelMatch(_ context.Context, matchID string) (model.Match, error) {
	m.cancelled = matchID
	return m.match, m.err
}

func (m *mockDependencies) HandleReply(_ context.Context, r model.Reply) (service.ReplyOutcome, error) {
	m.reply = r
	return m.outcome, m.err
}

func (m *mockDependencies) RunRefillSweep(context.Context) (service.SweepReport, error) {
	m.sweeps = append(m.sweeps, "refill")
	return m.report, m.err
}

func (m *mockDependencies) RunCatchupSweep(context.Context) (service.SweepReport, error) {
	m.sweeps = append(m.sweeps, "catchup")
	return m.report, m.err
}

func (m *mockDependencies) RecomputeBehavior(context.Context) (int, error) {
	m.sweeps = append(m.sweeps, "behavior")
	return m.updated, m.err
}

func newMux(deps *mockDependencies) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("Then the health endpoint serves metrics", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then a wrong method is rejected", func() {
			w := do(mux, http.MethodGet, "/replies", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})

		Convey("Then unknown paths are not found", func() {
			w := do(mux, http.MethodGet, "/leaderboard", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then registering on a nil mux panics", func() {
			So(func() { api.NewServer(deps).Register(context.Background(), nil) }, ShouldPanic)
		})
	})
}

func TestMatchHandler(t *testing.T) {
	Convey("Given the match routes", t, func() {
		deps := &mockDependencies{
			match:    model.Match{ID: "m1", ClubID: "c1", Status: model.MatchPending, Team1: []string{"p1"}},
			dispatch: service.DispatchResult{Batch: 1, Claimed: 4, Notified: 4},
		}
		mux := newMux(deps)

		Convey("When a valid match is posted", func() {
			w := do(mux, http.MethodPost, "/matches", `{
				"club_id": "c1",
				"requested_by": "p1",
				"scheduled_at": "2026-06-12T18:00:00Z",
				"level_min": 3.0,
				"level_max": 4.0,
				"gender": "any",
				"requester_plays": true
			}`)

			Convey("Then the match is created", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(deps.created.ClubID, ShouldEqual, "c1")
				So(deps.created.ScheduledAt.Equal(time.Date(2026, 6, 12, 18, 0, 0, 0, time.UTC)), ShouldBeTrue)
				So(*deps.created.LevelMin, ShouldEqual, 3.0)
				So(*deps.created.LevelMax, ShouldEqual, 4.0)
				So(deps.created.Gender, ShouldEqual, model.GenderAny)
				So(deps.created.RequesterPlays, ShouldBeTrue)

				body := decode(w)
				So(body["match"].(map[string]any)["id"], ShouldEqual, "m1")
				So(body["dispatch"].(map[string]any)["notified"], ShouldEqual, 4.0)
			})
		})

		Convey("When required fields are missing", func() {
			w := do(mux, http.MethodPost, "/matches", `{"requested_by":"p1","scheduled_at":"2026-06-12T18:00:00Z"}`)

			Convey("Then the request is rejected", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["code"], ShouldEqual, "bad_request")
			})
		})

		Convey("When the scheduled time is not RFC3339", func() {
			w := do(mux, http.MethodPost, "/matches", `{"club_id":"c1","requested_by":"p1","scheduled_at":"tomorrow"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the body carries unknown fields", func() {
			w := do(mux, http.MethodPost, "/matches", `{"club_id":"c1","talent_id":"x"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the service rejects the request", func() {
			deps.err = fmt.Errorf("%w: level window is inverted", service.ErrInvalidRequest)
			w := do(mux, http.MethodPost, "/matches", `{"club_id":"c1","requested_by":"p1","scheduled_at":"2026-06-12T18:00:00Z"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When a match is fetched", func() {
			deps.view = service.MatchView{Invitations: []model.Invitation{{ID: "i1", PlayerID: "p2", Status: model.InviteSent}}}
			w := do(mux, http.MethodGet, "/matches/m7", "")

			Convey("Then the view is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["match"].(map[string]any)["id"], ShouldEqual, "m7")
				invs := body["invitations"].([]any)
				So(invs, ShouldHaveLength, 1)
				So(invs[0].(map[string]any)["status"], ShouldEqual, "sent")
			})
		})

		Convey("When a missing match is fetched", func() {
			deps.err = fmt.Errorf("match %s: %w", "m9", repository.ErrNotFound)
			w := do(mux, http.MethodGet, "/matches/m9", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decode(w)["code"], ShouldEqual, "not_found")
		})

		Convey("When a result is reported", func() {
			deps.changes = []rating.Change{{PlayerID: "p1", Team: 1, Old: 1500, New: 1532, OldLevel: 3.5, NewLevel: 3.58}}

			Convey("Then a team number is accepted", func() {
				w := do(mux, http.MethodPost, "/matches/m1/result", `{"winner": 2}`)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.resultFor, ShouldEqual, "m1")
				So(deps.winner, ShouldEqual, model.WinnerTeam2)
			})

			Convey("Then a draw is accepted", func() {
				w := do(mux, http.MethodPost, "/matches/m1/result", `{"winner": "draw"}`)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.winner, ShouldEqual, model.WinnerDraw)

				body := decode(w)
				So(body["winner"], ShouldEqual, "draw")
				changes := body["changes"].([]any)
				So(changes, ShouldHaveLength, 1)
				So(changes[0].(map[string]any)["new_rating"], ShouldEqual, 1532.0)
			})

			Convey("Then an unknown team is rejected", func() {
				w := do(mux, http.MethodPost, "/matches/m1/result", `{"winner": 3}`)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(deps.resultFor, ShouldBeEmpty)
			})

			Convey("Then a missing winner is rejected", func() {
				w := do(mux, http.MethodPost, "/matches/m1/result", `{}`)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("Then an unscorable match is a conflict", func() {
				deps.err = service.ErrMatchNotScorable
				w := do(mux, http.MethodPost, "/matches/m1/result", `{"winner": "team1"}`)
				So(w.Code, ShouldEqual, http.StatusConflict)
			})
		})

		Convey("When a participant is removed", func() {
			w := do(mux, http.MethodPost, "/matches/m1/participants/p3/remove", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.removedFrom, ShouldEqual, "m1")
			So(deps.removed, ShouldEqual, "p3")
		})

		Convey("When a non-participant is removed", func() {
			deps.err = service.ErrNotParticipant
			w := do(mux, http.MethodPost, "/matches/m1/participants/p9/remove", "")
			So(w.Code, ShouldEqual, http.StatusConflict)
		})

		Convey("When a match is cancelled", func() {
			deps.match.Status = model.MatchCancelled
			w := do(mux, http.MethodPost, "/matches/m1/cancel", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.cancelled, ShouldEqual, "m1")
			So(decode(w)["match"].(map[string]any)["status"], ShouldEqual, "cancelled")
		})
	})
}

func TestReplyHandler(t *testing.T) {
	Convey("Given the reply route", t, func() {
		deps := &mockDependencies{outcome: service.ReplyOutcome{Intent: model.IntentAccept, MatchID: "m1", Result: "seated"}}
		mux := newMux(deps)

		Convey("When an accept is posted", func() {
			w := do(mux, http.MethodPost, "/replies",
				`{"message_id":"sms-1","from":"+15551","intent":{"type":"accept","match_id":"m1"}}`)

			Convey("Then the reply is routed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.reply.MessageID, ShouldEqual, "sms-1")
				So(deps.reply.From, ShouldEqual, "+15551")
				So(deps.reply.Intent, ShouldResemble, model.AcceptIntent{MatchID: "m1"})
				So(deps.reply.ReceivedAt.IsZero(), ShouldBeFalse)
				So(decode(w)["result"], ShouldEqual, "seated")
			})
		})

		Convey("When each intent type is posted", func() {
			cases := map[string]model.Intent{
				`{"type":"decline"}`:                           model.DeclineIntent{},
				`{"type":"MAYBE","match_id":"m2"}`:             model.MaybeIntent{MatchID: "m2"},
				`{"type":"broaden","accept":false}`:            model.BroadenIntent{Accept: false},
				`{"type":"result","match_id":"m1","winner":1}`: model.ResultIntent{MatchID: "m1", Winner: model.WinnerTeam1},
			}
			for intent, want := range cases {
				w := do(mux, http.MethodPost, "/replies", `{"from":"+15551","intent":`+intent+`}`)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.reply.Intent, ShouldResemble, want)
			}
		})

		Convey("When a broaden answer omits the decision", func() {
			w := do(mux, http.MethodPost, "/replies", `{"from":"+15551","intent":{"type":"broaden"}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the intent type is unknown", func() {
			w := do(mux, http.MethodPost, "/replies", `{"from":"+15551","intent":{"type":"hello"}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(w)["message"], ShouldContainSubstring, "unknown reply intent")
		})

		Convey("When the sender is missing", func() {
			w := do(mux, http.MethodPost, "/replies", `{"intent":{"type":"accept"}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the sender is not a known player", func() {
			deps.err = fmt.Errorf("%w: +15559", service.ErrUnknownSender)
			w := do(mux, http.MethodPost, "/replies", `{"from":"+15559","intent":{"type":"accept"}}`)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the body is not JSON", func() {
			w := do(mux, http.MethodPost, "/replies", `yes please`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestSweepHandler(t *testing.T) {
	Convey("Given the sweep routes", t, func() {
		deps := &mockDependencies{
			report:  service.SweepReport{Matches: 2, Refilled: 3, Invited: 2},
			updated: 5,
		}
		mux := newMux(deps)

		Convey("Then each sweep runs on demand", func() {
			w := do(mux, http.MethodPost, "/sweeps/refill", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["refilled"], ShouldEqual, 3.0)

			w = do(mux, http.MethodPost, "/sweeps/catchup", "")
			So(w.Code, ShouldEqual, http.StatusOK)

			w = do(mux, http.MethodPost, "/sweeps/behavior", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["updated"], ShouldEqual, 5.0)

			So(deps.sweeps, ShouldResemble, []string{"refill", "catchup", "behavior"})
		})

		Convey("Then internal failures are hidden", func() {
			deps.err = errors.New("database is locked")
			w := do(mux, http.MethodPost, "/sweeps/refill", "")
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			body := decode(w)
			So(body["code"], ShouldEqual, "internal")
			So(body["message"], ShouldNotContainSubstring, "locked")
		})
	})
}

func TestMetricsMiddleware(t *testing.T) {
	Convey("Given failed requests", t, func() {
		deps := &mockDependencies{err: repository.ErrConflict}
		mux := newMux(deps)

		Convey("Then the middleware passes the handler status through", func() {
			w := do(mux, http.MethodPost, "/matches/m1/cancel", "")
			So(w.Code, ShouldEqual, http.StatusConflict)
		})
	})
}
