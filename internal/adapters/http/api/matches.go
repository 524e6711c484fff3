package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	service "github.com/okian/rally/internal/app"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/internal/domain/rating"
)

// MatchHandler serves match creation, inspection and administration.
type MatchHandler struct {
	deps Dependencies
}

// NewMatchHandler creates a new match handler.
func NewMatchHandler(deps Dependencies) *MatchHandler {
	return &MatchHandler{deps: deps}
}

// matchRequest is the body of POST /matches.
type matchRequest struct {
	ClubID         string   `json:"club_id"`
	GroupID        string   `json:"group_id"`
	RequestedBy    string   `json:"requested_by"`
	ScheduledAt    string   `json:"scheduled_at"`
	LevelMin       *float64 `json:"level_min"`
	LevelMax       *float64 `json:"level_max"`
	Gender         string   `json:"gender"`
	SkipFilters    bool     `json:"skip_filters"`
	RequesterPlays bool     `json:"requester_plays"`
}

func (m matchRequest) toService() (service.MatchRequest, error) {
	switch {
	case strings.TrimSpace(m.ClubID) == "":
		return service.MatchRequest{}, fmt.Errorf("%w: missing club_id", ErrBadRequest)
	case strings.TrimSpace(m.RequestedBy) == "":
		return service.MatchRequest{}, fmt.Errorf("%w: missing requested_by", ErrBadRequest)
	case strings.TrimSpace(m.ScheduledAt) == "":
		return service.MatchRequest{}, fmt.Errorf("%w: missing scheduled_at", ErrBadRequest)
	}
	at, err := time.Parse(time.RFC3339, m.ScheduledAt)
	if err != nil {
		return service.MatchRequest{}, fmt.Errorf("%w: invalid scheduled_at; must be RFC3339", ErrBadRequest)
	}
	gender := model.GenderFilter(strings.ToLower(m.Gender))
	if gender == "any" {
		gender = model.GenderAny
	}
	return service.MatchRequest{
		ClubID:         m.ClubID,
		GroupID:        m.GroupID,
		RequestedBy:    m.RequestedBy,
		ScheduledAt:    at,
		LevelMin:       m.LevelMin,
		LevelMax:       m.LevelMax,
		Gender:         gender,
		SkipFilters:    m.SkipFilters,
		RequesterPlays: m.RequesterPlays,
	}, nil
}

type matchResponse struct {
	Match    model.Match             `json:"match"`
	Dispatch *service.DispatchResult `json:"dispatch,omitempty"`
}

// HandleCreate handles POST /matches.
func (h *MatchHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var body matchRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	req, err := body.toService()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	m, res, err := h.deps.CreateMatch(r.Context(), req)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, matchResponse{Match: m, Dispatch: &res})
}

// HandleGet handles GET /matches/{id}.
func (h *MatchHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	view, err := h.deps.GetMatch(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// winnerValue accepts 1, 2 or "draw" (also "1", "2", "team1", "team2").
type winnerValue model.Winner

func (v *winnerValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		return v.set(n)
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: winner must be 1, 2 or \"draw\"", ErrBadRequest)
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "team1":
		return v.set(1)
	case "2", "team2":
		return v.set(2)
	case "draw":
		*v = winnerValue(model.WinnerDraw)
		return nil
	}
	return fmt.Errorf("%w: unknown winner %q", ErrBadRequest, s)
}

func (v *winnerValue) set(team int) error {
	switch team {
	case 1:
		*v = winnerValue(model.WinnerTeam1)
	case 2:
		*v = winnerValue(model.WinnerTeam2)
	default:
		return fmt.Errorf("%w: unknown winner %d", ErrBadRequest, team)
	}
	return nil
}

type resultRequest struct {
	Winner *winnerValue `json:"winner"`
}

type resultResponse struct {
	MatchID string         `json:"match_id"`
	Winner  string         `json:"winner"`
	Changes []ratingChange `json:"changes"`
}

type ratingChange struct {
	PlayerID string  `json:"player_id"`
	Team     int     `json:"team"`
	Old      float64 `json:"old_rating"`
	New      float64 `json:"new_rating"`
	OldLevel float64 `json:"old_level"`
	NewLevel float64 `json:"new_level"`
}

func toRatingChanges(in []rating.Change) []ratingChange {
	out := make([]ratingChange, 0, len(in))
	for _, c := range in {
		out = append(out, ratingChange(c))
	}
	return out
}

// HandleResult handles POST /matches/{id}/result. Posting again corrects the
// earlier result.
func (h *MatchHandler) HandleResult(w http.ResponseWriter, r *http.Request) {
	var body resultRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if body.Winner == nil {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing winner"))
		return
	}
	id := r.PathValue("id")
	winner := model.Winner(*body.Winner)
	changes, err := h.deps.ReportResult(r.Context(), id, winner)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{
		MatchID: id,
		Winner:  winner.String(),
		Changes: toRatingChanges(changes),
	})
}

// HandleRemove handles POST /matches/{id}/participants/{player}/remove.
func (h *MatchHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	m, res, err := h.deps.RemoveParticipant(r.Context(), r.PathValue("id"), r.PathValue("player"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, matchResponse{Match: m, Dispatch: &res})
}

// HandleCancel handles POST /matches/{id}/cancel.
func (h *MatchHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	m, err := h.deps.CancelMatch(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, matchResponse{Match: m})
}
