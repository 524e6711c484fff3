package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/okian/rally/internal/domain/model"
)

// ReplyHandler accepts inbound player replies whose intent was already
// resolved by the messaging gateway.
type ReplyHandler struct {
	deps Dependencies
	now  func() time.Time
}

// NewReplyHandler creates a new reply handler.
func NewReplyHandler(deps Dependencies) *ReplyHandler {
	return &ReplyHandler{deps: deps, now: time.Now}
}

// replyRequest is the body of POST /replies.
type replyRequest struct {
	MessageID string        `json:"message_id"`
	From      string        `json:"from"`
	Intent    intentRequest `json:"intent"`
}

type intentRequest struct {
	Type    string       `json:"type"`
	MatchID string       `json:"match_id"`
	Accept  *bool        `json:"accept"`
	Winner  *winnerValue `json:"winner"`
}

func (in intentRequest) toModel() (model.Intent, error) {
	switch model.IntentKind(strings.ToLower(in.Type)) {
	case model.IntentAccept:
		return model.AcceptIntent{MatchID: in.MatchID}, nil
	case model.IntentDecline:
		return model.DeclineIntent{MatchID: in.MatchID}, nil
	case model.IntentMaybe:
		return model.MaybeIntent{MatchID: in.MatchID}, nil
	case model.IntentBroaden:
		if in.Accept == nil {
			return nil, fmt.Errorf("%w: broaden intent needs accept", ErrBadRequest)
		}
		return model.BroadenIntent{Accept: *in.Accept}, nil
	case model.IntentResult:
		if in.Winner == nil {
			return nil, fmt.Errorf("%w: result intent needs winner", ErrBadRequest)
		}
		return model.ResultIntent{MatchID: in.MatchID, Winner: model.Winner(*in.Winner)}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownIntent, in.Type)
}

func (r replyRequest) toModel(receivedAt time.Time) (model.Reply, error) {
	if strings.TrimSpace(r.From) == "" {
		return model.Reply{}, fmt.Errorf("%w: missing from", ErrBadRequest)
	}
	in, err := r.Intent.toModel()
	if err != nil {
		return model.Reply{}, err
	}
	return model.Reply{
		MessageID:  r.MessageID,
		From:       r.From,
		Intent:     in,
		ReceivedAt: receivedAt,
	}, nil
}

// HandleReply handles POST /replies. Redelivered message ids are
// acknowledged with duplicate=true and not processed again.
func (h *ReplyHandler) HandleReply(w http.ResponseWriter, r *http.Request) {
	var body replyRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	reply, err := body.toModel(h.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	out, err := h.deps.HandleReply(r.Context(), reply)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
