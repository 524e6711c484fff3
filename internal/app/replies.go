package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/rally/internal/adapters/repository"
	"github.com/okian/rally/internal/domain/messages"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/pkg/logger"
	"github.com/okian/rally/pkg/metrics"
)

// ReplyOutcome describes what an inbound reply did.
type ReplyOutcome struct {
	Intent    model.IntentKind `json:"intent,omitempty"`
	MatchID   string           `json:"match_id,omitempty"`
	Result    string           `json:"result"`
	Duplicate bool             `json:"duplicate,omitempty"`
}

// HandleReply routes one resolved inbound reply. Redeliveries of the same
// message id are ignored. Internal failures are reported to the player as a
// generic apology and returned to the caller.
func (s *Service) HandleReply(ctx context.Context, r model.Reply) (ReplyOutcome, error) {
	if r.Intent == nil {
		return ReplyOutcome{}, fmt.Errorf("%w: missing intent", ErrUnsupportedReply)
	}
	ctx = logger.With(ctx,
		logger.String("message_id", r.MessageID),
		logger.String("intent", string(r.Intent.Kind())))
	if r.MessageID != "" && s.dedupe.SeenAndRecord(ctx, r.MessageID) {
		metrics.RecordReplyDuplicate()
		s.log.Debug(ctx, "duplicate reply dropped")
		return ReplyOutcome{Intent: r.Intent.Kind(), Result: "duplicate", Duplicate: true}, nil
	}

	p, err := s.store.FindPlayerByAddress(ctx, r.From)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ReplyOutcome{}, fmt.Errorf("%w: %s", ErrUnknownSender, r.From)
		}
		s.forget(ctx, r)
		return ReplyOutcome{}, err
	}
	metrics.RecordReply(string(r.Intent.Kind()))

	var out ReplyOutcome
	switch in := r.Intent.(type) {
	case model.AcceptIntent:
		out, err = s.accept(ctx, p, in.MatchID)
	case model.DeclineIntent:
		out, err = s.decline(ctx, p, in.MatchID)
	case model.MaybeIntent:
		out, err = s.maybe(ctx, p, in.MatchID)
	case model.BroadenIntent:
		out, err = s.broaden(ctx, p, in.Accept)
	case model.ResultIntent:
		out, err = s.reportFromReply(ctx, p, in)
	default:
		err = fmt.Errorf("%w: %T", ErrUnsupportedReply, r.Intent)
	}
	if err != nil {
		s.log.Error(ctx, "reply processing failed",
			logger.String("player_id", p.ID),
			logger.Error(err))
		metrics.RecordErrorByComponent("replies", string(r.Intent.Kind()))
		s.forget(ctx, r)
		if club, cerr := s.club(ctx, p.ClubID); cerr == nil {
			s.send(ctx, club, p, messages.SomethingWrong())
		}
		return out, err
	}
	return out, nil
}

// forget lets a redelivery of r be processed again.
func (s *Service) forget(ctx context.Context, r model.Reply) {
	if r.MessageID != "" {
		s.dedupe.Unrecord(ctx, r.MessageID)
	}
}

// findInvitation resolves which invitation a reply refers to. Without a match
// id the most recent open invitation wins, then the most recent of any kind.
func (s *Service) findInvitation(ctx context.Context, playerID, matchID string) (model.Invitation, bool, error) {
	invs, err := s.store.ListInvitations(ctx, repository.InvitationFilter{MatchID: matchID, PlayerID: playerID})
	if err != nil {
		return model.Invitation{}, false, err
	}
	if len(invs) == 0 {
		return model.Invitation{}, false, nil
	}
	var latest, latestOpen *model.Invitation
	for i := range invs {
		inv := &invs[i]
		if latest == nil || !inv.CreatedAt.Before(latest.CreatedAt) {
			latest = inv
		}
		if inv.Status.Open() && (latestOpen == nil || !inv.CreatedAt.Before(latestOpen.CreatedAt)) {
			latestOpen = inv
		}
	}
	if latestOpen != nil {
		return *latestOpen, true, nil
	}
	return *latest, true, nil
}

func (s *Service) accept(ctx context.Context, p model.Player, matchID string) (ReplyOutcome, error) {
	out := ReplyOutcome{Intent: model.IntentAccept, MatchID: matchID}
	club, err := s.club(ctx, p.ClubID)
	if err != nil {
		return out, err
	}
	inv, ok, err := s.findInvitation(ctx, p.ID, matchID)
	if err != nil {
		return out, err
	}
	if !ok {
		out.Result = string(model.AcceptNoInvite)
		s.send(ctx, club, p, messages.NoInvite())
		return out, nil
	}
	out.MatchID = inv.MatchID

	res, err := s.store.AcceptInvitation(ctx, inv.MatchID, p.ID, s.clock())
	if err != nil {
		return out, err
	}
	out.Result = string(res.Result)
	m := res.Match

	switch res.Result {
	case model.AcceptSeated:
		s.log.Info(ctx, "player seated",
			logger.String("match_id", m.ID),
			logger.String("player_id", p.ID),
			logger.Int("team", res.Team),
			logger.Int("participants", m.ParticipantCount()))
		s.send(ctx, club, p, messages.Seated(club, m, res.BecameOrganizer))
		if res.Confirmed {
			metrics.RecordMatchConfirmed()
			s.announceConfirmed(ctx, club, m, p.ID)
		}
		s.nudgeMaybes(ctx, club, m, p)
	case model.AcceptDuplicate:
		s.send(ctx, club, p, messages.Seated(club, m, m.OrganizerID == p.ID))
	case model.AcceptNoInvite:
		s.send(ctx, club, p, messages.NoInvite())
	case model.AcceptClosed:
		if m.Status.Seeking() {
			s.send(ctx, club, p, messages.NoLongerOpen(club, m))
		} else {
			s.send(ctx, club, p, messages.MatchFull(club, m))
		}
	default:
		s.send(ctx, club, p, messages.MatchFull(club, m))
	}
	return out, nil
}

// announceConfirmed tells every participant the match is on. The organizer
// gets the booking details, everyone else the roster. The player whose accept
// filled the match already got a progress message and gets the roster too.
func (s *Service) announceConfirmed(ctx context.Context, club model.Club, m model.Match, filledBy string) {
	names := s.names(ctx, m.Participants())
	s.log.Info(ctx, "match confirmed",
		logger.String("match_id", m.ID),
		logger.String("organizer_id", m.OrganizerID),
		logger.String("filled_by", filledBy))
	for _, id := range m.Participants() {
		p, err := s.store.GetPlayer(ctx, id)
		if err != nil {
			s.log.Warn(ctx, "participant missing", logger.String("player_id", id), logger.Error(err))
			continue
		}
		if id == m.OrganizerID {
			s.send(ctx, club, p, messages.OrganizerBooking(club, m, names))
			continue
		}
		s.send(ctx, club, p, messages.Roster(club, m, names))
	}
}

// nudgeMaybes re-engages tentative players after someone else accepts. Once
// the match is confirmed they are told it filled instead.
func (s *Service) nudgeMaybes(ctx context.Context, club model.Club, m model.Match, joined model.Player) {
	maybes, err := s.store.ListInvitations(ctx, repository.InvitationFilter{
		MatchID:  m.ID,
		Statuses: []model.InvitationStatus{model.InviteMaybe},
	})
	if err != nil {
		s.log.Warn(ctx, "listing maybe holders failed", logger.String("match_id", m.ID), logger.Error(err))
		return
	}
	for _, inv := range maybes {
		if inv.PlayerID == joined.ID {
			continue
		}
		p, err := s.store.GetPlayer(ctx, inv.PlayerID)
		if err != nil {
			continue
		}
		body := messages.MaybeNudge(club, m, joined.Name)
		if m.Status == model.MatchConfirmed {
			body = messages.MaybeFilled(club, m, joined.Name)
		}
		s.send(ctx, club, p, body)
	}
}

func (s *Service) decline(ctx context.Context, p model.Player, matchID string) (ReplyOutcome, error) {
	out := ReplyOutcome{Intent: model.IntentDecline, MatchID: matchID}
	club, err := s.club(ctx, p.ClubID)
	if err != nil {
		return out, err
	}
	inv, ok, err := s.findInvitation(ctx, p.ID, matchID)
	if err != nil {
		return out, err
	}
	if !ok {
		out.Result = string(model.AcceptNoInvite)
		s.send(ctx, club, p, messages.NoInvite())
		return out, nil
	}
	out.MatchID = inv.MatchID

	updated, changed, err := s.store.RespondInvitation(ctx, inv.MatchID, p.ID, model.InviteDeclined, s.clock())
	if err != nil {
		return out, err
	}
	s.send(ctx, club, p, messages.DeclineAck())
	if !changed {
		out.Result = "unchanged"
		return out, nil
	}
	out.Result = string(updated.Status)

	m, err := s.store.GetMatch(ctx, inv.MatchID)
	if err != nil {
		return out, err
	}
	if _, err := s.replace(ctx, club, m, 1); err != nil {
		return out, err
	}
	return out, nil
}

func (s *Service) maybe(ctx context.Context, p model.Player, matchID string) (ReplyOutcome, error) {
	out := ReplyOutcome{Intent: model.IntentMaybe, MatchID: matchID}
	club, err := s.club(ctx, p.ClubID)
	if err != nil {
		return out, err
	}
	inv, ok, err := s.findInvitation(ctx, p.ID, matchID)
	if err != nil {
		return out, err
	}
	if !ok {
		out.Result = string(model.AcceptNoInvite)
		s.send(ctx, club, p, messages.NoInvite())
		return out, nil
	}
	out.MatchID = inv.MatchID

	updated, changed, err := s.store.RespondInvitation(ctx, inv.MatchID, p.ID, model.InviteMaybe, s.clock())
	if err != nil {
		return out, err
	}
	m, err := s.store.GetMatch(ctx, inv.MatchID)
	if err != nil {
		return out, err
	}
	if !changed && updated.Status != model.InviteMaybe {
		out.Result = "unchanged"
		if !m.Status.Seeking() {
			s.send(ctx, club, p, messages.MatchFull(club, m))
		} else {
			s.send(ctx, club, p, messages.NoLongerOpen(club, m))
		}
		return out, nil
	}
	out.Result = string(model.InviteMaybe)
	s.send(ctx, club, p, messages.MaybeAck(club, m))
	return out, nil
}
