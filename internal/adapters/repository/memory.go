package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/rally/internal/domain/model"
)

// MemoryStore implements Store in process memory. A single mutex makes every
// method one atomic operation, which is what the claim and accept paths need.
type MemoryStore struct {
	mu    sync.Mutex
	newID func() string

	clubs       map[string]model.Club
	groups      map[string]model.Group
	players     map[string]model.Player
	playerOrder []string
	matches     map[string]model.Match
	invites     map[string]model.Invitation
	inviteOrder []string
	byMatch     map[string][]string
	history     []model.RatingHistory
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		newID:   uuid.NewString,
		clubs:   make(map[string]model.Club),
		groups:  make(map[string]model.Group),
		players: make(map[string]model.Player),
		matches: make(map[string]model.Match),
		invites: make(map[string]model.Invitation),
		byMatch: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) GetClub(ctx context.Context, id string) (model.Club, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clubs[id]
	if !ok {
		return model.Club{}, fmt.Errorf("club %s: %w", id, ErrNotFound)
	}
	return c, nil
}

func (s *MemoryStore) SaveClub(ctx context.Context, c model.Club) error {
	if c.ID == "" {
		return fmt.Errorf("club id: %w", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clubs[c.ID] = c
	return nil
}

func (s *MemoryStore) GetGroup(ctx context.Context, id string) (model.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return model.Group{}, fmt.Errorf("group %s: %w", id, ErrNotFound)
	}
	g.MemberIDs = slices.Clone(g.MemberIDs)
	return g, nil
}

func (s *MemoryStore) SaveGroup(ctx context.Context, g model.Group) error {
	if g.ID == "" {
		return fmt.Errorf("group id: %w", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g.MemberIDs = slices.Clone(g.MemberIDs)
	s.groups[g.ID] = g
	return nil
}

func (s *MemoryStore) GetPlayer(ctx context.Context, id string) (model.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getPlayerLocked(id)
}

func (s *MemoryStore) getPlayerLocked(id string) (model.Player, error) {
	p, ok := s.players[id]
	if !ok {
		return model.Player{}, fmt.Errorf("player %s: %w", id, ErrNotFound)
	}
	return p, nil
}

func (s *MemoryStore) FindPlayerByAddress(ctx context.Context, address string) (model.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.playerOrder {
		if p := s.players[id]; p.Address == address {
			return p, nil
		}
	}
	return model.Player{}, fmt.Errorf("player at %s: %w", address, ErrNotFound)
}

func (s *MemoryStore) ListPlayers(ctx context.Context, f PlayerFilter) ([]model.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var members []string
	if f.GroupID != "" {
		g, ok := s.groups[f.GroupID]
		if !ok {
			return nil, fmt.Errorf("group %s: %w", f.GroupID, ErrNotFound)
		}
		members = g.MemberIDs
	}
	out := make([]model.Player, 0, len(s.playerOrder))
	for _, id := range s.playerOrder {
		p := s.players[id]
		if f.ClubID != "" && p.ClubID != f.ClubID {
			continue
		}
		if f.GroupID != "" && !slices.Contains(members, id) {
			continue
		}
		if len(f.IDs) > 0 && !slices.Contains(f.IDs, id) {
			continue
		}
		if f.ActiveOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *MemoryStore) SavePlayer(ctx context.Context, p model.Player) error {
	if p.ID == "" {
		return fmt.Errorf("player id: %w", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[p.ID]; !ok {
		s.playerOrder = append(s.playerOrder, p.ID)
	}
	s.players[p.ID] = p
	return nil
}

func (s *MemoryStore) UpdateBehavior(ctx context.Context, playerID string, responsiveness, reputation int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.getPlayerLocked(playerID)
	if err != nil {
		return err
	}
	p.Responsiveness = responsiveness
	p.Reputation = reputation
	s.players[playerID] = p
	return nil
}

func (s *MemoryStore) CreateMatch(ctx context.Context, m model.Match) error {
	if m.ID == "" {
		return fmt.Errorf("match id: %w", ErrInvalidInput)
	}
	if m.ParticipantCount() > model.MatchSeats {
		return fmt.Errorf("match %s seats: %w", m.ID, ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[m.ID]; ok {
		return fmt.Errorf("match %s: %w", m.ID, ErrConflict)
	}
	s.matches[m.ID] = m.Clone()
	return nil
}

func (s *MemoryStore) GetMatch(ctx context.Context, id string) (model.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return model.Match{}, fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	return m.Clone(), nil
}

func (s *MemoryStore) ListMatches(ctx context.Context, f MatchFilter) ([]model.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Match, 0)
	for _, m := range s.matches {
		if f.ClubID != "" && m.ClubID != f.ClubID {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, m.Status) {
			continue
		}
		out = append(out, m.Clone())
	}
	slices.SortFunc(out, func(a, b model.Match) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *MemoryStore) UpdateMatchScope(ctx context.Context, matchID string, u ScopeUpdate) (model.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return model.Match{}, fmt.Errorf("match %s: %w", matchID, ErrNotFound)
	}
	m.GroupID = u.GroupID
	m.LevelMin = u.LevelMin
	m.LevelMax = u.LevelMax
	m.SkipFilters = u.SkipFilters
	s.matches[matchID] = m
	return m.Clone(), nil
}

func (s *MemoryStore) CancelMatch(ctx context.Context, matchID string, at time.Time) (model.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return model.Match{}, fmt.Errorf("match %s: %w", matchID, ErrNotFound)
	}
	if m.Status == model.MatchCompleted || m.Status == model.MatchCancelled {
		return model.Match{}, fmt.Errorf("match %s is %s: %w", matchID, m.Status, ErrConflict)
	}
	m.Status = model.MatchCancelled
	s.matches[matchID] = m
	for _, id := range s.byMatch[matchID] {
		inv := s.invites[id]
		if inv.Status.Open() {
			inv.Status = model.InviteExpired
			s.invites[id] = inv
		}
	}
	return m.Clone(), nil
}

func (s *MemoryStore) CompleteMatch(ctx context.Context, matchID string, w model.Winner, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return fmt.Errorf("match %s: %w", matchID, ErrNotFound)
	}
	if m.Status != model.MatchConfirmed && m.Status != model.MatchCompleted {
		return fmt.Errorf("match %s is %s: %w", matchID, m.Status, ErrConflict)
	}
	m.Status = model.MatchCompleted
	m.Winner = w
	m.CompletedAt = &at
	s.matches[matchID] = m
	return nil
}

func (s *MemoryStore) ClaimInvitation(ctx context.Context, req model.ClaimRequest) (model.ClaimOutcome, model.Invitation, error) {
	if req.Status != model.InviteSent && req.Status != model.InvitePendingSMS {
		return "", model.Invitation{}, fmt.Errorf("claim status %q: %w", req.Status, ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[req.MatchID]
	if !ok {
		return "", model.Invitation{}, fmt.Errorf("match %s: %w", req.MatchID, ErrNotFound)
	}
	if !m.Status.Seeking() || m.OpenSeats() <= 0 {
		return model.ClaimMatchFull, model.Invitation{}, nil
	}
	if m.HasParticipant(req.PlayerID) {
		return model.ClaimAlreadyInMatch, model.Invitation{}, nil
	}
	if _, ok := s.findInviteLocked(req.MatchID, req.PlayerID); ok {
		return model.ClaimAlreadyInvited, model.Invitation{}, nil
	}
	inv := model.Invitation{
		ID:        s.newID(),
		MatchID:   req.MatchID,
		PlayerID:  req.PlayerID,
		Status:    req.Status,
		Batch:     req.Batch,
		Score:     req.Score,
		Breakdown: req.Breakdown,
		ExpiresAt: req.ExpiresAt,
		CreatedAt: req.Now,
	}
	if req.Status == model.InviteSent {
		at := req.Now
		inv.SentAt = &at
	}
	s.invites[inv.ID] = inv
	s.inviteOrder = append(s.inviteOrder, inv.ID)
	s.byMatch[req.MatchID] = append(s.byMatch[req.MatchID], inv.ID)
	return model.ClaimSuccess, inv, nil
}

func (s *MemoryStore) findInviteLocked(matchID, playerID string) (model.Invitation, bool) {
	for _, id := range s.byMatch[matchID] {
		if inv := s.invites[id]; inv.PlayerID == playerID {
			return inv, true
		}
	}
	return model.Invitation{}, false
}

func (s *MemoryStore) AcceptInvitation(ctx context.Context, matchID, playerID string, at time.Time) (model.AcceptOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return model.AcceptOutcome{}, fmt.Errorf("match %s: %w", matchID, ErrNotFound)
	}
	inv, ok := s.findInviteLocked(matchID, playerID)
	if !ok {
		return model.AcceptOutcome{Result: model.AcceptNoInvite, Match: m.Clone()}, nil
	}
	switch {
	case inv.Status == model.InviteAccepted:
		return model.AcceptOutcome{Result: model.AcceptDuplicate, Match: m.Clone()}, nil
	case !inv.Status.Open():
		return model.AcceptOutcome{Result: model.AcceptClosed, Match: m.Clone()}, nil
	}

	inv.RespondedAt = &at
	if !m.Status.Seeking() || m.OpenSeats() <= 0 || m.HasParticipant(playerID) {
		inv.Status = model.InviteExpired
		s.invites[inv.ID] = inv
		return model.AcceptOutcome{Result: model.AcceptMatchFull, Match: m.Clone()}, nil
	}

	out := model.AcceptOutcome{Result: model.AcceptSeated}
	out.Team = m.Seat(playerID)
	inv.Status = model.InviteAccepted
	s.invites[inv.ID] = inv
	if m.OrganizerID == "" {
		m.OrganizerID = playerID
		out.BecameOrganizer = true
	}
	if m.OpenSeats() == 0 {
		m.Status = model.MatchConfirmed
		m.ConfirmedAt = &at
		out.Confirmed = true
		for _, id := range s.byMatch[matchID] {
			other := s.invites[id]
			if other.Status == model.InviteSent || other.Status == model.InvitePendingSMS {
				other.Status = model.InviteExpired
				s.invites[id] = other
				out.Expired = append(out.Expired, other)
			}
		}
	}
	s.matches[matchID] = m
	out.Match = m.Clone()
	return out, nil
}

func (s *MemoryStore) RespondInvitation(ctx context.Context, matchID, playerID string, to model.InvitationStatus, at time.Time) (model.Invitation, bool, error) {
	if to != model.InviteDeclined && to != model.InviteMaybe {
		return model.Invitation{}, false, fmt.Errorf("respond status %q: %w", to, ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.findInviteLocked(matchID, playerID)
	if !ok {
		return model.Invitation{}, false, fmt.Errorf("invitation %s/%s: %w", matchID, playerID, ErrNotFound)
	}
	if !inv.Status.Open() || inv.Status == to {
		return inv, false, nil
	}
	inv.Status = to
	inv.RespondedAt = &at
	s.invites[inv.ID] = inv
	return inv, true, nil
}

func (s *MemoryStore) RemoveParticipant(ctx context.Context, matchID, playerID string, at time.Time) (model.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return model.Match{}, fmt.Errorf("match %s: %w", matchID, ErrNotFound)
	}
	if m.Status == model.MatchCompleted || m.Status == model.MatchCancelled {
		return model.Match{}, fmt.Errorf("match %s is %s: %w", matchID, m.Status, ErrConflict)
	}
	if !m.Unseat(playerID) {
		return model.Match{}, fmt.Errorf("participant %s in %s: %w", playerID, matchID, ErrNotFound)
	}
	if m.OrganizerID == playerID {
		m.OrganizerID = ""
	}
	if m.Status == model.MatchConfirmed && m.OpenSeats() > 0 {
		m.Status = model.MatchPending
		m.ConfirmedAt = nil
	}
	s.matches[matchID] = m
	if inv, ok := s.findInviteLocked(matchID, playerID); ok {
		inv.Status = model.InviteRemoved
		inv.RespondedAt = &at
		s.invites[inv.ID] = inv
	}
	return m.Clone(), nil
}

func (s *MemoryStore) ListInvitations(ctx context.Context, f InvitationFilter) ([]model.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.inviteOrder
	if f.MatchID != "" {
		ids = s.byMatch[f.MatchID]
	}
	out := make([]model.Invitation, 0, len(ids))
	for _, id := range ids {
		inv := s.invites[id]
		if f.PlayerID != "" && inv.PlayerID != f.PlayerID {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, inv.Status) {
			continue
		}
		if f.ExpiresBefore != nil && (inv.ExpiresAt == nil || !inv.ExpiresAt.Before(*f.ExpiresBefore)) {
			continue
		}
		if f.NotRefilled && inv.RefilledAt != nil {
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

func (s *MemoryStore) NextBatch(ctx context.Context, matchID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := 1
	for _, id := range s.byMatch[matchID] {
		if b := s.invites[id].Batch; b >= next {
			next = b + 1
		}
	}
	return next, nil
}

func (s *MemoryStore) MarkRefilled(ctx context.Context, ids []string, at time.Time) ([]model.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Invitation
	for _, id := range ids {
		inv, ok := s.invites[id]
		if !ok || inv.Status != model.InviteSent || inv.RefilledAt != nil {
			continue
		}
		inv.Status = model.InviteExpired
		inv.RefilledAt = &at
		s.invites[id] = inv
		out = append(out, inv)
	}
	return out, nil
}

func (s *MemoryStore) FlushPendingSMS(ctx context.Context, id string, at, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[id]
	if !ok {
		return false, fmt.Errorf("invitation %s: %w", id, ErrNotFound)
	}
	if inv.Status != model.InvitePendingSMS {
		return false, nil
	}
	m := s.matches[inv.MatchID]
	if !m.Status.Seeking() || m.OpenSeats() <= 0 {
		inv.Status = model.InviteExpired
		s.invites[id] = inv
		return false, nil
	}
	inv.Status = model.InviteSent
	inv.SentAt = &at
	inv.ExpiresAt = &expiresAt
	s.invites[id] = inv
	return true, nil
}

func (s *MemoryStore) RatingHistory(ctx context.Context, playerID string) ([]model.RatingHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.RatingHistory
	for _, h := range s.history {
		if h.PlayerID == playerID {
			out = append(out, h)
		}
	}
	return out, nil
}

// WithRatingTx stages every write and applies them only when fn succeeds.
func (s *MemoryStore) WithRatingTx(ctx context.Context, fn func(tx RatingTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memRatingTx{
		store:   s,
		players: make(map[string]model.Player),
		deleted: make(map[string]bool),
	}
	if err := fn(tx); err != nil {
		return err
	}
	for id, p := range tx.players {
		s.players[id] = p
	}
	if len(tx.deleted) > 0 {
		s.history = slices.DeleteFunc(s.history, func(h model.RatingHistory) bool {
			return tx.deleted[h.MatchID]
		})
	}
	s.history = append(s.history, tx.inserted...)
	return nil
}

type memRatingTx struct {
	store    *MemoryStore
	players  map[string]model.Player
	deleted  map[string]bool
	inserted []model.RatingHistory
}

// LockMatch is a no-op; WithRatingTx holds the store mutex throughout.
func (t *memRatingTx) LockMatch(ctx context.Context, matchID string) error { return nil }

func (t *memRatingTx) HistoryForMatch(ctx context.Context, matchID string) ([]model.RatingHistory, error) {
	var out []model.RatingHistory
	if !t.deleted[matchID] {
		for _, h := range t.store.history {
			if h.MatchID == matchID {
				out = append(out, h)
			}
		}
	}
	for _, h := range t.inserted {
		if h.MatchID == matchID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (t *memRatingTx) DeleteHistoryForMatch(ctx context.Context, matchID string) error {
	t.deleted[matchID] = true
	t.inserted = slices.DeleteFunc(t.inserted, func(h model.RatingHistory) bool {
		return h.MatchID == matchID
	})
	return nil
}

func (t *memRatingTx) GetPlayer(ctx context.Context, id string) (model.Player, error) {
	if p, ok := t.players[id]; ok {
		return p, nil
	}
	return t.store.getPlayerLocked(id)
}

func (t *memRatingTx) SaveRating(ctx context.Context, p model.Player) error {
	cur, err := t.GetPlayer(ctx, p.ID)
	if err != nil {
		return err
	}
	cur.Rating = p.Rating
	cur.AdjustedLevel = p.AdjustedLevel
	cur.RatingConfidence = p.RatingConfidence
	cur.MatchesPlayed = p.MatchesPlayed
	t.players[p.ID] = cur
	return nil
}

func (t *memRatingTx) InsertHistory(ctx context.Context, h model.RatingHistory) error {
	if h.ID == "" {
		h.ID = t.store.newID()
	}
	t.inserted = append(t.inserted, h)
	return nil
}
