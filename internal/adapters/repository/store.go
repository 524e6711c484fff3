// Package repository defines the persistence contract of the matchmaking
// engine and an in-memory implementation of it.
package repository

import (
	"context"
	"time"

	"github.com/okian/rally/internal/domain/model"
)

// PlayerFilter narrows ListPlayers. Empty fields do not filter.
type PlayerFilter struct {
	ClubID     string
	GroupID    string
	IDs        []string
	ActiveOnly bool
}

// MatchFilter narrows ListMatches.
type MatchFilter struct {
	ClubID   string
	Statuses []model.MatchStatus
}

// InvitationFilter narrows ListInvitations.
type InvitationFilter struct {
	MatchID       string
	PlayerID      string
	Statuses      []model.InvitationStatus
	ExpiresBefore *time.Time
	NotRefilled   bool
}

// ScopeUpdate relaxes a match's candidate criteria.
type ScopeUpdate struct {
	GroupID     string
	LevelMin    *float64
	LevelMax    *float64
	SkipFilters bool
}

// Directory is read/write access to clubs, groups and players.
type Directory interface {
	GetClub(ctx context.Context, id string) (model.Club, error)
	SaveClub(ctx context.Context, c model.Club) error
	GetGroup(ctx context.Context, id string) (model.Group, error)
	SaveGroup(ctx context.Context, g model.Group) error
	GetPlayer(ctx context.Context, id string) (model.Player, error)
	FindPlayerByAddress(ctx context.Context, address string) (model.Player, error)
	ListPlayers(ctx context.Context, f PlayerFilter) ([]model.Player, error)
	SavePlayer(ctx context.Context, p model.Player) error
	UpdateBehavior(ctx context.Context, playerID string, responsiveness, reputation int) error
}

// Matches is access to match rows.
type Matches interface {
	CreateMatch(ctx context.Context, m model.Match) error
	GetMatch(ctx context.Context, id string) (model.Match, error)
	ListMatches(ctx context.Context, f MatchFilter) ([]model.Match, error)
	UpdateMatchScope(ctx context.Context, matchID string, u ScopeUpdate) (model.Match, error)
	// CancelMatch abandons a seeking match and expires its open invitations.
	CancelMatch(ctx context.Context, matchID string, at time.Time) (model.Match, error)
	CompleteMatch(ctx context.Context, matchID string, w model.Winner, at time.Time) error
}

// Invitations is access to invitation rows. Every mutating method is a single
// atomic check-and-write.
type Invitations interface {
	// ClaimInvitation checks match capacity and the player's standing and
	// inserts the invitation, all as one operation.
	ClaimInvitation(ctx context.Context, req model.ClaimRequest) (model.ClaimOutcome, model.Invitation, error)
	// AcceptInvitation re-checks capacity and seats the player, confirming the
	// match when it fills.
	AcceptInvitation(ctx context.Context, matchID, playerID string, at time.Time) (model.AcceptOutcome, error)
	// RespondInvitation moves an open invitation to declined or maybe. It
	// reports false when the invitation was no longer open.
	RespondInvitation(ctx context.Context, matchID, playerID string, to model.InvitationStatus, at time.Time) (model.Invitation, bool, error)
	// RemoveParticipant detaches a seated player, reverting a confirmed match
	// to pending.
	RemoveParticipant(ctx context.Context, matchID, playerID string, at time.Time) (model.Match, error)
	ListInvitations(ctx context.Context, f InvitationFilter) ([]model.Invitation, error)
	NextBatch(ctx context.Context, matchID string) (int, error)
	// MarkRefilled expires stale sent invitations that were not refilled yet and
	// returns the ones it transitioned.
	MarkRefilled(ctx context.Context, ids []string, at time.Time) ([]model.Invitation, error)
	// FlushPendingSMS moves a held invitation to sent with a fresh expiry. It
	// reports false when the row was not pending_sms or the match stopped
	// seeking, in which case the row is expired.
	FlushPendingSMS(ctx context.Context, id string, at, expiresAt time.Time) (bool, error)
}

// RatingTx is the view of the store inside one rating transaction.
type RatingTx interface {
	// LockMatch holds the match row until the transaction ends. A match id
	// with no row is not an error.
	LockMatch(ctx context.Context, matchID string) error
	// GetPlayer reads the player and holds its row until the transaction ends.
	HistoryForMatch(ctx context.Context, matchID string) ([]model.RatingHistory, error)
	DeleteHistoryForMatch(ctx context.Context, matchID string) error
	GetPlayer(ctx context.Context, id string) (model.Player, error)
	SaveRating(ctx context.Context, p model.Player) error
	InsertHistory(ctx context.Context, h model.RatingHistory) error
}

// RatingLedger runs rating updates as one unit.
type RatingLedger interface {
	// WithRatingTx runs fn atomically. If fn fails, nothing it wrote persists.
	WithRatingTx(ctx context.Context, fn func(tx RatingTx) error) error
	RatingHistory(ctx context.Context, playerID string) ([]model.RatingHistory, error)
}

// Store is the full persistence contract.
type Store interface {
	Directory
	Matches
	Invitations
	RatingLedger
	Close() error
}
