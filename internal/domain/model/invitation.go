package model

import "time"

// InvitationStatus is the lifecycle state of one invitation.
type InvitationStatus string

const (
	InvitePendingSMS InvitationStatus = "pending_sms"
	InviteSent       InvitationStatus = "sent"
	InviteAccepted   InvitationStatus = "accepted"
	InviteDeclined   InvitationStatus = "declined"
	InviteMaybe      InvitationStatus = "maybe"
	InviteExpired    InvitationStatus = "expired"
	InviteRemoved    InvitationStatus = "removed"
)

// Active reports whether the invitation is awaiting a final answer.
func (s InvitationStatus) Active() bool {
	return s == InviteSent || s == InviteMaybe
}

// Open reports whether the invitation still may turn into a seat, including
// notifications held back by quiet hours.
func (s InvitationStatus) Open() bool {
	return s.Active() || s == InvitePendingSMS
}

// ScoreBreakdown keeps the sub-scores a candidate had when invited.
type ScoreBreakdown struct {
	Compatibility  int `json:"compatibility"`
	Responsiveness int `json:"responsiveness"`
	Reputation     int `json:"reputation"`
}

// Invitation is one (match, player) invite row.
type Invitation struct {
	ID          string           `json:"id"`
	MatchID     string           `json:"match_id"`
	PlayerID    string           `json:"player_id"`
	Status      InvitationStatus `json:"status"`
	Batch       int              `json:"batch"`
	Score       int              `json:"score"`
	Breakdown   ScoreBreakdown   `json:"breakdown"`
	SentAt      *time.Time       `json:"sent_at,omitempty"`
	ExpiresAt   *time.Time       `json:"expires_at,omitempty"`
	RespondedAt *time.Time       `json:"responded_at,omitempty"`
	// RefilledAt marks that the refill sweep already replaced this invitation.
	RefilledAt *time.Time `json:"refilled_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ClaimOutcome is the result of an atomic seat claim.
type ClaimOutcome string

const (
	ClaimSuccess        ClaimOutcome = "SUCCESS"
	ClaimMatchFull      ClaimOutcome = "MATCH_FULL"
	ClaimAlreadyInvited ClaimOutcome = "ALREADY_INVITED"
	ClaimAlreadyInMatch ClaimOutcome = "ALREADY_IN_MATCH"
)

// ClaimRequest carries everything the atomic claim writes.
type ClaimRequest struct {
	MatchID   string
	PlayerID  string
	Status    InvitationStatus // InviteSent or InvitePendingSMS
	Batch     int
	Score     int
	Breakdown ScoreBreakdown
	Now       time.Time
	ExpiresAt *time.Time
}

// AcceptResult enumerates accept outcomes.
type AcceptResult string

const (
	AcceptSeated    AcceptResult = "seated"
	AcceptMatchFull AcceptResult = "match_full"
	AcceptClosed    AcceptResult = "invite_closed"
	AcceptNoInvite  AcceptResult = "no_invite"
	AcceptDuplicate AcceptResult = "already_accepted"
)

// AcceptOutcome reports what an atomic accept did.
type AcceptOutcome struct {
	Result          AcceptResult
	Team            int
	BecameOrganizer bool
	Confirmed       bool
	// Expired lists invitations closed because this accept filled the match.
	Expired []Invitation
	Match   Match
}
