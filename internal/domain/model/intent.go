package model

import "time"

// IntentKind names a recognized reply intent.
type IntentKind string

const (
	IntentAccept  IntentKind = "accept"
	IntentDecline IntentKind = "decline"
	IntentMaybe   IntentKind = "maybe"
	IntentBroaden IntentKind = "broaden"
	IntentResult  IntentKind = "result"
)

// Intent is a structured reply resolved from free text upstream. The set of
// implementations is closed.
type Intent interface {
	Kind() IntentKind
}

// AcceptIntent answers yes. MatchID may be empty when the player did not name
// a match; the most recent open invitation is used then.
type AcceptIntent struct{ MatchID string }

// DeclineIntent answers no.
type DeclineIntent struct{ MatchID string }

// MaybeIntent answers maybe.
type MaybeIntent struct{ MatchID string }

// BroadenIntent is an organizer's answer to a scope-broadening offer.
type BroadenIntent struct{ Accept bool }

// ResultIntent reports a final score.
type ResultIntent struct {
	MatchID string
	Winner  Winner
}

func (AcceptIntent) Kind() IntentKind  { return IntentAccept }
func (DeclineIntent) Kind() IntentKind { return IntentDecline }
func (MaybeIntent) Kind() IntentKind   { return IntentMaybe }
func (BroadenIntent) Kind() IntentKind { return IntentBroaden }
func (ResultIntent) Kind() IntentKind  { return IntentResult }

// Reply is one inbound message after intent resolution.
type Reply struct {
	MessageID  string
	From       string
	Intent     Intent
	ReceivedAt time.Time
}
