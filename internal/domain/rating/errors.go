package rating

import "errors"

// Sentinel kinds for rating errors.
var (
	ErrInvalidWinner  = errors.New("invalid winner")
	ErrMalformedTeams = errors.New("malformed team assignment")
	ErrUnknownPlayer  = errors.New("rated player does not exist")
)
