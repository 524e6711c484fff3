package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrInvalidRequest   = errors.New("invalid match request")
	ErrUnknownSender    = errors.New("reply from unknown address")
	ErrMatchNotScorable = errors.New("match cannot be scored")
	ErrNotParticipant   = errors.New("player is not in this match")
	ErrUnsupportedReply = errors.New("unsupported reply intent")
)
