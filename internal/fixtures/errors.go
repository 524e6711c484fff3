package fixtures

import "errors"

// Sentinel kinds for fixture errors.
var (
	ErrLoadFixtures    = errors.New("load fixtures failed")
	ErrInvalidFixtures = errors.New("invalid fixtures")
)
