package waitlist

import "errors"

// Waitlist error types.
var (
	ErrNoInvitation = errors.New("no invitation is currently presented")
)
