package types

import "errors"

// Domain validation errors shared across components.
var (
	ErrInvalidAction      = errors.New("action must be 'chat' or 'call'")
	ErrInvalidStatus      = errors.New("invalid request status")
	ErrMissingRequestID   = errors.New("request id cannot be empty")
	ErrMissingProviderID  = errors.New("provider id cannot be empty")
	ErrNoActiveDeadline   = errors.New("request has neither response deadline nor scheduled time")
	ErrNegativeRemaining  = errors.New("consultation remaining time cannot be negative")
	ErrMissingUserSession = errors.New("user session requires user id and session id")
)
