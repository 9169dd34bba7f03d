package store

import "errors"

// Store error types.
var (
	ErrDuplicateRequest = errors.New("request with this id already exists")
)
