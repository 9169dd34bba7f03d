package storage

import "errors"

// Hint store error types.
var (
	ErrMissingPath = errors.New("hint store path cannot be empty")
	ErrStoreClosed = errors.New("hint store is closed")
)
