package consult

import "errors"

// Active-session error types.
var (
	ErrNoActiveConsultation   = errors.New("no active consultation")
	ErrConsultationInProgress = errors.New("a consultation is already in progress; end it first")
)
