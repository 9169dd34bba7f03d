package eligibility

import "errors"

var (
	// ErrInvalidIntake indicates the consultee details failed validation.
	ErrInvalidIntake = errors.New("invalid intake details")
)
