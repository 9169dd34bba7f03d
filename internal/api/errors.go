package api

import (
	"errors"
	"fmt"
)

// GenericFailureMessage is shown when the server reports a failure
// without a message of its own.
const GenericFailureMessage = "Something went wrong. Please try again"

// Client construction and decoding errors.
var (
	ErrMissingBaseURL    = errors.New("base URL cannot be empty")
	ErrMalformedResponse = errors.New("server response missing expected payload")
)

// ServerError is a server-reported failure: a non-2xx status or a 2xx
// body with success=false. Message is safe to surface to the user.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// UserMessage returns the text to surface for any backend error: the
// server's own message when it provided one, a generic fallback for
// transport-level failures.
func UserMessage(err error) string {
	var serverErr *ServerError
	if errors.As(err, &serverErr) && serverErr.Message != "" {
		return serverErr.Message
	}
	return GenericFailureMessage
}
