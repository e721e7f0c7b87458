package api

import (
	"errors"
	"fmt"
)

// ErrUnauthorized marks any 401 from the backend. Callers that are probing
// for a session treat it as the normal anonymous path, not a failure.
var ErrUnauthorized = errors.New("unauthorized")

// NetworkError wraps transport-level failures: no response at all
// (connectivity, DNS, timeout/cancellation).
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError carries a 4xx rejection whose message the backend intends
// for the user verbatim.
type ValidationError struct {
	Status  int
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ServerError is any 5xx. The backend's message, if any, is not shown to the
// user; callers surface a generic failure instead.
type ServerError struct {
	Status int
}

func (e *ServerError) Error() string { return fmt.Sprintf("server error (%d)", e.Status) }

// UserMessage maps an API error to the single line shown to the user.
func UserMessage(err error, fallback string) string {
	var ve *ValidationError
	if errors.As(err, &ve) && ve.Message != "" {
		return ve.Message
	}
	return fallback
}
