package collection

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned when a bulk action of the same kind is still submitting.
	ErrBusy = errors.New("bulk action already in progress")

	// ErrNotAuthenticated is returned when the session does not allow requests.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrSuperseded resolves fetches whose response was discarded because a
	// newer request was issued.
	ErrSuperseded = errors.New("request superseded by a newer one")

	// ErrSearchTooShort resolves fetches skipped because the search text is
	// non-empty but below MinSearchLen.
	ErrSearchTooShort = errors.New("search text too short")

	ErrRowNotFound   = errors.New("row not found")
	ErrUnknownField  = errors.New("unknown field")
	ErrReadOnlyField = errors.New("field is read-only")
	ErrClosed        = errors.New("collection closed")
)

// Reason classifies a ValidationError.
type Reason string

const (
	ReasonRequired      Reason = "required"
	ReasonNotNumeric    Reason = "not_numeric"
	ReasonInvalidDate   Reason = "invalid_date"
	ReasonInvalidOption Reason = "invalid_option"
	ReasonInvalidBool   Reason = "invalid_bool"
)

// ValidationError is a local input failure. It is shown inline on the field
// and never sent to the server.
type ValidationError struct {
	Field   string
	Reason  Reason
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NetworkError wraps a transport failure. These are retryable.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: could not reach server: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ApplicationError is a server-side rejection (success=false). Retrying the
// same request will not help.
type ApplicationError struct {
	Message string
	Code    string
	Field   string
}

func (e *ApplicationError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

// IsRetryable reports whether err came from the transport rather than the server.
func IsRetryable(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
