// SPDX-License-Identifier: MPL-2.0

package containerspec

import "errors"

const (
	msgMissingBase = "A base container must be provided"
	msgMissingURL  = "A container url must be provided"
)

// ErrValidation is the sentinel error wrapped by ValidationError.
var ErrValidation = errors.New("invalid container specification")

// ValidationError is returned when a Spec is constructed with a missing or
// malformed required field. It is never retried.
type ValidationError struct {
	// Field names the offending attribute ("url", "base", "format").
	Field string
	// Message is the user-facing description.
	Message string
	// Cause is the underlying validation error, if any.
	Cause error
}

// Error returns Message verbatim so callers can match on it.
func (e *ValidationError) Error() string { return e.Message }

// Unwrap returns ErrValidation and the cause for errors.Is() compatibility.
func (e *ValidationError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrValidation, e.Cause}
	}
	return []error{ErrValidation}
}
