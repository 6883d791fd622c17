// Package apperr defines the error taxonomy shared across services and the
// HTTP layer. Handlers map these onto status codes; anything else is treated
// as an infrastructure failure and logged without leaking detail.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks a missing session, teacher profile, backup or stream.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a duplicate subject/queue entry.
	ErrConflict = errors.New("already exists")

	// ErrUndoExpired marks a promotion backup past its undo window.
	ErrUndoExpired = errors.New("undo window expired")
)

// ValidationError carries a user-fixable message about malformed input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
