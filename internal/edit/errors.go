package edit

import (
	"context"
	"errors"
	"fmt"

	"github.com/kioskmedia/timeline-agent/internal/media"
)

// ValidationError rejects an operation before any engine call is made.
type ValidationError struct {
	Op     Kind
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", e.Op, e.Field, e.Reason)
}

func invalid(op Kind, field, format string, args ...any) *ValidationError {
	return &ValidationError{Op: op, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsUserFacing reports whether err should be shown to the user. Render
// failures and discarded regenerations stay in the logs.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var re *media.RenderError
	if errors.As(err, &re) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return IsValidationError(err) || media.IsCodecError(err) || media.IsProbeError(err)
}

// UserMessage returns the text to show for a user-facing error.
func UserMessage(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	var ce *media.CodecExecutionError
	if errors.As(err, &ce) {
		return ce.UserMessage()
	}
	var pe *media.ProbeError
	if errors.As(err, &pe) {
		return "The file could not be read as media. The previous clip is still active."
	}
	return "Something went wrong."
}
