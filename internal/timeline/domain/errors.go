package timeline

import (
	"errors"

	outlets "reservoir-ops/internal/outlets/domain"
)

var (
	// ErrNotFound is shared with the outlet registry so callers map one sentinel.
	ErrNotFound = outlets.ErrNotFound
	// ErrConflict is returned when FailIfExists meets an existing change date.
	ErrConflict = outlets.ErrConflict
	// ErrValidation is returned for malformed changes and foreign settings.
	ErrValidation = outlets.ErrValidation
	// ErrProtectedRecord is returned when a protected change would be removed or
	// replaced without override.
	ErrProtectedRecord = errors.New("timeline: protected record")
)

func validationError(field, reason string) error {
	return outlets.NewValidationError(field, reason)
}
