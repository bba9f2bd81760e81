package outlets

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a project, outlet or virtual outlet does not exist.
	ErrNotFound = errors.New("outlets: not found")
	// ErrConflict is returned when a create collides with an existing key or a
	// delete is blocked by dependent records.
	ErrConflict = errors.New("outlets: conflict")
	// ErrInvalidGraph is returned when a virtual outlet record set is not a valid DAG.
	ErrInvalidGraph = errors.New("outlets: invalid graph")
	// ErrValidation is returned when a required field is missing or malformed.
	ErrValidation = errors.New("outlets: validation failed")

	// ErrDanglingReference refines ErrInvalidGraph for ids missing from the registry.
	ErrDanglingReference = errors.New("outlets: dangling reference")
	// ErrDuplicateNode refines ErrInvalidGraph for repeated record outlet ids.
	ErrDuplicateNode = errors.New("outlets: duplicate node")
	// ErrCycleDetected refines ErrInvalidGraph for records that route flow back upstream.
	ErrCycleDetected = errors.New("outlets: cycle detected")
)

// ValidationError names the field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError builds a validation error.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("outlets: invalid %s: %s", e.Field, e.Reason)
}

// Unwrap exposes ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// GraphError carries the ids that made a record set invalid.
type GraphError struct {
	Kind error
	IDs  []LocationID
}

func newGraphError(kind error, ids ...LocationID) *GraphError {
	return &GraphError{Kind: kind, IDs: append([]LocationID(nil), ids...)}
}

func (e *GraphError) Error() string {
	parts := make([]string, 0, len(e.IDs))
	for _, id := range e.IDs {
		parts = append(parts, id.String())
	}
	sep := ", "
	if errors.Is(e.Kind, ErrCycleDetected) {
		sep = " -> "
	}
	return fmt.Sprintf("%v: %s", e.Kind, strings.Join(parts, sep))
}

// Unwrap exposes both the specific failure and ErrInvalidGraph.
func (e *GraphError) Unwrap() []error {
	return []error{e.Kind, ErrInvalidGraph}
}
