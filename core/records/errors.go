package records

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrInvalidState = errors.New("invalid state")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
)

// ValidationError reports malformed or missing input. Rule is a stable code
// that the HTTP layer passes through to clients.
type ValidationError struct {
	Field string
	Rule  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("records: invalid %s: %s", e.Field, e.Rule)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type InvalidStateError struct {
	Action string
	State  string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("records: %s not allowed in state %s", e.Action, e.State)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("records: %s %q already exists", e.Field, e.Value)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

type NotFoundError struct {
	Entity string
	IDs    []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("records: %s not found: %s", e.Entity, strings.Join(e.IDs, ","))
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func invalid(field, rule string) error {
	return &ValidationError{Field: field, Rule: rule}
}

func notFound(entity string, ids ...string) error {
	return &NotFoundError{Entity: entity, IDs: ids}
}

// errorKind is the metrics label for err.
func errorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
