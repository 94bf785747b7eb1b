package budget

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores when a lookup matches nothing
	ErrNotFound = errors.New("not found")

	// ErrMissingBudgetItemName is returned when a new budget item has no name
	ErrMissingBudgetItemName = errors.New("missing budget item name")

	// ErrScenarioInUse is returned when deleting a referenced scenario without force
	ErrScenarioInUse = errors.New("scenario is referenced by plans or expenses")
)

// ParseError means the upload itself has an unrecognized shape. It aborts the import.
type ParseError struct {
	Format  string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Format != "" {
		return fmt.Sprintf("%s parse error: %s", e.Format, msg)
	}
	return "parse error: " + msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError is a bad value in a single record
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid value: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError with a formatted reason
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// MissingReferenceError is a reference that cannot be resolved or auto-created
type MissingReferenceError struct {
	Entity string
	Key    string
	Err    error
	// Suggestion is the closest existing key, if any
	Suggestion string
}

func (e *MissingReferenceError) Error() string {
	msg := "unresolved reference"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Suggestion != "" {
		return fmt.Sprintf("%s %q: %s (did you mean %s?)", e.Entity, e.Key, msg, e.Suggestion)
	}
	return fmt.Sprintf("%s %q: %s", e.Entity, e.Key, msg)
}

func (e *MissingReferenceError) Unwrap() error { return e.Err }

// ConstraintError is a storage-level uniqueness or foreign-key violation
type ConstraintError struct {
	Constraint string
	Err        error
}

func (e *ConstraintError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("constraint %s violated: %v", e.Constraint, e.Err)
	}
	return fmt.Sprintf("constraint violated: %v", e.Err)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// IsRecordError reports whether err is confined to one record, so the record can
// be skipped while the rest of the import continues.
func IsRecordError(err error) bool {
	var (
		validation *ValidationError
		missing    *MissingReferenceError
		constraint *ConstraintError
	)
	return errors.As(err, &validation) || errors.As(err, &missing) || errors.As(err, &constraint)
}
