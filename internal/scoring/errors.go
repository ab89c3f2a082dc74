package scoring

import (
	"errors"
	"fmt"
)

var (
	// ErrSchemaMismatch is returned when a submission or reference names a
	// field the schema does not define.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrIncompleteReference is returned when the reference answer lacks a
	// usable value for a schema field.
	ErrIncompleteReference = errors.New("incomplete reference")

	// ErrInvalidSchema is returned when the schema cannot be graded at all,
	// e.g. a field with no point band or a schema worth zero points.
	ErrInvalidSchema = errors.New("invalid schema")

	errNotFinite = errors.New("not a finite number")
)

type SchemaMismatchError struct {
	FieldID string
	Source  string // "submission" or "reference"
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("%s references unknown field %q", e.Source, e.FieldID)
}

func (e *SchemaMismatchError) Unwrap() error { return ErrSchemaMismatch }

type IncompleteReferenceError struct {
	FieldID string
	Reason  string
}

func (e *IncompleteReferenceError) Error() string {
	return fmt.Sprintf("reference for field %q is unusable: %s", e.FieldID, e.Reason)
}

func (e *IncompleteReferenceError) Unwrap() error { return ErrIncompleteReference }
