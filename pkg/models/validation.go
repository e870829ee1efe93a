package models

import (
	"errors"
	"fmt"
	"regexp"
)

// namePattern and colorPattern are the two field-level grammars §4.2
// names explicitly; every entity's Name and (where present) Color
// field is checked against these.
var (
	namePattern  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
	colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

var (
	errTooManyPrimaryKeys = errors.New("at most one property may be marked primary key")
	errSelfCycle          = errors.New("entity cannot reference itself")
	errDuplicateParam     = errors.New("parameter names must be unique")
	errOutOfBounds        = errors.New("value is outside the documented bounds")
)

// fieldErr pairs a field name with the ozzo-validation error raised for
// it, so pkg/repository can translate straight into an
// ocierr.ValidationFailed without re-deriving which field failed.
type fieldErr struct {
	field string
	err   error
}

func (e *fieldErr) Error() string { return fmt.Sprintf("%s: %v", e.field, e.err) }
func (e *fieldErr) Unwrap() error { return e.err }

// Field returns the name of the field that failed validation.
func (e *fieldErr) Field() string { return e.field }

// FieldError is satisfied by any error that can identify which field
// it concerns; pkg/repository type-asserts against this to build a
// precise ocierr.ValidationFailed.
type FieldError interface {
	error
	Field() string
}

var _ FieldError = (*fieldErr)(nil)
