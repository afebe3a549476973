package field

import (
	"errors"
	"strings"
)

// Sentinel failure kinds raised by the accessor and conversion functions.
// They are always wrapped in an *Error; test with errors.Is.
var (
	// ErrMissingField is returned when a field is absent from the row and a
	// value is needed (required lookup, or numeric conversion).
	ErrMissingField = errors.New("missing field")
	// ErrNotANumber is returned when text does not parse as a finite number.
	ErrNotANumber = errors.New("not a number")
	// ErrTypeMismatch is returned when a conversion receives the wrong kind of
	// value (e.g. titleCase of a missing marker or a number).
	ErrTypeMismatch = errors.New("type mismatch")
)

// Error describes one failed accessor or conversion call.
type Error struct {
	Func   string // value, float, integer, titleCase
	Field  string // column name, when the call looked one up
	Value  string // offending text, when there was any
	Detail string // extra context, e.g. the Go type received
	Err    error  // one of the sentinels above
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Func)
	if e.Field != "" {
		b.WriteString("(")
		b.WriteString(quote(e.Field))
		b.WriteString(")")
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	if e.Value != "" {
		b.WriteString(": ")
		b.WriteString(quote(e.Value))
	}
	if e.Detail != "" {
		b.WriteString(" (")
		b.WriteString(e.Detail)
		b.WriteString(")")
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func quote(s string) string { return "'" + s + "'" }
