package pipeline

import (
	"errors"
	"fmt"

	"github.com/dr3s/csv-wrangler/internal/field"
	"github.com/dr3s/csv-wrangler/internal/formula"
	"github.com/dr3s/csv-wrangler/internal/transformer"
)

// ErrStop is returned by a Sink that will accept no more records. Run stops
// reading the source, flushes the sink and returns nil.
var ErrStop = errors.New("pipeline: sink requested stop")

// ParseDefect is a line the parser could not turn into a row. It has no row
// because the row boundaries could not be established.
type ParseDefect struct {
	Line int
	Err  error
}

func (d *ParseDefect) Error() string {
	if d.Line > 0 {
		return fmt.Sprintf("parse defect at line %d: %v", d.Line, d.Err)
	}
	return fmt.Sprintf("parse defect: %v", d.Err)
}

func (d *ParseDefect) Unwrap() error { return d.Err }

// FatalIOError reports that the source, the sink or the skip sink became
// unusable. It terminates the run.
type FatalIOError struct {
	Op  string // read, write, skip, flush, close
	Err error
}

func (e *FatalIOError) Error() string { return fmt.Sprintf("pipeline %s: %v", e.Op, e.Err) }
func (e *FatalIOError) Unwrap() error { return e.Err }

// RecordError is returned by a Sink that cannot store one record because
// of its values, e.g. a value that does not fit its column type. It is
// row-scoped: the source row goes to the skip channel and the run goes on.
type RecordError struct {
	Field string // output field at fault, when known
	Err   error
}

func (e *RecordError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("record rejected: field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("record rejected: %v", e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// Kind is the failure kind reported at the pipeline boundary.
type Kind string

const (
	KindMissingField Kind = "missing_field"
	KindNotANumber   Kind = "not_a_number"
	KindTypeMismatch Kind = "type_mismatch"
	KindFormulaError Kind = "formula_error"
	KindParseDefect  Kind = "parse_defect"
	KindRejected     Kind = "record_rejected"
)

// KindOf classifies a row-scoped error. Conversion failures take precedence
// over the formula and transform wrappers around them; a sink rejection is
// always KindRejected.
func KindOf(err error) Kind {
	var (
		pd *ParseDefect
		re *RecordError
	)
	switch {
	case errors.As(err, &pd):
		return KindParseDefect
	case errors.As(err, &re):
		return KindRejected
	case errors.Is(err, field.ErrMissingField):
		return KindMissingField
	case errors.Is(err, field.ErrNotANumber):
		return KindNotANumber
	case errors.Is(err, field.ErrTypeMismatch):
		return KindTypeMismatch
	default:
		return KindFormulaError
	}
}

// Skip is one side-channel event: a parse defect, a transform failure or a
// record the sink rejected. Row is the zero Row for parse defects.
type Skip struct {
	Kind Kind
	Line int
	Row  field.Row
	Err  error
}

// Mapping returns the name of the mapping that failed, or "".
func (s Skip) Mapping() string {
	var f *transformer.Failure
	if errors.As(s.Err, &f) {
		return f.Mapping
	}
	return ""
}

// Formula returns the source of the failing formula, or "".
func (s Skip) Formula() string {
	var fe *formula.Error
	if errors.As(s.Err, &fe) {
		return fe.Formula
	}
	return ""
}

func (s Skip) String() string {
	return fmt.Sprintf("%s: %v", s.Kind, s.Err)
}

func skipOf(line int, row field.Row, err error) Skip {
	return Skip{Kind: KindOf(err), Line: line, Row: row, Err: err}
}
