// Package formula compiles and evaluates mapping formulas.
//
// A formula is a single expr-lang expression. The only names in scope are
// the conversion functions bound to the current row and the row itself:
//
//	value(name[, required])    raw text, or nil when the field is absent
//	float(name[, required])    float64, grouping commas stripped
//	integer(name[, required])  floor of float, as an int
//	titleCase(text)            title-cased text
//	row                        map of column name to raw text
//
// Every expr builtin is disabled except a handful of pure helpers used to
// build dates and format values (see Builtins).
package formula

import (
	"fmt"
	"math"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/vm"

	"github.com/dr3s/csv-wrangler/internal/field"
)

// Builtins lists the expr builtins that stay enabled inside formulas.
var Builtins = []string{
	"date", "duration", "string", "abs", "round", "ceil", "floor", "trim", "upper", "lower", "len",
}

// Error is a FormulaError: the formula could not be compiled, or evaluating
// it failed. Err is the cause, which for conversion failures is a
// *field.Error.
type Error struct {
	Formula string
	Err     error
}

func (e *Error) Error() string { return fmt.Sprintf("formula %q: %v", e.Formula, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Formula is a compiled expression. It holds no per-row state and is safe to
// evaluate from many goroutines at once.
type Formula struct {
	src     string
	prog    *vm.Program
	usesRow bool
}

// envTypes fixes the signatures the checker sees. The runtime env built by
// Scope must match it exactly.
var envTypes = map[string]any{
	"value":     (func(string, ...bool) (any, error))(nil),
	"float":     (func(string, ...bool) (float64, error))(nil),
	"integer":   (func(string, ...bool) (int, error))(nil),
	"titleCase": (func(any) (string, error))(nil),
	"row":       map[string]any(nil),
}

// Compile parses and type-checks src. Unknown names and syntax errors are
// reported here as *Error.
func Compile(src string) (*Formula, error) {
	refs := &rowRefs{}
	opts := []expr.Option{
		expr.Env(envTypes),
		expr.DisableAllBuiltins(),
		expr.Patch(refs),
	}
	for _, b := range Builtins {
		opts = append(opts, expr.EnableBuiltin(b))
	}
	prog, err := expr.Compile(src, opts...)
	if err != nil {
		return nil, &Error{Formula: src, Err: err}
	}
	return &Formula{src: src, prog: prog, usesRow: refs.found}, nil
}

// MustCompile is Compile for formulas known to be valid. It panics on error.
func MustCompile(src string) *Formula {
	f, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return f
}

// String returns the formula source.
func (f *Formula) String() string { return f.src }

// Eval evaluates f against the row bound to s. When a conversion function
// fails, the returned *Error wraps that function's *field.Error so callers
// can test it with errors.Is(err, field.ErrNotANumber) and friends. A NaN or
// infinite result (e.g. a division by zero) is ErrNotANumber too.
func (f *Formula) Eval(s *Scope) (any, error) {
	s.err = nil
	out, err := expr.Run(f.prog, s.env(f.usesRow))
	if err != nil {
		if s.err != nil {
			err = s.err
		}
		return nil, &Error{Formula: f.src, Err: err}
	}
	if x, ok := out.(float64); ok && (math.IsNaN(x) || math.IsInf(x, 0)) {
		return nil, &Error{Formula: f.src, Err: &field.Error{Func: "result", Detail: fmt.Sprint(x), Err: field.ErrNotANumber}}
	}
	return out, nil
}

// Scope binds the conversion functions to one row. Build one per row and
// reuse it for every formula of that row; it is not safe for concurrent use.
type Scope struct {
	acc  field.Accessor
	vars map[string]any
	err  error // first conversion failure of the current Eval
}

// NewScope returns a scope over r.
func NewScope(r field.Row) *Scope {
	return &Scope{acc: field.NewAccessor(r)}
}

// Row returns the row the scope is bound to.
func (s *Scope) Row() field.Row { return s.acc.Row() }

func (s *Scope) env(withRow bool) map[string]any {
	if s.vars == nil {
		s.vars = map[string]any{
			"value":     s.value,
			"float":     s.float,
			"integer":   s.integer,
			"titleCase": s.titleCase,
		}
	}
	if withRow {
		if _, ok := s.vars["row"]; !ok {
			s.vars["row"] = s.acc.Row().Map()
		}
	}
	return s.vars
}

func (s *Scope) fail(err error) error {
	if s.err == nil {
		s.err = err
	}
	return err
}

func (s *Scope) value(name string, required ...bool) (any, error) {
	v, ok, err := s.acc.Value(name, isRequired(required))
	if err != nil {
		return nil, s.fail(err)
	}
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (s *Scope) float(name string, required ...bool) (float64, error) {
	f, err := s.acc.Float(name, isRequired(required))
	if err != nil {
		return 0, s.fail(err)
	}
	return f, nil
}

func (s *Scope) integer(name string, required ...bool) (int, error) {
	n, err := s.acc.Integer(name, isRequired(required))
	if err != nil {
		return 0, s.fail(err)
	}
	return n, nil
}

func (s *Scope) titleCase(v any) (string, error) {
	out, err := field.TitleCase(v)
	if err != nil {
		return "", s.fail(err)
	}
	return out, nil
}

// required defaults to false.
func isRequired(flags []bool) bool {
	return len(flags) > 0 && flags[0]
}

type rowRefs struct{ found bool }

func (r *rowRefs) Visit(node *ast.Node) {
	if id, ok := (*node).(*ast.IdentifierNode); ok && id.Value == "row" {
		r.found = true
	}
}
