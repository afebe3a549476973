// Package transformer applies a mapping.Set to parsed rows, producing one
// output record per row or a Failure describing why the row was rejected.
//
// Design goals:
//   - Compile every formula once, when the Transformer is built; rows only
//     evaluate.
//   - All or nothing per row: the first failing mapping aborts the row and
//     the partly built record is dropped.
//   - A Transformer holds no mutable state and is shared by every worker.
package transformer

import (
	"fmt"

	"github.com/dr3s/csv-wrangler/internal/field"
	"github.com/dr3s/csv-wrangler/internal/formula"
	"github.com/dr3s/csv-wrangler/internal/mapping"
	"github.com/dr3s/csv-wrangler/internal/record"
)

// Failure is a TransformFailure: the row, the mapping that failed and why.
// Err is a *formula.Error.
type Failure struct {
	Index   int // position of the mapping in the set
	Mapping string
	Formula string
	Row     field.Row
	Err     error
}

func (f *Failure) Error() string {
	if f.Row.Line > 0 {
		return fmt.Sprintf("line %d: mapping %q: %v", f.Row.Line, f.Mapping, f.Err)
	}
	return fmt.Sprintf("mapping %q: %v", f.Mapping, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// step is one compiled mapping. A formula that failed to compile keeps its
// error and fails every row that reaches it.
type step struct {
	name string
	src  string
	prog *formula.Formula
	err  error
}

// Transformer evaluates a Mapping Set against rows.
type Transformer struct {
	plan  []step
	names []string
}

// New compiles set. It never fails: compile errors are reported through
// CompileErrors and surface per row from Transform.
func New(set mapping.Set) *Transformer {
	t := &Transformer{plan: make([]step, len(set)), names: set.Names()}
	for i, m := range set {
		prog, err := formula.Compile(m.Formula)
		t.plan[i] = step{name: m.Name, src: m.Formula, prog: prog, err: err}
	}
	return t
}

// Names returns the output field names in record order.
func (t *Transformer) Names() []string { return append([]string(nil), t.names...) }

// CompileErrors returns the compile failure of each broken formula, keyed by
// mapping index.
func (t *Transformer) CompileErrors() map[int]error {
	var out map[int]error
	for i, s := range t.plan {
		if s.err == nil {
			continue
		}
		if out == nil {
			out = make(map[int]error)
		}
		out[i] = s.err
	}
	return out
}

// Transform evaluates every mapping in order against r. On success the
// record holds exactly one value per distinct name, from the last mapping
// with that name. On failure it returns a *Failure and no record.
func (t *Transformer) Transform(r field.Row) (*record.Record, error) {
	rec := record.New(len(t.names))
	scope := formula.NewScope(r)
	for i, s := range t.plan {
		if s.err != nil {
			return nil, t.fail(i, r, s.err)
		}
		v, err := s.prog.Eval(scope)
		if err != nil {
			return nil, t.fail(i, r, err)
		}
		rec.Set(s.name, v)
	}
	return rec, nil
}

func (t *Transformer) fail(i int, r field.Row, err error) *Failure {
	s := t.plan[i]
	return &Failure{Index: i, Mapping: s.name, Formula: s.src, Row: r, Err: err}
}
