// Package field holds the parsed input row and the read-only accessor and
// conversion functions that formulas use to look values up in it.
//
// Rows keep every cell as text. Nothing is typed until a conversion function
// is called explicitly from a formula.
package field

import (
	"bytes"
	"fmt"

	"github.com/segmentio/encoding/json"
)

// Columns is the header shared by every row of one stream: column names in
// file order plus a name → position index. It is immutable once built and
// safe for concurrent reads.
type Columns struct {
	names []string
	index map[string]int
}

// NewColumns builds a header from names. Column names must be unique.
func NewColumns(names []string) (*Columns, error) {
	c := &Columns{
		names: make([]string, len(names)),
		index: make(map[string]int, len(names)),
	}
	for i, n := range names {
		if _, dup := c.index[n]; dup {
			return nil, fmt.Errorf("duplicate column %q at position %d", n, i+1)
		}
		c.names[i] = n
		c.index[n] = i
	}
	return c, nil
}

// Len returns the number of columns.
func (c *Columns) Len() int {
	if c == nil {
		return 0
	}
	return len(c.names)
}

// Names returns a copy of the column names in file order.
func (c *Columns) Names() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.names...)
}

// Index returns the position of name.
func (c *Columns) Index(name string) (int, bool) {
	if c == nil {
		return 0, false
	}
	i, ok := c.index[name]
	return i, ok
}

// Row is one parsed input record: an ordered mapping from column name to raw
// text. A column can be absent from a row (short ragged line, or an empty
// cell when the parser treats empty as missing); absent is distinct from "".
//
// Contract:
//   - A Row never aliases parser buffers; vals is owned by the Row.
//   - Rows are not mutated after construction.
type Row struct {
	// Line is the 1-based physical line on which the record starts, or 0 when
	// the row did not come from a file.
	Line int

	cols    *Columns
	vals    []string
	missing []bool // nil when every column in vals is present
}

// NewRow binds vals to cols. len(vals) may be smaller than cols.Len(); the
// trailing columns are then absent. missing, when non-nil, marks individual
// cells as absent and must have the same length as vals.
func NewRow(cols *Columns, line int, vals []string, missing []bool) Row {
	if n := cols.Len(); len(vals) > n {
		vals = vals[:n]
	}
	if missing != nil && len(missing) != len(vals) {
		missing = nil
	}
	return Row{Line: line, cols: cols, vals: vals, missing: missing}
}

// FromPairs builds a standalone row from alternating name/value arguments,
// preserving their order. It panics on an odd argument count or a duplicate
// name; it is meant for literals in code and tests.
func FromPairs(pairs ...string) Row {
	if len(pairs)%2 != 0 {
		panic("field.FromPairs: odd number of arguments")
	}
	names := make([]string, 0, len(pairs)/2)
	vals := make([]string, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		names = append(names, pairs[i])
		vals = append(vals, pairs[i+1])
	}
	cols, err := NewColumns(names)
	if err != nil {
		panic("field.FromPairs: " + err.Error())
	}
	return NewRow(cols, 0, vals, nil)
}

// IsZero reports whether r is the zero Row (no header bound).
func (r Row) IsZero() bool { return r.cols == nil }

// Columns returns the header the row is bound to.
func (r Row) Columns() *Columns { return r.cols }

// Value returns the raw text of column name and whether it is present.
func (r Row) Value(name string) (string, bool) {
	i, ok := r.cols.Index(name)
	if !ok || i >= len(r.vals) {
		return "", false
	}
	if r.missing != nil && r.missing[i] {
		return "", false
	}
	return r.vals[i], true
}

// Each calls fn for every present column in header order.
func (r Row) Each(fn func(name, value string)) {
	for i, v := range r.vals {
		if r.missing != nil && r.missing[i] {
			continue
		}
		fn(r.cols.names[i], v)
	}
}

// Values returns the present values in header order.
func (r Row) Values() []string {
	out := make([]string, 0, len(r.vals))
	r.Each(func(_, v string) { out = append(out, v) })
	return out
}

// Map returns the present columns as a fresh map. Absent columns are left
// out so that a lookup on the map yields nil.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.vals))
	r.Each(func(n, v string) { m[n] = v })
	return m
}

// MarshalJSON encodes the present columns as an object in header order.
func (r Row) MarshalJSON() ([]byte, error) {
	if r.cols == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	var err error
	r.Each(func(n, v string) {
		if err != nil {
			return
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		err = writeJSONPair(&buf, n, v)
	})
	if err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSONPair(buf *bytes.Buffer, k, v string) error {
	kb, err := json.Marshal(k)
	if err != nil {
		return err
	}
	vb, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(kb)
	buf.WriteByte(':')
	buf.Write(vb)
	return nil
}
