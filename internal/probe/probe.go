// Package probe samples the head of a CSV input and drafts a mapping set for
// it: one mapping per column, with the conversion function chosen from the
// sampled values.
//
// The draft is meant to be hand-edited and then used with "csv-wrangler run".
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/dr3s/csv-wrangler/internal/config"
	"github.com/dr3s/csv-wrangler/internal/ddl"
	"github.com/dr3s/csv-wrangler/internal/field"
	"github.com/dr3s/csv-wrangler/internal/mapping"
	csvparser "github.com/dr3s/csv-wrangler/internal/parser/csv"
)

// DefaultRows is the sample size when Options.Rows is zero.
const DefaultRows = 1000

var errEnough = errors.New("probe: sample complete")

// Options control sampling.
type Options struct {
	// Rows is the number of data rows to sample.
	Rows   int
	Parser csvparser.Options
}

// Column is one sampled input column.
type Column struct {
	Header string   // as written in the file
	Name   string   // normalized output field name
	Type   ddl.Type // inferred from the non-empty sampled values
}

// Formula returns the mapping formula that reads the column as Type.
func (c Column) Formula() string {
	lit := quote(c.Header)
	switch c.Type {
	case ddl.Int:
		return "integer(" + lit + ")"
	case ddl.Float:
		return "float(" + lit + ")"
	default:
		return "value(" + lit + ")"
	}
}

// Result is a finished sample.
type Result struct {
	Columns []Column
	Rows    int // data rows sampled
	Defects int // lines that failed to parse
}

// Sample reads up to opt.Rows rows from src and infers one Column per header
// cell. src is closed.
func Sample(ctx context.Context, src io.ReadCloser, opt Options) (Result, error) {
	if opt.Rows <= 0 {
		opt.Rows = DefaultRows
	}
	var (
		res    Result
		names  []string
		values [][]string
	)
	emit := func(r field.Row) error {
		if names == nil {
			names = r.Columns().Names()
			values = make([][]string, len(names))
		}
		for i, n := range names {
			if v, ok := r.Value(n); ok {
				values[i] = append(values[i], v)
			}
		}
		res.Rows++
		if res.Rows >= opt.Rows {
			return errEnough
		}
		return nil
	}
	onDefect := func(int, error) { res.Defects++ }

	err := csvparser.NewStream(src, opt.Parser).StreamRows(ctx, emit, onDefect)
	if err != nil && !errors.Is(err, errEnough) {
		return Result{}, err
	}
	if names == nil {
		return Result{}, errors.New("probe: no data rows in sample")
	}

	used := make(map[string]int, len(names))
	for i, h := range names {
		name := normalizeFieldName(h)
		if n := used[name]; n > 0 {
			used[name]++
			name = name + "_" + strconv.Itoa(n+1)
		} else {
			used[name] = 1
		}
		res.Columns = append(res.Columns, Column{Header: h, Name: name, Type: inferType(values[i])})
	}
	return res, nil
}

// Mappings returns one mapping per column, in file order.
func (r Result) Mappings() mapping.Set {
	set := make(mapping.Set, 0, len(r.Columns))
	for _, c := range r.Columns {
		set = append(set, mapping.Mapping{Name: c.Name, Formula: c.Formula()})
	}
	return set
}

// Draft fills p's mappings from the sample. For a database sink it also sets
// column_types for every non-text column and turns on auto_create_table.
func (r Result) Draft(p config.Pipeline) config.Pipeline {
	p.Mappings = r.Mappings()
	p.MappingsFile = ""
	if config.IsDB(p.Sink.Kind) {
		types := map[string]string{}
		for _, c := range r.Columns {
			if c.Type != ddl.Text {
				types[c.Name] = string(c.Type)
			}
		}
		p.Sink.DB.ColumnTypes = types
		p.Sink.DB.AutoCreateTable = true
		if p.Sink.DB.Table == "" {
			p.Sink.DB.Table = normalizeFieldName(p.Job)
		}
	}
	return p
}

// inferType picks the narrowest type every non-empty value satisfies:
// int, float, bool, date, then text.
func inferType(values []string) ddl.Type {
	var nonEmpty []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			nonEmpty = append(nonEmpty, v)
		}
	}
	switch {
	case len(nonEmpty) == 0:
		return ddl.Text
	case allMatch(nonEmpty, isInt):
		return ddl.Int
	case allMatch(nonEmpty, isFloat):
		return ddl.Float
	case allMatch(nonEmpty, isBool):
		return ddl.Bool
	case allMatch(nonEmpty, isDate):
		return ddl.Date
	default:
		return ddl.Text
	}
}

func allMatch(vals []string, fn func(string) bool) bool {
	for _, v := range vals {
		if !fn(v) {
			return false
		}
	}
	return true
}

// isInt accepts what integer() reads without losing a fraction.
func isInt(s string) bool {
	f, ok := field.ParseNumber(s)
	return ok && f == math.Trunc(f) && math.Abs(f) < 1<<53
}

func isFloat(s string) bool {
	_, ok := field.ParseNumber(s)
	return ok
}

func isBool(s string) bool {
	_, err := strconv.ParseBool(s)
	return err == nil
}

func isDate(s string) bool {
	if _, err := time.Parse(time.DateOnly, s); err == nil {
		return true
	}
	_, err := time.Parse(time.RFC3339, s)
	return err == nil
}

// quote renders s as a single-quoted formula string literal.
func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}

// normalizeFieldName converts arbitrary header text into a lowercase ASCII
// identifier:
//  1. lowercase
//  2. strip accents (NFD, remove Mn, NFC)
//  3. keep [a-z0-9_]; convert space/dash/dot to underscore; drop others
//  4. fallback to "col" if empty
func normalizeFieldName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	ascii, _, _ := transform.String(t, s)

	var b strings.Builder
	prevUnderscore := false
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		case r == '_' || r == ' ' || r == '-' || r == '.':
			if !prevUnderscore {
				b.WriteRune('_')
				prevUnderscore = true
			}
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return "col"
	}
	return name
}

func (c Column) String() string { return fmt.Sprintf("%s (%s) -> %s", c.Header, c.Type, c.Name) }
