package field

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Accessor is a read-only view over one Row. Every conversion routes through
// its lookup so presence rules are applied in one place. Building one only
// captures the row; nothing is copied.
type Accessor struct {
	row Row
}

// NewAccessor returns an accessor over r.
func NewAccessor(r Row) Accessor { return Accessor{row: r} }

// Row returns the underlying row.
func (a Accessor) Row() Row { return a.row }

// Value returns the raw text of name. When the field is absent it returns
// ok=false (the missing marker), or ErrMissingField if required is set.
func (a Accessor) Value(name string, required bool) (s string, ok bool, err error) {
	return a.lookup("value", name, required)
}

func (a Accessor) lookup(fn, name string, required bool) (string, bool, error) {
	s, ok := a.row.Value(name)
	if !ok && required {
		return "", false, &Error{Func: fn, Field: name, Err: ErrMissingField}
	}
	return s, ok, nil
}

// Float resolves name and parses it as a float64 after removing grouping
// commas ("5,250.50" → 5250.5). An absent field is ErrMissingField whatever
// the value of required; unparseable text is ErrNotANumber.
func (a Accessor) Float(name string, required bool) (float64, error) {
	return a.float("float", name, required)
}

func (a Accessor) float(fn, name string, required bool) (float64, error) {
	s, ok, err := a.lookup(fn, name, required)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &Error{Func: fn, Field: name, Err: ErrMissingField}
	}
	f, ok := ParseNumber(s)
	if !ok {
		return 0, &Error{Func: fn, Field: name, Value: s, Err: ErrNotANumber}
	}
	return f, nil
}

// Integer is floor(Float(name, required)). It rounds toward negative
// infinity, so "-1.5" is -2.
func (a Accessor) Integer(name string, required bool) (int, error) {
	f, err := a.float("integer", name, required)
	if err != nil {
		return 0, err
	}
	fl := math.Floor(f)
	if fl < math.MinInt64 || fl >= math.MaxInt64 {
		s, _ := a.row.Value(name)
		return 0, &Error{Func: "integer", Field: name, Value: s, Detail: "out of integer range", Err: ErrNotANumber}
	}
	return int(fl), nil
}

// ParseNumber parses decimal text as a finite float64. Surrounding
// whitespace is ignored and every ',' is removed first. NaN, infinities,
// trailing garbage and Go-only literal forms ("1_000", "0x1p3") are
// rejected.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if strings.IndexByte(s, ',') >= 0 {
		s = strings.ReplaceAll(s, ",", "")
	}
	if s == "" || strings.IndexByte(s, '_') >= 0 || hasBasePrefix(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// hasBasePrefix reports a "0x"-style prefix after an optional sign.
func hasBasePrefix(s string) bool {
	if s[0] == '+' || s[0] == '-' {
		s = s[1:]
	}
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// TitleCase title-cases text. Any other kind of value, including the missing
// marker (nil), is ErrTypeMismatch.
func TitleCase(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", &Error{Func: "titleCase", Detail: fmt.Sprintf("want text, got %s", kindOf(v)), Err: ErrTypeMismatch}
	}
	return TitleString(s), nil
}

// TitleString lower-cases s, splits it on single ASCII spaces and
// upper-cases the first rune of every word. Runs of spaces survive as empty
// words, and words that start with an uncased rune are left alone.
func TitleString(s string) string {
	words := strings.Split(cases.Lower(language.Und).String(s), " ")
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		if size == 0 {
			continue
		}
		if up := unicode.ToUpper(r); up != r {
			words[i] = string(up) + w[size:]
		}
	}
	return strings.Join(words, " ")
}

func kindOf(v any) string {
	if v == nil {
		return "missing value"
	}
	return fmt.Sprintf("%T", v)
}
