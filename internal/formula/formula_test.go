package formula

import (
	"errors"
	"testing"
	"time"

	"github.com/dr3s/csv-wrangler/internal/field"
)

func orderRow() field.Row {
	return field.FromPairs(
		"Year", "2018",
		"Month", "1",
		"Day", "1",
		"Order Number", "1000.0",
		"Product Name", "iceberg lettuce",
		"Count", "5,250.50",
	)
}

func TestEval(t *testing.T) {
	t.Parallel()

	cases := []struct {
		src  string
		want any
	}{
		{src: "integer('Order Number')", want: 1000},
		{src: "titleCase(value('Product Name'))", want: "Iceberg Lettuce"},
		{src: "float('Count')", want: 5250.5},
		{src: `value("Year") + "-" + value("Month")`, want: "2018-1"},
		{src: "integer('Year') * 100 + integer('Month')", want: 201801},
		{src: "float('Count') > 5000 ? 'bulk' : 'retail'", want: "bulk"},
		{src: "row['Product Name']", want: "iceberg lettuce"},
		{src: "value('Nope') == nil", want: true},
		{src: "value('Nope') ?? 'n/a'", want: "n/a"},
		{src: "42", want: 42},
		{src: "upper(trim(' x '))", want: "X"},
	}
	scope := NewScope(orderRow())
	for _, tc := range cases {
		f, err := Compile(tc.src)
		if err != nil {
			t.Fatalf("Compile(%q): %v", tc.src, err)
		}
		got, err := f.Eval(scope)
		if err != nil {
			t.Fatalf("Eval(%q): %v", tc.src, err)
		}
		if got != tc.want {
			t.Errorf("Eval(%q) = %#v, want %#v", tc.src, got, tc.want)
		}
	}
}

func TestEval_Date(t *testing.T) {
	t.Parallel()

	f := MustCompile(`date(value('Year') + "-0" + value('Month') + "-0" + value('Day'))`)
	got, err := f.Eval(NewScope(orderRow()))
	if err != nil {
		t.Fatal(err)
	}
	tm, ok := got.(time.Time)
	if !ok {
		t.Fatalf("got %T, want time.Time", got)
	}
	if y, m, d := tm.Date(); y != 2018 || m != time.January || d != 1 {
		t.Errorf("date = %v", tm)
	}
}

func TestEval_ConversionFailures(t *testing.T) {
	t.Parallel()

	row := field.FromPairs("Name", "x", "Qty", "lots", "Zero", "0", "One", "1")
	cases := []struct {
		src  string
		want error
	}{
		{src: "float('Count')", want: field.ErrMissingField},
		{src: "float('Count', true)", want: field.ErrMissingField},
		{src: "integer('Qty')", want: field.ErrNotANumber},
		{src: "value('Count', true)", want: field.ErrMissingField},
		{src: "titleCase(value('Count'))", want: field.ErrTypeMismatch},
		{src: "titleCase(integer('Qty'))", want: field.ErrNotANumber},
		{src: "float('Zero') / 0", want: field.ErrNotANumber},
		{src: "-float('One') / float('Zero')", want: field.ErrNotANumber},
		{src: "float('Zero') / float('Zero')", want: field.ErrNotANumber},
	}
	scope := NewScope(row)
	for _, tc := range cases {
		_, err := MustCompile(tc.src).Eval(scope)
		if !errors.Is(err, tc.want) {
			t.Errorf("Eval(%q) err = %v, want %v", tc.src, err, tc.want)
		}
		var fe *Error
		if !errors.As(err, &fe) || fe.Formula != tc.src {
			t.Errorf("Eval(%q) err is not a formula error: %#v", tc.src, err)
		}
	}
}

func TestEval_ScopeResetBetweenFormulas(t *testing.T) {
	t.Parallel()

	scope := NewScope(field.FromPairs("a", "1"))
	if _, err := MustCompile("float('b')").Eval(scope); err == nil {
		t.Fatal("expected failure")
	}
	got, err := MustCompile("float('a')").Eval(scope)
	if err != nil || got != 1.0 {
		t.Fatalf("second formula = %v, %v", got, err)
	}
}

func TestCompile_Rejects(t *testing.T) {
	t.Parallel()

	for _, src := range []string{
		"integer('a'",         // syntax
		"unknownFn('a')",      // not in scope
		"os",                  // no ambient names
		"now()",               // disabled builtin
		"value(1)",            // wrong argument type
		"titleCase('a', 'b')", // arity
	} {
		_, err := Compile(src)
		var fe *Error
		if !errors.As(err, &fe) {
			t.Errorf("Compile(%q) err = %v, want *Error", src, err)
		}
	}
}

func TestFormula_SharedAcrossScopes(t *testing.T) {
	t.Parallel()

	f := MustCompile("integer('n') * 2")
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				got, err := f.Eval(NewScope(field.FromPairs("n", "21")))
				if err != nil || got != 42 {
					t.Errorf("got %v, %v", got, err)
					return
				}
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
