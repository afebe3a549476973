package csv

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/text/encoding/charmap"

	"github.com/dr3s/csv-wrangler/internal/config"
	"github.com/dr3s/csv-wrangler/internal/field"
)

// fakeRC is an io.ReadCloser over a byte slice that records Close.
type fakeRC struct {
	*bytes.Reader
	closed int
}

func newFakeRC(b []byte) *fakeRC { return &fakeRC{Reader: bytes.NewReader(b)} }
func (f *fakeRC) Close() error   { f.closed++; return nil }

type defect struct {
	Line int
	Err  string
}

type result struct {
	rows    []map[string]any
	lines   []int
	defects []defect
}

func run(t *testing.T, input string, opt Options) (result, error) {
	t.Helper()
	var res result
	src := newFakeRC([]byte(input))
	err := NewStream(src, opt).StreamRows(context.Background(),
		func(r field.Row) error {
			res.rows = append(res.rows, r.Map())
			res.lines = append(res.lines, r.Line)
			return nil
		},
		func(line int, err error) {
			res.defects = append(res.defects, defect{line, err.Error()})
		},
	)
	if src.closed != 1 {
		t.Errorf("source closed %d times, want 1", src.closed)
	}
	return res, err
}

func TestStreamRows_Basic(t *testing.T) {
	t.Parallel()

	in := "\uFEFFYear,Month,Order Number,Product Name,Count\n" +
		"2018,1,1000.0,iceberg lettuce,\"5,250.50\"\n" +
		"2018,2,1001.0,\"multi\nline\",7\n" +
		"\n" +
		"2018,3,1002.0,kale,9\n"
	res, err := run(t, in, Options{})
	if err != nil {
		t.Fatal(err)
	}
	want := []map[string]any{
		{"Year": "2018", "Month": "1", "Order Number": "1000.0", "Product Name": "iceberg lettuce", "Count": "5,250.50"},
		{"Year": "2018", "Month": "2", "Order Number": "1001.0", "Product Name": "multi\nline", "Count": "7"},
		{"Year": "2018", "Month": "3", "Order Number": "1002.0", "Product Name": "kale", "Count": "9"},
	}
	if diff := cmp.Diff(want, res.rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{2, 3, 6}, res.lines); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
	if len(res.defects) != 0 {
		t.Errorf("unexpected defects: %v", res.defects)
	}
}

func TestStreamRows_DefectsDoNotStopTheStream(t *testing.T) {
	t.Parallel()

	in := "a,b\n" +
		"1,2\n" +
		"3,x\"y\n" + // bare quote
		"4\n" + // short
		"5,6,7\n" + // long
		"8,9\n"
	res, err := run(t, in, Options{})
	if err != nil {
		t.Fatal(err)
	}
	want := []map[string]any{{"a": "1", "b": "2"}, {"a": "8", "b": "9"}}
	if diff := cmp.Diff(want, res.rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
	if len(res.defects) != 3 {
		t.Fatalf("defects = %v, want 3", res.defects)
	}
	for i, wantLine := range []int{3, 4, 5} {
		if res.defects[i].Line != wantLine {
			t.Errorf("defect %d line = %d, want %d", i, res.defects[i].Line, wantLine)
		}
	}
	if !strings.Contains(res.defects[1].Err, "wrong number of fields: want 2, got 1") {
		t.Errorf("width defect = %q", res.defects[1].Err)
	}
}

func TestStreamRows_Ragged(t *testing.T) {
	t.Parallel()

	in := "a,b,c\n1\n1,2,3,4\n"
	res, err := run(t, in, Options{AllowRagged: true})
	if err != nil {
		t.Fatal(err)
	}
	want := []map[string]any{
		{"a": "1"},
		{"a": "1", "b": "2", "c": "3", "_4": "4"},
	}
	if diff := cmp.Diff(want, res.rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestStreamRows_TrimAndEmptyAsMissing(t *testing.T) {
	t.Parallel()

	in := " a , b \n  x  ,\n"
	res, err := run(t, in, Options{TrimSpace: true, EmptyAsMissing: true})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]map[string]any{{"a": "x"}}, res.rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	res, err = run(t, in, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]map[string]any{{"a": "  x  ", "b": ""}}, res.rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestStreamRows_SemicolonAndLazyQuotes(t *testing.T) {
	t.Parallel()

	in := "name;note\nAcme;say \"hi\"\n"
	res, err := run(t, in, Options{Comma: ';', LazyQuotes: true})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]map[string]any{{"name": "Acme", "note": `say "hi"`}}, res.rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestStreamRows_Encoding(t *testing.T) {
	t.Parallel()

	enc, err := charmap.Windows1250.NewEncoder().String("jméno,město\nŽofie,Brno\n")
	if err != nil {
		t.Fatal(err)
	}
	res, err := run(t, enc, Options{Encoding: "windows-1250"})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]map[string]any{{"jméno": "Žofie", "město": "Brno"}}, res.rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	if _, err := run(t, "a\n", Options{Encoding: "klingon"}); err == nil {
		t.Error("expected error for unknown encoding")
	}
}

func TestStreamRows_Scrub(t *testing.T) {
	t.Parallel()

	in := "id,name\n1,\"Firma s.r.o. \"v likvidaci\"\"\n"
	res, err := run(t, in, Options{Scrub: []Scrub{{From: ` "v likvidaci""`, To: ` (v likvidaci)"`}}})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]map[string]any{{"id": "1", "name": "Firma s.r.o. (v likvidaci)"}}, res.rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestStreamRows_HeaderErrorsAreFatal(t *testing.T) {
	t.Parallel()

	if _, err := run(t, "a,b,a\n1,2,3\n", Options{}); err == nil || !strings.Contains(err.Error(), "duplicate column") {
		t.Errorf("duplicate header err = %v", err)
	}
	res, err := run(t, "", Options{})
	if err != nil || len(res.rows) != 0 {
		t.Errorf("empty input = %v, %v; want no rows, no error", res.rows, err)
	}
}

type failingReader struct{ n int }

func (f *failingReader) Read(p []byte) (int, error) {
	if f.n == 0 {
		f.n++
		return copy(p, "a,b\n1,2\n"), nil
	}
	return 0, errors.New("connection reset by peer")
}

func TestStreamRows_ReadErrorIsFatal(t *testing.T) {
	t.Parallel()

	src := io.NopCloser(&failingReader{})
	var rows int
	err := NewStream(src, Options{}).StreamRows(context.Background(),
		func(field.Row) error { rows++; return nil }, nil)
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("err = %v, want read error", err)
	}
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		t.Errorf("read error must not look like a parse error")
	}
	if rows != 1 {
		t.Errorf("rows = %d, want 1", rows)
	}
}

func TestStreamRows_StopsWhenEmitFails(t *testing.T) {
	t.Parallel()

	stop := errors.New("stop")
	src := newFakeRC([]byte("a\n1\n2\n3\n"))
	var seen int
	err := NewStream(src, Options{}).StreamRows(context.Background(),
		func(field.Row) error {
			seen++
			if seen == 2 {
				return stop
			}
			return nil
		}, nil)
	if !errors.Is(err, stop) || seen != 2 || src.closed != 1 {
		t.Fatalf("err=%v seen=%d closed=%d", err, seen, src.closed)
	}
}

func TestStreamRows_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewStream(newFakeRC([]byte("a\n1\n")), Options{}).StreamRows(ctx, func(field.Row) error { return nil }, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestOptionsFrom(t *testing.T) {
	t.Parallel()

	got, err := OptionsFrom(config.Options{
		"comma":            ";",
		"lazy_quotes":      true,
		"empty_as_missing": true,
		"encoding":         "ISO-8859-2",
		"scrub":            []any{map[string]any{"from": "a", "to": "b"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := Options{Comma: ';', LazyQuotes: true, EmptyAsMissing: true, Encoding: "ISO-8859-2", Scrub: []Scrub{{From: "a", To: "b"}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range []config.Options{
		{"scrub": "nope"},
		{"scrub": []any{"nope"}},
		{"scrub": []any{map[string]any{"to": "x"}}},
		{"encoding": "klingon"},
	} {
		if _, err := OptionsFrom(bad); err == nil {
			t.Errorf("OptionsFrom(%v): expected error", bad)
		}
	}
}
