package skiplog

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dr3s/csv-wrangler/internal/field"
	"github.com/dr3s/csv-wrangler/internal/pipeline"
)

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestCreate_WritesHeaderAndRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rejects", "orders.csv")
	l, err := Create(path, "run-1")
	if err != nil {
		t.Fatal(err)
	}

	row := field.FromPairs("Order Number", "1000.0", "Count", "five, maybe")
	row.Line = 3
	ctx := context.Background()
	events := []pipeline.Skip{
		{Kind: pipeline.KindNotANumber, Line: 3, Row: row, Err: errors.New(`line 3: mapping "Count": not a number`)},
		{Kind: pipeline.KindParseDefect, Line: 7, Err: errors.New(`parse defect at line 7: bare " in non-quoted field`)},
		{Kind: pipeline.KindNotANumber, Line: 9, Row: row, Err: errors.New("again")},
	}
	for _, e := range events {
		if err := l.Skip(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	fp := Fingerprint(row)
	want := [][]string{
		Header,
		{"run-1", "not_a_number", "3", `line 3: mapping "Count": not a number`, fp, `{"Order Number":"1000.0","Count":"five, maybe"}`},
		{"run-1", "parse_defect", "7", `parse defect at line 7: bare " in non-quoted field`, "", ""},
		{"run-1", "not_a_number", "9", "again", fp, `{"Order Number":"1000.0","Count":"five, maybe"}`},
	}
	if diff := cmp.Diff(want, readAll(t, path)); diff != "" {
		t.Errorf("skip log mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[pipeline.Kind]int64{pipeline.KindNotANumber: 2, pipeline.KindParseDefect: 1}, l.Counts()); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	a := Fingerprint(field.FromPairs("x", "1", "y", "2"))
	if len(a) != 16 {
		t.Fatalf("fingerprint %q is not 16 hex digits", a)
	}
	if b := Fingerprint(field.FromPairs("p", "1", "q", "2")); a != b {
		t.Errorf("same values under other names: %s != %s", a, b)
	}
	if c := Fingerprint(field.FromPairs("x", "12", "y", "")); a == c {
		t.Errorf("values must not run together: %s == %s", a, c)
	}
}

func TestCreate_Error(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Create(filepath.Join(blocker, "skips.csv"), "r")
	if err == nil || !strings.Contains(err.Error(), "skiplog") {
		t.Fatalf("err = %v, want skiplog error", err)
	}
}
