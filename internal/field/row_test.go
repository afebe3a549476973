package field

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewColumns_RejectsDuplicates(t *testing.T) {
	t.Parallel()

	if _, err := NewColumns([]string{"a", "b", "a"}); err == nil {
		t.Fatal("expected duplicate column error")
	}
}

func TestRow_OrderAndMap(t *testing.T) {
	t.Parallel()

	cols, err := NewColumns([]string{"z", "a", "m"})
	if err != nil {
		t.Fatal(err)
	}
	r := NewRow(cols, 3, []string{"1", "2"}, nil) // m absent

	if diff := cmp.Diff([]string{"1", "2"}, r.Values()); diff != "" {
		t.Errorf("Values mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]any{"z": "1", "a": "2"}, r.Map()); diff != "" {
		t.Errorf("Map mismatch (-want +got):\n%s", diff)
	}

	b, err := r.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(b), `{"z":"1","a":"2"}`; got != want {
		t.Errorf("MarshalJSON = %s, want %s", got, want)
	}
}

func TestRow_ZeroValue(t *testing.T) {
	t.Parallel()

	var r Row
	if !r.IsZero() {
		t.Fatal("zero Row must report IsZero")
	}
	if _, ok := r.Value("x"); ok {
		t.Fatal("zero Row has no values")
	}
	b, _ := r.MarshalJSON()
	if string(b) != "null" {
		t.Errorf("MarshalJSON(zero) = %s, want null", b)
	}
}

func TestNewRow_TruncatesExtraValues(t *testing.T) {
	t.Parallel()

	cols, _ := NewColumns([]string{"a"})
	r := NewRow(cols, 0, []string{"1", "2", "3"}, nil)
	if got := r.Values(); len(got) != 1 {
		t.Fatalf("Values = %v, want one value", got)
	}
}
