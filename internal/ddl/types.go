package ddl

import (
	"fmt"
	"strings"
)

// Type is the logical column type a mapping output is stored as. Backends
// translate it to their own SQL type through a Dialect.
type Type string

const (
	Text  Type = "text"
	Int   Type = "int"
	Float Type = "float"
	Bool  Type = "bool"
	Date  Type = "date"
)

// ParseType accepts the logical type names used in pipeline files. Empty
// means Text.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return Text, nil
	case Text, Int, Float, Bool, Date:
		return t, nil
	case "integer", "bigint":
		return Int, nil
	case "double", "real", "number":
		return Float, nil
	case "boolean":
		return Bool, nil
	default:
		return "", fmt.Errorf("ddl: unknown column type %q (want text|int|float|bool|date)", s)
	}
}

// ColumnDef describes a single column in a table definition.
//
// Fields:
//   - Name: column name (unquoted; quoting happens at render time)
//   - Type: logical type
//   - Nullable: whether NULL is allowed
type ColumnDef struct {
	Name     string
	Type     Type
	Nullable bool
}

// TableDef holds the table name in dotted form ("schema.table") and an
// ordered list of columns.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}

// FromColumns builds a table definition for the given output columns. types
// maps column name to a logical type name; unlisted columns are text. Every
// column is nullable because a mapping may yield the missing marker.
func FromColumns(fqn string, columns []string, types map[string]string) (TableDef, error) {
	td := TableDef{FQN: fqn, Columns: make([]ColumnDef, 0, len(columns))}
	known := make(map[string]bool, len(columns))
	for _, c := range columns {
		known[c] = true
		t, err := ParseType(types[c])
		if err != nil {
			return TableDef{}, fmt.Errorf("column %q: %w", c, err)
		}
		td.Columns = append(td.Columns, ColumnDef{Name: c, Type: t, Nullable: true})
	}
	for c := range types {
		if !known[c] {
			return TableDef{}, fmt.Errorf("column_types: %q is not an output column", c)
		}
	}
	return td, nil
}

// Types returns the logical type of every column, keyed by name.
func (t TableDef) Types() map[string]Type {
	m := make(map[string]Type, len(t.Columns))
	for _, c := range t.Columns {
		m[c.Name] = c.Type
	}
	return m
}
