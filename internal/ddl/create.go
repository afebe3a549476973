// Package ddl defines a small, backend-agnostic model for the output table
// and renders CREATE TABLE statements for it through a per-backend Dialect.
package ddl

import (
	"fmt"
	"strings"
)

// Dialect carries what differs between SQL backends when creating a table.
type Dialect struct {
	// Quote quotes one identifier segment.
	Quote func(string) string
	// Types maps each logical type to the backend's SQL type.
	Types map[Type]string
	// Create renders the final statement from the quoted table name and the
	// column definitions. Nil means "CREATE TABLE IF NOT EXISTS".
	Create func(fqn, quotedFQN, body string) string
}

// QuoteFQN quotes every non-empty segment of a dotted name.
func (d Dialect) QuoteFQN(name string) string {
	parts := strings.Split(name, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, d.Quote(p))
	}
	return strings.Join(out, ".")
}

// BuildCreateTableSQL renders a deterministic CREATE TABLE statement.
//
// Rules:
//   - t.FQN must be non-empty.
//   - Each column must have a non-empty Name and a Type the dialect knows.
//   - A column is rendered as: <quoted name> <SQL type> [NOT NULL]
func BuildCreateTableSQL(t TableDef, d Dialect) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: at least one column is required")
	}

	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", fqn)
		}
		typ, ok := d.Types[c.Type]
		if !ok {
			return "", fmt.Errorf("ddl: column %s: no SQL type for %q", name, c.Type)
		}

		var sb strings.Builder
		sb.WriteString(d.Quote(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}
		cols = append(cols, sb.String())
	}

	body := "(\n  " + strings.Join(cols, ",\n  ") + "\n)"
	if d.Create != nil {
		return d.Create(fqn, d.QuoteFQN(fqn), body), nil
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s %s;", d.QuoteFQN(fqn), body), nil
}
