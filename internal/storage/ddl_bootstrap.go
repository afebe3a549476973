package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/dr3s/csv-wrangler/internal/ddl"
)

var (
	ddlMu    sync.RWMutex
	dialects = map[string]ddl.Dialect{}
)

// RegisterDDL registers (or replaces) the CREATE TABLE dialect for kind. It
// is called from backend packages' init functions.
func RegisterDDL(kind string, d ddl.Dialect) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	dialects[kind] = d
}

// DialectFor returns the dialect registered for kind.
func DialectFor(kind string) (ddl.Dialect, bool) {
	ddlMu.RLock()
	defer ddlMu.RUnlock()
	d, ok := dialects[kind]
	return d, ok
}

// EnsureTable renders td with the dialect registered for kind and applies it
// through repo.Exec.
func EnsureTable(ctx context.Context, kind string, repo Repository, td ddl.TableDef) error {
	d, ok := DialectFor(kind)
	if !ok {
		return fmt.Errorf("no DDL dialect registered for kind %q", kind)
	}
	stmt, err := ddl.BuildCreateTableSQL(td, d)
	if err != nil {
		return fmt.Errorf("build DDL: %w", err)
	}
	if err := repo.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("apply DDL: %w", err)
	}
	return nil
}
