package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dr3s/csv-wrangler/internal/ddl"
	"github.com/dr3s/csv-wrangler/internal/storage"
)

func newMemDB(tb testing.TB) *sql.DB {
	tb.Helper()
	db, err := Open(":memory:")
	if err != nil {
		tb.Fatalf("open sqlite :memory:: %v", err)
	}
	tb.Cleanup(func() { _ = db.Close() })
	return db
}

func mustExec(tb testing.TB, r *Repository, stmt string) {
	tb.Helper()
	if err := r.Exec(context.Background(), stmt); err != nil {
		tb.Fatalf("exec %q: %v", stmt, err)
	}
}

type orderRow struct {
	ID      int64
	Product string
	Count   sql.NullFloat64
}

func readOrders(t *testing.T, db *sql.DB) []orderRow {
	t.Helper()
	rows, err := db.Query(`SELECT "Order ID", "Product", "Count" FROM orders ORDER BY "Order ID"`)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	var out []orderRow
	for rows.Next() {
		var o orderRow
		if err := rows.Scan(&o.ID, &o.Product, &o.Count); err != nil {
			t.Fatal(err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestCopyFrom(t *testing.T) {
	t.Parallel()

	db := newMemDB(t)
	r := New(db, "orders")
	ctx := context.Background()

	td := ddl.TableDef{FQN: "orders", Columns: []ddl.ColumnDef{
		{Name: "Order ID", Type: ddl.Int, Nullable: true},
		{Name: "Product", Type: ddl.Text, Nullable: true},
		{Name: "Count", Type: ddl.Float, Nullable: true},
	}}
	stmt, err := ddl.BuildCreateTableSQL(td, Dialect)
	if err != nil {
		t.Fatal(err)
	}
	mustExec(t, r, stmt)
	mustExec(t, r, stmt) // IF NOT EXISTS

	cols := []string{"Order ID", "Product", "Count"}
	n, err := r.CopyFrom(ctx, cols, [][]any{
		{int64(1000), "Iceberg Lettuce", 5250.5},
		{int64(1001), "Kale", nil},
	})
	if err != nil || n != 2 {
		t.Fatalf("CopyFrom = %d, %v", n, err)
	}
	if n, err := r.CopyFrom(ctx, cols, nil); err != nil || n != 0 {
		t.Fatalf("empty CopyFrom = %d, %v", n, err)
	}

	want := []orderRow{
		{ID: 1000, Product: "Iceberg Lettuce", Count: sql.NullFloat64{Float64: 5250.5, Valid: true}},
		{ID: 1001, Product: "Kale"},
	}
	if diff := cmp.Diff(want, readOrders(t, db)); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestCopyFrom_AllOrNothing(t *testing.T) {
	t.Parallel()

	db := newMemDB(t)
	r := New(db, "orders")
	mustExec(t, r, `CREATE TABLE orders ("Order ID" INTEGER NOT NULL, "Product" TEXT, "Count" REAL)`)

	_, err := r.CopyFrom(context.Background(), []string{"Order ID", "Product", "Count"}, [][]any{
		{int64(1), "a", 1.0},
		{nil, "b", 2.0}, // violates NOT NULL
	})
	if err == nil || !strings.Contains(err.Error(), "insert row 1") {
		t.Fatalf("err = %v, want insert row 1 failure", err)
	}
	if got := readOrders(t, db); len(got) != 0 {
		t.Fatalf("rows after rollback = %v", got)
	}

	if _, err := r.CopyFrom(context.Background(), []string{"Order ID", "Product", "Count"}, [][]any{{int64(1)}}); err == nil {
		t.Fatal("expected width error")
	}
	if _, err := r.CopyFrom(context.Background(), nil, [][]any{{1}}); err == nil {
		t.Fatal("expected error for no columns")
	}
}

func TestCopyFrom_Canceled(t *testing.T) {
	t.Parallel()

	db := newMemDB(t)
	r := New(db, "t")
	mustExec(t, r, `CREATE TABLE t (a INTEGER)`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.CopyFrom(ctx, []string{"a"}, [][]any{{int64(1)}}); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestFactory_FileDatabase(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dsn := filepath.Join(t.TempDir(), "out.db")
	repo, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: dsn, Table: "orders"})
	if err != nil {
		t.Fatal(err)
	}
	td, _ := ddl.FromColumns("orders", []string{"Order ID", "Product", "Count"}, map[string]string{"Order ID": "int", "Count": "float"})
	if err := storage.EnsureTable(ctx, "sqlite", repo, td); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CopyFrom(ctx, []string{"Order ID", "Product", "Count"}, [][]any{{int64(7), "Kale", 1.5}}); err != nil {
		t.Fatal(err)
	}
	repo.Close()

	db, err := Open(dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	want := []orderRow{{ID: 7, Product: "Kale", Count: sql.NullFloat64{Float64: 1.5, Valid: true}}}
	if diff := cmp.Diff(want, readOrders(t, db)); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	if _, err := storage.New(ctx, storage.Config{Kind: "sqlite", Table: "orders"}); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
