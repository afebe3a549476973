// csv-wrangler streams CSV rows through a set of formula mappings and writes
// the resulting records as NDJSON or into a database table. Rows that cannot
// be parsed or transformed are skipped, counted and optionally written to a
// skip log; they never stop the run.
//
// Usage:
//
//	csv-wrangler run --mappings mappings.yaml --input orders.csv --output orders.ndjson
//	csv-wrangler run --config pipeline.yaml --skip-log skipped.csv
//	csv-wrangler validate --config pipeline.yaml
//	csv-wrangler probe --input orders.csv --sink postgres > pipeline.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	// register all backends with the storage factory.
	_ "github.com/dr3s/csv-wrangler/internal/storage/all"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
