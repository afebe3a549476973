// Package all enables every built-in storage backend. Import it for side
// effects only:
//
//	import _ "github.com/dr3s/csv-wrangler/internal/storage/all"
//
// Kinds registered: "postgres", "sqlite", "mssql", "mysql".
package all

import (
	_ "github.com/dr3s/csv-wrangler/internal/storage/mssql"
	_ "github.com/dr3s/csv-wrangler/internal/storage/mysql"
	_ "github.com/dr3s/csv-wrangler/internal/storage/postgres"
	_ "github.com/dr3s/csv-wrangler/internal/storage/sqlite"
)
