package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dr3s/csv-wrangler/internal/ddl"
	"github.com/dr3s/csv-wrangler/internal/metrics"
	"github.com/dr3s/csv-wrangler/internal/pipeline"
	"github.com/dr3s/csv-wrangler/internal/record"
	"github.com/dr3s/csv-wrangler/internal/storage"
)

// TableConfig configures a Table sink.
type TableConfig struct {
	Job string
	// Columns are the output columns in insert order, normally the mapping
	// names.
	Columns []string
	// Types gives each column's logical type. Unlisted columns are text.
	Types map[string]ddl.Type
	// BatchSize is the number of records per CopyFrom. Default 1000.
	BatchSize int
	// DateAsText stores dates as "YYYY-MM-DD" strings (SQLite).
	DateAsText bool
	Logger     *slog.Logger
}

// Table loads records into a database table in batches through a
// storage.Repository. Only whole batches are sent; Flush sends the rest.
type Table struct {
	repo  storage.Repository
	cfg   TableConfig
	batch [][]any

	total     int64
	batches   int64
	start     time.Time
	lastFlush time.Time
}

// NewTable returns a Table sink writing through repo. The sink owns repo
// and closes it.
func NewTable(repo storage.Repository, cfg TableConfig) *Table {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	now := time.Now()
	return &Table{
		repo:      repo,
		cfg:       cfg,
		batch:     make([][]any, 0, cfg.BatchSize),
		start:     now,
		lastFlush: now,
	}
}

// Write coerces rec to the column types and queues it. A value that does
// not fit its column rejects only this record, as a *pipeline.RecordError.
func (t *Table) Write(ctx context.Context, rec *record.Record) error {
	vals := rec.Values(t.cfg.Columns)
	for i, v := range vals {
		cv, err := coerce(v, t.cfg.Types[t.cfg.Columns[i]], t.cfg.DateAsText)
		if err != nil {
			return &pipeline.RecordError{Field: t.cfg.Columns[i], Err: err}
		}
		vals[i] = cv
	}
	t.batch = append(t.batch, vals)
	if len(t.batch) >= t.cfg.BatchSize {
		return t.flush(ctx)
	}
	return nil
}

// Flush sends the pending partial batch.
func (t *Table) Flush(ctx context.Context) error {
	if err := t.flush(ctx); err != nil {
		return err
	}
	t.cfg.Logger.Info("table: loaded", "rows", t.total, "batches", t.batches,
		"elapsed", time.Since(t.start).Truncate(time.Millisecond))
	return nil
}

// Close releases the repository. Rows still pending are dropped.
func (t *Table) Close() error {
	t.repo.Close()
	return nil
}

func (t *Table) flush(ctx context.Context) error {
	if len(t.batch) == 0 {
		return nil
	}
	n, err := t.repo.CopyFrom(ctx, t.cfg.Columns, t.batch)
	t.batch = t.batch[:0]
	if err != nil {
		t.cfg.Logger.Error("table: copy failed", "batch", t.batches+1, "inserted", n, "total", t.total, "err", err)
		return fmt.Errorf("copy batch %d: %w", t.batches+1, err)
	}
	t.total += n
	t.batches++
	metrics.RecordBatches(t.cfg.Job, 1)

	now := time.Now()
	since := now.Sub(t.lastFlush)
	rps := 0.0
	if since > 0 {
		rps = float64(n) / since.Seconds()
	}
	t.cfg.Logger.Debug("table: batch",
		"n", t.batches,
		"rps", int64(rps),
		"inserted", n,
		"total", t.total,
		"since_last", since.Truncate(time.Millisecond))
	t.lastFlush = now
	return nil
}
