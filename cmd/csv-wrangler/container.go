// This file wires configuration to concrete sources, sinks and metrics
// backends. The CLI depends only on the storage factory and never imports a
// database driver directly.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dr3s/csv-wrangler/internal/config"
	"github.com/dr3s/csv-wrangler/internal/datasource"
	"github.com/dr3s/csv-wrangler/internal/datasource/file"
	"github.com/dr3s/csv-wrangler/internal/datasource/httpds"
	"github.com/dr3s/csv-wrangler/internal/ddl"
	"github.com/dr3s/csv-wrangler/internal/metrics"
	"github.com/dr3s/csv-wrangler/internal/metrics/datadog"
	"github.com/dr3s/csv-wrangler/internal/metrics/prompush"
	"github.com/dr3s/csv-wrangler/internal/pipeline"
	"github.com/dr3s/csv-wrangler/internal/sink"
	"github.com/dr3s/csv-wrangler/internal/storage"
)

// Function variables used as test seams.
var (
	newRepositoryFn = storage.New
	newSourceFn     = newSource
)

func newSource(s config.Source) (datasource.Source, error) {
	switch s.Kind {
	case "file":
		return file.NewLocal(s.File.Path), nil
	case "http":
		cfg := httpds.Config{
			URL:                s.HTTP.URL,
			MaxRetries:         s.HTTP.MaxRetries,
			InsecureSkipVerify: s.HTTP.InsecureSkipVerify,
		}
		if s.HTTP.Timeout != "" {
			d, err := time.ParseDuration(s.HTTP.Timeout)
			if err != nil {
				return nil, fmt.Errorf("source.http.timeout: %w", err)
			}
			cfg.Timeout = d
		}
		if len(s.HTTP.Headers) > 0 {
			cfg.Headers = make(http.Header, len(s.HTTP.Headers))
			for k, v := range s.HTTP.Headers {
				cfg.Headers.Set(k, v)
			}
		}
		return httpds.New(cfg)
	default:
		return nil, fmt.Errorf("unknown source kind %q", s.Kind)
	}
}

// newSink opens the configured sink. columns are the output field names in
// record order. stdout receives NDJSON when no output file is set.
func newSink(ctx context.Context, p config.Pipeline, columns []string, stdout io.Writer, log *slog.Logger) (pipeline.Sink, error) {
	if p.Sink.Kind == "ndjson" {
		path := p.Sink.NDJSON.Path
		if path == "" || path == sink.Stdout {
			return sink.NewNDJSON(stdout), nil
		}
		return sink.CreateNDJSON(path)
	}
	if !config.IsDB(p.Sink.Kind) {
		return nil, fmt.Errorf("unknown sink kind %q", p.Sink.Kind)
	}

	db := p.Sink.DB
	td, err := ddl.FromColumns(db.Table, columns, db.ColumnTypes)
	if err != nil {
		return nil, err
	}
	log.Info("sink: connecting", "kind", p.Sink.Kind, "table", db.Table, "columns", len(columns))
	repo, err := newRepositoryFn(ctx, storage.Config{
		Kind:    p.Sink.Kind,
		DSN:     db.DSN,
		Table:   db.Table,
		Columns: columns,
	})
	if err != nil {
		return nil, err
	}
	if db.AutoCreateTable {
		if err := storage.EnsureTable(ctx, p.Sink.Kind, repo, td); err != nil {
			repo.Close()
			return nil, err
		}
	}
	return sink.NewTable(repo, sink.TableConfig{
		Job:        p.Job,
		Columns:    columns,
		Types:      td.Types(),
		BatchSize:  p.Runtime.BatchSize,
		DateAsText: p.Sink.Kind == "sqlite",
		Logger:     log,
	}), nil
}

// setupMetrics installs the selected backend and returns a func that flushes
// it. Backend failures are logged and leave metrics disabled.
func setupMetrics(g *globalFlags, job string, log *slog.Logger) func() {
	var b metrics.Backend
	switch g.metricsBackend {
	case "pushgateway":
		pb, err := prompush.NewBackend(job, g.pushgatewayURL)
		if err != nil {
			log.Warn("metrics: pushgateway backend unavailable; metrics disabled", "err", err)
			return func() {}
		}
		log.Debug("metrics: pushgateway", "url", g.pushgatewayURL, "job", job)
		b = pb
	case "datadog":
		db, err := datadog.NewBackend(datadog.Config{
			Addr:      g.dogstatsdAddr,
			Namespace: "csvw.",
			Tags:      []string{"job:" + job},
		})
		if err != nil {
			log.Warn("metrics: datadog backend unavailable; metrics disabled", "err", err)
			return func() {}
		}
		log.Debug("metrics: datadog", "addr", g.dogstatsdAddr)
		b = db
	case "", "none":
		return func() {}
	default:
		log.Warn("metrics: unknown backend; metrics disabled", "backend", g.metricsBackend)
		return func() {}
	}

	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Warn("metrics: flush failed", "err", err)
		}
	}
}
