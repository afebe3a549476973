package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dr3s/csv-wrangler/internal/config"
	"github.com/dr3s/csv-wrangler/internal/logging"
	csvparser "github.com/dr3s/csv-wrangler/internal/parser/csv"
	"github.com/dr3s/csv-wrangler/internal/pipeline"
	"github.com/dr3s/csv-wrangler/internal/sink"
	"github.com/dr3s/csv-wrangler/internal/skiplog"
	"github.com/dr3s/csv-wrangler/internal/transformer"
)

func newRunCmd(g *globalFlags) *cobra.Command {
	var o overrides
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a pipeline",
		Long: "Execute a pipeline. Skipped rows do not change the exit status; only an\n" +
			"invalid configuration or a fatal read/write error does.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadPipeline(g, o)
			if err != nil {
				return err
			}
			_, err = runPipeline(cmd.Context(), g, p, cmd.OutOrStdout())
			return err
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.input, "input", "i", "", `CSV input: a path, "-" for stdin, or an http(s) URL`)
	f.StringVarP(&o.output, "output", "o", "", `NDJSON output path ("-" for stdout); selects the ndjson sink`)
	f.StringVar(&o.skipLog, "skip-log", "", "write skipped rows to this CSV file")
	f.IntVarP(&o.workers, "workers", "w", 0, "transform workers (default GOMAXPROCS)")
	f.Int64Var(&o.limit, "limit", 0, "stop after this many records (0 = no limit)")
	return cmd
}

// runPipeline validates p and executes it once.
func runPipeline(ctx context.Context, g *globalFlags, p config.Pipeline, stdout io.Writer) (pipeline.Summary, error) {
	runID := uuid.NewString()
	log := logging.New("run").With("job", p.Job, "run_id", runID)

	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		if iss.Severity == config.SeverityError {
			log.Error("config", "path", iss.Path, "msg", iss.Message)
		} else {
			log.Warn("config", "path", iss.Path, "msg", iss.Message)
		}
	}
	if config.HasErrors(issues) {
		return pipeline.Summary{}, errInvalidConfig
	}

	parserOpts, err := csvparser.OptionsFrom(p.Parser.Options)
	if err != nil {
		return pipeline.Summary{}, fmt.Errorf("parser options: %w", err)
	}
	parserOpts.Logger = logging.New("reader").With("run_id", runID)

	flushMetrics := setupMetrics(g, p.Job, log)
	defer flushMetrics()

	t := transformer.New(p.Mappings)

	out, err := newSink(ctx, p, t.Names(), stdout, logging.New("sink").With("run_id", runID))
	if err != nil {
		return pipeline.Summary{}, err
	}
	out = sink.NewLimit(out, p.Runtime.Limit)

	src, err := newSourceFn(p.Source)
	if err != nil {
		out.Close()
		return pipeline.Summary{}, err
	}
	rc, err := src.Open(ctx)
	if err != nil {
		out.Close()
		return pipeline.Summary{}, err
	}
	stream := csvparser.NewStream(rc, parserOpts)

	opt := pipeline.Options{
		Job:     p.Job,
		Workers: p.Runtime.TransformWorkers,
		Buffer:  p.Runtime.ChannelBuffer,
		Logger:  logging.New("pipeline").With("run_id", runID),
	}
	var skips *skiplog.Log
	if p.SkipLog.Path != "" {
		if skips, err = skiplog.Create(p.SkipLog.Path, runID); err != nil {
			stream.Close()
			out.Close()
			return pipeline.Summary{}, err
		}
		opt.Skips = skips
	}

	log.Info("run: start", "source", p.Source.Kind, "sink", p.Sink.Kind, "mappings", len(p.Mappings))
	sum, err := pipeline.Run(ctx, stream, t, out, opt)
	if skips != nil {
		if cerr := skips.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("skip log: %w", cerr))
		}
		log.Info("run: skip log written", "path", p.SkipLog.Path, "counts", skipCounts(skips))
	}
	return sum, err
}

func skipCounts(l *skiplog.Log) slog.Value {
	counts := l.Counts()
	var attrs []slog.Attr
	for _, k := range slices.Sorted(maps.Keys(counts)) {
		attrs = append(attrs, slog.Int64(string(k), counts[k]))
	}
	return slog.GroupValue(attrs...)
}
