package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dr3s/csv-wrangler/internal/config"
	"github.com/dr3s/csv-wrangler/internal/logging"
	csvparser "github.com/dr3s/csv-wrangler/internal/parser/csv"
	"github.com/dr3s/csv-wrangler/internal/probe"
)

func newProbeCmd(g *globalFlags) *cobra.Command {
	var (
		input string
		rows  int
		sink  string
		dsn   string
		table string
	)
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Sample a CSV input and print a draft pipeline with one mapping per column",
		Long: "Sample the first rows of a CSV input, infer a type per column and print a\n" +
			"draft pipeline (YAML) to edit and then pass to \"run --config\".",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadPipeline(g, overrides{input: input})
			if err != nil {
				return err
			}
			if sink != "" {
				p.Sink = config.Sink{Kind: sink, DB: config.DBConfig{DSN: dsn, Table: table}}
			}
			parserOpts, err := csvparser.OptionsFrom(p.Parser.Options)
			if err != nil {
				return fmt.Errorf("parser options: %w", err)
			}
			src, err := newSourceFn(p.Source)
			if err != nil {
				return err
			}
			rc, err := src.Open(cmd.Context())
			if err != nil {
				return err
			}
			res, err := probe.Sample(cmd.Context(), rc, probe.Options{Rows: rows, Parser: parserOpts})
			if err != nil {
				return err
			}

			log := logging.New("probe")
			log.Info("probe: sampled", "rows", res.Rows, "defects", res.Defects, "columns", len(res.Columns))
			for _, c := range res.Columns {
				log.Debug("probe: column", "column", c.String())
			}

			draft := res.Draft(p)
			draft.Runtime = config.RuntimeConfig{}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(draft); err != nil {
				return fmt.Errorf("encode draft: %w", err)
			}
			return enc.Close()
		},
	}

	f := cmd.Flags()
	f.StringVarP(&input, "input", "i", "", `CSV input: a path, "-" for stdin, or an http(s) URL`)
	f.IntVar(&rows, "rows", probe.DefaultRows, "data rows to sample")
	f.StringVar(&sink, "sink", "", "sink kind for the draft (ndjson|postgres|sqlite|mssql|mysql)")
	f.StringVar(&dsn, "dsn", "", "database DSN for the draft")
	f.StringVar(&table, "table", "", "table name for the draft (default: normalized job)")
	return cmd
}
