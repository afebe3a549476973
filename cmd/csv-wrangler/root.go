package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dr3s/csv-wrangler/internal/logging"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	logLevel  string
	logFormat string

	configPath   string
	mappingsPath string

	metricsBackend string
	pushgatewayURL string
	dogstatsdAddr  string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "csv-wrangler",
		Short: "Stream CSV rows through formula mappings into NDJSON or a database",
		Long: "csv-wrangler reads CSV input row by row, evaluates one formula per output\n" +
			"field and writes each resulting record in input order. Rows that fail to\n" +
			"parse or transform are skipped and reported; they never stop the run.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, err := logging.ParseLevel(g.logLevel)
			if err != nil {
				return err
			}
			format, err := logging.ParseFormat(g.logFormat)
			if err != nil {
				return err
			}
			logging.Init(level, format, cmd.ErrOrStderr())
			return nil
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&g.logLevel, "log-level", "info", "log level (debug|info|warn|error)")
	f.StringVar(&g.logFormat, "log-format", "text", "log format (text|json)")
	f.StringVarP(&g.configPath, "config", "c", "", "pipeline file (JSON or YAML)")
	f.StringVarP(&g.mappingsPath, "mappings", "m", "", "mapping file (JSON or YAML); replaces the pipeline's mappings")
	f.StringVar(&g.metricsBackend, "metrics-backend", envOr("METRICS_BACKEND", "none"), "metrics backend (pushgateway|datadog|none)")
	f.StringVar(&g.pushgatewayURL, "pushgateway-url", envOr("PUSHGATEWAY_URL", "http://localhost:9091"), "Pushgateway base URL")
	f.StringVar(&g.dogstatsdAddr, "dogstatsd-addr", envOr("DD_DOGSTATSD_ADDR", "127.0.0.1:8125"), "DogStatsD address")

	root.AddCommand(newRunCmd(g))
	root.AddCommand(newValidateCmd(g))
	root.AddCommand(newProbeCmd(g))
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
