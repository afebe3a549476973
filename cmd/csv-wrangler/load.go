package main

import (
	"strings"

	"github.com/dr3s/csv-wrangler/internal/config"
	"github.com/dr3s/csv-wrangler/internal/datasource/file"
	"github.com/dr3s/csv-wrangler/internal/mapping"
)

// overrides are per-run flags that take precedence over the pipeline file.
type overrides struct {
	input   string
	output  string
	skipLog string
	workers int
	limit   int64
}

// loadPipeline builds the effective pipeline: file values, then CSVW_*
// environment overrides, then flags, then defaults.
func loadPipeline(g *globalFlags, o overrides) (config.Pipeline, error) {
	var p config.Pipeline
	if g.configPath != "" {
		var err error
		if p, err = config.Load(g.configPath); err != nil {
			return config.Pipeline{}, err
		}
	}
	if g.mappingsPath != "" {
		set, err := mapping.Load(g.mappingsPath)
		if err != nil {
			return config.Pipeline{}, err
		}
		p.Mappings = set
	}

	p.ApplyEnv()

	switch {
	case o.input == "":
	case strings.HasPrefix(o.input, "http://"), strings.HasPrefix(o.input, "https://"):
		p.Source.Kind = "http"
		p.Source.HTTP.URL = o.input
	default:
		p.Source.Kind = "file"
		p.Source.File.Path = o.input
	}
	if o.output != "" {
		p.Sink.Kind = "ndjson"
		p.Sink.NDJSON.Path = o.output
	}
	if o.skipLog != "" {
		p.SkipLog.Path = o.skipLog
	}
	if o.workers > 0 {
		p.Runtime.TransformWorkers = o.workers
	}
	if o.limit > 0 {
		p.Runtime.Limit = o.limit
	}

	p.ApplyDefaults()
	if g.configPath == "" && p.Source.Kind == "file" && p.Source.File.Path == "" {
		p.Source.File.Path = file.Stdin
	}
	return p, nil
}
