// Package config defines the pipeline file: where input comes from, how it
// is parsed, which mappings are applied, and where records and skipped rows
// go. Files are JSON or YAML, picked by extension.
//
// Example (YAML):
//
//	job: orders
//	source:   { kind: file, file: { path: orders.csv } }
//	parser:   { kind: csv, options: { comma: ",", trim_space: true } }
//	mappings:
//	  - { name: OrderID, formula: "integer('Order Number')" }
//	sink:     { kind: ndjson, ndjson: { path: orders.ndjson } }
//	skip_log: { path: skipped.csv }
//	runtime:  { transform_workers: 4, channel_buffer: 1024 }
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/dr3s/csv-wrangler/internal/mapping"
)

// Environment variables that override the runtime section.
const (
	EnvTransformWorkers = "CSVW_TRANSFORM_WORKERS"
	EnvChannelBuffer    = "CSVW_CH_BUFFER"
	EnvBatchSize        = "CSVW_BATCH_SIZE"
)

// Pipeline is the top-level object decoded from a pipeline file.
type Pipeline struct {
	// Job names the run in logs and metrics.
	Job string `json:"job" yaml:"job"`

	Source Source `json:"source" yaml:"source,omitempty"`
	Parser Parser `json:"parser" yaml:"parser,omitempty"`

	// Mappings are applied in order to every row. MappingsFile names a
	// separate mapping file instead, relative to the pipeline file.
	Mappings     mapping.Set `json:"mappings" yaml:"mappings,omitempty"`
	MappingsFile string      `json:"mappings_file" yaml:"mappings_file,omitempty"`

	Sink    Sink          `json:"sink" yaml:"sink,omitempty"`
	SkipLog SkipLog       `json:"skip_log" yaml:"skip_log,omitempty"`
	Runtime RuntimeConfig `json:"runtime" yaml:"runtime,omitempty"`
}

// RuntimeConfig controls concurrency, batching, and channel buffer sizes.
type RuntimeConfig struct {
	TransformWorkers int   `json:"transform_workers" yaml:"transform_workers,omitempty"`
	ChannelBuffer    int   `json:"channel_buffer" yaml:"channel_buffer,omitempty"`
	BatchSize        int   `json:"batch_size" yaml:"batch_size,omitempty"`
	Limit            int64 `json:"limit" yaml:"limit,omitempty"` // 0 = no limit
}

// Source identifies the data source: "file" or "http".
type Source struct {
	Kind string     `json:"kind" yaml:"kind"`
	File SourceFile `json:"file" yaml:"file,omitempty"`
	HTTP SourceHTTP `json:"http" yaml:"http,omitempty"`
}

// SourceFile holds configuration for the "file" source kind.
type SourceFile struct {
	// Path is a local path; "-" reads standard input.
	Path string `json:"path" yaml:"path,omitempty"`
}

// SourceHTTP holds configuration for the "http" source kind.
type SourceHTTP struct {
	URL                string            `json:"url" yaml:"url,omitempty"`
	Timeout            string            `json:"timeout" yaml:"timeout,omitempty"` // Go duration, e.g. "30s"
	MaxRetries         int               `json:"max_retries" yaml:"max_retries,omitempty"`
	InsecureSkipVerify bool              `json:"insecure_skip_verify" yaml:"insecure_skip_verify,omitempty"`
	Headers            map[string]string `json:"headers" yaml:"headers,omitempty"`
}

// Parser selects how raw bytes become rows. Only "csv" exists.
type Parser struct {
	Kind string `json:"kind" yaml:"kind"`

	// Options is interpreted by the parser. For CSV: comma, lazy_quotes,
	// trim_space, empty_as_missing, allow_ragged, encoding, scrub.
	Options Options `json:"options" yaml:"options,omitempty"`
}

// Sink selects where records go: "ndjson" or a database kind
// ("postgres", "sqlite", "mssql", "mysql").
type Sink struct {
	Kind   string     `json:"kind" yaml:"kind"`
	NDJSON SinkNDJSON `json:"ndjson" yaml:"ndjson,omitempty"`
	DB     DBConfig   `json:"db" yaml:"db,omitempty"`
}

// SinkNDJSON holds configuration for the "ndjson" sink kind.
type SinkNDJSON struct {
	// Path is the output file; "-" or empty writes standard output.
	Path string `json:"path" yaml:"path,omitempty"`
}

// DBConfig configures a database sink. The table's columns are the mapping
// names, in mapping order.
type DBConfig struct {
	DSN   string `json:"dsn" yaml:"dsn,omitempty"`
	Table string `json:"table" yaml:"table,omitempty"`

	// ColumnTypes gives a logical type (text|int|float|bool|date) per
	// output column. Unlisted columns are text.
	ColumnTypes map[string]string `json:"column_types" yaml:"column_types,omitempty"`

	// AutoCreateTable creates the table before loading if it is missing.
	AutoCreateTable bool `json:"auto_create_table" yaml:"auto_create_table,omitempty"`
}

// SkipLog configures the reject file. An empty path disables it.
type SkipLog struct {
	Path string `json:"path" yaml:"path,omitempty"`
}

// IsDB reports whether kind is a database sink kind.
func IsDB(kind string) bool {
	switch kind {
	case "postgres", "sqlite", "mssql", "mysql":
		return true
	}
	return false
}

// Load reads a pipeline file and resolves mappings_file relative to it. It
// does not apply defaults or environment overrides.
func Load(path string) (Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("open pipeline: %w", err)
	}
	defer f.Close()

	p, err := Decode(f, mapping.FormatOf(path))
	if err != nil {
		return Pipeline{}, fmt.Errorf("%s: %w", path, err)
	}
	if p.MappingsFile != "" && len(p.Mappings) == 0 {
		mf := p.MappingsFile
		if !filepath.IsAbs(mf) {
			mf = filepath.Join(filepath.Dir(path), mf)
		}
		if p.Mappings, err = mapping.Load(mf); err != nil {
			return Pipeline{}, err
		}
	}
	return p, nil
}

// Decode reads one pipeline document. Unknown fields are rejected.
func Decode(r io.Reader, format mapping.Format) (Pipeline, error) {
	var p Pipeline
	switch format {
	case mapping.FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
			return Pipeline{}, fmt.Errorf("decode yaml pipeline: %w", err)
		}
	case mapping.FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return Pipeline{}, fmt.Errorf("decode json pipeline: %w", err)
		}
	default:
		return Pipeline{}, fmt.Errorf("unknown pipeline format %q", format)
	}
	if p.Parser.Options == nil {
		p.Parser.Options = Options{}
	}
	return p, nil
}

// ApplyEnv overrides runtime knobs from CSVW_* environment variables.
func (p *Pipeline) ApplyEnv() {
	r := &p.Runtime
	r.TransformWorkers = pickInt(getenvInt(EnvTransformWorkers, 0), r.TransformWorkers)
	r.ChannelBuffer = pickInt(getenvInt(EnvChannelBuffer, 0), r.ChannelBuffer)
	r.BatchSize = pickInt(getenvInt(EnvBatchSize, 0), r.BatchSize)
}

// ApplyDefaults fills unset fields.
func (p *Pipeline) ApplyDefaults() {
	if p.Job == "" {
		p.Job = "csv-wrangler"
	}
	if p.Source.Kind == "" {
		p.Source.Kind = "file"
	}
	if p.Parser.Kind == "" {
		p.Parser.Kind = "csv"
	}
	if p.Parser.Options == nil {
		p.Parser.Options = Options{}
	}
	if p.Sink.Kind == "" {
		p.Sink.Kind = "ndjson"
	}
	r := &p.Runtime
	r.TransformWorkers = pickInt(r.TransformWorkers, runtime.GOMAXPROCS(0))
	r.ChannelBuffer = pickInt(r.ChannelBuffer, 256)
	r.BatchSize = pickInt(r.BatchSize, 1000)
}

// getenvInt reads an int from environment, returning def when unset/invalid.
func getenvInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

// pickInt chooses the first positive value 'a', otherwise returns 'b'.
func pickInt(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}
