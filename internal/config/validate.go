package config

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/dr3s/csv-wrangler/internal/ddl"
	"github.com/dr3s/csv-wrangler/internal/formula"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "sink.db.table",
// "mappings[2].formula").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidatePipeline performs static checks over a decoded Pipeline, including
// compiling every mapping formula. It does not mutate p.
//
//	issues := config.ValidatePipeline(p)
//	for _, iss := range issues {
//	    fmt.Println(iss)
//	}
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, errIssue("job", "job must not be empty; it labels logs and metrics"))
	}
	issues = append(issues, validateSource(p.Source)...)
	issues = append(issues, validateParser(p.Parser)...)
	issues = append(issues, validateMappings(p)...)
	issues = append(issues, validateSink(p)...)
	issues = append(issues, validateRuntime(p.Runtime)...)
	return issues
}

func errIssue(path, msg string) Issue  { return Issue{SeverityError, path, msg} }
func warnIssue(path, msg string) Issue { return Issue{SeverityWarning, path, msg} }

func validateSource(s Source) []Issue {
	var issues []Issue
	switch s.Kind {
	case "file":
		if strings.TrimSpace(s.File.Path) == "" {
			issues = append(issues, errIssue("source.file.path", `file source requires a path ("-" for stdin)`))
		}
	case "http":
		if strings.TrimSpace(s.HTTP.URL) == "" {
			issues = append(issues, errIssue("source.http.url", "http source requires a url"))
		}
		if s.HTTP.Timeout != "" {
			if _, err := time.ParseDuration(s.HTTP.Timeout); err != nil {
				issues = append(issues, errIssue("source.http.timeout", fmt.Sprintf("invalid duration: %v", err)))
			}
		}
		if s.HTTP.MaxRetries < 0 {
			issues = append(issues, errIssue("source.http.max_retries", "max_retries must not be negative"))
		}
		if s.HTTP.InsecureSkipVerify {
			issues = append(issues, warnIssue("source.http.insecure_skip_verify", "TLS certificate verification is disabled"))
		}
	case "":
		issues = append(issues, errIssue("source.kind", "source.kind must not be empty"))
	default:
		issues = append(issues, errIssue("source.kind", fmt.Sprintf("unknown source kind %q (want file or http)", s.Kind)))
	}
	return issues
}

func validateParser(p Parser) []Issue {
	var issues []Issue
	if p.Kind != "csv" {
		return append(issues, errIssue("parser.kind", fmt.Sprintf("unknown parser kind %q (want csv)", p.Kind)))
	}
	if c, ok := p.Options["comma"]; ok {
		s, _ := c.(string)
		if utf8.RuneCountInString(s) != 1 || s == "\"" || s == "\n" || s == "\r" {
			issues = append(issues, errIssue("parser.options.comma", fmt.Sprintf("comma must be a single character other than quote or newline, got %v", c)))
		}
	}
	if enc := strings.TrimSpace(p.Options.String("encoding", "")); enc != "" {
		if _, err := htmlindex.Get(strings.ToLower(enc)); err != nil {
			issues = append(issues, errIssue("parser.options.encoding", fmt.Sprintf("unknown encoding %q", enc)))
		}
	}
	if raw := p.Options.Any("scrub"); raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return append(issues, errIssue("parser.options.scrub", "scrub must be a list of {from, to}"))
		}
		for i, item := range list {
			m, ok := item.(map[string]any)
			if !ok || Options(m).String("from", "") == "" {
				issues = append(issues, errIssue(fmt.Sprintf("parser.options.scrub[%d]", i), "scrub rule needs a non-empty from"))
			}
		}
	}
	return issues
}

func validateMappings(p Pipeline) []Issue {
	var issues []Issue
	if len(p.Mappings) == 0 {
		return append(issues, errIssue("mappings", "at least one mapping is required (inline or via mappings_file)"))
	}
	for i, m := range p.Mappings {
		if strings.TrimSpace(m.Name) == "" {
			issues = append(issues, errIssue(fmt.Sprintf("mappings[%d].name", i), "name must not be empty"))
		}
		if strings.TrimSpace(m.Formula) == "" {
			issues = append(issues, errIssue(fmt.Sprintf("mappings[%d].formula", i), "formula must not be empty"))
			continue
		}
		if _, err := formula.Compile(m.Formula); err != nil {
			issues = append(issues, errIssue(fmt.Sprintf("mappings[%d].formula", i), err.Error()))
		}
	}
	for _, i := range p.Mappings.Shadowed() {
		issues = append(issues, warnIssue(fmt.Sprintf("mappings[%d]", i),
			fmt.Sprintf("%q is overwritten by a later mapping with the same name", p.Mappings[i].Name)))
	}
	return issues
}

func validateSink(p Pipeline) []Issue {
	var issues []Issue
	s := p.Sink
	switch {
	case s.Kind == "ndjson":
		return nil
	case s.Kind == "":
		return append(issues, errIssue("sink.kind", "sink.kind must not be empty"))
	case !IsDB(s.Kind):
		return append(issues, errIssue("sink.kind", fmt.Sprintf("unknown sink kind %q", s.Kind)))
	}

	if strings.TrimSpace(s.DB.DSN) == "" {
		issues = append(issues, errIssue("sink.db.dsn", "sink.db.dsn must not be empty"))
	}
	if strings.TrimSpace(s.DB.Table) == "" {
		issues = append(issues, errIssue("sink.db.table", "sink.db.table must not be empty"))
	}
	known := make(map[string]bool, len(p.Mappings))
	for _, n := range p.Mappings.Names() {
		known[n] = true
	}
	for col, typ := range s.DB.ColumnTypes {
		path := "sink.db.column_types." + col
		if _, err := ddl.ParseType(typ); err != nil {
			issues = append(issues, errIssue(path, err.Error()))
		}
		if len(known) > 0 && !known[col] {
			issues = append(issues, errIssue(path, fmt.Sprintf("column %q is not produced by any mapping", col)))
		}
	}
	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue
	check := func(name string, v int64) {
		if v < 0 {
			issues = append(issues, errIssue("runtime."+name, name+" must not be negative"))
		}
	}
	check("transform_workers", int64(r.TransformWorkers))
	check("channel_buffer", int64(r.ChannelBuffer))
	check("batch_size", int64(r.BatchSize))
	check("limit", r.Limit)
	return issues
}
