package csv

import (
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/dr3s/csv-wrangler/internal/config"
)

// Options configures a Stream. The zero value reads comma-separated UTF-8
// with strict quoting and a fixed width taken from the header.
type Options struct {
	// Comma is the field delimiter. Zero means ','.
	Comma rune
	// LazyQuotes lets a quote appear in an unquoted field and a non-doubled
	// quote appear in a quoted field.
	LazyQuotes bool
	// TrimSpace trims surrounding white space from every cell.
	TrimSpace bool
	// EmptyAsMissing turns empty cells into absent fields instead of "".
	EmptyAsMissing bool
	// AllowRagged accepts rows whose width differs from the header. Short
	// rows leave the trailing columns absent; extra cells are named "_<n>"
	// after their 1-based position. Without it such rows are parse defects.
	AllowRagged bool
	// Encoding is a WHATWG encoding label ("utf-8", "windows-1250",
	// "iso-8859-2", "utf-16le", ...). Empty means UTF-8.
	Encoding string
	// Scrub lists streaming byte replacements applied before parsing.
	Scrub []Scrub
	// Logger receives progress lines. Nil disables them.
	Logger *slog.Logger
}

// OptionsFrom reads parser options from a pipeline's free-form option bag.
//
// Keys: comma, lazy_quotes, trim_space, empty_as_missing, allow_ragged,
// encoding, scrub (list of {from, to}).
func OptionsFrom(o config.Options) (Options, error) {
	opt := Options{
		Comma:          o.Rune("comma", ','),
		LazyQuotes:     o.Bool("lazy_quotes", false),
		TrimSpace:      o.Bool("trim_space", false),
		EmptyAsMissing: o.Bool("empty_as_missing", false),
		AllowRagged:    o.Bool("allow_ragged", false),
		Encoding:       o.String("encoding", ""),
	}
	if raw := o.Any("scrub"); raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return Options{}, fmt.Errorf("scrub: want a list of {from, to}, got %T", raw)
		}
		for i, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return Options{}, fmt.Errorf("scrub[%d]: want {from, to}, got %T", i, item)
			}
			rule := config.Options(m)
			from := rule.String("from", "")
			if from == "" {
				return Options{}, fmt.Errorf("scrub[%d]: from is empty", i)
			}
			opt.Scrub = append(opt.Scrub, Scrub{From: from, To: rule.String("to", "")})
		}
	}
	if _, err := opt.decoding(); err != nil {
		return Options{}, err
	}
	return opt, nil
}

// decoding resolves Encoding. A nil result means the input is read as is.
func (o Options) decoding() (encoding.Encoding, error) {
	label := strings.TrimSpace(strings.ToLower(o.Encoding))
	switch label {
	case "", "utf-8", "utf8":
		return nil, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("encoding %q: %w", o.Encoding, err)
	}
	return enc, nil
}
