// Package csv streams CSV input as field.Row values without buffering the
// file. The first record is the header and names the columns.
//
// Errors are split in two:
//   - A record encoding/csv cannot tokenize (bare or unterminated quote), or
//     one with the wrong width, is a parse defect: it is reported through
//     onDefect with its starting line and the stream goes on.
//   - Anything else (a broken header, an I/O error from the source) ends
//     the stream and is returned.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/dr3s/csv-wrangler/internal/field"
)

// ErrWidth marks a record whose cell count does not match the header.
var ErrWidth = errors.New("wrong number of fields")

const logEveryN = 50_000

// Stream is a one-shot row source over src.
type Stream struct {
	src  io.ReadCloser
	opt  Options
	once sync.Once
	cerr error
}

// NewStream returns a stream over src. src is closed when StreamRows
// returns, or by Close.
func NewStream(src io.ReadCloser, opt Options) *Stream {
	return &Stream{src: src, opt: opt}
}

// Close closes the underlying source. It is safe to call more than once.
func (s *Stream) Close() error {
	s.once.Do(func() { s.cerr = s.src.Close() })
	return s.cerr
}

// StreamRows reads the header and then every record, calling emit for each
// row in file order. It stops when emit returns an error and returns that
// error. An empty input yields no rows and no error.
func (s *Stream) StreamRows(ctx context.Context, emit func(field.Row) error, onDefect func(line int, err error)) error {
	defer s.Close()

	r, err := s.reader()
	if err != nil {
		return err
	}
	cr := csv.NewReader(r)
	if s.opt.Comma != 0 {
		cr.Comma = s.opt.Comma
	}
	cr.LazyQuotes = s.opt.LazyQuotes
	cr.FieldsPerRecord = -1 // width is checked here so it can be a defect
	cr.ReuseRecord = true

	cols, err := s.header(cr)
	if err != nil || cols == nil {
		return err
	}
	wide := map[int]*field.Columns{} // ragged rows wider than the header

	rows := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return fmt.Errorf("csv read: %w", err)
			}
			if onDefect != nil {
				onDefect(pe.StartLine, pe.Err)
			}
			continue
		}
		line, _ := cr.FieldPos(0)

		rowCols := cols
		if n := len(rec); n != cols.Len() {
			if !s.opt.AllowRagged {
				if onDefect != nil {
					onDefect(line, fmt.Errorf("%w: want %d, got %d", ErrWidth, cols.Len(), n))
				}
				continue
			}
			if n > cols.Len() {
				if rowCols, err = widen(wide, cols, n); err != nil {
					if onDefect != nil {
						onDefect(line, err)
					}
					continue
				}
			}
		}

		vals, missing := s.cells(rec)
		if err := emit(field.NewRow(rowCols, line, vals, missing)); err != nil {
			return err
		}
		rows++
		if s.opt.Logger != nil && rows%logEveryN == 0 {
			s.opt.Logger.Debug("reader: progress", "line", line, "rows", rows)
		}
	}
}

func (s *Stream) reader() (io.Reader, error) {
	enc, err := s.opt.decoding()
	if err != nil {
		return nil, err
	}
	var r io.Reader = s.src
	if enc != nil {
		r = transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder()))
	}
	return scrubReader(r, s.opt.Scrub), nil
}

// header reads the first record. It returns nil columns for empty input.
func (s *Stream) header(cr *csv.Reader) (*field.Columns, error) {
	hdr, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	names := StripHeaderBOM(append([]string(nil), hdr...))
	for i, h := range names {
		names[i] = strings.TrimSpace(h)
	}
	cols, err := field.NewColumns(names)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	return cols, nil
}

// cells copies rec out of the reader's reused slice and applies the trim
// and empty-cell options.
func (s *Stream) cells(rec []string) ([]string, []bool) {
	vals := make([]string, len(rec))
	var missing []bool
	for i, v := range rec {
		if s.opt.TrimSpace {
			v = strings.TrimSpace(v)
		}
		vals[i] = v
		if v == "" && s.opt.EmptyAsMissing {
			if missing == nil {
				missing = make([]bool, len(rec))
			}
			missing[i] = true
		}
	}
	return vals, missing
}

// widen returns the header extended to n columns, cached per width.
func widen(cache map[int]*field.Columns, cols *field.Columns, n int) (*field.Columns, error) {
	if c, ok := cache[n]; ok {
		return c, nil
	}
	names := cols.Names()
	for i := len(names); i < n; i++ {
		names = append(names, "_"+strconv.Itoa(i+1))
	}
	c, err := field.NewColumns(names)
	if err != nil {
		return nil, fmt.Errorf("%w: extra cells: %v", ErrWidth, err)
	}
	cache[n] = c
	return c, nil
}
