// Package sink holds the pipeline's output sinks: newline-delimited JSON,
// a batched database table loader and a record limit.
package sink

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dr3s/csv-wrangler/internal/pipeline"
	"github.com/dr3s/csv-wrangler/internal/record"
)

// Stdout is the path that selects standard output.
const Stdout = "-"

// NDJSON writes one JSON object per record, keys in mapping order.
type NDJSON struct {
	w      *bufio.Writer
	closer io.Closer // nil for writers the sink does not own
}

// NewNDJSON writes to w. w is not closed by Close.
func NewNDJSON(w io.Writer) *NDJSON {
	return &NDJSON{w: bufio.NewWriterSize(w, 64*1024)}
}

// CreateNDJSON creates (or truncates) path. "-" writes to standard output.
func CreateNDJSON(path string) (*NDJSON, error) {
	if path == "" || path == Stdout {
		return NewNDJSON(os.Stdout), nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("ndjson: %w", err)
	}
	s := NewNDJSON(f)
	s.closer = f
	return s, nil
}

// Write encodes rec as one line. A record that cannot be encoded is
// rejected as a *pipeline.RecordError and nothing is written for it.
func (s *NDJSON) Write(_ context.Context, rec *record.Record) error {
	b, err := rec.MarshalJSON()
	if err != nil {
		return &pipeline.RecordError{Err: fmt.Errorf("ndjson: encode: %w", err)}
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	return s.w.WriteByte('\n')
}

func (s *NDJSON) Flush(context.Context) error { return s.w.Flush() }

// Close flushes what was written so far and closes an owned file.
func (s *NDJSON) Close() error {
	ferr := s.w.Flush()
	if s.closer != nil {
		if err := s.closer.Close(); err != nil {
			return err
		}
	}
	return ferr
}
