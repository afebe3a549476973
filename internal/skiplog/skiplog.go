// Package skiplog writes the pipeline's skip side-channel to a CSV reject
// file, one line per parse defect or transform failure, and counts them by
// kind.
package skiplog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/zeebo/xxh3"

	"github.com/dr3s/csv-wrangler/internal/field"
	"github.com/dr3s/csv-wrangler/internal/pipeline"
)

// Header is the first line of every skip log.
var Header = []string{"run_id", "kind", "line", "reason", "fingerprint", "row"}

// Log is a pipeline.SkipSink backed by a CSV writer.
type Log struct {
	mu     sync.Mutex
	w      *csv.Writer
	closer io.Closer
	runID  string
	counts map[pipeline.Kind]int64
}

var _ pipeline.SkipSink = (*Log)(nil)

// Create creates path (and its parent directories) and writes the header.
func Create(path, runID string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("skiplog: create dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("skiplog: %w", err)
	}
	l, err := New(f, runID)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	l.closer = f
	return l, nil
}

// New writes the header to w. Close flushes but does not close w.
func New(w io.Writer, runID string) (*Log, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return nil, fmt.Errorf("skiplog: header: %w", err)
	}
	return &Log{w: cw, runID: runID, counts: make(map[pipeline.Kind]int64)}, nil
}

// Skip appends one event.
func (l *Log) Skip(_ context.Context, s pipeline.Skip) error {
	rowJSON, fp := "", ""
	if !s.Row.IsZero() {
		b, err := s.Row.MarshalJSON()
		if err != nil {
			return fmt.Errorf("skiplog: encode row: %w", err)
		}
		rowJSON = string(b)
		fp = Fingerprint(s.Row)
	}
	line := ""
	if s.Line > 0 {
		line = strconv.Itoa(s.Line)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[s.Kind]++
	if err := l.w.Write([]string{l.runID, string(s.Kind), line, s.Err.Error(), fp, rowJSON}); err != nil {
		return fmt.Errorf("skiplog: %w", err)
	}
	return nil
}

// Counts returns a copy of the per-kind counters.
func (l *Log) Counts() map[pipeline.Kind]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[pipeline.Kind]int64, len(l.counts))
	for k, v := range l.counts {
		out[k] = v
	}
	return out
}

// Close flushes buffered lines and closes an owned file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Flush()
	err := l.w.Error()
	if l.closer != nil {
		if cerr := l.closer.Close(); err == nil {
			err = cerr
		}
		l.closer = nil
	}
	return err
}

// Fingerprint hashes a row's values so repeated bad input can be grouped
// without comparing whole rows.
func Fingerprint(r field.Row) string {
	h := xxh3.HashString(strings.Join(r.Values(), "\x1f"))
	return fmt.Sprintf("%016x", h)
}
