package sink

import (
	"context"

	"github.com/dr3s/csv-wrangler/internal/pipeline"
	"github.com/dr3s/csv-wrangler/internal/record"
)

// Limit passes at most Max records to the wrapped sink. It reports Full
// once the Max-th record is written, so the pipeline stops reading right
// away; a further Write returns pipeline.ErrStop.
type Limit struct {
	pipeline.Sink
	Max     int64
	written int64
}

var _ pipeline.Filler = (*Limit)(nil)

// NewLimit wraps s. max <= 0 returns s unchanged.
func NewLimit(s pipeline.Sink, max int64) pipeline.Sink {
	if max <= 0 {
		return s
	}
	return &Limit{Sink: s, Max: max}
}

func (l *Limit) Write(ctx context.Context, rec *record.Record) error {
	if l.written >= l.Max {
		return pipeline.ErrStop
	}
	if err := l.Sink.Write(ctx, rec); err != nil {
		return err
	}
	l.written++
	return nil
}

// Full reports whether Max records have been written.
func (l *Limit) Full() bool { return l.written >= l.Max }
