// Package pipeline runs the streaming row transformation: source rows go
// through the transformer and out to a sink, while parse defects and
// transform failures go to a separate skip side-channel.
//
// Concurrency model:
//
//	Reader (source.StreamRows; 1 goroutine)
//	     → items channel (rows and parse defects, in file order)
//	     → N transform workers (rill.OrderedMap; N=1 is sequential)
//	     → Consumer (sink.Write for records, skips.Skip for failures)
//
// Every channel is bounded, so a slow sink slows the reader down and at
// most Buffer + 2*Workers rows are in flight. Output keeps the source order;
// a skipped row leaves a gap and nothing else moves.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/destel/rill"
	"golang.org/x/sync/errgroup"

	"github.com/dr3s/csv-wrangler/internal/field"
	"github.com/dr3s/csv-wrangler/internal/record"
)

// RowSource produces rows in file order. emit returns an error when the
// pipeline will take no more rows; the source must then stop and return.
// onDefect reports a line that could not be parsed; it never stops the
// source. Any error StreamRows returns is treated as fatal.
type RowSource interface {
	StreamRows(ctx context.Context, emit func(field.Row) error, onDefect func(line int, err error)) error
}

// Transformer turns one row into one record, or fails the whole row.
type Transformer interface {
	Transform(field.Row) (*record.Record, error)
}

// Sink accepts output records in order. Write may return ErrStop to end the
// run early, or a *RecordError to reject one record without failing the
// run. Any other Write error is fatal. Flush is called once after the last
// record of a successful run; Close is always called.
type Sink interface {
	Write(ctx context.Context, rec *record.Record) error
	Flush(ctx context.Context) error
	Close() error
}

// Filler is implemented by sinks that accept a bounded number of records.
// Run stops reading as soon as Full reports true after a successful write.
type Filler interface {
	Full() bool
}

// SkipSink accepts side-channel events. An error from Skip is fatal.
type SkipSink interface {
	Skip(ctx context.Context, s Skip) error
}

// SkipFunc adapts a function to SkipSink.
type SkipFunc func(ctx context.Context, s Skip) error

func (f SkipFunc) Skip(ctx context.Context, s Skip) error { return f(ctx, s) }

const (
	defaultBuffer = 256
	logFirst      = 3
)

// Options tunes a run. The zero value is a sequential run with no skip sink.
type Options struct {
	Job     string
	Workers int // transform workers; <=1 runs sequentially
	Buffer  int // items channel capacity
	Skips   SkipSink
	Logger  *slog.Logger
	// LogFirst is how many skip messages per kind are logged in the summary.
	LogFirst int
}

func (o Options) withDefaults() Options {
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.Buffer < 1 {
		o.Buffer = defaultBuffer
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.LogFirst <= 0 {
		o.LogFirst = logFirst
	}
	if o.Job == "" {
		o.Job = "csv-wrangler"
	}
	return o
}

// item is a source event: exactly one of row and defect is set.
type item struct {
	row    field.Row
	defect *ParseDefect
}

// outcome is a processed item: exactly one of rec and skip is set. row is
// kept with rec so a record the sink rejects can still be skipped.
type outcome struct {
	row  field.Row
	rec  *record.Record
	skip *Skip
}

// Run streams src through t into sink until the source is exhausted, the
// sink returns ErrStop, ctx is cancelled or a fatal error occurs. The sink
// is closed on every path, and a source that implements io.Closer is
// closed as well.
//
// Row-scoped failures never make Run fail; they are counted in the Summary
// and forwarded to opt.Skips. Fatal source and sink errors are returned as
// *FatalIOError.
func Run(ctx context.Context, src RowSource, t Transformer, sink Sink, opt Options) (sum Summary, err error) {
	opt = opt.withDefaults()
	log := opt.Logger
	start := time.Now()
	c := newCounters(opt.LogFirst)

	if cl, ok := src.(io.Closer); ok {
		defer cl.Close()
	}
	defer func() {
		if cerr := closeSink(ctx, sink, err); err == nil && cerr != nil {
			err = cerr
		}
		sum = c.summary(time.Since(start), sum.Stopped)
		c.log(log, sum, err)
		c.record(opt.Job, sum, err)
	}()

	log.Info("pipeline: started", "job", opt.Job, "workers", opt.Workers, "buffer", opt.Buffer)

	g, gctx := errgroup.WithContext(ctx)
	items := make(chan rill.Try[item], opt.Buffer)

	// Reader.
	g.Go(func() error {
		defer close(items)
		emit := func(r field.Row) error {
			if serr := send(gctx, items, item{row: r}); serr != nil {
				return serr
			}
			c.rows.Add(1)
			return nil
		}
		onDefect := func(line int, derr error) {
			_ = send(gctx, items, item{defect: &ParseDefect{Line: line, Err: derr}})
		}
		rerr := src.StreamRows(gctx, emit, onDefect)
		if cerr := gctx.Err(); cerr != nil {
			return cerr
		}
		if rerr != nil {
			return &FatalIOError{Op: "read", Err: rerr}
		}
		return nil
	})

	outs := rill.OrderedMap(items, opt.Workers, func(it item) (outcome, error) {
		if it.defect != nil {
			s := skipOf(it.defect.Line, field.Row{}, it.defect)
			return outcome{skip: &s}, nil
		}
		rec, terr := t.Transform(it.row)
		if terr != nil {
			s := skipOf(it.row.Line, it.row, terr)
			return outcome{skip: &s}, nil
		}
		return outcome{row: it.row, rec: rec}, nil
	})

	// Consumer.
	filler, _ := sink.(Filler)
	skip := func(s Skip) error {
		c.addSkip(s)
		if opt.Skips == nil {
			return nil
		}
		if serr := opt.Skips.Skip(gctx, s); serr != nil {
			return &FatalIOError{Op: "skip", Err: serr}
		}
		return nil
	}
	g.Go(func() error {
		defer rill.DrainNB(outs)
		for o := range outs {
			if cerr := gctx.Err(); cerr != nil {
				return cerr
			}
			if o.Error != nil {
				return o.Error
			}
			if s := o.Value.skip; s != nil {
				if serr := skip(*s); serr != nil {
					return serr
				}
				continue
			}
			if werr := sink.Write(gctx, o.Value.rec); werr != nil {
				var re *RecordError
				switch {
				case errors.Is(werr, ErrStop):
					return ErrStop
				case errors.As(werr, &re):
					if serr := skip(skipOf(o.Value.row.Line, o.Value.row, werr)); serr != nil {
						return serr
					}
					continue
				}
				return &FatalIOError{Op: "write", Err: werr}
			}
			c.emitted.Add(1)
			if filler != nil && filler.Full() {
				return ErrStop
			}
		}
		return nil
	})

	err = g.Wait()
	switch {
	case err != nil && ctx.Err() != nil:
		// Caller cancellation wins over whatever it caused downstream.
		err = ctx.Err()
	case errors.Is(err, ErrStop):
		sum.Stopped = true
		err = nil
	}
	return sum, err
}

// closeSink flushes on success and always closes.
func closeSink(ctx context.Context, sink Sink, runErr error) error {
	var ferr error
	if runErr == nil {
		if err := sink.Flush(ctx); err != nil {
			ferr = &FatalIOError{Op: "flush", Err: err}
		}
	}
	if err := sink.Close(); err != nil && ferr == nil {
		ferr = &FatalIOError{Op: "close", Err: err}
	}
	return ferr
}

func send(ctx context.Context, ch chan<- rill.Try[item], it item) error {
	select {
	case ch <- rill.Try[item]{Value: it}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
