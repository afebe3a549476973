package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dr3s/csv-wrangler/internal/field"
	"github.com/dr3s/csv-wrangler/internal/mapping"
	"github.com/dr3s/csv-wrangler/internal/record"
	"github.com/dr3s/csv-wrangler/internal/transformer"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// event is either a row or a parse defect.
type event struct {
	row    field.Row
	defect error
	line   int
}

type sliceSource struct {
	events []event
	err    error // returned after the last event
	closed atomic.Bool
}

func (s *sliceSource) StreamRows(ctx context.Context, emit func(field.Row) error, onDefect func(int, error)) error {
	for _, e := range s.events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.defect != nil {
			onDefect(e.line, e.defect)
			continue
		}
		if err := emit(e.row); err != nil {
			return err
		}
	}
	return s.err
}

func (s *sliceSource) Close() error {
	s.closed.Store(true)
	return nil
}

// endlessSource emits rows until the pipeline refuses one.
type endlessSource struct{ read atomic.Int64 }

func (s *endlessSource) StreamRows(ctx context.Context, emit func(field.Row) error, _ func(int, error)) error {
	cols, _ := field.NewColumns([]string{"n"})
	for i := 1; ; i++ {
		if err := emit(field.NewRow(cols, i+1, []string{strconv.Itoa(i)}, nil)); err != nil {
			return err
		}
		s.read.Add(1)
	}
}

type memSink struct {
	mu      sync.Mutex
	recs    []map[string]any
	stopAt  int
	failAt  int
	flushed int
	closed  int
}

func (m *memSink) Write(_ context.Context, r *record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAt > 0 && len(m.recs)+1 == m.failAt {
		return errors.New("disk full")
	}
	m.recs = append(m.recs, r.Map())
	if m.stopAt > 0 && len(m.recs) >= m.stopAt {
		return ErrStop
	}
	return nil
}

func (m *memSink) Flush(context.Context) error { m.flushed++; return nil }
func (m *memSink) Close() error                { m.closed++; return nil }

type skipLog struct {
	mu    sync.Mutex
	skips []Skip
}

func (l *skipLog) Skip(_ context.Context, s Skip) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.skips = append(l.skips, s)
	return nil
}

func numRows(vals ...string) []event {
	cols, _ := field.NewColumns([]string{"n"})
	out := make([]event, len(vals))
	for i, v := range vals {
		out[i] = event{row: field.NewRow(cols, i+2, []string{v}, nil)}
	}
	return out
}

var double = transformer.New(mapping.Set{{Name: "n", Formula: "integer('n') * 2"}})

func TestRun_PreservesOrderAndIsolatesFailures(t *testing.T) {
	t.Parallel()

	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			t.Parallel()

			var events []event
			var want []map[string]any
			for i := 0; i < 200; i++ {
				switch {
				case i%17 == 0:
					events = append(events, event{defect: errors.New("bare quote"), line: 1000 + i})
				case i%10 == 0:
					events = append(events, numRows("oops")...)
				default:
					events = append(events, numRows(strconv.Itoa(i))...)
					want = append(want, map[string]any{"n": 2 * i})
				}
			}

			src := &sliceSource{events: events}
			sink := &memSink{}
			skips := &skipLog{}
			sum, err := Run(context.Background(), src, double, sink, Options{Workers: workers, Buffer: 4, Skips: skips, Logger: quiet})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if diff := cmp.Diff(want, sink.recs); diff != "" {
				t.Fatalf("records mismatch (-want +got):\n%s", diff)
			}
			if sink.flushed != 1 || sink.closed != 1 || !src.closed.Load() {
				t.Errorf("flushed=%d closed=%d srcClosed=%v", sink.flushed, sink.closed, src.closed.Load())
			}

			var defects, failures int64
			prevDefectLine := 0
			for _, s := range skips.skips {
				switch s.Kind {
				case KindParseDefect:
					defects++
					if !s.Row.IsZero() {
						t.Errorf("parse defect carries a row: %+v", s)
					}
					if s.Line <= prevDefectLine {
						t.Errorf("defects out of order: %d after %d", s.Line, prevDefectLine)
					}
					prevDefectLine = s.Line
				case KindNotANumber:
					failures++
					if v, _ := s.Row.Value("n"); v != "oops" {
						t.Errorf("failure row = %v", s.Row.Map())
					}
					if s.Mapping() != "n" || s.Formula() != "integer('n') * 2" {
						t.Errorf("failure mapping/formula = %q/%q", s.Mapping(), s.Formula())
					}
				default:
					t.Errorf("unexpected skip kind %s: %v", s.Kind, s.Err)
				}
			}

			if sum.ParseDefects != defects || sum.TransformFailures != failures {
				t.Errorf("summary = %+v, counted defects=%d failures=%d", sum, defects, failures)
			}
			if sum.Emitted != int64(len(want)) || sum.Rows != sum.Emitted+sum.TransformFailures {
				t.Errorf("summary accounting = %+v", sum)
			}
			if sum.ByKind[KindNotANumber] != failures {
				t.Errorf("ByKind = %v", sum.ByKind)
			}
		})
	}
}

func TestRun_SkipAndRecordStreamsInterleaveInSourceOrder(t *testing.T) {
	t.Parallel()

	events := append(numRows("1", "x"), event{defect: errors.New("bad"), line: 4})
	events = append(events, numRows("3")...)

	var trace []string
	var mu sync.Mutex
	logf := func(s string) { mu.Lock(); trace = append(trace, s); mu.Unlock() }

	sink := &funcSink{write: func(r *record.Record) error {
		v, _ := r.Get("n")
		logf(fmt.Sprintf("rec %v", v))
		return nil
	}}
	skips := SkipFunc(func(_ context.Context, s Skip) error {
		logf(string(s.Kind))
		return nil
	})
	if _, err := Run(context.Background(), &sliceSource{events: events}, double, sink, Options{Workers: 3, Skips: skips, Logger: quiet}); err != nil {
		t.Fatal(err)
	}
	want := []string{"rec 2", "not_a_number", "parse_defect", "rec 6"}
	if diff := cmp.Diff(want, trace); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_SinkStopEndsRunCleanly(t *testing.T) {
	t.Parallel()

	src := &endlessSource{}
	sink := &memSink{stopAt: 5}
	sum, err := Run(context.Background(), src, double, sink, Options{Workers: 2, Buffer: 2, Logger: quiet})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// The fifth write returned ErrStop, so it is not counted as emitted.
	if !sum.Stopped || sum.Emitted != 4 {
		t.Errorf("summary = %+v", sum)
	}
	if len(sink.recs) != 5 || sink.flushed != 1 || sink.closed != 1 {
		t.Errorf("recs=%d flushed=%d closed=%d", len(sink.recs), sink.flushed, sink.closed)
	}
	// Bounded in-flight work: the reader cannot run far ahead of the sink.
	if n := src.read.Load(); n > 64 {
		t.Errorf("source read %d rows after stop", n)
	}
}

func TestRun_FatalSourceError(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	src := &sliceSource{events: numRows("1", "2"), err: boom}
	sink := &memSink{}
	_, err := Run(context.Background(), src, double, sink, Options{Logger: quiet})

	var fe *FatalIOError
	if !errors.As(err, &fe) || fe.Op != "read" || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want FatalIOError{read}", err)
	}
	if sink.flushed != 0 || sink.closed != 1 {
		t.Errorf("flushed=%d closed=%d, want 0/1", sink.flushed, sink.closed)
	}
}

func TestRun_FatalSinkError(t *testing.T) {
	t.Parallel()

	sink := &memSink{failAt: 2}
	_, err := Run(context.Background(), &sliceSource{events: numRows("1", "2", "3")}, double, sink, Options{Logger: quiet})
	var fe *FatalIOError
	if !errors.As(err, &fe) || fe.Op != "write" {
		t.Fatalf("err = %v, want FatalIOError{write}", err)
	}
	if len(sink.recs) != 1 || sink.closed != 1 {
		t.Errorf("recs=%d closed=%d", len(sink.recs), sink.closed)
	}
}

func TestRun_RejectedRecordIsSkipped(t *testing.T) {
	t.Parallel()

	src := &sliceSource{events: numRows("1", "2", "3")}
	skips := &skipLog{}
	sink := &funcSink{write: func(r *record.Record) error {
		if v, _ := r.Get("n"); v == 4 {
			return &RecordError{Field: "n", Err: errors.New("does not fit")}
		}
		return nil
	}}
	sum, err := Run(context.Background(), src, double, sink, Options{Workers: 2, Skips: skips, Logger: quiet})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Emitted != 2 || sum.TransformFailures != 1 || sum.ByKind[KindRejected] != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if len(skips.skips) != 1 {
		t.Fatalf("skips = %v", skips.skips)
	}
	got := skips.skips[0]
	if v, _ := got.Row.Value("n"); got.Kind != KindRejected || got.Line != 3 || v != "2" {
		t.Errorf("skip = %+v", got)
	}
}

type fullAfter struct {
	memSink
	max int
}

func (f *fullAfter) Full() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recs) >= f.max
}

func TestRun_FullSinkStopsBeforeLaterSkips(t *testing.T) {
	t.Parallel()

	src := &sliceSource{events: numRows("1", "2", "x", "y")}
	skips := &skipLog{}
	sink := &fullAfter{max: 2}
	sum, err := Run(context.Background(), src, double, sink, Options{Skips: skips, Logger: quiet})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !sum.Stopped || sum.Emitted != 2 || len(skips.skips) != 0 {
		t.Errorf("summary = %+v, skips = %d", sum, len(skips.skips))
	}
	if sink.flushed != 1 || sink.closed != 1 {
		t.Errorf("flushed=%d closed=%d", sink.flushed, sink.closed)
	}
}

func TestRun_FatalSkipSinkError(t *testing.T) {
	t.Parallel()

	skips := SkipFunc(func(context.Context, Skip) error { return errors.New("skip log gone") })
	_, err := Run(context.Background(), &sliceSource{events: numRows("1", "x", "3")}, double, &memSink{},
		Options{Skips: skips, Logger: quiet})
	var fe *FatalIOError
	if !errors.As(err, &fe) || fe.Op != "skip" {
		t.Fatalf("err = %v, want FatalIOError{skip}", err)
	}
}

func TestRun_Cancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	src := &endlessSource{}
	sink := &funcSink{write: func(*record.Record) error {
		cancel()
		return nil
	}}
	_, err := Run(ctx, src, double, sink, Options{Workers: 2, Logger: quiet})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if sink.closed != 1 || sink.flushed != 0 {
		t.Errorf("closed=%d flushed=%d, want 1/0", sink.closed, sink.flushed)
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	wrap := func(err error) error {
		return &transformer.Failure{Mapping: "m", Err: fmt.Errorf("formula: %w", err)}
	}
	cases := []struct {
		err  error
		want Kind
	}{
		{&ParseDefect{Line: 3, Err: errors.New("x")}, KindParseDefect},
		{wrap(&field.Error{Func: "value", Err: field.ErrMissingField}), KindMissingField},
		{wrap(&field.Error{Func: "float", Err: field.ErrNotANumber}), KindNotANumber},
		{wrap(&field.Error{Func: "titleCase", Err: field.ErrTypeMismatch}), KindTypeMismatch},
		{wrap(errors.New("unknown name foo")), KindFormulaError},
		{&RecordError{Field: "n", Err: errors.New("cannot store")}, KindRejected},
		{&RecordError{Err: &field.Error{Err: field.ErrTypeMismatch}}, KindRejected},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Errorf("KindOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

type funcSink struct {
	write   func(*record.Record) error
	flushed int
	closed  int
}

func (f *funcSink) Write(_ context.Context, r *record.Record) error { return f.write(r) }
func (f *funcSink) Flush(context.Context) error                   { f.flushed++; return nil }
func (f *funcSink) Close() error                                  { f.closed++; return nil }
