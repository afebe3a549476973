package pipeline

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dr3s/csv-wrangler/internal/metrics"
)

// Summary reports a finished run.
//
// For a run that was not stopped or cancelled:
//
//	Rows == TransformFailures + Emitted
//
// ParseDefects are counted apart from Rows because a defective line never
// became a row. TransformFailures includes records the sink rejected.
type Summary struct {
	Rows              int64
	ParseDefects      int64
	TransformFailures int64
	Emitted           int64
	// ByKind counts skips per failure kind.
	ByKind  map[Kind]int64
	Stopped bool // the sink asked to stop early
	Elapsed time.Duration
}

// Skipped is the total number of side-channel events.
func (s Summary) Skipped() int64 { return s.ParseDefects + s.TransformFailures }

// counters holds cross-goroutine statistics for one run.
type counters struct {
	rows    atomic.Int64 // rows accepted from the source
	emitted atomic.Int64 // records accepted by the sink

	mu     sync.Mutex
	byKind map[Kind]*errAgg
	limit  int
}

func newCounters(limit int) *counters {
	return &counters{byKind: make(map[Kind]*errAgg), limit: limit}
}

func (c *counters) addSkip(s Skip) {
	c.mu.Lock()
	agg, ok := c.byKind[s.Kind]
	if !ok {
		agg = newErrAgg(c.limit)
		c.byKind[s.Kind] = agg
	}
	c.mu.Unlock()
	agg.add(s.Err.Error())
}

func (c *counters) summary(elapsed time.Duration, stopped bool) Summary {
	s := Summary{
		Rows:    c.rows.Load(),
		Emitted: c.emitted.Load(),
		ByKind:  make(map[Kind]int64),
		Stopped: stopped,
		Elapsed: elapsed,
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, agg := range c.byKind {
		n := int64(agg.total())
		s.ByKind[k] = n
		if k == KindParseDefect {
			s.ParseDefects += n
		} else {
			s.TransformFailures += n
		}
	}
	return s
}

// log prints the first few messages per kind, then one summary line.
func (c *counters) log(log *slog.Logger, s Summary, err error) {
	c.mu.Lock()
	for kind, agg := range c.byKind {
		count, first := agg.snapshot()
		log.Warn("pipeline: skipped rows", "kind", kind, "count", count, "showing", len(first))
		for i, msg := range first {
			log.Warn("pipeline: skip", "kind", kind, "n", i+1, "msg", msg)
		}
	}
	c.mu.Unlock()

	attrs := []any{
		"rows", s.Rows,
		"parse_defects", s.ParseDefects,
		"transform_failures", s.TransformFailures,
		"emitted", s.Emitted,
		"stopped", s.Stopped,
		"elapsed", s.Elapsed.Round(time.Millisecond),
	}
	if err != nil {
		log.Error("pipeline: failed", append(attrs, "err", err)...)
		return
	}
	log.Info("pipeline: summary", attrs...)

	if !s.Stopped && s.Rows != s.TransformFailures+s.Emitted {
		log.Warn("pipeline: row accounting mismatch",
			"rows", s.Rows, "accounted", s.TransformFailures+s.Emitted)
	}
}

func (c *counters) record(job string, s Summary, err error) {
	metrics.RecordRow(job, "rows", s.Rows)
	metrics.RecordRow(job, "parse_defects", s.ParseDefects)
	metrics.RecordRow(job, "transform_failures", s.TransformFailures)
	metrics.RecordRow(job, "emitted", s.Emitted)
	byKind := make(map[string]int64, len(s.ByKind))
	for k, n := range s.ByKind {
		byKind[string(k)] = n
	}
	metrics.RecordSkips(job, byKind)
	metrics.RecordThroughput(job, s.Rows, s.Elapsed)
	metrics.RecordStep(job, "run", err, s.Elapsed)
}

// errAgg counts messages and keeps the first few.
type errAgg struct {
	mu    sync.Mutex
	limit int
	count int
	first []string
}

func newErrAgg(limit int) *errAgg {
	return &errAgg{limit: limit}
}

func (a *errAgg) add(msg string) {
	a.mu.Lock()
	if a.count < a.limit {
		a.first = append(a.first, msg)
	}
	a.count++
	a.mu.Unlock()
}

func (a *errAgg) total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

func (a *errAgg) snapshot() (int, []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count, append([]string(nil), a.first...)
}
