// Package metrics records run statistics of the transformation pipeline
// behind a backend-agnostic facade.
//
// The process-wide backend starts as a no-op, so callers record
// unconditionally. The CLI installs a concrete backend (prompush, datadog)
// once at startup and calls Flush before exiting.
package metrics

import (
	"maps"
	"slices"
	"time"
)

// Metric names shared by every backend.
const (
	RunTotal           = "csvw_run_total"
	RunDurationSeconds = "csvw_run_duration_seconds"
	RowsTotal          = "csvw_rows_total"
	SkipsTotal         = "csvw_skips_total"
	BatchesTotal       = "csvw_batches_total"
	RowsPerSecond      = "csvw_rows_per_second"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend receives metric observations.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	SetGauge(name string, value float64, labels Labels)
	// Flush sends buffered observations, if the backend buffers.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) SetGauge(string, float64, Labels)         {}
func (nopBackend) Flush() error                             { return nil }

var backend Backend = nopBackend{}

// SetBackend installs b. A nil b is ignored.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the installed backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep counts one execution of step and observes its duration,
// labelled success or failure.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "step": step, "status": status}
	backend.IncCounter(RunTotal, 1, lbls)
	backend.ObserveHistogram(RunDurationSeconds, d.Seconds(), lbls)
}

// RecordRow adds delta to the row counter of the given outcome: rows,
// parse_defects, transform_failures or emitted. Zero deltas are dropped.
func RecordRow(job, outcome string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RowsTotal, float64(delta), Labels{"job": job, "kind": outcome})
}

// RecordSkips adds one counter per failure kind, in kind order.
func RecordSkips(job string, byKind map[string]int64) {
	for _, k := range slices.Sorted(maps.Keys(byKind)) {
		if n := byKind[k]; n > 0 {
			backend.IncCounter(SkipsTotal, float64(n), Labels{"job": job, "kind": k})
		}
	}
}

// RecordThroughput sets the rows-per-second gauge for a finished run.
func RecordThroughput(job string, rows int64, d time.Duration) {
	if d <= 0 {
		return
	}
	backend.SetGauge(RowsPerSecond, float64(rows)/d.Seconds(), Labels{"job": job})
}

// RecordBatches counts batches flushed to a database sink.
func RecordBatches(job string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(BatchesTotal, float64(delta), Labels{"job": job})
}
