// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// A batch run is short-lived, so instead of exposing a scrape endpoint the
// backend collects into a private registry and pushes it once, when the CLI
// calls metrics.Flush at exit.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/dr3s/csv-wrangler/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	runCounter  *prometheus.CounterVec // csvw_run_total
	runDuration *prometheus.SummaryVec // csvw_run_duration_seconds
	rowCounter  *prometheus.CounterVec // csvw_rows_total
	skipCounter *prometheus.CounterVec // csvw_skips_total
	batchCount  prometheus.Counter     // csvw_batches_total
	throughput  prometheus.Gauge       // csvw_rows_per_second
}

// NewBackend constructs a Pushgateway backend. jobName is the Pushgateway
// grouping job (usually the pipeline job); gatewayURL is required.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "csv-wrangler"
	}

	reg := prometheus.NewRegistry()

	// job is the Pushgateway grouping key, so it is not a label here.
	runCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.RunTotal,
			Help: "Pipeline steps executed, by step and status.",
		},
		[]string{"step", "status"},
	)
	runDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       metrics.RunDurationSeconds,
			Help:       "Pipeline step duration in seconds, by step and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"step", "status"},
	)
	rowCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Rows by outcome (rows, parse_defects, transform_failures, emitted).",
		},
		[]string{"kind"},
	)
	skipCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.SkipsTotal,
			Help: "Skipped rows and lines by failure kind.",
		},
		[]string{"kind"},
	)
	throughput := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: metrics.RowsPerSecond,
			Help: "Rows read per second over the last run.",
		},
	)
	batchCount := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: metrics.BatchesTotal,
			Help: "Batches flushed to a database sink.",
		},
	)

	for name, c := range map[string]prometheus.Collector{
		"run counter":   runCounter,
		"run summary":   runDuration,
		"row counter":   rowCounter,
		"skip counter":  skipCounter,
		"batch counter": batchCount,
		"throughput":    throughput,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}

	return &Backend{
		gatewayURL:  gatewayURL,
		jobName:     jobName,
		reg:         reg,
		runCounter:  runCounter,
		runDuration: runDuration,
		rowCounter:  rowCounter,
		skipCounter: skipCounter,
		batchCount:  batchCount,
		throughput:  throughput,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.RunTotal:
		if b.runCounter == nil {
			return
		}
		b.runCounter.WithLabelValues(labels["step"], labels["status"]).Add(delta)

	case metrics.RowsTotal:
		if b.rowCounter == nil {
			return
		}
		b.rowCounter.WithLabelValues(labels["kind"]).Add(delta)

	case metrics.SkipsTotal:
		if b.skipCounter == nil {
			return
		}
		b.skipCounter.WithLabelValues(labels["kind"]).Add(delta)

	case metrics.BatchesTotal:
		if b.batchCount == nil {
			return
		}
		b.batchCount.Add(delta)

	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.RunDurationSeconds || b.runDuration == nil {
		return
	}
	b.runDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// SetGauge only knows the throughput gauge.
func (b *Backend) SetGauge(name string, value float64, _ metrics.Labels) {
	if name != metrics.RowsPerSecond || b.throughput == nil {
		return
	}
	b.throughput.Set(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
