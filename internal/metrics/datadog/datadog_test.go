package datadog

import (
	"testing"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/google/go-cmp/cmp"

	"github.com/dr3s/csv-wrangler/internal/metrics"
)

type call struct {
	kind  string
	name  string
	value float64
	tags  []string
}

type recordingClient struct {
	*statsd.NoOpClient
	calls []call
}

func (r *recordingClient) Count(name string, value int64, tags []string, rate float64) error {
	r.calls = append(r.calls, call{"count", name, float64(value), tags})
	return nil
}

func (r *recordingClient) Gauge(name string, value float64, tags []string, rate float64) error {
	r.calls = append(r.calls, call{"gauge", name, value, tags})
	return nil
}

func (r *recordingClient) Histogram(name string, value float64, tags []string, rate float64) error {
	r.calls = append(r.calls, call{"histogram", name, value, tags})
	return nil
}

func TestNewBackend_RequiresAddr(t *testing.T) {
	t.Parallel()

	if _, err := NewBackend(Config{}); err == nil {
		t.Fatal("expected error for empty Addr")
	}
}

func TestBackend_TranslatesLabelsToTags(t *testing.T) {
	t.Parallel()

	rc := &recordingClient{NoOpClient: &statsd.NoOpClient{}}
	b := &Backend{client: rc}

	b.IncCounter(metrics.RowsTotal, 3, metrics.Labels{"kind": "emitted", "job": "orders"})
	b.ObserveHistogram(metrics.RunDurationSeconds, 0.25, metrics.Labels{"step": "run"})
	b.SetGauge(metrics.RowsPerSecond, 1200, metrics.Labels{"job": "orders"})
	b.IncCounter(metrics.BatchesTotal, 1, nil)

	want := []call{
		{"count", metrics.RowsTotal, 3, []string{"job:orders", "kind:emitted"}},
		{"histogram", metrics.RunDurationSeconds, 0.25, []string{"step:run"}},
		{"gauge", metrics.RowsPerSecond, 1200, []string{"job:orders"}},
		{"count", metrics.BatchesTotal, 1, nil},
	}
	if diff := cmp.Diff(want, rc.calls, cmp.AllowUnexported(call{})); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestBackend_NilClientIsNoop(t *testing.T) {
	t.Parallel()

	b := &Backend{}
	b.IncCounter(metrics.RowsTotal, 1, nil)
	b.ObserveHistogram(metrics.RunDurationSeconds, 1, nil)
	b.SetGauge(metrics.RowsPerSecond, 1, nil)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() = %v", err)
	}
}
