package metrics_test

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/prok20/faulty-server-poller/internal/metrics"
)

func newTestInstruments(t *testing.T) (*metrics.Instruments, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	inst, err := metrics.NewInstruments(provider.Meter(metrics.MeterName))
	if err != nil {
		t.Fatalf("NewInstruments: %v", err)
	}
	return inst, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumInt(t *testing.T, m metricdata.Metrics, match func(attribute.Set) bool) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: unexpected data type %T", m.Name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		if match == nil || match(dp.Attributes) {
			total += dp.Value
		}
	}
	return total
}

func TestInstrumentsRecordRunLifecycle(t *testing.T) {
	inst, reader := newTestInstruments(t)
	ctx := context.Background()

	inst.RunAccepted(ctx)
	inst.RunAccepted(ctx)
	inst.RunRejected(ctx, metrics.ReasonQueueFull)
	inst.RunStarted(ctx)
	inst.RunStarted(ctx)
	inst.RunStopped(ctx)
	inst.RunFinished(ctx)
	inst.TerminalWriteFailed(ctx)

	got := collect(t, reader)

	if n := sumInt(t, got["poller.runs.accepted"], nil); n != 2 {
		t.Errorf("accepted = %d, want 2", n)
	}
	full := func(s attribute.Set) bool {
		v, ok := s.Value("reason")
		return ok && v.AsString() == metrics.ReasonQueueFull
	}
	if n := sumInt(t, got["poller.runs.rejected"], full); n != 1 {
		t.Errorf("rejected(queue_full) = %d, want 1", n)
	}
	if n := sumInt(t, got["poller.runs.executing"], nil); n != 1 {
		t.Errorf("executing = %d, want 1", n)
	}
	if n := sumInt(t, got["poller.runs.finished"], nil); n != 1 {
		t.Errorf("finished = %d, want 1", n)
	}
	if n := sumInt(t, got["poller.runs.terminal_write_failures"], nil); n != 1 {
		t.Errorf("terminal_write_failures = %d, want 1", n)
	}
}

func TestInstrumentsUpstreamCalls(t *testing.T) {
	inst, reader := newTestInstruments(t)
	ctx := context.Background()

	inst.UpstreamCall(ctx, true, true, 5*time.Millisecond)
	inst.UpstreamCall(ctx, false, true, 7*time.Millisecond)
	inst.UpstreamCall(ctx, true, false, 9*time.Millisecond)

	got := collect(t, reader)
	ok := func(s attribute.Set) bool {
		v, _ := s.Value("outcome")
		c, _ := s.Value("counted")
		return v.AsString() == "ok" && c.AsBool()
	}
	if n := sumInt(t, got["poller.upstream.calls"], ok); n != 1 {
		t.Errorf("counted ok calls = %d, want 1", n)
	}
	if n := sumInt(t, got["poller.upstream.calls"], nil); n != 3 {
		t.Errorf("all calls = %d, want 3", n)
	}

	hist, isHist := got["poller.upstream.duration"].Data.(metricdata.Histogram[float64])
	if !isHist {
		t.Fatalf("unexpected duration data %T", got["poller.upstream.duration"].Data)
	}
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	if count != 3 {
		t.Errorf("duration samples = %d, want 3", count)
	}
}

func TestNilInstrumentsAreNoop(t *testing.T) {
	var inst *metrics.Instruments
	ctx := context.Background()
	inst.RunAccepted(ctx)
	inst.RunRejected(ctx, metrics.ReasonQueueClosed)
	inst.RunStarted(ctx)
	inst.RunStopped(ctx)
	inst.RunFinished(ctx)
	inst.TerminalWriteFailed(ctx)
	inst.UpstreamCall(ctx, true, true, time.Millisecond)
}

func TestInitPrometheusServesInstruments(t *testing.T) {
	handler, inst, shutdown, err := metrics.InitPrometheus()
	if err != nil {
		t.Fatalf("InitPrometheus: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	inst.RunAccepted(context.Background())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	text := string(body)
	if !strings.Contains(text, "poller_runs_accepted") && !strings.Contains(text, "poller.runs.accepted") {
		t.Fatalf("metrics output missing poller_runs_accepted:\n%s", body)
	}
}
