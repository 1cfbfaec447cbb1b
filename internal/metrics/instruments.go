package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MeterName is the instrumentation scope used for every poller instrument.
const MeterName = "github.com/prok20/faulty-server-poller"

// Rejection reasons reported on poller.runs.rejected.
const (
	ReasonQueueFull   = "queue_full"
	ReasonQueueClosed = "queue_closed"
)

// Instruments holds the service-level counters. A nil *Instruments is a no-op.
type Instruments struct {
	runsAccepted   metric.Int64Counter
	runsRejected   metric.Int64Counter
	runsFinished   metric.Int64Counter
	runsExecuting  metric.Int64UpDownCounter
	writeFailures  metric.Int64Counter
	upstreamCalls  metric.Int64Counter
	upstreamTiming metric.Float64Histogram
}

// NewInstruments creates the poller instruments on meter.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	var (
		inst Instruments
		err  error
	)
	if inst.runsAccepted, err = meter.Int64Counter("poller.runs.accepted",
		metric.WithDescription("Runs admitted to the queue and persisted")); err != nil {
		return nil, fmt.Errorf("runs.accepted: %w", err)
	}
	if inst.runsRejected, err = meter.Int64Counter("poller.runs.rejected",
		metric.WithDescription("Runs refused at admission")); err != nil {
		return nil, fmt.Errorf("runs.rejected: %w", err)
	}
	if inst.runsFinished, err = meter.Int64Counter("poller.runs.finished",
		metric.WithDescription("Runs whose terminal record was written")); err != nil {
		return nil, fmt.Errorf("runs.finished: %w", err)
	}
	if inst.runsExecuting, err = meter.Int64UpDownCounter("poller.runs.executing",
		metric.WithDescription("Runs currently held by a worker")); err != nil {
		return nil, fmt.Errorf("runs.executing: %w", err)
	}
	if inst.writeFailures, err = meter.Int64Counter("poller.runs.terminal_write_failures",
		metric.WithDescription("Terminal updates that failed and left a run in progress")); err != nil {
		return nil, fmt.Errorf("runs.terminal_write_failures: %w", err)
	}
	if inst.upstreamCalls, err = meter.Int64Counter("poller.upstream.calls",
		metric.WithDescription("Upstream calls by outcome and whether they landed inside the run window")); err != nil {
		return nil, fmt.Errorf("upstream.calls: %w", err)
	}
	if inst.upstreamTiming, err = meter.Float64Histogram("poller.upstream.duration",
		metric.WithDescription("Upstream call latency"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("upstream.duration: %w", err)
	}
	return &inst, nil
}

func (i *Instruments) RunAccepted(ctx context.Context) {
	if i == nil {
		return
	}
	i.runsAccepted.Add(ctx, 1)
}

func (i *Instruments) RunRejected(ctx context.Context, reason string) {
	if i == nil {
		return
	}
	i.runsRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RunStarted and RunStopped bracket a worker's execution of one job.
func (i *Instruments) RunStarted(ctx context.Context) {
	if i == nil {
		return
	}
	i.runsExecuting.Add(ctx, 1)
}

func (i *Instruments) RunStopped(ctx context.Context) {
	if i == nil {
		return
	}
	i.runsExecuting.Add(ctx, -1)
}

func (i *Instruments) RunFinished(ctx context.Context) {
	if i == nil {
		return
	}
	i.runsFinished.Add(ctx, 1)
}

func (i *Instruments) TerminalWriteFailed(ctx context.Context) {
	if i == nil {
		return
	}
	i.writeFailures.Add(ctx, 1)
}

// UpstreamCall records one completed call. counted is false for calls that
// completed after the run deadline.
func (i *Instruments) UpstreamCall(ctx context.Context, ok, counted bool, latency time.Duration) {
	if i == nil {
		return
	}
	outcome := "err"
	if ok {
		outcome = "ok"
	}
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Bool("counted", counted),
	)
	i.upstreamCalls.Add(ctx, 1, attrs)
	i.upstreamTiming.Record(ctx, latency.Seconds(), attrs)
}

// InitPrometheus installs a global meter provider backed by the Prometheus
// exporter. It returns the /metrics handler, the poller instruments and a
// shutdown function to call on exit.
func InitPrometheus() (http.Handler, *Instruments, func(context.Context) error, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	inst, err := NewInstruments(provider.Meter(MeterName))
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, nil, nil, err
	}

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return handler, inst, provider.Shutdown, nil
}
