package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/prok20/faulty-server-poller/internal/logger"
	"github.com/prok20/faulty-server-poller/internal/run"
	"github.com/prok20/faulty-server-poller/internal/tracing"
)

// Executor fans out upstream calls for the duration of a run.
// It is safe to execute several jobs concurrently.
type Executor struct {
	opt    Options
	tracer trace.Tracer
}

// New returns an Executor with opt normalized.
func New(opt Options) *Executor {
	opt.normalize()
	tracer := opt.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("runner")
	}
	return &Executor{opt: opt, tracer: tracer}
}

// Execute runs job for job.Duration and returns the aggregate of Ok outcomes
// that completed inside the window. It always returns.
func (e *Executor) Execute(ctx context.Context, job run.Job) run.JobResult {
	start := time.Now()
	log := logger.FromContext(ctx, e.opt.Logger).With("run_id", job.ID.String())

	ctx, span := tracing.StartRunSpan(ctx, e.tracer, job.ID.String(), job.Duration)
	window, cancel := context.WithTimeout(ctx, job.Duration)
	defer cancel()

	// Calls keep the span but must outlive the window.
	callCtx := context.WithoutCancel(ctx)

	agg := newAggregate()
	slots := make(chan struct{}, e.opt.ConcurrentRequests)
	arrival := newArrivalController(e.opt)

launch:
	for window.Err() == nil {
		if err := arrival.Wait(window); err != nil {
			break
		}
		select {
		case slots <- struct{}{}:
		case <-window.Done():
			break launch
		}
		if window.Err() != nil {
			<-slots
			break
		}
		go e.call(callCtx, job.ID, slots, agg)
	}

	result := agg.seal(job.ID)
	elapsed := time.Since(start)

	if errors.Is(window.Err(), context.Canceled) {
		log.Warn("run ended before its deadline",
			"elapsed", elapsed,
			"duration", job.Duration,
		)
	}

	stats := agg.collector.Stats(elapsed)
	log.Info("run window closed",
		"successful_responses", result.SuccessfulResponses,
		"sum", result.ValueSum,
		"calls", stats,
	)
	tracing.EndSpan(span, nil,
		tracing.AttrRunSuccessful.Int64(int64(result.SuccessfulResponses)),
		tracing.AttrRunSum.Int64(int64(result.ValueSum)),
	)
	return result
}

func (e *Executor) call(ctx context.Context, id run.ID, slots <-chan struct{}, agg *aggregate) {
	defer func() { <-slots }()

	started := time.Now()
	outcome := e.send(ctx, id)
	latency := time.Since(started)

	counted := agg.record(outcome, latency)
	e.opt.Instruments.UpstreamCall(ctx, outcome.OK, counted, latency)
}

func (e *Executor) send(ctx context.Context, id run.ID) (outcome run.Outcome) {
	ctx, span := tracing.StartUpstreamSpan(ctx, e.tracer, id.String())
	defer func() {
		if r := recover(); r != nil {
			outcome = run.Err(fmt.Sprintf("upstream call panicked: %v", r))
		}
		var err error
		if !outcome.OK {
			err = errors.New(outcome.Error)
		}
		tracing.EndSpan(span, err, tracing.AttrUpstreamResult.String(outcome.String()))
	}()
	return e.opt.Upstream.SendRequest(ctx, id)
}
