package runner

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/prok20/faulty-server-poller/internal/metrics"
	"github.com/prok20/faulty-server-poller/internal/run"
)

// Options configure the Executor.
type Options struct {
	ConcurrentRequests int                         // in-flight calls per run (min 1)
	RatePerSecond      int                         // call launch ceiling per run (0 means unlimited)
	Upstream           run.Upstream                // upstream caller (required)
	Logger             *slog.Logger                // defaults to slog.Default()
	Tracer             trace.Tracer                // defaults to a no-op tracer
	Instruments        *metrics.Instruments        // optional
	LimiterFactory     func(rps int) *rate.Limiter // optional injection for tests
}

func (o *Options) normalize() {
	if o.ConcurrentRequests <= 0 {
		o.ConcurrentRequests = 1
	}
	if o.RatePerSecond < 0 {
		o.RatePerSecond = 0
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			return rate.NewLimiter(rate.Limit(rps), rps)
		}
	}
}
