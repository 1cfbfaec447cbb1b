package runner

import (
	"context"

	"golang.org/x/time/rate"
)

// arrivalController gates each call launch.
type arrivalController interface {
	Wait(ctx context.Context) error
}

// newArrivalController returns a fresh controller for one run so that runs
// sharing an Executor do not share a token bucket.
func newArrivalController(opt Options) arrivalController {
	if opt.RatePerSecond <= 0 {
		return unlimitedArrival{}
	}
	return &uniformArrival{limiter: opt.LimiterFactory(opt.RatePerSecond)}
}

type unlimitedArrival struct{}

func (unlimitedArrival) Wait(context.Context) error { return nil }

// uniformArrival delegates pacing to a rate.Limiter.
type uniformArrival struct {
	limiter *rate.Limiter
}

func (u *uniformArrival) Wait(ctx context.Context) error {
	if u == nil || u.limiter == nil {
		return nil
	}
	return u.limiter.Wait(ctx)
}
