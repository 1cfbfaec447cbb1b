package runner

import (
	"sync"
	"time"

	"github.com/prok20/faulty-server-poller/internal/metrics"
	"github.com/prok20/faulty-server-poller/internal/run"
)

// aggregate accumulates one run's outcomes. Once sealed it ignores records.
type aggregate struct {
	mu        sync.Mutex
	sealed    bool
	successes uint64
	sum       uint64
	collector *metrics.Collector
}

func newAggregate() *aggregate {
	return &aggregate{collector: metrics.NewCollector()}
}

// record reports whether the outcome was counted.
func (a *aggregate) record(outcome run.Outcome, latency time.Duration) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sealed {
		return false
	}
	a.collector.RecordCall(latency, outcome)
	if outcome.OK {
		a.successes++
		a.sum += uint64(outcome.Value)
	}
	return true
}

func (a *aggregate) seal(id run.ID) run.JobResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sealed = true
	return run.JobResult{ID: id, SuccessfulResponses: a.successes, ValueSum: a.sum}
}
