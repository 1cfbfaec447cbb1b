package metrics

import (
	"log/slog"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/prok20/faulty-server-poller/internal/run"
)

// maxErrorKinds bounds the distinct upstream messages tracked per run.
const maxErrorKinds = 16

const otherErrors = "other"

// Collector records per-call metrics for a single run in a thread-safe manner.
type Collector struct {
	mu         sync.Mutex
	hist       *hdrhistogram.Histogram
	successes  int64
	failures   int64
	minLatency time.Duration
	maxLatency time.Duration
	sumLatency time.Duration
	errors     map[string]int64
}

// Stats represents aggregated call metrics.
type Stats struct {
	Total          int64            `json:"total"`
	Successes      int64            `json:"successes"`
	Failures       int64            `json:"failures"`
	MinLatency     time.Duration    `json:"-"`
	MaxLatency     time.Duration    `json:"-"`
	MeanLatency    time.Duration    `json:"-"`
	P50Latency     time.Duration    `json:"-"`
	P90Latency     time.Duration    `json:"-"`
	P99Latency     time.Duration    `json:"-"`
	Duration       time.Duration    `json:"-"`
	RequestsPerSec float64          `json:"requests_per_sec"`
	Errors         map[string]int64 `json:"errors,omitempty"`
}

func NewCollector() *Collector {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	return &Collector{
		hist:   hdrhistogram.New(1, 60_000_000, 3),
		errors: make(map[string]int64),
	}
}

// RecordCall records one upstream call's latency and outcome.
func (c *Collector) RecordCall(latency time.Duration, outcome run.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if latency > 0 {
		us := latency.Microseconds()
		if us < c.hist.LowestTrackableValue() {
			us = c.hist.LowestTrackableValue()
		}
		if us > c.hist.HighestTrackableValue() {
			us = c.hist.HighestTrackableValue()
		}
		_ = c.hist.RecordValue(us)
	}
	c.sumLatency += latency
	if c.minLatency == 0 || latency < c.minLatency {
		c.minLatency = latency
	}
	if latency > c.maxLatency {
		c.maxLatency = latency
	}

	if outcome.OK {
		c.successes++
		return
	}
	c.failures++
	key := outcome.Error
	if len(key) > 64 {
		key = key[:64]
	}
	if _, seen := c.errors[key]; !seen && len(c.errors) >= maxErrorKinds {
		key = otherErrors
	}
	c.errors[key]++
}

// Stats computes aggregated statistics over elapsed wall time.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.successes + c.failures
	stats := Stats{
		Total:      total,
		Successes:  c.successes,
		Failures:   c.failures,
		MinLatency: c.minLatency,
		MaxLatency: c.maxLatency,
		Duration:   elapsed,
	}
	if total > 0 {
		stats.MeanLatency = time.Duration(int64(c.sumLatency) / total)
	}
	if c.hist.TotalCount() > 0 {
		stats.P50Latency = time.Duration(c.hist.ValueAtQuantile(50)) * time.Microsecond
		stats.P90Latency = time.Duration(c.hist.ValueAtQuantile(90)) * time.Microsecond
		stats.P99Latency = time.Duration(c.hist.ValueAtQuantile(99)) * time.Microsecond
	}
	if elapsed > 0 && total > 0 {
		stats.RequestsPerSec = float64(total) / elapsed.Seconds()
	}
	if len(c.errors) > 0 {
		stats.Errors = make(map[string]int64, len(c.errors))
		for k, v := range c.errors {
			stats.Errors[k] = v
		}
	}
	return stats
}

// LogValue renders the stats as a slog group.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("calls", s.Total),
		slog.Int64("ok", s.Successes),
		slog.Int64("err", s.Failures),
		slog.Duration("p50", s.P50Latency),
		slog.Duration("p99", s.P99Latency),
		slog.Float64("rps", s.RequestsPerSec),
		slog.Int("error_kinds", len(s.Errors)),
	)
}
