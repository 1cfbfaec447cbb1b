// Package pool admits run jobs into a bounded queue and drives them through
// a fixed set of workers.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/prok20/faulty-server-poller/internal/metrics"
	"github.com/prok20/faulty-server-poller/internal/run"
	"github.com/prok20/faulty-server-poller/internal/runner"
)

var (
	// ErrQueueFull is returned by TryPush when MaxPendingRuns jobs are waiting.
	ErrQueueFull = errors.New("run queue is full")
	// ErrQueueClosed is returned by TryPush once Shutdown has begun.
	ErrQueueClosed = errors.New("run queue is closed")
)

const (
	defaultWriteTimeout = 5 * time.Second

	// A worker may finish before the in-progress record is inserted, so a
	// terminal update that finds no run is retried within WriteTimeout.
	writeRetryInitial = 5 * time.Millisecond
	writeRetryMax     = 250 * time.Millisecond
)

// Executor runs a single job to completion.
type Executor interface {
	Execute(ctx context.Context, job run.Job) run.JobResult
}

// Options configure the Pool.
type Options struct {
	MaxPendingRuns           int // queue capacity (min 1)
	MaxConcurrentRuns        int // worker count (min 1)
	ConcurrentRequestsPerRun int // forwarded to the default executor (min 1)
	RatePerRun               int // forwarded to the default executor (0 means unlimited)

	Upstream    run.Upstream // used by the default executor
	Store       run.Store    // receives terminal updates (required)
	Logger      *slog.Logger
	Tracer      trace.Tracer
	Instruments *metrics.Instruments

	Executor     Executor      // overrides the default runner.Executor
	WriteTimeout time.Duration // bound on each terminal update, retries included (default 5s)
}

func (o *Options) normalize() {
	if o.MaxPendingRuns < 1 {
		o.MaxPendingRuns = 1
	}
	if o.MaxConcurrentRuns < 1 {
		o.MaxConcurrentRuns = 1
	}
	if o.ConcurrentRequestsPerRun < 1 {
		o.ConcurrentRequestsPerRun = 1
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.Executor == nil {
		o.Executor = runner.New(runner.Options{
			ConcurrentRequests: o.ConcurrentRequestsPerRun,
			RatePerSecond:      o.RatePerRun,
			Upstream:           o.Upstream,
			Logger:             o.Logger,
			Tracer:             o.Tracer,
			Instruments:        o.Instruments,
		})
	}
}

// Pool is a bounded FIFO of jobs served by MaxConcurrentRuns workers.
type Pool struct {
	opt  Options
	jobs chan run.Job

	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New starts the workers. They live until Shutdown.
func New(opt Options) *Pool {
	opt.normalize()
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		opt:    opt,
		jobs:   make(chan run.Job, opt.MaxPendingRuns),
		ctx:    ctx,
		cancel: cancel,
	}
	p.wg.Add(opt.MaxConcurrentRuns)
	for i := 0; i < opt.MaxConcurrentRuns; i++ {
		go p.worker(i)
	}
	return p
}

// TryPush enqueues job without blocking.
func (p *Pool) TryPush(job run.Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrQueueClosed
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending reports the number of queued jobs not yet picked up by a worker.
func (p *Pool) Pending() int {
	return len(p.jobs)
}

// Shutdown stops admission and waits for workers to finish the jobs they
// hold and drain the queue. If ctx expires first, running jobs are told to
// stop and their runs are left in progress.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}

func (p *Pool) worker(n int) {
	defer p.wg.Done()
	log := p.opt.Logger.With("worker", n)
	for job := range p.jobs {
		p.process(log, job)
	}
}

func (p *Pool) process(log *slog.Logger, job run.Job) {
	log = log.With("run_id", job.ID.String())
	defer func() {
		if r := recover(); r != nil {
			log.Error("run panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()

	p.opt.Instruments.RunStarted(p.ctx)
	defer p.opt.Instruments.RunStopped(p.ctx)

	log.Info("run started", "duration", job.Duration)
	result := p.opt.Executor.Execute(p.ctx, job)

	if p.ctx.Err() != nil {
		log.Warn("pool stopped before terminal write; run left in progress",
			"successful_responses", result.SuccessfulResponses,
			"sum", result.ValueSum,
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), p.opt.WriteTimeout)
	defer cancel()
	if err := p.writeTerminal(ctx, result.Terminal()); err != nil {
		p.opt.Instruments.TerminalWriteFailed(ctx)
		log.Error("failed to write terminal run state", "error", err)
		return
	}
	p.opt.Instruments.RunFinished(ctx)
	log.Info("run finished",
		"successful_responses", result.SuccessfulResponses,
		"sum", result.ValueSum,
	)
}

// writeTerminal applies the terminal update, retrying while the run is not
// yet visible in the store.
func (p *Pool) writeTerminal(ctx context.Context, r run.Run) error {
	backoff := writeRetryInitial
	for {
		err := p.opt.Store.UpdateRun(ctx, r)
		if err == nil || !errors.Is(err, run.ErrNotFound) {
			return err
		}

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-p.ctx.Done():
			timer.Stop()
			return err
		}
		backoff *= 2
		if backoff > writeRetryMax {
			backoff = writeRetryMax
		}
	}
}
