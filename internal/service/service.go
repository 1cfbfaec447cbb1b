// Package service admits runs and reports their state.
package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prok20/faulty-server-poller/internal/logger"
	"github.com/prok20/faulty-server-poller/internal/metrics"
	"github.com/prok20/faulty-server-poller/internal/pool"
	"github.com/prok20/faulty-server-poller/internal/run"
)

var (
	// ErrTooManyRequests means the run queue had no room.
	ErrTooManyRequests = errors.New("too many pending runs")

	// ErrInternal covers every other failure; details are only logged.
	ErrInternal = errors.New("internal error")
)

// Client-facing messages. Upstream and store details never reach callers.
const (
	MessageTooManyRequests = "Too many requests, please try again later"
	MessageInternal        = "Internal server error, please try again later"
)

// JobQueue accepts jobs without blocking.
type JobQueue interface {
	TryPush(job run.Job) error
}

// StartRunRequest is the body of POST /runs.
type StartRunRequest struct {
	Seconds uint64 `json:"seconds"`
}

// StartRunResponse is returned for an admitted run.
type StartRunResponse struct {
	ID run.ID `json:"id"`
}

// Service is the polling service.
type Service struct {
	store       run.Store
	queue       JobQueue
	logger      *slog.Logger
	instruments *metrics.Instruments
}

// New builds a Service. instruments may be nil.
func New(store run.Store, queue JobQueue, log *slog.Logger, instruments *metrics.Instruments) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, queue: queue, logger: log, instruments: instruments}
}

// StartRun admits a run lasting seconds. The job is queued before the
// in-progress record is written, and a full queue leaves no record behind.
func (s *Service) StartRun(ctx context.Context, seconds uint64) (run.ID, error) {
	log := logger.FromContext(ctx, s.logger)
	id := s.store.GenerateRunID(ctx)
	log = log.With("run_id", id.String())

	job := run.Job{ID: id, Duration: secondsToDuration(seconds)}
	if err := s.queue.TryPush(job); err != nil {
		switch {
		case errors.Is(err, pool.ErrQueueFull):
			s.instruments.RunRejected(ctx, metrics.ReasonQueueFull)
			log.Warn("run rejected: queue full")
			return run.ID{}, ErrTooManyRequests
		default:
			s.instruments.RunRejected(ctx, metrics.ReasonQueueClosed)
			log.Error("run rejected", "error", err)
			return run.ID{}, ErrInternal
		}
	}

	if err := s.store.SaveRun(ctx, run.NewRun{ID: id, Seconds: seconds}); err != nil {
		log.Error("failed to save queued run", "error", err)
		return run.ID{}, ErrInternal
	}

	s.instruments.RunAccepted(ctx)
	log.Info("run accepted", "seconds", seconds)
	return id, nil
}

// GetRun reads a run. Every lookup failure, including an unknown id, is
// reported as ErrInternal.
func (s *Service) GetRun(ctx context.Context, id run.ID) (run.Run, error) {
	r, err := s.store.GetRunByID(ctx, id)
	if err != nil {
		logger.FromContext(ctx, s.logger).Error("failed to read run", "run_id", id.String(), "error", err)
		return run.Run{}, ErrInternal
	}
	return r, nil
}

// StatusCode maps a service error to an HTTP status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the client-facing text for a service error.
func Message(err error) string {
	if errors.Is(err, ErrTooManyRequests) {
		return MessageTooManyRequests
	}
	return MessageInternal
}

// maxSeconds keeps the job duration within time.Duration.
const maxSeconds = uint64(1<<63-1) / uint64(time.Second)

func secondsToDuration(seconds uint64) time.Duration {
	if seconds > maxSeconds {
		seconds = maxSeconds
	}
	return time.Duration(seconds) * time.Second
}
