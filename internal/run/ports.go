package run

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no run matches the requested id.
	ErrNotFound = errors.New("run not found")
	// ErrAlreadyFinished is returned when a terminal update targets a finished run.
	ErrAlreadyFinished = errors.New("run already finished")
)

// Store persists runs. Implementations must be safe for concurrent use.
type Store interface {
	GenerateRunID(ctx context.Context) ID
	SaveRun(ctx context.Context, run NewRun) error
	// UpdateRun must change exactly one in-progress record; otherwise it
	// returns an error wrapping ErrNotFound or ErrAlreadyFinished.
	UpdateRun(ctx context.Context, run Run) error
	GetRunByID(ctx context.Context, id ID) (Run, error)
}

// Upstream sends one request tagged with a run id to the faulty server.
// Implementations must be safe for concurrent use and must not block past
// their own transport timeout. Failures are reported as Err outcomes.
type Upstream interface {
	SendRequest(ctx context.Context, id ID) Outcome
}
