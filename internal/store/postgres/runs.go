package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/prok20/faulty-server-poller/internal/run"
)

const (
	insertRunQuery = `INSERT INTO run (run_id, status_id) VALUES ($1, $2)`
	updateRunQuery = `UPDATE run SET status_id = $1, run_successful_responses = $2, run_value_sum = $3
WHERE run_id = $4 AND status_id = $5`
	selectRunQuery    = `SELECT status_id, run_successful_responses, run_value_sum FROM run WHERE run_id = $1`
	selectStatusQuery = `SELECT status_id FROM run WHERE run_id = $1`
)

// GenerateRunID returns a fresh random id.
func (s *Store) GenerateRunID(context.Context) run.ID {
	return uuid.New()
}

// SaveRun inserts an in-progress record.
func (s *Store) SaveRun(ctx context.Context, r run.NewRun) error {
	if _, err := s.db.ExecContext(ctx, insertRunQuery, r.ID, int16(run.StatusInProgress)); err != nil {
		return fmt.Errorf("insert run %s: %w", r.ID, err)
	}
	return nil
}

// UpdateRun writes the terminal state of an in-progress run. Exactly one row
// must change.
func (s *Store) UpdateRun(ctx context.Context, r run.Run) error {
	res, err := s.db.ExecContext(ctx, updateRunQuery,
		int16(r.Status),
		int64(r.SuccessfulResponsesCount),
		int64(r.Sum),
		r.ID,
		int16(run.StatusInProgress),
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", r.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run %s: rows affected: %w", r.ID, err)
	}
	if affected == 1 {
		return nil
	}
	if affected == 0 {
		return fmt.Errorf("update run %s: %w", r.ID, s.unchangedReason(ctx, r.ID))
	}
	return fmt.Errorf("update run %s: %d rows affected", r.ID, affected)
}

// unchangedReason tells a missing run apart from one that already finished.
func (s *Store) unchangedReason(ctx context.Context, id run.ID) error {
	var status int16
	if err := s.db.QueryRowContext(ctx, selectStatusQuery, id).Scan(&status); err != nil {
		return handleNotFound(err)
	}
	if run.Status(status) == run.StatusFinished {
		return run.ErrAlreadyFinished
	}
	return run.ErrNotFound
}

// GetRunByID reads one run.
func (s *Store) GetRunByID(ctx context.Context, id run.ID) (run.Run, error) {
	var (
		status    int16
		successes int64
		sum       int64
	)
	err := s.db.QueryRowContext(ctx, selectRunQuery, id).Scan(&status, &successes, &sum)
	if err != nil {
		return run.Run{}, handleNotFound(err)
	}
	st, err := run.ParseStatusCode(status)
	if err != nil {
		return run.Run{}, fmt.Errorf("run %s: %w", id, err)
	}
	return run.Run{
		ID:                       id,
		Status:                   st,
		SuccessfulResponsesCount: uint64(successes),
		Sum:                      uint64(sum),
	}, nil
}

func handleNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return run.ErrNotFound
	}
	return err
}
