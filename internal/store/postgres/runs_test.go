package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	"github.com/prok20/faulty-server-poller/internal/run"
)

func newMockStore(t *testing.T) (*Store, *sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return New(db), db, mock
}

func TestSaveRun_Success(t *testing.T) {
	store, db, mock := newMockStore(t)
	defer db.Close()

	id := uuid.New()
	mock.ExpectExec(regexp.QuoteMeta(insertRunQuery)).
		WithArgs(id, int64(run.StatusInProgress)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SaveRun(context.Background(), run.NewRun{ID: id, Seconds: 3}); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSaveRun_Error(t *testing.T) {
	store, db, mock := newMockStore(t)
	defer db.Close()

	dbErr := errors.New("connection reset")
	mock.ExpectExec(regexp.QuoteMeta(insertRunQuery)).WillReturnError(dbErr)

	err := store.SaveRun(context.Background(), run.NewRun{ID: uuid.New()})
	if !errors.Is(err, dbErr) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestUpdateRun_Success(t *testing.T) {
	store, db, mock := newMockStore(t)
	defer db.Close()

	id := uuid.New()
	mock.ExpectExec(regexp.QuoteMeta(updateRunQuery)).
		WithArgs(int64(run.StatusFinished), int64(4), int64(200), id, int64(run.StatusInProgress)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpdateRun(context.Background(), run.Run{
		ID:                       id,
		Status:                   run.StatusFinished,
		SuccessfulResponsesCount: 4,
		Sum:                      200,
	})
	if err != nil {
		t.Fatalf("UpdateRun failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpdateRun_ZeroRowsIsNotFound(t *testing.T) {
	store, db, mock := newMockStore(t)
	defer db.Close()

	id := uuid.New()
	mock.ExpectExec(regexp.QuoteMeta(updateRunQuery)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(selectStatusQuery)).
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	err := store.UpdateRun(context.Background(), run.Run{ID: id, Status: run.StatusFinished})
	if !errors.Is(err, run.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateRun_FinishedRunIsAlreadyFinished(t *testing.T) {
	store, db, mock := newMockStore(t)
	defer db.Close()

	id := uuid.New()
	mock.ExpectExec(regexp.QuoteMeta(updateRunQuery)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(selectStatusQuery)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"status_id"}).AddRow(int16(run.StatusFinished)))

	err := store.UpdateRun(context.Background(), run.Run{ID: id, Status: run.StatusFinished})
	if !errors.Is(err, run.ErrAlreadyFinished) {
		t.Fatalf("expected ErrAlreadyFinished, got %v", err)
	}
	if errors.Is(err, run.ErrNotFound) {
		t.Fatalf("finished run must not report ErrNotFound: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateRun_RowsAffectedError(t *testing.T) {
	store, db, mock := newMockStore(t)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(updateRunQuery)).
		WillReturnResult(sqlmock.NewErrorResult(errors.New("driver cannot count")))

	if err := store.UpdateRun(context.Background(), run.Run{ID: uuid.New(), Status: run.StatusFinished}); err == nil {
		t.Fatal("expected error when rows affected is unavailable")
	}
}

func TestGetRunByID_Success(t *testing.T) {
	store, db, mock := newMockStore(t)
	defer db.Close()

	id := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(selectRunQuery)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"status_id", "run_successful_responses", "run_value_sum"}).
			AddRow(int64(1), int64(7), int64(350)))

	got, err := store.GetRunByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetRunByID failed: %v", err)
	}
	want := run.Run{ID: id, Status: run.StatusFinished, SuccessfulResponsesCount: 7, Sum: 350}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetRunByID_InProgressReadsZero(t *testing.T) {
	store, db, mock := newMockStore(t)
	defer db.Close()

	id := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(selectRunQuery)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"status_id", "run_successful_responses", "run_value_sum"}).
			AddRow(int64(0), int64(0), int64(0)))

	got, err := store.GetRunByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetRunByID failed: %v", err)
	}
	if got.Status != run.StatusInProgress || got.SuccessfulResponsesCount != 0 || got.Sum != 0 {
		t.Errorf("unexpected in-progress run %+v", got)
	}
}

func TestGetRunByID_NotFound(t *testing.T) {
	store, db, mock := newMockStore(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(selectRunQuery)).WillReturnError(sql.ErrNoRows)

	if _, err := store.GetRunByID(context.Background(), uuid.New()); !errors.Is(err, run.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetRunByID_UnknownStatus(t *testing.T) {
	store, db, mock := newMockStore(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(selectRunQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"status_id", "run_successful_responses", "run_value_sum"}).
			AddRow(int64(9), int64(0), int64(0)))

	if _, err := store.GetRunByID(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected error for unknown status code")
	}
}

func TestGenerateRunIDIsUnique(t *testing.T) {
	store := New(nil)
	seen := make(map[run.ID]bool)
	for i := 0; i < 100; i++ {
		id := store.GenerateRunID(context.Background())
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		t.Fatalf("iofs.New: %v", err)
	}
	defer source.Close()

	first, err := source.First()
	if err != nil {
		t.Fatalf("First: %v", err)
	}
	if first != 1 {
		t.Fatalf("first migration version = %d, want 1", first)
	}
	up, _, err := source.ReadUp(first)
	if err != nil {
		t.Fatalf("ReadUp: %v", err)
	}
	defer up.Close()
	down, _, err := source.ReadDown(first)
	if err != nil {
		t.Fatalf("ReadDown: %v", err)
	}
	defer down.Close()
}
